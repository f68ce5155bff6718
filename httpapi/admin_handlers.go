package httpapi

import (
	lazarus "github.com/goliatone/go-lazarus"
	"github.com/goliatone/go-router"
)

func (h *Controller) Dashboard(ctx router.Context) error {
	if h.services.Stats == nil {
		return unavailable("statistics")
	}
	actor, err := currentActor(ctx)
	if err != nil {
		return err
	}

	stats, err := h.services.Stats.Dashboard(ctx.Context(), actor)
	if err != nil {
		return err
	}
	return ctx.JSON(router.StatusOK, stats)
}

func (h *Controller) RecentIncidents(ctx router.Context) error {
	if h.services.Stats == nil {
		return unavailable("statistics")
	}
	actor, err := currentActor(ctx)
	if err != nil {
		return err
	}
	limit, err := queryInt(ctx, "limit", 0)
	if err != nil {
		return err
	}

	out, err := h.services.Stats.Recent(ctx.Context(), actor, limit)
	if err != nil {
		return err
	}
	return ctx.JSON(router.StatusOK, map[string]any{"data": out, "count": len(out)})
}

func (h *Controller) IncidentTrends(ctx router.Context) error {
	if h.services.Stats == nil {
		return unavailable("statistics")
	}
	actor, err := currentActor(ctx)
	if err != nil {
		return err
	}
	days, err := queryInt(ctx, "days", 0)
	if err != nil {
		return err
	}

	out, err := h.services.Stats.Trends(ctx.Context(), actor, days)
	if err != nil {
		return err
	}
	return ctx.JSON(router.StatusOK, map[string]any{"data": out, "count": len(out)})
}

func (h *Controller) IncidentLocations(ctx router.Context) error {
	if h.services.Stats == nil {
		return unavailable("statistics")
	}
	actor, err := currentActor(ctx)
	if err != nil {
		return err
	}

	out, err := h.services.Stats.Locations(ctx.Context(), actor)
	if err != nil {
		return err
	}
	return ctx.JSON(router.StatusOK, map[string]any{"data": out, "count": len(out)})
}

func (h *Controller) UsersByType(ctx router.Context) error {
	if h.services.Stats == nil {
		return unavailable("statistics")
	}
	actor, err := currentActor(ctx)
	if err != nil {
		return err
	}

	out, err := h.services.Stats.UsersByType(ctx.Context(), actor)
	if err != nil {
		return err
	}
	return ctx.JSON(router.StatusOK, out)
}

func (h *Controller) UserActivity(ctx router.Context) error {
	if h.services.Stats == nil {
		return unavailable("statistics")
	}
	actor, err := currentActor(ctx)
	if err != nil {
		return err
	}
	role, err := roleParam(ctx)
	if err != nil {
		return err
	}
	id, err := uuidParam(ctx, "id")
	if err != nil {
		return err
	}

	out, err := h.services.Stats.UserActivity(ctx.Context(), actor, lazarus.IdentityRef{ID: id, Role: role})
	if err != nil {
		return err
	}
	return ctx.JSON(router.StatusOK, out)
}

// RunArchive triggers an archive sweep outside the schedule
func (h *Controller) RunArchive(ctx router.Context) error {
	if h.services.Archiver == nil {
		return unavailable("archive")
	}
	report, err := h.services.Archiver.Run(ctx.Context())
	if err != nil {
		return err
	}
	return ctx.JSON(router.StatusOK, report)
}

func (h *Controller) EntityLocations(ctx router.Context) error {
	out := h.services.Locations.EntityLocations()
	return ctx.JSON(router.StatusOK, map[string]any{"data": out, "count": len(out)})
}
