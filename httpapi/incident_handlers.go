package httpapi

import (
	"encoding/json"
	"net/http"
	"sort"
	"strings"

	goerrors "github.com/goliatone/go-errors"
	lazarus "github.com/goliatone/go-lazarus"
	"github.com/goliatone/go-router"
	"github.com/google/uuid"
)

// patchFields are the keys an incident patch may carry
var patchFields = map[string]bool{
	"type":        true,
	"description": true,
	"severity":    true,
	"latitude":    true,
	"longitude":   true,
	"address":     true,
	"status":      true,
}

// mediaRequest carries base64 encoded attachments
type mediaRequest struct {
	Media []lazarus.MediaFile `json:"media"`
}

func (h *Controller) CreateIncident(ctx router.Context) error {
	if h.services.Incidents == nil {
		return unavailable("incidents")
	}
	actor, err := currentActor(ctx)
	if err != nil {
		return err
	}

	payload := lazarus.CreateIncidentMessage{}
	if err := ctx.Bind(&payload); err != nil {
		return badInput(err, "malformed incident payload")
	}

	incident, err := h.services.Incidents.Create(ctx.Context(), actor, payload)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusCreated, incident)
}

func (h *Controller) ListIncidents(ctx router.Context) error {
	if h.services.Incidents == nil {
		return unavailable("incidents")
	}
	archived, err := queryBool(ctx, "include_archived")
	if err != nil {
		return err
	}
	limit, err := queryInt(ctx, "limit", 0)
	if err != nil {
		return err
	}

	filter := lazarus.IncidentFilter{
		Type:            lazarus.IncidentType(strings.ToUpper(ctx.Query("type"))),
		Severity:        lazarus.Severity(strings.ToUpper(ctx.Query("severity"))),
		Status:          lazarus.IncidentStatus(strings.ToUpper(ctx.Query("status"))),
		IncludeArchived: archived,
		Limit:           limit,
	}
	if raw := ctx.Query("reporter_id"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			return badInput(err, "invalid reporter_id")
		}
		filter.ReporterID = id
	}

	return h.listIncidents(ctx, filter)
}

// MyIncidents lists the calling citizen's reports, archived included
func (h *Controller) MyIncidents(ctx router.Context) error {
	if h.services.Incidents == nil {
		return unavailable("incidents")
	}
	actor, err := currentActor(ctx)
	if err != nil {
		return err
	}
	return h.listIncidents(ctx, lazarus.IncidentFilter{
		ReporterID:      actor.ID(),
		IncludeArchived: true,
	})
}

func (h *Controller) listIncidents(ctx router.Context, filter lazarus.IncidentFilter) error {
	out, err := h.services.Incidents.List(ctx.Context(), filter)
	if err != nil {
		return err
	}
	return ctx.JSON(router.StatusOK, map[string]any{"data": out, "count": len(out)})
}

func (h *Controller) NearbyIncidents(ctx router.Context) error {
	if h.services.Incidents == nil {
		return unavailable("incidents")
	}
	lat, err := requiredCoordinate(ctx, "lat")
	if err != nil {
		return err
	}
	lng, err := requiredCoordinate(ctx, "lng")
	if err != nil {
		return err
	}
	radius, _, err := queryFloat(ctx, "radius")
	if err != nil {
		return err
	}

	out, err := h.services.Incidents.Nearby(ctx.Context(), lat, lng, radius)
	if err != nil {
		return err
	}
	return ctx.JSON(router.StatusOK, map[string]any{"data": out, "count": len(out)})
}

func requiredCoordinate(ctx router.Context, name string) (float64, error) {
	v, ok, err := queryFloat(ctx, name)
	if err != nil {
		return 0, err
	}
	if !ok {
		return 0, goerrors.New("coordinate is required", goerrors.CategoryValidation).
			WithMetadata(map[string]any{"field": name})
	}
	return v, nil
}

func (h *Controller) GetIncident(ctx router.Context) error {
	if h.services.Incidents == nil {
		return unavailable("incidents")
	}
	id, err := uuidParam(ctx, "id")
	if err != nil {
		return err
	}
	incident, err := h.services.Incidents.Get(ctx.Context(), id)
	if err != nil {
		return err
	}
	return ctx.JSON(router.StatusOK, incident)
}

func (h *Controller) UpdateIncident(ctx router.Context) error {
	if h.services.Incidents == nil {
		return unavailable("incidents")
	}
	actor, err := currentActor(ctx)
	if err != nil {
		return err
	}
	id, err := uuidParam(ctx, "id")
	if err != nil {
		return err
	}

	patch, err := decodePatch(ctx)
	if err != nil {
		return err
	}

	incident, err := h.services.Incidents.Update(ctx.Context(), actor, id, patch)
	if err != nil {
		return err
	}
	return ctx.JSON(router.StatusOK, incident)
}

// decodePatch rejects keys outside patchFields instead of dropping them
func decodePatch(ctx router.Context) (lazarus.IncidentPatch, error) {
	patch := lazarus.IncidentPatch{}

	raw := map[string]json.RawMessage{}
	if err := ctx.Bind(&raw); err != nil {
		return patch, badInput(err, "malformed incident patch")
	}

	var unknown []string
	for key := range raw {
		if !patchFields[key] {
			unknown = append(unknown, key)
		}
	}
	if len(unknown) > 0 {
		sort.Strings(unknown)
		return patch, goerrors.New("unknown incident fields", goerrors.CategoryBadInput).
			WithCode(goerrors.CodeBadRequest).
			WithMetadata(map[string]any{"fields": unknown})
	}

	body, err := json.Marshal(raw)
	if err != nil {
		return patch, badInput(err, "malformed incident patch")
	}
	if err := json.Unmarshal(body, &patch); err != nil {
		return patch, badInput(err, "malformed incident patch")
	}
	return patch, nil
}

func (h *Controller) RemoveIncident(ctx router.Context) error {
	if h.services.Incidents == nil {
		return unavailable("incidents")
	}
	actor, err := currentActor(ctx)
	if err != nil {
		return err
	}
	id, err := uuidParam(ctx, "id")
	if err != nil {
		return err
	}

	if err := h.services.Incidents.Remove(ctx.Context(), actor, id); err != nil {
		return err
	}
	return noContent(ctx)
}

func (h *Controller) ListMedia(ctx router.Context) error {
	if h.services.Incidents == nil {
		return unavailable("incidents")
	}
	id, err := uuidParam(ctx, "id")
	if err != nil {
		return err
	}

	out, err := h.services.Incidents.ListMedia(ctx.Context(), id)
	if err != nil {
		return err
	}
	return ctx.JSON(router.StatusOK, map[string]any{"data": out, "count": len(out)})
}

func (h *Controller) AddMedia(ctx router.Context) error {
	if h.services.Incidents == nil {
		return unavailable("incidents")
	}
	actor, err := currentActor(ctx)
	if err != nil {
		return err
	}
	id, err := uuidParam(ctx, "id")
	if err != nil {
		return err
	}

	payload := mediaRequest{}
	if err := ctx.Bind(&payload); err != nil {
		return badInput(err, "malformed media payload")
	}

	out, err := h.services.Incidents.AddMedia(ctx.Context(), actor, id, payload.Media)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusCreated, map[string]any{"data": out, "count": len(out)})
}

func (h *Controller) RemoveMedia(ctx router.Context) error {
	if h.services.Incidents == nil {
		return unavailable("incidents")
	}
	actor, err := currentActor(ctx)
	if err != nil {
		return err
	}
	id, err := uuidParam(ctx, "id")
	if err != nil {
		return err
	}

	if err := h.services.Incidents.RemoveMedia(ctx.Context(), actor, id); err != nil {
		return err
	}
	return noContent(ctx)
}

func (h *Controller) RemoveAllMedia(ctx router.Context) error {
	if h.services.Incidents == nil {
		return unavailable("incidents")
	}
	actor, err := currentActor(ctx)
	if err != nil {
		return err
	}
	id, err := uuidParam(ctx, "id")
	if err != nil {
		return err
	}

	removed, err := h.services.Incidents.RemoveAllMedia(ctx.Context(), actor, id)
	if err != nil {
		return err
	}
	return ctx.JSON(router.StatusOK, map[string]any{"removed": removed})
}
