package httpapi

import (
	"net/http"

	lazarus "github.com/goliatone/go-lazarus"
	"github.com/goliatone/go-router"
)

func (h *Controller) ListNotifications(ctx router.Context) error {
	if h.services.Notifications == nil {
		return unavailable("notifications")
	}
	actor, err := currentActor(ctx)
	if err != nil {
		return err
	}
	unread, err := queryBool(ctx, "unread")
	if err != nil {
		return err
	}

	out, err := h.services.Notifications.List(ctx.Context(), actor, unread)
	if err != nil {
		return err
	}
	return ctx.JSON(router.StatusOK, map[string]any{"data": out, "count": len(out)})
}

func (h *Controller) CreateNotification(ctx router.Context) error {
	if h.services.Notifications == nil {
		return unavailable("notifications")
	}
	actor, err := currentActor(ctx)
	if err != nil {
		return err
	}
	payload := lazarus.CreateNotificationMessage{}
	if err := ctx.Bind(&payload); err != nil {
		return badInput(err, "malformed notification payload")
	}

	created, err := h.services.Notifications.Create(ctx.Context(), actor, payload)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusCreated, created)
}

// SendSystemMessage fans an admin message out to one identity or a role
func (h *Controller) SendSystemMessage(ctx router.Context) error {
	if h.services.Notifications == nil {
		return unavailable("notifications")
	}
	actor, err := currentActor(ctx)
	if err != nil {
		return err
	}
	payload := lazarus.SystemMessage{}
	if err := ctx.Bind(&payload); err != nil {
		return badInput(err, "malformed system message")
	}

	sent, err := h.services.Notifications.SendSystemMessage(ctx.Context(), actor, payload)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusCreated, map[string]any{"recipients": sent})
}

func (h *Controller) MarkNotificationRead(ctx router.Context) error {
	if h.services.Notifications == nil {
		return unavailable("notifications")
	}
	actor, err := currentActor(ctx)
	if err != nil {
		return err
	}
	id, err := uuidParam(ctx, "id")
	if err != nil {
		return err
	}

	updated, err := h.services.Notifications.MarkRead(ctx.Context(), actor, id)
	if err != nil {
		return err
	}
	return ctx.JSON(router.StatusOK, updated)
}

func (h *Controller) MarkAllNotificationsRead(ctx router.Context) error {
	if h.services.Notifications == nil {
		return unavailable("notifications")
	}
	actor, err := currentActor(ctx)
	if err != nil {
		return err
	}

	n, err := h.services.Notifications.MarkAllRead(ctx.Context(), actor)
	if err != nil {
		return err
	}
	return ctx.JSON(router.StatusOK, map[string]any{"updated": n})
}

func (h *Controller) DeleteNotification(ctx router.Context) error {
	if h.services.Notifications == nil {
		return unavailable("notifications")
	}
	actor, err := currentActor(ctx)
	if err != nil {
		return err
	}
	id, err := uuidParam(ctx, "id")
	if err != nil {
		return err
	}

	if err := h.services.Notifications.Delete(ctx.Context(), actor, id); err != nil {
		return err
	}
	return noContent(ctx)
}
