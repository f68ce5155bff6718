package httpapi

import (
	"strconv"
	"strings"

	lazarus "github.com/goliatone/go-lazarus"
	"github.com/goliatone/go-router"
	"github.com/google/uuid"
)

type setActiveRequest struct {
	Active *bool `json:"is_active"`
}

func (h *Controller) ListIdentities(ctx router.Context) error {
	if h.services.Identities == nil {
		return unavailable("identities")
	}
	actor, err := currentActor(ctx)
	if err != nil {
		return err
	}
	role, err := roleParam(ctx)
	if err != nil {
		return err
	}

	out, err := h.services.Identities.List(ctx.Context(), actor, role)
	if err != nil {
		return err
	}
	return ctx.JSON(router.StatusOK, map[string]any{"data": out, "count": len(out)})
}

func (h *Controller) GetIdentity(ctx router.Context) error {
	if h.services.Identities == nil {
		return unavailable("identities")
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

	identity, err := h.services.Identities.Get(ctx.Context(), actor, role, id)
	if err != nil {
		return err
	}
	return ctx.JSON(router.StatusOK, identity)
}

func (h *Controller) SetIdentityActive(ctx router.Context) error {
	if h.services.Identities == nil {
		return unavailable("identities")
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

	payload := setActiveRequest{}
	if err := ctx.Bind(&payload); err != nil {
		return badInput(err, "malformed payload")
	}
	if payload.Active == nil {
		return lazarus.ErrEmptyPatch.Clone().WithMetadata(map[string]any{"field": "is_active"})
	}

	identity, err := h.services.Identities.SetActive(ctx.Context(), actor, lazarus.IdentityRef{ID: id, Role: role}, *payload.Active)
	if err != nil {
		return err
	}
	return ctx.JSON(router.StatusOK, identity)
}

// StrikeCitizen records a strike by hand
func (h *Controller) StrikeCitizen(ctx router.Context) error {
	if h.services.Strikes == nil {
		return unavailable("strikes")
	}
	actor, err := currentActor(ctx)
	if err != nil {
		return err
	}
	id, err := uuidParam(ctx, "id")
	if err != nil {
		return err
	}

	result, err := h.services.Strikes.Strike(ctx.Context(), actor, id)
	if err != nil {
		return err
	}
	return ctx.JSON(router.StatusOK, result)
}

// rolePaths maps the plural path segments to role tags
var rolePaths = map[string]lazarus.RoleTag{
	"citizens": lazarus.RoleCitizen,
	"entities": lazarus.RoleEntity,
	"admins":   lazarus.RoleAdmin,
}

// roleParam accepts the plural path segment or the role tag itself
func roleParam(ctx router.Context) (lazarus.RoleTag, error) {
	raw := ctx.Param("role")
	if role, ok := rolePaths[strings.ToLower(raw)]; ok {
		return role, nil
	}
	if role, ok := lazarus.ParseRole(raw); ok {
		return role, nil
	}
	return "", lazarus.ErrInvalidRole.Clone().WithMetadata(map[string]any{"role": raw})
}

func uuidParam(ctx router.Context, name string) (uuid.UUID, error) {
	raw := ctx.Param(name)
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, badInput(err, "invalid id").WithMetadata(map[string]any{name: raw})
	}
	return id, nil
}

func queryBool(ctx router.Context, name string) (bool, error) {
	raw := ctx.Query(name)
	if raw == "" {
		return false, nil
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return false, badInput(err, "invalid query parameter").WithMetadata(map[string]any{name: raw})
	}
	return v, nil
}

func queryInt(ctx router.Context, name string, def int) (int, error) {
	raw := ctx.Query(name)
	if raw == "" {
		return def, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, badInput(err, "invalid query parameter").WithMetadata(map[string]any{name: raw})
	}
	return v, nil
}

// queryFloat reports whether the parameter was present
func queryFloat(ctx router.Context, name string) (float64, bool, error) {
	raw := ctx.Query(name)
	if raw == "" {
		return 0, false, nil
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, false, badInput(err, "invalid query parameter").WithMetadata(map[string]any{name: raw})
	}
	return v, true, nil
}
