package httpapi

import (
	"net/http"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"
	goerrors "github.com/goliatone/go-errors"
	lazarus "github.com/goliatone/go-lazarus"
	"github.com/goliatone/go-router"
)

// resetRequestedMessage is returned whether or not the email exists
const resetRequestedMessage = "if the email is registered a reset code has been sent"

// LoginRequest is the login payload
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (r LoginRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Email, validation.Required, is.Email),
		validation.Field(&r.Password, validation.Required),
	)
}

func (h *Controller) Login(ctx router.Context) error {
	payload := LoginRequest{}
	if err := ctx.Bind(&payload); err != nil {
		return badInput(err, "malformed login payload")
	}
	if err := payload.Validate(); err != nil {
		return goerrors.Wrap(err, goerrors.CategoryValidation, "invalid login payload")
	}

	res, err := h.services.Auth.Login(ctx.Context(), payload.Email, payload.Password)
	if err != nil {
		return err
	}
	return ctx.JSON(router.StatusOK, res)
}

// RegisterCitizen creates the account and logs it in
func (h *Controller) RegisterCitizen(ctx router.Context) error {
	if h.services.Register == nil {
		return unavailable("registration")
	}
	payload := lazarus.RegisterCitizenMessage{}
	if err := ctx.Bind(&payload); err != nil {
		return badInput(err, "malformed registration payload")
	}

	identity, err := h.services.Register.RegisterCitizen(ctx.Context(), payload)
	if err != nil {
		return err
	}

	res, err := h.services.Auth.LoginIdentity(ctx.Context(), identity)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusCreated, res)
}

func (h *Controller) RegisterEntity(ctx router.Context) error {
	if h.services.Register == nil {
		return unavailable("registration")
	}
	actor, err := currentActor(ctx)
	if err != nil {
		return err
	}
	payload := lazarus.RegisterEntityMessage{}
	if err := ctx.Bind(&payload); err != nil {
		return badInput(err, "malformed registration payload")
	}

	identity, err := h.services.Register.RegisterEntity(ctx.Context(), actor, payload)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusCreated, identity)
}

func (h *Controller) RegisterAdmin(ctx router.Context) error {
	if h.services.Register == nil {
		return unavailable("registration")
	}
	actor, err := currentActor(ctx)
	if err != nil {
		return err
	}
	payload := lazarus.RegisterAdminMessage{}
	if err := ctx.Bind(&payload); err != nil {
		return badInput(err, "malformed registration payload")
	}

	identity, err := h.services.Register.RegisterAdmin(ctx.Context(), actor, payload)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusCreated, identity)
}

// RequestPasswordReset answers the same way for known and unknown emails
func (h *Controller) RequestPasswordReset(ctx router.Context) error {
	if h.services.Resets == nil {
		return unavailable("password_reset")
	}
	payload := lazarus.RequestPasswordResetMessage{}
	if err := ctx.Bind(&payload); err != nil {
		return badInput(err, "malformed reset payload")
	}

	sent, err := h.services.Resets.Request(ctx.Context(), payload)
	if err != nil {
		return err
	}
	if !sent {
		h.logger.Debug("password reset requested for unknown email")
	}
	return ctx.JSON(router.StatusOK, map[string]any{"message": resetRequestedMessage})
}

func (h *Controller) CompletePasswordReset(ctx router.Context) error {
	if h.services.Resets == nil {
		return unavailable("password_reset")
	}
	payload := lazarus.CompletePasswordResetMessage{}
	if err := ctx.Bind(&payload); err != nil {
		return badInput(err, "malformed reset payload")
	}

	if err := h.services.Resets.Complete(ctx.Context(), payload); err != nil {
		return err
	}
	return ctx.JSON(router.StatusOK, map[string]any{"message": "password updated"})
}

func (h *Controller) Me(ctx router.Context) error {
	actor, err := currentActor(ctx)
	if err != nil {
		return err
	}
	return ctx.JSON(router.StatusOK, actor)
}
