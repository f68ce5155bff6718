// Package httpapi exposes the lazarus services as a JSON API over go-router.
// Every route except login, citizen registration and password reset takes
// a bearer token.
package httpapi

import (
	"context"
	"net/http"

	"github.com/gofiber/fiber/v2"
	goerrors "github.com/goliatone/go-errors"
	lazarus "github.com/goliatone/go-lazarus"
	"github.com/goliatone/go-lazarus/middleware/jwtware"
	"github.com/goliatone/go-router"
)

// LocationPublisher forwards entity positions to realtime clients
type LocationPublisher interface {
	LocationUpdated(ctx context.Context, update lazarus.LocationUpdate) error
}

// Services are the handlers the API delegates to
type Services struct {
	Auth          *lazarus.Auther
	Register      *lazarus.RegisterHandler
	Resets        *lazarus.PasswordResetFlow
	Identities    *lazarus.IdentityAdmin
	Strikes       *lazarus.StrikeLedger
	Incidents     *lazarus.IncidentLifecycle
	Notifications *lazarus.NotificationService
	Stats         *lazarus.StatisticsService
	Archiver      *lazarus.Archiver
	Locations     *lazarus.LocationRegistry
}

type Controller struct {
	services  Services
	logger    lazarus.Logger
	publisher LocationPublisher
	hub       StreamHub
	debug     bool
	prefix    string
}

type Option func(*Controller)

func WithLogger(logger lazarus.Logger) Option {
	return func(c *Controller) {
		if logger != nil {
			c.logger = logger
		}
	}
}

func WithDebug(debug bool) Option {
	return func(c *Controller) {
		c.debug = debug
	}
}

func WithLocationPublisher(p LocationPublisher) Option {
	return func(c *Controller) {
		c.publisher = p
	}
}

// WithStreamHub enables the realtime channel
func WithStreamHub(hub StreamHub) Option {
	return func(c *Controller) {
		c.hub = hub
	}
}

// WithPrefix mounts the routes under prefix, "/api" by default
func WithPrefix(prefix string) Option {
	return func(c *Controller) {
		c.prefix = prefix
	}
}

func NewController(services Services, opts ...Option) *Controller {
	c := &Controller{
		services: services,
		logger:   nopLogger{},
		prefix:   "/api",
	}
	for _, opt := range opts {
		opt(c)
	}

	if c.services.Auth == nil {
		panic("httpapi: missing Auther")
	}
	if c.services.Locations == nil {
		c.services.Locations = lazarus.NewLocationRegistry()
	}
	return c
}

// NewServer returns a fiber backed go-router server with the controller
// routes mounted and its error handler installed.
func NewServer(controller *Controller, config ...fiber.Config) router.Server[*fiber.App] {
	cfg := fiber.Config{}
	if len(config) > 0 {
		cfg = config[0]
	}
	cfg.ErrorHandler = controller.HandleError

	srv := router.NewFiberAdapter(func(_ *fiber.App) *fiber.App {
		return router.DefaultFiberOptions(fiber.New(cfg))
	})
	RegisterRoutes(srv.Router(), controller)
	return srv
}

// RegisterRoutes mounts every route of h on r
func RegisterRoutes[T any](r router.Router[T], h *Controller) {
	r.Get("/health", func(ctx router.Context) error {
		return ctx.JSON(http.StatusOK, map[string]any{"status": "ok"})
	})

	api := r.Group(h.prefix)

	authed := h.protect()
	adminOnly := h.protect(lazarus.RoleAdmin)
	staff := h.protect(lazarus.RoleEntity, lazarus.RoleAdmin)
	citizens := h.protect(lazarus.RoleCitizen)

	api.Post("/auth/login", h.Login)
	api.Post("/auth/register", h.RegisterCitizen)
	api.Post("/auth/password-reset/request", h.RequestPasswordReset)
	api.Post("/auth/password-reset/complete", h.CompletePasswordReset)
	api.Get("/auth/me", h.Me, authed)

	api.Post("/entities", h.RegisterEntity, adminOnly)
	api.Post("/admins", h.RegisterAdmin, adminOnly)

	api.Get("/identities/:role", h.ListIdentities, adminOnly)
	api.Get("/identities/:role/:id", h.GetIdentity, authed)
	api.Patch("/identities/:role/:id/active", h.SetIdentityActive, adminOnly)
	api.Patch("/identities/citizens/:id/strike", h.StrikeCitizen, staff)

	api.Get("/incidents", h.ListIncidents, authed)
	api.Get("/incidents/mine", h.MyIncidents, citizens)
	api.Get("/incidents/nearby", h.NearbyIncidents, authed)
	api.Post("/incidents", h.CreateIncident, citizens)
	api.Get("/incidents/:id", h.GetIncident, authed)
	api.Patch("/incidents/:id", h.UpdateIncident, authed)
	api.Delete("/incidents/:id", h.RemoveIncident, authed)
	api.Get("/incidents/:id/media", h.ListMedia, authed)
	api.Post("/incidents/:id/media", h.AddMedia, authed)
	api.Delete("/incidents/:id/media", h.RemoveAllMedia, authed)
	api.Delete("/media/:id", h.RemoveMedia, authed)

	api.Get("/notifications", h.ListNotifications, authed)
	api.Post("/notifications", h.CreateNotification, staff)
	api.Post("/notifications/system", h.SendSystemMessage, adminOnly)
	api.Patch("/notifications/read-all", h.MarkAllNotificationsRead, authed)
	api.Patch("/notifications/:id/read", h.MarkNotificationRead, authed)
	api.Delete("/notifications/:id", h.DeleteNotification, authed)

	api.Get("/stats/dashboard", h.Dashboard, staff)
	api.Get("/stats/incidents/recent", h.RecentIncidents, staff)
	api.Get("/stats/incidents/trends", h.IncidentTrends, staff)
	api.Get("/stats/incidents/locations", h.IncidentLocations, staff)
	api.Get("/stats/users/types", h.UsersByType, adminOnly)
	api.Get("/stats/users/:role/:id/activity", h.UserActivity, authed)

	api.Post("/archive/run", h.RunArchive, adminOnly)

	api.Get("/locations/entities", h.EntityLocations, authed)

	api.Get("/realtime/ws", h.RealtimeHandler())
}

// protect hands failures to the server error handler so they share the JSON
// error envelope.
func (h *Controller) protect(roles ...lazarus.RoleTag) router.MiddlewareFunc {
	return jwtware.New(jwtware.Config{
		Resolver: h.services.Auth,
		Roles:    roles,
		ErrorHandler: func(_ router.Context, err error) error {
			return err
		},
	})
}

func currentActor(ctx router.Context) (*lazarus.Identity, error) {
	session, ok := jwtware.SessionFrom(ctx)
	if !ok || session.Identity == nil {
		return nil, lazarus.ErrTokenMalformed.Clone().
			WithMetadata(map[string]any{"reason": "missing session"})
	}
	return session.Identity, nil
}

func unavailable(feature string) error {
	return goerrors.New("feature not configured", goerrors.CategoryInternal).
		WithMetadata(map[string]any{"feature": feature})
}

func noContent(ctx router.Context) error {
	return ctx.Status(http.StatusNoContent).SendString("")
}

type nopLogger struct{}

func (nopLogger) Debug(string, ...any) {}
func (nopLogger) Info(string, ...any)  {}
func (nopLogger) Warn(string, ...any)  {}
func (nopLogger) Error(string, ...any) {}
