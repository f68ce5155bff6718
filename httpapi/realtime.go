package httpapi

import (
	"context"
	"encoding/json"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/gofiber/contrib/websocket"
	goerrors "github.com/goliatone/go-errors"
	lazarus "github.com/goliatone/go-lazarus"
	"github.com/goliatone/go-lazarus/middleware/jwtware"
	"github.com/goliatone/go-lazarus/redisbus"
	"github.com/goliatone/go-router"
	"github.com/google/uuid"
)

// Realtime client message types
const (
	MessageLocation = "location"
	MessagePing     = "ping"
)

// Realtime reply events
const (
	EventLocationAccepted = "location.accepted"
	EventPong             = "pong"
	EventError            = "error"
)

// StreamHub hands out per connection envelope queues
type StreamHub interface {
	Register(userID uuid.UUID) (<-chan redisbus.Envelope, func())
	Connections(userID uuid.UUID) int
}

// realtimeConn is the part of router.WSClient the session loop uses
type realtimeConn interface {
	ReadMessage() (int, []byte, error)
	WriteMessage(messageType int, data []byte) error
}

// LocationRequest is the position reported by a connected client
type LocationRequest struct {
	Latitude  float64 `json:"lat"`
	Longitude float64 `json:"lng"`
}

func (r LocationRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Latitude, validation.Min(-90.0), validation.Max(90.0)),
		validation.Field(&r.Longitude, validation.Min(-180.0), validation.Max(180.0)),
	)
}

type clientMessage struct {
	Type string `json:"type"`
	LocationRequest
}

type frame struct {
	Event string `json:"event"`
	Data  any    `json:"data,omitempty"`
}

// RealtimeHandler upgrades to a websocket authenticated by the ?token=
// query parameter. Envelopes addressed to the caller are pushed down the
// socket and clients report their position on it.
func (h *Controller) RealtimeHandler() router.HandlerFunc {
	auth := router.NewWSAuth(router.WSAuthConfig{
		TokenValidator: wsValidator{resolver: h.services.Auth},
		TokenExtractor: func(_ context.Context, client router.WSClient) (string, error) {
			if token := client.Conn().Query("token"); token != "" {
				return token, nil
			}
			return "", jwtware.ErrJWTMissingOrMalformed
		},
		OnAuthFailure: func(_ context.Context, client router.WSClient, err error) error {
			h.logger.Debug("realtime authentication failed", "client", client.ID(), "error", err)
			client.Close(router.ClosePolicyViolation, "authentication required")
			return err
		},
	})

	chain := router.ChainWSMiddleware(
		router.NewWSRecover(),
		router.NewWSLogger(),
		auth,
	)

	return router.WebSocketHandler(chain(func(ctx context.Context, client router.WSClient) error {
		if h.hub == nil {
			client.Close(router.ClosePolicyViolation, "realtime not configured")
			return unavailable("realtime")
		}
		claims, ok := router.WSAuthClaimsFromContext(ctx)
		if !ok {
			return lazarus.ErrTokenMalformed
		}
		session, ok := claims.(sessionClaims)
		if !ok || session.Identity == nil {
			return lazarus.ErrTokenMalformed
		}
		return h.serveRealtime(ctx, session.Identity, client)
	}))
}

// serveRealtime runs one connection. The caller's position is cleared when
// its last connection closes.
func (h *Controller) serveRealtime(ctx context.Context, actor *lazarus.Identity, conn realtimeConn) error {
	userID := actor.ID()
	events, unregister := h.hub.Register(userID)
	defer func() {
		unregister()
		if h.hub.Connections(userID) == 0 {
			h.services.Locations.Remove(userID)
		}
	}()

	replies := make(chan frame, 8)
	done := make(chan struct{})
	writerDone := make(chan struct{})

	go func() {
		defer close(writerDone)
		for {
			var out frame
			select {
			case env, ok := <-events:
				if !ok {
					return
				}
				out = frame{Event: env.Event, Data: env.Data}
			case out = <-replies:
			case <-done:
				return
			}
			if err := writeFrame(conn, out); err != nil {
				h.logger.Debug("realtime write failed", "user_id", userID, "error", err)
				return
			}
		}
	}()
	defer func() {
		close(done)
		<-writerDone
	}()

	reply := func(f frame) {
		select {
		case replies <- f:
		case <-writerDone:
		}
	}

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			h.logger.Debug("realtime connection closed", "user_id", userID, "error", err)
			return nil
		}
		reply(h.handleClientMessage(ctx, actor, data))
	}
}

func (h *Controller) handleClientMessage(ctx context.Context, actor *lazarus.Identity, data []byte) frame {
	msg := clientMessage{}
	if err := json.Unmarshal(data, &msg); err != nil {
		return errorFrame(badInput(err, "malformed realtime message"))
	}

	switch msg.Type {
	case MessagePing:
		return frame{Event: EventPong}
	case MessageLocation:
		update, err := h.updateLocation(ctx, actor, msg.LocationRequest)
		if err != nil {
			return errorFrame(err)
		}
		return frame{Event: EventLocationAccepted, Data: update}
	default:
		return errorFrame(goerrors.New("unknown realtime message type", goerrors.CategoryBadInput).
			WithMetadata(map[string]any{"type": msg.Type}))
	}
}

// updateLocation stores the caller position. Entity positions are also
// forwarded to realtime clients.
func (h *Controller) updateLocation(ctx context.Context, actor *lazarus.Identity, payload LocationRequest) (lazarus.LocationUpdate, error) {
	if err := payload.Validate(); err != nil {
		return lazarus.LocationUpdate{}, goerrors.Wrap(err, goerrors.CategoryValidation, "invalid location")
	}

	h.services.Locations.Update(lazarus.LocationUpdate{
		UserID:    actor.ID(),
		Role:      actor.Role,
		Latitude:  payload.Latitude,
		Longitude: payload.Longitude,
	})
	stored, _ := h.services.Locations.Get(actor.ID())

	if actor.Role == lazarus.RoleEntity && h.publisher != nil {
		if err := h.publisher.LocationUpdated(ctx, stored); err != nil {
			h.logger.Warn("failed to publish entity location", "entity", actor.ID(), "error", err)
		}
	}
	return stored, nil
}

func errorFrame(err error) frame {
	status := StatusFor(err)
	return frame{Event: EventError, Data: errorBody(err, status).Error}
}

func writeFrame(conn realtimeConn, f frame) error {
	payload, err := json.Marshal(f)
	if err != nil {
		return err
	}
	return conn.WriteMessage(websocket.TextMessage, payload)
}

// wsValidator resolves websocket tokens with the same rules as the HTTP
// middleware.
type wsValidator struct {
	resolver jwtware.SessionResolver
}

func (v wsValidator) Validate(token string) (router.WSAuthClaims, error) {
	session, err := v.resolver.SessionFromToken(context.Background(), token)
	if err != nil {
		return nil, err
	}
	return sessionClaims{Session: session}, nil
}

var roleRank = map[lazarus.RoleTag]int{
	lazarus.RoleCitizen: 0,
	lazarus.RoleEntity:  1,
	lazarus.RoleAdmin:   2,
}

// sessionClaims exposes a session through router.WSAuthClaims
type sessionClaims struct {
	*lazarus.Session
}

func (c sessionClaims) Subject() string { return c.GetUserID() }
func (c sessionClaims) UserID() string  { return c.GetUserID() }

// Role shadows the embedded RoleTag accessor with the string form
func (c sessionClaims) Role() string { return string(c.Session.Role()) }

func (c sessionClaims) CanRead(string) bool { return true }

func (c sessionClaims) CanEdit(string) bool {
	return c.IsAtLeast(string(lazarus.RoleEntity))
}

func (c sessionClaims) CanCreate(resource string) bool {
	if resource == "incidents" {
		return c.Session.Role() == lazarus.RoleCitizen
	}
	return c.IsAtLeast(string(lazarus.RoleEntity))
}

func (c sessionClaims) CanDelete(string) bool {
	return c.Session.Role() == lazarus.RoleAdmin
}

func (c sessionClaims) HasRole(role string) bool {
	parsed, ok := lazarus.ParseRole(role)
	return ok && parsed == c.Session.Role()
}

func (c sessionClaims) IsAtLeast(minRole string) bool {
	required, ok := lazarus.ParseRole(minRole)
	if !ok {
		return false
	}
	return roleRank[c.Session.Role()] >= roleRank[required]
}
