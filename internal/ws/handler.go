package ws

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"

	"messaging-service/internal/auth"
	"messaging-service/internal/models"
	"messaging-service/internal/observability"
	"messaging-service/internal/presence"
	"messaging-service/internal/repositories"
	"messaging-service/internal/status"
	"messaging-service/internal/telemetry"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// HandlerConfig tunes the sessions a handler spawns.
type HandlerConfig struct {
	HeartbeatInterval time.Duration
	SendBuffer        int
}

// Handler accepts websocket connections for conversation and group rooms.
type Handler struct {
	registry *Registry
	presence presence.Store
	messages repositories.MessageStore
	rooms    repositories.RoomStore
	tracker  *status.Tracker
	verifier *auth.Verifier
	audit    *telemetry.AuditEmitter
	cfg      HandlerConfig
	log      zerolog.Logger
}

// NewHandler constructs a Handler.
func NewHandler(registry *Registry, presenceStore presence.Store, messages repositories.MessageStore,
	rooms repositories.RoomStore, tracker *status.Tracker, verifier *auth.Verifier,
	audit *telemetry.AuditEmitter, cfg HandlerConfig, log zerolog.Logger) *Handler {
	return &Handler{
		registry: registry,
		presence: presenceStore,
		messages: messages,
		rooms:    rooms,
		tracker:  tracker,
		verifier: verifier,
		audit:    audit,
		cfg:      cfg,
		log:      log,
	}
}

// HandleConversation upgrades a connection scoped to a conversation room.
func (h *Handler) HandleConversation(c *gin.Context) {
	id, err := strconv.Atoi(c.Param("conversation_id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid conversation id"})
		return
	}
	h.handle(c, "conversation", models.RoomRef{ConversationID: id}, id)
}

// HandleGroup upgrades a connection scoped to a group chat room.
func (h *Handler) HandleGroup(c *gin.Context) {
	id, err := strconv.Atoi(c.Param("group_id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid group id"})
		return
	}
	h.handle(c, "group", models.RoomRef{GroupChatID: id}, id)
}

func (h *Handler) handle(c *gin.Context, kind string, room models.RoomRef, resourceID int) {
	ctx, span := otel.Tracer("messaging-service/ws").Start(c.Request.Context(), "ws.handshake")
	defer span.End()
	c.Request = c.Request.WithContext(ctx)

	claims, err := h.authenticate(c)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
		return
	}

	allowed, err := h.hasAccess(c, kind, resourceID, claims.UserID)
	if err != nil || !allowed {
		c.JSON(http.StatusForbidden, gin.H{"error": "not authorized for room"})
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		return
	}

	traceID := span.SpanContext().TraceID().String()
	requestID := observability.RequestIDFromRequest(c.Request)
	info := ConnInfo{
		ConnID:      newConnID(),
		UserID:      claims.UserID,
		Username:    claims.Username,
		Kind:        kind,
		ResourceID:  resourceID,
		IP:          observability.IPFromRequest(c.Request),
		RequestID:   requestID,
		TraceID:     traceID,
		ConnectedAt: time.Now(),
	}

	sess := NewSession(conn, SessionConfig{
		Info:              info,
		Room:              room,
		HeartbeatInterval: h.cfg.HeartbeatInterval,
		SendBuffer:        h.cfg.SendBuffer,
	}, SessionDeps{
		Registry: h.registry,
		Presence: h.presence,
		Messages: h.messages,
		Rooms:    h.rooms,
		Tracker:  h.tracker,
		Audit:    h.audit,
		Log:      h.log,
	})

	if err := sess.Start(ctx); err != nil {
		h.log.Error().Err(err).Int("user_id", claims.UserID).Msg("session start failed")
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseInternalServerErr, "subscription failed"),
			time.Now().Add(time.Second))
		_ = conn.Close()
		return
	}

	observability.IncWSEvent(kind, "ws_connect")
	_ = observability.PublishEvent(ctx, observability.WSRoutingKey(kind), observability.EventEnvelope{
		EventType: "ws_events",
		EventName: "ws_connect",
		Payload: observability.WSEventPayload{
			Kind:       kind,
			ResourceID: resourceID,
			Event:      "ws_connect",
			ConnID:     info.ConnID,
			UserID:     info.UserID,
			IP:         info.IP,
		},
	}, observability.BuildHeaders(requestID, traceID))

	if h.audit != nil {
		userID := claims.UserID
		h.audit.Emit(ctx, "INFO", "websocket session opened", requestID, &userID)
	}
}

// authenticate accepts the token from the Authorization header or, for
// browser websocket clients, the token query parameter.
func (h *Handler) authenticate(c *gin.Context) (*auth.Claims, error) {
	token := ""
	if header := c.GetHeader("Authorization"); header != "" {
		bearer, err := auth.BearerToken(header)
		if err != nil {
			return nil, err
		}
		token = bearer
	} else {
		token = c.Query("token")
	}
	if token == "" {
		return nil, auth.ErrInvalidToken
	}
	return h.verifier.Verify(token)
}

// hasAccess gates the connection on the room existing and being active, plus
// membership; for conversations a block by the other participant also rejects
// the connection.
func (h *Handler) hasAccess(c *gin.Context, kind string, resourceID, userID int) (bool, error) {
	ctx := c.Request.Context()
	if kind == "group" {
		group, err := h.rooms.GetGroupChat(ctx, resourceID)
		if err != nil {
			if errors.Is(err, repositories.ErrGroupChatNotFound) {
				return false, nil
			}
			return false, err
		}
		if !group.IsActive {
			return false, nil
		}
		return h.rooms.IsMember(ctx, resourceID, userID)
	}

	conv, err := h.rooms.GetConversation(ctx, resourceID)
	if err != nil {
		if errors.Is(err, repositories.ErrConversationNotFound) {
			return false, nil
		}
		return false, err
	}
	if !conv.IsActive {
		return false, nil
	}

	member, err := h.rooms.IsParticipant(ctx, resourceID, userID)
	if err != nil || !member {
		return false, err
	}
	blocked, err := h.rooms.IsBlocked(ctx, resourceID, userID)
	if err != nil {
		return false, err
	}
	return !blocked, nil
}
