package ws

import (
	"context"
	"encoding/json"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"messaging-service/internal/models"
	"messaging-service/internal/observability"
	"messaging-service/internal/presence"
	"messaging-service/internal/repositories"
	"messaging-service/internal/status"
	"messaging-service/internal/telemetry"
)

// Session lifecycle states.
type State int32

const (
	StateConnecting State = iota
	StateAuthenticated
	StateSubscribed
	StateActive
	StateClosing
	StateClosed
)

const (
	defaultHeartbeatInterval = 30 * time.Second
	defaultSendBuffer        = 256
	writeWait                = 10 * time.Second
	maxMessageSize           = 64 * 1024
)

// SessionConfig carries the per-connection identity and tuning knobs.
type SessionConfig struct {
	Info              ConnInfo
	Room              models.RoomRef
	HeartbeatInterval time.Duration
	SendBuffer        int
}

// SessionDeps are the collaborators a session drives.
type SessionDeps struct {
	Registry *Registry
	Presence presence.Store
	Messages repositories.MessageStore
	Rooms    repositories.RoomStore
	Tracker  *status.Tracker
	Audit    *telemetry.AuditEmitter
	Log      zerolog.Logger
}

// Session owns one client connection: room subscriptions, the serialized
// inbound event loop, and the two background tasks (heartbeat emitter and
// outbound queue drainer) that live for the duration of the Active state.
type Session struct {
	conn Conn
	cfg  SessionConfig
	deps SessionDeps
	log  zerolog.Logger

	state atomic.Int32
	rooms []models.RoomKey
	inbox models.RoomKey

	send   chan []byte
	ctx    context.Context
	cancel context.CancelFunc

	closeOnce sync.Once
	done      chan struct{}
	tasks     sync.WaitGroup
}

// NewSession builds a session in the Connecting state. The caller has already
// authenticated the user; Start performs subscription and activation.
func NewSession(conn Conn, cfg SessionConfig, deps SessionDeps) *Session {
	if cfg.HeartbeatInterval <= 0 {
		cfg.HeartbeatInterval = defaultHeartbeatInterval
	}
	if cfg.SendBuffer <= 0 {
		cfg.SendBuffer = defaultSendBuffer
	}
	if cfg.Info.ConnID == "" {
		cfg.Info.ConnID = newConnID()
	}

	ctx, cancel := context.WithCancel(context.Background())
	s := &Session{
		conn:   conn,
		cfg:    cfg,
		deps:   deps,
		log:    deps.Log.With().Str("conn_id", cfg.Info.ConnID).Int("user_id", cfg.Info.UserID).Logger(),
		inbox:  models.UserInbox(cfg.Info.UserID),
		send:   make(chan []byte, cfg.SendBuffer),
		ctx:    ctx,
		cancel: cancel,
		done:   make(chan struct{}),
	}
	s.state.Store(int32(StateConnecting))
	return s
}

// ID implements Subscriber.
func (s *Session) ID() string { return s.cfg.Info.ConnID }

// Deliver implements Subscriber: non-blocking enqueue onto the outbound
// queue. A full queue drops the event rather than stalling the room.
func (s *Session) Deliver(payload []byte) {
	select {
	case s.send <- payload:
	default:
		observability.IncFanoutDrop()
		s.log.Warn().Msg("outbound queue full, event dropped")
	}
}

// State reports the current lifecycle state.
func (s *Session) State() State { return State(s.state.Load()) }

// Rooms returns the room keys this session subscribed to, inbox included.
func (s *Session) Rooms() []models.RoomKey {
	keys := make([]models.RoomKey, len(s.rooms), len(s.rooms)+1)
	copy(keys, s.rooms)
	return append(keys, s.inbox)
}

// Done is closed once teardown has completed.
func (s *Session) Done() <-chan struct{} { return s.done }

// Start subscribes the session to every room the user belongs to plus the
// private inbox, marks presence online, launches the background tasks and the
// read loop. No inbound event is processed before all subscriptions are in
// place.
func (s *Session) Start(ctx context.Context) error {
	s.state.Store(int32(StateAuthenticated))

	rooms, err := s.deps.Rooms.ListUserRooms(ctx, s.cfg.Info.UserID)
	if err != nil {
		return err
	}
	rooms = ensureRoom(rooms, s.cfg.Room.Key())
	s.rooms = rooms

	for _, key := range s.rooms {
		s.deps.Registry.Join(key, s)
	}
	s.deps.Registry.Join(s.inbox, s)
	s.state.Store(int32(StateSubscribed))

	if err := s.deps.Presence.SetOnline(ctx, s.cfg.Info.UserID); err != nil {
		s.log.Warn().Err(err).Msg("presence set online failed")
	}
	s.broadcastStatusToRooms("online")

	s.state.Store(int32(StateActive))
	observability.IncWSActive(s.cfg.Info.Kind)
	s.tasks.Add(2)
	go s.writePump()
	go s.heartbeatLoop()
	go s.readLoop()

	return nil
}

func ensureRoom(rooms []models.RoomKey, key models.RoomKey) []models.RoomKey {
	for _, k := range rooms {
		if k == key {
			return rooms
		}
	}
	return append(rooms, key)
}

// readLoop serializes all inbound event handling for the session. It is the
// only goroutine that processes client events, so no two handlers for the
// same session ever run concurrently.
func (s *Session) readLoop() {
	defer s.Close("read loop exit")

	readWait := 2*s.cfg.HeartbeatInterval + writeWait
	s.conn.SetReadLimit(maxMessageSize)
	_ = s.conn.SetReadDeadline(time.Now().Add(readWait))
	s.conn.SetPongHandler(func(string) error {
		return s.conn.SetReadDeadline(time.Now().Add(readWait))
	})

	for {
		_, data, err := s.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				s.log.Warn().Err(err).Msg("websocket read error")
				observability.IncWSEvent(s.cfg.Info.Kind, "ws_error")
			}
			return
		}
		_ = s.conn.SetReadDeadline(time.Now().Add(readWait))
		s.handleEvent(data)
	}
}

// writePump is the outbound queue drainer: the single writer on the
// connection. It also emits protocol-level pings.
func (s *Session) writePump() {
	defer s.tasks.Done()
	ticker := time.NewTicker(s.cfg.HeartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.ctx.Done():
			_ = s.conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
			return
		case payload := <-s.send:
			_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				s.log.Warn().Err(err).Msg("websocket write error")
				go s.Close("write: " + err.Error())
				return
			}
		case <-ticker.C:
			if err := s.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				go s.Close("ping: " + err.Error())
				return
			}
		}
	}
}

// heartbeatLoop refreshes the presence TTL every interval and emits an
// application-level heartbeat event. It shares the session context with the
// drainer; both cancel as a unit on close.
func (s *Session) heartbeatLoop() {
	defer s.tasks.Done()
	ticker := time.NewTicker(s.cfg.HeartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.ctx.Done():
			return
		case <-ticker.C:
			if err := s.deps.Presence.Refresh(s.ctx, s.cfg.Info.UserID); err != nil {
				s.log.Warn().Err(err).Msg("presence refresh failed")
			}
			s.enqueue(models.ServerEvent{
				Type:      models.EventHeartbeat,
				Timestamp: time.Now().UTC().Format(time.RFC3339Nano),
			})
		}
	}
}

// enqueue marshals an event onto the session's own outbound queue.
func (s *Session) enqueue(event models.ServerEvent) {
	payload, err := json.Marshal(event)
	if err != nil {
		s.log.Error().Err(err).Str("type", event.Type).Msg("marshal outbound event")
		return
	}
	s.Deliver(payload)
}

// handleEvent dispatches one tagged inbound record. Unknown actions are
// logged and ignored; malformed payloads are logged and dropped. Neither
// closes the session.
func (s *Session) handleEvent(data []byte) {
	var ev models.ClientEvent
	if err := json.Unmarshal(data, &ev); err != nil {
		s.log.Warn().Err(err).Msg("malformed event dropped")
		observability.IncWSEvent(s.cfg.Info.Kind, "malformed")
		return
	}

	observability.IncWSEvent(s.cfg.Info.Kind, ev.Action)

	switch ev.Action {
	case models.ActionSendMessage:
		s.handleSendMessage(ev)
	case models.ActionTyping:
		s.handleTyping(ev)
	case models.ActionRead:
		s.handleRead(ev)
	case models.ActionHeartbeat, models.ActionHeartbeatAck:
		s.handleHeartbeat(ev)
	case models.ActionFetchMessages:
		s.handleFetchMessages(ev)
	case models.ActionRequestStatus:
		s.handleRequestStatus(ev)
	case models.ActionBroadcastStatus:
		s.handleBroadcastStatus(ev)
	default:
		s.log.Warn().Str("action", ev.Action).Msg("unknown action ignored")
	}
}

func (s *Session) dropMalformed(ev models.ClientEvent, reason string) {
	s.log.Warn().Str("action", ev.Action).Str("reason", reason).Msg("malformed event dropped")
	observability.IncWSEvent(s.cfg.Info.Kind, "malformed")
}

// handleSendMessage persists the message, stamps it sent, and fans it out.
// All-or-nothing against persistence: a failed write produces exactly one
// message.failed for the sender and no fan-out.
func (s *Session) handleSendMessage(ev models.ClientEvent) {
	room := ev.Room()
	if err := room.Validate(); err != nil {
		s.dropMalformed(ev, "invalid room reference")
		return
	}
	if ev.Content == "" {
		s.dropMalformed(ev, "missing content")
		return
	}

	msg, err := s.deps.Messages.CreateMessage(s.ctx, room, s.cfg.Info.UserID, ev.Content, ev.ReplyTo)
	if err != nil {
		s.log.Error().Err(err).Str("local_id", ev.LocalID).Msg("message persistence failed")
		observability.IncMessageFailure()
		s.enqueue(models.ServerEvent{
			Type:    models.EventMessageFailed,
			LocalID: ev.LocalID,
			Error:   "message could not be stored",
		})
		return
	}
	observability.IncMessagePersisted()

	// Persisted; everything past this point is best-effort and never rolls
	// the message back.
	if err := s.deps.Tracker.RecordStatus(s.ctx, msg.ID, s.cfg.Info.UserID, models.StatusSent); err != nil {
		s.log.Warn().Err(err).Int("message_id", msg.ID).Msg("record sent status failed")
	}

	s.deps.Registry.Publish(room.Key(), models.ServerEvent{
		Type:     models.EventChatMessage,
		Message:  &msg,
		LocalID:  ev.LocalID,
		Username: s.cfg.Info.Username,
	})
}

func (s *Session) handleTyping(ev models.ClientEvent) {
	room := ev.Room()
	if err := room.Validate(); err != nil {
		s.dropMalformed(ev, "invalid room reference")
		return
	}

	s.deps.Registry.Publish(room.Key(), models.ServerEvent{
		Type:     models.EventTyping,
		UserID:   s.cfg.Info.UserID,
		Username: s.cfg.Info.Username,
		IsTyping: ev.IsTyping,
	})
}

func (s *Session) handleRead(ev models.ClientEvent) {
	room := ev.Room()
	if err := room.Validate(); err != nil {
		s.dropMalformed(ev, "invalid room reference")
		return
	}
	if len(ev.MessageIDs) == 0 {
		s.dropMalformed(ev, "missing message_ids")
		return
	}

	s.deps.Tracker.MarkRead(s.ctx, ev.MessageIDs, s.cfg.Info.UserID)

	for _, id := range ev.MessageIDs {
		s.deps.Registry.Publish(room.Key(), models.ServerEvent{
			Type:      models.EventRead,
			UserID:    s.cfg.Info.UserID,
			MessageID: id,
		})
	}
}

func (s *Session) handleHeartbeat(ev models.ClientEvent) {
	if err := s.deps.Presence.Refresh(s.ctx, s.cfg.Info.UserID); err != nil {
		s.log.Warn().Err(err).Msg("presence refresh failed")
	}
	if ev.Action == models.ActionHeartbeat {
		s.enqueue(models.ServerEvent{
			Type:      models.EventHeartbeat,
			Timestamp: time.Now().UTC().Format(time.RFC3339Nano),
		})
	}
}

// handleFetchMessages answers only the requester; history never fans out.
func (s *Session) handleFetchMessages(ev models.ClientEvent) {
	room := ev.Room()
	if err := room.Validate(); err != nil {
		s.dropMalformed(ev, "invalid room reference")
		return
	}

	limit := ev.Limit
	if limit <= 0 {
		limit = 50
	}
	if limit > 200 {
		limit = 200
	}

	msgs, err := s.deps.Messages.FetchMessages(s.ctx, room, ev.BeforeID, limit)
	if err != nil {
		s.log.Error().Err(err).Msg("fetch messages failed")
		return
	}

	s.enqueue(models.ServerEvent{
		Type:           models.EventMessagesFetched,
		Messages:       msgs,
		ConversationID: ev.ConversationID,
		GroupChatID:    ev.GroupChatID,
	})
}

// handleRequestStatus reads presence for every room participant and answers
// only the requester.
func (s *Session) handleRequestStatus(ev models.ClientEvent) {
	room := ev.Room()
	if err := room.Validate(); err != nil {
		s.dropMalformed(ev, "invalid room reference")
		return
	}

	participants, err := s.deps.Rooms.RoomParticipants(s.ctx, room)
	if err != nil {
		s.log.Error().Err(err).Msg("room participants lookup failed")
		return
	}

	statuses := make([]models.ParticipantStatus, 0, len(participants))
	for _, userID := range participants {
		online, err := s.deps.Presence.IsOnline(s.ctx, userID)
		if err != nil {
			s.log.Warn().Err(err).Int("participant_id", userID).Msg("presence read failed")
		}
		ps := models.ParticipantStatus{UserID: userID, Online: online}
		if last, ok, err := s.deps.Presence.LastUpdate(s.ctx, userID); err == nil && ok {
			ps.LastUpdate = &last
		}
		statuses = append(statuses, ps)
	}

	s.enqueue(models.ServerEvent{
		Type:           models.EventStatusResponse,
		ConversationID: ev.ConversationID,
		GroupChatID:    ev.GroupChatID,
		Participants:   statuses,
	})
}

func (s *Session) handleBroadcastStatus(ev models.ClientEvent) {
	room := ev.Room()
	if err := room.Validate(); err != nil {
		s.dropMalformed(ev, "invalid room reference")
		return
	}
	if ev.Status == "" {
		s.dropMalformed(ev, "missing status")
		return
	}

	timestamp := ev.Timestamp
	if timestamp == "" {
		timestamp = time.Now().UTC().Format(time.RFC3339Nano)
	}
	s.deps.Registry.Publish(room.Key(), models.ServerEvent{
		Type:      models.EventUserStatus,
		UserID:    s.cfg.Info.UserID,
		Status:    ev.Status,
		Timestamp: timestamp,
	})
}

func (s *Session) broadcastStatusToRooms(statusValue string) {
	event := models.ServerEvent{
		Type:      models.EventUserStatus,
		UserID:    s.cfg.Info.UserID,
		Username:  s.cfg.Info.Username,
		Status:    statusValue,
		Timestamp: time.Now().UTC().Format(time.RFC3339Nano),
	}
	for _, key := range s.rooms {
		s.deps.Registry.Publish(key, event)
	}
}

// Close runs the teardown sequence exactly once. Every exit path, graceful or
// not, funnels here: cancel background tasks, clear presence, broadcast
// offline, leave every room, then the inbox. A failing step is logged and the
// remaining steps still execute.
func (s *Session) Close(reason string) {
	s.closeOnce.Do(func() {
		prev := State(s.state.Swap(int32(StateClosing)))
		s.cancel()

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := s.deps.Presence.SetOffline(ctx, s.cfg.Info.UserID); err != nil {
			s.log.Warn().Err(err).Msg("teardown: presence set offline failed")
		}

		s.broadcastStatusToRooms("offline")

		for _, key := range s.rooms {
			s.deps.Registry.Leave(key, s)
		}
		s.deps.Registry.Leave(s.inbox, s)

		_ = s.conn.Close()
		s.tasks.Wait()

		s.state.Store(int32(StateClosed))
		close(s.done)

		info := s.cfg.Info
		// Only an activated session incremented the gauge.
		if prev == StateActive {
			observability.DecWSActive(info.Kind)
		}
		observability.IncWSEvent(info.Kind, "ws_disconnect")
		_ = observability.PublishEvent(ctx, observability.WSRoutingKey(info.Kind), observability.EventEnvelope{
			EventType: "ws_events",
			EventName: "ws_disconnect",
			Payload: observability.WSEventPayload{
				Kind:       info.Kind,
				ResourceID: info.ResourceID,
				Event:      "ws_disconnect",
				ConnID:     info.ConnID,
				DurationMS: time.Since(info.ConnectedAt).Milliseconds(),
				Reason:     reason,
				UserID:     info.UserID,
				IP:         info.IP,
			},
		}, observability.BuildHeaders(info.RequestID, info.TraceID))

		if s.deps.Audit != nil {
			userID := info.UserID
			s.deps.Audit.Emit(ctx, "INFO", "websocket session closed: "+reason, info.RequestID, &userID)
		}

		s.log.Info().Str("reason", reason).Msg("session closed")
	})
}
