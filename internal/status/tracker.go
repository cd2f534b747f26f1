package status

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"messaging-service/internal/models"
	"messaging-service/internal/observability"
	"messaging-service/internal/repositories"
)

// Broadcaster fans an event out to the current subscribers of a room.
type Broadcaster interface {
	Publish(room models.RoomKey, event models.ServerEvent)
}

// Tracker appends delivery-status and read records and propagates each
// transition to the message sender's private inbox room. Propagation is an
// explicit call after the durable append, never a persistence hook.
type Tracker struct {
	messages repositories.MessageStore
	rooms    Broadcaster
	log      zerolog.Logger
}

// NewTracker constructs a Tracker.
func NewTracker(messages repositories.MessageStore, rooms Broadcaster, log zerolog.Logger) *Tracker {
	return &Tracker{messages: messages, rooms: rooms, log: log}
}

// RecordStatus appends one status record and notifies the sender's inbox with
// a message.status event. The append is authoritative; the notification is
// best-effort fan-out.
func (t *Tracker) RecordStatus(ctx context.Context, messageID int, senderID int, status string) error {
	if !models.ValidStatus(status) {
		return fmt.Errorf("unknown delivery status %q", status)
	}

	rec, err := t.messages.AppendDeliveryStatus(ctx, messageID, status)
	if err != nil {
		return fmt.Errorf("append delivery status: %w", err)
	}
	observability.IncStatusRecord(status)

	t.rooms.Publish(models.UserInbox(senderID), models.ServerEvent{
		Type:      models.EventMessageStatus,
		MessageID: messageID,
		Status:    status,
		Timestamp: rec.Timestamp.UTC().Format(time.RFC3339Nano),
	})
	return nil
}

// MarkRead records read receipts for the reader. Idempotent per (message,
// reader): an already-read message is a no-op. Messages the reader sent
// themself never get a receipt. Only a first-time receipt appends a "read"
// status record for the sender. One bad id never aborts the rest.
func (t *Tracker) MarkRead(ctx context.Context, messageIDs []int, readerID int) {
	for _, id := range messageIDs {
		msg, err := t.messages.GetMessage(ctx, id)
		if err != nil {
			t.log.Warn().Err(err).Int("message_id", id).Msg("mark read: message lookup failed")
			continue
		}
		if msg.SenderID == readerID {
			continue
		}

		inserted, err := t.messages.AppendReadStatus(ctx, id, readerID)
		if err != nil {
			t.log.Warn().Err(err).Int("message_id", id).Int("reader_id", readerID).Msg("mark read: append failed")
			continue
		}
		if !inserted {
			continue
		}

		if err := t.RecordStatus(ctx, id, msg.SenderID, models.StatusRead); err != nil {
			t.log.Warn().Err(err).Int("message_id", id).Msg("mark read: status record failed")
		}
	}
}
