package ws

import "time"

// ConnInfo captures connection-scoped identity used for lifecycle events.
type ConnInfo struct {
	ConnID      string
	UserID      int
	Username    string
	Kind        string
	ResourceID  int
	IP          string
	RequestID   string
	TraceID     string
	ConnectedAt time.Time
}
