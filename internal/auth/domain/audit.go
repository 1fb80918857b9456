package domain

import "time"

type AuditLevel string

const (
	AuditInfo  AuditLevel = "info"
	AuditWarn  AuditLevel = "warn"
	AuditError AuditLevel = "error"
)

// AuditEntry is an append-only record of a security relevant event. User is
// the subject of the event, which may be a username that does not exist.
type AuditEntry struct {
	ID        string
	User      string
	Level     AuditLevel
	Message   string
	CreatedAt time.Time
}
