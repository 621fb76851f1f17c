package audit

import (
	"time"

	"github.com/google/uuid"
)

type EntryID struct{ uuid.UUID }

func NewEntryID() EntryID { return EntryID{uuid.New()} }

// Entry is one append-only line of the audit trail. Entries are never
// updated or deleted.
type Entry struct {
	ID         EntryID   `db:"id" json:"id"`
	UserID     uuid.UUID `db:"user_id" json:"user_id"`
	Action     string    `db:"action" json:"action"`
	Resource   string    `db:"resource" json:"resource"`
	ResourceID uuid.UUID `db:"resource_id" json:"resource_id"`
	Summary    string    `db:"summary" json:"summary"`
	IPAddress  *string   `db:"ip_address" json:"ip_address,omitempty"`
	CreatedAt  time.Time `db:"created_at" json:"created_at"`
}
