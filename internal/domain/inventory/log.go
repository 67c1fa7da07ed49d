package inventory

import (
	"time"

	"github.com/google/uuid"
)

// LogEntry is the audit row written alongside every ledger mutation.
type LogEntry struct {
	ID          uuid.UUID
	SKUCode     string
	Operation   Operation
	Quantity    int64
	ReferenceID string
	Operator    string
	Reason      string
	Available   int64
	Reserved    int64
	CreatedAt   time.Time
}

type Snapshot struct {
	SKUCode   string
	Total     int64
	Available int64
	Reserved  int64
	Version   int64
	TakenAt   time.Time
}
