package repository

import "time"

// Snapshot is the single stored placement payload.
type Snapshot struct {
	Payload   []byte
	Revision  string
	UpdatedAt time.Time
}

// Allocation is one widget id handed out by the local widget host.
type Allocation struct {
	WidgetID int
	Provider string
	Revoked  bool
}
