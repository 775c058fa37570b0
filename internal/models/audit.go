package models

import (
	"time"

	"github.com/google/uuid"
)

// Actor types for audit entries.
const (
	ActorTypeUser     = "user"
	ActorTypeSystem   = "system"
	ActorTypeProvider = "provider"
)

// AuditLog is one append-only row per state transition. It is the sole
// source of truth for reconstructing escrow history.
type AuditLog struct {
	ID          uuid.UUID  `json:"id"`
	ActorUserID *uuid.UUID `json:"actor_user_id,omitempty"`
	ActorType   string     `json:"actor_type"` // user/system/provider
	Action      string     `json:"action"`
	EntityType  string     `json:"entity_type"`
	EntityID    *uuid.UUID `json:"entity_id,omitempty"`
	Meta        any        `json:"meta,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
}
