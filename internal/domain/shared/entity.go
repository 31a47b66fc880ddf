package shared

import (
	"time"

	"github.com/google/uuid"
)

// BaseEntity carries the identity and timestamp columns every persisted
// entity shares. IDs are generated in the domain, not by the database, so
// entities are addressable before their first save.
type BaseEntity struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey"`
	CreatedAt time.Time `gorm:"not null"`
	UpdatedAt time.Time `gorm:"not null"`
}

// NewBaseEntity returns a BaseEntity with a fresh ID and both timestamps set
// to the same instant.
func NewBaseEntity() BaseEntity {
	now := time.Now()
	return BaseEntity{
		ID:        uuid.New(),
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// Touch stamps the entity as modified now.
func (e *BaseEntity) Touch() {
	e.UpdatedAt = time.Now()
}

// VersionedEntity extends BaseEntity with an optimistic locking counter.
// Repositories compare the stored Version on save and reject stale writes.
type VersionedEntity struct {
	BaseEntity
	Version int `gorm:"not null;default:1"`
}

// NewVersionedEntity returns a VersionedEntity at version one.
func NewVersionedEntity() VersionedEntity {
	return VersionedEntity{
		BaseEntity: NewBaseEntity(),
		Version:    1,
	}
}

// IncrementVersion bumps the optimistic locking counter. Callers bump it
// alongside every state-changing save.
func (v *VersionedEntity) IncrementVersion() {
	v.Version++
}
