package memory

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/patrickmn/go-cache"

	"github.com/jwalitptl/clinic-settings/internal/model"
	"github.com/jwalitptl/clinic-settings/internal/repository"
)

// SessionRepository keeps sessions in process memory. Entries expire after
// the TTL since their last write.
type SessionRepository struct {
	cache *cache.Cache
	ttl   time.Duration
}

func NewSessionRepository(ttl, cleanupInterval time.Duration) *SessionRepository {
	return &SessionRepository{
		cache: cache.New(ttl, cleanupInterval),
		ttl:   ttl,
	}
}

func (r *SessionRepository) Create(ctx context.Context, session *model.EditSession) error {
	if err := r.cache.Add(key(session.ID), session.Clone(), r.ttl); err != nil {
		return fmt.Errorf("failed to create session: %w", err)
	}
	return nil
}

func (r *SessionRepository) Get(ctx context.Context, id uuid.UUID) (*model.EditSession, error) {
	v, ok := r.cache.Get(key(id))
	if !ok {
		return nil, repository.ErrNotFound
	}
	return v.(*model.EditSession).Clone(), nil
}

func (r *SessionRepository) Update(ctx context.Context, session *model.EditSession) error {
	if err := r.cache.Replace(key(session.ID), session.Clone(), r.ttl); err != nil {
		return repository.ErrNotFound
	}
	return nil
}

func (r *SessionRepository) Delete(ctx context.Context, id uuid.UUID) error {
	if _, ok := r.cache.Get(key(id)); !ok {
		return repository.ErrNotFound
	}
	r.cache.Delete(key(id))
	return nil
}

func key(id uuid.UUID) string {
	return "session:" + id.String()
}
