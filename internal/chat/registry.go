package chat

import (
	"context"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/suPer8Hu/agentk/internal/logging"
	"github.com/suPer8Hu/agentk/internal/store"
)

const DefaultSessionName = "Untitled"

// Registry owns Session records.
type Registry struct {
	store *store.Store
	log   *zap.Logger
	now   func() time.Time
	newID func() string

	mu   sync.Mutex
	last int64
}

func NewRegistry(st *store.Store, log *zap.Logger) *Registry {
	return &Registry{
		store: st,
		log:   logging.OrNop(log),
		now:   time.Now,
		newID: NewSessionID,
	}
}

func normalizeName(name string) string {
	name = strings.TrimSpace(name)
	if name == "" {
		return DefaultSessionName
	}
	return name
}

// startedAt hands out strictly increasing millisecond stamps so that the
// newest-first order never ties within one process.
func (r *Registry) startedAt() int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	ts := r.now().UnixMilli()
	if ts <= r.last {
		ts = r.last + 1
	}
	r.last = ts
	return ts
}

func (r *Registry) Create(ctx context.Context, name string) (*store.Session, error) {
	return r.CreateWithID(ctx, r.newID(), name)
}

// CreateWithID persists a session under a caller-chosen id.
func (r *Registry) CreateWithID(ctx context.Context, id, name string) (*store.Session, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, ErrInvalidInput
	}
	sess := &store.Session{
		ID:        id,
		Name:      normalizeName(name),
		StartedAt: r.startedAt(),
	}
	if err := r.store.CreateSession(ctx, sess); err != nil {
		r.log.Error("create session failed", zap.String("session_id", id), zap.Error(err))
		return nil, err
	}
	r.log.Info("session created", zap.String("session_id", id), zap.String("name", sess.Name))
	return sess, nil
}

func (r *Registry) Get(ctx context.Context, id string) (*store.Session, error) {
	if strings.TrimSpace(id) == "" {
		return nil, ErrInvalidInput
	}
	return r.store.GetSession(ctx, id)
}

// List returns all sessions, most recently started first.
func (r *Registry) List(ctx context.Context) ([]store.Session, error) {
	return r.store.ListSessions(ctx)
}

// Rename changes the display name only; blank names become "Untitled".
func (r *Registry) Rename(ctx context.Context, id, name string) error {
	if strings.TrimSpace(id) == "" {
		return ErrInvalidInput
	}
	return r.store.RenameSession(ctx, id, normalizeName(name))
}

// Delete removes the session row and every message that references it in a
// single transaction. It reports false instead of failing so callers can show
// a non-fatal notice; the cause is logged.
func (r *Registry) Delete(ctx context.Context, id string) bool {
	if strings.TrimSpace(id) == "" {
		return false
	}
	var removed int64
	err := r.store.Transaction(ctx, func(tx *store.Store) error {
		n, err := tx.DeleteRange(ctx, store.BySessionTs, store.Key{SessionID: id}, store.All())
		if err != nil {
			return err
		}
		removed = n
		_, err = tx.DeleteSession(ctx, id)
		return err
	})
	if err != nil {
		r.log.Error("delete session failed", zap.String("session_id", id), zap.Error(err))
		return false
	}
	r.log.Info("session deleted", zap.String("session_id", id), zap.Int64("messages", removed))
	return true
}
