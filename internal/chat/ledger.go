package chat

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/suPer8Hu/agentk/internal/logging"
	"github.com/suPer8Hu/agentk/internal/store"
)

// Ledger owns Message records and the scoped reads and deletes over them.
type Ledger struct {
	store *store.Store
	log   *zap.Logger
	now   func() time.Time

	mu   sync.Mutex
	last int64
}

func NewLedger(st *store.Store, log *zap.Logger) *Ledger {
	return &Ledger{
		store: st,
		log:   logging.OrNop(log),
		now:   time.Now,
	}
}

type AppendInput struct {
	SessionID  string
	Role       store.Role
	Content    string
	ModelID    string
	ModelName  string
	ProviderID string
	// Ts is epoch milliseconds; zero means now.
	Ts int64
}

// Append writes one message and returns its assigned id.
func (l *Ledger) Append(ctx context.Context, in AppendInput) (uint64, error) {
	m, err := l.append(ctx, in)
	if err != nil {
		return 0, err
	}
	return m.ID, nil
}

func (l *Ledger) append(ctx context.Context, in AppendInput) (*store.Message, error) {
	in.SessionID = strings.TrimSpace(in.SessionID)
	in.ModelID = strings.TrimSpace(in.ModelID)
	if in.SessionID == "" || in.ModelID == "" || !in.Role.Valid() {
		return nil, ErrInvalidInput
	}
	if strings.TrimSpace(in.Content) == "" {
		return nil, ErrEmptyContent
	}
	if strings.TrimSpace(in.ModelName) == "" {
		in.ModelName = in.ModelID
	}
	if in.Ts == 0 {
		in.Ts = l.stamp()
	}

	m := &store.Message{
		SessionID:  in.SessionID,
		ModelID:    in.ModelID,
		Ts:         in.Ts,
		Role:       in.Role,
		Content:    in.Content,
		ModelName:  in.ModelName,
		ProviderID: in.ProviderID,
	}
	if err := l.store.AddMessage(ctx, m); err != nil {
		l.log.Error("append message failed",
			zap.String("session_id", in.SessionID),
			zap.String("model_id", in.ModelID),
			zap.String("role", string(in.Role)),
			zap.Error(err),
		)
		return nil, err
	}
	return m, nil
}

// stamp hands out strictly increasing millisecond stamps, so a reply never
// shares its user turn's ts and a trim after that turn always removes it.
func (l *Ledger) stamp() int64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	ts := l.now().UnixMilli()
	if ts <= l.last {
		ts = l.last + 1
	}
	l.last = ts
	return ts
}

func (l *Ledger) Get(ctx context.Context, id uint64) (*store.Message, error) {
	return l.store.GetMessage(ctx, id)
}

// HistoryShared returns every message of the session across models, oldest first.
func (l *Ledger) HistoryShared(ctx context.Context, sessionID string) ([]store.Message, error) {
	return l.store.Scan(ctx, store.BySessionTs, store.Key{SessionID: sessionID}, store.All())
}

// HistoryForModel returns the session's messages for one model, oldest first.
func (l *Ledger) HistoryForModel(ctx context.Context, sessionID, modelID string) ([]store.Message, error) {
	return l.store.Scan(ctx, store.BySessionModelTs, store.Key{SessionID: sessionID, ModelID: modelID}, store.All())
}

// History resolves the scope at read time from the shared flag.
func (l *Ledger) History(ctx context.Context, sessionID, modelID string, shared bool) ([]store.Message, error) {
	if shared {
		return l.HistoryShared(ctx, sessionID)
	}
	return l.HistoryForModel(ctx, sessionID, modelID)
}

// DeleteByID removes exactly one message. Unknown ids are a no-op.
func (l *Ledger) DeleteByID(ctx context.Context, id uint64) (bool, error) {
	n, err := l.store.DeleteMessage(ctx, id)
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (l *Ledger) ClearShared(ctx context.Context, sessionID string) (int64, error) {
	return l.store.DeleteRange(ctx, store.BySessionTs, store.Key{SessionID: sessionID}, store.All())
}

func (l *Ledger) ClearForModel(ctx context.Context, sessionID, modelID string) (int64, error) {
	return l.store.DeleteRange(ctx, store.BySessionModelTs, store.Key{SessionID: sessionID, ModelID: modelID}, store.All())
}

func (l *Ledger) Clear(ctx context.Context, sessionID, modelID string, shared bool) (int64, error) {
	if shared {
		return l.ClearShared(ctx, sessionID)
	}
	return l.ClearForModel(ctx, sessionID, modelID)
}

// TrimAfter deletes every message in the anchor's scope whose ts is strictly
// greater than the anchor's. The scope is the whole session when shared,
// otherwise scopeModelID (the anchor's model when empty). An anchor that is
// missing, belongs to another session, or lies outside the model scope makes
// the call a no-op returning 0.
func (l *Ledger) TrimAfter(ctx context.Context, sessionID string, anchorID uint64, scopeModelID string, shared bool) (int64, error) {
	removed, _, err := l.trimAfter(ctx, sessionID, anchorID, scopeModelID, shared)
	return removed, err
}

// trimAfter also reports whether the anchor was found inside the scope.
func (l *Ledger) trimAfter(ctx context.Context, sessionID string, anchorID uint64, scopeModelID string, shared bool) (int64, bool, error) {
	log := l.log.With(
		zap.String("session_id", sessionID),
		zap.Uint64("anchor_id", anchorID),
		zap.Bool("shared", shared),
	)

	var (
		removed int64
		found   bool
	)
	err := l.store.Transaction(ctx, func(tx *store.Store) error {
		anchor, err := tx.GetMessage(ctx, anchorID)
		if errors.Is(err, store.ErrNotFound) {
			log.Debug("trim anchor not found")
			return nil
		}
		if err != nil {
			return err
		}
		if anchor.SessionID != sessionID {
			log.Debug("trim anchor belongs to another session", zap.String("anchor_session_id", anchor.SessionID))
			return nil
		}

		if shared {
			found = true
			removed, err = tx.DeleteRange(ctx, store.BySessionTs,
				store.Key{SessionID: sessionID}, store.After(anchor.Ts))
			return err
		}

		modelID := strings.TrimSpace(scopeModelID)
		if modelID == "" {
			modelID = anchor.ModelID
		}
		if anchor.ModelID != modelID {
			log.Debug("trim anchor outside model scope", zap.String("model_id", modelID))
			return nil
		}
		found = true
		removed, err = tx.DeleteRange(ctx, store.BySessionModelTs,
			store.Key{SessionID: sessionID, ModelID: modelID}, store.After(anchor.Ts))
		return err
	})
	if err != nil {
		log.Error("trim after anchor failed", zap.Error(err))
		return 0, false, err
	}
	return removed, found, nil
}
