package store

import (
	"context"
)

func (s *Store) CreateSession(ctx context.Context, sess *Session) error {
	return wrap(s.db.WithContext(ctx).Create(sess).Error)
}

func (s *Store) GetSession(ctx context.Context, id string) (*Session, error) {
	var sess Session
	if err := s.db.WithContext(ctx).First(&sess, "id = ?", id).Error; err != nil {
		return nil, wrap(err)
	}
	return &sess, nil
}

// ListSessions returns sessions newest first.
func (s *Store) ListSessions(ctx context.Context) ([]Session, error) {
	out := make([]Session, 0)
	if err := s.db.WithContext(ctx).
		Order("started_at DESC").
		Order("id DESC").
		Find(&out).Error; err != nil {
		return nil, wrap(err)
	}
	return out, nil
}

// RenameSession updates the name column only. ErrNotFound if id is unknown.
func (s *Store) RenameSession(ctx context.Context, id, name string) error {
	if _, err := s.GetSession(ctx, id); err != nil {
		return err
	}
	return wrap(s.db.WithContext(ctx).
		Model(&Session{}).
		Where("id = ?", id).
		Update("name", name).Error)
}

func (s *Store) DeleteSession(ctx context.Context, id string) (int64, error) {
	res := s.db.WithContext(ctx).Delete(&Session{}, "id = ?", id)
	if res.Error != nil {
		return 0, wrap(res.Error)
	}
	return res.RowsAffected, nil
}
