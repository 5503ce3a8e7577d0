package store

import (
	"context"
)

// AddMessage inserts m and fills m.ID with the assigned key.
func (s *Store) AddMessage(ctx context.Context, m *Message) error {
	return wrap(s.db.WithContext(ctx).Create(m).Error)
}

func (s *Store) GetMessage(ctx context.Context, id uint64) (*Message, error) {
	var m Message
	if err := s.db.WithContext(ctx).First(&m, "id = ?", id).Error; err != nil {
		return nil, wrap(err)
	}
	return &m, nil
}

// Scan returns the messages matching key and r on idx, ordered by ts then id.
func (s *Store) Scan(ctx context.Context, idx Index, key Key, r Range) ([]Message, error) {
	q, err := scope(s.db.WithContext(ctx).Model(&Message{}), idx, key)
	if err != nil {
		return nil, err
	}
	msgs := make([]Message, 0)
	if r.Empty() {
		return msgs, nil
	}
	if err := r.apply(q).Order("ts ASC").Order("id ASC").Find(&msgs).Error; err != nil {
		return nil, wrap(err)
	}
	return msgs, nil
}

// DeleteRange removes the messages Scan would return and reports how many went.
func (s *Store) DeleteRange(ctx context.Context, idx Index, key Key, r Range) (int64, error) {
	q, err := scope(s.db.WithContext(ctx), idx, key)
	if err != nil {
		return 0, err
	}
	if r.Empty() {
		return 0, nil
	}
	res := r.apply(q).Delete(&Message{})
	if res.Error != nil {
		return 0, wrap(res.Error)
	}
	return res.RowsAffected, nil
}

func (s *Store) DeleteMessage(ctx context.Context, id uint64) (int64, error) {
	res := s.db.WithContext(ctx).Delete(&Message{}, "id = ?", id)
	if res.Error != nil {
		return 0, wrap(res.Error)
	}
	return res.RowsAffected, nil
}

// CountMessages counts the messages of a session regardless of model.
func (s *Store) CountMessages(ctx context.Context, sessionID string) (int64, error) {
	var n int64
	err := s.db.WithContext(ctx).Model(&Message{}).Where("session_id = ?", sessionID).Count(&n).Error
	return n, wrap(err)
}
