package store

import (
	"context"

	"gorm.io/gorm/clause"
)

func (s *Store) ListModels(ctx context.Context) ([]Model, error) {
	out := make([]Model, 0)
	if err := s.db.WithContext(ctx).Order("id ASC").Find(&out).Error; err != nil {
		return nil, wrap(err)
	}
	return out, nil
}

func (s *Store) GetModel(ctx context.Context, id string) (*Model, error) {
	var m Model
	if err := s.db.WithContext(ctx).First(&m, "id = ?", id).Error; err != nil {
		return nil, wrap(err)
	}
	return &m, nil
}

// PutModel inserts m or overwrites every column of the existing row.
func (s *Store) PutModel(ctx context.Context, m *Model) error {
	return wrap(s.db.WithContext(ctx).
		Clauses(clause.OnConflict{UpdateAll: true}).
		Create(m).Error)
}

// UpdateModel applies a partial column update. ErrNotFound if id is unknown.
func (s *Store) UpdateModel(ctx context.Context, id string, fields map[string]any) error {
	if _, err := s.GetModel(ctx, id); err != nil {
		return err
	}
	return wrap(s.db.WithContext(ctx).Model(&Model{}).Where("id = ?", id).Updates(fields).Error)
}

func (s *Store) DeleteModel(ctx context.Context, provider, id string) (int64, error) {
	res := s.db.WithContext(ctx).Delete(&Model{}, "provider = ? AND id = ?", provider, id)
	if res.Error != nil {
		return 0, wrap(res.Error)
	}
	return res.RowsAffected, nil
}

// ReplaceModels swaps the whole catalog in one transaction.
func (s *Store) ReplaceModels(ctx context.Context, models []Model) error {
	return s.Transaction(ctx, func(tx *Store) error {
		if err := tx.db.WithContext(ctx).Where("1 = 1").Delete(&Model{}).Error; err != nil {
			return wrap(err)
		}
		if len(models) == 0 {
			return nil
		}
		return wrap(tx.db.WithContext(ctx).CreateInBatches(models, 100).Error)
	})
}

func (s *Store) PutProviderKey(ctx context.Context, k *ProviderKey) error {
	return wrap(s.db.WithContext(ctx).
		Clauses(clause.OnConflict{UpdateAll: true}).
		Create(k).Error)
}

func (s *Store) GetProviderKey(ctx context.Context, id string) (*ProviderKey, error) {
	var k ProviderKey
	if err := s.db.WithContext(ctx).First(&k, "id = ?", id).Error; err != nil {
		return nil, wrap(err)
	}
	return &k, nil
}

func (s *Store) ListProviderKeys(ctx context.Context) ([]ProviderKey, error) {
	out := make([]ProviderKey, 0)
	if err := s.db.WithContext(ctx).Order("id ASC").Find(&out).Error; err != nil {
		return nil, wrap(err)
	}
	return out, nil
}

func (s *Store) DeleteProviderKey(ctx context.Context, id string) (int64, error) {
	res := s.db.WithContext(ctx).Delete(&ProviderKey{}, "id = ?", id)
	if res.Error != nil {
		return 0, wrap(res.Error)
	}
	return res.RowsAffected, nil
}
