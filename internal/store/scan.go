package store

import (
	"gorm.io/gorm"
)

// Index selects one of the compound message indexes.
type Index int

const (
	// BySessionTs is (session_id, ts): every model in a session.
	BySessionTs Index = iota
	// BySessionModelTs is (session_id, model_id, ts): one model in a session.
	BySessionModelTs
)

func (i Index) String() string {
	switch i {
	case BySessionTs:
		return "idx_messages_session_ts"
	case BySessionModelTs:
		return "idx_messages_session_model_ts"
	}
	return "unknown"
}

// Key holds the equality prefix of an index. ModelID is ignored for BySessionTs.
type Key struct {
	SessionID string
	ModelID   string
}

// Bound is one end of a ts range.
type Bound struct {
	Ts        int64
	Inclusive bool
}

// Range restricts the ts suffix of an index. A nil end is unbounded.
type Range struct {
	Lower *Bound
	Upper *Bound
}

func All() Range { return Range{} }

// After matches ts > t.
func After(t int64) Range { return Range{Lower: &Bound{Ts: t}} }

// From matches ts >= t.
func From(t int64) Range { return Range{Lower: &Bound{Ts: t, Inclusive: true}} }

// Through matches ts <= t.
func Through(t int64) Range { return Range{Upper: &Bound{Ts: t, Inclusive: true}} }

// Before matches ts < t.
func Before(t int64) Range { return Range{Upper: &Bound{Ts: t}} }

func Between(lower, upper Bound) Range { return Range{Lower: &lower, Upper: &upper} }

// Empty reports whether no ts can satisfy r.
func (r Range) Empty() bool {
	if r.Lower == nil || r.Upper == nil {
		return false
	}
	if r.Lower.Ts > r.Upper.Ts {
		return true
	}
	return r.Lower.Ts == r.Upper.Ts && !(r.Lower.Inclusive && r.Upper.Inclusive)
}

func (r Range) apply(q *gorm.DB) *gorm.DB {
	if r.Lower != nil {
		if r.Lower.Inclusive {
			q = q.Where("ts >= ?", r.Lower.Ts)
		} else {
			q = q.Where("ts > ?", r.Lower.Ts)
		}
	}
	if r.Upper != nil {
		if r.Upper.Inclusive {
			q = q.Where("ts <= ?", r.Upper.Ts)
		} else {
			q = q.Where("ts < ?", r.Upper.Ts)
		}
	}
	return q
}

func scope(q *gorm.DB, idx Index, key Key) (*gorm.DB, error) {
	if key.SessionID == "" {
		return nil, ErrInvalidKey
	}
	switch idx {
	case BySessionTs:
		return q.Where("session_id = ?", key.SessionID), nil
	case BySessionModelTs:
		if key.ModelID == "" {
			return nil, ErrInvalidKey
		}
		return q.Where("session_id = ? AND model_id = ?", key.SessionID, key.ModelID), nil
	}
	return nil, ErrInvalidKey
}
