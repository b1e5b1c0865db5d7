package alloc

import (
	"github.com/pkg/errors"

	"github.com/outofforest/datatree/types"
)

// Quota accounts memory used by growable structures.
type Quota interface {
	// Reserve reserves units, it fails with types.ErrOutOfMemory if budget is exhausted.
	Reserve(units uint64) error

	// Release returns previously reserved units.
	Release(units uint64)
}

// NewQuota creates quota limited to the number of units. Limit 0 means unlimited.
func NewQuota(limit uint64) *LimitedQuota {
	return &LimitedQuota{
		limit: limit,
	}
}

// LimitedQuota is the quota with fixed limit.
type LimitedQuota struct {
	limit uint64
	used  uint64
}

// Reserve reserves units.
func (q *LimitedQuota) Reserve(units uint64) error {
	if q.limit > 0 && q.used+units > q.limit {
		return errors.Wrapf(types.ErrOutOfMemory, "quota exceeded: used %d, requested %d, limit %d",
			q.used, units, q.limit)
	}
	q.used += units
	return nil
}

// Release releases units.
func (q *LimitedQuota) Release(units uint64) {
	if units > q.used {
		// This is really critical because it means that we released more than reserved.
		panic("quota released more than reserved")
	}
	q.used -= units
}

// Used returns number of reserved units.
func (q *LimitedQuota) Used() uint64 {
	return q.used
}
