package test

import (
	"github.com/pkg/errors"

	"github.com/outofforest/datatree/alloc"
	"github.com/outofforest/datatree/types"
)

// NewSwitchQuota creates quota which may be switched to deny every reservation.
func NewSwitchQuota() *SwitchQuota {
	return &SwitchQuota{
		quota: alloc.NewQuota(0),
	}
}

// SwitchQuota is the quota used to inject allocation failures.
type SwitchQuota struct {
	quota *alloc.LimitedQuota

	// Deny makes every reservation fail.
	Deny bool

	// Denied counts failed reservations.
	Denied uint64
}

// Reserve reserves units unless quota is switched to deny.
func (q *SwitchQuota) Reserve(units uint64) error {
	if q.Deny {
		q.Denied++
		return errors.Wrap(types.ErrOutOfMemory, "allocation denied")
	}
	return q.quota.Reserve(units)
}

// Release releases units.
func (q *SwitchQuota) Release(units uint64) {
	q.quota.Release(units)
}

// Used returns number of reserved units.
func (q *SwitchQuota) Used() uint64 {
	return q.quota.Used()
}
