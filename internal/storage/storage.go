// Package storage defines the interface for mission record stores.
package storage

import (
	"github.com/untoldecay/mission-control/internal/types"
)

// MissionStore is a keyed set of missions indexed by storage key.
//
// Implementations must be safe for concurrent use and must never hand out
// pointers into their internal state: every returned mission is a copy, and
// every stored mission is copied on the way in.
type MissionStore interface {
	// Upsert stores m under key and returns the previous record, if any.
	Upsert(key string, m *types.Mission) *types.Mission
	// Get returns the record stored under key.
	Get(key string) (*types.Mission, bool)
	// Delete removes key and returns the removed record, if any.
	Delete(key string) *types.Mission
	// List returns every record, ordered by storage key.
	List() []*types.Mission
	// Len returns the number of stored records.
	Len() int
	// Replace discards every record and stores missions under their
	// storage keys.
	Replace(missions []*types.Mission)
}
