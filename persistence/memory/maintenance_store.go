package memory

import (
	"context"
	"sync/atomic"

	"github.com/mohitkumar/stepflow/persistence"
)

var _ persistence.MaintenanceStore = new(inMemoryMaintenanceStore)

type inMemoryMaintenanceStore struct {
	on atomic.Bool
}

func NewInMemoryMaintenanceStore() *inMemoryMaintenanceStore {
	return &inMemoryMaintenanceStore{}
}

func (s *inMemoryMaintenanceStore) GetMaintenance(ctx context.Context) (bool, error) {
	return s.on.Load(), nil
}

func (s *inMemoryMaintenanceStore) SetMaintenance(ctx context.Context, on bool) error {
	s.on.Store(on)
	return nil
}
