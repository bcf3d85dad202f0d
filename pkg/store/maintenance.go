package store

import (
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// Maintenance runs scheduled store upkeep, currently badger value-log GC.
type Maintenance struct {
	store     *Store
	scheduler *cron.Cron
}

// NewMaintenance schedules GC on the given cron expression.
func NewMaintenance(store *Store, schedule string) (*Maintenance, error) {
	scheduler := cron.New()
	if _, err := scheduler.AddFunc(schedule, store.RunGC); err != nil {
		return nil, err
	}
	return &Maintenance{store: store, scheduler: scheduler}, nil
}

// Start starts the scheduler.
func (m *Maintenance) Start() {
	m.store.log.Info("Starting store maintenance")
	m.scheduler.Start()
}

// Stop stops the scheduler and waits for a running job to finish.
func (m *Maintenance) Stop() {
	ctx := m.scheduler.Stop()
	<-ctx.Done()
	m.store.log.Info("Store maintenance stopped", zap.Int("jobs", len(m.scheduler.Entries())))
}
