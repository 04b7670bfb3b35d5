package memory

import (
	"context"
	"sync"

	"asset-runhours/internal/runhours/domain"
)

type partitionKey struct {
	assetID string
	utcDate domain.Date
}

// EventStore is an in-memory event source partitioned by UTC date.
type EventStore struct {
	mu      sync.RWMutex
	data    map[partitionKey][]domain.StateEvent
	failing map[partitionKey]error
	fetches int
	probes  int
}

// NewEventStore constructs an event store.
func NewEventStore() *EventStore {
	return &EventStore{
		data:    make(map[partitionKey][]domain.StateEvent),
		failing: make(map[partitionKey]error),
	}
}

// Add appends events to the partitions of their UTC dates.
func (s *EventStore) Add(assetID string, events ...domain.StateEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, ev := range events {
		key := partitionKey{assetID: assetID, utcDate: domain.DateOf(ev.At.UTC())}
		s.data[key] = append(s.data[key], ev)
	}
}

// FailDay makes fetches and probes of one partition return err.
func (s *EventStore) FailDay(assetID string, utcDate domain.Date, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failing[partitionKey{assetID: assetID, utcDate: utcDate}] = err
}

// Fetches returns the number of FetchDayEvents calls.
func (s *EventStore) Fetches() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.fetches
}

// Probes returns the number of ProbeDayHasData calls.
func (s *EventStore) Probes() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.probes
}

// FetchDayEvents returns a copy of one partition sorted by timestamp.
func (s *EventStore) FetchDayEvents(ctx context.Context, assetID string, utcDate domain.Date) ([]domain.StateEvent, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fetches++
	key := partitionKey{assetID: assetID, utcDate: utcDate}
	if err := s.failing[key]; err != nil {
		return nil, err
	}
	out := make([]domain.StateEvent, len(s.data[key]))
	copy(out, s.data[key])
	domain.SortEvents(out)
	return out, nil
}

// ProbeDayHasData reports whether a partition holds any event.
func (s *EventStore) ProbeDayHasData(ctx context.Context, assetID string, utcDate domain.Date) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.probes++
	key := partitionKey{assetID: assetID, utcDate: utcDate}
	if err := s.failing[key]; err != nil {
		return false, err
	}
	return len(s.data[key]) > 0, nil
}
