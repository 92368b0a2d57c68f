package memory

import (
	"context"
	"sync"

	"github.com/mferrill/workherald/internal/workmeta"
)

// SubscriberStore is an in-memory workmeta.SubscriberStore.
type SubscriberStore struct {
	mu   sync.RWMutex
	subs map[string][]workmeta.Subscriber
}

// NewSubscriberStore constructs a SubscriberStore.
func NewSubscriberStore() *SubscriberStore {
	return &SubscriberStore{subs: make(map[string][]workmeta.Subscriber)}
}

// AddSubscriber registers a requester for a job, replacing any earlier entry
// for the same (job, requester) pair.
func (s *SubscriberStore) AddSubscriber(_ context.Context, sub workmeta.Subscriber) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	existing := s.subs[sub.JobID]
	for i, prior := range existing {
		if prior.RequesterID == sub.RequesterID {
			existing[i] = sub
			return nil
		}
	}
	s.subs[sub.JobID] = append(existing, sub)
	return nil
}

// ListSubscribers returns all subscribers for a job in registration order.
func (s *SubscriberStore) ListSubscribers(_ context.Context, jobID string) ([]workmeta.Subscriber, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	subs := s.subs[jobID]
	out := make([]workmeta.Subscriber, len(subs))
	copy(out, subs)
	return out, nil
}

// DeleteSubscribers removes every subscriber of a job.
func (s *SubscriberStore) DeleteSubscribers(_ context.Context, jobID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.subs, jobID)
	return nil
}
