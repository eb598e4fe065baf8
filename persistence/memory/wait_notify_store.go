package memory

import (
	"context"
	"sync"
	"time"

	"github.com/mohitkumar/stepflow/model"
	"github.com/mohitkumar/stepflow/persistence"
)

var _ persistence.WaitNotifyStore = new(inMemoryWaitNotifyStore)

type storedResponse struct {
	response model.NotifyResponse
	// zero while a wait refers to the response
	expiresAt time.Time
}

func (r storedResponse) expired(now time.Time) bool {
	return !r.expiresAt.IsZero() && !now.Before(r.expiresAt)
}

type inMemoryWaitNotifyStore struct {
	mu          sync.Mutex
	responseTTL time.Duration
	waits       map[string]model.WaitInstance
	waiters     map[string]map[string]struct{}
	responses   map[string]storedResponse
	deadlines   map[string]time.Time
}

func NewInMemoryWaitNotifyStore() *inMemoryWaitNotifyStore {
	return &inMemoryWaitNotifyStore{
		responseTTL: persistence.DEFAULT_RESPONSE_TTL,
		waits:       make(map[string]model.WaitInstance),
		waiters:     make(map[string]map[string]struct{}),
		responses:   make(map[string]storedResponse),
		deadlines:   make(map[string]time.Time),
	}
}

// WithResponseTTL sets how long a response nobody waits on is kept. Zero
// keeps it forever.
func (s *inMemoryWaitNotifyStore) WithResponseTTL(ttl time.Duration) *inMemoryWaitNotifyStore {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.responseTTL = ttl
	return s
}

func (s *inMemoryWaitNotifyStore) SaveWaitInstance(ctx context.Context, wait *model.WaitInstance) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	w := *wait
	w.CorrelationIds = append([]string{}, wait.CorrelationIds...)
	s.waits[wait.Id] = w
	for _, id := range wait.CorrelationIds {
		set, ok := s.waiters[id]
		if !ok {
			set = make(map[string]struct{})
			s.waiters[id] = set
		}
		set[wait.Id] = struct{}{}
		if r, ok := s.responses[id]; ok {
			r.expiresAt = time.Time{}
			s.responses[id] = r
		}
	}
	return nil
}

func (s *inMemoryWaitNotifyStore) GetWaitInstance(ctx context.Context, waitId string) (*model.WaitInstance, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	w, ok := s.waits[waitId]
	if !ok {
		return nil, persistence.ErrNotFound
	}
	return &w, nil
}

func (s *inMemoryWaitNotifyStore) ClaimWaitInstance(ctx context.Context, wait *model.WaitInstance) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.waits[wait.Id]; !ok {
		return false, nil
	}
	delete(s.waits, wait.Id)
	for _, id := range wait.CorrelationIds {
		delete(s.waiters[id], wait.Id)
		if len(s.waiters[id]) == 0 {
			delete(s.waiters, id)
			delete(s.responses, id)
			delete(s.deadlines, id)
		}
	}
	return true, nil
}

func (s *inMemoryWaitNotifyStore) GetWaiters(ctx context.Context, correlationId string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.waiters[correlationId]))
	for id := range s.waiters[correlationId] {
		out = append(out, id)
	}
	return out, nil
}

func (s *inMemoryWaitNotifyStore) SaveResponse(ctx context.Context, response *model.NotifyResponse) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	stored := storedResponse{response: *response}
	if s.responseTTL > 0 && len(s.waiters[response.CorrelationId]) == 0 {
		stored.expiresAt = time.Now().Add(s.responseTTL)
	}
	s.responses[response.CorrelationId] = stored
	return nil
}

func (s *inMemoryWaitNotifyStore) GetResponses(ctx context.Context, correlationIds ...string) (map[string]model.NotifyResponse, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now()
	out := make(map[string]model.NotifyResponse, len(correlationIds))
	for _, id := range correlationIds {
		r, ok := s.responses[id]
		if !ok {
			continue
		}
		if r.expired(now) {
			delete(s.responses, id)
			continue
		}
		out[id] = r.response
	}
	return out, nil
}

func (s *inMemoryWaitNotifyStore) AddDeadline(ctx context.Context, correlationId string, delay time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.deadlines[correlationId] = time.Now().Add(delay)
	return nil
}

func (s *inMemoryWaitNotifyStore) PollExpiredDeadlines(ctx context.Context) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now()
	out := make([]string, 0)
	for id, at := range s.deadlines {
		if !at.After(now) {
			out = append(out, id)
			delete(s.deadlines, id)
		}
	}
	return out, nil
}
