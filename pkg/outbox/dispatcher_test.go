package outbox

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"creatorreminder/pkg/trace"
)

type fakeStore struct {
	mu     sync.Mutex
	events []*Event
	sent   []int64
	failed []int64
}

func (s *fakeStore) GetPendingEvents(_ context.Context, limit int) ([]*Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.events) > limit {
		return s.events[:limit], nil
	}
	return s.events, nil
}

func (s *fakeStore) MarkAsSent(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sent = append(s.sent, id)
	return nil
}

func (s *fakeStore) MarkAsFailed(_ context.Context, id int64, _ int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failed = append(s.failed, id)
	return nil
}

type fakePublisher struct {
	failKey  string
	keys     []string
	traceIDs []string
}

func (p *fakePublisher) PublishWithContext(ctx context.Context, routingKey string, _ any) error {
	if routingKey == p.failKey {
		return errors.New("channel closed")
	}
	p.keys = append(p.keys, routingKey)
	p.traceIDs = append(p.traceIDs, trace.FromContext(ctx))
	return nil
}

func TestDispatcher_ProcessPendingEvents(t *testing.T) {
	payload, err := json.Marshal(map[string]any{"user_id": 7, "trace_id": "sweep-1"})
	require.NoError(t, err)

	store := &fakeStore{events: []*Event{
		{ID: 1, RoutingKey: "reminder.sent", Payload: payload},
		{ID: 2, RoutingKey: "reminder.broken", Payload: payload},
		{ID: 3, RoutingKey: "reminder.sent", Payload: json.RawMessage(`not json`)},
	}}
	pub := &fakePublisher{failKey: "reminder.broken"}

	NewDispatcher(store, pub, zap.NewNop()).ProcessPendingEvents(context.Background())

	assert.Equal(t, []int64{1}, store.sent)
	assert.ElementsMatch(t, []int64{2, 3}, store.failed)
	assert.Equal(t, []string{"reminder.sent"}, pub.keys)
	assert.Equal(t, []string{"sweep-1"}, pub.traceIDs)
}

func TestDispatcher_StartStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		NewDispatcher(&fakeStore{}, &fakePublisher{}, zap.NewNop()).Start(ctx)
		close(done)
	}()
	cancel()
	<-done
}
