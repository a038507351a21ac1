package reminder

import (
	"context"
	"errors"
	"sync"
	"time"

	"creatorreminder/internal/model"
)

var errStoreDown = errors.New("connection refused")

type fakeCampaigns struct {
	campaigns []model.Campaign
	err       error
}

func (f *fakeCampaigns) ListActiveCampaigns(context.Context) ([]model.Campaign, error) {
	return f.campaigns, f.err
}

type fakeEnrollments struct {
	byCampaign map[int64][]model.Enrollment
	errs       map[int64]error
}

func (f *fakeEnrollments) ListApprovedEnrollments(_ context.Context, campaignID int64) ([]model.Enrollment, error) {
	if err := f.errs[campaignID]; err != nil {
		return nil, err
	}
	return f.byCampaign[campaignID], nil
}

type fakeUsers struct {
	users    map[int64]*model.User
	err      error
	panicFor map[int64]bool
}

func (f *fakeUsers) GetUser(_ context.Context, userID int64) (*model.User, error) {
	if f.panicFor[userID] {
		panic("nil row in user lookup")
	}
	if f.err != nil {
		return nil, f.err
	}
	u, ok := f.users[userID]
	if !ok {
		return nil, ErrUserNotFound
	}
	return u, nil
}

type fakeTemplates struct {
	mu        sync.Mutex
	templates map[string]*model.Template
	calls     map[string]int
}

func (f *fakeTemplates) GetActiveTemplate(_ context.Context, milestone string) (*model.Template, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.calls == nil {
		f.calls = make(map[string]int)
	}
	f.calls[milestone]++
	return f.templates[milestone], nil
}

func (f *fakeTemplates) set(tpl *model.Template) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.templates == nil {
		f.templates = make(map[string]*model.Template)
	}
	f.templates[tpl.Milestone] = tpl
}

func (f *fakeTemplates) callCount(milestone string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[milestone]
}

type fakeSendLog struct {
	mu        sync.Mutex
	entries   map[model.SendLogKey]model.SendLogEntry
	existsErr error
	insertErr error
}

func newFakeSendLog() *fakeSendLog {
	return &fakeSendLog{entries: make(map[model.SendLogKey]model.SendLogEntry)}
}

func (f *fakeSendLog) Exists(_ context.Context, key model.SendLogKey) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.existsErr != nil {
		return false, f.existsErr
	}
	_, ok := f.entries[key]
	return ok, nil
}

func (f *fakeSendLog) Insert(_ context.Context, entry model.SendLogEntry) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.insertErr != nil {
		return false, f.insertErr
	}
	if _, ok := f.entries[entry.Key]; ok {
		return false, nil
	}
	f.entries[entry.Key] = entry
	return true, nil
}

func (f *fakeSendLog) reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.entries = make(map[model.SendLogKey]model.SendLogEntry)
}

func (f *fakeSendLog) len() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.entries)
}

type sentMessage struct {
	To      string
	Subject string
	Body    string
}

type fakeSender struct {
	mu       sync.Mutex
	sent     []sentMessage
	calls    int
	failFor  map[string]error
	panicFor map[string]bool
	err      error
}

func (f *fakeSender) Send(_ context.Context, to, subject, body string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.panicFor[to] {
		panic("provider sdk bug")
	}
	if err := f.failFor[to]; err != nil {
		return err
	}
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, sentMessage{To: to, Subject: subject, Body: body})
	return nil
}

func (f *fakeSender) attempts() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func (f *fakeSender) messages() []sentMessage {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]sentMessage(nil), f.sent...)
}

type fakeClaimer struct {
	mu       sync.Mutex
	held     map[string]bool
	err      error
	released []string
}

func (f *fakeClaimer) AcquireOnce(_ context.Context, key string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return true, f.err
	}
	if f.held == nil {
		f.held = make(map[string]bool)
	}
	if f.held[key] {
		return false, nil
	}
	f.held[key] = true
	return true, nil
}

func (f *fakeClaimer) Release(_ context.Context, key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.held, key)
	f.released = append(f.released, key)
	return nil
}

type fakeFailures struct {
	mu     sync.Mutex
	counts map[string]int64
	resets []string
}

func (f *fakeFailures) IncrementAndGet(_ context.Context, key string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.counts == nil {
		f.counts = make(map[string]int64)
	}
	f.counts[key]++
	return f.counts[key], nil
}

func (f *fakeFailures) Reset(_ context.Context, key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.counts, key)
	f.resets = append(f.resets, key)
	return nil
}

type dlqMessage struct {
	RoutingKey string
	Payload    any
	Error      string
}

type fakeDLQ struct {
	mu       sync.Mutex
	messages []dlqMessage
}

func (f *fakeDLQ) PublishToDLQ(_ context.Context, routingKey string, payload any, originalError string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.messages = append(f.messages, dlqMessage{RoutingKey: routingKey, Payload: payload, Error: originalError})
	return nil
}

// fixedClock returns a clock that always reports t.
func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}
