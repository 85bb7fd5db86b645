package gateway

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/forepath/agentdock/internal/domain"
	"github.com/forepath/agentdock/internal/provider"
)

// fakeRepo is an in-memory store.Repository for relay tests.
type fakeRepo struct {
	mu       sync.Mutex
	agents   map[string]*domain.Agent
	messages []*domain.ChatMessage

	failCreateMessage bool
	failHistory       bool
	failCount         bool
}

func newFakeRepo(agents ...*domain.Agent) *fakeRepo {
	r := &fakeRepo{agents: make(map[string]*domain.Agent)}
	for _, a := range agents {
		r.agents[a.ID] = a
	}
	return r
}

func (r *fakeRepo) GetAgent(_ context.Context, agentID string) (*domain.Agent, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.agents[agentID], nil
}

func (r *fakeRepo) GetAgentByName(_ context.Context, name string) (*domain.Agent, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var found *domain.Agent
	for _, a := range r.agents {
		if a.Name == name {
			if found != nil {
				return nil, nil // ambiguous
			}
			found = a
		}
	}
	return found, nil
}

func (r *fakeRepo) CreateAgent(_ context.Context, agent *domain.Agent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.agents[agent.ID] = agent
	return nil
}

func (r *fakeRepo) ListAgents(_ context.Context) ([]*domain.Agent, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*domain.Agent, 0, len(r.agents))
	for _, a := range r.agents {
		out = append(out, a)
	}
	return out, nil
}

func (r *fakeRepo) CreateMessage(_ context.Context, msg *domain.ChatMessage) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failCreateMessage {
		return errors.New("simulated write failure")
	}
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now()
	}
	r.messages = append(r.messages, msg)
	return nil
}

func (r *fakeRepo) MessagesByAgentPaged(_ context.Context, agentID string, offset, limit int) ([]*domain.ChatMessage, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failHistory {
		return nil, errors.New("simulated history failure")
	}
	var out []*domain.ChatMessage
	for _, m := range r.messages {
		if m.AgentID == agentID {
			out = append(out, m)
		}
	}
	if offset >= len(out) {
		return nil, nil
	}
	out = out[offset:]
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *fakeRepo) CountMessagesByAgent(_ context.Context, agentID string) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failCount {
		return 0, errors.New("simulated count failure")
	}
	var n int64
	for _, m := range r.messages {
		if m.AgentID == agentID {
			n++
		}
	}
	return n, nil
}

func (r *fakeRepo) Ping(context.Context) error { return nil }
func (r *fakeRepo) Close() error               { return nil }

func (r *fakeRepo) messageCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.messages)
}

// sentFrame pairs a frame with its destination, in global send order.
type sentFrame struct {
	ConnID string
	Frame  Frame
}

// fakeEmitter records every frame the relay and broadcaster send.
type fakeEmitter struct {
	mu   sync.Mutex
	sent []sentFrame
}

func (e *fakeEmitter) Send(connID string, frame Frame) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.sent = append(e.sent, sentFrame{ConnID: connID, Frame: frame})
}

func (e *fakeEmitter) all() []sentFrame {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]sentFrame, len(e.sent))
	copy(out, e.sent)
	return out
}

func (e *fakeEmitter) byEvent(event string) []sentFrame {
	var out []sentFrame
	for _, s := range e.all() {
		if s.Frame.Event == event {
			out = append(out, s)
		}
	}
	return out
}

func (e *fakeEmitter) framesFor(connID string) []Frame {
	var out []Frame
	for _, s := range e.all() {
		if s.ConnID == connID {
			out = append(out, s.Frame)
		}
	}
	return out
}

// fakeProvider is a scripted provider.Provider.
type fakeProvider struct {
	typeTag string
	reply   string
	sendErr error
	initErr error

	mu        sync.Mutex
	initCalls int
	sendCalls []string
}

func (p *fakeProvider) Type() string        { return p.typeTag }
func (p *fakeProvider) DisplayName() string { return p.typeTag }
func (p *fakeProvider) Image() string       { return p.typeTag + ":latest" }

func (p *fakeProvider) SendMessage(_ context.Context, _, _, text string, _ provider.Options) (string, error) {
	p.mu.Lock()
	p.sendCalls = append(p.sendCalls, text)
	p.mu.Unlock()
	if p.sendErr != nil {
		return "", p.sendErr
	}
	return p.reply, nil
}

func (p *fakeProvider) SendInitialization(context.Context, string, string, provider.Options) error {
	p.mu.Lock()
	p.initCalls++
	p.mu.Unlock()
	return p.initErr
}

func (p *fakeProvider) initCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.initCalls
}

func (p *fakeProvider) sendCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.sendCalls)
}

// fakeFetcher is a scripted container.StatsFetcher.
type fakeFetcher struct {
	mu    sync.Mutex
	calls int
	err   error

	fetched chan struct{}
}

func newFakeFetcher() *fakeFetcher {
	return &fakeFetcher{fetched: make(chan struct{}, 64)}
}

func (f *fakeFetcher) GetStats(_ context.Context, containerID string) (*domain.ContainerStats, error) {
	f.mu.Lock()
	f.calls++
	err := f.err
	f.mu.Unlock()

	select {
	case f.fetched <- struct{}{}:
	default:
	}

	if err != nil {
		return nil, err
	}
	return &domain.ContainerStats{ContainerID: containerID, CPUPercent: 1.5, ReadAt: time.Now()}, nil
}

func (f *fakeFetcher) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func (f *fakeFetcher) setErr(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.err = err
}

func (f *fakeFetcher) waitForFetch(t interface{ Fatalf(string, ...any) }) {
	select {
	case <-f.fetched:
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for a stats fetch")
	}
}
