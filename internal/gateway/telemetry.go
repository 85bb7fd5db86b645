package gateway

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/forepath/agentdock/internal/container"
)

// TelemetryBroadcaster runs one stats-polling loop per agent with an
// active container. The loop starts on the first authentication for the
// agent and stops when the last viewer leaves. At most one loop exists
// per agent at any time.
type TelemetryBroadcaster struct {
	fetcher  container.StatsFetcher
	registry *SessionRegistry
	emitter  Emitter
	interval time.Duration

	mu    sync.Mutex
	loops map[string]*telemetryLoop
}

type telemetryLoop struct {
	agentID     string
	containerID string
	cancel      context.CancelFunc
}

// NewTelemetryBroadcaster creates a telemetry broadcaster polling at the
// given interval.
func NewTelemetryBroadcaster(fetcher container.StatsFetcher, registry *SessionRegistry, emitter Emitter, interval time.Duration) *TelemetryBroadcaster {
	if interval <= 0 {
		interval = 5 * time.Second
	}
	return &TelemetryBroadcaster{
		fetcher:  fetcher,
		registry: registry,
		emitter:  emitter,
		interval: interval,
		loops:    make(map[string]*telemetryLoop),
	}
}

// Acquire starts the polling loop for an agent if none is running. A
// second authentication for an already-polled agent reuses the existing
// loop.
func (b *TelemetryBroadcaster) Acquire(agentID, containerID string) {
	if containerID == "" {
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if _, exists := b.loops[agentID]; exists {
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	loop := &telemetryLoop{agentID: agentID, containerID: containerID, cancel: cancel}
	b.loops[agentID] = loop

	slog.Info("Telemetry loop started", "agent_id", agentID, "container_id", containerID, "interval", b.interval)
	go b.run(ctx, loop)
}

// Release tears down the loop for an agent once the registry reports no
// remaining viewers. Safe to call for agents without a loop or to call
// repeatedly.
func (b *TelemetryBroadcaster) Release(agentID string) {
	if agentID == "" {
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	// Checked under the lock: a racing Acquire for a new viewer holds
	// b.mu too, so it cannot slip in between this check and the cancel.
	if b.registry.ViewerCount(agentID) > 0 {
		return
	}

	loop, exists := b.loops[agentID]
	if !exists {
		return
	}
	delete(b.loops, agentID)
	loop.cancel()
	slog.Info("Telemetry loop stopped", "agent_id", agentID)
}

// Close stops every loop. Used at process shutdown.
func (b *TelemetryBroadcaster) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	for agentID, loop := range b.loops {
		loop.cancel()
		delete(b.loops, agentID)
	}
}

// ActiveLoops returns the number of running loops.
func (b *TelemetryBroadcaster) ActiveLoops() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.loops)
}

func (b *TelemetryBroadcaster) run(ctx context.Context, loop *telemetryLoop) {
	// Immediate fetch so the first viewer does not wait a full interval.
	b.fetchAndBroadcast(ctx, loop)

	ticker := time.NewTicker(b.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			b.fetchAndBroadcast(ctx, loop)
		case <-ctx.Done():
			return
		}
	}
}

// fetchAndBroadcast fetches one sample and fans it out. Fetch failures
// are logged and the loop continues on schedule. A fetch that completes
// after teardown broadcasts to an empty connection set, which is
// harmless.
func (b *TelemetryBroadcaster) fetchAndBroadcast(ctx context.Context, loop *telemetryLoop) {
	stats, err := b.fetcher.GetStats(ctx, loop.containerID)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		slog.Warn("Telemetry fetch failed, loop continues",
			"agent_id", loop.agentID,
			"container_id", loop.containerID,
			"error", err)
		return
	}

	frame := successFrame(EventContainerStats, ContainerStatsData{
		Stats:     stats,
		Timestamp: isoNow(),
	})
	for _, connID := range b.registry.ConnectionsFor(loop.agentID) {
		b.emitter.Send(connID, frame)
	}
}
