// Copyright 2025 Kadir Pekel
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package extraction

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"github.com/hashicorp/go-hclog"

	"github.com/agentdock/agentdock-core/config"
	"github.com/agentdock/agentdock-core/memory"
	"github.com/agentdock/agentdock-core/storage"
)

// bufferKey isolates one (userID, agentID) pair's buffer from every
// other — messages never cross this boundary (spec §4.7 "User isolation").
type bufferKey struct {
	userID  string
	agentID string
}

type bufferState struct {
	messages  []Message
	createdAt time.Time
}

// Orchestrator implements ExtractionOrchestrator. Call Ingest as messages
// arrive; batches fire automatically on size or age, or on an explicit
// Process call.
type Orchestrator struct {
	ops        memory.Ops
	extractors []Extractor
	cfg        config.ExtractionConfig

	mu      sync.Mutex
	buffers map[bufferKey]*bufferState

	rngMu sync.Mutex
	rng   *rand.Rand

	onMetrics func(Metrics)
	log       hclog.Logger

	sweepInterval time.Duration
	stop          chan struct{}
	done          chan struct{}
	stopOnce      sync.Once
}

// Option customizes an Orchestrator at construction.
type Option func(*Orchestrator)

// WithSeed pins the sampling RNG to a deterministic source, as spec §9
// requires for reproducible extraction-rate tests (property 10).
func WithSeed(seed int64) Option {
	return func(o *Orchestrator) { o.rng = rand.New(rand.NewSource(seed)) }
}

// WithMetricsSink registers a callback invoked after every batch firing,
// successful or sampled-out.
func WithMetricsSink(fn func(Metrics)) Option {
	return func(o *Orchestrator) { o.onMetrics = fn }
}

// WithLogger overrides the orchestrator's structured logger, used for
// its own background batching/sampling loop (a distinct lifecycle from
// request-scoped logging elsewhere in the core).
func WithLogger(log hclog.Logger) Option {
	return func(o *Orchestrator) { o.log = log }
}

// NewOrchestrator builds an Orchestrator storing extracted memories via
// ops, running extractors in order, and starts its background timeout
// sweeper.
func NewOrchestrator(ops memory.Ops, extractors []Extractor, cfg config.ExtractionConfig, opts ...Option) *Orchestrator {
	cfg.SetDefaults()
	o := &Orchestrator{
		ops:           ops,
		extractors:    extractors,
		cfg:           cfg,
		buffers:       make(map[bufferKey]*bufferState),
		rng:           rand.New(rand.NewSource(time.Now().UnixNano())),
		log:           hclog.New(&hclog.LoggerOptions{Name: "extraction", Level: hclog.Warn}),
		sweepInterval: time.Minute,
		stop:          make(chan struct{}),
		done:          make(chan struct{}),
	}
	for _, opt := range opts {
		opt(o)
	}
	go o.sweepLoop()
	return o
}

// Ingest appends messages to the (userID, agentID) buffer, firing the
// batch immediately if it has reached maxBatchSize.
func (o *Orchestrator) Ingest(ctx context.Context, userID, agentID string, messages []Message) error {
	key := bufferKey{userID, agentID}

	o.mu.Lock()
	state, ok := o.buffers[key]
	if !ok {
		state = &bufferState{createdAt: storage.Now()}
		o.buffers[key] = state
	}
	state.messages = append(state.messages, messages...)
	shouldFire := len(state.messages) >= o.cfg.MaxBatchSize
	var batch []Message
	if shouldFire {
		batch = state.messages
		delete(o.buffers, key)
	}
	o.mu.Unlock()

	if shouldFire {
		_, err := o.fire(ctx, userID, agentID, batch)
		return err
	}
	return nil
}

// Process flushes the (userID, agentID) buffer immediately, regardless
// of size or age.
func (o *Orchestrator) Process(ctx context.Context, userID, agentID string) (Metrics, error) {
	key := bufferKey{userID, agentID}

	o.mu.Lock()
	state, ok := o.buffers[key]
	if ok {
		delete(o.buffers, key)
	}
	o.mu.Unlock()

	if !ok || len(state.messages) == 0 {
		return Metrics{UserID: userID, AgentID: agentID}, nil
	}
	return o.fire(ctx, userID, agentID, state.messages)
}

// fire filters, samples, and runs messages through the extractor chain,
// writing any produced records via MemoryOps.Store.
func (o *Orchestrator) fire(ctx context.Context, userID, agentID string, messages []Message) (Metrics, error) {
	start := storage.Now()
	metrics := Metrics{
		UserID:       userID,
		AgentID:      agentID,
		MessageCount: len(messages),
		FiredAt:      start,
	}

	surviving := make([]Message, 0, len(messages))
	for _, m := range messages {
		if len(m.Content) >= o.cfg.MinMessageLength {
			surviving = append(surviving, m)
		}
	}

	if !o.sample() {
		metrics.Sampled = false
		metrics.Duration = storage.Now().Sub(start)
		o.log.Debug("batch dropped by sampling", "user_id", userID, "agent_id", agentID, "messages", len(messages))
		o.report(metrics)
		return metrics, nil
	}
	metrics.Sampled = true

	if len(surviving) == 0 {
		metrics.Duration = storage.Now().Sub(start)
		o.report(metrics)
		return metrics, nil
	}

	for _, ex := range o.extractors {
		records, err := ex.Extract(ctx, userID, agentID, surviving)
		if err != nil {
			o.log.Warn("extractor failed", "extractor", ex.Name(), "user_id", userID, "agent_id", agentID, "error", err)
			return metrics, err
		}
		if len(records) == 0 {
			continue
		}

		for _, rec := range records {
			if _, err := o.ops.Store(ctx, userID, agentID, rec); err != nil {
				return metrics, err
			}
		}
		metrics.ExtractorUsed = ex.Name()
		metrics.MemoriesProduced = len(records)
		o.log.Debug("batch extracted", "extractor", ex.Name(), "user_id", userID, "agent_id", agentID, "memories", len(records))
		break
	}

	metrics.Duration = storage.Now().Sub(start)
	o.report(metrics)
	return metrics, nil
}

// sample draws the extractionRate cost-reduction decision.
func (o *Orchestrator) sample() bool {
	o.rngMu.Lock()
	defer o.rngMu.Unlock()
	return o.rng.Float64() < o.cfg.ExtractionRate
}

func (o *Orchestrator) report(m Metrics) {
	if o.onMetrics != nil {
		o.onMetrics(m)
	}
}

// sweepLoop fires any buffer whose age has exceeded timeoutMinutes.
func (o *Orchestrator) sweepLoop() {
	defer close(o.done)
	ticker := time.NewTicker(o.sweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-o.stop:
			return
		case <-ticker.C:
			o.sweepTimedOut()
		}
	}
}

// sweepTimedOut fires every buffer old enough to have timed out and large
// enough to clear minBatchSize — a buffer that is merely old but still
// under minBatchSize is left to keep accumulating, so a lone short-lived
// session doesn't burn an extraction pass on a single message.
func (o *Orchestrator) sweepTimedOut() {
	timeout := time.Duration(o.cfg.TimeoutMinutes * float64(time.Minute))
	now := storage.Now()

	var due []bufferKey
	o.mu.Lock()
	for key, state := range o.buffers {
		if now.Sub(state.createdAt) >= timeout && len(state.messages) >= o.cfg.MinBatchSize {
			due = append(due, key)
		}
	}
	o.mu.Unlock()

	ctx := context.Background()
	for _, key := range due {
		_, _ = o.Process(ctx, key.userID, key.agentID)
	}
}

// Shutdown stops the background timeout sweeper cleanly.
func (o *Orchestrator) Shutdown() {
	o.stopOnce.Do(func() { close(o.stop) })
	<-o.done
}
