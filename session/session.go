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

// Package session implements the SessionStateManager (spec §4.3):
// per-session state with linearizable updates, a TTL sweeper, and a public
// view that never leaks implementation bookkeeping.
package session

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/agentdock/agentdock-core/config"
	"github.com/agentdock/agentdock-core/errs"
	"github.com/agentdock/agentdock-core/storage"
)

const namespace = "sessions"

// TokenUsage tracks cumulative prompt/completion/total token counts.
// Monotonically non-decreasing for the life of a session (spec §8
// property 6).
type TokenUsage struct {
	Prompt     int64 `json:"prompt"`
	Completion int64 `json:"completion"`
	Total      int64 `json:"total"`
}

// Add accumulates usage in place.
func (t *TokenUsage) Add(u TokenUsage) {
	t.Prompt += u.Prompt
	t.Completion += u.Completion
	t.Total += u.Total
}

// Record is the full session state (spec §3 "Session record").
type Record struct {
	SessionID            string     `json:"sessionId"`
	ActiveStep           *string    `json:"activeStep,omitempty"`
	SequenceIndex        int        `json:"sequenceIndex"`
	RecentlyUsedTools    []string   `json:"recentlyUsedTools"`
	CumulativeTokenUsage TokenUsage `json:"cumulativeTokenUsage"`
	LastAccessed         time.Time  `json:"lastAccessed"`
}

// PublicView is the subset of Record a transport layer may expose to its
// clients (spec §6 "Public session-state view"). Internal bookkeeping
// (timestamps) never leaks through it.
type PublicView struct {
	SessionID            string     `json:"sessionId"`
	ActiveStep           *string    `json:"activeStep,omitempty"`
	SequenceIndex        int        `json:"sequenceIndex"`
	RecentlyUsedTools    []string   `json:"recentlyUsedTools"`
	CumulativeTokenUsage TokenUsage `json:"cumulativeTokenUsage"`
}

func newRecord(sessionID string) *Record {
	return &Record{
		SessionID:         sessionID,
		RecentlyUsedTools: nil,
		LastAccessed:      storage.Now(),
	}
}

// Manager implements SessionStateManager. Concurrent Update calls for the
// same sessionID are serialized through a per-session mutex; calls for
// different sessions proceed independently (spec §4.3's concurrency
// contract).
type Manager struct {
	provider storage.Provider
	ttl      time.Duration

	locksMu sync.Mutex
	locks   map[string]*sync.Mutex

	sweepInterval time.Duration
	stopSweep     chan struct{}
	sweepOnce     sync.Once
	sweepDone     chan struct{}
}

// NewManager creates a Manager backed by provider under the fixed
// "sessions:" namespace, and starts its background TTL sweeper.
func NewManager(provider storage.Provider, cfg config.SessionConfig) *Manager {
	cfg.SetDefaults()
	m := &Manager{
		provider:      provider,
		ttl:           time.Duration(cfg.TTLSeconds) * time.Second,
		locks:         make(map[string]*sync.Mutex),
		sweepInterval: time.Duration(cfg.SweepIntervalMs) * time.Millisecond,
		stopSweep:     make(chan struct{}),
		sweepDone:     make(chan struct{}),
	}
	go m.sweepLoop()
	return m
}

func (m *Manager) sessionLock(sessionID string) *sync.Mutex {
	m.locksMu.Lock()
	defer m.locksMu.Unlock()
	l, ok := m.locks[sessionID]
	if !ok {
		l = &sync.Mutex{}
		m.locks[sessionID] = l
	}
	return l
}

func (m *Manager) load(ctx context.Context, sessionID string) (*Record, bool, error) {
	raw, ok, err := m.provider.Get(ctx, sessionID, storage.Options{Namespace: namespace})
	if err != nil {
		return nil, false, errs.Storage("session.Manager.load", err)
	}
	if !ok {
		return nil, false, nil
	}
	var rec Record
	if err := json.Unmarshal(raw, &rec); err != nil {
		return nil, false, errs.Decode("session.Manager.load", err)
	}
	return &rec, true, nil
}

func (m *Manager) save(ctx context.Context, rec *Record) error {
	raw, err := json.Marshal(rec)
	if err != nil {
		return errs.Storage("session.Manager.save", err)
	}
	ttlSeconds := int64(m.ttl / time.Second)
	if err := m.provider.Set(ctx, rec.SessionID, raw, storage.Options{Namespace: namespace, TTLSeconds: ttlSeconds}); err != nil {
		return errs.Storage("session.Manager.save", err)
	}
	return nil
}

// GetOrCreate returns the existing session state, creating an empty one
// if none exists.
func (m *Manager) GetOrCreate(ctx context.Context, sessionID string) (*Record, error) {
	lock := m.sessionLock(sessionID)
	lock.Lock()
	defer lock.Unlock()

	rec, ok, err := m.load(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if ok {
		return rec, nil
	}

	rec = newRecord(sessionID)
	if err := m.save(ctx, rec); err != nil {
		return nil, err
	}
	return rec, nil
}

// Update applies mutate to the session's current state under the
// session's mutex: read, patch, write, all serialized with every other
// Update for the same sessionID (spec §4.3, §8 property 2). Returns
// (nil, false, nil) if the session does not exist.
func (m *Manager) Update(ctx context.Context, sessionID string, mutate func(*Record)) (*Record, bool, error) {
	lock := m.sessionLock(sessionID)
	lock.Lock()
	defer lock.Unlock()

	rec, ok, err := m.load(ctx, sessionID)
	if err != nil {
		return nil, false, err
	}
	if !ok {
		return nil, false, nil
	}

	mutate(rec)
	rec.LastAccessed = storage.Now()

	if err := m.save(ctx, rec); err != nil {
		return nil, false, err
	}
	return rec, true, nil
}

// SetActiveStep sets the active step name, creating the session if absent.
func (m *Manager) SetActiveStep(ctx context.Context, sessionID, stepName string) error {
	if _, err := m.GetOrCreate(ctx, sessionID); err != nil {
		return err
	}
	_, _, err := m.Update(ctx, sessionID, func(r *Record) {
		name := stepName
		r.ActiveStep = &name
	})
	return err
}

// ResetState reinitializes a session's step/sequence/tool-history state
// while preserving its identity and token totals reset to zero (a full
// reset, matching OrchestrationManager.reset in spec §4.5).
func (m *Manager) ResetState(ctx context.Context, sessionID string) error {
	_, _, err := m.Update(ctx, sessionID, func(r *Record) {
		r.ActiveStep = nil
		r.SequenceIndex = 0
		r.RecentlyUsedTools = nil
		r.CumulativeTokenUsage = TokenUsage{}
	})
	return err
}

// CleanupSession removes a session's state entirely (spec §4.5 "remove").
func (m *Manager) CleanupSession(ctx context.Context, sessionID string) error {
	lock := m.sessionLock(sessionID)
	lock.Lock()
	defer lock.Unlock()

	if _, err := m.provider.Delete(ctx, sessionID, storage.Options{Namespace: namespace}); err != nil {
		return errs.Storage("session.Manager.CleanupSession", err)
	}

	m.locksMu.Lock()
	delete(m.locks, sessionID)
	m.locksMu.Unlock()
	return nil
}

// ToAIView returns the public subset of a session's state.
func (m *Manager) ToAIView(ctx context.Context, sessionID string) (*PublicView, bool, error) {
	rec, ok, err := m.load(ctx, sessionID)
	if err != nil {
		return nil, false, err
	}
	if !ok {
		return nil, false, nil
	}
	return &PublicView{
		SessionID:            rec.SessionID,
		ActiveStep:           rec.ActiveStep,
		SequenceIndex:        rec.SequenceIndex,
		RecentlyUsedTools:    rec.RecentlyUsedTools,
		CumulativeTokenUsage: rec.CumulativeTokenUsage,
	}, true, nil
}

// sweepLoop periodically removes sessions whose lastAccessed+ttl has
// passed (spec §4.3 "background sweeper").
func (m *Manager) sweepLoop() {
	defer close(m.sweepDone)
	ticker := time.NewTicker(m.sweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-m.stopSweep:
			return
		case <-ticker.C:
			m.sweepExpired()
		}
	}
}

func (m *Manager) sweepExpired() {
	ctx := context.Background()
	keys, err := m.provider.List(ctx, "", storage.Options{Namespace: namespace})
	if err != nil {
		return
	}
	now := storage.Now()
	for _, key := range keys {
		rec, ok, err := m.load(ctx, key)
		if err != nil || !ok {
			continue
		}
		if now.Sub(rec.LastAccessed) >= m.ttl {
			_ = m.CleanupSession(ctx, key)
		}
	}
}

// Shutdown stops the background sweeper cleanly.
func (m *Manager) Shutdown() {
	m.sweepOnce.Do(func() { close(m.stopSweep) })
	<-m.sweepDone
}
