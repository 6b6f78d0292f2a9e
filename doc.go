// Package agentdock is a runtime for conversational agents: per-session
// orchestration state, four-tier memory with decay and hybrid recall, and
// cost-bounded extraction of memories from raw conversation turns, all
// built on a pluggable StorageProvider.
//
// # Quick Start
//
// Build a Core over an in-memory store with every default applied:
//
//	cfg := config.Default()
//	factory := storage.NewFactory()
//	provider, err := factory.Get(cfg.Storage)
//	core, err := agentdock.New(provider, cfg)
//
// Drive one turn:
//
//	out, err := core.HandleTurn(ctx, userID, agentID, sessionID, messages, orchCfg, allToolIds)
//	// out.ActiveStep, out.AllowedTools, out.PublicState
//
// # Architecture
//
//	Transport (HTTP, etc.) → Core → {session, orchestration, memory, recall, extraction}
//	                                              ↓
//	                                      storage.Provider (memory | sqlite | postgres | mysql | redis)
//
// Core is the only package transports need to import; session,
// orchestration, memory, recall, and extraction are usable standalone by
// callers that want finer-grained control.
//
// # Configuration
//
// A single config.Config, loaded from YAML via config.Load or built
// programmatically, drives every subsystem's defaults (spec §6's
// Configuration surface).
//
// # License
//
// Apache-2.0 - See LICENSE for details.
package agentdock
