// Package dispatch is the work-dispatch core of the automation platform.
// It keeps a registry of remote worker agents (transcoders, RTMP relays,
// browser automation runners), assigns queued jobs to the least-loaded
// healthy agent, detects silently-dead agents by heartbeat timeout and
// reclaims their in-flight work, and drives failed jobs through a
// bounded exponential-backoff retry ladder that terminates in a dead
// letter queue with operator alerting.
//
// The root package defines the shared vocabulary: configuration,
// sentinel errors, and the Entity embed carried by all persisted
// records. Subsystems live in their own packages (agent, job, backoff,
// dispatcher, health, completion, dlq) and are wired together by the
// engine package.
//
// # Architecture
//
// Dispatch follows a composable store pattern where each subsystem
// (agent, job, dlq) defines its own store interface. A single backend
// (memory for tests and development, postgres for production)
// implements all of them.
//
// All entity IDs use TypeID — type-prefixed, K-sortable, UUIDv7-based
// identifiers. All time-based decisions read an injected clock so
// heartbeat aging and retry scheduling are deterministic under test.
package dispatch
