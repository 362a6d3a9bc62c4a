// Package api defines the wire types of the relay HTTP surface: the
// capability catalog, invocation requests and outcomes, task snapshots, chat
// requests and replies, streamed chain events, and structured errors.
//
// The package performs no I/O. Core types:
//   - [Capability]: catalog entry (name, description, parameters, timeout, category)
//   - [InvokeRequest] / [InvokeResponse]: direct capability invocation
//   - [Task]: background task snapshot
//   - [ChatRequest] / [ChatResponse]: a planner run
//   - [ChatEvent]: server-sent event emitted while a chain runs
//   - [APIError]: structured error with type, code, param and message
package api
