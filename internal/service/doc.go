// Package service implements the vouch graph data pipeline.
//
// GraphService turns the upstream event feed into a GraphData snapshot. It
// fetches VOUCHED events, resolves display profiles in one bulk call, fans
// out per-account statistics lookups, and assembles nodes and links.
//
// # Failure model
//
// Only a failure of the event feed prevents a graph from being built and is
// returned as a *GraphBuildError. Profile and per-account statistics failures
// degrade the affected nodes to formatted addresses and default colors.
//
// # Event System
//
// Session state changes are published on an EventBus for real-time delivery
// to connected clients via Server-Sent Events (SSE).
package service
