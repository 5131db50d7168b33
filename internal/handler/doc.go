// Package handler implements the vouchgraph HTTP API.
//
// # Handlers
//
// GraphHandler exposes the session store: the canonical and filtered
// graphs, search, selection, connection lists, statistics, rate-limit
// status and exports.
//
// LayoutHandler exposes the layout engine: rendered SVG, node positions,
// pin management and an interactive websocket channel carrying pointer
// gestures in and position frames out.
//
// NotifyHandler receives signed frame webhooks and sends notifications.
//
// EmbedHandler serves the frame and OpenGraph metadata page.
//
// # Response Format
//
// Success responses return JSON data with appropriate status codes.
// Error responses return JSON with {error, details} structure.
//
// # Server-Sent Events
//
// The /events endpoint streams store and layout events to browsers.
package handler
