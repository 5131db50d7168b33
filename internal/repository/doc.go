// Package repository defines the notification token store.
//
// The webhook receiver and notification sender share a TokenStore with an
// explicit lifecycle: it is opened at process start and closed on shutdown.
//
// # Implementations
//
//   - memory: process-local map, for development and tests
//   - sqlite: a local database file (modernc.org/sqlite, no cgo)
//   - redis: an external key-value store shared between instances
//
// Every implementation passes the contract suite in storetest.
package repository
