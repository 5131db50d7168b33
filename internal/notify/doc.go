// Package notify receives frame lifecycle webhooks and delivers push
// notifications.
//
// Clients register through signed webhook events (JSON Farcaster Signature
// envelopes). A Receiver verifies each envelope and keeps the token store
// in step with the event: frame_added and notifications_enabled save the
// delivery token, frame_removed and notifications_disabled drop it.
//
// A Sender delivers a notification to one user or broadcasts it to every
// registered user. Broadcasts group tokens by delivery URL and post them in
// batches of MaxBatchSize.
package notify
