// Package store keeps the latest snapshot of every i-html element on a
// previewed page and publishes changes to subscribers.
//
// The main components are:
//
//   - [Store]: interface for storage and subscription
//   - [MemoryStore]: in-memory implementation with pub/sub
//   - [Snapshot]: JSON representation of one element
//
// Subscribers receive updates via channels with non-blocking sends; slow
// subscribers miss updates rather than block the publisher.
package store
