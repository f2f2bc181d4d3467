// Package state keeps per-key conversation data for bot handlers.
// Values are stored in memory; mutations for one key can be serialized
// with WithLock while other keys proceed concurrently.
package state
