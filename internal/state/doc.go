// Package state holds the in-memory device state cache and the canonical
// channel/regulator transition functions.
//
// Every mutation of cached device state flows through this package: user
// command issuance and the realtime sync client both call the same
// transition functions, so the coupling rules between a channel's on/off
// status and its speed regulator live in exactly one place. Turning a
// speed-controlled channel on seeds its regulator with a sensible default
// when it is at zero; turning it off always resets the regulator to zero.
//
// Reads return deep copies. Callers can inspect and modify the returned
// values freely without racing the cache.
package state
