/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

// Package admission provides Gate, a bounded-capacity ticket pool that limits
// how many generation requests reach the inference backend at the same time.
//
// Requests that find no free slot wait in FIFO order. Optionally the number of waiters
// and the time they may wait can be bounded, in which case Acquire fails fast with
// ErrBacklogFull or ErrBacklogTimeout.
package admission
