// Package liveness records when devices and edge nodes were last heard from.
//
// Every heartbeat or report refreshes a key with a fixed TTL in a Store.
// A key that has expired means the peer has gone silent; the sweeper acts
// on that. Expiry is enforced by the store itself (Redis EX, or the
// in-process MemoryStore), never by application bookkeeping.
//
// Keys:
//
//	rsu:<esn>     device liveness
//	edge:<id>     edge node liveness
package liveness
