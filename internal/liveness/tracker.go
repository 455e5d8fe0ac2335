package liveness

import (
	"context"
	"strconv"
	"time"
)

// Default TTLs.
const (
	DefaultRSUTTL  = 30 * time.Second
	DefaultEdgeTTL = 30 * time.Second
)

// Tracker maps device and edge identities onto Store keys with fixed TTLs.
//
// Touching an identity only refreshes its key; it never changes registry
// state. The value stored is the RFC 3339 time of the touch.
type Tracker struct {
	store   Store
	rsuTTL  time.Duration
	edgeTTL time.Duration
	now     func() time.Time
}

// NewTracker returns a Tracker over store. Non-positive TTLs use the defaults.
func NewTracker(store Store, rsuTTL, edgeTTL time.Duration) *Tracker {
	if rsuTTL <= 0 {
		rsuTTL = DefaultRSUTTL
	}
	if edgeTTL <= 0 {
		edgeTTL = DefaultEdgeTTL
	}
	return &Tracker{store: store, rsuTTL: rsuTTL, edgeTTL: edgeTTL, now: time.Now}
}

// RSUKey returns the store key for a device.
func RSUKey(esn string) string {
	return "rsu:" + esn
}

// EdgeKey returns the store key for an edge node.
func EdgeKey(id int64) string {
	return "edge:" + strconv.FormatInt(id, 10)
}

// TouchRSU marks a device as heard from now.
func (t *Tracker) TouchRSU(ctx context.Context, esn string) error {
	return t.store.Set(ctx, RSUKey(esn), t.stamp(), t.rsuTTL)
}

// RSUAlive reports whether a device has been heard from within its TTL.
func (t *Tracker) RSUAlive(ctx context.Context, esn string) (bool, error) {
	_, ok, err := t.store.Get(ctx, RSUKey(esn))
	return ok, err
}

// RSULastSeen returns when a device was last touched, if its key is live.
func (t *Tracker) RSULastSeen(ctx context.Context, esn string) (time.Time, bool, error) {
	v, ok, err := t.store.Get(ctx, RSUKey(esn))
	if err != nil || !ok {
		return time.Time{}, false, err
	}
	ts, err := time.Parse(time.RFC3339Nano, v)
	if err != nil {
		return time.Time{}, false, nil //nolint:nilerr // Foreign value under our key counts as unknown
	}
	return ts, true, nil
}

// ForgetRSU drops a device's liveness entry.
func (t *Tracker) ForgetRSU(ctx context.Context, esn string) error {
	return t.store.Delete(ctx, RSUKey(esn))
}

// TouchEdge marks an edge node as heard from now.
func (t *Tracker) TouchEdge(ctx context.Context, id int64) error {
	return t.store.Set(ctx, EdgeKey(id), t.stamp(), t.edgeTTL)
}

// EdgeAlive reports whether an edge node has been heard from within its TTL.
func (t *Tracker) EdgeAlive(ctx context.Context, id int64) (bool, error) {
	_, ok, err := t.store.Get(ctx, EdgeKey(id))
	return ok, err
}

// ForgetEdge drops an edge node's liveness entry.
func (t *Tracker) ForgetEdge(ctx context.Context, id int64) error {
	return t.store.Delete(ctx, EdgeKey(id))
}

func (t *Tracker) stamp() string {
	return t.now().UTC().Format(time.RFC3339Nano)
}
