package router

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/nerrad567/rsu-fleet-core/internal/protocol"
)

// Registration errors.
var (
	ErrInvalidPattern   = errors.New("router: invalid topic pattern")
	ErrDuplicatePattern = errors.New("router: pattern already registered")
)

// Logger defines the logging interface used by the Router.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Handler processes one decoded message. topic is the concrete topic the
// message arrived on, with wildcards resolved.
type Handler[T protocol.Message] func(ctx context.Context, topic string, msg T) error

// FailureKind classifies why a message was dropped.
type FailureKind string

const (
	FailureDecode  FailureKind = "decode"
	FailureInvalid FailureKind = "invalid"
	FailureHandler FailureKind = "handler"
	FailurePanic   FailureKind = "panic"
)

// Failure describes one dropped message.
type Failure struct {
	Topic   string
	Pattern string
	Kind    FailureKind
	Err     error
	At      time.Time
}

// FailureObserver receives every Failure synchronously on the dispatch path.
// It must not block.
type FailureObserver func(Failure)

// Result reports what Dispatch did with a message.
type Result struct {
	// Pattern is the matched pattern, empty if none matched.
	Pattern string

	// Failure is set when the message was matched but dropped.
	Failure *Failure
}

// Matched reports whether a route accepted the topic.
func (r Result) Matched() bool { return r.Pattern != "" }

// OK reports whether the message was matched and handled without failure.
func (r Result) OK() bool { return r.Matched() && r.Failure == nil }

// Stats is a snapshot of dispatch counters.
type Stats struct {
	Received  uint64                 `json:"received"`
	Handled   uint64                 `json:"handled"`
	Unmatched uint64                 `json:"unmatched"`
	Failed    uint64                 `json:"failed"`
	ByKind    map[FailureKind]uint64 `json:"by_kind"`
}

type route struct {
	pattern  string
	segments []string
	invoke   func(ctx context.Context, topic string, payload []byte) (FailureKind, error)
}

// Router matches topics to handlers.
//
// Register all routes before Attach. Dispatch is safe for concurrent use.
type Router struct {
	mu     sync.RWMutex
	routes []route

	logger   Logger
	observer FailureObserver
	now      func() time.Time

	statsMu   sync.Mutex
	received  uint64
	handled   uint64
	unmatched uint64
	failed    map[FailureKind]uint64
}

// New creates an empty Router.
func New() *Router {
	return &Router{
		logger: noopLogger{},
		now:    time.Now,
		failed: make(map[FailureKind]uint64),
	}
}

// SetLogger sets the logger for dropped-message reports.
func (r *Router) SetLogger(logger Logger) {
	r.logger = logger
}

// SetFailureObserver installs an observer for dropped messages.
func (r *Router) SetFailureObserver(observer FailureObserver) {
	r.observer = observer
}

// Route registers handler for pattern. Payloads on matching topics are
// decoded into T and validated before handler is called.
func Route[T protocol.Message](r *Router, pattern string, handler Handler[T]) error {
	segments, err := parsePattern(pattern)
	if err != nil {
		return err
	}

	invoke := func(ctx context.Context, topic string, payload []byte) (FailureKind, error) {
		var msg T
		if err := json.Unmarshal(payload, &msg); err != nil {
			return FailureDecode, fmt.Errorf("decoding %T: %w", msg, err)
		}
		if err := msg.Validate(); err != nil {
			return FailureInvalid, err
		}
		if err := handler(ctx, topic, msg); err != nil {
			return FailureHandler, err
		}
		return "", nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.routes {
		if existing.pattern == pattern {
			return fmt.Errorf("%w: %s", ErrDuplicatePattern, pattern)
		}
	}
	r.routes = append(r.routes, route{pattern: pattern, segments: segments, invoke: invoke})
	return nil
}

// Patterns returns the registered patterns in registration order.
func (r *Router) Patterns() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]string, len(r.routes))
	for i, rt := range r.routes {
		out[i] = rt.pattern
	}
	return out
}

// Dispatch routes one message. It always returns; failures are reported
// through the Result, the logger, Stats and the FailureObserver.
func (r *Router) Dispatch(ctx context.Context, topic string, payload []byte) Result {
	r.count(func() { r.received++ })

	rt, ok := r.match(topic)
	if !ok {
		r.count(func() { r.unmatched++ })
		r.logger.Debug("no route for topic", "topic", topic)
		return Result{}
	}

	kind, err := r.invoke(ctx, rt, topic, payload)
	if err == nil {
		r.count(func() { r.handled++ })
		return Result{Pattern: rt.pattern}
	}

	f := Failure{Topic: topic, Pattern: rt.pattern, Kind: kind, Err: err, At: r.now()}
	r.count(func() { r.failed[kind]++ })
	r.logger.Error("message dropped",
		"topic", topic,
		"pattern", rt.pattern,
		"kind", string(kind),
		"error", err,
	)
	if r.observer != nil {
		r.observer(f)
	}
	return Result{Pattern: rt.pattern, Failure: &f}
}

// invoke runs a route with panic recovery.
func (r *Router) invoke(ctx context.Context, rt route, topic string, payload []byte) (kind FailureKind, err error) {
	defer func() {
		if p := recover(); p != nil {
			kind = FailurePanic
			err = fmt.Errorf("handler panic: %v", p)
		}
	}()
	return rt.invoke(ctx, topic, payload)
}

func (r *Router) match(topic string) (route, bool) {
	segments := strings.Split(topic, "/")

	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, rt := range r.routes {
		if matchSegments(rt.segments, segments) {
			return rt, true
		}
	}
	return route{}, false
}

// Stats returns a snapshot of the dispatch counters.
func (r *Router) Stats() Stats {
	r.statsMu.Lock()
	defer r.statsMu.Unlock()

	s := Stats{
		Received:  r.received,
		Handled:   r.handled,
		Unmatched: r.unmatched,
		ByKind:    make(map[FailureKind]uint64, len(r.failed)),
	}
	for k, v := range r.failed {
		s.ByKind[k] = v
		s.Failed += v
	}
	return s
}

func (r *Router) count(fn func()) {
	r.statsMu.Lock()
	fn()
	r.statsMu.Unlock()
}

// Subscriber is the transport side of the router.
type Subscriber interface {
	Subscribe(topic string, qos byte, handler func(topic string, payload []byte) error) error
}

// Attach subscribes every registered pattern on sub, dispatching each
// delivery with ctx. The callback always returns nil so transport-level
// logging never duplicates the router's own failure reporting.
func (r *Router) Attach(ctx context.Context, sub Subscriber, qos byte) error {
	callback := func(topic string, payload []byte) error {
		r.Dispatch(ctx, topic, payload)
		return nil
	}
	for _, pattern := range r.Patterns() {
		if err := sub.Subscribe(pattern, qos, callback); err != nil {
			return fmt.Errorf("subscribing %s: %w", pattern, err)
		}
	}
	return nil
}

func parsePattern(pattern string) ([]string, error) {
	if pattern == "" {
		return nil, fmt.Errorf("%w: empty", ErrInvalidPattern)
	}
	segments := strings.Split(pattern, "/")
	for _, s := range segments {
		if s == "" {
			return nil, fmt.Errorf("%w: empty segment in %q", ErrInvalidPattern, pattern)
		}
		if s == "#" || (s != "+" && strings.ContainsAny(s, "+#")) {
			return nil, fmt.Errorf("%w: unsupported wildcard in %q", ErrInvalidPattern, pattern)
		}
	}
	return segments, nil
}

func matchSegments(pattern, topic []string) bool {
	if len(pattern) != len(topic) {
		return false
	}
	for i, p := range pattern {
		if p != "+" && p != topic[i] {
			return false
		}
	}
	return true
}
