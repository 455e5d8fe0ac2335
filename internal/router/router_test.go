package router

import (
	"context"
	"errors"
	"testing"

	"github.com/nerrad567/rsu-fleet-core/internal/protocol"
)

const (
	hbTopic  = "V2X/RSU/HB/UP"
	ackTopic = "V2X/RSU/+/CONFIG/ACK"
)

func TestDispatch_RoutesByPattern(t *testing.T) {
	r := New()

	var hbs []protocol.Heartbeat
	var acks []string
	mustRoute(t, Route(r, hbTopic, func(_ context.Context, _ string, m protocol.Heartbeat) error {
		hbs = append(hbs, m)
		return nil
	}))
	mustRoute(t, Route(r, ackTopic, func(_ context.Context, topic string, m protocol.Ack) error {
		acks = append(acks, topic+"="+m.ID)
		return nil
	}))

	ctx := context.Background()
	if res := r.Dispatch(ctx, hbTopic, []byte(`{"esn":"E1"}`)); !res.OK() || res.Pattern != hbTopic {
		t.Errorf("heartbeat result = %+v", res)
	}
	if res := r.Dispatch(ctx, "V2X/RSU/E1/CONFIG/ACK", []byte(`{"id":"dt-1","errorCode":0}`)); !res.OK() || res.Pattern != ackTopic {
		t.Errorf("ack result = %+v", res)
	}

	if len(hbs) != 1 || hbs[0].ESN != "E1" {
		t.Errorf("heartbeats = %+v", hbs)
	}
	if len(acks) != 1 || acks[0] != "V2X/RSU/E1/CONFIG/ACK=dt-1" {
		t.Errorf("acks = %v", acks)
	}
}

func TestDispatch_Unmatched(t *testing.T) {
	r := New()
	mustRoute(t, Route(r, ackTopic, func(context.Context, string, protocol.Ack) error { return nil }))

	for _, topic := range []string{
		"V2X/RSU/E1/LOG/ACK",
		"V2X/RSU/E1/CONFIG/ACK/extra",
		"V2X/RSU/CONFIG/ACK",
	} {
		if res := r.Dispatch(context.Background(), topic, []byte(`{"id":"x"}`)); res.Matched() {
			t.Errorf("Dispatch(%s) matched %s", topic, res.Pattern)
		}
	}
	if got := r.Stats().Unmatched; got != 3 {
		t.Errorf("Unmatched = %d, want 3", got)
	}
}

func TestDispatch_FirstRegistrationWins(t *testing.T) {
	r := New()
	var hit string
	mustRoute(t, Route(r, "V2X/RSU/+/QUERY/UP", func(context.Context, string, protocol.Heartbeat) error {
		hit = "wildcard"
		return nil
	}))
	mustRoute(t, Route(r, "V2X/RSU/E1/QUERY/UP", func(context.Context, string, protocol.Heartbeat) error {
		hit = "exact"
		return nil
	}))

	r.Dispatch(context.Background(), "V2X/RSU/E1/QUERY/UP", []byte(`{"esn":"E1"}`))
	if hit != "wildcard" {
		t.Errorf("hit = %q, want wildcard", hit)
	}
}

func TestDispatch_Failures(t *testing.T) {
	boom := errors.New("db down")

	tests := []struct {
		name     string
		payload  string
		handler  Handler[protocol.Heartbeat]
		wantKind FailureKind
	}{
		{
			name:     "malformed json",
			payload:  `{"esn":`,
			handler:  func(context.Context, string, protocol.Heartbeat) error { return nil },
			wantKind: FailureDecode,
		},
		{
			name:     "wrong shape",
			payload:  `["E1"]`,
			handler:  func(context.Context, string, protocol.Heartbeat) error { return nil },
			wantKind: FailureDecode,
		},
		{
			name:     "fails validation",
			payload:  `{"timestamp":1}`,
			handler:  func(context.Context, string, protocol.Heartbeat) error { return nil },
			wantKind: FailureInvalid,
		},
		{
			name:     "handler error",
			payload:  `{"esn":"E1"}`,
			handler:  func(context.Context, string, protocol.Heartbeat) error { return boom },
			wantKind: FailureHandler,
		},
		{
			name:     "handler panic",
			payload:  `{"esn":"E1"}`,
			handler:  func(context.Context, string, protocol.Heartbeat) error { panic("nil map") },
			wantKind: FailurePanic,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := New()
			var observed []Failure
			r.SetFailureObserver(func(f Failure) { observed = append(observed, f) })
			mustRoute(t, Route(r, hbTopic, tt.handler))

			res := r.Dispatch(context.Background(), hbTopic, []byte(tt.payload))

			if !res.Matched() || res.Failure == nil {
				t.Fatalf("result = %+v, want matched failure", res)
			}
			if res.Failure.Kind != tt.wantKind {
				t.Errorf("Kind = %s, want %s", res.Failure.Kind, tt.wantKind)
			}
			if len(observed) != 1 || observed[0].Kind != tt.wantKind || observed[0].Topic != hbTopic {
				t.Errorf("observed = %+v", observed)
			}
			if tt.wantKind == FailureHandler && !errors.Is(res.Failure.Err, boom) {
				t.Errorf("Err = %v, want %v", res.Failure.Err, boom)
			}
			if tt.wantKind == FailureInvalid && !errors.Is(res.Failure.Err, protocol.ErrInvalidMessage) {
				t.Errorf("Err = %v, want ErrInvalidMessage", res.Failure.Err)
			}

			s := r.Stats()
			if s.Failed != 1 || s.ByKind[tt.wantKind] != 1 || s.Handled != 0 {
				t.Errorf("stats = %+v", s)
			}
		})
	}
}

// A malformed message on one topic must not stop the next good message on any topic.
func TestDispatch_BadMessageSurvives(t *testing.T) {
	r := New()
	var handled []string
	mustRoute(t, Route(r, hbTopic, func(_ context.Context, _ string, m protocol.Heartbeat) error {
		handled = append(handled, "hb:"+m.ESN)
		return nil
	}))
	mustRoute(t, Route(r, ackTopic, func(_ context.Context, _ string, m protocol.Ack) error {
		if m.ID == "dt-panic" {
			panic("boom")
		}
		handled = append(handled, "ack:"+m.ID)
		return nil
	}))

	ctx := context.Background()
	r.Dispatch(ctx, hbTopic, []byte(`not json`))
	r.Dispatch(ctx, "V2X/RSU/E1/CONFIG/ACK", []byte(`{"id":"dt-panic"}`))
	r.Dispatch(ctx, hbTopic, []byte(`{"esn":"E2"}`))
	r.Dispatch(ctx, "V2X/RSU/E2/CONFIG/ACK", []byte(`{"id":"dt-ok"}`))

	want := []string{"hb:E2", "ack:dt-ok"}
	if len(handled) != len(want) || handled[0] != want[0] || handled[1] != want[1] {
		t.Errorf("handled = %v, want %v", handled, want)
	}

	s := r.Stats()
	if s.Received != 4 || s.Handled != 2 || s.Failed != 2 {
		t.Errorf("stats = %+v, want received 4 handled 2 failed 2", s)
	}
}

func TestRoute_Validation(t *testing.T) {
	r := New()
	noop := func(context.Context, string, protocol.Heartbeat) error { return nil }

	tests := []struct {
		pattern string
		wantErr error
	}{
		{"", ErrInvalidPattern},
		{"V2X//HB", ErrInvalidPattern},
		{"V2X/#", ErrInvalidPattern},
		{"V2X/RSU+/HB", ErrInvalidPattern},
		{hbTopic, nil},
		{hbTopic, ErrDuplicatePattern},
	}

	for _, tt := range tests {
		err := Route(r, tt.pattern, noop)
		if !errors.Is(err, tt.wantErr) {
			t.Errorf("Route(%q) error = %v, want %v", tt.pattern, err, tt.wantErr)
		}
	}
	if got := r.Patterns(); len(got) != 1 || got[0] != hbTopic {
		t.Errorf("Patterns() = %v", got)
	}
}

type fakeSubscriber struct {
	subs map[string]func(string, []byte) error
	fail string
}

func (f *fakeSubscriber) Subscribe(topic string, _ byte, handler func(string, []byte) error) error {
	if topic == f.fail {
		return errors.New("refused")
	}
	f.subs[topic] = handler
	return nil
}

func TestAttach(t *testing.T) {
	r := New()
	var got []string
	mustRoute(t, Route(r, hbTopic, func(_ context.Context, _ string, m protocol.Heartbeat) error {
		got = append(got, m.ESN)
		return errors.New("handler error stays inside the router")
	}))
	mustRoute(t, Route(r, ackTopic, func(context.Context, string, protocol.Ack) error { return nil }))

	sub := &fakeSubscriber{subs: make(map[string]func(string, []byte) error)}
	if err := r.Attach(context.Background(), sub, 1); err != nil {
		t.Fatalf("Attach() error = %v", err)
	}
	if len(sub.subs) != 2 {
		t.Fatalf("subscribed %d patterns, want 2", len(sub.subs))
	}

	if err := sub.subs[hbTopic](hbTopic, []byte(`{"esn":"E9"}`)); err != nil {
		t.Errorf("transport callback returned %v, want nil", err)
	}
	if len(got) != 1 || got[0] != "E9" {
		t.Errorf("handled = %v", got)
	}

	failing := &fakeSubscriber{subs: make(map[string]func(string, []byte) error), fail: ackTopic}
	if err := r.Attach(context.Background(), failing, 1); err == nil {
		t.Error("Attach() expected error when a subscription is refused")
	}
}

func mustRoute(t *testing.T, err error) {
	t.Helper()
	if err != nil {
		t.Fatalf("Route() error = %v", err)
	}
}
