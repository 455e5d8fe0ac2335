package dispatch

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/nerrad567/rsu-fleet-core/internal/infrastructure/database/dbtest"
	"github.com/nerrad567/rsu-fleet-core/internal/protocol"
	"github.com/nerrad567/rsu-fleet-core/internal/rsu"
)

type published struct {
	topic   string
	payload []byte
}

// recordingPublisher captures publishes and fails for topics in failFor.
type recordingPublisher struct {
	mu      sync.Mutex
	msgs    []published
	failFor map[string]bool
}

func (p *recordingPublisher) PublishDefault(topic string, payload []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.failFor[topic] {
		return errors.New("broker unavailable")
	}
	p.msgs = append(p.msgs, published{topic: topic, payload: payload})
	return nil
}

type fixture struct {
	db         *sql.DB
	dispatcher *Dispatcher
	pub        *recordingPublisher
	rsuIDs     []int64
}

// newFixture registers devices ESN-7, ESN-8 and ESN-9.
func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()
	db := dbtest.Open(t)

	reg := rsu.NewRegistry(rsu.NewSQLiteRepository(db.DB))
	var ids []int64
	for _, esn := range []string{"ESN-7", "ESN-8", "ESN-9"} {
		d := &rsu.RSU{ESN: esn}
		if err := reg.Create(ctx, d); err != nil {
			t.Fatalf("Create(%s) error = %v", esn, err)
		}
		ids = append(ids, d.ID)
	}

	pub := &recordingPublisher{failFor: map[string]bool{}}
	return &fixture{
		db:         db.DB,
		dispatcher: NewDispatcher(NewSQLiteRepository(db.DB), pub),
		pub:        pub,
		rsuIDs:     ids,
	}
}

func configJob() Job {
	return Job{Kind: KindConfig, Name: "speed-limits", Content: json.RawMessage(`{"limit":60}`)}
}

func TestDispatch_FanOut(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	res, err := f.dispatcher.Dispatch(ctx, configJob(), f.rsuIDs)
	if err != nil {
		t.Fatalf("Dispatch() error = %v", err)
	}

	if len(res.Targets) != 3 {
		t.Fatalf("Targets = %d, want 3", len(res.Targets))
	}
	if res.Published != 3 || res.PublishFailed != 0 {
		t.Errorf("Published = %d, PublishFailed = %d, want 3, 0", res.Published, res.PublishFailed)
	}

	ids := map[string]bool{}
	for _, tg := range res.Targets {
		if !strings.HasPrefix(tg.ID, TargetIDPrefix) {
			t.Errorf("target id %q missing prefix", tg.ID)
		}
		ids[tg.ID] = true
	}
	if len(ids) != 3 {
		t.Errorf("correlation ids not distinct: %v", ids)
	}

	stored, err := f.dispatcher.ListTargets(ctx, res.Job.ID)
	if err != nil {
		t.Fatalf("ListTargets() error = %v", err)
	}
	if len(stored) != 3 {
		t.Fatalf("stored targets = %d, want 3", len(stored))
	}
	for _, tg := range stored {
		if tg.Status != StatusPending {
			t.Errorf("target %s status = %v, want pending", tg.ID, tg.Status)
		}
	}

	wantTopics := []string{
		"V2X/RSU/ESN-7/CONFIG/DOWN",
		"V2X/RSU/ESN-8/CONFIG/DOWN",
		"V2X/RSU/ESN-9/CONFIG/DOWN",
	}
	if len(f.pub.msgs) != len(wantTopics) {
		t.Fatalf("published %d messages, want %d", len(f.pub.msgs), len(wantTopics))
	}
	for i, msg := range f.pub.msgs {
		if msg.topic != wantTopics[i] {
			t.Errorf("publish %d topic = %q, want %q", i, msg.topic, wantTopics[i])
		}
		var push protocol.ConfigPush
		if err := json.Unmarshal(msg.payload, &push); err != nil {
			t.Fatalf("decoding payload: %v", err)
		}
		if push.ID != res.Targets[i].ID || push.Kind != "config" || string(push.Content) != `{"limit":60}` {
			t.Errorf("publish %d payload = %+v", i, push)
		}
	}
}

func TestDispatch_Broadcast(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	job := Job{Kind: KindLog, Content: json.RawMessage(`{"level":"debug"}`)}
	res, err := f.dispatcher.Dispatch(ctx, job, nil)
	if err != nil {
		t.Fatalf("Dispatch() error = %v", err)
	}

	if len(res.Targets) != 0 {
		t.Errorf("broadcast created %d targets", len(res.Targets))
	}
	if len(f.pub.msgs) != 1 || f.pub.msgs[0].topic != "V2X/RSU/LOG/DOWN" {
		t.Fatalf("published = %+v, want one message on V2X/RSU/LOG/DOWN", f.pub.msgs)
	}

	var push protocol.ConfigPush
	if err := json.Unmarshal(f.pub.msgs[0].payload, &push); err != nil {
		t.Fatalf("decoding payload: %v", err)
	}
	if push.ID != "" {
		t.Errorf("broadcast carries correlation id %q", push.ID)
	}

	var n int
	if err := f.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM delivery_targets").Scan(&n); err != nil {
		t.Fatalf("counting targets: %v", err)
	}
	if n != 0 {
		t.Errorf("delivery_targets rows = %d, want 0", n)
	}
}

func TestDispatch_UnknownTarget(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	_, err := f.dispatcher.Dispatch(ctx, configJob(), []int64{f.rsuIDs[0], 999})
	if !errors.Is(err, rsu.ErrRSUNotFound) {
		t.Fatalf("Dispatch() error = %v, want rsu.ErrRSUNotFound", err)
	}

	for _, table := range []string{"jobs", "delivery_targets"} {
		var n int
		if err := f.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM "+table).Scan(&n); err != nil {
			t.Fatalf("counting %s: %v", table, err)
		}
		if n != 0 {
			t.Errorf("%s rows = %d after rejected dispatch, want 0", table, n)
		}
	}
	if len(f.pub.msgs) != 0 {
		t.Errorf("rejected dispatch published %d messages", len(f.pub.msgs))
	}
}

func TestDispatch_Invalid(t *testing.T) {
	f := newFixture(t)

	tests := []struct {
		name string
		job  Job
	}{
		{"unknown kind", Job{Kind: "firmware", Content: json.RawMessage(`{}`)}},
		{"empty content", Job{Kind: KindConfig}},
		{"malformed content", Job{Kind: KindConfig, Content: json.RawMessage(`{`)}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.dispatcher.Dispatch(context.Background(), tt.job, f.rsuIDs)
			if !errors.Is(err, ErrInvalidJob) {
				t.Errorf("Dispatch() error = %v, want ErrInvalidJob", err)
			}
		})
	}
}

func TestDispatch_PublishFailureLeavesPending(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.pub.failFor["V2X/RSU/ESN-8/CONFIG/DOWN"] = true

	res, err := f.dispatcher.Dispatch(ctx, configJob(), f.rsuIDs)
	if err != nil {
		t.Fatalf("Dispatch() error = %v", err)
	}
	if res.Published != 2 || res.PublishFailed != 1 {
		t.Errorf("Published = %d, PublishFailed = %d, want 2, 1", res.Published, res.PublishFailed)
	}

	stored, err := f.dispatcher.ListTargets(ctx, res.Job.ID)
	if err != nil {
		t.Fatalf("ListTargets() error = %v", err)
	}
	if len(stored) != 3 {
		t.Errorf("stored targets = %d, want 3", len(stored))
	}
	if got := f.dispatcher.Stats().PublishFailed; got != 1 {
		t.Errorf("Stats().PublishFailed = %d, want 1", got)
	}
}

func TestDispatch_MngStoresSettings(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	first := Job{Kind: KindMng, Content: json.RawMessage(`{"reboot":false}`)}
	if _, err := f.dispatcher.Dispatch(ctx, first, f.rsuIDs[:1]); err != nil {
		t.Fatalf("Dispatch() error = %v", err)
	}
	second := Job{Kind: KindMng, Content: json.RawMessage(`{"reboot":true}`)}
	if _, err := f.dispatcher.Dispatch(ctx, second, f.rsuIDs[:1]); err != nil {
		t.Fatalf("Dispatch() error = %v", err)
	}

	var settings string
	err := f.db.QueryRowContext(ctx, "SELECT settings FROM rsu_mng WHERE rsu_id = ?", f.rsuIDs[0]).Scan(&settings)
	if err != nil {
		t.Fatalf("reading rsu_mng: %v", err)
	}
	if settings != `{"reboot":true}` {
		t.Errorf("settings = %s, want latest job content", settings)
	}
	if f.pub.msgs[0].topic != "V2X/RSU/ESN-7/MNG/DOWN" {
		t.Errorf("topic = %q, want MNG downlink", f.pub.msgs[0].topic)
	}
}

func TestDispatch_DuplicateIDsCollapse(t *testing.T) {
	f := newFixture(t)

	res, err := f.dispatcher.Dispatch(context.Background(), configJob(), []int64{f.rsuIDs[0], f.rsuIDs[0]})
	if err != nil {
		t.Fatalf("Dispatch() error = %v", err)
	}
	if len(res.Targets) != 1 {
		t.Errorf("Targets = %d, want 1", len(res.Targets))
	}
}

func TestGetJob(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	res, err := f.dispatcher.Dispatch(ctx, configJob(), f.rsuIDs)
	if err != nil {
		t.Fatalf("Dispatch() error = %v", err)
	}

	job, err := f.dispatcher.GetJob(ctx, res.Job.ID)
	if err != nil {
		t.Fatalf("GetJob() error = %v", err)
	}
	if job.Kind != KindConfig || job.Name != "speed-limits" || string(job.Content) != `{"limit":60}` {
		t.Errorf("GetJob() = %+v", job)
	}

	if _, err := f.dispatcher.GetJob(ctx, 999); !errors.Is(err, ErrJobNotFound) {
		t.Errorf("GetJob(missing) error = %v, want ErrJobNotFound", err)
	}
	if _, err := f.dispatcher.ListTargets(ctx, 999); !errors.Is(err, ErrJobNotFound) {
		t.Errorf("ListTargets(missing) error = %v, want ErrJobNotFound", err)
	}
}

func TestKind_Segment(t *testing.T) {
	tests := []struct {
		kind Kind
		want string
	}{
		{KindConfig, "CONFIG"},
		{KindLog, "LOG"},
		{KindMng, "MNG"},
	}
	for _, tt := range tests {
		t.Run(string(tt.kind), func(t *testing.T) {
			if got := tt.kind.Segment(); got != tt.want {
				t.Errorf("Segment() = %q, want %q", got, tt.want)
			}
		})
	}
}
