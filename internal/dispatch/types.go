package dispatch

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/nerrad567/rsu-fleet-core/internal/infrastructure/mqtt"
)

// Kind identifies what a job carries.
type Kind string

const (
	KindConfig Kind = "config"
	KindLog    Kind = "log"
	KindMng    Kind = "mng"
)

// Segment returns the topic segment jobs of this kind travel on.
func (k Kind) Segment() string {
	switch k {
	case KindLog:
		return mqtt.SegmentLog
	case KindMng:
		return mqtt.SegmentMng
	default:
		return mqtt.SegmentConfig
	}
}

// Valid reports whether k is a known kind.
func (k Kind) Valid() bool {
	switch k {
	case KindConfig, KindLog, KindMng:
		return true
	}
	return false
}

// Job is one config, log or management document sent to a set of devices.
type Job struct {
	ID        int64           `json:"id"`
	Kind      Kind            `json:"kind"`
	Name      string          `json:"name"`
	Content   json.RawMessage `json:"content"`
	CreatedAt time.Time       `json:"created_at"`
}

// Validate checks kind and content.
func (j *Job) Validate() error {
	if !j.Kind.Valid() {
		return fmt.Errorf("%w: unknown kind %q", ErrInvalidJob, j.Kind)
	}
	if len(j.Content) == 0 || !json.Valid(j.Content) {
		return fmt.Errorf("%w: content must be a JSON document", ErrInvalidJob)
	}
	return nil
}

// Status is the delivery state of a Target.
type Status int

const (
	StatusPending   Status = 0
	StatusDelivered Status = 1
	StatusFailed    Status = 2
)

func (s Status) String() string {
	switch s {
	case StatusPending:
		return "pending"
	case StatusDelivered:
		return "delivered"
	case StatusFailed:
		return "failed"
	default:
		return fmt.Sprintf("status(%d)", int(s))
	}
}

// StatusForCode maps an ack error code to a delivery state.
func StatusForCode(code int) Status {
	if code == 0 {
		return StatusDelivered
	}
	return StatusFailed
}

// Target is the delivery record of one job to one device.
type Target struct {
	// ID is the correlation id echoed by the device's Ack.
	ID        string    `json:"id"`
	JobID     int64     `json:"job_id"`
	RSUID     int64     `json:"rsu_id"`
	ESN       string    `json:"esn"`
	Status    Status    `json:"status"`
	ErrorCode int       `json:"error_code"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Result describes one Dispatch call.
type Result struct {
	Job     Job      `json:"job"`
	Targets []Target `json:"targets"`

	// Published counts messages the transport accepted.
	Published int `json:"published"`

	// PublishFailed counts messages the transport rejected. Their targets
	// stay pending.
	PublishFailed int `json:"publish_failed"`
}

// Stats is a point-in-time snapshot of dispatcher counters.
type Stats struct {
	Jobs          uint64 `json:"jobs"`
	Targets       uint64 `json:"targets"`
	Published     uint64 `json:"published"`
	PublishFailed uint64 `json:"publish_failed"`
	AcksMatched   uint64 `json:"acks_matched"`
	AcksUnknown   uint64 `json:"acks_unknown"`
}
