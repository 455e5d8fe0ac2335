package query

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/nerrad567/rsu-fleet-core/internal/dispatch"
)

var (
	// ErrQueryNotFound is returned when a query id does not exist.
	ErrQueryNotFound = errors.New("query: not found")

	// ErrInvalidQuery is returned when a request fails validation.
	ErrInvalidQuery = errors.New("query: invalid")
)

// Request asks a set of devices for data.
type Request struct {
	QueryType int     `json:"query_type"`
	TimeType  int     `json:"time_type"`
	RSUIDs    []int64 `json:"rsu_ids"`
}

// Query is one fan-out request with its per-device placeholders.
type Query struct {
	ID        int64     `json:"id"`
	QueryType int       `json:"query_type"`
	TimeType  int       `json:"time_type"`
	CreatedAt time.Time `json:"created_at"`
	Results   []Result  `json:"results"`
}

// Result is the placeholder for one device's answer.
// Status uses the same pending/delivered/failed states as job targets.
type Result struct {
	// ID is the correlation id echoed by the device's QueryResponse.
	ID        string          `json:"id"`
	QueryID   int64           `json:"query_id"`
	RSUID     int64           `json:"rsu_id"`
	ESN       string          `json:"esn"`
	Status    dispatch.Status `json:"status"`
	Data      []Data          `json:"data"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// Data is one response payload attached to a Result.
type Data struct {
	ID        int64           `json:"id"`
	Data      json.RawMessage `json:"data"`
	CreatedAt time.Time       `json:"created_at"`
}

// Stats is a point-in-time snapshot of gatherer counters.
type Stats struct {
	Queries          uint64 `json:"queries"`
	Published        uint64 `json:"published"`
	PublishFailed    uint64 `json:"publish_failed"`
	ResponsesMatched uint64 `json:"responses_matched"`
	ResponsesUnknown uint64 `json:"responses_unknown"`
}
