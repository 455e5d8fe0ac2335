package rsu

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/nerrad567/rsu-fleet-core/internal/protocol"
)

// maxNameLength bounds operator-supplied device names.
const maxNameLength = 100

// RSU is a registered roadside unit.
type RSU struct {
	ID       int64             `json:"id"`
	ESN      string            `json:"esn"`
	Name     string            `json:"name"`
	Version  string            `json:"version"`
	Location protocol.Location `json:"location"`
	Status   int               `json:"status"`

	// Config is the operator-assigned configuration document.
	Config json.RawMessage `json:"config"`

	Online   bool    `json:"online"`
	ModelID  *int64  `json:"model_id,omitempty"`
	AreaCode *string `json:"area_code,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Validate checks the fields an operator may set.
func (r *RSU) Validate() error {
	if err := protocol.CheckSegment("esn", r.ESN); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidRSU, err)
	}
	if len(r.Name) > maxNameLength {
		return fmt.Errorf("%w: name exceeds %d characters", ErrInvalidRSU, maxNameLength)
	}
	if err := r.Location.Validate(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidRSU, err)
	}
	if len(r.Config) > 0 && !json.Valid(r.Config) {
		return fmt.Errorf("%w: config is not valid JSON", ErrInvalidRSU)
	}
	return nil
}

// Tmp is a provisional device: it has reported its identity but an operator
// has not yet promoted it into the registry.
type Tmp struct {
	ID        int64             `json:"id"`
	ESN       string            `json:"esn"`
	Name      string            `json:"name"`
	Version   string            `json:"version"`
	Location  protocol.Location `json:"location"`
	Status    int               `json:"status"`
	CreatedAt time.Time         `json:"created_at"`
	UpdatedAt time.Time         `json:"updated_at"`
}

// PromoteRequest carries the operator-chosen attributes of a promoted device.
// An empty Name keeps the self-reported one.
type PromoteRequest struct {
	Name     string  `json:"name"`
	AreaCode *string `json:"area_code,omitempty"`
	ModelID  *int64  `json:"model_id,omitempty"`
}

// Edge is an edge node relaying part of the fleet.
type Edge struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	IP        string    `json:"ip"`
	AreaCode  string    `json:"area_code"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// EdgeRSU is a device as last reported by the edge node that owns it.
type EdgeRSU struct {
	ID        int64             `json:"id"`
	EdgeID    int64             `json:"edge_id"`
	ESN       string            `json:"esn"`
	Name      string            `json:"name"`
	Version   string            `json:"version"`
	Location  protocol.Location `json:"location"`
	Status    int               `json:"status"`
	Online    bool              `json:"online"`
	UpdatedAt time.Time         `json:"updated_at"`
}

// EdgeRSUFromMessage converts a synced device to its stored form.
func EdgeRSUFromMessage(m protocol.EdgeRSU) EdgeRSU {
	return EdgeRSU{
		ESN:      m.ESN,
		Name:     m.Name,
		Version:  m.Version,
		Location: m.Location,
		Status:   m.Status,
		Online:   m.Online,
	}
}

// OutcomeKind says what an identity report did to the registry.
type OutcomeKind string

const (
	// OutcomeUpdated means a registered device was updated in place.
	OutcomeUpdated OutcomeKind = "updated"

	// OutcomeProvisional means a new provisional device was created.
	OutcomeProvisional OutcomeKind = "provisional-created"

	// OutcomeDuplicate means a provisional device already existed and the
	// report was dropped.
	OutcomeDuplicate OutcomeKind = "duplicate"
)

// Outcome is the result of ReportIdentity. ID is the device id for
// OutcomeUpdated, the provisional id for OutcomeProvisional, and zero for
// OutcomeDuplicate.
type Outcome struct {
	Kind OutcomeKind
	ID   int64
}
