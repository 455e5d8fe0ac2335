package protocol

import (
	"encoding/json"
	"errors"
	"testing"
)

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		msg     Message
		wantErr bool
	}{
		{"identity ok", IdentityReport{ESN: "E1", Location: Location{Lon: 116.3, Lat: 39.9}}, false},
		{"identity missing esn", IdentityReport{}, true},
		{"identity bad location", IdentityReport{ESN: "E1", Location: Location{Lon: 200}}, true},
		{"heartbeat ok", Heartbeat{ESN: "E1"}, false},
		{"heartbeat missing esn", Heartbeat{}, true},
		{"running info missing esn", RunningInfo{}, true},
		{"ack ok with error code", Ack{ID: "dt-1", ErrorCode: 5}, false},
		{"ack missing id", Ack{ErrorCode: 0}, true},
		{"query response ok", QueryResponse{ID: "qr-1", Data: json.RawMessage(`{"cpu":10}`)}, false},
		{"query response no data", QueryResponse{ID: "qr-1"}, true},
		{"query response bad json", QueryResponse{ID: "qr-1", Data: json.RawMessage(`{`)}, true},
		{"edge register ok", EdgeRegister{Name: "edge-a"}, false},
		{"edge register no name", EdgeRegister{IP: "10.0.0.1"}, true},
		{"edge heartbeat no id", EdgeHeartbeat{}, true},
		{"edge sync empty fleet ok", EdgeSync{EdgeID: 1}, false},
		{"edge sync duplicate esn", EdgeSync{EdgeID: 1, RSUs: []EdgeRSU{{ESN: "A"}, {ESN: "A"}}}, true},
		{"edge sync missing esn", EdgeSync{EdgeID: 1, RSUs: []EdgeRSU{{Name: "x"}}}, true},
		{"edge location ok", EdgeLocation{EdgeID: 1, ESN: "A"}, false},
		{"edge location bad lat", EdgeLocation{EdgeID: 1, ESN: "A", Location: Location{Lat: -91}}, true},
		{"edge register reply ok", EdgeRegisterReply{ID: 3, Name: "edge-a"}, false},
		{"edge register reply no id", EdgeRegisterReply{Name: "edge-a"}, true},
		{"identity esn with separator", IdentityReport{ESN: "x/y"}, true},
		{"identity esn with single-level wildcard", IdentityReport{ESN: "x/+"}, true},
		{"identity esn with multi-level wildcard", IdentityReport{ESN: "#"}, true},
		{"identity esn with NUL", IdentityReport{ESN: "E\x001"}, true},
		{"heartbeat esn with wildcard", Heartbeat{ESN: "+"}, true},
		{"running info esn with separator", RunningInfo{ESN: "a/b"}, true},
		{"edge register name with wildcard", EdgeRegister{Name: "edge/#"}, true},
		{"edge sync esn with wildcard", EdgeSync{EdgeID: 1, RSUs: []EdgeRSU{{ESN: "A+"}}}, true},
		{"edge location esn with separator", EdgeLocation{EdgeID: 1, ESN: "A/B"}, true},
		{"edge register reply name with wildcard", EdgeRegisterReply{ID: 3, Name: "#"}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.msg.Validate()
			if (err != nil) != tt.wantErr {
				t.Fatalf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, ErrInvalidMessage) {
				t.Errorf("Validate() error = %v, want wrapped ErrInvalidMessage", err)
			}
		})
	}
}

func TestWireNames(t *testing.T) {
	var ack Ack
	if err := json.Unmarshal([]byte(`{"id":"dt-abc","errorCode":2}`), &ack); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}
	if ack.ID != "dt-abc" || ack.ErrorCode != 2 {
		t.Errorf("ack = %+v", ack)
	}

	var sync EdgeSync
	payload := `{"edgeId":4,"rsus":[{"esn":"A","location":{"lon":1.5,"lat":2.5},"online":true}]}`
	if err := json.Unmarshal([]byte(payload), &sync); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}
	if sync.EdgeID != 4 || len(sync.RSUs) != 1 || sync.RSUs[0].Location.Lat != 2.5 || !sync.RSUs[0].Online {
		t.Errorf("sync = %+v", sync)
	}
}

func TestCheckSegment(t *testing.T) {
	tests := []struct {
		in      string
		wantErr bool
	}{
		{"ESN0001", false},
		{"edge-north.1", false},
		{"", true},
		{"a/b", true},
		{"a+", true},
		{"#", true},
		{"a\x00b", true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			err := CheckSegment("esn", tt.in)
			if (err != nil) != tt.wantErr {
				t.Errorf("CheckSegment(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			}
		})
	}
}
