package influxdb

import (
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// Measurement names.
const (
	measurementRunningInfo = "rsu_running_info"
	measurementFleet       = "fleet_liveness"
)

// WriteRunningInfo records one resource-usage report from a device.
// Non-numeric fields are dropped. The write is non-blocking.
//
// Example:
//
//	client.WriteRunningInfo("ESN0001", map[string]any{"cpu": 12.5, "mem": 40.0}, time.Now())
func (c *Client) WriteRunningInfo(esn string, fields map[string]any, ts time.Time) {
	if !c.IsConnected() {
		return
	}
	if p := runningInfoPoint(esn, fields, ts); p != nil {
		c.writeAPI.WritePoint(p)
	}
}

// WriteFleetLiveness records how many devices a sweep found online and how
// many it marked offline.
func (c *Client) WriteFleetLiveness(nodeID string, online, markedOffline int, ts time.Time) {
	if !c.IsConnected() {
		return
	}
	c.writeAPI.WritePoint(fleetLivenessPoint(nodeID, online, markedOffline, ts))
}

func runningInfoPoint(esn string, fields map[string]any, ts time.Time) *write.Point {
	numeric := make(map[string]any, len(fields))
	for k, v := range fields {
		switch n := v.(type) {
		case float64, float32, int, int64, int32, uint, uint64, uint32:
			numeric[k] = n
		}
	}
	if len(numeric) == 0 {
		return nil
	}
	return write.NewPoint(measurementRunningInfo, map[string]string{"esn": esn}, numeric, ts)
}

func fleetLivenessPoint(nodeID string, online, markedOffline int, ts time.Time) *write.Point {
	return write.NewPoint(
		measurementFleet,
		map[string]string{"node": nodeID},
		map[string]any{
			"online":         online,
			"marked_offline": markedOffline,
		},
		ts,
	)
}
