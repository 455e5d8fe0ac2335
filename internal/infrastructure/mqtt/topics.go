package mqtt

import "fmt"

// TopicPrefix is the root of every fleet topic.
//
// Uplink topics (device or edge to this node) end in /UP or /ACK, downlink
// topics end in /DOWN. Device-addressed topics carry the hardware serial
// (ESN) as the third segment:
//
//	V2X/RSU/<esn>/CONFIG/DOWN   config push to one device
//	V2X/RSU/CONFIG/DOWN         config push to every device
//	V2X/RSU/<esn>/CONFIG/ACK    device acknowledgement
const TopicPrefix = "V2X"

// Job segments used in per-device downlink and ack topics.
const (
	SegmentConfig = "CONFIG"
	SegmentLog    = "LOG"
	SegmentMng    = "MNG"
	SegmentQuery  = "QUERY"
)

// AckSegments lists every segment a device acknowledges on.
var AckSegments = []string{SegmentConfig, SegmentLog, SegmentMng, SegmentQuery}

// Topics provides builders for fleet MQTT topics.
// Using these helpers keeps publishers and the router on the same scheme.
//
//	topic := mqtt.Topics{}.RSUDown("ESN0001", mqtt.SegmentConfig)
//	// Returns: "V2X/RSU/ESN0001/CONFIG/DOWN"
type Topics struct{}

// =============================================================================
// Device uplink
// =============================================================================

// RSUInfoUp is where devices publish identity reports.
func (Topics) RSUInfoUp() string {
	return TopicPrefix + "/RSU/INFO/UP"
}

// RSUHeartbeatUp is where devices publish heartbeats.
func (Topics) RSUHeartbeatUp() string {
	return TopicPrefix + "/RSU/HB/UP"
}

// RSURunningInfoUp is where devices publish periodic resource usage.
func (Topics) RSURunningInfoUp() string {
	return TopicPrefix + "/RSU/RunningInfo/UP"
}

// RSUAck returns the ack topic for one device and job segment.
//
// Example: V2X/RSU/ESN0001/MNG/ACK
func (Topics) RSUAck(esn, segment string) string {
	return fmt.Sprintf("%s/RSU/%s/%s/ACK", TopicPrefix, esn, segment)
}

// AllRSUAcks matches acks from every device for one job segment.
func (Topics) AllRSUAcks(segment string) string {
	return fmt.Sprintf("%s/RSU/+/%s/ACK", TopicPrefix, segment)
}

// RSUQueryUp returns the topic a device answers a query on.
func (Topics) RSUQueryUp(esn string) string {
	return fmt.Sprintf("%s/RSU/%s/QUERY/UP", TopicPrefix, esn)
}

// AllRSUQueryUps matches query responses from every device.
func (Topics) AllRSUQueryUps() string {
	return TopicPrefix + "/RSU/+/QUERY/UP"
}

// =============================================================================
// Device downlink
// =============================================================================

// RSUDown returns the per-device downlink topic for a job segment.
//
// Example: V2X/RSU/ESN0001/CONFIG/DOWN
func (Topics) RSUDown(esn, segment string) string {
	return fmt.Sprintf("%s/RSU/%s/%s/DOWN", TopicPrefix, esn, segment)
}

// BroadcastDown returns the downlink topic every device subscribes to.
//
// Example: V2X/RSU/CONFIG/DOWN
func (Topics) BroadcastDown(segment string) string {
	return fmt.Sprintf("%s/RSU/%s/DOWN", TopicPrefix, segment)
}

// RSUInfoDown returns the topic a registration ack is sent on.
func (Topics) RSUInfoDown(esn string) string {
	return fmt.Sprintf("%s/RSU/%s/INFO/DOWN", TopicPrefix, esn)
}

// =============================================================================
// Edge nodes
// =============================================================================

// EdgeRegisterUp is where edge nodes announce themselves.
func (Topics) EdgeRegisterUp() string {
	return TopicPrefix + "/EDGE/REGISTER/UP"
}

// EdgeRegisterDown returns the reply topic carrying an edge node's assigned id.
func (Topics) EdgeRegisterDown(name string) string {
	return fmt.Sprintf("%s/EDGE/%s/REGISTER/DOWN", TopicPrefix, name)
}

// EdgeHeartbeatUp is where edge nodes publish heartbeats.
func (Topics) EdgeHeartbeatUp() string {
	return TopicPrefix + "/EDGE/HB/UP"
}

// EdgeSyncUp is where edge nodes publish their full sub-fleet.
func (Topics) EdgeSyncUp() string {
	return TopicPrefix + "/EDGE/RSU/SYNC/UP"
}

// EdgeLocationUp is where edge nodes publish a single device's new location.
func (Topics) EdgeLocationUp() string {
	return TopicPrefix + "/EDGE/RSU/LOCATION/UP"
}

// =============================================================================
// This node
// =============================================================================

// NodeHeartbeat returns the topic this node publishes its own heartbeat on.
//
// Example: V2X/NODE/cloud-001/HB
func (Topics) NodeHeartbeat(nodeID string) string {
	return fmt.Sprintf("%s/NODE/%s/HB", TopicPrefix, nodeID)
}

// NodeStatus returns the retained online/offline status topic for a client.
// It doubles as the Last Will topic.
func (Topics) NodeStatus(clientID string) string {
	return fmt.Sprintf("%s/NODE/%s/STATUS", TopicPrefix, clientID)
}
