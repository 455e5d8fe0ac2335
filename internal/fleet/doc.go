// Package fleet binds inbound bus topics to the components that handle them.
//
// Handlers.Register installs one typed route per uplink topic on a
// router.Router:
//
//	V2X/RSU/INFO/UP            identity report   -> registry, reply on V2X/RSU/<esn>/INFO/DOWN
//	V2X/RSU/HB/UP              heartbeat         -> liveness
//	V2X/RSU/RunningInfo/UP     running info      -> liveness, telemetry
//	V2X/RSU/+/<SEG>/ACK        ack               -> correlator
//	V2X/RSU/+/QUERY/UP         query response    -> gatherer
//	V2X/EDGE/REGISTER/UP       edge register     -> registry, reply on V2X/EDGE/<name>/REGISTER/DOWN
//	V2X/EDGE/HB/UP             edge heartbeat    -> liveness
//	V2X/EDGE/RSU/SYNC/UP       edge fleet sync   -> registry
//	V2X/EDGE/RSU/LOCATION/UP   edge location     -> registry
//
// Every handler runs synchronously on the transport's delivery goroutine.
// Conditions that are part of normal operation, such as a stale correlation
// id or a heartbeat from an edge that has expired, are logged and return
// nil; only real faults surface as router failures.
package fleet
