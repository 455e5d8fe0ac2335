// Package uplink reports an edge node's fleet to its upstream cloud.
//
// An Agent owns the node's upstream identity. It registers by name on
// V2X/EDGE/REGISTER/UP and learns its assigned id from the reply on
// V2X/EDGE/<name>/REGISTER/DOWN. Once registered it heartbeats, pushes a
// full fleet snapshot on each sync, and forwards location changes of its
// own devices as they are reported.
//
// Until a reply arrives every heartbeat re-sends the registration. Each
// sync also re-registers so a cloud that expired this edge hands out a
// fresh id on the next cycle.
package uplink
