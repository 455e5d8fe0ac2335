// Package rsu is the device registry for the roadside unit fleet.
//
// It owns four kinds of record:
//
//   - RSU: a registered device, keyed by its unique ESN
//   - Tmp: a provisional device that reported in but has not been promoted
//   - Edge: an intermediate node that relays its own sub-fleet
//   - EdgeRSU: one device of an edge node's sub-fleet, replaced wholesale on sync
//
// Identity reports from the bus either update a registered device in place
// (last write wins) or create a provisional record. Promotion moves a
// provisional record into the registry in a single transaction and never
// produces a second device with the same ESN.
//
// Online state is written only on create, promote and SetOnline. Heartbeats
// refresh the liveness store, and the sweeper is the only thing that marks
// devices offline.
//
// Usage:
//
//	repo := rsu.NewSQLiteRepository(db.DB)
//	registry := rsu.NewRegistry(repo)
//	registry.SetLogger(log.Component("registry"))
//
//	outcome, err := registry.ReportIdentity(ctx, report)
package rsu
