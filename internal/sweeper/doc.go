// Package sweeper runs the fleet's periodic background work.
//
// A Sweeper reconciles the registry against the liveness store:
//
//   - SweepRSUs marks online devices without a live entry offline. It never
//     marks a device online.
//   - SweepEdges deletes edge nodes without a live entry, together with
//     their sub-fleets. Deletion is terminal; a returning edge registers again.
//   - SweepTmps removes provisional devices older than a maximum age.
//
// A Heartbeater publishes this node's own liveness signal.
//
// A Scheduler runs named jobs on fixed intervals, independent of message
// handling, with a bounded number running at once.
package sweeper
