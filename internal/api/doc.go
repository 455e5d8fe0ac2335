// Package api implements the operator HTTP API for the fleet core.
//
// This package provides:
//   - Device registry CRUD and provisional-device promotion
//   - Edge node listing with each edge's reported sub-fleet
//   - Job dispatch and per-device delivery status
//   - Fan-out queries and their gathered results
//   - Health and metrics endpoints
//
// # Architecture
//
// The API is the synchronous boundary of the fleet core. Writes go through
// the same rsu.Registry, dispatch.Dispatcher and query.Gatherer the MQTT
// handlers use, so a job created here is published to devices before the
// response is written.
//
// Errors use a single JSON envelope {"status", "code", "message"}. Not-found
// maps to 404, duplicates to 409, validation failures to 400.
package api
