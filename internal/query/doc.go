// Package query fans a data request out to a set of devices and gathers
// their answers.
//
// CreateQuery writes one Query and one placeholder Result per device, each
// with its own correlation id (qr-<uuid>), then publishes one QueryRequest
// per device. A device's QueryResponse is matched on that id alone: its
// data is attached to exactly one placeholder, which is marked delivered.
// Responses for unknown ids are ignored.
//
// There is no completeness tracking. Get returns every placeholder with
// whatever data has arrived so far.
package query
