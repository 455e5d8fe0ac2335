// Package dispatch delivers config, log-shipping and management jobs to
// devices and correlates their acknowledgements.
//
// Each dispatch records a Job and one Target per addressed device. Every
// Target gets a fresh correlation id (dt-<uuid>) which is the only key a
// device's Ack is matched on. Targets start pending and move to delivered
// or failed when the Ack arrives. There is no retry: a target whose Ack
// never arrives stays pending.
//
// A dispatch with no targets is a broadcast. It publishes once to the
// kind's broadcast topic and records no targets, so nothing can be
// acknowledged against it.
package dispatch
