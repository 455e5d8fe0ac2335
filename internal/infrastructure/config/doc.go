// Package config loads the node configuration for rsufleet.
//
// Load applies three layers in order: built-in defaults, the YAML file,
// then RSUFLEET_* environment variables. Validate runs last and rejects
// settings the node cannot start with, such as edge mode without an
// upstream broker or a zero liveness TTL.
//
//	cfg, err := config.Load("configs/config.yaml")
//	if err != nil {
//	    return fmt.Errorf("loading config: %w", err)
//	}
//	if cfg.IsEdge() {
//	    // connect to cfg.Upstream as well
//	}
//
// Secrets (MQTT password, InfluxDB token, Redis password) should come from
// the environment rather than the file. The file is read once at startup.
package config
