// Package influxdb records RSU telemetry in InfluxDB.
//
// Devices publish periodic resource-usage reports (CPU, memory, disk and
// similar gauges). Those are written here as the rsu_running_info
// measurement tagged by ESN; the liveness sweeper adds a fleet_liveness
// point per sweep. The relational registry never stores them.
//
// Writes are non-blocking and batched according to the batch_size and
// flush_interval settings. Asynchronous write failures are reported through
// SetOnError.
//
// # Usage
//
//	client, err := influxdb.Connect(ctx, cfg.InfluxDB)
//	if errors.Is(err, influxdb.ErrDisabled) {
//	    // telemetry off
//	}
//	defer client.Close()
//
//	client.WriteRunningInfo("ESN0001", map[string]any{"cpu": 12.5}, time.Now())
package influxdb
