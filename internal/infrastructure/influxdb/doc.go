// Package influxdb records override activity in InfluxDB v2.
//
// Each applied, reverted or cancelled override becomes an override_event
// point tagged with device, event, action and source. The receiver's
// accepted/rejected/discovery counters are sampled into receiver_stats.
//
// Writes are non-blocking and batched (batch_size, flush_interval). Async
// write failures are reported through SetOnError.
//
//	client, err := influxdb.Connect(cfg.InfluxDB)
//	if errors.Is(err, influxdb.ErrDisabled) {
//	    // optional, carry on without it
//	}
package influxdb
