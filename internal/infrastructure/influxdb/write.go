package influxdb

import (
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// Measurement names.
const (
	measurementOverride = "override_event"
	measurementReceiver = "receiver_stats"
)

// OverridePoint describes one override lifecycle event.
type OverridePoint struct {
	DeviceID        string
	Event           string // applied, reverted, cancelled
	Action          string // effective action
	Source          string
	DurationMinutes int
	Time            time.Time
}

// ReceiverPoint is a snapshot of the LAN receiver counters.
type ReceiverPoint struct {
	DeviceID  string
	Accepted  int64
	Rejected  int64
	Discovery int64
	Time      time.Time
}

// WriteOverrideEvent queues an override event point. Dropped silently
// when not connected.
//
// Example:
//
//	client.WriteOverrideEvent(influxdb.OverridePoint{
//	    DeviceID: "kids-ipad", Event: "applied", Action: "disableAllLimits",
//	    DurationMinutes: 15, Time: time.Now(),
//	})
func (c *Client) WriteOverrideEvent(p OverridePoint) {
	if !c.IsConnected() {
		return
	}
	c.writeAPI.WritePoint(overridePoint(p))
}

// WriteReceiverStats queues a receiver counters point.
func (c *Client) WriteReceiverStats(p ReceiverPoint) {
	if !c.IsConnected() {
		return
	}
	c.writeAPI.WritePoint(receiverPoint(p))
}

func overridePoint(p OverridePoint) *write.Point {
	return write.NewPoint(measurementOverride,
		map[string]string{
			"device_id": p.DeviceID,
			"event":     p.Event,
			"action":    p.Action,
			"source":    p.Source,
		},
		map[string]interface{}{
			"duration_minutes": p.DurationMinutes,
		},
		p.Time)
}

func receiverPoint(p ReceiverPoint) *write.Point {
	return write.NewPoint(measurementReceiver,
		map[string]string{"device_id": p.DeviceID},
		map[string]interface{}{
			"accepted":  p.Accepted,
			"rejected":  p.Rejected,
			"discovery": p.Discovery,
		},
		p.Time)
}
