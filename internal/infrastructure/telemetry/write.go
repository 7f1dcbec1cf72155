package telemetry

import (
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// WriteDeviceStatus records a device status report.
//
// Called by the transport bridge for every inbound status message so
// connectivity and regulator activity can be charted over time.
// The write is non-blocking; data is batched and sent asynchronously.
//
// Parameters:
//   - deviceID: Unique identifier for the device (e.g., "hexa5chn-a1b2c3")
//   - online: Whether the device reported itself reachable
//   - signal: Wi-Fi signal strength in dBm (use 0 if not reported)
func (r *Recorder) WriteDeviceStatus(deviceID string, online bool, signal int) {
	if !r.IsConnected() {
		return
	}

	fields := map[string]interface{}{
		"online": online,
	}
	if signal != 0 {
		fields["signal_dbm"] = signal
	}

	point := write.NewPoint(
		"device_status",
		map[string]string{
			"device_id": deviceID,
		},
		fields,
		time.Now(),
	)

	r.writeAPI.WritePoint(point)
}

// WriteDeviceMetric writes a single device measurement.
//
// Parameters:
//   - deviceID: Device identifier
//   - measurement: The metric name (e.g., "regulator_speed", "channel_on_count")
//   - value: The numeric value to record
func (r *Recorder) WriteDeviceMetric(deviceID string, measurement string, value float64) {
	if !r.IsConnected() {
		return
	}

	point := write.NewPoint(
		"device_metrics",
		map[string]string{
			"device_id":   deviceID,
			"measurement": measurement,
		},
		map[string]interface{}{
			"value": value,
		},
		time.Now(),
	)

	r.writeAPI.WritePoint(point)
}

// WritePoint writes a custom point with full control over tags and fields.
//
// Use this for measurements that don't fit the helper methods.
func (r *Recorder) WritePoint(measurement string, tags map[string]string, fields map[string]interface{}) {
	if !r.IsConnected() {
		return
	}

	point := write.NewPoint(measurement, tags, fields, time.Now())
	r.writeAPI.WritePoint(point)
}
