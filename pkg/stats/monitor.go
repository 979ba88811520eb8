// Copyright 2026 LiveKit, Inc.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package stats

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/livekit/sensorcap/pkg/types"
)

// Monitor collects frame and recording metrics. A nil Monitor is valid and records nothing.
type Monitor struct {
	framesArrived  *prometheus.CounterVec
	framesDropped  *prometheus.CounterVec
	framesWritten  *prometheus.CounterVec
	writeFailures  *prometheus.CounterVec
	slowSends      *prometheus.CounterVec
	sendTime       *prometheus.HistogramVec
	activeSensors  prometheus.Gauge
	lifecycleTime  *prometheus.HistogramVec
	uploadsCounter *prometheus.CounterVec
	uploadsTime    *prometheus.HistogramVec
	backupCounter  prometheus.Counter
}

func NewMonitor(nodeID string, reg prometheus.Registerer) *Monitor {
	constantLabels := prometheus.Labels{"node_id": nodeID}

	m := &Monitor{
		framesArrived: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace:   "livekit",
			Subsystem:   "sensorcap",
			Name:        "frames_arrived",
			Help:        "Number of frames published to the latest frame cache",
			ConstLabels: constantLabels,
		}, []string{"sensor"}),
		framesDropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace:   "livekit",
			Subsystem:   "sensorcap",
			Name:        "frames_dropped",
			Help:        "Number of frames dropped before publishing or recording",
			ConstLabels: constantLabels,
		}, []string{"sensor", "reason"}), // reason: inactive, stale
		framesWritten: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace:   "livekit",
			Subsystem:   "sensorcap",
			Name:        "frames_written",
			Help:        "Number of raw frames written by recorder sinks",
			ConstLabels: constantLabels,
		}, []string{"sensor"}),
		writeFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace:   "livekit",
			Subsystem:   "sensorcap",
			Name:        "write_failures",
			Help:        "Number of frames skipped because the raw file could not be written",
			ConstLabels: constantLabels,
		}, []string{"sensor"}),
		slowSends: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace:   "livekit",
			Subsystem:   "sensorcap",
			Name:        "slow_sends",
			Help:        "Number of recorder sends above the slow send threshold",
			ConstLabels: constantLabels,
		}, []string{"sensor"}),
		sendTime: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace:   "livekit",
			Subsystem:   "sensorcap",
			Name:        "recorder_send_time_ms",
			Help:        "A histogram of recorder send latencies in milliseconds.",
			Buckets:     []float64{0.1, 0.5, 1, 2, 5, 10, 20, 50, 100, 200},
			ConstLabels: constantLabels,
		}, []string{"sensor"}),
		activeSensors: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace:   "livekit",
			Subsystem:   "sensorcap",
			Name:        "active_sensors",
			Help:        "Number of sensors with a running frame reader",
			ConstLabels: constantLabels,
		}),
		lifecycleTime: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace:   "livekit",
			Subsystem:   "sensorcap",
			Name:        "lifecycle_time_ms",
			Help:        "A histogram of source group start and stop latencies in milliseconds.",
			Buckets:     []float64{10, 50, 100, 250, 500, 1000, 2500, 5000, 10000},
			ConstLabels: constantLabels,
		}, []string{"op", "status"}),
		uploadsCounter: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace:   "livekit",
			Subsystem:   "sensorcap",
			Name:        "uploads",
			Help:        "Number of uploads with type and status labels",
			ConstLabels: constantLabels,
		}, []string{"type", "status"}), // type: archive, descriptor; status: success, failure
		uploadsTime: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace:   "livekit",
			Subsystem:   "sensorcap",
			Name:        "upload_response_time_ms",
			Help:        "A histogram of latencies for upload requests in milliseconds.",
			Buckets:     []float64{10, 20, 50, 100, 200, 500, 1000, 2000, 5000, 10000, 15000, 20000, 30000},
			ConstLabels: constantLabels,
		}, []string{"type", "status"}),
		backupCounter: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   "livekit",
			Subsystem:   "sensorcap",
			Name:        "backup_storage_writes",
			Help:        "number of writes to backup storage location",
			ConstLabels: constantLabels,
		}),
	}

	reg.MustRegister(
		m.framesArrived, m.framesDropped, m.framesWritten, m.writeFailures,
		m.slowSends, m.sendTime, m.activeSensors, m.lifecycleTime,
		m.uploadsCounter, m.uploadsTime, m.backupCounter,
	)

	return m
}

func (m *Monitor) IncFramesArrived(sensorType types.SensorType) {
	if m == nil {
		return
	}
	m.framesArrived.With(prometheus.Labels{"sensor": sensorType.String()}).Inc()
}

func (m *Monitor) IncFramesDropped(sensorType types.SensorType, reason string) {
	if m == nil {
		return
	}
	m.framesDropped.With(prometheus.Labels{"sensor": sensorType.String(), "reason": reason}).Inc()
}

func (m *Monitor) IncFramesWritten(sensor string) {
	if m == nil {
		return
	}
	m.framesWritten.With(prometheus.Labels{"sensor": sensor}).Inc()
}

func (m *Monitor) IncWriteFailures(sensor string) {
	if m == nil {
		return
	}
	m.writeFailures.With(prometheus.Labels{"sensor": sensor}).Inc()
}

// ObserveSend records a recorder send and reports whether it was slow.
func (m *Monitor) ObserveSend(sensor string, elapsed, threshold time.Duration) bool {
	slow := elapsed > threshold
	if m == nil {
		return slow
	}

	labels := prometheus.Labels{"sensor": sensor}
	m.sendTime.With(labels).Observe(float64(elapsed) / float64(time.Millisecond))
	if slow {
		m.slowSends.With(labels).Inc()
	}
	return slow
}

func (m *Monitor) SetActiveSensors(n int) {
	if m == nil {
		return
	}
	m.activeSensors.Set(float64(n))
}

func (m *Monitor) ObserveLifecycle(op string, elapsed time.Duration, err error) {
	if m == nil {
		return
	}
	status := "success"
	if err != nil {
		status = "failure"
	}
	m.lifecycleTime.With(prometheus.Labels{"op": op, "status": status}).
		Observe(float64(elapsed) / float64(time.Millisecond))
}
