// Copyright 2025 Tom Barlow
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

package lifecycle

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// lifecycleOperations counts completed workflows by outcome
	lifecycleOperations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "serverctl_lifecycle_operations_total",
			Help: "Total lifecycle operations by operation and outcome",
		},
		[]string{"operation", "outcome"},
	)

	// lifecycleDuration tracks wall time per workflow
	lifecycleDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "serverctl_lifecycle_duration_seconds",
			Help:    "Lifecycle operation duration by operation",
			Buckets: []float64{0.5, 1, 5, 15, 30, 60, 120, 300},
		},
		[]string{"operation"},
	)

	// processRuns counts script executions
	processRuns = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "serverctl_process_runs_total",
			Help: "Total control script runs by script and result",
		},
		[]string{"script", "result"},
	)

	// probeRounds counts connectivity probe rounds
	probeRounds = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "serverctl_probe_rounds_total",
			Help: "Total connectivity probe rounds by result",
		},
		[]string{"result"},
	)
)

// recordOperation records a finished workflow
func recordOperation(operation, outcome string, elapsed time.Duration) {
	lifecycleOperations.WithLabelValues(operation, outcome).Inc()
	lifecycleDuration.WithLabelValues(operation).Observe(elapsed.Seconds())
}

// recordProcessRun increments the script run counter
func recordProcessRun(script, result string) {
	processRuns.WithLabelValues(script, result).Inc()
}

// recordProbeRound increments the probe round counter
func recordProbeRound(result string) {
	probeRounds.WithLabelValues(result).Inc()
}
