/*
	Copyright NetFoundry Inc.

	Licensed under the Apache License, Version 2.0 (the "License");
	you may not use this file except in compliance with the License.
	You may obtain a copy of the License at

	https://www.apache.org/licenses/LICENSE-2.0

	Unless required by applicable law or agreed to in writing, software
	distributed under the License is distributed on an "AS IS" BASIS,
	WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
	See the License for the specific language governing permissions and
	limitations under the License.
*/

package xdispatch

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics records dispatch activity. A nil *Metrics records nothing.
type Metrics struct {
	dispatches    *prometheus.CounterVec
	duration      *prometheus.HistogramVec
	longPollTicks prometheus.Counter
}

// NewMetrics creates the dispatch collectors and registers them with registerer.
func NewMetrics(registerer prometheus.Registerer) (*Metrics, error) {
	metrics := &Metrics{
		dispatches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "xdispatch",
			Name:      "dispatches_total",
			Help:      "Requests dispatched by a web service, by request mode and response status.",
		}, []string{"mode", "status"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "xdispatch",
			Name:      "dispatch_duration_seconds",
			Help:      "Time from request start to the end of dispatch, by request mode.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"mode"}),
		longPollTicks: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "xdispatch",
			Name:      "long_polling_runs_total",
			Help:      "Runs of long-polling batches.",
		}),
	}

	for _, collector := range []prometheus.Collector{metrics.dispatches, metrics.duration, metrics.longPollTicks} {
		if err := registerer.Register(collector); err != nil {
			return nil, err
		}
	}

	return metrics, nil
}

func (metrics *Metrics) observeDispatch(mode string, status int, elapsed time.Duration) {
	if metrics == nil {
		return
	}
	metrics.dispatches.WithLabelValues(mode, strconv.Itoa(status)).Inc()
	metrics.duration.WithLabelValues(mode).Observe(elapsed.Seconds())
}

func (metrics *Metrics) observeLongPollTick() {
	if metrics == nil {
		return
	}
	metrics.longPollTicks.Inc()
}
