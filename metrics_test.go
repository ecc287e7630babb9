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
	"net/http"
	"net/url"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestMetrics(t *testing.T) {
	t.Run("dispatches are counted by mode and status", func(t *testing.T) {
		req := require.New(t)
		metrics, err := NewMetrics(prometheus.NewRegistry())
		req.NoError(err)

		fixture := newServiceFixture(t, WithMetrics(metrics))
		fixture.get("/leaf", url.Values{"method": {"echo"}})
		fixture.get("/leaf", url.Values{"method": {"missing"}})
		fixture.get("/leaf", nil)

		req.Equal(float64(1), testutil.ToFloat64(metrics.dispatches.WithLabelValues(modeCommon, "200")))
		req.Equal(float64(1), testutil.ToFloat64(metrics.dispatches.WithLabelValues(modeCommon, "405")))
		req.Equal(float64(1), testutil.ToFloat64(metrics.dispatches.WithLabelValues(modeUnroutable, "405")))
		req.Equal(2, testutil.CollectAndCount(metrics.duration))
	})

	t.Run("registering twice fails", func(t *testing.T) {
		registry := prometheus.NewRegistry()
		_, err := NewMetrics(registry)
		require.NoError(t, err)

		_, err = NewMetrics(registry)
		require.Error(t, err)
	})

	t.Run("a nil metrics records nothing", func(t *testing.T) {
		var metrics *Metrics
		metrics.observeDispatch(modeCommon, http.StatusOK, 0)
		metrics.observeLongPollTick()
	})
}
