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
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/pkg/errors"
)

const (
	// LongPollingTimeout is the longest a long-polling request waits for an update.
	LongPollingTimeout = 20 * time.Second

	// LongPollingInterval is the pause between two runs of a long-polling batch.
	LongPollingInterval = time.Second

	longPollingWriteGrace = 10 * time.Second
)

var (
	longPollingTimeout  = LongPollingTimeout
	longPollingInterval = LongPollingInterval
)

var (
	errNoUpdate  = errors.New("no update yet")
	errAllFailed = errors.New("every entry failed")
)

// longPoll re-runs a batch until one entry returns a non-empty collection, every entry fails, the timeout measured
// from the start of the request passes or the client goes away. Methods are called again on every run, so they must
// be side effect free queries.
func (ws *WebService) longPoll(entries []batchEntry) *Results {
	rc := ws.rc
	if len(entries) == 0 {
		return NewResults()
	}
	deadline := rc.StartedAt.Add(longPollingTimeout)

	if err := http.NewResponseController(rc.Writer).SetWriteDeadline(deadline.Add(longPollingWriteGrace)); err != nil {
		rc.Logger().WithError(err).Debug("could not extend write deadline for long polling")
	}

	var last *batchRun
	poll := func() (*batchRun, error) {
		last = ws.runBatch(entries)
		rc.metrics.observeLongPollTick()

		switch {
		case last.hasUpdate():
			return last, nil
		case last.allFailed():
			return last, backoff.Permanent(errAllFailed)
		}
		return last, errNoUpdate
	}

	opts := []backoff.RetryOption{backoff.WithBackOff(backoff.NewConstantBackOff(longPollingInterval))}
	if remaining := time.Until(deadline); remaining > 0 {
		opts = append(opts, backoff.WithMaxElapsedTime(remaining))
	} else {
		opts = append(opts, backoff.WithMaxTries(1))
	}

	_, err := backoff.Retry(rc.Context(), poll, opts...)
	switch {
	case err == nil:
	case errors.Is(err, errNoUpdate):
		rc.Logger().Debug("long polling timed out without an update")
	case errors.Is(err, errAllFailed):
		rc.Logger().Debug("long polling stopped, every entry failed")
	default:
		rc.Logger().WithError(err).Debug("client went away during long polling")
	}

	return last.results
}

func (run *batchRun) hasUpdate() bool {
	for _, outcome := range run.outcomes {
		if outcome.status == http.StatusOK && hasUpdate(outcome.data) {
			return true
		}
	}
	return false
}

func (run *batchRun) allFailed() bool {
	if len(run.outcomes) == 0 {
		return false
	}
	for _, outcome := range run.outcomes {
		if outcome.status == http.StatusOK {
			return false
		}
	}
	return true
}
