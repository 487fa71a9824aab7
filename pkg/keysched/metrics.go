// MIT License
//
// Copyright (c) 2023 kache.io
//
// Permission is hereby granted, free of charge, to any person obtaining a copy
// of this software and associated documentation files (the "Software"), to deal
// in the Software without restriction, including without limitation the rights
// to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
// copies of the Software, and to permit persons to whom the Software is
// furnished to do so, subject to the following conditions:
//
// The above copyright notice and this permission notice shall be included in all
// copies or substantial portions of the Software.
//
// THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
// IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
// FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
// AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
// LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
// OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
// SOFTWARE.

package keysched

import "github.com/prometheus/client_golang/prometheus"

// metrics holds the scheduler's instrumentation. Registration is
// optional: a nil Registerer at construction leaves the fields usable
// (Inc/Set/Observe on unregistered collectors are no-ops on nothing but
// the metric itself) without panicking in tests that don't care about it.
type metrics struct {
	wavesStarted  prometheus.Counter
	coalesced     prometheus.Counter
	waveDuration  prometheus.Histogram
	inflightGauge prometheus.Gauge
	pendingGauge  prometheus.Gauge
}

func newMetrics(reg prometheus.Registerer) *metrics {
	m := &metrics{
		wavesStarted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "keysched_waves_started_total",
			Help: "Total number of waves promoted to in-flight (one QueryAction invocation each).",
		}),
		coalesced: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "keysched_coalesced_waiters_total",
			Help: "Total number of Query calls served without starting a new wave.",
		}),
		waveDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "keysched_wave_duration_seconds",
			Help:    "Duration of a single QueryAction invocation.",
			Buckets: prometheus.DefBuckets,
		}),
		inflightGauge: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "keysched_inflight_waves",
			Help: "1 if a wave is currently in flight, 0 otherwise.",
		}),
		pendingGauge: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "keysched_pending_waves",
			Help: "1 if a wave is currently pending promotion, 0 otherwise.",
		}),
	}
	if reg != nil {
		reg.MustRegister(m.wavesStarted, m.coalesced, m.waveDuration, m.inflightGauge, m.pendingGauge)
	}
	return m
}
