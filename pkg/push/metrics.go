// Copyright (c) 2025, NVIDIA CORPORATION.  All rights reserved.
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

package push

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	stepDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "eidos_push_step_duration_seconds",
			Help:    "Duration of a push DAG step body, by step name.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"step"},
	)

	blobUploadsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "eidos_push_blob_uploads_total",
			Help: "Blob push outcomes by result (exists, mounted, uploaded).",
		},
		[]string{"result"},
	)

	blobBytesUploaded = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "eidos_push_blob_bytes_uploaded_total",
			Help: "Total bytes streamed to the registry during blob uploads.",
		},
	)

	blobDedupHitsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "eidos_push_blob_dedup_hits_total",
			Help: "Blob push calls that attached to an already in-flight or completed upload.",
		},
	)

	retriesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "eidos_push_retries_total",
			Help: "Transient-failure retries performed during blob pushes.",
		},
	)
)

// timeSpan runs fn, emits a TimerSpanEvent covering its execution, and
// records the same duration in the stepDuration histogram.
func timeSpan(sink EventSink, name string, fn func() error) error {
	start := time.Now()
	err := fn()
	end := time.Now()
	stepDuration.WithLabelValues(name).Observe(end.Sub(start).Seconds())
	if sink != nil {
		sink.Dispatch(TimerSpanEvent{Name: name, Start: start.UnixNano(), End: end.UnixNano()})
	}
	return err
}
