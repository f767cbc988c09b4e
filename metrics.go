// Copyright 2025 TimeWtr
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
// http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package segio

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	mFlushes = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "segio",
		Subsystem: "sink",
		Name:      "flushes_total",
		Help:      "Number of physical flushes to the underlying stream",
	})
	mFlushErrors = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "segio",
		Subsystem: "sink",
		Name:      "flush_errors_total",
		Help:      "Number of physical flushes that failed",
	})
	mFlushedBytes = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "segio",
		Subsystem: "sink",
		Name:      "flushed_bytes_total",
		Help:      "Bytes written to the underlying stream",
	})
	mPoolWaits = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "segio",
		Subsystem: "pool",
		Name:      "waits_total",
		Help:      "Number of times a producer blocked on an empty buffer pool",
	})
	mPoolWaitSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "segio",
		Subsystem: "pool",
		Name:      "wait_seconds",
		Help:      "Time spent blocked on an empty buffer pool",
		Buckets:   prometheus.ExponentialBuckets(0.0001, 4, 8),
	})
	mRotations = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "segio",
		Subsystem: "writer",
		Name:      "rotations_total",
		Help:      "Number of segment rotations by policy",
	}, []string{"policy"})
	mLinesRead = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "segio",
		Subsystem: "reader",
		Name:      "lines_total",
		Help:      "Number of lines produced by split readers",
	})
)
