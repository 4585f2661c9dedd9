// Copyright 2025 Google LLC
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

// Package metrics wraps every NamespaceOps call with an op-latency
// histogram and an op-error counter, keyed by the FSOpKey attribute,
// exported over OpenTelemetry's Prometheus bridge.
package metrics

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/fluxfs/fluxdir/nserr"
)

// FSOpKey annotates the namespace operation processed.
const FSOpKey = "fs_op"

// FSErrCategoryKey reduces the cardinality of error counts by grouping
// errors into nserr.Category's buckets.
const FSErrCategoryKey = "fs_error_category"

var opsMeter = otel.Meter("namespace_op")

var opAttributeSet sync.Map
var opErrAttributeSet sync.Map

func attrSetFor(m *sync.Map, op, category string) metric.MeasurementOption {
	key := op + "\x00" + category
	if v, ok := m.Load(key); ok {
		return v.(metric.MeasurementOption)
	}
	var set attribute.Set
	if category == "" {
		set = attribute.NewSet(attribute.String(FSOpKey, op))
	} else {
		set = attribute.NewSet(attribute.String(FSOpKey, op), attribute.String(FSErrCategoryKey, category))
	}
	opt := metric.WithAttributeSet(set)
	v, _ := m.LoadOrStore(key, opt)
	return v.(metric.MeasurementOption)
}

// Handle is the metrics surface NamespaceOps is wrapped with.
type Handle interface {
	OpsCount(ctx context.Context, inc int64, op string)
	OpsLatency(ctx context.Context, latency time.Duration, op string)
	OpsErrorCount(ctx context.Context, inc int64, op, errCategory string)
}

type otelHandle struct {
	opsCount      metric.Int64Counter
	opsErrorCount metric.Int64Counter
	opsLatency    metric.Float64Histogram
}

// NewOTelMetrics constructs a Handle wired to the global OTel MeterProvider
// (set up by the caller with otel/exporters/prometheus + otel/sdk/metric).
func NewOTelMetrics() (Handle, error) {
	opsCount, err1 := opsMeter.Int64Counter("namespace/ops_count",
		metric.WithDescription("The cumulative number of namespace operations processed."))
	opsErrorCount, err2 := opsMeter.Int64Counter("namespace/ops_error_count",
		metric.WithDescription("The cumulative number of namespace operation errors."))
	opsLatency, err3 := opsMeter.Float64Histogram("namespace/ops_latency",
		metric.WithDescription("The distribution of namespace operation latencies."),
		metric.WithUnit("us"))

	if err1 != nil {
		return nil, err1
	}
	if err2 != nil {
		return nil, err2
	}
	if err3 != nil {
		return nil, err3
	}

	return &otelHandle{opsCount: opsCount, opsErrorCount: opsErrorCount, opsLatency: opsLatency}, nil
}

func (o *otelHandle) OpsCount(ctx context.Context, inc int64, op string) {
	o.opsCount.Add(ctx, inc, attrSetFor(&opAttributeSet, op, ""))
}

func (o *otelHandle) OpsLatency(ctx context.Context, latency time.Duration, op string) {
	o.opsLatency.Record(ctx, float64(latency.Microseconds()), attrSetFor(&opAttributeSet, op, ""))
}

func (o *otelHandle) OpsErrorCount(ctx context.Context, inc int64, op, errCategory string) {
	o.opsErrorCount.Add(ctx, inc, attrSetFor(&opErrAttributeSet, op, errCategory))
}

// NewNoopMetrics returns a Handle that discards every measurement, the
// default for unit tests and any caller that has not set up an OTel
// MeterProvider.
func NewNoopMetrics() Handle { return noopHandle{} }

type noopHandle struct{}

func (noopHandle) OpsCount(context.Context, int64, string)              {}
func (noopHandle) OpsLatency(context.Context, time.Duration, string)    {}
func (noopHandle) OpsErrorCount(context.Context, int64, string, string) {}

var (
	_ Handle = (*otelHandle)(nil)
	_ Handle = noopHandle{}
)

// Track records one operation's outcome: call the returned func with the
// error (nil on success) when op completes.
func Track(ctx context.Context, h Handle, op string) func(err error) {
	start := time.Now()
	return func(err error) {
		h.OpsCount(ctx, 1, op)
		h.OpsLatency(ctx, time.Since(start), op)
		if err != nil {
			h.OpsErrorCount(ctx, 1, op, nserr.Category(err))
		}
	}
}
