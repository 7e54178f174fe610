package aws

import (
	"context"
	"fmt"
	"time"

	sdkaws "github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	cwtypes "github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"
)

// MetricsRecorder publishes drain-pass counters to CloudWatch.
// All calls are best-effort; a nil recorder is a no-op.
type MetricsRecorder struct {
	client    CloudWatchAPI
	namespace string
	nowFunc   func() time.Time
}

// NewMetricsRecorder returns a recorder publishing under the given namespace.
func NewMetricsRecorder(client CloudWatchAPI, namespace string) *MetricsRecorder {
	return &MetricsRecorder{
		client:    client,
		namespace: namespace,
		nowFunc:   time.Now,
	}
}

// RecordDrain publishes the per-pass counters. Returns the publish error so
// the caller can log it, but callers never fail a drain on it.
func (m *MetricsRecorder) RecordDrain(ctx context.Context, processed, failed, purged int) error {
	if m == nil || m.client == nil {
		return nil
	}
	now := m.nowFunc()
	data := []cwtypes.MetricDatum{
		datum("SyncItemsProcessed", processed, now),
		datum("SyncItemsFailed", failed, now),
		datum("SyncItemsPurged", purged, now),
	}
	_, err := m.client.PutMetricData(ctx, &cloudwatch.PutMetricDataInput{
		Namespace:  sdkaws.String(m.namespace),
		MetricData: data,
	})
	if err != nil {
		return fmt.Errorf("put metric data: %w", err)
	}
	return nil
}

func datum(name string, value int, at time.Time) cwtypes.MetricDatum {
	return cwtypes.MetricDatum{
		MetricName: sdkaws.String(name),
		Timestamp:  sdkaws.Time(at),
		Unit:       cwtypes.StandardUnitCount,
		Value:      sdkaws.Float64(float64(value)),
	}
}
