// Package telemetry provides OpenTelemetry instruments for reposync.
package telemetry

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const (
	// MirrorMeterName is the meter used by the installed registry mirror
	MirrorMeterName = "github.com/blackwell-systems/reposync/installed"

	// ReconcileMeterName is the meter used by the preference reconciler
	ReconcileMeterName = "github.com/blackwell-systems/reposync/reconcile"

	// SyncMeterName is the meter used by the sync service
	SyncMeterName = "github.com/blackwell-systems/reposync/sync"
)

// MirrorMetrics counts package events applied to the installed registry.
type MirrorMetrics struct {
	events metric.Int64Counter
}

// NewMirrorMetrics creates mirror instruments. A nil provider yields nil (no-op) metrics.
func NewMirrorMetrics(provider metric.MeterProvider) (*MirrorMetrics, error) {
	if provider == nil {
		return nil, nil
	}

	events, err := provider.Meter(MirrorMeterName).Int64Counter(
		"reposync_package_events_total",
		metric.WithDescription("Package events applied to the installed registry"),
		metric.WithUnit("{event}"),
	)
	if err != nil {
		return nil, err
	}

	return &MirrorMetrics{events: events}, nil
}

// RecordEvent counts one package event of the given kind.
func (m *MirrorMetrics) RecordEvent(ctx context.Context, kind string) {
	if m == nil || m.events == nil {
		return
	}
	m.events.Add(ctx, 1, metric.WithAttributes(attribute.String("kind", kind)))
}

// ReconcileMetrics counts actions taken by the preference reconciler.
type ReconcileMetrics struct {
	actions metric.Int64Counter
}

// NewReconcileMetrics creates reconciler instruments. A nil provider yields nil (no-op) metrics.
func NewReconcileMetrics(provider metric.MeterProvider) (*ReconcileMetrics, error) {
	if provider == nil {
		return nil, nil
	}

	actions, err := provider.Meter(ReconcileMeterName).Int64Counter(
		"reposync_reconcile_actions_total",
		metric.WithDescription("Reconciliation actions per preference concern"),
		metric.WithUnit("{action}"),
	)
	if err != nil {
		return nil, err
	}

	return &ReconcileMetrics{actions: actions}, nil
}

// RecordAction counts one reconciliation of concern with the given outcome.
func (m *ReconcileMetrics) RecordAction(ctx context.Context, concern string, success bool) {
	if m == nil || m.actions == nil {
		return
	}
	m.actions.Add(ctx, 1, metric.WithAttributes(
		attribute.String("concern", concern),
		attribute.Bool("success", success),
	))
}

// SyncMetrics records repository sync passes.
type SyncMetrics struct {
	duration metric.Float64Histogram
}

// NewSyncMetrics creates sync instruments. A nil provider yields nil (no-op) metrics.
func NewSyncMetrics(provider metric.MeterProvider) (*SyncMetrics, error) {
	if provider == nil {
		return nil, nil
	}

	duration, err := provider.Meter(SyncMeterName).Float64Histogram(
		"reposync_sync_duration_seconds",
		metric.WithDescription("Duration of repository sync passes in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120),
	)
	if err != nil {
		return nil, err
	}

	return &SyncMetrics{duration: duration}, nil
}

// RecordSync records one sync pass for the given request kind.
func (m *SyncMetrics) RecordSync(ctx context.Context, request string, duration time.Duration, failed int) {
	if m == nil || m.duration == nil {
		return
	}
	m.duration.Record(ctx, duration.Seconds(), metric.WithAttributes(
		attribute.String("request", request),
		attribute.Bool("success", failed == 0),
	))
}
