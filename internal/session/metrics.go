package session

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Metrics holds the service's otel counters. A nil *Metrics disables
// recording, so wiring telemetry stays optional.
type Metrics struct {
	logins           metric.Int64Counter
	registrations    metric.Int64Counter
	refreshes        metric.Int64Counter
	refreshConflicts metric.Int64Counter
	revocations      metric.Int64Counter
}

// NewMetrics registers the session counters on the given meter provider.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	meter := mp.Meter("devicehub/backend/internal/session")

	var m Metrics
	var err error
	if m.logins, err = meter.Int64Counter("session.logins",
		metric.WithDescription("Login attempts by outcome")); err != nil {
		return nil, err
	}
	if m.registrations, err = meter.Int64Counter("session.registrations",
		metric.WithDescription("Registration attempts by outcome")); err != nil {
		return nil, err
	}
	if m.refreshes, err = meter.Int64Counter("session.refreshes",
		metric.WithDescription("Refresh attempts by outcome")); err != nil {
		return nil, err
	}
	if m.refreshConflicts, err = meter.Int64Counter("session.refresh_conflicts",
		metric.WithDescription("Refresh attempts lost to a concurrent rotation")); err != nil {
		return nil, err
	}
	if m.revocations, err = meter.Int64Counter("session.revocations",
		metric.WithDescription("Refresh tokens revoked by logout")); err != nil {
		return nil, err
	}
	return &m, nil
}

func outcome(err error) attribute.KeyValue {
	if err != nil {
		return attribute.String("outcome", "failure")
	}
	return attribute.String("outcome", "success")
}

func (m *Metrics) recordLogin(ctx context.Context, err error) {
	if m == nil {
		return
	}
	m.logins.Add(ctx, 1, metric.WithAttributes(outcome(err)))
}

func (m *Metrics) recordRegistration(ctx context.Context, err error) {
	if m == nil {
		return
	}
	m.registrations.Add(ctx, 1, metric.WithAttributes(outcome(err)))
}

func (m *Metrics) recordRefresh(ctx context.Context, err error) {
	if m == nil {
		return
	}
	m.refreshes.Add(ctx, 1, metric.WithAttributes(outcome(err)))
}

func (m *Metrics) recordRefreshConflict(ctx context.Context) {
	if m == nil {
		return
	}
	m.refreshConflicts.Add(ctx, 1)
}

func (m *Metrics) recordRevocation(ctx context.Context, revoked bool) {
	if m == nil {
		return
	}
	m.revocations.Add(ctx, 1, metric.WithAttributes(attribute.Bool("revoked", revoked)))
}
