package service

import (
	"context"
	"errors"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
)

const meterName = "github.com/securesteps/auth-service/internal/auth"

const (
	resultSuccess = "success"
	resultFailure = "failure"
)

// Metrics holds the auth outcome counters.
type Metrics struct {
	logins    metric.Int64Counter
	refreshes metric.Int64Counter
	otpChecks metric.Int64Counter
}

func NewMetrics(provider metric.MeterProvider) (*Metrics, error) {
	meter := provider.Meter(meterName)

	logins, err := meter.Int64Counter("auth.logins",
		metric.WithDescription("Login attempts by result"))
	if err != nil {
		return nil, err
	}
	refreshes, err := meter.Int64Counter("auth.refreshes",
		metric.WithDescription("Token refresh attempts by result"))
	if err != nil {
		return nil, err
	}
	otpChecks, err := meter.Int64Counter("auth.otp_checks",
		metric.WithDescription("OTP verification attempts by purpose and result"))
	if err != nil {
		return nil, err
	}

	return &Metrics{logins: logins, refreshes: refreshes, otpChecks: otpChecks}, nil
}

// NoopMetrics discards everything.
func NoopMetrics() *Metrics {
	m, err := NewMetrics(noop.NewMeterProvider())
	if err != nil {
		panic(errors.Join(errors.New("noop meter"), err))
	}
	return m
}

func outcome(err error) string {
	if err != nil {
		return resultFailure
	}
	return resultSuccess
}

func (m *Metrics) login(ctx context.Context, err error) {
	m.logins.Add(ctx, 1, metric.WithAttributes(attribute.String("result", outcome(err))))
}

func (m *Metrics) refresh(ctx context.Context, err error) {
	m.refreshes.Add(ctx, 1, metric.WithAttributes(attribute.String("result", outcome(err))))
}

func (m *Metrics) otpCheck(ctx context.Context, purpose string, err error) {
	m.otpChecks.Add(ctx, 1, metric.WithAttributes(
		attribute.String("purpose", purpose),
		attribute.String("result", outcome(err)),
	))
}
