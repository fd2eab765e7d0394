package telemetry

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/sdk/metric"
)

func TestIncrWithoutProvider(t *testing.T) {
	DatabaseErrorsTotal = nil

	assert.NotPanics(t, func() {
		Incr(context.Background(), DatabaseErrorsTotal)
	})
}

func TestInitBusinessMetrics(t *testing.T) {
	provider := metric.NewMeterProvider()
	defer provider.Shutdown(context.Background())

	require.NoError(t, InitBusinessMetrics(provider))

	assert.NotNil(t, DatabaseErrorsTotal)
	assert.NotPanics(t, func() {
		Incr(context.Background(), DatabaseErrorsTotal)
	})
}
