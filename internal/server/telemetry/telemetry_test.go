package telemetry

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetup(t *testing.T) {
	tests := []struct {
		name string
		opts Options
	}{
		{name: "empty endpoint", opts: Options{Enabled: true}},
		{name: "disabled", opts: Options{Endpoint: "http://localhost:4318"}},
		// Немаршрутизируемый адрес: экспорт не выполняется, Shutdown завершается чисто
		{name: "enabled", opts: Options{Endpoint: "http://192.0.2.1:4318", Enabled: true}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			shutdown, err := Setup(context.Background(), "adminsync-test", tt.opts)
			require.NoError(t, err)
			require.NotNil(t, shutdown)
			assert.NoError(t, shutdown(context.Background()))
		})
	}
}

func TestSetup_NoopShutdownIgnoresCancelledContext(t *testing.T) {
	shutdown, err := Setup(context.Background(), "adminsync-test", Options{})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.NoError(t, shutdown(ctx))
}
