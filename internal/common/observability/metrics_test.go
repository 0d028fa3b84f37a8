package observability

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
)

func TestNoopObservability(t *testing.T) {
	o := NewNoop()

	ctx, span := o.StartSpan(context.Background(), "salesforce.sessions.revoke", attribute.String("username", "a@b.c"))
	defer span.End()

	assert.NotNil(t, ctx)
	assert.NotPanics(t, func() {
		o.RecordJobProcessed(ctx, "success")
		o.RecordJobDuration(ctx, time.Second, "success")
		o.RecordSessionsRevoked(ctx, 2)
		o.Shutdown()
	})
}

func TestNilObservability(t *testing.T) {
	var o *Observability

	_, span := o.StartSpan(context.Background(), "x")
	span.End()

	assert.NotPanics(t, func() {
		o.RecordJobProcessed(context.Background(), "failed")
		o.Shutdown()
	})
}

func TestOTLPTarget(t *testing.T) {
	tests := []struct {
		endpoint     string
		wantTarget   string
		wantInsecure bool
		wantErr      bool
	}{
		{endpoint: "localhost:4317", wantTarget: "localhost:4317", wantInsecure: true},
		{endpoint: "http://collector:4317", wantTarget: "collector:4317", wantInsecure: true},
		{endpoint: "https://collector.example.com:4317/v1/traces", wantTarget: "collector.example.com:4317"},
		{endpoint: "https://", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.endpoint, func(t *testing.T) {
			target, insecure, err := otlpTarget(tt.endpoint)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantTarget, target)
			assert.Equal(t, tt.wantInsecure, insecure)
		})
	}
}
