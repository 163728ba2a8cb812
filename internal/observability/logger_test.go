package observability

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLogger_DefaultWhenUnset(t *testing.T) {
	require.Same(t, slog.Default(), Logger(context.Background()))
	require.Same(t, slog.Default(), Logger(WithLogger(context.Background(), nil)))
}

func TestLogger_CarriesRequestFields(t *testing.T) {
	var buf bytes.Buffer
	base := slog.New(slog.NewJSONHandler(&buf, nil)).With("correlation_id", "corr-1")
	ctx := WithLogger(context.Background(), base)

	Logger(ctx).Info("saved", "message_id", "m1")

	var rec map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &rec))
	require.Equal(t, "corr-1", rec["correlation_id"])
	require.Equal(t, "m1", rec["message_id"])
}
