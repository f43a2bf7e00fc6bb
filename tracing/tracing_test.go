package tracing

import (
	"context"
	"fmt"
	"os"
	"path"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTracingFile(t *testing.T) {
	fname := path.Join(t.TempDir(), "span_test.txt")
	require.NoError(t, Init("chainorch", "0.0.1", fname))

	ctx, span := StartSpan(context.Background(), "processor.open", "CONSUMER")
	span.WithAttributes(map[string]string{"queue": "open"})
	_, child := StartSpan(ctx, "sender.Send", "CLIENT")
	child.SetStatusFromHTTPCode(503)
	EndSpan(child, fmt.Errorf("unavailable"))
	EndSpan(span, nil)

	current, ok := SpanFromContext(ctx)
	assert.True(t, ok)
	assert.NotNil(t, current)

	data, err := os.ReadFile(fname)
	require.NoError(t, err)
	assert.Contains(t, string(data), "sender.Send")
}

func TestNilSpan(t *testing.T) {
	var span *Span
	assert.Nil(t, span.WithAttributes(map[string]string{"k": "v"}))
	span.SetStatus(nil)
	span.SetStatusFromHTTPCode(200)
	EndSpan(span, nil)
	_, ok := SpanFromContext(context.Background())
	assert.False(t, ok)
}
