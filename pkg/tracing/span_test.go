package tracing

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/Product-Search-Service/pkg/logger"
)

func TestStartNestsThroughContext(t *testing.T) {
	ctx := logger.WithRequestID(context.Background(), "req-7")
	ctx, root := Start(ctx, "search")
	assert.Equal(t, "req-7", root.TraceID())
	assert.Same(t, root, FromContext(ctx))

	_, parse := Start(ctx, "parse")
	parse.End()
	execCtx, exec := Start(ctx, "execute")
	_, score := Start(execCtx, "score")
	score.Set("candidates", 3)
	score.End()
	exec.End()
	root.End()

	assert.Equal(t, "req-7", score.TraceID())
	stages := root.Stages()
	paths := make([]string, len(stages))
	for i, st := range stages {
		paths[i] = st.Path
	}
	assert.Equal(t, []string{"search", "search/parse", "search/execute", "search/execute/score"}, paths)
	assert.Equal(t, []any{"candidates", 3}, stages[3].Attrs)
}

func TestRootGetsTraceID(t *testing.T) {
	_, span := Start(context.Background(), "rebuild")
	assert.Len(t, span.TraceID(), 36)
	assert.Nil(t, FromContext(context.Background()))
}

func TestEndIsFinal(t *testing.T) {
	_, span := Start(context.Background(), "x")
	span.End()
	first := span.Stages()[0].Duration
	span.End()
	assert.Equal(t, first, span.Stages()[0].Duration)
}

func TestLogOnlyAtDebug(t *testing.T) {
	_, span := Start(context.Background(), "search")
	span.Set("query", "shoe")
	span.End()

	var buf bytes.Buffer
	span.Log(logger.New(&buf, "info", "json"))
	assert.Empty(t, buf.String())

	span.Log(logger.New(&buf, "debug", "json"))
	out := buf.String()
	require.Equal(t, 1, strings.Count(out, "\n"))
	assert.Contains(t, out, `"stage":"search"`)
	assert.Contains(t, out, `"query":"shoe"`)
}
