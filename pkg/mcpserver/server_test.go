package mcpserver

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/danpilch/threadscope/pkg/snapshot"
	"github.com/danpilch/threadscope/pkg/tracefile"
)

type handler func(context.Context, mcp.CallToolRequest) (*mcp.CallToolResult, error)

func call(t *testing.T, h handler, args map[string]any) (string, bool) {
	t.Helper()
	var req mcp.CallToolRequest
	req.Params.Arguments = args
	res, err := h(context.Background(), req)
	require.NoError(t, err)
	require.NotEmpty(t, res.Content)
	text, ok := res.Content[0].(mcp.TextContent)
	require.True(t, ok)
	return text.Text, res.IsError
}

func writeCapture(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "app.tsc")
	w, err := tracefile.Create(path, tracefile.DefaultWriterOptions())
	require.NoError(t, err)

	for i := 0; i < 4; i++ {
		s := snapshot.NewThreadSnapshot()
		s.ThreadID = int64(1 + i%2)
		s.SetName([]string{"main", "worker"}[i%2])
		s.Timestamp = int64(1000 * (i + 1))
		s.State = snapshot.StateRunnable
		method := "compute"
		if i%2 == 1 {
			s.State = snapshot.StateBlocked
			method = "lock"
		}
		s.Stack = snapshot.NewFrameList(
			snapshot.StackFrame{Class: "app.Main", Method: method, File: "Main.java", Line: 10},
			snapshot.StackFrame{Class: "app.Main", Method: "run", File: "Main.java", Line: 3},
		)
		require.NoError(t, w.Write(s))
	}
	require.NoError(t, w.Close())
	return path
}

func TestLoadCapture(t *testing.T) {
	s := New(nil)
	path := writeCapture(t)

	text, isErr := call(t, s.handleLoad, map[string]any{"file_path": path})
	require.False(t, isErr, text)
	assert.Contains(t, text, "Records: 4")
	assert.Contains(t, text, "Threads: 2")
	assert.Contains(t, text, "Span: 3000ms")
	assert.Len(t, s.cache, 1)

	text, isErr = call(t, s.handleLoad, map[string]any{})
	assert.True(t, isErr)
	assert.Contains(t, text, "file_path")

	text, isErr = call(t, s.handleLoad, map[string]any{"file_path": filepath.Join(t.TempDir(), "none.tsc")})
	assert.True(t, isErr)
	assert.Contains(t, text, "Failed to load capture")
}

func TestCaptureSummaryLoadsOnDemand(t *testing.T) {
	s := New(nil)
	path := writeCapture(t)

	text, isErr := call(t, s.handleSummary, map[string]any{"file_path": path})
	require.False(t, isErr, text)
	assert.Contains(t, text, "# Capture Summary")
	assert.Contains(t, text, "**[CONTENTION]** 2 of 4 records")
	assert.Contains(t, text, "--state BLOCKED")
	assert.Contains(t, s.cache, path)
}

func TestHotFrames(t *testing.T) {
	s := New(nil)
	path := writeCapture(t)

	text, isErr := call(t, s.handleHotFrames, map[string]any{"file_path": path, "top_n": float64(1)})
	require.False(t, isErr, text)
	assert.Contains(t, text, "#1: app.Main.compute")
	assert.Contains(t, text, "Samples: 2 (50.00%)")
	assert.NotContains(t, text, "#2:")

	_, isErr = call(t, s.handleHotFrames, map[string]any{"file_path": path, "top_n": float64(0)})
	assert.True(t, isErr)
}

func TestRenderFlame(t *testing.T) {
	s := New(nil)
	path := writeCapture(t)
	out := filepath.Join(t.TempDir(), "flame.svg")

	text, isErr := call(t, s.handleRenderFlame, map[string]any{
		"file_path":   path,
		"output_path": out,
		"width":       float64(600),
	})
	require.False(t, isErr, text)
	assert.Contains(t, text, "Flame graph of 4 records")

	svg, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.Contains(t, string(svg), "<svg")
	assert.Contains(t, string(svg), `width="600"`)

	_, isErr = call(t, s.handleRenderFlame, map[string]any{"file_path": path})
	assert.True(t, isErr)
}
