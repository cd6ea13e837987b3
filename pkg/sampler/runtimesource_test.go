package sampler

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/danpilch/threadscope/pkg/snapshot"
)

const goroutineText = `goroutine 1 [running]:
main.main()
	/src/app/main.go:12 +0x1d

goroutine 7 [chan receive, 2 minutes]:
github.com/acme/app/worker.(*Pool).loop(0xc000010000)
	/src/app/worker/pool.go:88 +0x5a
created by github.com/acme/app/worker.New in goroutine 1
	/src/app/worker/pool.go:30 +0x8f

goroutine 9 [sleep]:
time.Sleep(0x3b9aca00)
	/usr/local/go/src/runtime/time.go:195 +0x125
main.tick[...](...)
	/src/app/main.go:40
...additional frames elided...
`

func TestParseGoroutines(t *testing.T) {
	infos := parseGoroutines([]byte(goroutineText), nil)
	require.Len(t, infos, 3)

	assert.Equal(t, int64(1), infos[0].ID)
	assert.Equal(t, "goroutine 1", infos[0].Name)
	assert.Equal(t, snapshot.StateRunnable, infos[0].State)
	assert.Equal(t, []snapshot.StackFrame{{Class: "main", Method: "main", File: "/src/app/main.go", Line: 12}}, infos[0].Frames)

	pool := infos[1]
	assert.Equal(t, snapshot.StateWaiting, pool.State)
	require.Len(t, pool.Frames, 1, "created by is not part of the stack")
	assert.Equal(t, "github.com/acme/app/worker.(*Pool)", pool.Frames[0].Class)
	assert.Equal(t, "loop", pool.Frames[0].Method)
	assert.Equal(t, 88, pool.Frames[0].Line)

	sleep := infos[2]
	assert.Equal(t, snapshot.StateTimedWaiting, sleep.State)
	require.Len(t, sleep.Frames, 2)
	assert.Equal(t, "time", sleep.Frames[0].Class)
	assert.Equal(t, "Sleep", sleep.Frames[0].Method)
	assert.Equal(t, "tick[...]", sleep.Frames[1].Method)
	assert.Equal(t, 40, sleep.Frames[1].Line)
}

func TestParseGoroutinesFiltered(t *testing.T) {
	infos := parseGoroutines([]byte(goroutineText), wanted([]int64{9}))
	require.Len(t, infos, 1)
	assert.Equal(t, int64(9), infos[0].ID)
	assert.Len(t, infos[0].Frames, 2)
}

func TestRuntimeSourceSeesItself(t *testing.T) {
	src := NewRuntimeSource()
	refs, err := src.Threads(context.Background())
	require.NoError(t, err)
	require.NotEmpty(t, refs)

	infos, err := src.Dump(context.Background(), nil)
	require.NoError(t, err)
	var found bool
	for _, g := range infos {
		assert.Zero(t, g.NativeID, "goroutines carry no OS thread id")
		for _, f := range g.Frames {
			if f.Method == "TestRuntimeSourceSeesItself" {
				found = true
			}
		}
	}
	assert.True(t, found)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = src.Dump(ctx, nil)
	assert.Error(t, err)
}
