package dedup

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"agentcore/pkg/llm"
	"agentcore/pkg/llmerrors"
	"agentcore/pkg/tools"
)

func TestConcurrentIdenticalCallsExecuteOnce(t *testing.T) {
	d := New(0)

	var calls atomic.Int32
	started := make(chan struct{})
	fn := func(_ context.Context) (llm.CompletionResponse, error) {
		calls.Add(1)
		<-started
		return llm.CompletionResponse{Content: "shared"}, nil
	}

	const n = 10
	var wg sync.WaitGroup
	results := make([]llm.CompletionResponse, n)
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = d.Do(context.Background(), "k", fn)
		}(i)
	}

	// Let everyone attach to the pending entry before it settles.
	time.Sleep(20 * time.Millisecond)
	close(started)
	wg.Wait()

	assert.Equal(t, int32(1), calls.Load())
	for i := 0; i < n; i++ {
		require.NoError(t, errs[i])
		assert.Equal(t, "shared", results[i].Content)
	}
}

func TestSettledEntryReExecutes(t *testing.T) {
	d := New(0)

	var calls atomic.Int32
	fn := func(_ context.Context) (llm.CompletionResponse, error) {
		calls.Add(1)
		return llm.CompletionResponse{}, nil
	}

	_, err := d.Do(context.Background(), "k", fn)
	require.NoError(t, err)
	_, err = d.Do(context.Background(), "k", fn)
	require.NoError(t, err)

	assert.Equal(t, int32(2), calls.Load())
	assert.Equal(t, 0, d.Pending())
}

func TestDistinctKeysExecuteIndependently(t *testing.T) {
	d := New(0)

	var calls atomic.Int32
	fn := func(_ context.Context) (llm.CompletionResponse, error) {
		calls.Add(1)
		return llm.CompletionResponse{}, nil
	}

	var wg sync.WaitGroup
	for _, key := range []string{"a", "b"} {
		wg.Add(1)
		go func(key string) {
			defer wg.Done()
			_, _ = d.Do(context.Background(), key, fn)
		}(key)
	}
	wg.Wait()

	assert.Equal(t, int32(2), calls.Load())
}

func TestWaitersShareFailure(t *testing.T) {
	d := New(0)

	boom := llmerrors.New(llmerrors.ErrorTypeBackendUnavailable, "backend down")
	started := make(chan struct{})
	fn := func(_ context.Context) (llm.CompletionResponse, error) {
		<-started
		return llm.CompletionResponse{}, boom
	}

	errCh := make(chan error, 2)
	for i := 0; i < 2; i++ {
		go func() {
			_, err := d.Do(context.Background(), "k", fn)
			errCh <- err
		}()
	}
	time.Sleep(20 * time.Millisecond)
	close(started)

	for i := 0; i < 2; i++ {
		err := <-errCh
		assert.True(t, llmerrors.Is(err, llmerrors.ErrorTypeBackendUnavailable))
	}
}

func TestWaiterCancellationLeavesExecutionIntact(t *testing.T) {
	d := New(0)

	release := make(chan struct{})
	fn := func(_ context.Context) (llm.CompletionResponse, error) {
		<-release
		return llm.CompletionResponse{Content: "late"}, nil
	}

	ownerDone := make(chan llm.CompletionResponse, 1)
	go func() {
		resp, _ := d.Do(context.Background(), "k", fn)
		ownerDone <- resp
	}()
	time.Sleep(20 * time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := d.Do(ctx, "k", fn)
	assert.True(t, llmerrors.Is(err, llmerrors.ErrorTypeCancelled))

	close(release)
	select {
	case resp := <-ownerDone:
		assert.Equal(t, "late", resp.Content)
	case <-time.After(time.Second):
		t.Fatal("owner never settled")
	}
}

func TestSweepEvictsStaleEntries(t *testing.T) {
	d := New(10 * time.Millisecond)

	release := make(chan struct{})
	go func() {
		_, _ = d.Do(context.Background(), "stuck", func(_ context.Context) (llm.CompletionResponse, error) {
			<-release
			return llm.CompletionResponse{}, nil
		})
	}()
	time.Sleep(30 * time.Millisecond)

	require.Equal(t, 1, d.Pending())
	assert.Equal(t, 1, d.Sweep())
	assert.Equal(t, 0, d.Pending())

	close(release)
}

func TestDefaultKeyDiscriminates(t *testing.T) {
	base := llm.NewRequest([]llm.CompletionMessage{llm.UserMessage("hello")})

	same := llm.NewRequest([]llm.CompletionMessage{llm.UserMessage("hello")})
	assert.Equal(t, DefaultKey(base), DefaultKey(same))

	different := llm.NewRequest([]llm.CompletionMessage{llm.UserMessage("goodbye")})
	assert.NotEqual(t, DefaultKey(base), DefaultKey(different))

	hotter := llm.NewRequest([]llm.CompletionMessage{llm.UserMessage("hello")})
	hotter.Temperature = 0.9
	assert.NotEqual(t, DefaultKey(base), DefaultKey(hotter))

	withTool := llm.NewRequest([]llm.CompletionMessage{llm.UserMessage("hello")})
	withTool.Tools = []tools.ToolDefinition{{Name: "add"}}
	assert.NotEqual(t, DefaultKey(base), DefaultKey(withTool))
}

func TestDefaultKeyToolOrderInsensitive(t *testing.T) {
	a := llm.NewRequest([]llm.CompletionMessage{llm.UserMessage("hi")})
	a.Tools = []tools.ToolDefinition{{Name: "add"}, {Name: "sub"}}

	b := llm.NewRequest([]llm.CompletionMessage{llm.UserMessage("hi")})
	b.Tools = []tools.ToolDefinition{{Name: "sub"}, {Name: "add"}}

	assert.Equal(t, DefaultKey(a), DefaultKey(b))
}

func TestMiddlewareCoalescesCompletes(t *testing.T) {
	d := New(0)

	var calls atomic.Int32
	blocker := make(chan struct{})
	backend := llm.WrapClient(
		func(_ context.Context, _ llm.CompletionRequest) (llm.CompletionResponse, error) {
			calls.Add(1)
			<-blocker
			return llm.CompletionResponse{Content: "once"}, nil
		},
		nil,
		func() string { return "test" },
	)
	client := Middleware(d, nil)(backend)

	req := llm.NewRequest([]llm.CompletionMessage{llm.UserMessage("same question")})

	const n = 5
	var wg sync.WaitGroup
	contents := make([]string, n)
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			resp, err := client.Complete(context.Background(), req)
			contents[i], errs[i] = resp.Content, err
		}(i)
	}
	time.Sleep(20 * time.Millisecond)
	close(blocker)
	wg.Wait()

	assert.Equal(t, int32(1), calls.Load())
	for i := 0; i < n; i++ {
		require.NoError(t, errs[i])
		assert.Equal(t, "once", contents[i])
	}
}
