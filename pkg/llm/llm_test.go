package llm

import (
	"bufio"
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"polehammer/pkg/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errBusy = errors.New("503 overloaded")

type fakeClient struct {
	name  string
	errs  []error
	calls int
	delay time.Duration
}

func (f *fakeClient) Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error) {
	f.calls++
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if len(f.errs) > 0 {
		err := f.errs[0]
		f.errs = f.errs[1:]
		if err != nil {
			return nil, err
		}
	}
	return &CompletionResponse{Choices: []Choice{{
		FinishReason: "stop",
		Message:      CompletionMessage{Role: "assistant", Content: f.name},
	}}}, nil
}

func (f *fakeClient) IsTransientError(err error) bool { return errors.Is(err, errBusy) }

func TestFallbackClientRetriesTransientErrors(t *testing.T) {
	first := &fakeClient{name: "first", errs: []error{errBusy, nil}}
	fb := &FallbackClient{Clients: []LLMClient{first}, MaxRetries: 3}

	resp, err := fb.Complete(context.Background(), CompletionRequest{})
	require.NoError(t, err)
	assert.Equal(t, "first", resp.Choices[0].Message.Content)
	assert.Equal(t, 2, first.calls)
}

func TestFallbackClientAdvancesOnPermanentError(t *testing.T) {
	first := &fakeClient{name: "first", errs: []error{errors.New("401 unauthorized")}}
	second := &fakeClient{name: "second"}
	fb := &FallbackClient{Clients: []LLMClient{first, second}, MaxRetries: 3}

	resp, err := fb.Complete(context.Background(), CompletionRequest{})
	require.NoError(t, err)
	assert.Equal(t, "second", resp.Choices[0].Message.Content)
	assert.Equal(t, 1, first.calls)
	assert.False(t, fb.IsTransientError(err))
}

func TestFallbackClientAllFail(t *testing.T) {
	last := errors.New("boom")
	fb := &FallbackClient{Clients: []LLMClient{
		&fakeClient{errs: []error{errBusy, errBusy}},
		&fakeClient{errs: []error{last}},
	}, MaxRetries: 2}

	_, err := fb.Complete(context.Background(), CompletionRequest{})
	require.Error(t, err)
	assert.ErrorIs(t, err, last)
	assert.Contains(t, err.Error(), "all fallback providers failed")
}

func TestTimeoutClient(t *testing.T) {
	slow := &fakeClient{delay: time.Second}
	tc := &TimeoutClient{Client: slow, Timeout: 10 * time.Millisecond}

	_, err := tc.Complete(context.Background(), CompletionRequest{})
	require.ErrorIs(t, err, context.DeadlineExceeded)
	assert.True(t, tc.IsTransientError(err))
	assert.True(t, tc.IsTransientError(errBusy))
	assert.False(t, tc.IsTransientError(errors.New("bad request")))
}

func TestDebugClientRecordsExchanges(t *testing.T) {
	old := DebugRoot
	DebugRoot = t.TempDir()
	t.Cleanup(func() { DebugRoot = old })

	dc := NewDebugClient(&fakeClient{name: "ok", errs: []error{nil, errors.New("nope")}}, "fake")
	req := CompletionRequest{Model: "m", Messages: []WireMessage{{Role: RoleUser, Content: "hi"}}}

	_, err := dc.Complete(context.Background(), req)
	require.NoError(t, err)
	_, err = dc.Complete(context.Background(), req)
	require.Error(t, err)

	files, err := filepath.Glob(filepath.Join(DebugRoot, "exchanges", "fake", "*.log"))
	require.NoError(t, err)
	require.Len(t, files, 1)

	f, err := os.Open(files[0])
	require.NoError(t, err)
	defer f.Close()

	var entries []map[string]any
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		var e map[string]any
		require.NoError(t, json.Unmarshal(sc.Bytes(), &e))
		entries = append(entries, e)
	}
	require.Len(t, entries, 2)
	assert.Contains(t, entries[0], "response")
	assert.Equal(t, "nope", entries[1]["error"])
}

func TestNewFromConfigBoundsEachProvider(t *testing.T) {
	RegisterProvider("stub-hung", hungFactory{})

	sys := config.DefaultSystemConfig()
	sys.LLMTimeoutMs = 20
	sys.MaxRetries = 1

	client, err := NewFromConfig([]byte(`[{"type":"stub-hung"}]`), sys)
	require.NoError(t, err)

	start := time.Now()
	resp, err := client.Complete(context.Background(), CompletionRequest{})
	require.NoError(t, err)
	assert.Equal(t, "backup", resp.Choices[0].Message.Content)
	assert.Less(t, time.Since(start), 5*time.Second)
}

// hungFactory yields a provider that never answers, followed by a healthy one.
type hungFactory struct{}

func (hungFactory) Create(ProviderGroupConfig, *config.SystemConfig) ([]LLMClient, error) {
	return []LLMClient{
		&fakeClient{name: "hung", delay: time.Minute},
		&fakeClient{name: "backup"},
	}, nil
}

type stubFactory struct{ clients int }

func (s stubFactory) Create(group ProviderGroupConfig, _ *config.SystemConfig) ([]LLMClient, error) {
	out := make([]LLMClient, 0, s.clients)
	for i := 0; i < s.clients; i++ {
		out = append(out, &fakeClient{name: group.Type})
	}
	return out, nil
}

func TestNewFromConfig(t *testing.T) {
	RegisterProvider("stub-one", stubFactory{clients: 1})
	RegisterProvider("stub-two", stubFactory{clients: 2})
	assert.Contains(t, Providers(), "stub-one")

	sys := config.DefaultSystemConfig()
	sys.LLMTimeoutMs = 0

	client, err := NewFromConfig([]byte(`[{"type":"stub-one","models":["m"]}]`), sys)
	require.NoError(t, err)
	assert.IsType(t, &fakeClient{}, client)

	client, err = NewFromConfig([]byte(`[{"type":"stub-two"},{"type":"unknown"}]`), sys)
	require.NoError(t, err)
	fb, ok := client.(*FallbackClient)
	require.True(t, ok)
	assert.Len(t, fb.Clients, 2)

	sys.LLMTimeoutMs = 1000
	client, err = NewFromConfig([]byte(`[{"type":"stub-one"}]`), sys)
	require.NoError(t, err)
	assert.IsType(t, &TimeoutClient{}, client)

	client, err = NewFromConfig([]byte(`[{"type":"stub-two"}]`), sys)
	require.NoError(t, err)
	fb, ok = client.(*FallbackClient)
	require.True(t, ok)
	for _, c := range fb.Clients {
		assert.IsType(t, &TimeoutClient{}, c)
	}

	_, err = NewFromConfig([]byte(`[{"type":"unknown"}]`), sys)
	assert.Error(t, err)
	_, err = NewFromConfig(nil, sys)
	assert.Error(t, err)
	_, err = NewFromConfig([]byte(`{`), sys)
	assert.Error(t, err)
}
