package scrape

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mockFetcher implements Fetcher for testing.
type mockFetcher struct {
	name   string
	result *Result
	err    error
	calls  int
}

func (m *mockFetcher) Name() string { return m.name }
func (m *mockFetcher) Fetch(_ context.Context, _ Request) (*Result, error) {
	m.calls++
	return m.result, m.err
}

func TestChain_Fetch_FirstSuccess(t *testing.T) {
	f1 := &mockFetcher{name: "unblocker", result: &Result{URL: "https://acme.com", Source: "unblocker"}}
	f2 := &mockFetcher{name: "direct"}

	chain := NewChain(f1, f2)
	result, err := chain.Fetch(context.Background(), Request{URL: "https://acme.com"})

	require.NoError(t, err)
	assert.Equal(t, "unblocker", result.Source)
	assert.Equal(t, 0, f2.calls)
}

func TestChain_Fetch_FallbackOnError(t *testing.T) {
	f1 := &mockFetcher{name: "unblocker", err: errors.New("proxy refused")}
	f2 := &mockFetcher{name: "direct", result: &Result{Source: "direct"}}

	chain := NewChain(f1, f2)
	result, err := chain.Fetch(context.Background(), Request{URL: "https://acme.com"})

	require.NoError(t, err)
	assert.Equal(t, "direct", result.Source)
	assert.Equal(t, 1, f1.calls)
}

func TestChain_Fetch_AllFail(t *testing.T) {
	f1 := &mockFetcher{name: "a", err: errors.New("a error")}
	f2 := &mockFetcher{name: "b", err: errors.New("b error")}

	chain := NewChain(f1, f2)
	result, err := chain.Fetch(context.Background(), Request{URL: "https://acme.com"})

	assert.Error(t, err)
	assert.Nil(t, result)
	assert.Contains(t, err.Error(), "all fetchers failed")
	assert.Contains(t, err.Error(), "b error")
}

func TestChain_Fetch_Empty(t *testing.T) {
	_, err := NewChain().Fetch(context.Background(), Request{URL: "https://acme.com"})
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "no fetcher")
}

func TestChain_Fetch_StopsWhenCancelled(t *testing.T) {
	f1 := &mockFetcher{name: "a", result: &Result{}}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewChain(f1).Fetch(ctx, Request{URL: "https://acme.com"})
	assert.Error(t, err)
	assert.Equal(t, 0, f1.calls)
}

func TestChain_Name(t *testing.T) {
	chain := NewChain(&mockFetcher{name: "unblocker"}, &mockFetcher{name: "direct"})
	assert.Equal(t, "chain(unblocker,direct)", chain.Name())
	assert.Equal(t, 2, chain.Len())
}
