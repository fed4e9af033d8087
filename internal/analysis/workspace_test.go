package analysis

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/formcoach/formcheck/internal/provider"
)

func TestResolve_ExistingWorkspace(t *testing.T) {
	p := newFakeProvider()
	p.workspaces = []provider.Workspace{
		{ID: "ws-0", Name: "formcheck-videos-old"},
		{ID: "ws-1", Name: "formcheck-videos"},
	}

	id, err := NewWorkspaceResolver(p, 50, testLogger()).Resolve(context.Background(), "formcheck-videos")
	require.NoError(t, err)
	assert.Equal(t, "ws-1", id)
	assert.Equal(t, 0, p.createCalls)
}

func TestResolve_CreatesWhenMissing(t *testing.T) {
	p := newFakeProvider()
	p.workspaces = nil
	p.createdID = "ws-new"

	id, err := NewWorkspaceResolver(p, 50, testLogger()).Resolve(context.Background(), "formcheck-videos")
	require.NoError(t, err)
	assert.Equal(t, "ws-new", id)
	assert.Equal(t, []string{"formcheck-videos"}, p.created)
}

func TestResolve_CreatedWithoutID(t *testing.T) {
	p := newFakeProvider()
	p.workspaces = nil

	_, err := NewWorkspaceResolver(p, 50, testLogger()).Resolve(context.Background(), "formcheck-videos")
	var e *Error
	require.ErrorAs(t, err, &e)
	assert.Equal(t, KindProtocol, e.Kind)
	assert.Equal(t, ReasonMissingWorkspace, e.Reason)
}

func TestResolve_ListFailure(t *testing.T) {
	p := newFakeProvider()
	p.listErr = &provider.APIError{Op: "list workspaces", StatusCode: 503, Body: "down"}

	_, err := NewWorkspaceResolver(p, 50, testLogger()).Resolve(context.Background(), "formcheck-videos")
	assert.Equal(t, KindUpstream, KindOf(err))
	assert.Equal(t, 0, p.createCalls)
}

func TestResolve_CreateFailure(t *testing.T) {
	p := newFakeProvider()
	p.workspaces = nil
	p.createErr = &provider.APIError{Op: "create workspace", StatusCode: 403, Body: `{"message":"quota"}`}

	_, err := NewWorkspaceResolver(p, 50, testLogger()).Resolve(context.Background(), "formcheck-videos")
	var e *Error
	require.ErrorAs(t, err, &e)
	assert.Equal(t, KindUpstream, e.Kind)
	assert.Equal(t, 403, e.Status)
	assert.Equal(t, 1, p.createCalls)
}

func TestResolve_ConcurrentCallsShareOneLookup(t *testing.T) {
	p := newFakeProvider()
	p.workspaces = nil
	p.createdID = "ws-new"
	p.listGate = make(chan struct{})

	r := NewWorkspaceResolver(p, 50, testLogger())

	const callers = 5
	ids := make([]string, callers)
	errs := make([]error, callers)
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			ids[i], errs[i] = r.Resolve(context.Background(), "formcheck-videos")
		}(i)
	}

	// Hold the first lookup open long enough for every caller to join it.
	time.Sleep(50 * time.Millisecond)
	close(p.listGate)
	wg.Wait()

	for i := 0; i < callers; i++ {
		require.NoError(t, errs[i])
		assert.Equal(t, "ws-new", ids[i])
	}
	assert.Equal(t, 1, p.listCalls)
	assert.Equal(t, 1, p.createCalls)
}
