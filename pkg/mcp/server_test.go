package mcp

import (
	"context"
	"testing"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/casfa/casfa/pkg/auth"
	"github.com/casfa/casfa/pkg/delegate"
	"github.com/casfa/casfa/pkg/scope"
)

type noNodes struct{}

func (noNodes) GetNode(context.Context, string) ([]byte, error) {
	return nil, scope.ErrNodeNotFound
}

func newMCPTestEnv(t *testing.T) (*Server, *delegate.Delegate) {
	t.Helper()

	store := delegate.NewMemoryStore()
	resolver := scope.NewResolver(noNodes{}, scope.NewMemorySetStore())
	manager := delegate.NewManager(store, resolver, time.Hour, 10)

	root, _, err := manager.EnsureRoot(context.Background(), "alice")
	require.NoError(t, err)
	caller, _, err := manager.CreateChild(context.Background(), root.DelegateID, delegate.ChildRequest{
		Name:      "agent",
		CanUpload: true,
	})
	require.NoError(t, err)

	return NewServer(manager, "test"), caller
}

func authedContext(d *delegate.Delegate) context.Context {
	return auth.WithAuth(context.Background(), &auth.AuthContext{
		Type:        auth.TypeAccess,
		DelegateID:  d.DelegateID,
		Realm:       d.Realm,
		IssuerChain: d.Chain,
	})
}

func TestWhoamiTool(t *testing.T) {
	t.Parallel()
	srv, caller := newMCPTestEnv(t)

	t.Run("reports the calling delegate", func(t *testing.T) {
		t.Parallel()
		result, err := srv.whoami(authedContext(caller), mcp.CallToolRequest{})
		require.NoError(t, err)
		require.False(t, result.IsError)

		got, ok := result.StructuredContent.(map[string]interface{})
		require.True(t, ok)
		assert.Equal(t, caller.DelegateID, got["delegateId"])
		assert.Equal(t, "alice", got["realm"])
		assert.Equal(t, 1, got["depth"])
		assert.Equal(t, true, got["canUpload"])
		assert.Equal(t, false, got["canManageDepot"])
	})

	t.Run("unauthenticated call errors", func(t *testing.T) {
		t.Parallel()
		result, err := srv.whoami(context.Background(), mcp.CallToolRequest{})
		require.NoError(t, err)
		assert.True(t, result.IsError)
	})
}

func TestListDelegatesTool(t *testing.T) {
	t.Parallel()
	srv, caller := newMCPTestEnv(t)
	ctx := authedContext(caller)

	child, _, err := srv.manager.CreateChild(context.Background(), caller.DelegateID, delegate.ChildRequest{
		Name: "worker",
	})
	require.NoError(t, err)

	result, err := srv.listDelegates(ctx, mcp.CallToolRequest{})
	require.NoError(t, err)
	require.False(t, result.IsError)

	got, ok := result.StructuredContent.([]delegate.Metadata)
	require.True(t, ok)
	require.Len(t, got, 1)
	assert.Equal(t, child.DelegateID, got[0].DelegateID)
}

func TestHandlerIsMountable(t *testing.T) {
	t.Parallel()
	srv, _ := newMCPTestEnv(t)
	assert.NotNil(t, srv.Handler())
}
