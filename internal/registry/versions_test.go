package registry

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wonny/seedrank/backend/internal/contracts"
)

func activeVersion(t *testing.T, r *Registry, id string) string {
	t.Helper()
	active, err := r.GetActive(contracts.FamilySwing)
	require.NoError(t, err)
	for _, c := range active {
		if c.AlgorithmID == id {
			return c.Version
		}
	}
	return ""
}

func TestVersionManager_RollbackChain(t *testing.T) {
	ctx := context.Background()
	r, _ := newTestRegistry(t)
	vm := NewVersionManager(r)

	require.NoError(t, r.Register(ctx, cfg("momentum", "1", contracts.FamilySwing, true)))
	require.NoError(t, r.Register(ctx, cfg("momentum", "2", contracts.FamilySwing, false)))
	require.NoError(t, r.Register(ctx, cfg("momentum", "3", contracts.FamilySwing, false)))

	_, err := r.Activate(ctx, "momentum", "2", contracts.FamilySwing)
	require.NoError(t, err)
	_, err = r.Activate(ctx, "momentum", "3", contracts.FamilySwing)
	require.NoError(t, err)

	restored, err := vm.Rollback(ctx, contracts.FamilySwing)
	require.NoError(t, err)
	assert.Equal(t, "2", restored.Version)
	assert.True(t, restored.IsActive)
	assert.Equal(t, "2", activeVersion(t, r, "momentum"))

	restored, err = vm.Rollback(ctx, contracts.FamilySwing)
	require.NoError(t, err)
	assert.Equal(t, "1", restored.Version)

	_, err = vm.Rollback(ctx, contracts.FamilySwing)
	assert.ErrorIs(t, err, contracts.ErrNoPriorVersion)
	assert.Equal(t, "1", activeVersion(t, r, "momentum"))

	events, err := vm.Events(ctx, contracts.FamilySwing)
	require.NoError(t, err)
	require.Len(t, events, 5)
	assert.Equal(t, contracts.EventRollback, events[3].Kind)
	assert.Equal(t, "3", events[3].FromVersion)
	assert.Equal(t, "2", events[3].ToVersion)
}

func TestVersionManager_RollbackAcrossAlgorithms(t *testing.T) {
	ctx := context.Background()
	r, _ := newTestRegistry(t)
	vm := NewVersionManager(r)

	require.NoError(t, r.Register(ctx, cfg("alpha", "1", contracts.FamilySwing, true)))
	require.NoError(t, r.Register(ctx, cfg("alpha", "2", contracts.FamilySwing, false)))
	require.NoError(t, r.Register(ctx, cfg("beta", "1", contracts.FamilySwing, true)))
	require.NoError(t, r.Register(ctx, cfg("beta", "2", contracts.FamilySwing, false)))

	_, err := r.Activate(ctx, "alpha", "2", contracts.FamilySwing)
	require.NoError(t, err)
	_, err = r.Activate(ctx, "beta", "2", contracts.FamilySwing)
	require.NoError(t, err)

	// 가장 최근 활성화(beta)부터 되돌림
	restored, err := vm.Rollback(ctx, contracts.FamilySwing)
	require.NoError(t, err)
	assert.Equal(t, "beta", restored.AlgorithmID)
	assert.Equal(t, "2", activeVersion(t, r, "alpha"))
	assert.Equal(t, "1", activeVersion(t, r, "beta"))

	restored, err = vm.Rollback(ctx, contracts.FamilySwing)
	require.NoError(t, err)
	assert.Equal(t, "alpha", restored.AlgorithmID)
	assert.Equal(t, "1", activeVersion(t, r, "alpha"))
}

func TestVersionManager_NoHistory(t *testing.T) {
	ctx := context.Background()
	r, _ := newTestRegistry(t)
	vm := NewVersionManager(r)

	_, err := vm.Rollback(ctx, contracts.FamilyLongterm)
	assert.ErrorIs(t, err, contracts.ErrNoPriorVersion)

	_, err = vm.Rollback(ctx, "bogus")
	assert.ErrorIs(t, err, contracts.ErrInvalidStrategyFamily)
}

func TestActivationStack(t *testing.T) {
	events := []contracts.VersionEvent{
		{Kind: contracts.EventActivate, AlgorithmID: "a", FromVersion: "", ToVersion: "1"},
		{Kind: contracts.EventActivate, AlgorithmID: "b", FromVersion: "", ToVersion: "1"},
		{Kind: contracts.EventActivate, AlgorithmID: "a", FromVersion: "1", ToVersion: "2"},
		{Kind: contracts.EventRollback, AlgorithmID: "a", FromVersion: "2", ToVersion: "1"},
	}

	stack := activationStack(events)
	require.Len(t, stack, 2)
	assert.Equal(t, "b", stack[1].AlgorithmID)
}
