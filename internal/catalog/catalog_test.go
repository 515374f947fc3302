package catalog

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolveKeepsUnknownItems(t *testing.T) {
	got := Resolve([]string{"vip_badge", "retired_hat", "vip_badge"})
	require.Len(t, got, 3)

	assert.Equal(t, "vip_badge", got[0].ID)
	assert.Equal(t, "VIP Badge", got[0].Name)
	assert.True(t, got[0].Known)

	assert.Equal(t, "retired_hat", got[1].ID)
	assert.Equal(t, UnknownItemName, got[1].Name)
	assert.False(t, got[1].Known)
	assert.Zero(t, got[1].Price)

	assert.Equal(t, got[0], got[2])
}

func TestResolveEmpty(t *testing.T) {
	got := Resolve(nil)
	assert.NotNil(t, got)
	assert.Empty(t, got)
}

func TestAllOrderedByPrice(t *testing.T) {
	all := All()
	require.NotEmpty(t, all)
	for i := 1; i < len(all); i++ {
		assert.LessOrEqual(t, all[i-1].Price, all[i].Price)
	}
	for _, item := range all {
		assert.True(t, item.Known)
		assert.NotEmpty(t, item.ID)
	}
}
