package cache

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSlot(t *testing.T) {
	// Reference values from the Redis cluster specification.
	assert.Equal(t, 12739, Slot("123456789"))
	assert.Equal(t, 0, Slot(""))

	t.Run("hash tags", func(t *testing.T) {
		assert.Equal(t, Slot("user"), Slot("{user}:1"))
		assert.Equal(t, Slot("{user}:1"), Slot("{user}:2"))
		assert.Equal(t, Slot("bar"), Slot("foo{bar}{zap}"))
		assert.Equal(t, Slot("{user1000}.following"), Slot("{user1000}.followers"))
	})

	t.Run("range", func(t *testing.T) {
		for _, k := range []string{"a", "b", "namespace::key", "\xff\xfe"} {
			s := Slot(k)
			assert.GreaterOrEqual(t, s, 0)
			assert.Less(t, s, slotCount)
		}
	})
}

func TestHashTag(t *testing.T) {
	assert.Equal(t, "user", hashTag("{user}:1"))
	assert.Equal(t, "plain", hashTag("plain"))
	assert.Equal(t, "{unclosed", hashTag("{unclosed"))
	assert.Equal(t, "foo{}bar", hashTag("foo{}bar"))
}

func TestPartitionBySlot(t *testing.T) {
	keys := []string{"{a}1", "{b}1", "{a}2", "{c}1", "{b}2"}
	groups := partitionBySlot(keys)
	require.Len(t, groups, 3)

	assert.Equal(t, []string{"{a}1", "{a}2"}, groups[0].keys)
	assert.Equal(t, []int{0, 2}, groups[0].indexes)
	assert.Equal(t, []string{"{b}1", "{b}2"}, groups[1].keys)
	assert.Equal(t, []int{1, 4}, groups[1].indexes)
	assert.Equal(t, []string{"{c}1"}, groups[2].keys)
	assert.Equal(t, []int{3}, groups[2].indexes)

	for _, g := range groups {
		for _, k := range g.keys {
			assert.Equal(t, g.slot, Slot(k))
		}
	}

	assert.Empty(t, partitionBySlot(nil))
}
