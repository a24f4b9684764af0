package pool

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type item struct {
	key   int
	value string
}

func TestArena_StartsFree(t *testing.T) {
	a := New[item](4)
	assert.Equal(t, 4, a.Cap())
	assert.Equal(t, 0, a.Len())
	assert.Equal(t, 4, a.Available())
	require.NoError(t, a.Check())
}

func TestArena_AcquireUntilExhausted(t *testing.T) {
	a := New[item](3)
	seen := map[int]bool{}
	for i := 0; i < 3; i++ {
		idx, ok := a.Acquire()
		require.True(t, ok)
		assert.False(t, seen[idx], "slot %d handed out twice", idx)
		seen[idx] = true
		a.Get(idx).key = i
	}
	_, ok := a.Acquire()
	assert.False(t, ok)
	assert.Equal(t, 3, a.Len())
	assert.Equal(t, 0, a.Available())
	require.NoError(t, a.Check())
}

func TestArena_ActiveListIsAStack(t *testing.T) {
	a := New[item](3)
	for k := 1; k <= 3; k++ {
		idx, ok := a.Acquire()
		require.True(t, ok)
		a.Get(idx).key = k
	}

	var keys []int
	a.Each(func(_ int, v *item) bool {
		keys = append(keys, v.key)
		return true
	})
	assert.Equal(t, []int{3, 2, 1}, keys)
}

func TestArena_ReleaseZeroesAndRecycles(t *testing.T) {
	a := New[item](2)
	first, _ := a.Acquire()
	a.Get(first).value = "first"
	second, _ := a.Acquire()
	a.Get(second).value = "second"

	require.True(t, a.Release(first))
	assert.Nil(t, a.Get(first))
	assert.False(t, a.Release(first), "double release must fail")
	require.NoError(t, a.Check())

	again, ok := a.Acquire()
	require.True(t, ok)
	assert.Equal(t, first, again)
	assert.Equal(t, item{}, *a.Get(again))
	require.NoError(t, a.Check())
}

func TestArena_ReleaseMiddleOfActiveList(t *testing.T) {
	a := New[item](3)
	idx := make([]int, 3)
	for i := range idx {
		idx[i], _ = a.Acquire()
		a.Get(idx[i]).key = i
	}

	require.True(t, a.Release(idx[1]))
	var got []int
	a.Each(func(i int, _ *item) bool {
		got = append(got, i)
		return true
	})
	assert.Equal(t, []int{idx[2], idx[0]}, got)
	require.NoError(t, a.Check())
}

func TestArena_FindMatchesActiveOnly(t *testing.T) {
	a := New[item](2)
	i, _ := a.Acquire()
	a.Get(i).key = 7

	found, ok := a.Find(func(v *item) bool { return v.key == 7 })
	require.True(t, ok)
	assert.Equal(t, i, found)

	a.Release(i)
	_, ok = a.Find(func(v *item) bool { return v.key == 7 })
	assert.False(t, ok)
}

func TestArena_GenerationChangesOnReuse(t *testing.T) {
	a := New[item](1)
	i, _ := a.Acquire()
	g1 := a.Gen(i)
	a.Release(i)
	j, _ := a.Acquire()
	require.Equal(t, i, j)
	assert.NotEqual(t, g1, a.Gen(j))
}

func TestArena_ResetFreesEverything(t *testing.T) {
	a := New[item](3)
	a.Acquire()
	a.Acquire()
	a.Reset()
	assert.Equal(t, 0, a.Len())
	assert.Equal(t, 3, a.Available())
	require.NoError(t, a.Check())
}

func TestArena_ZeroCapacity(t *testing.T) {
	a := New[item](0)
	_, ok := a.Acquire()
	assert.False(t, ok)
	assert.False(t, a.Release(0))
	assert.Nil(t, a.Get(0))
	require.NoError(t, a.Check())
}

func TestArena_ChurnKeepsOwnershipInvariant(t *testing.T) {
	a := New[item](5)
	var held []int
	for round := 0; round < 200; round++ {
		if round%3 == 2 && len(held) > 0 {
			victim := held[round%len(held)]
			require.True(t, a.Release(victim))
			held = removeInt(held, victim)
		} else if idx, ok := a.Acquire(); ok {
			held = append(held, idx)
		}
		require.NoError(t, a.Check(), "round %d", round)
		require.Equal(t, len(held), a.Len())
	}
}

func removeInt(s []int, v int) []int {
	for i, x := range s {
		if x == v {
			return append(s[:i], s[i+1:]...)
		}
	}
	return s
}
