package cluster

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRing(t *testing.T) {
	r := NewRing(RingConfig{PartitionCount: 17}, Node{Name: "n1"})

	p := r.GetPartition("instance-1")
	require.GreaterOrEqual(t, p, 0)
	require.Less(t, p, 17)
	require.Equal(t, p, r.GetPartition("instance-1"))

	seen := map[int]bool{}
	for _, key := range []string{"a", "b", "c", "d", "e", "f", "g", "h", "i", "j"} {
		seen[r.GetPartition(key)] = true
	}
	require.Greater(t, len(seen), 1)

	defaults := NewRing(RingConfig{}, Node{Name: "n1"})
	require.Equal(t, 71, defaults.PartitionCount)
}
