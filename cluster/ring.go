package cluster

import (
	"github.com/buraksezer/consistent"
	"github.com/mohitkumar/stepflow/logger"
	"github.com/spaolacci/murmur3"
	"go.uber.org/zap"
)

type hasher struct{}

func (h hasher) Sum64(data []byte) uint64 {
	return murmur3.Sum64(data)
}

type RingConfig struct {
	PartitionCount int
}

// Ring maps keys to partitions. Storage keys embed the partition so that
// instances of one execution can be scanned per partition.
type Ring struct {
	RingConfig
	hring *consistent.Consistent
}

// Node is a ring member.
type Node struct {
	Name string
}

func (n Node) String() string {
	return n.Name
}

func NewRing(c RingConfig, local Node) *Ring {
	if c.PartitionCount <= 0 {
		c.PartitionCount = 71
	}
	cfg := consistent.Config{
		PartitionCount:    c.PartitionCount,
		ReplicationFactor: 20,
		Load:              1.25,
		Hasher:            hasher{},
	}
	r := &Ring{
		RingConfig: c,
		hring:      consistent.New([]consistent.Member{local}, cfg),
	}
	logger.Info("ring created", zap.String("node", local.Name), zap.Int("partitions", c.PartitionCount))
	return r
}

func (r *Ring) GetPartition(key string) int {
	return r.hring.FindPartitionID([]byte(key))
}
