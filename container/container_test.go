package container

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/mohitkumar/stepflow/cluster"
	"github.com/mohitkumar/stepflow/config"
	"github.com/mohitkumar/stepflow/model"
	"github.com/stretchr/testify/require"
)

func TestInitInMemory(t *testing.T) {
	d := NewDiContainer(cluster.NewRing(cluster.RingConfig{}, cluster.Node{Name: "local"}))
	require.Panics(t, func() { d.GetExecutionStore() })

	conf := config.Default()
	conf.StorageType = config.STORAGE_TYPE_INMEM
	require.NoError(t, d.Init(conf))
	require.NotNil(t, d.GetExecutionStore())
	require.NotNil(t, d.GetStateMachineStore())
	require.NotNil(t, d.GetWaitNotifyStore())
	require.NotNil(t, d.GetMaintenanceStore())
	require.False(t, d.HasStreams())

	_, err := d.Publish(context.Background(), model.Message{Topic: model.TOPIC_ADVISE})
	require.Error(t, err)
	require.NoError(t, d.Close())
}

func TestInitUnknownStorage(t *testing.T) {
	d := NewDiContainer(nil)
	conf := config.Default()
	conf.StorageType = "cassandra"
	require.Error(t, d.Init(conf))
}

func TestInitRedis(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	d := NewDiContainer(cluster.NewRing(cluster.RingConfig{PartitionCount: 5}, cluster.Node{Name: "local"}))
	conf := config.Default()
	conf.RedisConfig.Addrs = []string{mr.Addr()}
	require.NoError(t, d.Init(conf))
	t.Cleanup(func() {
		_ = d.Close()
	})
	require.True(t, d.HasStreams())

	ctx := context.Background()
	stream, ok := d.GetStream(model.TOPIC_START)
	require.True(t, ok)
	require.NoError(t, stream.EnsureGroup(ctx))

	_, err = d.Publish(ctx, model.Message{Topic: model.TOPIC_START, Payload: []byte(`{}`)})
	require.NoError(t, err)
	_, err = d.Publish(ctx, model.Message{Topic: "unknown"})
	require.Error(t, err)

	msgs, err := stream.Read(ctx, 50*time.Millisecond)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	require.Equal(t, model.TOPIC_START, msgs[0].Topic)
	require.True(t, mr.Exists(StreamName(conf.ConsumerConfig.Stream, model.TOPIC_START)))
}
