package container

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/require"
	"github.com/ticket721/actionset/config"
	"github.com/ticket721/actionset/model"
)

func TestContainer(t *testing.T) {
	ctx := context.Background()

	for scenario, fn := range map[string]func(t *testing.T){
		"memory": func(t *testing.T) {
			d := NewDiContainer()
			require.NoError(t, d.Init(config.Config{StorageType: config.STORAGE_TYPE_INMEM, QueueType: config.QUEUE_TYPE_INMEM}))
			require.NotNil(t, d.GetActionSetStorage())
			require.NotNil(t, d.GetRightsStorage())
			require.Equal(t, QUEUE_INPUT, d.GetQueues().Input.Name())
			require.Equal(t, QUEUE_EVENT, d.GetQueues().Event.Name())
			require.NoError(t, d.Close())
		},
		"redis": func(t *testing.T) {
			mr := miniredis.RunT(t)
			d := NewDiContainer()
			require.NoError(t, d.Init(config.Config{
				StorageType: config.STORAGE_TYPE_REDIS,
				QueueType:   config.QUEUE_TYPE_REDIS,
				RedisConfig: config.RedisStorageConfig{Addrs: []string{mr.Addr()}, Namespace: "test"},
			}))
			defer d.Close()

			_, err := d.GetQueues().Input.Add(ctx, string(model.ACTION_TYPE_INPUT), model.RawActionSet{Id: "as-1"})
			require.NoError(t, err)
			jobs, err := d.GetQueues().Input.GetJobs(ctx, model.JOB_STATE_WAITING)
			require.NoError(t, err)
			require.Len(t, jobs, 1)

			_, err = d.GetActionSetStorage().Get(ctx, model.ActionSetQuery{Id: "missing"})
			require.Error(t, err)
		},
		"memory storage with redis queues": func(t *testing.T) {
			mr := miniredis.RunT(t)
			d := NewDiContainer()
			require.NoError(t, d.Init(config.Config{
				StorageType: config.STORAGE_TYPE_INMEM,
				QueueType:   config.QUEUE_TYPE_REDIS,
				RedisConfig: config.RedisStorageConfig{Addrs: []string{mr.Addr()}, Namespace: "test"},
			}))
			defer d.Close()
			require.NotNil(t, d.GetActionSetStorage())
			require.NotNil(t, d.GetQueues().Event)
		},
		"unknown storage": func(t *testing.T) {
			d := NewDiContainer()
			require.Error(t, d.Init(config.Config{StorageType: "mongo", QueueType: config.QUEUE_TYPE_INMEM}))
			require.Panics(t, func() { d.GetActionSetStorage() })
		},
		"unknown queue": func(t *testing.T) {
			d := NewDiContainer()
			require.Error(t, d.Init(config.Config{StorageType: config.STORAGE_TYPE_INMEM, QueueType: "kafka"}))
		},
	} {
		t.Run(scenario, fn)
	}
}
