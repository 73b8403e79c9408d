package container

import (
	"errors"
	"fmt"

	"github.com/ticket721/actionset/config"
	"github.com/ticket721/actionset/logger"
	"github.com/ticket721/actionset/persistence"
	cs "github.com/ticket721/actionset/persistence/cassandra"
	"github.com/ticket721/actionset/persistence/memory"
	rd "github.com/ticket721/actionset/persistence/redis"
	"go.uber.org/zap"
)

const QUEUE_INPUT = "input"
const QUEUE_EVENT = "event"

type closer interface {
	Close() error
}

type DIContiner struct {
	initialized      bool
	actionSetStorage persistence.ActionSetStorage
	rightsStorage    persistence.RightsStorage
	queues           persistence.Queues
	closers          []closer
}

func NewDiContainer() *DIContiner {
	return &DIContiner{}
}

func (d *DIContiner) setInitialized() {
	d.initialized = true
}

// Init builds the storage, rights and queue implementations selected by conf.
func (d *DIContiner) Init(conf config.Config) error {
	switch conf.StorageType {
	case config.STORAGE_TYPE_REDIS, config.STORAGE_TYPE_CASSANDRA, config.STORAGE_TYPE_INMEM:
	default:
		return fmt.Errorf("unknown storage type %q", conf.StorageType)
	}
	switch conf.QueueType {
	case config.QUEUE_TYPE_REDIS, config.QUEUE_TYPE_INMEM:
	default:
		return fmt.Errorf("unknown queue type %q", conf.QueueType)
	}

	if conf.StorageType == config.STORAGE_TYPE_REDIS || conf.QueueType == config.QUEUE_TYPE_REDIS {
		d.initRedis(conf)
	}
	switch conf.StorageType {
	case config.STORAGE_TYPE_CASSANDRA:
		if err := d.initCassandra(conf); err != nil {
			d.Close()
			return err
		}
	case config.STORAGE_TYPE_INMEM:
		d.actionSetStorage = memory.NewActionSetStorage()
		d.rightsStorage = memory.NewRightsStorage()
	}
	if conf.QueueType == config.QUEUE_TYPE_INMEM {
		d.queues = persistence.Queues{
			Input: memory.NewQueue(QUEUE_INPUT),
			Event: memory.NewQueue(QUEUE_EVENT),
		}
	}
	d.setInitialized()
	logger.Info("container initialized", zap.String("storage", string(conf.StorageType)), zap.String("queue", string(conf.QueueType)))
	return nil
}

func (d *DIContiner) initRedis(conf config.Config) {
	baseDao := rd.NewBaseDao(rd.Config{
		Addrs:     conf.RedisConfig.Addrs,
		Namespace: conf.RedisConfig.Namespace,
		Password:  conf.RedisConfig.Password,
		PoolSize:  conf.RedisConfig.PoolSize,
	})
	d.closers = append(d.closers, baseDao)
	if conf.StorageType == config.STORAGE_TYPE_REDIS {
		d.actionSetStorage = rd.NewActionSetStorage(baseDao)
		d.rightsStorage = rd.NewRightsStorage(baseDao)
	}
	if conf.QueueType == config.QUEUE_TYPE_REDIS {
		d.queues = persistence.Queues{
			Input: rd.NewQueue(baseDao, QUEUE_INPUT),
			Event: rd.NewQueue(baseDao, QUEUE_EVENT),
		}
	}
}

func (d *DIContiner) initCassandra(conf config.Config) error {
	baseDao, err := cs.NewBaseDao(cs.Config{
		Addrs:    conf.CassandraConfig.Addrs,
		KeySpace: conf.CassandraConfig.KeySpace,
	})
	if err != nil {
		return err
	}
	d.closers = append(d.closers, baseDao)
	d.actionSetStorage = cs.NewActionSetStorage(baseDao)
	d.rightsStorage = cs.NewRightsStorage(baseDao)
	return nil
}

func (d *DIContiner) GetActionSetStorage() persistence.ActionSetStorage {
	if !d.initialized {
		panic("persistence not initalized")
	}
	return d.actionSetStorage
}

func (d *DIContiner) GetRightsStorage() persistence.RightsStorage {
	if !d.initialized {
		panic("persistence not initalized")
	}
	return d.rightsStorage
}

func (d *DIContiner) GetQueues() persistence.Queues {
	if !d.initialized {
		panic("persistence not initalized")
	}
	return d.queues
}

// Close releases the storage connections.
func (d *DIContiner) Close() error {
	var errs []error
	for _, c := range d.closers {
		if err := c.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	d.closers = nil
	return errors.Join(errs...)
}
