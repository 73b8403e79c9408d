package cassandra

import (
	"github.com/gocql/gocql"
	"github.com/ticket721/actionset/persistence"
)

type Config struct {
	Addrs    []string
	KeySpace string
}

var schema = []string{
	`CREATE TABLE IF NOT EXISTS action_set (
		id text PRIMARY KEY,
		name text,
		current_status text,
		current_type text,
		current_action int,
		actions text,
		dispatched_at timestamp,
		created_at timestamp,
		updated_at timestamp,
		consumed boolean
	)`,
	`CREATE INDEX IF NOT EXISTS action_set_current_type ON action_set (current_type)`,
	`CREATE TABLE IF NOT EXISTS rights (
		user_id text,
		entity text,
		entity_value text,
		rights map<text, boolean>,
		PRIMARY KEY ((user_id, entity, entity_value))
	)`,
}

type baseDao struct {
	Session  *gocql.Session
	keySpace string
}

func NewBaseDao(conf Config) (*baseDao, error) {
	cluster := gocql.NewCluster(conf.Addrs...)
	cluster.Keyspace = conf.KeySpace
	cluster.Consistency = gocql.Quorum
	session, err := cluster.CreateSession()
	if err != nil {
		return nil, persistence.StorageLayerError{Message: err.Error()}
	}
	for _, stmt := range schema {
		if err := session.Query(stmt).Exec(); err != nil {
			session.Close()
			return nil, persistence.StorageLayerError{Message: err.Error()}
		}
	}
	return &baseDao{
		Session:  session,
		keySpace: conf.KeySpace,
	}, nil
}

func (bs *baseDao) Close() error {
	bs.Session.Close()
	return nil
}
