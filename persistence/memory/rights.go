package memory

import (
	"context"
	"sync"

	"github.com/ticket721/actionset/model"
	"github.com/ticket721/actionset/persistence"
)

type rightsStorage struct {
	mu     sync.RWMutex
	rights map[string]map[string]bool
}

var _ persistence.RightsStorage = new(rightsStorage)

func NewRightsStorage() *rightsStorage {
	return &rightsStorage{rights: make(map[string]map[string]bool)}
}

func rightsKey(userId string, entity string, entityValue string) string {
	return userId + "/" + entity + "/" + entityValue
}

func (r *rightsStorage) AddRights(ctx context.Context, user model.User, rights []model.RightDef) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, def := range rights {
		key := rightsKey(user.Id, def.Entity, def.EntityValue)
		current, ok := r.rights[key]
		if !ok {
			current = make(map[string]bool)
			r.rights[key] = current
		}
		for right, granted := range def.Rights {
			current[right] = granted
		}
	}
	return nil
}

func (r *rightsStorage) GetRights(ctx context.Context, user model.User, entity string, entityValue string) (map[string]bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	res := make(map[string]bool)
	for right, granted := range r.rights[rightsKey(user.Id, entity, entityValue)] {
		res[right] = granted
	}
	return res, nil
}
