package memory

import (
	"context"
	"sync"

	"github.com/ticket721/actionset/model"
	"github.com/ticket721/actionset/persistence"
	"github.com/ticket721/actionset/util"
)

type actionSetStorage struct {
	mu             sync.RWMutex
	rows           map[string][]byte
	encoderDecoder util.EncoderDecoder[model.RawActionSet]
}

var _ persistence.ActionSetStorage = new(actionSetStorage)

// NewActionSetStorage keeps rows encoded so callers never share state with
// the store.
func NewActionSetStorage() *actionSetStorage {
	return &actionSetStorage{
		rows:           make(map[string][]byte),
		encoderDecoder: util.NewJsonEncoderDecoder[model.RawActionSet](),
	}
}

func (s *actionSetStorage) Create(ctx context.Context, raw model.RawActionSet) error {
	data, err := s.encoderDecoder.Encode(raw)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.rows[raw.Id]; ok {
		return persistence.ConflictError{Entity: persistence.ENTITY_ACTION_SET, Id: raw.Id}
	}
	s.rows[raw.Id] = data
	return nil
}

func (s *actionSetStorage) Get(ctx context.Context, query model.ActionSetQuery) (*model.RawActionSet, error) {
	s.mu.RLock()
	data, ok := s.rows[query.Id]
	s.mu.RUnlock()
	if !ok {
		return nil, persistence.NotFoundError{Entity: persistence.ENTITY_ACTION_SET, Id: query.Id}
	}
	return s.encoderDecoder.Decode(data)
}

func (s *actionSetStorage) Update(ctx context.Context, query model.ActionSetQuery, update model.ActionSetUpdate) (*model.RawActionSet, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	data, ok := s.rows[query.Id]
	if !ok {
		return nil, persistence.NotFoundError{Entity: persistence.ENTITY_ACTION_SET, Id: query.Id}
	}
	raw, err := s.encoderDecoder.Decode(data)
	if err != nil {
		return nil, err
	}
	update.Apply(raw)
	data, err = s.encoderDecoder.Encode(*raw)
	if err != nil {
		return nil, err
	}
	s.rows[query.Id] = data
	return raw, nil
}

// Search returns matching rows oldest dispatch first.
func (s *actionSetStorage) Search(ctx context.Context, filter model.ActionSetFilter) ([]model.RawActionSet, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	res := make([]model.RawActionSet, 0)
	for _, data := range s.rows {
		raw, err := s.encoderDecoder.Decode(data)
		if err != nil {
			return nil, persistence.StorageLayerError{Message: err.Error()}
		}
		if filter.Match(raw) {
			res = append(res, *raw)
		}
	}
	return filter.Cut(res), nil
}
