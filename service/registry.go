package service

import (
	"context"
	"sync"

	"github.com/ticket721/actionset/model"
)

// Progress reports handler progress in percent for the job being processed.
type Progress func(percent int)

// Handler processes the current action of actionSet. It advances the set with
// Next, or halts it with SetActionError or SetActionIncomplete, and returns
// true to have the result persisted. Returning false means nothing changed.
// The error return is reserved for infrastructure failures; bad input is
// recorded on the action.
type Handler func(ctx context.Context, actionSet *model.ActionSet, progress Progress) (*model.ActionSet, bool, error)

// Builder produces the initial ActionSet of one workflow template.
type Builder interface {
	BuildActionSet(ctx context.Context, caller model.User, args map[string]any) (*model.ActionSet, error)
	IsPrivate() bool
}

type CompletionHook interface {
	OnComplete(ctx context.Context, actionSet *model.ActionSet) error
}

type CompletionHookFunc func(ctx context.Context, actionSet *model.ActionSet) error

func (f CompletionHookFunc) OnComplete(ctx context.Context, actionSet *model.ActionSet) error {
	return f(ctx, actionSet)
}

type registry struct {
	mu            sync.RWMutex
	inputHandlers map[string]Handler
	eventHandlers map[string]Handler
	builders      map[string]Builder
	hooks         map[string]CompletionHook
}

func newRegistry() *registry {
	return &registry{
		inputHandlers: make(map[string]Handler),
		eventHandlers: make(map[string]Handler),
		builders:      make(map[string]Builder),
		hooks:         make(map[string]CompletionHook),
	}
}

func (s *ActionSetService) SetInputHandler(name string, handler Handler) {
	s.registry.mu.Lock()
	defer s.registry.mu.Unlock()
	s.registry.inputHandlers[name] = handler
}

func (s *ActionSetService) GetInputHandler(name string) (Handler, bool) {
	s.registry.mu.RLock()
	defer s.registry.mu.RUnlock()
	h, ok := s.registry.inputHandlers[name]
	return h, ok
}

func (s *ActionSetService) SetEventHandler(name string, handler Handler) {
	s.registry.mu.Lock()
	defer s.registry.mu.Unlock()
	s.registry.eventHandlers[name] = handler
}

func (s *ActionSetService) GetEventHandler(name string) (Handler, bool) {
	s.registry.mu.RLock()
	defer s.registry.mu.RUnlock()
	h, ok := s.registry.eventHandlers[name]
	return h, ok
}

// Handler looks up the handler of kind for action name.
func (s *ActionSetService) Handler(kind model.ActionType, name string) (Handler, bool) {
	switch kind {
	case model.ACTION_TYPE_INPUT:
		return s.GetInputHandler(name)
	case model.ACTION_TYPE_EVENT:
		return s.GetEventHandler(name)
	}
	return nil, false
}

func (s *ActionSetService) SetBuilder(name string, builder Builder) {
	s.registry.mu.Lock()
	defer s.registry.mu.Unlock()
	s.registry.builders[name] = builder
}

func (s *ActionSetService) getBuilder(name string) (Builder, bool) {
	s.registry.mu.RLock()
	defer s.registry.mu.RUnlock()
	b, ok := s.registry.builders[name]
	return b, ok
}

func (s *ActionSetService) SetCompletionHook(name string, hook CompletionHook) {
	s.registry.mu.Lock()
	defer s.registry.mu.Unlock()
	s.registry.hooks[name] = hook
}

func (s *ActionSetService) getCompletionHook(name string) (CompletionHook, bool) {
	s.registry.mu.RLock()
	defer s.registry.mu.RUnlock()
	h, ok := s.registry.hooks[name]
	return h, ok
}
