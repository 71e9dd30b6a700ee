// Package alert implements the dispatch core: a poll loop that drains
// pending alerts, fans each one out to its group's configured channel
// instances with a bounded wait, and records per-instance and aggregate
// outcomes.
package alert

import (
	"context"
	"sync"

	"workflow-orchestrator/internal/models"
)

// Channel is the capability contract every pluggable notification channel
// implements. Both operations report their outcome in the result, never by
// panicking or returning an error; the dispatch core treats each channel as a
// black box that either delivered or did not.
//
// The ctx passed in is the process lifetime, not the per-call wait bound: a
// call that outlives the dispatcher's wait timeout is abandoned, not
// cancelled, and may still complete with side effects.
type Channel interface {
	Process(ctx context.Context, info models.AlertInfo) models.AlertResult
	CloseAlert(ctx context.Context, info models.AlertInfo) models.AlertResult
}

// Registry maps plugin-definition ids to channel implementations. Plugin
// instances reference a definition id; the registry selects the concrete
// channel for it.
type Registry struct {
	mu       sync.RWMutex
	channels map[int]Channel
}

func NewRegistry() *Registry {
	return &Registry{channels: make(map[int]Channel)}
}

func (r *Registry) Register(pluginDefineID int, ch Channel) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.channels[pluginDefineID] = ch
}

func (r *Registry) Get(pluginDefineID int) (Channel, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ch, ok := r.channels[pluginDefineID]
	return ch, ok
}
