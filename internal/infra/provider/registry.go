package provider

import (
	"notify-dispatch/internal/domain/job"
	"notify-dispatch/internal/usecase/commands"
)

// Registry maps channels to their configured delivery provider. Channels
// without one get an always-failing provider, so their jobs still move
// through the regular retry and fallback machinery instead of erroring out.
type Registry struct {
	byChannel map[job.Channel]commands.Provider
}

func NewRegistry(providers ...commands.Provider) *Registry {
	byChannel := make(map[job.Channel]commands.Provider, len(providers))
	for _, p := range providers {
		if p == nil {
			continue
		}
		byChannel[p.Channel()] = p
	}
	return &Registry{byChannel: byChannel}
}

func (r *Registry) ForChannel(ch job.Channel) commands.Provider {
	if p, ok := r.byChannel[ch]; ok {
		return p
	}
	return NewUnavailable(ch)
}
