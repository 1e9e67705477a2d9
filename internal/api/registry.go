package api

import (
	"sort"

	"esports-aggregator/internal/config"
	"esports-aggregator/internal/domain"

	"github.com/rs/zerolog"
)

type constructor func(domain.ProviderDescriptor) Adapter

var constructors = map[string]constructor{
	"hltv":     func(d domain.ProviderDescriptor) Adapter { return NewHLTVAdapter(d) },
	"opendota": func(d domain.ProviderDescriptor) Adapter { return NewOpenDotaAdapter(d) },
	"riot":     func(d domain.ProviderDescriptor) Adapter { return NewRiotAdapter(d) },
	"faceit":   func(d domain.ProviderDescriptor) Adapter { return NewFaceitAdapter(d) },
}

// Registry holds one adapter per configured provider in priority order.
type Registry struct {
	adapters    []Adapter
	descriptors map[string]domain.ProviderDescriptor
}

func NewRegistry(cfg *config.Config, logger zerolog.Logger) *Registry {
	return newRegistry(cfg.Providers, logger)
}

func newRegistry(descriptors []domain.ProviderDescriptor, logger zerolog.Logger) *Registry {
	providers := append([]domain.ProviderDescriptor(nil), descriptors...)
	sort.SliceStable(providers, func(i, j int) bool { return providers[i].Priority < providers[j].Priority })

	r := &Registry{descriptors: make(map[string]domain.ProviderDescriptor, len(providers))}
	for _, p := range providers {
		build, ok := constructors[p.ID]
		if !ok {
			logger.Warn().Str("provider", p.ID).Msg("no adapter for provider, skipping")
			continue
		}
		r.adapters = append(r.adapters, build(p))
		r.descriptors[p.ID] = p
	}
	return r
}

// NewRegistryFrom wraps prebuilt adapters, ordered as given.
func NewRegistryFrom(descriptors []domain.ProviderDescriptor, adapters []Adapter) *Registry {
	r := &Registry{adapters: adapters, descriptors: make(map[string]domain.ProviderDescriptor, len(descriptors))}
	for _, d := range descriptors {
		r.descriptors[d.ID] = d
	}
	return r
}

func (r *Registry) All() []Adapter { return r.adapters }

func (r *Registry) Descriptor(id string) (domain.ProviderDescriptor, bool) {
	d, ok := r.descriptors[id]
	return d, ok
}

// For lists adapters able to serve game and kind, highest priority first.
func (r *Registry) For(game domain.GameKind, kind domain.RecordKind) []Adapter {
	var out []Adapter
	for _, a := range r.adapters {
		if a.Supports(game, kind) {
			out = append(out, a)
		}
	}
	return out
}
