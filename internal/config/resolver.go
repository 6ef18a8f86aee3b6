package config

import (
	"fmt"
	"maps"
	"slices"

	"github.com/flemzord/cvchat/internal/core"
)

// Resolve returns the configured module IDs in load order: memory modules,
// then oracles, then the gateway.
func Resolve(cfg *Config) []string {
	ids := slices.Collect(maps.Keys(cfg.Modules))
	core.SortLoadOrder(ids)
	return ids
}

// moduleErrors reports configured module IDs that are malformed or not
// compiled into this binary.
func moduleErrors(cfg *Config) []error {
	var errs []error
	for _, id := range Resolve(cfg) {
		if err := core.ModuleID(id).Validate(); err != nil {
			errs = append(errs, fmt.Errorf("config: modules: %w", err))
			continue
		}
		if _, ok := core.GetModule(id); !ok {
			errs = append(errs, fmt.Errorf("config: unknown module %q", id))
		}
	}
	return errs
}
