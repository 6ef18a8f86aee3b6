package core

import (
	"context"

	"gopkg.in/yaml.v3"
)

// A cvchat module moves through these optional hooks:
//
//	New → Configure → Provision → Validate → Start → (Reload)* → Stop
//
// LoadModule runs the first four; App runs the rest.

// Configurable modules receive their entry under "modules:" in cvchat.yaml.
// Configure is skipped when the entry is absent.
type Configurable interface {
	Configure(node *yaml.Node) error
}

// Provisioner modules fill defaults relative to AppContext.DataDir, open
// their resources and publish services (history store, oracle, worker
// pool) for the modules loaded after them.
type Provisioner interface {
	Provision(ctx *AppContext) error
}

// Validator modules check their provisioned configuration without side
// effects.
type Validator interface {
	Validate() error
}

// Starter modules launch listeners or background loops once every module
// is loaded.
type Starter interface {
	Start() error
}

// Stopper modules release what Start and Provision acquired. App stops
// modules in reverse start order.
type Stopper interface {
	Stop(ctx context.Context) error
}

// Reloader modules re-read configuration when the knowledge base or
// cvchat.yaml is reloaded.
type Reloader interface {
	Reload(ctx *AppContext) error
}

// Hooks names the lifecycle hooks mod implements, in call order.
func Hooks(mod Module) []string {
	var hooks []string
	if _, ok := mod.(Configurable); ok {
		hooks = append(hooks, "configure")
	}
	if _, ok := mod.(Provisioner); ok {
		hooks = append(hooks, "provision")
	}
	if _, ok := mod.(Validator); ok {
		hooks = append(hooks, "validate")
	}
	if _, ok := mod.(Starter); ok {
		hooks = append(hooks, "start")
	}
	if _, ok := mod.(Reloader); ok {
		hooks = append(hooks, "reload")
	}
	if _, ok := mod.(Stopper); ok {
		hooks = append(hooks, "stop")
	}
	return hooks
}
