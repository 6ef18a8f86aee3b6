package core

import (
	"errors"
	"fmt"
	"slices"
	"strings"
)

// ErrInvalidModuleID is returned for IDs outside the "<namespace>.<name>" form
// or in a namespace cvchat does not load.
var ErrInvalidModuleID = errors.New("invalid module id")

// namespaces lists the module namespaces in load order: the history store
// first, then answer sources, then the HTTP surface that depends on both.
var namespaces = []string{"memory", "oracle", "gateway"}

// Namespaces returns the known module namespaces in load order.
func Namespaces() []string { return slices.Clone(namespaces) }

// ModuleID identifies a module, namespaced with dots (e.g. "gateway.http").
type ModuleID string

// Namespace returns the part of the ID before the first dot.
func (id ModuleID) Namespace() string {
	ns, _, _ := strings.Cut(string(id), ".")
	return ns
}

// Rank is the position of the ID's namespace in load order. Unknown
// namespaces rank after every known one.
func (id ModuleID) Rank() int {
	if i := slices.Index(namespaces, id.Namespace()); i >= 0 {
		return i
	}
	return len(namespaces)
}

// Validate checks that id is "<namespace>.<name>" with a known namespace and
// a name made of lower-case letters, digits and underscores.
func (id ModuleID) Validate() error {
	ns, name, ok := strings.Cut(string(id), ".")
	if !ok || name == "" {
		return fmt.Errorf("%w %q: want <namespace>.<name>", ErrInvalidModuleID, id)
	}
	if !slices.Contains(namespaces, ns) {
		return fmt.Errorf("%w %q: namespace %q is not one of %s",
			ErrInvalidModuleID, id, ns, strings.Join(namespaces, ", "))
	}
	for _, r := range name {
		if (r < 'a' || r > 'z') && (r < '0' || r > '9') && r != '_' {
			return fmt.Errorf("%w %q: name may only hold a-z, 0-9 and _", ErrInvalidModuleID, id)
		}
	}
	return nil
}

// ModuleInfo describes a registered module.
type ModuleInfo struct {
	ID  ModuleID
	New func() Module
}

// Module is implemented by every pluggable component of the application.
type Module interface {
	ModuleInfo() ModuleInfo
}
