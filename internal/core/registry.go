package core

import (
	"cmp"
	"fmt"
	"slices"
	"sync"
)

var (
	modules   = make(map[string]ModuleInfo)
	modulesMu sync.RWMutex
)

// RegisterModule adds a module to the registry. It panics on an invalid or
// duplicate ID and on a nil constructor, so mistakes surface at init time.
func RegisterModule(instance Module) {
	info := instance.ModuleInfo()
	if err := info.ID.Validate(); err != nil {
		panic(err.Error())
	}
	if info.New == nil {
		panic(fmt.Sprintf("module %s: New function must not be nil", info.ID))
	}

	modulesMu.Lock()
	defer modulesMu.Unlock()

	id := string(info.ID)
	if _, exists := modules[id]; exists {
		panic(fmt.Sprintf("module already registered: %s", id))
	}
	modules[id] = info
}

// GetModule returns the ModuleInfo for the given ID, or false if not found.
func GetModule(id string) (ModuleInfo, bool) {
	modulesMu.RLock()
	defer modulesMu.RUnlock()
	info, ok := modules[id]
	return info, ok
}

// GetModules returns all registered modules in load order.
func GetModules() []ModuleInfo {
	modulesMu.RLock()
	result := make([]ModuleInfo, 0, len(modules))
	for _, info := range modules {
		result = append(result, info)
	}
	modulesMu.RUnlock()

	slices.SortFunc(result, func(a, b ModuleInfo) int { return compareIDs(a.ID, b.ID) })
	return result
}

// GetModulesByNamespace returns the modules registered under namespace
// (e.g. "oracle" matches "oracle.worker"), sorted by ID.
func GetModulesByNamespace(namespace string) []ModuleInfo {
	var result []ModuleInfo
	for _, info := range GetModules() {
		if info.ID.Namespace() == namespace {
			result = append(result, info)
		}
	}
	return result
}

// SortLoadOrder sorts module IDs in place into load order: by namespace rank,
// then by ID. App starts modules in this order and stops them in reverse,
// so the gateway stops taking requests before the history store closes.
func SortLoadOrder(ids []string) {
	slices.SortFunc(ids, func(a, b string) int { return compareIDs(ModuleID(a), ModuleID(b)) })
}

func compareIDs(a, b ModuleID) int {
	return cmp.Or(cmp.Compare(a.Rank(), b.Rank()), cmp.Compare(a, b))
}

// resetRegistry clears the registry. Only for testing.
func resetRegistry() {
	modulesMu.Lock()
	defer modulesMu.Unlock()
	modules = make(map[string]ModuleInfo)
}
