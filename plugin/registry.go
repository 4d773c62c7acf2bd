package plugin

import "fmt"

// PluginFactory creates a new instance of a plugin.
type PluginFactory func() Plugin

// pluginRegistry is the global registry of plugin factories. Built-in
// plugins (internal/plugins/cache, wordfilter, maxtoken, ratelimit,
// logger) register themselves here from an init func; config.go's plugin
// entries are resolved against it by name at LoadPlugins time.
var pluginRegistry = map[string]PluginFactory{}

// RegisterFactory registers a plugin factory by name. Called from package
// init, so a name collision is a build-time wiring mistake, not a runtime
// condition the gateway can recover from — silently letting the second
// registration shadow the first would mean a config referencing "word-filter"
// resolves to whichever package's init ran last.
func RegisterFactory(name string, factory PluginFactory) {
	if _, exists := pluginRegistry[name]; exists {
		panic(fmt.Sprintf("plugin: factory %q already registered", name))
	}
	pluginRegistry[name] = factory
}

// GetFactory returns a plugin factory by name.
func GetFactory(name string) (PluginFactory, bool) {
	f, ok := pluginRegistry[name]
	return f, ok
}

// RegisteredPlugins returns the names of all registered plugin factories.
func RegisteredPlugins() []string {
	names := make([]string, 0, len(pluginRegistry))
	for name := range pluginRegistry {
		names = append(names, name)
	}
	return names
}
