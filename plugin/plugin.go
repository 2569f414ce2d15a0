// Package plugin is the public surface of the dynamic plugin system:
// discovery across search paths, full loads with retained library
// handles, semantic versioning, and registration of plugin-provided
// inference backends.
package plugin

import (
	"github.com/quiver-ml/quiver/internal/plugin"
)

// Exported symbol names required of every plugin library.
const (
	SymbolInfo      = plugin.SymbolInfo
	SymbolInterface = plugin.SymbolInterface
)

// Type classifies what a plugin provides.
type Type = plugin.Type

// Plugin types.
const (
	TypeInferenceEngine Type = plugin.TypeInferenceEngine
	TypePreprocessor    Type = plugin.TypePreprocessor
	TypePostprocessor   Type = plugin.TypePostprocessor
	TypeCustom          Type = plugin.TypeCustom
)

// State tracks a plugin's lifecycle.
type State = plugin.State

// Plugin lifecycle states.
const (
	StateUnloaded    State = plugin.StateUnloaded
	StateLoaded      State = plugin.StateLoaded
	StateInitialized State = plugin.StateInitialized
	StateError       State = plugin.StateError
)

// Info is the static metadata a plugin publishes.
type Info = plugin.Info

// Interface is the operation table a plugin publishes.
type Interface = plugin.Interface

// Plugin is one loaded module.
type Plugin = plugin.Plugin

// Factory owns loaded plugins and their search paths.
type Factory = plugin.Factory

// FactoryOption configures a Factory.
type FactoryOption = plugin.FactoryOption

// DiscoverFunc receives each valid plugin found during discovery.
type DiscoverFunc = plugin.DiscoverFunc

// Version is a semantic plugin version.
type Version = plugin.Version

// Factory options.
var (
	WithFactoryLogger = plugin.WithFactoryLogger
	WithRegistry      = plugin.WithRegistry
	WithOnLoad        = plugin.WithOnLoad
)

// NewFactory creates an empty plugin factory.
var NewFactory = plugin.NewFactory

// ParseVersion parses "M.m.p[-build]".
var ParseVersion = plugin.ParseVersion
