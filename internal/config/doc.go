// Package config loads and validates the engine's YAML configuration.
//
// The file is read once at startup, ${VAR} references are expanded
// from the environment, defaults fill unset fields, and validation
// rejects configurations the engine cannot run with. Runtime changes
// (risk limits, kill switch) go through the pipeline's control
// methods, not through this package.
package config
