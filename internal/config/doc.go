// Package config loads the extension host configuration.
//
// Values come from three sources, later ones overriding earlier ones:
//
//  1. built-in defaults (DefaultConfig)
//  2. a config file: config.yaml, config.json or config.toml in the user
//     config directory or ./.exthost, or the file named by --config
//  3. environment variables prefixed with EXTHOST_, with dots replaced by
//     underscores (EXTHOST_LOG_LEVEL, EXTHOST_EXTENSIONS_ACTIVATION_TIMEOUT)
//
// A minimal file:
//
//	log:
//	  level: debug
//	extensions:
//	  paths: [./extensions]
//	  activation_timeout: 5s
//	workspace:
//	  folders: [.]
//	  settings:
//	    demo:
//	      greeting: hi
//	policy:
//	  default:
//	    allowed_groups: [commands, window, workspace, env]
//	  overrides:
//	    - extension: demo.trusted
//	      allowed_groups: [commands, window, workspace, env, tasks]
//
// Workspace settings are flattened to dotted keys ("demo.greeting") for
// the workspace configuration view. Keys are case-insensitive and reported
// in lower case.
//
// Loader.Watch re-reads the file on change and hands the validated result
// to a callback; a file that no longer validates is ignored.
package config
