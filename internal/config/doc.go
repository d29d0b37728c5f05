// Package config loads and validates the unshub configuration.
//
// Configuration lives in config.yaml inside a configuration directory
// (default ~/.config/unshub). Loading starts from the built-in defaults and
// overlays the file on top, so a partial file only overrides what it names.
// A Watcher can monitor the directory and reload on change; a change that
// fails validation is ignored and the previous configuration stays active.
package config
