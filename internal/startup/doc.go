// Package startup handles configuration loading from environment
// variables, directory validation, and structured startup/shutdown
// logging.
package startup
