// Package core provides the foundational components shared by every
// dispatchd node (endpoint, worker, master): version metadata plus the
// core/* subpackages (broker key codec, message codec, command parser,
// parameter binder, configuration, logging).
package core

// VERSION of the dispatchd fabric, reported by the endpoint's built-in
// "version" command (spec.md §4.8).
var VERSION = "undefined" // set during the build process with -ldflags
