// Package workspace manages the private scratch directory of a single member pipeline.
//
// Every intermediate file (descriptor, manifest, derived certificate and key,
// signature, copied assets) is created through a Workspace so that Cleanup can
// remove all of it on every exit path.
package workspace
