// Package runlock keeps two generator runs from writing into the same output directory.
//
// A run drops a marker file holding its PID into the output directory. A marker
// left by a process that no longer exists, or one older than the configured
// lifetime, is treated as stale and replaced.
package runlock
