// Package asset copies the pass images into a member's working directory.
//
// The capability table is the single source of truth for which image files a
// pass may carry, which of them are required, and their nominal dimensions.
package asset
