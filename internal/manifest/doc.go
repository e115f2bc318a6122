// Package manifest computes the SHA-1 manifest that the pass signature covers.
package manifest
