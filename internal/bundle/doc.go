// Package bundle assembles the signed .pkpass archive and installs it atomically.
package bundle
