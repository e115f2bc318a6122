// Package version exposes build metadata for the wallet-pass binaries.
//
// Version, Commit and BuildTime are injected via -ldflags at release time.
// Short is also stamped into the issued-pass ledger so a bundle can be traced
// back to the generator build that produced it.
package version
