// Package generator turns a roster into signed Apple Wallet passes.
//
// Every member runs through the same pipeline in a private working directory:
// build the descriptor, collect assets, hash the manifest, sign it, package the
// archive and clean up. A failing member never stops the batch; the run ends
// with a summary of what succeeded, failed and was skipped.
package generator
