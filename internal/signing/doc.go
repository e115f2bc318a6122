// Package signing produces the detached CMS signature over a pass manifest.
//
// Signing is a linear sequence of three steps: extract the signing certificate
// from the PKCS#12 identity, extract its private key, then sign manifest.json
// together with the Apple WWDR intermediate. A failed step stops the sequence,
// and the error wraps the matching sentinel from the failure package.
//
// Two backends exist. NativeSigner keeps key material in memory. OpenSSLSigner
// drives the openssl binary and leaves derived PEM files in the working
// directory, where the workspace cleanup removes them.
package signing
