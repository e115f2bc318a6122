// Package config defines the immutable settings shared by the wallet-pass
// binaries: pass identifiers and styling, member defaults, filesystem paths,
// the signer backend and batch tuning.
//
// Settings are stored as YAML. The PKCS#12 password is read from the
// WALLET_PASS_CERT_PASSWORD environment variable (optionally via .env) and is
// never written back by Save.
package config
