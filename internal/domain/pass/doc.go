// Package pass builds the PassKit descriptor (pass.json) for a roster member.
//
// The descriptor mirrors Apple's generic pass layout: identifiers from the
// static configuration, a barcode pointing at the member's contact page and
// ordered primary, secondary, auxiliary and back field groups. Every build
// draws a fresh serial number so the wallet treats regenerated passes as new.
package pass
