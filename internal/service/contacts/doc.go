// Package contacts writes a vCard 3.0 contact card for every member of the
// roster, named after the same slug as the member's pass.
package contacts
