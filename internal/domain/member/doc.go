// Package member contains the roster record type, its validation rules and
// the slug that names every artifact produced for a member.
package member
