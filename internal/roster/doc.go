// Package roster reads team members from the CSV roster.
package roster
