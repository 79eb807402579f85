// Package cli parses command-line arguments into an Invocation, validates
// user input and maps failures onto process exit codes.
package cli
