// Package netapi defines the contract between a link layer device and the
// network layer above it.
package netapi
