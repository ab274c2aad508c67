// Package node identifies running service instances within a cluster.
package node

import "github.com/google/uuid"

// Identity uniquely names one running service instance. Admin messages
// carry identities as source and destination; brokers compare them
// against the local identity to decide delivery. The local identity is
// always an explicit constructor argument, never a package-level
// singleton.
type Identity string

// NewIdentity returns a fresh, unique instance identity.
func NewIdentity() Identity {
	return Identity(uuid.NewString())
}

func (i Identity) String() string { return string(i) }

// IsZero reports whether the identity is unset. A zero destination on a
// message means broadcast.
func (i Identity) IsZero() bool { return i == "" }
