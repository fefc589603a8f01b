// Package identity implements the Identity Resolver: resolving a
// (platform, platform_id) pair to a stable internal identity, linking two
// identities into one on cross-platform verification, and listing an
// identity's current bindings.
//
// Grounded on goclaw's internal/store/pg pattern of a Router-backed store
// behind a small interface, generalized from sessions to identities.
package identity

import "time"

// Binding is one platform credential attached to an Identity.
type Binding struct {
	Platform   string
	PlatformID string
	Verified   bool
	LinkedAt   time.Time
}
