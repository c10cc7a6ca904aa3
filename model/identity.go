// File: model/identity.go
package model

import "time"

// Identity is the registered record for a principal. One record exists per
// principal, keyed by Owner, and is never deleted. Name and Email are fixed
// at creation; there is no update operation for them.
type Identity struct {
	ObjectType string    `json:"objectType"` // Set to the composite key object type (Identity)
	Owner      string    `json:"owner"`      // Principal that created the record; also the key
	Name       string    `json:"name"`       // Self-declared display name
	Email      string    `json:"email"`      // Self-declared contact address
	CreatedAt  time.Time `json:"createdAt"`  // Timestamp when the identity was registered
	IsVerified bool      `json:"isVerified"` // Set true by a general verification; never cleared
	// Attributes is a reserved extension point for self-declared key/value
	// claims. No chaincode operation populates it yet.
	Attributes map[string]string `json:"attributes"`
	Verifiers  []string          `json:"verifiers"` // Principals that have performed a general verification
}

// VerifierGrant records the authorization of a principal as a verifier.
// Grants are never removed.
type VerifierGrant struct {
	ObjectType   string    `json:"objectType"`   // Set to the composite key object type (VerifierGrant)
	Principal    string    `json:"principal"`    // The authorized verifier
	AuthorizedBy string    `json:"authorizedBy"` // Admin (or self, at bring-up) that granted the authorization
	AuthorizedAt time.Time `json:"authorizedAt"` // Timestamp of the grant
}

// PaginatedIdentityResponse is the structure returned by paginated identity queries.
type PaginatedIdentityResponse struct {
	Identities   []*Identity `json:"identities"`
	NextBookmark string      `json:"nextBookmark"`
	FetchedCount int32       `json:"fetchedCount"`
}
