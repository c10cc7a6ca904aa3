// File: model/credential.go
package model

import "time"

// Credential is an issuer-attributed claim about a subject principal. The
// payload itself lives off-chain; Data carries an opaque reference to it
// (e.g. an IPFS URI). Records are never deleted and ids are never reused.
//
// IsValid only tracks revocation. Expiration is derived on read: a credential
// is usable only while IsValid is true and the current time is not past
// ExpiresAt. A credential can therefore still carry IsValid=true after it has
// expired, and callers must check both.
type Credential struct {
	ObjectType     string    `json:"objectType"`     // Set to the composite key object type (Credential)
	ID             uint64    `json:"id"`             // Sequential identifier, dense from 1
	Issuer         string    `json:"issuer"`         // Principal that issued the credential
	Subject        string    `json:"subject"`        // Principal the credential describes
	CredentialType string    `json:"credentialType"` // Free-text category tag (e.g. "education")
	Data           string    `json:"data"`           // Opaque off-chain payload reference
	IssuedAt       time.Time `json:"issuedAt"`       // Timestamp of issuance
	ExpiresAt      time.Time `json:"expiresAt"`      // IssuedAt + requested duration
	IsValid        bool      `json:"isValid"`        // Cleared by issuer revocation; never set back
}
