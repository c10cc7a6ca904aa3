package contract

import (
	"fmt"
	"time"

	"trustid/model"

	"github.com/hyperledger/fabric-contract-api-go/contractapi"
)

// --- Verification Engine ---

// generalVerificationSentinel selects general mode in VerifyIdentity when
// passed as the credentialID argument. Real credential ids start at 1.
const generalVerificationSentinel = "0"

// VerifyIdentity is the single verification entry point, with two modes
// selected by credentialID. The caller must be an authorized verifier and
// subject must have a registered identity in both modes.
//
// General mode (credentialID "0" or empty): attests the identity as a whole.
// IsVerified is set true and the caller is recorded in the identity's
// verifier set. The flag never goes back to false, and a repeat verification
// by the same or another verifier still succeeds and still records the
// verifier. This is the only stateful path and emits an IdentityVerified
// event.
//
// Credential mode (any other credentialID): checks one credential against the
// subject, its revocation flag, and its expiry. Nothing is written and no
// event is emitted, so any verifier can re-check a credential indefinitely.
// The transaction timestamp is the clock: a credential is still good at
// exactly ExpiresAt and rejected one second later.
func (s *TrustIDSmartContract) VerifyIdentity(ctx contractapi.TransactionContextInterface, subject, credentialID string) (bool, error) {
	rm := NewRegistryManager(ctx)
	caller, err := rm.GetCurrentPrincipal()
	if err != nil {
		return false, fmt.Errorf("VerifyIdentity: failed to get caller principal: %w", err)
	}
	if err := s.requireAuthorizedVerifier(rm, caller); err != nil {
		return false, fmt.Errorf("VerifyIdentity: %w", err)
	}
	if err := s.validateRequiredString(subject, "subject", maxStringInputLength); err != nil {
		return false, err
	}

	identity, err := s.getIdentityRecord(ctx, subject)
	if err != nil {
		return false, fmt.Errorf("VerifyIdentity: %w", err)
	}
	if identity == nil {
		return false, fmt.Errorf("%w: subject '%s' has no registered identity", ErrNotFound, subject)
	}

	if credentialID == "" || credentialID == generalVerificationSentinel {
		return s.verifyIdentityGeneral(ctx, caller, identity)
	}
	return s.verifyCredential(ctx, subject, credentialID)
}

// verifyIdentityGeneral performs the stateful, one-way trust attestation.
func (s *TrustIDSmartContract) verifyIdentityGeneral(ctx contractapi.TransactionContextInterface, caller string, identity *model.Identity) (bool, error) {
	now, err := s.getCurrentTxTimestamp(ctx)
	if err != nil {
		return false, fmt.Errorf("VerifyIdentity: %w", err)
	}

	if identity.IsVerified {
		logger.Debugf("Identity '%s' is already verified. Recording additional verifier '%s'.", identity.Owner, caller)
	}
	identity.IsVerified = true
	alreadyRecorded := false
	for _, v := range identity.Verifiers {
		if v == caller {
			alreadyRecorded = true
			break
		}
	}
	if !alreadyRecorded {
		identity.Verifiers = append(identity.Verifiers, caller)
	}

	if err := s.putIdentityRecord(ctx, identity); err != nil {
		return false, fmt.Errorf("VerifyIdentity: %w", err)
	}

	logger.Infof("Identity '%s' verified by '%s' (verifier count: %d)", identity.Owner, caller, len(identity.Verifiers))
	if err := s.emitAuditEvent(ctx, "IdentityVerified", map[string]interface{}{
		"subject":   identity.Owner,
		"verifier":  caller,
		"timestamp": now,
	}); err != nil {
		return false, err
	}
	return true, nil
}

// verifyCredential performs the stateless credential check.
func (s *TrustIDSmartContract) verifyCredential(ctx contractapi.TransactionContextInterface, subject, credentialID string) (bool, error) {
	id, err := parseCredentialID(credentialID)
	if err != nil {
		return false, err
	}

	credential, err := s.getCredentialRecord(ctx, id)
	if err != nil {
		return false, fmt.Errorf("VerifyIdentity: %w", err)
	}
	if credential == nil {
		return false, fmt.Errorf("%w: credential %d does not exist", ErrNotFound, id)
	}
	if credential.Subject != subject {
		return false, fmt.Errorf("%w: credential %d was issued for '%s', not '%s'", ErrSubjectMismatch, id, credential.Subject, subject)
	}
	if !credential.IsValid {
		return false, fmt.Errorf("%w: credential %d has been revoked by its issuer", ErrCredentialRevoked, id)
	}

	now, err := s.getCurrentTxTimestamp(ctx)
	if err != nil {
		return false, fmt.Errorf("VerifyIdentity: %w", err)
	}
	if now.After(credential.ExpiresAt) {
		return false, fmt.Errorf("%w: credential %d expired at %s", ErrCredentialExpired, id, credential.ExpiresAt.Format(time.RFC3339))
	}

	logger.Debugf("Credential %d verified for subject '%s' (valid until %s)", id, subject, credential.ExpiresAt)
	return true, nil
}
