package contract

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/hyperledger/fabric-contract-api-go/contractapi"
)

// --- Core Helper Methods (used across multiple operations) ---

// getCurrentTxTimestamp retrieves the current transaction timestamp from the stub.
// Every peer endorsing the transaction sees the same value, keeping time-derived
// state (CreatedAt, ExpiresAt, expiry checks) deterministic.
func (s *TrustIDSmartContract) getCurrentTxTimestamp(ctx contractapi.TransactionContextInterface) (time.Time, error) {
	ts, err := ctx.GetStub().GetTxTimestamp()
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to get transaction timestamp: %w", err)
	}
	return ts.AsTime(), nil
}

// --- Key Creation Helpers ---

// padCredentialID renders a credential id with fixed width so that composite
// keys sort in issuance order under range and partial-key scans.
func padCredentialID(id uint64) string {
	return fmt.Sprintf("%012d", id)
}

func (s *TrustIDSmartContract) createIdentityKey(ctx contractapi.TransactionContextInterface, owner string) (string, error) {
	return ctx.GetStub().CreateCompositeKey(identityObjectType, []string{owner})
}

func (s *TrustIDSmartContract) createCredentialKey(ctx contractapi.TransactionContextInterface, id uint64) (string, error) {
	return ctx.GetStub().CreateCompositeKey(credentialObjectType, []string{padCredentialID(id)})
}

func (s *TrustIDSmartContract) createCredentialSubjectKey(ctx contractapi.TransactionContextInterface, subject string, id uint64) (string, error) {
	return ctx.GetStub().CreateCompositeKey(credentialSubjectObjectType, []string{subject, padCredentialID(id)})
}

func (s *TrustIDSmartContract) createCredentialCounterKey(ctx contractapi.TransactionContextInterface) (string, error) {
	return ctx.GetStub().CreateCompositeKey(credentialCounterObjectType, []string{"total"})
}

// --- Validation & Parsing Helpers ---

func (s *TrustIDSmartContract) validateRequiredString(input, field string, max int) error {
	if strings.TrimSpace(input) == "" {
		return fmt.Errorf("%w: %s cannot be empty", ErrInvalidInput, field)
	}
	if len(input) > max {
		return fmt.Errorf("%w: %s exceeds max length %d", ErrInvalidInput, field, max)
	}
	return nil
}

// parseCredentialID parses a decimal credential id string. Zero is the
// sentinel for "no credential" in VerifyIdentity, so ids here start at 1.
func parseCredentialID(idStr string) (uint64, error) {
	id, err := strconv.ParseUint(strings.TrimSpace(idStr), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: credentialId '%s' is not a valid non-negative integer", ErrInvalidInput, idStr)
	}
	return id, nil
}

// parseDurationSeconds parses the requested credential lifetime. Zero is
// accepted and yields a credential that is already expired at issuance.
func parseDurationSeconds(durationStr string) (int64, error) {
	seconds, err := strconv.ParseInt(strings.TrimSpace(durationStr), 10, 64)
	if err != nil || seconds < 0 {
		return 0, fmt.Errorf("%w: durationSeconds '%s' must be a non-negative integer", ErrInvalidInput, durationStr)
	}
	return seconds, nil
}

// --- Authorization Gates ---

// requireAdmin checks that caller is the registry admin.
func (s *TrustIDSmartContract) requireAdmin(rm *RegistryManager, caller string) error {
	isCallerAdmin, err := rm.IsAdmin(caller)
	if err != nil {
		return fmt.Errorf("failed to check admin status: %w", err)
	}
	if !isCallerAdmin {
		return fmt.Errorf("%w: caller '%s' is not the registry admin", ErrUnauthorized, caller)
	}
	return nil
}

// requireAuthorizedVerifier checks that caller holds a verifier grant.
func (s *TrustIDSmartContract) requireAuthorizedVerifier(rm *RegistryManager, caller string) error {
	isVerifier, err := rm.IsAuthorizedVerifier(caller)
	if err != nil {
		return fmt.Errorf("failed to check verifier grant: %w", err)
	}
	if !isVerifier {
		return fmt.Errorf("%w: caller '%s' is not an authorized verifier", ErrUnauthorized, caller)
	}
	return nil
}

// --- Audit Events ---

// emitAuditEvent sets the single chaincode event for a mutating transaction.
// A failure here fails the whole transaction: state writes and their audit
// record commit together or not at all.
func (s *TrustIDSmartContract) emitAuditEvent(ctx contractapi.TransactionContextInterface, eventName string, payload map[string]interface{}) error {
	for k, v := range payload {
		if t, ok := v.(time.Time); ok {
			payload[k] = t.Format(time.RFC3339)
		}
	}
	eventBytes, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal payload for event '%s': %w", eventName, err)
	}
	if err := ctx.GetStub().SetEvent(eventName, eventBytes); err != nil {
		return fmt.Errorf("failed to set event '%s': %w", eventName, err)
	}
	logger.Debugf("Audit event '%s' set on transaction.", eventName)
	return nil
}
