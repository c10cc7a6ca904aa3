package contract

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"trustid/model"

	"github.com/hyperledger/fabric-contract-api-go/contractapi"
)

// --- Credential Store Operations ---

// IssueCredential creates a credential about subject and returns its id. The
// caller must be an authorized verifier and the subject must already have an
// identity. Ids are allocated sequentially from 1 with no gaps: a failed
// invocation rolls back completely, so it never consumes an id.
//
// durationSeconds of "0" is accepted and produces a credential whose
// ExpiresAt equals IssuedAt, i.e. one that is expired the moment it exists.
func (s *TrustIDSmartContract) IssueCredential(ctx contractapi.TransactionContextInterface,
	subject, credentialType, data, durationSeconds string) (uint64, error) {

	rm := NewRegistryManager(ctx)
	caller, err := rm.GetCurrentPrincipal()
	if err != nil {
		return 0, fmt.Errorf("IssueCredential: failed to get caller principal: %w", err)
	}
	if err := s.requireAuthorizedVerifier(rm, caller); err != nil {
		return 0, fmt.Errorf("IssueCredential: %w", err)
	}
	logger.Infof("Chaincode Call: IssueCredential by '%s' for subject '%s' (type: '%s')", caller, subject, credentialType)

	if err := s.validateRequiredString(subject, "subject", maxStringInputLength); err != nil {
		return 0, err
	}
	if err := s.validateRequiredString(credentialType, "credentialType", maxStringInputLength); err != nil {
		return 0, err
	}
	if err := s.validateRequiredString(data, "data", maxDataRefLength); err != nil {
		return 0, err
	}
	seconds, err := parseDurationSeconds(durationSeconds)
	if err != nil {
		return 0, err
	}

	subjectIdentity, err := s.getIdentityRecord(ctx, subject)
	if err != nil {
		return 0, fmt.Errorf("IssueCredential: %w", err)
	}
	if subjectIdentity == nil {
		return 0, fmt.Errorf("%w: subject '%s' has no registered identity", ErrNotFound, subject)
	}

	now, err := s.getCurrentTxTimestamp(ctx)
	if err != nil {
		return 0, fmt.Errorf("IssueCredential: %w", err)
	}

	id, err := s.nextCredentialID(ctx)
	if err != nil {
		return 0, fmt.Errorf("IssueCredential: %w", err)
	}

	credential := model.Credential{
		ObjectType:     credentialObjectType,
		ID:             id,
		Issuer:         caller,
		Subject:        subject,
		CredentialType: credentialType,
		Data:           data,
		IssuedAt:       now,
		ExpiresAt:      now.Add(time.Duration(seconds) * time.Second),
		IsValid:        true,
	}
	if err := s.putCredentialRecord(ctx, &credential); err != nil {
		return 0, fmt.Errorf("IssueCredential: %w", err)
	}

	// Secondary index so credentials are discoverable by subject.
	subjectKey, err := s.createCredentialSubjectKey(ctx, subject, id)
	if err != nil {
		return 0, fmt.Errorf("IssueCredential: failed to create subject index key for credential %d: %w", id, err)
	}
	if err := ctx.GetStub().PutState(subjectKey, []byte(padCredentialID(id))); err != nil {
		return 0, fmt.Errorf("IssueCredential: failed to save subject index for credential %d: %w", id, err)
	}

	logger.Infof("Credential %d issued by '%s' for subject '%s' (type: '%s', expires: %s)", id, caller, subject, credentialType, credential.ExpiresAt.Format(time.RFC3339))
	if err := s.emitAuditEvent(ctx, "CredentialIssued", map[string]interface{}{
		"credentialId":   id,
		"issuer":         caller,
		"subject":        subject,
		"credentialType": credentialType,
		"timestamp":      now,
	}); err != nil {
		return 0, err
	}
	return id, nil
}

// RevokeCredential clears a credential's validity flag. Only the issuer may
// revoke; the registry admin cannot force-revoke another issuer's credential.
// Revoking an already-revoked credential succeeds and changes nothing.
func (s *TrustIDSmartContract) RevokeCredential(ctx contractapi.TransactionContextInterface, credentialID string) error {
	rm := NewRegistryManager(ctx)
	caller, err := rm.GetCurrentPrincipal()
	if err != nil {
		return fmt.Errorf("RevokeCredential: failed to get caller principal: %w", err)
	}
	logger.Infof("Chaincode Call: RevokeCredential %s by '%s'", credentialID, caller)

	id, err := parseCredentialID(credentialID)
	if err != nil {
		return err
	}
	credential, err := s.getCredentialRecord(ctx, id)
	if err != nil {
		return fmt.Errorf("RevokeCredential: %w", err)
	}
	if credential == nil {
		return fmt.Errorf("%w: credential %d does not exist", ErrNotFound, id)
	}
	if credential.Issuer != caller {
		return fmt.Errorf("%w: only the issuer '%s' can revoke credential %d", ErrUnauthorized, credential.Issuer, id)
	}

	now, err := s.getCurrentTxTimestamp(ctx)
	if err != nil {
		return fmt.Errorf("RevokeCredential: %w", err)
	}

	if !credential.IsValid {
		logger.Infof("Credential %d is already revoked. No state change.", id)
	} else {
		credential.IsValid = false
		if err := s.putCredentialRecord(ctx, credential); err != nil {
			return fmt.Errorf("RevokeCredential: %w", err)
		}
		logger.Infof("Credential %d revoked by issuer '%s'", id, caller)
	}

	return s.emitAuditEvent(ctx, "CredentialRevoked", map[string]interface{}{
		"credentialId": id,
		"revokedBy":    caller,
		"timestamp":    now,
	})
}

// GetCredential returns the full credential record, or an empty record if the
// id is unknown or unparsable. Public, side-effect free.
func (s *TrustIDSmartContract) GetCredential(ctx contractapi.TransactionContextInterface, credentialID string) (*model.Credential, error) {
	logger.Debugf("Chaincode Call: GetCredential %s", credentialID)
	id, err := strconv.ParseUint(credentialID, 10, 64)
	if err != nil || id == 0 {
		return &model.Credential{}, nil
	}
	credential, err := s.getCredentialRecord(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("GetCredential: %w", err)
	}
	if credential == nil {
		return &model.Credential{}, nil
	}
	return credential, nil
}

// GetTotalCredentials returns the number of credentials ever issued. The
// counter never decreases, even after revocations.
func (s *TrustIDSmartContract) GetTotalCredentials(ctx contractapi.TransactionContextInterface) (uint64, error) {
	logger.Debug("Chaincode Call: GetTotalCredentials")
	return s.readCredentialCounter(ctx)
}

// GetCredentialsBySubject returns every credential issued about the subject,
// in issuance order. Public, side-effect free.
func (s *TrustIDSmartContract) GetCredentialsBySubject(ctx contractapi.TransactionContextInterface, subject string) ([]*model.Credential, error) {
	logger.Debugf("Chaincode Call: GetCredentialsBySubject for '%s'", subject)
	if err := s.validateRequiredString(subject, "subject", maxStringInputLength); err != nil {
		return nil, err
	}

	resultsIterator, err := ctx.GetStub().GetStateByPartialCompositeKey(credentialSubjectObjectType, []string{subject})
	if err != nil {
		return nil, fmt.Errorf("GetCredentialsBySubject: failed to get subject index iterator for '%s': %w", subject, err)
	}
	defer resultsIterator.Close()

	credentials := []*model.Credential{}
	for resultsIterator.HasNext() {
		queryResponse, iterErr := resultsIterator.Next()
		if iterErr != nil {
			logger.Warningf("GetCredentialsBySubject: Failed to get next index entry from iterator: %v. Skipping.", iterErr)
			continue
		}
		id, parseErr := strconv.ParseUint(string(queryResponse.Value), 10, 64)
		if parseErr != nil {
			logger.Warningf("GetCredentialsBySubject: Invalid index value '%s' for key '%s': %v. Skipping.", string(queryResponse.Value), queryResponse.Key, parseErr)
			continue
		}
		credential, getErr := s.getCredentialRecord(ctx, id)
		if getErr != nil || credential == nil {
			logger.Warningf("GetCredentialsBySubject: Index points at credential %d which could not be loaded: %v. Skipping.", id, getErr)
			continue
		}
		credentials = append(credentials, credential)
	}
	return credentials, nil // Will be [] if empty, not null
}

// --- Internal Credential Helpers ---

// getCredentialRecord retrieves and unmarshals a credential. It returns nil
// (and no error) when no record exists.
func (s *TrustIDSmartContract) getCredentialRecord(ctx contractapi.TransactionContextInterface, id uint64) (*model.Credential, error) {
	credentialKey, err := s.createCredentialKey(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to create credential key for %d: %w", id, err)
	}
	credentialBytes, err := ctx.GetStub().GetState(credentialKey)
	if err != nil {
		return nil, fmt.Errorf("failed to read credential %d from ledger: %w", id, err)
	}
	if credentialBytes == nil {
		return nil, nil
	}
	var credential model.Credential
	if err := json.Unmarshal(credentialBytes, &credential); err != nil {
		return nil, fmt.Errorf("failed to unmarshal credential %d data: %w", id, err)
	}
	return &credential, nil
}

// putCredentialRecord marshals and writes a credential to the ledger.
func (s *TrustIDSmartContract) putCredentialRecord(ctx contractapi.TransactionContextInterface, credential *model.Credential) error {
	credentialKey, err := s.createCredentialKey(ctx, credential.ID)
	if err != nil {
		return fmt.Errorf("failed to create credential key for %d: %w", credential.ID, err)
	}
	credentialBytes, err := json.Marshal(credential)
	if err != nil {
		return fmt.Errorf("failed to marshal credential %d: %w", credential.ID, err)
	}
	if err := ctx.GetStub().PutState(credentialKey, credentialBytes); err != nil {
		return fmt.Errorf("failed to save credential %d: %w", credential.ID, err)
	}
	return nil
}

// readCredentialCounter returns the issuance counter, zero if none exists yet.
func (s *TrustIDSmartContract) readCredentialCounter(ctx contractapi.TransactionContextInterface) (uint64, error) {
	counterKey, err := s.createCredentialCounterKey(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to create credential counter key: %w", err)
	}
	counterBytes, err := ctx.GetStub().GetState(counterKey)
	if err != nil {
		return 0, fmt.Errorf("ledger error reading credential counter: %w", err)
	}
	if counterBytes == nil {
		return 0, nil
	}
	total, err := strconv.ParseUint(string(counterBytes), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("credential counter state '%s' is corrupt: %w", string(counterBytes), err)
	}
	return total, nil
}

// nextCredentialID increments the issuance counter and returns the new id.
// The write only survives if the whole transaction commits, so an issuance
// that fails after this point does not burn the id.
func (s *TrustIDSmartContract) nextCredentialID(ctx contractapi.TransactionContextInterface) (uint64, error) {
	total, err := s.readCredentialCounter(ctx)
	if err != nil {
		return 0, err
	}
	next := total + 1
	counterKey, err := s.createCredentialCounterKey(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to create credential counter key: %w", err)
	}
	if err := ctx.GetStub().PutState(counterKey, []byte(strconv.FormatUint(next, 10))); err != nil {
		return 0, fmt.Errorf("failed to save credential counter: %w", err)
	}
	return next, nil
}
