package contract

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"trustid/model"

	"github.com/hyperledger/fabric-contract-api-go/contractapi"
)

// --- Identity Store Operations ---

// CreateIdentity registers an identity for the transactor. Each principal may
// create exactly one identity; a second attempt fails and leaves the original
// record untouched. Name and email are immutable once written.
func (s *TrustIDSmartContract) CreateIdentity(ctx contractapi.TransactionContextInterface, name, email string) error {
	rm := NewRegistryManager(ctx)
	caller, err := rm.GetCurrentPrincipal()
	if err != nil {
		return fmt.Errorf("CreateIdentity: failed to get caller principal: %w", err)
	}
	logger.Infof("Chaincode Call: CreateIdentity for caller '%s'", caller)

	if err := s.validateRequiredString(name, "name", maxStringInputLength); err != nil {
		return err
	}
	if err := s.validateRequiredString(email, "email", maxStringInputLength); err != nil {
		return err
	}

	existing, err := s.getIdentityRecord(ctx, caller)
	if err != nil {
		return fmt.Errorf("CreateIdentity: %w", err)
	}
	if existing != nil {
		return fmt.Errorf("%w: principal '%s' already has an identity", ErrAlreadyExists, caller)
	}

	now, err := s.getCurrentTxTimestamp(ctx)
	if err != nil {
		return fmt.Errorf("CreateIdentity: %w", err)
	}

	identity := model.Identity{
		ObjectType: identityObjectType,
		Owner:      caller,
		Name:       name,
		Email:      email,
		CreatedAt:  now,
		IsVerified: false,
		Attributes: map[string]string{},
		Verifiers:  []string{},
	}
	identityKey, err := s.createIdentityKey(ctx, caller)
	if err != nil {
		return fmt.Errorf("CreateIdentity: failed to create identity key for '%s': %w", caller, err)
	}
	identityBytes, err := json.Marshal(identity)
	if err != nil {
		return fmt.Errorf("CreateIdentity: failed to marshal identity for '%s': %w", caller, err)
	}
	if err := ctx.GetStub().PutState(identityKey, identityBytes); err != nil {
		return fmt.Errorf("CreateIdentity: failed to save identity for '%s': %w", caller, err)
	}

	logger.Infof("Identity created for principal '%s' (name: '%s')", caller, name)
	return s.emitAuditEvent(ctx, "IdentityCreated", map[string]interface{}{
		"owner":     caller,
		"name":      name,
		"timestamp": now,
	})
}

// GetIdentity returns the identity record for the principal. Absence is not
// an error: callers receive an empty record and must test Owner themselves.
// Public, side-effect free.
func (s *TrustIDSmartContract) GetIdentity(ctx contractapi.TransactionContextInterface, principal string) (*model.Identity, error) {
	logger.Debugf("Chaincode Call: GetIdentity for '%s'", principal)
	if strings.TrimSpace(principal) == "" {
		return &model.Identity{}, nil
	}
	identity, err := s.getIdentityRecord(ctx, principal)
	if err != nil {
		return nil, fmt.Errorf("GetIdentity: %w", err)
	}
	if identity == nil {
		return &model.Identity{}, nil
	}
	return identity, nil
}

// getIdentityRecord is an internal helper to retrieve and unmarshal an
// identity. It returns nil (and no error) when no record exists, which is the
// single presence test used everywhere in the contract.
func (s *TrustIDSmartContract) getIdentityRecord(ctx contractapi.TransactionContextInterface, principal string) (*model.Identity, error) {
	identityKey, err := s.createIdentityKey(ctx, principal)
	if err != nil {
		return nil, fmt.Errorf("failed to create identity key for '%s': %w", principal, err)
	}
	identityBytes, err := ctx.GetStub().GetState(identityKey)
	if err != nil {
		return nil, fmt.Errorf("failed to read identity '%s' from ledger: %w", principal, err)
	}
	if identityBytes == nil {
		return nil, nil
	}
	var identity model.Identity
	if err := json.Unmarshal(identityBytes, &identity); err != nil {
		return nil, fmt.Errorf("failed to unmarshal identity '%s' data: %w", principal, err)
	}
	return &identity, nil
}

// putIdentityRecord marshals and writes an identity back to the ledger.
func (s *TrustIDSmartContract) putIdentityRecord(ctx contractapi.TransactionContextInterface, identity *model.Identity) error {
	identityKey, err := s.createIdentityKey(ctx, identity.Owner)
	if err != nil {
		return fmt.Errorf("failed to create identity key for '%s': %w", identity.Owner, err)
	}
	identityBytes, err := json.Marshal(identity)
	if err != nil {
		return fmt.Errorf("failed to marshal identity for '%s': %w", identity.Owner, err)
	}
	if err := ctx.GetStub().PutState(identityKey, identityBytes); err != nil {
		return fmt.Errorf("failed to save identity for '%s': %w", identity.Owner, err)
	}
	return nil
}

// GetAllIdentities returns a page of registered identities. Admin only.
func (s *TrustIDSmartContract) GetAllIdentities(ctx contractapi.TransactionContextInterface, pageSizeStr string, bookmark string) (*model.PaginatedIdentityResponse, error) {
	rm := NewRegistryManager(ctx)
	caller, err := rm.GetCurrentPrincipal()
	if err != nil {
		return nil, fmt.Errorf("GetAllIdentities: failed to get caller principal: %w", err)
	}
	if err := s.requireAdmin(rm, caller); err != nil {
		return nil, fmt.Errorf("GetAllIdentities: %w", err)
	}

	pageSize, err := strconv.ParseInt(pageSizeStr, 10, 32)
	if err != nil || pageSize <= 0 {
		logger.Warningf("GetAllIdentities: Invalid pageSize '%s', using default of 10. Error: %v", pageSizeStr, err)
		pageSize = 10
	}
	if pageSize > 100 {
		logger.Warningf("GetAllIdentities: Requested pageSize %d exceeds max of 100. Capping at 100.", pageSize)
		pageSize = 100
	}

	resultsIterator, metadata, err := ctx.GetStub().GetStateByPartialCompositeKeyWithPagination(identityObjectType, []string{}, int32(pageSize), bookmark)
	if err != nil {
		return nil, fmt.Errorf("GetAllIdentities: failed to get identities iterator: %w", err)
	}
	defer resultsIterator.Close()

	identities := []*model.Identity{}
	for resultsIterator.HasNext() {
		queryResponse, iterErr := resultsIterator.Next()
		if iterErr != nil {
			logger.Warningf("GetAllIdentities: Failed to get next identity from iterator: %v. Skipping.", iterErr)
			continue
		}
		var identity model.Identity
		if err := json.Unmarshal(queryResponse.Value, &identity); err != nil {
			logger.Warningf("GetAllIdentities: Failed to unmarshal identity data for key '%s': %v. Skipping.", queryResponse.Key, err)
			continue
		}
		identities = append(identities, &identity)
	}

	logger.Infof("Admin '%s' retrieved %d registered identities.", caller, len(identities))
	return &model.PaginatedIdentityResponse{
		Identities:   identities,
		NextBookmark: metadata.Bookmark,
		FetchedCount: metadata.FetchedRecordsCount,
	}, nil
}
