package contract

import (
	"fmt"

	"github.com/hyperledger/fabric-contract-api-go/contractapi"
	"github.com/hyperledger/fabric/common/flogging"
)

var logger = flogging.MustGetLogger("trustid.contract")

// Object types used for composite keys, also usable as 'docType' for CouchDB queries.
const (
	identityObjectType          = "Identity"          // Stores Identity objects. Attribute: Owner.
	credentialObjectType        = "Credential"        // Stores Credential objects. Attribute: zero-padded ID.
	credentialSubjectObjectType = "CredentialSubject" // Subject index. Attributes: Subject, zero-padded ID.
	credentialCounterObjectType = "CredentialCounter" // Singleton issuance counter.
)

// Constants for input validation and limits
const (
	maxStringInputLength = 256
	maxDataRefLength     = 1024 // Off-chain payload references (URIs, CIDs) can run long.
)

// TrustIDSmartContract manages self-issued identities and third-party-issued
// credentials on the ledger. Every mutating operation either commits all of
// its writes together with exactly one audit event, or returns an error and
// leaves no trace; the peer's transaction semantics enforce this, so the
// contract holds no locks of its own.
// @contract:TrustIDSmartContract
type TrustIDSmartContract struct {
	contractapi.Contract
}

// Instantiate is called during chaincode instantiation.
// It's a lifecycle method of the contract.
func (s *TrustIDSmartContract) Instantiate(ctx contractapi.TransactionContextInterface) {
	logger.Info("TrustIDSmartContract Instantiated/Upgraded")
}

// --- Role Registry Operations (delegating to RegistryManager) ---

// InitRegistry performs the one-time bring-up of the role registry: the
// transactor becomes the permanent admin and the first authorized verifier.
// A second invocation fails and changes nothing.
func (s *TrustIDSmartContract) InitRegistry(ctx contractapi.TransactionContextInterface) error {
	logger.Info("Chaincode Call: InitRegistry")
	rm := NewRegistryManager(ctx)

	alreadyInitialized, err := rm.IsInitialized()
	if err != nil {
		return fmt.Errorf("InitRegistry: failed to check registry initialization: %w", err)
	}
	if alreadyInitialized {
		return fmt.Errorf("%w: registry is already initialized and has a permanent admin", ErrAlreadyExists)
	}

	caller, err := rm.GetCurrentPrincipal()
	if err != nil {
		return fmt.Errorf("InitRegistry: failed to get caller principal: %w", err)
	}
	now, err := s.getCurrentTxTimestamp(ctx)
	if err != nil {
		return fmt.Errorf("InitRegistry: %w", err)
	}

	if err := rm.Initialize(caller, now); err != nil {
		return fmt.Errorf("InitRegistry: %w", err)
	}

	return s.emitAuditEvent(ctx, "RegistryInitialized", map[string]interface{}{
		"admin":     caller,
		"timestamp": now,
	})
}

// AddVerifier authorizes target as a verifier. Admin only. Re-authorizing an
// existing verifier succeeds without altering the original grant. There is no
// removal operation; authorization is permanent.
func (s *TrustIDSmartContract) AddVerifier(ctx contractapi.TransactionContextInterface, target string) error {
	logger.Infof("Chaincode Call: AddVerifier for '%s'", target)
	rm := NewRegistryManager(ctx)

	caller, err := rm.GetCurrentPrincipal()
	if err != nil {
		return fmt.Errorf("AddVerifier: failed to get caller principal: %w", err)
	}
	if err := s.requireAdmin(rm, caller); err != nil {
		return fmt.Errorf("AddVerifier: %w", err)
	}
	if err := s.validateRequiredString(target, "target", maxStringInputLength); err != nil {
		return err
	}

	now, err := s.getCurrentTxTimestamp(ctx)
	if err != nil {
		return fmt.Errorf("AddVerifier: %w", err)
	}
	if err := rm.GrantVerifier(target, caller, now); err != nil {
		return fmt.Errorf("AddVerifier: %w", err)
	}

	return s.emitAuditEvent(ctx, "VerifierAuthorized", map[string]interface{}{
		"verifier":     target,
		"authorizedBy": caller,
		"timestamp":    now,
	})
}

// IsAuthorizedVerifier reports whether the principal holds a verifier grant.
// Public, side-effect free.
func (s *TrustIDSmartContract) IsAuthorizedVerifier(ctx contractapi.TransactionContextInterface, principal string) (bool, error) {
	logger.Debugf("Chaincode Call: IsAuthorizedVerifier for '%s'", principal)
	return NewRegistryManager(ctx).IsAuthorizedVerifier(principal)
}

// GetAdmin returns the registry admin principal.
func (s *TrustIDSmartContract) GetAdmin(ctx contractapi.TransactionContextInterface) (string, error) {
	logger.Debug("Chaincode Call: GetAdmin")
	return NewRegistryManager(ctx).GetAdmin()
}

// GetAuthorizedVerifiers returns every principal currently authorized as a
// verifier. Public, side-effect free.
func (s *TrustIDSmartContract) GetAuthorizedVerifiers(ctx contractapi.TransactionContextInterface) ([]string, error) {
	logger.Debug("Chaincode Call: GetAuthorizedVerifiers")
	return NewRegistryManager(ctx).ListVerifiers()
}
