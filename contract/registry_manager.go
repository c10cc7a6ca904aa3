package contract

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"trustid/model"

	"github.com/hyperledger/fabric-contract-api-go/contractapi"
	"github.com/hyperledger/fabric/common/flogging"
)

var regLogger = flogging.MustGetLogger("trustid.registry")

// Object types for composite keys, also usable as 'docType' or 'objectType' in CouchDB.
const (
	adminObjectType         = "Admin"         // Singleton storing the admin principal. Attribute: adminKeyAttribute.
	verifierGrantObjectType = "VerifierGrant" // Stores VerifierGrant objects. Attribute for composite key: Principal.
)

// adminKeyAttribute is the fixed attribute of the singleton admin key.
const adminKeyAttribute = "registry"

// RegistryManager handles the admin singleton and the authorized-verifier set.
// The admin is fixed by InitRegistry and can never be changed; verifier grants
// are only ever added, never removed. All authorization checks in the contract
// funnel through this manager so no other component caches role state.
type RegistryManager struct {
	Ctx contractapi.TransactionContextInterface
}

// NewRegistryManager creates a new instance of RegistryManager.
func NewRegistryManager(ctx contractapi.TransactionContextInterface) *RegistryManager {
	return &RegistryManager{Ctx: ctx}
}

// --- Key Creation Helpers (using Composite Keys) ---

func (rm *RegistryManager) createAdminKey() (string, error) {
	return rm.Ctx.GetStub().CreateCompositeKey(adminObjectType, []string{adminKeyAttribute})
}

func (rm *RegistryManager) createVerifierGrantKey(principal string) (string, error) {
	return rm.Ctx.GetStub().CreateCompositeKey(verifierGrantObjectType, []string{principal})
}

// --- Caller Identity ---

// GetCurrentPrincipal retrieves the authenticated identifier of the current
// transactor from the peer-verified client identity.
func (rm *RegistryManager) GetCurrentPrincipal() (string, error) {
	clientIdentity := rm.Ctx.GetClientIdentity()
	if clientIdentity == nil {
		return "", errors.New("client identity is nil from context")
	}
	id, err := clientIdentity.GetID()
	if err != nil {
		return "", fmt.Errorf("failed to get client identity ID from context: %w", err)
	}
	if id == "" {
		return "", errors.New("client identity ID from context is empty")
	}
	return id, nil
}

// --- Admin ---

// IsInitialized reports whether InitRegistry has already run.
func (rm *RegistryManager) IsInitialized() (bool, error) {
	adminKey, err := rm.createAdminKey()
	if err != nil {
		return false, fmt.Errorf("failed to create admin key: %w", err)
	}
	adminBytes, err := rm.Ctx.GetStub().GetState(adminKey)
	if err != nil {
		return false, fmt.Errorf("ledger error checking registry initialization: %w", err)
	}
	return adminBytes != nil, nil
}

// GetAdmin returns the admin principal, or an error if the registry has not
// been initialized yet.
func (rm *RegistryManager) GetAdmin() (string, error) {
	adminKey, err := rm.createAdminKey()
	if err != nil {
		return "", fmt.Errorf("failed to create admin key: %w", err)
	}
	adminBytes, err := rm.Ctx.GetStub().GetState(adminKey)
	if err != nil {
		return "", fmt.Errorf("ledger error retrieving admin: %w", err)
	}
	if adminBytes == nil {
		return "", errors.New("registry has not been initialized")
	}
	return string(adminBytes), nil
}

// IsAdmin checks whether the given principal is the registry admin.
func (rm *RegistryManager) IsAdmin(principal string) (bool, error) {
	adminKey, err := rm.createAdminKey()
	if err != nil {
		return false, fmt.Errorf("failed to create admin key for IsAdmin check: %w", err)
	}
	adminBytes, err := rm.Ctx.GetStub().GetState(adminKey)
	if err != nil {
		return false, fmt.Errorf("ledger error checking admin for '%s': %w", principal, err)
	}
	if adminBytes == nil { // Not initialized yet, nobody is admin.
		return false, nil
	}
	return string(adminBytes) == principal, nil
}

// IsCurrentUserAdmin checks whether the transactor is the registry admin.
func (rm *RegistryManager) IsCurrentUserAdmin() (bool, error) {
	caller, err := rm.GetCurrentPrincipal()
	if err != nil {
		return false, fmt.Errorf("failed to get current user's principal for admin check: %w", err)
	}
	return rm.IsAdmin(caller)
}

// Initialize writes the admin singleton and grants the admin its own verifier
// flag. The admin is always a member of the verifier set from this point on.
// Callers must have checked IsInitialized first; this method does not re-check.
func (rm *RegistryManager) Initialize(admin string, now time.Time) error {
	adminKey, err := rm.createAdminKey()
	if err != nil {
		return fmt.Errorf("failed to create admin key for initialization: %w", err)
	}
	if err := rm.Ctx.GetStub().PutState(adminKey, []byte(admin)); err != nil {
		return fmt.Errorf("failed to save admin principal '%s': %w", admin, err)
	}
	if err := rm.GrantVerifier(admin, admin, now); err != nil {
		return fmt.Errorf("failed to grant verifier flag to admin '%s': %w", admin, err)
	}
	regLogger.Infof("Registry initialized. Principal '%s' is now admin and first authorized verifier.", admin)
	return nil
}

// --- Verifier Grants ---

// GrantVerifier records the principal as an authorized verifier. The grant is
// idempotent: a principal that is already authorized keeps its original grant
// record untouched.
func (rm *RegistryManager) GrantVerifier(principal, grantedBy string, now time.Time) error {
	grantKey, err := rm.createVerifierGrantKey(principal)
	if err != nil {
		return fmt.Errorf("failed to create verifier grant key for '%s': %w", principal, err)
	}
	existingBytes, err := rm.Ctx.GetStub().GetState(grantKey)
	if err != nil {
		return fmt.Errorf("ledger error checking existing verifier grant for '%s': %w", principal, err)
	}
	if existingBytes != nil {
		regLogger.Infof("Principal '%s' is already an authorized verifier. No action needed.", principal)
		return nil
	}

	grant := model.VerifierGrant{
		ObjectType:   verifierGrantObjectType,
		Principal:    principal,
		AuthorizedBy: grantedBy,
		AuthorizedAt: now,
	}
	grantBytes, err := json.Marshal(grant)
	if err != nil {
		return fmt.Errorf("failed to marshal verifier grant for '%s': %w", principal, err)
	}
	if err := rm.Ctx.GetStub().PutState(grantKey, grantBytes); err != nil {
		return fmt.Errorf("failed to save verifier grant for '%s': %w", principal, err)
	}
	regLogger.Infof("Principal '%s' authorized as verifier by '%s'.", principal, grantedBy)
	return nil
}

// IsAuthorizedVerifier checks whether the principal holds a verifier grant.
func (rm *RegistryManager) IsAuthorizedVerifier(principal string) (bool, error) {
	grantKey, err := rm.createVerifierGrantKey(principal)
	if err != nil {
		return false, fmt.Errorf("failed to create verifier grant key for '%s': %w", principal, err)
	}
	grantBytes, err := rm.Ctx.GetStub().GetState(grantKey)
	if err != nil {
		return false, fmt.Errorf("ledger error checking verifier grant for '%s': %w", principal, err)
	}
	return grantBytes != nil, nil
}

// IsCurrentUserAuthorizedVerifier checks the transactor's verifier grant.
func (rm *RegistryManager) IsCurrentUserAuthorizedVerifier() (bool, error) {
	caller, err := rm.GetCurrentPrincipal()
	if err != nil {
		return false, fmt.Errorf("failed to get current user's principal for verifier check: %w", err)
	}
	return rm.IsAuthorizedVerifier(caller)
}

// ListVerifiers returns every authorized verifier principal on the ledger.
func (rm *RegistryManager) ListVerifiers() ([]string, error) {
	resultsIterator, err := rm.Ctx.GetStub().GetStateByPartialCompositeKey(verifierGrantObjectType, []string{})
	if err != nil {
		return nil, fmt.Errorf("failed to get verifier grants iterator: %w", err)
	}
	defer resultsIterator.Close()

	verifiers := []string{}
	for resultsIterator.HasNext() {
		queryResponse, iterErr := resultsIterator.Next()
		if iterErr != nil {
			regLogger.Warningf("ListVerifiers: Failed to get next grant from iterator: %v. Skipping.", iterErr)
			continue
		}
		var grant model.VerifierGrant
		if err := json.Unmarshal(queryResponse.Value, &grant); err != nil {
			regLogger.Warningf("ListVerifiers: Failed to unmarshal grant for key '%s': %v. Skipping.", queryResponse.Key, err)
			continue
		}
		verifiers = append(verifiers, grant.Principal)
	}
	return verifiers, nil // Will be [] if empty, not null
}
