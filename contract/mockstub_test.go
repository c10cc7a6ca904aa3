package contract

import (
	"crypto/x509"
	"errors"
	"sort"
	"strings"
	"time"

	"github.com/hyperledger/fabric-chaincode-go/pkg/cid"
	"github.com/hyperledger/fabric-chaincode-go/shim"
	"github.com/hyperledger/fabric-protos-go/ledger/queryresult"
	pb "github.com/hyperledger/fabric-protos-go/peer"
	"google.golang.org/protobuf/types/known/timestamppb"
)

// In-memory stand-ins for the peer-provided transaction context, so the
// contract runs unmodified against a fake ledger. Only the stub surface the
// contract touches is functional; everything else returns "not implemented".

const compositeKeyNamespace = "\x00"

type mockEvent struct {
	name    string
	payload []byte
}

// mockStub implements shim.ChaincodeStubInterface over a plain map. State,
// event log, and transaction clock are held by pointer so that contexts
// produced by asCaller act on one shared ledger. The zero value is not
// usable; construct via newMockContext.
type mockStub struct {
	state  map[string][]byte
	events *[]mockEvent
	txTime *time.Time
	caller *mockClientIdentity
}

type mockClientIdentity struct {
	id    string
	mspID string
}

func (m *mockClientIdentity) GetID() (string, error)    { return m.id, nil }
func (m *mockClientIdentity) GetMSPID() (string, error) { return m.mspID, nil }
func (m *mockClientIdentity) GetAttributeValue(string) (string, bool, error) {
	return "", false, nil
}
func (m *mockClientIdentity) AssertAttributeValue(string, string) error { return nil }
func (m *mockClientIdentity) GetX509Certificate() (*x509.Certificate, error) {
	return nil, nil
}

type mockTransactionContext struct {
	stub *mockStub
}

func (c *mockTransactionContext) GetStub() shim.ChaincodeStubInterface { return c.stub }
func (c *mockTransactionContext) GetClientIdentity() cid.ClientIdentity {
	return c.stub.caller
}

// newMockContext returns a context acting as the given principal at the given
// transaction time.
func newMockContext(caller string, txTime time.Time) *mockTransactionContext {
	events := []mockEvent{}
	return &mockTransactionContext{stub: &mockStub{
		state:  map[string][]byte{},
		events: &events,
		txTime: &txTime,
		caller: &mockClientIdentity{id: caller, mspID: "TestMSP"},
	}}
}

// asCaller returns a context over the same ledger with a different transactor.
func (c *mockTransactionContext) asCaller(caller string) *mockTransactionContext {
	return &mockTransactionContext{stub: &mockStub{
		state:  c.stub.state,
		events: c.stub.events,
		txTime: c.stub.txTime,
		caller: &mockClientIdentity{id: caller, mspID: "TestMSP"},
	}}
}

// advanceTime moves the shared transaction clock for subsequent invocations.
func (c *mockTransactionContext) advanceTime(d time.Duration) {
	*c.stub.txTime = c.stub.txTime.Add(d)
}

// emittedEvents returns the audit events recorded so far, across all callers.
func (c *mockTransactionContext) emittedEvents() []mockEvent {
	return *c.stub.events
}

// stateSnapshot copies the full ledger state for change detection.
func (c *mockTransactionContext) stateSnapshot() map[string]string {
	snap := map[string]string{}
	for k, v := range c.stub.state {
		snap[k] = string(v)
	}
	return snap
}

// --- state access ---

func (ms *mockStub) GetState(key string) ([]byte, error) {
	value, ok := ms.state[key]
	if !ok {
		return nil, nil
	}
	out := make([]byte, len(value))
	copy(out, value)
	return out, nil
}

func (ms *mockStub) PutState(key string, value []byte) error {
	stored := make([]byte, len(value))
	copy(stored, value)
	ms.state[key] = stored
	return nil
}

func (ms *mockStub) DelState(key string) error {
	delete(ms.state, key)
	return nil
}

// --- composite keys ---

func (ms *mockStub) CreateCompositeKey(objectType string, attributes []string) (string, error) {
	ck := compositeKeyNamespace + objectType + compositeKeyNamespace
	for _, attr := range attributes {
		ck += attr + compositeKeyNamespace
	}
	return ck, nil
}

func (ms *mockStub) SplitCompositeKey(compositeKey string) (string, []string, error) {
	parts := strings.Split(strings.Trim(compositeKey, compositeKeyNamespace), compositeKeyNamespace)
	if len(parts) < 1 {
		return "", nil, errors.New("invalid composite key")
	}
	return parts[0], parts[1:], nil
}

func (ms *mockStub) sortedKeysWithPrefix(prefix string) []string {
	keys := []string{}
	for k := range ms.state {
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	return keys
}

func (ms *mockStub) GetStateByPartialCompositeKey(objectType string, keys []string) (shim.StateQueryIteratorInterface, error) {
	prefix, err := ms.CreateCompositeKey(objectType, keys)
	if err != nil {
		return nil, err
	}
	return ms.newIterator(ms.sortedKeysWithPrefix(prefix)), nil
}

func (ms *mockStub) GetStateByPartialCompositeKeyWithPagination(objectType string, keys []string, pageSize int32, bookmark string) (shim.StateQueryIteratorInterface, *pb.QueryResponseMetadata, error) {
	prefix, err := ms.CreateCompositeKey(objectType, keys)
	if err != nil {
		return nil, nil, err
	}
	matched := ms.sortedKeysWithPrefix(prefix)

	start := 0
	if bookmark != "" {
		for i, k := range matched {
			if k >= bookmark {
				start = i
				break
			}
		}
	}
	end := start + int(pageSize)
	if end > len(matched) {
		end = len(matched)
	}
	nextBookmark := ""
	if end < len(matched) {
		nextBookmark = matched[end]
	}
	page := matched[start:end]
	metadata := &pb.QueryResponseMetadata{
		FetchedRecordsCount: int32(len(page)),
		Bookmark:            nextBookmark,
	}
	return ms.newIterator(page), metadata, nil
}

// --- iterators ---

type mockStateIterator struct {
	stub *mockStub
	keys []string
	pos  int
}

func (ms *mockStub) newIterator(keys []string) *mockStateIterator {
	return &mockStateIterator{stub: ms, keys: keys}
}

func (it *mockStateIterator) HasNext() bool { return it.pos < len(it.keys) }

func (it *mockStateIterator) Next() (*queryresult.KV, error) {
	if !it.HasNext() {
		return nil, errors.New("iterator exhausted")
	}
	key := it.keys[it.pos]
	it.pos++
	return &queryresult.KV{Key: key, Value: it.stub.state[key]}, nil
}

func (it *mockStateIterator) Close() error { return nil }

// --- events & timestamps ---

func (ms *mockStub) SetEvent(name string, payload []byte) error {
	*ms.events = append(*ms.events, mockEvent{name: name, payload: payload})
	return nil
}

func (ms *mockStub) GetTxTimestamp() (*timestamppb.Timestamp, error) {
	return timestamppb.New(*ms.txTime), nil
}

// --- unused parts of the stub interface ---

var errNotImplemented = errors.New("not implemented in mock stub")

func (ms *mockStub) GetArgs() [][]byte                            { return nil }
func (ms *mockStub) GetStringArgs() []string                      { return nil }
func (ms *mockStub) GetFunctionAndParameters() (string, []string) { return "", nil }
func (ms *mockStub) GetArgsSlice() ([]byte, error)                { return nil, errNotImplemented }
func (ms *mockStub) GetTxID() string                              { return "mock-tx" }
func (ms *mockStub) GetChannelID() string                         { return "mock-channel" }
func (ms *mockStub) InvokeChaincode(string, [][]byte, string) pb.Response {
	return pb.Response{}
}
func (ms *mockStub) SetStateValidationParameter(string, []byte) error { return errNotImplemented }
func (ms *mockStub) GetStateValidationParameter(string) ([]byte, error) {
	return nil, errNotImplemented
}
func (ms *mockStub) GetStateByRange(string, string) (shim.StateQueryIteratorInterface, error) {
	return nil, errNotImplemented
}
func (ms *mockStub) GetStateByRangeWithPagination(string, string, int32, string) (shim.StateQueryIteratorInterface, *pb.QueryResponseMetadata, error) {
	return nil, nil, errNotImplemented
}
func (ms *mockStub) GetQueryResult(string) (shim.StateQueryIteratorInterface, error) {
	return nil, errNotImplemented
}
func (ms *mockStub) GetQueryResultWithPagination(string, int32, string) (shim.StateQueryIteratorInterface, *pb.QueryResponseMetadata, error) {
	return nil, nil, errNotImplemented
}
func (ms *mockStub) GetHistoryForKey(string) (shim.HistoryQueryIteratorInterface, error) {
	return nil, errNotImplemented
}
func (ms *mockStub) GetPrivateData(string, string) ([]byte, error)     { return nil, errNotImplemented }
func (ms *mockStub) GetPrivateDataHash(string, string) ([]byte, error) { return nil, errNotImplemented }
func (ms *mockStub) PutPrivateData(string, string, []byte) error       { return errNotImplemented }
func (ms *mockStub) DelPrivateData(string, string) error               { return errNotImplemented }
func (ms *mockStub) PurgePrivateData(string, string) error             { return errNotImplemented }
func (ms *mockStub) SetPrivateDataValidationParameter(string, string, []byte) error {
	return errNotImplemented
}
func (ms *mockStub) GetPrivateDataValidationParameter(string, string) ([]byte, error) {
	return nil, errNotImplemented
}
func (ms *mockStub) GetPrivateDataByRange(string, string, string) (shim.StateQueryIteratorInterface, error) {
	return nil, errNotImplemented
}
func (ms *mockStub) GetPrivateDataByPartialCompositeKey(string, string, []string) (shim.StateQueryIteratorInterface, error) {
	return nil, errNotImplemented
}
func (ms *mockStub) GetPrivateDataQueryResult(string, string) (shim.StateQueryIteratorInterface, error) {
	return nil, errNotImplemented
}
func (ms *mockStub) GetCreator() ([]byte, error)              { return nil, errNotImplemented }
func (ms *mockStub) GetTransient() (map[string][]byte, error) { return nil, errNotImplemented }
func (ms *mockStub) GetBinding() ([]byte, error)              { return nil, errNotImplemented }
func (ms *mockStub) GetDecorations() map[string][]byte        { return nil }
func (ms *mockStub) GetSignedProposal() (*pb.SignedProposal, error) {
	return nil, errNotImplemented
}
