package chaincode

import (
	"crypto/x509"
	"encoding/json"
	"strings"
	"testing"

	"github.com/hyperledger/fabric-chaincode-go/pkg/cid"
	"github.com/hyperledger/fabric-chaincode-go/shim"
	"github.com/hyperledger/fabric-chaincode-go/shimtest"
	"github.com/hyperledger/fabric-contract-api-go/contractapi"

	"xdao.co/origin/fingerprint"
	"xdao.co/origin/model"
)

type fakeIdentity struct {
	id    string
	msp   string
	attrs map[string]string
}

func (f fakeIdentity) GetID() (string, error)    { return f.id, nil }
func (f fakeIdentity) GetMSPID() (string, error) { return f.msp, nil }
func (f fakeIdentity) GetAttributeValue(name string) (string, bool, error) {
	v, ok := f.attrs[name]
	return v, ok, nil
}
func (f fakeIdentity) AssertAttributeValue(name, value string) error { return nil }
func (f fakeIdentity) GetX509Certificate() (*x509.Certificate, error) {
	return nil, nil
}

type fakeContext struct {
	contractapi.TransactionContext
	stub *shimtest.MockStub
	id   cid.ClientIdentity
}

func (f *fakeContext) GetStub() shim.ChaincodeStubInterface   { return f.stub }
func (f *fakeContext) GetClientIdentity() cid.ClientIdentity { return f.id }

func newContext(stub *shimtest.MockStub, id string) *fakeContext {
	return &fakeContext{stub: stub, id: fakeIdentity{id: id, msp: "Org1MSP"}}
}

func digestHex(s string) string { return fingerprint.Sum([]byte(s)).String() }

func TestRegisterAndGet(t *testing.T) {
	stub := shimtest.NewMockStub("origin", nil)
	cc := &FingerprintRegistryContract{}
	ctx := newContext(stub, "x509::CN=alice")

	stub.MockTransactionStart("tx1")
	ref, err := cc.Register(ctx, digestHex("photo"), "holiday")
	stub.MockTransactionEnd("tx1")
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	if ref != "tx1" {
		t.Fatalf("record ref: got %q want tx1", ref)
	}

	rec, err := cc.Get(ctx, digestHex("photo"))
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if !rec.Exists || rec.Owner != "x509::CN=alice" || rec.Note != "holiday" || rec.RecordRef != "tx1" {
		t.Fatalf("unexpected record: %+v", rec)
	}
	if rec.OwnerMSP != "Org1MSP" || rec.Timestamp == 0 {
		t.Fatalf("missing invoker details: %+v", rec)
	}

	ok, err := cc.Exists(ctx, digestHex("photo"))
	if err != nil || !ok {
		t.Fatalf("Exists: ok=%v err=%v", ok, err)
	}
}

func TestRegisterDuplicateRejected(t *testing.T) {
	stub := shimtest.NewMockStub("origin", nil)
	cc := &FingerprintRegistryContract{}

	stub.MockTransactionStart("tx1")
	if _, err := cc.Register(newContext(stub, "alice"), digestHex("same"), "a"); err != nil {
		t.Fatalf("Register(1): %v", err)
	}
	stub.MockTransactionEnd("tx1")

	stub.MockTransactionStart("tx2")
	_, err := cc.Register(newContext(stub, "bob"), digestHex("same"), "b")
	stub.MockTransactionEnd("tx2")
	if !IsAlreadyRegistered(err) || !strings.HasPrefix(err.Error(), ErrAlreadyRegisteredMsg) {
		t.Fatalf("Register(2): got %v want %q", err, ErrAlreadyRegisteredMsg)
	}
	if IsAlreadyRegistered(nil) {
		t.Fatalf("nil error reported as duplicate")
	}

	rec, err := cc.Get(newContext(stub, "bob"), digestHex("same"))
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if rec.Owner != "alice" || rec.Note != "a" || rec.RecordRef != "tx1" {
		t.Fatalf("record changed after duplicate: %+v", rec)
	}
}

func TestGetAbsent(t *testing.T) {
	stub := shimtest.NewMockStub("origin", nil)
	cc := &FingerprintRegistryContract{}
	rec, err := cc.Get(newContext(stub, "alice"), digestHex("missing"))
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if rec.Exists || rec.Owner != "" {
		t.Fatalf("expected absent record, got %+v", rec)
	}
	ok, err := cc.Exists(newContext(stub, "alice"), digestHex("missing"))
	if err != nil || ok {
		t.Fatalf("Exists: ok=%v err=%v", ok, err)
	}
}

func TestRegisterValidation(t *testing.T) {
	stub := shimtest.NewMockStub("origin", nil)
	cc := &FingerprintRegistryContract{}
	ctx := newContext(stub, "alice")

	stub.MockTransactionStart("tx1")
	defer stub.MockTransactionEnd("tx1")

	for _, bad := range []string{"", "abc", strings.Repeat("a", 64), "0x" + strings.Repeat("0", 64)} {
		if _, err := cc.Register(ctx, bad, ""); err == nil {
			t.Fatalf("Register(%q): expected validation error", bad)
		}
	}
	if _, err := cc.Register(ctx, digestHex("long"), strings.Repeat("n", model.MaxNoteLength+1)); err == nil {
		t.Fatalf("expected note length error")
	}
}

func TestRegisterRejectsOversizeOwner(t *testing.T) {
	stub := shimtest.NewMockStub("origin", nil)
	cc := &FingerprintRegistryContract{}
	ctx := &fakeContext{stub: stub, id: fakeIdentity{
		id:    "x509::CN=alice",
		msp:   "Org1MSP",
		attrs: map[string]string{OwnerAttribute: strings.Repeat("a", model.MaxOwnerLength+1)},
	}}

	stub.MockTransactionStart("tx1")
	_, err := cc.Register(ctx, digestHex("big owner"), "")
	stub.MockTransactionEnd("tx1")
	if err == nil || IsAlreadyRegistered(err) {
		t.Fatalf("Register: got %v want owner length error", err)
	}
	ok, err := cc.Exists(ctx, digestHex("big owner"))
	if err != nil || ok {
		t.Fatalf("rejected registration left state: ok=%v err=%v", ok, err)
	}
}

func TestRegisterUsesOwnerAttribute(t *testing.T) {
	stub := shimtest.NewMockStub("origin", nil)
	cc := &FingerprintRegistryContract{}
	ctx := &fakeContext{stub: stub, id: fakeIdentity{
		id:    "x509::CN=svc",
		msp:   "Org1MSP",
		attrs: map[string]string{OwnerAttribute: "0xabc0000000000000000000000000000000000def"},
	}}

	stub.MockTransactionStart("tx1")
	_, err := cc.Register(ctx, digestHex("attr"), "")
	stub.MockTransactionEnd("tx1")
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	rec, err := cc.Get(ctx, digestHex("attr"))
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if rec.Owner != "0xabc0000000000000000000000000000000000def" {
		t.Fatalf("owner: got %q", rec.Owner)
	}
}

func TestRegisterEmitsEvent(t *testing.T) {
	stub := shimtest.NewMockStub("origin", nil)
	cc := &FingerprintRegistryContract{}

	stub.MockTransactionStart("tx9")
	if _, err := cc.Register(newContext(stub, "alice"), digestHex("evt"), ""); err != nil {
		t.Fatalf("Register: %v", err)
	}
	stub.MockTransactionEnd("tx9")

	select {
	case ev := <-stub.ChaincodeEventsChannel:
		if ev.EventName != EventFingerprintRegistered {
			t.Fatalf("event name: got %q", ev.EventName)
		}
		var payload map[string]string
		if err := json.Unmarshal(ev.Payload, &payload); err != nil {
			t.Fatalf("event payload: %v", err)
		}
		if payload["digest"] != digestHex("evt") || payload["recordRef"] != "tx9" {
			t.Fatalf("unexpected payload: %v", payload)
		}
	default:
		t.Fatalf("no event emitted")
	}
}

func TestContractMetadata(t *testing.T) {
	if _, err := contractapi.NewChaincode(&FingerprintRegistryContract{}); err != nil {
		t.Fatalf("NewChaincode: %v", err)
	}
}
