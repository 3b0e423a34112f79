// Package chaincode implements the fingerprint registry as a Hyperledger
// Fabric contract. The ledger's MVCC check gives first-writer-wins across
// concurrent transactions on the same digest.
package chaincode

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/hyperledger/fabric-contract-api-go/contractapi"
	"github.com/hyperledger/fabric/common/flogging"

	"xdao.co/origin/fingerprint"
	"xdao.co/origin/model"
)

var logger = flogging.MustGetLogger("origin.registry")

// fingerprintObjectType is used for composite keys and as the docType for CouchDB queries.
const fingerprintObjectType = "Fingerprint"

// EventFingerprintRegistered is emitted once per successful Register.
const EventFingerprintRegistered = "FingerprintRegistered"

// ErrAlreadyRegisteredMsg prefixes the error returned when the digest already
// has a record. Off-chain clients only see error text; see IsAlreadyRegistered.
const ErrAlreadyRegisteredMsg = "fingerprint already registered"

// IsAlreadyRegistered reports whether err carries the duplicate-registration
// message, possibly wrapped by the gateway or peer.
func IsAlreadyRegistered(err error) bool {
	return err != nil && strings.Contains(err.Error(), ErrAlreadyRegisteredMsg)
}

// OwnerAttribute, when present in the invoker's certificate, names the
// account address recorded as owner. Otherwise the client identity ID is used.
const OwnerAttribute = "origin.address"

// FingerprintRecord is the ledger document for one digest.
type FingerprintRecord struct {
	DocType      string `json:"docType"`
	Digest       string `json:"digest"`
	Owner        string `json:"owner"`
	OwnerMSP     string `json:"ownerMSP"`
	Note         string `json:"note"`
	Timestamp    int64  `json:"timestamp"`
	RegisteredAt string `json:"registeredAt"`
	RecordRef    string `json:"recordRef"`
	Exists       bool   `json:"exists"`
}

// FingerprintRegistryContract provides the append-only digest -> owner registry.
type FingerprintRegistryContract struct {
	contractapi.Contract
}

func (c *FingerprintRegistryContract) Instantiate(ctx contractapi.TransactionContextInterface) {
	logger.Info("FingerprintRegistryContract instantiated")
}

// Register records the invoker as owner of digestHex. It returns the
// transaction id, which serves as the record reference.
func (c *FingerprintRegistryContract) Register(ctx contractapi.TransactionContextInterface, digestHex, note string) (string, error) {
	digest, err := parseDigest(digestHex)
	if err != nil {
		return "", err
	}
	if err := model.CheckNote(note); err != nil {
		return "", err
	}

	key, err := c.fingerprintKey(ctx, digest)
	if err != nil {
		return "", err
	}
	existing, err := ctx.GetStub().GetState(key)
	if err != nil {
		return "", fmt.Errorf("failed to read ledger: %w", err)
	}
	if existing != nil {
		return "", fmt.Errorf("%s: %s", ErrAlreadyRegisteredMsg, digest)
	}

	owner, mspID, err := c.invoker(ctx)
	if err != nil {
		return "", err
	}
	ts, err := ctx.GetStub().GetTxTimestamp()
	if err != nil {
		return "", fmt.Errorf("failed to get transaction timestamp: %w", err)
	}
	at := ts.AsTime().UTC()
	txID := ctx.GetStub().GetTxID()

	rec := FingerprintRecord{
		DocType:      fingerprintObjectType,
		Digest:       digest.String(),
		Owner:        owner,
		OwnerMSP:     mspID,
		Note:         note,
		Timestamp:    at.Unix(),
		RegisteredAt: at.Format(time.RFC3339),
		RecordRef:    txID,
		Exists:       true,
	}
	b, err := json.Marshal(rec)
	if err != nil {
		return "", fmt.Errorf("failed to marshal record: %w", err)
	}
	if err := ctx.GetStub().PutState(key, b); err != nil {
		return "", fmt.Errorf("failed to write record: %w", err)
	}
	c.emitRegistered(ctx, rec)
	logger.Infof("Register: %s owner=%s tx=%s", rec.Digest, owner, txID)
	return txID, nil
}

// Get returns the record for digestHex, or a record with Exists=false.
func (c *FingerprintRegistryContract) Get(ctx contractapi.TransactionContextInterface, digestHex string) (*FingerprintRecord, error) {
	digest, err := parseDigest(digestHex)
	if err != nil {
		return nil, err
	}
	key, err := c.fingerprintKey(ctx, digest)
	if err != nil {
		return nil, err
	}
	b, err := ctx.GetStub().GetState(key)
	if err != nil {
		return nil, fmt.Errorf("failed to read ledger: %w", err)
	}
	if b == nil {
		return &FingerprintRecord{Digest: digest.String()}, nil
	}
	var rec FingerprintRecord
	if err := json.Unmarshal(b, &rec); err != nil {
		return nil, fmt.Errorf("failed to unmarshal record %s: %w", digest, err)
	}
	rec.Exists = rec.Owner != ""
	return &rec, nil
}

func (c *FingerprintRegistryContract) Exists(ctx contractapi.TransactionContextInterface, digestHex string) (bool, error) {
	rec, err := c.Get(ctx, digestHex)
	if err != nil {
		return false, err
	}
	return rec.Exists, nil
}

func parseDigest(digestHex string) (fingerprint.Digest, error) {
	d, err := fingerprint.Parse(digestHex)
	if err != nil {
		return d, fmt.Errorf("invalid digest %q: %w", strings.TrimSpace(digestHex), err)
	}
	if d.IsZero() {
		return d, fmt.Errorf("invalid digest: zero value")
	}
	return d, nil
}

func (c *FingerprintRegistryContract) fingerprintKey(ctx contractapi.TransactionContextInterface, d fingerprint.Digest) (string, error) {
	return ctx.GetStub().CreateCompositeKey(fingerprintObjectType, []string{d.Hex()})
}

func (c *FingerprintRegistryContract) invoker(ctx contractapi.TransactionContextInterface) (owner, mspID string, err error) {
	ci := ctx.GetClientIdentity()
	if ci == nil {
		return "", "", fmt.Errorf("no client identity")
	}
	mspID, err = ci.GetMSPID()
	if err != nil {
		return "", "", fmt.Errorf("failed to get invoker MSPID: %w", err)
	}
	if addr, found, aerr := ci.GetAttributeValue(OwnerAttribute); aerr == nil && found && strings.TrimSpace(addr) != "" {
		owner = strings.TrimSpace(addr)
	} else {
		owner, err = ci.GetID()
		if err != nil {
			return "", "", fmt.Errorf("failed to get invoker ID: %w", err)
		}
	}
	if err := model.CheckOwner(owner); err != nil {
		return "", "", fmt.Errorf("invoker identity: %w", err)
	}
	return owner, mspID, nil
}

func (c *FingerprintRegistryContract) emitRegistered(ctx contractapi.TransactionContextInterface, rec FingerprintRecord) {
	payload, err := json.Marshal(map[string]string{
		"digest":    rec.Digest,
		"owner":     rec.Owner,
		"recordRef": rec.RecordRef,
		"timestamp": rec.RegisteredAt,
	})
	if err != nil {
		logger.Warningf("emitRegistered: failed to marshal event for %s: %v", rec.Digest, err)
		return
	}
	if err := ctx.GetStub().SetEvent(EventFingerprintRegistered, payload); err != nil {
		logger.Warningf("emitRegistered: failed to set event for %s: %v", rec.Digest, err)
	}
}
