package model

const (
	// MaxNoteLength bounds the free-text annotation stored with a record, in bytes.
	MaxNoteLength = 1024
	// MaxOwnerLength bounds the owner identity stored with a record, in bytes.
	MaxOwnerLength = 256
)

// RegisterResult is returned by a successful registration.
type RegisterResult struct {
	Digest    string   `json:"digest"`
	RecordRef string   `json:"recordRef"`
	Owner     string   `json:"owner"`
	Receipt   *Receipt `json:"receipt,omitempty"`
}

// Receipt is a detached signature by the service account over
// digest, record reference and owner. See keys.ReceiptMessage.
type Receipt struct {
	Scheme    string `json:"scheme"`
	PublicKey string `json:"publicKey"`
	Signature string `json:"signature"`
}

// VerifyResult reports whether a digest is registered.
//
// When Exists is false every optional field is zero and omitted.
// Timestamp is Unix seconds; RegisteredAt is the same instant in RFC 3339.
type VerifyResult struct {
	Exists       bool   `json:"exists"`
	Digest       string `json:"digest"`
	Owner        string `json:"owner,omitempty"`
	Timestamp    int64  `json:"timestamp,omitempty"`
	RegisteredAt string `json:"registeredAt,omitempty"`
	Note         string `json:"note,omitempty"`
	RecordRef    string `json:"recordRef,omitempty"`
}

// ExtractResult carries text recovered from watermarked media.
type ExtractResult struct {
	Text string `json:"text"`
}

// RegistryState is the capability state of the registry, fixed at startup.
type RegistryState string

const (
	RegistryConfigured   RegistryState = "configured"
	RegistryUnconfigured RegistryState = "unconfigured"
)

// Status summarizes a running service.
type Status struct {
	Registry RegistryState `json:"registry"`
	Backend  string        `json:"backend,omitempty"`
	Owner    string        `json:"owner,omitempty"`
	Workers  int           `json:"workers"`
	Uptime   string        `json:"uptime"`
}
