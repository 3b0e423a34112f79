package grpcreg

import (
	"github.com/fxamacker/cbor/v2"

	"xdao.co/origin/fingerprint"
)

type registerRequest struct {
	_      struct{} `cbor:",toarray"`
	Digest []byte
	Owner  string
	Note   string
}

type digestList struct {
	_       struct{} `cbor:",toarray"`
	Digests [][]byte
}

func encodeDigests(ds []fingerprint.Digest) ([]byte, error) {
	l := digestList{Digests: make([][]byte, 0, len(ds))}
	for _, d := range ds {
		l.Digests = append(l.Digests, append([]byte(nil), d[:]...))
	}
	return cbor.Marshal(l)
}

func decodeDigests(b []byte) ([]fingerprint.Digest, error) {
	var l digestList
	if err := cbor.Unmarshal(b, &l); err != nil {
		return nil, err
	}
	out := make([]fingerprint.Digest, 0, len(l.Digests))
	for _, raw := range l.Digests {
		if len(raw) != fingerprint.Size {
			return nil, fingerprint.ErrMalformed
		}
		var d fingerprint.Digest
		copy(d[:], raw)
		out = append(out, d)
	}
	return out, nil
}

func digestFromBytes(b []byte) (fingerprint.Digest, bool) {
	var d fingerprint.Digest
	if len(b) != fingerprint.Size {
		return d, false
	}
	copy(d[:], b)
	return d, true
}
