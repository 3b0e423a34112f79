// Package bundle exports registry records into a deterministic TAR archive
// and imports them back.
//
// An archive holds one entry per record, records/<digest hex>.cbor, in the
// record encoding of the registry package, plus an optional index.json.
// Every record carries its RecordRef, so an archive is self-verifying:
// anyone can recompute each reference without access to the registry.
package bundle

import (
	"archive/tar"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"xdao.co/origin/fingerprint"
	"xdao.co/origin/model"
	"xdao.co/origin/registry"
)

// FormatVersion is the current index schema version.
const FormatVersion = 1

const (
	recordsDir = "records/"
	recordExt  = ".cbor"
	indexName  = "index.json"
)

var epoch0 = time.Unix(0, 0).UTC()

var (
	ErrNotRegistered  = errors.New("bundle: digest not registered")
	ErrDigestMismatch = errors.New("bundle: entry name does not match record digest")
)

type ExportOptions struct {
	IncludeIndex bool
}

// Export writes the records for digests to w. A nil digests slice exports
// every record of a registry that implements registry.Lister.
//
// The archive bytes are deterministic: entries are ordered by digest and TAR
// headers are normalized. Every record is checked against its RecordRef
// before it is written.
func Export(ctx context.Context, w io.Writer, reg registry.Registry, digests []fingerprint.Digest, opts ExportOptions) (int, error) {
	if reg == nil {
		return 0, fmt.Errorf("bundle: nil registry")
	}
	if digests == nil {
		lister, ok := reg.(registry.Lister)
		if !ok {
			return 0, fmt.Errorf("bundle: registry cannot list its records")
		}
		all, err := lister.Digests(ctx)
		if err != nil {
			return 0, err
		}
		digests = all
	}

	uniq := make(map[fingerprint.Digest]struct{}, len(digests))
	ordered := make([]fingerprint.Digest, 0, len(digests))
	for _, d := range digests {
		if _, ok := uniq[d]; ok {
			continue
		}
		uniq[d] = struct{}{}
		ordered = append(ordered, d)
	}
	sort.Slice(ordered, func(i, j int) bool { return bytes.Compare(ordered[i][:], ordered[j][:]) < 0 })

	tw := tar.NewWriter(w)
	entries := make([]indexEntry, 0, len(ordered))
	for _, d := range ordered {
		rec, err := reg.Get(ctx, d)
		if err != nil {
			_ = tw.Close()
			return 0, err
		}
		if !rec.Exists() {
			_ = tw.Close()
			return 0, fmt.Errorf("%w: %s", ErrNotRegistered, d)
		}
		if err := rec.VerifyRef(); err != nil {
			_ = tw.Close()
			return 0, fmt.Errorf("bundle: %s: %w", d, err)
		}
		b, err := registry.MarshalRecord(rec)
		if err != nil {
			_ = tw.Close()
			return 0, err
		}
		if err := writeFile(tw, recordsDir+d.Hex()+recordExt, b); err != nil {
			_ = tw.Close()
			return 0, err
		}
		entries = append(entries, indexEntry{
			Digest:    d.String(),
			CID:       d.CID().String(),
			RecordRef: string(rec.Ref),
			Owner:     rec.Owner,
			Timestamp: rec.Timestamp.Unix(),
		})
	}

	if opts.IncludeIndex {
		b, err := marshalIndex(index{Version: FormatVersion, Hash: "sha2-256", Records: entries})
		if err != nil {
			_ = tw.Close()
			return 0, err
		}
		if err := writeFile(tw, indexName, b); err != nil {
			_ = tw.Close()
			return 0, err
		}
	}
	return len(entries), tw.Close()
}

type ImportOptions struct {
	// IgnoreUnknown skips unknown entries instead of failing.
	IgnoreUnknown bool
	// DryRun validates the archive without writing to the registry.
	DryRun bool
}

// Stats summarizes an import.
type Stats struct {
	Records  int // records read and verified
	Imported int // records newly adopted
	Present  int // records already held unchanged
}

// Import reads an archive and adopts every record into dst.
// Import stops at the first conflicting record; records before it stay.
// With DryRun, dst may be nil.
func Import(ctx context.Context, r io.Reader, dst registry.Registry, opts ImportOptions) (Stats, error) {
	var st Stats
	imp, ok := dst.(registry.Importer)
	if !ok && !opts.DryRun {
		return st, fmt.Errorf("bundle: registry cannot import records")
	}
	err := Walk(r, opts.IgnoreUnknown, func(rec registry.Record) error {
		st.Records++
		if opts.DryRun {
			return nil
		}
		had, err := dst.Get(ctx, rec.Digest)
		if err != nil {
			return err
		}
		if err := imp.Import(ctx, rec); err != nil {
			return fmt.Errorf("bundle: importing %s: %w", rec.Digest, err)
		}
		if had.Exists() {
			st.Present++
		} else {
			st.Imported++
		}
		return nil
	})
	return st, err
}

// Walk reads an archive and calls fn for every record in entry order. Each
// entry must decode, verify against its RecordRef and match the digest in
// its name. Walk stops at the first error, from the archive or from fn.
func Walk(r io.Reader, ignoreUnknown bool, fn func(registry.Record) error) error {
	tr := tar.NewReader(r)
	seen := map[fingerprint.Digest]struct{}{}
	for {
		h, err := tr.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}
		name := cleanTarPath(h.Name)
		if name == "" {
			return fmt.Errorf("bundle: invalid entry path: %q", h.Name)
		}
		if h.Typeflag != tar.TypeReg {
			if ignoreUnknown {
				continue
			}
			return fmt.Errorf("bundle: unexpected tar entry type: %v (%s)", h.Typeflag, name)
		}
		if name == indexName {
			// Non-authoritative.
			_, _ = io.Copy(io.Discard, tr)
			continue
		}
		if !strings.HasPrefix(name, recordsDir) || !strings.HasSuffix(name, recordExt) {
			if ignoreUnknown {
				_, _ = io.Copy(io.Discard, tr)
				continue
			}
			return fmt.Errorf("bundle: unknown entry: %s", name)
		}

		d, err := fingerprint.Parse(fingerprint.Prefix + strings.TrimSuffix(strings.TrimPrefix(name, recordsDir), recordExt))
		if err != nil {
			return fmt.Errorf("bundle: invalid record entry %s: %w", name, err)
		}
		if _, dup := seen[d]; dup {
			return fmt.Errorf("bundle: duplicate record entry: %s", name)
		}
		seen[d] = struct{}{}

		payload, err := io.ReadAll(io.LimitReader(tr, maxRecordSize+1))
		if err != nil {
			return err
		}
		if len(payload) > maxRecordSize {
			return fmt.Errorf("bundle: record entry %s too large", name)
		}
		rec, err := registry.UnmarshalRecord(payload)
		if err != nil {
			return fmt.Errorf("bundle: %s: %w", name, err)
		}
		if !rec.Exists() {
			return fmt.Errorf("bundle: %s: empty record", name)
		}
		if rec.Digest != d {
			return fmt.Errorf("%w: %s", ErrDigestMismatch, name)
		}
		if err := fn(rec); err != nil {
			return err
		}
	}
}

// maxRecordSize bounds one encoded record: a maximal owner and note plus the
// fixed fields (digest, timestamp, nonce, reference) and their CBOR headers.
const (
	recordOverhead = 256
	maxRecordSize  = model.MaxOwnerLength + model.MaxNoteLength + recordOverhead
)

type index struct {
	Version int          `json:"version"`
	Hash    string       `json:"hash"`
	Records []indexEntry `json:"records"`
}

type indexEntry struct {
	Digest    string `json:"digest"`
	CID       string `json:"cid"`
	RecordRef string `json:"recordRef"`
	Owner     string `json:"owner"`
	Timestamp int64  `json:"timestamp"`
}

func marshalIndex(idx index) ([]byte, error) {
	// index is composed only of structs and slices; encoding/json is deterministic for it.
	b, err := json.Marshal(idx)
	if err != nil {
		return nil, err
	}
	return append(b, '\n'), nil
}

func writeFile(tw *tar.Writer, name string, content []byte) error {
	hdr := &tar.Header{
		Name:     name,
		Mode:     0o644,
		Size:     int64(len(content)),
		ModTime:  epoch0,
		Typeflag: tar.TypeReg,
		Format:   tar.FormatUSTAR,
	}
	if err := tw.WriteHeader(hdr); err != nil {
		return err
	}
	_, err := tw.Write(content)
	return err
}

func cleanTarPath(name string) string {
	name = strings.TrimSpace(name)
	name = strings.ReplaceAll(name, "\\", "/")
	name = strings.TrimPrefix(name, "./")
	name = strings.TrimPrefix(name, "/")
	if name == "" {
		return ""
	}
	parts := strings.Split(name, "/")
	for _, part := range parts {
		if part == "" || part == "." || part == ".." {
			return ""
		}
	}
	return name
}
