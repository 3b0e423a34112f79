// Package testkit is the conformance suite every registry backend must pass.
package testkit

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"xdao.co/origin/fingerprint"
	"xdao.co/origin/model"
	"xdao.co/origin/registry"
)

// NewRegistry constructs a fresh, empty registry for a test.
// The returned Registry MUST be isolated from other tests.
type NewRegistry func(t *testing.T) registry.Registry

func digestOf(s string) fingerprint.Digest { return fingerprint.Sum([]byte(s)) }

func RunRegistryConformance(t *testing.T, newRegistry NewRegistry) {
	t.Helper()

	t.Run("RegisterGetRoundTrip", func(t *testing.T) {
		reg := newRegistry(t)
		ctx := context.Background()
		d := digestOf("round trip")

		before := time.Now().Add(-time.Second)
		ref, err := reg.Register(ctx, d, "0xA1", "first upload")
		if err != nil {
			t.Fatalf("Register failed: %v", err)
		}
		after := time.Now().Add(time.Second)
		if !strings.HasPrefix(string(ref), "0x") || len(ref) != 66 {
			t.Fatalf("unexpected record ref %q", ref)
		}
		if string(ref) == d.String() {
			t.Fatalf("record ref must differ from the digest")
		}

		rec, err := reg.Get(ctx, d)
		if err != nil {
			t.Fatalf("Get failed: %v", err)
		}
		if !rec.Exists() {
			t.Fatalf("Get returned absent record after Register")
		}
		if rec.Digest != d || rec.Owner != "0xA1" || rec.Note != "first upload" {
			t.Fatalf("record mismatch: %+v", rec)
		}
		if rec.Ref != ref {
			t.Fatalf("record ref mismatch: got %q want %q", rec.Ref, ref)
		}
		if rec.Timestamp.Before(before) || rec.Timestamp.After(after) {
			t.Fatalf("timestamp %v not assigned at write time", rec.Timestamp)
		}
		if err := rec.VerifyRef(); err != nil {
			t.Fatalf("VerifyRef: %v", err)
		}
	})

	t.Run("DuplicateRejected", func(t *testing.T) {
		reg := newRegistry(t)
		ctx := context.Background()
		d := digestOf("duplicate")

		if _, err := reg.Register(ctx, d, "0xA1", "a"); err != nil {
			t.Fatalf("Register(1) failed: %v", err)
		}
		first, err := reg.Get(ctx, d)
		if err != nil {
			t.Fatalf("Get failed: %v", err)
		}

		_, err = reg.Register(ctx, d, "0xB2", "b")
		if !registry.IsAlreadyRegistered(err) {
			t.Fatalf("Register(2): got err=%v want ErrAlreadyRegistered", err)
		}

		// Same owner, same note: still rejected.
		_, err = reg.Register(ctx, d, "0xA1", "a")
		if !registry.IsAlreadyRegistered(err) {
			t.Fatalf("Register(3): got err=%v want ErrAlreadyRegistered", err)
		}

		after, err := reg.Get(ctx, d)
		if err != nil {
			t.Fatalf("Get failed: %v", err)
		}
		if !after.Equal(first) {
			t.Fatalf("record changed after rejected duplicate: %+v vs %+v", after, first)
		}
	})

	t.Run("AbsentIsNotAnError", func(t *testing.T) {
		reg := newRegistry(t)
		rec, err := reg.Get(context.Background(), digestOf("never registered"))
		if err != nil {
			t.Fatalf("Get absent: %v", err)
		}
		if rec.Exists() {
			t.Fatalf("expected absent record, got %+v", rec)
		}
		ok, err := registry.Exists(context.Background(), reg, digestOf("never registered"))
		if err != nil || ok {
			t.Fatalf("Exists absent: ok=%v err=%v", ok, err)
		}
	})

	t.Run("GetIdempotent", func(t *testing.T) {
		reg := newRegistry(t)
		ctx := context.Background()
		d := digestOf("idempotent")
		if _, err := reg.Register(ctx, d, "0xA1", ""); err != nil {
			t.Fatalf("Register failed: %v", err)
		}
		r1, err := reg.Get(ctx, d)
		if err != nil {
			t.Fatalf("Get(1): %v", err)
		}
		r2, err := reg.Get(ctx, d)
		if err != nil {
			t.Fatalf("Get(2): %v", err)
		}
		if !r1.Equal(r2) {
			t.Fatalf("Get not idempotent: %+v vs %+v", r1, r2)
		}
	})

	t.Run("EmptyNoteAllowed", func(t *testing.T) {
		reg := newRegistry(t)
		ctx := context.Background()
		d := digestOf("empty note")
		if _, err := reg.Register(ctx, d, "0xA1", ""); err != nil {
			t.Fatalf("Register failed: %v", err)
		}
		rec, err := reg.Get(ctx, d)
		if err != nil {
			t.Fatalf("Get failed: %v", err)
		}
		if !rec.Exists() || rec.Note != "" {
			t.Fatalf("unexpected record: %+v", rec)
		}
	})

	t.Run("NoteLengthBoundary", func(t *testing.T) {
		reg := newRegistry(t)
		ctx := context.Background()
		max := strings.Repeat("n", model.MaxNoteLength)
		if _, err := reg.Register(ctx, digestOf("max note"), "0xA1", max); err != nil {
			t.Fatalf("Register at max note length: %v", err)
		}
		_, err := reg.Register(ctx, digestOf("long note"), "0xA1", max+"n")
		if !errors.Is(err, registry.ErrInvalid) {
			t.Fatalf("Register over max: got err=%v want ErrInvalid", err)
		}
		rec, err := reg.Get(ctx, digestOf("long note"))
		if err != nil || rec.Exists() {
			t.Fatalf("rejected registration left state: rec=%+v err=%v", rec, err)
		}
	})

	t.Run("OwnerLengthBoundary", func(t *testing.T) {
		reg := newRegistry(t)
		ctx := context.Background()
		max := strings.Repeat("o", model.MaxOwnerLength)
		if _, err := reg.Register(ctx, digestOf("max owner"), max, ""); err != nil {
			t.Fatalf("Register at max owner length: %v", err)
		}
		rec, err := reg.Get(ctx, digestOf("max owner"))
		if err != nil || rec.Owner != max {
			t.Fatalf("max owner not stored: rec=%+v err=%v", rec, err)
		}
		_, err = reg.Register(ctx, digestOf("long owner"), max+"o", "")
		if !errors.Is(err, registry.ErrInvalid) {
			t.Fatalf("Register over max owner: got err=%v want ErrInvalid", err)
		}
		rec, err = reg.Get(ctx, digestOf("long owner"))
		if err != nil || rec.Exists() {
			t.Fatalf("rejected registration left state: rec=%+v err=%v", rec, err)
		}
	})

	t.Run("RejectInvalid", func(t *testing.T) {
		reg := newRegistry(t)
		ctx := context.Background()
		if _, err := reg.Register(ctx, fingerprint.Digest{}, "0xA1", ""); !errors.Is(err, registry.ErrInvalid) {
			t.Fatalf("zero digest: got err=%v want ErrInvalid", err)
		}
		if _, err := reg.Register(ctx, digestOf("no owner"), "", ""); !errors.Is(err, registry.ErrInvalid) {
			t.Fatalf("empty owner: got err=%v want ErrInvalid", err)
		}
	})

	t.Run("DistinctRefs", func(t *testing.T) {
		reg := newRegistry(t)
		ctx := context.Background()
		r1, err := reg.Register(ctx, digestOf("a"), "0xA1", "same")
		if err != nil {
			t.Fatalf("Register(a): %v", err)
		}
		r2, err := reg.Register(ctx, digestOf("b"), "0xA1", "same")
		if err != nil {
			t.Fatalf("Register(b): %v", err)
		}
		if r1 == r2 {
			t.Fatalf("distinct registrations share ref %q", r1)
		}
	})

	t.Run("ConcurrentSameDigest", func(t *testing.T) {
		reg := newRegistry(t)
		ctx := context.Background()
		d := digestOf("race")

		const n = 64
		var (
			wg       sync.WaitGroup
			mu       sync.Mutex
			wins     int
			winner   string
			dupes    int
			otherErr []error
		)
		start := make(chan struct{})
		for i := 0; i < n; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				owner := fmt.Sprintf("0x%02x", i)
				<-start
				_, err := reg.Register(ctx, d, owner, "")
				mu.Lock()
				defer mu.Unlock()
				switch {
				case err == nil:
					wins++
					winner = owner
				case registry.IsAlreadyRegistered(err):
					dupes++
				default:
					otherErr = append(otherErr, err)
				}
			}(i)
		}
		close(start)
		wg.Wait()

		if len(otherErr) > 0 {
			t.Fatalf("unexpected errors: %v", otherErr)
		}
		if wins != 1 || dupes != n-1 {
			t.Fatalf("wins=%d dupes=%d, want 1 and %d", wins, dupes, n-1)
		}
		rec, err := reg.Get(ctx, d)
		if err != nil {
			t.Fatalf("Get failed: %v", err)
		}
		if rec.Owner != winner {
			t.Fatalf("stored owner %q, winner was %q", rec.Owner, winner)
		}
	})

	t.Run("ConcurrentDistinctDigests", func(t *testing.T) {
		reg := newRegistry(t)
		ctx := context.Background()

		const n = 32
		var wg sync.WaitGroup
		errs := make(chan error, n)
		for i := 0; i < n; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				if _, err := reg.Register(ctx, digestOf(fmt.Sprintf("item-%d", i)), "0xA1", ""); err != nil {
					errs <- err
				}
			}(i)
		}
		wg.Wait()
		close(errs)
		for err := range errs {
			t.Fatalf("Register failed: %v", err)
		}
		for i := 0; i < n; i++ {
			rec, err := reg.Get(ctx, digestOf(fmt.Sprintf("item-%d", i)))
			if err != nil || !rec.Exists() {
				t.Fatalf("item-%d missing: rec=%+v err=%v", i, rec, err)
			}
		}
	})

	t.Run("ExpiredContextCommitsNothing", func(t *testing.T) {
		reg := newRegistry(t)
		d := digestOf("expired")
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		_, err := reg.Register(ctx, d, "0xA1", "")
		if !errors.Is(err, registry.ErrTimeout) {
			t.Fatalf("Register with done ctx: got err=%v want ErrTimeout", err)
		}
		rec, err := reg.Get(context.Background(), d)
		if err != nil {
			t.Fatalf("Get failed: %v", err)
		}
		if rec.Exists() {
			t.Fatalf("expired Register committed a record")
		}
	})

	t.Run("ListerSorted", func(t *testing.T) {
		reg := newRegistry(t)
		lister, ok := reg.(registry.Lister)
		if !ok {
			t.Skip("backend does not implement Lister")
		}
		ctx := context.Background()
		for _, s := range []string{"x", "y", "z"} {
			if _, err := reg.Register(ctx, digestOf(s), "0xA1", ""); err != nil {
				t.Fatalf("Register(%s): %v", s, err)
			}
		}
		ds, err := lister.Digests(ctx)
		if err != nil {
			t.Fatalf("Digests: %v", err)
		}
		if len(ds) != 3 {
			t.Fatalf("Digests returned %d entries, want 3", len(ds))
		}
		for i := 1; i < len(ds); i++ {
			if ds[i-1].Hex() >= ds[i].Hex() {
				t.Fatalf("Digests not sorted: %s >= %s", ds[i-1], ds[i])
			}
		}
	})

	t.Run("ImportAdoptsForeignRecord", func(t *testing.T) {
		reg := newRegistry(t)
		imp, ok := reg.(registry.Importer)
		if !ok {
			t.Skip("backend does not implement Importer")
		}
		ctx := context.Background()
		stamp := time.Date(2024, 3, 1, 12, 0, 0, 123456789, time.UTC)
		rec, err := registry.NewRecord(digestOf("imported"), "0xC3", "from archive", stamp)
		if err != nil {
			t.Fatalf("NewRecord: %v", err)
		}
		if err := imp.Import(ctx, rec); err != nil {
			t.Fatalf("Import: %v", err)
		}
		got, err := reg.Get(ctx, rec.Digest)
		if err != nil {
			t.Fatalf("Get: %v", err)
		}
		if !got.Equal(rec) {
			t.Fatalf("imported record changed: got %+v want %+v", got, rec)
		}
		if err := imp.Import(ctx, rec); err != nil {
			t.Fatalf("re-importing the same record: %v", err)
		}
		if _, err := reg.Register(ctx, rec.Digest, "0xD4", ""); !errors.Is(err, registry.ErrAlreadyRegistered) {
			t.Fatalf("Register over imported record: got %v", err)
		}

		rival, err := registry.NewRecord(rec.Digest, "0xD4", "", stamp)
		if err != nil {
			t.Fatalf("NewRecord: %v", err)
		}
		if err := imp.Import(ctx, rival); !errors.Is(err, registry.ErrAlreadyRegistered) {
			t.Fatalf("Import of rival record: got %v", err)
		}
	})

	t.Run("ImportRejectsForgedRecord", func(t *testing.T) {
		reg := newRegistry(t)
		imp, ok := reg.(registry.Importer)
		if !ok {
			t.Skip("backend does not implement Importer")
		}
		ctx := context.Background()
		rec, err := registry.NewRecord(digestOf("forged"), "0xC3", "", time.Now())
		if err != nil {
			t.Fatalf("NewRecord: %v", err)
		}
		rec.Owner = "0xEVIL"
		if err := imp.Import(ctx, rec); !errors.Is(err, registry.ErrTampered) {
			t.Fatalf("got %v want ErrTampered", err)
		}
		if ok, err := registry.Exists(ctx, reg, rec.Digest); err != nil || ok {
			t.Fatalf("forged record stored: exists=%v err=%v", ok, err)
		}
	})
}
