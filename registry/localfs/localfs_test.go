package localfs

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"xdao.co/origin/fingerprint"
	"xdao.co/origin/registry"
	"xdao.co/origin/registry/testkit"
)

func TestLocalFS_Conformance(t *testing.T) {
	testkit.RunRegistryConformance(t, func(t *testing.T) registry.Registry {
		t.Helper()
		reg, err := New(t.TempDir())
		if err != nil {
			t.Fatalf("New failed: %v", err)
		}
		return reg
	})
}

func TestLocalFS_SurvivesReopen(t *testing.T) {
	dir := t.TempDir()
	reg, err := New(dir)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	d := fingerprint.Sum([]byte("persist"))
	ref, err := reg.Register(context.Background(), d, "0xA1", "kept")
	if err != nil {
		t.Fatalf("Register failed: %v", err)
	}

	reopened, err := New(dir)
	if err != nil {
		t.Fatalf("New(reopen) failed: %v", err)
	}
	rec, err := reopened.Get(context.Background(), d)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if rec.Ref != ref || rec.Note != "kept" {
		t.Fatalf("record lost across reopen: %+v", rec)
	}
	if _, err := reopened.Register(context.Background(), d, "0xB2", ""); !registry.IsAlreadyRegistered(err) {
		t.Fatalf("Register after reopen: got %v want ErrAlreadyRegistered", err)
	}
}

func TestLocalFS_RejectMutationByOverwrite(t *testing.T) {
	dir := t.TempDir()
	reg, err := New(dir)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	d := fingerprint.Sum([]byte("original"))
	if _, err := reg.Register(context.Background(), d, "0xA1", "mine"); err != nil {
		t.Fatalf("Register failed: %v", err)
	}

	// Corrupt the stored record out-of-band.
	path := reg.pathFor(d)
	if err := os.Chmod(path, 0o644); err != nil {
		t.Fatalf("Chmod failed: %v", err)
	}
	if err := os.WriteFile(path, []byte("corrupted"), 0o644); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}

	if _, err := reg.Get(context.Background(), d); !errors.Is(err, registry.ErrTampered) {
		t.Fatalf("Get after corruption: got %v want ErrTampered", err)
	}
	// Register must not repair or overwrite the corrupted record.
	if _, err := reg.Register(context.Background(), d, "0xB2", ""); !registry.IsAlreadyRegistered(err) {
		t.Fatalf("Register after corruption: got %v want ErrAlreadyRegistered", err)
	}
}

func TestLocalFS_RecordFileIsReadOnlyAndNoTempLeft(t *testing.T) {
	dir := t.TempDir()
	reg, err := New(dir)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	d := fingerprint.Sum([]byte("perm"))
	if _, err := reg.Register(context.Background(), d, "0xA1", ""); err != nil {
		t.Fatalf("Register failed: %v", err)
	}
	st, err := os.Stat(reg.pathFor(d))
	if err != nil {
		t.Fatalf("Stat failed: %v", err)
	}
	if st.Mode().Perm()&0o222 != 0 {
		t.Fatalf("record file is writable: %v", st.Mode())
	}

	entries, err := os.ReadDir(filepath.Dir(reg.pathFor(d)))
	if err != nil {
		t.Fatalf("ReadDir failed: %v", err)
	}
	for _, e := range entries {
		if strings.HasPrefix(e.Name(), ".pending-") {
			t.Fatalf("temp file left behind: %s", e.Name())
		}
	}
}

func TestNew_RequiresRoot(t *testing.T) {
	if _, err := New(""); err == nil {
		t.Fatalf("expected error for empty root")
	}
}
