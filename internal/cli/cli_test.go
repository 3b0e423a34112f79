package cli

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/fatih/color"

	"xdao.co/origin/fingerprint"
	"xdao.co/origin/keys"
	"xdao.co/origin/model"

	_ "xdao.co/origin/registry/localfs"
	_ "xdao.co/origin/registry/sqlite"
)

func init() { color.NoColor = true }

const testSeedHex = "0202020202020202020202020202020202020202020202020202020202020202"

func run(t *testing.T, args ...string) (int, string, string) {
	t.Helper()
	var out, errOut bytes.Buffer
	code := Execute(args, &out, &errOut)
	return code, out.String(), errOut.String()
}

func mustRun(t *testing.T, args ...string) string {
	t.Helper()
	code, out, errOut := run(t, args...)
	if code != 0 {
		t.Fatalf("origin %s: exit %d: %s", strings.Join(args, " "), code, errOut)
	}
	return out
}

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	if err := os.WriteFile(p, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
	return p
}

func TestFingerprint(t *testing.T) {
	p := writeFile(t, t.TempDir(), "a.txt", "hello")
	out := mustRun(t, "fingerprint", p)
	d := fingerprint.Sum([]byte("hello"))
	if !strings.HasPrefix(out, d.String()+"  "+d.CID().String()) {
		t.Fatalf("unexpected output %q", out)
	}
}

func TestRegisterVerifyLocalfs(t *testing.T) {
	dir := t.TempDir()
	file := writeFile(t, dir, "photo.jpg", "pixels")
	reg := []string{"--backend", "localfs", "--opt", "dir=" + filepath.Join(dir, "registry")}

	out := mustRun(t, append(reg, "--seed-hex", testSeedHex, "register", "--note", "first", "--json", file)...)
	var res model.RegisterResult
	if err := json.Unmarshal([]byte(out), &res); err != nil {
		t.Fatalf("decode %q: %v", out, err)
	}
	seed, _ := keys.ParseSeedHex(testSeedHex)
	acct, _ := keys.NewAccount(seed)
	if res.Owner != acct.Address() || res.Receipt == nil {
		t.Fatalf("register result: %+v", res)
	}
	if err := keys.VerifyReceipt(res.Receipt, res.Digest, res.RecordRef, res.Owner); err != nil {
		t.Fatalf("receipt: %v", err)
	}

	code, _, errOut := run(t, append(reg, "--seed-hex", testSeedHex, "register", file)...)
	if code != 3 || !strings.Contains(errOut, "already registered") {
		t.Fatalf("duplicate: exit %d: %s", code, errOut)
	}

	// Lookups need no account.
	out = mustRun(t, append(reg, "verify", "--json", file)...)
	var v model.VerifyResult
	if err := json.Unmarshal([]byte(out), &v); err != nil {
		t.Fatalf("decode %q: %v", out, err)
	}
	if !v.Exists || v.Owner != acct.Address() || v.Note != "first" || v.RecordRef != res.RecordRef {
		t.Fatalf("verify: %+v", v)
	}

	out = mustRun(t, append(reg, "verify", "--digest", res.Digest)...)
	if !strings.HasPrefix(out, "REGISTERED "+res.Digest) || !strings.Contains(out, "note:       first") {
		t.Fatalf("verify text: %q", out)
	}

	other := writeFile(t, dir, "other.jpg", "different pixels")
	out = mustRun(t, append(reg, "verify", other)...)
	if !strings.HasPrefix(out, "NOT REGISTERED ") {
		t.Fatalf("verify absent: %q", out)
	}
}

func TestRegisterNeedsAccountAndBackend(t *testing.T) {
	dir := t.TempDir()
	file := writeFile(t, dir, "a", "x")

	code, _, errOut := run(t, "--seed-hex", testSeedHex, "register", file)
	if code == 0 || !strings.Contains(errOut, "registry not configured") {
		t.Fatalf("no backend: exit %d: %s", code, errOut)
	}
	code, _, errOut = run(t, "--backend", "localfs", "--opt", "dir="+dir, "register", file)
	if code == 0 || !strings.Contains(errOut, "no account configured") {
		t.Fatalf("no account: exit %d: %s", code, errOut)
	}
}

func TestVerifyArgs(t *testing.T) {
	code, _, _ := run(t, "--backend", "localfs", "--opt", "dir="+t.TempDir(), "verify")
	if code != 2 {
		t.Fatalf("verify without input: exit %d", code)
	}
}

func TestKeyInitShowAndUse(t *testing.T) {
	dir := t.TempDir()
	keyDir := filepath.Join(dir, "keys")
	keys.ScryptWorkFactor = 10
	t.Setenv(defaultPassphraseEnv, "correct horse")

	out := mustRun(t, "--key-dir", keyDir, "key", "init", "--name", "studio", "--from-seed", testSeedHex)
	seed, _ := keys.ParseSeedHex(testSeedHex)
	acct, _ := keys.NewAccount(seed)
	if !strings.Contains(out, "address: "+acct.Address()) {
		t.Fatalf("init output %q", out)
	}

	code, _, errOut := run(t, "--key-dir", keyDir, "key", "init", "--name", "studio")
	if code == 0 || !strings.Contains(errOut, "already exists") {
		t.Fatalf("second init: exit %d: %s", code, errOut)
	}

	out = mustRun(t, "--key-dir", keyDir, "key", "show", "--name", "studio")
	if !strings.Contains(out, acct.Address()) || !strings.Contains(out, "dilithium3:") {
		t.Fatalf("show output %q", out)
	}
	if out := mustRun(t, "--key-dir", keyDir, "key", "list"); strings.TrimSpace(out) != "studio" {
		t.Fatalf("list output %q", out)
	}

	file := writeFile(t, dir, "a", "x")
	out = mustRun(t, "--key-dir", keyDir, "--account", "studio",
		"--backend", "sqlite", "--opt", "path="+filepath.Join(dir, "reg.db"),
		"register", "--json", file)
	var res model.RegisterResult
	if err := json.Unmarshal([]byte(out), &res); err != nil {
		t.Fatalf("decode %q: %v", out, err)
	}
	if res.Owner != acct.Address() {
		t.Fatalf("owner %s want %s", res.Owner, acct.Address())
	}
}

func TestExportImportAudit(t *testing.T) {
	dir := t.TempDir()
	src := []string{"--backend", "localfs", "--opt", "dir=" + filepath.Join(dir, "src")}
	dst := []string{"--backend", "sqlite", "--opt", "path=" + filepath.Join(dir, "dst.db")}
	for _, c := range []string{"one", "two"} {
		mustRun(t, append(src, "--seed-hex", testSeedHex, "register", writeFile(t, dir, c, c))...)
	}

	archive := filepath.Join(dir, "records.tar")
	mustRun(t, append(src, "export", "--out", archive)...)

	out := mustRun(t, "audit", archive)
	if !strings.Contains(out, "2 records verified") {
		t.Fatalf("offline audit: %q", out)
	}

	code, out, _ := run(t, append(dst, "audit", archive)...)
	if code == 0 || strings.Count(out, "missing") != 2 {
		t.Fatalf("audit against empty registry: exit %d: %q", code, out)
	}

	out = mustRun(t, append(dst, "import", archive)...)
	if !strings.Contains(out, "records: 2 imported: 2") {
		t.Fatalf("import: %q", out)
	}
	mustRun(t, append(dst, "audit", archive)...)

	out = mustRun(t, append(dst, "verify", writeFile(t, dir, "copy", "one"))...)
	if !strings.HasPrefix(out, "REGISTERED ") {
		t.Fatalf("verify after import: %q", out)
	}
}

func TestBackendsList(t *testing.T) {
	out := mustRun(t, "backends")
	if !strings.Contains(out, "localfs") || !strings.Contains(out, "--opt dir=") {
		t.Fatalf("backends output %q", out)
	}
}
