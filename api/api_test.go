package api

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"xdao.co/origin/codec"
	"xdao.co/origin/fingerprint"
	"xdao.co/origin/model"
	"xdao.co/origin/proof"
	"xdao.co/origin/registry/memory"
)

func init() { gin.SetMode(gin.TestMode) }

const testOwner = "0x00000000000000000000000000000000000000a1"

// fakeEngine prefixes a marker to embedded files and returns fixed text on extract.
type fakeEngine struct {
	mu    sync.Mutex
	last  codec.Job
	text  string
	fail  string
	block bool
}

func (e *fakeEngine) Run(ctx context.Context, job codec.Job) (string, error) {
	e.mu.Lock()
	e.last = job
	e.mu.Unlock()
	if e.block {
		<-ctx.Done()
		return "", ctx.Err()
	}
	if e.fail != "" {
		return "", model.NewError(model.KindCodec, e.fail)
	}
	if job.Op == codec.OpExtract {
		return e.text + "\n", nil
	}
	in, err := os.ReadFile(job.Input)
	if err != nil {
		return "", err
	}
	return "", os.WriteFile(job.Output, append([]byte("WM:"+job.Text+"\n"), in...), 0o600)
}

func (e *fakeEngine) lastJob() codec.Job {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.last
}

type fixture struct {
	handler http.Handler
	engine  *fakeEngine
}

func newFixture(t *testing.T, configure func(*Options)) *fixture {
	t.Helper()
	eng := &fakeEngine{text: "hello"}
	opts := Options{
		Proof: proof.NewService(proof.Options{Registry: memory.New(), Backend: "memory", Owner: testOwner}),
		Codec: codec.NewGateway(eng, codec.Options{Workers: 2, TempDir: t.TempDir()}),
	}
	if configure != nil {
		configure(&opts)
	}
	return &fixture{handler: New(opts).Handler(), engine: eng}
}

func form(t *testing.T, fields map[string]string, filename string, content []byte) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	for k, v := range fields {
		if err := w.WriteField(k, v); err != nil {
			t.Fatalf("WriteField: %v", err)
		}
	}
	if filename != "" {
		fw, err := w.CreateFormFile("file", filename)
		if err != nil {
			t.Fatalf("CreateFormFile: %v", err)
		}
		if _, err := fw.Write(content); err != nil {
			t.Fatalf("write file part: %v", err)
		}
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	return &buf, w.FormDataContentType()
}

func (f *fixture) post(t *testing.T, path string, fields map[string]string, filename string, content []byte) *httptest.ResponseRecorder {
	t.Helper()
	body, ct := form(t, fields, filename, content)
	req := httptest.NewRequest(http.MethodPost, path, body)
	req.Header.Set("Content-Type", ct)
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)
	return rec
}

func (f *fixture) get(t *testing.T, path string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var m map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &m); err != nil {
		t.Fatalf("decode %q: %v", rec.Body.String(), err)
	}
	return m
}

func expectError(t *testing.T, rec *httptest.ResponseRecorder, status int, kind model.Kind) map[string]any {
	t.Helper()
	if rec.Code != status {
		t.Fatalf("status %d want %d: %s", rec.Code, status, rec.Body.String())
	}
	m := decode(t, rec)
	if m["kind"] != string(kind) {
		t.Fatalf("kind %v want %s", m["kind"], kind)
	}
	if s, _ := m["error"].(string); s == "" {
		t.Fatalf("missing error message: %v", m)
	}
	return m
}

func TestRegisterAndVerify(t *testing.T) {
	file := []byte("photo bytes")
	digest := fingerprint.Sum(file).String()

	for _, prefix := range []string{"", "/api"} {
		t.Run("prefix="+prefix, func(t *testing.T) {
			f := newFixture(t, nil)
			rec := f.post(t, prefix+"/register", map[string]string{"note": "mine"}, "a.jpg", file)
			if rec.Code != http.StatusOK {
				t.Fatalf("register status %d: %s", rec.Code, rec.Body.String())
			}
			reg := decode(t, rec)
			if reg["digest"] != digest || reg["hash"] != digest {
				t.Fatalf("digest/hash: %v", reg)
			}
			if reg["recordRef"] == "" || reg["txHash"] != reg["recordRef"] || reg["owner"] != testOwner {
				t.Fatalf("recordRef/txHash/owner: %v", reg)
			}

			rec = f.post(t, prefix+"/verify", nil, "renamed.png", file)
			if rec.Code != http.StatusOK {
				t.Fatalf("verify status %d: %s", rec.Code, rec.Body.String())
			}
			v := decode(t, rec)
			if v["exists"] != true || v["hash"] != digest || v["owner"] != testOwner || v["note"] != "mine" || v["recordRef"] != reg["recordRef"] {
				t.Fatalf("verify: %v", v)
			}
			if ts, _ := v["timestamp"].(float64); ts <= 0 {
				t.Fatalf("timestamp: %v", v["timestamp"])
			}

			rec = f.get(t, prefix+"/records/"+digest)
			if rec.Code != http.StatusOK {
				t.Fatalf("records status %d", rec.Code)
			}
			if got := decode(t, rec); got["recordRef"] != reg["recordRef"] {
				t.Fatalf("records: %v", got)
			}
		})
	}
}

func TestRegisterDuplicate(t *testing.T) {
	f := newFixture(t, nil)
	if rec := f.post(t, "/register", nil, "a", []byte("x")); rec.Code != http.StatusOK {
		t.Fatalf("first register: %d", rec.Code)
	}
	rec := f.post(t, "/register", map[string]string{"note": "again"}, "b", []byte("x"))
	expectError(t, rec, http.StatusConflict, model.KindAlreadyRegistered)
}

func TestVerifyAbsent(t *testing.T) {
	f := newFixture(t, nil)
	rec := f.post(t, "/verify", nil, "a", []byte("unknown"))
	if rec.Code != http.StatusOK {
		t.Fatalf("status %d", rec.Code)
	}
	v := decode(t, rec)
	if v["exists"] != false || v["hash"] != fingerprint.Sum([]byte("unknown")).String() {
		t.Fatalf("verify: %v", v)
	}
	for _, k := range []string{"owner", "timestamp", "note", "recordRef"} {
		if _, ok := v[k]; ok {
			t.Fatalf("absent record carries %q: %v", k, v)
		}
	}
}

func TestRecordInvalidDigest(t *testing.T) {
	f := newFixture(t, nil)
	expectError(t, f.get(t, "/records/nothex"), http.StatusBadRequest, model.KindValidation)
}

func TestRegistryNotConfigured(t *testing.T) {
	f := newFixture(t, func(o *Options) { o.Proof = nil })
	expectError(t, f.post(t, "/register", nil, "a", []byte("x")), http.StatusServiceUnavailable, model.KindNotConfigured)
	expectError(t, f.post(t, "/verify", nil, "a", []byte("x")), http.StatusServiceUnavailable, model.KindNotConfigured)
	expectError(t, f.get(t, "/records/"+fingerprint.Sum(nil).String()), http.StatusServiceUnavailable, model.KindNotConfigured)

	rec := f.get(t, "/status")
	if got := decode(t, rec); got["registry"] != string(model.RegistryUnconfigured) {
		t.Fatalf("status: %v", got)
	}
}

func TestMissingFile(t *testing.T) {
	f := newFixture(t, nil)
	for _, path := range []string{"/register", "/verify", "/watermark/image", "/watermark/video/extract"} {
		rec := f.post(t, path, map[string]string{"key": "k"}, "", nil)
		expectError(t, rec, http.StatusBadRequest, model.KindValidation)
	}
}

func TestUploadTooLarge(t *testing.T) {
	f := newFixture(t, func(o *Options) { o.MaxUploadBytes = 1024 })
	rec := f.post(t, "/register", nil, "big", bytes.Repeat([]byte{1}, 4096))
	if rec.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("status %d want 413: %s", rec.Code, rec.Body.String())
	}
	// Nothing was registered.
	v := decode(t, f.get(t, "/records/"+fingerprint.Sum(bytes.Repeat([]byte{1}, 4096)).String()))
	if v["exists"] != false {
		t.Fatalf("oversize upload was registered: %v", v)
	}
}

func TestEmbedImage(t *testing.T) {
	f := newFixture(t, nil)
	rec := f.post(t, "/watermark/image", map[string]string{"text": "hi", "key": "k", "q": "99"}, "in.jpg", []byte("pixels"))
	if rec.Code != http.StatusOK {
		t.Fatalf("status %d: %s", rec.Code, rec.Body.String())
	}
	if ct := rec.Header().Get("Content-Type"); ct != "image/png" {
		t.Fatalf("content type %q", ct)
	}
	if got := rec.Body.String(); got != "WM:hi\npixels" {
		t.Fatalf("body %q", got)
	}
	job := f.engine.lastJob()
	if job.Strength != 16 || job.MinSize != codec.DefaultMinSize || job.Key != "k" {
		t.Fatalf("job: %+v", job)
	}
	if _, err := os.Stat(job.Output); !os.IsNotExist(err) {
		t.Fatalf("job output left behind: %v", err)
	}
}

func TestEmbedRequiresKey(t *testing.T) {
	f := newFixture(t, nil)
	expectError(t, f.post(t, "/watermark/video", map[string]string{"text": "hi"}, "in.mp4", []byte("v")), http.StatusBadRequest, model.KindValidation)
}

func TestExtractVideoAliases(t *testing.T) {
	f := newFixture(t, nil)
	rec := f.post(t, "/api/watermark/video/extract", map[string]string{"key": "k", "every": "3", "max_samples": "7"}, "in.mp4", []byte("v"))
	if rec.Code != http.StatusOK {
		t.Fatalf("status %d: %s", rec.Code, rec.Body.String())
	}
	if got := decode(t, rec); got["text"] != "hello" {
		t.Fatalf("text: %v", got)
	}
	job := f.engine.lastJob()
	if job.FrameStride != 3 || job.MaxSamples != 7 || job.Strength != codec.DefaultStrength {
		t.Fatalf("job: %+v", job)
	}
}

func TestCodecFailure(t *testing.T) {
	f := newFixture(t, nil)
	f.engine.fail = "Traceback: decoder exploded"
	rec := f.post(t, "/watermark/image/extract", map[string]string{"key": "k"}, "in.png", []byte("p"))
	m := expectError(t, rec, http.StatusUnprocessableEntity, model.KindCodec)
	if m["error"] != "Traceback: decoder exploded" {
		t.Fatalf("engine diagnostic not passed through: %v", m)
	}
}

func TestNoWatermarkFound(t *testing.T) {
	f := newFixture(t, nil)
	f.engine.text = codec.NoWatermarkFound
	rec := f.post(t, "/watermark/image/extract", map[string]string{"key": "k"}, "in.png", []byte("p"))
	expectError(t, rec, http.StatusUnprocessableEntity, model.KindCodec)
}

func TestRequestTimeout(t *testing.T) {
	f := newFixture(t, func(o *Options) { o.RequestTimeout = 30 * time.Millisecond })
	f.engine.block = true
	rec := f.post(t, "/watermark/image", map[string]string{"key": "k"}, "in.png", []byte("p"))
	expectError(t, rec, http.StatusGatewayTimeout, model.KindTimeout)
}

func TestStatus(t *testing.T) {
	f := newFixture(t, nil)
	got := decode(t, f.get(t, "/api/status"))
	if got["registry"] != string(model.RegistryConfigured) || got["backend"] != "memory" || got["owner"] != testOwner {
		t.Fatalf("status: %v", got)
	}
	if got["workers"] != float64(2) {
		t.Fatalf("workers: %v", got["workers"])
	}
}

func TestRequestID(t *testing.T) {
	f := newFixture(t, nil)
	rec := f.get(t, "/status")
	if id := rec.Header().Get(headerRequestID); id == "" {
		t.Fatalf("no request id assigned")
	}

	req := httptest.NewRequest(http.MethodGet, "/status", nil)
	req.Header.Set(headerRequestID, "abc-123")
	rec = httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)
	if id := rec.Header().Get(headerRequestID); id != "abc-123" {
		t.Fatalf("request id %q not propagated", id)
	}
}

func TestCodecNotConfigured(t *testing.T) {
	f := newFixture(t, func(o *Options) { o.Codec = nil })
	rec := f.post(t, "/watermark/image", map[string]string{"key": "k"}, "in.png", []byte("p"))
	m := expectError(t, rec, http.StatusServiceUnavailable, model.KindNotConfigured)
	if !strings.Contains(m["error"].(string), "watermark") {
		t.Fatalf("message: %v", m)
	}
}
