package codec

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"xdao.co/origin/model"
)

type Options struct {
	// Workers bounds concurrent engine runs; <= 0 means one per CPU.
	Workers int
	// Timeout bounds a single engine run, including the wait for a worker slot. Zero means none.
	Timeout time.Duration
	// TempDir is the parent of per-job directories; empty means os.TempDir().
	TempDir string
	// MinSize is passed to image embedding as --min_size; zero means DefaultMinSize.
	MinSize int
	Logger  *zap.Logger
}

type Gateway struct {
	engine  Engine
	pool    *Pool
	timeout time.Duration
	tempDir string
	minSize int
	logger  *zap.Logger
}

func NewGateway(engine Engine, opts Options) *Gateway {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	minSize := opts.MinSize
	if minSize <= 0 {
		minSize = DefaultMinSize
	}
	return &Gateway{
		engine:  engine,
		pool:    NewPool(opts.Workers),
		timeout: opts.Timeout,
		tempDir: opts.TempDir,
		minSize: minSize,
		logger:  logger,
	}
}

func (g *Gateway) Workers() int { return g.pool.Size() }

type EmbedRequest struct {
	Media Media
	Input io.Reader
	// Filename is the client's name for the upload; only its extension is used.
	Filename    string
	Text        string
	Key         string
	Strength    int
	FrameStride int
}

type ExtractRequest struct {
	Media       Media
	Input       io.Reader
	Filename    string
	Key         string
	Strength    int
	FrameStride int
	MaxSamples  int
}

// Result is watermarked media on disk. The caller must Close it once the
// bytes have been delivered.
type Result struct {
	Path        string
	ContentType string
	Size        int64
	dir         string
}

func (r *Result) Open() (*os.File, error) { return os.Open(r.Path) }

// Close deletes the job's temp directory. Safe to call more than once.
func (r *Result) Close() error {
	if r == nil || r.dir == "" {
		return nil
	}
	dir := r.dir
	r.dir = ""
	return os.RemoveAll(dir)
}

func (g *Gateway) Embed(ctx context.Context, req EmbedRequest) (*Result, error) {
	if err := checkMedia(req.Media); err != nil {
		return nil, err
	}
	if strings.TrimSpace(req.Key) == "" {
		return nil, model.NewError(model.KindValidation, "key required")
	}
	job := Job{
		ID:       uuid.NewString(),
		Op:       OpEmbed,
		Media:    req.Media,
		Text:     req.Text,
		Key:      req.Key,
		Strength: ClampStrength(req.Media, orDefault(req.Strength, DefaultStrength)),
	}
	if req.Media == MediaImage {
		job.MinSize = g.minSize
	} else {
		job.FrameStride = orDefault(req.FrameStride, DefaultFrameStride)
	}

	dir, err := g.stage(&job, req.Input, req.Filename)
	if err != nil {
		return nil, err
	}
	job.Output = filepath.Join(dir, "output"+outputExt(req.Media))

	if _, err := g.run(ctx, job); err != nil {
		_ = os.RemoveAll(dir)
		return nil, err
	}

	res, err := collectOutput(job, dir)
	if err != nil {
		_ = os.RemoveAll(dir)
		return nil, err
	}
	return res, nil
}

func (g *Gateway) Extract(ctx context.Context, req ExtractRequest) (string, error) {
	if err := checkMedia(req.Media); err != nil {
		return "", err
	}
	if strings.TrimSpace(req.Key) == "" {
		return "", model.NewError(model.KindValidation, "key required")
	}
	job := Job{
		ID:       uuid.NewString(),
		Op:       OpExtract,
		Media:    req.Media,
		Key:      req.Key,
		Strength: ClampStrength(req.Media, orDefault(req.Strength, DefaultStrength)),
	}
	if req.Media == MediaVideo {
		job.FrameStride = orDefault(req.FrameStride, DefaultFrameStride)
		job.MaxSamples = orDefault(req.MaxSamples, DefaultMaxSamples)
	}

	dir, err := g.stage(&job, req.Input, req.Filename)
	if err != nil {
		return "", err
	}
	defer os.RemoveAll(dir)

	out, err := g.run(ctx, job)
	if err != nil {
		return "", err
	}
	text := strings.TrimSpace(out)
	if text == "" || text == NoWatermarkFound {
		return "", model.NewError(model.KindCodec, NoWatermarkFound)
	}
	return text, nil
}

// stage creates the job directory and copies the upload into it.
func (g *Gateway) stage(job *Job, input io.Reader, filename string) (string, error) {
	if input == nil {
		return "", model.NewError(model.KindValidation, "file required")
	}
	dir, err := os.MkdirTemp(g.tempDir, "origin-"+job.ID+"-")
	if err != nil {
		return "", model.WrapError(model.KindInternal, "failed to create job directory", err)
	}
	job.Input = filepath.Join(dir, "input"+inputExt(filename, job.Media))

	f, err := os.OpenFile(job.Input, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o600)
	if err != nil {
		_ = os.RemoveAll(dir)
		return "", model.WrapError(model.KindInternal, "failed to stage upload", err)
	}
	if _, err := io.Copy(f, input); err != nil {
		_ = f.Close()
		_ = os.RemoveAll(dir)
		return "", model.WrapError(model.KindInternal, "failed to stage upload", err)
	}
	if err := f.Close(); err != nil {
		_ = os.RemoveAll(dir)
		return "", model.WrapError(model.KindInternal, "failed to stage upload", err)
	}
	return dir, nil
}

func (g *Gateway) run(ctx context.Context, job Job) (string, error) {
	if g.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.timeout)
		defer cancel()
	}
	log := g.logger.With(
		zap.String("job", job.ID),
		zap.String("op", string(job.Op)),
		zap.String("media", string(job.Media)),
	)

	if err := g.pool.Acquire(ctx); err != nil {
		log.Warn("no engine slot before deadline", zap.Error(err))
		return "", model.WrapError(model.KindTimeout, "timed out waiting for a watermark worker", err)
	}
	defer g.pool.Release()

	start := time.Now()
	out, err := g.engine.Run(ctx, job)
	elapsed := time.Since(start)
	if err != nil {
		if ctx.Err() != nil && !model.IsKind(err, model.KindTimeout) {
			err = model.WrapError(model.KindTimeout, "watermark engine timed out", ctx.Err())
		}
		log.Warn("engine run failed", zap.Duration("elapsed", elapsed), zap.Error(err))
		return "", err
	}
	log.Debug("engine run finished", zap.Duration("elapsed", elapsed))
	return out, nil
}

// collectOutput finds the file the engine wrote. Video engines may fall back
// to AVI next to the requested path.
func collectOutput(job Job, dir string) (*Result, error) {
	candidates := []string{job.Output}
	if job.Media == MediaVideo {
		candidates = append(candidates, strings.TrimSuffix(job.Output, filepath.Ext(job.Output))+".avi")
	}
	for _, p := range candidates {
		st, err := os.Stat(p)
		if err != nil {
			if errors.Is(err, os.ErrNotExist) {
				continue
			}
			return nil, model.WrapError(model.KindInternal, "failed to read engine output", err)
		}
		if st.Size() == 0 {
			return nil, model.NewError(model.KindCodec, "engine produced empty output")
		}
		return &Result{Path: p, ContentType: contentTypeFor(p), Size: st.Size(), dir: dir}, nil
	}
	return nil, model.NewError(model.KindCodec, "engine produced no output")
}

func checkMedia(m Media) error {
	switch m {
	case MediaImage, MediaVideo:
		return nil
	default:
		return model.Errorf(model.KindValidation, "unsupported media %q", string(m))
	}
}

func orDefault(v, def int) int {
	if v <= 0 {
		return def
	}
	return v
}

func outputExt(m Media) string {
	if m == MediaVideo {
		return ".mp4"
	}
	return ".png"
}

var allowedInputExt = map[Media][]string{
	MediaImage: {".png", ".jpg", ".jpeg", ".bmp", ".webp", ".tif", ".tiff"},
	MediaVideo: {".mp4", ".avi", ".mov", ".mkv", ".webm"},
}

// inputExt keeps a known extension from the client's filename so the engine
// can pick a decoder. Anything else gets the media's default.
func inputExt(filename string, m Media) string {
	ext := strings.ToLower(filepath.Ext(filename))
	for _, ok := range allowedInputExt[m] {
		if ext == ok {
			return ext
		}
	}
	return outputExt(m)
}

func contentTypeFor(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".png":
		return "image/png"
	case ".mp4":
		return "video/mp4"
	case ".avi":
		return "video/x-msvideo"
	default:
		return "application/octet-stream"
	}
}

func (r *Result) String() string { return fmt.Sprintf("%s (%s, %d bytes)", r.Path, r.ContentType, r.Size) }
