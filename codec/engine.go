package codec

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"xdao.co/origin/model"
)

// ProcessEngine runs the watermark scripts through an interpreter, one
// process per job.
type ProcessEngine struct {
	// Interpreter is the argv prefix, e.g. ["python3"] or ["py", "-3.11"].
	Interpreter []string
	ScriptDir   string
	// Env optionally overrides the command environment. If nil, the process environment is used.
	Env []string
}

// NewProcessEngine splits interpreter on whitespace so values like "py -3.11" work.
func NewProcessEngine(interpreter, scriptDir string) *ProcessEngine {
	argv := strings.Fields(interpreter)
	if len(argv) == 0 {
		argv = []string{"python3"}
	}
	return &ProcessEngine{Interpreter: argv, ScriptDir: scriptDir}
}

// Script names the engine script for a job.
func Script(op Op, media Media) string {
	return fmt.Sprintf("%s_%s.py", op, media)
}

// Args builds the engine command line for a job.
func Args(job Job) []string {
	args := []string{"--input", job.Input}
	if job.Op == OpEmbed {
		args = append(args, "--output", job.Output, "--text", job.Text)
	}
	args = append(args, "--key", job.Key, "--q", strconv.Itoa(job.Strength))
	if job.Op == OpEmbed && job.Media == MediaImage && job.MinSize > 0 {
		args = append(args, "--min_size", strconv.Itoa(job.MinSize))
	}
	if job.Media == MediaVideo {
		if job.FrameStride > 0 {
			args = append(args, "--every", strconv.Itoa(job.FrameStride))
		}
		if job.Op == OpExtract && job.MaxSamples > 0 {
			args = append(args, "--max_samples", strconv.Itoa(job.MaxSamples))
		}
	}
	return args
}

func (e *ProcessEngine) Run(ctx context.Context, job Job) (string, error) {
	script := filepath.Join(e.ScriptDir, Script(job.Op, job.Media))
	argv := append(append([]string{}, e.Interpreter[1:]...), script)
	argv = append(argv, Args(job)...)

	cmd := exec.CommandContext(ctx, e.Interpreter[0], argv...)
	cmd.WaitDelay = 2 * time.Second
	if e.Env != nil {
		cmd.Env = e.Env
	}
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	if err == nil {
		return strings.TrimSpace(stdout.String()), nil
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return "", model.WrapError(model.KindTimeout, "watermark engine timed out", ctxErr)
	}

	var ee *exec.ExitError
	if errors.As(err, &ee) {
		s := strings.TrimSpace(stderr.String())
		if s == "" {
			s = fmt.Sprintf("engine exited with code %d", ee.ExitCode())
		}
		return "", model.NewError(model.KindCodec, s)
	}
	return "", model.WrapError(model.KindCodec, "watermark engine failed to start", err)
}
