// Package codec is the gateway to the external watermark engine.
//
// The engine is an opaque single-shot program: it gets an input file and
// parameters, writes an output file or prints recovered text, and exits.
// The gateway normalizes parameters, bounds concurrency and owns the temp
// files of each job.
package codec

import (
	"context"
	"math"
	"strconv"
	"strings"
)

type Media string

const (
	MediaImage Media = "image"
	MediaVideo Media = "video"
)

type Op string

const (
	OpEmbed   Op = "embed"
	OpExtract Op = "extract"
)

const (
	DefaultStrength    = 12
	DefaultFrameStride = 5
	DefaultMaxSamples  = 60
	DefaultMinSize     = 512

	minImageStrength = 2
	minVideoStrength = 10
	maxStrength      = 16
)

// NoWatermarkFound is what extraction engines print when nothing was recovered.
const NoWatermarkFound = "No watermark found"

// Job is one engine invocation. It lives for a single request.
type Job struct {
	ID          string
	Op          Op
	Media       Media
	Input       string
	Output      string
	Text        string
	Key         string
	Strength    int
	FrameStride int
	MaxSamples  int
	MinSize     int
}

// Engine runs a job to completion and returns its stdout.
// Failures carry the engine's diagnostic text.
type Engine interface {
	Run(ctx context.Context, job Job) (string, error)
}

// NormalizeStrength parses a raw strength value. Missing, non-numeric and
// non-positive values yield DefaultStrength; the rest is rounded and clamped
// to the media's range (image 2-16, video 10-16).
func NormalizeStrength(media Media, raw string) int {
	n, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
	if err != nil || math.IsNaN(n) || math.IsInf(n, 0) || n <= 0 {
		return DefaultStrength
	}
	return ClampStrength(media, int(math.Round(n)))
}

func ClampStrength(media Media, q int) int {
	lo := minImageStrength
	if media == MediaVideo {
		lo = minVideoStrength
	}
	if q < lo {
		return lo
	}
	if q > maxStrength {
		return maxStrength
	}
	return q
}

// NormalizeFrameStride yields DefaultFrameStride unless raw is a positive integer.
func NormalizeFrameStride(raw string) int { return positiveOr(raw, DefaultFrameStride) }

// NormalizeMaxSamples yields DefaultMaxSamples unless raw is a positive integer.
func NormalizeMaxSamples(raw string) int { return positiveOr(raw, DefaultMaxSamples) }

func positiveOr(raw string, def int) int {
	n, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil || n <= 0 {
		return def
	}
	return n
}
