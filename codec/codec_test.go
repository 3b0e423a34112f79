package codec

import (
	"reflect"
	"testing"
)

func TestNormalizeStrength(t *testing.T) {
	cases := []struct {
		media Media
		raw   string
		want  int
	}{
		{MediaImage, "", DefaultStrength},
		{MediaImage, "abc", DefaultStrength},
		{MediaImage, "0", DefaultStrength},
		{MediaImage, "-4", DefaultStrength},
		{MediaImage, "NaN", DefaultStrength},
		{MediaImage, "8", 8},
		{MediaImage, " 8.4 ", 8},
		{MediaImage, "1", 2},
		{MediaImage, "40", 16},
		{MediaVideo, "", DefaultStrength},
		{MediaVideo, "8", 10},
		{MediaVideo, "14", 14},
		{MediaVideo, "99", 16},
	}
	for _, tc := range cases {
		if got := NormalizeStrength(tc.media, tc.raw); got != tc.want {
			t.Fatalf("NormalizeStrength(%s, %q) = %d, want %d", tc.media, tc.raw, got, tc.want)
		}
	}
}

func TestNormalizeVideoParams(t *testing.T) {
	if got := NormalizeFrameStride(""); got != DefaultFrameStride {
		t.Fatalf("stride default: got %d", got)
	}
	if got := NormalizeFrameStride("-1"); got != DefaultFrameStride {
		t.Fatalf("stride negative: got %d", got)
	}
	if got := NormalizeFrameStride("3"); got != 3 {
		t.Fatalf("stride: got %d", got)
	}
	if got := NormalizeMaxSamples("x"); got != DefaultMaxSamples {
		t.Fatalf("max samples default: got %d", got)
	}
	if got := NormalizeMaxSamples("20"); got != 20 {
		t.Fatalf("max samples: got %d", got)
	}
}

func TestScriptNames(t *testing.T) {
	cases := map[string]string{
		Script(OpEmbed, MediaImage):   "embed_image.py",
		Script(OpExtract, MediaImage): "extract_image.py",
		Script(OpEmbed, MediaVideo):   "embed_video.py",
		Script(OpExtract, MediaVideo): "extract_video.py",
	}
	for got, want := range cases {
		if got != want {
			t.Fatalf("script name: got %q want %q", got, want)
		}
	}
}

func TestArgs(t *testing.T) {
	cases := []struct {
		name string
		job  Job
		want []string
	}{
		{
			"embed image",
			Job{Op: OpEmbed, Media: MediaImage, Input: "in.png", Output: "out.png", Text: "hi", Key: "k", Strength: 8, MinSize: 512},
			[]string{"--input", "in.png", "--output", "out.png", "--text", "hi", "--key", "k", "--q", "8", "--min_size", "512"},
		},
		{
			"extract image",
			Job{Op: OpExtract, Media: MediaImage, Input: "in.png", Key: "k", Strength: 8},
			[]string{"--input", "in.png", "--key", "k", "--q", "8"},
		},
		{
			"embed video",
			Job{Op: OpEmbed, Media: MediaVideo, Input: "in.mp4", Output: "out.mp4", Text: "hi", Key: "k", Strength: 12, FrameStride: 5},
			[]string{"--input", "in.mp4", "--output", "out.mp4", "--text", "hi", "--key", "k", "--q", "12", "--every", "5"},
		},
		{
			"extract video",
			Job{Op: OpExtract, Media: MediaVideo, Input: "in.mp4", Key: "k", Strength: 12, FrameStride: 5, MaxSamples: 60},
			[]string{"--input", "in.mp4", "--key", "k", "--q", "12", "--every", "5", "--max_samples", "60"},
		},
	}
	for _, tc := range cases {
		if got := Args(tc.job); !reflect.DeepEqual(got, tc.want) {
			t.Fatalf("%s: got %v want %v", tc.name, got, tc.want)
		}
	}
}

func TestNewProcessEngineSplitsInterpreter(t *testing.T) {
	e := NewProcessEngine("py -3.11", "/opt/wm")
	if !reflect.DeepEqual(e.Interpreter, []string{"py", "-3.11"}) {
		t.Fatalf("interpreter: got %v", e.Interpreter)
	}
	if d := NewProcessEngine("  ", ""); !reflect.DeepEqual(d.Interpreter, []string{"python3"}) {
		t.Fatalf("default interpreter: got %v", d.Interpreter)
	}
}
