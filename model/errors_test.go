package model

import (
	"errors"
	"fmt"
	"testing"
)

func TestKindOf(t *testing.T) {
	if KindOf(nil) != "" {
		t.Fatalf("nil error must have no kind")
	}
	if KindOf(errors.New("boom")) != KindInternal {
		t.Fatalf("plain errors classify as internal")
	}
	wrapped := fmt.Errorf("register: %w", NewError(KindAlreadyRegistered, "dup"))
	if !IsKind(wrapped, KindAlreadyRegistered) {
		t.Fatalf("wrapped kind not found")
	}
}

func TestError_UnwrapKeepsCause(t *testing.T) {
	cause := errors.New("disk gone")
	e := WrapError(KindNotConfigured, "registry unavailable", cause)
	if !errors.Is(e, cause) {
		t.Fatalf("cause not reachable through Unwrap")
	}
	if e.Error() != "registry unavailable: disk gone" {
		t.Fatalf("unexpected message %q", e.Error())
	}
}

func TestError_CodecMessageIsVerbatim(t *testing.T) {
	e := WrapError(KindCodec, "Traceback: bad frame", errors.New("exit status 1"))
	if e.Error() != "Traceback: bad frame" {
		t.Fatalf("codec diagnostics must pass through verbatim, got %q", e.Error())
	}
}
