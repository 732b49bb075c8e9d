package fault

import (
	"errors"
	"fmt"
	"testing"
)

func TestWrapNil(t *testing.T) {
	if err := Wrap(HardwareIO, "spi tx", nil); err != nil {
		t.Errorf("expected nil, got %v", err)
	}
}

func TestIsKind(t *testing.T) {
	base := errors.New("bus fault")
	err := fmt.Errorf("read counter: %w", Wrap(HardwareIO, "spi tx", base))

	if !Is(err, HardwareIO) {
		t.Error("expected HardwareIO kind")
	}
	if Is(err, FileSystem) {
		t.Error("did not expect FileSystem kind")
	}
	if !errors.Is(err, base) {
		t.Error("expected chain to contain base error")
	}
}

func TestIsNestedKind(t *testing.T) {
	inner := Wrap(FileSystem, "append record", errors.New("disk full"))
	outer := Wrap(HardwareIO, "tick", inner)

	if !Is(outer, FileSystem) {
		t.Error("expected nested FileSystem kind to be found")
	}
}

func TestClosed(t *testing.T) {
	err := Closed("read counter")
	if !errors.Is(err, ErrClosed) {
		t.Errorf("expected ErrClosed in chain, got %v", err)
	}
	if !Is(err, ResourceState) {
		t.Error("expected ResourceState kind")
	}
	if got, want := err.Error(), "read counter: resource state error: resource closed"; got != want {
		t.Errorf("Error(): got %q, want %q", got, want)
	}
}

func TestIsPlainError(t *testing.T) {
	if Is(errors.New("plain"), HardwareIO) {
		t.Error("plain error should not match any kind")
	}
	if Is(nil, HardwareIO) {
		t.Error("nil should not match any kind")
	}
}
