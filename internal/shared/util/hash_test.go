package util

import (
	"bytes"
	"io"
	"testing"
)

func TestHashBytesStable(t *testing.T) {
	a := HashBytes([]byte("recording"))
	b := HashBytes([]byte("recording"))
	if a != b {
		t.Fatalf("hash not stable: %s != %s", a, b)
	}
	if len(a) != 64 {
		t.Fatalf("expected 64 hex chars, got %d", len(a))
	}
	if a == HashBytes([]byte("other")) {
		t.Fatal("different inputs hashed equal")
	}
}

func TestContentHasherMatchesHashBytes(t *testing.T) {
	payload := []byte("some audio bytes")

	hasher := NewContentHasher()
	if _, err := io.Copy(io.Discard, hasher.Tee(bytes.NewReader(payload))); err != nil {
		t.Fatalf("copy: %v", err)
	}

	if got, want := hasher.Sum(), HashBytes(payload); got != want {
		t.Fatalf("streamed hash %s != direct hash %s", got, want)
	}
}
