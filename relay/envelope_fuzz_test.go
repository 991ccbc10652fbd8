package relay

import (
	"bytes"
	"testing"
)

// FuzzReverseEnvelope checks the swap on arbitrary 3-frame envelopes and
// that applying it twice restores the input.
// Run with: go test -fuzz=FuzzReverseEnvelope -fuzztime=30s ./relay/
func FuzzReverseEnvelope(f *testing.F) {
	f.Add([]byte("alice"), []byte("bob"), []byte("hi"))
	f.Add([]byte{}, []byte{}, []byte{})
	f.Add([]byte{0x00, 0x6b}, []byte("peer"), []byte(`{"type":"ping"}`))

	f.Fuzz(func(t *testing.T, a, b, c []byte) {
		once, ok := ReverseEnvelope([][]byte{a, b, c})
		if !ok {
			t.Fatal("3-frame envelope rejected")
		}
		if !bytes.Equal(once[0], b) || !bytes.Equal(once[1], a) || !bytes.Equal(once[2], c) {
			t.Fatalf("unexpected swap: %q", once)
		}

		twice, ok := ReverseEnvelope(once)
		if !ok {
			t.Fatal("reversed envelope rejected")
		}
		for i, want := range [][]byte{a, b, c} {
			if !bytes.Equal(twice[i], want) {
				t.Fatalf("frame %d: got %q, want %q", i, twice[i], want)
			}
		}
	})
}
