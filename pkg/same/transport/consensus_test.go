package transport

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"pgregory.net/rapid"
)

func TestConsensus(t *testing.T) {
	tests := []struct {
		name   string
		bursts [][]byte
		want   []byte
	}{
		{"none", nil, nil},
		{"single", [][]byte{[]byte("ABC")}, []byte("ABC")},
		{"single empty", [][]byte{{}}, []byte{}},
		{
			"two of three agree",
			[][]byte{{0x41, 0x42}, {0x41, 0x43}, {0x41, 0x42}},
			[]byte{0x41, 0x42},
		},
		{
			"majority per bit, not per byte",
			[][]byte{{0b0000_0011}, {0b0000_0101}, {0b0000_0110}},
			[]byte{0b0000_0111},
		},
		{
			"tie goes to earliest",
			[][]byte{{0xF0}, {0x0F}},
			[]byte{0xF0},
		},
		{
			"length of longest",
			[][]byte{[]byte("AB"), []byte("ABCD"), []byte("A")},
			[]byte("ABCD"),
		},
		{
			"tail decided by covering bursts only",
			[][]byte{{0x00}, {0x00, 0xFF, 0x01}, {0x00, 0xFF, 0x02}},
			[]byte{0x00, 0xFF, 0x01},
		},
		{
			"empty burst does not vote",
			[][]byte{{}, []byte("XY"), []byte("XY")},
			[]byte("XY"),
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Consensus(tt.bursts))
		})
	}
}

func TestConsensusDoesNotAlias(t *testing.T) {
	in := []byte("ZZ")
	out := Consensus([][]byte{in})
	out[0] = 'A'
	assert.Equal(t, []byte("ZZ"), in)
}

func TestConsensusProperties(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		a := rapid.SliceOf(rapid.Byte()).Draw(t, "a")
		b := rapid.SliceOf(rapid.Byte()).Draw(t, "b")
		c := rapid.SliceOf(rapid.Byte()).Draw(t, "c")

		out := Consensus([][]byte{a, b, c})

		want := len(a)
		if len(b) > want {
			want = len(b)
		}
		if len(c) > want {
			want = len(c)
		}
		if len(out) != want {
			t.Fatalf("length %d, want %d", len(out), want)
		}

		if got := Consensus([][]byte{a, a, a}); !bytes.Equal(got, a) {
			t.Fatalf("identical bursts changed: %x -> %x", a, got)
		}

		// A pair that agrees outvotes any third burst no longer than the pair.
		if len(c) <= len(a) {
			if got := Consensus([][]byte{a, c, a}); !bytes.Equal(got, a) {
				t.Fatalf("majority lost: %x, %x -> %x", a, c, got)
			}
		}

		// With two bursts the earlier one wins wherever both have data.
		pair := Consensus([][]byte{a, b})
		for i := 0; i < len(a) && i < len(b); i++ {
			if pair[i] != a[i] {
				t.Fatalf("position %d: got %x, want earliest %x", i, pair[i], a[i])
			}
		}
	})
}
