package base45

import (
	"bytes"
	"crypto/rand"
	"errors"
	"testing"
)

func TestU_Encode_RFC9285Vectors(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"", ""},
		{"AB", "BB8"},
		{"Hello!!", "%69 VD92EX0"},
		{"base-45", "UJCLQE7W581"},
		{"ietf!", "QED8WEX0"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			if got := Encode([]byte(tt.in)); got != tt.want {
				t.Errorf("Encode(%q) = %q, want %q", tt.in, got, tt.want)
			}
			got, err := Decode(tt.want)
			if err != nil {
				t.Fatalf("Decode(%q) failed: %v", tt.want, err)
			}
			if string(got) != tt.in {
				t.Errorf("Decode(%q) = %q, want %q", tt.want, got, tt.in)
			}
		})
	}
}

func TestU_RoundTrip(t *testing.T) {
	for n := 0; n <= 64; n++ {
		src := make([]byte, n)
		if _, err := rand.Read(src); err != nil {
			t.Fatalf("rand: %v", err)
		}
		enc := Encode(src)
		if len(enc) != EncodedLen(n) {
			t.Errorf("len(Encode(%d bytes)) = %d, want %d", n, len(enc), EncodedLen(n))
		}
		dec, err := Decode(enc)
		if err != nil {
			t.Fatalf("Decode of %d bytes failed: %v", n, err)
		}
		if !bytes.Equal(dec, src) {
			t.Errorf("round trip mismatch for %d bytes", n)
		}
	}
}

func TestU_RoundTrip_ExtremeBytes(t *testing.T) {
	inputs := [][]byte{
		{0x00},
		{0xff},
		{0xff, 0xff},
		{0x00, 0x00, 0x00},
		{0xff, 0xff, 0xff},
	}
	for _, src := range inputs {
		dec, err := Decode(Encode(src))
		if err != nil {
			t.Fatalf("Decode(Encode(%x)) failed: %v", src, err)
		}
		if !bytes.Equal(dec, src) {
			t.Errorf("round trip %x -> %x", src, dec)
		}
	}
}

func TestU_Decode_Errors(t *testing.T) {
	tests := []struct {
		name    string
		in      string
		wantErr error
	}{
		{"single symbol", "A", ErrInvalidLength},
		{"dangling symbol", "BB8A", ErrInvalidLength},
		{"lowercase", "bb8", ErrInvalidCharacter},
		{"outside alphabet", "BB#", ErrInvalidCharacter},
		{"non ascii", "BB\xc3", ErrInvalidCharacter},
		{"three symbol overflow", "GGW", ErrOverflow},
		{"two symbol overflow", ":6", ErrOverflow},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Decode(tt.in)
			if err == nil {
				t.Fatalf("Decode(%q) succeeded, want error", tt.in)
			}
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Decode(%q) error = %v, want %v", tt.in, err, tt.wantErr)
			}
			if !errors.Is(err, ErrFormat) {
				t.Errorf("Decode(%q) error %v does not wrap ErrFormat", tt.in, err)
			}
		})
	}
}

func TestU_Decode_MaxValues(t *testing.T) {
	// "FGW" is 65535, the largest valid three-symbol group.
	got, err := Decode("FGW")
	if err != nil {
		t.Fatalf("Decode(FGW) failed: %v", err)
	}
	if !bytes.Equal(got, []byte{0xff, 0xff}) {
		t.Errorf("Decode(FGW) = %x, want ffff", got)
	}

	// "U5" is 255, the largest valid two-symbol group.
	got, err = Decode("U5")
	if err != nil {
		t.Fatalf("Decode(U5) failed: %v", err)
	}
	if !bytes.Equal(got, []byte{0xff}) {
		t.Errorf("Decode(U5) = %x, want ff", got)
	}
}
