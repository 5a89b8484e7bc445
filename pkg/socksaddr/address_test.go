package socksaddr

import (
	"net"
	"testing"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	cases := []Address{
		NewIP(net.ParseIP("127.0.0.1"), 80),
		NewIP(net.ParseIP("0.0.0.0"), 0),
		NewIP(net.ParseIP("::1"), 443),
		NewIP(net.ParseIP("2001:db8::1"), 65535),
		NewDomain("example.com", 8080),
		NewDomain("a", 1),
	}

	for _, addr := range cases {
		encoded, err := addr.Encode(nil)
		if err != nil {
			t.Fatalf("Encode(%v) failed: %v", addr, err)
		}
		if len(encoded) != addr.Size() {
			t.Fatalf("Size() = %d, len(Encode()) = %d", addr.Size(), len(encoded))
		}

		decoded, rest, err := Decode(encoded)
		if err != nil {
			t.Fatalf("Decode failed: %v", err)
		}
		if len(rest) != 0 {
			t.Fatalf("expected no leftover bytes, got %d", len(rest))
		}
		if !Equal(addr, decoded) {
			t.Fatalf("round trip mismatch: sent %+v, got %+v", addr, decoded)
		}
	}
}

func TestDecodeTrailingBytesPreserved(t *testing.T) {
	addr := NewDomain("example.com", 80)
	encoded, _ := addr.Encode(nil)
	encoded = append(encoded, []byte("trailer")...)

	decoded, rest, err := Decode(encoded)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if !Equal(addr, decoded) {
		t.Fatalf("mismatch: %+v vs %+v", addr, decoded)
	}
	if string(rest) != "trailer" {
		t.Fatalf("expected trailer bytes preserved, got %q", rest)
	}
}

func TestDecodeErrors(t *testing.T) {
	if _, _, err := Decode(nil); err == nil {
		t.Fatal("expected error decoding empty buffer")
	}
	if _, _, err := Decode([]byte{0x09, 1, 2, 3}); err == nil {
		t.Fatal("expected error decoding unknown ATYP")
	}
	// Domain length 0.
	if _, _, err := Decode([]byte{ATYPDomain, 0x00}); err == nil {
		t.Fatal("expected error decoding zero-length domain")
	}
	// Truncated IPv4.
	if _, _, err := Decode([]byte{ATYPIPv4, 1, 2, 3}); err == nil {
		t.Fatal("expected error decoding truncated IPv4 address")
	}
}
