package socksopt

import (
	"bytes"
	"net"
	"testing"

	"github.com/Iam54r1n4/socksix/pkg/proxyaddr"
	"github.com/Iam54r1n4/socksix/pkg/socksaddr"
)

func TestEncodeDecodeVectorRoundTrip(t *testing.T) {
	opts := []Option{
		{Kind: 0x0001, Data: []byte{0xAA}},
		{Kind: 0xBEEF, Data: []byte("unknown-option-payload")}, // unknown kind, must round-trip verbatim
		{Kind: KindChain, Data: []byte{0x00}},
	}

	encoded, err := EncodeVector(opts)
	if err != nil {
		t.Fatalf("EncodeVector failed: %v", err)
	}

	decoded, rest, err := DecodeVector(encoded)
	if err != nil {
		t.Fatalf("DecodeVector failed: %v", err)
	}
	if len(rest) != 0 {
		t.Fatalf("expected no trailing bytes, got %d", len(rest))
	}
	if len(decoded) != len(opts) {
		t.Fatalf("expected %d options, got %d", len(opts), len(decoded))
	}
	for i := range opts {
		if decoded[i].Kind != opts[i].Kind || !bytes.Equal(decoded[i].Data, opts[i].Data) {
			t.Fatalf("option %d mismatch: sent %+v, got %+v", i, opts[i], decoded[i])
		}
	}
}

func TestDecodeVectorPreservesTrailingInitialData(t *testing.T) {
	encoded, _ := EncodeVector([]Option{{Kind: 1, Data: []byte{1, 2, 3}}})
	encoded = append(encoded, []byte("HELLO")...)

	_, rest, err := DecodeVector(encoded)
	if err != nil {
		t.Fatalf("DecodeVector failed: %v", err)
	}
	if string(rest) != "HELLO" {
		t.Fatalf("expected initial data preserved, got %q", rest)
	}
}

func TestChainOptionRoundTrip(t *testing.T) {
	hops := []proxyaddr.ProxyAddress{
		proxyaddr.New(6, socksaddr.NewDomain("hop1.internal", 1080)),
		proxyaddr.New(6, socksaddr.NewIP(net.ParseIP("10.0.0.2"), 1081)),
	}

	opt, err := EncodeChain(hops)
	if err != nil {
		t.Fatalf("EncodeChain failed: %v", err)
	}
	if opt.Kind != KindChain {
		t.Fatalf("expected KindChain, got %d", opt.Kind)
	}

	decoded, err := DecodeChain(opt.Data)
	if err != nil {
		t.Fatalf("DecodeChain failed: %v", err)
	}
	if len(decoded) != len(hops) {
		t.Fatalf("expected %d hops, got %d", len(hops), len(decoded))
	}
	for i := range hops {
		if decoded[i].Version != hops[i].Version || !socksaddr.Equal(decoded[i].Target, hops[i].Target) {
			t.Fatalf("hop %d mismatch: sent %+v, got %+v", i, hops[i], decoded[i])
		}
	}
}

func TestPopChainFinalHopSeesEmptyChain(t *testing.T) {
	hops := []proxyaddr.ProxyAddress{
		proxyaddr.New(6, socksaddr.NewDomain("h1", 1)),
		proxyaddr.New(6, socksaddr.NewDomain("h2", 2)),
	}
	chainOpt, err := EncodeChain(hops)
	if err != nil {
		t.Fatal(err)
	}

	opts := []Option{chainOpt}
	for len(opts) > 0 {
		next, _, rewritten, ok, err := PopChain(opts)
		if err != nil {
			t.Fatalf("PopChain failed: %v", err)
		}
		if !ok {
			break
		}
		_ = next
		opts = rewritten
	}
	// After popping every hop, no chain option (or an empty one) remains.
	if _, found := Find(opts, KindChain); found {
		t.Fatal("expected chain option to be absent after popping all hops")
	}
}
