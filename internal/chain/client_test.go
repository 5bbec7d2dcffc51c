package chain

import (
	"errors"
	"testing"
	"time"

	"oraclex/internal/config"
)

func TestSelectRPCURL(t *testing.T) {
	if got := SelectRPCURL(nil); got != DefaultRPCURL {
		t.Fatalf("got %q want fallback %q", got, DefaultRPCURL)
	}
	if got := SelectRPCURL([]string{"", "  ", "https://rpc.example.org"}); got != "https://rpc.example.org" {
		t.Fatalf("got %q want first non-empty candidate", got)
	}
	if got := SelectRPCURL([]string{"https://a.example.org", "https://b.example.org"}); got != "https://a.example.org" {
		t.Fatalf("got %q want first candidate", got)
	}
}

func TestNewRequiresContractAddress(t *testing.T) {
	_, err := New(config.ChainConfig{}, nil)
	if !errors.Is(err, ErrMissingContract) {
		t.Fatalf("err=%v want ErrMissingContract", err)
	}
	_, err = New(config.ChainConfig{ContractAddress: "not-an-address"}, nil)
	if err == nil {
		t.Fatalf("invalid address must be rejected")
	}
	c, err := New(config.ChainConfig{ContractAddress: "0x000000000000000000000000000000000000dEaD"}, nil)
	if err != nil {
		t.Fatalf("valid address rejected: %v", err)
	}
	if c.ContractAddress().Hex() != "0x000000000000000000000000000000000000dEaD" {
		t.Fatalf("contract=%s", c.ContractAddress().Hex())
	}
}

func TestApproxBlockAt(t *testing.T) {
	headTime := int64(1_700_000_000)
	head := uint64(1000)
	interval := 3 * time.Second

	if got := ApproxBlockAt(time.Unix(headTime, 0), head, headTime, interval); got != head {
		t.Fatalf("at head time got %d want %d", got, head)
	}
	if got := ApproxBlockAt(time.Unix(headTime+60, 0), head, headTime, interval); got != head {
		t.Fatalf("future time got %d want head %d", got, head)
	}
	if got := ApproxBlockAt(time.Unix(headTime-300, 0), head, headTime, interval); got != 900 {
		t.Fatalf("5m back got %d want 900", got)
	}
	if got := ApproxBlockAt(time.Unix(headTime-1_000_000, 0), head, headTime, interval); got != 0 {
		t.Fatalf("before genesis got %d want 0", got)
	}
}

func TestApproxBlockAtSubSecondInterval(t *testing.T) {
	headTime := int64(1_700_000_000)
	head := uint64(1000)

	// 500ms blocks: 60s back is 120 blocks. Must not divide by a
	// whole-second zero.
	if got := ApproxBlockAt(time.Unix(headTime-60, 0), head, headTime, 500*time.Millisecond); got != 880 {
		t.Fatalf("500ms interval got %d want 880", got)
	}
	if got := ApproxBlockAt(time.Unix(headTime-300, 0), head, headTime, 250*time.Millisecond); got != 0 {
		t.Fatalf("250ms interval beyond genesis got %d want 0", got)
	}
	if got := ApproxBlockAt(time.Unix(headTime-300, 0), head, headTime, 0); got != 900 {
		t.Fatalf("zero interval must fall back to 3s, got %d want 900", got)
	}
}
