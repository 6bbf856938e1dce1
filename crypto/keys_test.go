package crypto

import (
	"bytes"
	"errors"
	"testing"

	"github.com/btcsuite/btcutil/bech32"
)

func TestAccountRoundTrip(t *testing.T) {
	var account [AccountLength]byte
	copy(account[:], bytes.Repeat([]byte{0x42}, AccountLength))

	encoded := FormatAccount(account)
	decoded, err := ParseAccount(encoded)
	if err != nil {
		t.Fatalf("parse account: %v", err)
	}
	if decoded != account {
		t.Fatalf("round trip mismatch: got %x want %x", decoded, account)
	}
}

func TestParseAccountRejectsForeignPrefix(t *testing.T) {
	var account [AccountLength]byte
	foreign := NewAddress("acct", account[:]).String()
	if _, err := ParseAccount(foreign); err == nil {
		t.Fatalf("expected prefix mismatch error")
	}
}

func TestGeneratedKeyDerivesAccount(t *testing.T) {
	key, err := GeneratePrivateKey()
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	restored, err := PrivateKeyFromBytes(key.Bytes())
	if err != nil {
		t.Fatalf("restore key: %v", err)
	}
	if key.PubKey().Address().String() != restored.PubKey().Address().String() {
		t.Fatalf("derived addresses differ")
	}
	if key.PubKey().Address().Prefix() != AccountPrefix {
		t.Fatalf("unexpected prefix %q", key.PubKey().Address().Prefix())
	}
}

func TestDecodeAddressErrors(t *testing.T) {
	cases := map[string]string{
		"empty":    "",
		"checksum": FormatAccount([AccountLength]byte{1})[:10] + "qqqqqqqq",
		"short":    mustEncode(t, AccountPrefix, []byte{1, 2, 3}),
		"uppermix": "ESC1qqqqqqqqqqqqqqqqqqqqqqqqqqqqqqqqqqqqqqqqq",
	}
	for name, input := range cases {
		if _, err := ParseAccount(input); !errors.Is(err, ErrInvalidAddress) {
			t.Fatalf("%s: expected ErrInvalidAddress, got %v", name, err)
		}
	}
}

func TestParseAccountPrefixError(t *testing.T) {
	var account [AccountLength]byte
	_, err := ParseAccount(NewAddress("acct", account[:]).String())
	if !errors.Is(err, ErrAddressPrefix) {
		t.Fatalf("expected ErrAddressPrefix, got %v", err)
	}
}

func mustEncode(t *testing.T, prefix string, data []byte) string {
	t.Helper()
	conv, err := bech32.ConvertBits(data, 8, 5, true)
	if err != nil {
		t.Fatalf("convert bits: %v", err)
	}
	out, err := bech32.Encode(prefix, conv)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	return out
}
