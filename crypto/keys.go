package crypto

import (
	"crypto/ecdsa"
	"crypto/rand"
	"errors"
	"fmt"
	"strings"

	"github.com/btcsuite/btcutil/bech32"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
)

// AccountPrefix is the bech32 human-readable part of escrow accounts.
const AccountPrefix = "esc"

// AccountLength is the size in bytes of an account identifier.
const AccountLength = 20

var (
	ErrInvalidAddress = errors.New("crypto: invalid address")
	ErrAddressPrefix  = errors.New("crypto: unexpected address prefix")
)

// Address is an account identifier together with the prefix it is rendered
// with. The zero value renders with AccountPrefix.
type Address struct {
	prefix  string
	account [AccountLength]byte
}

// NewAddress copies b, which must be exactly AccountLength bytes.
func NewAddress(prefix string, b []byte) Address {
	if len(b) != AccountLength {
		panic(fmt.Sprintf("crypto: address must be %d bytes, got %d", AccountLength, len(b)))
	}
	addr := Address{prefix: prefix}
	copy(addr.account[:], b)
	return addr
}

// AccountAddress renders account with the escrow prefix.
func AccountAddress(account [AccountLength]byte) Address {
	return Address{prefix: AccountPrefix, account: account}
}

func (a Address) Prefix() string {
	if a.prefix == "" {
		return AccountPrefix
	}
	return a.prefix
}

func (a Address) Account() [AccountLength]byte { return a.account }

func (a Address) Bytes() []byte {
	out := make([]byte, AccountLength)
	copy(out, a.account[:])
	return out
}

// String panics only if the prefix is not a valid bech32 human-readable part.
func (a Address) String() string {
	conv, err := bech32.ConvertBits(a.account[:], 8, 5, true)
	if err != nil {
		panic(err)
	}
	encoded, err := bech32.Encode(a.Prefix(), conv)
	if err != nil {
		panic(err)
	}
	return encoded
}

// DecodeAddress parses a bech32 address with any prefix.
func DecodeAddress(s string) (Address, error) {
	prefix, data, err := bech32.Decode(strings.TrimSpace(s))
	if err != nil {
		return Address{}, fmt.Errorf("%w: %v", ErrInvalidAddress, err)
	}
	raw, err := bech32.ConvertBits(data, 5, 8, false)
	if err != nil {
		return Address{}, fmt.Errorf("%w: %v", ErrInvalidAddress, err)
	}
	if len(raw) != AccountLength {
		return Address{}, fmt.Errorf("%w: decoded %d bytes, want %d", ErrInvalidAddress, len(raw), AccountLength)
	}
	return NewAddress(prefix, raw), nil
}

// ParseAccount decodes an escrow account. Addresses carrying another prefix
// are rejected.
func ParseAccount(s string) ([AccountLength]byte, error) {
	addr, err := DecodeAddress(s)
	if err != nil {
		return [AccountLength]byte{}, err
	}
	if addr.Prefix() != AccountPrefix {
		return [AccountLength]byte{}, fmt.Errorf("%w %q", ErrAddressPrefix, addr.Prefix())
	}
	return addr.Account(), nil
}

// FormatAccount renders account as an escrow bech32 address.
func FormatAccount(account [AccountLength]byte) string {
	return AccountAddress(account).String()
}

// PrivateKey is a secp256k1 key. payd only uses it to mint a resolver account
// for freshly generated configs.
type PrivateKey struct {
	*ecdsa.PrivateKey
}

type PublicKey struct {
	*ecdsa.PublicKey
}

func GeneratePrivateKey() (*PrivateKey, error) {
	key, err := ecdsa.GenerateKey(ethcrypto.S256(), rand.Reader)
	if err != nil {
		return nil, err
	}
	return &PrivateKey{key}, nil
}

func PrivateKeyFromBytes(b []byte) (*PrivateKey, error) {
	key, err := ethcrypto.ToECDSA(b)
	if err != nil {
		return nil, err
	}
	return &PrivateKey{key}, nil
}

func (k *PrivateKey) Bytes() []byte { return ethcrypto.FromECDSA(k.PrivateKey) }

func (k *PrivateKey) PubKey() *PublicKey { return &PublicKey{&k.PrivateKey.PublicKey} }

// Address derives the account from the keccak hash of the public key.
func (k *PublicKey) Address() Address {
	return AccountAddress(ethcrypto.PubkeyToAddress(*k.PublicKey))
}
