// Package secretbox implements the reversible encoding used to protect
// values that leave the trust boundary and are decoded later by the same
// process. Two codecs share the same key material: Codec prepends a fresh
// random IV to every ciphertext and is used for all new encodes;
// LegacyCodec reproduces the historical deterministic output (fixed
// all-zero IV) and exists only to decode values persisted before the key
// handling was reworked.
package secretbox

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
)

// ErrMalformedInput indicates a ciphertext whose length is not a block
// multiple or whose padding does not verify after decryption.
var ErrMalformedInput = errors.New("secretbox: malformed input")

// KeyFromHex parses per-deployment key material. Accepts 16, 24 or 32
// byte keys (AES-128/192/256).
func KeyFromHex(s string) ([]byte, error) {
	key, err := hex.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("secretbox: decode key: %w", err)
	}
	switch len(key) {
	case 16, 24, 32:
		return key, nil
	}
	return nil, fmt.Errorf("secretbox: key must be 16, 24 or 32 bytes, got %d", len(key))
}

// Codec encodes with AES-CBC and a fresh random IV per call. The IV is
// prepended to the ciphertext, so identical plaintexts produce distinct
// encoded values.
type Codec struct {
	block cipher.Block
}

// New constructs a Codec from raw key bytes.
func New(key []byte) (*Codec, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("secretbox: %w", err)
	}
	return &Codec{block: block}, nil
}

// Encode returns iv || CBC(pad(plaintext)).
func (c *Codec) Encode(plaintext []byte) ([]byte, error) {
	padded := pkcs7Pad(plaintext, aes.BlockSize)
	out := make([]byte, aes.BlockSize+len(padded))
	iv := out[:aes.BlockSize]
	if _, err := rand.Read(iv); err != nil {
		return nil, fmt.Errorf("secretbox: read iv: %w", err)
	}
	cipher.NewCBCEncrypter(c.block, iv).CryptBlocks(out[aes.BlockSize:], padded)
	return out, nil
}

// Decode reverses Encode. Fails with ErrMalformedInput when the input is
// too short, not a block multiple, or carries invalid padding.
func (c *Codec) Decode(data []byte) ([]byte, error) {
	if len(data) < 2*aes.BlockSize || len(data)%aes.BlockSize != 0 {
		return nil, ErrMalformedInput
	}
	iv, ct := data[:aes.BlockSize], data[aes.BlockSize:]
	plain := make([]byte, len(ct))
	cipher.NewCBCDecrypter(c.block, iv).CryptBlocks(plain, ct)
	return pkcs7Unpad(plain, aes.BlockSize)
}

// LegacyCodec reproduces the deterministic historical encoding: AES-CBC
// with a fixed all-zero IV. Identical plaintexts under the same key always
// yield identical ciphertexts — a known weakness kept byte-for-byte
// compatible so values encoded by earlier deployments stay decodable.
// Never use it for new encodes.
type LegacyCodec struct {
	block cipher.Block
}

// NewLegacy constructs a LegacyCodec from raw key bytes.
func NewLegacy(key []byte) (*LegacyCodec, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("secretbox: %w", err)
	}
	return &LegacyCodec{block: block}, nil
}

var zeroIV [aes.BlockSize]byte

// Encode returns CBC(pad(plaintext)) under the zero IV. Deterministic.
func (c *LegacyCodec) Encode(plaintext []byte) []byte {
	padded := pkcs7Pad(plaintext, aes.BlockSize)
	out := make([]byte, len(padded))
	cipher.NewCBCEncrypter(c.block, zeroIV[:]).CryptBlocks(out, padded)
	return out
}

// Decode reverses Encode.
func (c *LegacyCodec) Decode(data []byte) ([]byte, error) {
	if len(data) == 0 || len(data)%aes.BlockSize != 0 {
		return nil, ErrMalformedInput
	}
	plain := make([]byte, len(data))
	cipher.NewCBCDecrypter(c.block, zeroIV[:]).CryptBlocks(plain, data)
	return pkcs7Unpad(plain, aes.BlockSize)
}

func pkcs7Pad(data []byte, blockSize int) []byte {
	n := blockSize - len(data)%blockSize
	return append(append([]byte(nil), data...), bytes.Repeat([]byte{byte(n)}, n)...)
}

func pkcs7Unpad(data []byte, blockSize int) ([]byte, error) {
	if len(data) == 0 || len(data)%blockSize != 0 {
		return nil, ErrMalformedInput
	}
	n := int(data[len(data)-1])
	if n == 0 || n > blockSize || n > len(data) {
		return nil, ErrMalformedInput
	}
	for _, b := range data[len(data)-n:] {
		if int(b) != n {
			return nil, ErrMalformedInput
		}
	}
	return data[:len(data)-n], nil
}
