// Package fieldcrypt seals individual database fields with AES-256-CBC.
//
// Each call to Encrypt draws a fresh 16-byte IV, so sealing the same string
// twice yields different ciphertexts. Callers that need to look a value up
// must decrypt candidates and compare plaintexts.
//
// Wire format (kept stable so existing rows stay readable):
//
//	Data: hex(AES-256-CBC(key, IV, PKCS7(plaintext)))
//	IV:   hex(IV)
package fieldcrypt

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
)

// KeySize is the required key length in bytes (AES-256).
const KeySize = 32

var (
	ErrKeySize    = errors.New("fieldcrypt: key must be 32 bytes")
	ErrMalformed  = errors.New("fieldcrypt: malformed ciphertext")
	ErrBadPadding = errors.New("fieldcrypt: bad padding")
)

// Sealed is an encrypted field as stored.
type Sealed struct {
	Data string
	IV   string
}

// Cipher encrypts and decrypts fields under a single key.
// It is safe for concurrent use.
type Cipher struct {
	block cipher.Block
	rand  io.Reader
}

// New builds a Cipher from a 32-byte key.
func New(key []byte) (*Cipher, error) {
	if len(key) != KeySize {
		return nil, ErrKeySize
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("fieldcrypt: %w", err)
	}
	return &Cipher{block: block, rand: rand.Reader}, nil
}

// Encrypt seals plaintext with a new random IV.
func (c *Cipher) Encrypt(plaintext string) (Sealed, error) {
	iv := make([]byte, aes.BlockSize)
	if _, err := io.ReadFull(c.rand, iv); err != nil {
		return Sealed{}, fmt.Errorf("fieldcrypt: reading iv: %w", err)
	}

	padded := pad([]byte(plaintext))
	out := make([]byte, len(padded))
	cipher.NewCBCEncrypter(c.block, iv).CryptBlocks(out, padded)

	return Sealed{
		Data: hex.EncodeToString(out),
		IV:   hex.EncodeToString(iv),
	}, nil
}

// Decrypt opens a sealed field. It fails on bad hex, a wrong IV length,
// a ciphertext that is not a whole number of blocks, or invalid padding.
func (c *Cipher) Decrypt(s Sealed) (string, error) {
	iv, err := hex.DecodeString(s.IV)
	if err != nil || len(iv) != aes.BlockSize {
		return "", ErrMalformed
	}
	data, err := hex.DecodeString(s.Data)
	if err != nil || len(data) == 0 || len(data)%aes.BlockSize != 0 {
		return "", ErrMalformed
	}

	out := make([]byte, len(data))
	cipher.NewCBCDecrypter(c.block, iv).CryptBlocks(out, data)

	plain, err := unpad(out)
	if err != nil {
		return "", err
	}
	return string(plain), nil
}

// DecryptOr returns fallback instead of an error.
func (c *Cipher) DecryptOr(s Sealed, fallback string) string {
	plain, err := c.Decrypt(s)
	if err != nil {
		return fallback
	}
	return plain
}

func pad(b []byte) []byte {
	n := aes.BlockSize - len(b)%aes.BlockSize
	return append(b, bytes.Repeat([]byte{byte(n)}, n)...)
}

func unpad(b []byte) ([]byte, error) {
	if len(b) == 0 {
		return nil, ErrBadPadding
	}
	n := int(b[len(b)-1])
	if n == 0 || n > aes.BlockSize || n > len(b) {
		return nil, ErrBadPadding
	}
	for _, v := range b[len(b)-n:] {
		if int(v) != n {
			return nil, ErrBadPadding
		}
	}
	return b[:len(b)-n], nil
}
