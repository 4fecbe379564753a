// Package crypt reconstructs embed source keys and decrypts the
// OpenSSL-style salted AES-CBC payloads served by encrypted embeds.
package crypt

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"crypto/md5"
	"encoding/base64"
	"fmt"
	"unicode/utf8"

	"github.com/example/mcat-providers/services/resolver/internal/media"
)

const (
	// HeaderSize is the "Salted__" marker plus the 8 byte salt.
	HeaderSize   = 16
	keySize      = 32
	materialSize = keySize + aes.BlockSize
)

// FormatKey XORs key material with the big-endian bytes of version, cycling
// over the four version bytes, and base64-encodes the result.
func FormatKey(material []int, version uint32) string {
	vb := [4]byte{byte(version >> 24), byte(version >> 16), byte(version >> 8), byte(version)}
	out := make([]byte, len(material))
	for i, k := range material {
		out[i] = byte(k) ^ vb[i%4]
	}
	return base64.StdEncoding.EncodeToString(out)
}

// DeriveKey expands secret and salt into at least 48 bytes:
// d0 = md5(secret+salt), dn = md5(dn-1+secret+salt).
func DeriveKey(secret, salt []byte) []byte {
	seed := make([]byte, 0, len(secret)+len(salt))
	seed = append(seed, secret...)
	seed = append(seed, salt...)

	d := md5.Sum(seed)
	out := append([]byte(nil), d[:]...)
	for len(out) < materialSize {
		next := make([]byte, 0, len(d)+len(seed))
		next = append(next, d[:]...)
		next = append(next, seed...)
		d = md5.Sum(next)
		out = append(out, d[:]...)
	}
	return out
}

// Salt returns bytes [8:16) of a decoded payload.
func Salt(decoded []byte) ([]byte, error) {
	if len(decoded) < HeaderSize {
		return nil, fmt.Errorf("%w: payload shorter than header (%d bytes)", media.ErrValidation, len(decoded))
	}
	return decoded[8:HeaderSize], nil
}

// Decrypt base64-decodes ciphertext, derives key and IV from secret and the
// embedded salt, and returns the unpadded UTF-8 plaintext.
func Decrypt(ciphertext string, secret []byte) (string, error) {
	decoded, err := base64.StdEncoding.DecodeString(ciphertext)
	if err != nil {
		return "", fmt.Errorf("%w: ciphertext is not base64: %w", media.ErrValidation, err)
	}
	salt, err := Salt(decoded)
	if err != nil {
		return "", err
	}
	material := DeriveKey(secret, salt)
	plain, err := decryptCBC(decoded[HeaderSize:], material[:keySize], material[keySize:materialSize])
	if err != nil {
		return "", err
	}
	if !utf8.Valid(plain) {
		return "", fmt.Errorf("%w: plaintext is not utf-8", media.ErrValidation)
	}
	return string(plain), nil
}

func decryptCBC(body, key, iv []byte) ([]byte, error) {
	if len(body) == 0 || len(body)%aes.BlockSize != 0 {
		return nil, fmt.Errorf("%w: ciphertext length %d is not a block multiple", media.ErrValidation, len(body))
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	out := make([]byte, len(body))
	cipher.NewCBCDecrypter(block, iv).CryptBlocks(out, body)
	return unpad(out)
}

// Encrypt is the inverse of Decrypt and produces "Salted__"+salt+ciphertext, base64-encoded.
func Encrypt(plaintext, secret, salt []byte) (string, error) {
	if len(salt) != 8 {
		return "", fmt.Errorf("%w: salt must be 8 bytes", media.ErrValidation)
	}
	material := DeriveKey(secret, salt)
	block, err := aes.NewCipher(material[:keySize])
	if err != nil {
		return "", err
	}
	padded := pad(plaintext)
	out := make([]byte, HeaderSize+len(padded))
	copy(out, "Salted__")
	copy(out[8:], salt)
	cipher.NewCBCEncrypter(block, material[keySize:materialSize]).CryptBlocks(out[HeaderSize:], padded)
	return base64.StdEncoding.EncodeToString(out), nil
}

func pad(b []byte) []byte {
	n := aes.BlockSize - len(b)%aes.BlockSize
	return append(append([]byte(nil), b...), bytes.Repeat([]byte{byte(n)}, n)...)
}

func unpad(b []byte) ([]byte, error) {
	if len(b) == 0 {
		return nil, fmt.Errorf("%w: empty plaintext", media.ErrValidation)
	}
	n := int(b[len(b)-1])
	if n == 0 || n > aes.BlockSize || n > len(b) {
		return nil, fmt.Errorf("%w: bad padding", media.ErrValidation)
	}
	for _, c := range b[len(b)-n:] {
		if int(c) != n {
			return nil, fmt.Errorf("%w: bad padding", media.ErrValidation)
		}
	}
	return b[:len(b)-n], nil
}
