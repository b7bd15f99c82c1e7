package secrets

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/rsa"
	"crypto/subtle"
	"fmt"
	"io"

	kerrors "github.com/sealdrop/sealdrop/internal/errors"
)

// KeySize is the length of a one-time symmetric key (AES-256).
const KeySize = 32

// randReader is the entropy source for symmetric keys and RSA padding.
var randReader io.Reader = rand.Reader

// zeroIV is safe only because every key encrypts exactly one payload.
var zeroIV [aes.BlockSize]byte

// Cipher is a single-use AES-256-CBC engine. It encrypts or decrypts exactly
// one payload; a second call returns ErrCipherSpent. Construct a new Cipher
// for every item.
type Cipher struct {
	key   [KeySize]byte
	spent bool
}

// NewCipher returns a cipher keyed with key, or with a fresh random key when
// key is nil.
func NewCipher(key []byte) (*Cipher, error) {
	c := &Cipher{}
	if key == nil {
		if _, err := io.ReadFull(randReader, c.key[:]); err != nil {
			return nil, fmt.Errorf("failed to generate symmetric key: %w", err)
		}
	} else {
		if len(key) != KeySize {
			return nil, fmt.Errorf("%w: expected %d bytes, got %d bytes", kerrors.ErrInvalidKeyLength, KeySize, len(key))
		}
		copy(c.key[:], key)
	}

	var zero [KeySize]byte
	if subtle.ConstantTimeCompare(c.key[:], zero[:]) == 1 {
		return nil, kerrors.ErrZeroKey
	}

	return c, nil
}

// Key returns a copy of the raw key so it can be wrapped for a recipient.
func (c *Cipher) Key() []byte {
	key := make([]byte, KeySize)
	copy(key, c.key[:])
	return key
}

// Encrypt pads plaintext with PKCS#7 and encrypts it under the cipher's key
// and the zero IV.
func (c *Cipher) Encrypt(plaintext []byte) ([]byte, error) {
	if err := c.use(); err != nil {
		return nil, err
	}

	block, err := aes.NewCipher(c.key[:])
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}

	padded := pad(plaintext, aes.BlockSize)
	ciphertext := make([]byte, len(padded))
	cipher.NewCBCEncrypter(block, zeroIV[:]).CryptBlocks(ciphertext, padded)
	Zero(padded)

	return ciphertext, nil
}

// Decrypt reverses Encrypt. It returns ErrIntegrity when the ciphertext is
// not a whole number of blocks or the padding is invalid.
func (c *Cipher) Decrypt(ciphertext []byte) ([]byte, error) {
	if err := c.use(); err != nil {
		return nil, err
	}

	if len(ciphertext) == 0 || len(ciphertext)%aes.BlockSize != 0 {
		return nil, fmt.Errorf("%w: ciphertext length %d is not a multiple of %d", kerrors.ErrIntegrity, len(ciphertext), aes.BlockSize)
	}

	block, err := aes.NewCipher(c.key[:])
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}

	padded := make([]byte, len(ciphertext))
	cipher.NewCBCDecrypter(block, zeroIV[:]).CryptBlocks(padded, ciphertext)

	plaintext, err := unpad(padded, aes.BlockSize)
	if err != nil {
		Zero(padded)
		return nil, err
	}
	return plaintext, nil
}

// Wipe zeroes the key.
func (c *Cipher) Wipe() {
	Zero(c.key[:])
	c.spent = true
}

func (c *Cipher) use() error {
	if c.spent {
		return kerrors.ErrCipherSpent
	}
	c.spent = true
	return nil
}

func pad(data []byte, blockSize int) []byte {
	n := blockSize - len(data)%blockSize
	padded := make([]byte, len(data)+n)
	copy(padded, data)
	copy(padded[len(data):], bytes.Repeat([]byte{byte(n)}, n))
	return padded
}

func unpad(data []byte, blockSize int) ([]byte, error) {
	n := int(data[len(data)-1])
	if n == 0 || n > blockSize || n > len(data) {
		return nil, fmt.Errorf("%w: invalid padding", kerrors.ErrIntegrity)
	}
	for _, b := range data[len(data)-n:] {
		if int(b) != n {
			return nil, fmt.Errorf("%w: invalid padding", kerrors.ErrIntegrity)
		}
	}
	return data[:len(data)-n], nil
}

// Zero overwrites b with zeros.
func Zero(b []byte) {
	for i := range b {
		b[i] = 0
	}
}

// WrapKey encrypts a symmetric key for a recipient with RSA PKCS#1 v1.5.
// The result is exactly pub.Size() bytes.
func WrapKey(pub *rsa.PublicKey, key []byte) ([]byte, error) {
	if len(key) != KeySize {
		return nil, fmt.Errorf("%w: expected %d bytes, got %d bytes", kerrors.ErrInvalidKeyLength, KeySize, len(key))
	}
	wrapped, err := rsa.EncryptPKCS1v15(randReader, pub, key)
	if err != nil {
		return nil, fmt.Errorf("failed to wrap symmetric key: %w", err)
	}
	return wrapped, nil
}

// UnwrapKey recovers a symmetric key with the recipient's private key.
// It returns ErrUnwrap when the padding is invalid, which typically means the
// key was wrapped for someone else, or when the recovered key has the wrong
// length.
func UnwrapKey(priv *rsa.PrivateKey, wrapped []byte) ([]byte, error) {
	if len(wrapped) != priv.Size() {
		return nil, fmt.Errorf("%w: wrapped key is %d bytes, expected %d", kerrors.ErrUnwrap, len(wrapped), priv.Size())
	}
	key, err := rsa.DecryptPKCS1v15(randReader, priv, wrapped)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", kerrors.ErrUnwrap, err)
	}
	if len(key) != KeySize {
		Zero(key)
		return nil, fmt.Errorf("%w: recovered key is %d bytes, expected %d", kerrors.ErrUnwrap, len(key), KeySize)
	}
	return key, nil
}
