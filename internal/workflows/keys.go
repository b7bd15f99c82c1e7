package workflows

import (
	"crypto/rsa"
	"fmt"

	kerrors "github.com/sealdrop/sealdrop/internal/errors"
	"github.com/sealdrop/sealdrop/internal/secrets"
)

// MinKeyBits is the smallest RSA modulus GenerateKeys accepts.
const MinKeyBits = 2048

// GenerateKeysOptions configures key generation.
type GenerateKeysOptions struct {
	Dir  string
	Name string
	Bits int
}

// GenerateKeysResult contains the written key documents.
type GenerateKeysResult struct {
	PublicPath  string
	PrivatePath string
}

// GenerateKeys creates a recipient key pair as JSON documents.
//
// Returns ErrInvalidName if Name cannot be a file name.
// Returns ErrConfig if Bits is below MinKeyBits.
func GenerateKeys(opts GenerateKeysOptions) (*GenerateKeysResult, error) {
	if opts.Bits == 0 {
		opts.Bits = 4096
	}
	if opts.Bits < MinKeyBits {
		return nil, fmt.Errorf("%w: key size %d is below %d bits", kerrors.ErrConfig, opts.Bits, MinKeyBits)
	}
	if err := validateKeyName(opts.Name); err != nil {
		return nil, err
	}

	publicPath, privatePath, err := secrets.GenerateKeyPair(opts.Dir, opts.Name, opts.Bits)
	if err != nil {
		return nil, err
	}
	return &GenerateKeysResult{PublicPath: publicPath, PrivatePath: privatePath}, nil
}

// ConvertKeyResult holds the JSON documents for a converted PEM key.
// Private is nil when the input was a public key.
type ConvertKeyResult struct {
	Public  *secrets.PublicKeyFile
	Private *secrets.PrivateKeyFile
}

// ConvertKey turns a PEM public or private RSA key into the JSON key
// document form recipients publish.
//
// Returns ErrParse if data holds no usable RSA key.
func ConvertKey(data []byte) (*ConvertKeyResult, error) {
	if pub, err := secrets.ParsePublicKeyPEM(data); err == nil {
		return &ConvertKeyResult{Public: secrets.EncodePublicKey(pub)}, nil
	}

	priv, err := secrets.ParsePrivateKeyPEM(data)
	if err != nil {
		return nil, fmt.Errorf("%w: input is neither a public nor a private RSA key", kerrors.ErrParse)
	}
	return convertPrivate(priv)
}

func convertPrivate(priv *rsa.PrivateKey) (*ConvertKeyResult, error) {
	doc, err := secrets.EncodePrivateKey(priv)
	if err != nil {
		return nil, err
	}
	return &ConvertKeyResult{
		Public:  secrets.EncodePublicKey(&priv.PublicKey),
		Private: doc,
	}, nil
}
