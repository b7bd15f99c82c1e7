package secrets

import (
	"bytes"
	"crypto/rsa"
	"crypto/x509"
	"encoding/base64"
	"encoding/json"
	"encoding/pem"
	"fmt"
	"io"
	"math"
	"math/big"
	"os"
	"path/filepath"

	kerrors "github.com/sealdrop/sealdrop/internal/errors"
	"golang.org/x/crypto/ssh"
)

// KeyTypeRSA is the only accepted value of the kty field.
const KeyTypeRSA = "RSA"

// PublicKeyFile is the portable JSON form of a recipient's public key.
// Components are unpadded base64url big-endian integers.
type PublicKeyFile struct {
	Kty string `json:"kty"`
	N   string `json:"n"`
	E   string `json:"e"`
}

// PrivateKeyFile is the portable JSON form of a recipient's private key.
type PrivateKeyFile struct {
	Kty  string `json:"kty"`
	N    string `json:"n"`
	E    string `json:"e"`
	D    string `json:"d"`
	P    string `json:"p"`
	Q    string `json:"q"`
	Dmp1 string `json:"dmp1"`
	Dmq1 string `json:"dmq1"`
	Iqmp string `json:"iqmp"`
}

// ParsePublicKey strictly decodes a public key document. Unknown and
// missing fields are rejected.
func ParsePublicKey(data []byte) (*PublicKeyFile, error) {
	var key PublicKeyFile
	if err := decodeStrict(data, &key); err != nil {
		return nil, err
	}
	if err := requireFields(map[string]string{"kty": key.Kty, "n": key.N, "e": key.E}); err != nil {
		return nil, err
	}
	return &key, nil
}

// ParsePrivateKey strictly decodes a private key document. All nine
// fields are required.
func ParsePrivateKey(data []byte) (*PrivateKeyFile, error) {
	var key PrivateKeyFile
	if err := decodeStrict(data, &key); err != nil {
		return nil, err
	}
	if err := requireFields(map[string]string{
		"kty": key.Kty, "n": key.N, "e": key.E, "d": key.D, "p": key.P,
		"q": key.Q, "dmp1": key.Dmp1, "dmq1": key.Dmq1, "iqmp": key.Iqmp,
	}); err != nil {
		return nil, err
	}
	return &key, nil
}

func decodeStrict(data []byte, v any) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("%w: %v", kerrors.ErrParse, err)
	}
	if _, err := dec.Token(); err != io.EOF {
		return fmt.Errorf("%w: trailing data after key document", kerrors.ErrParse)
	}
	return nil
}

func requireFields(fields map[string]string) error {
	for name, value := range fields {
		if value == "" {
			return fmt.Errorf("%w: missing field %q", kerrors.ErrParse, name)
		}
	}
	return nil
}

// ToRSA converts the document into a native public key.
func (k *PublicKeyFile) ToRSA() (*rsa.PublicKey, error) {
	if k.Kty != KeyTypeRSA {
		return nil, fmt.Errorf("%w: %q, expected %s", kerrors.ErrKeyType, k.Kty, KeyTypeRSA)
	}
	n, err := decodeComponent("n", k.N)
	if err != nil {
		return nil, err
	}
	e, err := decodeExponent(k.E)
	if err != nil {
		return nil, err
	}
	if n.Sign() <= 0 || n.BitLen() < 1024 {
		return nil, fmt.Errorf("%w: modulus too small (%d bits)", kerrors.ErrParse, n.BitLen())
	}
	return &rsa.PublicKey{N: n, E: e}, nil
}

// ToRSA converts the document into a native private key. The CRT
// parameters in the document must agree with the ones derived from p and q.
func (k *PrivateKeyFile) ToRSA() (*rsa.PrivateKey, error) {
	if k.Kty != KeyTypeRSA {
		return nil, fmt.Errorf("%w: %q, expected %s", kerrors.ErrKeyType, k.Kty, KeyTypeRSA)
	}

	components := map[string]*big.Int{}
	for _, c := range []struct{ name, value string }{
		{"n", k.N}, {"d", k.D}, {"p", k.P}, {"q", k.Q},
		{"dmp1", k.Dmp1}, {"dmq1", k.Dmq1}, {"iqmp", k.Iqmp},
	} {
		v, err := decodeComponent(c.name, c.value)
		if err != nil {
			return nil, err
		}
		components[c.name] = v
	}
	e, err := decodeExponent(k.E)
	if err != nil {
		return nil, err
	}

	priv := &rsa.PrivateKey{
		PublicKey: rsa.PublicKey{N: components["n"], E: e},
		D:         components["d"],
		Primes:    []*big.Int{components["p"], components["q"]},
	}
	if err := priv.Validate(); err != nil {
		return nil, fmt.Errorf("%w: building RSA key from components: %v", kerrors.ErrParse, err)
	}
	priv.Precompute()

	pre := priv.Precomputed
	if pre.Dp == nil || pre.Dp.Cmp(components["dmp1"]) != 0 ||
		pre.Dq.Cmp(components["dmq1"]) != 0 ||
		pre.Qinv.Cmp(components["iqmp"]) != 0 {
		return nil, fmt.Errorf("%w: CRT parameters do not match p and q", kerrors.ErrParse)
	}

	return priv, nil
}

func decodeComponent(name, value string) (*big.Int, error) {
	raw, err := base64.RawURLEncoding.DecodeString(value)
	if err != nil {
		return nil, fmt.Errorf("%w: decoding %s: %v", kerrors.ErrParse, name, err)
	}
	if len(raw) == 0 {
		return nil, fmt.Errorf("%w: empty component %s", kerrors.ErrParse, name)
	}
	return new(big.Int).SetBytes(raw), nil
}

func decodeExponent(value string) (int, error) {
	e, err := decodeComponent("e", value)
	if err != nil {
		return 0, err
	}
	if !e.IsInt64() || e.Int64() < 3 || e.Int64() > math.MaxInt32 {
		return 0, fmt.Errorf("%w: unsupported public exponent", kerrors.ErrParse)
	}
	return int(e.Int64()), nil
}

func encodeComponent(x *big.Int) string {
	return base64.RawURLEncoding.EncodeToString(x.Bytes())
}

// EncodePublicKey returns the JSON document form of pub.
func EncodePublicKey(pub *rsa.PublicKey) *PublicKeyFile {
	return &PublicKeyFile{
		Kty: KeyTypeRSA,
		N:   encodeComponent(pub.N),
		E:   encodeComponent(big.NewInt(int64(pub.E))),
	}
}

// EncodePrivateKey returns the JSON document form of priv.
func EncodePrivateKey(priv *rsa.PrivateKey) (*PrivateKeyFile, error) {
	if len(priv.Primes) != 2 {
		return nil, fmt.Errorf("%w: multi-prime keys are not supported", kerrors.ErrKeyType)
	}
	priv.Precompute()
	pub := EncodePublicKey(&priv.PublicKey)
	return &PrivateKeyFile{
		Kty:  KeyTypeRSA,
		N:    pub.N,
		E:    pub.E,
		D:    encodeComponent(priv.D),
		P:    encodeComponent(priv.Primes[0]),
		Q:    encodeComponent(priv.Primes[1]),
		Dmp1: encodeComponent(priv.Precomputed.Dp),
		Dmq1: encodeComponent(priv.Precomputed.Dq),
		Iqmp: encodeComponent(priv.Precomputed.Qinv),
	}, nil
}

// LoadPrivateKey loads an RSA private key from disk. The file may hold the
// JSON document form or a PEM block (PKCS#1 or PKCS#8).
func LoadPrivateKey(path string) (*rsa.PrivateKey, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, kerrors.NewIOError("read", path, err)
	}
	defer Zero(data)

	key, err := ParsePrivateKeyData(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return key, nil
}

// ParsePrivateKeyData accepts either the JSON document form or PEM.
func ParsePrivateKeyData(data []byte) (*rsa.PrivateKey, error) {
	if trimmed := bytes.TrimSpace(data); len(trimmed) > 0 && trimmed[0] == '{' {
		doc, err := ParsePrivateKey(trimmed)
		if err != nil {
			return nil, err
		}
		return doc.ToRSA()
	}
	return ParsePrivateKeyPEM(data)
}

// ParsePrivateKeyPEM parses a PEM encoded RSA private key in PKCS#1, PKCS#8
// or unencrypted OpenSSH form.
func ParsePrivateKeyPEM(data []byte) (*rsa.PrivateKey, error) {
	block, _ := pem.Decode(data)
	if block == nil {
		return nil, fmt.Errorf("%w: failed to decode PEM block containing private key", kerrors.ErrParse)
	}

	switch block.Type {
	case "RSA PRIVATE KEY":
		key, err := x509.ParsePKCS1PrivateKey(block.Bytes)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", kerrors.ErrParse, err)
		}
		return key, nil
	case "PRIVATE KEY":
		key, err := x509.ParsePKCS8PrivateKey(block.Bytes)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", kerrors.ErrParse, err)
		}
		rsaKey, ok := key.(*rsa.PrivateKey)
		if !ok {
			return nil, fmt.Errorf("%w: not an RSA private key", kerrors.ErrKeyType)
		}
		return rsaKey, nil
	case "OPENSSH PRIVATE KEY":
		key, err := ssh.ParseRawPrivateKey(data)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", kerrors.ErrParse, err)
		}
		rsaKey, ok := key.(*rsa.PrivateKey)
		if !ok {
			return nil, fmt.Errorf("%w: not an RSA private key", kerrors.ErrKeyType)
		}
		return rsaKey, nil
	default:
		return nil, fmt.Errorf("%w: unexpected PEM block %q", kerrors.ErrParse, block.Type)
	}
}

// ParsePublicKeyPEM parses a PEM encoded RSA public key (PKIX or PKCS#1).
func ParsePublicKeyPEM(data []byte) (*rsa.PublicKey, error) {
	block, _ := pem.Decode(data)
	if block == nil {
		return nil, fmt.Errorf("%w: failed to decode PEM block containing public key", kerrors.ErrParse)
	}

	switch block.Type {
	case "PUBLIC KEY":
		pub, err := x509.ParsePKIXPublicKey(block.Bytes)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", kerrors.ErrParse, err)
		}
		rsaPub, ok := pub.(*rsa.PublicKey)
		if !ok {
			return nil, fmt.Errorf("%w: not an RSA public key", kerrors.ErrKeyType)
		}
		return rsaPub, nil
	case "RSA PUBLIC KEY":
		pub, err := x509.ParsePKCS1PublicKey(block.Bytes)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", kerrors.ErrParse, err)
		}
		return pub, nil
	default:
		return nil, fmt.Errorf("%w: unexpected PEM block %q", kerrors.ErrParse, block.Type)
	}
}

// GenerateKeyPair creates a new RSA key pair and writes both JSON documents
// to dir as <name>.json (public) and <name>.private.json (private, 0600).
func GenerateKeyPair(dir, name string, bits int) (publicPath, privatePath string, err error) {
	privateKey, err := rsa.GenerateKey(randReader, bits)
	if err != nil {
		return "", "", fmt.Errorf("failed to generate RSA key pair: %w", err)
	}

	if err := os.MkdirAll(dir, 0700); err != nil {
		return "", "", kerrors.NewIOError("mkdir", dir, err)
	}

	privDoc, err := EncodePrivateKey(privateKey)
	if err != nil {
		return "", "", err
	}

	publicPath = filepath.Join(dir, name+".json")
	privatePath = filepath.Join(dir, name+".private.json")

	if err := writeJSON(privatePath, privDoc, 0600); err != nil {
		return "", "", err
	}
	if err := writeJSON(publicPath, EncodePublicKey(&privateKey.PublicKey), 0644); err != nil {
		return "", "", err
	}

	return publicPath, privatePath, nil
}

func writeJSON(path string, v any, perm os.FileMode) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", path, err)
	}
	// #nosec G306 -- public keys are meant to be shared
	if err := os.WriteFile(path, append(data, '\n'), perm); err != nil {
		return kerrors.NewIOError("write", path, err)
	}
	return nil
}
