// Package signature verifies QR codes signed by wallet devices.
package signature

import (
	"crypto/ed25519"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/smallbiznis/hyperion/internal/myeclpay/domain"
)

var (
	ErrInvalidPublicKey = errors.New("invalid ed25519 public key")
	ErrMalformed        = errors.New("malformed signature")
	ErrMismatch         = errors.New("signature does not match")
)

// signable fixes the field order and encoding of the signed bytes.
type signable struct {
	ID    string `json:"id"`
	Tot   int64  `json:"tot"`
	Iat   string `json:"iat"`
	Key   string `json:"key"`
	Store bool   `json:"store"`
}

// SignableBytes is the compact JSON the device signs:
// {"id":...,"tot":...,"iat":...,"key":...,"store":...}. iat is the string the
// device sent when known, UTC RFC 3339 otherwise.
func SignableBytes(content domain.QRCodeContent) ([]byte, error) {
	iat := content.RawIssuedAt
	if iat == "" {
		iat = content.IssuedAt.UTC().Format(time.RFC3339Nano)
	}
	return json.Marshal(signable{
		ID:    content.ID.String(),
		Tot:   content.Total,
		Iat:   iat,
		Key:   content.Key.String(),
		Store: content.Store,
	})
}

// Verify checks a base64 signature of content against a raw public key.
func Verify(publicKey []byte, sig string, content domain.QRCodeContent) error {
	if len(publicKey) != ed25519.PublicKeySize {
		return ErrInvalidPublicKey
	}
	raw, err := base64.StdEncoding.DecodeString(sig)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if len(raw) != ed25519.SignatureSize {
		return ErrMalformed
	}
	msg, err := SignableBytes(content)
	if err != nil {
		return err
	}
	if !ed25519.Verify(ed25519.PublicKey(publicKey), msg, raw) {
		return ErrMismatch
	}
	return nil
}

// Sign produces the signature a wallet device attaches to content.
func Sign(key ed25519.PrivateKey, content domain.QRCodeContent) (string, error) {
	msg, err := SignableBytes(content)
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(ed25519.Sign(key, msg)), nil
}

// ParsePublicKey decodes a base64 raw ed25519 public key.
func ParsePublicKey(encoded string) ([]byte, error) {
	raw, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil || len(raw) != ed25519.PublicKeySize {
		return nil, ErrInvalidPublicKey
	}
	return raw, nil
}
