package queue

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strings"
)

const signaturePrefix = "sha256="

var (
	ErrMissingSignature = errors.New("missing task signature")
	ErrInvalidSignature = errors.New("invalid task signature")
)

// Signer signs task payloads with HMAC-SHA256. An empty secret disables
// signing and verification.
type Signer struct {
	secret []byte
}

func NewSigner(secret string) *Signer {
	return &Signer{secret: []byte(strings.TrimSpace(secret))}
}

func (s *Signer) Enabled() bool {
	return s != nil && len(s.secret) > 0
}

// Sign returns the signature header value for payload.
func (s *Signer) Sign(payload []byte) string {
	if !s.Enabled() {
		return ""
	}
	return signaturePrefix + hex.EncodeToString(s.digest(payload))
}

func (s *Signer) Verify(payload []byte, header string) error {
	if !s.Enabled() {
		return nil
	}

	signature := strings.TrimSpace(header)
	if signature == "" {
		return ErrMissingSignature
	}
	if len(signature) <= len(signaturePrefix) || !strings.EqualFold(signature[:len(signaturePrefix)], signaturePrefix) {
		return ErrInvalidSignature
	}
	decoded, err := hex.DecodeString(signature[len(signaturePrefix):])
	if err != nil {
		return ErrInvalidSignature
	}
	if !hmac.Equal(decoded, s.digest(payload)) {
		return ErrInvalidSignature
	}
	return nil
}

func (s *Signer) digest(payload []byte) []byte {
	mac := hmac.New(sha256.New, s.secret)
	mac.Write(payload)
	return mac.Sum(nil)
}
