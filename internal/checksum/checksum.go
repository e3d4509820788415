package checksum

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"strings"
)

// Separator joins the hash and the salt index in an X-VERIFY value.
const Separator = "###"

// Compute returns base64(sha256(payload + context + secret)) + "###" + index.
func Compute(payload []byte, context, secret, index string) string {
	return hash(payload, context, secret) + Separator + index
}

// Verify checks an inbound X-VERIFY value. The hash covers payload + secret only,
// which is the shape the gateway uses for callbacks.
func Verify(payload []byte, secret, expectedIndex, signature string) bool {
	got, index, ok := strings.Cut(signature, Separator)
	if !ok || got == "" {
		return false
	}
	if subtle.ConstantTimeCompare([]byte(index), []byte(expectedIndex)) != 1 {
		return false
	}
	want := hash(payload, "", secret)
	return subtle.ConstantTimeCompare([]byte(got), []byte(want)) == 1
}

func hash(payload []byte, context, secret string) string {
	h := sha256.New()
	h.Write(payload)
	h.Write([]byte(context))
	h.Write([]byte(secret))
	return base64.StdEncoding.EncodeToString(h.Sum(nil))
}

// Signer binds a salt key and index.
type Signer struct {
	Secret string
	Index  string
}

// Configured reports whether a salt key is present.
func (s Signer) Configured() bool {
	return s.Secret != ""
}

// Sign computes the X-VERIFY value for an outbound request.
func (s Signer) Sign(payload []byte, context string) string {
	return Compute(payload, context, s.Secret, s.Index)
}

// Verify fails closed when no salt key is configured.
func (s Signer) Verify(payload []byte, signature string) bool {
	if !s.Configured() {
		return false
	}
	return Verify(payload, s.Secret, s.Index, signature)
}
