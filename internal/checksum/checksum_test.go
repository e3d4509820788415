package checksum

import (
	"crypto/sha256"
	"encoding/base64"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

const (
	testSalt  = "099eb0cd-02cf-4e2a-8aca-3e6c6aff0399"
	testIndex = "1"
)

func TestComputeFormat(t *testing.T) {
	payload := []byte("eyJtZXJjaGFudElkIjoiTSJ9")
	sum := sha256.Sum256([]byte(string(payload) + "/pg/v1/pay" + testSalt))
	want := base64.StdEncoding.EncodeToString(sum[:]) + "###1"

	assert.Equal(t, want, Compute(payload, "/pg/v1/pay", testSalt, testIndex))
	assert.Equal(t, want, Compute(payload, "/pg/v1/pay", testSalt, testIndex), "deterministic")
}

func TestComputeEmptyPayload(t *testing.T) {
	endpoint := "/pg/v1/status/MERCHANT/TXN1"
	sum := sha256.Sum256([]byte(endpoint + testSalt))
	want := base64.StdEncoding.EncodeToString(sum[:]) + "###1"

	assert.Equal(t, want, Compute(nil, endpoint, testSalt, testIndex))
}

func TestVerify(t *testing.T) {
	body := []byte(`{"response":"eyJzdGF0ZSI6IkNPTVBMRVRFRCJ9"}`)
	sig := Compute(body, "", testSalt, testIndex)

	assert.True(t, Verify(body, testSalt, testIndex, sig))

	cases := map[string]string{
		"missing separator": strings.TrimSuffix(sig, "###1"),
		"wrong index":       strings.TrimSuffix(sig, "1") + "2",
		"empty index":       strings.TrimSuffix(sig, "1"),
		"empty hash":        "###1",
		"empty":             "",
		"garbage":           "not-a-signature",
		"extra separator":   sig + "###1",
	}
	for name, s := range cases {
		t.Run(name, func(t *testing.T) {
			assert.False(t, Verify(body, testSalt, testIndex, s))
		})
	}
}

func TestVerifyDetectsTampering(t *testing.T) {
	body := []byte(`{"merchantTransactionId":"TXN1","state":"FAILED"}`)
	sig := Compute(body, "", testSalt, testIndex)

	for i := range body {
		tampered := append([]byte(nil), body...)
		tampered[i] ^= 0x01
		assert.False(t, Verify(tampered, testSalt, testIndex, sig), "byte %d", i)
	}
	assert.False(t, Verify(body, "other-salt", testIndex, sig))
}

func TestSigner(t *testing.T) {
	s := Signer{Secret: testSalt, Index: testIndex}
	body := []byte("payload")

	assert.True(t, s.Configured())
	assert.Equal(t, Compute(body, "/x", testSalt, testIndex), s.Sign(body, "/x"))
	assert.True(t, s.Verify(body, s.Sign(body, "")))

	unset := Signer{Index: testIndex}
	assert.False(t, unset.Configured())
	assert.False(t, unset.Verify(body, unset.Sign(body, "")))
}
