package helpers

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQRSignerRoundTrip(t *testing.T) {
	signer := NewQRSigner("secret")
	ticketID := uuid.New()
	eventID := uuid.New()
	code := uuid.NewString()

	payload := signer.Payload(ticketID, eventID, code)
	assert.True(t, signer.Verify(payload, ticketID, eventID, code))

	extracted, err := signer.ExtractTicketID(payload)
	require.NoError(t, err)
	assert.Equal(t, ticketID, extracted)
}

func TestQRSignerRejectsTampering(t *testing.T) {
	signer := NewQRSigner("secret")
	ticketID := uuid.New()
	eventID := uuid.New()
	code := uuid.NewString()

	payload := signer.Payload(ticketID, eventID, code)

	assert.False(t, signer.Verify(payload+"x", ticketID, eventID, code))
	assert.False(t, signer.Verify(payload, uuid.New(), eventID, code))
	assert.False(t, signer.Verify(payload, ticketID, eventID, "other-code"))

	other := NewQRSigner("different-secret")
	assert.False(t, other.Verify(payload, ticketID, eventID, code))
}

func TestExtractTicketIDMalformedPayload(t *testing.T) {
	signer := NewQRSigner("secret")

	for _, payload := range []string{
		"",
		"not a payload",
		"ticket:abc;event:x;code:y;signature:z",
		"event:x;ticket:y;code:z;signature:w",
	} {
		_, err := signer.ExtractTicketID(payload)
		assert.Error(t, err, payload)
	}
}

func TestProviderHeaders(t *testing.T) {
	gen := NewProviderHeaderGenerator("client-1", "secret-key", "/v1/payments")
	headers := gen.GetHeaders(`{"amount":"100.00"}`)

	assert.Equal(t, "client-1", headers["Client-Id"])
	assert.Equal(t, gen.RequestID, headers["Request-Id"])
	assert.Equal(t, "application/json", headers["Content-Type"])
	assert.NotEmpty(t, headers["Digest"])
	assert.Contains(t, headers["Signature"], "HMACSHA256=")

	// Same body, same digest; different body, different digest.
	assert.Equal(t, headers["Digest"], gen.GenerateDigest(`{"amount":"100.00"}`))
	assert.NotEqual(t, headers["Digest"], gen.GenerateDigest(`{"amount":"999.00"}`))
}

func TestVerifyWebhookSignature(t *testing.T) {
	body := `{"provider_payment_id":"prov-1","status":"approved"}`

	mac := hmac.New(sha256.New, []byte("webhook-secret"))
	mac.Write([]byte(body))
	valid := "HMACSHA256=" + base64.StdEncoding.EncodeToString(mac.Sum(nil))

	assert.True(t, VerifyWebhookSignature("webhook-secret", body, valid))
	assert.False(t, VerifyWebhookSignature("webhook-secret", body+"x", valid))
	assert.False(t, VerifyWebhookSignature("wrong-secret", body, valid))
	assert.False(t, VerifyWebhookSignature("webhook-secret", body, "HMACSHA256=garbage"))
}
