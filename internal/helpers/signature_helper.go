package helpers

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// QRSigner issues and checks the HMAC-signed payload stored in a ticket's
// qr_code column. The payload is opaque to renderers; only the verification
// service interprets it.
type QRSigner struct {
	Secret string
}

func NewQRSigner(secret string) *QRSigner {
	return &QRSigner{Secret: secret}
}

func (s *QRSigner) Payload(ticketID, eventID uuid.UUID, code string) string {
	return fmt.Sprintf("ticket:%s;event:%s;code:%s;signature:%s",
		ticketID.String(), eventID.String(), code, s.sign(ticketID, eventID, code))
}

func (s *QRSigner) sign(ticketID, eventID uuid.UUID, code string) string {
	data := fmt.Sprintf("%s:%s:%s", ticketID.String(), eventID.String(), code)
	h := hmac.New(sha256.New, []byte(s.Secret))
	h.Write([]byte(data))
	return hex.EncodeToString(h.Sum(nil))
}

// ExtractTicketID pulls the ticket id out of a scanned payload without
// trusting the rest of it.
func (s *QRSigner) ExtractTicketID(payload string) (uuid.UUID, error) {
	parts := strings.Split(payload, ";")
	if len(parts) != 4 || !strings.HasPrefix(parts[0], "ticket:") {
		return uuid.Nil, fmt.Errorf("invalid QR payload format")
	}
	return uuid.Parse(strings.TrimPrefix(parts[0], "ticket:"))
}

// Verify checks that the payload matches the given ticket and carries a
// valid signature.
func (s *QRSigner) Verify(payload string, ticketID, eventID uuid.UUID, code string) bool {
	expected := s.Payload(ticketID, eventID, code)
	return hmac.Equal([]byte(expected), []byte(payload))
}

// ProviderHeaderGenerator builds the signed headers the payment provider
// requires on every API call.
type ProviderHeaderGenerator struct {
	ClientID    string
	SecretKey   string
	RequestID   string
	RequestPath string
}

func NewProviderHeaderGenerator(clientID, secretKey, requestPath string) *ProviderHeaderGenerator {
	return &ProviderHeaderGenerator{
		ClientID:    clientID,
		SecretKey:   secretKey,
		RequestID:   uuid.New().String(),
		RequestPath: requestPath,
	}
}

func (g *ProviderHeaderGenerator) GenerateDigest(jsonBody string) string {
	hash := sha256.Sum256([]byte(jsonBody))
	return base64.StdEncoding.EncodeToString(hash[:])
}

func (g *ProviderHeaderGenerator) GenerateSignature(digest string) string {
	requestTimestamp := time.Now().UTC().Format("2006-01-02T15:04:05Z")

	componentSignature := "Client-Id:" + g.ClientID + "\n" +
		"Request-Id:" + g.RequestID + "\n" +
		"Request-Timestamp:" + requestTimestamp + "\n" +
		"Request-Target:" + g.RequestPath + "\n" +
		"Digest:" + digest

	mac := hmac.New(sha256.New, []byte(g.SecretKey))
	mac.Write([]byte(componentSignature))
	signature := base64.StdEncoding.EncodeToString(mac.Sum(nil))

	return "HMACSHA256=" + signature
}

func (g *ProviderHeaderGenerator) GetHeaders(jsonBody string) map[string]string {
	digest := g.GenerateDigest(jsonBody)
	signature := g.GenerateSignature(digest)
	requestTimestamp := time.Now().UTC().Format("2006-01-02T15:04:05Z")

	return map[string]string{
		"Client-Id":         g.ClientID,
		"Request-Id":        g.RequestID,
		"Request-Timestamp": requestTimestamp,
		"Signature":         signature,
		"Content-Type":      "application/json",
		"Digest":            digest,
	}
}

// VerifyWebhookSignature checks the HMAC the provider attaches to webhook
// deliveries.
func VerifyWebhookSignature(secret, body, signature string) bool {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(body))
	expected := "HMACSHA256=" + base64.StdEncoding.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(expected), []byte(signature))
}
