package relay

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// VerifySignature valida o HMAC-SHA256 do corpo cru do webhook. Sem secret
// configurado tudo passa. Aceita o digest puro em hex e a forma prefixada
// "sha256=".
func VerifySignature(rawBody []byte, signatureHeader, secret string) bool {
	if secret == "" {
		return true
	}

	header := strings.TrimSpace(signatureHeader)
	header = strings.TrimPrefix(header, "sha256=")
	if header == "" {
		return false
	}

	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(rawBody)
	expected := hex.EncodeToString(mac.Sum(nil))

	return hmac.Equal([]byte(strings.ToLower(header)), []byte(expected))
}

// Sign calcula a assinatura na forma prefixada.
func Sign(rawBody []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(rawBody)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}
