package relay

import (
	"strings"
	"testing"
)

func TestVerifySignature(t *testing.T) {
	body := []byte(`{"event":"messages.upsert"}`)
	secret := "segredo-forte"
	signed := Sign(body, secret)

	t.Run("assinatura correta passa", func(t *testing.T) {
		if !VerifySignature(body, signed, secret) {
			t.Fatal("assinatura válida rejeitada")
		}
	})

	t.Run("hex puro sem prefixo passa", func(t *testing.T) {
		bare := strings.TrimPrefix(signed, "sha256=")
		if !VerifySignature(body, bare, secret) {
			t.Fatal("digest sem prefixo rejeitado")
		}
	})

	t.Run("corpo adulterado falha", func(t *testing.T) {
		tampered := []byte(`{"event":"messages.upsert","x":1}`)
		if VerifySignature(tampered, signed, secret) {
			t.Fatal("corpo adulterado aceito")
		}
	})

	t.Run("secret divergente falha", func(t *testing.T) {
		if VerifySignature(body, signed, "outro-segredo") {
			t.Fatal("assinatura de outro secret aceita")
		}
	})

	t.Run("header vazio com secret falha", func(t *testing.T) {
		if VerifySignature(body, "", secret) {
			t.Fatal("header vazio aceito em modo seguro")
		}
	})

	t.Run("sem secret tudo passa", func(t *testing.T) {
		if !VerifySignature(body, "", "") {
			t.Fatal("modo sem verificação rejeitou payload")
		}
		if !VerifySignature(body, "qualquer-coisa", "") {
			t.Fatal("modo sem verificação rejeitou header arbitrário")
		}
	})
}
