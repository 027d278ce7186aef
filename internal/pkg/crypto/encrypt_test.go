package crypto

import (
	"bytes"
	"testing"
)

func TestEncryptDecryptRoundTrip(t *testing.T) {
	plaintext := []byte("refresh-token-super-secreto")
	key := "chave-de-32-bytes-ou-qualquer-uma"

	ciphertext, err := Encrypt(plaintext, key)
	if err != nil {
		t.Fatalf("Encrypt: %v", err)
	}
	if bytes.Contains(ciphertext, plaintext) {
		t.Fatal("ciphertext contém o texto claro")
	}

	decrypted, err := Decrypt(ciphertext, key)
	if err != nil {
		t.Fatalf("Decrypt: %v", err)
	}
	if !bytes.Equal(decrypted, plaintext) {
		t.Errorf("round trip divergente: %q", decrypted)
	}
}

func TestDecryptWrongKeyFails(t *testing.T) {
	ciphertext, err := Encrypt([]byte("segredo"), "chave-a")
	if err != nil {
		t.Fatalf("Encrypt: %v", err)
	}
	if _, err := Decrypt(ciphertext, "chave-b"); err == nil {
		t.Fatal("chave errada decifrou o conteúdo")
	}
}

func TestDecryptTamperedCiphertextFails(t *testing.T) {
	ciphertext, err := Encrypt([]byte("segredo"), "chave")
	if err != nil {
		t.Fatalf("Encrypt: %v", err)
	}
	ciphertext[len(ciphertext)-1] ^= 0xff
	if _, err := Decrypt(ciphertext, "chave"); err == nil {
		t.Fatal("ciphertext adulterado decifrado sem erro")
	}
}

func TestDecryptTooShort(t *testing.T) {
	if _, err := Decrypt([]byte{0x01, 0x02}, "chave"); err == nil {
		t.Fatal("ciphertext curto aceito")
	}
}

func TestEncryptNonceUnique(t *testing.T) {
	a, _ := Encrypt([]byte("mesmo texto"), "chave")
	b, _ := Encrypt([]byte("mesmo texto"), "chave")
	if bytes.Equal(a, b) {
		t.Fatal("duas cifragens do mesmo texto produziram o mesmo resultado")
	}
}
