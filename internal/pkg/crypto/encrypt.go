package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"errors"
	"fmt"
)

// ErrCiphertextShort indica um blob menor que o nonce do GCM.
var ErrCiphertextShort = errors.New("crypto: ciphertext curto demais")

// gcmFor deriva a chave AES-256 por SHA-256 da passphrase e devolve o AEAD.
func gcmFor(key string) (cipher.AEAD, error) {
	sum := sha256.Sum256([]byte(key))
	block, err := aes.NewCipher(sum[:])
	if err != nil {
		return nil, fmt.Errorf("crypto: cipher: %w", err)
	}
	return cipher.NewGCM(block)
}

// Encrypt sela o plaintext com AES-GCM; o nonce aleatório vai prefixado ao
// resultado.
func Encrypt(plaintext []byte, key string) ([]byte, error) {
	gcm, err := gcmFor(key)
	if err != nil {
		return nil, err
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("crypto: nonce: %w", err)
	}

	return gcm.Seal(nonce, nonce, plaintext, nil), nil
}

// Decrypt abre um blob produzido por Encrypt.
func Decrypt(blob []byte, key string) ([]byte, error) {
	gcm, err := gcmFor(key)
	if err != nil {
		return nil, err
	}

	if len(blob) < gcm.NonceSize() {
		return nil, ErrCiphertextShort
	}

	nonce := blob[:gcm.NonceSize()]
	plaintext, err := gcm.Open(nil, nonce, blob[gcm.NonceSize():], nil)
	if err != nil {
		return nil, fmt.Errorf("crypto: abrir: %w", err)
	}
	return plaintext, nil
}
