// Package crypto - секреты бота: токен брокерского шлюза и пароль
// отладочных эндпоинтов.
//
// Токен шлюза даёт право выставлять заявки, поэтому в .env он
// хранится зашифрованным (AES-256-GCM, ключ в ENCRYPTION_KEY) и
// расшифровывается в память процесса только при старте. Пароль
// отладочных эндпоинтов хранится bcrypt-хешем в DEBUG_PASSWORD_HASH.
package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"errors"
)

// KeySize - длина ключа AES-256 в байтах
const KeySize = 32

// Sentinel-ошибки пакета, проверяются через errors.Is
var (
	ErrInvalidKeyLength   = errors.New("encryption key must be exactly 32 bytes for AES-256")
	ErrInvalidCiphertext  = errors.New("invalid ciphertext")
	ErrCiphertextTooShort = errors.New("ciphertext too short")
	ErrDecryptionFailed   = errors.New("decryption failed: authentication error")
)

// newAEAD собирает AES-256-GCM поверх ключа
func newAEAD(key []byte) (cipher.AEAD, error) {
	if err := ValidateKey(key); err != nil {
		return nil, err
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	return cipher.NewGCM(block)
}

// Encrypt шифрует секрет и возвращает base64-строку, пригодную для
// .env или БД. Каждый вызов берёт свежий nonce, поэтому одинаковые
// секреты дают разные шифротексты.
func Encrypt(plaintext string, key []byte) (string, error) {
	gcm, err := newAEAD(key)
	if err != nil {
		return "", err
	}

	// Nonce кладётся в начало шифротекста, тег аутентификации GCM
	// дописывает Seal
	nonce := make([]byte, gcm.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return "", err
	}
	sealed := gcm.Seal(nonce, nonce, []byte(plaintext), nil)

	return base64.StdEncoding.EncodeToString(sealed), nil
}

// Decrypt расшифровывает base64-строку, созданную Encrypt.
// Подменённый или битый шифротекст отбрасывается проверкой
// аутентификации GCM.
func Decrypt(encoded string, key []byte) (string, error) {
	gcm, err := newAEAD(key)
	if err != nil {
		return "", err
	}

	sealed, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return "", ErrInvalidCiphertext
	}

	ns := gcm.NonceSize()
	if len(sealed) < ns {
		return "", ErrCiphertextTooShort
	}

	plaintext, err := gcm.Open(nil, sealed[:ns], sealed[ns:], nil)
	if err != nil {
		return "", ErrDecryptionFailed
	}

	return string(plaintext), nil
}

// GenerateKey возвращает криптографически стойкий 32-байтовый ключ
func GenerateKey() ([]byte, error) {
	key := make([]byte, KeySize)
	if _, err := rand.Read(key); err != nil {
		return nil, err
	}
	return key, nil
}

// GenerateKeyString возвращает печатаемый 32-символьный ключ для
// ENCRYPTION_KEY в .env: сырые байты кодируются base64 и обрезаются
// до KeySize символов.
func GenerateKeyString() (string, error) {
	raw, err := GenerateKey()
	if err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(raw)[:KeySize], nil
}

// ValidateKey проверяет длину ключа без использования
func ValidateKey(key []byte) error {
	if len(key) != KeySize {
		return ErrInvalidKeyLength
	}
	return nil
}

// EncryptWithKeyString шифрует секрет строковым ключом из окружения
func EncryptWithKeyString(plaintext, keyString string) (string, error) {
	return Encrypt(plaintext, []byte(keyString))
}

// DecryptWithKeyString расшифровывает секрет строковым ключом из
// окружения. Так при старте восстанавливается токен шлюза.
func DecryptWithKeyString(encoded, keyString string) (string, error) {
	return Decrypt(encoded, []byte(keyString))
}
