package crypto

import (
	"errors"

	"golang.org/x/crypto/bcrypt"
)

// Ошибки проверки пароля оператора
var (
	ErrEmptyPassword    = errors.New("password cannot be empty")
	ErrPasswordMismatch = errors.New("password does not match hash")
	ErrInvalidHash      = errors.New("invalid password hash format")
	ErrPasswordTooLong  = errors.New("password exceeds maximum length of 72 bytes")
)

const (
	// DefaultCost - стоимость bcrypt по умолчанию. Хеш сверяется один
	// раз на запрос к /debug/*, так что можно позволить дорогую.
	DefaultCost = 12

	// MaxPasswordLength - ограничение bcrypt на длину пароля в байтах
	MaxPasswordLength = 72
)

// checkPassword отсекает пустые и слишком длинные пароли
func checkPassword(password string) error {
	if password == "" {
		return ErrEmptyPassword
	}
	if len(password) > MaxPasswordLength {
		return ErrPasswordTooLong
	}
	return nil
}

// HashPassword хеширует пароль оператора с DefaultCost.
// Хеш кладётся в DEBUG_PASSWORD_HASH, сам пароль нигде не хранится.
func HashPassword(password string) (string, error) {
	return HashPasswordWithCost(password, DefaultCost)
}

// HashPasswordWithCost хеширует пароль с заданной стоимостью.
// cost вне диапазона bcrypt подтягивается к ближайшей границе.
func HashPasswordWithCost(password string, cost int) (string, error) {
	if err := checkPassword(password); err != nil {
		return "", err
	}

	switch {
	case cost < bcrypt.MinCost:
		cost = bcrypt.MinCost
	case cost > bcrypt.MaxCost:
		cost = bcrypt.MaxCost
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), cost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// VerifyPassword сверяет пароль с хешем. Сравнение внутри bcrypt
// устойчиво к timing-атакам. Пустой или нечитаемый хеш дает
// ErrInvalidHash.
func VerifyPassword(password, hash string) error {
	if err := checkPassword(password); err != nil {
		return err
	}

	switch err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)); {
	case err == nil:
		return nil
	case errors.Is(err, bcrypt.ErrMismatchedHashAndPassword):
		return ErrPasswordMismatch
	default:
		// Хеш не в формате bcrypt
		return ErrInvalidHash
	}
}

// CheckPasswordMatch - bool-обёртка над VerifyPassword для middleware
func CheckPasswordMatch(password, hash string) bool {
	return VerifyPassword(password, hash) == nil
}

// GetHashCost возвращает стоимость существующего хеша.
// Пустая строка и не-bcrypt форматы дают ErrInvalidHash.
func GetHashCost(hash string) (int, error) {
	cost, err := bcrypt.Cost([]byte(hash))
	if err != nil {
		return 0, ErrInvalidHash
	}
	return cost, nil
}

// NeedsRehash сообщает, что DEBUG_PASSWORD_HASH пора пересоздать:
// стоимость хеша ниже желаемой либо хеш не читается
func NeedsRehash(hash string, desiredCost int) bool {
	cost, err := GetHashCost(hash)
	if err != nil {
		return true
	}
	return cost < desiredCost
}
