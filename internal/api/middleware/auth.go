package middleware

import (
	"crypto/subtle"
	"net/http"
	"os"

	"moexbot/pkg/crypto"
)

// Учетные данные для debug endpoints. DEBUG_PASSWORD_HASH хранит
// bcrypt-хеш (генерируется через crypto.HashPassword), чтобы сам
// пароль не попадал в окружение.
var (
	debugUsername     = os.Getenv("DEBUG_USERNAME")
	debugPasswordHash = os.Getenv("DEBUG_PASSWORD_HASH")
)

// debugCredsValid сверяет Basic Auth запроса с настроенными учетными
// данными: имя в constant-time, пароль по bcrypt-хешу. Обе проверки
// выполняются всегда, чтобы по времени ответа нельзя было угадать имя.
func debugCredsValid(r *http.Request) bool {
	user, pass, ok := r.BasicAuth()
	if !ok {
		return false
	}
	nameOK := subtle.ConstantTimeCompare([]byte(user), []byte(debugUsername)) == 1
	passOK := crypto.CheckPasswordMatch(pass, debugPasswordHash)
	return nameOK && passOK
}

// DebugAuth закрывает /debug/pprof/* HTTP Basic аутентификацией.
//
// Конфигурация через окружение:
//   - DEBUG_USERNAME: имя пользователя
//   - DEBUG_PASSWORD_HASH: bcrypt-хеш пароля
//
// Без настроенных учетных данных доступ открыт только в development,
// в остальных окружениях отвечаем 403.
func DebugAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if debugUsername == "" || debugPasswordHash == "" {
			if env := os.Getenv("ENV"); env == "development" || env == "" {
				next.ServeHTTP(w, r)
				return
			}
			http.Error(w, "Debug endpoints disabled. Set DEBUG_USERNAME and DEBUG_PASSWORD_HASH.", http.StatusForbidden)
			return
		}

		if !debugCredsValid(r) {
			w.Header().Set("WWW-Authenticate", `Basic realm="Debug endpoints"`)
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}

		next.ServeHTTP(w, r)
	})
}
