package middleware

import (
	"net/http"
	"os"
	"strings"
)

// Дашборд оператора обычно ходит с другого порта. Базовый список
// покрывает локальные dev-серверы, дополнительные домены добавляет
// CORS_ALLOWED_ORIGINS (через запятую).
var corsOrigins = corsOriginSet(os.Getenv("CORS_ALLOWED_ORIGINS"))

func corsOriginSet(extra string) map[string]bool {
	set := map[string]bool{
		"http://localhost:3000": true,
		"http://127.0.0.1:3000": true,
		"http://localhost:8080": true,
		"http://127.0.0.1:8080": true,
		"http://localhost:5173": true, // Vite dev server
		"http://127.0.0.1:5173": true,
	}
	for _, origin := range strings.Split(extra, ",") {
		if origin = strings.TrimSpace(origin); origin != "" {
			set[origin] = true
		}
	}
	return set
}

// CORS разрешает браузерному дашборду обращаться к управляющему API.
// Известный origin получает конкретный домен с поддержкой credentials,
// запросы без заголовка Origin (curl, скрипты) проходят свободно.
// Preflight (OPTIONS) завершается сразу со статусом 200.
func CORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := w.Header()

		switch origin := r.Header.Get("Origin"); {
		case corsOrigins[origin]:
			// С credentials wildcard недопустим, ставим конкретный домен
			h.Set("Access-Control-Allow-Origin", origin)
			h.Set("Access-Control-Allow-Credentials", "true")
		case origin == "":
			h.Set("Access-Control-Allow-Origin", "*")
		}
		// Неразрешенный origin заголовков не получает, браузер заблокирует ответ

		h.Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, PATCH, OPTIONS")
		h.Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Requested-With")
		h.Set("Access-Control-Max-Age", "86400") // сутки кеширования preflight

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}
