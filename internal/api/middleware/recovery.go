package middleware

import (
	"net/http"
	"runtime/debug"

	"moexbot/pkg/utils"
)

// Recovery перехватывает панику в любом HTTP-обработчике, логирует
// сообщение со stack trace и отвечает клиенту 500. Сервер продолжает
// обслуживать последующие запросы, торговый цикл не затрагивается.
func Recovery(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				utils.Error("panic in http handler",
					utils.Any("panic", rec),
					utils.String("path", r.URL.Path),
					utils.String("stack", string(debug.Stack())),
				)

				// Текст паники клиенту не отдаем
				http.Error(w, "Internal Server Error", http.StatusInternalServerError)
			}
		}()

		next.ServeHTTP(w, r)
	})
}
