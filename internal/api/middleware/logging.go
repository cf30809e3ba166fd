package middleware

import (
	"bufio"
	"errors"
	"net"
	"net/http"
	"time"

	"moexbot/pkg/utils"
)

// responseWriter перехватывает статус и объем ответа для логирования.
type responseWriter struct {
	http.ResponseWriter
	status int
	bytes  int64
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.status = code
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseWriter) Write(b []byte) (int, error) {
	n, err := rw.ResponseWriter.Write(b)
	rw.bytes += int64(n)
	return n, err
}

// Hijack отдает соединение нижележащему ResponseWriter.
// Без него gorilla/websocket не может выполнить upgrade на /ws/stream.
func (rw *responseWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	hj, ok := rw.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("response writer does not support hijacking")
	}
	return hj.Hijack()
}

// Logging пишет по одной записи на HTTP-запрос: метод, путь, статус,
// длительность, адрес клиента и объем ответа. Записи идут через
// глобальный zap-логгер в общий журнал бота вместе с логами движка.
func Logging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rw := &responseWriter{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(rw, r)

		utils.Info("http request",
			utils.String("method", r.Method),
			utils.String("path", r.URL.Path),
			utils.Int("status", rw.status),
			utils.String("duration", time.Since(start).String()),
			utils.String("remote", r.RemoteAddr),
			utils.Int64("bytes", rw.bytes),
		)
	})
}
