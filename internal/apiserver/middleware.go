package apiserver

import (
	"net/http"
	"time"

	"github.com/sirupsen/logrus"
)

// requestLogger mirrors the teacher's walletserver middleware.Logger: one
// structured line per request with method, path, and latency.
func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		logrus.WithFields(logrus.Fields{
			"method":   r.Method,
			"path":     r.URL.Path,
			"duration": time.Since(start),
		}).Info("apiserver: request")
	})
}
