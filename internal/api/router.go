package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/wonny/coinpulse/internal/api/handlers"
	"github.com/wonny/coinpulse/pkg/logger"
)

// NewRouter creates and configures the HTTP router
// ⭐ SSOT: 라우팅 설정은 이 함수에서만
func NewRouter(marketHandler *handlers.MarketHandler, log *logger.Logger) http.Handler {
	r := mux.NewRouter()

	// Health check
	r.HandleFunc("/health", healthCheckHandler).Methods("GET")

	// API v1
	api := r.PathPrefix("/api").Subrouter()

	// Ranking endpoints. {timeframe} is the window duration in minutes.
	api.HandleFunc("/ranking/{timeframe}", marketHandler.GetVolumeRanking).Methods("GET")
	api.HandleFunc("/surge/{timeframe}", marketHandler.GetSurgeRanking).Methods("GET")
	api.HandleFunc("/sectors/{timeframe}", marketHandler.GetSectorRanking).Methods("GET")
	api.HandleFunc("/sectors/granularity", marketHandler.SetGranularity).Methods("PUT")

	// Highlight state
	api.HandleFunc("/hot/{timeframe}", marketHandler.GetHot).Methods("GET")
	api.HandleFunc("/blink/{timeframe}/{name}", marketHandler.ClearBlink).Methods("DELETE")

	// Window schedule and ambient data
	api.HandleFunc("/reset/{timeframe}", marketHandler.GetNextReset).Methods("GET")
	api.HandleFunc("/mood", marketHandler.GetMood).Methods("GET")
	api.HandleFunc("/stats", marketHandler.GetStats).Methods("GET")

	// Apply middleware
	r.Use(loggingMiddleware(log))
	r.Use(recoveryMiddleware(log))

	return r
}

// healthCheckHandler returns server health status
func healthCheckHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"status":  "ok",
		"service": "coinpulse-api",
	})
}

// loggingMiddleware logs HTTP requests
func loggingMiddleware(log *logger.Logger) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			next.ServeHTTP(w, r)

			log.WithFields(map[string]interface{}{
				"method":   r.Method,
				"path":     r.URL.Path,
				"duration": time.Since(start),
			}).Debug("HTTP request")
		})
	}
}

// recoveryMiddleware recovers from panics
func recoveryMiddleware(log *logger.Logger) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if err := recover(); err != nil {
					log.WithFields(map[string]interface{}{
						"error": err,
						"path":  r.URL.Path,
					}).Error("Panic recovered")

					w.Header().Set("Content-Type", "application/json")
					w.WriteHeader(http.StatusInternalServerError)
					json.NewEncoder(w).Encode(map[string]string{
						"error": "Internal server error",
					})
				}
			}()

			next.ServeHTTP(w, r)
		})
	}
}
