package api

import (
	"net/http"

	"shotwatch/internal/logging"
	"shotwatch/internal/otel"
)

type apiHandler func(http.ResponseWriter, *http.Request) *apiError

// restHandler authenticates the request, runs handler and renders any
// returned apiError as JSON. Responses are never cached.
func restHandler(token string, logger *logging.Logger, handler apiHandler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		headers := w.Header()
		headers.Set("X-Content-Type-Options", "nosniff")
		headers.Set("Cache-Control", "no-store, must-revalidate")

		if !validateToken(r, token) {
			otel.AnnotateSpan(r.Context(), "auth.token_rejected", nil)
			writeJSONError(w, &apiError{Status: http.StatusUnauthorized, Message: "unauthorized"})
			return
		}
		otel.AnnotateSpan(r.Context(), "auth.token_validated", nil)

		apiErr := handler(w, r)
		if apiErr == nil {
			return
		}
		if apiErr.Status >= http.StatusInternalServerError {
			logger.Error("api request failed", map[string]string{
				"path":    r.URL.Path,
				"message": apiErr.Message,
			})
		}
		writeJSONError(w, apiErr)
	}
}

func loggingMiddleware(logger *logging.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		logger.Debug("api request", map[string]string{
			"method": r.Method,
			"path":   r.URL.Path,
		})
		next.ServeHTTP(w, r)
	})
}

func methodNotAllowed(w http.ResponseWriter, allow string) *apiError {
	w.Header().Set("Allow", allow)
	return &apiError{Status: http.StatusMethodNotAllowed, Message: "method not allowed"}
}
