package middleware

import (
	"fmt"
	"net/http"
	"runtime/debug"

	"github.com/satsjar/satsjar/internal/errors"
	"github.com/satsjar/satsjar/internal/httputil"
	"github.com/satsjar/satsjar/internal/logging"
)

// RecoveryMiddleware converts panics into 500 responses. The stack is
// logged with full request context; it is echoed in the body only outside
// production.
type RecoveryMiddleware struct {
	logger     *logging.Logger
	production bool
}

// NewRecoveryMiddleware creates the recovery middleware.
func NewRecoveryMiddleware(logger *logging.Logger, production bool) *RecoveryMiddleware {
	return &RecoveryMiddleware{logger: logger, production: production}
}

// Handler returns the recovery middleware handler.
func (m *RecoveryMiddleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			rec := recover()
			if rec == nil {
				return
			}

			err := fmt.Errorf("panic: %v", rec)
			stack := string(debug.Stack())
			m.logger.LogUnhandled(r.Context(), err, map[string]interface{}{
				"path":   r.URL.Path,
				"method": r.Method,
				"remote": r.RemoteAddr,
				"query":  r.URL.RawQuery,
				"stack":  stack,
			})

			serviceErr := errors.Internal("internal server error", err)
			if m.production {
				httputil.WriteErrorResponse(w, serviceErr.HTTPStatus, string(serviceErr.Code), serviceErr.Message, nil)
				return
			}
			httputil.WriteErrorResponse(w, serviceErr.HTTPStatus, string(serviceErr.Code), serviceErr.Message,
				map[string]interface{}{"stack": stack})
		}()

		next.ServeHTTP(w, r)
	})
}
