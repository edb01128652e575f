package sanitize

import (
	"bytes"
	"io"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/microcosm-cc/bluemonday"

	"github.com/clinicore/shield/services/logging"
	"go.uber.org/zap"
)

type Config struct {
	Policy *bluemonday.Policy
	Logger *logging.Service
}

// RequestMiddleware rewrites JSON request bodies with their string
// leaves sanitized. This is a hygiene stage: anything unexpected is
// logged and the request continues with the original body.
func RequestMiddleware(cfg *Config) echo.MiddlewareFunc {
	policy := cfg.Policy
	if policy == nil {
		policy = NewPolicy()
	}

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()
			if req.Body == nil || !jsonRequest(req) {
				return next(c)
			}

			raw, err := io.ReadAll(req.Body)
			if err != nil {
				if cfg.Logger != nil {
					cfg.Logger.Warn("failed to read request body for sanitization", zap.Error(err))
				}
				return next(c)
			}
			req.Body.Close()

			req.Body = io.NopCloser(bytes.NewReader(Document(policy, raw)))
			return next(c)
		}
	}
}

// ResponseMiddleware buffers the response and sanitizes JSON payloads
// on the way out.
func ResponseMiddleware(cfg *Config) echo.MiddlewareFunc {
	policy := cfg.Policy
	if policy == nil {
		policy = NewPolicy()
	}

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			buffer := &bufferingWriter{
				ResponseWriter: c.Response().Writer,
				body:           &bytes.Buffer{},
			}
			c.Response().Writer = buffer

			err := next(c)

			c.Response().Writer = buffer.ResponseWriter
			payload := buffer.body.Bytes()

			if jsonResponse(buffer.contentType()) {
				payload = Document(policy, payload)
			}

			// Nothing committed: leave the connection untouched so the
			// error handler can still write its own response.
			if buffer.status == 0 && buffer.body.Len() == 0 {
				return err
			}

			status := buffer.status
			if status == 0 {
				status = http.StatusOK
			}

			// The echo Response was committed while the handler wrote
			// into the buffer, so the flush must go through the raw
			// writer; going through the Response again would emit an
			// implicit 200.
			buffer.ResponseWriter.WriteHeader(status)
			if _, writeErr := buffer.ResponseWriter.Write(payload); writeErr != nil && cfg.Logger != nil {
				cfg.Logger.Warn("failed to flush sanitized response", zap.Error(writeErr))
			}

			return err
		}
	}
}

type bufferingWriter struct {
	http.ResponseWriter
	body   *bytes.Buffer
	status int
}

func (w *bufferingWriter) WriteHeader(status int) {
	w.status = status
}

func (w *bufferingWriter) Write(p []byte) (int, error) {
	return w.body.Write(p)
}

func (w *bufferingWriter) contentType() string {
	return w.Header().Get("Content-Type")
}

func jsonRequest(req *http.Request) bool {
	return strings.HasPrefix(req.Header.Get("Content-Type"), "application/json")
}

func jsonResponse(contentType string) bool {
	return strings.HasPrefix(contentType, "application/json")
}
