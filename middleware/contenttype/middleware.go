package contenttype

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/clinicore/shield/httperr"
	"github.com/clinicore/shield/services/audit"
)

// Rule maps a path prefix and method set to the MIME prefixes allowed
// on it. Methods empty means all mutating methods.
type Rule struct {
	PathPrefix string
	Methods    []string
	Allowed    []string
}

// DefaultRules allows JSON on API mutations and multipart uploads on
// the document endpoints.
var DefaultRules = []Rule{
	{PathPrefix: "/api/documents", Allowed: []string{"multipart/form-data", "application/json"}},
	{PathPrefix: "/api/", Allowed: []string{"application/json"}},
	{PathPrefix: "/", Allowed: []string{"application/json", "application/x-www-form-urlencoded"}},
}

type Config struct {
	Rules []Rule
	Audit *audit.Logger
}

// IsAllowed checks a content type against the rule table. The first
// rule whose prefix and method match decides.
func IsAllowed(rules []Rule, path, method, contentType string) bool {
	if !bodyBearing(method) {
		return true
	}

	// A mutating request with a body but no declared type is invalid.
	if contentType == "" {
		return false
	}

	mime := contentType
	if idx := strings.Index(mime, ";"); idx >= 0 {
		mime = mime[:idx]
	}
	mime = strings.TrimSpace(strings.ToLower(mime))

	for _, rule := range rules {
		if !strings.HasPrefix(path, rule.PathPrefix) {
			continue
		}
		if len(rule.Methods) > 0 && !contains(rule.Methods, method) {
			continue
		}
		for _, allowed := range rule.Allowed {
			if strings.HasPrefix(mime, allowed) {
				return true
			}
		}
		return false
	}

	return false
}

func Middleware(cfg *Config) echo.MiddlewareFunc {
	rules := cfg.Rules
	if len(rules) == 0 {
		rules = DefaultRules
	}

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()
			contentType := req.Header.Get("Content-Type")

			// A declared type is only demanded when there is a body to
			// describe; a bare mutation without one is fine.
			if contentType == "" && !hasBody(req) {
				return next(c)
			}

			if IsAllowed(rules, req.URL.Path, req.Method, contentType) {
				return next(c)
			}

			if cfg.Audit != nil {
				cfg.Audit.Log(req.Context(),
					audit.ContentTypeRejected(contentType, audit.RequestInfoFrom(req)))
			}

			return httperr.JSON(c, http.StatusUnsupportedMediaType,
				httperr.CodeContentTypeRejected, "unsupported content type")
		}
	}
}

func hasBody(req *http.Request) bool {
	if req.Body == nil || req.Body == http.NoBody {
		return false
	}
	return req.ContentLength != 0
}

func bodyBearing(method string) bool {
	switch method {
	case http.MethodGet, http.MethodHead, http.MethodOptions:
		return false
	default:
		return true
	}
}

func contains(list []string, value string) bool {
	for _, item := range list {
		if item == value {
			return true
		}
	}
	return false
}
