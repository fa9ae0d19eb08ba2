package middleware

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
)

// CORSOptions configures cross-origin access to the API.
type CORSOptions struct {
	// Origins are exact origins ("https://admin.example.com"), "*" for any origin, or a
	// wildcard host ("https://*.example.com") matching every tenant subdomain.
	Origins []string
	MaxAge  int // seconds a preflight may be cached
}

var (
	corsAllowHeaders  = strings.Join([]string{"Authorization", "Content-Type", "X-Requested-With", PlatformTokenHeader}, ", ")
	corsExposeHeaders = strings.Join([]string{"Content-Disposition", "Location"}, ", ")
	corsAllowMethods  = "GET, POST, PUT, PATCH, DELETE, OPTIONS"
)

// CORS answers preflights and sets CORS headers for allowed origins. Requests from other
// origins get no CORS headers, so browsers block them.
func CORS(opts CORSOptions) gin.HandlerFunc {
	match := originMatcher(opts.Origins)
	maxAge := strconv.Itoa(opts.MaxAge)
	return func(c *gin.Context) {
		origin := c.GetHeader("Origin")
		if origin == "" {
			c.Next()
			return
		}
		c.Writer.Header().Add("Vary", "Origin")
		allowed, anyOrigin := match(origin)
		if allowed {
			if anyOrigin {
				c.Header("Access-Control-Allow-Origin", "*")
			} else {
				c.Header("Access-Control-Allow-Origin", origin)
			}
			c.Header("Access-Control-Expose-Headers", corsExposeHeaders)
		}
		if c.Request.Method == http.MethodOptions && c.GetHeader("Access-Control-Request-Method") != "" {
			if allowed {
				c.Header("Access-Control-Allow-Methods", corsAllowMethods)
				c.Header("Access-Control-Allow-Headers", corsAllowHeaders)
				c.Header("Access-Control-Max-Age", maxAge)
			}
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}

type wildcardOrigin struct {
	scheme string // "https://"
	suffix string // ".example.com"
}

func (w wildcardOrigin) match(origin string) bool {
	host, ok := strings.CutPrefix(origin, w.scheme)
	return ok && len(host) > len(w.suffix) && strings.HasSuffix(host, w.suffix)
}

// originMatcher reports whether an origin is allowed and whether it was allowed by "*".
func originMatcher(origins []string) func(string) (bool, bool) {
	exact := make(map[string]bool)
	var wildcards []wildcardOrigin
	anyOrigin := false
	for _, o := range origins {
		o = strings.TrimRight(strings.ToLower(strings.TrimSpace(o)), "/")
		switch {
		case o == "":
		case o == "*":
			anyOrigin = true
		case strings.Contains(o, "://*."):
			scheme, host, _ := strings.Cut(o, "*")
			wildcards = append(wildcards, wildcardOrigin{scheme: scheme, suffix: host})
		default:
			exact[o] = true
		}
	}
	return func(origin string) (bool, bool) {
		if anyOrigin {
			return true, true
		}
		origin = strings.ToLower(origin)
		if exact[origin] {
			return true, false
		}
		for _, w := range wildcards {
			if w.match(origin) {
				return true, false
			}
		}
		return false, false
	}
}
