package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
)

func corsEngine(opts CORSOptions) *gin.Engine {
	gin.SetMode(gin.TestMode)
	engine := gin.New()
	engine.Use(CORS(opts))
	engine.Any("/platform/tenants", func(c *gin.Context) { c.Status(http.StatusOK) })
	return engine
}

func preflight(engine *gin.Engine, origin string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodOptions, "/platform/tenants", nil)
	req.Header.Set("Origin", origin)
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	req.Header.Set("Access-Control-Request-Headers", "x-platform-token, content-type")
	w := httptest.NewRecorder()
	engine.ServeHTTP(w, req)
	return w
}

func TestCORSPreflightAllowsPlatformToken(t *testing.T) {
	engine := corsEngine(CORSOptions{Origins: []string{"https://ops.example.com"}, MaxAge: 600})

	w := preflight(engine, "https://ops.example.com")
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "https://ops.example.com", w.Header().Get("Access-Control-Allow-Origin"))
	assert.Contains(t, w.Header().Get("Access-Control-Allow-Headers"), PlatformTokenHeader)
	assert.Equal(t, "600", w.Header().Get("Access-Control-Max-Age"))
	assert.Equal(t, "Origin", w.Header().Get("Vary"))
}

func TestCORSOriginsFromConfig(t *testing.T) {
	engine := corsEngine(CORSOptions{Origins: []string{"https://admin.example.com", "https://*.motors.test"}})

	for origin, allowed := range map[string]bool{
		"https://admin.example.com": true,
		"https://acme.motors.test":  true,
		"https://ACME.motors.test":  true,
		"http://acme.motors.test":   false,
		"https://motors.test":       false,
		"https://evil.example.com":  false,
	} {
		w := preflight(engine, origin)
		assert.Equal(t, http.StatusNoContent, w.Code, origin)
		if allowed {
			assert.Equal(t, origin, w.Header().Get("Access-Control-Allow-Origin"), origin)
		} else {
			assert.Empty(t, w.Header().Get("Access-Control-Allow-Origin"), origin)
			assert.Empty(t, w.Header().Get("Access-Control-Allow-Headers"), origin)
		}
	}
}

func TestCORSWildcardAndPlainRequests(t *testing.T) {
	engine := corsEngine(CORSOptions{Origins: []string{"*"}})

	req := httptest.NewRequest(http.MethodGet, "/platform/tenants", nil)
	req.Header.Set("Origin", "https://anywhere.test")
	w := httptest.NewRecorder()
	engine.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
	assert.Contains(t, w.Header().Get("Access-Control-Expose-Headers"), "Content-Disposition")

	// OPTIONS without a preflight request method reaches the handler.
	req = httptest.NewRequest(http.MethodOptions, "/platform/tenants", nil)
	w = httptest.NewRecorder()
	engine.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
}
