package cors

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
)

func serve(origins []string, req *http.Request) *httptest.ResponseRecorder {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(New(origins))
	r.GET("/doctors/:email/agenda", func(c *gin.Context) { c.Status(http.StatusOK) })
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestAllowListedOriginGetsCredentials(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/doctors/a@clinic.test/agenda", nil)
	req.Header.Set("Origin", "https://Front.Clinic.test")

	w := serve([]string{"https://front.clinic.test/"}, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "https://Front.Clinic.test", w.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "true", w.Header().Get("Access-Control-Allow-Credentials"))
	assert.Contains(t, w.Header().Get("Access-Control-Expose-Headers"), "Content-Disposition")
}

func TestUnknownOriginGetsNoHeaders(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/doctors/a@clinic.test/agenda", nil)
	req.Header.Set("Origin", "https://evil.test")

	w := serve([]string{"https://front.clinic.test"}, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, w.Header().Get("Access-Control-Allow-Origin"))
}

func TestPreflight(t *testing.T) {
	req := httptest.NewRequest(http.MethodOptions, "/doctors/a@clinic.test/agenda", nil)
	req.Header.Set("Origin", "https://front.clinic.test")
	req.Header.Set("Access-Control-Request-Method", http.MethodGet)

	w := serve([]string{"https://front.clinic.test"}, req)
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Contains(t, w.Header().Get("Access-Control-Allow-Methods"), "PATCH")

	req.Header.Set("Origin", "https://evil.test")
	w = serve([]string{"https://front.clinic.test"}, req)
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestOpenPolicyWithoutCredentials(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/doctors/a@clinic.test/agenda", nil)
	req.Header.Set("Origin", "https://anything.test")

	w := serve(nil, req)

	assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
	assert.Empty(t, w.Header().Get("Access-Control-Allow-Credentials"))
}
