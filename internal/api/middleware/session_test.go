package middleware

import (
	"net/http"
	"net/http/httptest"
	"regexp"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
)

func setupSessionTest() (*gin.Engine, *string) {
	gin.SetMode(gin.TestMode)
	r := gin.New()

	var captured string
	r.Use(EnsureSession())
	r.GET("/ping", func(c *gin.Context) {
		captured = GetSessionID(c)
		c.Status(http.StatusOK)
	})

	return r, &captured
}

func TestEnsureSession(t *testing.T) {
	hexID := regexp.MustCompile(`^[0-9a-f]{32}$`)

	t.Run("Идентификатор из заголовка", func(t *testing.T) {
		r, captured := setupSessionTest()

		req := httptest.NewRequest(http.MethodGet, "/ping", nil)
		req.Header.Set(SessionHeader, "session-from-header")
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)

		assert.Equal(t, "session-from-header", *captured)
		// Cookie не выставляется, если клиент прислал идентификатор сам
		assert.Empty(t, w.Result().Cookies())
	})

	t.Run("Идентификатор из cookie", func(t *testing.T) {
		r, captured := setupSessionTest()

		req := httptest.NewRequest(http.MethodGet, "/ping", nil)
		req.AddCookie(&http.Cookie{Name: SessionCookie, Value: "session-from-cookie"})
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)

		assert.Equal(t, "session-from-cookie", *captured)
	})

	t.Run("Идентификатор из query-параметра", func(t *testing.T) {
		r, captured := setupSessionTest()

		req := httptest.NewRequest(http.MethodGet, "/ping?session_id=session-from-query", nil)
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)

		assert.Equal(t, "session-from-query", *captured)
	})

	t.Run("Заголовок имеет приоритет над cookie", func(t *testing.T) {
		r, captured := setupSessionTest()

		req := httptest.NewRequest(http.MethodGet, "/ping", nil)
		req.Header.Set(SessionHeader, "from-header")
		req.AddCookie(&http.Cookie{Name: SessionCookie, Value: "from-cookie"})
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)

		assert.Equal(t, "from-header", *captured)
	})

	t.Run("Генерация идентификатора и установка cookie", func(t *testing.T) {
		r, captured := setupSessionTest()

		req := httptest.NewRequest(http.MethodGet, "/ping", nil)
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)

		assert.Regexp(t, hexID, *captured)

		cookies := w.Result().Cookies()
		assert.Len(t, cookies, 1)
		assert.Equal(t, SessionCookie, cookies[0].Name)
		assert.Equal(t, *captured, cookies[0].Value)
		assert.True(t, cookies[0].HttpOnly)
	})
}
