package middleware

import (
	"net/http"
	"strings"

	"delivery-service/internal/utils"

	"github.com/gin-gonic/gin"
)

const (
	// SessionContextKey — ключ, под которым идентификатор сессии лежит в контексте gin
	SessionContextKey = "sessionID"

	// SessionHeader — заголовок с идентификатором сессии
	SessionHeader = "X-Session-Id"

	// SessionCookie — имя cookie с идентификатором сессии
	SessionCookie = "session_id"

	// 30 дней
	sessionCookieMaxAge = 60 * 60 * 24 * 30
)

// EnsureSession создает middleware, который гарантирует наличие идентификатора
// сессии у запроса. Порядок: заголовок X-Session-Id, cookie session_id,
// query-параметр session_id. Если клиент ничего не прислал — генерируем
// идентификатор и кладем его в cookie.
func EnsureSession() gin.HandlerFunc {
	return func(c *gin.Context) {
		sessionID := strings.TrimSpace(c.GetHeader(SessionHeader))

		if sessionID == "" {
			if cookie, err := c.Cookie(SessionCookie); err == nil {
				sessionID = strings.TrimSpace(cookie)
			}
		}

		if sessionID == "" {
			sessionID = strings.TrimSpace(c.Query(SessionCookie))
		}

		generated := false
		if sessionID == "" {
			sessionID = utils.NewHexID()
			generated = true
		}

		// Сохраняем идентификатор сессии в контексте
		c.Set(SessionContextKey, sessionID)

		if generated {
			c.SetSameSite(http.SameSiteLaxMode)
			c.SetCookie(SessionCookie, sessionID, sessionCookieMaxAge, "/", "", false, true)
		}

		c.Next()
	}
}

// GetSessionID возвращает идентификатор сессии текущего запроса
func GetSessionID(c *gin.Context) string {
	return c.GetString(SessionContextKey)
}
