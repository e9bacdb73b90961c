package handlers

import (
	"net/http"
	"strconv"
	"time"

	"delivery-service/internal/audit"
	"delivery-service/internal/models"

	"github.com/gin-gonic/gin"
)

const (
	analyticsDefaultLimit = 7
	analyticsMaxLimit     = 90
)

// AnalyticsHandler содержит обработчики аналитики по логам расчетов
type AnalyticsHandler struct {
	stats audit.StatsInterface
}

// NewAnalyticsHandler создает новый экземпляр AnalyticsHandler.
// stats может быть nil — тогда аналитика отвечает 503.
func NewAnalyticsHandler(stats audit.StatsInterface) *AnalyticsHandler {
	return &AnalyticsHandler{stats: stats}
}

// Daily обрабатывает запрос дневной статистики расчетов.
// Параметры: date_utc (YYYY-MM-DD, опционально) и limit (1..90, по умолчанию 7).
func (h *AnalyticsHandler) Daily(c *gin.Context) {
	if h.stats == nil {
		c.JSON(http.StatusServiceUnavailable, models.ErrorResponse{
			Message: "Хранилище аналитики не настроено",
		})
		return
	}

	dateUTC := c.Query("date_utc")
	if dateUTC != "" {
		if _, err := time.Parse("2006-01-02", dateUTC); err != nil {
			c.JSON(http.StatusBadRequest, models.ErrorResponse{
				Message: "Неверный формат даты, ожидается YYYY-MM-DD",
			})
			return
		}
	}

	limit := analyticsDefaultLimit
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > analyticsMaxLimit {
			c.JSON(http.StatusBadRequest, models.ErrorResponse{
				Message: "Неверное значение limit",
			})
			return
		}
		limit = n
	}

	stats, err := h.stats.DailyStats(c.Request.Context(), dateUTC, limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, models.ErrorResponse{
			Message: "Ошибка при агрегации аналитики: " + err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{"items": stats})
}
