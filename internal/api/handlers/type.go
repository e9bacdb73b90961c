package handlers

import (
	"net/http"

	"delivery-service/internal/db/queries"
	"delivery-service/internal/models"

	"github.com/gin-gonic/gin"
)

// TypeHandler содержит обработчики справочника типов посылок
type TypeHandler struct {
	parcelQueries queries.ParcelQueriesInterface
}

// NewTypeHandler создает новый экземпляр TypeHandler
func NewTypeHandler(parcelQueries queries.ParcelQueriesInterface) *TypeHandler {
	return &TypeHandler{parcelQueries: parcelQueries}
}

// ListTypes обрабатывает запрос справочника типов посылок
func (h *TypeHandler) ListTypes(c *gin.Context) {
	types, err := h.parcelQueries.ListTypes(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, models.ErrorResponse{
			Message: "Ошибка при получении типов посылок: " + err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, types)
}
