package handlers

import (
	"errors"
	"log"
	"net/http"
	"regexp"
	"strconv"
	"time"

	"delivery-service/internal/api/middleware"
	"delivery-service/internal/audit"
	"delivery-service/internal/db/queries"
	"delivery-service/internal/models"
	"delivery-service/internal/pricing"
	"delivery-service/internal/queue"
	"delivery-service/internal/rates"
	"delivery-service/internal/utils"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
)

// Числовой идентификатор короче 32 символов — это не публичный id
var numericIDPattern = regexp.MustCompile(`^\d{1,31}$`)

// ParcelHandler содержит обработчики для работы с посылками
type ParcelHandler struct {
	parcelQueries queries.ParcelQueriesInterface
	publisher     queue.PublisherInterface
	rates         rates.ProviderInterface
	audit         audit.Recorder
}

// NewParcelHandler создает новый экземпляр ParcelHandler.
// recorder может быть nil — тогда аудит отключен.
func NewParcelHandler(parcelQueries queries.ParcelQueriesInterface, publisher queue.PublisherInterface, ratesProvider rates.ProviderInterface, recorder audit.Recorder) *ParcelHandler {
	if recorder == nil {
		recorder = audit.Nop{}
	}
	return &ParcelHandler{
		parcelQueries: parcelQueries,
		publisher:     publisher,
		rates:         ratesProvider,
		audit:         recorder,
	}
}

// RegisterParcel обрабатывает асинхронную регистрацию посылки:
// генерирует публичный идентификатор, публикует сообщение в очередь
// и сразу возвращает идентификатор, не дожидаясь обработки.
func (h *ParcelHandler) RegisterParcel(c *gin.Context) {
	sessionID := middleware.GetSessionID(c)
	if sessionID == "" {
		c.JSON(http.StatusInternalServerError, models.ErrorResponse{
			Message: "Не настроен session middleware",
		})
		return
	}

	var req models.RegisterParcelRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, models.ErrorResponse{
			Message: "Неверный запрос: " + err.Error(),
		})
		return
	}
	if msg, ok := validateAmounts(req.WeightKg, req.ContentUSD); !ok {
		c.JSON(http.StatusBadRequest, models.ErrorResponse{Message: msg})
		return
	}

	publicID := utils.NewHexID()
	message := &queue.RegisterMessage{
		SessionID:       sessionID,
		SessionPublicID: publicID,
		Name:            req.Name,
		WeightKg:        req.WeightKg.String(),
		TypeID:          req.TypeID,
		ContentUSD:      req.ContentUSD.String(),
	}

	if err := h.publisher.PublishRegister(c.Request.Context(), message); err != nil {
		c.JSON(http.StatusInternalServerError, models.ErrorResponse{
			Message: "Не удалось поставить регистрацию в очередь: " + err.Error(),
		})
		return
	}

	c.JSON(http.StatusAccepted, models.RegisterAcceptedResponse{PublicID: publicID})
}

// RegisterParcelSync обрабатывает синхронную регистрацию (для отладки):
// считает стоимость и создает посылку в рамках запроса.
func (h *ParcelHandler) RegisterParcelSync(c *gin.Context) {
	sessionID := middleware.GetSessionID(c)

	var req models.RegisterParcelRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, models.ErrorResponse{
			Message: "Неверный запрос: " + err.Error(),
		})
		return
	}
	if msg, ok := validateAmounts(req.WeightKg, req.ContentUSD); !ok {
		c.JSON(http.StatusBadRequest, models.ErrorResponse{Message: msg})
		return
	}

	created, typeName, ok := h.createPriced(c, sessionID, req.Name, req.WeightKg, req.TypeID, req.ContentUSD)
	if !ok {
		return
	}

	resp := models.ParcelResponse{
		ID:         created.ID,
		PublicID:   created.SessionPublicID,
		Name:       created.Name,
		WeightKg:   created.WeightKg,
		TypeID:     created.TypeID,
		TypeName:   typeName,
		ContentUSD: created.ContentUSD,
	}
	if created.CostRub.Valid {
		cost := created.CostRub.Decimal
		resp.CostRub = &cost
		resp.DeliveryCostRub = &cost
	}

	c.JSON(http.StatusCreated, resp)
}

// CreateParcelCompat обрабатывает совместимый запрос создания посылки
// (name, weight, type_id, declared_usd) и ведет себя как синхронная регистрация.
func (h *ParcelHandler) CreateParcelCompat(c *gin.Context) {
	sessionID := middleware.GetSessionID(c)

	var req models.CreateParcelCompatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, models.ErrorResponse{
			Message: "Неверный запрос: " + err.Error(),
		})
		return
	}
	if msg, ok := validateAmounts(req.Weight, req.DeclaredUSD); !ok {
		c.JSON(http.StatusBadRequest, models.ErrorResponse{Message: msg})
		return
	}

	created, typeName, ok := h.createPriced(c, sessionID, req.Name, req.Weight, req.TypeID, req.DeclaredUSD)
	if !ok {
		return
	}

	resp := models.ParcelCompatResponse{
		ID:          created.ID,
		Name:        created.Name,
		TypeID:      created.TypeID,
		TypeName:    typeName,
		Weight:      created.WeightKg,
		DeclaredUSD: created.ContentUSD,
	}
	if created.CostRub.Valid {
		cost := created.CostRub.Decimal
		resp.CostRub = &cost
	}

	c.JSON(http.StatusCreated, resp)
}

// createPriced выполняет общий синхронный путь: проверка типа, курс,
// расчет стоимости, вставка и best-effort аудит.
func (h *ParcelHandler) createPriced(c *gin.Context, sessionID, name string, weight decimal.Decimal, typeID int, content decimal.Decimal) (*models.Parcel, string, bool) {
	exists, err := h.parcelQueries.ExistsType(c.Request.Context(), typeID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, models.ErrorResponse{
			Message: "Ошибка при проверке типа посылки: " + err.Error(),
		})
		return nil, "", false
	}
	if !exists {
		c.JSON(http.StatusBadRequest, models.ErrorResponse{
			Message: "Неизвестный тип посылки",
		})
		return nil, "", false
	}

	usdRub := h.rates.GetUSDRUB(c.Request.Context())
	cost := pricing.Cost(weight, content, usdRub)

	parcel := &models.Parcel{
		SessionID:       sessionID,
		SessionPublicID: utils.NewHexID(),
		Name:            name,
		WeightKg:        weight,
		TypeID:          typeID,
		ContentUSD:      content,
		CostRub:         decimal.NullDecimal{Decimal: cost, Valid: true},
	}

	created, err := h.parcelQueries.CreateParcel(c.Request.Context(), parcel)
	if err != nil {
		c.JSON(http.StatusInternalServerError, models.ErrorResponse{
			Message: "Ошибка при создании посылки: " + err.Error(),
		})
		return nil, "", false
	}

	// Аудит best-effort: сбой не роняет запрос
	entry := audit.Entry{
		TS:         time.Now().UTC(),
		SessionID:  sessionID,
		ParcelID:   created.ID,
		TypeID:     typeID,
		WeightKg:   weight,
		ContentUSD: content,
		USDRub:     usdRub,
		CostRub:    cost,
		Source:     audit.SourceSync,
	}
	if err := h.audit.RecordCalc(c.Request.Context(), entry); err != nil {
		log.Printf("Audit record failed: %v", err)
	}

	typeName, err := h.resolveTypeName(c, typeID)
	if err != nil {
		log.Printf("Failed to resolve type name: %v", err)
	}

	return created, typeName, true
}

func (h *ParcelHandler) resolveTypeName(c *gin.Context, typeID int) (string, error) {
	types, err := h.parcelQueries.ListTypes(c.Request.Context())
	if err != nil {
		return "", err
	}
	for _, t := range types {
		if t.ID == typeID {
			return t.Name, nil
		}
	}
	return "", nil
}

// ListParcels обрабатывает запрос списка посылок текущей сессии
// с пагинацией и фильтрами
func (h *ParcelHandler) ListParcels(c *gin.Context) {
	sessionID := middleware.GetSessionID(c)

	var query models.ParcelListQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		c.JSON(http.StatusBadRequest, models.ErrorResponse{
			Message: "Неверные параметры запроса: " + err.Error(),
		})
		return
	}

	// priced — алиас has_cost
	if query.HasCost == nil && query.Priced != nil {
		query.HasCost = query.Priced
	}

	parcels, total, err := h.parcelQueries.Paginate(c.Request.Context(), sessionID, query)
	if err != nil {
		c.JSON(http.StatusInternalServerError, models.ErrorResponse{
			Message: "Ошибка при получении списка посылок: " + err.Error(),
		})
		return
	}

	items := make([]models.ParcelResponse, 0, len(parcels))
	for i := range parcels {
		items = append(items, parcels[i].ToResponse())
	}

	c.JSON(http.StatusOK, models.ParcelPage{
		Items:   items,
		Page:    query.Page,
		PerPage: query.PerPage,
		Total:   total,
	})
}

// GetParcel обрабатывает запрос детальной информации о посылке.
// Короткий числовой токен трактуется как числовой id (совместимый путь),
// иначе — как публичный идентификатор.
func (h *ParcelHandler) GetParcel(c *gin.Context) {
	sessionID := middleware.GetSessionID(c)
	token := c.Param("public_id")

	var parcel *models.ParcelWithType
	var err error
	if numericIDPattern.MatchString(token) {
		id, convErr := strconv.Atoi(token)
		if convErr != nil {
			c.JSON(http.StatusBadRequest, models.ErrorResponse{
				Message: "Неверный идентификатор посылки",
			})
			return
		}
		parcel, err = h.parcelQueries.GetByID(c.Request.Context(), sessionID, id)
	} else {
		parcel, err = h.parcelQueries.GetByPublic(c.Request.Context(), sessionID, token)
	}

	if err != nil {
		if errors.Is(err, queries.ErrParcelNotFound) {
			c.JSON(http.StatusNotFound, models.ErrorResponse{
				Message: "Посылка не найдена",
			})
			return
		}
		c.JSON(http.StatusInternalServerError, models.ErrorResponse{
			Message: "Ошибка при получении посылки: " + err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, parcel.ToResponse())
}

// BindCompany обрабатывает привязку перевозчика по принципу «первый победил»
func (h *ParcelHandler) BindCompany(c *gin.Context) {
	sessionID := middleware.GetSessionID(c)
	publicID := c.Param("public_id")

	companyID, err := strconv.Atoi(c.Query("company_id"))
	if err != nil || companyID <= 0 {
		c.JSON(http.StatusBadRequest, models.ErrorResponse{
			Message: "Не указан корректный company_id",
		})
		return
	}

	changed, err := h.parcelQueries.BindFirstWins(c.Request.Context(), sessionID, publicID, companyID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, models.ErrorResponse{
			Message: "Ошибка при привязке перевозчика: " + err.Error(),
		})
		return
	}

	if changed == 0 {
		// По одному числу измененных строк не отличить «уже привязана»
		// от «не найдена» — отвечаем конфликтом, как и исходный сервис
		c.JSON(http.StatusConflict, models.ErrorResponse{
			Message: "Посылка не найдена или перевозчик уже привязан",
		})
		return
	}

	c.Status(http.StatusOK)
}

// validateAmounts проверяет знаки денежных и весовых значений запроса
func validateAmounts(weight, content decimal.Decimal) (string, bool) {
	if !weight.IsPositive() {
		return "Вес должен быть положительным", false
	}
	if content.IsNegative() {
		return "Объявленная стоимость не может быть отрицательной", false
	}
	return "", true
}
