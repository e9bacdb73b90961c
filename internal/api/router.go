package api

import (
	"delivery-service/internal/api/handlers"
	"delivery-service/internal/api/middleware"
	"delivery-service/internal/audit"
	"delivery-service/internal/db/queries"
	"delivery-service/internal/queue"
	"delivery-service/internal/rates"

	"github.com/gin-gonic/gin"
)

// Deps содержит явно передаваемые зависимости HTTP-слоя.
// Они создаются в composition root (cmd/server) и не ищутся глобально.
type Deps struct {
	Parcels   queries.ParcelQueriesInterface
	Publisher queue.PublisherInterface
	Rates     rates.ProviderInterface
	Audit     audit.Recorder
	Stats     audit.StatsInterface
}

// SetupRouter настраивает маршруты приложения
func SetupRouter(deps Deps) *gin.Engine {
	// Создаем экземпляр Gin
	router := gin.Default()

	// Каждый запрос получает идентификатор сессии
	router.Use(middleware.EnsureSession())

	// Создаем обработчики
	parcelHandler := handlers.NewParcelHandler(deps.Parcels, deps.Publisher, deps.Rates, deps.Audit)
	typeHandler := handlers.NewTypeHandler(deps.Parcels)
	analyticsHandler := handlers.NewAnalyticsHandler(deps.Stats)

	// Регистрация и чтение посылок
	router.POST("/parcels/register", parcelHandler.RegisterParcel)
	router.POST("/parcels/register-sync", parcelHandler.RegisterParcelSync)
	router.POST("/parcels", parcelHandler.CreateParcelCompat)
	router.GET("/parcels", parcelHandler.ListParcels)
	router.GET("/parcels/:public_id", parcelHandler.GetParcel)
	router.POST("/parcels/:public_id/bind", parcelHandler.BindCompany)

	// Справочник типов (и совместимый алиас)
	router.GET("/parcel-types", typeHandler.ListTypes)
	router.GET("/types", typeHandler.ListTypes)

	// Аналитика
	router.GET("/analytics/daily", analyticsHandler.Daily)

	return router
}
