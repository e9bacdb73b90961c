package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// ParcelType представляет справочный тип посылки
type ParcelType struct {
	ID   int    `json:"id" db:"id"`
	Name string `json:"name" db:"name"`
}

// Parcel представляет зарегистрированную посылку
type Parcel struct {
	ID                int                 `json:"id" db:"id"`
	SessionID         string              `json:"-" db:"session_id"`
	SessionPublicID   string              `json:"public_id" db:"session_public_id"`
	Name              string              `json:"name" db:"name"`
	WeightKg          decimal.Decimal     `json:"weight_kg" db:"weight_kg"`
	TypeID            int                 `json:"type_id" db:"type_id"`
	ContentUSD        decimal.Decimal     `json:"content_usd" db:"content_usd"`
	CostRub           decimal.NullDecimal `json:"cost_rub" db:"cost_rub"`
	ShippingCompanyID *int                `json:"shipping_company_id" db:"shipping_company_id"`
	CreatedAt         time.Time           `json:"created_at" db:"created_at"`
}

// ParcelWithType представляет посылку вместе с именем её типа
type ParcelWithType struct {
	Parcel
	TypeName string `db:"type_name"`
}

// RegisterParcelRequest представляет запрос на регистрацию посылки
type RegisterParcelRequest struct {
	Name       string          `json:"name" binding:"required,min=1,max=300"`
	WeightKg   decimal.Decimal `json:"weight_kg"`
	TypeID     int             `json:"type_id" binding:"required,gt=0"`
	ContentUSD decimal.Decimal `json:"content_usd"`
}

// RegisterAcceptedResponse представляет ответ на принятую асинхронную регистрацию
type RegisterAcceptedResponse struct {
	PublicID string `json:"public_id"`
}

// ParcelResponse представляет ответ с данными посылки
type ParcelResponse struct {
	ID                int              `json:"id"`
	PublicID          string           `json:"public_id"`
	Name              string           `json:"name"`
	WeightKg          decimal.Decimal  `json:"weight_kg"`
	TypeID            int              `json:"type_id"`
	TypeName          string           `json:"type_name"`
	ContentUSD        decimal.Decimal  `json:"content_usd"`
	CostRub           *decimal.Decimal `json:"cost_rub"`
	DeliveryCostRub   *decimal.Decimal `json:"delivery_cost_rub"`
	ShippingCompanyID *int             `json:"shipping_company_id"`
}

// ParcelListQuery представляет параметры запроса списка посылок
type ParcelListQuery struct {
	Page    int   `form:"page,default=1" binding:"omitempty,min=1"`
	PerPage int   `form:"per_page,default=50" binding:"omitempty,min=1,max=200"`
	TypeID  *int  `form:"type_id" binding:"omitempty,gt=0"`
	HasCost *bool `form:"has_cost"`
	// Priced — алиас has_cost для совместимости
	Priced *bool `form:"priced"`
}

// ParcelPage представляет страницу списка посылок
type ParcelPage struct {
	Items   []ParcelResponse `json:"items"`
	Page    int              `json:"page"`
	PerPage int              `json:"per_page"`
	Total   int              `json:"total"`
}

// CreateParcelCompatRequest представляет совместимый запрос на создание посылки
type CreateParcelCompatRequest struct {
	Name        string          `json:"name" binding:"required,min=1,max=300"`
	Weight      decimal.Decimal `json:"weight"`
	TypeID      int             `json:"type_id" binding:"required,gt=0"`
	DeclaredUSD decimal.Decimal `json:"declared_usd"`
}

// ParcelCompatResponse представляет совместимый ответ с данными посылки
type ParcelCompatResponse struct {
	ID          int              `json:"id"`
	Name        string           `json:"name"`
	TypeID      int              `json:"type_id"`
	TypeName    string           `json:"type_name"`
	Weight      decimal.Decimal  `json:"weight"`
	DeclaredUSD decimal.Decimal  `json:"declared_usd"`
	CostRub     *decimal.Decimal `json:"cost_rub"`
}

// ToResponse преобразует посылку в ответ API
func (p *ParcelWithType) ToResponse() ParcelResponse {
	resp := ParcelResponse{
		ID:                p.ID,
		PublicID:          p.SessionPublicID,
		Name:              p.Name,
		WeightKg:          p.WeightKg,
		TypeID:            p.TypeID,
		TypeName:          p.TypeName,
		ContentUSD:        p.ContentUSD,
		ShippingCompanyID: p.ShippingCompanyID,
	}
	if p.CostRub.Valid {
		cost := p.CostRub.Decimal
		resp.CostRub = &cost
		resp.DeliveryCostRub = &cost
	}
	return resp
}
