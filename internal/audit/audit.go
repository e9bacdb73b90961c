package audit

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// Источники записей аудита
const (
	SourceWorker = "worker"
	SourceSync   = "sync"
)

// Entry представляет запись аудита расчета стоимости посылки
type Entry struct {
	TS         time.Time
	SessionID  string
	ParcelID   int
	TypeID     int
	WeightKg   decimal.Decimal
	ContentUSD decimal.Decimal
	USDRub     decimal.Decimal
	CostRub    decimal.Decimal
	Source     string
}

// Recorder определяет интерфейс стока аудита.
// Запись best-effort: сбой аудита никогда не должен влиять на пайплайн.
type Recorder interface {
	RecordCalc(ctx context.Context, entry Entry) error
}

// StatsInterface определяет интерфейс агрегации аудита для аналитики
type StatsInterface interface {
	DailyStats(ctx context.Context, dateUTC string, limit int) ([]DailyStat, error)
}

// DailyStat представляет агрегат расчетов за один день (UTC)
type DailyStat struct {
	DateUTC    string  `json:"date_utc"`
	TotalCalcs int64   `json:"total_calcs"`
	AvgCostRub *string `json:"avg_cost_rub"`
	SumCostRub *string `json:"sum_cost_rub"`
}

// Nop — заглушка аудита на случай, когда хранилище не настроено
type Nop struct{}

// RecordCalc ничего не делает
func (Nop) RecordCalc(ctx context.Context, entry Entry) error {
	return nil
}
