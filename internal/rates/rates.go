package rates

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"time"

	"delivery-service/internal/config"

	"github.com/shopspring/decimal"
)

// CacheKey — имя ключа, под которым курс хранится в кэше
const CacheKey = "usd_rub"

// ProviderInterface определяет интерфейс получения курса USD/RUB
type ProviderInterface interface {
	GetUSDRUB(ctx context.Context) decimal.Decimal
}

// Cache определяет интерфейс кэша значений курса
type Cache interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string, ttl time.Duration) error
}

// Provider отдает курс USD/RUB по схеме read-through:
// кэш -> внешний источник -> фиксированный фолбэк.
// GetUSDRUB никогда не возвращает ошибку и не блокируется дольше
// таймаута внешнего запроса.
type Provider struct {
	cache       Cache
	client      *http.Client
	sourceURL   string
	cacheTTL    time.Duration
	defaultRate decimal.Decimal
}

// NewProvider создает новый экземпляр Provider.
// cache может быть nil — тогда шаги кэширования пропускаются.
func NewProvider(cache Cache, cfg *config.RatesConfig) *Provider {
	defaultRate, err := decimal.NewFromString(cfg.DefaultRate)
	if err != nil {
		log.Printf("Invalid default rate %q, falling back to 100.00: %v", cfg.DefaultRate, err)
		defaultRate = decimal.RequireFromString("100.00")
	}

	return &Provider{
		cache:       cache,
		client:      &http.Client{Timeout: cfg.SourceTimeout},
		sourceURL:   cfg.SourceURL,
		cacheTTL:    cfg.CacheTTL,
		defaultRate: defaultRate,
	}
}

// GetUSDRUB возвращает актуальный курс доллара к рублю.
// Порядок: кэш, внешний источник, безопасный дефолт.
// Запись в кэш — best-effort, её сбой не влияет на результат.
func (p *Provider) GetUSDRUB(ctx context.Context) decimal.Decimal {
	if p.cache != nil {
		raw, err := p.cache.Get(ctx, CacheKey)
		if err == nil {
			if rate, perr := decimal.NewFromString(raw); perr == nil {
				return rate.Round(2)
			}
		}
	}

	rate, err := p.fetchFromSource(ctx)
	if err != nil {
		log.Printf("Rate source unavailable, using default rate: %v", err)
		rate = p.defaultRate
	}

	if p.cache != nil {
		if err := p.cache.Set(ctx, CacheKey, rate.String(), p.cacheTTL); err != nil {
			log.Printf("Failed to cache rate: %v", err)
		}
	}

	return rate
}

// fetchFromSource запрашивает курс у внешнего источника (ЦБ РФ).
// Ответ вида {"Valute": {"USD": {"Value": 81.5}}}.
func (p *Provider) fetchFromSource(ctx context.Context) (decimal.Decimal, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.sourceURL, nil)
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("failed to build rate request: %w", err)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("failed to fetch rate: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return decimal.Decimal{}, fmt.Errorf("rate source returned status %d", resp.StatusCode)
	}

	var payload struct {
		Valute struct {
			USD struct {
				Value json.Number `json:"Value"`
			} `json:"USD"`
		} `json:"Valute"`
	}

	dec := json.NewDecoder(resp.Body)
	dec.UseNumber()
	if err := dec.Decode(&payload); err != nil {
		return decimal.Decimal{}, fmt.Errorf("failed to decode rate payload: %w", err)
	}

	rate, err := decimal.NewFromString(payload.Valute.USD.Value.String())
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("failed to parse rate value: %w", err)
	}

	return rate.Round(2), nil
}
