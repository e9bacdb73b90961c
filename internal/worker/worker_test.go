package worker

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"delivery-service/internal/audit"
	"delivery-service/internal/db/queries"
	"delivery-service/internal/models"
	"delivery-service/internal/queue"
)

// Мок ParcelQueries
type MockParcelQueries struct {
	mock.Mock
}

func (m *MockParcelQueries) ExistsType(ctx context.Context, typeID int) (bool, error) {
	args := m.Called(ctx, typeID)
	return args.Bool(0), args.Error(1)
}

func (m *MockParcelQueries) ListTypes(ctx context.Context) ([]models.ParcelType, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.ParcelType), args.Error(1)
}

func (m *MockParcelQueries) CreateParcel(ctx context.Context, parcel *models.Parcel) (*models.Parcel, error) {
	args := m.Called(ctx, parcel)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Parcel), args.Error(1)
}

func (m *MockParcelQueries) GetByID(ctx context.Context, sessionID string, id int) (*models.ParcelWithType, error) {
	args := m.Called(ctx, sessionID, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.ParcelWithType), args.Error(1)
}

func (m *MockParcelQueries) GetByPublic(ctx context.Context, sessionID, publicID string) (*models.ParcelWithType, error) {
	args := m.Called(ctx, sessionID, publicID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.ParcelWithType), args.Error(1)
}

func (m *MockParcelQueries) Paginate(ctx context.Context, sessionID string, params models.ParcelListQuery) ([]models.ParcelWithType, int, error) {
	args := m.Called(ctx, sessionID, params)
	if args.Get(0) == nil {
		return nil, args.Int(1), args.Error(2)
	}
	return args.Get(0).([]models.ParcelWithType), args.Int(1), args.Error(2)
}

func (m *MockParcelQueries) BindFirstWins(ctx context.Context, sessionID, publicID string, companyID int) (int64, error) {
	args := m.Called(ctx, sessionID, publicID, companyID)
	return args.Get(0).(int64), args.Error(1)
}

// Мок провайдера курса
type MockRates struct {
	mock.Mock
}

func (m *MockRates) GetUSDRUB(ctx context.Context) decimal.Decimal {
	args := m.Called(ctx)
	return args.Get(0).(decimal.Decimal)
}

// Мок стока аудита
type MockRecorder struct {
	mock.Mock
}

func (m *MockRecorder) RecordCalc(ctx context.Context, entry audit.Entry) error {
	args := m.Called(ctx, entry)
	return args.Error(0)
}

func validBody(t *testing.T) []byte {
	t.Helper()
	body, err := json.Marshal(queue.RegisterMessage{
		SessionID:       "session-a",
		SessionPublicID: "deadbeefdeadbeefdeadbeefdeadbeef",
		Name:            "Shirt",
		WeightKg:        "0.25",
		TypeID:          1,
		ContentUSD:      "20.00",
	})
	assert.NoError(t, err)
	return body
}

func setupWorkerTest() (*Worker, *MockParcelQueries, *MockRates, *MockRecorder) {
	parcels := new(MockParcelQueries)
	ratesMock := new(MockRates)
	recorder := new(MockRecorder)
	w := New(parcels, ratesMock, recorder, 5)
	return w, parcels, ratesMock, recorder
}

func TestWorker_ProcessMessage(t *testing.T) {
	t.Run("Успешная обработка сообщения", func(t *testing.T) {
		w, parcels, ratesMock, recorder := setupWorkerTest()

		parcels.On("ExistsType", mock.Anything, 1).Return(true, nil)
		ratesMock.On("GetUSDRUB", mock.Anything).Return(decimal.RequireFromString("100.00"))

		parcels.On("CreateParcel", mock.Anything, mock.MatchedBy(func(p *models.Parcel) bool {
			// (0.25*0.5 + 20.00*0.01) * 100.00 = 32.50
			return p.CostRub.Valid && p.CostRub.Decimal.Equal(decimal.RequireFromString("32.50")) &&
				p.SessionID == "session-a" &&
				p.SessionPublicID == "deadbeefdeadbeefdeadbeefdeadbeef"
		})).Return(&models.Parcel{
			ID:              42,
			SessionID:       "session-a",
			SessionPublicID: "deadbeefdeadbeefdeadbeefdeadbeef",
			TypeID:          1,
		}, nil)

		recorder.On("RecordCalc", mock.Anything, mock.MatchedBy(func(e audit.Entry) bool {
			return e.ParcelID == 42 && e.Source == audit.SourceWorker &&
				e.CostRub.Equal(decimal.RequireFromString("32.50"))
		})).Return(nil)

		outcome, err := w.ProcessMessage(context.Background(), validBody(t))

		assert.NoError(t, err)
		assert.Equal(t, OutcomeProcessed, outcome)
		parcels.AssertExpectations(t)
		recorder.AssertExpectations(t)
	})

	t.Run("Некорректный JSON отбрасывается", func(t *testing.T) {
		w, parcels, _, _ := setupWorkerTest()

		outcome, err := w.ProcessMessage(context.Background(), []byte("{not json"))

		assert.NoError(t, err)
		assert.Equal(t, OutcomeDiscarded, outcome)
		parcels.AssertNotCalled(t, "CreateParcel", mock.Anything, mock.Anything)
	})

	t.Run("Сообщение без обязательных полей отбрасывается", func(t *testing.T) {
		w, parcels, _, _ := setupWorkerTest()

		body, _ := json.Marshal(queue.RegisterMessage{
			SessionID: "session-a",
			Name:      "Shirt",
			WeightKg:  "0.25",
			TypeID:    1,
		})

		outcome, err := w.ProcessMessage(context.Background(), body)

		assert.NoError(t, err)
		assert.Equal(t, OutcomeDiscarded, outcome)
		parcels.AssertNotCalled(t, "ExistsType", mock.Anything, mock.Anything)
	})

	t.Run("Неизвестный тип посылки отбрасывается", func(t *testing.T) {
		w, parcels, _, _ := setupWorkerTest()

		parcels.On("ExistsType", mock.Anything, 1).Return(false, nil)

		outcome, err := w.ProcessMessage(context.Background(), validBody(t))

		assert.NoError(t, err)
		assert.Equal(t, OutcomeDiscarded, outcome)
		parcels.AssertNotCalled(t, "CreateParcel", mock.Anything, mock.Anything)
	})

	t.Run("Повторная доставка — идемпотентный no-op", func(t *testing.T) {
		w, parcels, ratesMock, recorder := setupWorkerTest()

		parcels.On("ExistsType", mock.Anything, 1).Return(true, nil)
		ratesMock.On("GetUSDRUB", mock.Anything).Return(decimal.RequireFromString("100.00"))
		parcels.On("CreateParcel", mock.Anything, mock.Anything).Return(nil, queries.ErrParcelExists)

		outcome, err := w.ProcessMessage(context.Background(), validBody(t))

		assert.NoError(t, err)
		assert.Equal(t, OutcomeDuplicate, outcome)
		// Дубликат не попадает в аудит
		recorder.AssertNotCalled(t, "RecordCalc", mock.Anything, mock.Anything)
	})

	t.Run("Идемпотентность: два одинаковых сообщения — одна строка", func(t *testing.T) {
		w, parcels, ratesMock, recorder := setupWorkerTest()

		parcels.On("ExistsType", mock.Anything, 1).Return(true, nil)
		ratesMock.On("GetUSDRUB", mock.Anything).Return(decimal.RequireFromString("100.00"))
		recorder.On("RecordCalc", mock.Anything, mock.Anything).Return(nil)

		// Первая доставка создает строку, вторая упирается в уникальность
		parcels.On("CreateParcel", mock.Anything, mock.Anything).
			Return(&models.Parcel{ID: 1, SessionID: "session-a"}, nil).Once()
		parcels.On("CreateParcel", mock.Anything, mock.Anything).
			Return(nil, queries.ErrParcelExists).Once()

		body := validBody(t)

		first, err := w.ProcessMessage(context.Background(), body)
		assert.NoError(t, err)
		assert.Equal(t, OutcomeProcessed, first)

		second, err := w.ProcessMessage(context.Background(), body)
		assert.NoError(t, err)
		assert.Equal(t, OutcomeDuplicate, second)

		parcels.AssertNumberOfCalls(t, "CreateParcel", 2)
	})

	t.Run("Временный сбой хранилища — повтор", func(t *testing.T) {
		w, parcels, ratesMock, _ := setupWorkerTest()

		parcels.On("ExistsType", mock.Anything, 1).Return(true, nil)
		ratesMock.On("GetUSDRUB", mock.Anything).Return(decimal.RequireFromString("100.00"))
		parcels.On("CreateParcel", mock.Anything, mock.Anything).Return(nil, errors.New("connection refused"))

		outcome, err := w.ProcessMessage(context.Background(), validBody(t))

		assert.Error(t, err)
		assert.Equal(t, OutcomeRetry, outcome)
	})

	t.Run("Сбой проверки типа — повтор", func(t *testing.T) {
		w, parcels, _, _ := setupWorkerTest()

		parcels.On("ExistsType", mock.Anything, 1).Return(false, errors.New("connection refused"))

		outcome, err := w.ProcessMessage(context.Background(), validBody(t))

		assert.Error(t, err)
		assert.Equal(t, OutcomeRetry, outcome)
	})

	t.Run("Сбой аудита не мешает успеху", func(t *testing.T) {
		w, parcels, ratesMock, recorder := setupWorkerTest()

		parcels.On("ExistsType", mock.Anything, 1).Return(true, nil)
		ratesMock.On("GetUSDRUB", mock.Anything).Return(decimal.RequireFromString("100.00"))
		parcels.On("CreateParcel", mock.Anything, mock.Anything).Return(&models.Parcel{ID: 1}, nil)
		recorder.On("RecordCalc", mock.Anything, mock.Anything).Return(errors.New("mongo down"))

		outcome, err := w.ProcessMessage(context.Background(), validBody(t))

		assert.NoError(t, err)
		assert.Equal(t, OutcomeProcessed, outcome)
	})
}

func TestAttemptsFromHeaders(t *testing.T) {
	t.Run("Без заголовка — первая попытка", func(t *testing.T) {
		assert.Equal(t, int32(1), attemptsFromHeaders(nil))
	})

	t.Run("int32", func(t *testing.T) {
		assert.Equal(t, int32(3), attemptsFromHeaders(map[string]interface{}{queue.AttemptsHeader: int32(3)}))
	})

	t.Run("int64", func(t *testing.T) {
		assert.Equal(t, int32(4), attemptsFromHeaders(map[string]interface{}{queue.AttemptsHeader: int64(4)}))
	})

	t.Run("Мусор в заголовке", func(t *testing.T) {
		assert.Equal(t, int32(1), attemptsFromHeaders(map[string]interface{}{queue.AttemptsHeader: "oops"}))
	})
}
