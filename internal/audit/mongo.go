package audit

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

const collectionCalcLogs = "calc_logs"

// Mongo реализует Recorder и StatsInterface поверх MongoDB
type Mongo struct {
	client *mongo.Client
	db     *mongo.Database
}

// Connect подключается к MongoDB, проверяет соединение и создает индексы
// коллекции логов расчетов
func Connect(ctx context.Context, url, dbName string) (*Mongo, error) {
	client, err := mongo.Connect(options.Client().ApplyURI(url))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to mongo: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx, nil); err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("failed to ping mongo: %w", err)
	}

	m := &Mongo{
		client: client,
		db:     client.Database(dbName),
	}

	indexes := []mongo.IndexModel{
		{Keys: bson.D{{Key: "ts", Value: 1}}},
		{Keys: bson.D{{Key: "session_id", Value: 1}, {Key: "ts", Value: -1}}},
	}
	if _, err := m.db.Collection(collectionCalcLogs).Indexes().CreateMany(ctx, indexes); err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("failed to create calc_logs indexes: %w", err)
	}

	return m, nil
}

// Close закрывает соединение с MongoDB
func (m *Mongo) Close(ctx context.Context) error {
	return m.client.Disconnect(ctx)
}

// RecordCalc добавляет запись аудита в коллекцию calc_logs.
// Десятичные значения сохраняются строками.
func (m *Mongo) RecordCalc(ctx context.Context, entry Entry) error {
	_, err := m.db.Collection(collectionCalcLogs).InsertOne(ctx, entryToDoc(entry))
	if err != nil {
		return fmt.Errorf("failed to insert calc log: %w", err)
	}
	return nil
}

func entryToDoc(entry Entry) bson.M {
	ts := entry.TS
	if ts.IsZero() {
		ts = time.Now().UTC()
	}
	return bson.M{
		"ts":          ts,
		"session_id":  entry.SessionID,
		"parcel_id":   entry.ParcelID,
		"type_id":     entry.TypeID,
		"weight_kg":   entry.WeightKg.String(),
		"content_usd": entry.ContentUSD.String(),
		"usd_rub":     entry.USDRub.String(),
		"cost_rub":    entry.CostRub.String(),
		"source":      entry.Source,
	}
}

// DailyStats агрегирует логи расчетов по дням (UTC).
// Если dateUTC задан ("YYYY-MM-DD"), возвращается агрегат только за этот день,
// иначе — последние limit дней.
func (m *Mongo) DailyStats(ctx context.Context, dateUTC string, limit int) ([]DailyStat, error) {
	group := bson.M{
		"$group": bson.M{
			"_id":          bson.M{"date": bson.M{"$dateToString": bson.M{"format": "%Y-%m-%d", "date": "$ts"}}},
			"total_calcs":  bson.M{"$sum": 1},
			"avg_cost_rub": bson.M{"$avg": bson.M{"$toDecimal": "$cost_rub"}},
			"sum_cost_rub": bson.M{"$sum": bson.M{"$toDecimal": "$cost_rub"}},
		},
	}
	sort := bson.M{"$sort": bson.M{"_id.date": -1}}

	var pipeline []bson.M
	if dateUTC != "" {
		day, err := time.ParseInLocation("2006-01-02", dateUTC, time.UTC)
		if err != nil {
			return nil, fmt.Errorf("invalid date %q: %w", dateUTC, err)
		}
		match := bson.M{"$match": bson.M{"ts": bson.M{"$gte": day, "$lt": day.AddDate(0, 0, 1)}}}
		pipeline = []bson.M{match, group, sort}
	} else {
		pipeline = []bson.M{group, sort, bson.M{"$limit": limit}}
	}

	cursor, err := m.db.Collection(collectionCalcLogs).Aggregate(ctx, pipeline)
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate calc logs: %w", err)
	}
	defer cursor.Close(ctx)

	var rows []struct {
		ID struct {
			Date string `bson:"date"`
		} `bson:"_id"`
		TotalCalcs int64            `bson:"total_calcs"`
		AvgCostRub *bson.Decimal128 `bson:"avg_cost_rub"`
		SumCostRub *bson.Decimal128 `bson:"sum_cost_rub"`
	}
	if err := cursor.All(ctx, &rows); err != nil {
		return nil, fmt.Errorf("failed to decode daily stats: %w", err)
	}

	stats := make([]DailyStat, 0, len(rows))
	for _, r := range rows {
		stat := DailyStat{
			DateUTC:    r.ID.Date,
			TotalCalcs: r.TotalCalcs,
		}
		if r.AvgCostRub != nil {
			avg := r.AvgCostRub.String()
			stat.AvgCostRub = &avg
		}
		if r.SumCostRub != nil {
			sum := r.SumCostRub.String()
			stat.SumCostRub = &sum
		}
		stats = append(stats, stat)
	}

	return stats, nil
}
