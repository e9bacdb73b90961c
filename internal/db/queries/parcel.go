package queries

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"delivery-service/internal/db"
	"delivery-service/internal/models"

	"github.com/Masterminds/squirrel"
	"github.com/lib/pq"
)

// Код ошибки PostgreSQL для нарушения уникальности
const pgUniqueViolation = "23505"

var (
	// ErrParcelExists возвращается при попытке создать посылку
	// с уже занятой парой (session_id, session_public_id)
	ErrParcelExists = errors.New("parcel already exists")

	// ErrParcelNotFound возвращается, когда посылка не найдена в рамках сессии
	ErrParcelNotFound = errors.New("parcel not found")
)

// parcelColumns — колонки посылки с именем типа для выборок с JOIN
var parcelColumns = []string{
	"p.id", "p.session_id", "p.session_public_id", "p.name", "p.weight_kg",
	"p.type_id", "p.content_usd", "p.cost_rub", "p.shipping_company_id",
	"p.created_at", "t.name AS type_name",
}

// ParcelQueriesInterface определяет интерфейс для запросов к посылкам
type ParcelQueriesInterface interface {
	ExistsType(ctx context.Context, typeID int) (bool, error)
	ListTypes(ctx context.Context) ([]models.ParcelType, error)
	CreateParcel(ctx context.Context, parcel *models.Parcel) (*models.Parcel, error)
	GetByID(ctx context.Context, sessionID string, id int) (*models.ParcelWithType, error)
	GetByPublic(ctx context.Context, sessionID, publicID string) (*models.ParcelWithType, error)
	Paginate(ctx context.Context, sessionID string, params models.ParcelListQuery) ([]models.ParcelWithType, int, error)
	BindFirstWins(ctx context.Context, sessionID, publicID string, companyID int) (int64, error)
}

// ParcelQueries содержит методы запросов для работы с посылками
type ParcelQueries struct {
	db *db.Database
	sq squirrel.StatementBuilderType
}

// NewParcelQueries создает новый экземпляр ParcelQueries
func NewParcelQueries(db *db.Database) *ParcelQueries {
	return &ParcelQueries{
		db: db,
		sq: squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar).RunWith(db),
	}
}

// ExistsType проверяет наличие типа посылки
func (q *ParcelQueries) ExistsType(ctx context.Context, typeID int) (bool, error) {
	query := q.sq.
		Select("1").
		From("parcel_types").
		Where(squirrel.Eq{"id": typeID}).
		Limit(1)

	qsql, args, err := query.ToSql()
	if err != nil {
		return false, fmt.Errorf("failed to build query: %w", err)
	}

	var exists int
	err = q.db.QueryRowContext(ctx, qsql, args...).Scan(&exists)
	if err != nil {
		if err == sql.ErrNoRows {
			return false, nil
		}
		return false, fmt.Errorf("failed to check parcel type: %w", err)
	}

	return true, nil
}

// ListTypes возвращает справочник типов посылок
func (q *ParcelQueries) ListTypes(ctx context.Context) ([]models.ParcelType, error) {
	query := q.sq.
		Select("id", "name").
		From("parcel_types").
		OrderBy("id ASC")

	qsql, args, err := query.ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build query: %w", err)
	}

	var types []models.ParcelType
	err = q.db.SelectContext(ctx, &types, qsql, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list parcel types: %w", err)
	}

	return types, nil
}

// CreateParcel вставляет новую посылку.
// Нарушение уникальности (session_id, session_public_id) возвращается
// как ErrParcelExists — это защита от повторной доставки сообщения,
// а не прикладная проверка.
func (q *ParcelQueries) CreateParcel(ctx context.Context, parcel *models.Parcel) (*models.Parcel, error) {
	query := q.sq.
		Insert("parcels").
		Columns("session_id", "session_public_id", "name", "weight_kg", "type_id", "content_usd", "cost_rub").
		Values(parcel.SessionID, parcel.SessionPublicID, parcel.Name, parcel.WeightKg, parcel.TypeID, parcel.ContentUSD, parcel.CostRub).
		Suffix("RETURNING id, session_id, session_public_id, name, weight_kg, type_id, content_usd, cost_rub, shipping_company_id, created_at")

	qsql, args, err := query.ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build query: %w", err)
	}

	var created models.Parcel
	err = q.db.QueryRowxContext(ctx, qsql, args...).StructScan(&created)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == pgUniqueViolation {
			return nil, ErrParcelExists
		}
		return nil, fmt.Errorf("failed to create parcel: %w", err)
	}

	return &created, nil
}

// GetByID получает посылку по числовому id в рамках сессии.
// Чужая посылка неотличима от несуществующей.
func (q *ParcelQueries) GetByID(ctx context.Context, sessionID string, id int) (*models.ParcelWithType, error) {
	return q.getOne(ctx, squirrel.Eq{"p.session_id": sessionID, "p.id": id})
}

// GetByPublic получает посылку по публичному идентификатору в рамках сессии
func (q *ParcelQueries) GetByPublic(ctx context.Context, sessionID, publicID string) (*models.ParcelWithType, error) {
	return q.getOne(ctx, squirrel.Eq{"p.session_id": sessionID, "p.session_public_id": publicID})
}

func (q *ParcelQueries) getOne(ctx context.Context, where squirrel.Eq) (*models.ParcelWithType, error) {
	query := q.sq.
		Select(parcelColumns...).
		From("parcels p").
		Join("parcel_types t ON t.id = p.type_id").
		Where(where).
		Limit(1)

	qsql, args, err := query.ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build query: %w", err)
	}

	var parcel models.ParcelWithType
	err = q.db.QueryRowxContext(ctx, qsql, args...).StructScan(&parcel)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrParcelNotFound
		}
		return nil, fmt.Errorf("failed to get parcel: %w", err)
	}

	return &parcel, nil
}

// Paginate возвращает страницу посылок сессии (новые первыми) и общее количество.
// Поддерживает фильтры по типу и по факту наличия рассчитанной стоимости.
func (q *ParcelQueries) Paginate(ctx context.Context, sessionID string, params models.ParcelListQuery) ([]models.ParcelWithType, int, error) {
	where := q.listConditions(sessionID, params)

	// Отдельный запрос для подсчета общего количества
	countQuery, countArgs, err := q.sq.
		Select("COUNT(*)").
		From("parcels p").
		Where(where).
		ToSql()
	if err != nil {
		return nil, 0, fmt.Errorf("failed to build count query: %w", err)
	}

	var total int
	err = q.db.QueryRowContext(ctx, countQuery, countArgs...).Scan(&total)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to count parcels: %w", err)
	}

	offset := (params.Page - 1) * params.PerPage
	query, args, err := q.sq.
		Select(parcelColumns...).
		From("parcels p").
		Join("parcel_types t ON t.id = p.type_id").
		Where(where).
		OrderBy("p.id DESC").
		Limit(uint64(params.PerPage)).
		Offset(uint64(offset)).
		ToSql()
	if err != nil {
		return nil, 0, fmt.Errorf("failed to build query: %w", err)
	}

	var parcels []models.ParcelWithType
	err = q.db.SelectContext(ctx, &parcels, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to get parcels: %w", err)
	}

	return parcels, total, nil
}

func (q *ParcelQueries) listConditions(sessionID string, params models.ParcelListQuery) squirrel.And {
	where := squirrel.And{squirrel.Eq{"p.session_id": sessionID}}
	if params.TypeID != nil {
		where = append(where, squirrel.Eq{"p.type_id": *params.TypeID})
	}
	if params.HasCost != nil {
		if *params.HasCost {
			where = append(where, squirrel.NotEq{"p.cost_rub": nil})
		} else {
			where = append(where, squirrel.Eq{"p.cost_rub": nil})
		}
	}
	return where
}

// BindFirstWins привязывает перевозчика по принципу «первый победил»:
// одиночный атомарный UPDATE с предикатом shipping_company_id IS NULL.
// Возвращает число измененных строк; ноль означает «уже привязана или не найдена».
func (q *ParcelQueries) BindFirstWins(ctx context.Context, sessionID, publicID string, companyID int) (int64, error) {
	query := q.sq.
		Update("parcels").
		Set("shipping_company_id", companyID).
		Where(squirrel.Eq{
			"session_id":          sessionID,
			"session_public_id":   publicID,
			"shipping_company_id": nil,
		})

	qsql, args, err := query.ToSql()
	if err != nil {
		return 0, fmt.Errorf("failed to build query: %w", err)
	}

	result, err := q.db.ExecContext(ctx, qsql, args...)
	if err != nil {
		return 0, fmt.Errorf("failed to bind shipping company: %w", err)
	}

	changed, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}

	return changed, nil
}
