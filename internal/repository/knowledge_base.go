package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/srv328/coffee-classification/internal/models"
)

// KnowledgeBaseRepository stores coffee types, characteristics and the
// ranges and values assigned to each type. Every write moves the knowledge
// base version returned by LastModified forward.
type KnowledgeBaseRepository interface {
	ListCoffeeTypes(ctx context.Context) ([]models.CoffeeType, error)
	GetCoffeeType(ctx context.Context, id int64) (*models.CoffeeType, error)
	ListCharacteristics(ctx context.Context) ([]models.Characteristic, error)
	GetCharacteristic(ctx context.Context, id int64) (*models.Characteristic, error)
	ListCategoricalVocabulary(ctx context.Context, characteristicID int64) ([]string, error)
	ListNumericAssignments(ctx context.Context, coffeeTypeID *int64) ([]models.NumericAssignment, error)
	ListCategoricalAssignments(ctx context.Context, coffeeTypeID *int64) ([]models.CategoricalAssignment, error)
	LastModified(ctx context.Context) (time.Time, error)
	LoadCatalog(ctx context.Context) (*models.Catalog, error)

	CreateCoffeeType(ctx context.Context, name string) (*models.CoffeeType, error)
	DeleteCoffeeType(ctx context.Context, id int64) error
	CreateCharacteristic(ctx context.Context, ch *models.Characteristic) error
	DeleteCharacteristic(ctx context.Context, id int64) error
	SetNumericLimits(ctx context.Context, characteristicID int64, limits *models.NumericLimits) error
	ReplaceVocabulary(ctx context.Context, characteristicID int64, values []string) error
	UpsertNumericAssignment(ctx context.Context, a *models.NumericAssignment) error
	SetCategoricalAssignment(ctx context.Context, coffeeTypeID, characteristicID int64, values []string) error
	DeleteAssignment(ctx context.Context, coffeeTypeID, characteristicID int64) error
}

type knowledgeBaseRepository struct {
	db     *sqlx.DB
	logger *zap.Logger
	now    func() time.Time
}

func NewKnowledgeBaseRepository(db *sqlx.DB, logger *zap.Logger) KnowledgeBaseRepository {
	return &knowledgeBaseRepository{db: db, logger: logger, now: time.Now}
}

func (r *knowledgeBaseRepository) ListCoffeeTypes(ctx context.Context) ([]models.CoffeeType, error) {
	return listCoffeeTypes(ctx, r.db)
}

func (r *knowledgeBaseRepository) GetCoffeeType(ctx context.Context, id int64) (*models.CoffeeType, error) {
	var ct models.CoffeeType
	query := r.db.Rebind(`SELECT id, name, created_at, updated_at FROM coffee_types WHERE id = ?`)
	if err := r.db.GetContext(ctx, &ct, query, id); err != nil {
		return nil, translateError(err)
	}
	return &ct, nil
}

func (r *knowledgeBaseRepository) ListCharacteristics(ctx context.Context) ([]models.Characteristic, error) {
	return listCharacteristics(ctx, r.db)
}

func (r *knowledgeBaseRepository) GetCharacteristic(ctx context.Context, id int64) (*models.Characteristic, error) {
	chars, err := listCharacteristics(ctx, r.db)
	if err != nil {
		return nil, err
	}
	for i := range chars {
		if chars[i].ID == id {
			return &chars[i], nil
		}
	}
	return nil, ErrNotFound
}

func (r *knowledgeBaseRepository) ListCategoricalVocabulary(ctx context.Context, characteristicID int64) ([]string, error) {
	values := []string{}
	query := r.db.Rebind(`SELECT value FROM categorical_values WHERE characteristic_id = ? ORDER BY value`)
	if err := r.db.SelectContext(ctx, &values, query, characteristicID); err != nil {
		return nil, err
	}
	return values, nil
}

func (r *knowledgeBaseRepository) ListNumericAssignments(ctx context.Context, coffeeTypeID *int64) ([]models.NumericAssignment, error) {
	return listNumericAssignments(ctx, r.db, coffeeTypeID)
}

func (r *knowledgeBaseRepository) ListCategoricalAssignments(ctx context.Context, coffeeTypeID *int64) ([]models.CategoricalAssignment, error) {
	return listCategoricalAssignments(ctx, r.db, coffeeTypeID)
}

func (r *knowledgeBaseRepository) LastModified(ctx context.Context) (time.Time, error) {
	return lastModified(ctx, r.db)
}

// LoadCatalog reads the whole knowledge base inside one transaction.
func (r *knowledgeBaseRepository) LoadCatalog(ctx context.Context) (*models.Catalog, error) {
	var opts *sql.TxOptions
	if r.db.DriverName() == DriverPostgres {
		opts = &sql.TxOptions{Isolation: sql.LevelRepeatableRead, ReadOnly: true}
	}
	tx, err := r.db.BeginTxx(ctx, opts)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	c := &models.Catalog{}
	if c.Version, err = lastModified(ctx, tx); err != nil {
		return nil, err
	}
	if c.Types, err = listCoffeeTypes(ctx, tx); err != nil {
		return nil, err
	}
	if c.Characteristics, err = listCharacteristics(ctx, tx); err != nil {
		return nil, err
	}
	if c.Numeric, err = listNumericAssignments(ctx, tx, nil); err != nil {
		return nil, err
	}
	if c.Categorical, err = listCategoricalAssignments(ctx, tx, nil); err != nil {
		return nil, err
	}
	return c, nil
}

func (r *knowledgeBaseRepository) CreateCoffeeType(ctx context.Context, name string) (*models.CoffeeType, error) {
	ct := &models.CoffeeType{Name: name}
	err := r.mutate(ctx, func(tx *sqlx.Tx, now time.Time) error {
		ct.CreatedAt, ct.UpdatedAt = now, now
		query := tx.Rebind(`INSERT INTO coffee_types (name, created_at, updated_at) VALUES (?, ?, ?) RETURNING id`)
		return tx.QueryRowxContext(ctx, query, name, now, now).Scan(&ct.ID)
	})
	if err != nil {
		return nil, err
	}
	r.logger.Info("Coffee type created", zap.Int64("id", ct.ID), zap.String("name", name))
	return ct, nil
}

func (r *knowledgeBaseRepository) DeleteCoffeeType(ctx context.Context, id int64) error {
	return r.mutate(ctx, func(tx *sqlx.Tx, _ time.Time) error {
		return execOne(ctx, tx, `DELETE FROM coffee_types WHERE id = ?`, id)
	})
}

// CreateCharacteristic inserts ch together with its limits or vocabulary and
// sets ch.ID.
func (r *knowledgeBaseRepository) CreateCharacteristic(ctx context.Context, ch *models.Characteristic) error {
	return r.mutate(ctx, func(tx *sqlx.Tx, now time.Time) error {
		query := tx.Rebind(`INSERT INTO characteristics (name, type, created_at, updated_at) VALUES (?, ?, ?, ?) RETURNING id`)
		if err := tx.QueryRowxContext(ctx, query, ch.Name, ch.Kind, now, now).Scan(&ch.ID); err != nil {
			return err
		}
		if ch.Kind == models.KindNumeric && ch.Limits != nil {
			if err := upsertLimits(ctx, tx, ch.ID, ch.Limits); err != nil {
				return err
			}
		}
		for _, v := range ch.Values {
			if _, err := tx.ExecContext(ctx,
				tx.Rebind(`INSERT INTO categorical_values (characteristic_id, value) VALUES (?, ?)`), ch.ID, v); err != nil {
				return err
			}
		}
		return nil
	})
}

func (r *knowledgeBaseRepository) DeleteCharacteristic(ctx context.Context, id int64) error {
	return r.mutate(ctx, func(tx *sqlx.Tx, _ time.Time) error {
		return execOne(ctx, tx, `DELETE FROM characteristics WHERE id = ?`, id)
	})
}

// SetNumericLimits replaces the global bounds of a numeric characteristic.
// nil removes them.
func (r *knowledgeBaseRepository) SetNumericLimits(ctx context.Context, characteristicID int64, limits *models.NumericLimits) error {
	return r.mutate(ctx, func(tx *sqlx.Tx, now time.Time) error {
		if err := touchCharacteristic(ctx, tx, characteristicID, now); err != nil {
			return err
		}
		if limits == nil {
			_, err := tx.ExecContext(ctx,
				tx.Rebind(`DELETE FROM numeric_characteristic_limits WHERE characteristic_id = ?`), characteristicID)
			return err
		}
		return upsertLimits(ctx, tx, characteristicID, limits)
	})
}

// ReplaceVocabulary sets the legal values of a categorical characteristic.
// Assignments of removed values are deleted with them.
func (r *knowledgeBaseRepository) ReplaceVocabulary(ctx context.Context, characteristicID int64, values []string) error {
	return r.mutate(ctx, func(tx *sqlx.Tx, now time.Time) error {
		if err := touchCharacteristic(ctx, tx, characteristicID, now); err != nil {
			return err
		}

		if len(values) == 0 {
			_, err := tx.ExecContext(ctx,
				tx.Rebind(`DELETE FROM categorical_values WHERE characteristic_id = ?`), characteristicID)
			return err
		}

		query, args, err := sqlx.In(`DELETE FROM categorical_values WHERE characteristic_id = ? AND value NOT IN (?)`,
			characteristicID, values)
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, tx.Rebind(query), args...); err != nil {
			return err
		}

		insert := tx.Rebind(`INSERT INTO categorical_values (characteristic_id, value) VALUES (?, ?)
			ON CONFLICT (characteristic_id, value) DO NOTHING`)
		for _, v := range values {
			if _, err := tx.ExecContext(ctx, insert, characteristicID, v); err != nil {
				return err
			}
		}
		return nil
	})
}

// UpsertNumericAssignment sets the range of a numeric characteristic for a
// coffee type, replacing an existing one.
func (r *knowledgeBaseRepository) UpsertNumericAssignment(ctx context.Context, a *models.NumericAssignment) error {
	return r.mutate(ctx, func(tx *sqlx.Tx, now time.Time) error {
		a.UpdatedAt = now
		query := tx.Rebind(`
			INSERT INTO coffee_numeric_characteristics
				(coffee_type_id, characteristic_id, min_value, max_value, updated_at)
			VALUES (?, ?, ?, ?, ?)
			ON CONFLICT (coffee_type_id, characteristic_id) DO UPDATE
			SET min_value = excluded.min_value,
			    max_value = excluded.max_value,
			    updated_at = excluded.updated_at`)
		_, err := tx.ExecContext(ctx, query, a.CoffeeTypeID, a.CharacteristicID, a.MinValue, a.MaxValue, now)
		return err
	})
}

// SetCategoricalAssignment replaces the accepted values of a categorical
// characteristic for a coffee type. An empty list removes the assignment.
func (r *knowledgeBaseRepository) SetCategoricalAssignment(ctx context.Context, coffeeTypeID, characteristicID int64, values []string) error {
	return r.mutate(ctx, func(tx *sqlx.Tx, now time.Time) error {
		if _, err := tx.ExecContext(ctx,
			tx.Rebind(`DELETE FROM coffee_categorical_characteristics WHERE coffee_type_id = ? AND characteristic_id = ?`),
			coffeeTypeID, characteristicID); err != nil {
			return err
		}
		insert := tx.Rebind(`
			INSERT INTO coffee_categorical_characteristics (coffee_type_id, characteristic_id, value, updated_at)
			VALUES (?, ?, ?, ?)`)
		for _, v := range values {
			if _, err := tx.ExecContext(ctx, insert, coffeeTypeID, characteristicID, v, now); err != nil {
				return err
			}
		}
		return nil
	})
}

// DeleteAssignment removes whatever a coffee type has assigned for a characteristic.
func (r *knowledgeBaseRepository) DeleteAssignment(ctx context.Context, coffeeTypeID, characteristicID int64) error {
	return r.mutate(ctx, func(tx *sqlx.Tx, _ time.Time) error {
		var total int64
		for _, table := range []string{"coffee_numeric_characteristics", "coffee_categorical_characteristics"} {
			res, err := tx.ExecContext(ctx,
				tx.Rebind(`DELETE FROM `+table+` WHERE coffee_type_id = ? AND characteristic_id = ?`),
				coffeeTypeID, characteristicID)
			if err != nil {
				return err
			}
			n, err := res.RowsAffected()
			if err != nil {
				return err
			}
			total += n
		}
		if total == 0 {
			return sql.ErrNoRows
		}
		return nil
	})
}

// mutate runs fn in a transaction and advances the knowledge base version in
// the same transaction.
func (r *knowledgeBaseRepository) mutate(ctx context.Context, fn func(tx *sqlx.Tx, now time.Time) error) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	now := r.now().UTC().Truncate(time.Microsecond)
	if err := fn(tx, now); err != nil {
		return translateError(err)
	}
	if err := bumpVersion(ctx, tx, now); err != nil {
		return fmt.Errorf("bump knowledge base version: %w", err)
	}
	return tx.Commit()
}

// bumpVersion sets the version to now, or just past the previous one when the
// clock has not moved, so every committed write is observable.
func bumpVersion(ctx context.Context, tx *sqlx.Tx, now time.Time) error {
	// Taking the row lock first serialises concurrent writers on postgres.
	if _, err := tx.ExecContext(ctx, `UPDATE knowledge_base_state SET revision = revision + 1 WHERE id = 1`); err != nil {
		return err
	}
	prev, err := lastModified(ctx, tx)
	if err != nil {
		return err
	}
	next := now
	if !next.After(prev) {
		next = prev.UTC().Add(time.Microsecond)
	}
	_, err = tx.ExecContext(ctx, tx.Rebind(`UPDATE knowledge_base_state SET updated_at = ? WHERE id = 1`), next)
	return err
}

func lastModified(ctx context.Context, q sqlx.QueryerContext) (time.Time, error) {
	var t time.Time
	if err := sqlx.GetContext(ctx, q, &t, `SELECT updated_at FROM knowledge_base_state WHERE id = 1`); err != nil {
		return time.Time{}, fmt.Errorf("read knowledge base version: %w", err)
	}
	return t, nil
}

func listCoffeeTypes(ctx context.Context, q sqlx.QueryerContext) ([]models.CoffeeType, error) {
	types := []models.CoffeeType{}
	err := sqlx.SelectContext(ctx, q, &types, `SELECT id, name, created_at, updated_at FROM coffee_types ORDER BY id`)
	return types, err
}

func listCharacteristics(ctx context.Context, q sqlx.QueryerContext) ([]models.Characteristic, error) {
	chars := []models.Characteristic{}
	if err := sqlx.SelectContext(ctx, q, &chars, `SELECT id, name, type FROM characteristics ORDER BY id`); err != nil {
		return nil, err
	}

	var limits []struct {
		CharacteristicID int64 `db:"characteristic_id"`
		models.NumericLimits
	}
	if err := sqlx.SelectContext(ctx, q, &limits,
		`SELECT characteristic_id, min_value, max_value FROM numeric_characteristic_limits`); err != nil {
		return nil, err
	}

	var values []struct {
		CharacteristicID int64  `db:"characteristic_id"`
		Value            string `db:"value"`
	}
	if err := sqlx.SelectContext(ctx, q, &values,
		`SELECT characteristic_id, value FROM categorical_values ORDER BY characteristic_id, value`); err != nil {
		return nil, err
	}

	byID := make(map[int64]*models.Characteristic, len(chars))
	for i := range chars {
		byID[chars[i].ID] = &chars[i]
	}
	for _, l := range limits {
		if ch, ok := byID[l.CharacteristicID]; ok {
			lim := l.NumericLimits
			ch.Limits = &lim
		}
	}
	for _, v := range values {
		if ch, ok := byID[v.CharacteristicID]; ok {
			ch.Values = append(ch.Values, v.Value)
		}
	}
	return chars, nil
}

func listNumericAssignments(ctx context.Context, q sqlx.ExtContext, coffeeTypeID *int64) ([]models.NumericAssignment, error) {
	query := `SELECT coffee_type_id, characteristic_id, min_value, max_value, updated_at FROM coffee_numeric_characteristics`
	var args []any
	if coffeeTypeID != nil {
		query += ` WHERE coffee_type_id = ?`
		args = append(args, *coffeeTypeID)
	}
	query += ` ORDER BY coffee_type_id, characteristic_id`

	out := []models.NumericAssignment{}
	err := sqlx.SelectContext(ctx, q, &out, q.Rebind(query), args...)
	return out, err
}

func listCategoricalAssignments(ctx context.Context, q sqlx.ExtContext, coffeeTypeID *int64) ([]models.CategoricalAssignment, error) {
	query := `SELECT coffee_type_id, characteristic_id, value, updated_at FROM coffee_categorical_characteristics`
	var args []any
	if coffeeTypeID != nil {
		query += ` WHERE coffee_type_id = ?`
		args = append(args, *coffeeTypeID)
	}
	query += ` ORDER BY coffee_type_id, characteristic_id, value`

	out := []models.CategoricalAssignment{}
	err := sqlx.SelectContext(ctx, q, &out, q.Rebind(query), args...)
	return out, err
}

func upsertLimits(ctx context.Context, tx *sqlx.Tx, characteristicID int64, limits *models.NumericLimits) error {
	query := tx.Rebind(`
		INSERT INTO numeric_characteristic_limits (characteristic_id, min_value, max_value)
		VALUES (?, ?, ?)
		ON CONFLICT (characteristic_id) DO UPDATE
		SET min_value = excluded.min_value, max_value = excluded.max_value`)
	_, err := tx.ExecContext(ctx, query, characteristicID, limits.MinValue, limits.MaxValue)
	return err
}

func touchCharacteristic(ctx context.Context, tx *sqlx.Tx, id int64, now time.Time) error {
	return execOne(ctx, tx, `UPDATE characteristics SET updated_at = ? WHERE id = ?`, now, id)
}

// execOne runs a statement that must affect at least one row.
func execOne(ctx context.Context, tx *sqlx.Tx, query string, args ...any) error {
	res, err := tx.ExecContext(ctx, tx.Rebind(query), args...)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return sql.ErrNoRows
	}
	return nil
}
