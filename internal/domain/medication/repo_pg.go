package medication

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/clinic/clinic/internal/platform/db"
	"github.com/clinic/clinic/internal/platform/lifecycle"
)

// -- Drug --

type drugRepoPG struct{ pool *pgxpool.Pool }

func NewDrugRepoPG(pool *pgxpool.Pool) DrugRepository { return &drugRepoPG{pool: pool} }

func (r *drugRepoPG) conn(ctx context.Context) db.Querier {
	if c := db.ConnFromContext(ctx); c != nil {
		return c
	}
	return r.pool
}

const drugCols = `id, name, unit, price, description, lifecycle, created_at, updated_at`

func scanDrug(row pgx.Row) (*Drug, error) {
	var d Drug
	err := row.Scan(&d.ID, &d.Name, &d.Unit, &d.Price, &d.Description, &d.Lifecycle, &d.CreatedAt, &d.UpdatedAt)
	return &d, err
}

func (r *drugRepoPG) Create(ctx context.Context, d *Drug) error {
	d.ID = uuid.New()
	d.Lifecycle = lifecycle.Active
	return r.conn(ctx).QueryRow(ctx, `
		INSERT INTO drugs (id, name, unit, price, description, lifecycle)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING created_at, updated_at`,
		d.ID, d.Name, d.Unit, d.Price, d.Description, d.Lifecycle).Scan(&d.CreatedAt, &d.UpdatedAt)
}

func (r *drugRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Drug, error) {
	return scanDrug(r.conn(ctx).QueryRow(ctx,
		`SELECT `+drugCols+` FROM drugs WHERE id = $1 AND lifecycle = 'active'`, id))
}

func (r *drugRepoPG) GetByName(ctx context.Context, name string) (*Drug, error) {
	return scanDrug(r.conn(ctx).QueryRow(ctx,
		`SELECT `+drugCols+` FROM drugs WHERE LOWER(name) = LOWER($1) AND lifecycle = 'active'`, name))
}

func (r *drugRepoPG) Update(ctx context.Context, d *Drug) error {
	return r.conn(ctx).QueryRow(ctx, `
		UPDATE drugs SET name = $2, unit = $3, price = $4, description = $5, updated_at = NOW()
		WHERE id = $1 AND lifecycle = 'active'
		RETURNING updated_at`,
		d.ID, d.Name, d.Unit, d.Price, d.Description).Scan(&d.UpdatedAt)
}

func (r *drugRepoPG) SoftDelete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.conn(ctx).Exec(ctx,
		`UPDATE drugs SET lifecycle = $2, updated_at = NOW() WHERE id = $1 AND lifecycle = 'active'`,
		id, lifecycle.Deleted)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func (r *drugRepoPG) Search(ctx context.Context, params map[string]string, limit, offset int) ([]*Drug, int, error) {
	where := ` WHERE lifecycle = 'active'`
	var args []interface{}
	idx := 1

	if p, ok := params["name"]; ok {
		where += fmt.Sprintf(` AND name ILIKE $%d`, idx)
		args = append(args, "%"+p+"%")
		idx++
	}

	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM drugs`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query := `SELECT ` + drugCols + ` FROM drugs` + where +
		fmt.Sprintf(` ORDER BY name LIMIT $%d OFFSET $%d`, idx, idx+1)
	args = append(args, limit, offset)

	rows, err := r.conn(ctx).Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var items []*Drug
	for rows.Next() {
		d, err := scanDrug(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, d)
	}
	return items, total, rows.Err()
}

// -- Stock --

type stockRepoPG struct{ pool *pgxpool.Pool }

func NewStockRepoPG(pool *pgxpool.Pool) StockRepository { return &stockRepoPG{pool: pool} }

func (r *stockRepoPG) conn(ctx context.Context) db.Querier {
	if c := db.ConnFromContext(ctx); c != nil {
		return c
	}
	return r.pool
}

func (r *stockRepoPG) Init(ctx context.Context, drugID uuid.UUID) error {
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO drug_stock (drug_id, quantity_available, last_updated)
		VALUES ($1, 0, NOW())
		ON CONFLICT (drug_id) DO NOTHING`, drugID)
	return err
}

func (r *stockRepoPG) List(ctx context.Context) ([]*StockLevel, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT d.id, d.name, d.unit, d.price, COALESCE(s.quantity_available, 0), s.last_updated
		FROM drugs d
		LEFT JOIN drug_stock s ON s.drug_id = d.id
		WHERE d.lifecycle = 'active'
		ORDER BY d.name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []*StockLevel
	for rows.Next() {
		var s StockLevel
		if err := rows.Scan(&s.DrugID, &s.Name, &s.Unit, &s.Price, &s.QuantityAvailable, &s.LastUpdated); err != nil {
			return nil, err
		}
		items = append(items, &s)
	}
	return items, rows.Err()
}

// Adjust locks the existing row so the returned before value is the one the
// update was computed from.
func (r *stockRepoPG) Adjust(ctx context.Context, drugID uuid.UUID, delta int) (before, after int, err error) {
	err = r.conn(ctx).QueryRow(ctx, `
		WITH prev AS (
			SELECT quantity_available FROM drug_stock WHERE drug_id = $1 FOR UPDATE
		)
		INSERT INTO drug_stock (drug_id, quantity_available, last_updated)
		VALUES ($1, GREATEST($2::int, 0), NOW())
		ON CONFLICT (drug_id) DO UPDATE
			SET quantity_available = GREATEST(drug_stock.quantity_available + $2::int, 0),
			    last_updated = NOW()
		RETURNING COALESCE((SELECT quantity_available FROM prev), 0), quantity_available`,
		drugID, delta).Scan(&before, &after)
	return before, after, err
}
