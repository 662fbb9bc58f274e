package billing

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/clinic/clinic/internal/platform/db"
)

type repoPG struct{ pool *pgxpool.Pool }

func NewRepoPG(pool *pgxpool.Pool) Repository { return &repoPG{pool: pool} }

func (r *repoPG) conn(ctx context.Context) db.Querier {
	if c := db.ConnFromContext(ctx); c != nil {
		return c
	}
	return r.pool
}

const invoiceSelect = `SELECT i.id, i.encounter_id, i.patient_id, COALESCE(p.full_name, ''),
	i.service_fee, i.drug_fee, i.total, i.status, i.payment_method, i.paid_at, i.created_at
	FROM invoices i
	LEFT JOIN patients p ON p.id = i.patient_id`

func scanInvoice(row pgx.Row) (*Invoice, error) {
	var inv Invoice
	err := row.Scan(&inv.ID, &inv.EncounterID, &inv.PatientID, &inv.PatientName,
		&inv.ServiceFee, &inv.DrugFee, &inv.Total, &inv.Status, &inv.PaymentMethod, &inv.PaidAt, &inv.CreatedAt)
	inv.StatusLabel = StatusLabel(inv.Status)
	return &inv, err
}

func (r *repoPG) Create(ctx context.Context, inv *Invoice) error {
	inv.ID = uuid.New()
	if inv.Status == "" {
		inv.Status = StatusUnpaid
	}
	inv.StatusLabel = StatusLabel(inv.Status)
	return r.conn(ctx).QueryRow(ctx, `
		INSERT INTO invoices (id, encounter_id, patient_id, service_fee, drug_fee, total, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING created_at`,
		inv.ID, inv.EncounterID, inv.PatientID, inv.ServiceFee, inv.DrugFee, inv.Total, inv.Status).Scan(&inv.CreatedAt)
}

func (r *repoPG) GetByID(ctx context.Context, id uuid.UUID) (*Invoice, error) {
	return scanInvoice(r.conn(ctx).QueryRow(ctx, invoiceSelect+` WHERE i.id = $1`, id))
}

func (r *repoPG) GetDetail(ctx context.Context, id uuid.UUID) (*InvoiceDetail, error) {
	q := r.conn(ctx)
	var d InvoiceDetail
	err := q.QueryRow(ctx, `
		SELECT i.id, i.encounter_id, i.patient_id, COALESCE(p.full_name, ''),
			i.service_fee, i.drug_fee, i.total, i.status, i.payment_method, i.paid_at, i.created_at,
			e.encounter_date, COALESCE(d.full_name, ''), e.notes, e.diagnosis
		FROM invoices i
		JOIN encounters e ON e.id = i.encounter_id
		LEFT JOIN patients p ON p.id = i.patient_id
		LEFT JOIN doctors d ON d.id = e.doctor_id
		WHERE i.id = $1`, id).Scan(
		&d.ID, &d.EncounterID, &d.PatientID, &d.PatientName,
		&d.ServiceFee, &d.DrugFee, &d.Total, &d.Status, &d.PaymentMethod, &d.PaidAt, &d.CreatedAt,
		&d.EncounterDate, &d.DoctorName, &d.Notes, &d.Diagnosis)
	if err != nil {
		return nil, err
	}
	d.StatusLabel = StatusLabel(d.Status)

	rows, err := q.Query(ctx, `
		SELECT pi.drug_id, COALESCE(dr.name, ''), pi.quantity, pi.unit_price, pi.usage
		FROM prescription_items pi
		LEFT JOIN drugs dr ON dr.id = pi.drug_id
		WHERE pi.encounter_id = $1
		ORDER BY dr.name`, d.EncounterID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	d.Items = []*LineItem{}
	for rows.Next() {
		var li LineItem
		if err := rows.Scan(&li.DrugID, &li.DrugName, &li.Quantity, &li.UnitPrice, &li.Usage); err != nil {
			return nil, err
		}
		li.Amount = lineAmount(li.Quantity, li.UnitPrice)
		d.Items = append(d.Items, &li)
	}
	return &d, rows.Err()
}

func (r *repoPG) MarkPaid(ctx context.Context, id uuid.UUID, method string, at time.Time) error {
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE invoices SET status = $2, payment_method = $3, paid_at = $4
		WHERE id = $1 AND status = $5`,
		id, StatusPaid, method, at, StatusUnpaid)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func (r *repoPG) Search(ctx context.Context, params map[string]string, limit, offset int) ([]*Invoice, int, error) {
	where := ` WHERE 1=1`
	var args []interface{}
	idx := 1

	if p, ok := params["status"]; ok {
		where += fmt.Sprintf(` AND i.status = $%d`, idx)
		args = append(args, p)
		idx++
	}
	if p, ok := params["patient_id"]; ok {
		where += fmt.Sprintf(` AND i.patient_id = $%d`, idx)
		args = append(args, p)
		idx++
	}

	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM invoices i`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query := invoiceSelect + where + fmt.Sprintf(` ORDER BY i.created_at DESC LIMIT $%d OFFSET $%d`, idx, idx+1)
	args = append(args, limit, offset)

	rows, err := r.conn(ctx).Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var items []*Invoice
	for rows.Next() {
		inv, err := scanInvoice(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, inv)
	}
	return items, total, rows.Err()
}
