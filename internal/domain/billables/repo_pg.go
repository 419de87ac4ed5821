package billables

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/claimflow/claimflow/internal/platform/db"
)

type repoPG struct {
	pool *pgxpool.Pool
}

func NewRepo(pool *pgxpool.Pool) Repository {
	return &repoPG{pool: pool}
}

func (r *repoPG) conn(ctx context.Context) querier {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	return r.pool
}

const serviceCols = `id, client_id, service_code, description, service_date, units, rate, amount,
	documentation_complete, billing_status, claim_id, created_at, updated_at`

func (r *repoPG) Create(ctx context.Context, s *ServiceRecord) error {
	s.ID = uuid.New()
	if s.BillingStatus == "" {
		s.BillingStatus = BillingReady
	}
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO billable_services (
			id, client_id, service_code, description, service_date, units, rate, amount,
			documentation_complete, billing_status, claim_id
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)`,
		s.ID, s.ClientID, s.ServiceCode, s.Description, s.ServiceDate, s.Units, s.Rate, s.Amount,
		s.DocumentationComplete, s.BillingStatus, s.ClaimID,
	)
	return err
}

func (r *repoPG) GetByID(ctx context.Context, id uuid.UUID) (*ServiceRecord, error) {
	return scanService(r.conn(ctx).QueryRow(ctx, `SELECT `+serviceCols+` FROM billable_services WHERE id = $1`, id))
}

func (r *repoPG) GetByIDs(ctx context.Context, ids []uuid.UUID) ([]*ServiceRecord, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	rows, err := r.conn(ctx).Query(ctx,
		`SELECT `+serviceCols+` FROM billable_services WHERE id = ANY($1) ORDER BY service_date`, ids)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectServices(rows)
}

func (r *repoPG) Update(ctx context.Context, s *ServiceRecord) error {
	_, err := r.conn(ctx).Exec(ctx, `
		UPDATE billable_services SET
			client_id=$2, service_code=$3, description=$4, service_date=$5, units=$6, rate=$7, amount=$8,
			documentation_complete=$9, billing_status=$10, claim_id=$11, updated_at=NOW()
		WHERE id = $1`,
		s.ID, s.ClientID, s.ServiceCode, s.Description, s.ServiceDate, s.Units, s.Rate, s.Amount,
		s.DocumentationComplete, s.BillingStatus, s.ClaimID,
	)
	return err
}

func (r *repoPG) Delete(ctx context.Context, id uuid.UUID) error {
	_, err := r.conn(ctx).Exec(ctx, `DELETE FROM billable_services WHERE id = $1`, id)
	return err
}

func (r *repoPG) ListByClient(ctx context.Context, clientID uuid.UUID, limit, offset int) ([]*ServiceRecord, int, error) {
	var total int
	if err := r.conn(ctx).QueryRow(ctx,
		`SELECT COUNT(*) FROM billable_services WHERE client_id = $1`, clientID).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := r.conn(ctx).Query(ctx,
		`SELECT `+serviceCols+` FROM billable_services WHERE client_id = $1 ORDER BY service_date DESC LIMIT $2 OFFSET $3`,
		clientID, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	records, err := collectServices(rows)
	return records, total, err
}

func (r *repoPG) ListReady(ctx context.Context, clientID *uuid.UUID, limit, offset int) ([]*ServiceRecord, int, error) {
	where := `WHERE billing_status = $1`
	args := []interface{}{BillingReady}
	if clientID != nil {
		where += ` AND client_id = $2`
		args = append(args, *clientID)
	}

	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM billable_services `+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	dataArgs := append(args, limit, offset)
	rows, err := r.conn(ctx).Query(ctx,
		fmt.Sprintf(`SELECT %s FROM billable_services %s ORDER BY service_date LIMIT $%d OFFSET $%d`,
			serviceCols, where, len(args)+1, len(args)+2),
		dataArgs...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	records, err := collectServices(rows)
	return records, total, err
}

func (r *repoPG) SetBillingStatus(ctx context.Context, id uuid.UUID, status string, claimID *uuid.UUID) error {
	_, err := r.conn(ctx).Exec(ctx,
		`UPDATE billable_services SET billing_status=$2, claim_id=$3, updated_at=NOW() WHERE id = $1`,
		id, status, claimID)
	return err
}

func scanService(row pgx.Row) (*ServiceRecord, error) {
	var s ServiceRecord
	err := row.Scan(
		&s.ID, &s.ClientID, &s.ServiceCode, &s.Description, &s.ServiceDate, &s.Units, &s.Rate, &s.Amount,
		&s.DocumentationComplete, &s.BillingStatus, &s.ClaimID, &s.CreatedAt, &s.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &s, nil
}

func collectServices(rows pgx.Rows) ([]*ServiceRecord, error) {
	var records []*ServiceRecord
	for rows.Next() {
		var s ServiceRecord
		if err := rows.Scan(
			&s.ID, &s.ClientID, &s.ServiceCode, &s.Description, &s.ServiceDate, &s.Units, &s.Rate, &s.Amount,
			&s.DocumentationComplete, &s.BillingStatus, &s.ClaimID, &s.CreatedAt, &s.UpdatedAt,
		); err != nil {
			return nil, err
		}
		records = append(records, &s)
	}
	return records, rows.Err()
}

type querier interface {
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
}
