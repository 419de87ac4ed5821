package payer

import (
	"context"
	"encoding/json"
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

const payerCols = `id, name, payer_number, type, active, electronic_capable, preferred_method,
	timely_filing_days, billing_requirements, submission_configs,
	contact_email, contact_phone, notes, created_at, updated_at`

func (r *repoPG) Create(ctx context.Context, p *Payer) error {
	p.ID = uuid.New()
	reqs, cfgs, err := marshalPayerJSON(p)
	if err != nil {
		return fmt.Errorf("payer create: %w", err)
	}
	_, err = r.conn(ctx).Exec(ctx, `
		INSERT INTO payers (
			id, name, payer_number, type, active, electronic_capable, preferred_method,
			timely_filing_days, billing_requirements, submission_configs,
			contact_email, contact_phone, notes
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)`,
		p.ID, p.Name, p.PayerNumber, p.Type, p.Active, p.ElectronicCapable, p.PreferredMethod,
		p.TimelyFilingDays, reqs, cfgs,
		p.ContactEmail, p.ContactPhone, p.Notes,
	)
	return err
}

func (r *repoPG) GetByID(ctx context.Context, id uuid.UUID) (*Payer, error) {
	return scanPayer(r.conn(ctx).QueryRow(ctx, `SELECT `+payerCols+` FROM payers WHERE id = $1`, id))
}

func (r *repoPG) Update(ctx context.Context, p *Payer) error {
	reqs, cfgs, err := marshalPayerJSON(p)
	if err != nil {
		return fmt.Errorf("payer update: %w", err)
	}
	_, err = r.conn(ctx).Exec(ctx, `
		UPDATE payers SET
			name=$2, payer_number=$3, type=$4, active=$5, electronic_capable=$6, preferred_method=$7,
			timely_filing_days=$8, billing_requirements=$9, submission_configs=$10,
			contact_email=$11, contact_phone=$12, notes=$13, updated_at=NOW()
		WHERE id = $1`,
		p.ID, p.Name, p.PayerNumber, p.Type, p.Active, p.ElectronicCapable, p.PreferredMethod,
		p.TimelyFilingDays, reqs, cfgs,
		p.ContactEmail, p.ContactPhone, p.Notes,
	)
	return err
}

func (r *repoPG) SetActive(ctx context.Context, id uuid.UUID, active bool) error {
	_, err := r.conn(ctx).Exec(ctx, `UPDATE payers SET active=$2, updated_at=NOW() WHERE id = $1`, id, active)
	return err
}

func (r *repoPG) List(ctx context.Context, filter ListFilter, limit, offset int) ([]*Payer, int, error) {
	where := `WHERE 1=1`
	args := []interface{}{}
	idx := 1
	if filter.Active != nil {
		where += fmt.Sprintf(` AND active = $%d`, idx)
		args = append(args, *filter.Active)
		idx++
	}
	if filter.Type != "" {
		where += fmt.Sprintf(` AND type = $%d`, idx)
		args = append(args, filter.Type)
		idx++
	}
	if filter.Search != "" {
		where += fmt.Sprintf(` AND name ILIKE $%d`, idx)
		args = append(args, "%"+filter.Search+"%")
		idx++
	}

	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM payers `+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	dataArgs := append(args, limit, offset)
	rows, err := r.conn(ctx).Query(ctx,
		fmt.Sprintf(`SELECT %s FROM payers %s ORDER BY name LIMIT $%d OFFSET $%d`, payerCols, where, idx, idx+1),
		dataArgs...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var payers []*Payer
	for rows.Next() {
		p, err := scanPayerRows(rows)
		if err != nil {
			return nil, 0, err
		}
		payers = append(payers, p)
	}
	return payers, total, nil
}

func marshalPayerJSON(p *Payer) ([]byte, []byte, error) {
	reqs, err := json.Marshal(p.BillingRequirements)
	if err != nil {
		return nil, nil, err
	}
	cfgs, err := json.Marshal(p.SubmissionConfigs)
	if err != nil {
		return nil, nil, err
	}
	return reqs, cfgs, nil
}

func scanPayerFields(scan func(dest ...interface{}) error) (*Payer, error) {
	var p Payer
	var reqs, cfgs []byte
	err := scan(
		&p.ID, &p.Name, &p.PayerNumber, &p.Type, &p.Active, &p.ElectronicCapable, &p.PreferredMethod,
		&p.TimelyFilingDays, &reqs, &cfgs,
		&p.ContactEmail, &p.ContactPhone, &p.Notes, &p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if len(reqs) > 0 {
		if err := json.Unmarshal(reqs, &p.BillingRequirements); err != nil {
			return nil, fmt.Errorf("payer billing_requirements: %w", err)
		}
	}
	if len(cfgs) > 0 {
		if err := json.Unmarshal(cfgs, &p.SubmissionConfigs); err != nil {
			return nil, fmt.Errorf("payer submission_configs: %w", err)
		}
	}
	return &p, nil
}

func scanPayer(row pgx.Row) (*Payer, error) {
	return scanPayerFields(row.Scan)
}

func scanPayerRows(rows pgx.Rows) (*Payer, error) {
	return scanPayerFields(rows.Scan)
}

type querier interface {
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
}
