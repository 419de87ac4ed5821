package claims

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgerrcode"
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

const claimCols = `id, claim_number, external_claim_id, client_id, payer_id, type, status,
	total_amount, service_start_date, service_end_date,
	submission_method, submission_date, adjudication_date, paid_amount,
	denial_reason, denial_details, adjustment_codes, original_claim_id, notes,
	created_by, updated_by, created_at, updated_at`

func (r *repoPG) Create(ctx context.Context, c *Claim) error {
	c.ID = uuid.New()
	if c.Status == "" {
		c.Status = StatusDraft
	}
	codes, err := json.Marshal(c.AdjustmentCodes)
	if err != nil {
		return fmt.Errorf("claim adjustment_codes: %w", err)
	}
	_, err = r.conn(ctx).Exec(ctx, `
		INSERT INTO claims (
			id, claim_number, external_claim_id, client_id, payer_id, type, status,
			total_amount, service_start_date, service_end_date,
			submission_method, submission_date, adjudication_date, paid_amount,
			denial_reason, denial_details, adjustment_codes, original_claim_id, notes,
			created_by, updated_by
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20,$21)`,
		c.ID, c.ClaimNumber, c.ExternalClaimID, c.ClientID, c.PayerID, c.Type, c.Status,
		c.TotalAmount, c.ServiceStartDate, c.ServiceEndDate,
		c.SubmissionMethod, c.SubmissionDate, c.AdjudicationDate, c.PaidAmount,
		c.DenialReason, c.DenialDetails, codes, c.OriginalClaimID, c.Notes,
		c.CreatedBy, c.UpdatedBy,
	)
	return classifyPG("claim", err)
}

func (r *repoPG) GetByID(ctx context.Context, id uuid.UUID) (*Claim, error) {
	c, err := scanClaim(r.conn(ctx).QueryRow(ctx, `SELECT `+claimCols+` FROM claims WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, notFound("claim", id)
	}
	return c, err
}

func (r *repoPG) GetByIDs(ctx context.Context, ids []uuid.UUID) ([]*Claim, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	rows, err := r.conn(ctx).Query(ctx, `SELECT `+claimCols+` FROM claims WHERE id = ANY($1)`, ids)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectClaims(rows)
}

func (r *repoPG) GetByNumber(ctx context.Context, number string) (*Claim, error) {
	c, err := scanClaim(r.conn(ctx).QueryRow(ctx, `SELECT `+claimCols+` FROM claims WHERE claim_number = $1`, number))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, &NotFoundError{Resource: "claim", ID: number}
	}
	return c, err
}

func (r *repoPG) Update(ctx context.Context, c *Claim) error {
	codes, err := json.Marshal(c.AdjustmentCodes)
	if err != nil {
		return fmt.Errorf("claim adjustment_codes: %w", err)
	}
	_, err = r.conn(ctx).Exec(ctx, `
		UPDATE claims SET
			external_claim_id=$2, client_id=$3, payer_id=$4, type=$5,
			total_amount=$6, service_start_date=$7, service_end_date=$8,
			submission_method=$9, submission_date=$10, adjudication_date=$11, paid_amount=$12,
			denial_reason=$13, denial_details=$14, adjustment_codes=$15, original_claim_id=$16,
			notes=$17, updated_by=$18, updated_at=NOW()
		WHERE id = $1`,
		c.ID, c.ExternalClaimID, c.ClientID, c.PayerID, c.Type,
		c.TotalAmount, c.ServiceStartDate, c.ServiceEndDate,
		c.SubmissionMethod, c.SubmissionDate, c.AdjudicationDate, c.PaidAmount,
		c.DenialReason, c.DenialDetails, codes, c.OriginalClaimID,
		c.Notes, c.UpdatedBy,
	)
	return classifyPG("claim", err)
}

func (r *repoPG) List(ctx context.Context, filter Filter, limit, offset int) ([]*Claim, int, error) {
	where := `WHERE 1=1`
	args := []interface{}{}
	idx := 1
	add := func(clause string, v interface{}) {
		where += fmt.Sprintf(clause, idx)
		args = append(args, v)
		idx++
	}
	if filter.ClientID != nil {
		add(` AND client_id = $%d`, *filter.ClientID)
	}
	if filter.PayerID != nil {
		add(` AND payer_id = $%d`, *filter.PayerID)
	}
	if filter.Status != "" {
		add(` AND status = $%d`, filter.Status)
	}
	if filter.Type != "" {
		add(` AND type = $%d`, filter.Type)
	}
	if filter.Search != "" {
		add(` AND claim_number ILIKE $%d`, "%"+filter.Search+"%")
	}

	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM claims `+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	dataArgs := append(args, limit, offset)
	rows, err := r.conn(ctx).Query(ctx,
		fmt.Sprintf(`SELECT %s FROM claims %s ORDER BY created_at DESC LIMIT $%d OFFSET $%d`, claimCols, where, idx, idx+1),
		dataArgs...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	result, err := collectClaims(rows)
	return result, total, err
}

func (r *repoPG) CompareAndSetStatus(ctx context.Context, id uuid.UUID, expected, next Status) (bool, error) {
	tag, err := r.conn(ctx).Exec(ctx,
		`UPDATE claims SET status=$3, updated_at=NOW() WHERE id = $1 AND status = $2`,
		id, expected, next)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (r *repoPG) UpdateSubmissionDetails(ctx context.Context, id uuid.UUID, method string, date time.Time, externalID *string) error {
	_, err := r.conn(ctx).Exec(ctx, `
		UPDATE claims SET
			submission_method=$2, submission_date=$3,
			external_claim_id=COALESCE($4, external_claim_id),
			updated_at=NOW()
		WHERE id = $1`,
		id, method, date, externalID)
	return err
}

func (r *repoPG) UpdateAdjudication(ctx context.Context, id uuid.UUID, data TransitionData, when time.Time) error {
	codes, err := json.Marshal(data.AdjustmentCodes)
	if err != nil {
		return fmt.Errorf("claim adjustment_codes: %w", err)
	}
	_, err = r.conn(ctx).Exec(ctx, `
		UPDATE claims SET
			adjudication_date=$2, paid_amount=COALESCE($3, paid_amount),
			denial_reason=COALESCE($4, denial_reason),
			denial_details=COALESCE($5, denial_details),
			adjustment_codes=CASE WHEN $6::jsonb = 'null'::jsonb THEN adjustment_codes ELSE $6::jsonb END,
			updated_by=COALESCE($7, updated_by), updated_at=NOW()
		WHERE id = $1`,
		id, when, data.PaidAmount, data.DenialReason, data.DenialDetails, codes, data.ActorID)
	return err
}

func (r *repoPG) UpdateTotal(ctx context.Context, id uuid.UUID, total float64) error {
	_, err := r.conn(ctx).Exec(ctx,
		`UPDATE claims SET total_amount=$2, updated_at=NOW() WHERE id = $1`, id, total)
	return err
}

func (r *repoPG) Aging(ctx context.Context) ([]AgingBucket, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT c.payer_id, p.name, c.status, COUNT(*), COALESCE(SUM(c.total_amount), 0),
			COALESCE(MAX(EXTRACT(DAY FROM NOW() - c.created_at))::int, 0),
			COALESCE(AVG(EXTRACT(DAY FROM NOW() - c.created_at)), 0)
		FROM claims c
		JOIN payers p ON p.id = c.payer_id
		WHERE c.status NOT IN ($1, $2)
		GROUP BY c.payer_id, p.name, c.status
		ORDER BY p.name, c.status`,
		StatusPaid, StatusVoid)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var buckets []AgingBucket
	for rows.Next() {
		var b AgingBucket
		if err := rows.Scan(&b.PayerID, &b.PayerName, &b.Status, &b.ClaimCount,
			&b.TotalAmount, &b.OldestDays, &b.AverageDays); err != nil {
			return nil, err
		}
		buckets = append(buckets, b)
	}
	return buckets, rows.Err()
}

func scanClaimFields(scan func(dest ...interface{}) error) (*Claim, error) {
	var c Claim
	var codes []byte
	err := scan(
		&c.ID, &c.ClaimNumber, &c.ExternalClaimID, &c.ClientID, &c.PayerID, &c.Type, &c.Status,
		&c.TotalAmount, &c.ServiceStartDate, &c.ServiceEndDate,
		&c.SubmissionMethod, &c.SubmissionDate, &c.AdjudicationDate, &c.PaidAmount,
		&c.DenialReason, &c.DenialDetails, &codes, &c.OriginalClaimID, &c.Notes,
		&c.CreatedBy, &c.UpdatedBy, &c.CreatedAt, &c.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if len(codes) > 0 {
		if err := json.Unmarshal(codes, &c.AdjustmentCodes); err != nil {
			return nil, fmt.Errorf("claim adjustment_codes: %w", err)
		}
	}
	return &c, nil
}

func scanClaim(row pgx.Row) (*Claim, error) {
	return scanClaimFields(row.Scan)
}

func collectClaims(rows pgx.Rows) ([]*Claim, error) {
	var result []*Claim
	for rows.Next() {
		c, err := scanClaimFields(rows.Scan)
		if err != nil {
			return nil, err
		}
		result = append(result, c)
	}
	return result, rows.Err()
}

// classifyPG maps constraint violations onto domain errors so handlers do
// not leak raw SQLSTATE text.
func classifyPG(resource string, err error) error {
	if err == nil {
		return nil
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case pgerrcode.UniqueViolation:
			return businessRule("duplicate", "%s violates a uniqueness rule: %s", resource, pgErr.ConstraintName)
		case pgerrcode.ForeignKeyViolation:
			return businessRule("reference", "%s references a missing record: %s", resource, pgErr.ConstraintName)
		}
	}
	return err
}

// -- Status History --

type historyRepoPG struct {
	pool *pgxpool.Pool
}

func NewHistoryRepo(pool *pgxpool.Pool) HistoryRepository {
	return &historyRepoPG{pool: pool}
}

func (r *historyRepoPG) conn(ctx context.Context) querier {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	return r.pool
}

const historyCols = `id, claim_id, status, notes, actor_id, created_at`

func (r *historyRepoPG) Append(ctx context.Context, h *StatusHistory) error {
	h.ID = uuid.New()
	return r.conn(ctx).QueryRow(ctx, `
		INSERT INTO claim_status_history (id, claim_id, status, notes, actor_id)
		VALUES ($1,$2,$3,$4,$5)
		RETURNING created_at`,
		h.ID, h.ClaimID, h.Status, h.Notes, h.ActorID,
	).Scan(&h.CreatedAt)
}

func (r *historyRepoPG) ListByClaim(ctx context.Context, claimID uuid.UUID) ([]*StatusHistory, error) {
	rows, err := r.conn(ctx).Query(ctx,
		`SELECT `+historyCols+` FROM claim_status_history WHERE claim_id = $1 ORDER BY created_at, id`, claimID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []*StatusHistory
	for rows.Next() {
		var h StatusHistory
		if err := rows.Scan(&h.ID, &h.ClaimID, &h.Status, &h.Notes, &h.ActorID, &h.CreatedAt); err != nil {
			return nil, err
		}
		entries = append(entries, &h)
	}
	return entries, rows.Err()
}

func (r *historyRepoPG) Latest(ctx context.Context, claimID uuid.UUID) (*StatusHistory, error) {
	var h StatusHistory
	err := r.conn(ctx).QueryRow(ctx,
		`SELECT `+historyCols+` FROM claim_status_history WHERE claim_id = $1 ORDER BY created_at DESC, id DESC LIMIT 1`,
		claimID,
	).Scan(&h.ID, &h.ClaimID, &h.Status, &h.Notes, &h.ActorID, &h.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &h, nil
}

// -- Claim Lines --

type lineRepoPG struct {
	pool *pgxpool.Pool
}

func NewLineRepo(pool *pgxpool.Pool) LineRepository {
	return &lineRepoPG{pool: pool}
}

func (r *lineRepoPG) conn(ctx context.Context) querier {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	return r.pool
}

func (r *lineRepoPG) Add(ctx context.Context, l *Line) error {
	l.ID = uuid.New()
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO claim_lines (id, claim_id, service_id, line_number, units, amount)
		VALUES ($1,$2,$3,$4,$5,$6)`,
		l.ID, l.ClaimID, l.ServiceID, l.LineNumber, l.Units, l.Amount)
	return classifyPG("claim line", err)
}

func (r *lineRepoPG) ListByClaim(ctx context.Context, claimID uuid.UUID) ([]*Line, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT id, claim_id, service_id, line_number, units, amount, created_at
		FROM claim_lines WHERE claim_id = $1 ORDER BY line_number`, claimID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var lines []*Line
	for rows.Next() {
		var l Line
		if err := rows.Scan(&l.ID, &l.ClaimID, &l.ServiceID, &l.LineNumber, &l.Units, &l.Amount, &l.CreatedAt); err != nil {
			return nil, err
		}
		lines = append(lines, &l)
	}
	return lines, rows.Err()
}

func (r *lineRepoPG) Remove(ctx context.Context, id uuid.UUID) error {
	_, err := r.conn(ctx).Exec(ctx, `DELETE FROM claim_lines WHERE id = $1`, id)
	return err
}

func (r *lineRepoPG) RemoveByClaim(ctx context.Context, claimID uuid.UUID) error {
	_, err := r.conn(ctx).Exec(ctx, `DELETE FROM claim_lines WHERE claim_id = $1`, claimID)
	return err
}

// -- Unit of Work --

type pgUnitOfWork struct {
	pool *pgxpool.Pool
}

// NewUnitOfWork wraps the pool's transaction helper so multi-step claim
// mutations commit or roll back together.
func NewUnitOfWork(pool *pgxpool.Pool) UnitOfWork {
	return &pgUnitOfWork{pool: pool}
}

func (u *pgUnitOfWork) Run(ctx context.Context, fn func(ctx context.Context) error) error {
	return db.RunInTx(ctx, u.pool, fn)
}

type querier interface {
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
}
