package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/alfredjeanlab/dealboard/internal/model"
)

// dealColumns is the column list used for SELECT statements on the deals table.
const dealColumns = `id, company_id, name, contact, email, industry, owner,
	revenue, stage, locked, created_at, updated_at`

const stageColumns = `id, company_id, name, position, active`

const stageChangeColumns = `id, deal_id, company_id, from_stage, to_stage, actor_id, created_at`

// executor is the interface satisfied by both *sql.DB and *sql.Tx.
type executor interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// --- Deals ---

func queryCreateDeal(ctx context.Context, db executor, d *model.Deal) error {
	if d.CreatedAt.IsZero() {
		d.CreatedAt = time.Now().UTC()
	}
	if d.UpdatedAt.IsZero() {
		d.UpdatedAt = d.CreatedAt
	}
	return db.QueryRowContext(ctx, `
		INSERT INTO deals (
			company_id, name, contact, email, industry, owner,
			revenue, stage, locked, created_at, updated_at
		) VALUES (
			$1, $2, $3, $4, $5, $6,
			$7, $8, $9, $10, $11
		) RETURNING id`,
		d.CompanyID,
		d.Name,
		d.Contact,
		d.Email,
		d.Industry,
		d.Owner,
		d.Revenue,
		d.Stage,
		d.Locked,
		d.CreatedAt,
		d.UpdatedAt,
	).Scan(&d.ID)
}

func queryGetDeal(ctx context.Context, db executor, id int64) (*model.Deal, error) {
	row := db.QueryRowContext(ctx, `SELECT `+dealColumns+` FROM deals WHERE id = $1`, id)
	return scanDeal(row)
}

func queryLockDeal(ctx context.Context, db executor, id int64) (*model.Deal, error) {
	row := db.QueryRowContext(ctx, `SELECT `+dealColumns+` FROM deals WHERE id = $1 FOR UPDATE`, id)
	return scanDeal(row)
}

func queryListDeals(ctx context.Context, db executor, filter model.DealFilter) ([]*model.Deal, int, error) {
	var (
		whereClauses []string
		args         []any
		argIdx       int
	)

	nextArg := func() string {
		argIdx++
		return fmt.Sprintf("$%d", argIdx)
	}

	if filter.CompanyID != 0 {
		whereClauses = append(whereClauses, "company_id = "+nextArg())
		args = append(args, filter.CompanyID)
	}

	if len(filter.Stage) > 0 {
		placeholders := make([]string, len(filter.Stage))
		for i, s := range filter.Stage {
			placeholders[i] = nextArg()
			args = append(args, s)
		}
		whereClauses = append(whereClauses, "stage IN ("+strings.Join(placeholders, ", ")+")")
	}

	if filter.Search != "" {
		p := nextArg()
		whereClauses = append(whereClauses, fmt.Sprintf(
			"(name ILIKE '%%' || %s || '%%' OR contact ILIKE '%%' || %s || '%%' OR email ILIKE '%%' || %s || '%%' OR industry ILIKE '%%' || %s || '%%')",
			p, p, p, p))
		args = append(args, filter.Search)
	}

	whereSQL := ""
	if len(whereClauses) > 0 {
		whereSQL = " WHERE " + strings.Join(whereClauses, " AND ")
	}

	// Single query with COUNT(*) OVER() to get total and rows atomically.
	// Ordering by id keeps the board's within-column order stable across reloads.
	dataQuery := "SELECT COUNT(*) OVER() AS total_count, " + dealColumns + " FROM deals" + whereSQL + " ORDER BY id ASC"

	if filter.Limit > 0 {
		dataQuery += " LIMIT " + nextArg()
		args = append(args, filter.Limit)
	}
	if filter.Offset > 0 {
		dataQuery += " OFFSET " + nextArg()
		args = append(args, filter.Offset)
	}

	rows, err := db.QueryContext(ctx, dataQuery, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list deals: %w", err)
	}
	defer rows.Close()

	deals := []*model.Deal{}
	var total int
	for rows.Next() {
		d, t, err := scanDealWithTotal(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scan deals: %w", err)
		}
		total = t
		deals = append(deals, d)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("scan deals: %w", err)
	}

	return deals, total, nil
}

func queryUpdateDealStage(ctx context.Context, db executor, id int64, stage string, at time.Time) error {
	res, err := db.ExecContext(ctx,
		`UPDATE deals SET stage = $2, updated_at = $3 WHERE id = $1`, id, stage, at)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// --- Stages ---

func queryCreateStage(ctx context.Context, db executor, s *model.Stage) error {
	return db.QueryRowContext(ctx, `
		INSERT INTO stages (company_id, name, position, active)
		VALUES ($1, $2, $3, $4)
		RETURNING id`,
		s.CompanyID, s.Name, s.Position, s.Active,
	).Scan(&s.ID)
}

func queryGetStage(ctx context.Context, db executor, id int64) (*model.Stage, error) {
	row := db.QueryRowContext(ctx, `SELECT `+stageColumns+` FROM stages WHERE id = $1`, id)
	return scanStage(row)
}

func queryListStages(ctx context.Context, db executor, companyID int64, includeInactive bool) ([]*model.Stage, error) {
	var (
		where []string
		args  []any
	)
	if companyID != 0 {
		args = append(args, companyID)
		where = append(where, fmt.Sprintf("company_id = $%d", len(args)))
	}
	if !includeInactive {
		where = append(where, "active")
	}
	q := `SELECT ` + stageColumns + ` FROM stages`
	if len(where) > 0 {
		q += " WHERE " + strings.Join(where, " AND ")
	}
	q += " ORDER BY company_id, position, id"

	rows, err := db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("list stages: %w", err)
	}
	defer rows.Close()
	return scanStages(rows)
}

// --- Stage history ---

func queryRecordStageChange(ctx context.Context, db executor, c *model.StageChange) error {
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now().UTC()
	}
	return db.QueryRowContext(ctx, `
		INSERT INTO stage_changes (deal_id, company_id, from_stage, to_stage, actor_id, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id`,
		c.DealID, c.CompanyID, c.FromStage, c.ToStage, nullInt64(c.ActorID), c.CreatedAt,
	).Scan(&c.ID)
}

func queryGetStageHistory(ctx context.Context, db executor, dealID int64) ([]*model.StageChange, error) {
	rows, err := db.QueryContext(ctx,
		`SELECT `+stageChangeColumns+` FROM stage_changes WHERE deal_id = $1 ORDER BY created_at, id`, dealID)
	if err != nil {
		return nil, fmt.Errorf("get stage history: %w", err)
	}
	defer rows.Close()
	return scanStageChanges(rows)
}
