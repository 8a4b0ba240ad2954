package postgres

import (
	"database/sql"

	"github.com/alfredjeanlab/dealboard/internal/model"
)

// scannable is the interface satisfied by both *sql.Row and *sql.Rows.
type scannable interface {
	Scan(dest ...any) error
}

func dealDest(d *model.Deal) []any {
	return []any{
		&d.ID,
		&d.CompanyID,
		&d.Name,
		&d.Contact,
		&d.Email,
		&d.Industry,
		&d.Owner,
		&d.Revenue,
		&d.Stage,
		&d.Locked,
		&d.CreatedAt,
		&d.UpdatedAt,
	}
}

// scanDeal scans a single row into a model.Deal.
// The row must contain columns in the order defined by dealColumns.
func scanDeal(row scannable) (*model.Deal, error) {
	var d model.Deal
	if err := row.Scan(dealDest(&d)...); err != nil {
		return nil, err
	}
	return &d, nil
}

// scanDealWithTotal scans a row that carries a leading total_count column.
func scanDealWithTotal(row scannable) (*model.Deal, int, error) {
	var (
		d     model.Deal
		total int
	)
	dest := append([]any{&total}, dealDest(&d)...)
	if err := row.Scan(dest...); err != nil {
		return nil, 0, err
	}
	return &d, total, nil
}

func scanStage(row scannable) (*model.Stage, error) {
	var s model.Stage
	if err := row.Scan(&s.ID, &s.CompanyID, &s.Name, &s.Position, &s.Active); err != nil {
		return nil, err
	}
	return &s, nil
}

func scanStages(rows *sql.Rows) ([]*model.Stage, error) {
	stages := []*model.Stage{}
	for rows.Next() {
		s, err := scanStage(rows)
		if err != nil {
			return nil, err
		}
		stages = append(stages, s)
	}
	return stages, rows.Err()
}

func scanStageChange(row scannable) (*model.StageChange, error) {
	var (
		c     model.StageChange
		actor sql.NullInt64
	)
	if err := row.Scan(&c.ID, &c.DealID, &c.CompanyID, &c.FromStage, &c.ToStage, &actor, &c.CreatedAt); err != nil {
		return nil, err
	}
	c.ActorID = actor.Int64
	return &c, nil
}

func scanStageChanges(rows *sql.Rows) ([]*model.StageChange, error) {
	changes := []*model.StageChange{}
	for rows.Next() {
		c, err := scanStageChange(rows)
		if err != nil {
			return nil, err
		}
		changes = append(changes, c)
	}
	return changes, rows.Err()
}

// nullInt64 converts an int64 to sql.NullInt64; zero is null.
func nullInt64(v int64) sql.NullInt64 {
	if v == 0 {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: v, Valid: true}
}
