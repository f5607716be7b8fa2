package assets

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"ICTSERVE-backend/internal/enums"
	"ICTSERVE-backend/internal/platform/apierr"
	"ICTSERVE-backend/internal/platform/db"
	"ICTSERVE-backend/internal/platform/paging"
)

type Store struct{ db *sql.DB }

func NewStore(sqlDB *sql.DB) *Store { return &Store{db: sqlDB} }

const assetColumns = `
	asset_id, asset_tag, name, category, brand, model, serial_number, specification, location,
	status, asset_condition, current_value, maintenance_tickets_count, last_maintenance_date,
	next_maintenance_date, retired_reason, notes, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAsset(r rowScanner) (*Asset, error) {
	var a Asset
	if err := r.Scan(
		&a.AssetID, &a.AssetTag, &a.Name, &a.Category, &a.Brand, &a.Model, &a.SerialNumber,
		&a.Specification, &a.Location, &a.Status, &a.Condition, &a.CurrentValue,
		&a.MaintenanceTicketsCount, &a.LastMaintenanceDate, &a.NextMaintenanceDate,
		&a.RetiredReason, &a.Notes, &a.CreatedAt, &a.UpdatedAt,
	); err != nil {
		return nil, err
	}
	return &a, nil
}

// 1) 仮INSERT（asset_tag は仮番号、created_at は DB時刻）
func (s *Store) InsertTmp(ctx context.Context, tx db.DBTX, in CreateAssetRequest, cond enums.AssetCondition, nextMaint any, tmpTag string) (int64, error) {
	const q = `
	INSERT INTO assets
	(asset_tag, name, category, brand, model, serial_number, specification, location,
	 status, asset_condition, current_value, next_maintenance_date, notes, created_at, updated_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, CURRENT_TIMESTAMP(6), CURRENT_TIMESTAMP(6))`
	res, err := tx.ExecContext(ctx, q,
		tmpTag, in.Name, in.Category, in.Brand, in.Model, in.SerialNumber, in.Specification, in.Location,
		enums.AssetAvailable, cond, in.CurrentValue, nextMaint, in.Notes,
	)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

// 2) 確定番号に置換: AST-<yyyy>-<id 5桁>
func (s *Store) UpdateTagToFinal(ctx context.Context, tx db.DBTX, id int64, tmpTag string, pad int) error {
	q := fmt.Sprintf(`
	UPDATE assets
	SET asset_tag = CONCAT('AST-', DATE_FORMAT(created_at, '%%Y'), '-', LPAD(asset_id, GREATEST(%d, CHAR_LENGTH(asset_id)), '0'))
	WHERE asset_id = ? AND asset_tag = ?`, pad)

	res, err := tx.ExecContext(ctx, q, id, tmpTag)
	if err != nil {
		return err
	}
	if aff, _ := res.RowsAffected(); aff != 1 {
		return apierr.Conflict("no row updated")
	}
	return nil
}

func (s *Store) GetByID(ctx context.Context, q db.DBTX, id int64) (*Asset, error) {
	if q == nil {
		q = s.db
	}
	return scanAsset(q.QueryRowContext(ctx, `SELECT `+assetColumns+` FROM assets WHERE asset_id = ?`, id))
}

func (s *Store) GetByTag(ctx context.Context, tag string) (*Asset, error) {
	return scanAsset(s.db.QueryRowContext(ctx, `SELECT `+assetColumns+` FROM assets WHERE asset_tag = ?`, tag))
}

// GetForUpdate は行ロックを取って取得する（貸出・返却・メンテ起票の競合防止）
func (s *Store) GetForUpdate(ctx context.Context, tx db.DBTX, id int64) (*Asset, error) {
	return scanAsset(tx.QueryRowContext(ctx, `SELECT `+assetColumns+` FROM assets WHERE asset_id = ? FOR UPDATE`, id))
}

func buildWhere(q AssetSearchQuery) (string, []any) {
	var sb strings.Builder
	args := []any{}
	sb.WriteString(" WHERE 1=1")
	if q.Status != nil {
		sb.WriteString(" AND status = ?")
		args = append(args, *q.Status)
	}
	if q.Condition != nil {
		sb.WriteString(" AND asset_condition = ?")
		args = append(args, *q.Condition)
	}
	if q.Category != nil && *q.Category != "" {
		sb.WriteString(" AND category = ?")
		args = append(args, *q.Category)
	}
	if q.Location != nil && *q.Location != "" {
		sb.WriteString(" AND location = ?")
		args = append(args, *q.Location)
	}
	if q.Q != nil && *q.Q != "" {
		sb.WriteString(" AND (name LIKE ? OR asset_tag LIKE ?)")
		like := "%" + escapeLike(*q.Q) + "%"
		args = append(args, like, like)
	}
	return sb.String(), args
}

func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}

func (s *Store) List(ctx context.Context, q AssetSearchQuery, p paging.Page) ([]Asset, int64, error) {
	p = p.Normalize()
	where, args := buildWhere(q)

	// ORDER は固定値のみ埋め込む
	query := `SELECT ` + assetColumns + ` FROM assets` + where +
		` ORDER BY created_at ` + p.SQLOrder() + `, asset_id ` + p.SQLOrder() + ` LIMIT ? OFFSET ?`
	rows, err := s.db.QueryContext(ctx, query, append(args, p.Limit, p.Offset)...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	list := []Asset{}
	for rows.Next() {
		a, err := scanAsset(rows)
		if err != nil {
			return nil, 0, err
		}
		list = append(list, *a)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}

	var total int64
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM assets`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}
	return list, total, nil
}

// Update は動的 UPDATE。変更が無ければ false。
func (s *Store) Update(ctx context.Context, tx db.DBTX, id int64, in UpdateAssetRequest, nextMaint any) (bool, error) {
	sets := []string{}
	args := []any{}
	add := func(col string, v any) {
		sets = append(sets, col+" = ?")
		args = append(args, v)
	}
	if in.Name != nil {
		add("name", *in.Name)
	}
	if in.Category != nil {
		add("category", *in.Category)
	}
	if in.Brand != nil {
		add("brand", *in.Brand)
	}
	if in.Model != nil {
		add("model", *in.Model)
	}
	if in.SerialNumber != nil {
		add("serial_number", *in.SerialNumber)
	}
	if in.Specification != nil {
		add("specification", *in.Specification)
	}
	if in.Location != nil {
		add("location", *in.Location)
	}
	if in.Status != nil {
		add("status", *in.Status)
	}
	if in.Condition != nil {
		add("asset_condition", *in.Condition)
	}
	if in.CurrentValue != nil {
		add("current_value", *in.CurrentValue)
	}
	if in.NextMaintenanceDate != nil {
		add("next_maintenance_date", nextMaint)
	}
	if in.Notes != nil {
		add("notes", *in.Notes)
	}
	if len(sets) == 0 {
		return false, nil
	}
	args = append(args, id)
	q := fmt.Sprintf(`UPDATE assets SET %s WHERE asset_id = ?`, strings.Join(sets, ", "))
	if _, err := tx.ExecContext(ctx, q, args...); err != nil {
		return false, err
	}
	return true, nil
}

func (s *Store) SetStatus(ctx context.Context, tx db.DBTX, id int64, st enums.AssetStatus) error {
	const q = `UPDATE assets SET status = ? WHERE asset_id = ?`
	return execOne(ctx, tx, q, st, id)
}

// ApplyReturn: 劣化なしの返却。貸出可能に戻し、返却時の状態を反映する。
func (s *Store) ApplyReturn(ctx context.Context, tx db.DBTX, id int64, cond enums.AssetCondition) error {
	const q = `UPDATE assets SET status = ?, asset_condition = ? WHERE asset_id = ?`
	return execOne(ctx, tx, q, enums.AssetAvailable, cond, id)
}

// MarkDamaged: 劣化返却。メンテナンス票が起票されるまで貸出不可にする。
func (s *Store) MarkDamaged(ctx context.Context, tx db.DBTX, id int64, cond enums.AssetCondition) error {
	const q = `UPDATE assets SET status = ?, asset_condition = ? WHERE asset_id = ?`
	return execOne(ctx, tx, q, enums.AssetDamaged, cond, id)
}

// MarkMaintenance: メンテナンス票の起票に合わせて資産を整備中にする
func (s *Store) MarkMaintenance(ctx context.Context, tx db.DBTX, id int64, cond enums.AssetCondition, day time.Time) error {
	const q = `
	UPDATE assets
	SET status = ?, asset_condition = ?, maintenance_tickets_count = maintenance_tickets_count + 1,
	    last_maintenance_date = ?
	WHERE asset_id = ?`
	return execOne(ctx, tx, q, enums.AssetMaintenance, cond, day.Format(dateLayout), id)
}

func (s *Store) Retire(ctx context.Context, tx db.DBTX, id int64, reason string) error {
	const q = `UPDATE assets SET status = ?, retired_reason = ? WHERE asset_id = ?`
	return execOne(ctx, tx, q, enums.AssetRetired, reason, id)
}

func execOne(ctx context.Context, tx db.DBTX, q string, args ...any) error {
	res, err := tx.ExecContext(ctx, q, args...)
	if err != nil {
		return err
	}
	if aff, _ := res.RowsAffected(); aff != 1 {
		return apierr.Internal("failed to update assets")
	}
	return nil
}
