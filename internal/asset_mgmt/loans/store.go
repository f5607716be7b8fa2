package loans

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"ICTSERVE-backend/internal/enums"
	"ICTSERVE-backend/internal/platform/apierr"
	"ICTSERVE-backend/internal/platform/db"
	"ICTSERVE-backend/internal/platform/paging"
)

type Store struct{ db *sql.DB }

func NewStore(sqlDB *sql.DB) *Store { return &Store{db: sqlDB} }

const appColumns = `
	id, application_number, status, priority, applicant_name, applicant_email, applicant_phone,
	staff_id, grade, division, purpose, location, loan_start_date, loan_end_date, approver_email,
	approved_at, approved_by_name, approval_method, approval_remarks, rejected_reason,
	info_request_note, approval_token, approval_token_expires_at, maintenance_required,
	total_value, user_id, created_at, updated_at, deleted_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanApp(r rowScanner) (*Application, error) {
	var a Application
	if err := r.Scan(
		&a.ID, &a.ApplicationNumber, &a.Status, &a.Priority, &a.ApplicantName, &a.ApplicantEmail,
		&a.ApplicantPhone, &a.StaffID, &a.Grade, &a.Division, &a.Purpose, &a.Location,
		&a.LoanStartDate, &a.LoanEndDate, &a.ApproverEmail, &a.ApprovedAt, &a.ApprovedByName,
		&a.ApprovalMethod, &a.ApprovalRemarks, &a.RejectedReason, &a.InfoRequestNote,
		&a.ApprovalToken, &a.ApprovalTokenExpiresAt, &a.MaintenanceRequired, &a.TotalValue,
		&a.UserID, &a.CreatedAt, &a.UpdatedAt, &a.DeletedAt,
	); err != nil {
		return nil, err
	}
	return &a, nil
}

func (s *Store) q(q db.DBTX) db.DBTX {
	if q == nil {
		return s.db
	}
	return q
}

// ===== 採番 =====

// 1) 仮INSERT（application_number は仮番号）
func (s *Store) InsertTmp(ctx context.Context, tx db.DBTX, a *Application) (int64, error) {
	const q = `
	INSERT INTO loan_applications
	(application_number, status, priority, applicant_name, applicant_email, applicant_phone,
	 staff_id, grade, division, purpose, location, loan_start_date, loan_end_date,
	 approver_email, total_value, user_id, created_at, updated_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, CURRENT_TIMESTAMP(6), CURRENT_TIMESTAMP(6))`
	res, err := tx.ExecContext(ctx, q,
		a.ApplicationNumber, a.Status, a.Priority, a.ApplicantName, a.ApplicantEmail, a.ApplicantPhone,
		a.StaffID, a.Grade, a.Division, a.Purpose, a.Location,
		a.LoanStartDate.Format(dateLayout), a.LoanEndDate.Format(dateLayout),
		a.ApproverEmail, a.TotalValue, a.UserID,
	)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

// 2) 確定番号に置換: LA<yyyymm><id 4桁>
func (s *Store) UpdateNumberToFinal(ctx context.Context, tx db.DBTX, id int64, tmp string) error {
	const q = `
	UPDATE loan_applications
	SET application_number = CONCAT('LA', DATE_FORMAT(created_at, '%Y%m'), LPAD(id, GREATEST(4, CHAR_LENGTH(id)), '0'))
	WHERE id = ? AND application_number = ?`
	res, err := tx.ExecContext(ctx, q, id, tmp)
	if err != nil {
		return err
	}
	if aff, _ := res.RowsAffected(); aff != 1 {
		return apierr.Conflict("no row updated")
	}
	return nil
}

// ===== 取得 =====

func (s *Store) GetByID(ctx context.Context, q db.DBTX, id int64) (*Application, error) {
	return scanApp(s.q(q).QueryRowContext(ctx,
		`SELECT `+appColumns+` FROM loan_applications WHERE id = ? AND deleted_at IS NULL`, id))
}

// GetByIDWithDeleted は論理削除済みの行も返す
func (s *Store) GetByIDWithDeleted(ctx context.Context, q db.DBTX, id int64) (*Application, error) {
	return scanApp(s.q(q).QueryRowContext(ctx,
		`SELECT `+appColumns+` FROM loan_applications WHERE id = ?`, id))
}

func (s *Store) GetForUpdate(ctx context.Context, tx db.DBTX, id int64) (*Application, error) {
	return scanApp(tx.QueryRowContext(ctx,
		`SELECT `+appColumns+` FROM loan_applications WHERE id = ? AND deleted_at IS NULL FOR UPDATE`, id))
}

func (s *Store) GetByNumber(ctx context.Context, q db.DBTX, number string) (*Application, error) {
	return scanApp(s.q(q).QueryRowContext(ctx,
		`SELECT `+appColumns+` FROM loan_applications WHERE application_number = ? AND deleted_at IS NULL`, number))
}

func buildWhere(f ListFilter) (string, []any) {
	var sb strings.Builder
	args := []any{}
	sb.WriteString(" WHERE deleted_at IS NULL")
	if f.Status != nil {
		sb.WriteString(" AND status = ?")
		args = append(args, *f.Status)
	}
	if f.Priority != nil {
		sb.WriteString(" AND priority = ?")
		args = append(args, *f.Priority)
	}
	if f.ApplicantEmail != nil && *f.ApplicantEmail != "" {
		sb.WriteString(" AND applicant_email = ?")
		args = append(args, *f.ApplicantEmail)
	}
	if f.StartFrom != nil {
		sb.WriteString(" AND loan_start_date >= ?")
		args = append(args, f.StartFrom.Format(dateLayout))
	}
	if f.StartTo != nil {
		sb.WriteString(" AND loan_start_date <= ?")
		args = append(args, f.StartTo.Format(dateLayout))
	}
	return sb.String(), args
}

func (s *Store) List(ctx context.Context, f ListFilter, p paging.Page) ([]Application, int64, error) {
	p = p.Normalize()
	where, args := buildWhere(f)
	query := `SELECT ` + appColumns + ` FROM loan_applications` + where +
		` ORDER BY created_at ` + p.SQLOrder() + `, id ` + p.SQLOrder() + ` LIMIT ? OFFSET ?`

	list, err := s.query(ctx, query, append(args, p.Limit, p.Offset)...)
	if err != nil {
		return nil, 0, err
	}
	var total int64
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM loan_applications`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}
	return list, total, nil
}

// ListAll はエクスポート用（ページングなし・古い順）
func (s *Store) ListAll(ctx context.Context, f ListFilter) ([]Application, error) {
	where, args := buildWhere(f)
	return s.query(ctx, `SELECT `+appColumns+` FROM loan_applications`+where+` ORDER BY id ASC`, args...)
}

// ListActiveEndingBefore: 返却期限を過ぎた貸出中の申請
func (s *Store) ListActiveEndingBefore(ctx context.Context, day time.Time) ([]Application, error) {
	const q = `SELECT ` + appColumns + ` FROM loan_applications
	WHERE deleted_at IS NULL AND status IN (?, ?, ?) AND loan_end_date < ?
	ORDER BY loan_end_date ASC, id ASC`
	return s.query(ctx, q, enums.LoanIssued, enums.LoanInUse, enums.LoanReturnDue, day.Format(dateLayout))
}

// ListActiveEndingOn: 指定日に返却期限を迎える貸出中の申請
func (s *Store) ListActiveEndingOn(ctx context.Context, day time.Time) ([]Application, error) {
	const q = `SELECT ` + appColumns + ` FROM loan_applications
	WHERE deleted_at IS NULL AND status IN (?, ?) AND loan_end_date = ?
	ORDER BY id ASC`
	return s.query(ctx, q, enums.LoanIssued, enums.LoanInUse, day.Format(dateLayout))
}

// ListActiveByAsset: 資産を貸出中の申請（返却通知の引き当て用）
func (s *Store) ListActiveByAsset(ctx context.Context, tx db.DBTX, assetID int64) ([]Application, error) {
	const q = `SELECT ` + appColumns + ` FROM loan_applications
	WHERE deleted_at IS NULL AND status IN (?, ?, ?, ?, ?)
	  AND id IN (SELECT loan_application_id FROM loan_items WHERE asset_id = ? AND condition_after IS NULL)
	ORDER BY id DESC FOR UPDATE`
	rows, err := tx.QueryContext(ctx, q, enums.LoanIssued, enums.LoanInUse, enums.LoanReturnDue,
		enums.LoanReturning, enums.LoanOverdue, assetID)
	if err != nil {
		return nil, err
	}
	return collect(rows)
}

func (s *Store) query(ctx context.Context, q string, args ...any) ([]Application, error) {
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	return collect(rows)
}

func collect(rows *sql.Rows) ([]Application, error) {
	defer rows.Close()
	list := []Application{}
	for rows.Next() {
		a, err := scanApp(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, *a)
	}
	return list, rows.Err()
}

// ===== 状態更新 =====
// すべて WHERE status = <from> 付き。読み取り後に他で変わっていたら CONFLICT。

func (s *Store) UpdateStatus(ctx context.Context, tx db.DBTX, id int64, from, to enums.LoanStatus) error {
	const q = `UPDATE loan_applications SET status = ? WHERE id = ? AND status = ?`
	return execGuarded(ctx, tx, q, to, id, from)
}

func (s *Store) SetUnderReview(ctx context.Context, tx db.DBTX, id int64, from enums.LoanStatus, jti string, expires time.Time) error {
	const q = `
	UPDATE loan_applications
	SET status = ?, approval_token = ?, approval_token_expires_at = ?, info_request_note = NULL
	WHERE id = ? AND status = ?`
	return execGuarded(ctx, tx, q, enums.LoanUnderReview, jti, expires, id, from)
}

func (s *Store) SetApproved(ctx context.Context, tx db.DBTX, id int64, from enums.LoanStatus, at time.Time, byName, method string, remarks sql.NullString) error {
	const q = `
	UPDATE loan_applications
	SET status = ?, approved_at = ?, approved_by_name = ?, approval_method = ?, approval_remarks = ?,
	    rejected_reason = NULL, approval_token = NULL, approval_token_expires_at = NULL
	WHERE id = ? AND status = ?`
	return execGuarded(ctx, tx, q, enums.LoanApproved, at, someStr(byName), method, remarks, id, from)
}

func (s *Store) SetRejected(ctx context.Context, tx db.DBTX, id int64, from enums.LoanStatus, reason, method string) error {
	const q = `
	UPDATE loan_applications
	SET status = ?, rejected_reason = ?, approval_method = ?, approval_token = NULL, approval_token_expires_at = NULL
	WHERE id = ? AND status = ?`
	return execGuarded(ctx, tx, q, enums.LoanRejected, reason, method, id, from)
}

func (s *Store) SetPendingInfo(ctx context.Context, tx db.DBTX, id int64, from enums.LoanStatus, note string) error {
	const q = `UPDATE loan_applications SET status = ?, info_request_note = ? WHERE id = ? AND status = ?`
	return execGuarded(ctx, tx, q, enums.LoanPendingInfo, note, id, from)
}

func (s *Store) SetExtended(ctx context.Context, tx db.DBTX, id int64, from enums.LoanStatus, end time.Time) error {
	const q = `UPDATE loan_applications SET status = ?, loan_end_date = ? WHERE id = ? AND status = ?`
	return execGuarded(ctx, tx, q, enums.LoanReturnDue, end.Format(dateLayout), id, from)
}

func (s *Store) SetReturnOutcome(ctx context.Context, tx db.DBTX, id int64, from, to enums.LoanStatus, maintenance bool) error {
	const q = `
	UPDATE loan_applications
	SET status = ?, maintenance_required = (maintenance_required OR ?)
	WHERE id = ? AND status = ?`
	return execGuarded(ctx, tx, q, to, maintenance, id, from)
}

// MarkMaintenanceRequired はステータスを変えずにフラグだけ立てる
func (s *Store) MarkMaintenanceRequired(ctx context.Context, tx db.DBTX, id int64) error {
	const q = `UPDATE loan_applications SET maintenance_required = 1 WHERE id = ?`
	_, err := tx.ExecContext(ctx, q, id)
	return err
}

func (s *Store) SoftDelete(ctx context.Context, tx db.DBTX, id int64, at time.Time) error {
	const q = `UPDATE loan_applications SET deleted_at = ? WHERE id = ? AND deleted_at IS NULL`
	return execGuarded(ctx, tx, q, at, id)
}

func execGuarded(ctx context.Context, tx db.DBTX, q string, args ...any) error {
	res, err := tx.ExecContext(ctx, q, args...)
	if err != nil {
		return err
	}
	if aff, _ := res.RowsAffected(); aff != 1 {
		return apierr.Conflict("loan application was modified concurrently")
	}
	return nil
}

// ===== items =====

func (s *Store) InsertItem(ctx context.Context, tx db.DBTX, it *Item) error {
	const q = `
	INSERT INTO loan_items
	(loan_application_id, asset_id, quantity, unit_value, total_value, condition_before)
	VALUES (?, ?, ?, ?, ?, ?)`
	res, err := tx.ExecContext(ctx, q, it.LoanApplicationID, it.AssetID, it.Quantity, it.UnitValue, it.TotalValue, it.ConditionBefore)
	if err != nil {
		return err
	}
	it.ID, err = res.LastInsertId()
	return err
}

func (s *Store) ListItems(ctx context.Context, q db.DBTX, appID int64) ([]Item, error) {
	const query = `
	SELECT id, loan_application_id, asset_id, quantity, unit_value, total_value,
	       condition_before, condition_after, damage_report
	FROM loan_items WHERE loan_application_id = ? ORDER BY id ASC`
	rows, err := s.q(q).QueryContext(ctx, query, appID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := []Item{}
	for rows.Next() {
		var it Item
		if err := rows.Scan(&it.ID, &it.LoanApplicationID, &it.AssetID, &it.Quantity, &it.UnitValue,
			&it.TotalValue, &it.ConditionBefore, &it.ConditionAfter, &it.DamageReport); err != nil {
			return nil, err
		}
		items = append(items, it)
	}
	return items, rows.Err()
}

func (s *Store) SetItemConditionBefore(ctx context.Context, tx db.DBTX, itemID int64, cond enums.AssetCondition) error {
	const q = `UPDATE loan_items SET condition_before = ? WHERE id = ?`
	_, err := tx.ExecContext(ctx, q, cond, itemID)
	return err
}

func (s *Store) SetItemReturned(ctx context.Context, tx db.DBTX, itemID int64, cond enums.AssetCondition, report sql.NullString) error {
	const q = `UPDATE loan_items SET condition_after = ?, damage_report = ? WHERE id = ? AND condition_after IS NULL`
	res, err := tx.ExecContext(ctx, q, cond, report, itemID)
	if err != nil {
		return err
	}
	if aff, _ := res.RowsAffected(); aff != 1 {
		return apierr.Conflict("item already returned")
	}
	return nil
}

// ===== transactions =====

func (s *Store) InsertTransaction(ctx context.Context, tx db.DBTX, t *Transaction) error {
	const q = `
	INSERT INTO loan_transactions
	(transaction_ulid, loan_application_id, asset_id, transaction_type, processed_by, processed_at,
	 condition_before, condition_after, damage_report, notes)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	res, err := tx.ExecContext(ctx, q, t.ULID, t.LoanApplicationID, t.AssetID, t.Type, t.ProcessedBy,
		t.ProcessedAt, t.ConditionBefore, t.ConditionAfter, t.DamageReport, t.Notes)
	if err != nil {
		return err
	}
	t.ID, err = res.LastInsertId()
	return err
}

const txColumns = `
	id, transaction_ulid, loan_application_id, asset_id, transaction_type, processed_by, processed_at,
	condition_before, condition_after, damage_report, notes`

func scanTx(r rowScanner) (*Transaction, error) {
	var t Transaction
	if err := r.Scan(&t.ID, &t.ULID, &t.LoanApplicationID, &t.AssetID, &t.Type, &t.ProcessedBy,
		&t.ProcessedAt, &t.ConditionBefore, &t.ConditionAfter, &t.DamageReport, &t.Notes); err != nil {
		return nil, err
	}
	return &t, nil
}

func (s *Store) GetTransaction(ctx context.Context, q db.DBTX, id int64) (*Transaction, error) {
	return scanTx(s.q(q).QueryRowContext(ctx, `SELECT `+txColumns+` FROM loan_transactions WHERE id = ?`, id))
}

func (s *Store) ListTransactions(ctx context.Context, appID int64) ([]Transaction, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+txColumns+` FROM loan_transactions WHERE loan_application_id = ? ORDER BY processed_at ASC, id ASC`, appID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	list := []Transaction{}
	for rows.Next() {
		t, err := scanTx(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, *t)
	}
	return list, rows.Err()
}

func condStr(c enums.AssetCondition) sql.NullString {
	return sql.NullString{String: string(c), Valid: c != ""}
}
