package loans

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"net/mail"
	"strings"
	"time"

	"ICTSERVE-backend/internal/asset_mgmt/assets"
	"ICTSERVE-backend/internal/enums"
	"ICTSERVE-backend/internal/events"
	"ICTSERVE-backend/internal/jobs"
	"ICTSERVE-backend/internal/platform/apierr"
	"ICTSERVE-backend/internal/platform/db"
	"ICTSERVE-backend/internal/platform/ids"
	"ICTSERVE-backend/internal/platform/paging"
	"ICTSERVE-backend/internal/platform/queue"
)

type Service struct {
	db          *sql.DB
	store       *Store
	assets      *assets.Store
	queue       queue.Enqueuer
	events      events.Publisher
	tokens      *TokenSigner
	clock       ids.Clock
	id          ids.IDGen
	loc         *time.Location
	approvalTTL time.Duration
}

func NewService(sqlDB *sql.DB, q queue.Enqueuer, tokens *TokenSigner, approvalTTL time.Duration) *Service {
	return &Service{
		db:          sqlDB,
		store:       NewStore(sqlDB),
		assets:      assets.NewStore(sqlDB),
		queue:       q,
		events:      events.NewQueuePublisher(q),
		tokens:      tokens,
		clock:       ids.RealClock{},
		id:          ids.NewULIDGen(),
		loc:         time.UTC,
		approvalTTL: approvalTTL,
	}
}

func (s *Service) WithClock(c ids.Clock) *Service         { s.clock = c; return s }
func (s *Service) WithIDGen(g ids.IDGen) *Service         { s.id = g; return s }
func (s *Service) WithLocation(l *time.Location) *Service { s.loc = l; return s }

func (s *Service) Store() *Store { return s.store }

// today は業務タイムゾーンでの日付（UTC 0時で表現）
func (s *Service) today() time.Time {
	y, m, d := s.clock.Now().In(s.loc).Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func parseDate(field, v string) (time.Time, error) {
	t, err := time.Parse(dateLayout, strings.TrimSpace(v))
	if err != nil {
		return time.Time{}, apierr.Invalid("invalid date").WithDetail(field, "must be YYYY-MM-DD")
	}
	return t, nil
}

func guard(from, to enums.LoanStatus) error {
	if err := enums.EnsureTransition(from, to); err != nil {
		return apierr.Transition(err)
	}
	return nil
}

func notFound(err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return apierr.NotFound("loan application not found")
	}
	return err
}

// enqueueTx: unique key 付きジョブの重複は成功扱い
func (s *Service) enqueueTx(ctx context.Context, tx db.DBTX, jobType string, payload any, key string) error {
	_, err := s.queue.EnqueueTx(ctx, tx, jobType, payload, queue.WithUniqueKey(key))
	if errors.Is(err, queue.ErrDuplicate) {
		return nil
	}
	return err
}

// ===== 申請 =====

func (s *Service) validateSubmit(in *SubmitRequest) (time.Time, time.Time, error) {
	in.ApplicantName = strings.TrimSpace(in.ApplicantName)
	in.ApplicantEmail = strings.TrimSpace(in.ApplicantEmail)
	in.ApplicantPhone = strings.TrimSpace(in.ApplicantPhone)
	in.Purpose = strings.TrimSpace(in.Purpose)
	in.Location = strings.TrimSpace(in.Location)

	verr := apierr.Invalid("validation failed")
	if in.ApplicantName == "" {
		verr.WithDetail("applicant_name", "required")
	}
	if _, err := mail.ParseAddress(in.ApplicantEmail); err != nil {
		verr.WithDetail("applicant_email", "must be a valid email")
	}
	if in.ApplicantPhone == "" {
		verr.WithDetail("applicant_phone", "required")
	}
	if in.Purpose == "" {
		verr.WithDetail("purpose", "required")
	}
	if in.Location == "" {
		verr.WithDetail("location", "required")
	}
	if in.ApproverEmail != nil {
		v := strings.TrimSpace(*in.ApproverEmail)
		in.ApproverEmail = &v
	}
	if in.ApproverEmail != nil && *in.ApproverEmail != "" {
		if _, err := mail.ParseAddress(*in.ApproverEmail); err != nil {
			verr.WithDetail("approver_email", "must be a valid email")
		}
	}
	if in.Priority != nil && !in.Priority.Valid() {
		verr.WithDetail("priority", "invalid")
	}
	if len(in.AssetIDs) == 0 {
		verr.WithDetail("asset_ids", "at least one asset is required")
	}
	seen := map[int64]bool{}
	for _, id := range in.AssetIDs {
		if id <= 0 || seen[id] {
			verr.WithDetail("asset_ids", "must be unique positive ids")
			break
		}
		seen[id] = true
	}

	start, serr := time.Parse(dateLayout, strings.TrimSpace(in.LoanStartDate))
	end, eerr := time.Parse(dateLayout, strings.TrimSpace(in.LoanEndDate))
	switch {
	case serr != nil:
		verr.WithDetail("loan_start_date", "must be YYYY-MM-DD")
	case eerr != nil:
		verr.WithDetail("loan_end_date", "must be YYYY-MM-DD")
	case end.Before(start):
		verr.WithDetail("loan_end_date", "must be on or after loan_start_date")
	case start.Before(s.today()):
		verr.WithDetail("loan_start_date", "must not be in the past")
	}
	if len(verr.Details) > 0 {
		return time.Time{}, time.Time{}, verr
	}
	return start, end, nil
}

// Submit はゲスト/ログインユーザーの貸出申請。userID はゲストなら空。
func (s *Service) Submit(ctx context.Context, in SubmitRequest, userID string) (ApplicationResponse, error) {
	start, end, err := s.validateSubmit(&in)
	if err != nil {
		return ApplicationResponse{}, err
	}
	priority := enums.LoanPriorityNormal
	if in.Priority != nil {
		priority = *in.Priority
	}

	var appID int64
	tmp := ids.TmpNumber()
	err = db.ReadCommitted(ctx, s.db, func(ctx context.Context, tx db.DBTX) error {
		// 資産の貸出可否（行ロック）
		items := make([]Item, 0, len(in.AssetIDs))
		var total float64
		for _, assetID := range in.AssetIDs {
			a, err := s.assets.GetForUpdate(ctx, tx, assetID)
			if errors.Is(err, sql.ErrNoRows) {
				return apierr.Invalid("asset not found").WithDetail("asset_ids", fmt.Sprintf("asset %d not found", assetID))
			}
			if err != nil {
				return err
			}
			if !a.Status.CanBeLoaned() {
				return apierr.Conflict("asset is not available").WithDetail("asset_ids", fmt.Sprintf("%s is %s", a.AssetTag, a.Status))
			}
			items = append(items, Item{
				AssetID: a.AssetID, Quantity: 1, UnitValue: a.CurrentValue, TotalValue: a.CurrentValue,
				ConditionBefore: a.Condition,
			})
			total += a.CurrentValue
		}

		app := &Application{
			ApplicationNumber: tmp,
			Status:            enums.LoanSubmitted,
			Priority:          priority,
			ApplicantName:     in.ApplicantName,
			ApplicantEmail:    in.ApplicantEmail,
			ApplicantPhone:    in.ApplicantPhone,
			StaffID:           nullStr(in.StaffID),
			Grade:             nullStr(in.Grade),
			Division:          nullStr(in.Division),
			Purpose:           in.Purpose,
			Location:          in.Location,
			LoanStartDate:     start,
			LoanEndDate:       end,
			ApproverEmail:     nullStr(in.ApproverEmail),
			TotalValue:        total,
			UserID:            someStr(userID),
		}

		// 1) 仮INSERT → 2) 確定番号
		appID, err = s.store.InsertTmp(ctx, tx, app)
		if err != nil {
			return apierr.FromMySQL(err, "application_number already exists", "invalid reference")
		}
		if err := s.store.UpdateNumberToFinal(ctx, tx, appID, tmp); err != nil {
			if apierr.Is(err, apierr.CodeConflict) {
				return apierr.Conflict("conflict while finalizing application_number")
			}
			return err
		}
		for i := range items {
			items[i].LoanApplicationID = appID
			if err := s.store.InsertItem(ctx, tx, &items[i]); err != nil {
				return apierr.FromMySQL(err, "duplicate asset in application", "invalid asset reference")
			}
		}

		// 承認者が指定されていればそのまま審査へ
		if app.ApproverEmail.Valid {
			app.ID = appID
			return s.toUnderReview(ctx, tx, app)
		}
		return nil
	})
	if err != nil {
		return ApplicationResponse{}, err
	}
	log.Printf("[INFO] loan submitted id=%d assets=%d guest=%t", appID, len(in.AssetIDs), userID == "")
	return s.Get(ctx, appID)
}

// toUnderReview は承認トークンを発行して承認依頼メールを積む
func (s *Service) toUnderReview(ctx context.Context, tx db.DBTX, a *Application) error {
	if err := guard(a.Status, enums.LoanUnderReview); err != nil {
		return err
	}
	if !a.ApproverEmail.Valid {
		return s.store.UpdateStatus(ctx, tx, a.ID, a.Status, enums.LoanUnderReview)
	}
	jti, err := s.id.New()
	if err != nil {
		return err
	}
	exp := s.clock.Now().Add(s.approvalTTL)
	if err := s.store.SetUnderReview(ctx, tx, a.ID, a.Status, jti, exp); err != nil {
		return err
	}
	return s.enqueueTx(ctx, tx, jobs.MailLoanApprovalRequest, jobs.LoanMail{ApplicationID: a.ID},
		"loan-approval-request:"+jti)
}

func (s *Service) Get(ctx context.Context, id int64) (ApplicationResponse, error) {
	a, err := s.store.GetByID(ctx, nil, id)
	if err != nil {
		return ApplicationResponse{}, notFound(err)
	}
	items, err := s.store.ListItems(ctx, nil, id)
	if err != nil {
		return ApplicationResponse{}, err
	}
	return a.Response(items), nil
}

// Track: ゲスト向け。番号とメールが一致しなければ存在も明かさない。
func (s *Service) Track(ctx context.Context, number, email string) (TrackResponse, error) {
	if strings.TrimSpace(number) == "" || strings.TrimSpace(email) == "" {
		return TrackResponse{}, apierr.Invalid("application_number and email are required")
	}
	a, err := s.store.GetByNumber(ctx, nil, number)
	if err != nil {
		return TrackResponse{}, notFound(err)
	}
	if !strings.EqualFold(a.ApplicantEmail, strings.TrimSpace(email)) {
		return TrackResponse{}, apierr.NotFound("loan application not found")
	}
	return a.Track(), nil
}

func (s *Service) List(ctx context.Context, f ListFilter, p paging.Page) ([]ApplicationResponse, int64, error) {
	list, total, err := s.store.List(ctx, f, p)
	if err != nil {
		return nil, 0, err
	}
	out := make([]ApplicationResponse, 0, len(list))
	for i := range list {
		out = append(out, list[i].Response(nil))
	}
	return out, total, nil
}

// mutate は申請行をロックして fn を実行し、最新状態を返す
func (s *Service) mutate(ctx context.Context, id int64, fn func(ctx context.Context, tx db.DBTX, a *Application) error) (ApplicationResponse, error) {
	err := db.RunInTx(ctx, s.db, nil, func(ctx context.Context, tx db.DBTX) error {
		a, err := s.store.GetForUpdate(ctx, tx, id)
		if err != nil {
			return notFound(err)
		}
		return fn(ctx, tx, a)
	})
	if err != nil {
		return ApplicationResponse{}, err
	}
	return s.Get(ctx, id)
}

// ===== 審査 =====

// StartReview: submitted → under_review（承認者がいればトークン発行）
func (s *Service) StartReview(ctx context.Context, id int64) (ApplicationResponse, error) {
	return s.mutate(ctx, id, func(ctx context.Context, tx db.DBTX, a *Application) error {
		if a.Status != enums.LoanSubmitted {
			return guard(a.Status, enums.LoanUnderReview)
		}
		return s.toUnderReview(ctx, tx, a)
	})
}

func (s *Service) Approve(ctx context.Context, id int64, approverName string, remarks *string, method string) (ApplicationResponse, error) {
	return s.mutate(ctx, id, func(ctx context.Context, tx db.DBTX, a *Application) error {
		return s.approve(ctx, tx, a, approverName, remarks, method)
	})
}

func (s *Service) approve(ctx context.Context, tx db.DBTX, a *Application, approverName string, remarks *string, method string) error {
	if err := guard(a.Status, enums.LoanApproved); err != nil {
		return err
	}
	if method != ApprovalMethodEmail {
		method = ApprovalMethodPortal
	}
	if err := s.store.SetApproved(ctx, tx, a.ID, a.Status, s.clock.Now(), strings.TrimSpace(approverName), method, nullStr(remarks)); err != nil {
		return err
	}
	return s.enqueueTx(ctx, tx, jobs.MailLoanApproved, jobs.LoanMail{ApplicationID: a.ID},
		"loan-approved:"+a.ApplicationNumber)
}

// Decline は理由必須。理由が無ければ状態は変えない。
func (s *Service) Decline(ctx context.Context, id int64, reason, method string) (ApplicationResponse, error) {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return ApplicationResponse{}, apierr.Invalid("reason is required").WithDetail("reason", "required")
	}
	return s.mutate(ctx, id, func(ctx context.Context, tx db.DBTX, a *Application) error {
		return s.decline(ctx, tx, a, reason, method)
	})
}

func (s *Service) decline(ctx context.Context, tx db.DBTX, a *Application, reason, method string) error {
	if err := guard(a.Status, enums.LoanRejected); err != nil {
		return err
	}
	if method != ApprovalMethodEmail {
		method = ApprovalMethodPortal
	}
	return s.store.SetRejected(ctx, tx, a.ID, a.Status, reason, method)
}

// ===== メール承認（ログイン不要） =====

func (s *Service) verifyToken(token string) (ApprovalClaims, error) {
	c, err := s.tokens.Verify(token)
	if err != nil {
		return ApprovalClaims{}, apierr.Unauthorized("invalid or expired approval token")
	}
	return c, nil
}

// checkToken は DB に保存された jti と有効期限を突き合わせる（使い捨て）
func (s *Service) checkToken(a *Application, c ApprovalClaims) error {
	if !a.ApprovalToken.Valid || a.ApprovalToken.String != c.JTI {
		return apierr.Unauthorized("approval token is no longer valid")
	}
	if a.ApprovalTokenExpiresAt.Valid && !s.clock.Now().Before(a.ApprovalTokenExpiresAt.Time) {
		return apierr.Unauthorized("approval token expired")
	}
	return nil
}

func (s *Service) GetApproval(ctx context.Context, token string) (ApprovalView, error) {
	c, err := s.verifyToken(token)
	if err != nil {
		return ApprovalView{}, err
	}
	a, err := s.store.GetByNumber(ctx, nil, c.ApplicationNumber)
	if err != nil {
		return ApprovalView{}, notFound(err)
	}
	if err := s.checkToken(a, c); err != nil {
		return ApprovalView{}, err
	}
	items, err := s.store.ListItems(ctx, nil, a.ID)
	if err != nil {
		return ApprovalView{}, err
	}
	return ApprovalView{
		ApplicationNumber: a.ApplicationNumber,
		Status:            a.Status,
		ApplicantName:     a.ApplicantName,
		Division:          ptrStr(a.Division),
		Purpose:           a.Purpose,
		LoanStartDate:     a.LoanStartDate.Format(dateLayout),
		LoanEndDate:       a.LoanEndDate.Format(dateLayout),
		TotalValue:        a.TotalValue,
		ItemCount:         len(items),
		ExpiresAt:         c.ExpiresAt,
	}, nil
}

func (s *Service) byToken(ctx context.Context, token string, fn func(ctx context.Context, tx db.DBTX, a *Application) error) (ApplicationResponse, error) {
	c, err := s.verifyToken(token)
	if err != nil {
		return ApplicationResponse{}, err
	}
	a, err := s.store.GetByNumber(ctx, nil, c.ApplicationNumber)
	if err != nil {
		return ApplicationResponse{}, notFound(err)
	}
	return s.mutate(ctx, a.ID, func(ctx context.Context, tx db.DBTX, locked *Application) error {
		if err := s.checkToken(locked, c); err != nil {
			return err
		}
		return fn(ctx, tx, locked)
	})
}

func (s *Service) ApproveByToken(ctx context.Context, token, approverName string, remarks *string) (ApplicationResponse, error) {
	return s.byToken(ctx, token, func(ctx context.Context, tx db.DBTX, a *Application) error {
		name := strings.TrimSpace(approverName)
		if name == "" {
			name = a.ApproverEmail.String
		}
		return s.approve(ctx, tx, a, name, remarks, ApprovalMethodEmail)
	})
}

func (s *Service) DeclineByToken(ctx context.Context, token, reason string) (ApplicationResponse, error) {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return ApplicationResponse{}, apierr.Invalid("reason is required").WithDetail("reason", "required")
	}
	return s.byToken(ctx, token, func(ctx context.Context, tx db.DBTX, a *Application) error {
		return s.decline(ctx, tx, a, reason, ApprovalMethodEmail)
	})
}

func (s *Service) RequestInfo(ctx context.Context, id int64, note string) (ApplicationResponse, error) {
	note = strings.TrimSpace(note)
	if note == "" {
		return ApplicationResponse{}, apierr.Invalid("note is required").WithDetail("note", "required")
	}
	return s.mutate(ctx, id, func(ctx context.Context, tx db.DBTX, a *Application) error {
		if err := guard(a.Status, enums.LoanPendingInfo); err != nil {
			return err
		}
		return s.store.SetPendingInfo(ctx, tx, id, a.Status, note)
	})
}

// Resubmit: pending_info → under_review
func (s *Service) Resubmit(ctx context.Context, id int64) (ApplicationResponse, error) {
	return s.mutate(ctx, id, func(ctx context.Context, tx db.DBTX, a *Application) error {
		if a.Status != enums.LoanPendingInfo {
			return apierr.Transition(&enums.TransitionError{Entity: "loan status", From: string(a.Status), To: string(enums.LoanUnderReview)})
		}
		return s.toUnderReview(ctx, tx, a)
	})
}

// ===== 貸出中の操作 =====

func (s *Service) newTx(a *Application, assetID int64, typ enums.TransactionType, by string) (*Transaction, error) {
	u, err := s.id.New()
	if err != nil {
		return nil, err
	}
	return &Transaction{
		ULID:              u,
		LoanApplicationID: a.ID,
		AssetID:           assetID,
		Type:              typ,
		ProcessedBy:       someStr(by),
		ProcessedAt:       s.clock.Now(),
	}, nil
}

func (s *Service) Extend(ctx context.Context, id int64, in ExtendRequest, processedBy string) (ApplicationResponse, error) {
	newEnd, err := parseDate("new_end_date", in.NewEndDate)
	if err != nil {
		return ApplicationResponse{}, err
	}
	reason := strings.TrimSpace(in.Reason)
	if reason == "" {
		return ApplicationResponse{}, apierr.Invalid("reason is required").WithDetail("reason", "required")
	}
	return s.mutate(ctx, id, func(ctx context.Context, tx db.DBTX, a *Application) error {
		if newEnd.Before(a.LoanStartDate) {
			return apierr.Invalid("new end date is before loan start").WithDetail("new_end_date", "must be on or after loan_start_date")
		}
		if !newEnd.After(a.LoanEndDate) {
			return apierr.Invalid("new end date must be after current end date").WithDetail("new_end_date", "must be after "+a.LoanEndDate.Format(dateLayout))
		}
		if err := guard(a.Status, enums.LoanReturnDue); err != nil {
			return err
		}
		items, err := s.store.ListItems(ctx, tx, id)
		if err != nil {
			return err
		}
		note := fmt.Sprintf("%s (end %s -> %s)", reason, a.LoanEndDate.Format(dateLayout), newEnd.Format(dateLayout))
		for _, it := range items {
			if it.Returned() {
				continue
			}
			t, err := s.newTx(a, it.AssetID, enums.TxExtend, processedBy)
			if err != nil {
				return err
			}
			t.Notes = someStr(note)
			if err := s.store.InsertTransaction(ctx, tx, t); err != nil {
				return err
			}
		}
		return s.store.SetExtended(ctx, tx, id, a.Status, newEnd)
	})
}

func (s *Service) Issue(ctx context.Context, id int64, in IssueRequest, processedBy string) (ApplicationResponse, error) {
	override := map[int64]enums.AssetCondition{}
	for _, it := range in.Items {
		if !it.Condition.Valid() {
			return ApplicationResponse{}, apierr.Invalid("invalid condition").WithDetail("items", fmt.Sprintf("asset %d", it.AssetID))
		}
		override[it.AssetID] = it.Condition
	}
	return s.mutate(ctx, id, func(ctx context.Context, tx db.DBTX, a *Application) error {
		if err := guard(a.Status, enums.LoanIssued); err != nil {
			return err
		}
		items, err := s.store.ListItems(ctx, tx, id)
		if err != nil {
			return err
		}
		inApp := map[int64]bool{}
		for _, it := range items {
			inApp[it.AssetID] = true
		}
		for assetID := range override {
			if !inApp[assetID] {
				return apierr.Invalid("asset is not part of this application").WithDetail("items", fmt.Sprintf("asset %d", assetID))
			}
		}

		for _, it := range items {
			asset, err := s.assets.GetForUpdate(ctx, tx, it.AssetID)
			if err != nil {
				if errors.Is(err, sql.ErrNoRows) {
					return apierr.Conflict(fmt.Sprintf("asset %d no longer exists", it.AssetID))
				}
				return err
			}
			if !asset.Status.CanBeLoaned() {
				return apierr.Conflict("asset is not available").WithDetail("items", fmt.Sprintf("%s is %s", asset.AssetTag, asset.Status))
			}
			cond, ok := override[it.AssetID]
			if !ok {
				cond = asset.Condition
			}
			if err := s.assets.SetStatus(ctx, tx, it.AssetID, enums.AssetLoaned); err != nil {
				return err
			}
			if cond != it.ConditionBefore {
				if err := s.store.SetItemConditionBefore(ctx, tx, it.ID, cond); err != nil {
					return err
				}
			}
			t, err := s.newTx(a, it.AssetID, enums.TxIssue, processedBy)
			if err != nil {
				return err
			}
			t.ConditionBefore = condStr(cond)
			t.Notes = nullStr(in.Notes)
			if err := s.store.InsertTransaction(ctx, tx, t); err != nil {
				return err
			}
		}
		return s.store.UpdateStatus(ctx, tx, id, a.Status, enums.LoanIssued)
	})
}

// MarkInUse: 受領確認。issued → in_use
func (s *Service) MarkInUse(ctx context.Context, id int64) (ApplicationResponse, error) {
	return s.mutate(ctx, id, func(ctx context.Context, tx db.DBTX, a *Application) error {
		if err := guard(a.Status, enums.LoanInUse); err != nil {
			return err
		}
		return s.store.UpdateStatus(ctx, tx, id, a.Status, enums.LoanInUse)
	})
}

func (s *Service) Return(ctx context.Context, id int64, in ReturnRequest, processedBy string) (ApplicationResponse, error) {
	if len(in.Items) == 0 {
		return ApplicationResponse{}, apierr.Invalid("items are required")
	}
	return s.mutate(ctx, id, func(ctx context.Context, tx db.DBTX, a *Application) error {
		return s.returnItems(ctx, tx, a, in.Items, processedBy, in.Notes)
	})
}

// ReturnNotification は資産単位の返却記録（外部 API 用）。貸出中の申請を引き当てる。
func (s *Service) ReturnNotification(ctx context.Context, assetID int64, in ReturnNotificationRequest) (ApplicationResponse, error) {
	var appID int64
	by := ""
	if in.ProcessedBy != nil {
		by = strings.TrimSpace(*in.ProcessedBy)
	}
	err := db.RunInTx(ctx, s.db, nil, func(ctx context.Context, tx db.DBTX) error {
		apps, err := s.store.ListActiveByAsset(ctx, tx, assetID)
		if err != nil {
			return err
		}
		if len(apps) == 0 {
			return apierr.NotFound("no active loan for asset")
		}
		a := &apps[0]
		appID = a.ID
		return s.returnItems(ctx, tx, a, []ReturnItem{{
			AssetID: assetID, ConditionAfter: in.ConditionAfter, DamageReport: in.DamageReport,
		}}, by, nil)
	})
	if err != nil {
		return ApplicationResponse{}, err
	}
	return s.Get(ctx, appID)
}

// returnItems は返却を記録する。全品返却で returned、劣化品があれば maintenance_required。
// 劣化品ごとに AssetReturnedDamaged を同一 Tx で発行する。
func (s *Service) returnItems(ctx context.Context, tx db.DBTX, a *Application, in []ReturnItem, processedBy string, notes *string) error {
	if !a.Status.IsActive() {
		return guard(a.Status, enums.LoanReturned)
	}
	items, err := s.store.ListItems(ctx, tx, a.ID)
	if err != nil {
		return err
	}
	byAsset := map[int64]*Item{}
	for i := range items {
		byAsset[items[i].AssetID] = &items[i]
	}

	returning := map[int64]bool{}
	degraded := a.MaintenanceRequired
	for _, ri := range in {
		it, ok := byAsset[ri.AssetID]
		if !ok {
			return apierr.Invalid("asset is not part of this application").WithDetail("items", fmt.Sprintf("asset %d", ri.AssetID))
		}
		if it.Returned() || returning[ri.AssetID] {
			return apierr.Conflict(fmt.Sprintf("asset %d already returned", ri.AssetID))
		}
		if !ri.ConditionAfter.Valid() {
			return apierr.Invalid("invalid condition_after").WithDetail("items", fmt.Sprintf("asset %d", ri.AssetID))
		}
		returning[ri.AssetID] = true
		if ri.ConditionAfter.RequiresMaintenance() {
			degraded = true
		}
	}
	remaining := 0
	for _, it := range items {
		if !it.Returned() && !returning[it.AssetID] {
			remaining++
		}
	}

	// 遷移先を先に決めて表で検査する
	final := enums.LoanReturning
	if remaining == 0 {
		if err := guard(a.Status, enums.LoanReturned); err != nil {
			return err
		}
		final = enums.LoanReturned
		if degraded {
			if err := guard(enums.LoanReturned, enums.LoanMaintenanceRequired); err != nil {
				return err
			}
			final = enums.LoanMaintenanceRequired
		}
	} else if a.Status != enums.LoanReturning {
		if err := guard(a.Status, enums.LoanReturning); err != nil {
			return err
		}
	}

	for _, ri := range in {
		it := byAsset[ri.AssetID]
		if _, err := s.assets.GetForUpdate(ctx, tx, ri.AssetID); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return apierr.Conflict(fmt.Sprintf("asset %d no longer exists", ri.AssetID))
			}
			return err
		}
		report := nullStr(ri.DamageReport)
		if err := s.store.SetItemReturned(ctx, tx, it.ID, ri.ConditionAfter, report); err != nil {
			return err
		}
		t, err := s.newTx(a, ri.AssetID, enums.TxReturn, processedBy)
		if err != nil {
			return err
		}
		t.ConditionBefore = condStr(it.ConditionBefore)
		t.ConditionAfter = condStr(ri.ConditionAfter)
		t.DamageReport = report
		t.Notes = nullStr(notes)
		if err := s.store.InsertTransaction(ctx, tx, t); err != nil {
			return err
		}

		if !ri.ConditionAfter.RequiresMaintenance() {
			if err := s.assets.ApplyReturn(ctx, tx, ri.AssetID, ri.ConditionAfter); err != nil {
				return err
			}
			continue
		}
		if err := s.assets.MarkDamaged(ctx, tx, ri.AssetID, ri.ConditionAfter); err != nil {
			return err
		}
		ev := events.BuildAssetReturnedDamaged(t.ID, t.ULID, a.ID, ri.AssetID,
			it.ConditionBefore, ri.ConditionAfter, report.String, t.ProcessedAt)
		if err := s.events.PublishTx(ctx, tx, ev); err != nil {
			return err
		}
		log.Printf("[INFO] asset returned damaged application=%s asset_id=%d condition=%s tx=%s",
			a.ApplicationNumber, ri.AssetID, ri.ConditionAfter, t.ULID)
	}

	if final != a.Status {
		return s.store.SetReturnOutcome(ctx, tx, a.ID, a.Status, final, degraded)
	}
	if degraded && !a.MaintenanceRequired {
		return s.store.MarkMaintenanceRequired(ctx, tx, a.ID)
	}
	return nil
}

// Recall: 管理者による貸出中資産の呼び戻し
func (s *Service) Recall(ctx context.Context, id int64, reason, processedBy string) (ApplicationResponse, error) {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return ApplicationResponse{}, apierr.Invalid("reason is required").WithDetail("reason", "required")
	}
	return s.mutate(ctx, id, func(ctx context.Context, tx db.DBTX, a *Application) error {
		if err := guard(a.Status, enums.LoanReturning); err != nil {
			return err
		}
		items, err := s.store.ListItems(ctx, tx, id)
		if err != nil {
			return err
		}
		for _, it := range items {
			if it.Returned() {
				continue
			}
			t, err := s.newTx(a, it.AssetID, enums.TxRecall, processedBy)
			if err != nil {
				return err
			}
			t.Notes = someStr(reason)
			if err := s.store.InsertTransaction(ctx, tx, t); err != nil {
				return err
			}
		}
		return s.store.UpdateStatus(ctx, tx, id, a.Status, enums.LoanReturning)
	})
}

func (s *Service) Complete(ctx context.Context, id int64) (ApplicationResponse, error) {
	return s.mutate(ctx, id, func(ctx context.Context, tx db.DBTX, a *Application) error {
		if err := guard(a.Status, enums.LoanCompleted); err != nil {
			return err
		}
		return s.store.UpdateStatus(ctx, tx, id, a.Status, enums.LoanCompleted)
	})
}

// Delete は論理削除のみ。資産を持ち出し中の申請は消せない。
func (s *Service) Delete(ctx context.Context, id int64) error {
	return db.RunInTx(ctx, s.db, nil, func(ctx context.Context, tx db.DBTX) error {
		a, err := s.store.GetForUpdate(ctx, tx, id)
		if err != nil {
			return notFound(err)
		}
		if a.Status.IsActive() {
			return apierr.Conflict("loan is active; return the assets first")
		}
		return s.store.SoftDelete(ctx, tx, id, s.clock.Now())
	})
}

func (s *Service) ListTransactions(ctx context.Context, id int64) ([]TransactionResponse, error) {
	if _, err := s.store.GetByID(ctx, nil, id); err != nil {
		return nil, notFound(err)
	}
	list, err := s.store.ListTransactions(ctx, id)
	if err != nil {
		return nil, err
	}
	out := make([]TransactionResponse, 0, len(list))
	for i := range list {
		out = append(out, list[i].Response())
	}
	return out, nil
}

// ===== スケジューラ用 =====

// MarkOverdue は返却期限を過ぎた貸出を overdue にして通知ジョブを積む。件数を返す。
func (s *Service) MarkOverdue(ctx context.Context) (int, error) {
	today := s.today()
	apps, err := s.store.ListActiveEndingBefore(ctx, today)
	if err != nil {
		return 0, err
	}
	n := 0
	for _, cand := range apps {
		changed := false
		err := db.RunInTx(ctx, s.db, nil, func(ctx context.Context, tx db.DBTX) error {
			a, err := s.store.GetForUpdate(ctx, tx, cand.ID)
			if err != nil {
				return err
			}
			// 取得後に状態が変わっていれば何もしない
			if !enums.CanTransition(a.Status, enums.LoanOverdue) || !a.LoanEndDate.Before(today) {
				return nil
			}
			if err := s.store.UpdateStatus(ctx, tx, a.ID, a.Status, enums.LoanOverdue); err != nil {
				return err
			}
			changed = true
			return s.enqueueTx(ctx, tx, jobs.MailAssetOverdue, jobs.LoanMail{ApplicationID: a.ID},
				fmt.Sprintf("asset-overdue:%d:%s", a.ID, today.Format(dateLayout)))
		})
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				continue
			}
			return n, fmt.Errorf("mark overdue application=%s: %w", cand.ApplicationNumber, err)
		}
		if changed {
			n++
		}
	}
	return n, nil
}

// MarkReturnDue は明日が返却期限の貸出を return_due にする
func (s *Service) MarkReturnDue(ctx context.Context) (int, error) {
	tomorrow := s.today().AddDate(0, 0, 1)
	apps, err := s.store.ListActiveEndingOn(ctx, tomorrow)
	if err != nil {
		return 0, err
	}
	n := 0
	for _, cand := range apps {
		changed := false
		err := db.RunInTx(ctx, s.db, nil, func(ctx context.Context, tx db.DBTX) error {
			a, err := s.store.GetForUpdate(ctx, tx, cand.ID)
			if err != nil {
				return err
			}
			if a.Status != enums.LoanIssued && a.Status != enums.LoanInUse {
				return nil
			}
			if err := s.store.UpdateStatus(ctx, tx, a.ID, a.Status, enums.LoanReturnDue); err != nil {
				return err
			}
			changed = true
			return nil
		})
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				continue
			}
			return n, fmt.Errorf("mark return due application=%s: %w", cand.ApplicationNumber, err)
		}
		if changed {
			n++
		}
	}
	return n, nil
}
