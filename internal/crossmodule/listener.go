package crossmodule

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"ICTSERVE-backend/internal/asset_mgmt/assets"
	"ICTSERVE-backend/internal/asset_mgmt/loans"
	"ICTSERVE-backend/internal/enums"
	"ICTSERVE-backend/internal/events"
	"ICTSERVE-backend/internal/helpdesk/categories"
	"ICTSERVE-backend/internal/helpdesk/tickets"
	"ICTSERVE-backend/internal/jobs"
	"ICTSERVE-backend/internal/platform/apierr"
	"ICTSERVE-backend/internal/platform/db"
	"ICTSERVE-backend/internal/platform/ids"
	"ICTSERVE-backend/internal/platform/metrics"
	"ICTSERVE-backend/internal/platform/queue"
)

// DamagePolicy: 3回まで 10s/30s/60s で再試行、1回 60 秒
var DamagePolicy = queue.Policy{
	MaxAttempts: 3,
	Backoff:     []time.Duration{10 * time.Second, 30 * time.Second, 60 * time.Second},
	Timeout:     60 * time.Second,
}

// 処理済み・参照先消失はロールバックした上で成功扱いにする
var (
	errAlreadyProcessed = errors.New("already processed")
	errEntityMissing    = errors.New("entity missing")
)

// DamageListener は asset_returned_damaged を受けてメンテナンス票を起票する
type DamageListener struct {
	db         *sql.DB
	store      *Store
	tickets    *tickets.Service
	categories *categories.Store
	assets     *assets.Store
	loans      *loans.Store
	queue      queue.Enqueuer
	clock      ids.Clock
	loc        *time.Location
	highValue  float64
	logger     *log.Logger
	metrics    *metrics.Metrics
}

func NewDamageListener(sqlDB *sql.DB, q queue.Enqueuer, ts *tickets.Service, highValue float64) *DamageListener {
	return &DamageListener{
		db:         sqlDB,
		store:      NewStore(sqlDB),
		tickets:    ts,
		categories: categories.NewStore(sqlDB),
		assets:     assets.NewStore(sqlDB),
		loans:      loans.NewStore(sqlDB),
		queue:      q,
		clock:      ids.RealClock{},
		loc:        time.UTC,
		highValue:  highValue,
		logger:     log.Default(),
	}
}

func (l *DamageListener) WithClock(c ids.Clock) *DamageListener           { l.clock = c; return l }
func (l *DamageListener) WithLocation(loc *time.Location) *DamageListener { l.loc = loc; return l }
func (l *DamageListener) WithLogger(lg *log.Logger) *DamageListener       { l.logger = lg; return l }
func (l *DamageListener) WithMetrics(m *metrics.Metrics) *DamageListener  { l.metrics = m; return l }

// Register はキューにハンドラを登録する
func (l *DamageListener) Register(q *queue.Queue) {
	q.Register(events.JobType(events.AssetReturnedDamagedEventType), l.Handle, DamagePolicy)
}

// Priority: damaged → critical / poor か高額 → high / fair → medium / それ以外 normal
func Priority(after enums.AssetCondition, currentValue, highValue float64) enums.TicketPriority {
	switch {
	case after == enums.ConditionDamaged:
		return enums.TicketCritical
	case after == enums.ConditionPoor || (highValue > 0 && currentValue >= highValue):
		return enums.TicketHigh
	case after == enums.ConditionFair:
		return enums.TicketMedium
	default:
		return enums.TicketNormal
	}
}

// Handle は queue.Handler。エラーを返すとキューが再試行する。
func (l *DamageListener) Handle(ctx context.Context, job *queue.Job) error {
	ev, err := events.DecodeAssetReturnedDamaged(job.Payload)
	if err != nil {
		return queue.Permanent(err)
	}
	if err := ev.Validate(); err != nil {
		return queue.Permanent(err)
	}
	return l.Process(ctx, ev)
}

func (l *DamageListener) Process(ctx context.Context, ev events.AssetReturnedDamaged) error {
	var ticket *tickets.Ticket
	err := db.ReadCommitted(ctx, l.db, func(ctx context.Context, tx db.DBTX) error {
		t, err := l.apply(ctx, tx, ev)
		ticket = t
		return err
	})
	switch {
	case err == nil:
		l.logger.Printf("[INFO] maintenance ticket created ticket=%s application_id=%d asset_id=%d tx=%s",
			ticket.TicketNumber, ev.LoanApplicationID, ev.AssetID, ev.TransactionULID)
		l.metrics.RecordDamageEvent("created")
		return nil
	case errors.Is(err, errAlreadyProcessed):
		l.logger.Printf("[INFO] asset_returned_damaged already processed key=%s", ev.IdempotencyKey())
		l.metrics.RecordDamageEvent("duplicate")
		return nil
	case errors.Is(err, errEntityMissing):
		l.logger.Printf("[WARN] asset_returned_damaged skipped: %v application_id=%d asset_id=%d tx=%s",
			err, ev.LoanApplicationID, ev.AssetID, ev.TransactionULID)
		l.metrics.RecordDamageEvent("skipped")
		return nil
	default:
		l.logger.Printf("[ERROR] asset_returned_damaged failed application_id=%d asset_id=%d tx=%s condition=%s->%s: %v",
			ev.LoanApplicationID, ev.AssetID, ev.TransactionULID, ev.ConditionBefore, ev.ConditionAfter, err)
		return err
	}
}

func missing(what string, id int64, err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%w: %s %d", errEntityMissing, what, id)
	}
	return err
}

func (l *DamageListener) apply(ctx context.Context, tx db.DBTX, ev events.AssetReturnedDamaged) (*tickets.Ticket, error) {
	key := ev.IdempotencyKey()

	// 1) 冪等チェック
	if _, err := l.store.GetByKey(ctx, tx, key); err == nil {
		return nil, errAlreadyProcessed
	} else if !errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}

	// 2) 参照先
	txn, err := l.loans.GetTransaction(ctx, tx, ev.LoanTransactionID)
	if err != nil {
		return nil, missing("loan transaction", ev.LoanTransactionID, err)
	}
	asset, err := l.assets.GetForUpdate(ctx, tx, ev.AssetID)
	if err != nil {
		return nil, missing("asset", ev.AssetID, err)
	}
	// 返却後に論理削除されていても起票する
	app, err := l.loans.GetByIDWithDeleted(ctx, tx, ev.LoanApplicationID)
	if err != nil {
		return nil, missing("loan application", ev.LoanApplicationID, err)
	}

	// 3) 分類が無いのは設定漏れなので再試行させる
	cat, err := l.categories.GetActiveByCode(ctx, tx, categories.MaintenanceCode)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("helpdesk category %q is not configured", categories.MaintenanceCode)
	}
	if err != nil {
		return nil, err
	}

	// 4) 5) 起票
	report := strings.TrimSpace(ev.DamageReport)
	if report == "" && txn.DamageReport.Valid {
		report = txn.DamageReport.String
	}
	t, err := l.tickets.CreateTx(ctx, tx, tickets.NewTicket{
		Subject:        fmt.Sprintf("Maintenance required: %s (%s)", asset.Name, asset.AssetTag),
		Description:    description(app, asset, ev, report),
		Category:       cat,
		Priority:       Priority(ev.ConditionAfter, asset.CurrentValue, l.highValue),
		RequesterName:  app.ApplicantName,
		RequesterEmail: app.ApplicantEmail,
		AssetID:        sql.NullInt64{Int64: asset.AssetID, Valid: true},
		Source:         tickets.SourceSystem,
	})
	if err != nil {
		return nil, err
	}

	// 6) 資産と申請
	y, m, d := l.clock.Now().In(l.loc).Date()
	today := time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
	if err := l.assets.MarkMaintenance(ctx, tx, asset.AssetID, ev.ConditionAfter, today); err != nil {
		return nil, err
	}
	if err := l.loans.MarkMaintenanceRequired(ctx, tx, app.ID); err != nil {
		return nil, err
	}

	// 7) 関連付け
	data, err := json.Marshal(DamageData{
		TicketNumber:      t.TicketNumber,
		ApplicationNumber: app.ApplicationNumber,
		AssetTag:          asset.AssetTag,
		ConditionBefore:   string(ev.ConditionBefore),
		ConditionAfter:    string(ev.ConditionAfter),
		DamageReport:      report,
		TransactionULID:   ev.TransactionULID,
	})
	if err != nil {
		return nil, err
	}
	err = l.store.Insert(ctx, tx, &Integration{
		HelpdeskTicketID:  t.ID,
		LoanApplicationID: app.ID,
		IntegrationType:   TypeAssetDamageReport,
		TriggerEvent:      TriggerAssetReturnedDamaged,
		IntegrationData:   data,
		IdempotencyKey:    key,
		ProcessedAt:       l.clock.Now().UTC(),
	})
	if apierr.IsDuplicateKey(err) {
		// 並行実行の負け側
		return nil, errAlreadyProcessed
	}
	if err != nil {
		return nil, err
	}

	// 8) 通知はコミット後に見える
	_, err = l.queue.EnqueueTx(ctx, tx, jobs.MailMaintenanceTicket, jobs.MaintenanceMail{
		TicketID:          t.ID,
		LoanApplicationID: app.ID,
		AssetID:           asset.AssetID,
	}, queue.WithUniqueKey(fmt.Sprintf("maintenance-ticket:%d", t.ID)))
	if err != nil {
		return nil, err
	}
	return t, nil
}

func description(app *loans.Application, asset *assets.Asset, ev events.AssetReturnedDamaged, report string) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Asset %s (%s) was returned in %s condition (was %s).\n",
		asset.AssetTag, asset.Name, ev.ConditionAfter.Label(), ev.ConditionBefore.Label())
	fmt.Fprintf(&sb, "Loan application: %s\n", app.ApplicationNumber)
	fmt.Fprintf(&sb, "Returned by: %s <%s>\n", app.ApplicantName, app.ApplicantEmail)
	if report != "" {
		fmt.Fprintf(&sb, "\nDamage report:\n%s\n", report)
	}
	return sb.String()
}
