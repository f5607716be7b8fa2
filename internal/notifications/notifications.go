// Package notifications はメール送信ジョブのハンドラ
package notifications

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
	"ICTSERVE-backend/internal/helpdesk/tickets"
	"ICTSERVE-backend/internal/jobs"
	"ICTSERVE-backend/internal/platform/config"
	"ICTSERVE-backend/internal/platform/ids"
	"ICTSERVE-backend/internal/platform/mailer"
	"ICTSERVE-backend/internal/platform/queue"
)

// MailPolicy: SMTP の一時障害を想定して間隔を広めに取る
var MailPolicy = queue.Policy{
	MaxAttempts: 5,
	Backoff:     []time.Duration{30 * time.Second, 2 * time.Minute, 5 * time.Minute, 15 * time.Minute},
	Timeout:     60 * time.Second,
}

type Notifier struct {
	tickets *tickets.Store
	loans   *loans.Store
	assets  *assets.Store
	mailer  mailer.Mailer
	tokens  *loans.TokenSigner
	cfg     config.MailConfig
	clock   ids.Clock
	logger  *log.Logger
}

func New(sqlDB *sql.DB, m mailer.Mailer, tokens *loans.TokenSigner, cfg config.MailConfig) *Notifier {
	return &Notifier{
		tickets: tickets.NewStore(sqlDB),
		loans:   loans.NewStore(sqlDB),
		assets:  assets.NewStore(sqlDB),
		mailer:  m,
		tokens:  tokens,
		cfg:     cfg,
		clock:   ids.RealClock{},
		logger:  log.Default(),
	}
}

func (n *Notifier) WithClock(c ids.Clock) *Notifier      { n.clock = c; return n }
func (n *Notifier) WithLogger(l *log.Logger) *Notifier { n.logger = l; return n }

func (n *Notifier) Register(q *queue.Queue) {
	q.Register(jobs.MailTicketCreated, n.TicketCreated, MailPolicy)
	q.Register(jobs.MailLoanApprovalRequest, n.LoanApprovalRequest, MailPolicy)
	q.Register(jobs.MailLoanApproved, n.LoanApproved, MailPolicy)
	q.Register(jobs.MailAssetOverdue, n.AssetOverdue, MailPolicy)
	q.Register(jobs.MailMaintenanceTicket, n.MaintenanceTicket, MailPolicy)
}

func (n *Notifier) baseURL() string { return strings.TrimRight(n.cfg.PortalBaseURL, "/") }

// gone: 参照先が消えていたら警告して成功扱い
func (n *Notifier) gone(job *queue.Job, what string, id int64, err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		n.logger.Printf("[WARN] %s skipped: %s %d not found job=%s", job.Type, what, id, job.ULID)
		return nil
	}
	return err
}

func (n *Notifier) send(ctx context.Context, to []string, subject, tmpl string, data any) error {
	body, err := render(tmpl, data)
	if err != nil {
		return queue.Permanent(fmt.Errorf("render %s: %w", tmpl, err))
	}
	return n.mailer.Send(ctx, mailer.Message{To: to, Subject: subject, Body: body})
}

func (n *Notifier) TicketCreated(ctx context.Context, job *queue.Job) error {
	var p jobs.TicketMail
	if err := job.Decode(&p); err != nil {
		return queue.Permanent(err)
	}
	t, err := n.tickets.GetByID(ctx, nil, p.TicketID)
	if err != nil {
		return n.gone(job, "ticket", p.TicketID, err)
	}
	return n.send(ctx, []string{t.RequesterEmail},
		fmt.Sprintf("[%s] Ticket received: %s", t.TicketNumber, t.Subject),
		"ticket_created", map[string]any{"Ticket": t, "BaseURL": n.baseURL()})
}

// LoanApprovalRequest は DB の jti と期限から承認リンクを組み立て直す
func (n *Notifier) LoanApprovalRequest(ctx context.Context, job *queue.Job) error {
	var p jobs.LoanMail
	if err := job.Decode(&p); err != nil {
		return queue.Permanent(err)
	}
	a, err := n.loans.GetByID(ctx, nil, p.ApplicationID)
	if err != nil {
		return n.gone(job, "loan application", p.ApplicationID, err)
	}
	if a.Status != enums.LoanUnderReview || !a.ApprovalToken.Valid || !a.ApprovalTokenExpiresAt.Valid ||
		!a.ApproverEmail.Valid || a.ApproverEmail.String == "" {
		n.logger.Printf("[INFO] %s skipped: application=%s status=%s", job.Type, a.ApplicationNumber, a.Status)
		return nil
	}
	if !a.ApprovalTokenExpiresAt.Time.After(n.clock.Now()) {
		n.logger.Printf("[INFO] %s skipped: token expired application=%s", job.Type, a.ApplicationNumber)
		return nil
	}
	token, err := n.tokens.Sign(a.ApplicationNumber, a.ApprovalToken.String, a.ApprovalTokenExpiresAt.Time)
	if err != nil {
		return err
	}
	return n.send(ctx, []string{a.ApproverEmail.String},
		fmt.Sprintf("[%s] Loan approval request from %s", a.ApplicationNumber, a.ApplicantName),
		"loan_approval_request", map[string]any{
			"App": a, "Token": token, "ExpiresAt": a.ApprovalTokenExpiresAt.Time, "BaseURL": n.baseURL(),
		})
}

func (n *Notifier) LoanApproved(ctx context.Context, job *queue.Job) error {
	var p jobs.LoanMail
	if err := job.Decode(&p); err != nil {
		return queue.Permanent(err)
	}
	a, err := n.loans.GetByID(ctx, nil, p.ApplicationID)
	if err != nil {
		return n.gone(job, "loan application", p.ApplicationID, err)
	}
	return n.send(ctx, []string{a.ApplicantEmail},
		fmt.Sprintf("[%s] Loan application approved", a.ApplicationNumber),
		"loan_approved", map[string]any{"App": a})
}

func (n *Notifier) AssetOverdue(ctx context.Context, job *queue.Job) error {
	var p jobs.LoanMail
	if err := job.Decode(&p); err != nil {
		return queue.Permanent(err)
	}
	a, err := n.loans.GetByID(ctx, nil, p.ApplicationID)
	if err != nil {
		return n.gone(job, "loan application", p.ApplicationID, err)
	}
	if a.Status != enums.LoanOverdue {
		// 送信前に返却済み
		n.logger.Printf("[INFO] %s skipped: application=%s status=%s", job.Type, a.ApplicationNumber, a.Status)
		return nil
	}
	return n.send(ctx, []string{a.ApplicantEmail},
		fmt.Sprintf("[%s] Loan overdue", a.ApplicationNumber),
		"asset_overdue", map[string]any{"App": a})
}

func (n *Notifier) MaintenanceTicket(ctx context.Context, job *queue.Job) error {
	var p jobs.MaintenanceMail
	if err := job.Decode(&p); err != nil {
		return queue.Permanent(err)
	}
	if len(n.cfg.MaintenanceTeam) == 0 {
		n.logger.Printf("[WARN] %s skipped: mail.maintenance_team is empty ticket_id=%d", job.Type, p.TicketID)
		return nil
	}
	t, err := n.tickets.GetByID(ctx, nil, p.TicketID)
	if err != nil {
		return n.gone(job, "ticket", p.TicketID, err)
	}
	a, err := n.assets.GetByID(ctx, nil, p.AssetID)
	if err != nil {
		return n.gone(job, "asset", p.AssetID, err)
	}
	return n.send(ctx, n.cfg.MaintenanceTeam,
		fmt.Sprintf("[%s] Maintenance required: %s", t.TicketNumber, a.AssetTag),
		"maintenance_ticket", map[string]any{"Ticket": t, "Asset": a})
}
