package exports

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"ICTSERVE-backend/internal/asset_mgmt/loans"
	"ICTSERVE-backend/internal/enums"
	"ICTSERVE-backend/internal/jobs"
	"ICTSERVE-backend/internal/platform/apierr"
	"ICTSERVE-backend/internal/platform/db"
	"ICTSERVE-backend/internal/platform/ids"
	"ICTSERVE-backend/internal/platform/paging"
	"ICTSERVE-backend/internal/platform/queue"
)

// JobPolicy: 大きな一覧でも収まるよう 1 回 5 分
var JobPolicy = queue.Policy{
	MaxAttempts: 2,
	Backoff:     []time.Duration{time.Minute},
	Timeout:     5 * time.Minute,
}

const dateLayout = "2006-01-02"

type Service struct {
	db     *sql.DB
	store  *Store
	loans  *loans.Store
	queue  queue.Enqueuer
	dir    string
	clock  ids.Clock
	id     ids.IDGen
	loc    *time.Location
	logger *log.Logger
}

func NewService(sqlDB *sql.DB, q queue.Enqueuer, dir string) *Service {
	return &Service{
		db:     sqlDB,
		store:  NewStore(sqlDB),
		loans:  loans.NewStore(sqlDB),
		queue:  q,
		dir:    dir,
		clock:  ids.RealClock{},
		id:     ids.NewULIDGen(),
		loc:    time.UTC,
		logger: log.Default(),
	}
}

func (s *Service) WithClock(c ids.Clock) *Service         { s.clock = c; return s }
func (s *Service) WithIDGen(g ids.IDGen) *Service         { s.id = g; return s }
func (s *Service) WithLocation(l *time.Location) *Service { s.loc = l; return s }
func (s *Service) WithLogger(l *log.Logger) *Service      { s.logger = l; return s }

func (s *Service) Register(q *queue.Queue) {
	q.Register(jobs.ExportLoanSubmissions, s.Handle, JobPolicy)
}

func notFound(err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return apierr.NotFound("export not found")
	}
	return err
}

// toListFilter は保存済みの条件を申請一覧の絞り込みに戻す
func (f Filters) toListFilter() (loans.ListFilter, error) {
	var out loans.ListFilter
	verr := apierr.Invalid("validation failed")
	if f.Status != "" {
		st, err := enums.ParseLoanStatus(f.Status)
		if err != nil {
			verr.WithDetail("status", "invalid")
		}
		out.Status = &st
	}
	if f.Priority != "" {
		p, err := enums.ParseLoanPriority(f.Priority)
		if err != nil {
			verr.WithDetail("priority", "invalid")
		}
		out.Priority = &p
	}
	if f.StartFrom != "" {
		t, err := time.Parse(dateLayout, f.StartFrom)
		if err != nil {
			verr.WithDetail("start_from", "must be YYYY-MM-DD")
		}
		out.StartFrom = &t
	}
	if f.StartTo != "" {
		t, err := time.Parse(dateLayout, f.StartTo)
		if err != nil {
			verr.WithDetail("start_to", "must be YYYY-MM-DD")
		}
		out.StartTo = &t
	}
	if out.StartFrom != nil && out.StartTo != nil && out.StartTo.Before(*out.StartFrom) {
		verr.WithDetail("start_to", "must be on or after start_from")
	}
	if len(verr.Details) > 0 {
		return loans.ListFilter{}, verr
	}
	return out, nil
}

// Request は export 行を pending で作り、生成ジョブを同じ Tx で積む
func (s *Service) Request(ctx context.Context, in CreateRequest, requestedBy string) (Response, error) {
	in.Format = strings.ToLower(strings.TrimSpace(in.Format))
	if in.Format != FormatXLSX && in.Format != FormatCSV {
		return Response{}, apierr.Invalid("validation failed").WithDetail("format", "must be xlsx or csv")
	}
	if _, err := in.Filters.toListFilter(); err != nil {
		return Response{}, err
	}
	filters, err := json.Marshal(in.Filters)
	if err != nil {
		return Response{}, err
	}
	ulid, err := s.id.New()
	if err != nil {
		return Response{}, err
	}

	e := &Export{
		ULID:      ulid,
		Format:    in.Format,
		Status:    StatusPending,
		Filters:   filters,
		CreatedAt: s.clock.Now().UTC(),
	}
	if requestedBy != "" {
		e.RequestedBy = sql.NullString{String: requestedBy, Valid: true}
	}
	err = db.ReadCommitted(ctx, s.db, func(ctx context.Context, tx db.DBTX) error {
		if err := s.store.Insert(ctx, tx, e); err != nil {
			return err
		}
		_, err := s.queue.EnqueueTx(ctx, tx, jobs.ExportLoanSubmissions, jobs.Export{ExportID: e.ID},
			queue.WithUniqueKey("export:"+e.ULID))
		return err
	})
	if err != nil {
		return Response{}, err
	}
	return e.Response(), nil
}

func (s *Service) Get(ctx context.Context, ulid string) (Response, error) {
	e, err := s.store.GetByULID(ctx, ulid)
	if err != nil {
		return Response{}, notFound(err)
	}
	return e.Response(), nil
}

func (s *Service) List(ctx context.Context, p paging.Page) ([]Response, int64, error) {
	list, total, err := s.store.List(ctx, p)
	if err != nil {
		return nil, 0, err
	}
	out := make([]Response, 0, len(list))
	for i := range list {
		out = append(out, list[i].Response())
	}
	return out, total, nil
}

// File はダウンロード対象のパスとファイル名を返す
func (s *Service) File(ctx context.Context, ulid string) (string, string, error) {
	e, err := s.store.GetByULID(ctx, ulid)
	if err != nil {
		return "", "", notFound(err)
	}
	if e.Status != StatusCompleted || !e.FilePath.Valid {
		return "", "", apierr.Conflict("export is " + e.Status)
	}
	if _, err := os.Stat(e.FilePath.String); err != nil {
		return "", "", apierr.NotFound("export file is no longer available")
	}
	return e.FilePath.String, e.Filename(), nil
}

// Handle は export.loan_submissions のハンドラ
func (s *Service) Handle(ctx context.Context, job *queue.Job) error {
	var p jobs.Export
	if err := job.Decode(&p); err != nil {
		return queue.Permanent(err)
	}
	e, err := s.store.GetByID(ctx, p.ExportID)
	if errors.Is(err, sql.ErrNoRows) {
		s.logger.Printf("[WARN] %s skipped: export %d not found", job.Type, p.ExportID)
		return nil
	}
	if err != nil {
		return err
	}
	if e.Status != StatusPending {
		return nil
	}

	path, n, err := s.generate(ctx, e)
	if err != nil {
		last := job.Attempts >= job.MaxAttempts || queue.IsPermanent(err)
		if last {
			if ferr := s.store.MarkFailed(context.WithoutCancel(ctx), e.ID, err.Error(), s.clock.Now().UTC()); ferr != nil {
				s.logger.Printf("[ERROR] export mark failed id=%d: %v", e.ID, ferr)
			}
		}
		return err
	}
	if err := s.store.MarkCompleted(ctx, e.ID, path, n, s.clock.Now().UTC()); err != nil {
		_ = os.Remove(path)
		return err
	}
	s.logger.Printf("[INFO] export completed id=%s format=%s rows=%d", e.ULID, e.Format, n)
	return nil
}

func (s *Service) generate(ctx context.Context, e *Export) (string, int, error) {
	var f Filters
	if len(e.Filters) > 0 {
		if err := json.Unmarshal(e.Filters, &f); err != nil {
			return "", 0, queue.Permanent(fmt.Errorf("decode filters: %w", err))
		}
	}
	lf, err := f.toListFilter()
	if err != nil {
		return "", 0, queue.Permanent(err)
	}
	apps, err := s.loans.ListAll(ctx, lf)
	if err != nil {
		return "", 0, err
	}

	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return "", 0, err
	}
	// 書き終えてから rename する（途中のファイルを配らない）
	tmp, err := os.CreateTemp(s.dir, ".export-*")
	if err != nil {
		return "", 0, err
	}
	defer os.Remove(tmp.Name())

	switch e.Format {
	case FormatCSV:
		err = WriteCSV(tmp, apps, s.loc)
	case FormatXLSX:
		err = WriteXLSX(tmp, apps, s.loc)
	default:
		err = queue.Permanent(fmt.Errorf("unknown export format %q", e.Format))
	}
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return "", 0, err
	}

	path := filepath.Join(s.dir, e.Filename())
	if err := os.Rename(tmp.Name(), path); err != nil {
		return "", 0, err
	}
	return path, len(apps), nil
}
