package assets

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"ICTSERVE-backend/internal/enums"
	"ICTSERVE-backend/internal/platform/apierr"
	"ICTSERVE-backend/internal/platform/db"
	"ICTSERVE-backend/internal/platform/ids"
	"ICTSERVE-backend/internal/platform/paging"
)

// asset_tag の連番桁数
const tagPad = 5

type Service struct {
	db    *sql.DB
	store *Store
	clock ids.Clock
}

func NewService(sqlDB *sql.DB) *Service {
	return &Service{db: sqlDB, store: NewStore(sqlDB), clock: ids.RealClock{}}
}

func (s *Service) WithClock(c ids.Clock) *Service { s.clock = c; return s }

func (s *Service) Store() *Store { return s.store }

func parseDateArg(v *string) (any, error) {
	if v == nil || strings.TrimSpace(*v) == "" {
		return nil, nil
	}
	t, err := time.Parse(dateLayout, strings.TrimSpace(*v))
	if err != nil {
		return nil, apierr.Invalid("invalid date").WithDetail("next_maintenance_date", "must be YYYY-MM-DD")
	}
	return t.Format(dateLayout), nil
}

func (s *Service) Create(ctx context.Context, in CreateAssetRequest) (AssetResponse, error) {
	if strings.TrimSpace(in.Name) == "" || strings.TrimSpace(in.Category) == "" {
		return AssetResponse{}, apierr.Invalid("name and category are required")
	}
	if in.CurrentValue < 0 {
		return AssetResponse{}, apierr.Invalid("current_value must be >= 0").WithDetail("current_value", "negative")
	}
	cond := enums.ConditionGood
	if in.Condition != nil {
		if !in.Condition.Valid() {
			return AssetResponse{}, apierr.Invalid("invalid condition")
		}
		cond = *in.Condition
	}
	nextMaint, err := parseDateArg(in.NextMaintenanceDate)
	if err != nil {
		return AssetResponse{}, err
	}

	var id int64
	tmpTag := ids.TmpNumber()
	err = db.ReadCommitted(ctx, s.db, func(ctx context.Context, tx db.DBTX) error {
		var err error
		// 1) 仮INSERT → PK取得
		id, err = s.store.InsertTmp(ctx, tx, in, cond, nextMaint, tmpTag)
		if err != nil {
			return apierr.FromMySQL(err, "serial_number already exists", "invalid reference")
		}
		// 2) 確定タグに置換
		if err := s.store.UpdateTagToFinal(ctx, tx, id, tmpTag, tagPad); err != nil {
			if apierr.Is(err, apierr.CodeConflict) {
				return apierr.Conflict("conflict while finalizing asset_tag")
			}
			return err
		}
		return nil
	})
	if err != nil {
		return AssetResponse{}, err
	}
	return s.Get(ctx, id)
}

func (s *Service) Get(ctx context.Context, id int64) (AssetResponse, error) {
	a, err := s.store.GetByID(ctx, nil, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return AssetResponse{}, apierr.NotFound("asset not found")
		}
		return AssetResponse{}, err
	}
	return a.Response(), nil
}

func (s *Service) GetByTag(ctx context.Context, tag string) (AssetResponse, error) {
	a, err := s.store.GetByTag(ctx, tag)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return AssetResponse{}, apierr.NotFound("asset not found")
		}
		return AssetResponse{}, err
	}
	return a.Response(), nil
}

func (s *Service) List(ctx context.Context, q AssetSearchQuery, p paging.Page) ([]AssetResponse, int64, error) {
	list, total, err := s.store.List(ctx, q, p)
	if err != nil {
		return nil, 0, err
	}
	out := make([]AssetResponse, 0, len(list))
	for i := range list {
		out = append(out, list[i].Response())
	}
	return out, total, nil
}

// ListAvailable は貸出可能な資産のみ
func (s *Service) ListAvailable(ctx context.Context, p paging.Page) ([]AssetResponse, int64, error) {
	st := enums.AssetAvailable
	return s.List(ctx, AssetSearchQuery{Status: &st}, p)
}

func (s *Service) Update(ctx context.Context, id int64, in UpdateAssetRequest) (AssetResponse, error) {
	if in.Name != nil && strings.TrimSpace(*in.Name) == "" {
		return AssetResponse{}, apierr.Invalid("name must not be empty")
	}
	if in.CurrentValue != nil && *in.CurrentValue < 0 {
		return AssetResponse{}, apierr.Invalid("current_value must be >= 0")
	}
	if in.Condition != nil && !in.Condition.Valid() {
		return AssetResponse{}, apierr.Invalid("invalid condition")
	}
	if in.Status != nil {
		switch {
		case !in.Status.Valid():
			return AssetResponse{}, apierr.Invalid("invalid status")
		case *in.Status == enums.AssetLoaned:
			// 貸出状態は貸出ワークフローだけが変更する
			return AssetResponse{}, apierr.Invalid("status loaned is set by loan issue only")
		case *in.Status == enums.AssetRetired:
			return AssetResponse{}, apierr.Invalid("use retire to retire an asset")
		}
	}
	nextMaint, err := parseDateArg(in.NextMaintenanceDate)
	if err != nil {
		return AssetResponse{}, err
	}

	err = db.RunInTx(ctx, s.db, nil, func(ctx context.Context, tx db.DBTX) error {
		cur, err := s.store.GetForUpdate(ctx, tx, id)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return apierr.NotFound("asset not found")
			}
			return err
		}
		if in.Status != nil && *in.Status != cur.Status {
			if cur.Status == enums.AssetLoaned {
				return apierr.Conflict("asset is on loan")
			}
			if cur.Status == enums.AssetRetired {
				return apierr.Conflict("asset is retired")
			}
		}
		if _, err := s.store.Update(ctx, tx, id, in, nextMaint); err != nil {
			return apierr.FromMySQL(err, "serial_number already exists", "invalid reference")
		}
		return nil
	})
	if err != nil {
		return AssetResponse{}, err
	}
	return s.Get(ctx, id)
}

// Retire は資産を廃棄扱いにする。貸出中は不可。
func (s *Service) Retire(ctx context.Context, id int64, reason string) (AssetResponse, error) {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return AssetResponse{}, apierr.Invalid("reason is required").WithDetail("reason", "required")
	}
	err := db.RunInTx(ctx, s.db, nil, func(ctx context.Context, tx db.DBTX) error {
		cur, err := s.store.GetForUpdate(ctx, tx, id)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return apierr.NotFound("asset not found")
			}
			return err
		}
		switch cur.Status {
		case enums.AssetLoaned:
			return apierr.Conflict("asset is on loan")
		case enums.AssetRetired:
			return apierr.Conflict("asset already retired")
		}
		return s.store.Retire(ctx, tx, id, reason)
	})
	if err != nil {
		return AssetResponse{}, err
	}
	return s.Get(ctx, id)
}
