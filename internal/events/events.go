// Package events は貸出とヘルプデスクの間でやり取りするドメインイベント。
// 発行側のトランザクション内でキューに積む。
package events

import (
	"context"
	"fmt"
	"time"

	"ICTSERVE-backend/internal/enums"
	"ICTSERVE-backend/internal/platform/db"
	"ICTSERVE-backend/internal/platform/queue"

	jsoniter "github.com/json-iterator/go"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// DomainEvent: キュー経由で配送するイベント。
// IdempotencyKey が同じものは受け手側で一度しか適用しない。
type DomainEvent interface {
	EventType() string
	IdempotencyKey() string
}

const AssetReturnedDamagedEventType = "asset_returned_damaged"

type AssetReturnedDamaged struct {
	LoanTransactionID int64                `json:"loan_transaction_id"`
	TransactionULID   string               `json:"transaction_ulid"`
	LoanApplicationID int64                `json:"loan_application_id"`
	AssetID           int64                `json:"asset_id"`
	ConditionBefore   enums.AssetCondition `json:"condition_before"`
	ConditionAfter    enums.AssetCondition `json:"condition_after"`
	DamageReport      string               `json:"damage_report,omitempty"`
	OccurredAt        time.Time            `json:"occurred_at"`
}

func BuildAssetReturnedDamaged(
	txID int64,
	txULID string,
	applicationID int64,
	assetID int64,
	before enums.AssetCondition,
	after enums.AssetCondition,
	damageReport string,
	occurredAt time.Time,
) AssetReturnedDamaged {
	return AssetReturnedDamaged{
		LoanTransactionID: txID,
		TransactionULID:   txULID,
		LoanApplicationID: applicationID,
		AssetID:           assetID,
		ConditionBefore:   before,
		ConditionAfter:    after,
		DamageReport:      damageReport,
		OccurredAt:        occurredAt.UTC(),
	}
}

func (e AssetReturnedDamaged) EventType() string { return AssetReturnedDamagedEventType }

func (e AssetReturnedDamaged) IdempotencyKey() string {
	return "asset-returned-damaged:" + e.TransactionULID
}

func (e AssetReturnedDamaged) Validate() error {
	if e.TransactionULID == "" || e.LoanApplicationID <= 0 || e.AssetID <= 0 {
		return fmt.Errorf("asset_returned_damaged: missing identifiers (tx=%q app=%d asset=%d)",
			e.TransactionULID, e.LoanApplicationID, e.AssetID)
	}
	if !e.ConditionAfter.RequiresMaintenance() {
		return fmt.Errorf("asset_returned_damaged: condition %q does not require maintenance", e.ConditionAfter)
	}
	return nil
}

// JobType は event を運ぶキュージョブ種別
func JobType(eventType string) string { return "event." + eventType }

func Encode(e DomainEvent) ([]byte, error) { return json.Marshal(e) }

func DecodeAssetReturnedDamaged(b []byte) (AssetReturnedDamaged, error) {
	var e AssetReturnedDamaged
	if err := json.Unmarshal(b, &e); err != nil {
		return AssetReturnedDamaged{}, fmt.Errorf("decode %s: %w", AssetReturnedDamagedEventType, err)
	}
	return e, nil
}

// Publisher は tx と同じコミットでイベントを配送対象にする
type Publisher interface {
	PublishTx(ctx context.Context, tx db.DBTX, e DomainEvent) error
}

type QueuePublisher struct {
	q queue.Enqueuer
}

func NewQueuePublisher(q queue.Enqueuer) *QueuePublisher { return &QueuePublisher{q: q} }

// PublishTx: 同じ idempotency key のイベントは一度だけ積む
func (p *QueuePublisher) PublishTx(ctx context.Context, tx db.DBTX, e DomainEvent) error {
	_, err := p.q.EnqueueTx(ctx, tx, JobType(e.EventType()), e, queue.WithUniqueKey(e.IdempotencyKey()))
	if err == queue.ErrDuplicate {
		return nil
	}
	return err
}
