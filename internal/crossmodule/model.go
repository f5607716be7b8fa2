// Package crossmodule はヘルプデスク票と貸出申請の関連付けを扱う。
// 損傷返却イベントからのメンテナンス票起票もここで行う。
package crossmodule

import (
	"database/sql"
	"time"

	jsoniter "github.com/json-iterator/go"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

const (
	TypeAssetDamageReport = "asset_damage_report"
	TypeMaintenance       = "maintenance_request"
	TypeManualLink        = "manual_link"

	TriggerAssetReturnedDamaged = "asset_returned_damaged"
	TriggerManual               = "manual"
)

type Integration struct {
	ID                int64
	HelpdeskTicketID  int64
	LoanApplicationID int64
	IntegrationType   string
	TriggerEvent      string
	IntegrationData   []byte
	IdempotencyKey    string
	ProcessedAt       time.Time
	CreatedAt         time.Time
}

// DamageData は損傷起票時に integration_data へ残す内容
type DamageData struct {
	TicketNumber      string `json:"ticket_number"`
	ApplicationNumber string `json:"application_number"`
	AssetTag          string `json:"asset_tag"`
	ConditionBefore   string `json:"condition_before"`
	ConditionAfter    string `json:"condition_after"`
	DamageReport      string `json:"damage_report,omitempty"`
	TransactionULID   string `json:"transaction_ulid"`
}

type LinkRequest struct {
	HelpdeskTicketID  int64  `json:"helpdesk_ticket_id" binding:"required"`
	LoanApplicationID int64  `json:"loan_application_id" binding:"required"`
	Note              string `json:"note,omitempty"`
}

type Response struct {
	ID                int64               `json:"id"`
	HelpdeskTicketID  int64               `json:"helpdesk_ticket_id"`
	LoanApplicationID int64               `json:"loan_application_id"`
	IntegrationType   string              `json:"integration_type"`
	TriggerEvent      string              `json:"trigger_event"`
	IntegrationData   map[string]any      `json:"integration_data,omitempty"`
	ProcessedAt       time.Time           `json:"processed_at"`
	CreatedAt         time.Time           `json:"created_at"`
}

func (i *Integration) Response() Response {
	r := Response{
		ID:                i.ID,
		HelpdeskTicketID:  i.HelpdeskTicketID,
		LoanApplicationID: i.LoanApplicationID,
		IntegrationType:   i.IntegrationType,
		TriggerEvent:      i.TriggerEvent,
		ProcessedAt:       i.ProcessedAt,
		CreatedAt:         i.CreatedAt,
	}
	if len(i.IntegrationData) > 0 {
		// 壊れた JSON は返さない
		_ = json.Unmarshal(i.IntegrationData, &r.IntegrationData)
	}
	return r
}

func nullBytes(b []byte) any {
	if len(b) == 0 {
		return sql.NullString{}
	}
	return string(b)
}
