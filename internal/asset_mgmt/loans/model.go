package loans

import (
	"database/sql"
	"time"

	"ICTSERVE-backend/internal/enums"
)

const dateLayout = "2006-01-02"

// 承認経路
const (
	ApprovalMethodEmail  = "email"
	ApprovalMethodPortal = "portal"
)

type Application struct {
	ID                     int64
	ApplicationNumber      string
	Status                 enums.LoanStatus
	Priority               enums.LoanPriority
	ApplicantName          string
	ApplicantEmail         string
	ApplicantPhone         string
	StaffID                sql.NullString
	Grade                  sql.NullString
	Division               sql.NullString
	Purpose                string
	Location               string
	LoanStartDate          time.Time
	LoanEndDate            time.Time
	ApproverEmail          sql.NullString
	ApprovedAt             sql.NullTime
	ApprovedByName         sql.NullString
	ApprovalMethod         sql.NullString
	ApprovalRemarks        sql.NullString
	RejectedReason         sql.NullString
	InfoRequestNote        sql.NullString
	ApprovalToken          sql.NullString // jti のみ保存
	ApprovalTokenExpiresAt sql.NullTime
	MaintenanceRequired    bool
	TotalValue             float64
	UserID                 sql.NullString
	CreatedAt              time.Time
	UpdatedAt              time.Time
	DeletedAt              sql.NullTime
}

type Item struct {
	ID                int64
	LoanApplicationID int64
	AssetID           int64
	Quantity          int
	UnitValue         float64
	TotalValue        float64
	ConditionBefore   enums.AssetCondition
	ConditionAfter    sql.NullString
	DamageReport      sql.NullString
}

// Returned は返却記録済みか
func (it *Item) Returned() bool { return it.ConditionAfter.Valid }

// Transaction は loan_transactions の1行（追記のみ）
type Transaction struct {
	ID                int64
	ULID              string
	LoanApplicationID int64
	AssetID           int64
	Type              enums.TransactionType
	ProcessedBy       sql.NullString
	ProcessedAt       time.Time
	ConditionBefore   sql.NullString
	ConditionAfter    sql.NullString
	DamageReport      sql.NullString
	Notes             sql.NullString
}

func nullStr(p *string) sql.NullString {
	if p == nil || *p == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: *p, Valid: true}
}

func someStr(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func ptrStr(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	v := ns.String
	return &v
}

func ptrTime(nt sql.NullTime) *time.Time {
	if !nt.Valid {
		return nil
	}
	v := nt.Time
	return &v
}

func ptrCond(ns sql.NullString) *enums.AssetCondition {
	if !ns.Valid {
		return nil
	}
	c, err := enums.ParseAssetCondition(ns.String)
	if err != nil {
		return nil
	}
	return &c
}

func (a *Application) Response(items []Item) ApplicationResponse {
	out := ApplicationResponse{
		ID:                  a.ID,
		ApplicationNumber:   a.ApplicationNumber,
		Status:              a.Status,
		StatusLabel:         a.Status.Label(),
		StatusColor:         a.Status.Color(),
		Priority:            a.Priority,
		ApplicantName:       a.ApplicantName,
		ApplicantEmail:      a.ApplicantEmail,
		ApplicantPhone:      a.ApplicantPhone,
		StaffID:             ptrStr(a.StaffID),
		Grade:               ptrStr(a.Grade),
		Division:            ptrStr(a.Division),
		Purpose:             a.Purpose,
		Location:            a.Location,
		LoanStartDate:       a.LoanStartDate.Format(dateLayout),
		LoanEndDate:         a.LoanEndDate.Format(dateLayout),
		ApproverEmail:       ptrStr(a.ApproverEmail),
		ApprovedAt:          ptrTime(a.ApprovedAt),
		ApprovedByName:      ptrStr(a.ApprovedByName),
		ApprovalMethod:      ptrStr(a.ApprovalMethod),
		ApprovalRemarks:     ptrStr(a.ApprovalRemarks),
		RejectedReason:      ptrStr(a.RejectedReason),
		InfoRequestNote:     ptrStr(a.InfoRequestNote),
		MaintenanceRequired: a.MaintenanceRequired,
		TotalValue:          a.TotalValue,
		UserID:              ptrStr(a.UserID),
		NextStatuses:        enums.NextLoanStatuses(a.Status),
		CreatedAt:           a.CreatedAt,
		UpdatedAt:           a.UpdatedAt,
		Items:               make([]ItemResponse, 0, len(items)),
	}
	for _, it := range items {
		out.Items = append(out.Items, ItemResponse{
			AssetID:         it.AssetID,
			Quantity:        it.Quantity,
			UnitValue:       it.UnitValue,
			TotalValue:      it.TotalValue,
			ConditionBefore: it.ConditionBefore,
			ConditionAfter:  ptrCond(it.ConditionAfter),
			DamageReport:    ptrStr(it.DamageReport),
		})
	}
	return out
}

func (a *Application) Track() TrackResponse {
	return TrackResponse{
		ApplicationNumber: a.ApplicationNumber,
		Status:            a.Status,
		StatusLabel:       a.Status.Label(),
		LoanStartDate:     a.LoanStartDate.Format(dateLayout),
		LoanEndDate:       a.LoanEndDate.Format(dateLayout),
		ApprovedAt:        ptrTime(a.ApprovedAt),
		RejectedReason:    ptrStr(a.RejectedReason),
		InfoRequestNote:   ptrStr(a.InfoRequestNote),
		CreatedAt:         a.CreatedAt,
	}
}

func (t *Transaction) Response() TransactionResponse {
	return TransactionResponse{
		ID:              t.ID,
		TransactionULID: t.ULID,
		AssetID:         t.AssetID,
		Type:            t.Type,
		ProcessedBy:     ptrStr(t.ProcessedBy),
		ProcessedAt:     t.ProcessedAt,
		ConditionBefore: ptrCond(t.ConditionBefore),
		ConditionAfter:  ptrCond(t.ConditionAfter),
		DamageReport:    ptrStr(t.DamageReport),
		Notes:           ptrStr(t.Notes),
	}
}
