// Package jobs はキュージョブ種別とペイロードの定義（生産側と消費側で共有する）
package jobs

const (
	MailTicketCreated       = "mail.ticket_created"
	MailLoanApprovalRequest = "mail.loan_approval_request"
	MailLoanApproved        = "mail.loan_approved"
	MailAssetOverdue        = "mail.asset_overdue"
	MailMaintenanceTicket   = "mail.maintenance_ticket"
	ExportLoanSubmissions   = "export.loan_submissions"
)

type LoanMail struct {
	ApplicationID int64 `json:"application_id"`
}

type TicketMail struct {
	TicketID int64 `json:"ticket_id"`
}

type MaintenanceMail struct {
	TicketID          int64 `json:"ticket_id"`
	LoanApplicationID int64 `json:"loan_application_id"`
	AssetID           int64 `json:"asset_id"`
}

type Export struct {
	ExportID int64 `json:"export_id"`
}
