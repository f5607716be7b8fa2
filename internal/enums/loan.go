package enums

import "database/sql/driver"

type LoanStatus string

const (
	LoanDraft               LoanStatus = "draft"
	LoanSubmitted           LoanStatus = "submitted"
	LoanUnderReview         LoanStatus = "under_review"
	LoanPendingInfo         LoanStatus = "pending_info"
	LoanApproved            LoanStatus = "approved"
	LoanRejected            LoanStatus = "rejected"
	LoanReadyIssuance       LoanStatus = "ready_issuance"
	LoanIssued              LoanStatus = "issued"
	LoanInUse               LoanStatus = "in_use"
	LoanReturnDue           LoanStatus = "return_due"
	LoanReturning           LoanStatus = "returning"
	LoanReturned            LoanStatus = "returned"
	LoanCompleted           LoanStatus = "completed"
	LoanOverdue             LoanStatus = "overdue"
	LoanMaintenanceRequired LoanStatus = "maintenance_required"
)

var loanStatusDef = def[LoanStatus]{
	name: "loan status",
	values: []LoanStatus{
		LoanDraft, LoanSubmitted, LoanUnderReview, LoanPendingInfo, LoanApproved, LoanRejected,
		LoanReadyIssuance, LoanIssued, LoanInUse, LoanReturnDue, LoanReturning, LoanReturned,
		LoanCompleted, LoanOverdue, LoanMaintenanceRequired,
	},
	meta: map[LoanStatus]meta{
		LoanDraft:               {"Draft", "gray"},
		LoanSubmitted:           {"Submitted", "blue"},
		LoanUnderReview:         {"Under Review", "yellow"},
		LoanPendingInfo:         {"Pending Information", "orange"},
		LoanApproved:            {"Approved", "green"},
		LoanRejected:            {"Rejected", "red"},
		LoanReadyIssuance:       {"Ready for Issuance", "cyan"},
		LoanIssued:              {"Issued", "indigo"},
		LoanInUse:               {"In Use", "indigo"},
		LoanReturnDue:           {"Return Due", "orange"},
		LoanReturning:           {"Returning", "purple"},
		LoanReturned:            {"Returned", "teal"},
		LoanCompleted:           {"Completed", "green"},
		LoanOverdue:             {"Overdue", "red"},
		LoanMaintenanceRequired: {"Maintenance Required", "red"},
	},
}

func AllLoanStatuses() []LoanStatus { return loanStatusDef.all() }

func ParseLoanStatus(s string) (LoanStatus, error) { return loanStatusDef.parse(s) }

func (s LoanStatus) String() string  { return string(s) }
func (s LoanStatus) Valid() bool     { return loanStatusDef.valid(s) }
func (s LoanStatus) Label() string   { return loanStatusDef.label(s) }
func (s LoanStatus) Color() string   { return loanStatusDef.color(s) }
func (s LoanStatus) SortOrder() int  { return loanStatusDef.order(s) }

// IsTerminal: これ以上遷移しない
func (s LoanStatus) IsTerminal() bool {
	return s == LoanRejected || s == LoanCompleted
}

// IsActive: 資産が物理的に貸し出されている状態
func (s LoanStatus) IsActive() bool {
	switch s {
	case LoanIssued, LoanInUse, LoanReturnDue, LoanReturning, LoanOverdue:
		return true
	}
	return false
}

func (s *LoanStatus) Scan(src any) error            { return loanStatusDef.scan(s, src) }
func (s LoanStatus) Value() (driver.Value, error)   { return loanStatusDef.value(s) }
func (s *LoanStatus) UnmarshalJSON(b []byte) error  { return loanStatusDef.unmarshal(s, b) }

type LoanPriority string

const (
	LoanPriorityLow    LoanPriority = "low"
	LoanPriorityNormal LoanPriority = "normal"
	LoanPriorityHigh   LoanPriority = "high"
	LoanPriorityUrgent LoanPriority = "urgent"
)

var loanPriorityDef = def[LoanPriority]{
	name:   "loan priority",
	values: []LoanPriority{LoanPriorityLow, LoanPriorityNormal, LoanPriorityHigh, LoanPriorityUrgent},
	meta: map[LoanPriority]meta{
		LoanPriorityLow:    {"Low", "gray"},
		LoanPriorityNormal: {"Normal", "blue"},
		LoanPriorityHigh:   {"High", "orange"},
		LoanPriorityUrgent: {"Urgent", "red"},
	},
}

func AllLoanPriorities() []LoanPriority { return loanPriorityDef.all() }

func ParseLoanPriority(s string) (LoanPriority, error) { return loanPriorityDef.parse(s) }

func (p LoanPriority) String() string                { return string(p) }
func (p LoanPriority) Valid() bool                   { return loanPriorityDef.valid(p) }
func (p LoanPriority) Label() string                 { return loanPriorityDef.label(p) }
func (p LoanPriority) Color() string                 { return loanPriorityDef.color(p) }
func (p LoanPriority) SortOrder() int                { return loanPriorityDef.order(p) }
func (p *LoanPriority) Scan(src any) error           { return loanPriorityDef.scan(p, src) }
func (p LoanPriority) Value() (driver.Value, error)  { return loanPriorityDef.value(p) }
func (p *LoanPriority) UnmarshalJSON(b []byte) error { return loanPriorityDef.unmarshal(p, b) }

type TransactionType string

const (
	TxIssue  TransactionType = "issue"
	TxReturn TransactionType = "return"
	TxExtend TransactionType = "extend"
	TxRecall TransactionType = "recall"
)

var transactionTypeDef = def[TransactionType]{
	name:   "transaction type",
	values: []TransactionType{TxIssue, TxReturn, TxExtend, TxRecall},
	meta: map[TransactionType]meta{
		TxIssue:  {"Issue", "indigo"},
		TxReturn: {"Return", "teal"},
		TxExtend: {"Extend", "orange"},
		TxRecall: {"Recall", "red"},
	},
}

func AllTransactionTypes() []TransactionType { return transactionTypeDef.all() }

func ParseTransactionType(s string) (TransactionType, error) { return transactionTypeDef.parse(s) }

func (t TransactionType) String() string                { return string(t) }
func (t TransactionType) Valid() bool                   { return transactionTypeDef.valid(t) }
func (t TransactionType) Label() string                 { return transactionTypeDef.label(t) }
func (t TransactionType) Color() string                 { return transactionTypeDef.color(t) }
func (t TransactionType) SortOrder() int                { return transactionTypeDef.order(t) }
func (t *TransactionType) Scan(src any) error           { return transactionTypeDef.scan(t, src) }
func (t TransactionType) Value() (driver.Value, error)  { return transactionTypeDef.value(t) }
func (t *TransactionType) UnmarshalJSON(b []byte) error { return transactionTypeDef.unmarshal(t, b) }
