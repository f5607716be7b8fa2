package enums

import "database/sql/driver"

type TicketPriority string

const (
	TicketLow      TicketPriority = "low"
	TicketNormal   TicketPriority = "normal"
	TicketMedium   TicketPriority = "medium"
	TicketHigh     TicketPriority = "high"
	TicketUrgent   TicketPriority = "urgent"
	TicketCritical TicketPriority = "critical"
)

var ticketPriorityDef = def[TicketPriority]{
	name:   "ticket priority",
	values: []TicketPriority{TicketLow, TicketNormal, TicketMedium, TicketHigh, TicketUrgent, TicketCritical},
	meta: map[TicketPriority]meta{
		TicketLow:      {"Low", "gray"},
		TicketNormal:   {"Normal", "blue"},
		TicketMedium:   {"Medium", "yellow"},
		TicketHigh:     {"High", "orange"},
		TicketUrgent:   {"Urgent", "red"},
		TicketCritical: {"Critical", "red"},
	},
}

func AllTicketPriorities() []TicketPriority { return ticketPriorityDef.all() }

func ParseTicketPriority(s string) (TicketPriority, error) { return ticketPriorityDef.parse(s) }

func (p TicketPriority) String() string  { return string(p) }
func (p TicketPriority) Valid() bool     { return ticketPriorityDef.valid(p) }
func (p TicketPriority) Label() string   { return ticketPriorityDef.label(p) }
func (p TicketPriority) Color() string   { return ticketPriorityDef.color(p) }
func (p TicketPriority) SortOrder() int  { return ticketPriorityDef.order(p) }

// SLAMultiplier はカテゴリの SLA 時間に掛ける係数
func (p TicketPriority) SLAMultiplier() float64 {
	switch p {
	case TicketCritical:
		return 0.25
	case TicketUrgent:
		return 0.5
	case TicketHigh:
		return 0.75
	case TicketLow:
		return 1.5
	default:
		return 1
	}
}

func (p *TicketPriority) Scan(src any) error           { return ticketPriorityDef.scan(p, src) }
func (p TicketPriority) Value() (driver.Value, error)  { return ticketPriorityDef.value(p) }
func (p *TicketPriority) UnmarshalJSON(b []byte) error { return ticketPriorityDef.unmarshal(p, b) }

type TicketStatus string

const (
	TicketOpen        TicketStatus = "open"
	TicketAssigned    TicketStatus = "assigned"
	TicketInProgress  TicketStatus = "in_progress"
	TicketPendingUser TicketStatus = "pending_user"
	TicketResolved    TicketStatus = "resolved"
	TicketClosed      TicketStatus = "closed"
)

var ticketStatusDef = def[TicketStatus]{
	name:   "ticket status",
	values: []TicketStatus{TicketOpen, TicketAssigned, TicketInProgress, TicketPendingUser, TicketResolved, TicketClosed},
	meta: map[TicketStatus]meta{
		TicketOpen:        {"Open", "blue"},
		TicketAssigned:    {"Assigned", "indigo"},
		TicketInProgress:  {"In Progress", "yellow"},
		TicketPendingUser: {"Pending User", "orange"},
		TicketResolved:    {"Resolved", "green"},
		TicketClosed:      {"Closed", "gray"},
	},
}

func AllTicketStatuses() []TicketStatus { return ticketStatusDef.all() }

func ParseTicketStatus(s string) (TicketStatus, error) { return ticketStatusDef.parse(s) }

func (s TicketStatus) String() string  { return string(s) }
func (s TicketStatus) Valid() bool     { return ticketStatusDef.valid(s) }
func (s TicketStatus) Label() string   { return ticketStatusDef.label(s) }
func (s TicketStatus) Color() string   { return ticketStatusDef.color(s) }
func (s TicketStatus) SortOrder() int  { return ticketStatusDef.order(s) }
func (s TicketStatus) IsTerminal() bool { return s == TicketClosed }

func (s *TicketStatus) Scan(src any) error           { return ticketStatusDef.scan(s, src) }
func (s TicketStatus) Value() (driver.Value, error)  { return ticketStatusDef.value(s) }
func (s *TicketStatus) UnmarshalJSON(b []byte) error { return ticketStatusDef.unmarshal(s, b) }
