package notifications

import (
	"strings"
	"text/template"
	"time"
)

var funcs = template.FuncMap{
	"date":     func(t time.Time) string { return t.Format("2006-01-02") },
	"datetime": func(t time.Time) string { return t.Format("2006-01-02 15:04 MST") },
}

var templates = template.Must(template.New("mail").Funcs(funcs).Parse(`
{{define "ticket_created"}}Dear {{.Ticket.RequesterName}},

Your helpdesk ticket has been received.

Ticket number : {{.Ticket.TicketNumber}}
Subject       : {{.Ticket.Subject}}
Priority      : {{.Ticket.Priority.Label}}
{{- if .Ticket.SLAResolutionDueAt.Valid}}
Target resolution: {{datetime .Ticket.SLAResolutionDueAt.Time}}
{{- end}}

Track your ticket: {{.BaseURL}}/tickets/{{.Ticket.TicketNumber}}
{{end}}

{{define "loan_approval_request"}}Dear approver,

{{.App.ApplicantName}} ({{.App.ApplicantEmail}}) requests ICT equipment on loan.

Application : {{.App.ApplicationNumber}}
Purpose     : {{.App.Purpose}}
Location    : {{.App.Location}}
Period      : {{date .App.LoanStartDate}} - {{date .App.LoanEndDate}}

Approve or decline: {{.BaseURL}}/approvals/{{.Token}}
This link expires at {{datetime .ExpiresAt}}.
{{end}}

{{define "loan_approved"}}Dear {{.App.ApplicantName}},

Your loan application {{.App.ApplicationNumber}} has been approved
{{- if .App.ApprovedByName.Valid}} by {{.App.ApprovedByName.String}}{{end}}.

Period: {{date .App.LoanStartDate}} - {{date .App.LoanEndDate}}
Please collect the equipment from the ICT counter.
{{end}}

{{define "asset_overdue"}}Dear {{.App.ApplicantName}},

The loan period for application {{.App.ApplicationNumber}} ended on {{date .App.LoanEndDate}}.
Please return the equipment to the ICT counter as soon as possible.
{{end}}

{{define "maintenance_ticket"}}A maintenance ticket has been raised from a damaged return.

Ticket      : {{.Ticket.TicketNumber}} ({{.Ticket.Priority.Label}})
Asset       : {{.Asset.AssetTag}} {{.Asset.Name}}
Condition   : {{.Asset.Condition.Label}}
{{- if .Ticket.SLAResponseDueAt.Valid}}
Respond by  : {{datetime .Ticket.SLAResponseDueAt.Time}}
{{- end}}

{{.Ticket.Description}}
{{end}}
`))

func render(name string, data any) (string, error) {
	var sb strings.Builder
	if err := templates.ExecuteTemplate(&sb, name, data); err != nil {
		return "", err
	}
	return strings.TrimLeft(sb.String(), "\n"), nil
}
