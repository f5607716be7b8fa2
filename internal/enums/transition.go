package enums

import (
	"fmt"
	"sort"
)

type set[T comparable] map[T]struct{}

func setOf[T comparable](vs ...T) set[T] {
	s := make(set[T], len(vs))
	for _, v := range vs {
		s[v] = struct{}{}
	}
	return s
}

// 貸出申請の状態遷移表。ステータス変更は必ずここを通す。
var loanTransitions = map[LoanStatus]set[LoanStatus]{
	LoanDraft:               setOf(LoanSubmitted),
	LoanSubmitted:           setOf(LoanUnderReview, LoanPendingInfo, LoanApproved, LoanRejected),
	LoanUnderReview:         setOf(LoanPendingInfo, LoanApproved, LoanRejected),
	LoanPendingInfo:         setOf(LoanUnderReview, LoanApproved, LoanRejected),
	LoanApproved:            setOf(LoanReadyIssuance, LoanIssued),
	LoanReadyIssuance:       setOf(LoanIssued),
	LoanIssued:              setOf(LoanInUse, LoanReturnDue, LoanReturning, LoanReturned, LoanOverdue),
	LoanInUse:               setOf(LoanReturnDue, LoanReturning, LoanReturned, LoanOverdue),
	LoanReturnDue:           setOf(LoanReturnDue, LoanReturning, LoanReturned, LoanOverdue),
	LoanOverdue:             setOf(LoanReturnDue, LoanReturning, LoanReturned),
	LoanReturning:           setOf(LoanReturned, LoanMaintenanceRequired),
	LoanReturned:            setOf(LoanCompleted, LoanMaintenanceRequired),
	LoanMaintenanceRequired: setOf(LoanCompleted),
}

var ticketTransitions = map[TicketStatus]set[TicketStatus]{
	TicketOpen:        setOf(TicketAssigned, TicketInProgress, TicketPendingUser, TicketResolved, TicketClosed),
	TicketAssigned:    setOf(TicketInProgress, TicketPendingUser, TicketResolved, TicketClosed),
	TicketInProgress:  setOf(TicketPendingUser, TicketResolved),
	TicketPendingUser: setOf(TicketInProgress, TicketResolved, TicketClosed),
	TicketResolved:    setOf(TicketInProgress, TicketClosed),
}

type TransitionError struct {
	Entity string
	From   string
	To     string
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("invalid %s transition: %s -> %s", e.Entity, e.From, e.To)
}

func CanTransition(from, to LoanStatus) bool {
	_, ok := loanTransitions[from][to]
	return ok
}

func EnsureTransition(from, to LoanStatus) error {
	if !CanTransition(from, to) {
		return &TransitionError{Entity: "loan status", From: string(from), To: string(to)}
	}
	return nil
}

// NextLoanStatuses は from から遷移可能な状態を SortOrder 順で返す
func NextLoanStatuses(from LoanStatus) []LoanStatus {
	out := make([]LoanStatus, 0, len(loanTransitions[from]))
	for s := range loanTransitions[from] {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SortOrder() < out[j].SortOrder() })
	return out
}

func CanTransitionTicket(from, to TicketStatus) bool {
	_, ok := ticketTransitions[from][to]
	return ok
}

func EnsureTicketTransition(from, to TicketStatus) error {
	if !CanTransitionTicket(from, to) {
		return &TransitionError{Entity: "ticket status", From: string(from), To: string(to)}
	}
	return nil
}
