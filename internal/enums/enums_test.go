package enums

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoanStatus_Predicates(t *testing.T) {
	terminal := map[LoanStatus]bool{LoanRejected: true, LoanCompleted: true}
	active := map[LoanStatus]bool{
		LoanIssued: true, LoanInUse: true, LoanReturnDue: true, LoanReturning: true, LoanOverdue: true,
	}
	for _, s := range AllLoanStatuses() {
		t.Run(string(s), func(t *testing.T) {
			assert.Equal(t, terminal[s], s.IsTerminal())
			assert.Equal(t, active[s], s.IsActive())
			assert.NotEmpty(t, s.Label())
			assert.NotEmpty(t, s.Color())
		})
	}
	assert.Len(t, AllLoanStatuses(), 15)
}

func TestAssetPredicates(t *testing.T) {
	for _, s := range AllAssetStatuses() {
		assert.Equal(t, s == AssetAvailable, s.CanBeLoaned(), s)
	}
	for _, c := range AllAssetConditions() {
		want := c == ConditionPoor || c == ConditionDamaged
		assert.Equal(t, want, c.RequiresMaintenance(), c)
	}
	assert.True(t, ConditionDamaged.IsWorseThan(ConditionPoor))
	assert.True(t, ConditionFair.IsWorseThan(ConditionGood))
	assert.False(t, ConditionGood.IsWorseThan(ConditionGood))
	assert.False(t, ConditionExcellent.IsWorseThan(ConditionFair))
}

func TestSortOrder_MatchesAll(t *testing.T) {
	for i, s := range AllTicketPriorities() {
		assert.Equal(t, i+1, s.SortOrder())
	}
	assert.Equal(t, 0, LoanStatus("bogus").SortOrder())
}

func TestParse(t *testing.T) {
	s, err := ParseLoanStatus("under_review")
	require.NoError(t, err)
	assert.Equal(t, LoanUnderReview, s)

	_, err = ParseLoanStatus("UNDER_REVIEW")
	assert.Error(t, err)
	_, err = ParseAssetCondition("broken")
	assert.Error(t, err)
	_, err = ParseTicketPriority("")
	assert.Error(t, err)
}

func TestScanValue_RoundTrip(t *testing.T) {
	v, err := ConditionDamaged.Value()
	require.NoError(t, err)
	assert.Equal(t, "damaged", v)

	var c AssetCondition
	require.NoError(t, c.Scan([]byte("damaged")))
	assert.Equal(t, ConditionDamaged, c)

	for _, s := range AllLoanStatuses() {
		v, err := s.Value()
		require.NoError(t, err)
		var got LoanStatus
		require.NoError(t, got.Scan(v))
		assert.Equal(t, s, got)
	}

	var st AssetStatus
	assert.Error(t, st.Scan("lost"))
	assert.Error(t, st.Scan(nil))
	assert.Error(t, st.Scan(42))

	_, err = AssetStatus("lost").Value()
	assert.Error(t, err)
}

func TestJSON_RoundTrip(t *testing.T) {
	type payload struct {
		Condition AssetCondition `json:"condition"`
		Priority  TicketPriority `json:"priority"`
	}
	in := payload{Condition: ConditionPoor, Priority: TicketCritical}
	b, err := json.Marshal(in)
	require.NoError(t, err)
	assert.JSONEq(t, `{"condition":"poor","priority":"critical"}`, string(b))

	var out payload
	require.NoError(t, json.Unmarshal(b, &out))
	assert.Equal(t, in, out)

	assert.Error(t, json.Unmarshal([]byte(`{"condition":"meh"}`), &out))
	assert.Error(t, json.Unmarshal([]byte(`{"condition":3}`), &out))
}

func TestSLAMultiplier(t *testing.T) {
	assert.Equal(t, 0.25, TicketCritical.SLAMultiplier())
	assert.Equal(t, 0.5, TicketUrgent.SLAMultiplier())
	assert.Equal(t, 0.75, TicketHigh.SLAMultiplier())
	assert.Equal(t, 1.0, TicketMedium.SLAMultiplier())
	assert.Equal(t, 1.0, TicketNormal.SLAMultiplier())
	assert.Equal(t, 1.5, TicketLow.SLAMultiplier())
}

func TestLoanTransitions(t *testing.T) {
	tests := []struct {
		from, to LoanStatus
		ok       bool
	}{
		{LoanDraft, LoanSubmitted, true},
		{LoanDraft, LoanApproved, false},
		{LoanSubmitted, LoanUnderReview, true},
		{LoanUnderReview, LoanApproved, true},
		{LoanUnderReview, LoanRejected, true},
		{LoanPendingInfo, LoanUnderReview, true},
		{LoanApproved, LoanIssued, true},
		{LoanApproved, LoanReturned, false},
		{LoanIssued, LoanOverdue, true},
		{LoanReturnDue, LoanReturnDue, true},
		{LoanOverdue, LoanReturnDue, true},
		{LoanOverdue, LoanOverdue, false},
		{LoanReturning, LoanMaintenanceRequired, true},
		{LoanReturned, LoanCompleted, true},
		{LoanMaintenanceRequired, LoanCompleted, true},
		{LoanRejected, LoanSubmitted, false},
		{LoanCompleted, LoanIssued, false},
	}
	for _, tt := range tests {
		t.Run(string(tt.from)+"->"+string(tt.to), func(t *testing.T) {
			assert.Equal(t, tt.ok, CanTransition(tt.from, tt.to))
			err := EnsureTransition(tt.from, tt.to)
			if tt.ok {
				assert.NoError(t, err)
				return
			}
			var te *TransitionError
			require.True(t, errors.As(err, &te))
			assert.Equal(t, string(tt.from), te.From)
			assert.Equal(t, string(tt.to), te.To)
		})
	}
}

func TestTerminalStatusesHaveNoExits(t *testing.T) {
	for _, s := range AllLoanStatuses() {
		if s.IsTerminal() {
			assert.Empty(t, NextLoanStatuses(s), s)
		} else {
			assert.NotEmpty(t, NextLoanStatuses(s), s)
		}
	}
	assert.Equal(t, []LoanStatus{LoanReturned, LoanMaintenanceRequired}, NextLoanStatuses(LoanReturning))
}

func TestTicketTransitions(t *testing.T) {
	assert.True(t, CanTransitionTicket(TicketOpen, TicketAssigned))
	assert.True(t, CanTransitionTicket(TicketResolved, TicketInProgress))
	assert.False(t, CanTransitionTicket(TicketClosed, TicketOpen))
	assert.Error(t, EnsureTicketTransition(TicketInProgress, TicketOpen))
}
