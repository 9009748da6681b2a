package domain_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"partnerline/internal/domain"
)

func rolePtr(r domain.Role) *domain.Role { return &r }

func TestDecideTable(t *testing.T) {
	proposer, recipient := domain.RoleProposer, domain.RoleRecipient
	cases := []struct {
		name     string
		from     domain.Status
		awaiting *domain.Role
		actor    domain.Role
		action   domain.Action
		want     domain.Outcome
		err      error
	}{
		{"recipient accepts", domain.StatusAwaitingRecipient, nil, recipient, domain.ActionAccept, domain.Outcome{Status: domain.StatusAccepted}, nil},
		{"recipient declines", domain.StatusAwaitingRecipient, nil, recipient, domain.ActionDecline, domain.Outcome{Status: domain.StatusDeclined}, nil},
		{"proposer cannot accept own", domain.StatusAwaitingRecipient, nil, proposer, domain.ActionAccept, domain.Outcome{}, domain.ErrInvalidTransition},
		{"proposer cannot decline own", domain.StatusAwaitingRecipient, nil, proposer, domain.ActionDecline, domain.Outcome{}, domain.ErrInvalidTransition},
		{"proposer negotiates", domain.StatusAwaitingRecipient, nil, proposer, domain.ActionNegotiate, domain.Outcome{Status: domain.StatusUnderNegotiation, AwaitingParty: rolePtr(recipient)}, nil},
		{"recipient negotiates", domain.StatusAwaitingRecipient, nil, recipient, domain.ActionNegotiate, domain.Outcome{Status: domain.StatusUnderNegotiation, AwaitingParty: rolePtr(proposer)}, nil},
		{"proposer cancels", domain.StatusAwaitingRecipient, nil, proposer, domain.ActionCancel, domain.Outcome{Status: domain.StatusCancelled}, nil},
		{"recipient cannot cancel", domain.StatusAwaitingRecipient, nil, recipient, domain.ActionCancel, domain.Outcome{}, domain.ErrForbidden},
		{"awaited accepts", domain.StatusUnderNegotiation, rolePtr(proposer), proposer, domain.ActionAccept, domain.Outcome{Status: domain.StatusAccepted}, nil},
		{"awaited declines", domain.StatusUnderNegotiation, rolePtr(recipient), recipient, domain.ActionDecline, domain.Outcome{Status: domain.StatusDeclined}, nil},
		{"awaited counters", domain.StatusUnderNegotiation, rolePtr(recipient), recipient, domain.ActionNegotiate, domain.Outcome{Status: domain.StatusUnderNegotiation, AwaitingParty: rolePtr(proposer)}, nil},
		{"out of turn accept", domain.StatusUnderNegotiation, rolePtr(recipient), proposer, domain.ActionAccept, domain.Outcome{}, domain.ErrInvalidTransition},
		{"out of turn decline", domain.StatusUnderNegotiation, rolePtr(proposer), recipient, domain.ActionDecline, domain.Outcome{}, domain.ErrInvalidTransition},
		{"out of turn negotiate", domain.StatusUnderNegotiation, rolePtr(proposer), recipient, domain.ActionNegotiate, domain.Outcome{}, domain.ErrInvalidTransition},
		{"proposer cancels out of turn", domain.StatusUnderNegotiation, rolePtr(recipient), proposer, domain.ActionCancel, domain.Outcome{Status: domain.StatusCancelled}, nil},
		{"recipient cancel while negotiating", domain.StatusUnderNegotiation, rolePtr(recipient), recipient, domain.ActionCancel, domain.Outcome{}, domain.ErrForbidden},
		{"system expires pending", domain.StatusAwaitingRecipient, nil, domain.RoleSystem, domain.ActionExpire, domain.Outcome{Status: domain.StatusExpired}, nil},
		{"system expires negotiating", domain.StatusUnderNegotiation, rolePtr(proposer), domain.RoleSystem, domain.ActionExpire, domain.Outcome{Status: domain.StatusExpired}, nil},
		{"participant cannot expire", domain.StatusAwaitingRecipient, nil, proposer, domain.ActionExpire, domain.Outcome{}, domain.ErrForbidden},
		{"system cannot accept", domain.StatusAwaitingRecipient, nil, domain.RoleSystem, domain.ActionAccept, domain.Outcome{}, domain.ErrForbidden},
		{"accepted is terminal", domain.StatusAccepted, nil, recipient, domain.ActionDecline, domain.Outcome{}, domain.ErrInvalidTransition},
		{"declined is terminal", domain.StatusDeclined, nil, proposer, domain.ActionNegotiate, domain.Outcome{}, domain.ErrInvalidTransition},
		{"cancelled is terminal", domain.StatusCancelled, nil, proposer, domain.ActionCancel, domain.Outcome{}, domain.ErrInvalidTransition},
		{"expired cannot re-expire", domain.StatusExpired, nil, domain.RoleSystem, domain.ActionExpire, domain.Outcome{}, domain.ErrInvalidTransition},
		{"recipient cancel on terminal is still forbidden", domain.StatusAccepted, nil, recipient, domain.ActionCancel, domain.Outcome{}, domain.ErrForbidden},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := domain.Decide(tc.from, tc.awaiting, tc.actor, tc.action)
			if tc.err != nil {
				require.ErrorIs(t, err, tc.err)
				assert.Equal(t, domain.Outcome{}, got)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestOutcomeAwaitingMatchesStatus(t *testing.T) {
	roles := []domain.Role{domain.RoleProposer, domain.RoleRecipient, domain.RoleSystem}
	actions := []domain.Action{domain.ActionAccept, domain.ActionDecline, domain.ActionNegotiate, domain.ActionCancel, domain.ActionExpire}
	awaitings := []*domain.Role{nil, rolePtr(domain.RoleProposer), rolePtr(domain.RoleRecipient)}
	for _, st := range domain.Statuses() {
		for _, aw := range awaitings {
			for _, actor := range roles {
				for _, action := range actions {
					out, err := domain.Decide(st, aw, actor, action)
					if err != nil {
						continue
					}
					assert.Equal(t, out.Status == domain.StatusUnderNegotiation, out.AwaitingParty != nil,
						"%s/%v/%s/%s", st, aw, actor, action)
				}
			}
		}
	}
}

func TestAlternatingNegotiation(t *testing.T) {
	status := domain.StatusAwaitingRecipient
	var awaiting *domain.Role
	actor := domain.RoleRecipient
	for i := 0; i < 6; i++ {
		out, err := domain.Decide(status, awaiting, actor, domain.ActionNegotiate)
		require.NoError(t, err, "round %d", i)
		require.NotNil(t, out.AwaitingParty)
		assert.Equal(t, actor.Opposite(), *out.AwaitingParty)
		status, awaiting = out.Status, out.AwaitingParty
		actor = *awaiting
	}
}

func TestTransitionErrorMessage(t *testing.T) {
	_, err := domain.Decide(domain.StatusUnderNegotiation, rolePtr(domain.RoleRecipient), domain.RoleProposer, domain.ActionAccept)
	var terr *domain.TransitionError
	require.True(t, errors.As(err, &terr))
	assert.Equal(t, domain.StatusUnderNegotiation, terr.From)
	assert.Equal(t, "cannot accept as proposer: proposal is under_negotiation awaiting recipient", err.Error())
}

func TestPermitted(t *testing.T) {
	got := domain.Permitted(domain.StatusAwaitingRecipient, nil, domain.RoleRecipient)
	assert.Equal(t, []domain.Action{domain.ActionAccept, domain.ActionDecline, domain.ActionNegotiate}, got)
	got = domain.Permitted(domain.StatusUnderNegotiation, rolePtr(domain.RoleRecipient), domain.RoleProposer)
	assert.Equal(t, []domain.Action{domain.ActionCancel}, got)
	assert.Empty(t, domain.Permitted(domain.StatusAccepted, nil, domain.RoleProposer))
}

func TestTabMatch(t *testing.T) {
	mk := func(status domain.Status, proposer string) domain.Proposal {
		p := domain.Proposal{ProposerID: proposer, RecipientID: "other", Status: status}
		if status == domain.StatusUnderNegotiation {
			p.AwaitingParty = rolePtr(domain.RoleProposer)
		}
		return p
	}
	sent := mk(domain.StatusAwaitingRecipient, "me")
	received := mk(domain.StatusUnderNegotiation, "other")
	received.RecipientID = "me"
	declined := mk(domain.StatusDeclined, "me")
	cancelled := mk(domain.StatusCancelled, "me")
	accepted := mk(domain.StatusAccepted, "me")
	expired := mk(domain.StatusExpired, "me")

	assert.True(t, domain.TabSent.Match(sent, "me"))
	assert.False(t, domain.TabSent.Match(received, "me"))
	assert.True(t, domain.TabReceived.Match(received, "me"))
	assert.True(t, domain.TabAwaiting.Match(sent, "me"))
	assert.True(t, domain.TabAwaiting.Match(received, "me"))
	assert.False(t, domain.TabAwaiting.Match(accepted, "me"))
	assert.True(t, domain.TabNegotiating.Match(received, "me"))
	assert.True(t, domain.TabAccepted.Match(accepted, "me"))
	assert.True(t, domain.TabDeclined.Match(declined, "me"))
	assert.True(t, domain.TabDeclined.Match(cancelled, "me"))
	assert.False(t, domain.TabDeclined.Match(expired, "me"))
	assert.True(t, domain.TabAll.Match(expired, "me"))
}

func TestParseTab(t *testing.T) {
	tab, err := domain.ParseTab("")
	require.NoError(t, err)
	assert.Equal(t, domain.TabAll, tab)
	_, err = domain.ParseTab("archived")
	assert.ErrorIs(t, err, domain.ErrValidation)
}

func TestApplyMarksOtherPartyUnread(t *testing.T) {
	p := domain.Proposal{Status: domain.StatusAwaitingRecipient, UnreadForRecipient: true, Version: 3}
	p.Apply(domain.Outcome{Status: domain.StatusAccepted}, domain.RoleRecipient, "2024-01-02T00:00:00Z")
	assert.True(t, p.UnreadForProposer)
	assert.True(t, p.UnreadForRecipient, "actor flag is left untouched")
	assert.Equal(t, int64(4), p.Version)
	assert.Equal(t, "2024-01-02T00:00:00Z", p.UpdatedAt)
}
