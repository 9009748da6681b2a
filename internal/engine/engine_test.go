package engine_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"partnerline/internal/config"
	"partnerline/internal/db"
	"partnerline/internal/domain"
	"partnerline/internal/engine"
	"partnerline/internal/migrate"
	"partnerline/internal/repo"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m, goleak.IgnoreTopFunction("database/sql.(*DB).connectionOpener"))
}

type testClock struct {
	mu sync.Mutex
	t  time.Time
}

// Now advances one minute per call so every write gets a distinct timestamp.
func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(time.Minute)
	return c.t
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

type testEnv struct {
	Engine engine.Engine
	Clock  *testClock
	Ctx    context.Context
}

const (
	acme = "acme"
	cafe = "cafe"
	gym  = "gym"
)

func newTestEnv(t *testing.T, mutate ...func(*config.Config)) testEnv {
	t.Helper()
	dir := t.TempDir()
	conn, err := db.Open(db.Config{Workspace: dir})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	ctx := context.Background()
	if err := migrate.Migrate(ctx, conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	cfg := config.Default()
	for _, fn := range mutate {
		fn(cfg)
	}
	eng := engine.New(conn, cfg, nil)
	clock := &testClock{t: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
	eng.Now = clock.Now
	for id, name := range map[string]string{acme: "Acme Bakery", cafe: "Corner Cafe", gym: "Iron Gym"} {
		if _, err := eng.UpsertBusiness(ctx, engine.SystemActor, domain.Business{ID: id, Name: name, Industry: "retail", Location: "Springfield"}); err != nil {
			t.Fatalf("seed business %s: %v", id, err)
		}
	}
	return testEnv{Engine: eng, Clock: clock, Ctx: ctx}
}

func sampleContent(partnerID, partnerName string) domain.ProposalContent {
	return domain.ProposalContent{
		PartnerSelection: domain.PartnerSelection{PartnerID: partnerID, PartnerName: partnerName, Industry: "retail", Location: "Springfield"},
		Outline:          domain.Outline{FocusKey: "co_marketing", FocusTitle: "Co-marketing", FocusDescription: "Shared promotions"},
		Contributions:    domain.Contributions{Proposer: "Pastries", Recipient: "Counter space"},
		Objectives: domain.Objectives{
			Overview: "Grow both audiences",
			Rows:     []domain.ObjectiveRow{{ProposerOutcome: "New customers", RecipientOutcome: "Higher basket"}},
		},
		Terms: domain.Terms{
			StartDate:             "2024-01-31",
			Duration:              domain.Duration{Value: "1", Unit: domain.UnitMonths},
			ReviewCadence:         domain.Span{Value: "2", Unit: domain.UnitWeeks},
			TerminationConditions: []string{"mutual_agreement"},
			AdditionalTerms:       "None",
		},
		Tracking: []domain.KPI{{
			Name:            "Referrals",
			MeasurementUnit: "count",
			TargetValue:     "25",
			ReportFrequency: domain.Span{Value: "1", Unit: domain.UnitMonths},
		}},
		AdditionalNotes: "Looking forward to it",
	}
}

func (env testEnv) create(t *testing.T, from, to string) domain.Proposal {
	t.Helper()
	p, err := env.Engine.Create(env.Ctx, engine.CreateOptions{
		ActorID:     from,
		RecipientID: to,
		Title:       "Weekend pop-up",
		Content:     sampleContent(to, ""),
	})
	require.NoError(t, err)
	return p
}

func TestCreateDefaults(t *testing.T) {
	env := newTestEnv(t)
	p := env.create(t, acme, cafe)
	assert.Equal(t, domain.StatusAwaitingRecipient, p.Status)
	assert.Nil(t, p.AwaitingParty)
	assert.Equal(t, "Acme Bakery", p.ProposerName)
	assert.Equal(t, "Corner Cafe", p.RecipientName)
	assert.Equal(t, "Acme Bakery would like to partner with Corner Cafe on Co-marketing.", p.Summary)
	assert.True(t, p.UnreadForRecipient)
	assert.False(t, p.UnreadForProposer)
	assert.Equal(t, int64(1), p.Version)
	require.Len(t, p.Messages, 1)
	assert.Equal(t, "Sent a partnership proposal", p.Messages[0].Content)
}

func TestCreateValidation(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.Engine.Create(env.Ctx, engine.CreateOptions{ActorID: acme, RecipientID: acme, Title: " ", Content: domain.ProposalContent{}})
	require.ErrorIs(t, err, domain.ErrValidation)
	var verr *domain.ValidationError
	require.True(t, errors.As(err, &verr))
	assert.GreaterOrEqual(t, len(verr.Errors), 3)

	_, err = env.Engine.Create(env.Ctx, engine.CreateOptions{ActorID: acme, RecipientID: "nobody", Title: "x", Content: sampleContent("nobody", "")})
	assert.ErrorIs(t, err, domain.ErrNotFound)

	_, err = env.Engine.Create(env.Ctx, engine.CreateOptions{ActorID: acme, ProposerID: cafe, RecipientID: gym, Title: "x", Content: sampleContent(gym, "")})
	assert.ErrorIs(t, err, domain.ErrForbidden)

	_, err = env.Engine.Create(env.Ctx, engine.CreateOptions{RecipientID: gym, Title: "x", Content: sampleContent(gym, "")})
	assert.ErrorIs(t, err, domain.ErrUnauthorized)
}

func TestNegotiateThenAccept(t *testing.T) {
	env := newTestEnv(t)
	p := env.create(t, acme, cafe)

	counter := sampleContent(cafe, "Corner Cafe")
	counter.Terms.Duration.Value = "3"
	p, err := env.Engine.Negotiate(env.Ctx, engine.NegotiateOptions{ProposalID: p.ID, ActorID: cafe, Content: counter, Summary: "Three months works better"})
	require.NoError(t, err)
	assert.Equal(t, domain.StatusUnderNegotiation, p.Status)
	require.NotNil(t, p.AwaitingParty)
	assert.Equal(t, domain.RoleProposer, *p.AwaitingParty)
	assert.True(t, p.UnreadForProposer)
	assert.Equal(t, "Three months works better", p.Messages[len(p.Messages)-1].Content)
	assert.Equal(t, 2, p.Revision)

	p, err = env.Engine.Act(env.Ctx, engine.ActOptions{ProposalID: p.ID, ActorID: acme, Action: domain.ActionAccept})
	require.NoError(t, err)
	assert.Equal(t, domain.StatusAccepted, p.Status)
	assert.Nil(t, p.AwaitingParty)
	last := p.Messages[len(p.Messages)-1]
	assert.Equal(t, "Accepted the proposal", last.Content)
	assert.Equal(t, domain.RoleProposer, last.SenderRole)
	assert.Equal(t, "Acme Bakery", last.SenderName)
	assert.Len(t, p.Messages, 3)

	_, err = env.Engine.Act(env.Ctx, engine.ActOptions{ProposalID: p.ID, ActorID: cafe, Action: domain.ActionDecline})
	assert.ErrorIs(t, err, domain.ErrInvalidTransition)
}

func TestOutOfTurnLeavesRecordUnchanged(t *testing.T) {
	env := newTestEnv(t)
	p := env.create(t, acme, cafe)
	p, err := env.Engine.Negotiate(env.Ctx, engine.NegotiateOptions{ProposalID: p.ID, ActorID: acme, Content: sampleContent(cafe, "")})
	require.NoError(t, err)
	before, err := env.Engine.Repo.GetProposal(env.Ctx, p.ID)
	require.NoError(t, err)

	for _, action := range []domain.Action{domain.ActionAccept, domain.ActionDecline} {
		_, err := env.Engine.Act(env.Ctx, engine.ActOptions{ProposalID: p.ID, ActorID: acme, Action: action})
		require.ErrorIs(t, err, domain.ErrInvalidTransition, "%s", action)
	}
	_, err = env.Engine.Negotiate(env.Ctx, engine.NegotiateOptions{ProposalID: p.ID, ActorID: acme, Content: sampleContent(cafe, "")})
	require.ErrorIs(t, err, domain.ErrInvalidTransition)

	after, err := env.Engine.Repo.GetProposal(env.Ctx, p.ID)
	require.NoError(t, err)
	if diff := cmp.Diff(before, after); diff != "" {
		t.Fatalf("rejected actions mutated the proposal (-before +after):\n%s", diff)
	}
	msgs, err := env.Engine.Repo.ListMessages(env.Ctx, p.ID)
	require.NoError(t, err)
	assert.Len(t, msgs, 2)
}

func TestRecipientCannotCancel(t *testing.T) {
	env := newTestEnv(t)
	p := env.create(t, acme, cafe)
	_, err := env.Engine.Act(env.Ctx, engine.ActOptions{ProposalID: p.ID, ActorID: cafe, Action: domain.ActionCancel})
	require.ErrorIs(t, err, domain.ErrForbidden)

	_, err = env.Engine.Act(env.Ctx, engine.ActOptions{ProposalID: p.ID, ActorID: gym, Action: domain.ActionAccept})
	require.ErrorIs(t, err, domain.ErrForbidden, "non-participant")

	_, err = env.Engine.Act(env.Ctx, engine.ActOptions{ProposalID: "missing", ActorID: cafe, Action: domain.ActionAccept})
	require.ErrorIs(t, err, domain.ErrNotFound)

	p, err = env.Engine.Act(env.Ctx, engine.ActOptions{ProposalID: p.ID, ActorID: acme, Action: domain.ActionCancel, Note: "Plans changed"})
	require.NoError(t, err)
	assert.Equal(t, domain.StatusCancelled, p.Status)
	assert.Equal(t, "Plans changed", p.Messages[len(p.Messages)-1].Content)
	assert.True(t, p.UnreadForRecipient)
}

func TestNegotiationAlternates(t *testing.T) {
	env := newTestEnv(t)
	p := env.create(t, acme, cafe)
	actor := cafe
	for i := 0; i < 5; i++ {
		c := sampleContent(cafe, "")
		c.AdditionalNotes = fmt.Sprintf("round %d", i)
		next, err := env.Engine.Negotiate(env.Ctx, engine.NegotiateOptions{ProposalID: p.ID, ActorID: actor, Content: c})
		require.NoError(t, err, "round %d", i)
		require.NotNil(t, next.AwaitingParty)
		actorRole, _ := next.RoleOf(actor)
		assert.Equal(t, actorRole.Opposite(), *next.AwaitingParty)
		assert.Equal(t, p.Version+1, next.Version)
		assert.Greater(t, next.UpdatedAt, p.UpdatedAt)
		p = next
		if actor == cafe {
			actor = acme
		} else {
			actor = cafe
		}
	}
	revs, err := env.Engine.ListRevisions(env.Ctx, acme, p.ID)
	require.NoError(t, err)
	assert.Len(t, revs, 6)
	assert.Equal(t, []domain.Section{domain.SectionAdditionalNotes}, revs[2].ChangedSections)
}

func TestNegotiateRoundTrip(t *testing.T) {
	env := newTestEnv(t)
	p := env.create(t, acme, cafe)
	end := "2024-02-29"
	c := sampleContent(cafe, "Corner Cafe")
	c.Terms.EndDate = &end
	c.Tracking = append(c.Tracking, domain.KPI{
		Name:            "Revenue",
		MeasurementUnit: domain.MeasurementCurrency,
		TargetValue:     "1000",
		Currency:        "USD",
		ReportFrequency: domain.Span{Value: "0.5", Unit: domain.UnitMonths},
	})
	_, err := env.Engine.Negotiate(env.Ctx, engine.NegotiateOptions{ProposalID: p.ID, ActorID: cafe, Content: c})
	require.NoError(t, err)

	got, err := env.Engine.Get(env.Ctx, acme, p.ID)
	require.NoError(t, err)
	if diff := cmp.Diff(c, got.Content); diff != "" {
		t.Fatalf("content round trip (-want +got):\n%s", diff)
	}
	assert.Equal(t, "Weekend pop-up", got.Title)
	assert.Equal(t, acme, got.ProposerID)
}

func TestPartnerChangePolicy(t *testing.T) {
	env := newTestEnv(t)
	p := env.create(t, acme, cafe)
	_, err := env.Engine.Negotiate(env.Ctx, engine.NegotiateOptions{ProposalID: p.ID, ActorID: cafe, Content: sampleContent(gym, "Iron Gym")})
	require.NoError(t, err)
	got, err := env.Engine.Repo.GetProposal(env.Ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, cafe, got.RecipientID, "counterpart identity is fixed at creation")
	assert.Equal(t, gym, got.Content.PartnerSelection.PartnerID)

	strict := newTestEnv(t, func(c *config.Config) { c.Negotiation.PartnerChange = config.PartnerChangeReject })
	p = strict.create(t, acme, cafe)
	_, err = strict.Engine.Negotiate(strict.Ctx, engine.NegotiateOptions{ProposalID: p.ID, ActorID: cafe, Content: sampleContent(gym, "Iron Gym")})
	require.ErrorIs(t, err, domain.ErrValidation)
}

func TestNegotiateRejectsInvalidContent(t *testing.T) {
	env := newTestEnv(t)
	p := env.create(t, acme, cafe)
	bad := sampleContent(cafe, "")
	bad.Tracking[0].ReportFrequency.Value = "0"
	_, err := env.Engine.Negotiate(env.Ctx, engine.NegotiateOptions{ProposalID: p.ID, ActorID: cafe, Content: bad})
	require.ErrorIs(t, err, domain.ErrValidation)
	got, err := env.Engine.Repo.GetProposal(env.Ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusAwaitingRecipient, got.Status)
}

func TestNegotiateChecksProposalBeforeContent(t *testing.T) {
	env := newTestEnv(t)
	p := env.create(t, acme, cafe)
	bad := sampleContent(cafe, "")
	bad.Objectives.Rows = nil

	_, err := env.Engine.Negotiate(env.Ctx, engine.NegotiateOptions{ProposalID: "missing", ActorID: cafe, Content: bad})
	assert.ErrorIs(t, err, domain.ErrNotFound)
	assert.NotErrorIs(t, err, domain.ErrValidation)

	_, err = env.Engine.Negotiate(env.Ctx, engine.NegotiateOptions{ProposalID: p.ID, ActorID: gym, Content: bad})
	assert.ErrorIs(t, err, domain.ErrForbidden)
	assert.NotErrorIs(t, err, domain.ErrValidation)

	_, err = env.Engine.Negotiate(env.Ctx, engine.NegotiateOptions{ProposalID: p.ID, ActorID: cafe, Content: sampleContent(cafe, "")})
	require.NoError(t, err)
	_, err = env.Engine.Negotiate(env.Ctx, engine.NegotiateOptions{ProposalID: p.ID, ActorID: cafe, Content: bad})
	assert.ErrorIs(t, err, domain.ErrInvalidTransition, "out of turn")

	_, err = env.Engine.Act(env.Ctx, engine.ActOptions{ProposalID: p.ID, ActorID: acme, Action: domain.ActionDecline})
	require.NoError(t, err)
	_, err = env.Engine.Negotiate(env.Ctx, engine.NegotiateOptions{ProposalID: p.ID, ActorID: cafe, Content: bad})
	assert.ErrorIs(t, err, domain.ErrInvalidTransition, "declined is terminal")
}

func TestCreateChecksDirectoryBeforeContent(t *testing.T) {
	env := newTestEnv(t)
	bad := sampleContent("nobody", "")
	bad.Objectives.Rows = nil
	_, err := env.Engine.Create(env.Ctx, engine.CreateOptions{ActorID: acme, RecipientID: "nobody", Title: "x", Content: bad})
	assert.ErrorIs(t, err, domain.ErrNotFound)
	assert.NotErrorIs(t, err, domain.ErrValidation)
}

func TestNegotiateRejectsContradictingEndDate(t *testing.T) {
	env := newTestEnv(t)
	p := env.create(t, acme, cafe)
	c := sampleContent(cafe, "Corner Cafe")
	end := "1999-01-01"
	c.Terms.EndDate = &end
	_, err := env.Engine.Negotiate(env.Ctx, engine.NegotiateOptions{ProposalID: p.ID, ActorID: cafe, Content: c})
	var verr *domain.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "terms.end_date", verr.Errors[0].Field)

	got, err := env.Engine.Repo.GetProposal(env.Ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, p.Version, got.Version)
	assert.Nil(t, got.Content.Terms.EndDate)
}

func TestListTabs(t *testing.T) {
	env := newTestEnv(t)
	declined := env.create(t, acme, cafe)
	_, err := env.Engine.Act(env.Ctx, engine.ActOptions{ProposalID: declined.ID, ActorID: cafe, Action: domain.ActionDecline})
	require.NoError(t, err)
	cancelled := env.create(t, acme, gym)
	_, err = env.Engine.Act(env.Ctx, engine.ActOptions{ProposalID: cancelled.ID, ActorID: acme, Action: domain.ActionCancel})
	require.NoError(t, err)
	pending := env.create(t, cafe, acme)

	items, err := env.Engine.List(env.Ctx, engine.ListOptions{UserID: acme, Tab: domain.TabDeclined})
	require.NoError(t, err)
	ids := []string{}
	for _, it := range items {
		ids = append(ids, it.ID)
	}
	assert.ElementsMatch(t, []string{declined.ID, cancelled.ID}, ids)

	items, err = env.Engine.List(env.Ctx, engine.ListOptions{UserID: acme, Tab: domain.TabReceived})
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, pending.ID, items[0].ID)
	assert.Equal(t, "Corner Cafe", items[0].PartnerName)
	assert.Equal(t, domain.RoleRecipient, items[0].Role)
	assert.True(t, items[0].Unread)

	items, err = env.Engine.List(env.Ctx, engine.ListOptions{UserID: acme})
	require.NoError(t, err)
	require.Len(t, items, 3)
	assert.Equal(t, pending.ID, items[0].ID, "most recently updated first")

	items, err = env.Engine.List(env.Ctx, engine.ListOptions{UserID: acme, Search: "iron"})
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, cancelled.ID, items[0].ID)

	counts, err := env.Engine.Counts(env.Ctx, acme)
	require.NoError(t, err)
	assert.Equal(t, 3, counts.Tabs[domain.TabAll])
	assert.Equal(t, 2, counts.Tabs[domain.TabDeclined])
	assert.Equal(t, 1, counts.Tabs[domain.TabAwaiting])
	assert.Equal(t, 2, counts.Unread)
}

func TestGetClearsUnreadWithoutBumpingVersion(t *testing.T) {
	env := newTestEnv(t)
	p := env.create(t, acme, cafe)
	got, err := env.Engine.Get(env.Ctx, cafe, p.ID)
	require.NoError(t, err)
	assert.False(t, got.UnreadForRecipient)
	stored, err := env.Engine.Repo.GetProposal(env.Ctx, p.ID)
	require.NoError(t, err)
	assert.False(t, stored.UnreadForRecipient)
	assert.Equal(t, p.Version, stored.Version)
	assert.Equal(t, p.UpdatedAt, stored.UpdatedAt)

	_, err = env.Engine.Get(env.Ctx, gym, p.ID)
	assert.ErrorIs(t, err, domain.ErrForbidden)
}

func TestReports(t *testing.T) {
	env := newTestEnv(t)
	p := env.create(t, acme, cafe)
	_, err := env.Engine.Report(env.Ctx, engine.ReportOptions{ProposalID: p.ID, ActorID: cafe, Reason: "   "})
	require.ErrorIs(t, err, domain.ErrValidation)
	reps, err := env.Engine.ListReports(env.Ctx, cafe, p.ID)
	require.NoError(t, err)
	assert.Empty(t, reps)

	rep, err := env.Engine.Report(env.Ctx, engine.ReportOptions{ProposalID: p.ID, ActorID: cafe, Reason: "spam", Details: "unsolicited"})
	require.NoError(t, err)
	_, err = env.Engine.Report(env.Ctx, engine.ReportOptions{ProposalID: p.ID, ActorID: cafe, Reason: "spam"})
	require.NoError(t, err)
	_, err = env.Engine.Act(env.Ctx, engine.ActOptions{ProposalID: p.ID, ActorID: cafe, Action: domain.ActionAccept})
	require.NoError(t, err)

	reps, err = env.Engine.ListReports(env.Ctx, cafe, p.ID)
	require.NoError(t, err)
	require.Len(t, reps, 2, "reports are never deduplicated")
	assert.Equal(t, rep.ID, reps[0].ID)
	assert.Equal(t, "Corner Cafe", reps[0].ReporterName)

	reps, err = env.Engine.ListReports(env.Ctx, acme, p.ID)
	require.NoError(t, err)
	assert.Empty(t, reps, "participants only see their own reports")

	_, err = env.Engine.ListReports(env.Ctx, gym, p.ID)
	require.ErrorIs(t, err, domain.ErrForbidden)
	require.NoError(t, env.Engine.GrantRole(env.Ctx, "", gym, repo.RoleModerator))
	reps, err = env.Engine.ListReports(env.Ctx, gym, p.ID)
	require.NoError(t, err)
	assert.Len(t, reps, 2)

	_, err = env.Engine.Report(env.Ctx, engine.ReportOptions{ProposalID: p.ID, ActorID: gym, Reason: "spam"})
	require.ErrorIs(t, err, domain.ErrForbidden)
}

func TestBlockHidesCounterparty(t *testing.T) {
	env := newTestEnv(t)
	p := env.create(t, acme, cafe)
	other := env.create(t, acme, gym)

	b, err := env.Engine.Block(env.Ctx, cafe, p.ID)
	require.NoError(t, err)
	assert.Equal(t, acme, b.BlockedID)
	again, err := env.Engine.Block(env.Ctx, cafe, p.ID)
	require.NoError(t, err)
	assert.Equal(t, b.CreatedAt, again.CreatedAt, "blocking is idempotent")

	items, err := env.Engine.List(env.Ctx, engine.ListOptions{UserID: cafe})
	require.NoError(t, err)
	assert.Empty(t, items)
	items, err = env.Engine.List(env.Ctx, engine.ListOptions{UserID: cafe, IncludeBlocked: true})
	require.NoError(t, err)
	assert.Len(t, items, 1)

	items, err = env.Engine.List(env.Ctx, engine.ListOptions{UserID: acme})
	require.NoError(t, err)
	assert.Len(t, items, 2, "the blocked party still sees its proposals")

	got, err := env.Engine.Get(env.Ctx, cafe, p.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusAwaitingRecipient, got.Status, "blocking does not cancel")
	_, err = env.Engine.Get(env.Ctx, acme, p.ID)
	require.NoError(t, err)

	found, err := env.Engine.ListBusinesses(env.Ctx, cafe, repo.BusinessFilter{})
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, gym, found[0].ID)

	_, err = env.Engine.Create(env.Ctx, engine.CreateOptions{ActorID: acme, RecipientID: cafe, Title: "Again", Content: sampleContent(cafe, "")})
	require.ErrorIs(t, err, domain.ErrForbidden)
	_, err = env.Engine.SendMessage(env.Ctx, engine.MessageOptions{ProposalID: p.ID, ActorID: acme, Content: "hello?"})
	require.ErrorIs(t, err, domain.ErrForbidden)
	_, err = env.Engine.SendMessage(env.Ctx, engine.MessageOptions{ProposalID: other.ID, ActorID: acme, Content: "hello gym"})
	require.NoError(t, err)

	require.NoError(t, env.Engine.Unblock(env.Ctx, cafe, acme))
	require.ErrorIs(t, env.Engine.Unblock(env.Ctx, cafe, acme), domain.ErrNotFound)
	items, err = env.Engine.List(env.Ctx, engine.ListOptions{UserID: cafe})
	require.NoError(t, err)
	assert.Len(t, items, 1)
}

func TestSendMessage(t *testing.T) {
	env := newTestEnv(t)
	p := env.create(t, acme, cafe)
	_, err := env.Engine.SendMessage(env.Ctx, engine.MessageOptions{ProposalID: p.ID, ActorID: cafe, Content: "  "})
	require.ErrorIs(t, err, domain.ErrValidation)

	got, err := env.Engine.SendMessage(env.Ctx, engine.MessageOptions{ProposalID: p.ID, ActorID: cafe, Content: "Can we start in March?"})
	require.NoError(t, err)
	assert.Equal(t, domain.StatusAwaitingRecipient, got.Status)
	assert.Equal(t, p.Version+1, got.Version)
	assert.True(t, got.UnreadForProposer)
	last := got.Messages[len(got.Messages)-1]
	assert.Equal(t, domain.MessageKindChat, last.Kind)
	assert.Equal(t, 2, last.Seq)
}

func TestExpectedVersionConflict(t *testing.T) {
	env := newTestEnv(t)
	p := env.create(t, acme, cafe)
	_, err := env.Engine.Act(env.Ctx, engine.ActOptions{ProposalID: p.ID, ActorID: cafe, Action: domain.ActionAccept, ExpectedVersion: p.Version + 1})
	require.ErrorIs(t, err, domain.ErrConflict)
	_, err = env.Engine.Act(env.Ctx, engine.ActOptions{ProposalID: p.ID, ActorID: cafe, Action: domain.ActionAccept, ExpectedVersion: p.Version})
	require.NoError(t, err)
}

func TestConcurrentAcceptsExactlyOneWins(t *testing.T) {
	env := newTestEnv(t)
	p := env.create(t, acme, cafe)
	p, err := env.Engine.Negotiate(env.Ctx, engine.NegotiateOptions{ProposalID: p.ID, ActorID: acme, Content: sampleContent(cafe, "")})
	require.NoError(t, err)

	const n = 8
	var wg sync.WaitGroup
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			action := domain.ActionAccept
			if i%2 == 1 {
				action = domain.ActionDecline
			}
			_, errs[i] = env.Engine.Act(env.Ctx, engine.ActOptions{ProposalID: p.ID, ActorID: cafe, Action: action})
		}(i)
	}
	wg.Wait()

	wins := 0
	for _, err := range errs {
		switch {
		case err == nil:
			wins++
		case errors.Is(err, domain.ErrConflict), errors.Is(err, domain.ErrInvalidTransition):
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	assert.Equal(t, 1, wins)
	final, err := env.Engine.Repo.GetProposal(env.Ctx, p.ID)
	require.NoError(t, err)
	assert.True(t, final.Status.Terminal())
	assert.Equal(t, p.Version+1, final.Version)
	msgs, err := env.Engine.Repo.ListMessages(env.Ctx, p.ID)
	require.NoError(t, err)
	assert.Len(t, msgs, 3)
}

func TestExpireDue(t *testing.T) {
	env := newTestEnv(t, func(c *config.Config) { c.Proposals.ExpireAfter = 72 * time.Hour })
	stale := env.create(t, acme, cafe)
	done := env.create(t, acme, gym)
	_, err := env.Engine.Act(env.Ctx, engine.ActOptions{ProposalID: done.ID, ActorID: gym, Action: domain.ActionAccept})
	require.NoError(t, err)
	env.Clock.Advance(96 * time.Hour)
	fresh := env.create(t, cafe, gym)

	_, err = env.Engine.ExpireDue(env.Ctx, acme)
	require.ErrorIs(t, err, domain.ErrForbidden)

	res, err := env.Engine.ExpireDue(env.Ctx, engine.SystemActor)
	require.NoError(t, err)
	assert.Equal(t, []string{stale.ID}, res.Expired)

	got, err := env.Engine.Get(env.Ctx, acme, stale.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusExpired, got.Status)
	assert.True(t, got.UnreadForRecipient)
	last := got.Messages[len(got.Messages)-1]
	assert.Equal(t, domain.RoleSystem, last.SenderRole)
	assert.Equal(t, "Proposal expired", last.Content)

	got, err = env.Engine.Get(env.Ctx, cafe, fresh.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusAwaitingRecipient, got.Status)

	_, err = env.Engine.Expire(env.Ctx, engine.SystemActor, stale.ID)
	require.ErrorIs(t, err, domain.ErrInvalidTransition)
}

func TestExpireDisabled(t *testing.T) {
	env := newTestEnv(t)
	env.create(t, acme, cafe)
	env.Clock.Advance(24 * 365 * time.Hour)
	res, err := env.Engine.ExpireDue(env.Ctx, engine.SystemActor)
	require.NoError(t, err)
	assert.Empty(t, res.Expired)
}

func TestEventsRecorded(t *testing.T) {
	env := newTestEnv(t)
	p := env.create(t, acme, cafe)
	_, err := env.Engine.Act(env.Ctx, engine.ActOptions{ProposalID: p.ID, ActorID: cafe, Action: domain.ActionAccept})
	require.NoError(t, err)
	evts, err := env.Engine.ListEvents(env.Ctx, engine.SystemActor, repo.EventFilter{EntityKind: "proposal", EntityID: p.ID})
	require.NoError(t, err)
	types := []string{}
	for _, e := range evts {
		types = append(types, e.Type)
	}
	assert.Equal(t, []string{"proposal.accepted", "proposal.created"}, types)

	_, err = env.Engine.ListEvents(env.Ctx, acme, repo.EventFilter{})
	assert.ErrorIs(t, err, domain.ErrForbidden)
}

func TestUpsertBusinessPermissions(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.Engine.UpsertBusiness(env.Ctx, acme, domain.Business{ID: cafe, Name: "Taken Over"})
	require.ErrorIs(t, err, domain.ErrForbidden)

	p := env.create(t, acme, cafe)
	b, err := env.Engine.UpsertBusiness(env.Ctx, acme, domain.Business{ID: acme, Name: "Acme Bakery & Co"})
	require.NoError(t, err)
	assert.Equal(t, "Acme Bakery & Co", b.Name)

	got, err := env.Engine.Get(env.Ctx, acme, p.ID)
	require.NoError(t, err)
	assert.Equal(t, "Acme Bakery", got.ProposerName, "denormalized names are snapshots")
}

func TestPreview(t *testing.T) {
	env := newTestEnv(t)
	out := env.Engine.Preview(sampleContent(cafe, "Corner Cafe"), "Acme Bakery")
	require.NotNil(t, out.EndDate)
	assert.Equal(t, "2024-02-29", *out.EndDate)
	assert.True(t, out.Buildable)
	assert.Equal(t, "Acme Bakery would like to partner with Corner Cafe on Co-marketing.", out.OutlineSummary)
	assert.Empty(t, cmp.Diff([]domain.FieldError{}, out.Problems, cmpopts.EquateEmpty()))
}
