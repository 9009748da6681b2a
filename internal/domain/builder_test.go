package domain_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"partnerline/internal/domain"
)

func TestEndDate(t *testing.T) {
	cases := []struct {
		start   string
		value   string
		unit    domain.DurationUnit
		ongoing bool
		want    string
	}{
		{"2024-01-31", "1", domain.UnitMonths, false, "2024-02-29"},
		{"2023-01-31", "1", domain.UnitMonths, false, "2023-02-28"},
		{"2024-02-29", "1", domain.UnitYears, false, "2025-02-28"},
		{"2024-01-01", "10", domain.UnitDays, false, "2024-01-11"},
		{"2024-01-01", "2", domain.UnitWeeks, false, "2024-01-15"},
		{"2024-11-30", "1", domain.UnitQuarters, false, "2025-02-28"},
		{"2024-03-15", " 6 ", domain.UnitMonths, false, "2024-09-15"},
		{"2024-03-15T10:00:00Z", "1", domain.UnitMonths, false, "2024-04-15"},
	}
	for _, tc := range cases {
		got := domain.EndDate(tc.start, tc.value, tc.unit, tc.ongoing)
		require.NotNil(t, got, "%s + %s %s", tc.start, tc.value, tc.unit)
		assert.Equal(t, tc.want, *got, "%s + %s %s", tc.start, tc.value, tc.unit)
	}
}

func TestEndDateNil(t *testing.T) {
	assert.Nil(t, domain.EndDate("2024-01-01", "3", domain.UnitMonths, true), "ongoing")
	assert.Nil(t, domain.EndDate("", "3", domain.UnitMonths, false), "no start")
	assert.Nil(t, domain.EndDate("01/02/2024", "3", domain.UnitMonths, false), "bad start")
	assert.Nil(t, domain.EndDate("2024-01-01", "", domain.UnitMonths, false), "no value")
	assert.Nil(t, domain.EndDate("2024-01-01", "0", domain.UnitMonths, false), "zero")
	assert.Nil(t, domain.EndDate("2024-01-01", "-2", domain.UnitMonths, false), "negative")
	assert.Nil(t, domain.EndDate("2024-01-01", "1.5", domain.UnitMonths, false), "fraction")
	assert.Nil(t, domain.EndDate("2024-01-01", "2", "fortnights", false), "unknown unit")
}

func validKPI() domain.KPI {
	return domain.KPI{
		Name:            "Referrals",
		MeasurementUnit: "count",
		TargetValue:     "20",
		ReportFrequency: domain.Span{Value: "1", Unit: domain.UnitMonths},
	}
}

func TestKPIValid(t *testing.T) {
	assert.True(t, validKPI().Valid())

	k := validKPI()
	k.Name = "  "
	assert.False(t, k.Valid(), "blank name")

	k = validKPI()
	k.TargetValue = ""
	assert.False(t, k.Valid(), "no target")

	for _, v := range []string{"", "0", "-1", "abc", "NaN", "Inf"} {
		k = validKPI()
		k.ReportFrequency.Value = v
		assert.False(t, k.Valid(), "frequency %q", v)
	}
	k = validKPI()
	k.ReportFrequency.Value = "0.5"
	assert.True(t, k.Valid(), "fractional frequency")

	k = validKPI()
	k.MeasurementUnit = domain.MeasurementCurrency
	assert.False(t, k.Valid(), "currency unit without currency")
	k.Currency = "USD"
	assert.True(t, k.Valid())
}

func buildableContent() domain.ProposalContent {
	return domain.ProposalContent{
		Objectives: domain.Objectives{
			Overview: "Grow both audiences",
			Rows:     []domain.ObjectiveRow{{ProposerOutcome: "More foot traffic", RecipientOutcome: "New customers"}},
		},
		Terms: domain.Terms{
			StartDate:             "2024-01-31",
			Duration:              domain.Duration{Value: "1", Unit: domain.UnitMonths},
			TerminationConditions: []string{"mutual_agreement"},
		},
		Tracking: []domain.KPI{validKPI()},
	}
}

func TestBuildable(t *testing.T) {
	c := buildableContent()
	assert.True(t, domain.Buildable(c))

	c.Objectives.Rows = []domain.ObjectiveRow{{ProposerOutcome: "only one side"}}
	assert.False(t, domain.Buildable(c), "incomplete row")

	c = buildableContent()
	c.Objectives.Rows = nil
	assert.False(t, domain.Buildable(c), "no rows")

	c = buildableContent()
	c.Tracking = append(c.Tracking, domain.KPI{Name: "broken"})
	assert.False(t, domain.Buildable(c), "invalid kpi")

	c = buildableContent()
	c.Tracking = nil
	assert.True(t, domain.Buildable(c), "tracking is optional")
}

func TestValidateReportsFields(t *testing.T) {
	c := buildableContent()
	c.Objectives.Rows = nil
	c.Tracking = []domain.KPI{{MeasurementUnit: domain.MeasurementCurrency, ReportFrequency: domain.Span{Value: "x"}}}
	err := domain.Validate(c, domain.Catalog{})
	require.ErrorIs(t, err, domain.ErrValidation)
	verr := err.(*domain.ValidationError)
	var fields []string
	for _, fe := range verr.Errors {
		fields = append(fields, fe.Field)
	}
	assert.Equal(t, []string{
		"objectives.rows",
		"tracking[0].name",
		"tracking[0].target_value",
		"tracking[0].report_frequency.value",
		"tracking[0].currency",
	}, fields)
}

func TestValidateCatalog(t *testing.T) {
	cat := domain.Catalog{
		FocusCategories:       []string{"co_marketing"},
		TerminationConditions: []string{"mutual_agreement"},
		Currencies:            []string{"USD"},
	}
	c := buildableContent()
	c.Outline.FocusKey = "co_marketing"
	require.NoError(t, domain.Validate(c, cat))

	c.Outline.FocusKey = "joint_venture"
	c.Terms.TerminationConditions = []string{"breach"}
	c.Tracking[0].MeasurementUnit = domain.MeasurementCurrency
	c.Tracking[0].Currency = "XYZ"
	err := domain.Validate(c, cat)
	require.ErrorIs(t, err, domain.ErrValidation)
	assert.Len(t, err.(*domain.ValidationError).Errors, 3)
}

func TestValidateUnitsAndStartDate(t *testing.T) {
	c := buildableContent()
	c.Terms.Duration.Unit = "fortnights"
	c.Terms.StartDate = "January"
	err := domain.Validate(c, domain.Catalog{})
	require.ErrorIs(t, err, domain.ErrValidation)
	assert.Len(t, err.(*domain.ValidationError).Errors, 2)
}

func TestValidateEndDate(t *testing.T) {
	ptr := func(s string) *string { return &s }
	cases := []struct {
		name    string
		end     *string
		ongoing bool
		start   string
		wantErr bool
	}{
		{"absent", nil, false, "2024-01-31", false},
		{"computed", ptr("2024-02-29"), false, "2024-01-31", false},
		{"contradicts duration", ptr("1999-01-01"), false, "2024-01-31", true},
		{"unclamped", ptr("2024-03-02"), false, "2024-01-31", true},
		{"ongoing", ptr("2024-02-29"), true, "2024-01-31", true},
		{"no start date", ptr("2024-02-29"), false, "", true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			c := buildableContent()
			c.Terms.StartDate = tc.start
			c.Terms.Duration.Ongoing = tc.ongoing
			c.Terms.EndDate = tc.end
			err := domain.Validate(c, domain.Catalog{})
			if !tc.wantErr {
				require.NoError(t, err)
				return
			}
			var verr *domain.ValidationError
			require.ErrorAs(t, err, &verr)
			require.Len(t, verr.Errors, 1)
			assert.Equal(t, "terms.end_date", verr.Errors[0].Field)
		})
	}
}

func TestPreview(t *testing.T) {
	c := buildableContent()
	c.Tracking = append(c.Tracking, domain.KPI{Name: "Revenue"})
	p := domain.Preview(c, domain.Catalog{})
	require.NotNil(t, p.EndDate)
	assert.Equal(t, "2024-02-29", *p.EndDate)
	assert.Equal(t, []domain.KPIPreview{{Index: 0, Valid: true}, {Index: 1, Valid: false}}, p.Tracking)
	assert.Equal(t, 1, p.CompleteRows)
	assert.False(t, p.Buildable)
	assert.NotEmpty(t, p.Problems)
}

func TestOutlineSummary(t *testing.T) {
	assert.Equal(t, "Acme Bakery would like to partner with Corner Cafe on Co-marketing.",
		domain.OutlineSummary("Acme Bakery", "Corner Cafe", "Co-marketing"))
	assert.Equal(t, "Acme Bakery would like to partner with Corner Cafe.",
		domain.OutlineSummary("Acme Bakery", "Corner Cafe", ""))
	assert.Equal(t, "We would like to explore a partnership.", domain.OutlineSummary("", "", ""))
}

func TestDiff(t *testing.T) {
	old := buildableContent()
	next := buildableContent()
	assert.Empty(t, domain.Diff(old, next))

	next.Terms.Duration.Value = "3"
	next.AdditionalNotes = "bring samples"
	next.Tracking[0].TargetValue = "30"
	assert.Equal(t, []domain.Section{domain.SectionTerms, domain.SectionTracking, domain.SectionAdditionalNotes}, domain.Diff(old, next))

	end := "2024-02-29"
	next = buildableContent()
	next.Terms.EndDate = &end
	assert.Equal(t, []domain.Section{domain.SectionTerms}, domain.Diff(old, next))
}
