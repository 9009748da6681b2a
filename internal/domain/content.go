package domain

import (
	"fmt"
	"slices"
)

// ProposalContent is the negotiable payload. A stored value is never edited in
// place; negotiation replaces it wholesale.
type ProposalContent struct {
	PartnerSelection PartnerSelection `json:"partner_selection"`
	Outline          Outline          `json:"outline"`
	Contributions    Contributions    `json:"contributions"`
	Objectives       Objectives       `json:"objectives"`
	Terms            Terms            `json:"terms"`
	Tracking         []KPI            `json:"tracking"`
	AdditionalNotes  string           `json:"additional_notes"`
}

type PartnerSelection struct {
	PartnerID   string `json:"partner_id"`
	PartnerName string `json:"partner_name"`
	Industry    string `json:"industry"`
	Location    string `json:"location"`
}

type Outline struct {
	FocusKey         string `json:"focus_key"`
	FocusTitle       string `json:"focus_title"`
	FocusDescription string `json:"focus_description"`
	Summary          string `json:"summary"`
}

type Contributions struct {
	Proposer  string `json:"proposer"`
	Recipient string `json:"recipient"`
}

type Objectives struct {
	Overview string         `json:"overview"`
	Rows     []ObjectiveRow `json:"rows"`
}

type ObjectiveRow struct {
	ProposerOutcome  string `json:"proposer_outcome"`
	RecipientOutcome string `json:"recipient_outcome"`
}

// Complete reports whether both sides of the row are filled in.
func (r ObjectiveRow) Complete() bool {
	return trimmed(r.ProposerOutcome) != "" && trimmed(r.RecipientOutcome) != ""
}

// Span is a form value plus unit. Value is kept as submitted.
type Span struct {
	Value string       `json:"value"`
	Unit  DurationUnit `json:"unit"`
}

type Duration struct {
	Value   string       `json:"value"`
	Unit    DurationUnit `json:"unit"`
	Ongoing bool         `json:"ongoing"`
}

type Terms struct {
	StartDate             string   `json:"start_date"`
	Duration              Duration `json:"duration"`
	ReviewCadence         Span     `json:"review_cadence"`
	TerminationConditions []string `json:"termination_conditions"`
	AdditionalTerms       string   `json:"additional_terms"`
	EndDate               *string  `json:"end_date"`
}

type KPI struct {
	Name            string `json:"name"`
	MeasurementUnit string `json:"measurement_unit"`
	TargetValue     string `json:"target_value"`
	Currency        string `json:"currency"`
	ReportFrequency Span   `json:"report_frequency"`
}

// MeasurementCurrency is the measurement unit that requires a currency code.
const MeasurementCurrency = "currency"

type DurationUnit string

const (
	UnitDays     DurationUnit = "days"
	UnitWeeks    DurationUnit = "weeks"
	UnitMonths   DurationUnit = "months"
	UnitQuarters DurationUnit = "quarters"
	UnitYears    DurationUnit = "years"
)

func ParseDurationUnit(s string) (DurationUnit, error) {
	switch DurationUnit(s) {
	case UnitDays, UnitWeeks, UnitMonths, UnitQuarters, UnitYears:
		return DurationUnit(s), nil
	}
	return "", fmt.Errorf("unknown duration unit %q", s)
}

// Section names a top-level part of ProposalContent.
type Section string

const (
	SectionPartnerSelection Section = "partnerSelection"
	SectionOutline          Section = "outline"
	SectionContributions    Section = "contributions"
	SectionObjectives       Section = "objectives"
	SectionTerms            Section = "terms"
	SectionTracking         Section = "tracking"
	SectionAdditionalNotes  Section = "additionalNotes"
)

// Diff lists the sections that differ between old and next, in content order.
func Diff(old, next ProposalContent) []Section {
	changed := []Section{}
	if old.PartnerSelection != next.PartnerSelection {
		changed = append(changed, SectionPartnerSelection)
	}
	if old.Outline != next.Outline {
		changed = append(changed, SectionOutline)
	}
	if old.Contributions != next.Contributions {
		changed = append(changed, SectionContributions)
	}
	if old.Objectives.Overview != next.Objectives.Overview || !slices.Equal(old.Objectives.Rows, next.Objectives.Rows) {
		changed = append(changed, SectionObjectives)
	}
	if !termsEqual(old.Terms, next.Terms) {
		changed = append(changed, SectionTerms)
	}
	if !slices.Equal(old.Tracking, next.Tracking) {
		changed = append(changed, SectionTracking)
	}
	if old.AdditionalNotes != next.AdditionalNotes {
		changed = append(changed, SectionAdditionalNotes)
	}
	return changed
}

func termsEqual(a, b Terms) bool {
	if a.StartDate != b.StartDate || a.Duration != b.Duration || a.ReviewCadence != b.ReviewCadence || a.AdditionalTerms != b.AdditionalTerms {
		return false
	}
	if !slices.Equal(a.TerminationConditions, b.TerminationConditions) {
		return false
	}
	switch {
	case a.EndDate == nil && b.EndDate == nil:
		return true
	case a.EndDate == nil || b.EndDate == nil:
		return false
	}
	return *a.EndDate == *b.EndDate
}
