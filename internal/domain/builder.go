package domain

import (
	"errors"
	"fmt"
	"math"
	"slices"
	"strconv"
	"strings"
	"time"
)

const DateLayout = "2006-01-02"

// EndDate computes the end of the agreement. It returns nil when the term is
// ongoing, the start date does not parse, or the value is not a positive
// integer of a known unit. Month arithmetic clamps to the last day of the
// target month.
func EndDate(startDate, value string, unit DurationUnit, ongoing bool) *string {
	if ongoing {
		return nil
	}
	start, ok := ParseDate(startDate)
	if !ok {
		return nil
	}
	n, err := strconv.Atoi(trimmed(value))
	if err != nil || n <= 0 {
		return nil
	}
	var end time.Time
	switch unit {
	case UnitDays:
		end = start.AddDate(0, 0, n)
	case UnitWeeks:
		end = start.AddDate(0, 0, 7*n)
	case UnitMonths:
		end = addMonths(start, n)
	case UnitQuarters:
		end = addMonths(start, 3*n)
	case UnitYears:
		end = addMonths(start, 12*n)
	default:
		return nil
	}
	s := end.Format(DateLayout)
	return &s
}

// ParseDate accepts YYYY-MM-DD or an RFC 3339 timestamp and returns the
// calendar date at UTC midnight.
func ParseDate(s string) (time.Time, bool) {
	s = trimmed(s)
	if s == "" {
		return time.Time{}, false
	}
	if t, err := time.Parse(DateLayout, s); err == nil {
		return t, true
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC), true
	}
	return time.Time{}, false
}

func addMonths(t time.Time, n int) time.Time {
	first := time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC).AddDate(0, n, 0)
	last := first.AddDate(0, 1, -1).Day()
	day := t.Day()
	if day > last {
		day = last
	}
	return time.Date(first.Year(), first.Month(), day, 0, 0, 0, 0, time.UTC)
}

// PositiveNumber reports whether s parses to a finite number greater than zero.
func PositiveNumber(s string) bool {
	f, err := strconv.ParseFloat(trimmed(s), 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return false
	}
	return f > 0
}

// Valid reports whether the KPI row can be tracked.
func (k KPI) Valid() bool {
	return len(k.problems("")) == 0
}

func (k KPI) problems(prefix string) []FieldError {
	var errs []FieldError
	if trimmed(k.Name) == "" {
		errs = append(errs, FieldError{Field: prefix + "name", Message: "required"})
	}
	if trimmed(k.TargetValue) == "" {
		errs = append(errs, FieldError{Field: prefix + "target_value", Message: "required"})
	}
	if !PositiveNumber(k.ReportFrequency.Value) {
		errs = append(errs, FieldError{Field: prefix + "report_frequency.value", Message: "must be a positive number"})
	}
	if k.MeasurementUnit == MeasurementCurrency && trimmed(k.Currency) == "" {
		errs = append(errs, FieldError{Field: prefix + "currency", Message: "required when measurement unit is currency"})
	}
	return errs
}

// Buildable reports whether c has at least one complete objective row and
// every KPI row is valid.
func Buildable(c ProposalContent) bool {
	if !slices.ContainsFunc(c.Objectives.Rows, ObjectiveRow.Complete) {
		return false
	}
	for _, k := range c.Tracking {
		if !k.Valid() {
			return false
		}
	}
	return true
}

// Catalog restricts keys a submission may reference. Empty lists allow anything.
type Catalog struct {
	FocusCategories       []string
	TerminationConditions []string
	Currencies            []string
}

// Validate returns a *ValidationError describing every problem in c, or nil.
func Validate(c ProposalContent, cat Catalog) error {
	var errs []FieldError
	if !slices.ContainsFunc(c.Objectives.Rows, ObjectiveRow.Complete) {
		errs = append(errs, FieldError{Field: "objectives.rows", Message: "at least one row needs both outcomes"})
	}
	for i, k := range c.Tracking {
		errs = append(errs, k.problems(fmt.Sprintf("tracking[%d].", i))...)
		if k.ReportFrequency.Unit != "" {
			if _, err := ParseDurationUnit(string(k.ReportFrequency.Unit)); err != nil {
				errs = append(errs, FieldError{Field: fmt.Sprintf("tracking[%d].report_frequency.unit", i), Message: err.Error()})
			}
		}
		if k.MeasurementUnit == MeasurementCurrency && k.Currency != "" && !allowed(cat.Currencies, k.Currency) {
			errs = append(errs, FieldError{Field: fmt.Sprintf("tracking[%d].currency", i), Message: fmt.Sprintf("currency %q is not supported", k.Currency)})
		}
	}
	if c.Terms.Duration.Unit != "" {
		if _, err := ParseDurationUnit(string(c.Terms.Duration.Unit)); err != nil {
			errs = append(errs, FieldError{Field: "terms.duration.unit", Message: err.Error()})
		}
	}
	if c.Terms.ReviewCadence.Unit != "" {
		if _, err := ParseDurationUnit(string(c.Terms.ReviewCadence.Unit)); err != nil {
			errs = append(errs, FieldError{Field: "terms.review_cadence.unit", Message: err.Error()})
		}
	}
	if trimmed(c.Terms.StartDate) != "" {
		if _, ok := ParseDate(c.Terms.StartDate); !ok {
			errs = append(errs, FieldError{Field: "terms.start_date", Message: "must be YYYY-MM-DD"})
		}
	}
	if end := c.Terms.EndDate; end != nil {
		d := c.Terms.Duration
		switch want := EndDate(c.Terms.StartDate, d.Value, d.Unit, d.Ongoing); {
		case d.Ongoing:
			errs = append(errs, FieldError{Field: "terms.end_date", Message: "must be empty for an ongoing partnership"})
		case want == nil:
			errs = append(errs, FieldError{Field: "terms.end_date", Message: "must be empty without a start date and duration"})
		case *want != *end:
			errs = append(errs, FieldError{Field: "terms.end_date", Message: fmt.Sprintf("must be %s for the given start date and duration", *want)})
		}
	}
	for i, key := range c.Terms.TerminationConditions {
		if !allowed(cat.TerminationConditions, key) {
			errs = append(errs, FieldError{Field: fmt.Sprintf("terms.termination_conditions[%d]", i), Message: fmt.Sprintf("unknown termination condition %q", key)})
		}
	}
	if c.Outline.FocusKey != "" && !allowed(cat.FocusCategories, c.Outline.FocusKey) {
		errs = append(errs, FieldError{Field: "outline.focus_key", Message: fmt.Sprintf("unknown focus category %q", c.Outline.FocusKey)})
	}
	if len(errs) == 0 {
		return nil
	}
	return &ValidationError{Errors: errs}
}

func allowed(list []string, key string) bool {
	return len(list) == 0 || slices.Contains(list, key)
}

type KPIPreview struct {
	Index int  `json:"index"`
	Valid bool `json:"valid"`
}

// ContentPreview holds the derived values shown while a proposal is edited.
type ContentPreview struct {
	EndDate        *string      `json:"end_date"`
	Tracking       []KPIPreview `json:"tracking"`
	CompleteRows   int          `json:"complete_objective_rows"`
	Buildable      bool         `json:"buildable"`
	OutlineSummary string       `json:"outline_summary,omitempty"`
	Problems       []FieldError `json:"problems"`
}

func Preview(c ProposalContent, cat Catalog) ContentPreview {
	d := c.Terms.Duration
	out := ContentPreview{
		EndDate:   EndDate(c.Terms.StartDate, d.Value, d.Unit, d.Ongoing),
		Tracking:  make([]KPIPreview, 0, len(c.Tracking)),
		Buildable: Buildable(c),
		Problems:  []FieldError{},
	}
	for _, row := range c.Objectives.Rows {
		if row.Complete() {
			out.CompleteRows++
		}
	}
	for i, k := range c.Tracking {
		out.Tracking = append(out.Tracking, KPIPreview{Index: i, Valid: k.Valid()})
	}
	var verr *ValidationError
	if err := Validate(c, cat); errors.As(err, &verr) {
		out.Problems = verr.Errors
	}
	return out
}

// OutlineSummary renders the generated outline sentence.
func OutlineSummary(proposerName, partnerName, focusTitle string) string {
	proposerName, partnerName, focusTitle = trimmed(proposerName), trimmed(partnerName), trimmed(focusTitle)
	if proposerName == "" {
		proposerName = "We"
	}
	switch {
	case partnerName == "" && focusTitle == "":
		return fmt.Sprintf("%s would like to explore a partnership.", proposerName)
	case partnerName == "":
		return fmt.Sprintf("%s would like to explore a partnership focused on %s.", proposerName, focusTitle)
	case focusTitle == "":
		return fmt.Sprintf("%s would like to partner with %s.", proposerName, partnerName)
	}
	return fmt.Sprintf("%s would like to partner with %s on %s.", proposerName, partnerName, focusTitle)
}

func trimmed(s string) string {
	return strings.TrimSpace(s)
}
