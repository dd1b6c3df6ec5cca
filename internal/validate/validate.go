// Package validate checks table rows before they are written.
package validate

import (
	"errors"
	"fmt"
	"reflect"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/comparethewait/ctw/internal/store"
	"github.com/comparethewait/ctw/pkg/models"
)

var (
	phoneSeparators = strings.NewReplacer(" ", "", "-", "", "(", "", ")", "", ".", "")
	ukPhonePattern  = regexp.MustCompile(`^(?:\+44|0)\d{9,10}$`)
	ukPostcode      = regexp.MustCompile(`(?i)^[A-Z]{1,2}[0-9][A-Z0-9]? ?[0-9][A-Z]{2}$`)
)

// Issue is a single failed rule on a single row
type Issue struct {
	Table   string `json:"table"`
	Row     int    `json:"row"`
	Key     string `json:"key,omitempty"`
	Field   string `json:"field"`
	Rule    string `json:"rule"`
	Value   string `json:"value,omitempty"`
	Message string `json:"message"`
}

func (i Issue) String() string {
	return fmt.Sprintf("%s row %d (%s): %s %s", i.Table, i.Row, i.Key, i.Field, i.Message)
}

// Validator applies the row rules declared on the model struct tags
type Validator struct {
	v *validator.Validate
}

// New returns a Validator with the UK-specific rules registered
func New() *Validator {
	v := validator.New(validator.WithRequiredStructEnabled())

	// Report fields by their CSV column name
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := f.Tag.Get("csv")
		if name == "" || name == "-" {
			return f.Name
		}
		return name
	})

	// Registration only fails on empty tags or nil funcs
	_ = v.RegisterValidation("ukphone", func(fl validator.FieldLevel) bool {
		return IsUKPhone(fl.Field().String())
	})
	_ = v.RegisterValidation("ukpostcode", func(fl validator.FieldLevel) bool {
		return ukPostcode.MatchString(strings.TrimSpace(fl.Field().String()))
	})

	v.RegisterStructValidation(waitOrdering, models.NHSWait{})

	return &Validator{v: v}
}

// IsUKPhone reports whether s is a UK phone number: +44 or 0 followed by
// nine or ten digits, ignoring spaces, dashes, dots and brackets.
func IsUKPhone(s string) bool {
	return ukPhonePattern.MatchString(phoneSeparators.Replace(strings.TrimSpace(s)))
}

// waitOrdering enforces min <= avg <= max when the bounds are present
func waitOrdering(sl validator.StructLevel) {
	w := sl.Current().Interface().(models.NHSWait)
	if w.MinWaitWeeks != nil && *w.MinWaitWeeks > w.AvgWaitWeeks {
		sl.ReportError(w.MinWaitWeeks, "min_wait_weeks", "MinWaitWeeks", "ltefield", "avg_wait_weeks")
	}
	if w.MaxWaitWeeks != nil && *w.MaxWaitWeeks < w.AvgWaitWeeks {
		sl.ReportError(w.MaxWaitWeeks, "max_wait_weeks", "MaxWaitWeeks", "gtefield", "avg_wait_weeks")
	}
}

// Row validates a single row and returns its issues, without table or
// row position filled in.
func (v *Validator) Row(row any) []Issue {
	err := v.v.Struct(row)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return []Issue{{Field: "-", Rule: "invalid", Message: err.Error()}}
	}

	issues := make([]Issue, 0, len(verrs))
	for _, e := range verrs {
		issues = append(issues, Issue{
			Field:   e.Field(),
			Rule:    e.Tag(),
			Value:   formatValue(e.Value()),
			Message: message(e),
		})
	}
	return issues
}

// Filter splits rows into those that pass validation and the issues of
// those that do not.
func Filter[T store.Keyed](v *Validator, table string, rows []T) ([]T, []Issue) {
	var (
		valid  = make([]T, 0, len(rows))
		issues []Issue
	)
	for i, r := range rows {
		rowIssues := v.Row(r)
		if len(rowIssues) == 0 {
			valid = append(valid, r)
			continue
		}
		for _, is := range rowIssues {
			is.Table = table
			is.Row = i + 1
			is.Key = r.Key().String()
			issues = append(issues, is)
		}
	}
	return valid, issues
}

// Rows validates freshly extracted rows, dropping invalid ones
func (v *Validator) Rows(rows models.Rows) (models.Rows, []Issue) {
	var out models.Rows
	var issues, is []Issue

	out.NHSWaits, is = Filter(v, "nhs_waits", rows.NHSWaits)
	issues = append(issues, is...)
	out.PrivateCosts, is = Filter(v, "private_costs", rows.PrivateCosts)
	issues = append(issues, is...)
	out.Clinics, is = Filter(v, "clinics", rows.Clinics)
	issues = append(issues, is...)

	return out, issues
}

// Report is the result of validating a whole data directory
type Report struct {
	Rows   int     `json:"rows"`
	Issues []Issue `json:"issues"`
}

// OK reports whether no issues were found
func (r Report) OK() bool { return len(r.Issues) == 0 }

// Dataset validates every table and checks that every keyed row
// references a known procedure and city.
func (v *Validator) Dataset(ds *store.Dataset) Report {
	var rep Report

	tableRows := func(table string, rows []any) {
		for i, r := range rows {
			rep.Rows++
			for _, is := range v.Row(r) {
				is.Table = table
				is.Row = i + 1
				if k, ok := r.(store.Keyed); ok {
					is.Key = k.Key().String()
				}
				rep.Issues = append(rep.Issues, is)
			}
		}
	}

	tableRows("procedures", toAny(ds.Procedures))
	tableRows("cities", toAny(ds.Cities))
	tableRows("nhs_waits", toAny(ds.NHSWaits))
	tableRows("private_costs", toAny(ds.PrivateCosts))
	tableRows("clinics", toAny(ds.Clinics))
	tableRows("faq", toAny(ds.FAQs))

	rep.Issues = append(rep.Issues, references(ds)...)
	return rep
}

func references(ds *store.Dataset) []Issue {
	if len(ds.Procedures) == 0 || len(ds.Cities) == 0 {
		return nil
	}

	procs := make(map[string]bool, len(ds.Procedures))
	for _, p := range ds.Procedures {
		procs[p.ID] = true
	}
	cities := make(map[string]bool, len(ds.Cities))
	for _, c := range ds.Cities {
		cities[c.Slug] = true
	}

	var issues []Issue
	check := func(table string, i int, k models.Key) {
		if !procs[k.ProcedureID] {
			issues = append(issues, Issue{Table: table, Row: i + 1, Key: k.String(), Field: "procedure_id", Rule: "ref", Value: k.ProcedureID, Message: "references an unknown procedure"})
		}
		if !cities[k.City] {
			issues = append(issues, Issue{Table: table, Row: i + 1, Key: k.String(), Field: "city", Rule: "ref", Value: k.City, Message: "references an unknown city"})
		}
	}

	for i, r := range ds.NHSWaits {
		check("nhs_waits", i, r.Key())
	}
	for i, r := range ds.PrivateCosts {
		check("private_costs", i, r.Key())
	}
	for i, r := range ds.Clinics {
		check("clinics", i, r.Key())
	}
	for i, f := range ds.FAQs {
		if !procs[f.ProcedureID] {
			issues = append(issues, Issue{Table: "faq", Row: i + 1, Field: "procedure_id", Rule: "ref", Value: f.ProcedureID, Message: "references an unknown procedure"})
		}
	}
	return issues
}

func toAny[T any](rows []T) []any {
	out := make([]any, len(rows))
	for i := range rows {
		out[i] = rows[i]
	}
	return out
}

func formatValue(v any) string {
	rv := reflect.ValueOf(v)
	if rv.Kind() == reflect.Ptr {
		if rv.IsNil() {
			return ""
		}
		v = rv.Elem().Interface()
	}
	return fmt.Sprint(v)
}

func message(e validator.FieldError) string {
	switch e.Tag() {
	case "required":
		return "is required"
	case "gt":
		return fmt.Sprintf("must be greater than %s", e.Param())
	case "gte":
		return fmt.Sprintf("must be at least %s", e.Param())
	case "lte":
		return fmt.Sprintf("must be at most %s", e.Param())
	case "gtefield":
		return fmt.Sprintf("must not be less than %s", columnName(e.Param()))
	case "ltefield":
		return fmt.Sprintf("must not be greater than %s", columnName(e.Param()))
	case "datetime":
		return "must be a date in YYYY-MM-DD format"
	case "url", "http_url":
		return "must be an http(s) URL"
	case "ukphone":
		return "must be a UK phone number"
	case "ukpostcode":
		return "must be a UK postcode"
	case "oneof":
		return fmt.Sprintf("must be one of [%s]", e.Param())
	case "len":
		return fmt.Sprintf("must be %s characters long", e.Param())
	case "lowercase":
		return "must be lower case"
	default:
		return fmt.Sprintf("failed validation '%s'", e.Tag())
	}
}

// columnName maps struct field params of cross-field rules to column names
func columnName(param string) string {
	switch param {
	case "CostMin":
		return "cost_min"
	case "AvgWaitWeeks":
		return "avg_wait_weeks"
	}
	return param
}
