package models

import (
	"fmt"
	"strings"
	"time"
	"unicode"
)

// DateLayout is the layout of every last_updated column
const DateLayout = "2006-01-02"

// DataKind identifies one extraction schema/prompt pair
type DataKind string

const (
	KindNHSWaits        DataKind = "nhs_waits"
	KindPrivateCosts    DataKind = "private_costs"
	KindClinics         DataKind = "clinics"
	KindHospitalDetails DataKind = "hospital_details"
)

// TargetKinds are the kinds expanded from the catalog, in run order.
// Hospital details are derived from clinic rows at run time.
var TargetKinds = []DataKind{KindNHSWaits, KindPrivateCosts, KindClinics}

// ParseKind converts a user supplied string into a DataKind
func ParseKind(s string) (DataKind, error) {
	switch DataKind(s) {
	case KindNHSWaits, KindPrivateCosts, KindClinics, KindHospitalDetails:
		return DataKind(s), nil
	}
	return "", fmt.Errorf("unknown data kind %q (want nhs_waits, private_costs, clinics or hospital_details)", s)
}

// Source names the waterfall stage that produced a row
type Source string

const (
	SourceTreatmentConnect Source = "treatmentconnect"
	SourcePHIN             Source = "phin"
	SourceNHS              Source = "nhs"
	SourceParser           Source = "parser"
	SourceCSVFallback      Source = "csv_fallback"
)

// Procedure is a row of procedures.csv
type Procedure struct {
	ID          string `csv:"procedure_id" json:"procedure_id" validate:"required,lowercase"`
	Name        string `csv:"name" json:"name" validate:"required"`
	Specialty   string `csv:"specialty" json:"specialty"`
	Description string `csv:"description" json:"description"`
	NHSCode     string `csv:"nhs_code" json:"nhs_code"`
}

// City is a row of cities.csv
type City struct {
	Slug          string `csv:"city" json:"city" validate:"required,lowercase"`
	Region        string `csv:"region" json:"region" validate:"required"`
	NHSRegionCode string `csv:"nhs_region_code" json:"nhs_region_code"`
}

// NHSWait is a row of nhs_waits.csv
type NHSWait struct {
	ProcedureID  string   `csv:"procedure_id" json:"procedure_id" validate:"required"`
	City         string   `csv:"city" json:"city" validate:"required"`
	AvgWaitWeeks float64  `csv:"avg_wait_weeks" json:"avg_wait_weeks" validate:"gte=0,lte=100"`
	MinWaitWeeks *float64 `csv:"min_wait_weeks" json:"min_wait_weeks,omitempty" validate:"omitempty,gte=0,lte=100"`
	MaxWaitWeeks *float64 `csv:"max_wait_weeks" json:"max_wait_weeks,omitempty" validate:"omitempty,gte=0,lte=100"`
	Trust        string   `csv:"trust" json:"trust,omitempty"`
	Source       Source   `csv:"source" json:"source" validate:"required"`
	SourceURL    string   `csv:"source_url" json:"source_url,omitempty" validate:"omitempty,http_url"`
	LastUpdated  string   `csv:"last_updated" json:"last_updated" validate:"required,datetime=2006-01-02"`
}

// Key returns the (procedure_id, city) key of the row
func (w NHSWait) Key() Key { return Key{ProcedureID: w.ProcedureID, City: w.City} }

// PrivateCost is a row of private_costs.csv
type PrivateCost struct {
	ProcedureID   string  `csv:"procedure_id" json:"procedure_id" validate:"required"`
	City          string  `csv:"city" json:"city" validate:"required"`
	CostMin       float64 `csv:"cost_min" json:"cost_min" validate:"gt=0,lte=100000"`
	CostMax       float64 `csv:"cost_max" json:"cost_max" validate:"gt=0,lte=100000,gtefield=CostMin"`
	Currency      string  `csv:"currency" json:"currency" validate:"required,len=3"`
	ProviderCount int     `csv:"provider_count" json:"provider_count" validate:"gte=0"`
	Source        Source  `csv:"source" json:"source" validate:"required"`
	SourceURL     string  `csv:"source_url" json:"source_url,omitempty" validate:"omitempty,http_url"`
	LastUpdated   string  `csv:"last_updated" json:"last_updated" validate:"required,datetime=2006-01-02"`
}

// Key returns the (procedure_id, city) key of the row
func (c PrivateCost) Key() Key { return Key{ProcedureID: c.ProcedureID, City: c.City} }

// Clinic is a row of clinics.csv
type Clinic struct {
	ID          string   `csv:"clinic_id" json:"clinic_id" validate:"required"`
	ProcedureID string   `csv:"procedure_id" json:"procedure_id" validate:"required"`
	City        string   `csv:"city" json:"city" validate:"required"`
	Name        string   `csv:"name" json:"name" validate:"required"`
	Address     string   `csv:"address" json:"address,omitempty"`
	Postcode    string   `csv:"postcode" json:"postcode,omitempty" validate:"omitempty,ukpostcode"`
	Phone       string   `csv:"phone" json:"phone,omitempty" validate:"omitempty,ukphone"`
	Website     string   `csv:"website" json:"website,omitempty" validate:"omitempty,http_url"`
	PriceFrom   *float64 `csv:"price_from" json:"price_from,omitempty" validate:"omitempty,gt=0,lte=100000"`
	Rating      *float64 `csv:"rating" json:"rating,omitempty" validate:"omitempty,gte=0,lte=5"`
	Source      Source   `csv:"source" json:"source" validate:"required"`
	LastUpdated string   `csv:"last_updated" json:"last_updated" validate:"required,datetime=2006-01-02"`
}

// Key returns the (procedure_id, city) key of the row
func (c Clinic) Key() Key { return Key{ProcedureID: c.ProcedureID, City: c.City} }

// FAQ is a row of faq.csv
type FAQ struct {
	ProcedureID string `csv:"procedure_id" json:"procedure_id" validate:"required"`
	Question    string `csv:"question" json:"question" validate:"required"`
	Answer      string `csv:"answer" json:"answer" validate:"required"`
}

// Key identifies the rows produced for one (procedure, city) pair
type Key struct {
	ProcedureID string `json:"procedure_id"`
	City        string `json:"city"`
}

func (k Key) String() string {
	return k.ProcedureID + "/" + k.City
}

// Rows carries the rows produced for one target. Only the slice matching
// the target kind is populated.
type Rows struct {
	NHSWaits     []NHSWait     `json:"nhs_waits,omitempty"`
	PrivateCosts []PrivateCost `json:"private_costs,omitempty"`
	Clinics      []Clinic      `json:"clinics,omitempty"`
}

// Len returns the total number of rows
func (r Rows) Len() int {
	return len(r.NHSWaits) + len(r.PrivateCosts) + len(r.Clinics)
}

// Empty reports whether no rows were produced
func (r Rows) Empty() bool { return r.Len() == 0 }

// WithSource stamps every row with the given source
func (r Rows) WithSource(src Source) Rows {
	for i := range r.NHSWaits {
		r.NHSWaits[i].Source = src
	}
	for i := range r.PrivateCosts {
		r.PrivateCosts[i].Source = src
	}
	for i := range r.Clinics {
		r.Clinics[i].Source = src
	}
	return r
}

// WithDate stamps every row with the given last_updated date
func (r Rows) WithDate(t time.Time) Rows {
	d := t.Format(DateLayout)
	for i := range r.NHSWaits {
		r.NHSWaits[i].LastUpdated = d
	}
	for i := range r.PrivateCosts {
		r.PrivateCosts[i].LastUpdated = d
	}
	for i := range r.Clinics {
		r.Clinics[i].LastUpdated = d
	}
	return r
}

// Target is a single (procedure, city, kind) unit of scraping work
type Target struct {
	ProcedureID   string   `json:"procedure_id"`
	ProcedureName string   `json:"procedure_name"`
	City          string   `json:"city"`
	CityName      string   `json:"city_name"`
	Kind          DataKind `json:"kind"`
	PrimaryURL    string   `json:"primary_url"`
	SecondaryURL  string   `json:"secondary_url,omitempty"`
	RenderJS      bool     `json:"render_js,omitempty"`

	// Clinic is set for hospital_details targets only
	Clinic *Clinic `json:"clinic,omitempty"`
}

// Key returns the (procedure_id, city) key of the target
func (t Target) Key() Key { return Key{ProcedureID: t.ProcedureID, City: t.City} }

func (t Target) String() string {
	return fmt.Sprintf("%s/%s/%s", t.ProcedureID, t.City, t.Kind)
}

// PageData is the fetched content of a page, used by the regex parser stage
type PageData struct {
	URL          string            `json:"url"`
	StatusCode   int               `json:"status_code"`
	Title        string            `json:"title,omitempty"`
	Content      string            `json:"content,omitempty"`
	Markdown     string            `json:"markdown,omitempty"`
	HTML         string            `json:"html,omitempty"`
	Metadata     map[string]string `json:"metadata,omitempty"`
	Links        []string          `json:"links,omitempty"`
	Scripts      []string          `json:"scripts,omitempty"`
	FetchedAt    time.Time         `json:"fetched_at"`
	ResponseTime int64             `json:"response_time_ms"`
}

// FetchOptions contains options for fetching a page
type FetchOptions struct {
	URL      string
	RenderJS bool
	Timeout  time.Duration
}

// ClinicID builds the stable clinic_id slug "<city>-<slugified name>"
func ClinicID(city, name string) string {
	return city + "-" + Slugify(name)
}

// Slugify lower-cases s and joins its alphanumeric runs with dashes
func Slugify(s string) string {
	var b strings.Builder
	dash := false
	for _, r := range strings.ToLower(s) {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			if dash && b.Len() > 0 {
				b.WriteByte('-')
			}
			dash = false
			b.WriteRune(r)
		default:
			dash = true
		}
	}
	return b.String()
}
