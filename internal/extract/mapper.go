package extract

import (
	"encoding/json"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/comparethewait/ctw/internal/parser"
	"github.com/comparethewait/ctw/pkg/models"
)

var numberRe = regexp.MustCompile(`\d[\d,]*(?:\.\d+)?`)

// number reads a numeric JSON value, accepting strings such as "£2,450"
func number(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, !math.IsNaN(n)
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	case string:
		m := numberRe.FindString(n)
		if m == "" {
			return 0, false
		}
		f, err := strconv.ParseFloat(strings.ReplaceAll(m, ",", ""), 64)
		if err != nil {
			return 0, false
		}
		if strings.HasSuffix(strings.ToLower(strings.TrimSpace(n)), "k") {
			f *= 1000
		}
		return f, true
	}
	return 0, false
}

// weeks reads a waiting time, converting "3 months" style strings to weeks
func weeks(v any) (float64, bool) {
	if s, ok := v.(string); ok {
		if ws := parser.Weeks(s); len(ws) > 0 {
			return ws[0], true
		}
	}
	return number(v)
}

func text(v any) string {
	switch s := v.(type) {
	case string:
		return strings.TrimSpace(s)
	case float64:
		return strconv.FormatFloat(s, 'f', -1, 64)
	}
	return ""
}

func optional(f float64, ok bool) *float64 {
	if !ok {
		return nil
	}
	return &f
}

// Map converts the JSON returned for target into rows of its kind, stamped
// with source and today's date. A result without any usable field maps to
// empty rows.
func Map(target models.Target, data map[string]any, sourceURL string, source models.Source, now time.Time) (models.Rows, error) {
	var rows models.Rows

	switch target.Kind {
	case models.KindNHSWaits:
		if w, ok := mapWait(target, data); ok {
			w.SourceURL = sourceURL
			rows.NHSWaits = []models.NHSWait{w}
		}

	case models.KindPrivateCosts:
		if c, ok := mapCost(target, data); ok {
			c.SourceURL = sourceURL
			rows.PrivateCosts = []models.PrivateCost{c}
		}

	case models.KindClinics:
		list, _ := data["clinics"].([]any)
		seen := make(map[string]bool)
		for _, item := range list {
			obj, ok := item.(map[string]any)
			if !ok {
				continue
			}
			c, ok := mapClinic(target, obj)
			if !ok || seen[c.ID] {
				continue
			}
			seen[c.ID] = true
			rows.Clinics = append(rows.Clinics, c)
		}

	case models.KindHospitalDetails:
		if target.Clinic == nil {
			return rows, fmt.Errorf("hospital details target %s has no clinic", target)
		}
		if c, ok := mapDetails(*target.Clinic, data); ok {
			// enrichment keeps the clinic's own source
			source = c.Source
			rows.Clinics = []models.Clinic{c}
		}

	default:
		return rows, fmt.Errorf("unsupported kind %q", target.Kind)
	}

	return rows.WithSource(source).WithDate(now), nil
}

func mapWait(target models.Target, data map[string]any) (models.NHSWait, bool) {
	avg, hasAvg := weeks(data["avg_wait_weeks"])
	lo, hasMin := weeks(data["min_wait_weeks"])
	hi, hasMax := weeks(data["max_wait_weeks"])

	if !hasAvg {
		switch {
		case hasMin && hasMax:
			avg, hasAvg = math.Round((lo+hi)/2*10)/10, true
		case hasMax:
			avg, hasAvg = hi, true
		}
	}
	if !hasAvg {
		return models.NHSWait{}, false
	}

	return models.NHSWait{
		ProcedureID:  target.ProcedureID,
		City:         target.City,
		AvgWaitWeeks: avg,
		MinWaitWeeks: optional(lo, hasMin),
		MaxWaitWeeks: optional(hi, hasMax),
		Trust:        text(data["trust"]),
	}, true
}

func mapCost(target models.Target, data map[string]any) (models.PrivateCost, bool) {
	lo, hasMin := number(data["cost_min"])
	hi, hasMax := number(data["cost_max"])
	switch {
	case !hasMin && !hasMax:
		return models.PrivateCost{}, false
	case !hasMin:
		lo = hi
	case !hasMax:
		hi = lo
	}
	if lo > hi {
		lo, hi = hi, lo
	}

	currency := strings.ToUpper(text(data["currency"]))
	if currency == "" || currency == "£" {
		currency = "GBP"
	}
	count, _ := number(data["provider_count"])

	return models.PrivateCost{
		ProcedureID:   target.ProcedureID,
		City:          target.City,
		CostMin:       lo,
		CostMax:       hi,
		Currency:      currency,
		ProviderCount: int(count),
	}, true
}

func mapClinic(target models.Target, obj map[string]any) (models.Clinic, bool) {
	name := text(obj["name"])
	if name == "" {
		return models.Clinic{}, false
	}
	c := models.Clinic{
		ID:          models.ClinicID(target.City, name),
		ProcedureID: target.ProcedureID,
		City:        target.City,
		Name:        name,
		Address:     text(obj["address"]),
		Postcode:    strings.ToUpper(text(obj["postcode"])),
		Website:     text(obj["website"]),
		PriceFrom:   optional(number(obj["price_from"])),
		Rating:      optional(number(obj["rating"])),
	}
	if p := text(obj["phone"]); p != "" {
		c.Phone = parser.NormalizePhone(p)
	}
	return c, true
}

func mapDetails(clinic models.Clinic, data map[string]any) (models.Clinic, bool) {
	before := clinic
	if s := text(data["address"]); s != "" {
		clinic.Address = s
	}
	if s := text(data["postcode"]); s != "" {
		clinic.Postcode = strings.ToUpper(s)
	}
	if p := parser.NormalizePhone(text(data["phone"])); p != "" {
		clinic.Phone = p
	}
	if s := text(data["website"]); s != "" {
		clinic.Website = s
	}
	return clinic, clinic != before
}
