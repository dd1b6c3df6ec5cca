package parser

import (
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode"

	"github.com/comparethewait/ctw/pkg/models"
)

// ErrNoMatch is returned when the page holds nothing the parser recognizes
var ErrNoMatch = errors.New("no recognizable data in page")

// Parse extracts rows of the target's kind from page markdown or text
func Parse(target models.Target, content, sourceURL string, now time.Time) (models.Rows, error) {
	if strings.TrimSpace(content) == "" {
		return models.Rows{}, ErrNoMatch
	}

	var rows models.Rows
	switch target.Kind {
	case models.KindNHSWaits:
		w, ok := NHSWait(target, content)
		if !ok {
			return rows, ErrNoMatch
		}
		w.SourceURL = sourceURL
		rows.NHSWaits = []models.NHSWait{w}
	case models.KindPrivateCosts:
		c, ok := PrivateCost(target, content)
		if !ok {
			return rows, ErrNoMatch
		}
		c.SourceURL = sourceURL
		rows.PrivateCosts = []models.PrivateCost{c}
	case models.KindClinics:
		rows.Clinics = Clinics(target, content)
		if len(rows.Clinics) == 0 {
			return rows, ErrNoMatch
		}
	case models.KindHospitalDetails:
		if target.Clinic == nil {
			return rows, fmt.Errorf("hospital details target %s has no clinic", target)
		}
		c, ok := HospitalDetails(*target.Clinic, content)
		if !ok {
			return rows, ErrNoMatch
		}
		rows.Clinics = []models.Clinic{c}
	default:
		return rows, fmt.Errorf("unsupported kind %q", target.Kind)
	}

	return rows.WithSource(models.SourceParser).WithDate(now), nil
}

// NHSWait builds a waits row from the waiting figures on the page
func NHSWait(target models.Target, content string) (models.NHSWait, bool) {
	wr, ok := WaitRange(content)
	if !ok {
		return models.NHSWait{}, false
	}
	return models.NHSWait{
		ProcedureID:  target.ProcedureID,
		City:         target.City,
		AvgWaitWeeks: wr.Avg,
		MinWaitWeeks: wr.Min,
		MaxWaitWeeks: wr.Max,
		Trust:        trustName(content),
	}, true
}

// PrivateCost builds a cost row from the price figures on the page
func PrivateCost(target models.Target, content string) (models.PrivateCost, bool) {
	prices := Prices(content)
	if len(prices) == 0 {
		return models.PrivateCost{}, false
	}
	return models.PrivateCost{
		ProcedureID:   target.ProcedureID,
		City:          target.City,
		CostMin:       prices[0],
		CostMax:       prices[len(prices)-1],
		Currency:      "GBP",
		ProviderCount: ProviderCount(content),
	}, true
}

// Clinics splits markdown on headings and keeps each section that carries
// a postcode, a phone number or a price.
func Clinics(target models.Target, content string) []models.Clinic {
	var out []models.Clinic
	seen := make(map[string]bool)

	for _, sec := range sections(content) {
		name, website := linkText(sec.title)
		if name == "" {
			continue
		}

		c := models.Clinic{
			ProcedureID: target.ProcedureID,
			City:        target.City,
			Name:        name,
			Website:     website,
		}
		fillDetails(&c, sec.body)

		if c.Postcode == "" && c.Phone == "" && c.PriceFrom == nil {
			continue
		}

		c.ID = models.ClinicID(target.City, name)
		if seen[c.ID] {
			continue
		}
		seen[c.ID] = true
		out = append(out, c)
	}
	return out
}

// HospitalDetails fills the contact fields of clinic from its own page.
// Existing values are kept when the page lacks them.
func HospitalDetails(clinic models.Clinic, content string) (models.Clinic, bool) {
	before := clinic
	fillDetails(&clinic, content)
	if clinic.Address == "" {
		clinic.Address = addressLine(content)
	}
	changed := clinic.Address != before.Address ||
		clinic.Postcode != before.Postcode ||
		clinic.Phone != before.Phone ||
		clinic.Website != before.Website
	return clinic, changed
}

func fillDetails(c *models.Clinic, body string) {
	if c.Postcode == "" {
		if pcs := Postcodes(body); len(pcs) > 0 {
			c.Postcode = pcs[0]
			if c.Address == "" {
				c.Address = addressLine(body)
			}
		}
	}
	if c.Phone == "" {
		if phones := Phones(body); len(phones) > 0 {
			c.Phone = phones[0]
		}
	}
	if c.Website == "" {
		if m := bareLink.FindString(body); m != "" {
			c.Website = m
		}
	}
	if c.PriceFrom == nil {
		if p, ok := PriceFrom(body); ok {
			c.PriceFrom = &p
		} else if ps := Prices(body); len(ps) > 0 {
			c.PriceFrom = &ps[0]
		}
	}
	if c.Rating == nil {
		if r, ok := Rating(body); ok {
			c.Rating = &r
		}
	}
}

// addressLine returns the text before the first postcode on its line
func addressLine(text string) string {
	for _, line := range strings.Split(text, "\n") {
		loc := postcode.FindStringIndex(line)
		if loc == nil {
			continue
		}
		addr := strings.TrimSpace(line[:loc[0]])
		addr = strings.TrimLeft(addr, "-*> ")
		addr = strings.TrimRight(addr, ", ")
		if i := strings.LastIndex(addr, ":"); i >= 0 {
			addr = strings.TrimSpace(addr[i+1:])
		}
		return addr
	}
	return ""
}

func trustName(text string) string {
	for _, suffix := range []string{"NHS Foundation Trust", "NHS Trust"} {
		for _, line := range strings.Split(text, "\n") {
			i := strings.Index(line, suffix)
			if i < 0 {
				continue
			}
			words := strings.Fields(cleanText(line[:i]))
			// walk back over the capitalized words naming the trust
			start := len(words)
			for start > 0 {
				w := words[start-1]
				if w != "and" && w != "of" && w != "&" && !unicode.IsUpper([]rune(w)[0]) {
					break
				}
				start--
			}
			for start < len(words) && !unicode.IsUpper([]rune(words[start])[0]) {
				start++
			}
			name := append(words[start:], suffix)
			return strings.Join(name, " ")
		}
	}
	return ""
}

type section struct {
	title string
	body  string
}

func sections(md string) []section {
	locs := heading.FindAllStringSubmatchIndex(md, -1)
	out := make([]section, 0, len(locs))
	for i, loc := range locs {
		end := len(md)
		if i+1 < len(locs) {
			end = locs[i+1][0]
		}
		out = append(out, section{
			title: md[loc[2]:loc[3]],
			body:  md[loc[1]:end],
		})
	}
	return out
}

// linkText unwraps a markdown link in a heading into its text and URL
func linkText(title string) (string, string) {
	if m := mdLink.FindStringSubmatch(title); m != nil {
		return cleanText(m[1]), m[2]
	}
	return cleanText(title), ""
}

func cleanText(s string) string {
	s = strings.Trim(s, " *_#`>-:")
	return strings.Join(strings.Fields(s), " ")
}
