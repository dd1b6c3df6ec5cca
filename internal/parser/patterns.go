// Package parser extracts waits, prices and clinic details from page text
// with regular expressions. It is the last live stage of the waterfall,
// used when structured extraction returns nothing.
package parser

import (
	"regexp"
	"sort"
	"strconv"
	"strings"
)

// WeeksPerMonth converts month figures to weeks
const WeeksPerMonth = 4.345

// Sanity bands for values picked out of free text
const (
	MaxWeeks = 100.0
	MinPrice = 300.0
	MaxPrice = 100000.0
)

var (
	number = `(\d+(?:\.\d+)?)`

	rangeUnit  = regexp.MustCompile(`(?i)(?:between\s+)?` + number + `\s*(?:-|–|to|and)\s*` + number + `\s*(weeks?|wks?|months?)\b`)
	singleUnit = regexp.MustCompile(`(?i)` + number + `\s*(weeks?|wks?|months?)\b`)
	avgPhrase  = regexp.MustCompile(`(?i)(?:average|median|mean|typical)[^.\n]{0,40}?` + number + `\s*(weeks?|wks?|months?)\b`)

	price      = `£\s?(\d{1,3}(?:,\d{3})+|\d+)(?:\.\d{2})?`
	priceRange = regexp.MustCompile(price + `\s*(?:-|–|to)\s*` + price)
	priceOne   = regexp.MustCompile(price)
	priceFrom  = regexp.MustCompile(`(?i)(?:from|starting at|prices? from)\s*` + price)

	providers = regexp.MustCompile(`(?i)(\d+)\s+(?:private\s+)?(?:providers|hospitals|clinics)`)

	phone    = regexp.MustCompile(`(?:\+44\s?\(?0?\)?\s?|\(?0)\d{2,4}\)?[\s\-.]?\d{3,4}[\s\-.]?\d{3,4}`)
	postcode = regexp.MustCompile(`\b([A-Z]{1,2}[0-9][A-Z0-9]?)\s?([0-9][A-Z]{2})\b`)
	rating   = regexp.MustCompile(`(?i)(\d(?:\.\d)?)\s*(?:/\s*5|out of 5|stars?)`)

	heading  = regexp.MustCompile(`(?m)^#{2,4}\s+(.+?)\s*#*\s*$`)
	mdLink   = regexp.MustCompile(`\[([^\]]+)\]\((https?://[^)\s]+)\)`)
	bareLink = regexp.MustCompile(`https?://[^\s)\]>"]+`)
)

// WeekRange is a set of waiting time figures found in text
type WeekRange struct {
	Avg float64
	Min *float64
	Max *float64
}

// Weeks finds waiting time figures in text, in weeks. Month figures are
// converted. Values outside [0, MaxWeeks] are dropped.
func Weeks(text string) []float64 {
	var out []float64
	covered := make([][2]int, 0)

	for _, m := range rangeUnit.FindAllStringSubmatchIndex(text, -1) {
		unit := text[m[6]:m[7]]
		lo := toWeeks(text[m[2]:m[3]], unit)
		hi := toWeeks(text[m[4]:m[5]], unit)
		out = appendWeeks(out, lo, hi)
		covered = append(covered, [2]int{m[0], m[1]})
	}

	for _, m := range singleUnit.FindAllStringSubmatchIndex(text, -1) {
		if within(covered, m[0]) {
			continue
		}
		out = appendWeeks(out, toWeeks(text[m[2]:m[3]], text[m[4]:m[5]]))
	}
	return out
}

// WaitRange summarizes waiting figures: an explicit average/median phrase
// wins, otherwise the mean of all figures. Min and max are set when more
// than one figure is present.
func WaitRange(text string) (WeekRange, bool) {
	values := Weeks(text)
	if len(values) == 0 {
		return WeekRange{}, false
	}

	var wr WeekRange
	if m := avgPhrase.FindStringSubmatch(text); m != nil {
		if w := toWeeks(m[1], m[2]); w >= 0 && w <= MaxWeeks {
			wr.Avg = w
		}
	}
	if wr.Avg == 0 {
		sum := 0.0
		for _, v := range values {
			sum += v
		}
		wr.Avg = round1(sum / float64(len(values)))
	}

	if len(values) > 1 {
		lo, hi := values[0], values[0]
		for _, v := range values[1:] {
			lo = min(lo, v)
			hi = max(hi, v)
		}
		lo = min(lo, wr.Avg)
		hi = max(hi, wr.Avg)
		wr.Min, wr.Max = &lo, &hi
	}
	return wr, true
}

// Prices finds £ amounts in text within [MinPrice, MaxPrice], sorted
func Prices(text string) []float64 {
	var out []float64
	covered := make([][2]int, 0)

	for _, m := range priceRange.FindAllStringSubmatchIndex(text, -1) {
		out = appendPrices(out, parsePrice(text[m[2]:m[3]]), parsePrice(text[m[4]:m[5]]))
		covered = append(covered, [2]int{m[0], m[1]})
	}
	for _, m := range priceOne.FindAllStringSubmatchIndex(text, -1) {
		if within(covered, m[0]) {
			continue
		}
		out = appendPrices(out, parsePrice(text[m[2]:m[3]]))
	}

	sort.Float64s(out)
	return out
}

// PriceFrom returns the first "from £X" figure in text
func PriceFrom(text string) (float64, bool) {
	m := priceFrom.FindStringSubmatch(text)
	if m == nil {
		return 0, false
	}
	p := parsePrice(m[1])
	if p < MinPrice || p > MaxPrice {
		return 0, false
	}
	return p, true
}

// ProviderCount returns a "N providers/hospitals/clinics" figure
func ProviderCount(text string) int {
	m := providers.FindStringSubmatch(text)
	if m == nil {
		return 0
	}
	n, _ := strconv.Atoi(m[1])
	return n
}

// Phones returns the UK phone numbers in text, normalized
func Phones(text string) []string {
	var out []string
	seen := make(map[string]bool)
	for _, raw := range phone.FindAllString(text, -1) {
		p := NormalizePhone(raw)
		if p == "" || seen[p] {
			continue
		}
		seen[p] = true
		out = append(out, p)
	}
	return out
}

// NormalizePhone formats a UK number as "0XXXX XXXXXX" style groups, or
// returns "" when raw does not hold 10 or 11 digits in national form.
func NormalizePhone(raw string) string {
	var digits strings.Builder
	for _, r := range raw {
		if r >= '0' && r <= '9' {
			digits.WriteRune(r)
		}
	}
	d := digits.String()
	if strings.HasPrefix(strings.TrimSpace(raw), "+44") {
		d = strings.TrimPrefix(d, "44")
		d = "0" + strings.TrimPrefix(d, "0")
	}
	if !strings.HasPrefix(d, "0") || len(d) < 10 || len(d) > 11 {
		return ""
	}

	switch {
	case len(d) == 11 && strings.HasPrefix(d, "02"):
		return d[:3] + " " + d[3:7] + " " + d[7:]
	case len(d) == 11 && (strings.HasPrefix(d, "011") || strings.HasPrefix(d, "01") && d[3] == '1'):
		return d[:4] + " " + d[4:7] + " " + d[7:]
	case len(d) == 11:
		return d[:5] + " " + d[5:]
	default:
		return d[:4] + " " + d[4:]
	}
}

// Postcodes returns the UK postcodes in text as "OUT IN"
func Postcodes(text string) []string {
	var out []string
	for _, m := range postcode.FindAllStringSubmatch(text, -1) {
		out = append(out, m[1]+" "+m[2])
	}
	return out
}

// Rating returns a 0-5 rating figure from text
func Rating(text string) (float64, bool) {
	m := rating.FindStringSubmatch(text)
	if m == nil {
		return 0, false
	}
	r, err := strconv.ParseFloat(m[1], 64)
	if err != nil || r < 0 || r > 5 {
		return 0, false
	}
	return r, true
}

func toWeeks(num, unit string) float64 {
	n, err := strconv.ParseFloat(num, 64)
	if err != nil {
		return -1
	}
	if strings.HasPrefix(strings.ToLower(unit), "month") {
		return round1(n * WeeksPerMonth)
	}
	return n
}

func appendWeeks(out []float64, vs ...float64) []float64 {
	for _, v := range vs {
		if v >= 0 && v <= MaxWeeks {
			out = append(out, v)
		}
	}
	return out
}

func appendPrices(out []float64, vs ...float64) []float64 {
	for _, v := range vs {
		if v >= MinPrice && v <= MaxPrice {
			out = append(out, v)
		}
	}
	return out
}

func parsePrice(s string) float64 {
	n, err := strconv.ParseFloat(strings.ReplaceAll(s, ",", ""), 64)
	if err != nil {
		return -1
	}
	return n
}

func within(spans [][2]int, pos int) bool {
	for _, s := range spans {
		if pos >= s[0] && pos < s[1] {
			return true
		}
	}
	return false
}

func round1(f float64) float64 {
	return float64(int64(f*10+0.5)) / 10
}
