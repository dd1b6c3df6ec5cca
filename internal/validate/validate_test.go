package validate

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/comparethewait/ctw/internal/store"
	"github.com/comparethewait/ctw/pkg/models"
)

func ptr(f float64) *float64 { return &f }

func validCost() models.PrivateCost {
	return models.PrivateCost{
		ProcedureID: "hip", City: "leeds", CostMin: 11000, CostMax: 14500,
		Currency: "GBP", ProviderCount: 4, Source: models.SourcePHIN,
		SourceURL: "https://www.phin.org.uk/", LastUpdated: "2025-03-01",
	}
}

func validWait() models.NHSWait {
	return models.NHSWait{
		ProcedureID: "hip", City: "leeds", AvgWaitWeeks: 30,
		MinWaitWeeks: ptr(12), MaxWaitWeeks: ptr(52),
		Source: models.SourceNHS, LastUpdated: "2025-03-01",
	}
}

func validClinic() models.Clinic {
	return models.Clinic{
		ID: "leeds-spire-leeds", ProcedureID: "hip", City: "leeds", Name: "Spire Leeds",
		Postcode: "LS17 6UP", Phone: "0113 269 3939", Website: "https://www.spirehealthcare.com/",
		PriceFrom: ptr(12000), Rating: ptr(4.7), Source: models.SourceTreatmentConnect, LastUpdated: "2025-03-01",
	}
}

func fields(issues []Issue) []string {
	out := make([]string, 0, len(issues))
	for _, is := range issues {
		out = append(out, is.Field+":"+is.Rule)
	}
	return out
}

func TestRow_Valid(t *testing.T) {
	v := New()
	assert.Empty(t, v.Row(validCost()))
	assert.Empty(t, v.Row(validWait()))
	assert.Empty(t, v.Row(validClinic()))
}

func TestRow_PrivateCost(t *testing.T) {
	v := New()

	tests := []struct {
		name   string
		mutate func(*models.PrivateCost)
		want   string
	}{
		{"min above max", func(c *models.PrivateCost) { c.CostMin = 20000 }, "cost_max:gtefield"},
		{"zero min", func(c *models.PrivateCost) { c.CostMin = 0 }, "cost_min:gt"},
		{"absurd max", func(c *models.PrivateCost) { c.CostMax = 250000 }, "cost_max:lte"},
		{"bad date", func(c *models.PrivateCost) { c.LastUpdated = "01/03/2025" }, "last_updated:datetime"},
		{"missing date", func(c *models.PrivateCost) { c.LastUpdated = "" }, "last_updated:required"},
		{"bad url", func(c *models.PrivateCost) { c.SourceURL = "ftp://phin.org.uk" }, "source_url:http_url"},
		{"bad currency", func(c *models.PrivateCost) { c.Currency = "POUNDS" }, "currency:len"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			row := validCost()
			tt.mutate(&row)
			assert.Contains(t, fields(v.Row(row)), tt.want)
		})
	}
}

func TestRow_NHSWait(t *testing.T) {
	v := New()

	tests := []struct {
		name   string
		mutate func(*models.NHSWait)
		want   string
	}{
		{"negative", func(w *models.NHSWait) { w.AvgWaitWeeks = -1 }, "avg_wait_weeks:gte"},
		{"over a hundred", func(w *models.NHSWait) { w.AvgWaitWeeks = 101; w.MaxWaitWeeks = nil }, "avg_wait_weeks:lte"},
		{"min above avg", func(w *models.NHSWait) { w.MinWaitWeeks = ptr(40) }, "min_wait_weeks:ltefield"},
		{"max below avg", func(w *models.NHSWait) { w.MaxWaitWeeks = ptr(20) }, "max_wait_weeks:gtefield"},
		{"missing procedure", func(w *models.NHSWait) { w.ProcedureID = "" }, "procedure_id:required"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			row := validWait()
			tt.mutate(&row)
			assert.Contains(t, fields(v.Row(row)), tt.want)
		})
	}

	// bounds are optional
	w := validWait()
	w.MinWaitWeeks, w.MaxWaitWeeks = nil, nil
	assert.Empty(t, v.Row(w))
}

func TestRow_ClinicFormats(t *testing.T) {
	v := New()

	c := validClinic()
	c.Phone = "555-1234"
	c.Postcode = "90210"
	c.Website = "www.example.com"
	c.Rating = ptr(7)

	got := fields(v.Row(c))
	assert.Contains(t, got, "phone:ukphone")
	assert.Contains(t, got, "postcode:ukpostcode")
	assert.Contains(t, got, "website:http_url")
	assert.Contains(t, got, "rating:lte")
}

func TestIsUKPhone(t *testing.T) {
	tests := []struct {
		in   string
		want bool
	}{
		{"0113 269 3939", true},
		{"+44 113 269 3939", true},
		{"020 7123 4567", true},
		{"(0117) 980-4000", true},
		{"0800 123 456", true},
		{"+1 212 555 0100", false},
		{"12345", false},
		{"0113 269 3939 12", false},
		{"", false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, IsUKPhone(tt.in), tt.in)
	}
}

func TestFilter(t *testing.T) {
	v := New()
	bad := validCost()
	bad.City = "bristol"
	bad.CostMax = 100

	rows, issues := Filter(v, "private_costs", []models.PrivateCost{validCost(), bad})
	require.Len(t, rows, 1)
	assert.Equal(t, "leeds", rows[0].City)
	require.NotEmpty(t, issues)
	assert.Equal(t, "private_costs", issues[0].Table)
	assert.Equal(t, 2, issues[0].Row)
	assert.Equal(t, "hip/bristol", issues[0].Key)
}

func TestDataset_References(t *testing.T) {
	v := New()
	cost := validCost()
	cost.City = "york"

	ds := &store.Dataset{
		Procedures:   []models.Procedure{{ID: "hip", Name: "Hip Replacement"}},
		Cities:       []models.City{{Slug: "leeds", Region: "North East and Yorkshire"}},
		PrivateCosts: []models.PrivateCost{cost},
		FAQs:         []models.FAQ{{ProcedureID: "knee", Question: "q", Answer: "a"}},
	}

	rep := v.Dataset(ds)
	assert.False(t, rep.OK())
	assert.Equal(t, 4, rep.Rows)
	got := fields(rep.Issues)
	assert.Contains(t, got, "city:ref")
	assert.Contains(t, got, "procedure_id:ref")
}

func TestDataset_SampleData(t *testing.T) {
	ds, err := store.LoadDir(filepath.Join("..", "..", "data"))
	require.NoError(t, err)

	rep := New().Dataset(ds)
	assert.Empty(t, rep.Issues)
	assert.True(t, rep.OK())
	assert.Greater(t, rep.Rows, 40)
}
