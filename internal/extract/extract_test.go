package extract

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/comparethewait/ctw/pkg/models"
)

var now = time.Date(2025, 3, 9, 10, 0, 0, 0, time.UTC)

func target(kind models.DataKind) models.Target {
	return models.Target{
		ProcedureID:   "hip",
		ProcedureName: "Hip Replacement",
		City:          "leeds",
		CityName:      "Leeds",
		Kind:          kind,
	}
}

func TestNumber(t *testing.T) {
	tests := []struct {
		in   any
		want float64
		ok   bool
	}{
		{2450.0, 2450, true},
		{"£2,450", 2450, true},
		{"£12,995.50", 12995.5, true},
		{"from £11k", 11000, true},
		{"4.8/5", 4.8, true},
		{"n/a", 0, false},
		{nil, 0, false},
		{true, 0, false},
	}

	for _, tt := range tests {
		got, ok := number(tt.in)
		assert.Equal(t, tt.ok, ok, "%v", tt.in)
		assert.InDelta(t, tt.want, got, 0.001, "%v", tt.in)
	}
}

func TestWeeks(t *testing.T) {
	w, ok := weeks("18 weeks")
	require.True(t, ok)
	assert.Equal(t, 18.0, w)

	w, ok = weeks("6 months")
	require.True(t, ok)
	assert.InDelta(t, 26.1, w, 0.1)

	w, ok = weeks(21.0)
	require.True(t, ok)
	assert.Equal(t, 21.0, w)
}

func TestMap_NHSWaits(t *testing.T) {
	rows, err := Map(target(models.KindNHSWaits), map[string]any{
		"avg_wait_weeks": "18 weeks",
		"min_wait_weeks": 12.0,
		"max_wait_weeks": "about 6 months",
		"trust":          " Leeds Teaching Hospitals NHS Trust ",
	}, "https://nhs.example/hip/leeds", models.SourceNHS, now)
	require.NoError(t, err)
	require.Len(t, rows.NHSWaits, 1)

	w := rows.NHSWaits[0]
	assert.Equal(t, 18.0, w.AvgWaitWeeks)
	require.NotNil(t, w.MinWaitWeeks)
	assert.Equal(t, 12.0, *w.MinWaitWeeks)
	require.NotNil(t, w.MaxWaitWeeks)
	assert.InDelta(t, 26.1, *w.MaxWaitWeeks, 0.1)
	assert.Equal(t, "Leeds Teaching Hospitals NHS Trust", w.Trust)
	assert.Equal(t, models.SourceNHS, w.Source)
	assert.Equal(t, "2025-03-09", w.LastUpdated)
	assert.Equal(t, "https://nhs.example/hip/leeds", w.SourceURL)
}

func TestMap_NHSWaitsAverageFromRange(t *testing.T) {
	rows, err := Map(target(models.KindNHSWaits), map[string]any{
		"min_wait_weeks": 10.0,
		"max_wait_weeks": 25.0,
	}, "", models.SourceNHS, now)
	require.NoError(t, err)
	require.Len(t, rows.NHSWaits, 1)
	assert.Equal(t, 17.5, rows.NHSWaits[0].AvgWaitWeeks)
}

func TestMap_PrivateCosts(t *testing.T) {
	tests := []struct {
		name     string
		data     map[string]any
		min, max float64
		empty    bool
	}{
		{"strings", map[string]any{"cost_min": "£11,500", "cost_max": "£14,200", "provider_count": "6"}, 11500, 14200, false},
		{"swapped", map[string]any{"cost_min": 14200.0, "cost_max": 11500.0}, 11500, 14200, false},
		{"single price", map[string]any{"cost_max": "£12,000"}, 12000, 12000, false},
		{"no prices", map[string]any{"currency": "GBP"}, 0, 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rows, err := Map(target(models.KindPrivateCosts), tt.data, "https://tc.example", models.SourceTreatmentConnect, now)
			require.NoError(t, err)
			if tt.empty {
				assert.True(t, rows.Empty())
				return
			}
			require.Len(t, rows.PrivateCosts, 1)
			c := rows.PrivateCosts[0]
			assert.Equal(t, tt.min, c.CostMin)
			assert.Equal(t, tt.max, c.CostMax)
			assert.Equal(t, "GBP", c.Currency)
			assert.Equal(t, models.SourceTreatmentConnect, c.Source)
		})
	}
}

func TestMap_Clinics(t *testing.T) {
	rows, err := Map(target(models.KindClinics), map[string]any{
		"clinics": []any{
			map[string]any{"name": "Spire Leeds Hospital", "postcode": "ls8 1nt", "phone": "+44 113 269 3939", "price_from": "£12,995", "rating": "4.8"},
			map[string]any{"name": "Spire Leeds Hospital", "postcode": "LS8 1NT"},
			map[string]any{"name": ""},
			"not an object",
			map[string]any{"name": "Nuffield Health Leeds", "website": "https://nuffield.example/leeds"},
		},
	}, "", models.SourcePHIN, now)
	require.NoError(t, err)
	require.Len(t, rows.Clinics, 2)

	spire := rows.Clinics[0]
	assert.Equal(t, "leeds-spire-leeds-hospital", spire.ID)
	assert.Equal(t, "LS8 1NT", spire.Postcode)
	assert.Equal(t, "0113 269 3939", spire.Phone)
	require.NotNil(t, spire.PriceFrom)
	assert.Equal(t, 12995.0, *spire.PriceFrom)
	require.NotNil(t, spire.Rating)
	assert.Equal(t, 4.8, *spire.Rating)
	assert.Equal(t, models.SourcePHIN, spire.Source)

	assert.Nil(t, rows.Clinics[1].PriceFrom)
}

func TestMap_HospitalDetails(t *testing.T) {
	tgt := target(models.KindHospitalDetails)
	tgt.Clinic = &models.Clinic{
		ID: "leeds-spire", ProcedureID: "hip", City: "leeds", Name: "Spire",
		Phone: "0113 269 3939", Source: models.SourceTreatmentConnect, LastUpdated: "2025-01-01",
	}

	rows, err := Map(tgt, map[string]any{
		"address":  "Jackson Avenue, Roundhay",
		"postcode": "ls8 1nt",
		"phone":    "call us",
	}, "https://spire.example", models.SourceParser, now)
	require.NoError(t, err)
	require.Len(t, rows.Clinics, 1)

	c := rows.Clinics[0]
	assert.Equal(t, "Jackson Avenue, Roundhay", c.Address)
	assert.Equal(t, "LS8 1NT", c.Postcode)
	assert.Equal(t, "0113 269 3939", c.Phone)
	assert.Equal(t, models.SourceTreatmentConnect, c.Source)
	assert.Equal(t, "2025-03-09", c.LastUpdated)

	rows, err = Map(tgt, map[string]any{"phone": "0113 269 3939"}, "", models.SourceParser, now)
	require.NoError(t, err)
	assert.True(t, rows.Empty())

	tgt.Clinic = nil
	_, err = Map(tgt, map[string]any{}, "", models.SourceParser, now)
	assert.Error(t, err)
}

func TestPrompt(t *testing.T) {
	p := Prompt(target(models.KindPrivateCosts))
	assert.Contains(t, p, "hip replacement at private hospitals in Leeds")
	assert.NotContains(t, p, "{")

	tgt := target(models.KindHospitalDetails)
	tgt.Clinic = &models.Clinic{Name: "Spire Leeds Hospital"}
	assert.Contains(t, Prompt(tgt), "Spire Leeds Hospital")
}

func TestSchema(t *testing.T) {
	for _, kind := range append(models.TargetKinds, models.KindHospitalDetails) {
		s := Schema(kind)
		require.NotNil(t, s, kind)
		assert.Equal(t, "object", s["type"])
	}
}

type stubClient struct {
	data      map[string]any
	err       error
	gotURL    string
	gotPrompt string
}

func (s *stubClient) Available() bool { return true }

func (s *stubClient) ExtractJSON(ctx context.Context, url string, schema map[string]any, prompt string) (map[string]any, error) {
	s.gotURL, s.gotPrompt = url, prompt
	return s.data, s.err
}

func TestExtractor_Extract(t *testing.T) {
	client := &stubClient{data: map[string]any{"cost_min": 11500.0, "cost_max": 14200.0}}
	e := New(client)
	e.now = func() time.Time { return now }
	assert.True(t, e.Available())

	rows, err := e.Extract(context.Background(), target(models.KindPrivateCosts), "https://phin.example/hip", models.SourcePHIN)
	require.NoError(t, err)
	require.Len(t, rows.PrivateCosts, 1)
	assert.Equal(t, "https://phin.example/hip", client.gotURL)
	assert.Contains(t, client.gotPrompt, "Leeds")
	assert.Equal(t, models.SourcePHIN, rows.PrivateCosts[0].Source)

	client.err = errors.New("HTTP 429")
	_, err = e.Extract(context.Background(), target(models.KindPrivateCosts), "https://phin.example/hip", models.SourcePHIN)
	assert.ErrorContains(t, err, "429")

	var nilExtractor *Extractor
	assert.False(t, nilExtractor.Available())
}
