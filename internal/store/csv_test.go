package store

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/comparethewait/ctw/pkg/models"
)

func ptr(f float64) *float64 { return &f }

func TestHeader(t *testing.T) {
	assert.Equal(t,
		[]string{"procedure_id", "city", "cost_min", "cost_max", "currency", "provider_count", "source", "source_url", "last_updated"},
		Header[models.PrivateCost]())
}

func TestRoundTrip_NHSWaits(t *testing.T) {
	path := filepath.Join(t.TempDir(), FileNHSWaits)
	rows := []models.NHSWait{
		{
			ProcedureID:  "cataract",
			City:         "london",
			AvgWaitWeeks: 18.5,
			MinWaitWeeks: ptr(6),
			MaxWaitWeeks: ptr(41.25),
			Trust:        "Moorfields Eye Hospital NHS Foundation Trust",
			Source:       models.SourceNHS,
			SourceURL:    "https://www.myplannedcare.nhs.uk/",
			LastUpdated:  "2025-01-15",
		},
		{
			ProcedureID:  "hip",
			City:         "leeds",
			AvgWaitWeeks: 30,
			Trust:        `Leeds "Teaching", Hospitals`,
			Source:       models.SourceCSVFallback,
			LastUpdated:  "2025-01-15",
		},
	}

	require.NoError(t, WriteTable(path, rows))

	got, err := ReadTable[models.NHSWait](path)
	require.NoError(t, err)
	assert.Equal(t, rows, got)
}

func TestRoundTrip_AllTables(t *testing.T) {
	dir := t.TempDir()
	ds := &Dataset{
		Procedures: []models.Procedure{{ID: "knee", Name: "Knee Replacement", Specialty: "Orthopaedics", Description: "Total knee replacement", NHSCode: "W40"}},
		Cities:     []models.City{{Slug: "bristol", Region: "South West", NHSRegionCode: "Y58"}},
		PrivateCosts: []models.PrivateCost{{
			ProcedureID: "knee", City: "bristol", CostMin: 11500, CostMax: 15250.5, Currency: "GBP",
			ProviderCount: 7, Source: models.SourcePHIN, SourceURL: "https://www.phin.org.uk/", LastUpdated: "2025-02-01",
		}},
		Clinics: []models.Clinic{{
			ID: "bristol-spire-bristol", ProcedureID: "knee", City: "bristol", Name: "Spire Bristol",
			Address: "Redland Hill, Durdham Down", Postcode: "BS6 6UT", Phone: "0117 980 4000",
			Website: "https://www.spirehealthcare.com/spire-bristol-hospital/", PriceFrom: ptr(12995), Rating: ptr(4.8),
			Source: models.SourceTreatmentConnect, LastUpdated: "2025-02-01",
		}},
		FAQs: []models.FAQ{{ProcedureID: "knee", Question: "How long is recovery?", Answer: "Most patients walk\nwith support the next day."}},
	}

	require.NoError(t, ds.SaveDir(dir))

	got, err := LoadDir(dir)
	require.NoError(t, err)
	assert.Equal(t, ds.Procedures, got.Procedures)
	assert.Equal(t, ds.Cities, got.Cities)
	assert.Equal(t, ds.PrivateCosts, got.PrivateCosts)
	assert.Equal(t, ds.Clinics, got.Clinics)
	assert.Equal(t, ds.FAQs, got.FAQs)
	assert.Empty(t, got.NHSWaits)
}

func TestReadTable_MissingFile(t *testing.T) {
	rows, err := ReadTable[models.FAQ](filepath.Join(t.TempDir(), "nope.csv"))
	require.NoError(t, err)
	assert.Nil(t, rows)
}

func TestDecodeTable_HeaderMismatch(t *testing.T) {
	_, err := DecodeTable[models.FAQ](strings.NewReader("procedure_id,question,extra\nhip,q,a\n"))
	assert.ErrorIs(t, err, ErrHeaderMismatch)

	_, err = DecodeTable[models.FAQ](strings.NewReader("procedure_id,question\nhip,q\n"))
	assert.ErrorIs(t, err, ErrHeaderMismatch)
}

func TestDecodeTable_ColumnOrderAndBOM(t *testing.T) {
	data := "\ufeffanswer,procedure_id,question\nSix weeks,hip,How long?\n"
	rows, err := DecodeTable[models.FAQ](strings.NewReader(data))
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, models.FAQ{ProcedureID: "hip", Question: "How long?", Answer: "Six weeks"}, rows[0])
}

func TestDecodeTable_BadNumber(t *testing.T) {
	data := "procedure_id,city,cost_min,cost_max,currency,provider_count,source,source_url,last_updated\n" +
		"hip,leeds,£12000,14000,GBP,3,phin,,2025-01-01\n"
	_, err := DecodeTable[models.PrivateCost](strings.NewReader(data))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "cost_min")
}

func TestWriteTable_Atomic(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, FileFAQ)
	require.NoError(t, WriteTable(path, []models.FAQ{{ProcedureID: "hip", Question: "q", Answer: "a"}}))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1, "temp file must not be left behind")
	assert.Equal(t, FileFAQ, entries[0].Name())
}

func TestEncodeTable_Empty(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, EncodeTable[models.City](&buf, nil))
	assert.Equal(t, "city,region,nhs_region_code\n", buf.String())
}

func TestMerge(t *testing.T) {
	existing := []models.PrivateCost{
		{ProcedureID: "hip", City: "leeds", CostMin: 1},
		{ProcedureID: "cataract", City: "london", CostMin: 2},
		{ProcedureID: "hip", City: "bristol", CostMin: 3},
	}
	fresh := []models.PrivateCost{
		{ProcedureID: "hip", City: "leeds", CostMin: 10},
	}

	merged := Merge(existing, fresh)
	require.Len(t, merged, 3)
	assert.Equal(t, models.Key{ProcedureID: "cataract", City: "london"}, merged[0].Key())
	assert.Equal(t, models.Key{ProcedureID: "hip", City: "bristol"}, merged[1].Key())
	assert.Equal(t, 10.0, merged[2].CostMin)
}

func TestMerge_ReplacesAllRowsForKey(t *testing.T) {
	existing := []models.Clinic{
		{ID: "a", ProcedureID: "hip", City: "leeds"},
		{ID: "b", ProcedureID: "hip", City: "leeds"},
		{ID: "c", ProcedureID: "knee", City: "leeds"},
	}
	fresh := []models.Clinic{{ID: "d", ProcedureID: "hip", City: "leeds"}}

	merged := Merge(existing, fresh)
	ids := make([]string, 0, len(merged))
	for _, c := range merged {
		ids = append(ids, c.ID)
	}
	assert.Equal(t, []string{"d", "c"}, ids)
}

func TestLastKnown(t *testing.T) {
	ds := &Dataset{
		NHSWaits: []models.NHSWait{
			{ProcedureID: "hip", City: "leeds", AvgWaitWeeks: 30, Source: models.SourceNHS, LastUpdated: "2024-06-01"},
		},
	}
	now := time.Date(2025, 3, 9, 12, 0, 0, 0, time.UTC)

	rows := ds.LastKnown(models.KindNHSWaits, models.Key{ProcedureID: "hip", City: "leeds"}, now)
	require.Len(t, rows.NHSWaits, 1)
	assert.Equal(t, "2025-03-09", rows.NHSWaits[0].LastUpdated)
	assert.Equal(t, models.SourceCSVFallback, rows.NHSWaits[0].Source)
	assert.Equal(t, 30.0, rows.NHSWaits[0].AvgWaitWeeks)

	// the stored row is untouched
	assert.Equal(t, "2024-06-01", ds.NHSWaits[0].LastUpdated)

	assert.True(t, ds.LastKnown(models.KindNHSWaits, models.Key{ProcedureID: "knee", City: "leeds"}, now).Empty())
}

func TestUpdateClinics(t *testing.T) {
	ds := &Dataset{
		Clinics: []models.Clinic{
			{ID: "leeds-spire", ProcedureID: "hip", City: "leeds", Name: "Spire"},
			{ID: "leeds-nuffield", ProcedureID: "hip", City: "leeds", Name: "Nuffield"},
		},
	}

	n := ds.UpdateClinics([]models.Clinic{
		{ID: "leeds-spire", ProcedureID: "hip", City: "leeds", Name: "Spire", Phone: "0113 269 3939"},
		{ID: "leeds-unknown", ProcedureID: "hip", City: "leeds", Name: "Unknown"},
	})
	assert.Equal(t, 1, n)
	require.Len(t, ds.Clinics, 2)
	assert.Equal(t, "0113 269 3939", ds.Clinics[0].Phone)
	assert.Equal(t, "Nuffield", ds.Clinics[1].Name)

	assert.True(t, ds.LastKnown(models.KindHospitalDetails, models.Key{ProcedureID: "hip", City: "leeds"}, time.Now()).Empty())
}
