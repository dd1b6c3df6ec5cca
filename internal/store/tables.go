package store

import (
	"fmt"
	"path/filepath"
	"sort"
	"time"

	"github.com/comparethewait/ctw/pkg/models"
	"github.com/rs/zerolog/log"
)

// Table file names, relative to the data directory
const (
	FileProcedures   = "procedures.csv"
	FileCities       = "cities.csv"
	FileNHSWaits     = "nhs_waits.csv"
	FilePrivateCosts = "private_costs.csv"
	FileClinics      = "clinics.csv"
	FileFAQ          = "faq.csv"
)

// Dataset holds every table of the data directory
type Dataset struct {
	Procedures   []models.Procedure
	Cities       []models.City
	NHSWaits     []models.NHSWait
	PrivateCosts []models.PrivateCost
	Clinics      []models.Clinic
	FAQs         []models.FAQ
}

// LoadDir reads all tables from dir. Missing files load as empty tables.
func LoadDir(dir string) (*Dataset, error) {
	ds := &Dataset{}
	var err error

	if ds.Procedures, err = ReadTable[models.Procedure](filepath.Join(dir, FileProcedures)); err != nil {
		return nil, err
	}
	if ds.Cities, err = ReadTable[models.City](filepath.Join(dir, FileCities)); err != nil {
		return nil, err
	}
	if ds.NHSWaits, err = ReadTable[models.NHSWait](filepath.Join(dir, FileNHSWaits)); err != nil {
		return nil, err
	}
	if ds.PrivateCosts, err = ReadTable[models.PrivateCost](filepath.Join(dir, FilePrivateCosts)); err != nil {
		return nil, err
	}
	if ds.Clinics, err = ReadTable[models.Clinic](filepath.Join(dir, FileClinics)); err != nil {
		return nil, err
	}
	if ds.FAQs, err = ReadTable[models.FAQ](filepath.Join(dir, FileFAQ)); err != nil {
		return nil, err
	}

	log.Debug().
		Str("dir", dir).
		Int("procedures", len(ds.Procedures)).
		Int("cities", len(ds.Cities)).
		Int("nhs_waits", len(ds.NHSWaits)).
		Int("private_costs", len(ds.PrivateCosts)).
		Int("clinics", len(ds.Clinics)).
		Int("faq", len(ds.FAQs)).
		Msg("Data directory loaded")

	return ds, nil
}

// SaveDir writes every table of the dataset to dir
func (ds *Dataset) SaveDir(dir string) error {
	if err := WriteTable(filepath.Join(dir, FileProcedures), ds.Procedures); err != nil {
		return err
	}
	if err := WriteTable(filepath.Join(dir, FileCities), ds.Cities); err != nil {
		return err
	}
	if err := ds.SaveScraped(dir); err != nil {
		return err
	}
	return WriteTable(filepath.Join(dir, FileFAQ), ds.FAQs)
}

// SaveScraped writes only the tables the scraper produces
func (ds *Dataset) SaveScraped(dir string) error {
	if err := WriteTable(filepath.Join(dir, FileNHSWaits), ds.NHSWaits); err != nil {
		return fmt.Errorf("failed to write nhs waits: %w", err)
	}
	if err := WriteTable(filepath.Join(dir, FilePrivateCosts), ds.PrivateCosts); err != nil {
		return fmt.Errorf("failed to write private costs: %w", err)
	}
	if err := WriteTable(filepath.Join(dir, FileClinics), ds.Clinics); err != nil {
		return fmt.Errorf("failed to write clinics: %w", err)
	}
	return nil
}

// Apply merges freshly scraped rows into the dataset, replacing rows by key
func (ds *Dataset) Apply(rows models.Rows) {
	if len(rows.NHSWaits) > 0 {
		ds.NHSWaits = Merge(ds.NHSWaits, rows.NHSWaits)
	}
	if len(rows.PrivateCosts) > 0 {
		ds.PrivateCosts = Merge(ds.PrivateCosts, rows.PrivateCosts)
	}
	if len(rows.Clinics) > 0 {
		ds.Clinics = Merge(ds.Clinics, rows.Clinics)
	}
}

// UpdateClinics replaces clinic rows by (procedure_id, clinic_id), leaving
// every other row in place. It returns the number of rows replaced.
func (ds *Dataset) UpdateClinics(clinics []models.Clinic) int {
	type clinicKey struct{ procedure, id string }
	byID := make(map[clinicKey]models.Clinic, len(clinics))
	for _, c := range clinics {
		byID[clinicKey{c.ProcedureID, c.ID}] = c
	}

	n := 0
	for i, c := range ds.Clinics {
		if updated, ok := byID[clinicKey{c.ProcedureID, c.ID}]; ok {
			ds.Clinics[i] = updated
			n++
		}
	}
	return n
}

// LastKnown returns the last-known-good rows of the given kind for key,
// re-dated to now. Hospital details have no table of their own and return
// nothing.
func (ds *Dataset) LastKnown(kind models.DataKind, key models.Key, now time.Time) models.Rows {
	var rows models.Rows
	switch kind {
	case models.KindNHSWaits:
		rows.NHSWaits = Select(ds.NHSWaits, key)
	case models.KindPrivateCosts:
		rows.PrivateCosts = Select(ds.PrivateCosts, key)
	case models.KindClinics:
		rows.Clinics = Select(ds.Clinics, key)
	}
	if rows.Empty() {
		return rows
	}
	return rows.WithSource(models.SourceCSVFallback).WithDate(now)
}

// Keyed is implemented by every table row with a (procedure_id, city) key
type Keyed interface {
	Key() models.Key
}

// Merge replaces every existing row whose key appears in fresh with the
// fresh rows for that key. Rows for other keys are kept. The result is
// sorted by key; rows sharing a key keep their relative order.
func Merge[T Keyed](existing, fresh []T) []T {
	replaced := make(map[models.Key]bool, len(fresh))
	for _, r := range fresh {
		replaced[r.Key()] = true
	}

	out := make([]T, 0, len(existing)+len(fresh))
	for _, r := range existing {
		if !replaced[r.Key()] {
			out = append(out, r)
		}
	}
	out = append(out, fresh...)

	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i].Key(), out[j].Key()
		if a.ProcedureID != b.ProcedureID {
			return a.ProcedureID < b.ProcedureID
		}
		return a.City < b.City
	})
	return out
}

// Select returns copies of the rows matching key
func Select[T Keyed](rows []T, key models.Key) []T {
	var out []T
	for _, r := range rows {
		if r.Key() == key {
			out = append(out, r)
		}
	}
	return out
}
