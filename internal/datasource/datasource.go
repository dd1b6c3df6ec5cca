// Package datasource loads comparethewait-data-source.json, the nested
// UK-wide and per-region waiting time statistics.
package datasource

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"
)

// FileName is the data source file name inside the data directory
const FileName = "comparethewait-data-source.json"

// ErrNotFound is returned by lookups that match nothing
var ErrNotFound = errors.New("not found")

// CostRange is the private cost summary of a procedure
type CostRange struct {
	Min     float64 `json:"min"`
	Max     float64 `json:"max"`
	Average float64 `json:"average"`
}

// ProcedureStats are the waiting time figures of one procedure
type ProcedureStats struct {
	MedianWaitWeeks  float64    `json:"median_wait_weeks"`
	MeanWaitWeeks    float64    `json:"mean_wait_weeks"`
	PatientsWaiting  int        `json:"patients_waiting"`
	Within18WeeksPct float64    `json:"within_18_weeks_pct"`
	PrivateCost      *CostRange `json:"private_cost,omitempty"`
}

// Area holds the statistics of the UK or one region
type Area struct {
	Procedures map[string]ProcedureStats `json:"procedures"`
}

// Metadata describes the data source
type Metadata struct {
	LastUpdated string `json:"last_updated"`
	Source      string `json:"source"`
}

// Dataset is the decoded data source
type Dataset struct {
	Metadata Metadata        `json:"metadata"`
	UKWide   Area            `json:"uk_wide"`
	Regions  map[string]Area `json:"regions"`
}

// Stats is a lookup answer: the figures and where they came from
type Stats struct {
	Procedure string         `json:"procedure"`
	Region    string         `json:"region"`
	UKWide    bool           `json:"uk_wide"`
	Stats     ProcedureStats `json:"stats"`
}

// Load reads and decodes the data source file
func Load(path string) (*Dataset, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read data source: %w", err)
	}
	return Parse(data)
}

// Parse decodes data source JSON
func Parse(data []byte) (*Dataset, error) {
	var ds Dataset
	if err := json.Unmarshal(data, &ds); err != nil {
		return nil, fmt.Errorf("invalid data source: %w", err)
	}
	if ds.UKWide.Procedures == nil {
		return nil, errors.New("invalid data source: uk_wide.procedures is missing")
	}
	return &ds, nil
}

// Procedures returns the procedure ids with UK-wide figures, sorted
func (ds *Dataset) Procedures() []string {
	ids := make([]string, 0, len(ds.UKWide.Procedures))
	for id := range ds.UKWide.Procedures {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// RegionNames returns the region names, sorted
func (ds *Dataset) RegionNames() []string {
	names := make([]string, 0, len(ds.Regions))
	for name := range ds.Regions {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// UK returns the UK-wide figures of procedure
func (ds *Dataset) UK(procedure string) (Stats, error) {
	s, ok := ds.UKWide.Procedures[procedure]
	if !ok {
		return Stats{}, fmt.Errorf("procedure %q: %w", procedure, ErrNotFound)
	}
	return Stats{Procedure: procedure, UKWide: true, Stats: s}, nil
}

// region finds a region by name, ignoring case
func (ds *Dataset) region(name string) (string, Area, bool) {
	if a, ok := ds.Regions[name]; ok {
		return name, a, true
	}
	for n, a := range ds.Regions {
		if strings.EqualFold(n, name) {
			return n, a, true
		}
	}
	return "", Area{}, false
}

// Region returns the figures of procedure in region, falling back to the
// UK-wide figures when the region lacks the procedure. An unknown region
// is an error.
func (ds *Dataset) Region(procedure, region string) (Stats, error) {
	name, area, ok := ds.region(region)
	if !ok {
		return Stats{}, fmt.Errorf("region %q: %w", region, ErrNotFound)
	}
	if s, ok := area.Procedures[procedure]; ok {
		return Stats{Procedure: procedure, Region: name, Stats: s}, nil
	}
	uk, err := ds.UK(procedure)
	if err != nil {
		return Stats{}, err
	}
	uk.Region = name
	return uk, nil
}

// RegionResolver maps a city slug to its region name
type RegionResolver func(city string) (string, bool)

// City returns the figures of procedure for the region of city, falling
// back to UK-wide figures when the city or its region is unknown.
func (ds *Dataset) City(procedure, city string, resolve RegionResolver) (Stats, error) {
	if resolve != nil {
		if region, ok := resolve(city); ok {
			if s, err := ds.Region(procedure, region); err == nil {
				return s, nil
			}
		}
	}
	return ds.UK(procedure)
}

// All returns the UK-wide figures and every region's figures of procedure
func (ds *Dataset) All(procedure string) (Stats, []Stats, error) {
	uk, err := ds.UK(procedure)
	if err != nil {
		return Stats{}, nil, err
	}
	var regions []Stats
	for _, name := range ds.RegionNames() {
		if s, ok := ds.Regions[name].Procedures[procedure]; ok {
			regions = append(regions, Stats{Procedure: procedure, Region: name, Stats: s})
		}
	}
	return uk, regions, nil
}
