// Package catalog loads the list of target pages per procedure, city and
// data kind, and expands it into scraping targets.
package catalog

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	urlutil "github.com/comparethewait/ctw/internal/utils/url"
	"github.com/comparethewait/ctw/pkg/models"
)

// Procedure is a catalog procedure entry
type Procedure struct {
	ID          string   `json:"id" yaml:"id"`
	Name        string   `json:"name" yaml:"name"`
	Specialty   string   `json:"specialty,omitempty" yaml:"specialty,omitempty"`
	Description string   `json:"description,omitempty" yaml:"description,omitempty"`
	NHSCode     string   `json:"nhs_code,omitempty" yaml:"nhs_code,omitempty"`
	SearchTerms []string `json:"search_terms,omitempty" yaml:"search_terms,omitempty"`
}

// City is a catalog city entry
type City struct {
	Slug          string `json:"slug" yaml:"slug"`
	Name          string `json:"name" yaml:"name"`
	Region        string `json:"region" yaml:"region"`
	NHSRegionCode string `json:"nhs_region_code,omitempty" yaml:"nhs_region_code,omitempty"`
}

// Source holds the URL templates for one data kind
type Source struct {
	Primary   string `json:"primary" yaml:"primary"`
	Secondary string `json:"secondary,omitempty" yaml:"secondary,omitempty"`
	RenderJS  bool   `json:"render_js,omitempty" yaml:"render_js,omitempty"`
}

// Override replaces the templated URLs for one (procedure, city, kind).
// Empty procedure or city match every value.
type Override struct {
	Procedure string          `json:"procedure,omitempty" yaml:"procedure,omitempty"`
	City      string          `json:"city,omitempty" yaml:"city,omitempty"`
	Kind      models.DataKind `json:"kind" yaml:"kind"`
	Primary   string          `json:"primary,omitempty" yaml:"primary,omitempty"`
	Secondary string          `json:"secondary,omitempty" yaml:"secondary,omitempty"`
	RenderJS  *bool           `json:"render_js,omitempty" yaml:"render_js,omitempty"`
}

// Catalog is the static list of scraping sources
type Catalog struct {
	Procedures []Procedure                `json:"procedures" yaml:"procedures"`
	Cities     []City                     `json:"cities" yaml:"cities"`
	Sources    map[models.DataKind]Source `json:"sources" yaml:"sources"`
	Overrides  []Override                 `json:"overrides,omitempty" yaml:"overrides,omitempty"`
}

// Load reads a catalog from a .json, .yaml/.yml or .js file and validates it
func Load(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read catalog: %w", err)
	}

	c, err := Parse(data, strings.TrimPrefix(strings.ToLower(filepath.Ext(path)), "."))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", filepath.Base(path), err)
	}
	return c, nil
}

// Parse decodes catalog data in the given format (json, yaml, yml or js)
func Parse(data []byte, format string) (*Catalog, error) {
	var c Catalog

	switch format {
	case "json":
		if err := json.Unmarshal(data, &c); err != nil {
			return nil, fmt.Errorf("invalid JSON catalog: %w", err)
		}
	case "yaml", "yml":
		if err := yaml.Unmarshal(data, &c); err != nil {
			return nil, fmt.Errorf("invalid YAML catalog: %w", err)
		}
	case "js":
		exported, err := evalJS(string(data))
		if err != nil {
			return nil, err
		}
		if err := json.Unmarshal(exported, &c); err != nil {
			return nil, fmt.Errorf("invalid JS catalog export: %w", err)
		}
	default:
		return nil, fmt.Errorf("unsupported catalog format %q", format)
	}

	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

// Validate checks ids, URL templates and overrides
func (c *Catalog) Validate() error {
	var errs []error

	if len(c.Procedures) == 0 {
		errs = append(errs, errors.New("no procedures defined"))
	}
	if len(c.Cities) == 0 {
		errs = append(errs, errors.New("no cities defined"))
	}

	procs := make(map[string]bool)
	for _, p := range c.Procedures {
		switch {
		case p.ID == "" || p.ID != strings.ToLower(p.ID):
			errs = append(errs, fmt.Errorf("procedure id %q must be a non-empty lower-case slug", p.ID))
		case procs[p.ID]:
			errs = append(errs, fmt.Errorf("duplicate procedure id %q", p.ID))
		case p.Name == "":
			errs = append(errs, fmt.Errorf("procedure %q has no name", p.ID))
		}
		procs[p.ID] = true
	}

	cities := make(map[string]bool)
	for _, ct := range c.Cities {
		switch {
		case ct.Slug == "" || ct.Slug != strings.ToLower(ct.Slug):
			errs = append(errs, fmt.Errorf("city slug %q must be a non-empty lower-case slug", ct.Slug))
		case cities[ct.Slug]:
			errs = append(errs, fmt.Errorf("duplicate city %q", ct.Slug))
		case ct.Region == "":
			errs = append(errs, fmt.Errorf("city %q has no region", ct.Slug))
		}
		cities[ct.Slug] = true
	}

	for _, kind := range models.TargetKinds {
		src, ok := c.Sources[kind]
		if !ok || src.Primary == "" {
			errs = append(errs, fmt.Errorf("sources.%s.primary is required", kind))
		}
	}
	for kind, src := range c.Sources {
		if _, err := models.ParseKind(string(kind)); err != nil {
			errs = append(errs, fmt.Errorf("sources: %w", err))
			continue
		}
		errs = append(errs, c.checkTemplate(fmt.Sprintf("sources.%s.primary", kind), src.Primary))
		errs = append(errs, c.checkTemplate(fmt.Sprintf("sources.%s.secondary", kind), src.Secondary))
	}

	for i, o := range c.Overrides {
		if o.Procedure != "" && !procs[o.Procedure] {
			errs = append(errs, fmt.Errorf("overrides[%d]: unknown procedure %q", i, o.Procedure))
		}
		if o.City != "" && !cities[o.City] {
			errs = append(errs, fmt.Errorf("overrides[%d]: unknown city %q", i, o.City))
		}
		if _, err := models.ParseKind(string(o.Kind)); err != nil {
			errs = append(errs, fmt.Errorf("overrides[%d]: %w", i, err))
		}
		errs = append(errs, c.checkTemplate(fmt.Sprintf("overrides[%d].primary", i), o.Primary))
		errs = append(errs, c.checkTemplate(fmt.Sprintf("overrides[%d].secondary", i), o.Secondary))
	}

	return errors.Join(errs...)
}

// checkTemplate validates a URL template filled with the first catalog entries
func (c *Catalog) checkTemplate(field, tmpl string) error {
	if tmpl == "" || len(c.Procedures) == 0 || len(c.Cities) == 0 {
		return nil
	}
	filled := urlutil.Fill(tmpl, vars(c.Procedures[0], c.Cities[0]))
	if err := urlutil.ValidateURL(filled); err != nil {
		return fmt.Errorf("%s: %w", field, err)
	}
	if strings.ContainsAny(filled, "{}") {
		return fmt.Errorf("%s: unknown placeholder in %q", field, tmpl)
	}
	return nil
}

func vars(p Procedure, c City) map[string]string {
	return map[string]string{
		"procedure":      p.ID,
		"procedure_name": p.Name,
		"city":           c.Slug,
		"city_name":      c.Name,
		"region":         c.Region,
	}
}

// Expand returns every target: procedures in catalog order, then cities in
// catalog order, then kinds in run order.
func (c *Catalog) Expand() []models.Target {
	targets := make([]models.Target, 0, len(c.Procedures)*len(c.Cities)*len(models.TargetKinds))
	for _, p := range c.Procedures {
		for _, ct := range c.Cities {
			v := vars(p, ct)
			for _, kind := range models.TargetKinds {
				src := c.resolve(p.ID, ct.Slug, kind)
				t := models.Target{
					ProcedureID:   p.ID,
					ProcedureName: p.Name,
					City:          ct.Slug,
					CityName:      ct.Name,
					Kind:          kind,
					PrimaryURL:    urlutil.Fill(src.Primary, v),
					RenderJS:      src.RenderJS,
				}
				if src.Secondary != "" {
					t.SecondaryURL = urlutil.Fill(src.Secondary, v)
				}
				targets = append(targets, t)
			}
		}
	}
	return targets
}

// resolve applies matching overrides, in order, on top of the kind's source
func (c *Catalog) resolve(procedure, city string, kind models.DataKind) Source {
	src := c.Sources[kind]
	for _, o := range c.Overrides {
		if o.Kind != kind {
			continue
		}
		if o.Procedure != "" && o.Procedure != procedure {
			continue
		}
		if o.City != "" && o.City != city {
			continue
		}
		if o.Primary != "" {
			src.Primary = o.Primary
		}
		if o.Secondary != "" {
			src.Secondary = o.Secondary
		}
		if o.RenderJS != nil {
			src.RenderJS = *o.RenderJS
		}
	}
	return src
}

// HospitalTargets derives hospital_details targets from clinic rows that
// carry a website. Targets follow the order of clinics.
func (c *Catalog) HospitalTargets(clinics []models.Clinic) []models.Target {
	var targets []models.Target
	for i := range clinics {
		cl := clinics[i]
		if cl.Website == "" || urlutil.ValidateURL(cl.Website) != nil {
			continue
		}
		p, _ := c.Procedure(cl.ProcedureID)
		ct, _ := c.City(cl.City)
		targets = append(targets, models.Target{
			ProcedureID:   cl.ProcedureID,
			ProcedureName: p.Name,
			City:          cl.City,
			CityName:      ct.Name,
			Kind:          models.KindHospitalDetails,
			PrimaryURL:    cl.Website,
			RenderJS:      c.Sources[models.KindHospitalDetails].RenderJS,
			Clinic:        &cl,
		})
	}
	return targets
}

// Procedure returns the procedure with the given id
func (c *Catalog) Procedure(id string) (Procedure, bool) {
	for _, p := range c.Procedures {
		if p.ID == id {
			return p, true
		}
	}
	return Procedure{}, false
}

// City returns the city with the given slug
func (c *Catalog) City(slug string) (City, bool) {
	for _, ct := range c.Cities {
		if ct.Slug == slug {
			return ct, true
		}
	}
	return City{}, false
}

// ProcedureRows returns the procedures as procedures.csv rows
func (c *Catalog) ProcedureRows() []models.Procedure {
	rows := make([]models.Procedure, 0, len(c.Procedures))
	for _, p := range c.Procedures {
		rows = append(rows, models.Procedure{
			ID:          p.ID,
			Name:        p.Name,
			Specialty:   p.Specialty,
			Description: p.Description,
			NHSCode:     p.NHSCode,
		})
	}
	return rows
}

// CityRows returns the cities as cities.csv rows
func (c *Catalog) CityRows() []models.City {
	rows := make([]models.City, 0, len(c.Cities))
	for _, ct := range c.Cities {
		rows = append(rows, models.City{
			Slug:          ct.Slug,
			Region:        ct.Region,
			NHSRegionCode: ct.NHSRegionCode,
		})
	}
	return rows
}
