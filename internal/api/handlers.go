package api

import (
	"encoding/json"
	"errors"
	"math"
	"net/http"
	"regexp"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	"github.com/comparethewait/ctw/internal/datasource"
	"github.com/comparethewait/ctw/internal/store"
	"github.com/comparethewait/ctw/pkg/models"
)

// TypicalPrivateWaitWeeks is the wait assumed for private treatment when
// computing weeks saved
const TypicalPrivateWaitWeeks = 4.0

var slugPattern = regexp.MustCompile(`^[a-z0-9]+(?:-[a-z0-9]+)*$`)

// Comparison is the NHS versus private answer for one procedure and city
type Comparison struct {
	Procedure   models.Procedure    `json:"procedure"`
	City        models.City         `json:"city"`
	NHSWait     *models.NHSWait     `json:"nhs_wait"`
	PrivateCost *models.PrivateCost `json:"private_cost"`
	Clinics     []models.Clinic     `json:"clinics"`
	Regional    *datasource.Stats   `json:"regional,omitempty"`
	WeeksSaved  *float64            `json:"weeks_saved"`
}

// WaitingTimes lists the data source figures of one procedure
type WaitingTimes struct {
	Procedure   string             `json:"procedure"`
	LastUpdated string             `json:"last_updated,omitempty"`
	Source      string             `json:"source,omitempty"`
	UKWide      *datasource.Stats  `json:"uk_wide,omitempty"`
	Regions     []datasource.Stats `json:"regions,omitempty"`
	Region      *datasource.Stats  `json:"region,omitempty"`
}

// WeeksSaved is the NHS average wait minus the typical private wait,
// floored at zero
func WeeksSaved(avgWaitWeeks float64) float64 {
	return math.Max(0, math.Round((avgWaitWeeks-TypicalPrivateWaitWeeks)*10)/10)
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	body := map[string]any{
		"status":     "ok",
		"uptime":     time.Since(s.started).Round(time.Second).String(),
		"procedures": len(s.data.Procedures),
		"cities":     len(s.data.Cities),
		"clinics":    len(s.data.Clinics),
	}
	if s.source != nil {
		body["data_source_updated"] = s.source.Metadata.LastUpdated
	}
	respondJSON(w, http.StatusOK, body)
}

func (s *Server) listProcedures(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, nonNil(s.data.Procedures))
}

func (s *Server) getProcedure(w http.ResponseWriter, r *http.Request) {
	p, ok := s.procedure(w, chi.URLParam(r, "id"))
	if !ok {
		return
	}
	respondJSON(w, http.StatusOK, p)
}

func (s *Server) listCities(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, nonNil(s.data.Cities))
}

func (s *Server) comparison(w http.ResponseWriter, r *http.Request) {
	p, ok := s.procedure(w, chi.URLParam(r, "procedure"))
	if !ok {
		return
	}
	slug := chi.URLParam(r, "city")
	if !slugPattern.MatchString(slug) {
		respondError(w, http.StatusBadRequest, "invalid city")
		return
	}
	city, ok := s.cities[slug]
	if !ok {
		respondError(w, http.StatusNotFound, "city not found")
		return
	}

	key := models.Key{ProcedureID: p.ID, City: city.Slug}
	resp := Comparison{
		Procedure: p,
		City:      city,
		Clinics:   nonNil(store.Select(s.data.Clinics, key)),
	}
	if waits := store.Select(s.data.NHSWaits, key); len(waits) > 0 {
		resp.NHSWait = &waits[0]
		saved := WeeksSaved(waits[0].AvgWaitWeeks)
		resp.WeeksSaved = &saved
	}
	if costs := store.Select(s.data.PrivateCosts, key); len(costs) > 0 {
		resp.PrivateCost = &costs[0]
	}

	if s.source != nil {
		stats, err := s.source.City(p.ID, city.Slug, s.regionOf)
		switch {
		case err == nil:
			resp.Regional = &stats
		case !errors.Is(err, datasource.ErrNotFound):
			log.Error().Err(err).Str("procedure", p.ID).Str("city", city.Slug).Msg("Regional lookup failed")
		}
	}

	respondJSON(w, http.StatusOK, resp)
}

func (s *Server) faq(w http.ResponseWriter, r *http.Request) {
	id := r.URL.Query().Get("procedure")
	if id == "" {
		respondJSON(w, http.StatusOK, nonNil(s.data.FAQs))
		return
	}
	if _, ok := s.procedure(w, id); !ok {
		return
	}

	out := []models.FAQ{}
	for _, f := range s.data.FAQs {
		if f.ProcedureID == id {
			out = append(out, f)
		}
	}
	respondJSON(w, http.StatusOK, out)
}

func (s *Server) waitingTimes(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "procedure")
	if !slugPattern.MatchString(id) {
		respondError(w, http.StatusBadRequest, "invalid procedure")
		return
	}
	if s.source == nil {
		respondError(w, http.StatusInternalServerError, "waiting-times data source not loaded")
		return
	}

	resp := WaitingTimes{
		Procedure:   id,
		LastUpdated: s.source.Metadata.LastUpdated,
		Source:      s.source.Metadata.Source,
	}

	if region := r.URL.Query().Get("region"); region != "" {
		stats, err := s.source.Region(id, region)
		if err != nil {
			s.sourceError(w, err)
			return
		}
		resp.Region = &stats
		respondJSON(w, http.StatusOK, resp)
		return
	}

	uk, regions, err := s.source.All(id)
	if err != nil {
		s.sourceError(w, err)
		return
	}
	resp.UKWide = &uk
	resp.Regions = regions
	respondJSON(w, http.StatusOK, resp)
}

// procedure resolves a procedure id, writing the error response when it
// is malformed or unknown
func (s *Server) procedure(w http.ResponseWriter, id string) (models.Procedure, bool) {
	if !slugPattern.MatchString(id) {
		respondError(w, http.StatusBadRequest, "invalid procedure")
		return models.Procedure{}, false
	}
	p, ok := s.procedures[id]
	if !ok {
		respondError(w, http.StatusNotFound, "procedure not found")
		return models.Procedure{}, false
	}
	return p, true
}

func (s *Server) regionOf(city string) (string, bool) {
	c, ok := s.cities[city]
	if !ok || c.Region == "" {
		return "", false
	}
	return c.Region, true
}

func (s *Server) sourceError(w http.ResponseWriter, err error) {
	if errors.Is(err, datasource.ErrNotFound) {
		respondError(w, http.StatusNotFound, err.Error())
		return
	}
	log.Error().Err(err).Msg("Data source lookup failed")
	respondError(w, http.StatusInternalServerError, "internal error")
}

func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		log.Error().Err(err).Msg("Failed to encode response")
	}
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}

// nonNil keeps empty tables encoding as [] rather than null
func nonNil[T any](rows []T) []T {
	if rows == nil {
		return []T{}
	}
	return rows
}
