package extract

import (
	"strings"

	"github.com/comparethewait/ctw/pkg/models"
)

func object(required []string, props map[string]any) map[string]any {
	s := map[string]any{
		"type":       "object",
		"properties": props,
	}
	if len(required) > 0 {
		s["required"] = required
	}
	return s
}

func prop(typ, description string) map[string]any {
	return map[string]any{"type": typ, "description": description}
}

var clinicProps = map[string]any{
	"name":       prop("string", "Hospital or clinic name"),
	"address":    prop("string", "Street address"),
	"postcode":   prop("string", "UK postcode"),
	"phone":      prop("string", "Contact telephone number"),
	"website":    prop("string", "Hospital website URL"),
	"price_from": prop("number", "Lowest self-pay price in GBP"),
	"rating":     prop("number", "Patient rating out of 5"),
}

var schemas = map[models.DataKind]map[string]any{
	models.KindNHSWaits: object([]string{"avg_wait_weeks"}, map[string]any{
		"avg_wait_weeks": prop("number", "Average or median NHS waiting time in weeks"),
		"min_wait_weeks": prop("number", "Shortest waiting time in weeks across providers"),
		"max_wait_weeks": prop("number", "Longest waiting time in weeks across providers"),
		"trust":          prop("string", "NHS trust the figures refer to"),
	}),
	models.KindPrivateCosts: object([]string{"cost_min", "cost_max"}, map[string]any{
		"cost_min":       prop("number", "Lowest self-pay price in GBP"),
		"cost_max":       prop("number", "Highest self-pay price in GBP"),
		"currency":       prop("string", "ISO currency code"),
		"provider_count": prop("integer", "Number of private providers listed"),
	}),
	models.KindClinics: object([]string{"clinics"}, map[string]any{
		"clinics": map[string]any{
			"type":  "array",
			"items": object([]string{"name"}, clinicProps),
		},
	}),
	models.KindHospitalDetails: object(nil, map[string]any{
		"address":  prop("string", "Street address"),
		"postcode": prop("string", "UK postcode"),
		"phone":    prop("string", "Main contact or self-pay enquiries telephone number"),
		"website":  prop("string", "Official website URL"),
	}),
}

var prompts = map[models.DataKind]string{
	models.KindNHSWaits: "Extract the current NHS waiting time for {procedure_name} in {city_name}. " +
		"Report the average (or median) wait in weeks, plus the shortest and longest waits if the page lists several providers. " +
		"Convert months to weeks. Include the NHS trust name if one is given.",
	models.KindPrivateCosts: "Extract the self-pay price range for {procedure_name} at private hospitals in {city_name}. " +
		"Report the lowest and highest price in GBP as plain numbers and the number of providers listed.",
	models.KindClinics: "List the private hospitals and clinics offering {procedure_name} in {city_name}. " +
		"For each give the name, address, postcode, phone number, website, starting price in GBP and rating out of 5 when shown.",
	models.KindHospitalDetails: "Extract the contact details of {clinic_name}: street address, UK postcode, " +
		"main telephone number and official website.",
}

// Schema returns the JSON schema requested for kind
func Schema(kind models.DataKind) map[string]any {
	return schemas[kind]
}

// Prompt renders the extraction prompt for target
func Prompt(target models.Target) string {
	clinic := target.ProcedureName + " provider"
	if target.Clinic != nil {
		clinic = target.Clinic.Name
	}
	return strings.NewReplacer(
		"{procedure_name}", strings.ToLower(target.ProcedureName),
		"{city_name}", target.CityName,
		"{clinic_name}", clinic,
	).Replace(prompts[target.Kind])
}
