package urlutil

import (
	"testing"

	"github.com/comparethewait/ctw/pkg/models"
)

func TestValidate(t *testing.T) {
	valid := []string{
		"http://example.com",
		"https://www.phin.org.uk/search?procedure=hip",
	}
	for _, u := range valid {
		if err := ValidateURL(u); err != nil {
			t.Fatalf("expected valid, got error: %v", err)
		}
	}

	invalid := []string{"ftp://example.com", "//example.com", "http:///", "treatmentconnect.co.uk"}
	for _, u := range invalid {
		if err := ValidateURL(u); err == nil {
			t.Fatalf("expected invalid for %s", u)
		}
	}
}

func TestFill(t *testing.T) {
	vars := map[string]string{
		"procedure":      "hip",
		"city":           "leeds",
		"city_name":      "Leeds",
		"procedure_name": "Hip Replacement",
	}

	tests := []struct {
		tmpl, want string
	}{
		{"https://example.com/{procedure}/{city}", "https://example.com/hip/leeds"},
		{"https://example.com/search?q={procedure_name}&loc={city_name}", "https://example.com/search?q=Hip+Replacement&loc=Leeds"},
		{"https://example.com/{procedure_name}", "https://example.com/Hip%20Replacement"},
		{"https://example.com/{unknown}/{city}", "https://example.com/{unknown}/leeds"},
		{"https://example.com/{", "https://example.com/{"},
	}

	for _, tt := range tests {
		if got := Fill(tt.tmpl, vars); got != tt.want {
			t.Errorf("Fill(%q) = %q, want %q", tt.tmpl, got, tt.want)
		}
	}
}

func TestResolveRelativeLinks(t *testing.T) {
	page := &models.PageData{
		URL:     "https://www.treatmentconnect.co.uk/hip/leeds/",
		Links:   []string{"/clinic/spire-leeds", "https://www.phin.org.uk/"},
		Scripts: []string{"app.js"},
	}
	ResolveRelativeLinks(page)

	if page.Links[0] != "https://www.treatmentconnect.co.uk/clinic/spire-leeds" {
		t.Errorf("unexpected link %q", page.Links[0])
	}
	if page.Links[1] != "https://www.phin.org.uk/" {
		t.Errorf("absolute link changed: %q", page.Links[1])
	}
	if page.Scripts[0] != "https://www.treatmentconnect.co.uk/hip/leeds/app.js" {
		t.Errorf("unexpected script %q", page.Scripts[0])
	}
}
