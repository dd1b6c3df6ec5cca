package hybrid

import (
	"strings"
)

// frameworkMarkers are attributes and ids left in server HTML by client-side frameworks
var frameworkMarkers = []struct {
	name    string
	markers []string
}{
	{"Next.js", []string{`id="__next"`, "__next_data__"}},
	{"React", []string{"data-reactroot", `id="root"></div>`, "react-dom"}},
	{"Nuxt", []string{`id="__nuxt"`, "window.__nuxt__"}},
	{"Vue", []string{"data-v-app", "data-server-rendered", "vue.runtime"}},
	{"Angular", []string{"ng-version", "ng-app", "<app-root"}},
	{"Svelte", []string{"svelte-", "__sveltekit"}},
}

// DetectJavaScriptFramework detects common JS frameworks in HTML.
// It returns "" when none is recognised.
func DetectJavaScriptFramework(html string) string {
	html = strings.ToLower(html)

	for _, fw := range frameworkMarkers {
		for _, marker := range fw.markers {
			if strings.Contains(html, marker) {
				return fw.name
			}
		}
	}
	return ""
}

// NeedsJavaScript determines if a page likely needs JS rendering: it is an
// app shell, or it has almost no text next to its scripts.
func NeedsJavaScript(html string, visibleText string, scriptCount int) bool {
	if scriptCount == 0 {
		return false
	}

	if DetectJavaScriptFramework(html) != "" && len(strings.TrimSpace(visibleText)) < 500 {
		return true
	}

	// Minimal body with scripts is the typical SPA shell
	if len(strings.TrimSpace(visibleText)) < 200 {
		return true
	}
	if strings.Count(strings.ToLower(html), "<div") < 3 && scriptCount > 5 {
		return true
	}

	return false
}
