package metadata

import (
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/comparethewait/ctw/pkg/models"
)

// contentSelectors are tried in order to find the main page content
var contentSelectors = []string{"main", "article", "[role=main]", "#content", "body"}

// Extract fills the title, meta tags, links and scripts of pageData
func Extract(doc *goquery.Document, pageData *models.PageData) {
	if doc == nil || pageData == nil {
		return
	}
	if pageData.Metadata == nil {
		pageData.Metadata = make(map[string]string)
	}

	pageData.Title = strings.TrimSpace(doc.Find("title").First().Text())

	doc.Find("meta").Each(func(i int, sel *goquery.Selection) {
		content, _ := sel.Attr("content")
		if name, exists := sel.Attr("name"); exists {
			pageData.Metadata[name] = content
		}
		if property, exists := sel.Attr("property"); exists {
			pageData.Metadata[property] = content
		}
	})

	var links []string
	doc.Find("a[href]").Each(func(i int, sel *goquery.Selection) {
		if href, exists := sel.Attr("href"); exists && href != "" && !strings.HasPrefix(href, "#") {
			links = append(links, href)
		}
	})
	pageData.Links = FilterUniqueLinks(links)

	doc.Find("script").Each(func(i int, sel *goquery.Selection) {
		if src, exists := sel.Attr("src"); exists && src != "" {
			pageData.Scripts = append(pageData.Scripts, src)
		}
	})
}

// ExtractContent returns the text and HTML of the main content region.
// The HTML of the whole document is returned when no region matches.
func ExtractContent(doc *goquery.Document) (content string, html string) {
	if doc == nil {
		return "", ""
	}

	for _, selector := range contentSelectors {
		selection := doc.Find(selector).First()
		if selection.Length() == 0 {
			continue
		}
		text := strings.TrimSpace(selection.Text())
		if text == "" {
			continue
		}
		html, _ = goquery.OuterHtml(selection)
		return text, html
	}

	html, _ = doc.Html()
	return "", html
}

// ScriptCount returns the number of script elements, inline or not
func ScriptCount(doc *goquery.Document) int {
	if doc == nil {
		return 0
	}
	return doc.Find("script").Length()
}
