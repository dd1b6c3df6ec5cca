package output

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
)

// removedTags never carry content the parsers can use
const removedTags = "script, style, link, meta, noscript, iframe, svg, form, input, button, select, textarea, canvas, img, picture, video"

// CleanHTML removes unwanted elements and attributes before markdown conversion.
// Navigation chrome (nav, header, footer, aside) is dropped too, except when
// it is all the document has.
func CleanHTML(htmlContent string) (string, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(htmlContent))
	if err != nil {
		return "", err
	}

	doc.Find(removedTags).Remove()

	chrome := doc.Find("nav, header, footer, aside, [role=navigation], [aria-hidden=true]")
	if strings.TrimSpace(doc.Find("body").Text()) != strings.TrimSpace(chrome.Text()) {
		chrome.Remove()
	}

	doc.Find("*").Each(func(i int, s *goquery.Selection) {
		if len(s.Nodes) == 0 {
			return
		}
		node := s.Nodes[0]
		var kept []html.Attribute
		for _, attr := range node.Attr {
			if node.Data == "a" && (attr.Key == "href" || attr.Key == "title") {
				kept = append(kept, attr)
			}
		}
		node.Attr = kept
	})

	htmlStr, err := doc.Html()
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(htmlStr), nil
}
