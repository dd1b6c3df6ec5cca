package output

import (
	"fmt"
	"strings"

	md "github.com/JohannesKaufmann/html-to-markdown"
	"github.com/JohannesKaufmann/html-to-markdown/plugin"
	"github.com/PuerkitoBio/goquery"

	urlutil "github.com/comparethewait/ctw/internal/utils/url"
)

// ToMarkdown cleans htmlContent and converts it to GitHub flavored markdown.
// Relative links are resolved against baseURL.
func ToMarkdown(htmlContent, baseURL string) (string, error) {
	if strings.TrimSpace(htmlContent) == "" {
		return "", nil
	}

	converter := md.NewConverter("", true, nil)
	converter.Use(plugin.GitHubFlavored())

	converter.AddRules(md.Rule{
		Filter: []string{"a"},
		Replacement: func(content string, selec *goquery.Selection, opt *md.Options) *string {
			href, exists := selec.Attr("href")
			if !exists {
				return nil
			}

			text := strings.TrimSpace(selec.Text())
			resolved := urlutil.ResolveURL(baseURL, href)
			if title, ok := selec.Attr("title"); ok {
				str := fmt.Sprintf("[%s](%s %q)", text, resolved, title)
				return &str
			}
			str := fmt.Sprintf("[%s](%s)", text, resolved)
			return &str
		},
	})

	cleaned, err := CleanHTML(htmlContent)
	if err != nil {
		return "", fmt.Errorf("failed to clean HTML: %w", err)
	}

	markdown, err := converter.ConvertString(cleaned)
	if err != nil {
		return "", fmt.Errorf("failed to convert HTML to markdown: %w", err)
	}
	return strings.TrimSpace(markdown), nil
}
