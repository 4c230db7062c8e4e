// Package citation fetches the textbook page behind a citation and renders
// the cited section as markdown.
package citation

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	md "github.com/JohannesKaufmann/html-to-markdown"
	"github.com/PuerkitoBio/goquery"
	"github.com/charmbracelet/log"
)

const defaultTimeout = 10 * time.Second

// noise is stripped before conversion; the docs theme wraps content in
// navigation, edit links and a table of contents
const noise = "script, style, nav, footer, .theme-doc-toc-mobile, .theme-doc-toc-desktop, .theme-edit-this-page, .pagination-nav, .theme-doc-breadcrumbs, .hash-link"

// Preview is a rendered citation target
type Preview struct {
	Title    string
	URL      string
	Markdown string
}

// Previewer resolves citation URLs against the docs site and renders them
type Previewer struct {
	base      *url.URL
	http      *http.Client
	logger    *log.Logger
	converter *md.Converter
}

// Option configures a Previewer
type Option func(*Previewer)

// WithHTTPClient replaces the HTTP client
func WithHTTPClient(hc *http.Client) Option {
	return func(p *Previewer) { p.http = hc }
}

// WithLogger sets the logger
func WithLogger(l *log.Logger) Option {
	return func(p *Previewer) { p.logger = l }
}

// NewPreviewer creates a previewer for the docs site at baseURL
func NewPreviewer(baseURL string, opts ...Option) (*Previewer, error) {
	base, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid docs url: %w", err)
	}
	if base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("invalid docs url %q: scheme and host required", baseURL)
	}

	p := &Previewer{
		base:      base,
		http:      &http.Client{Timeout: defaultTimeout},
		converter: md.NewConverter(base.Host, true, nil),
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.logger == nil {
		p.logger = log.Default().WithPrefix("citation")
	}
	return p, nil
}

// Resolve turns a citation URL, usually site-relative, into an absolute URL
func (p *Previewer) Resolve(ref string) (*url.URL, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return nil, errors.New("empty citation url")
	}
	u, err := url.Parse(ref)
	if err != nil {
		return nil, fmt.Errorf("invalid citation url: %w", err)
	}
	return p.base.ResolveReference(u), nil
}

// Preview fetches the page for ref and returns the cited section. When ref
// carries a fragment naming a heading, only that heading's section is kept.
func (p *Previewer) Preview(ctx context.Context, ref string) (*Preview, error) {
	u, err := p.Resolve(ref)
	if err != nil {
		return nil, err
	}
	target := u.String()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "text/html")

	resp, err := p.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch %s: %w", target, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("failed to fetch %s: status %d", target, resp.StatusCode)
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to parse page: %w", err)
	}
	doc.Find(noise).Remove()

	content := mainContent(doc)
	title := strings.TrimSpace(content.Find("h1").First().Text())
	if title == "" {
		title = strings.TrimSpace(doc.Find("title").First().Text())
	}

	if u.Fragment != "" {
		if section := sectionFor(doc, u.Fragment); section != nil {
			content = section
			if heading := strings.TrimSpace(section.First().Text()); heading != "" {
				title = heading
			}
		}
	}

	markdown, err := p.render(content)
	if err != nil {
		return nil, err
	}

	p.logger.Debug("rendered citation", "url", target, "bytes", len(markdown))
	return &Preview{Title: title, URL: target, Markdown: markdown}, nil
}

func (p *Previewer) render(sel *goquery.Selection) (string, error) {
	var html strings.Builder
	var renderErr error
	sel.EachWithBreak(func(_ int, s *goquery.Selection) bool {
		part, err := goquery.OuterHtml(s)
		if err != nil {
			renderErr = err
			return false
		}
		html.WriteString(part)
		return true
	})
	if renderErr != nil {
		return "", fmt.Errorf("failed to serialize content: %w", renderErr)
	}

	markdown, err := p.converter.ConvertString(html.String())
	if err != nil {
		return "", fmt.Errorf("failed to convert to markdown: %w", err)
	}
	return strings.TrimSpace(markdown), nil
}

// mainContent picks the article body, falling back to main and then body
func mainContent(doc *goquery.Document) *goquery.Selection {
	for _, selector := range []string{"article", "main", "body"} {
		if sel := doc.Find(selector).First(); sel.Length() > 0 {
			return sel
		}
	}
	return doc.Selection
}

// sectionFor returns the heading with the given id plus the siblings that
// follow it up to the next heading of the same or a higher level
func sectionFor(doc *goquery.Document, id string) *goquery.Selection {
	heading := doc.Find(fmt.Sprintf("[id=%q]", id)).First()
	if heading.Length() == 0 {
		return nil
	}

	name := goquery.NodeName(heading)
	if len(name) != 2 || name[0] != 'h' || name[1] < '1' || name[1] > '6' {
		return nil
	}
	level := int(name[1] - '0')

	stops := make([]string, 0, level)
	for i := 1; i <= level; i++ {
		stops = append(stops, fmt.Sprintf("h%d", i))
	}
	return heading.AddSelection(heading.NextUntil(strings.Join(stops, ", ")))
}
