// Package enrich adds contact details scraped from a clinic's own website.
package enrich

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"gmaps-engine/internal/domain"
	"gmaps-engine/internal/ratelimit"
)

var (
	emailRe = regexp.MustCompile(`[A-Za-z0-9._%+\-]+@[A-Za-z0-9.\-]+\.[A-Za-z]{2,}`)

	// asset names that look like addresses
	assetSuffixes = []string{".png", ".jpg", ".jpeg", ".gif", ".svg", ".webp"}

	defaultContactPaths = []string{"/iletisim", "/contact", "/bize-ulasin"}
)

const maxPageBytes = 2 << 20

// EmailEnricher looks for e-mail addresses on the homepage and, if none are
// found, on a few common contact pages of the same host.
type EmailEnricher struct {
	Client       *http.Client
	Limiter      *ratelimit.HostLimiter
	ContactPaths []string
	MaxEmails    int
}

func NewEmailEnricher(client *http.Client, limiter *ratelimit.HostLimiter) *EmailEnricher {
	if client == nil {
		client = &http.Client{Timeout: 12 * time.Second}
	}
	if limiter == nil {
		limiter = ratelimit.NewHostLimiter(1, 1)
	}
	return &EmailEnricher{
		Client:       client,
		Limiter:      limiter,
		ContactPaths: defaultContactPaths,
		MaxEmails:    5,
	}
}

func (e *EmailEnricher) Enrich(ctx context.Context, p *domain.Place) error {
	site := strings.TrimSpace(p.Contact.Website)
	if site == "" {
		return nil
	}
	base, err := url.Parse(site)
	if err != nil || base.Host == "" {
		return fmt.Errorf("bad website %q", site)
	}
	if base.Scheme == "" {
		base.Scheme = "https"
	}

	found := map[string]bool{}
	firstErr := e.collect(ctx, base.String(), found)

	if len(found) == 0 {
		for _, path := range e.ContactPaths {
			u := *base
			u.Path, u.RawQuery, u.Fragment = path, "", ""
			if err := e.collect(ctx, u.String(), found); err != nil && firstErr == nil {
				firstErr = err
			}
			if len(found) > 0 {
				break
			}
		}
	}

	if len(found) == 0 {
		return firstErr
	}
	emails := make([]string, 0, len(found))
	for m := range found {
		emails = append(emails, m)
	}
	sort.Strings(emails)
	if e.MaxEmails > 0 && len(emails) > e.MaxEmails {
		emails = emails[:e.MaxEmails]
	}
	p.Contact.Emails = emails
	return nil
}

func (e *EmailEnricher) collect(ctx context.Context, pageURL string, found map[string]bool) error {
	if err := e.Limiter.WaitURL(ctx, pageURL); err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return err
	}
	req.Header.Set("User-Agent", "Mozilla/5.0")
	req.Header.Set("Accept", "text/html,application/xhtml+xml")

	resp, err := e.Client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("GET %s: %s", pageURL, resp.Status)
	}

	doc, err := goquery.NewDocumentFromReader(io.LimitReader(resp.Body, maxPageBytes))
	if err != nil {
		return err
	}
	for _, m := range ExtractEmails(doc) {
		found[m] = true
	}
	return nil
}

// ExtractEmails returns addresses from mailto links and visible text, lowercased
// and deduplicated in document order.
func ExtractEmails(doc *goquery.Document) []string {
	var out []string
	seen := map[string]bool{}
	add := func(raw string) {
		m := strings.ToLower(strings.Trim(raw, " .,;:<>()[]\"'"))
		if m == "" || seen[m] || !plausible(m) {
			return
		}
		seen[m] = true
		out = append(out, m)
	}

	doc.Find(`a[href^="mailto:"]`).Each(func(_ int, a *goquery.Selection) {
		href, _ := a.Attr("href")
		addr := strings.TrimPrefix(href, "mailto:")
		if i := strings.IndexByte(addr, '?'); i >= 0 {
			addr = addr[:i]
		}
		if dec, err := url.QueryUnescape(addr); err == nil {
			addr = dec
		}
		for _, part := range strings.Split(addr, ",") {
			add(part)
		}
	})

	doc.Find("script, style, noscript").Remove()
	for _, m := range emailRe.FindAllString(doc.Find("body").Text(), -1) {
		add(m)
	}
	return out
}

func plausible(m string) bool {
	if !emailRe.MatchString(m) {
		return false
	}
	for _, s := range assetSuffixes {
		if strings.HasSuffix(m, s) {
			return false
		}
	}
	return true
}
