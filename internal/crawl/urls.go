package crawl

import (
	"fmt"
	"net/url"
	"regexp"
	"sort"
	"strings"

	"github.com/TobiSchelling/CEUCrawler/internal/config"
	"github.com/TobiSchelling/CEUCrawler/internal/database"
)

// globalSkip rejects links that never lead to course pages on any provider.
var globalSkip = regexp.MustCompile(`(?i)` +
	`\.(?:pdf|jpe?g|png|gif|svg|webp|ico|css|js|zip|mp3|mp4|mov|docx?|xlsx?|pptx?)(?:$|\?)` +
	`|/(?:cart|checkout|basket|login|logout|signin|sign-in|register|account|my-account|wishlist|password)(?:/|$|\?)` +
	`|^(?:mailto|tel|javascript|data):`)

// trackingParams are stripped during normalization.
var trackingParams = map[string]bool{
	"fbclid": true, "gclid": true, "msclkid": true, "mc_cid": true, "mc_eid": true, "_ga": true, "ref": true,
}

// NormalizeURL returns the canonical form used to deduplicate URLs: lower
// case scheme and host, no default port, fragment or trailing slash, tracking
// parameters removed and the query sorted.
func NormalizeURL(raw string) (string, error) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return "", err
	}
	if u.Scheme == "" || u.Host == "" {
		return "", fmt.Errorf("not an absolute URL: %q", raw)
	}
	u.Scheme = strings.ToLower(u.Scheme)
	host := strings.ToLower(u.Hostname())
	if port := u.Port(); port != "" && !(u.Scheme == "http" && port == "80") && !(u.Scheme == "https" && port == "443") {
		host += ":" + port
	}
	u.Host = host
	u.Fragment = ""
	u.RawFragment = ""
	u.User = nil

	if len(u.Path) > 1 {
		u.Path = strings.TrimRight(u.Path, "/")
		u.RawPath = ""
	}
	if u.Path == "/" {
		u.Path = ""
	}

	q := u.Query()
	for k := range q {
		if strings.HasPrefix(strings.ToLower(k), "utm_") || trackingParams[strings.ToLower(k)] {
			q.Del(k)
		}
	}
	keys := make([]string, 0, len(q))
	for k := range q {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var parts []string
	for _, k := range keys {
		vals := append([]string(nil), q[k]...)
		sort.Strings(vals)
		for _, v := range vals {
			parts = append(parts, url.QueryEscape(k)+"="+url.QueryEscape(v))
		}
	}
	u.RawQuery = strings.Join(parts, "&")
	return u.String(), nil
}

// rules are a provider's compiled URL patterns.
type rules struct {
	host    string
	detail  []*regexp.Regexp
	listing []*regexp.Regexp
	skip    []*regexp.Regexp
}

func compileRules(p config.Provider) (*rules, error) {
	r := &rules{}
	base := p.BaseURL
	if base == "" && len(p.StartURLs) > 0 {
		base = p.StartURLs[0]
	}
	if u, err := url.Parse(base); err == nil {
		r.host = strings.TrimPrefix(strings.ToLower(u.Hostname()), "www.")
	}

	compile := func(kind string, patterns []string) ([]*regexp.Regexp, error) {
		out := make([]*regexp.Regexp, 0, len(patterns))
		for _, p := range patterns {
			re, err := regexp.Compile(p)
			if err != nil {
				return nil, fmt.Errorf("%s pattern %q: %w", kind, p, err)
			}
			out = append(out, re)
		}
		return out, nil
	}
	var err error
	if r.detail, err = compile("detail", p.DetailPatterns); err != nil {
		return nil, err
	}
	if r.listing, err = compile("listing", p.ListingPatterns); err != nil {
		return nil, err
	}
	if r.skip, err = compile("skip", p.SkipPatterns); err != nil {
		return nil, err
	}
	return r, nil
}

// Classify returns the page type of a URL for a provider: detail patterns
// win over listing patterns, and the provider home page is a listing.
func Classify(p config.Provider, rawURL string) (database.PageType, error) {
	r, err := compileRules(p)
	if err != nil {
		return database.PageUnknown, err
	}
	return r.classify(rawURL), nil
}

func (r *rules) classify(rawURL string) database.PageType {
	u, err := url.Parse(rawURL)
	if err != nil {
		return database.PageUnknown
	}
	path := u.EscapedPath()
	if u.RawQuery != "" {
		path += "?" + u.RawQuery
	}
	for _, re := range r.detail {
		if re.MatchString(path) {
			return database.PageCourseDetail
		}
	}
	for _, re := range r.listing {
		if re.MatchString(path) {
			return database.PageListing
		}
	}
	if u.Path == "" || u.Path == "/" {
		return database.PageListing
	}
	return database.PageUnknown
}

// follow reports whether a normalized link should be queued.
func (r *rules) follow(link string) bool {
	if globalSkip.MatchString(link) {
		return false
	}
	u, err := url.Parse(link)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
		return false
	}
	if r.host != "" && strings.TrimPrefix(u.Hostname(), "www.") != r.host {
		return false
	}
	for _, re := range r.skip {
		if re.MatchString(link) {
			return false
		}
	}
	return true
}
