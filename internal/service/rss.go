package service

import (
	"context"
	"encoding/xml"
	"fmt"
	"log/slog"
	"mime"
	"net/url"
	"path"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"golang.org/x/sync/errgroup"

	"portal-edge/internal/config"
	"portal-edge/internal/model"
)

// feedPath is both the feed route and its revalidation tag.
const feedPath = "/rss.xml"

// staleWhileRevalidate is the stale window advertised on the feed, in seconds.
const staleWhileRevalidate = 86400

const maxDescriptionRunes = 300

// FeedGenerator renders the RSS 2.0 feed of recent posts.
type FeedGenerator struct {
	fetcher      *Fetcher
	resolver     *config.Resolver
	postsPath    string
	settingsPath string
	limit        int
	revalidate   time.Duration
	siteURL      string
	title        string
	description  string
	language     string
	logger       *slog.Logger
	now          func() time.Time
}

// NewFeedGenerator creates a FeedGenerator.
func NewFeedGenerator(f *Fetcher, r *config.Resolver, cfg *config.Config, logger *slog.Logger) *FeedGenerator {
	return &FeedGenerator{
		fetcher:      f,
		resolver:     r,
		postsPath:    cfg.Backend.PostsPath,
		settingsPath: cfg.Backend.SettingsPath,
		limit:        cfg.RSS.Limit,
		revalidate:   time.Duration(cfg.RSS.RevalidateSeconds) * time.Second,
		siteURL:      NormalizeSiteURL(cfg.Site.URL, cfg.Site.DefaultURL),
		title:        cfg.RSS.Title,
		description:  cfg.RSS.Description,
		language:     cfg.RSS.Language,
		logger:       logger.With("component", "feed"),
		now:          time.Now,
	}
}

// CacheControl returns the Cache-Control value for the feed. Its s-maxage is
// the same window used to cache the feed's backend fetches.
func (g *FeedGenerator) CacheControl() string {
	return fmt.Sprintf("public, s-maxage=%d, stale-while-revalidate=%d", int(g.revalidate.Seconds()), staleWhileRevalidate)
}

// Render fetches posts and settings and returns the feed document. Fetch
// failures degrade to an empty item list and default channel metadata.
func (g *FeedGenerator) Render(ctx context.Context) ([]byte, error) {
	var (
		posts    []model.Post
		settings model.Settings
	)

	var eg errgroup.Group
	eg.Go(func() error {
		p, err := FetchJSON[[]model.Post](ctx, g.fetcher, g.postsPath, FetchOptions{
			Query:      url.Values{"per_page": {strconv.Itoa(g.limit)}},
			Revalidate: g.revalidate,
			Tags:       []string{feedPath, "/posts"},
		})
		if err != nil {
			g.logger.Warn("feed posts unavailable", "err", err)
			return nil
		}
		posts = p
		return nil
	})
	eg.Go(func() error {
		s, err := FetchJSON[model.Settings](ctx, g.fetcher, g.settingsPath, FetchOptions{
			Revalidate: g.revalidate,
			Tags:       []string{feedPath, "/"},
		})
		if err != nil {
			g.logger.Warn("feed settings unavailable", "err", err)
			return nil
		}
		settings = s
		return nil
	})
	_ = eg.Wait()

	if len(posts) > g.limit {
		posts = posts[:g.limit]
	}
	return g.build(posts, settings)
}

type rssDocument struct {
	XMLName xml.Name   `xml:"rss"`
	Version string     `xml:"version,attr"`
	Atom    string     `xml:"xmlns:atom,attr"`
	Channel rssChannel `xml:"channel"`
}

type rssChannel struct {
	Title         string    `xml:"title"`
	Link          string    `xml:"link"`
	Description   string    `xml:"description"`
	Language      string    `xml:"language,omitempty"`
	LastBuildDate string    `xml:"lastBuildDate"`
	Generator     string    `xml:"generator"`
	AtomLink      atomLink  `xml:"atom:link"`
	TTL           int       `xml:"ttl"`
	Items         []rssItem `xml:"item"`
}

type atomLink struct {
	Href string `xml:"href,attr"`
	Rel  string `xml:"rel,attr"`
	Type string `xml:"type,attr"`
}

type rssItem struct {
	Title       string        `xml:"title"`
	Link        string        `xml:"link"`
	GUID        rssGUID       `xml:"guid"`
	Description string        `xml:"description,omitempty"`
	Category    string        `xml:"category,omitempty"`
	PubDate     string        `xml:"pubDate,omitempty"`
	Enclosure   *rssEnclosure `xml:"enclosure,omitempty"`
}

type rssGUID struct {
	IsPermaLink bool   `xml:"isPermaLink,attr"`
	Value       string `xml:",chardata"`
}

type rssEnclosure struct {
	URL    string `xml:"url,attr"`
	Type   string `xml:"type,attr"`
	Length int    `xml:"length,attr"`
}

func (g *FeedGenerator) build(posts []model.Post, settings model.Settings) ([]byte, error) {
	title := firstNonEmpty(settings.SiteName, g.title)
	description := firstNonEmpty(settings.SiteDescription, g.description, title)
	language := firstNonEmpty(settings.SiteLanguage, g.language)

	doc := rssDocument{
		Version: "2.0",
		Atom:    "http://www.w3.org/2005/Atom",
		Channel: rssChannel{
			Title:         title,
			Link:          g.siteURL,
			Description:   description,
			Language:      language,
			LastBuildDate: g.now().UTC().Format(time.RFC1123Z),
			Generator:     "portal-edge",
			AtomLink:      atomLink{Href: g.siteURL + feedPath, Rel: "self", Type: "application/rss+xml"},
			TTL:           int(g.revalidate.Minutes()),
			Items:         make([]rssItem, 0, len(posts)),
		},
	}

	for _, p := range posts {
		doc.Channel.Items = append(doc.Channel.Items, g.item(p))
	}

	out, err := xml.MarshalIndent(doc, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal feed: %w", err)
	}
	return append([]byte(xml.Header), out...), nil
}

func (g *FeedGenerator) item(p model.Post) rssItem {
	ref := p.Slug
	if ref == "" {
		ref = p.ID.String()
	}
	link := g.siteURL + "/posts/" + url.PathEscape(ref)

	it := rssItem{
		Title:       p.Title,
		Link:        link,
		GUID:        rssGUID{IsPermaLink: true, Value: link},
		Description: truncateRunes(firstNonEmpty(p.Excerpt, p.Content), maxDescriptionRunes),
		Category:    p.CategoryName,
		PubDate:     pubDate(p.CreatedAt),
	}

	if img, ok := StorageURL(p.Image, g.resolver.IsProduction()); ok {
		if strings.HasPrefix(img, "/") {
			img = g.siteURL + img
		}
		if ct := mime.TypeByExtension(path.Ext(strings.SplitN(img, "?", 2)[0])); ct != "" {
			it.Enclosure = &rssEnclosure{URL: img, Type: ct}
		}
	}
	return it
}

// NormalizeSiteURL returns raw as a scheme://host[/path] URL without a
// trailing slash, adding https:// when no scheme is given. Malformed input
// yields def (normalised the same way).
func NormalizeSiteURL(raw, def string) string {
	if s, ok := normalizeSiteURL(raw); ok {
		return s
	}
	if s, ok := normalizeSiteURL(def); ok {
		return s
	}
	return "http://localhost:3000"
}

func normalizeSiteURL(raw string) (string, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", false
	}
	if !strings.Contains(raw, "://") {
		raw = "https://" + raw
	}
	u, err := url.Parse(raw)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return "", false
	}
	u.RawQuery = ""
	u.Fragment = ""
	return strings.TrimRight(u.String(), "/"), true
}

var pubDateLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02",
}

func pubDate(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return ""
	}
	for _, layout := range pubDateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC().Format(time.RFC1123Z)
		}
	}
	return ""
}

func truncateRunes(s string, n int) string {
	s = strings.TrimSpace(s)
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	r := []rune(s)
	return strings.TrimSpace(string(r[:n])) + "…"
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
