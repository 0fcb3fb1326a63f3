// Package web downloads URLs for ingestion. HTML pages are reduced to
// markdown text, other content types are returned as raw bytes.
package web

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/kirillkom/knowledge-ingest/internal/core/domain"
	"github.com/kirillkom/knowledge-ingest/internal/infrastructure/docconvert"
	"github.com/kirillkom/knowledge-ingest/internal/infrastructure/resilience"
)

const (
	defaultMaxBodyBytes = 50 << 20
	defaultUserAgent    = "knowledge-ingest/1.0"
	defaultOEmbedURL    = "https://www.youtube.com/oembed"
)

type Config struct {
	Timeout           time.Duration
	RequestsPerSecond float64
	Burst             int
	MaxBodyBytes      int64
	UserAgent         string
	// OEmbedURL overrides the YouTube oEmbed endpoint.
	OEmbedURL string
}

type Fetcher struct {
	client    *http.Client
	limiter   *rate.Limiter
	executor  *resilience.Executor
	maxBody   int64
	userAgent string
	oembedURL string
}

func NewFetcher(cfg Config, executor *resilience.Executor) *Fetcher {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.RequestsPerSecond <= 0 {
		cfg.RequestsPerSecond = 5
	}
	if cfg.Burst <= 0 {
		cfg.Burst = 10
	}
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = defaultMaxBodyBytes
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = defaultUserAgent
	}
	if cfg.OEmbedURL == "" {
		cfg.OEmbedURL = defaultOEmbedURL
	}
	return &Fetcher{
		client:    &http.Client{Timeout: cfg.Timeout},
		limiter:   rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), cfg.Burst),
		executor:  executor,
		maxBody:   cfg.MaxBodyBytes,
		userAgent: cfg.UserAgent,
		oembedURL: cfg.OEmbedURL,
	}
}

func (f *Fetcher) Fetch(ctx context.Context, rawURL string, sourceType string) (*domain.FetchedResource, error) {
	parsed, err := url.Parse(rawURL)
	if err != nil || (parsed.Scheme != "http" && parsed.Scheme != "https") {
		return nil, domain.WrapError(domain.ErrInvalidInput, "fetch url", fmt.Errorf("unsupported url %q", rawURL))
	}
	if sourceType == "youtube" || IsYouTubeURL(parsed) {
		return f.fetchYouTube(ctx, rawURL)
	}

	resp, err := f.get(ctx, rawURL)
	if err != nil {
		return nil, err
	}
	res := &domain.FetchedResource{
		URL:         rawURL,
		FinalURL:    resp.finalURL,
		ContentType: resp.contentType,
		SourceType:  sourceType,
		Metadata:    domain.Metadata{"http_status": resp.status},
	}
	if !isHTML(resp.contentType) {
		res.Body = resp.body
		return res, nil
	}

	page, err := docconvert.HTMLToMarkdown(bytes.NewReader(resp.body))
	if err != nil {
		return nil, domain.WrapError(domain.ErrConversionFailed, "parse page", err)
	}
	res.Title = page.Title
	res.Text = page.Markdown
	if strings.TrimSpace(res.Text) == "" {
		res.Text = page.Description
	}
	if page.Description != "" {
		res.Metadata["description"] = page.Description
	}
	res.Metadata["heading_count"] = page.Headings
	res.Metadata["link_count"] = page.Links
	return res, nil
}

type oembedResponse struct {
	Title        string `json:"title"`
	AuthorName   string `json:"author_name"`
	AuthorURL    string `json:"author_url"`
	ThumbnailURL string `json:"thumbnail_url"`
}

// fetchYouTube builds a text document from the video's oEmbed record and the
// watch page description. Transcripts are not downloaded.
func (f *Fetcher) fetchYouTube(ctx context.Context, rawURL string) (*domain.FetchedResource, error) {
	q := url.Values{"url": {rawURL}, "format": {"json"}}
	resp, err := f.get(ctx, f.oembedURL+"?"+q.Encode())
	if err != nil {
		return nil, fmt.Errorf("youtube oembed: %w", err)
	}
	var info oembedResponse
	if err := json.Unmarshal(resp.body, &info); err != nil {
		return nil, fmt.Errorf("decode oembed: %w", err)
	}

	description := ""
	if page, err := f.get(ctx, rawURL); err == nil && isHTML(page.contentType) {
		if doc, err := docconvert.HTMLToMarkdown(bytes.NewReader(page.body)); err == nil {
			description = doc.Description
		}
	}

	var b strings.Builder
	fmt.Fprintf(&b, "# %s\n\n", info.Title)
	if info.AuthorName != "" {
		fmt.Fprintf(&b, "Channel: %s\n\n", info.AuthorName)
	}
	if description != "" {
		b.WriteString(description)
		b.WriteString("\n")
	}

	meta := domain.Metadata{"video_url": rawURL}
	if info.AuthorName != "" {
		meta["channel"] = info.AuthorName
	}
	if info.AuthorURL != "" {
		meta["channel_url"] = info.AuthorURL
	}
	if info.ThumbnailURL != "" {
		meta["thumbnail_url"] = info.ThumbnailURL
	}
	if id := YouTubeVideoID(rawURL); id != "" {
		meta["video_id"] = id
	}
	return &domain.FetchedResource{
		URL:         rawURL,
		FinalURL:    rawURL,
		ContentType: "text/markdown",
		Title:       info.Title,
		Text:        strings.TrimSpace(b.String()),
		SourceType:  "youtube",
		Metadata:    meta,
	}, nil
}

type response struct {
	status      int
	finalURL    string
	contentType string
	body        []byte
}

func (f *Fetcher) get(ctx context.Context, rawURL string) (response, error) {
	var out response
	call := func(ctx context.Context) error {
		if err := f.limiter.Wait(ctx); err != nil {
			return err
		}
		resp, err := f.do(ctx, rawURL)
		if err != nil {
			return err
		}
		out = resp
		return nil
	}

	if err := f.executor.Execute(ctx, "web.fetch", call, classifyFetchError); err != nil {
		return response{}, resilience.AsTemporary("fetch "+rawURL, err, classifyFetchError)
	}
	return out, nil
}

func (f *Fetcher) do(ctx context.Context, rawURL string) (response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return response{}, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", f.userAgent)

	resp, err := f.client.Do(req)
	if err != nil {
		return response{}, fmt.Errorf("get %s: %w", rawURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return response{}, &StatusError{URL: rawURL, StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(snippet))}
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, f.maxBody+1))
	if err != nil {
		return response{}, fmt.Errorf("read %s: %w", rawURL, err)
	}
	if int64(len(body)) > f.maxBody {
		return response{}, domain.WrapError(domain.ErrInvalidInput, "read body", fmt.Errorf("%s exceeds %d bytes", rawURL, f.maxBody))
	}
	return response{
		status:      resp.StatusCode,
		finalURL:    resp.Request.URL.String(),
		contentType: resp.Header.Get("Content-Type"),
		body:        body,
	}, nil
}

func isHTML(contentType string) bool {
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return false
	}
	return mediaType == "text/html" || mediaType == "application/xhtml+xml"
}

