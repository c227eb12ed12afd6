// Package crawl fetches a single web page through headless Chrome and returns
// its text, raw HTML, and a markdown rendering. No recursion, no link
// following. Crawl never returns an error to callers: every failure is folded
// into the result envelope.
package crawl

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	md "github.com/JohannesKaufmann/html-to-markdown"
	"github.com/chromedp/chromedp"
)

const crawlTimeout = 30 * time.Second

// Result is the crawl envelope. Success is false when the page could not be
// fetched or produced no content.
type Result struct {
	Text     string `json:"text,omitempty"`
	HTML     string `json:"html,omitempty"`
	Markdown string `json:"markdown,omitempty"`
	Success  bool   `json:"success"`
	Error    string `json:"error,omitempty"`
}

type page struct {
	text string
	html string
}

// Service runs single-page crawls.
type Service struct {
	converter *md.Converter

	// fetch is swappable in tests.
	fetch func(ctx context.Context, target string) (page, error)
}

func NewService() *Service {
	s := &Service{
		converter: md.NewConverter("", true, nil),
	}
	s.fetch = s.fetchWithChrome
	return s
}

// ValidateURL reports whether the target is an absolute http(s) URL.
func ValidateURL(target string) error {
	u, err := url.Parse(strings.TrimSpace(target))
	if err != nil {
		return fmt.Errorf("invalid url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("invalid url: scheme must be http or https")
	}
	if u.Host == "" {
		return fmt.Errorf("invalid url: missing host")
	}
	return nil
}

// Crawl fetches the target page. Errors and empty pages both come back as
// {success:false, error:"No content found"}.
func (s *Service) Crawl(ctx context.Context, target string) Result {
	ctx, cancel := context.WithTimeout(ctx, crawlTimeout)
	defer cancel()

	p, err := s.fetch(ctx, target)
	if err != nil {
		return Result{Success: false, Error: "No content found"}
	}
	if strings.TrimSpace(p.text) == "" && strings.TrimSpace(p.html) == "" {
		return Result{Success: false, Error: "No content found"}
	}

	markdown, err := s.converter.ConvertString(p.html)
	if err != nil {
		markdown = ""
	}

	return Result{
		Text:     p.text,
		HTML:     p.html,
		Markdown: strings.TrimSpace(markdown),
		Success:  true,
	}
}

func (s *Service) fetchWithChrome(ctx context.Context, target string) (page, error) {
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", true),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("no-sandbox", true),
		chromedp.Flag("disable-dev-shm-usage", true),
	)

	allocCtx, cancel := chromedp.NewExecAllocator(ctx, opts...)
	defer cancel()

	taskCtx, cancel := chromedp.NewContext(allocCtx)
	defer cancel()

	var p page
	err := chromedp.Run(taskCtx,
		chromedp.Navigate(target),
		chromedp.WaitReady("body"),
		chromedp.Text("body", &p.text, chromedp.ByQuery),
		chromedp.OuterHTML("html", &p.html, chromedp.ByQuery),
	)
	if err != nil {
		return page{}, fmt.Errorf("crawl %s: %w", target, err)
	}
	return p, nil
}
