package tools

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/net/html"
)

const (
	webUserAgent      = "Mozilla/5.0 (compatible; architect/1.0)"
	defaultDuckDuckGo = "https://html.duckduckgo.com/html/"
	defaultStackExAPI = "https://api.stackexchange.com/2.3/search/advanced"
	defaultFetchMax   = 120000
	fetchSummaryChars = 2000
	maxFetchBodyBytes = 5 << 20
	webSearchTimeout  = 20 * time.Second
	webFetchTimeout   = 25 * time.Second
)

// Search engines supported by web_search
const (
	EngineDuckDuckGo    = "duckduckgo"
	EngineStackExchange = "stackexchange"
)

// WebSearchConfig configures web_search. Endpoints are overridable for tests.
type WebSearchConfig struct {
	Engine           string
	DuckDuckGoURL    string
	StackExchangeURL string
	Client           *http.Client
}

// WebSearchTool searches the web and returns titles, links and snippets
type WebSearchTool struct {
	cfg WebSearchConfig
}

// NewWebSearchTool creates the web_search tool
func NewWebSearchTool(cfg WebSearchConfig) *WebSearchTool {
	if cfg.Engine == "" {
		cfg.Engine = EngineDuckDuckGo
	}
	if cfg.DuckDuckGoURL == "" {
		cfg.DuckDuckGoURL = defaultDuckDuckGo
	}
	if cfg.StackExchangeURL == "" {
		cfg.StackExchangeURL = defaultStackExAPI
	}
	if cfg.Client == nil {
		cfg.Client = &http.Client{Timeout: webSearchTimeout}
	}
	return &WebSearchTool{cfg: cfg}
}

// Name returns the tool name
func (t *WebSearchTool) Name() string { return "web_search" }

// Description returns the tool description
func (t *WebSearchTool) Description() string {
	return "Search the web (DuckDuckGo, or StackOverflow via the StackExchange API) and return the top results with links."
}

// Schema returns the JSON schema
func (t *WebSearchTool) Schema() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"query": {"type": "string", "minLength": 1},
			"top_k": {"type": "integer", "minimum": 1, "maximum": 20, "default": 5},
			"engine": {"type": "string", "enum": ["duckduckgo", "stackexchange"]}
		},
		"required": ["query"]
	}`)
}

type webSearchInput struct {
	Query  string `json:"query"`
	TopK   int    `json:"top_k"`
	Engine string `json:"engine"`
}

type webSearchResult struct {
	Title   string `json:"title"`
	URL     string `json:"url"`
	Snippet string `json:"snippet,omitempty"`
}

// Execute runs the search
func (t *WebSearchTool) Execute(ctx context.Context, input json.RawMessage) (*Result, error) {
	in, err := decodeArgs[webSearchInput](input)
	if err != nil {
		return nil, err
	}
	if in.TopK <= 0 {
		in.TopK = 5
	}
	engine := in.Engine
	if engine == "" {
		engine = t.cfg.Engine
	}

	var results []webSearchResult
	switch engine {
	case EngineStackExchange:
		results, err = t.searchStackExchange(ctx, in.Query, in.TopK)
	default:
		results, err = t.searchDuckDuckGo(ctx, in.Query, in.TopK)
	}
	if err != nil {
		return ErrorResult("web search failed: %v", err), nil
	}

	var sb strings.Builder
	if len(results) == 0 {
		sb.WriteString("No results for " + in.Query)
	}
	for i, r := range results {
		if i > 0 {
			sb.WriteString("\n")
		}
		fmt.Fprintf(&sb, "• %s\n  %s", r.Title, r.URL)
		if r.Snippet != "" {
			fmt.Fprintf(&sb, "\n  %s", r.Snippet)
		}
	}
	return JSONResult(true, sb.String(), map[string]any{
		"ok":      true,
		"engine":  engine,
		"query":   in.Query,
		"results": results,
	}), nil
}

func (t *WebSearchTool) get(ctx context.Context, rawURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", webUserAgent)

	resp, err := t.cfg.Client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxFetchBodyBytes))
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("HTTP %d", resp.StatusCode)
	}
	return body, nil
}

func (t *WebSearchTool) searchDuckDuckGo(ctx context.Context, query string, limit int) ([]webSearchResult, error) {
	body, err := t.get(ctx, t.cfg.DuckDuckGoURL+"?q="+url.QueryEscape(query))
	if err != nil {
		return nil, err
	}
	return parseDuckDuckGoHTML(body, limit)
}

// parseDuckDuckGoHTML reads results from the DuckDuckGo HTML endpoint.
// Result links are redirects carrying the target in the uddg parameter.
func parseDuckDuckGoHTML(body []byte, limit int) ([]webSearchResult, error) {
	doc, err := html.Parse(bytes.NewReader(body))
	if err != nil {
		return nil, err
	}

	containers := findAll(doc, func(n *html.Node) bool { return hasClass(n, "result__body") || hasClass(n, "result") })
	if len(containers) == 0 {
		containers = []*html.Node{doc}
	}

	var results []webSearchResult
	seen := make(map[string]bool)
	for _, c := range containers {
		links := findAll(c, func(n *html.Node) bool { return hasClass(n, "result__a") })
		for _, a := range links {
			if len(results) >= limit {
				return results, nil
			}
			href := decodeDuckDuckGoLink(getAttr(a, "href"))
			title := textContent(a)
			if href == "" || title == "" || seen[href] {
				continue
			}
			seen[href] = true
			r := webSearchResult{Title: title, URL: href}
			if len(links) == 1 {
				if s := findAll(c, func(n *html.Node) bool { return hasClass(n, "result__snippet") }); len(s) > 0 {
					r.Snippet = textContent(s[0])
				}
			}
			results = append(results, r)
		}
	}
	return results, nil
}

func decodeDuckDuckGoLink(href string) string {
	if href == "" {
		return ""
	}
	if strings.HasPrefix(href, "//") {
		href = "https:" + href
	}
	u, err := url.Parse(href)
	if err != nil {
		return href
	}
	if target := u.Query().Get("uddg"); target != "" {
		return target
	}
	return href
}

func (t *WebSearchTool) searchStackExchange(ctx context.Context, query string, limit int) ([]webSearchResult, error) {
	params := url.Values{}
	params.Set("order", "desc")
	params.Set("sort", "relevance")
	params.Set("site", "stackoverflow")
	params.Set("pagesize", fmt.Sprint(limit))
	params.Set("q", query)

	body, err := t.get(ctx, t.cfg.StackExchangeURL+"?"+params.Encode())
	if err != nil {
		return nil, err
	}
	var data struct {
		Items []struct {
			Title      string `json:"title"`
			Link       string `json:"link"`
			IsAnswered bool   `json:"is_answered"`
			Score      int    `json:"score"`
		} `json:"items"`
	}
	if err := json.Unmarshal(body, &data); err != nil {
		return nil, fmt.Errorf("decode StackExchange response: %w", err)
	}

	results := make([]webSearchResult, 0, len(data.Items))
	for _, item := range data.Items {
		if len(results) >= limit {
			break
		}
		snippet := fmt.Sprintf("score %d", item.Score)
		if item.IsAnswered {
			snippet += ", answered"
		}
		results = append(results, webSearchResult{
			Title:   html.UnescapeString(item.Title),
			URL:     item.Link,
			Snippet: snippet,
		})
	}
	return results, nil
}

// WebFetchTool downloads a page and returns its readable text
type WebFetchTool struct {
	client       *http.Client
	allowPrivate bool
}

// NewWebFetchTool creates the web_fetch tool. Private and loopback
// addresses are refused unless allowPrivate is set.
func NewWebFetchTool(client *http.Client, allowPrivate bool) *WebFetchTool {
	if client == nil {
		client = &http.Client{Timeout: webFetchTimeout}
	}
	return &WebFetchTool{client: client, allowPrivate: allowPrivate}
}

// Name returns the tool name
func (t *WebFetchTool) Name() string { return "web_fetch" }

// Description returns the tool description
func (t *WebFetchTool) Description() string {
	return "Fetch a page by URL and return its title and cleaned text, cut at max_chars."
}

// Schema returns the JSON schema
func (t *WebFetchTool) Schema() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"url": {"type": "string", "minLength": 1},
			"max_chars": {"type": "integer", "minimum": 1, "default": 120000}
		},
		"required": ["url"]
	}`)
}

type webFetchInput struct {
	URL      string `json:"url"`
	MaxChars int    `json:"max_chars"`
}

// Execute fetches the page
func (t *WebFetchTool) Execute(ctx context.Context, input json.RawMessage) (*Result, error) {
	in, err := decodeArgs[webFetchInput](input)
	if err != nil {
		return nil, err
	}
	if in.MaxChars <= 0 {
		in.MaxChars = defaultFetchMax
	}
	if err := validateFetchURL(in.URL, t.allowPrivate); err != nil {
		return ErrorResult("%v", err), nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, in.URL, nil)
	if err != nil {
		return ErrorResult("invalid URL: %v", err), nil
	}
	req.Header.Set("User-Agent", webUserAgent)

	resp, err := t.client.Do(req)
	if err != nil {
		return ErrorResult("fetch failed: %v", err), nil
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxFetchBodyBytes))
	if err != nil {
		return ErrorResult("read body: %v", err), nil
	}

	page := ExtractPage(body, resp.Header.Get("Content-Type"))
	if page.Title == "" {
		page.Title = in.URL
	}
	text := []rune(page.Text)
	if len(text) > in.MaxChars {
		text = text[:in.MaxChars]
	}
	content := string(text)

	summary := fmt.Sprintf("[%d] %s\n%s\n\n%s", resp.StatusCode, page.Title, in.URL, truncate(content, fetchSummaryChars))
	ok := resp.StatusCode < 400
	return JSONResult(ok, summary, map[string]any{
		"ok":      ok,
		"status":  resp.StatusCode,
		"title":   page.Title,
		"url":     in.URL,
		"content": content,
	}), nil
}

func validateFetchURL(rawURL string, allowPrivate bool) error {
	u, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("invalid URL: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("blocked: scheme %q not allowed (only http/https)", u.Scheme)
	}
	hostname := u.Hostname()
	if hostname == "" {
		return fmt.Errorf("blocked: empty hostname")
	}
	if allowPrivate {
		return nil
	}

	ips, err := net.LookupIP(hostname)
	if err != nil {
		return fmt.Errorf("DNS resolution failed for %q: %w", hostname, err)
	}
	for _, ip := range ips {
		if ip.IsLoopback() || ip.IsPrivate() || ip.IsLinkLocalUnicast() || ip.IsUnspecified() {
			return fmt.Errorf("blocked: %q resolves to private/internal IP %s", hostname, ip)
		}
	}
	return nil
}
