package wiki

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/fyerfyer/rag-dataset/internal/cache"
)

// 请求相关常量
const (
	UserAgent        = "RAG-Dataset-Creator/1.0 (Educational Tool)"
	DefaultAPIFormat = "https://%s.wikipedia.org/w/api.php"
	DefaultLang      = "en"
	// MaxExtractLength 简介摘要的最大字符数
	MaxExtractLength = 500
	DefaultTimeout   = 30 * time.Second
	DefaultCacheTTL  = 24 * time.Hour
)

// Article 从维基百科获取的文章
type Article struct {
	Title   string `json:"title"`
	Content string `json:"content"` // HTML格式正文
	Lang    string `json:"lang"`
	Extract string `json:"extract"` // 纯文本简介
	URL     string `json:"url"`
}

// Fetcher 通过MediaWiki API获取文章
type Fetcher struct {
	httpClient  *http.Client
	apiFormat   string
	cache       cache.Cache
	cacheTTL    time.Duration
	maxAttempts int
	initialWait time.Duration
	maxWait     time.Duration
	logger      *logrus.Logger
}

// Option 获取器配置选项
type Option func(*Fetcher)

// NewFetcher 创建获取器，默认重试3次，等待2s起步最长10s
func NewFetcher(opts ...Option) *Fetcher {
	f := &Fetcher{
		httpClient:  &http.Client{Timeout: DefaultTimeout},
		apiFormat:   DefaultAPIFormat,
		cacheTTL:    DefaultCacheTTL,
		maxAttempts: 3,
		initialWait: 2 * time.Second,
		maxWait:     10 * time.Second,
		logger:      logrus.New(),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// WithHTTPClient 设置HTTP客户端
func WithHTTPClient(c *http.Client) Option {
	return func(f *Fetcher) {
		if c != nil {
			f.httpClient = c
		}
	}
}

// WithAPIFormat 设置API地址模板，%s替换为语言代码
func WithAPIFormat(format string) Option {
	return func(f *Fetcher) {
		if format != "" {
			f.apiFormat = format
		}
	}
}

// WithCache 设置文章缓存
func WithCache(c cache.Cache, ttl time.Duration) Option {
	return func(f *Fetcher) {
		f.cache = c
		if ttl > 0 {
			f.cacheTTL = ttl
		}
	}
}

// WithRetry 设置重试次数与退避时间
func WithRetry(attempts int, initialWait, maxWait time.Duration) Option {
	return func(f *Fetcher) {
		if attempts > 0 {
			f.maxAttempts = attempts
		}
		f.initialWait = initialWait
		f.maxWait = maxWait
	}
}

// WithLogger 设置日志记录器
func WithLogger(logger *logrus.Logger) Option {
	return func(f *Fetcher) {
		if logger != nil {
			f.logger = logger
		}
	}
}

var hostPattern = regexp.MustCompile(`^([a-z]{2,3})\.(?:m\.)?wikipedia\.org$`)

// ParseURL 解析文章链接，返回语言代码与标题
func ParseURL(raw string) (lang, title string, err error) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return "", "", fetchError(raw, "invalid Wikipedia URL", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", "", fetchError(raw, "invalid Wikipedia URL format", nil)
	}
	m := hostPattern.FindStringSubmatch(strings.ToLower(u.Hostname()))
	if m == nil {
		return "", "", fetchError(raw, "not a Wikipedia URL", nil)
	}
	if !strings.HasPrefix(u.Path, "/wiki/") {
		return "", "", fetchError(raw, "invalid Wikipedia URL format", nil)
	}
	title = strings.TrimSpace(strings.TrimPrefix(u.Path, "/wiki/"))
	if title == "" {
		return "", "", fetchError(raw, "missing article title", nil)
	}
	return m[1], title, nil
}

// IsWikipediaURL 是否为可解析的文章链接
func IsWikipediaURL(raw string) bool {
	_, _, err := ParseURL(raw)
	return err == nil
}

// Fetch 获取文章HTML正文和简介，命中缓存时不发请求
func (f *Fetcher) Fetch(ctx context.Context, rawURL string) (*Article, error) {
	lang, title, err := ParseURL(rawURL)
	if err != nil {
		return nil, err
	}

	key := cache.Key("wiki", lang, title)
	if f.cache != nil {
		var cached Article
		if found, err := cache.GetJSON(ctx, f.cache, key, &cached); err != nil {
			f.logger.WithError(err).Warn("Failed to read article cache")
		} else if found {
			f.logger.WithField("title", cached.Title).Debug("Article cache hit")
			cached.URL = rawURL
			return &cached, nil
		}
	}

	f.logger.WithField("url", rawURL).Info("Fetching Wikipedia article")
	var article *Article
	err = f.withRetry(ctx, func() error {
		var err error
		article, err = f.fetchOnce(ctx, rawURL, lang, title)
		return err
	})
	if err != nil {
		return nil, err
	}

	if f.cache != nil {
		if err := cache.SetJSON(ctx, f.cache, key, article, f.cacheTTL); err != nil {
			f.logger.WithError(err).Warn("Failed to write article cache")
		}
	}
	f.logger.WithFields(logrus.Fields{
		"title": article.Title,
		"chars": len(article.Content),
	}).Info("Successfully fetched article")
	return article, nil
}

func (f *Fetcher) withRetry(ctx context.Context, fn func() error) error {
	wait := f.initialWait
	var err error
	for attempt := 1; attempt <= f.maxAttempts; attempt++ {
		if err = fn(); err == nil {
			return nil
		}
		var fe *FetchError
		if !errors.As(err, &fe) || !fe.Temporary || attempt == f.maxAttempts {
			return err
		}

		f.logger.WithFields(logrus.Fields{
			"attempt": attempt,
			"wait":    wait.String(),
		}).WithError(err).Warn("Retrying Wikipedia request")
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return fetchError(fe.URL, "request canceled", ctx.Err())
		case <-timer.C:
		}
		wait *= 2
		if f.maxWait > 0 && wait > f.maxWait {
			wait = f.maxWait
		}
	}
	return err
}

type queryPage struct {
	Title   string `json:"title"`
	Extract string `json:"extract"`
	Missing bool   `json:"missing"`
	Invalid bool   `json:"invalid"`
}

type queryResponse struct {
	Error *struct {
		Code string `json:"code"`
		Info string `json:"info"`
	} `json:"error"`
	Query struct {
		Pages []queryPage `json:"pages"`
	} `json:"query"`
}

func (f *Fetcher) fetchOnce(ctx context.Context, rawURL, lang, title string) (*Article, error) {
	api := fmt.Sprintf(f.apiFormat, lang)

	params := url.Values{}
	params.Set("action", "query")
	params.Set("format", "json")
	params.Set("titles", title)
	params.Set("prop", "extracts|pageprops")
	params.Set("exlimit", "1")
	params.Set("exsectionformat", "wiki")
	params.Set("formatversion", "2")

	page, err := f.query(ctx, rawURL, api, params)
	if err != nil {
		return nil, err
	}
	if page.Missing || page.Invalid {
		return nil, fetchError(rawURL, "Wikipedia page not found: "+title, nil)
	}
	if strings.TrimSpace(page.Extract) == "" {
		return nil, fetchError(rawURL, "no content found in Wikipedia page", nil)
	}

	actual := page.Title
	if actual == "" {
		actual = title
	}

	// 简介失败不影响正文
	intro := url.Values{}
	intro.Set("action", "query")
	intro.Set("format", "json")
	intro.Set("titles", actual)
	intro.Set("prop", "extracts")
	intro.Set("exintro", "1")
	intro.Set("explaintext", "1")
	intro.Set("exsectionformat", "plain")
	intro.Set("formatversion", "2")
	extract := ""
	if p, err := f.query(ctx, rawURL, api, intro); err != nil {
		f.logger.WithError(err).Warn("Failed to fetch article intro")
	} else {
		extract = truncateRunes(p.Extract, MaxExtractLength)
	}

	return &Article{
		Title:   actual,
		Content: page.Extract,
		Lang:    lang,
		Extract: extract,
		URL:     rawURL,
	}, nil
}

func (f *Fetcher) query(ctx context.Context, rawURL, api string, params url.Values) (*queryPage, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, api+"?"+params.Encode(), nil)
	if err != nil {
		return nil, fetchError(rawURL, "failed to build request", err)
	}
	req.Header.Set("User-Agent", UserAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := f.httpClient.Do(req)
	if err != nil {
		fe := fetchError(rawURL, "network error fetching Wikipedia page", err)
		fe.Temporary = ctx.Err() == nil
		return nil, fe
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		fe := fetchError(rawURL, "failed to read response", err)
		fe.Temporary = true
		return nil, fe
	}
	if resp.StatusCode != http.StatusOK {
		fe := fetchError(rawURL, fmt.Sprintf("unexpected status %d", resp.StatusCode), nil)
		fe.Temporary = resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500
		return nil, fe
	}

	var data queryResponse
	if err := json.Unmarshal(body, &data); err != nil {
		return nil, fetchError(rawURL, "invalid API response", err)
	}
	if data.Error != nil {
		return nil, fetchError(rawURL, fmt.Sprintf("MediaWiki API error: %s: %s", data.Error.Code, data.Error.Info), nil)
	}
	if len(data.Query.Pages) == 0 {
		return nil, fetchError(rawURL, "no pages found in API response", nil)
	}
	return &data.Query.Pages[0], nil
}

func truncateRunes(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
