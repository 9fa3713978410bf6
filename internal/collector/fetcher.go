package collector

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/gocolly/colly/v2"
)

const (
	// 不带选择器时正文最多保留的字符数
	maxBodyChars     = 3000
	maxBodyBytes     = 4 << 20 // 4MB，防止超大 HTML
	defaultTimeout   = 15 * time.Second
	defaultBrowserUA = "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"
)

// ErrNoContent 页面可访问但选择器没有匹配到任何文本
var ErrNoContent = errors.New("no content matched")

// FetchResult 正文抓取结果：成功时 Text 非空，失败时 Err 说明原因
type FetchResult struct {
	Text string
	Err  error
}

func (r FetchResult) OK() bool {
	return r.Err == nil && r.Text != ""
}

// Fetcher 抽象页面抓取：列表页失败需要返回错误，正文抓取失败只降级
type Fetcher interface {
	Raw(ctx context.Context, url string) ([]byte, error)
	Document(ctx context.Context, url string) (*goquery.Document, error)
	Text(ctx context.Context, url, selector string) FetchResult
}

// CollyFetcher 基于 colly 的实现；每次请求新建 collector，避免回调在并发请求间互相干扰
type CollyFetcher struct {
	userAgent string
	timeout   time.Duration
}

var _ Fetcher = (*CollyFetcher)(nil)

func NewCollyFetcher(userAgent string, timeout time.Duration) *CollyFetcher {
	if userAgent == "" {
		userAgent = defaultBrowserUA
	}
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &CollyFetcher{userAgent: userAgent, timeout: timeout}
}

func (f *CollyFetcher) Raw(ctx context.Context, url string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	c := colly.NewCollector(
		colly.UserAgent(f.userAgent),
		colly.AllowURLRevisit(),
		colly.MaxBodySize(maxBodyBytes),
	)
	c.SetRequestTimeout(f.timeout)

	var body []byte
	c.OnRequest(func(r *colly.Request) {
		if ctx.Err() != nil {
			r.Abort()
			return
		}
		r.Headers.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
	})
	c.OnResponse(func(r *colly.Response) {
		body = r.Body
	})

	if err := c.Visit(url); err != nil {
		return nil, fmt.Errorf("visit %s: %w", url, err)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if body == nil {
		return nil, fmt.Errorf("visit %s: empty response", url)
	}
	return body, nil
}

func (f *CollyFetcher) Document(ctx context.Context, url string) (*goquery.Document, error) {
	body, err := f.Raw(ctx, url)
	if err != nil {
		return nil, err
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", url, err)
	}
	return doc, nil
}

// Text 抓取正文：有选择器时取匹配元素的文本，否则取整个 body 并截断到 3000 字符
func (f *CollyFetcher) Text(ctx context.Context, url, selector string) FetchResult {
	doc, err := f.Document(ctx, url)
	if err != nil {
		return FetchResult{Err: err}
	}
	return TextFromDocument(doc, selector)
}

// TextFromDocument 拆出来方便单测
func TextFromDocument(doc *goquery.Document, selector string) FetchResult {
	var text string
	if selector != "" {
		text = trimWhitespace(doc.Find(selector).Text())
	} else {
		text = truncateRunes(trimWhitespace(doc.Find("body").Text()), maxBodyChars)
	}
	if text == "" {
		return FetchResult{Err: ErrNoContent}
	}
	return FetchResult{Text: text}
}

// trimWhitespace 保留行结构（描述规范化按行切分），去掉空行与行内多余空白
func trimWhitespace(s string) string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	s = strings.ReplaceAll(s, "\r", "\n")
	lines := strings.Split(s, "\n")
	out := lines[:0]
	for _, line := range lines {
		line = strings.Join(strings.Fields(line), " ")
		if line != "" {
			out = append(out, line)
		}
	}
	return strings.Join(out, "\n")
}

// truncateRunes 按 rune 截断，避免多字节字符被截成半个
func truncateRunes(s string, limit int) string {
	rs := []rune(s)
	if len(rs) <= limit {
		return s
	}
	return string(rs[:limit])
}
