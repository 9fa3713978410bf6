package collector

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/mmcdole/gofeed"
)

// RawEntry 列表页上解析出的一条原始记录，尚未做正文抓取与 AI 摘要
type RawEntry struct {
	Title    string
	Excerpt  string
	URL      string
	DateHint string
	// 订阅源自带解析好的发布时间；HTML 源为空，由 DateHint 推断
	Published time.Time
}

// Source 抽象每一个数据源：列表地址、正文选择器，以及如何从列表页得到原始记录
type Source interface {
	Name() string
	URL() string
	BodySelector() string
	Collect(ctx context.Context, f Fetcher) ([]RawEntry, error)
}

// Selectors 站点页面结构的约定，站点改版时需要同步修改
type Selectors struct {
	Item    string
	Title   string
	Summary string
	Link    string
	Date    string
	// DateAttr 非空时从该属性读日期（如 time[datetime]），否则取文本
	DateAttr string
	Body     string
}

// HTMLSource 基于 CSS 选择器解析列表页的数据源
type HTMLSource struct {
	SiteName   string
	ListingURL string
	Selectors  Selectors
}

var _ Source = (*HTMLSource)(nil)

func (h *HTMLSource) Name() string         { return h.SiteName }
func (h *HTMLSource) URL() string          { return h.ListingURL }
func (h *HTMLSource) BodySelector() string { return h.Selectors.Body }

func (h *HTMLSource) Collect(ctx context.Context, f Fetcher) ([]RawEntry, error) {
	doc, err := f.Document(ctx, h.ListingURL)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", h.SiteName, err)
	}
	return h.Extract(doc), nil
}

// Extract 只做解析，不访问网络
func (h *HTMLSource) Extract(doc *goquery.Document) []RawEntry {
	sel := h.Selectors
	entries := make([]RawEntry, 0, 20)

	doc.Find(sel.Item).Each(func(i int, s *goquery.Selection) {
		title := cleanText(s.Find(sel.Title).First().Text())
		link := s.Find(sel.Link).First()
		href, _ := link.Attr("href")
		if href == "" {
			// 部分站点整条卡片本身就是 <a>
			href, _ = s.Attr("href")
		}
		href = h.absolute(strings.TrimSpace(href))
		if title == "" || href == "" {
			return
		}

		dateSel := s.Find(sel.Date).First()
		dateHint := cleanText(dateSel.Text())
		if sel.DateAttr != "" {
			if v, ok := dateSel.Attr(sel.DateAttr); ok && strings.TrimSpace(v) != "" {
				dateHint = strings.TrimSpace(v)
			}
		}

		entries = append(entries, RawEntry{
			Title:    title,
			Excerpt:  cleanText(s.Find(sel.Summary).First().Text()),
			URL:      href,
			DateHint: dateHint,
		})
	})

	return entries
}

func (h *HTMLSource) absolute(href string) string {
	if href == "" || strings.HasPrefix(href, "#") || strings.HasPrefix(href, "javascript:") {
		return ""
	}
	ref, err := url.Parse(href)
	if err != nil {
		return ""
	}
	if ref.IsAbs() {
		return ref.String()
	}
	base, err := url.Parse(h.ListingURL)
	if err != nil {
		return ""
	}
	return base.ResolveReference(ref).String()
}

// FeedSource RSS/Atom 形式的列表页
type FeedSource struct {
	SiteName string
	FeedURL  string
	Body     string
	// MaxItems 订阅源通常包含很多历史条目，只取最新的若干条
	MaxItems int
}

var _ Source = (*FeedSource)(nil)

func (f *FeedSource) Name() string         { return f.SiteName }
func (f *FeedSource) URL() string          { return f.FeedURL }
func (f *FeedSource) BodySelector() string { return f.Body }

func (f *FeedSource) Collect(ctx context.Context, fetcher Fetcher) ([]RawEntry, error) {
	raw, err := fetcher.Raw(ctx, f.FeedURL)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", f.SiteName, err)
	}
	return f.Parse(raw)
}

// Parse 将订阅源内容转换为原始记录
func (f *FeedSource) Parse(raw []byte) ([]RawEntry, error) {
	feed, err := gofeed.NewParser().ParseString(string(raw))
	if err != nil {
		return nil, fmt.Errorf("%s: parse feed: %w", f.SiteName, err)
	}

	entries := make([]RawEntry, 0, len(feed.Items))
	for _, it := range feed.Items {
		if f.MaxItems > 0 && len(entries) >= f.MaxItems {
			break
		}
		title := cleanText(it.Title)
		link := strings.TrimSpace(it.Link)
		if title == "" || link == "" {
			continue
		}

		entry := RawEntry{
			Title:    title,
			Excerpt:  htmlToText(it.Description),
			URL:      link,
			DateHint: it.Published,
		}
		if it.PublishedParsed != nil {
			entry.Published = *it.PublishedParsed
		} else if it.UpdatedParsed != nil {
			entry.Published = *it.UpdatedParsed
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

// htmlToText 订阅源的 description 常带 HTML 标签
func htmlToText(s string) string {
	s = strings.TrimSpace(s)
	if s == "" || !strings.Contains(s, "<") {
		return cleanText(s)
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(s))
	if err != nil {
		return cleanText(s)
	}
	return cleanText(doc.Text())
}

func cleanText(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
