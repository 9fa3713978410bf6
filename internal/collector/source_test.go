package collector

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustDoc(t *testing.T, html string) *goquery.Document {
	t.Helper()
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	require.NoError(t, err)
	return doc
}

const hackerNewsFixture = `<html><body>
<div class="body-post">
  <a class="story-link" href="https://thehackernews.com/2026/10/critical-widget-rce.html">
    <h2 class="home-title">Critical RCE in   Widget Server</h2>
    <div class="item-label"><span class="h-datetime">Oct 16, 2026</span></div>
    <div class="home-desc">Attackers are exploiting a flaw in Widget Server.</div>
  </a>
</div>
<div class="body-post">
  <a class="story-link" href="/2026/10/phishing.html">
    <h2 class="home-title">Phishing kit targets banks</h2>
    <div class="home-desc">A new kit.</div>
  </a>
</div>
<div class="body-post"><div class="home-desc">advert without a title</div></div>
</body></html>`

func TestHackerNewsExtract(t *testing.T) {
	entries := TheHackerNews.Extract(mustDoc(t, hackerNewsFixture))
	require.Len(t, entries, 2)

	assert.Equal(t, "Critical RCE in Widget Server", entries[0].Title)
	assert.Equal(t, "https://thehackernews.com/2026/10/critical-widget-rce.html", entries[0].URL)
	assert.Equal(t, "Attackers are exploiting a flaw in Widget Server.", entries[0].Excerpt)
	assert.Equal(t, "Oct 16, 2026", entries[0].DateHint)
	assert.True(t, entries[0].Published.IsZero())

	// 相对链接按列表页地址补全
	assert.Equal(t, "https://thehackernews.com/2026/10/phishing.html", entries[1].URL)
	assert.Equal(t, "", entries[1].DateHint)
}

const bleepingFixture = `<html><body>
<ul id="bc-home-news-main-wrap">
  <li>
    <div class="bc_latest_news_text">
      <h4><a href="https://www.bleepingcomputer.com/news/security/ransomware-gang-leaks-data/">Ransomware gang leaks data</a></h4>
      <p>The gang published 2TB of files.</p>
      <ul><li class="bc_news_author">Staff</li><li class="bc_news_date">October 15, 2026</li></ul>
    </div>
  </li>
  <li>
    <div class="bc_latest_news_text">
      <h4><a href="ad-redirect/">Sponsored</a></h4>
    </div>
  </li>
  <li><div class="bc_latest_news_text"><h4>No link here</h4></div></li>
</ul>
</body></html>`

func TestBleepingComputerExtract(t *testing.T) {
	entries := BleepingComputer.Extract(mustDoc(t, bleepingFixture))
	require.Len(t, entries, 2)

	assert.Equal(t, "Ransomware gang leaks data", entries[0].Title)
	assert.Equal(t, "The gang published 2TB of files.", entries[0].Excerpt)
	assert.Equal(t, "October 15, 2026", entries[0].DateHint)

	assert.Equal(t, "https://www.bleepingcomputer.com/news/security/ad-redirect/", entries[1].URL)
	assert.Equal(t, "", entries[1].Excerpt)
}

const krebsFixture = `<html><body>
<article>
  <header>
    <h2 class="entry-title"><a href="https://krebsonsecurity.com/2026/10/patch-tuesday/">Patch Tuesday, October 2026 Edition</a></h2>
    <time class="entry-date" datetime="2026-10-14T10:00:00+00:00">October 14, 2026</time>
  </header>
  <div class="entry-content">
    <p>Microsoft fixed 80 vulnerabilities, two of them high severity.</p>
    <p>Second paragraph.</p>
  </div>
</article>
</body></html>`

func TestKrebsExtractPrefersDateAttr(t *testing.T) {
	entries := KrebsOnSecurity.Extract(mustDoc(t, krebsFixture))
	require.Len(t, entries, 1)

	e := entries[0]
	assert.Equal(t, "Patch Tuesday, October 2026 Edition", e.Title)
	assert.Equal(t, "2026-10-14T10:00:00+00:00", e.DateHint)
	// 只取第一段作为摘要
	assert.Equal(t, "Microsoft fixed 80 vulnerabilities, two of them high severity.", e.Excerpt)
}

const cisaFixture = `<?xml version="1.0" encoding="utf-8"?>
<rss version="2.0">
<channel>
  <title>CISA Advisories</title>
  <link>https://www.cisa.gov/</link>
  <item>
    <title>CISA Adds One Known Exploited Vulnerability to Catalog</title>
    <link>https://www.cisa.gov/news-events/alerts/2026/10/16/kev</link>
    <description>&lt;p&gt;CISA has added &lt;b&gt;one&lt;/b&gt; new vulnerability.&lt;/p&gt;</description>
    <pubDate>Fri, 16 Oct 2026 12:00:00 +0000</pubDate>
  </item>
  <item>
    <title>ICS Advisory ICSA-26-289-01</title>
    <link>https://www.cisa.gov/news-events/ics-advisories/icsa-26-289-01</link>
    <description>CVSS v3 9.1 critical</description>
    <pubDate>Thu, 15 Oct 2026 12:00:00 +0000</pubDate>
  </item>
  <item>
    <title></title>
    <link>https://www.cisa.gov/empty</link>
  </item>
  <item>
    <title>Third advisory</title>
    <link>https://www.cisa.gov/third</link>
  </item>
</channel>
</rss>`

func TestFeedSourceParse(t *testing.T) {
	src := &FeedSource{SiteName: "CISA Advisories", FeedURL: "https://www.cisa.gov/all.xml", MaxItems: 2}
	entries, err := src.Parse([]byte(cisaFixture))
	require.NoError(t, err)
	require.Len(t, entries, 2)

	assert.Equal(t, "CISA Adds One Known Exploited Vulnerability to Catalog", entries[0].Title)
	assert.Equal(t, "CISA has added one new vulnerability.", entries[0].Excerpt)
	assert.True(t, entries[0].Published.Equal(time.Date(2026, 10, 16, 12, 0, 0, 0, time.UTC)))

	// 空标题条目被跳过，不占 MaxItems 名额
	assert.Equal(t, "Third advisory", entries[1].Title)
	assert.True(t, entries[1].Published.IsZero())
}

func TestFeedSourceParseRejectsGarbage(t *testing.T) {
	_, err := CISAAdvisories.Parse([]byte("definitely not a feed"))
	assert.Error(t, err)
}

// stubFetcher 按 URL 返回预置内容
type stubFetcher struct {
	pages map[string]string
}

func (s *stubFetcher) Raw(_ context.Context, url string) ([]byte, error) {
	body, ok := s.pages[url]
	if !ok {
		return nil, errors.New("404")
	}
	return []byte(body), nil
}

func (s *stubFetcher) Document(ctx context.Context, url string) (*goquery.Document, error) {
	raw, err := s.Raw(ctx, url)
	if err != nil {
		return nil, err
	}
	return goquery.NewDocumentFromReader(strings.NewReader(string(raw)))
}

func (s *stubFetcher) Text(ctx context.Context, url, selector string) FetchResult {
	doc, err := s.Document(ctx, url)
	if err != nil {
		return FetchResult{Err: err}
	}
	return TextFromDocument(doc, selector)
}

func TestCollectPropagatesListingErrors(t *testing.T) {
	f := &stubFetcher{pages: map[string]string{hackerNewsURL: hackerNewsFixture}}

	entries, err := TheHackerNews.Collect(context.Background(), f)
	require.NoError(t, err)
	assert.Len(t, entries, 2)

	_, err = BleepingComputer.Collect(context.Background(), f)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "BleepingComputer")

	_, err = CISAAdvisories.Collect(context.Background(), f)
	assert.Error(t, err)
}

func TestDefaultRegistryOrder(t *testing.T) {
	var names []string
	for _, s := range DefaultRegistry() {
		names = append(names, s.Name())
		assert.NotEmpty(t, s.URL())
		assert.NotEmpty(t, s.BodySelector())
	}
	assert.Equal(t, []string{"The Hacker News", "BleepingComputer", "Krebs on Security", "CISA Advisories"}, names)
}
