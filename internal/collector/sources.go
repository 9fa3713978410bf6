package collector

const (
	hackerNewsURL  = "https://thehackernews.com/"
	bleepingURL    = "https://www.bleepingcomputer.com/news/security/"
	krebsURL       = "https://krebsonsecurity.com/"
	cisaFeedURL    = "https://www.cisa.gov/cybersecurity-advisories/all.xml"
	cisaFeedMaxLen = 20
)

// 页面结构基于各站点当前的 DOM，站点改版后需要同步调整选择器
var (
	TheHackerNews = &HTMLSource{
		SiteName:   "The Hacker News",
		ListingURL: hackerNewsURL,
		Selectors: Selectors{
			Item:    "div.body-post",
			Title:   "h2.home-title",
			Summary: "div.home-desc",
			Link:    "a.story-link",
			Date:    "span.h-datetime",
			Body:    "div.articlebody",
		},
	}

	BleepingComputer = &HTMLSource{
		SiteName:   "BleepingComputer",
		ListingURL: bleepingURL,
		Selectors: Selectors{
			Item:    "#bc-home-news-main-wrap > li",
			Title:   "h4",
			Summary: "div.bc_latest_news_text > p",
			Link:    "h4 a",
			Date:    "li.bc_news_date",
			Body:    "div.articleBody",
		},
	}

	KrebsOnSecurity = &HTMLSource{
		SiteName:   "Krebs on Security",
		ListingURL: krebsURL,
		Selectors: Selectors{
			Item:     "article",
			Title:    "h2.entry-title",
			Summary:  "div.entry-content p",
			Link:     "h2.entry-title a",
			Date:     "time.entry-date, span.date",
			DateAttr: "datetime",
			Body:     "div.entry-content",
		},
	}

	CISAAdvisories = &FeedSource{
		SiteName: "CISA Advisories",
		FeedURL:  cisaFeedURL,
		Body:     "article",
		MaxItems: cisaFeedMaxLen,
	}
)

// DefaultRegistry 固定顺序的数据源列表；聚合结果按此顺序拼接
func DefaultRegistry() []Source {
	return []Source{
		TheHackerNews,
		BleepingComputer,
		KrebsOnSecurity,
		CISAAdvisories,
	}
}
