package processor

import (
	"strings"
	"time"

	"github.com/fatih/color"
)

// Severity 粗粒度的威胁等级，由文本关键词推断
type Severity string

const (
	SeverityCritical Severity = "critical"
	SeverityHigh     Severity = "high"
	SeverityMedium   Severity = "medium"
	SeverityLow      Severity = "low"
)

// Severities 按优先级从高到低排列，ClassifySeverity 依此顺序匹配
var Severities = []Severity{SeverityCritical, SeverityHigh, SeverityMedium, SeverityLow}

// ParseSeverity 将任意大小写的等级名解析为 Severity
func ParseSeverity(s string) (Severity, bool) {
	s = strings.ToLower(strings.TrimSpace(s))
	for _, sev := range Severities {
		if string(sev) == s {
			return sev, true
		}
	}
	return "", false
}

// ThreatItem 对外输出的唯一领域实体
type ThreatItem struct {
	ID               string    `json:"id"`
	CVEID            string    `json:"cveId"`
	Title            string    `json:"title"`
	Description      string    `json:"description"`
	Severity         Severity  `json:"severity"`
	AISummary        string    `json:"aiSummary"`
	DatePublished    time.Time `json:"datePublished"`
	Source           string    `json:"source"`
	URL              string    `json:"url"`
	CVSSScore        *float64  `json:"cvssScore"`
	AffectedProducts []string  `json:"affectedProducts"`
}

// Valid 标题与描述都不为空才会返回给调用方
func (t ThreatItem) Valid() bool {
	return strings.TrimSpace(t.Title) != "" && strings.TrimSpace(t.Description) != ""
}

// Finalize 对合并后的列表做最后一轮清洗：
// 丢弃缺少标题/描述的条目，补齐无效时间，并再次规范化描述
func Finalize(items []ThreatItem, now time.Time) []ThreatItem {
	out := make([]ThreatItem, 0, len(items))
	for _, it := range items {
		if !it.Valid() {
			continue
		}
		if it.DatePublished.IsZero() {
			it.DatePublished = now
		}
		it.DatePublished = it.DatePublished.UTC()
		it.Description = EnsureLongDescription(it.Description, "")
		if !validCVSS(it.CVSSScore) {
			it.CVSSScore = nil
		}
		if _, ok := ParseSeverity(string(it.Severity)); !ok {
			it.Severity = SeverityMedium
		}
		if it.AffectedProducts == nil {
			it.AffectedProducts = []string{}
		}
		out = append(out, it)
	}
	return out
}

var publishedLayouts = []string{
	time.RFC3339,
	time.RFC1123Z,
	time.RFC1123,
	time.RFC822Z,
	time.RFC822,
	"Monday, January 2, 2006",
	"Mon, January 2, 2006",
	"January 2, 2006",
	"Jan 2, 2006",
	"Jan 02, 2006",
	"2 January 2006",
	"2 Jan 2006",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
	"01/02/2006",
}

// ParsePublished 依次尝试常见的日期格式，全部失败时退回 now
func ParsePublished(hint string, now time.Time) time.Time {
	hint = cleanDateHint(hint)
	if hint == "" {
		return now
	}
	for _, layout := range publishedLayouts {
		if t, err := time.Parse(layout, hint); err == nil {
			return t
		}
	}
	return now
}

// cleanDateHint 去掉站点在日期前后附带的图标字符、"Posted on" 等前缀
func cleanDateHint(s string) string {
	s = strings.Join(strings.Fields(s), " ")
	s = strings.TrimFunc(s, func(r rune) bool {
		return !(r >= '0' && r <= '9' || r >= 'A' && r <= 'Z' || r >= 'a' && r <= 'z')
	})
	for _, prefix := range []string{"Posted on ", "Published on ", "Published ", "Updated "} {
		s = strings.TrimPrefix(s, prefix)
	}
	return s
}

var severityColor = map[Severity]func(a ...interface{}) string{
	SeverityLow:      color.New(color.FgBlue).SprintFunc(),
	SeverityMedium:   color.New(color.FgYellow).SprintFunc(),
	SeverityHigh:     color.New(color.FgHiRed).SprintFunc(),
	SeverityCritical: color.New(color.FgRed, color.Bold).SprintFunc(),
}

// ColorizeSeverity 终端输出用的大写彩色等级
func ColorizeSeverity(sev Severity) string {
	name := strings.ToUpper(string(sev))
	if fn, ok := severityColor[sev]; ok {
		return fn(name)
	}
	return color.New(color.FgCyan).SprintFunc()(name)
}
