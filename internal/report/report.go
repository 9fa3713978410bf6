package report

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/LJTian/ThreatHub/internal/processor"
)

// ErrEmptyReport 时间窗口/等级过滤后没有任何条目
var ErrEmptyReport = errors.New("no items in report window")

// Kind 报表类型：时间窗口 + 可选的等级过滤
type Kind struct {
	Name       string
	Title      string
	Window     time.Duration
	Severities []processor.Severity
}

var (
	Weekly = Kind{
		Name:   "weekly",
		Title:  "Weekly Threat Report",
		Window: 7 * 24 * time.Hour,
	}
	Monthly = Kind{
		Name:       "monthly",
		Title:      "Monthly Critical Threat Report",
		Window:     30 * 24 * time.Hour,
		Severities: []processor.Severity{processor.SeverityCritical, processor.SeverityHigh},
	}
)

// KindByName 按名称查找报表类型
func KindByName(name string) (Kind, bool) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case Weekly.Name:
		return Weekly, true
	case Monthly.Name:
		return Monthly, true
	}
	return Kind{}, false
}

// Build 以 now 为结束时间生成该类型的报表
func (k Kind) Build(items []processor.ThreatItem, now time.Time) (*Document, error) {
	return Build(items, now.Add(-k.Window), k.Severities, k.Title, now)
}

// Select 保留 windowStart 之后（含）发布的条目，severities 非空时只保留这些等级；
// 按发布时间倒序，时间相同保持原顺序
func Select(items []processor.ThreatItem, windowStart time.Time, severities []processor.Severity) []processor.ThreatItem {
	allowed := make(map[processor.Severity]bool, len(severities))
	for _, s := range severities {
		allowed[s] = true
	}

	out := make([]processor.ThreatItem, 0, len(items))
	for _, it := range items {
		if it.DatePublished.Before(windowStart) {
			continue
		}
		if len(allowed) > 0 && !allowed[it.Severity] {
			continue
		}
		out = append(out, it)
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].DatePublished.After(out[j].DatePublished)
	})
	return out
}

// Document 与具体输出格式无关的报表内容
type Document struct {
	Title       string
	GeneratedAt time.Time
	Entries     []processor.ThreatItem
}

func Build(items []processor.ThreatItem, windowStart time.Time, severities []processor.Severity, title string, now time.Time) (*Document, error) {
	selected := Select(items, windowStart, severities)
	if len(selected) == 0 {
		return nil, ErrEmptyReport
	}
	return &Document{Title: title, GeneratedAt: now.UTC(), Entries: selected}, nil
}

type BlockKind int

const (
	BlockTitle BlockKind = iota
	BlockGenerated
	BlockHeading
	BlockMeta
	BlockLink
	BlockSummary
	BlockDescription
)

// Block 渲染器按顺序消费的文本块
type Block struct {
	Kind BlockKind
	Text string
	// 仅 BlockLink 使用
	Target string
}

// Blocks 标题、生成时间，然后每条依次为：序号+标题、元信息、链接、AI 摘要、描述
func (d *Document) Blocks() []Block {
	blocks := []Block{
		{Kind: BlockTitle, Text: d.Title},
		{Kind: BlockGenerated, Text: "Generated: " + d.GeneratedAt.Format("2006-01-02 15:04 MST")},
	}
	for i, it := range d.Entries {
		blocks = append(blocks,
			Block{Kind: BlockHeading, Text: fmt.Sprintf("%d. %s", i+1, it.Title)},
			Block{Kind: BlockMeta, Text: fmt.Sprintf("Source: %s | Severity: %s | Date: %s",
				it.Source, strings.ToUpper(string(it.Severity)), it.DatePublished.UTC().Format("2006-01-02"))},
			Block{Kind: BlockLink, Text: it.URL, Target: it.URL},
		)
		if it.AISummary != "" {
			blocks = append(blocks, Block{Kind: BlockSummary, Text: "AI Summary: " + it.AISummary})
		}
		blocks = append(blocks, Block{Kind: BlockDescription, Text: it.Description})
	}
	return blocks
}

// Filename 由标题生成下载文件名：小写，空白替换为下划线
func Filename(title, ext string) string {
	name := strings.ToLower(strings.Join(strings.Fields(title), "_"))
	if name == "" {
		name = "report"
	}
	return name + "." + strings.TrimPrefix(ext, ".")
}
