package processor

import (
	"regexp"
	"strconv"
	"strings"
)

const (
	minDescriptionUnits = 6
	maxDescriptionUnits = 7
)

// 标点后必须跟空白或结尾，"9.8" 这类数字不会被拆开
var sentenceEnd = regexp.MustCompile(`[.!?]+(?:\s+|$)`)

// EnsureLongDescription 生成一段至少有一定密度、以句末标点结尾的描述。
// candidate 为空时使用 fallback；两者都为空返回空串。
// 非空行不足 6 行时用句子补足到 6 段，已包含在现有文本中的句子不再追加；
// 最多取 7 段用空格拼接。对自身输出再次调用结果不变。
func EnsureLongDescription(candidate, fallback string) string {
	text := strings.TrimSpace(candidate)
	if text == "" {
		text = strings.TrimSpace(fallback)
	}
	if text == "" {
		return ""
	}

	units := nonBlankLines(text)
	if len(units) < minDescriptionUnits {
		units = appendSentences(units, splitSentences(text))
	}
	if len(units) > maxDescriptionUnits {
		units = units[:maxDescriptionUnits]
	}

	out := collapseSpaces(strings.Join(units, " "))
	if out == "" {
		return ""
	}
	if !endsWithTerminator(out) {
		out += "."
	}
	return out
}

// appendSentences 逐句追加直到凑满 6 段，跳过已出现过的内容
func appendSentences(units, sentences []string) []string {
	joined := strings.Join(units, " ")
	for _, sentence := range sentences {
		if len(units) >= minDescriptionUnits {
			break
		}
		if strings.Contains(joined, sentence) {
			continue
		}
		units = append(units, sentence)
		joined += " " + sentence
	}
	return units
}

func nonBlankLines(text string) []string {
	var lines []string
	for _, line := range strings.Split(text, "\n") {
		line = collapseSpaces(line)
		if line != "" {
			lines = append(lines, line)
		}
	}
	return lines
}

func splitSentences(text string) []string {
	var out []string
	start := 0
	for _, loc := range sentenceEnd.FindAllStringIndex(text, -1) {
		out = appendFragment(out, text[start:loc[1]])
		start = loc[1]
	}
	return appendFragment(out, text[start:])
}

func appendFragment(out []string, frag string) []string {
	frag = collapseSpaces(frag)
	// 只有标点的碎片没有意义
	if strings.Trim(frag, ".!? ") == "" {
		return out
	}
	return append(out, frag)
}

func collapseSpaces(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func endsWithTerminator(s string) bool {
	switch s[len(s)-1] {
	case '.', '!', '?':
		return true
	}
	return false
}

// ClassifySeverity 按 critical > high > medium > low 的顺序做大小写无关的子串匹配，
// 命中第一个即返回，都不命中为 medium
func ClassifySeverity(text string) Severity {
	lower := strings.ToLower(text)
	for _, sev := range Severities {
		if strings.Contains(lower, string(sev)) {
			return sev
		}
	}
	return SeverityMedium
}

var (
	cvssExpr      = regexp.MustCompile(`(?i)CVSS(?:\s+Score)?\s*:?\s*(\d\.\d)(\d)?`)
	cvssLooseExpr = regexp.MustCompile(`(?i)score\s*:?\s*(\d\.\d)(\d)?`)
)

// ExtractCVSS 从文本中提取 "CVSS Score: 7.5" / "score 7.5" 形式的分数。
// 只接受一位整数一位小数；后面还跟着数字（如 7.25）视为无效而不是截断。
func ExtractCVSS(text string) *float64 {
	for _, expr := range []*regexp.Regexp{cvssExpr, cvssLooseExpr} {
		m := expr.FindStringSubmatch(text)
		if m == nil {
			continue
		}
		if m[2] != "" {
			continue
		}
		v, err := strconv.ParseFloat(m[1], 64)
		if err != nil || !validCVSS(&v) {
			continue
		}
		return &v
	}
	return nil
}

func validCVSS(v *float64) bool {
	return v == nil || (*v >= 0 && *v <= 10)
}
