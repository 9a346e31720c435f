package askbot

import (
	"html"
	"regexp"
	"strconv"
	"strings"
)

var (
	fenceRe  = regexp.MustCompile("(?s)```([\\w+-]*)\\n?(.*?)```")
	inlineRe = regexp.MustCompile("`([^`\\n]+)`")

	linkRe    = regexp.MustCompile(`\[([^\]\n]+)\]\((https?://[^)\s]+)\)`)
	boldRe    = regexp.MustCompile(`\*\*([^*\n]+)\*\*|__([^_\n]+)__`)
	italicRe  = regexp.MustCompile(`\*([^*\s](?:[^*\n]*[^*\s])?)\*`)
	underRe   = regexp.MustCompile(`(^|[^\p{L}\p{N}_])_([^_\n]+)_($|[^\p{L}\p{N}_])`)
	strikeRe  = regexp.MustCompile(`~~([^~\n]+)~~`)
	headingRe = regexp.MustCompile(`(?m)^#{1,6}\s+(.+)$`)
	tagRe     = regexp.MustCompile(`<(/?)(b|i|s)>`)
)

// toHTML 把模型输出的 markdown 转换为 Telegram 支持的 HTML 子集
func toHTML(text string) string {
	var sb strings.Builder
	last := 0
	for _, m := range fenceRe.FindAllStringSubmatchIndex(text, -1) {
		sb.WriteString(inlineToHTML(text[last:m[0]]))
		lang := text[m[2]:m[3]]
		code := strings.TrimSuffix(text[m[4]:m[5]], "\n")
		if lang != "" {
			sb.WriteString(`<pre><code class="language-` + html.EscapeString(lang) + `">`)
		} else {
			sb.WriteString("<pre><code>")
		}
		sb.WriteString(html.EscapeString(code))
		sb.WriteString("</code></pre>")
		last = m[1]
	}
	sb.WriteString(inlineToHTML(text[last:]))
	return sb.String()
}

func inlineToHTML(text string) string {
	var sb strings.Builder
	last := 0
	for _, m := range inlineRe.FindAllStringSubmatchIndex(text, -1) {
		sb.WriteString(formatPlain(text[last:m[0]]))
		sb.WriteString("<code>" + html.EscapeString(text[m[2]:m[3]]) + "</code>")
		last = m[1]
	}
	sb.WriteString(formatPlain(text[last:]))
	return sb.String()
}

// formatPlain 处理普通文本. 链接先换成占位符, 避免强调的规则改写 href
func formatPlain(text string) string {
	text = html.EscapeString(text)
	text = headingRe.ReplaceAllString(text, "<b>$1</b>")

	var links []string
	text = linkRe.ReplaceAllStringFunc(text, func(m string) string {
		sub := linkRe.FindStringSubmatch(m)
		links = append(links, `<a href="`+sub[2]+`">`+formatEmphasis(sub[1])+"</a>")
		return linkPlaceholder(len(links) - 1)
	})

	text = formatEmphasis(text)
	for i, link := range links {
		text = strings.Replace(text, linkPlaceholder(i), link, 1)
	}
	return text
}

// formatEmphasis 标签交叉时 Telegram 会拒绝整条消息, 这时保留原样
func formatEmphasis(text string) string {
	out := boldRe.ReplaceAllString(text, "<b>$1$2</b>")
	out = italicRe.ReplaceAllString(out, "<i>$1</i>")
	out = underRe.ReplaceAllString(out, "$1<i>$2</i>$3")
	out = strikeRe.ReplaceAllString(out, "<s>$1</s>")
	if !tagsBalanced(out) {
		return text
	}
	return out
}

func linkPlaceholder(i int) string {
	return "\x00" + strconv.Itoa(i) + "\x00"
}

// tagsBalanced 检查 b/i/s 标签是否正确嵌套
func tagsBalanced(text string) bool {
	var stack []string
	for _, m := range tagRe.FindAllStringSubmatch(text, -1) {
		closing, name := m[1] == "/", m[2]
		if !closing {
			stack = append(stack, name)
			continue
		}
		if len(stack) == 0 || stack[len(stack)-1] != name {
			return false
		}
		stack = stack[:len(stack)-1]
	}
	return len(stack) == 0
}
