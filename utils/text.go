package utils

import (
	"strings"

	"golang.org/x/net/html"
)

// skipTags は本文として扱わない要素です
var skipTags = map[string]bool{
	"script": true, "style": true, "noscript": true, "iframe": true,
}

// PlainText はHTMLを含む説明文から可読テキストを取り出します。
// 解析できない場合は入力をそのまま返します。
func PlainText(s string) string {
	if !strings.Contains(s, "<") {
		return strings.Join(strings.Fields(s), " ")
	}

	doc, err := html.Parse(strings.NewReader(s))
	if err != nil {
		return s
	}

	var sb strings.Builder
	var extract func(*html.Node)
	extract = func(n *html.Node) {
		if n.Type == html.ElementNode && skipTags[n.Data] {
			return
		}
		if n.Type == html.TextNode {
			sb.WriteString(n.Data)
			sb.WriteString(" ")
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			extract(c)
		}
	}
	extract(doc)

	return strings.Join(strings.Fields(sb.String()), " ")
}

// Truncate は改行を空白に置き換え、max文字 (rune) を超える部分を省略します
func Truncate(s string, max int) string {
	s = strings.ReplaceAll(s, "\n", " ")
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	if max <= 3 {
		return string(r[:max])
	}
	return string(r[:max-3]) + "..."
}
