package services

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"slices"
)

// repairFeed は解析エラーの手前までに閉じた itemName 要素だけを残し、
// 親要素を閉じ直した文書を組み立てます。復元できた要素数も返します。
func repairFeed(body []byte, itemName string) ([]byte, int) {
	d := xml.NewDecoder(bytes.NewReader(body))
	d.Strict = false
	d.Entity = xml.HTMLEntity

	var (
		open      []string
		head      []byte
		parents   []string
		items     [][]byte
		itemStart int64 = -1
		itemDepth int
	)
	for {
		off := d.InputOffset()
		tok, err := d.Token()
		if err != nil {
			break
		}
		switch t := tok.(type) {
		case xml.StartElement:
			open = append(open, rawName(body, off, t.Name.Local))
			if itemStart < 0 && t.Name.Local == itemName {
				itemStart = off
				itemDepth = len(open)
				if head == nil {
					head = body[:off]
					parents = slices.Clone(open[:len(open)-1])
				}
			}
		case xml.EndElement:
			if itemStart >= 0 && len(open) == itemDepth {
				items = append(items, body[itemStart:d.InputOffset()])
				itemStart = -1
			}
			if len(open) > 0 {
				open = open[:len(open)-1]
			}
		}
	}
	if len(items) == 0 {
		return nil, 0
	}

	var buf bytes.Buffer
	buf.Write(head)
	for _, item := range items {
		buf.Write(item)
		buf.WriteByte('\n')
	}
	for i := len(parents) - 1; i >= 0; i-- {
		fmt.Fprintf(&buf, "</%s>", parents[i])
	}
	return buf.Bytes(), len(items)
}

// rawName は開始タグの接頭辞付きの名前を本文から取り出します
func rawName(body []byte, off int64, fallback string) string {
	if off < 0 || off >= int64(len(body)) || body[off] != '<' {
		return fallback
	}
	rest := body[off+1:]
	end := bytes.IndexAny(rest, " \t\r\n/>")
	if end <= 0 {
		return fallback
	}
	return string(rest[:end])
}
