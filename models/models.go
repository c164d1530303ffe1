package models

import (
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"time"
)

// FingerprintLength はフィンガープリントの16進文字数です
const FingerprintLength = 8

// FeedRecord はRSSフィードの1エントリを正規化したものです
type FeedRecord struct {
	Title       string
	Link        string
	Description string
	Category    string
}

// Fingerprint は重複チェック用の識別子を返します (タイトル+リンクのみ使用)
func (r FeedRecord) Fingerprint() string {
	return Fingerprint(r.Title, r.Link)
}

// Fingerprint はタイトルとリンクの連結からMD5を計算し先頭8文字を返します
func Fingerprint(title, link string) string {
	sum := md5.Sum([]byte(title + link))
	return hex.EncodeToString(sum[:])[:FingerprintLength]
}

// ContentBlock はフィードエントリのcontent要素の1ブロックです
type ContentBlock struct {
	Type  string
	Value string
}

// RawEntry はパーサーから得たエントリで、各フィールドは存在しない場合がある
type RawEntry struct {
	Title       string
	Link        string
	Tags        []string
	Category    *string
	Summary     *string
	Description *string
	// Content はシーケンスとして渡された場合 Blocks、単一値の場合 Text を使う
	Content     *RawContent
}

// RawContent はcontentフィールドの値です
type RawContent struct {
	Blocks []ContentBlock
	Text   string
	IsList bool
}

// String はシーケンスでない場合のcontentの文字列表現を返します
func (c RawContent) String() string {
	if c.IsList {
		if len(c.Blocks) == 0 {
			return ""
		}
		return c.Blocks[0].Value
	}
	return c.Text
}

// Project は優先順位に従ってRawEntryをFeedRecordに変換します
func (e RawEntry) Project() FeedRecord {
	return FeedRecord{
		Title:       e.Title,
		Link:        e.Link,
		Description: e.description(),
		Category:    e.category(),
	}
}

func (e RawEntry) category() string {
	if len(e.Tags) > 0 {
		return e.Tags[0]
	}
	if e.Category != nil {
		return *e.Category
	}
	return ""
}

func (e RawEntry) description() string {
	switch {
	case e.Summary != nil:
		return *e.Summary
	case e.Description != nil:
		return *e.Description
	case e.Content != nil:
		return e.Content.String()
	}
	return ""
}

// BoardConfig は同期先のプロジェクトボードを表します
type BoardConfig struct {
	Owner            string
	Repo             string
	ProjectNumber    int
	DefaultStatus    string
	DefaultMilestone string
}

// String は owner/repo#number 形式で返します
func (b BoardConfig) String() string {
	return fmt.Sprintf("%s/%s#%d", b.Owner, b.Repo, b.ProjectNumber)
}

// TrackingItem はGitHub上に作成されたイシューを表します
type TrackingItem struct {
	NodeID  string   `json:"node_id"`
	Number  int      `json:"number"`
	Title   string   `json:"title"`
	Body    string   `json:"body"`
	Labels  []string `json:"-"`
	HTMLURL string   `json:"html_url"`
}

// IssueRequest はイシュー作成リクエストです
type IssueRequest struct {
	Title  string   `json:"title"`
	Body   string   `json:"body"`
	Labels []string `json:"labels"`
}

// ExistingIssue はリポジトリから取得した既存イシューです
type ExistingIssue struct {
	Title string `json:"title"`
	Body  string `json:"body"`
	URL   string `json:"url"`
}

// FieldSchema は単一選択フィールドのIDとオプション (ラベル→ID) です
type FieldSchema struct {
	FieldID string
	Name    string
	Options map[string]string
}

// OptionID は指定ラベルのオプションIDを返します
func (f *FieldSchema) OptionID(label string) (string, bool) {
	if f == nil || label == "" {
		return "", false
	}
	id, ok := f.Options[label]
	return id, ok
}

// CreateResult は1件のイシュー作成の結果です
type CreateResult struct {
	Record FeedRecord
	URL    string
	Err    error
}

// Created は作成が成功したかを返します
func (r CreateResult) Created() bool {
	return r.Err == nil && r.URL != ""
}

// SyncReport は1回の同期実行の集計です
type SyncReport struct {
	RunID     string
	Fetched   int
	Existing  int
	New       []FeedRecord
	Results   []CreateResult
	StartedAt time.Time
	Elapsed   time.Duration
}

// Attempted は作成を試みた件数です
func (s SyncReport) Attempted() int {
	return len(s.Results)
}

// CreatedCount は作成に成功した件数です
func (s SyncReport) CreatedCount() int {
	n := 0
	for _, r := range s.Results {
		if r.Created() {
			n++
		}
	}
	return n
}

// Failed は作成に失敗した結果のみを返します
func (s SyncReport) Failed() []CreateResult {
	var failed []CreateResult
	for _, r := range s.Results {
		if !r.Created() {
			failed = append(failed, r)
		}
	}
	return failed
}
