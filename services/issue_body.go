package services

import (
	"strings"

	"github.com/jhyu-wv/mantisRssSync/models"
)

const (
	categoryPrefix    = "**Category:** "
	linkPrefix        = "**Link:** "
	descriptionHeader = "**Description:**"
	categoryLabelTag  = "category:"
)

// BuildIssueBody はフィードレコードからイシュー本文を作成します。
// **Link:** 行は次回実行時に重複判定へ使われるため必ず含めます。
func BuildIssueBody(record models.FeedRecord) string {
	parts := make([]string, 0, 5)
	if record.Category != "" {
		parts = append(parts, categoryPrefix+record.Category)
	}
	parts = append(parts,
		linkPrefix+record.Link,
		"",
		descriptionHeader,
		record.Description,
	)
	return strings.Join(parts, "\n")
}

// BuildLabels はイシューに付与するラベルを返します
func BuildLabels(baseLabel string, record models.FeedRecord) []string {
	labels := []string{baseLabel}
	if record.Category != "" {
		labels = append(labels, categoryLabelTag+record.Category)
	}
	return labels
}

// ExtractLink は本文中の最初の **Link:** 行からリンクを取り出します
func ExtractLink(body string) (string, bool) {
	if !strings.Contains(body, linkPrefix) {
		return "", false
	}
	for _, line := range strings.Split(body, "\n") {
		if strings.HasPrefix(line, linkPrefix) {
			return strings.TrimSpace(strings.TrimPrefix(line, linkPrefix)), true
		}
	}
	return "", false
}

// IssueFingerprint は既存イシューからフィンガープリントを再計算します
func IssueFingerprint(issue models.ExistingIssue) (string, bool) {
	link, ok := ExtractLink(issue.Body)
	if !ok {
		return "", false
	}
	return models.Fingerprint(issue.Title, link), true
}
