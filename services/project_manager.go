package services

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/jhyu-wv/mantisRssSync/api"
	"github.com/jhyu-wv/mantisRssSync/models"
)

var (
	// ErrProjectNotFound はユーザー/組織のどちらにもプロジェクトが無い場合のエラーです
	ErrProjectNotFound = errors.New("プロジェクトが見つかりません")
	// ErrNotInitialized は Initialize 前に操作が呼ばれた場合のエラーです
	ErrNotInitialized = errors.New("プロジェクトマネージャーが初期化されていません")
)

// GitHubAPI はプロジェクトマネージャーが使うリモートAPIです
type GitHubAPI interface {
	ExecuteQuery(ctx context.Context, query string, variables map[string]any, out any) error
	CreateIssue(ctx context.Context, owner, repo string, req models.IssueRequest) (*models.TrackingItem, error)
}

// ProjectManager はGitHub Projects V2 ボードを管理します
type ProjectManager struct {
	api        GitHubAPI
	board      models.BoardConfig
	issueLabel string
	logger     *zap.Logger

	projectID string
	status    *models.FieldSchema
	milestone *models.FieldSchema
}

// NewProjectManager は新しいプロジェクトマネージャーを作成します
func NewProjectManager(client GitHubAPI, board models.BoardConfig, issueLabel string, logger *zap.Logger) *ProjectManager {
	return &ProjectManager{
		api:        client,
		board:      board,
		issueLabel: issueLabel,
		logger:     logger,
	}
}

// ProjectID は解決済みのプロジェクトIDを返します
func (p *ProjectManager) ProjectID() string {
	return p.projectID
}

// StatusField は検出したステータスフィールドを返します (無い場合は nil)
func (p *ProjectManager) StatusField() *models.FieldSchema {
	return p.status
}

// MilestoneField は検出したマイルストーンフィールドを返します (無い場合は nil)
func (p *ProjectManager) MilestoneField() *models.FieldSchema {
	return p.milestone
}

// Initialize はプロジェクト情報とフィールド情報を取得します
func (p *ProjectManager) Initialize(ctx context.Context) error {
	if err := p.resolveProject(ctx); err != nil {
		return err
	}
	return p.loadFields(ctx)
}

type projectNode struct {
	ID    string `json:"id"`
	Title string `json:"title"`
}

// resolveProject はユーザー所有、組織所有の順にプロジェクトを探します
func (p *ProjectManager) resolveProject(ctx context.Context) error {
	variables := map[string]any{
		"owner":  p.board.Owner,
		"number": p.board.ProjectNumber,
	}

	var userData struct {
		User *struct {
			ProjectV2 *projectNode `json:"projectV2"`
		} `json:"user"`
	}
	err := p.api.ExecuteQuery(ctx, api.UserProjectQuery, variables, &userData)
	if err != nil && !isGraphQLError(err) {
		return fmt.Errorf("プロジェクト取得エラー: %w", err)
	}
	if err == nil && userData.User != nil && userData.User.ProjectV2 != nil {
		return p.setProject(*userData.User.ProjectV2, "user")
	}

	var orgData struct {
		Organization *struct {
			ProjectV2 *projectNode `json:"projectV2"`
		} `json:"organization"`
	}
	err = p.api.ExecuteQuery(ctx, api.OrganizationProjectQuery, variables, &orgData)
	if err != nil && !isGraphQLError(err) {
		return fmt.Errorf("プロジェクト取得エラー: %w", err)
	}
	if err == nil && orgData.Organization != nil && orgData.Organization.ProjectV2 != nil {
		return p.setProject(*orgData.Organization.ProjectV2, "organization")
	}

	return fmt.Errorf("%w: %s/#%d", ErrProjectNotFound, p.board.Owner, p.board.ProjectNumber)
}

func (p *ProjectManager) setProject(project projectNode, ownerType string) error {
	if project.ID == "" {
		return fmt.Errorf("%w: %s/#%d", ErrProjectNotFound, p.board.Owner, p.board.ProjectNumber)
	}
	p.projectID = project.ID
	p.logger.Info("プロジェクト発見",
		zap.String("title", project.Title),
		zap.String("project_id", project.ID),
		zap.String("owner_type", ownerType))
	return nil
}

type fieldNode struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Options []struct {
		ID   string `json:"id"`
		Name string `json:"name"`
	} `json:"options"`
}

// loadFields はプロジェクトのフィールドから状態/マイルストーンの単一選択フィールドを検出します
func (p *ProjectManager) loadFields(ctx context.Context) error {
	var data struct {
		Node struct {
			Fields struct {
				Nodes []fieldNode `json:"nodes"`
			} `json:"fields"`
		} `json:"node"`
	}
	if err := p.api.ExecuteQuery(ctx, api.ProjectFieldsQuery, map[string]any{"projectId": p.projectID}, &data); err != nil {
		return fmt.Errorf("プロジェクトフィールド取得エラー: %w", err)
	}

	for _, field := range data.Node.Fields.Nodes {
		// options を持たないフィールドは単一選択ではない
		if field.Options == nil {
			continue
		}
		name := strings.ToLower(field.Name)

		switch {
		case strings.Contains(name, "status"):
			if p.status == nil {
				p.status = toSchema(field)
				p.logger.Info("ステータスフィールド発見",
					zap.String("field", field.Name),
					zap.Strings("options", optionLabels(p.status)))
			}
		case strings.Contains(name, "milestone"):
			if p.milestone == nil {
				p.milestone = toSchema(field)
				p.logger.Info("マイルストーンフィールド発見",
					zap.String("field", field.Name),
					zap.Strings("options", optionLabels(p.milestone)))
			}
		}
	}
	return nil
}

func toSchema(field fieldNode) *models.FieldSchema {
	schema := &models.FieldSchema{
		FieldID: field.ID,
		Name:    field.Name,
		Options: make(map[string]string, len(field.Options)),
	}
	for _, opt := range field.Options {
		schema.Options[opt.Name] = opt.ID
	}
	return schema
}

func optionLabels(f *models.FieldSchema) []string {
	labels := make([]string, 0, len(f.Options))
	for label := range f.Options {
		labels = append(labels, label)
	}
	sort.Strings(labels)
	return labels
}

// ExistingFingerprints はリポジトリの既存イシュー (最大100件) からフィンガープリントを集めます。
// **Link:** 行を持たないイシューは対象外です。
func (p *ProjectManager) ExistingFingerprints(ctx context.Context) (map[string]struct{}, error) {
	if p.projectID == "" {
		return nil, ErrNotInitialized
	}

	var data struct {
		Repository struct {
			Issues struct {
				Nodes    []models.ExistingIssue `json:"nodes"`
				PageInfo struct {
					HasNextPage bool `json:"hasNextPage"`
				} `json:"pageInfo"`
			} `json:"issues"`
		} `json:"repository"`
	}
	variables := map[string]any{
		"owner": p.board.Owner,
		"repo":  p.board.Repo,
		"first": api.ExistingIssuePageSize,
	}
	if err := p.api.ExecuteQuery(ctx, api.RepositoryIssuesQuery, variables, &data); err != nil {
		return nil, fmt.Errorf("既存イシュー取得エラー: %w", err)
	}

	issues := data.Repository.Issues
	if issues.PageInfo.HasNextPage {
		p.logger.Warn("既存イシューが取得上限を超えています。重複を検出できない可能性があります",
			zap.Int("page_size", api.ExistingIssuePageSize))
	}

	fingerprints := make(map[string]struct{}, len(issues.Nodes))
	for _, issue := range issues.Nodes {
		if fp, ok := IssueFingerprint(issue); ok {
			fingerprints[fp] = struct{}{}
		}
	}

	p.logger.Info("既存イシュー発見", zap.Int("count", len(fingerprints)))
	return fingerprints, nil
}

// CreateFromFeedRecord はイシューを作成しプロジェクトへ追加します。
// 途中で失敗しても完了済みの処理は取り消さず、結果にエラーを格納して返します。
func (p *ProjectManager) CreateFromFeedRecord(ctx context.Context, record models.FeedRecord) models.CreateResult {
	url, err := p.createFromFeedRecord(ctx, record)
	if err != nil {
		p.logger.Error("イシュー作成失敗", zap.String("title", record.Title), zap.Error(err))
		return models.CreateResult{Record: record, Err: err}
	}
	return models.CreateResult{Record: record, URL: url}
}

func (p *ProjectManager) createFromFeedRecord(ctx context.Context, record models.FeedRecord) (string, error) {
	if p.projectID == "" {
		return "", ErrNotInitialized
	}

	issue, err := p.api.CreateIssue(ctx, p.board.Owner, p.board.Repo, models.IssueRequest{
		Title:  record.Title,
		Body:   BuildIssueBody(record),
		Labels: BuildLabels(p.issueLabel, record),
	})
	if err != nil {
		return "", fmt.Errorf("イシュー作成エラー: %w", err)
	}
	p.logger.Info("イシュー作成", zap.String("title", issue.Title), zap.Int("number", issue.Number))

	itemID, err := p.addToProject(ctx, issue.NodeID)
	if err != nil {
		return "", err
	}

	if err := p.classify(ctx, itemID, p.status, p.board.DefaultStatus, "status"); err != nil {
		return "", err
	}
	if err := p.classify(ctx, itemID, p.milestone, p.board.DefaultMilestone, "milestone"); err != nil {
		return "", err
	}

	return issue.HTMLURL, nil
}

func (p *ProjectManager) addToProject(ctx context.Context, contentID string) (string, error) {
	var data struct {
		AddProjectV2ItemByContentID struct {
			Item struct {
				ID string `json:"id"`
			} `json:"item"`
		} `json:"addProjectV2ItemByContentId"`
	}
	variables := map[string]any{
		"projectId": p.projectID,
		"contentId": contentID,
	}
	if err := p.api.ExecuteQuery(ctx, api.AddProjectItemMutation, variables, &data); err != nil {
		return "", fmt.Errorf("プロジェクト追加エラー: %w", err)
	}

	itemID := data.AddProjectV2ItemByContentID.Item.ID
	p.logger.Info("イシューがプロジェクトに追加されました", zap.String("item_id", itemID))
	return itemID, nil
}

// classify は設定値とオプションが揃っている場合のみフィールドを更新します
func (p *ProjectManager) classify(ctx context.Context, itemID string, field *models.FieldSchema, label, dimension string) error {
	if label == "" || field == nil {
		return nil
	}
	optionID, ok := field.OptionID(label)
	if !ok {
		p.logger.Debug("オプションが見つからないため設定をスキップします",
			zap.String("dimension", dimension), zap.String("label", label))
		return nil
	}

	variables := map[string]any{
		"projectId": p.projectID,
		"itemId":    itemID,
		"fieldId":   field.FieldID,
		"value":     map[string]any{"singleSelectOptionId": optionID},
	}
	if err := p.api.ExecuteQuery(ctx, api.UpdateItemFieldMutation, variables, nil); err != nil {
		return fmt.Errorf("%s 設定エラー: %w", dimension, err)
	}
	p.logger.Info("フィールド設定", zap.String("dimension", dimension), zap.String("label", label))
	return nil
}

func isGraphQLError(err error) bool {
	var gqlErr *api.GraphQLError
	return errors.As(err, &gqlErr)
}
