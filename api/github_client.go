package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/oauth2"

	"github.com/jhyu-wv/mantisRssSync/models"
)

// maxErrorBody はエラー時にレスポンス本文を保持する最大バイト数です
const maxErrorBody = 4 << 10

// StatusError はHTTPステータスが2xx以外だった場合のエラーです
type StatusError struct {
	Method     string
	URL        string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s %s: HTTP %d: %s", e.Method, e.URL, e.StatusCode, e.Body)
}

// GraphQLErrorItem はレスポンスの errors 配列の要素です
type GraphQLErrorItem struct {
	Type    string `json:"type,omitempty"`
	Message string `json:"message"`
	Path    []any  `json:"path,omitempty"`
}

// GraphQLError はHTTP 200でもレスポンスに errors が含まれていた場合のエラーです
type GraphQLError struct {
	Errors []GraphQLErrorItem
}

func (e *GraphQLError) Error() string {
	msgs := make([]string, 0, len(e.Errors))
	for _, item := range e.Errors {
		msgs = append(msgs, item.Message)
	}
	return "GraphQLエラー: " + strings.Join(msgs, "; ")
}

// GitHubClient はGitHub API (GraphQL / REST) とのやり取りを処理します
type GitHubClient struct {
	baseURL string
	client  *http.Client
}

// NewGitHubClient は新しいGitHubクライアントを作成します。
// トークンは oauth2 トランスポートによって Bearer ヘッダーとして付与されます。
func NewGitHubClient(ctx context.Context, baseURL, token string, timeout time.Duration) *GitHubClient {
	src := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token, TokenType: "Bearer"})
	httpClient := oauth2.NewClient(ctx, src)
	httpClient.Timeout = timeout
	return NewGitHubClientWithHTTP(baseURL, httpClient)
}

// NewGitHubClientWithHTTP は任意のHTTPクライアントでGitHubクライアントを作成します
func NewGitHubClientWithHTTP(baseURL string, httpClient *http.Client) *GitHubClient {
	return &GitHubClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  httpClient,
	}
}

type graphQLRequest struct {
	Query     string         `json:"query"`
	Variables map[string]any `json:"variables,omitempty"`
}

type graphQLResponse struct {
	Data   json.RawMessage    `json:"data"`
	Errors []GraphQLErrorItem `json:"errors"`
}

// ExecuteQuery はGraphQLクエリ/ミューテーションを実行し、data を out にデコードします
func (g *GitHubClient) ExecuteQuery(ctx context.Context, query string, variables map[string]any, out any) error {
	payload := graphQLRequest{Query: query, Variables: variables}

	var resp graphQLResponse
	if err := g.do(ctx, http.MethodPost, g.baseURL+"/graphql", payload, &resp); err != nil {
		return err
	}

	if len(resp.Errors) > 0 {
		return &GraphQLError{Errors: resp.Errors}
	}

	if out == nil || len(resp.Data) == 0 {
		return nil
	}
	if err := json.Unmarshal(resp.Data, out); err != nil {
		return fmt.Errorf("レスポンス解析エラー: %w", err)
	}
	return nil
}

// Viewer はトークンの持ち主のログイン名を返します (認証確認用)
func (g *GitHubClient) Viewer(ctx context.Context) (string, error) {
	var data struct {
		Viewer struct {
			Login string `json:"login"`
		} `json:"viewer"`
	}
	if err := g.ExecuteQuery(ctx, ViewerQuery, nil, &data); err != nil {
		return "", err
	}
	return data.Viewer.Login, nil
}

// CreateIssue はREST APIでイシューを作成します
func (g *GitHubClient) CreateIssue(ctx context.Context, owner, repo string, req models.IssueRequest) (*models.TrackingItem, error) {
	endpoint := fmt.Sprintf("%s/repos/%s/%s/issues", g.baseURL, url.PathEscape(owner), url.PathEscape(repo))

	// ラベルが空でないことを確認
	if req.Labels == nil {
		req.Labels = []string{}
	}

	var item models.TrackingItem
	if err := g.do(ctx, http.MethodPost, endpoint, req, &item); err != nil {
		return nil, err
	}
	if item.NodeID == "" {
		return nil, fmt.Errorf("イシューの node_id が見つかりません")
	}

	item.Labels = req.Labels
	if item.Body == "" {
		item.Body = req.Body
	}
	return &item, nil
}

func (g *GitHubClient) do(ctx context.Context, method, endpoint string, payload, out any) error {
	payloadBytes, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("JSONエンコードエラー: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, bytes.NewReader(payloadBytes))
	if err != nil {
		return fmt.Errorf("リクエスト作成エラー: %w", err)
	}
	req.Header.Set("Accept", "application/vnd.github+json")
	req.Header.Set("Content-Type", "application/json")

	resp, err := g.client.Do(req)
	if err != nil {
		return fmt.Errorf("リクエスト送信エラー: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return &StatusError{
			Method:     method,
			URL:        endpoint,
			StatusCode: resp.StatusCode,
			Body:       strings.TrimSpace(string(body)),
		}
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("レスポンス解析エラー: %w", err)
	}
	return nil
}
