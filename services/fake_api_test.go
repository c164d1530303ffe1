package services

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jhyu-wv/mantisRssSync/api"
	"github.com/jhyu-wv/mantisRssSync/models"
)

type queryCall struct {
	Query     string
	Variables map[string]any
}

type queryHandler func(vars map[string]any) (string, error)

// fakeGitHubAPI はクエリ文字列ごとに応答を返すテスト用API
type fakeGitHubAPI struct {
	handlers map[string]queryHandler
	create   func(req models.IssueRequest) (*models.TrackingItem, error)

	calls   []queryCall
	created []models.IssueRequest
}

func newFakeGitHubAPI() *fakeGitHubAPI {
	return &fakeGitHubAPI{handlers: map[string]queryHandler{}}
}

func (f *fakeGitHubAPI) on(query, response string) {
	f.handlers[query] = func(map[string]any) (string, error) { return response, nil }
}

func (f *fakeGitHubAPI) onError(query string, err error) {
	f.handlers[query] = func(map[string]any) (string, error) { return "", err }
}

func (f *fakeGitHubAPI) ExecuteQuery(_ context.Context, query string, variables map[string]any, out any) error {
	f.calls = append(f.calls, queryCall{Query: query, Variables: variables})
	h, ok := f.handlers[query]
	if !ok {
		return fmt.Errorf("unexpected query: %s", query)
	}
	resp, err := h(variables)
	if err != nil {
		return err
	}
	if out == nil {
		return nil
	}
	return json.Unmarshal([]byte(resp), out)
}

func (f *fakeGitHubAPI) CreateIssue(_ context.Context, _, _ string, req models.IssueRequest) (*models.TrackingItem, error) {
	f.created = append(f.created, req)
	if f.create != nil {
		return f.create(req)
	}
	n := len(f.created)
	return &models.TrackingItem{
		NodeID:  fmt.Sprintf("I_node%d", n),
		Number:  n,
		Title:   req.Title,
		Body:    req.Body,
		Labels:  req.Labels,
		HTMLURL: fmt.Sprintf("https://github.com/owner/repo/issues/%d", n),
	}, nil
}

func (f *fakeGitHubAPI) count(query string) int {
	n := 0
	for _, c := range f.calls {
		if c.Query == query {
			n++
		}
	}
	return n
}

func (f *fakeGitHubAPI) callsFor(query string) []queryCall {
	var out []queryCall
	for _, c := range f.calls {
		if c.Query == query {
			out = append(out, c)
		}
	}
	return out
}

const (
	userProjectResponse = `{"user": {"projectV2": {"id": "test_project_id", "title": "Test Project"}}}`
	fieldsResponse      = `{"node": {"fields": {"nodes": [
		{"id": "title_field", "name": "Title"},
		{"id": "status_field_id", "name": "Status", "options": [
			{"id": "todo_option", "name": "Todo"},
			{"id": "done_option", "name": "Done"}
		]},
		{"id": "status_text", "name": "Status Notes"},
		{"id": "milestone_field_id", "name": "Milestone", "options": [
			{"id": "v1_option", "name": "v1.0"}
		]},
		{"id": "status_second", "name": "Sub Status", "options": [
			{"id": "x", "name": "Todo"}
		]}
	]}}}`
	addItemResponse = `{"addProjectV2ItemByContentId": {"item": {"id": "item_id"}}}`
	updateResponse  = `{"updateProjectV2ItemFieldValue": {"projectV2Item": {"id": "item_id"}}}`
)

// newBoardAPI は初期化と作成に必要な応答を設定済みのフェイクを返します
func newBoardAPI() *fakeGitHubAPI {
	f := newFakeGitHubAPI()
	f.on(api.UserProjectQuery, userProjectResponse)
	f.on(api.ProjectFieldsQuery, fieldsResponse)
	f.on(api.AddProjectItemMutation, addItemResponse)
	f.on(api.UpdateItemFieldMutation, updateResponse)
	f.on(api.RepositoryIssuesQuery, `{"repository": {"issues": {"nodes": [], "pageInfo": {"hasNextPage": false}}}}`)
	return f
}
