package api

// ExistingIssuePageSize は既存イシュー取得時の取得件数です
const ExistingIssuePageSize = 100

const (
	ViewerQuery = `
query {
	viewer {
		login
	}
}`

	UserProjectQuery = `
query($owner: String!, $number: Int!) {
	user(login: $owner) {
		projectV2(number: $number) {
			id
			title
		}
	}
}`

	OrganizationProjectQuery = `
query($owner: String!, $number: Int!) {
	organization(login: $owner) {
		projectV2(number: $number) {
			id
			title
		}
	}
}`

	ProjectFieldsQuery = `
query($projectId: ID!) {
	node(id: $projectId) {
		... on ProjectV2 {
			fields(first: 20) {
				nodes {
					... on ProjectV2Field {
						id
						name
					}
					... on ProjectV2SingleSelectField {
						id
						name
						options {
							id
							name
						}
					}
				}
			}
		}
	}
}`

	RepositoryIssuesQuery = `
query($owner: String!, $repo: String!, $first: Int!) {
	repository(owner: $owner, name: $repo) {
		issues(first: $first, states: [OPEN, CLOSED], orderBy: {field: CREATED_AT, direction: DESC}) {
			nodes {
				title
				body
				url
			}
			pageInfo {
				hasNextPage
			}
		}
	}
}`

	AddProjectItemMutation = `
mutation($projectId: ID!, $contentId: ID!) {
	addProjectV2ItemByContentId(input: {
		projectId: $projectId
		contentId: $contentId
	}) {
		item {
			id
		}
	}
}`

	UpdateItemFieldMutation = `
mutation($projectId: ID!, $itemId: ID!, $fieldId: ID!, $value: ProjectV2FieldValue!) {
	updateProjectV2ItemFieldValue(input: {
		projectId: $projectId
		itemId: $itemId
		fieldId: $fieldId
		value: $value
	}) {
		projectV2Item {
			id
		}
	}
}`
)
