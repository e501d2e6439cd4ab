// Package mcptools exposes the query operations as MCP tools.
package mcptools

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	apperrors "github.com/Scouterna/j26-signupinfo/internal/platform/errors"
	"github.com/Scouterna/j26-signupinfo/internal/services/signupinfo/forms"
	"github.com/Scouterna/j26-signupinfo/internal/services/signupinfo/projectcache"
	"github.com/Scouterna/j26-signupinfo/internal/services/signupinfo/query"
	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// Queries is the read surface the tools call into.
type Queries interface {
	Projects(ctx context.Context) ([]query.ProjectInfo, error)
	ProjectQuestions(ctx context.Context, projectID int) (map[int]*forms.QuestionSection, error)
	ProjectGroups(ctx context.Context, projectID int) ([]query.GroupRef, error)
	GroupResponses(ctx context.Context, projectID int, groupIDs []int) ([]query.GroupStats, error)
	IndividualResponses(ctx context.Context, projectID, memberNo int) (forms.Answers, error)
	SearchMembers(ctx context.Context, projectID int, criteria query.SearchCriteria) ([]query.Member, error)
	Refresh(ctx context.Context) (projectcache.Status, error)
	Status() projectcache.Status
}

// ProjectInput selects a project.
type ProjectInput struct {
	ProjectID int `json:"project_id" jsonschema:"registration project id"`
}

// GroupStatsInput selects groups of a project.
type GroupStatsInput struct {
	ProjectID int   `json:"project_id" jsonschema:"registration project id"`
	GroupIDs  []int `json:"group_ids,omitempty" jsonschema:"group ids; empty means all groups"`
}

// IndividualInput selects one participant.
type IndividualInput struct {
	ProjectID int `json:"project_id" jsonschema:"registration project id"`
	MemberNo  int `json:"member_no" jsonschema:"member number of the participant"`
}

// SearchInput filters participants of a project.
type SearchInput struct {
	ProjectID int    `json:"project_id" jsonschema:"registration project id"`
	Name      string `json:"name,omitempty" jsonschema:"case-insensitive name substring"`
	Born      string `json:"born,omitempty" jsonschema:"birth date prefix, e.g. 2012-05"`
	Troop     string `json:"troop,omitempty" jsonschema:"case-insensitive group name substring"`
}

// StatusResult describes the cache state.
type StatusResult struct {
	Loaded    bool   `json:"loaded"`
	Stale     bool   `json:"stale"`
	UpdatedAt string `json:"updated_at,omitempty"`
	Round     string `json:"round,omitempty"`
	Projects  int    `json:"projects"`
}

func statusResult(status projectcache.Status) StatusResult {
	result := StatusResult{Loaded: status.Loaded, Stale: status.Stale, Projects: status.Projects}
	if status.Loaded {
		result.UpdatedAt = status.UpdatedAt.UTC().Format(time.RFC3339Nano)
		result.Round = status.Round.String()
	}
	return result
}

// Register adds every signup statistics tool to server.
func Register(server *mcp.Server, queries Queries) {
	mcp.AddTool(server, ListProjectsTool(), ListProjectsHandler(queries))
	mcp.AddTool(server, ProjectQuestionsTool(), ProjectQuestionsHandler(queries))
	mcp.AddTool(server, ProjectGroupsTool(), ProjectGroupsHandler(queries))
	mcp.AddTool(server, GroupStatsTool(), GroupStatsHandler(queries))
	mcp.AddTool(server, IndividualAnswersTool(), IndividualAnswersHandler(queries))
	mcp.AddTool(server, SearchMembersTool(), SearchMembersHandler(queries))
	mcp.AddTool(server, RefreshCacheTool(), RefreshCacheHandler(queries))
	mcp.AddTool(server, CacheStatusTool(), CacheStatusHandler(queries))
}

func ListProjectsTool() *mcp.Tool {
	return &mcp.Tool{
		Name:        "list_projects",
		Description: "Lists the configured registration projects",
	}
}

func ListProjectsHandler(queries Queries) mcp.ToolHandlerFor[struct{}, any] {
	return func(ctx context.Context, _ *mcp.CallToolRequest, _ struct{}) (*mcp.CallToolResult, any, error) {
		projects, err := queries.Projects(ctx)
		return respond(projects, err)
	}
}

func ProjectQuestionsTool() *mcp.Tool {
	return &mcp.Tool{
		Name:        "project_questions",
		Description: "Lists a project's form questions grouped by section",
	}
}

func ProjectQuestionsHandler(queries Queries) mcp.ToolHandlerFor[ProjectInput, any] {
	return func(ctx context.Context, _ *mcp.CallToolRequest, input ProjectInput) (*mcp.CallToolResult, any, error) {
		questions, err := queries.ProjectQuestions(ctx, input.ProjectID)
		return respond(questions, err)
	}
}

func ProjectGroupsTool() *mcp.Tool {
	return &mcp.Tool{
		Name:        "project_groups",
		Description: "Lists a project's groups ordered by name",
	}
}

func ProjectGroupsHandler(queries Queries) mcp.ToolHandlerFor[ProjectInput, any] {
	return func(ctx context.Context, _ *mcp.CallToolRequest, input ProjectInput) (*mcp.CallToolResult, any, error) {
		groups, err := queries.ProjectGroups(ctx, input.ProjectID)
		return respond(groups, err)
	}
}

func GroupStatsTool() *mcp.Tool {
	return &mcp.Tool{
		Name:        "group_stats",
		Description: "Returns aggregated signup statistics for groups of a project",
	}
}

func GroupStatsHandler(queries Queries) mcp.ToolHandlerFor[GroupStatsInput, any] {
	return func(ctx context.Context, _ *mcp.CallToolRequest, input GroupStatsInput) (*mcp.CallToolResult, any, error) {
		stats, err := queries.GroupResponses(ctx, input.ProjectID, input.GroupIDs)
		return respond(stats, err)
	}
}

func IndividualAnswersTool() *mcp.Tool {
	return &mcp.Tool{
		Name:        "individual_answers",
		Description: "Returns one participant's raw form answers",
	}
}

func IndividualAnswersHandler(queries Queries) mcp.ToolHandlerFor[IndividualInput, any] {
	return func(ctx context.Context, _ *mcp.CallToolRequest, input IndividualInput) (*mcp.CallToolResult, any, error) {
		answers, err := queries.IndividualResponses(ctx, input.ProjectID, input.MemberNo)
		return respond(answers, err)
	}
}

func SearchMembersTool() *mcp.Tool {
	return &mcp.Tool{
		Name:        "search_members",
		Description: "Searches participants by name, birth date prefix and group name",
	}
}

func SearchMembersHandler(queries Queries) mcp.ToolHandlerFor[SearchInput, any] {
	return func(ctx context.Context, _ *mcp.CallToolRequest, input SearchInput) (*mcp.CallToolResult, any, error) {
		members, err := queries.SearchMembers(ctx, input.ProjectID, query.SearchCriteria{
			Name:  input.Name,
			Born:  input.Born,
			Troop: input.Troop,
		})
		return respond(members, err)
	}
}

func RefreshCacheTool() *mcp.Tool {
	return &mcp.Tool{
		Name:        "refresh_cache",
		Description: "Reloads all projects from the registration API now",
	}
}

func RefreshCacheHandler(queries Queries) mcp.ToolHandlerFor[struct{}, any] {
	return func(ctx context.Context, _ *mcp.CallToolRequest, _ struct{}) (*mcp.CallToolResult, any, error) {
		status, err := queries.Refresh(ctx)
		if err != nil {
			return errorResult(err), nil, nil
		}
		return respond(statusResult(status), nil)
	}
}

func CacheStatusTool() *mcp.Tool {
	return &mcp.Tool{
		Name:        "cache_status",
		Description: "Reports when the project cache was last loaded",
	}
}

func CacheStatusHandler(queries Queries) mcp.ToolHandlerFor[struct{}, any] {
	return func(_ context.Context, _ *mcp.CallToolRequest, _ struct{}) (*mcp.CallToolResult, any, error) {
		return respond(statusResult(queries.Status()), nil)
	}
}

// respond renders a query outcome as JSON text content. Coded errors become
// tool error results; anything else is a protocol-level failure.
func respond(value any, err error) (*mcp.CallToolResult, any, error) {
	if err != nil {
		code := apperrors.CodeOf(err)
		if code == apperrors.CodeUnknown {
			return nil, nil, err
		}
		if !code.Expected() {
			log.Printf("mcp tool: %v", err)
		}
		return errorResult(err), nil, nil
	}
	data, err := json.Marshal(value)
	if err != nil {
		return nil, nil, fmt.Errorf("encode result: %w", err)
	}
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			&mcp.TextContent{Text: string(data)},
		},
	}, nil, nil
}

func errorResult(err error) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		IsError: true,
		Content: []mcp.Content{
			&mcp.TextContent{Text: fmt.Sprintf("%s: %v", apperrors.CodeOf(err), err)},
		},
	}
}
