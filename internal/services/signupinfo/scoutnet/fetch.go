package scoutnet

import (
	"context"
	"fmt"
	"net/url"
	"strconv"

	"github.com/Scouterna/j26-signupinfo/internal/services/signupinfo/forms"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"
)

// QuestionsURL returns the form index endpoint of a project.
func (c *Client) QuestionsURL(p Project) string {
	return c.endpoint("questions", url.Values{"id": {strconv.Itoa(p.ID)}, "key": {p.QuestionKey}})
}

// ParticipantsURL returns the participants endpoint of a project.
func (c *Client) ParticipantsURL(p Project) string {
	return c.endpoint("participants", url.Values{"id": {strconv.Itoa(p.ID)}, "key": {p.MemberKey}})
}

// GroupsURL returns the flat groups endpoint of a project.
func (c *Client) GroupsURL(p Project) string {
	return c.endpoint("groups", url.Values{"flat": {"true"}, "id": {strconv.Itoa(p.ID)}, "key": {p.GroupKey}})
}

// FetchProject fetches every document of one project. The form index is
// requested first since it lists the form endpoints; participants and groups
// are fetched alongside it, and the forms fan out once the index arrives.
// The first failure cancels the remaining requests.
func (c *Client) FetchProject(ctx context.Context, p Project) (forms.RawProject, error) {
	ctx, span := c.tracer.Start(ctx, "scoutnet.fetch_project", trace.WithAttributes(
		attribute.Int("scoutnet.project_id", p.ID),
		attribute.Bool("scoutnet.grouped", p.HasGroups()),
	))
	defer span.End()

	raw := forms.RawProject{ProjectID: p.ID, ProjectName: p.Name}
	var formDocs []forms.FormDocument

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var index forms.FormIndex
		if err := c.Get(gctx, c.QuestionsURL(p), &index); err != nil {
			return fmt.Errorf("fetch form index: %w", err)
		}
		docs, err := c.fetchForms(gctx, index.EndpointURLs())
		if err != nil {
			return err
		}
		formDocs = docs
		return nil
	})
	g.Go(func() error {
		if err := c.Get(gctx, c.ParticipantsURL(p), &raw.Participants); err != nil {
			return fmt.Errorf("fetch participants: %w", err)
		}
		return nil
	})
	if p.HasGroups() {
		g.Go(func() error {
			var groups forms.GroupsDocument
			if err := c.Get(gctx, c.GroupsURL(p), &groups); err != nil {
				return fmt.Errorf("fetch groups: %w", err)
			}
			if groups == nil {
				groups = forms.GroupsDocument{}
			}
			raw.Groups = groups
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		span.RecordError(err)
		return forms.RawProject{}, fmt.Errorf("project %d: %w", p.ID, err)
	}

	raw.Questions = forms.MergeForms(formDocs)
	span.SetAttributes(attribute.Int("scoutnet.forms", len(formDocs)))
	return raw, nil
}

// fetchForms fetches all form endpoints concurrently and returns the
// documents in endpoint order.
func (c *Client) fetchForms(ctx context.Context, endpoints []string) ([]forms.FormDocument, error) {
	docs := make([]forms.FormDocument, len(endpoints))
	g, gctx := errgroup.WithContext(ctx)
	for i, endpoint := range endpoints {
		g.Go(func() error {
			if err := c.Get(gctx, endpoint, &docs[i]); err != nil {
				return fmt.Errorf("fetch form: %w", err)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return docs, nil
}

// FetchAll fetches all projects concurrently. Results keep the order of
// projects; any failure fails the whole call.
func (c *Client) FetchAll(ctx context.Context, projects []Project) ([]forms.RawProject, error) {
	ctx, span := c.tracer.Start(ctx, "scoutnet.fetch_all", trace.WithAttributes(
		attribute.Int("scoutnet.projects", len(projects)),
	))
	defer span.End()

	results := make([]forms.RawProject, len(projects))
	g, gctx := errgroup.WithContext(ctx)
	for i, p := range projects {
		g.Go(func() error {
			raw, err := c.FetchProject(gctx, p)
			if err != nil {
				return err
			}
			results[i] = raw
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		span.RecordError(err)
		return nil, err
	}
	return results, nil
}
