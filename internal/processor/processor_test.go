package processor

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/PartnerPiloting/leadscorer/internal/core"
	"github.com/PartnerPiloting/leadscorer/internal/model"
	"github.com/PartnerPiloting/leadscorer/internal/tenant"
)

func TestS1HappyPathRepostByAnotherAuthor(t *testing.T) {
	store := newFakeStore()
	h, _ := store.Open(context.Background(), "acme")
	lead := core.Lead{
		ID:          "lead-1",
		LinkedInURL: "https://www.linkedin.com/in/jane-doe/",
		PostsContent: []interface{}{
			core.Post{
				PostURL:   "https://linkedin.com/posts/foo-activity-7100000000000000000-AAAA/",
				PostContent: "x",
				AuthorURL: "https://linkedin.com/in/other-person/",
				Action:    "Repost",
			},
		},
	}
	store.leads[lead.ID] = lead

	mock := &model.MockClient{StaticResults: []core.AIScore{
		{PostURL: "https://linkedin.com/posts/foo-activity-7100000000000000000-AAAA/", PostScore: 73, ScoringRationale: "ok"},
	}}

	p := New(store, mock, nil, nil, nil)
	outcome := p.Process(context.Background(), h, tenant.TableLeads, lead, "system prompt")

	require.Equal(t, StatusSuccess, outcome.Status)
	assert.Equal(t, 73, outcome.RelevanceScore)

	stored := store.leads[lead.ID]
	assert.Equal(t, 73, stored.RelevanceScore)
	assert.Contains(t, stored.TopScoringPost, "REPOST - ORIGINAL AUTHOR: https://linkedin.com/in/other-person/")
	assert.False(t, stored.DateScored.IsZero())
}

func TestS2SelfRepostTreatedAsOriginal(t *testing.T) {
	store := newFakeStore()
	h, _ := store.Open(context.Background(), "acme")
	lead := core.Lead{
		ID:          "lead-2",
		LinkedInURL: "https://www.linkedin.com/in/jane-doe/",
		PostsContent: []interface{}{
			core.Post{
				PostURL:     "https://linkedin.com/posts/foo-activity-7100000000000000000-AAAA/",
				PostContent: "x",
				AuthorURL:   "https://www.linkedin.com/in/jane-doe/",
				Action:      "repost",
			},
		},
	}
	store.leads[lead.ID] = lead

	mock := &model.MockClient{StaticResults: []core.AIScore{
		{PostURL: "https://linkedin.com/posts/foo-activity-7100000000000000000-AAAA/", PostScore: 60, ScoringRationale: "ok"},
	}}

	p := New(store, mock, nil, nil, nil)
	outcome := p.Process(context.Background(), h, tenant.TableLeads, lead, "system prompt")

	require.Equal(t, StatusSuccess, outcome.Status)
	stored := store.leads[lead.ID]
	assert.NotContains(t, stored.TopScoringPost, "REPOST - ORIGINAL AUTHOR:")
	assert.NotContains(t, stored.AIEvaluation, `"IsRepost": true`)
}

func TestS3UnparseableContent(t *testing.T) {
	store := newFakeStore()
	h, _ := store.Open(context.Background(), "acme")
	lead := core.Lead{
		ID:           "lead-3",
		PostsContent: `[{"postContent":"he said "hi" there"}`,
	}
	store.leads[lead.ID] = lead

	mock := model.NewMockClient()
	p := New(store, mock, nil, nil, nil)
	outcome := p.Process(context.Background(), h, tenant.TableLeads, lead, "system prompt")

	require.Equal(t, StatusError, outcome.Status)
	assert.Equal(t, ReasonUnparseableJSON, outcome.Reason)

	stored := store.leads[lead.ID]
	assert.Equal(t, 0, stored.RelevanceScore)
	assert.Contains(t, stored.AIEvaluation, "JSON_PARSE_ERROR:")
	assert.Equal(t, "Failed", stored.PostsJSONStatus)
	assert.False(t, stored.DateScored.IsZero())
}

func TestS4EmptyParsedArray(t *testing.T) {
	store := newFakeStore()
	h, _ := store.Open(context.Background(), "acme")
	lead := core.Lead{ID: "lead-4", PostsContent: `[]`}
	store.leads[lead.ID] = lead

	mock := model.NewMockClient()
	p := New(store, mock, nil, nil, nil)
	outcome := p.Process(context.Background(), h, tenant.TableLeads, lead, "system prompt")

	require.Equal(t, StatusSkipped, outcome.Status)
	assert.Equal(t, ReasonNoPostsParsed, outcome.Reason)
	stored := store.leads[lead.ID]
	assert.Equal(t, ReasonNoPostsParsed, stored.SkipReason)
	assert.False(t, stored.DateScored.IsZero())
}

func TestS5ModelTimeout(t *testing.T) {
	store := newFakeStore()
	h, _ := store.Open(context.Background(), "acme")
	lead := core.Lead{
		ID:          "lead-5",
		LinkedInURL: "https://www.linkedin.com/in/jane-doe/",
		PostsContent: []interface{}{
			core.Post{PostURL: "https://linkedin.com/posts/1", PostContent: "x"},
		},
	}
	store.leads[lead.ID] = lead

	mock := &model.MockClient{ScoreFunc: func(ctx context.Context, req model.Request) (model.Response, error) {
		return model.Response{}, &model.ScoringError{Err: core.ErrModelTimeout, FinishReason: "TIMEOUT"}
	}}

	p := New(store, mock, nil, nil, nil)
	outcome := p.Process(context.Background(), h, tenant.TableLeads, lead, "system prompt")

	require.Equal(t, StatusError, outcome.Status)
	assert.Equal(t, CategoryTimeout, outcome.Category)
	stored := store.leads[lead.ID]
	assert.Contains(t, stored.AIEvaluation, "timestamp=")
	assert.False(t, stored.DateScored.IsZero())
}

func TestS7TolerantUpdateRetriesOnlySkipReason(t *testing.T) {
	store := newFakeStore()
	store.schema[tenant.TableLeads] = map[string]bool{
		tenant.FieldRelevanceScore: true,
		tenant.FieldAIEvaluation:   true,
		tenant.FieldTopScoringPost: true,
		tenant.FieldDateScored:     true,
		// FieldSkipReason intentionally absent: this tenant's table
		// doesn't define "Posts Skip Reason".
	}
	h, _ := store.Open(context.Background(), "acme")
	lead := core.Lead{
		ID:          "lead-7",
		LinkedInURL: "https://www.linkedin.com/in/jane-doe/",
		PostsContent: []interface{}{
			core.Post{PostURL: "https://linkedin.com/posts/1", PostContent: "x"},
		},
	}
	store.leads[lead.ID] = lead

	mock := &model.MockClient{StaticResults: []core.AIScore{
		{PostURL: "https://linkedin.com/posts/1", PostScore: 88, ScoringRationale: "great"},
	}}

	p := New(store, mock, nil, nil, nil)
	outcome := p.Process(context.Background(), h, tenant.TableLeads, lead, "system prompt")

	require.Equal(t, StatusSuccess, outcome.Status)
	stored := store.leads[lead.ID]
	assert.Equal(t, 88, stored.RelevanceScore)
	assert.Contains(t, stored.AIEvaluation, "great")
}

func TestIdempotencyNoContentSkipStillMarksDateScored(t *testing.T) {
	store := newFakeStore()
	h, _ := store.Open(context.Background(), "acme")
	lead := core.Lead{ID: "lead-8", PostsContent: ""}
	store.leads[lead.ID] = lead

	p := New(store, model.NewMockClient(), nil, nil, nil)
	outcome := p.Process(context.Background(), h, tenant.TableLeads, lead, "prompt")

	require.Equal(t, StatusSkipped, outcome.Status)
	assert.Equal(t, ReasonNoContent, outcome.Reason)
	assert.False(t, store.leads[lead.ID].DateScored.IsZero())
}
