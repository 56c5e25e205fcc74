package chat

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/poiesic/pagewise/ai"
	"github.com/poiesic/pagewise/ai/mock"
	"github.com/poiesic/pagewise/core"
	"github.com/poiesic/pagewise/search"
	"github.com/poiesic/pagewise/storage"
	"github.com/poiesic/pagewise/storage/badger"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stubRetriever records its arguments and returns fixed results.
type stubRetriever struct {
	results []*core.SearchResult
	err     error
	topK    int
	filter  *storage.Filter
}

func (s *stubRetriever) Search(ctx context.Context, query string, topK int, filter *storage.Filter) ([]*core.SearchResult, error) {
	s.topK = topK
	s.filter = filter
	return s.results, s.err
}

func setupTestStore(t *testing.T) *badger.Store {
	t.Helper()
	schema := storage.DefaultSchema()
	schema.Dimension = mock.DefaultDimension
	store, err := badger.NewMemoryStore(schema)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func result(nodeID, text string, score float32, metadata map[string]string) *core.SearchResult {
	documentID, index, _ := core.ParseNodeID(nodeID)
	return &core.SearchResult{
		Record: &core.VectorRecord{NodeID: nodeID, DocumentID: documentID, ChunkIndex: index, Text: text, Metadata: metadata},
		Score:  score,
	}
}

func TestNewResponderRequiresDependencies(t *testing.T) {
	store := setupTestStore(t)
	provider := mock.NewMockProvider()

	_, err := NewResponder(nil, store.Conversations(), provider)
	assert.ErrorIs(t, err, ErrRetrieverRequired)
	_, err = NewResponder(&stubRetriever{}, nil, provider)
	assert.ErrorIs(t, err, ErrConversationRepositoryRequired)
	_, err = NewResponder(&stubRetriever{}, store.Conversations(), nil)
	assert.ErrorIs(t, err, ErrAIProviderRequired)
	_, err = NewResponder(&stubRetriever{}, store.Conversations(), provider, WithHistoryTurns(-1))
	assert.Error(t, err)
}

func TestRespondAppendsUserThenAssistant(t *testing.T) {
	ctx := context.Background()
	store := setupTestStore(t)
	_, err := store.Vectors().Upsert(ctx, &core.VectorRecord{
		NodeID:     "P1#0",
		DocumentID: "P1",
		Vector:     mock.Vector("how do I deploy?", mock.DefaultDimension),
		Text:       "Deploy with make release.",
		Metadata:   map[string]string{core.MetaSpaceKey: "ENG", core.MetaTitle: "Deploying"},
	})
	require.NoError(t, err)

	provider := mock.NewMockProvider().WithGenerateOptions(ai.GenerateOptions{Temperature: 0.2, MaxTokens: 256})
	searcher, err := search.NewSearcher(store.Vectors(), provider)
	require.NoError(t, err)
	responder, err := NewResponder(searcher, store.Conversations(), provider)
	require.NoError(t, err)

	answer, err := responder.Respond(ctx, "conv1", "how do I deploy?")
	require.NoError(t, err)

	require.Len(t, answer.Sources, 1)
	assert.Equal(t, "P1#0", answer.Sources[0].Record.NodeID)
	require.Len(t, answer.Messages, 2)
	assert.Equal(t, ai.MessageRoleSystem, answer.Messages[0].Role)
	assert.Equal(t, DefaultSystemPrompt, answer.Messages[0].Content)
	assert.Equal(t, ai.MessageRoleUser, answer.Messages[1].Role)
	assert.Equal(t, "Context:\n[Source 1] score=1.000\nDeploy with make release.\n"+
		"Metadata: space_key=ENG | title=Deploying\n\nQuestion: how do I deploy?", answer.Messages[1].Content)
	assert.Equal(t, "echo: "+answer.Messages[1].Content, answer.Text)

	generator := provider.GetMockGenerator()
	assert.Equal(t, 1, generator.CallCount())
	assert.Equal(t, ai.GenerateOptions{Temperature: 0.2, MaxTokens: 256}, generator.LastOptions())

	turns, err := store.Conversations().Recent(ctx, "conv1", 10)
	require.NoError(t, err)
	require.Len(t, turns, 2)
	assert.Equal(t, core.RoleUser, turns[0].Role)
	assert.Equal(t, "how do I deploy?", turns[0].Content)
	assert.Equal(t, core.RoleAssistant, turns[1].Role)
	assert.Equal(t, answer.Text, turns[1].Content)
	assert.Equal(t, int64(0), turns[0].Index)
	assert.Equal(t, int64(1), turns[1].Index)
	assert.Len(t, answer.Turns, 2)
}

func TestRespondIncludesHistoryInOrder(t *testing.T) {
	ctx := context.Background()
	store := setupTestStore(t)
	for _, content := range []string{"q1", "a1", "q2", "a2"} {
		role := core.RoleUser
		if strings.HasPrefix(content, "a") {
			role = core.RoleAssistant
		}
		_, err := store.Conversations().Append(ctx, &core.ConversationTurn{ConversationID: "conv1", Role: role, Content: content})
		require.NoError(t, err)
	}

	responder, err := NewResponder(&stubRetriever{}, store.Conversations(), mock.NewMockProvider(), WithHistoryTurns(3))
	require.NoError(t, err)

	answer, err := responder.Respond(ctx, "conv1", "q3")
	require.NoError(t, err)

	require.Len(t, answer.Messages, 5)
	assert.Equal(t, ai.Message{Role: ai.MessageRoleAssistant, Content: "a1"}, answer.Messages[1])
	assert.Equal(t, ai.Message{Role: ai.MessageRoleUser, Content: "q2"}, answer.Messages[2])
	assert.Equal(t, ai.Message{Role: ai.MessageRoleAssistant, Content: "a2"}, answer.Messages[3])
	assert.Equal(t, "Context:\n"+NoContext+"\n\nQuestion: q3", answer.Messages[4].Content)

	turns, err := store.Conversations().Recent(ctx, "conv1", 100)
	require.NoError(t, err)
	assert.Len(t, turns, 6)
}

func TestRespondGenerationFailureAppendsNothing(t *testing.T) {
	ctx := context.Background()
	store := setupTestStore(t)
	provider := mock.NewMockProvider()
	provider.GetMockGenerator().GenerateFunc = func(ctx context.Context, messages []ai.Message, opts ai.GenerateOptions) (string, error) {
		return "", errors.New("model overloaded")
	}

	responder, err := NewResponder(&stubRetriever{}, store.Conversations(), provider)
	require.NoError(t, err)

	_, err = responder.Respond(ctx, "conv1", "anything?")
	assert.ErrorIs(t, err, core.ErrGeneration)

	turns, err := store.Conversations().Recent(ctx, "conv1", 10)
	require.NoError(t, err)
	assert.Empty(t, turns)
}

func TestRespondTruncatesSources(t *testing.T) {
	stored := result("P1#0", "  ééééééé tail", 0.87349, nil)
	retriever := &stubRetriever{results: []*core.SearchResult{stored}}
	responder, err := NewResponder(retriever, setupTestStore(t).Conversations(), mock.NewMockProvider(), WithMaxCharsPerSource(4))
	require.NoError(t, err)

	answer, err := responder.Respond(context.Background(), "c", "q")
	require.NoError(t, err)

	require.Len(t, answer.Sources, 1)
	assert.Equal(t, "éééé", answer.Sources[0].Record.Text)
	assert.Equal(t, "  ééééééé tail", stored.Record.Text, "retrieved record is not modified")
	assert.Contains(t, answer.Messages[1].Content, "[Source 1] score=0.873\néééé\n\nQuestion: q")
}

func TestRespondPassesOptionsToRetriever(t *testing.T) {
	retriever := &stubRetriever{}
	responder, err := NewResponder(retriever, setupTestStore(t).Conversations(), mock.NewMockProvider())
	require.NoError(t, err)

	_, err = responder.Respond(context.Background(), "c", "q", WithTopK(7), WithLabels(" Ops", "howto", "ops", ""))
	require.NoError(t, err)
	assert.Equal(t, 7, retriever.topK)
	require.NotNil(t, retriever.filter)
	assert.Equal(t, []string{"howto", "ops"}, retriever.filter.Labels)

	_, err = responder.Respond(context.Background(), "c", "q")
	require.NoError(t, err)
	assert.Zero(t, retriever.topK)
	assert.Nil(t, retriever.filter)
}

func TestRespondErrors(t *testing.T) {
	store := setupTestStore(t)
	retriever := &stubRetriever{}
	provider := mock.NewMockProvider()
	responder, err := NewResponder(retriever, store.Conversations(), provider)
	require.NoError(t, err)

	_, err = responder.Respond(context.Background(), "", "q")
	assert.ErrorIs(t, err, core.ErrEmptyConversationID)
	_, err = responder.Respond(context.Background(), "c", "  ")
	assert.ErrorIs(t, err, ErrEmptyQuestion)

	retriever.err = core.ErrEmbeddingBackend
	_, err = responder.Respond(context.Background(), "c", "q")
	assert.ErrorIs(t, err, core.ErrEmbeddingBackend)
	assert.Zero(t, provider.GetMockGenerator().CallCount())

	retriever.err = nil
	require.NoError(t, store.Close())
	_, err = responder.Respond(context.Background(), "c", "q")
	assert.ErrorIs(t, err, core.ErrStoreUnavailable)
}

func TestRespondMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	provider := mock.NewMockProvider()
	responder, err := NewResponder(&stubRetriever{}, setupTestStore(t).Conversations(), provider, WithRegisterer(reg))
	require.NoError(t, err)

	_, err = responder.Respond(context.Background(), "c", "q")
	require.NoError(t, err)
	provider.GetMockGenerator().GenerateFunc = func(ctx context.Context, messages []ai.Message, opts ai.GenerateOptions) (string, error) {
		return "", core.ErrGeneration
	}
	_, err = responder.Respond(context.Background(), "c", "q")
	require.Error(t, err)

	assert.Equal(t, 1.0, testutil.ToFloat64(responder.metrics.responses.WithLabelValues("answered")))
	assert.Equal(t, 1.0, testutil.ToFloat64(responder.metrics.responses.WithLabelValues("failed")))
}

func TestFormatContext(t *testing.T) {
	assert.Equal(t, NoContext, FormatContext(nil))

	got := FormatContext([]*core.SearchResult{
		result("P1#0", "first", 0.9, map[string]string{"title": "T", "author": "", "space_key": "ENG"}),
		result("P2#3", "second", 0.5, nil),
	})
	assert.Equal(t, "[Source 1] score=0.900\nfirst\nMetadata: space_key=ENG | title=T\n\n[Source 2] score=0.500\nsecond", got)
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "héllo", Truncate("héllo wörld", 5))
	assert.Equal(t, "short", Truncate("short", 10))
	assert.Equal(t, "unbounded", Truncate("unbounded", 0))
	assert.Equal(t, "", Truncate("", 3))
}
