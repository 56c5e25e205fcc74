package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/poiesic/pagewise/ai/mock"
	"github.com/poiesic/pagewise/chat"
	"github.com/poiesic/pagewise/core"
	"github.com/poiesic/pagewise/ingestion"
	"github.com/poiesic/pagewise/search"
	"github.com/poiesic/pagewise/storage"
	"github.com/poiesic/pagewise/storage/badger"
	"github.com/poiesic/pagewise/storage/storagetest"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSubmitter struct {
	mu     sync.Mutex
	events []ingestion.Event
	texts  []ingestion.TextDocument
	err    error
}

func (f *fakeSubmitter) IngestText(ctx context.Context, doc ingestion.TextDocument) (*ingestion.Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	f.texts = append(f.texts, doc)
	return &ingestion.Result{DocumentID: doc.ID, Stage: ingestion.StagePersisted, Chunks: 1, Records: 1}, nil
}

func (f *fakeSubmitter) Submit(event ingestion.Event) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	if event.DocumentID == "" {
		return ingestion.ErrDocumentIDRequired
	}
	f.events = append(f.events, event)
	return nil
}

func (f *fakeSubmitter) QueueLength() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.events)
}

type fixedRetriever []*core.SearchResult

func (r fixedRetriever) Search(ctx context.Context, query string, topK int, filter *storage.Filter) ([]*core.SearchResult, error) {
	return r, nil
}

func (r fixedRetriever) TopK() int { return 5 }

type failingResponder struct{ err error }

func (f failingResponder) Respond(ctx context.Context, conversationID, question string, opts ...chat.RespondOption) (*chat.Answer, error) {
	return nil, f.err
}

type testEnv struct {
	server    *Server
	submitter *fakeSubmitter
	store     storage.Store
}

func setupTestServer(t *testing.T) *testEnv {
	t.Helper()
	store, err := badger.NewMemoryStore(storagetest.Schema())
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	record := storagetest.Record("P1", 0, 1, 0, 0)
	record.Metadata[core.MetaTitle] = "Onboarding"
	retriever := fixedRetriever{{Record: record, Score: 0.9}}

	responder, err := chat.NewResponder(retriever, store.Conversations(), mock.NewMockProvider())
	require.NoError(t, err)

	submitter := &fakeSubmitter{}
	srv, err := New(submitter, responder, store.Conversations(), WithGatherer(prometheus.NewRegistry()))
	require.NoError(t, err)
	return &testEnv{server: srv, submitter: submitter, store: store}
}

func do(t *testing.T, h http.Handler, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestNewValidation(t *testing.T) {
	store, err := badger.NewMemoryStore(storagetest.Schema())
	require.NoError(t, err)
	defer store.Close()

	_, err = New(nil, failingResponder{}, store.Conversations())
	assert.ErrorIs(t, err, ErrSubmitterRequired)
	_, err = New(&fakeSubmitter{}, nil, store.Conversations())
	assert.ErrorIs(t, err, ErrResponderRequired)
	_, err = New(&fakeSubmitter{}, failingResponder{}, nil)
	assert.ErrorIs(t, err, ErrConversationRepositoryRequired)
}

func TestWebhook(t *testing.T) {
	env := setupTestServer(t)
	h := env.server.Handler()

	t.Run("accepted", func(t *testing.T) {
		rec := do(t, h, http.MethodPost, "/webhook/confluence", `{"event":"page_updated","page":{"id":12345}}`)
		assert.Equal(t, http.StatusAccepted, rec.Code)
		assert.JSONEq(t, `{"status":"accepted","event":"page_updated","page_id":"12345"}`, rec.Body.String())
		require.Len(t, env.submitter.events, 1)
		assert.Equal(t, ingestion.Event{DocumentID: "12345", Kind: ingestion.KindUpdated}, env.submitter.events[0])
	})

	t.Run("ignored event", func(t *testing.T) {
		rec := do(t, h, http.MethodPost, "/webhook/confluence", `{"event":"page_removed","page":{"id":"9"}}`)
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Contains(t, rec.Body.String(), `"ignored"`)
		assert.Len(t, env.submitter.events, 1)
	})

	t.Run("malformed body", func(t *testing.T) {
		rec := do(t, h, http.MethodPost, "/webhook/confluence", `{"event":`)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("missing page id", func(t *testing.T) {
		rec := do(t, h, http.MethodPost, "/webhook/confluence", `{"event":"page_created"}`)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("queue full", func(t *testing.T) {
		env.submitter.err = fmt.Errorf("%w: 256 events waiting", ingestion.ErrQueueFull)
		defer func() { env.submitter.err = nil }()
		rec := do(t, h, http.MethodPost, "/webhook/confluence", `{"event":"page_created","page":{"id":"7"}}`)
		assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	})
}

func TestChat(t *testing.T) {
	env := setupTestServer(t)
	h := env.server.Handler()

	rec := do(t, h, http.MethodPost, "/chat", `{"conversation_id":"conv1","question":"How do I onboard?"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp chatResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "conv1", resp.ConversationID)
	assert.Contains(t, resp.Answer, "echo: ")
	require.Len(t, resp.Sources, 1)
	assert.Equal(t, "P1#0", resp.Sources[0].NodeID)
	assert.Equal(t, "Onboarding", resp.Sources[0].Title)

	rec = do(t, h, http.MethodGet, "/history/conv1", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var history historyResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &history))
	require.Len(t, history.Turns, 2)
	assert.Equal(t, core.RoleUser, history.Turns[0].Role)
	assert.Equal(t, "How do I onboard?", history.Turns[0].Content)
	assert.Equal(t, core.RoleAssistant, history.Turns[1].Role)
	assert.Less(t, history.Turns[0].Index, history.Turns[1].Index)

	rec = do(t, h, http.MethodGet, "/history/conv1?limit=1", "")
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &history))
	require.Len(t, history.Turns, 1)
	assert.Equal(t, core.RoleAssistant, history.Turns[0].Role)

	rec = do(t, h, http.MethodDelete, "/history/conv1", "")
	assert.Equal(t, http.StatusNoContent, rec.Code)
	turns, err := env.store.Conversations().Recent(context.Background(), "conv1", 10)
	require.NoError(t, err)
	assert.Empty(t, turns)
}

func TestChatBadRequests(t *testing.T) {
	env := setupTestServer(t)
	h := env.server.Handler()

	assert.Equal(t, http.StatusBadRequest, do(t, h, http.MethodPost, "/chat", `not json`).Code)
	assert.Equal(t, http.StatusBadRequest, do(t, h, http.MethodPost, "/chat", `{"question":"hi"}`).Code)
	assert.Equal(t, http.StatusBadRequest, do(t, h, http.MethodPost, "/chat", `{"conversation_id":"c","question":"  "}`).Code)
	assert.Equal(t, http.StatusBadRequest, do(t, h, http.MethodGet, "/history/c?limit=x", "").Code)
}

func TestChatErrorMapping(t *testing.T) {
	store, err := badger.NewMemoryStore(storagetest.Schema())
	require.NoError(t, err)
	defer store.Close()

	tests := []struct {
		name string
		err  error
		want int
	}{
		{"generation", fmt.Errorf("%w: model offline", core.ErrGeneration), http.StatusBadGateway},
		{"embedding", fmt.Errorf("%w: timeout", core.ErrEmbeddingBackend), http.StatusBadGateway},
		{"store", fmt.Errorf("%w: closed", core.ErrStoreUnavailable), http.StatusServiceUnavailable},
		{"other", errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv, err := New(&fakeSubmitter{}, failingResponder{err: tt.err}, store.Conversations(), WithGatherer(prometheus.NewRegistry()))
			require.NoError(t, err)
			rec := do(t, srv.Handler(), http.MethodPost, "/chat", `{"conversation_id":"c","question":"q"}`)
			assert.Equal(t, tt.want, rec.Code)
			assert.Contains(t, rec.Body.String(), tt.err.Error())
		})
	}
}

func TestHealthAndMetrics(t *testing.T) {
	store, err := badger.NewMemoryStore(storagetest.Schema())
	require.NoError(t, err)
	defer store.Close()

	reg := prometheus.NewRegistry()
	counter := prometheus.NewCounter(prometheus.CounterOpts{Name: "pagewise_test_total", Help: "test"})
	reg.MustRegister(counter)
	counter.Inc()

	submitter := &fakeSubmitter{events: []ingestion.Event{{DocumentID: "1", Kind: ingestion.KindCreated}}}
	srv, err := New(submitter, failingResponder{}, store.Conversations(), WithGatherer(reg))
	require.NoError(t, err)

	rec := do(t, srv.Handler(), http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok","queue_length":1}`, rec.Body.String())

	rec = do(t, srv.Handler(), http.MethodGet, "/metrics", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "pagewise_test_total 1")
}

func TestCreateEmbeddings(t *testing.T) {
	env := setupTestServer(t)
	h := env.server.Handler()

	rec := do(t, h, http.MethodPost, "/embeddings/create",
		`{"node_id":"note-1","text":"Alpha.","metadata":{"title":"Notes"},"labels":["Ops"],"document_type":"confluence"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.JSONEq(t, `{"status":"accepted","node_id":"note-1","chunks":1,"records":1}`, rec.Body.String())

	require.Len(t, env.submitter.texts, 1)
	assert.Equal(t, ingestion.TextDocument{
		ID:       "note-1",
		Text:     "Alpha.",
		Metadata: map[string]string{"title": "Notes"},
		Labels:   []string{"Ops"},
		Type:     "confluence",
	}, env.submitter.texts[0])

	assert.Equal(t, http.StatusBadRequest, do(t, h, http.MethodPost, "/embeddings/create", `{"node_id":`).Code)

	env.submitter.err = fmt.Errorf("%w: timeout", core.ErrEmbeddingBackend)
	rec = do(t, h, http.MethodPost, "/embeddings/create", `{"node_id":"n","text":"t"}`)
	assert.Equal(t, http.StatusBadGateway, rec.Code)
}

func TestRetrieverQueryNotRegisteredWithoutRetriever(t *testing.T) {
	env := setupTestServer(t)
	rec := do(t, env.server.Handler(), http.MethodPost, "/retriever/query", `{"query":"q"}`)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

// setupIndexingServer wires a real pipeline and searcher over one badger store.
func setupIndexingServer(t *testing.T) http.Handler {
	t.Helper()
	schema := storagetest.Schema()
	schema.Dimension = mock.DefaultDimension
	store, err := badger.NewMemoryStore(schema)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	provider := mock.NewMockProvider()
	pipeline, err := ingestion.NewPipeline(noSource{}, store.Vectors(), provider,
		ingestion.WithChunking(20, 5),
		ingestion.WithRegisterer(prometheus.NewRegistry()),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = pipeline.Release() })

	searcher, err := search.NewSearcher(store.Vectors(), provider, search.WithTopK(3))
	require.NoError(t, err)
	responder, err := chat.NewResponder(searcher, store.Conversations(), provider)
	require.NoError(t, err)

	srv, err := New(pipeline, responder, store.Conversations(),
		WithRetriever(searcher),
		WithGatherer(prometheus.NewRegistry()),
	)
	require.NoError(t, err)
	return srv.Handler()
}

type noSource struct{}

func (noSource) Fetch(ctx context.Context, id string) (*core.Document, error) {
	return nil, fmt.Errorf("%w: no source", core.ErrFetch)
}

func TestCreateEmbeddingsThenQuery(t *testing.T) {
	h := setupIndexingServer(t)

	rec := do(t, h, http.MethodPost, "/embeddings/create",
		`{"node_id":"N1","text":"Alpha paragraph. Beta paragraph.","labels":["ops"]}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.JSONEq(t, `{"status":"accepted","node_id":"N1","chunks":2,"records":2}`, rec.Body.String())

	rec = do(t, h, http.MethodPost, "/embeddings/create",
		`{"node_id":"N2","text":"Gamma paragraph.","labels":["finance"]}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = do(t, h, http.MethodPost, "/retriever/query", `{"query":"Gamma paragraph."}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var resp queryResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, 3, resp.TopK)
	assert.Equal(t, 3, resp.TotalHits)
	require.Len(t, resp.Results, 3)
	assert.Equal(t, "N2#0", resp.Results[0].NodeID)
	assert.InDelta(t, 1.0, resp.Results[0].Score, 1e-5)
	assert.Equal(t, "Gamma paragraph.", resp.Results[0].Text)
	assert.Equal(t, "finance", resp.Results[0].Metadata[core.MetaLabels])

	rec = do(t, h, http.MethodPost, "/retriever/query", `{"query":"Gamma paragraph.","top_k":5,"labels":["ops"]}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	resp = queryResponse{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, 5, resp.TopK)
	require.Len(t, resp.Results, 2)
	for _, hit := range resp.Results {
		assert.Equal(t, "ops", hit.Metadata[core.MetaLabels])
	}
}

func TestRetrieverQueryBadRequests(t *testing.T) {
	h := setupIndexingServer(t)

	assert.Equal(t, http.StatusBadRequest, do(t, h, http.MethodPost, "/retriever/query", `not json`).Code)
	assert.Equal(t, http.StatusBadRequest, do(t, h, http.MethodPost, "/retriever/query", `{"query":"  "}`).Code)
	assert.Equal(t, http.StatusBadRequest, do(t, h, http.MethodPost, "/retriever/query", `{"query":"q","top_k":-1}`).Code)
	assert.Equal(t, http.StatusBadRequest, do(t, h, http.MethodPost, "/embeddings/create", `{"node_id":"n","text":"  "}`).Code)
	assert.Equal(t, http.StatusBadRequest, do(t, h, http.MethodPost, "/embeddings/create", `{"text":"hello"}`).Code)
}
