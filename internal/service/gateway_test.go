package service

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"mime/multipart"
	"os"
	"testing"
	"time"

	"github.com/Rrens/policy-assistant/internal/aiclient"
	"github.com/Rrens/policy-assistant/internal/domain"
	"github.com/Rrens/policy-assistant/internal/repository/uploads"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func newTestGateway(t *testing.T) (*GatewayService, *MockSessionStore, *MockAIService, *uploads.Store) {
	t.Helper()
	store, err := uploads.NewStore(t.TempDir())
	require.NoError(t, err)

	sessions := new(MockSessionStore)
	ai := new(MockAIService)
	svc := NewGatewayService(sessions, store, ai, GatewayOptions{TopK: 5, Threshold: 0.3, MaxDocuments: 5})
	return svc, sessions, ai, store
}

func fileHeaders(t *testing.T, field string, files map[string]string) []*multipart.FileHeader {
	t.Helper()
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	for name, content := range files {
		part, err := w.CreateFormFile(field, name)
		require.NoError(t, err)
		_, err = part.Write([]byte(content))
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())

	form, err := multipart.NewReader(&buf, w.Boundary()).ReadForm(1 << 20)
	require.NoError(t, err)
	t.Cleanup(func() { form.RemoveAll() })
	return form.File[field]
}

func dirEntries(t *testing.T, store *uploads.Store) []string {
	t.Helper()
	entries, err := os.ReadDir(store.Dir())
	require.NoError(t, err)
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name())
	}
	return names
}

func nowForTest() time.Time {
	return time.UnixMilli(1_700_000_000_000)
}

// applyTouch runs the mutation passed to Touch against session
func applyTouch(session *domain.Session) func(mock.Arguments) {
	return func(args mock.Arguments) {
		args.Get(2).(func(*domain.Session))(session)
	}
}

func TestGatewayService_InitiateSession(t *testing.T) {
	svc, sessions, _, _ := newTestGateway(t)
	ctx := context.Background()

	t.Run("success", func(t *testing.T) {
		sessions.On("Create", ctx).Return("session_abc", nil).Once()

		id, err := svc.InitiateSession(ctx)
		assert.NoError(t, err)
		assert.Equal(t, "session_abc", id)
	})

	t.Run("store down", func(t *testing.T) {
		sessions.On("Create", ctx).Return("", domain.ErrStoreUnavailable).Once()

		_, err := svc.InitiateSession(ctx)
		assert.ErrorIs(t, err, domain.ErrStoreUnavailable)
	})
}

func TestGatewayService_ValidateSession(t *testing.T) {
	svc, sessions, _, _ := newTestGateway(t)
	ctx := context.Background()

	sessions.On("Validate", ctx, "session_live").Return(true, nil)
	sessions.On("Validate", ctx, "session_gone").Return(false, nil)

	valid, err := svc.ValidateSession(ctx, "session_live")
	assert.NoError(t, err)
	assert.True(t, valid)

	valid, err = svc.ValidateSession(ctx, "session_gone")
	assert.NoError(t, err)
	assert.False(t, valid)

	_, err = svc.ValidateSession(ctx, "")
	assert.ErrorIs(t, err, domain.ErrValidation)
}

func TestGatewayService_Upload(t *testing.T) {
	ctx := context.Background()

	t.Run("records upload on live session", func(t *testing.T) {
		svc, sessions, _, store := newTestGateway(t)
		session := domain.NewSession(nowForTest())
		sessions.On("Touch", ctx, "session_1", mock.Anything).
			Run(applyTouch(session)).
			Return(domain.TouchApplied, nil)

		header := fileHeaders(t, "file", map[string]string{"policy.pdf": "terms"})[0]
		upload, err := svc.Upload(ctx, "session_1", header)
		require.NoError(t, err)

		assert.Regexp(t, `^\d+-policy\.pdf$`, upload.StoredName)
		assert.True(t, store.Exists(upload.StoredName))
		require.Len(t, session.Uploads, 1)
		assert.Equal(t, domain.UploadRecord{Filename: upload.StoredName, OriginalName: "policy.pdf"}, session.Uploads[0])
	})

	t.Run("missing session does not fail upload", func(t *testing.T) {
		svc, sessions, _, store := newTestGateway(t)
		sessions.On("Touch", ctx, "session_gone", mock.Anything).Return(domain.TouchSessionMissing, nil)

		header := fileHeaders(t, "file", map[string]string{"policy.pdf": "terms"})[0]
		upload, err := svc.Upload(ctx, "session_gone", header)
		require.NoError(t, err)
		assert.True(t, store.Exists(upload.StoredName))
	})

	t.Run("store error does not fail upload", func(t *testing.T) {
		svc, sessions, _, _ := newTestGateway(t)
		sessions.On("Touch", ctx, "session_1", mock.Anything).Return(domain.TouchSessionMissing, domain.ErrStoreUnavailable)

		header := fileHeaders(t, "file", map[string]string{"policy.pdf": "terms"})[0]
		_, err := svc.Upload(ctx, "session_1", header)
		assert.NoError(t, err)
	})

	t.Run("validation", func(t *testing.T) {
		svc, sessions, _, store := newTestGateway(t)
		header := fileHeaders(t, "file", map[string]string{"policy.pdf": "terms"})[0]

		_, err := svc.Upload(ctx, "", header)
		assert.ErrorIs(t, err, domain.ErrValidation)

		_, err = svc.Upload(ctx, "session_1", nil)
		assert.ErrorIs(t, err, domain.ErrValidation)

		sessions.AssertNotCalled(t, "Touch", mock.Anything, mock.Anything, mock.Anything)
		assert.Empty(t, dirEntries(t, store))
	})
}

func TestGatewayService_SendChat(t *testing.T) {
	ctx := context.Background()

	t.Run("relays message and files then cleans up", func(t *testing.T) {
		svc, sessions, ai, store := newTestGateway(t)
		session := domain.NewSession(nowForTest())
		sessions.On("Touch", ctx, "session_1", mock.Anything).
			Run(applyTouch(session)).
			Return(domain.TouchApplied, nil)

		ai.On("Query", ctx, mock.MatchedBy(func(req aiclient.QueryRequest) bool {
			if req.Query != "is knee surgery covered?" || req.TopK != 5 || req.Threshold != 0.3 || len(req.Files) != 1 {
				return false
			}
			// files must still be on disk while the relay runs
			_, err := os.Stat(req.Files[0].Path)
			return err == nil && req.Files[0].Name == "policy.pdf"
		})).Return(&aiclient.QueryResponse{Answer: "Approved", Files: []any{"policy.pdf"}}, nil)

		resp, err := svc.SendChat(ctx, domain.ChatRequest{
			SessionID: "session_1",
			Chat:      "is knee surgery covered?",
			Documents: fileHeaders(t, "documents", map[string]string{"policy.pdf": "terms"}),
		})
		require.NoError(t, err)

		assert.Equal(t, "Approved", resp.AIResponse)
		assert.Equal(t, []any{"policy.pdf"}, resp.Files)
		assert.Empty(t, dirEntries(t, store))

		require.Len(t, session.Messages, 1)
		assert.Equal(t, domain.ChatMessage{Sender: "user", Text: "is knee surgery covered?", Files: []string{"policy.pdf"}}, session.Messages[0])
		ai.AssertExpectations(t)
	})

	t.Run("previously uploaded file is relayed and removed", func(t *testing.T) {
		svc, sessions, ai, store := newTestGateway(t)

		upload, err := store.Save(fileHeaders(t, "file", map[string]string{"claim.pdf": "claim"})[0])
		require.NoError(t, err)

		session := domain.NewSession(nowForTest())
		session.Uploads = []domain.UploadRecord{{Filename: upload.StoredName, OriginalName: "claim.pdf"}}
		sessions.On("Get", ctx, "session_1").Return(session, nil)
		sessions.On("Touch", ctx, "session_1", mock.Anything).
			Run(applyTouch(session)).
			Return(domain.TouchApplied, nil)

		ai.On("Query", ctx, mock.MatchedBy(func(req aiclient.QueryRequest) bool {
			return len(req.Files) == 1 && req.Files[0].Name == "claim.pdf"
		})).Return(&aiclient.QueryResponse{Answer: "Rejected"}, nil)

		resp, err := svc.SendChat(ctx, domain.ChatRequest{
			SessionID:     "session_1",
			Chat:          "what about this claim?",
			UploadedFiles: []string{upload.StoredName},
		})
		require.NoError(t, err)
		assert.Equal(t, "Rejected", resp.AIResponse)
		assert.Equal(t, []any{}, resp.Files)
		assert.False(t, store.Exists(upload.StoredName))
		assert.Empty(t, session.Uploads, "relayed upload is no longer referenceable")
	})

	t.Run("missing answer defaults", func(t *testing.T) {
		svc, sessions, ai, _ := newTestGateway(t)
		sessions.On("Touch", ctx, "session_1", mock.Anything).Return(domain.TouchApplied, nil)
		ai.On("Query", ctx, mock.Anything).Return(&aiclient.QueryResponse{}, nil)

		resp, err := svc.SendChat(ctx, domain.ChatRequest{SessionID: "session_1", Chat: "hello"})
		require.NoError(t, err)
		assert.Equal(t, domain.NoAnswer, resp.AIResponse)
		assert.Equal(t, []any{}, resp.Files)
	})

	t.Run("expired session still reaches AI", func(t *testing.T) {
		svc, sessions, ai, _ := newTestGateway(t)
		sessions.On("Touch", ctx, "session_gone", mock.Anything).Return(domain.TouchSessionMissing, nil)
		ai.On("Query", ctx, mock.Anything).Return(&aiclient.QueryResponse{Answer: "ok"}, nil)

		resp, err := svc.SendChat(ctx, domain.ChatRequest{SessionID: "session_gone", Chat: "hello"})
		require.NoError(t, err)
		assert.Equal(t, "ok", resp.AIResponse)
		ai.AssertExpectations(t)
	})

	t.Run("AI failure removes temp files", func(t *testing.T) {
		svc, sessions, ai, store := newTestGateway(t)
		sessions.On("Touch", ctx, "session_1", mock.Anything).Return(domain.TouchApplied, nil)
		ai.On("Query", ctx, mock.Anything).Return(nil, errors.New("connection refused"))

		_, err := svc.SendChat(ctx, domain.ChatRequest{
			SessionID: "session_1",
			Chat:      "hello",
			Documents: fileHeaders(t, "documents", map[string]string{"a.pdf": "a", "b.pdf": "b"}),
		})
		assert.ErrorIs(t, err, domain.ErrUpstreamUnavailable)
		assert.Empty(t, dirEntries(t, store))
	})

	t.Run("missing session id makes no calls", func(t *testing.T) {
		svc, sessions, ai, store := newTestGateway(t)

		_, err := svc.SendChat(ctx, domain.ChatRequest{
			Chat:      "hello",
			Documents: fileHeaders(t, "documents", map[string]string{"a.pdf": "a"}),
		})
		assert.ErrorIs(t, err, domain.ErrValidation)
		sessions.AssertNotCalled(t, "Touch", mock.Anything, mock.Anything, mock.Anything)
		ai.AssertNotCalled(t, "Query", mock.Anything, mock.Anything)
		assert.Empty(t, dirEntries(t, store))
	})

	t.Run("too many documents", func(t *testing.T) {
		svc, sessions, ai, _ := newTestGateway(t)
		docs := map[string]string{}
		for _, n := range []string{"1", "2", "3", "4", "5", "6"} {
			docs[n+".pdf"] = n
		}

		_, err := svc.SendChat(ctx, domain.ChatRequest{
			SessionID: "session_1",
			Documents: fileHeaders(t, "documents", docs),
		})
		assert.ErrorIs(t, err, domain.ErrValidation)
		sessions.AssertNotCalled(t, "Touch", mock.Anything, mock.Anything, mock.Anything)
		ai.AssertNotCalled(t, "Query", mock.Anything, mock.Anything)
	})

	t.Run("unknown uploaded file", func(t *testing.T) {
		svc, sessions, ai, _ := newTestGateway(t)
		sessions.On("Get", ctx, "session_1").Return(domain.NewSession(nowForTest()), nil)

		_, err := svc.SendChat(ctx, domain.ChatRequest{
			SessionID:     "session_1",
			UploadedFiles: []string{"123-nothing.pdf"},
		})
		assert.ErrorIs(t, err, domain.ErrValidation)
		sessions.AssertNotCalled(t, "Touch", mock.Anything, mock.Anything, mock.Anything)
		ai.AssertNotCalled(t, "Query", mock.Anything, mock.Anything)
	})

	t.Run("upload owned by another session", func(t *testing.T) {
		svc, sessions, ai, store := newTestGateway(t)

		upload, err := store.Save(fileHeaders(t, "file", map[string]string{"claim.pdf": "claim"})[0])
		require.NoError(t, err)
		sessions.On("Get", ctx, "session_other").Return(domain.NewSession(nowForTest()), nil)

		_, err = svc.SendChat(ctx, domain.ChatRequest{
			SessionID:     "session_other",
			UploadedFiles: []string{upload.StoredName},
		})
		assert.ErrorIs(t, err, domain.ErrValidation)
		assert.True(t, store.Exists(upload.StoredName))
		sessions.AssertNotCalled(t, "Touch", mock.Anything, mock.Anything, mock.Anything)
		ai.AssertNotCalled(t, "Query", mock.Anything, mock.Anything)
	})

	t.Run("uploaded file on expired session", func(t *testing.T) {
		svc, sessions, ai, store := newTestGateway(t)

		upload, err := store.Save(fileHeaders(t, "file", map[string]string{"claim.pdf": "claim"})[0])
		require.NoError(t, err)
		sessions.On("Get", ctx, "session_gone").Return(nil, domain.ErrSessionNotFound)

		_, err = svc.SendChat(ctx, domain.ChatRequest{
			SessionID:     "session_gone",
			UploadedFiles: []string{upload.StoredName},
		})
		assert.ErrorIs(t, err, domain.ErrValidation)
		assert.True(t, store.Exists(upload.StoredName))
		ai.AssertNotCalled(t, "Query", mock.Anything, mock.Anything)
	})
}

func TestGatewayService_BatchQuery(t *testing.T) {
	svc, _, ai, _ := newTestGateway(t)
	ctx := context.Background()

	ai.On("BatchQuery", ctx, aiclient.BatchQueryRequest{Queries: []string{"a", "b"}, TopK: 5, Threshold: 0.3}).
		Return(&aiclient.BatchQueryResponse{
			Responses:    []aiclient.QueryResponse{{Answer: "x"}, {Answer: "y"}},
			TotalQueries: 2,
		}, nil)

	resp, err := svc.BatchQuery(ctx, domain.BatchQueryRequest{Queries: []string{"a", "b"}})
	require.NoError(t, err)

	got, err := json.Marshal(resp)
	require.NoError(t, err)
	assert.JSONEq(t, `{"responses":[{"ai_response":"x","files":[]},{"ai_response":"y","files":[]}],"total_queries":2}`, string(got))
}

func TestGatewayService_BatchQueryForwardsClientParameters(t *testing.T) {
	svc, _, ai, _ := newTestGateway(t)
	ctx := context.Background()

	topK, threshold := 2, 0.9
	ai.On("BatchQuery", ctx, aiclient.BatchQueryRequest{Queries: []string{"a"}, TopK: 2, Threshold: 0.9}).
		Return(&aiclient.BatchQueryResponse{Responses: []aiclient.QueryResponse{{Answer: "x"}}, TotalQueries: 1}, nil).Once()
	ai.On("BatchQuery", ctx, aiclient.BatchQueryRequest{Queries: []string{"b"}, TopK: 2, Threshold: 0.3}).
		Return(&aiclient.BatchQueryResponse{Responses: []aiclient.QueryResponse{{Answer: "y"}}, TotalQueries: 1}, nil).Once()

	_, err := svc.BatchQuery(ctx, domain.BatchQueryRequest{Queries: []string{"a"}, TopK: &topK, Threshold: &threshold})
	require.NoError(t, err)

	// only top_k supplied: threshold falls back to the configured value
	_, err = svc.BatchQuery(ctx, domain.BatchQueryRequest{Queries: []string{"b"}, TopK: &topK})
	require.NoError(t, err)

	ai.AssertExpectations(t)
}

func TestGatewayService_BatchQueryFailure(t *testing.T) {
	svc, _, ai, _ := newTestGateway(t)
	ctx := context.Background()
	ai.On("BatchQuery", ctx, mock.Anything).Return(nil, errors.New("timeout"))

	_, err := svc.BatchQuery(ctx, domain.BatchQueryRequest{Queries: []string{"a"}})
	assert.ErrorIs(t, err, domain.ErrUpstreamUnavailable)

	_, err = svc.BatchQuery(ctx, domain.BatchQueryRequest{})
	assert.ErrorIs(t, err, domain.ErrValidation)
}

func TestGatewayService_LoadDocuments(t *testing.T) {
	svc, _, ai, _ := newTestGateway(t)
	ctx := context.Background()
	ai.On("LoadDocuments", ctx).Return(json.RawMessage(`{"status":"success"}`), nil)

	raw, err := svc.LoadDocuments(ctx)
	require.NoError(t, err)
	assert.JSONEq(t, `{"status":"success"}`, string(raw))
}

func TestGatewayService_Ready(t *testing.T) {
	ctx := context.Background()

	t.Run("ready with AI down", func(t *testing.T) {
		svc, sessions, ai, _ := newTestGateway(t)
		sessions.On("Ping", ctx).Return(nil)
		sessions.On("CountActive", ctx).Return(int64(4), nil)
		ai.On("Health", ctx).Return(domain.ErrUpstreamUnavailable)

		status, err := svc.Ready(ctx)
		require.NoError(t, err)
		assert.Equal(t, "ready", status.Status)
		assert.Equal(t, "unavailable", status.AIService)
		assert.Equal(t, int64(4), status.ActiveSessions)
	})

	t.Run("store down", func(t *testing.T) {
		svc, sessions, _, _ := newTestGateway(t)
		sessions.On("Ping", ctx).Return(errors.New("dial tcp: refused"))

		_, err := svc.Ready(ctx)
		assert.ErrorIs(t, err, domain.ErrStoreUnavailable)
	})
}
