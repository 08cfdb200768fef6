package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"mime/multipart"
	"time"

	"github.com/Rrens/policy-assistant/internal/aiclient"
	"github.com/Rrens/policy-assistant/internal/domain"
	"github.com/Rrens/policy-assistant/internal/metrics"
	"github.com/Rrens/policy-assistant/internal/repository/uploads"
	"github.com/rs/zerolog/log"
)

// GatewayOptions holds the fixed relay parameters
type GatewayOptions struct {
	TopK         int
	Threshold    float64
	MaxDocuments int
}

// GatewayService mediates between the client, the session store and the AI service
type GatewayService struct {
	sessions domain.SessionStore
	uploads  *uploads.Store
	ai       aiclient.Service
	opts     GatewayOptions
}

// NewGatewayService creates a new gateway service
func NewGatewayService(sessions domain.SessionStore, uploadStore *uploads.Store, ai aiclient.Service, opts GatewayOptions) *GatewayService {
	if opts.MaxDocuments <= 0 {
		opts.MaxDocuments = 5
	}
	return &GatewayService{
		sessions: sessions,
		uploads:  uploadStore,
		ai:       ai,
		opts:     opts,
	}
}

// InitiateSession creates a new chat session
func (s *GatewayService) InitiateSession(ctx context.Context) (string, error) {
	return s.sessions.Create(ctx)
}

// ValidateSession reports whether the session is alive and extends it if so
func (s *GatewayService) ValidateSession(ctx context.Context, sessionID string) (bool, error) {
	if sessionID == "" {
		return false, fmt.Errorf("%w: sessionId is required", domain.ErrValidation)
	}
	return s.sessions.Validate(ctx, sessionID)
}

// GetSession returns the stored session record
func (s *GatewayService) GetSession(ctx context.Context, sessionID string) (*domain.Session, error) {
	return s.sessions.Get(ctx, sessionID)
}

// Upload stores a file and records it on the session when the session still exists.
// Session bookkeeping never fails the upload.
func (s *GatewayService) Upload(ctx context.Context, sessionID string, header *multipart.FileHeader) (*domain.Upload, error) {
	if header == nil {
		return nil, fmt.Errorf("%w: file is required", domain.ErrValidation)
	}
	if sessionID == "" {
		return nil, fmt.Errorf("%w: sessionId is required", domain.ErrValidation)
	}

	upload, err := s.uploads.Save(header)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrUpstreamUnavailable, err)
	}

	s.touch(ctx, sessionID, "upload", func(session *domain.Session) {
		session.Uploads = append(session.Uploads, domain.UploadRecord{
			Filename:     upload.StoredName,
			OriginalName: upload.OriginalName,
		})
	})

	return upload, nil
}

// SendChat appends the message to the session, relays it with its files to the AI service and
// removes every relayed temp file once the call returns.
func (s *GatewayService) SendChat(ctx context.Context, req domain.ChatRequest) (*domain.ChatResponse, error) {
	if req.SessionID == "" {
		return nil, fmt.Errorf("%w: sessionId is required", domain.ErrValidation)
	}
	if len(req.Documents)+len(req.UploadedFiles) > s.opts.MaxDocuments {
		return nil, fmt.Errorf("%w: at most %d documents per message", domain.ErrValidation, s.opts.MaxDocuments)
	}
	if len(req.UploadedFiles) > 0 {
		if err := s.checkOwnedUploads(ctx, req.SessionID, req.UploadedFiles); err != nil {
			return nil, err
		}
	}

	originalNames := make([]string, 0, len(req.Documents)+len(req.UploadedFiles))
	for _, name := range req.UploadedFiles {
		originalNames = append(originalNames, uploads.OriginalName(name))
	}
	for _, doc := range req.Documents {
		originalNames = append(originalNames, doc.Filename)
	}

	s.touch(ctx, req.SessionID, "chat", func(session *domain.Session) {
		session.Messages = append(session.Messages, domain.ChatMessage{
			Sender: domain.SenderUser,
			Text:   req.Chat,
			Files:  originalNames,
		})
		session.Uploads = withoutUploads(session.Uploads, req.UploadedFiles)
	})

	attachments := make([]aiclient.Attachment, 0, len(originalNames))
	storedNames := make([]string, 0, len(originalNames))
	defer func() {
		for _, name := range storedNames {
			if err := s.uploads.Remove(name); err != nil {
				log.Warn().Err(err).Str("file", name).Msg("failed to remove relayed upload")
			}
		}
	}()

	for _, name := range req.UploadedFiles {
		storedNames = append(storedNames, name)
		attachments = append(attachments, aiclient.Attachment{Name: uploads.OriginalName(name), Path: s.uploads.Path(name)})
	}
	for _, doc := range req.Documents {
		upload, err := s.uploads.Save(doc)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", domain.ErrUpstreamUnavailable, err)
		}
		storedNames = append(storedNames, upload.StoredName)
		attachments = append(attachments, aiclient.Attachment{Name: upload.OriginalName, Path: s.uploads.Path(upload.StoredName)})
	}

	resp, err := s.ai.Query(ctx, aiclient.QueryRequest{
		Query:     req.Chat,
		TopK:      s.opts.TopK,
		Threshold: s.opts.Threshold,
		Files:     attachments,
	})
	metrics.ObserveUpstream("query", err)
	if err != nil {
		return nil, wrapUpstream(err)
	}

	return toChatResponse(*resp), nil
}

// checkOwnedUploads accepts only stored names recorded on this session that are still on disk
func (s *GatewayService) checkOwnedUploads(ctx context.Context, sessionID string, names []string) error {
	session, err := s.sessions.Get(ctx, sessionID)
	if errors.Is(err, domain.ErrSessionNotFound) {
		return fmt.Errorf("%w: session %q has no uploads", domain.ErrValidation, sessionID)
	}
	if err != nil {
		return err
	}

	owned := make(map[string]struct{}, len(session.Uploads))
	for _, record := range session.Uploads {
		owned[record.Filename] = struct{}{}
	}
	for _, name := range names {
		if _, ok := owned[name]; !ok || !s.uploads.Exists(name) {
			return fmt.Errorf("%w: unknown upload %q", domain.ErrValidation, name)
		}
	}
	return nil
}

// LoadDocuments asks the AI service to index its documents and passes its answer through
func (s *GatewayService) LoadDocuments(ctx context.Context) (json.RawMessage, error) {
	raw, err := s.ai.LoadDocuments(ctx)
	metrics.ObserveUpstream("load_documents", err)
	if err != nil {
		return nil, wrapUpstream(err)
	}
	return raw, nil
}

// BatchQuery relays several questions and reshapes each answer for the client. Retrieval
// parameters sent by the client are forwarded; configured values fill the gaps.
func (s *GatewayService) BatchQuery(ctx context.Context, req domain.BatchQueryRequest) (*domain.BatchQueryResponse, error) {
	if len(req.Queries) == 0 {
		return nil, fmt.Errorf("%w: queries are required", domain.ErrValidation)
	}

	batch := aiclient.BatchQueryRequest{
		Queries:   req.Queries,
		TopK:      s.opts.TopK,
		Threshold: s.opts.Threshold,
	}
	if req.TopK != nil {
		batch.TopK = *req.TopK
	}
	if req.Threshold != nil {
		batch.Threshold = *req.Threshold
	}

	resp, err := s.ai.BatchQuery(ctx, batch)
	metrics.ObserveUpstream("batch_query", err)
	if err != nil {
		return nil, wrapUpstream(err)
	}

	out := &domain.BatchQueryResponse{
		Responses:    make([]domain.ChatResponse, 0, len(resp.Responses)),
		TotalQueries: resp.TotalQueries,
	}
	for _, r := range resp.Responses {
		out.Responses = append(out.Responses, domain.ChatResponse{
			AIResponse: r.Answer,
			Files:      filesOrEmpty(r.Files),
		})
	}
	return out, nil
}

// Stats passes the AI service's index statistics through
func (s *GatewayService) Stats(ctx context.Context) (json.RawMessage, error) {
	raw, err := s.ai.Stats(ctx)
	metrics.ObserveUpstream("stats", err)
	if err != nil {
		return nil, wrapUpstream(err)
	}
	return raw, nil
}

// ReadyStatus summarizes dependency health
type ReadyStatus struct {
	Status         string `json:"status"`
	AIService      string `json:"ai_service"`
	ActiveSessions int64  `json:"active_sessions"`
}

// Ready checks the session store (required) and the AI service (reported only)
func (s *GatewayService) Ready(ctx context.Context) (*ReadyStatus, error) {
	if err := s.sessions.Ping(ctx); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrStoreUnavailable, err)
	}

	status := &ReadyStatus{Status: "ready", AIService: "ok"}
	if err := s.ai.Health(ctx); err != nil {
		log.Warn().Err(err).Msg("AI service health check failed")
		status.AIService = "unavailable"
	}

	count, err := s.sessions.CountActive(ctx)
	if err != nil {
		return nil, err
	}
	status.ActiveSessions = count

	return status, nil
}

// StartUploadSweeper periodically removes uploads older than maxAge until ctx is cancelled
func (s *GatewayService) StartUploadSweeper(ctx context.Context, interval, maxAge time.Duration) {
	if interval <= 0 || maxAge <= 0 {
		log.Info().Msg("upload sweeper disabled")
		return
	}
	go s.sweepLoop(ctx, interval, maxAge)
}

func (s *GatewayService) sweepLoop(ctx context.Context, interval, maxAge time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			removed, err := s.uploads.Sweep(maxAge)
			metrics.AddSwept(removed)
			if err != nil {
				log.Error().Err(err).Msg("upload sweep failed")
				continue
			}
			if removed > 0 {
				log.Info().Int("removed", removed).Msg("swept orphaned uploads")
			}
		}
	}
}

// touch applies a best-effort session mutation. Missing sessions and store errors are logged
// and otherwise ignored.
func (s *GatewayService) touch(ctx context.Context, sessionID, reason string, mutate func(*domain.Session)) {
	result, err := s.sessions.Touch(ctx, sessionID, mutate)
	if err != nil {
		metrics.ObserveTouch("error")
		log.Error().Err(err).Str("session_id", sessionID).Str("reason", reason).Msg("failed to update session")
		return
	}
	metrics.ObserveTouch(result.String())
	if result == domain.TouchSessionMissing {
		log.Warn().Str("session_id", sessionID).Str("reason", reason).Msg("session missing, update dropped")
	}
}

func toChatResponse(resp aiclient.QueryResponse) *domain.ChatResponse {
	answer := resp.Answer
	if answer == "" {
		answer = domain.NoAnswer
	}
	return &domain.ChatResponse{
		AIResponse: answer,
		Files:      filesOrEmpty(resp.Files),
	}
}

func withoutUploads(records []domain.UploadRecord, consumed []string) []domain.UploadRecord {
	if len(consumed) == 0 {
		return records
	}
	drop := make(map[string]struct{}, len(consumed))
	for _, name := range consumed {
		drop[name] = struct{}{}
	}
	kept := make([]domain.UploadRecord, 0, len(records))
	for _, record := range records {
		if _, ok := drop[record.Filename]; !ok {
			kept = append(kept, record)
		}
	}
	return kept
}

func filesOrEmpty(files []any) []any {
	if files == nil {
		return []any{}
	}
	return files
}

func wrapUpstream(err error) error {
	if errors.Is(err, domain.ErrUpstreamUnavailable) {
		return err
	}
	return fmt.Errorf("%w: %v", domain.ErrUpstreamUnavailable, err)
}
