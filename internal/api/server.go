// Package api exposes the HTTP surface: pricelist uploads, status polling,
// processing kickoff, signed CSV exports, and knowledge-document ingestion.
package api

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"

	"github.com/dharsanguruparan/pricedrop/internal/config"
	"github.com/dharsanguruparan/pricedrop/internal/docs"
	"github.com/dharsanguruparan/pricedrop/internal/model"
	"github.com/dharsanguruparan/pricedrop/internal/pricing"
	"github.com/dharsanguruparan/pricedrop/internal/queue"
	"github.com/dharsanguruparan/pricedrop/internal/repository"
	"github.com/dharsanguruparan/pricedrop/internal/s3storage"
	"github.com/dharsanguruparan/pricedrop/internal/signing"
)

// Server wires the repositories, object storage, task queue, and URL signer
// behind the HTTP mux.
type Server struct {
	cfg       *config.Config
	sessions  *repository.SessionRepository
	products  *repository.ProductRepository
	documents *repository.DocumentRepository
	store     *s3storage.Storage
	queue     *asynq.Client
	signer    *signing.Signer
	server    *http.Server
	once      sync.Once
}

// New constructs a Server.
func New(cfg *config.Config, sessions *repository.SessionRepository, products *repository.ProductRepository, documents *repository.DocumentRepository, store *s3storage.Storage, queueClient *asynq.Client) *Server {
	return &Server{
		cfg:       cfg,
		sessions:  sessions,
		products:  products,
		documents: documents,
		store:     store,
		queue:     queueClient,
		signer:    signing.NewSigner(cfg.SigningSecret),
	}
}

// Run starts the HTTP server and blocks until the context is cancelled.
func (s *Server) Run(ctx context.Context) error {
	s.once.Do(func() {
		mux := http.NewServeMux()
		mux.HandleFunc("/healthz", s.handleHealth)
		mux.HandleFunc("/pricelists", s.handlePricelists)
		mux.HandleFunc("/pricelists/", s.handlePricelistRoute)
		mux.HandleFunc("/exports/", s.handleExport)
		mux.HandleFunc("/documents", s.handleDocuments)
		mux.HandleFunc("/documents/", s.handleDocumentRoute)
		s.server = &http.Server{
			Addr:    s.cfg.Address,
			Handler: corsMiddleware(loggingMiddleware(mux)),
		}
	})
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.server.Shutdown(shutdownCtx)
	}()
	log.Printf("api listening on %s", s.cfg.Address)
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handlePricelists(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		s.handleUpload(w, r)
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

func (s *Server) handlePricelistRoute(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/pricelists/")
	parts := strings.Split(path, "/")
	if len(parts) == 0 || parts[0] == "" {
		http.NotFound(w, r)
		return
	}
	id := parts[0]
	if len(parts) == 1 {
		s.handleSession(w, r, id)
		return
	}
	switch parts[1] {
	case "status":
		s.handleStatus(w, r, id)
	case "process":
		s.handleProcess(w, r, id)
	case "export-url":
		s.handleExportURL(w, r, id)
	default:
		http.NotFound(w, r)
	}
}

func (s *Server) handleSession(w http.ResponseWriter, r *http.Request, id string) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	session, err := s.sessions.Get(r.Context(), id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			http.Error(w, "session not found", http.StatusNotFound)
			return
		}
		http.Error(w, "failed to load session", http.StatusInternalServerError)
		return
	}
	resp := struct {
		*model.Session
		ProductCount int `json:"product_count"`
	}{Session: session}
	if session.Status == model.SessionCompleted {
		if n, err := s.products.CountBySession(r.Context(), id); err == nil {
			resp.ProductCount = n
		}
	}
	respondJSON(w, http.StatusOK, resp)
}

// statusResponse is the polling payload. It deliberately omits the structure
// report so the poll loop stays cheap for large pricelists.
type statusResponse struct {
	ID           string              `json:"id"`
	Status       model.SessionStatus `json:"status"`
	Progress     model.Progress      `json:"progress"`
	Result       *model.Result       `json:"result,omitempty"`
	ErrorMessage string              `json:"errorMessage,omitempty"`
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request, id string) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	session, err := s.sessions.Get(r.Context(), id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			http.Error(w, "session not found", http.StatusNotFound)
			return
		}
		http.Error(w, "failed to load session", http.StatusInternalServerError)
		return
	}
	respondJSON(w, http.StatusOK, statusResponse{
		ID:           session.ID,
		Status:       session.Status,
		Progress:     session.Progress,
		Result:       session.Result,
		ErrorMessage: session.ErrorMessage,
	})
}

func (s *Server) handleProcess(w http.ResponseWriter, r *http.Request, id string) {
	ctx := r.Context()
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	session, err := s.sessions.Get(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			http.Error(w, "session not found", http.StatusNotFound)
			return
		}
		http.Error(w, "failed to load session", http.StatusInternalServerError)
		return
	}
	switch session.Status {
	case model.SessionAnalyzed, model.SessionConfiguring:
	case model.SessionProcessing:
		http.Error(w, "session already processing", http.StatusConflict)
		return
	case model.SessionCompleted, model.SessionFailed:
		http.Error(w, "session already finished", http.StatusConflict)
		return
	default:
		http.Error(w, "session not analyzed yet", http.StatusConflict)
		return
	}
	if session.Report == nil {
		http.Error(w, "session has no structure report", http.StatusConflict)
		return
	}
	if len(session.Report.ReadyBrands()) == 0 {
		http.Error(w, "no extractable brands in pricelist", http.StatusUnprocessableEntity)
		return
	}
	var body *model.ConfigOverrides
	if r.Body != nil && r.ContentLength != 0 {
		body = &model.ConfigOverrides{}
		if err := json.NewDecoder(r.Body).Decode(body); err != nil {
			http.Error(w, "invalid config payload", http.StatusBadRequest)
			return
		}
	}
	// Request-body overrides win over any overrides supplied at upload time.
	overrides := session.Overrides.Merge(body)
	recommended := pricing.Recommend(session.Report, s.cfg.PricingDefaults)
	cfg, err := pricing.Resolve(overrides, recommended)
	if err != nil {
		if errors.Is(err, pricing.ErrInvalidConfig) {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		http.Error(w, "failed to resolve config", http.StatusInternalServerError)
		return
	}
	if err := s.sessions.SaveConfig(ctx, id, cfg); err != nil {
		http.Error(w, "failed to store config", http.StatusInternalServerError)
		return
	}
	payload := queue.PricelistPayload{
		SessionID: session.ID,
		ObjectKey: session.ObjectKey,
		FileName:  session.FileName,
	}
	if err := queue.EnqueueProcess(ctx, s.queue, payload); err != nil {
		http.Error(w, "failed to queue job", http.StatusInternalServerError)
		return
	}
	respondJSON(w, http.StatusAccepted, map[string]any{
		"id":     session.ID,
		"status": string(model.SessionConfiguring),
		"config": cfg,
	})
}

func (s *Server) handleExportURL(w http.ResponseWriter, r *http.Request, id string) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	session, err := s.sessions.Get(r.Context(), id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			http.Error(w, "session not found", http.StatusNotFound)
			return
		}
		http.Error(w, "failed to load session", http.StatusInternalServerError)
		return
	}
	if session.Status != model.SessionCompleted {
		http.Error(w, "session not completed", http.StatusConflict)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"url":        s.signer.ExportPath(session.ID, s.cfg.SignedURLTTL),
		"expires_in": int64(s.cfg.SignedURLTTL.Seconds()),
	})
}

func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	id := strings.TrimPrefix(r.URL.Path, "/exports/")
	if id == "" || strings.Contains(id, "/") {
		http.NotFound(w, r)
		return
	}
	q := r.URL.Query()
	if !s.signer.Validate(id, q.Get("expires"), q.Get("signature")) {
		http.Error(w, "invalid or expired signature", http.StatusForbidden)
		return
	}
	session, err := s.sessions.Get(ctx, id)
	if err != nil {
		http.Error(w, "session not found", http.StatusNotFound)
		return
	}
	if session.Status != model.SessionCompleted {
		http.Error(w, "session not completed", http.StatusConflict)
		return
	}
	objectKey := fmt.Sprintf("exports/%s.csv", id)
	data, err := s.store.DownloadExport(ctx, objectKey)
	if err != nil {
		data, err = s.buildExport(ctx, id)
		if err != nil {
			log.Printf("build export for %s failed: %v", id, err)
			http.Error(w, "failed to build export", http.StatusInternalServerError)
			return
		}
		// Cache the generated CSV; a failed cache write only costs the next
		// download a rebuild.
		if err := s.store.UploadExport(ctx, objectKey, data); err != nil {
			log.Printf("cache export for %s failed: %v", id, err)
		}
	}
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="pricelist-%s.csv"`, id))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

func (s *Server) buildExport(ctx context.Context, sessionID string) ([]byte, error) {
	products, err := s.products.ListBySession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	var buf strings.Builder
	cw := csv.NewWriter(&buf)
	_ = cw.Write([]string{"brand", "product_code", "price_excl_vat", "price_incl_vat", "retail_price", "currency"})
	for _, p := range products {
		record := []string{p.Brand, p.ProductCode, "", "", "", p.Currency}
		if p.PriceExclVAT != nil {
			record[2] = p.PriceExclVAT.StringFixed(2)
		}
		if p.PriceInclVAT != nil {
			record[3] = p.PriceInclVAT.StringFixed(2)
		}
		if p.RetailPrice != nil {
			record[4] = p.RetailPrice.StringFixed(2)
		}
		if err := cw.Write(record); err != nil {
			return nil, err
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return nil, err
	}
	return []byte(buf.String()), nil
}

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.MaxFileSize+1024)
	mr, err := r.MultipartReader()
	if err != nil {
		http.Error(w, "expecting multipart form", http.StatusBadRequest)
		return
	}
	tmp, overrides, err := s.readUploadForm(mr)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	defer os.Remove(tmp.path)
	defer tmp.f.Close()
	ext := strings.ToLower(filepath.Ext(tmp.filename))
	if !s.cfg.ExtAllowed(ext) {
		http.Error(w, fmt.Sprintf("file type %s not allowed", ext), http.StatusBadRequest)
		return
	}
	if ext != ".xlsx" && ext != ".csv" {
		http.Error(w, "only .xlsx and .csv pricelists supported", http.StatusBadRequest)
		return
	}
	sessionID := uuid.NewString()
	objectKey := fmt.Sprintf("pricelists/%s/%s", sessionID, filepath.Base(tmp.filename))
	if err := s.uploadToStorage(ctx, objectKey, tmp); err != nil {
		log.Printf("upload to storage failed: %v", err)
		http.Error(w, "failed to store file", http.StatusInternalServerError)
		return
	}
	session := &model.Session{
		ID:        sessionID,
		FileName:  tmp.filename,
		ObjectKey: objectKey,
		Overrides: overrides,
	}
	if err := s.sessions.Create(ctx, session); err != nil {
		http.Error(w, "failed to store metadata", http.StatusInternalServerError)
		return
	}
	payload := queue.PricelistPayload{
		SessionID: sessionID,
		ObjectKey: objectKey,
		FileName:  tmp.filename,
	}
	if err := queue.EnqueueAnalyze(ctx, s.queue, payload); err != nil {
		http.Error(w, "failed to queue job", http.StatusInternalServerError)
		return
	}
	respondJSON(w, http.StatusAccepted, map[string]string{
		"id":     sessionID,
		"status": string(model.SessionReceived),
	})
}

// readUploadForm consumes the multipart body: a mandatory "file" part plus an
// optional "config" part carrying JSON overrides. Parts arrive in client
// order, so both are handled in one pass.
func (s *Server) readUploadForm(mr *multipart.Reader) (*tempUpload, *model.ConfigOverrides, error) {
	var (
		tmp       *tempUpload
		overrides *model.ConfigOverrides
	)
	for {
		part, err := mr.NextPart()
		if err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			cleanupTemp(tmp)
			return nil, nil, fmt.Errorf("read form: %w", err)
		}
		switch part.FormName() {
		case "file":
			if tmp != nil {
				part.Close()
				continue
			}
			tmp, err = s.persistTemp(part)
			part.Close()
			if err != nil {
				return nil, nil, err
			}
		case "config":
			overrides = &model.ConfigOverrides{}
			err := json.NewDecoder(part).Decode(overrides)
			part.Close()
			if err != nil {
				cleanupTemp(tmp)
				return nil, nil, errors.New("invalid config payload")
			}
		default:
			part.Close()
		}
	}
	if tmp == nil {
		return nil, nil, errors.New("missing file field")
	}
	return tmp, overrides, nil
}

type tempUpload struct {
	f           *os.File
	path        string
	size        int64
	contentType string
	filename    string
}

func cleanupTemp(tmp *tempUpload) {
	if tmp == nil {
		return
	}
	tmp.f.Close()
	os.Remove(tmp.path)
}

func (s *Server) persistTemp(part *multipart.Part) (*tempUpload, error) {
	tmpFile, err := os.CreateTemp("", "pricedrop-*")
	if err != nil {
		return nil, fmt.Errorf("create temp file: %w", err)
	}
	var sniff []byte
	buf := make([]byte, 32*1024)
	var written int64
	for {
		n, readErr := part.Read(buf)
		if n > 0 {
			written += int64(n)
			if written > s.cfg.MaxFileSize {
				tmpFile.Close()
				os.Remove(tmpFile.Name())
				return nil, fmt.Errorf("file exceeds limit (%d bytes)", s.cfg.MaxFileSize)
			}
			if len(sniff) < 512 {
				chunk := n
				if remain := 512 - len(sniff); chunk > remain {
					chunk = remain
				}
				sniff = append(sniff, buf[:chunk]...)
			}
			if _, err := tmpFile.Write(buf[:n]); err != nil {
				tmpFile.Close()
				os.Remove(tmpFile.Name())
				return nil, fmt.Errorf("write temp file: %w", err)
			}
		}
		if readErr != nil {
			if errors.Is(readErr, io.EOF) {
				break
			}
			tmpFile.Close()
			os.Remove(tmpFile.Name())
			return nil, fmt.Errorf("read file: %w", readErr)
		}
	}
	if written == 0 {
		tmpFile.Close()
		os.Remove(tmpFile.Name())
		return nil, errors.New("empty file")
	}
	contentType := http.DetectContentType(sniff)
	if _, err := tmpFile.Seek(0, 0); err != nil {
		tmpFile.Close()
		os.Remove(tmpFile.Name())
		return nil, fmt.Errorf("rewind temp file: %w", err)
	}
	filename := part.FileName()
	if filename == "" {
		filename = "upload.bin"
	}
	return &tempUpload{
		f:           tmpFile,
		path:        tmpFile.Name(),
		size:        written,
		contentType: contentType,
		filename:    filename,
	}, nil
}

func (s *Server) uploadToStorage(ctx context.Context, objectKey string, tmp *tempUpload) error {
	if _, err := tmp.f.Seek(0, 0); err != nil {
		return err
	}
	return s.store.UploadRaw(ctx, objectKey, tmp.f, tmp.size, tmp.contentType)
}

func (s *Server) handleDocuments(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		s.handleDocumentUpload(w, r)
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

func (s *Server) handleDocumentRoute(w http.ResponseWriter, r *http.Request) {
	id, rest, _ := strings.Cut(strings.TrimPrefix(r.URL.Path, "/documents/"), "/")
	if id == "" {
		http.NotFound(w, r)
		return
	}
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	doc, err := s.documents.Get(r.Context(), id)
	if err != nil {
		http.Error(w, "document not found", http.StatusNotFound)
		return
	}
	switch rest {
	case "":
		respondJSON(w, http.StatusOK, doc)
	case "chunks":
		chunks, err := s.documents.Chunks(r.Context(), id)
		if err != nil {
			http.Error(w, "failed to load chunks", http.StatusInternalServerError)
			return
		}
		respondJSON(w, http.StatusOK, map[string]any{"document_id": id, "chunks": chunks})
	default:
		http.NotFound(w, r)
	}
}

func (s *Server) handleDocumentUpload(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.MaxFileSize+1024)
	mr, err := r.MultipartReader()
	if err != nil {
		http.Error(w, "expecting multipart form", http.StatusBadRequest)
		return
	}
	tmp, _, err := s.readUploadForm(mr)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	defer os.Remove(tmp.path)
	defer tmp.f.Close()
	ext := strings.ToLower(filepath.Ext(tmp.filename))
	if !s.cfg.ExtAllowed(ext) {
		http.Error(w, fmt.Sprintf("file type %s not allowed", ext), http.StatusBadRequest)
		return
	}
	if ext != ".pdf" && ext != ".txt" && ext != ".md" {
		http.Error(w, "only .pdf, .txt, and .md documents supported", http.StatusBadRequest)
		return
	}
	data, err := os.ReadFile(tmp.path)
	if err != nil {
		http.Error(w, "failed to read upload", http.StatusInternalServerError)
		return
	}
	hash := docs.Hash(data)
	if existing, err := s.documents.GetByHash(ctx, hash); err == nil {
		respondJSON(w, http.StatusOK, existing)
		return
	}
	docID := uuid.NewString()
	objectKey := fmt.Sprintf("documents/%s/%s", docID, filepath.Base(tmp.filename))
	if err := s.uploadToStorage(ctx, objectKey, tmp); err != nil {
		log.Printf("upload to storage failed: %v", err)
		http.Error(w, "failed to store file", http.StatusInternalServerError)
		return
	}
	doc := &repository.Document{
		ID:          docID,
		FileName:    tmp.filename,
		ContentHash: hash,
	}
	if err := s.documents.Create(ctx, doc); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			// Lost a race with a concurrent upload of the same content.
			if existing, getErr := s.documents.GetByHash(ctx, hash); getErr == nil {
				respondJSON(w, http.StatusOK, existing)
				return
			}
		}
		http.Error(w, "failed to store metadata", http.StatusInternalServerError)
		return
	}
	payload := queue.DocumentPayload{
		DocumentID: docID,
		ObjectKey:  objectKey,
		FileName:   tmp.filename,
	}
	if err := queue.EnqueueIngest(ctx, s.queue, payload); err != nil {
		http.Error(w, "failed to queue job", http.StatusInternalServerError)
		return
	}
	respondJSON(w, http.StatusAccepted, map[string]string{
		"id":     docID,
		"status": string(repository.DocQueued),
	})
}

func respondJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		log.Printf("encode response: %v", err)
	}
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET,POST,OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type,Authorization")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		log.Printf("%s %s (%s)", r.Method, r.URL.Path, time.Since(start))
	})
}
