package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"pkt.systems/snipforge/core"
	"pkt.systems/snipforge/internal/auth"
	"pkt.systems/snipforge/internal/logx"
	"pkt.systems/snipforge/internal/sharelink"
	"pkt.systems/snipforge/schema"
)

// Authenticator verifies the workshop password and reports which stored
// entry matched.
type Authenticator interface {
	Verify(password string) (auth.Password, error)
}

// QuotaLedger tracks per-visitor generation allowances.
type QuotaLedger interface {
	Remaining(visitor schema.VisitorID) int
	Consume(visitor schema.VisitorID) (int, error)
}

// ShareStore publishes finished snippets and resolves share tokens.
type ShareStore interface {
	Publish(visitor schema.VisitorID, name schema.TemplateName, code string) (schema.ShareToken, error)
	Resolve(token schema.ShareToken) (sharelink.SharedSnippet, error)
}

// Server serves the generation and share API.
type Server struct {
	cfg       Config
	passwords Authenticator
	quota     QuotaLedger
	shares    ShareStore
	provider  core.Provider
	basePath  string
	linkBase  string
}

// NewServer constructs an HTTP server around a generation provider.
func NewServer(cfg Config, passwords Authenticator, quota QuotaLedger, shares ShareStore, provider core.Provider) *Server {
	return &Server{
		cfg:       cfg,
		passwords: passwords,
		quota:     quota,
		shares:    shares,
		provider:  provider,
		basePath:  normalizeMountPath(cfg.BasePath),
		linkBase:  shareLinkBase(cfg.BaseURL, cfg.BasePath),
	}
}

// Handler returns an http.Handler for the server.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/generate", s.handleGenerate)
	mux.HandleFunc("/api/share", s.handleShare)
	mux.HandleFunc("/s/", s.handleSharedSnippet)

	handler := withRequestLogging(mux)
	if s.basePath == "" {
		return handler
	}
	prefix := s.basePath
	root := http.NewServeMux()
	root.Handle(prefix+"/", http.StripPrefix(prefix, handler))
	root.HandleFunc(prefix, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != prefix {
			http.NotFound(w, r)
			return
		}
		http.Redirect(w, r, prefix+"/", http.StatusTemporaryRedirect)
	})
	return root
}

// handleGenerate gates the request on password and quota, then relays the
// provider's event stream as data: lines. Quota is consumed exactly when
// the done event is written, and its remaining field is authoritative.
func (s *Server) handleGenerate(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	log := logx.Ctx(r.Context()).With("remote", clientIP(r))
	var req schema.GenerateRequest
	if err := decodeJSON(r.Body, &req); err != nil {
		log.Warn("http generate decode failed", "err", err)
		writeGateError(w, http.StatusBadRequest, schema.WireCodeInvalidRequest, err, nil)
		return
	}
	if err := req.Validate(); err != nil {
		log.Warn("http generate rejected", "err", err)
		writeGateError(w, http.StatusBadRequest, schema.WireCodeForErr(err), err, nil)
		return
	}
	req.MessageHistory = schema.ClampHistory(req.MessageHistory)
	log = log.With("visitor", req.VisitorID)

	entry, err := s.passwords.Verify(req.Password)
	if err != nil {
		log.Warn("http generate auth failed", "err", err)
		writeGateError(w, http.StatusUnauthorized, schema.WireCodeForErr(err), err, nil)
		return
	}
	log = log.With("password", entry.ID)
	if s.quota.Remaining(req.VisitorID) <= 0 {
		zero := 0
		log.Warn("http generate quota exhausted")
		writeGateError(w, http.StatusTooManyRequests, schema.WireCodeRateLimited, schema.ErrQuotaExhausted, &zero)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeGateError(w, http.StatusInternalServerError, schema.WireCodeProviderFailed, errors.New("stream unsupported"), nil)
		return
	}
	stream, err := s.provider.Generate(r.Context(), core.ProviderRequest{
		Prompt:       req.Prompt,
		ExistingCode: req.ExistingCode,
		History:      req.MessageHistory,
	})
	if err != nil {
		log.Warn("http generate provider open failed", "err", err)
		writeGateError(w, http.StatusBadGateway, schema.WireCodeProviderFailed, err, nil)
		return
	}
	defer func() { _ = stream.Close() }()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	events := 0
	for {
		event, err := stream.Next(r.Context())
		if err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			if r.Context().Err() != nil {
				log.Info("http generate closed early", "events", events)
				return
			}
			log.Warn("http generate provider stream failed", "err", err)
			_ = writeStreamEvent(w, schema.StreamEvent{
				Type:      schema.EventError,
				Error:     "generation failed",
				ErrorCode: schema.WireCodeProviderFailed,
			})
			flusher.Flush()
			return
		}
		if event.Type == schema.EventDone {
			remaining, err := s.quota.Consume(req.VisitorID)
			if err != nil {
				log.Warn("http generate quota consume failed", "err", err)
				remaining = s.quota.Remaining(req.VisitorID)
			}
			event.Remaining = &remaining
		}
		if err := writeStreamEvent(w, event); err != nil {
			log.Warn("http generate write failed", "err", err)
			return
		}
		flusher.Flush()
		events++
		if event.Terminal() {
			break
		}
	}
	log.Info("http generate done", "events", events)
}

func (s *Server) handleShare(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	log := logx.Ctx(r.Context()).With("remote", clientIP(r))
	var req schema.ShareRequest
	if err := decodeJSON(r.Body, &req); err != nil {
		log.Warn("http share decode failed", "err", err)
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if err := schema.ValidateVisitorID(req.VisitorID); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if strings.TrimSpace(req.Code) == "" {
		writeError(w, http.StatusBadRequest, errors.New("code is required"))
		return
	}
	log = log.With("visitor", req.VisitorID)
	token, err := s.shares.Publish(req.VisitorID, req.Name, req.Code)
	if err != nil {
		log.Warn("http share publish failed", "err", err)
		writeError(w, http.StatusInternalServerError, errors.New("share failed"))
		return
	}
	writeJSON(w, http.StatusOK, schema.ShareResponse{Token: token, URL: s.shareURL(token)})
	log.Info("http share ok", "token", token)
}

func (s *Server) handleSharedSnippet(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	log := logx.Ctx(r.Context()).With("remote", clientIP(r))
	token := strings.TrimPrefix(r.URL.Path, "/s/")
	if token == "" || strings.Contains(token, "/") {
		http.NotFound(w, r)
		return
	}
	snippet, err := s.shares.Resolve(schema.ShareToken(token))
	if err != nil {
		if errors.Is(err, schema.ErrShareNotFound) {
			log.Debug("http share miss", "token", token)
			http.NotFound(w, r)
			return
		}
		log.Warn("http share resolve failed", "err", err)
		writeError(w, http.StatusInternalServerError, errors.New("share lookup failed"))
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	_, _ = io.WriteString(w, snippet.Code)
	log.Info("http share served", "token", token, "bytes", len(snippet.Code))
}

func (s *Server) shareURL(token schema.ShareToken) string {
	if s.linkBase != "" {
		return s.linkBase + "s/" + string(token)
	}
	return "/s/" + string(token)
}

func decodeJSON(body io.Reader, target any) error {
	decoder := json.NewDecoder(body)
	decoder.DisallowUnknownFields()
	return decoder.Decode(target)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	data, _ := json.Marshal(payload)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(data)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]any{"error": err.Error()})
}

func writeGateError(w http.ResponseWriter, status int, code string, err error, remainingUses *int) {
	payload := struct {
		Error         string `json:"error"`
		ErrorCode     string `json:"errorCode"`
		RemainingUses *int   `json:"remainingUses,omitempty"`
	}{Error: err.Error(), ErrorCode: code, RemainingUses: remainingUses}
	writeJSON(w, status, payload)
}

func writeStreamEvent(w io.Writer, event schema.StreamEvent) error {
	data, err := json.Marshal(event)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "data: %s\n\n", data)
	return err
}
