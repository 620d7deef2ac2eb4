// Package claimapi serves the staff issuance endpoints and the member-facing
// claim pages over HTTP.
package claimapi

import (
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"memberdesk/cmd/internal/claim"
	"memberdesk/cmd/internal/linktoken"
	"memberdesk/cmd/internal/records"

	"github.com/go-chi/chi/v5"
	"github.com/sethvargo/go-limiter"
)

// Config controls request limits and proxy trust.
type Config struct {
	TrustProxy   bool
	MaxBodyBytes int64
	// MaxUploadBytes bounds a whole multipart upload request.
	MaxUploadBytes int64
}

// DefaultConfig returns safe defaults.
func DefaultConfig() Config {
	return Config{
		MaxBodyBytes:   64 << 10,
		MaxUploadBytes: int64(len(records.RequiredDocTypes))*claim.MaxFileBytes + 1<<20,
	}
}

// Handler wires the issuer and both claim engines to HTTP.
type Handler struct {
	log         *slog.Logger
	cfg         Config
	issuer      *linktoken.Issuer
	upload      *claim.Engine[*claim.UploadForm]
	declaration *claim.Engine[*claim.DeclarationForm]
	auth        *StaffAuth
	limiter     limiter.Store
}

// HandlerOption configures the Handler.
type HandlerOption func(*Handler) error

// WithRateLimiter throttles the member-facing routes.
func WithRateLimiter(s limiter.Store) HandlerOption {
	return func(h *Handler) error {
		h.limiter = s
		return nil
	}
}

// NewHandler constructs a Handler.
func NewHandler(
	log *slog.Logger,
	cfg Config,
	issuer *linktoken.Issuer,
	upload *claim.Engine[*claim.UploadForm],
	declaration *claim.Engine[*claim.DeclarationForm],
	auth *StaffAuth,
	opts ...HandlerOption,
) (*Handler, error) {
	if log == nil {
		log = slog.Default()
	}
	if issuer == nil || upload == nil || declaration == nil || auth == nil {
		return nil, errors.New("claimapi: missing dependency")
	}
	def := DefaultConfig()
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = def.MaxBodyBytes
	}
	if cfg.MaxUploadBytes <= 0 {
		cfg.MaxUploadBytes = def.MaxUploadBytes
	}
	h := &Handler{log: log, cfg: cfg, issuer: issuer, upload: upload, declaration: declaration, auth: auth}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt(h); err != nil {
			return nil, err
		}
	}
	return h, nil
}

// Routes registers every route on r.
func (h *Handler) Routes(r chi.Router) {
	r.Route("/staff/tokens", func(r chi.Router) {
		r.Use(h.auth.RequireStaff)
		r.Post("/", h.handleIssue)
		r.Post("/{tokenID}/revoke", h.handleRevoke)
	})

	r.Group(func(r chi.Router) {
		r.Use(h.rateLimit)
		r.Get("/"+linktoken.PurposeDocumentUpload.Path(), h.handleUploadView)
		r.Post("/"+linktoken.PurposeDocumentUpload.Path(), h.handleUploadSubmit)
		r.Get("/"+linktoken.PurposeDeclarationSignature.Path(), h.handleDeclarationView)
		r.Post("/"+linktoken.PurposeDeclarationSignature.Path(), h.handleDeclarationSubmit)
	})
}

func (h *Handler) handleIssue(w http.ResponseWriter, r *http.Request) {
	actor, ok := ActorFrom(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized", "missing staff identity")
		return
	}

	var req issueRequest
	if err := decodeJSON(w, r, h.cfg.MaxBodyBytes, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", "invalid request body")
		return
	}
	req.MemberID = strings.TrimSpace(req.MemberID)
	if err := validate.Struct(req); err != nil {
		writeFieldErrors(w, invalidFields(err))
		return
	}
	purpose, _ := linktoken.ParsePurpose(req.Purpose)

	out, err := h.issuer.Issue(r.Context(), linktoken.IssueInput{
		MemberID: req.MemberID,
		Purpose:  purpose,
		ActorID:  actor,
		Now:      time.Now().UTC(),
	})
	if err != nil {
		h.writeIssuerError(w, r, "claim.issue.fail", err)
		return
	}

	writeJSON(w, http.StatusCreated, issueResponse{
		TokenID:    out.TokenID,
		Secret:     out.Secret,
		ClaimURL:   out.ClaimURL,
		ExpiresAt:  out.ExpiresAt,
		Dispatched: out.Dispatched,
	})
}

func (h *Handler) handleRevoke(w http.ResponseWriter, r *http.Request) {
	actor, ok := ActorFrom(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized", "missing staff identity")
		return
	}
	tokenID := chi.URLParam(r, "tokenID")
	if err := h.issuer.Revoke(r.Context(), tokenID, actor, time.Now().UTC()); err != nil {
		h.writeIssuerError(w, r, "claim.revoke.fail", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) writeIssuerError(w http.ResponseWriter, r *http.Request, event string, err error) {
	switch {
	case errors.Is(err, linktoken.ErrInvalidInput):
		writeError(w, http.StatusBadRequest, "invalid_request", "invalid request")
	case errors.Is(err, linktoken.ErrMemberNotFound):
		writeError(w, http.StatusNotFound, "member_not_found", "member not found")
	case errors.Is(err, linktoken.ErrNotFound):
		writeError(w, http.StatusNotFound, "token_not_found", "token not found")
	case errors.Is(err, linktoken.ErrStoreUnavailable):
		h.log.ErrorContext(r.Context(), event, "err", err)
		writeError(w, http.StatusServiceUnavailable, "store_unavailable", "please retry shortly")
	default:
		h.log.ErrorContext(r.Context(), event, "err", err)
		writeError(w, http.StatusInternalServerError, "server_error", "internal error")
	}
}

func (h *Handler) handleUploadView(w http.ResponseWriter, r *http.Request) {
	s := h.upload.Open(r.Context(), r.URL.Query().Get("token"))
	writeView(w, s.View())
}

func (h *Handler) handleDeclarationView(w http.ResponseWriter, r *http.Request) {
	s := h.declaration.Open(r.Context(), r.URL.Query().Get("token"))
	writeView(w, s.View())
}

func (h *Handler) handleUploadSubmit(w http.ResponseWriter, r *http.Request) {
	s := h.upload.Open(r.Context(), r.URL.Query().Get("token"))
	if s.State() != claim.StateReady {
		writeView(w, s.View())
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, h.cfg.MaxUploadBytes)
	if err := r.ParseMultipartForm(2 * claim.MaxFileBytes); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_upload", "invalid multipart upload")
		return
	}
	defer func() {
		if r.MultipartForm != nil {
			_ = r.MultipartForm.RemoveAll()
		}
	}()

	form := s.Payload()
	fields := map[string]string{}
	for _, dt := range records.RequiredDocTypes {
		f, err := readFormFile(r, string(dt))
		if err != nil {
			if !errors.Is(err, http.ErrMissingFile) {
				fields[string(dt)] = "Could not read the file."
			}
			continue
		}
		switch err := form.Select(dt, f); {
		case errors.Is(err, claim.ErrFileTooLarge):
			fields[string(dt)] = "File must be 5 MiB or smaller."
		case errors.Is(err, claim.ErrEmptyFile):
			fields[string(dt)] = "File is empty."
		case err != nil:
			fields[string(dt)] = "Could not accept the file."
		}
	}

	h.submit(w, r, s.View, func() (claim.State, error) {
		return h.upload.Submit(r.Context(), s, h.clientInfo(r))
	}, fields)
}

func (h *Handler) handleDeclarationSubmit(w http.ResponseWriter, r *http.Request) {
	s := h.declaration.Open(r.Context(), r.URL.Query().Get("token"))
	if s.State() != claim.StateReady {
		writeView(w, s.View())
		return
	}

	var req declarationRequest
	if err := decodeJSON(w, r, h.cfg.MaxBodyBytes, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", "invalid request body")
		return
	}
	if err := validate.Struct(req); err != nil {
		writeFieldErrors(w, invalidFields(err))
		return
	}

	form := s.Payload()
	form.ConfirmAccuracy = req.ConfirmAccuracy
	form.AcceptTerms = req.AcceptTerms
	form.Signature = req.Signature

	h.submit(w, r, s.View, func() (claim.State, error) {
		return h.declaration.Submit(r.Context(), s, h.clientInfo(r))
	}, nil)
}

// submit runs a Submit and renders its result. Selection-time field errors
// take precedence over completeness errors for the same field.
func (h *Handler) submit(w http.ResponseWriter, r *http.Request, view func() claim.View, run func() (claim.State, error), fields map[string]string) {
	_, err := run()
	var fe claim.FieldErrors
	switch {
	case errors.As(err, &fe):
		merged := map[string]string{}
		for k, v := range fe {
			merged[k] = v
		}
		for k, v := range fields {
			merged[k] = v
		}
		writeJSON(w, http.StatusUnprocessableEntity, claimResponse{View: view(), Fields: merged})
	case err != nil:
		h.log.WarnContext(r.Context(), "claim.submit.rejected", "err", err)
		writeView(w, view())
	default:
		writeView(w, view())
	}
}

func (h *Handler) clientInfo(r *http.Request) claim.ClientInfo {
	return claim.ClientInfo{
		IP:        ipString(clientIP(r, h.cfg.TrustProxy)),
		UserAgent: strings.TrimSpace(r.UserAgent()),
	}
}

func readFormFile(r *http.Request, field string) (records.File, error) {
	f, hdr, err := r.FormFile(field)
	if err != nil {
		return records.File{}, err
	}
	defer func() { _ = f.Close() }()

	// One byte past the limit is enough for Select to reject it.
	data, err := io.ReadAll(io.LimitReader(f, claim.MaxFileBytes+1))
	if err != nil {
		return records.File{}, err
	}
	return records.File{
		Name:        hdr.Filename,
		ContentType: hdr.Header.Get("Content-Type"),
		Data:        data,
	}, nil
}

func writeView(w http.ResponseWriter, v claim.View) {
	writeJSON(w, viewStatus(v.State), claimResponse{View: v})
}

func viewStatus(s claim.State) int {
	switch s {
	case claim.StateInvalid:
		return http.StatusNotFound
	case claim.StateExpired:
		return http.StatusGone
	case claim.StateAlreadyUsed:
		return http.StatusConflict
	case claim.StateError:
		return http.StatusServiceUnavailable
	default:
		return http.StatusOK
	}
}
