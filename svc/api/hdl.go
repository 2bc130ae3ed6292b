package api

import (
	"encoding/json"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strconv"
	"time"

	"snipbin/cfg"
	"snipbin/pkg/domain"
	"snipbin/svc/lim"
	"snipbin/svc/svc"
	"snipbin/svc/util"

	"github.com/go-chi/chi/v5"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/hlog"
)

type Hdl struct {
	paste *svc.Paste
	cfg   *cfg.Cfg
}

type CreateReq struct {
	Content     string `json:"content"`
	TTLSeconds  int64  `json:"ttl_seconds,omitempty"`
	ContentType string `json:"content_type,omitempty"`
}

type CreateResp struct {
	Token       string    `json:"token"`
	ExpiresAt   time.Time `json:"expires_at"`
	SizeBytes   int       `json:"size_bytes"`
	ContentType string    `json:"content_type"`
	ContentHash string    `json:"content_hash"`
}

type PasteResp struct {
	CreateResp
	Content string `json:"content"`
}

func (h *Hdl) CreatePaste(w http.ResponseWriter, r *http.Request) {
	log := hlog.FromRequest(r)
	requestID := util.GetRequestID(r.Context())
	contentType := r.Header.Get("Content-Type")
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil || mediaType != "application/json" {
		log.Warn().
			Str("content_type", contentType).
			Str("request_id", requestID).
			Msg("invalid Content-Type header")
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnsupportedMediaType)
		json.NewEncoder(w).Encode(map[string]string{
			"error":      "expected Content-Type: application/json",
			"request_id": requestID,
		})
		return
	}

	limit := h.cfg.MaxContentBytes * 2
	if clHeader := r.Header.Get("Content-Length"); clHeader != "" {
		cl, err := strconv.ParseInt(clHeader, 10, 64)
		if err != nil || cl < 0 {
			log.Warn().Str("content_length", clHeader).Msg("invalid Content-Length")
			writeErr(w, domain.ErrInvalidRequest, requestID)
			return
		}
		if cl > limit {
			log.Warn().Int64("content_length", cl).Msg("Content-Length exceeds maximum")
			writeErr(w, domain.ErrInvalidContent, requestID)
			return
		}
	}
	r.Body = http.MaxBytesReader(w, r.Body, limit)

	var req CreateReq
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		if err == io.EOF {
			log.Warn().Msg("empty request body")
		} else {
			log.Warn().Err(err).Msg("invalid request")
		}
		writeErr(w, domain.ErrInvalidRequest, requestID)
		return
	}

	ttl := h.cfg.DefaultTTL
	if req.TTLSeconds != 0 {
		ttl = time.Duration(req.TTLSeconds) * time.Second
	}

	params := domain.CreateParams{
		Content:     []byte(req.Content),
		TTL:         ttl,
		ContentType: req.ContentType,
		ClientID:    lim.GetRealIP(r, h.cfg.TrustedProxies),
	}
	paste, err := h.paste.Create(r.Context(), params)
	if err != nil {
		var re *domain.RetryAfterError
		if errors.As(err, &re) {
			w.Header().Set("Retry-After", fmt.Sprintf("%d", int(re.RetryAfter.Seconds()+0.999)))
			log.Warn().
				Dur("retry_after", re.RetryAfter).
				Msg("create rate limited")
			writeErr(w, err, requestID)
			return
		}
		if errors.Is(err, domain.ErrInvalidContent) || errors.Is(err, domain.ErrInvalidTTL) {
			writeErr(w, err, requestID)
			return
		}
		log.Error().Err(err).Msg("failed to create paste")
		writeErr(w, domain.ErrInternalServer, requestID)
		return
	}
	log.Info().
		Str("token", paste.Token).
		Dur("ttl", ttl).
		Int("size_bytes", paste.SizeBytes).
		Msg("paste created")
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(CreateResp{
		Token:       paste.Token,
		ExpiresAt:   paste.ExpiresAt,
		SizeBytes:   paste.SizeBytes,
		ContentType: paste.ContentType,
		ContentHash: paste.ContentHash,
	})
}

func (h *Hdl) GetPaste(w http.ResponseWriter, r *http.Request) {
	log := hlog.FromRequest(r)
	requestID := util.GetRequestID(r.Context())
	token := chi.URLParam(r, "token")
	paste, err := h.paste.GetMetadata(r.Context(), token)
	if err != nil {
		h.writeLookupErr(w, log, token, err, requestID)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(PasteResp{
		CreateResp: CreateResp{
			Token:       paste.Token,
			ExpiresAt:   paste.ExpiresAt,
			SizeBytes:   paste.SizeBytes,
			ContentType: paste.ContentType,
			ContentHash: paste.ContentHash,
		},
		Content: string(paste.Content),
	})
}

func (h *Hdl) GetPasteContent(w http.ResponseWriter, r *http.Request) {
	log := hlog.FromRequest(r)
	requestID := util.GetRequestID(r.Context())
	token := chi.URLParam(r, "token")
	content, contentType, err := h.paste.GetContent(r.Context(), token)
	if err != nil {
		h.writeLookupErr(w, log, token, err, requestID)
		return
	}
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Cache-Control", "no-store")
	w.Header().Set("ETag", `"`+domain.HashContent(content)+`"`)
	w.WriteHeader(http.StatusOK)
	w.Write(content)
}

func (h *Hdl) writeLookupErr(w http.ResponseWriter, log *zerolog.Logger, token string, err error, requestID string) {
	if errors.Is(err, domain.ErrMalformedToken) || errors.Is(err, domain.ErrNotFound) {
		log.Debug().Str("token", token).Msg("paste not found")
		writeErr(w, domain.ErrNotFound, requestID)
		return
	}
	log.Error().Err(err).Str("token", token).Msg("lookup failed")
	writeErr(w, domain.ErrInternalServer, requestID)
}

func writeErr(w http.ResponseWriter, err error, requestID string) {
	statusCode := domain.Status(err)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	errorMsg := domain.ToResp(err).Error.Msg
	if statusCode >= 500 {
		errorMsg = "internal server error"
		util.Error().
			Err(err).
			Str("request_id", requestID).
			Msg("internal error with detailed info")
	}
	json.NewEncoder(w).Encode(map[string]string{
		"error":      errorMsg,
		"request_id": requestID,
	})
}
