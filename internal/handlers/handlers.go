package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"
	"strconv"

	"github.com/Brownie44l1/letter-api/internal/drawing"
	"github.com/Brownie44l1/letter-api/internal/history"
	"github.com/Brownie44l1/letter-api/internal/model"
	"github.com/Brownie44l1/letter-api/internal/pipeline"
	"github.com/Brownie44l1/letter-api/internal/raster"
	"github.com/Brownie44l1/letter-api/internal/tensor"
)

const maxBody = 10 << 20

// HistoryLister is the read side of the prediction log.
type HistoryLister interface {
	Recent(ctx context.Context, limit int) ([]history.Entry, error)
}

type Handler struct {
	pipeline     *pipeline.Pipeline
	ready        func() bool
	history      HistoryLister
	historyLimit int
	lineWidth    float64
}

type Option func(*Handler)

func WithHistory(h HistoryLister, limit int) Option {
	return func(hd *Handler) {
		hd.history = h
		hd.historyLimit = limit
	}
}

func WithLineWidth(w float64) Option {
	return func(hd *Handler) { hd.lineWidth = w }
}

// NewHandler serves predictions from p. ready reports classifier state for
// the health endpoint.
func NewHandler(p *pipeline.Pipeline, ready func() bool, opts ...Option) *Handler {
	h := &Handler{
		pipeline:     p,
		ready:        ready,
		historyLimit: 50,
		lineWidth:    drawing.DefaultLineWidth,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Routes registers every endpoint on mux, wrapped with CORS.
func (h *Handler) Routes(mux *http.ServeMux) {
	mux.HandleFunc("/health", EnableCORS(h.Health))
	mux.HandleFunc("/predict", EnableCORS(h.Predict))
	mux.HandleFunc("/predict/image", EnableCORS(h.PredictFromImage))
	mux.HandleFunc("/predict/strokes", EnableCORS(h.PredictFromStrokes))
	mux.HandleFunc("/history", EnableCORS(h.History))
}

func EnableCORS(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "POST, GET, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next(w, r)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("Failed to write response: %v", err)
	}
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, raster.ErrMalformedRaster),
		errors.Is(err, drawing.ErrBadSize),
		errors.Is(err, drawing.ErrUnknownEvent):
		return http.StatusBadRequest
	case errors.Is(err, tensor.ErrEmptyInput):
		return http.StatusUnprocessableEntity
	case errors.Is(err, pipeline.ErrBusy):
		return http.StatusTooManyRequests
	case errors.Is(err, model.ErrClassifierUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, ErrorResponse{Status: "not_available", Error: msg})
}

func (h *Handler) predict(w http.ResponseWriter, r *http.Request, img *raster.Image) {
	result, err := h.pipeline.Predict(r.Context(), pipeline.Static(img))
	if err != nil {
		status := statusFor(err)
		if status == http.StatusInternalServerError {
			log.Printf("Prediction error: %v", err)
			writeError(w, status, "prediction failed")
			return
		}
		writeError(w, status, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	classifier := "ready"
	if h.ready == nil || !h.ready() {
		classifier = "unavailable"
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "healthy", "classifier": classifier})
}

// Predict classifies a raw RGBA canvas buffer.
func (h *Handler) Predict(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req RasterRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBody)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}

	img, err := raster.New(req.Width, req.Height, req.RGBA)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	h.predict(w, r, img)
}

// PredictFromImage classifies an uploaded PNG or JPEG. Only images with
// transparency carry ink in their alpha channel.
func (h *Handler) PredictFromImage(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	if err := r.ParseMultipartForm(maxBody); err != nil {
		writeError(w, http.StatusBadRequest, "failed to parse form")
		return
	}

	file, header, err := r.FormFile("image")
	if err != nil {
		writeError(w, http.StatusBadRequest, "no image file provided, use 'image' as the form field name")
		return
	}
	defer file.Close()

	log.Printf("Received file: %s, size: %d bytes", header.Filename, header.Size)

	data, err := io.ReadAll(io.LimitReader(file, maxBody))
	if err != nil {
		writeError(w, http.StatusBadRequest, "failed to read image")
		return
	}

	img, format, err := raster.Decode(data)
	if err != nil {
		writeError(w, statusFor(err), err.Error())
		return
	}

	log.Printf("Image format: %s, dimensions: %dx%d", format, img.Width, img.Height)
	h.predict(w, r, img)
}

// PredictFromStrokes renders drawing events and classifies the result.
func (h *Handler) PredictFromStrokes(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req StrokesRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBody)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if req.LineWidth <= 0 {
		req.LineWidth = h.lineWidth
	}

	img, err := drawing.Replay(req.Width, req.Height, req.LineWidth, req.Events)
	if err != nil {
		writeError(w, statusFor(err), err.Error())
		return
	}

	h.predict(w, r, img)
}

func (h *Handler) History(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if h.history == nil {
		http.Error(w, "History disabled", http.StatusNotFound)
		return
	}

	limit := h.historyLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			http.Error(w, "Invalid limit", http.StatusBadRequest)
			return
		}
		limit = min(n, h.historyLimit)
	}

	entries, err := h.history.Recent(r.Context(), limit)
	if err != nil {
		log.Printf("History error: %v", err)
		http.Error(w, "History unavailable", http.StatusInternalServerError)
		return
	}
	if entries == nil {
		entries = []history.Entry{}
	}
	writeJSON(w, http.StatusOK, entries)
}
