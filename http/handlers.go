package http

import (
	"bytes"
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"html/template"
	"net/http"
	"strconv"
	"time"

	"go.uber.org/zap"

	"powercast/ml"
	"powercast/prediction"
)

//go:embed templates/index.html
var indexHTML string

var indexTemplate = template.Must(template.New("index").Parse(indexHTML))

// HistoryReader lists recorded predictions.
type HistoryReader interface {
	Recent(ctx context.Context, limit int) ([]prediction.Record, error)
}

type Handlers struct {
	service *prediction.Service
	history HistoryReader
	logger  *zap.Logger
}

// NewHandlers wires the presentation layer. history may be nil.
func NewHandlers(service *prediction.Service, history HistoryReader, logger *zap.Logger) *Handlers {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handlers{service: service, history: history, logger: logger}
}

func (h *Handlers) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /{$}", h.handleHome)
	mux.HandleFunc("POST /predict", h.handlePredictForm)
	mux.HandleFunc("GET /api/health", h.handleHealth)
	mux.HandleFunc("GET /api/models", h.handleModels)
	mux.HandleFunc("POST /api/predict", h.handleAPIPredict)
	if h.history != nil {
		mux.HandleFunc("GET /api/predictions", h.handlePredictions)
	}
}

type pageData struct {
	Models         []string
	SensorFields   []string
	Selected       string
	PredictionText string
	Error          string
}

func (h *Handlers) newPage() pageData {
	return pageData{Models: h.service.Models(), SensorFields: ml.SensorFields}
}

func (h *Handlers) handleHome(w http.ResponseWriter, r *http.Request) {
	h.render(w, h.newPage())
}

// handlePredictForm always answers 200; failures are shown on the page.
func (h *Handlers) handlePredictForm(w http.ResponseWriter, r *http.Request) {
	data := h.newPage()
	if err := r.ParseForm(); err != nil {
		h.logger.Error("An error occurred during prediction", zap.Error(err))
		data.Error = displayMessage(err)
		h.render(w, data)
		return
	}

	sub := ml.SubmissionFromForm(r.PostForm)
	res, err := h.service.PredictSubmission(r.Context(), sub)
	if err != nil {
		var serr *prediction.SelectionError
		if !errors.As(err, &serr) {
			data.Selected = sub.ModelChoice
		}
		data.Error = displayMessage(err)
		h.render(w, data)
		return
	}

	data.Selected = sub.ModelChoice
	data.PredictionText = res.Text
	h.render(w, data)
}

func (h *Handlers) render(w http.ResponseWriter, data pageData) {
	var buf bytes.Buffer
	if err := indexTemplate.Execute(&buf, data); err != nil {
		h.logger.Error("Failed to render page", zap.Error(err))
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Write(buf.Bytes())
}

func (h *Handlers) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status": "ok",
		"models": len(h.service.Models()),
	})
}

func (h *Handlers) handleModels(w http.ResponseWriter, r *http.Request) {
	models := h.service.Models()
	if models == nil {
		models = []string{}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"models": models})
}

type predictResponse struct {
	Model      string  `json:"model"`
	Prediction float64 `json:"prediction"`
	Text       string  `json:"text"`
}

func (h *Handlers) handleAPIPredict(w http.ResponseWriter, r *http.Request) {
	dec := json.NewDecoder(r.Body)
	dec.UseNumber()
	var body map[string]interface{}
	if err := dec.Decode(&body); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON body: " + err.Error()})
		return
	}

	res, err := h.service.PredictSubmission(r.Context(), submissionFromJSON(body))
	if err != nil {
		writeJSON(w, statusFor(err), map[string]string{"error": displayMessage(err)})
		return
	}
	writeJSON(w, http.StatusOK, predictResponse{Model: res.Model, Prediction: res.Value, Text: res.Text})
}

type predictionEntry struct {
	Model      string                 `json:"model"`
	Features   map[string]interface{} `json:"features"`
	Prediction float64                `json:"prediction"`
	CreatedAt  time.Time              `json:"created_at"`
}

func (h *Handlers) handlePredictions(w http.ResponseWriter, r *http.Request) {
	limit := 20
	if s := r.URL.Query().Get("limit"); s != "" {
		if l, err := strconv.Atoi(s); err == nil && l > 0 && l <= 500 {
			limit = l
		}
	}

	records, err := h.history.Recent(r.Context(), limit)
	if err != nil {
		h.logger.Error("Failed to query prediction history", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to query prediction history"})
		return
	}

	entries := make([]predictionEntry, len(records))
	for i, rec := range records {
		entries[i] = predictionEntry{
			Model:      rec.Model,
			Features:   jsonFeatures(rec.Features),
			Prediction: rec.Value,
			CreatedAt:  rec.CreatedAt,
		}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"predictions": entries})
}

func jsonFeatures(vector ml.FeatureVector) map[string]interface{} {
	m := make(map[string]interface{}, len(vector))
	for name, v := range vector.Map() {
		m[name] = ml.JSONNumber(v)
	}
	return m
}

func submissionFromJSON(body map[string]interface{}) ml.Submission {
	sub := ml.Submission{Readings: make(map[string]string, len(ml.SensorFields))}
	if s, ok := jsonString(body[ml.FieldModelChoice]); ok {
		sub.ModelChoice = s
	}
	if s, ok := jsonString(body[ml.FieldDatetime]); ok {
		sub.Datetime = s
	}
	for _, field := range ml.SensorFields {
		if s, ok := jsonString(body[field]); ok {
			sub.Readings[field] = s
		}
	}
	return sub
}

func jsonString(v interface{}) (string, bool) {
	switch t := v.(type) {
	case nil:
		return "", false
	case string:
		return t, true
	case json.Number:
		return t.String(), true
	default:
		return fmt.Sprint(t), true
	}
}

// displayMessage turns a per-request error into the text shown to users.
func displayMessage(err error) string {
	var (
		verr *ml.ValidationError
		serr *prediction.SelectionError
		perr *prediction.PredictionError
	)
	if errors.As(err, &verr) || errors.As(err, &serr) || errors.As(err, &perr) {
		return err.Error()
	}
	return "An error occurred: " + err.Error()
}

func statusFor(err error) int {
	var (
		verr *ml.ValidationError
		serr *prediction.SelectionError
	)
	if errors.As(err, &verr) || errors.As(err, &serr) {
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}

// writeJSON encodes v before writing the header, so an unencodable value
// turns into a 500 instead of an empty success response.
func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	body, err := json.Marshal(v)
	if err != nil {
		status = http.StatusInternalServerError
		body, _ = json.Marshal(map[string]string{"error": "failed to encode response: " + err.Error()})
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write(append(body, '\n'))
}
