package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/RyanBlaney/sonido-grader/assessment"
	"github.com/RyanBlaney/sonido-grader/assessment/config"
	"github.com/RyanBlaney/sonido-grader/logging"
	"github.com/RyanBlaney/sonido-grader/storage"
	"github.com/RyanBlaney/sonido-grader/transcode"
)

// multipart parts beyond this stay on disk while parsing
const multipartMemory = 8 << 20

// GradeResponse is the /grade_singing body: the assessment plus request details
type GradeResponse struct {
	*assessment.AssessmentResult
	ResultID  string `json:"result_id"`
	UserID    string `json:"user_id"`
	Method    string `json:"method"`
	Timestamp string `json:"timestamp"`
}

type errorResponse struct {
	Detail string `json:"detail"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, format string, args ...any) {
	writeJSON(w, status, errorResponse{Detail: fmt.Sprintf(format, args...)})
}

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"message": "Vocal Pitch Grader API",
		"version": Version,
		"endpoints": map[string]string{
			"health":        "GET /health",
			"voice_ranges":  "GET /voice-ranges",
			"grade_singing": "POST /grade_singing",
			"user_results":  "GET /users/{user_id}/results",
		},
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":       "healthy",
		"timestamp":    s.now().UTC().Format(time.RFC3339),
		"voice_ranges": s.analyzer.Profiles().IDs(),
		"persistence":  s.store != nil,
	})
}

func (s *Server) handleVoiceRanges(w http.ResponseWriter, r *http.Request) {
	table := s.analyzer.Profiles()
	writeJSON(w, http.StatusOK, map[string]any{
		"default":      table.DefaultID(),
		"tolerance_hz": s.analyzer.Tolerance(),
		"voice_ranges": table.Profiles(),
	})
}

func (s *Server) handleGradeSinging(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := s.logger.WithContext(ctx).WithFields(logging.Fields{
		"function": "handleGradeSinging",
	})

	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.MaxUploadBytes())
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		if isTooLarge(err) {
			writeError(w, http.StatusRequestEntityTooLarge, "upload exceeds %d MB", s.cfg.MaxUploadMB)
			return
		}
		writeError(w, http.StatusBadRequest, "invalid multipart form: %v", err)
		return
	}
	if r.MultipartForm != nil {
		defer r.MultipartForm.RemoveAll()
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "file is required")
		return
	}
	defer file.Close()

	ext := strings.ToLower(filepath.Ext(header.Filename))
	if !transcode.IsSupported(ext) {
		writeError(w, http.StatusBadRequest, "unsupported file type %q, expected one of %s",
			ext, strings.Join(transcode.SupportedExtensions, ", "))
		return
	}

	userID, err := uuid.Parse(r.FormValue("user_id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "user_id must be a valid UUID")
		return
	}

	voiceRange := config.VoiceRange(strings.ToLower(strings.TrimSpace(r.FormValue("voice_range"))))
	if voiceRange == "" {
		voiceRange = s.analyzer.Profiles().DefaultID()
	}
	if _, ok := s.analyzer.Profiles().Get(voiceRange); !ok {
		writeError(w, http.StatusBadRequest, "unknown voice_range %q", voiceRange)
		return
	}

	logger = logger.WithFields(logging.Fields{
		"user_id":     userID.String(),
		"voice_range": voiceRange,
		"filename":    header.Filename,
	})

	data, err := io.ReadAll(file)
	if err != nil {
		writeError(w, http.StatusBadRequest, "failed to read upload")
		return
	}

	audio, err := s.decoder.Decode(ctx, data, ext)
	if err != nil {
		logger.Error(err, "Failed to decode upload")
		writeError(w, http.StatusInternalServerError, "error processing audio: %v", err)
		return
	}

	result, err := s.analyze(ctx, assessment.Waveform{Samples: audio.PCM, SampleRate: audio.SampleRate}, voiceRange)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			logger.Warn("Analysis timed out", logging.Fields{"timeout": s.cfg.AnalysisTimeout.Seconds()})
			writeError(w, http.StatusGatewayTimeout, "analysis timed out")
			return
		}
		if errors.Is(err, context.Canceled) {
			return
		}
		logger.Error(err, "Analysis failed")
		writeError(w, http.StatusInternalServerError, "error processing audio: %v", err)
		return
	}

	if result.NoPitchDetected() {
		logger.Info("No pitch detected in upload")
		writeError(w, http.StatusUnprocessableEntity, "no pitch detected in audio; please sing clearly into the microphone")
		return
	}

	now := s.now()
	resultID := uuid.Must(uuid.NewV7())
	resp := GradeResponse{
		AssessmentResult: result,
		ResultID:         resultID.String(),
		UserID:           userID.String(),
		Method:           result.Method,
		Timestamp:        now.UTC().Format(time.RFC3339),
	}

	logger.Info("Recording graded", logging.Fields{
		"score":  result.Score,
		"method": result.Method,
	})

	s.persist(ctx, &storage.Record{
		ID:         resultID,
		UserID:     userID,
		VoiceRange: string(voiceRange),
		Score:      result.Score,
		Result:     result,
		CreatedAt:  now,
	})

	writeJSON(w, http.StatusOK, resp)
}

// analyze runs the pipeline in its own goroutine so a slow analysis can be
// abandoned once the timeout or the client gives up
func (s *Server) analyze(ctx context.Context, w assessment.Waveform, voiceRange config.VoiceRange) (*assessment.AssessmentResult, error) {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.AnalysisTimeout)
	defer cancel()

	type outcome struct {
		result *assessment.AssessmentResult
		err    error
	}
	done := make(chan outcome, 1)
	go func() {
		result, err := s.analyzer.Analyze(w, voiceRange)
		done <- outcome{result, err}
	}()

	select {
	case o := <-done:
		return o.result, o.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// persist saves rec in the background. Failures are logged and never reach the client.
func (s *Server) persist(ctx context.Context, rec *storage.Record) {
	if s.store == nil {
		return
	}

	logger := s.logger.WithContext(ctx)
	s.pending.Add(1)
	go func() {
		defer s.pending.Done()

		saveCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.cfg.StoreTimeout)
		defer cancel()

		if err := s.store.Save(saveCtx, rec); err != nil {
			logger.Error(err, "Failed to store result", logging.Fields{
				"result_id": rec.ID.String(),
			})
		}
	}()
}

func (s *Server) handleUserResults(w http.ResponseWriter, r *http.Request) {
	userID, err := uuid.Parse(chi.URLParam(r, "user_id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "user_id must be a valid UUID")
		return
	}

	limit := storage.DefaultListLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		limit, err = strconv.Atoi(raw)
		if err != nil || limit <= 0 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
	}

	if s.store == nil {
		writeError(w, http.StatusServiceUnavailable, "result storage is disabled")
		return
	}

	records, err := s.store.ListByUser(r.Context(), userID, limit)
	if err != nil {
		s.logger.WithContext(r.Context()).Error(err, "Failed to list results", logging.Fields{
			"user_id": userID.String(),
		})
		writeError(w, http.StatusInternalServerError, "failed to load results")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"user_id": userID.String(),
		"results": records,
	})
}

func isTooLarge(err error) bool {
	var maxErr *http.MaxBytesError
	if errors.As(err, &maxErr) {
		return true
	}
	// some multipart paths flatten the error to its message
	return strings.Contains(err.Error(), "request body too large")
}
