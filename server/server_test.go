package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"math"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
	"github.com/google/uuid"

	"github.com/RyanBlaney/sonido-grader/assessment"
	"github.com/RyanBlaney/sonido-grader/assessment/config"
	"github.com/RyanBlaney/sonido-grader/logging"
	"github.com/RyanBlaney/sonido-grader/storage"
	"github.com/RyanBlaney/sonido-grader/transcode"
)

const testRate = 16000

type memoryStore struct {
	mu      sync.Mutex
	records []storage.Record
	failErr error
}

func (m *memoryStore) Save(ctx context.Context, rec *storage.Record) error {
	if m.failErr != nil {
		return m.failErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records = append(m.records, *rec)
	return nil
}

func (m *memoryStore) ListByUser(ctx context.Context, userID uuid.UUID, limit int) ([]storage.Record, error) {
	if m.failErr != nil {
		return nil, m.failErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []storage.Record{}
	for i := len(m.records) - 1; i >= 0 && len(out) < limit; i-- {
		if m.records[i].UserID == userID {
			out = append(out, m.records[i])
		}
	}
	return out, nil
}

// wavBytes renders each frequency as 0.5 s of 16-bit mono sine; 0 renders silence
func wavBytes(t *testing.T, frequencies ...float64) []byte {
	t.Helper()

	per := testRate / 2
	data := make([]int, 0, per*len(frequencies))
	for _, f := range frequencies {
		for i := 0; i < per; i++ {
			data = append(data, int(0.6*32767*math.Sin(2*math.Pi*f*float64(i)/testRate)))
		}
	}

	path := filepath.Join(t.TempDir(), "take.wav")
	out, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	enc := wav.NewEncoder(out, testRate, 16, 1, 1)
	if err := enc.Write(&audio.IntBuffer{
		Format:         &audio.Format{NumChannels: 1, SampleRate: testRate},
		Data:           data,
		SourceBitDepth: 16,
	}); err != nil {
		t.Fatal(err)
	}
	if err := enc.Close(); err != nil {
		t.Fatal(err)
	}
	out.Close()

	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	return raw
}

func uploadRequest(t *testing.T, filename string, content []byte, fields map[string]string) *http.Request {
	t.Helper()

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	for k, v := range fields {
		if err := mw.WriteField(k, v); err != nil {
			t.Fatal(err)
		}
	}
	if filename != "" {
		part, err := mw.CreateFormFile("file", filename)
		if err != nil {
			t.Fatal(err)
		}
		part.Write(content)
	}
	mw.Close()

	req := httptest.NewRequest(http.MethodPost, "/grade_singing", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func newTestServer(t *testing.T, cfg *Config, opts ...Option) *Server {
	t.Helper()
	if cfg == nil {
		cfg = DefaultConfig()
	}
	analyzer, err := assessment.NewAnalyzer(config.DefaultProfileTable(), &cfg.Assessment,
		assessment.WithLogger(&logging.NoOpLogger{}))
	if err != nil {
		t.Fatalf("NewAnalyzer: %v", err)
	}
	opts = append([]Option{WithLogger(&logging.NoOpLogger{})}, opts...)
	s, err := New(cfg, analyzer, opts...)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return s
}

func serve(s *Server, req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}

func TestInfoEndpoints(t *testing.T) {
	s := newTestServer(t, nil)

	for _, path := range []string{"/", "/health", "/voice-ranges"} {
		rec := serve(s, httptest.NewRequest(http.MethodGet, path, nil))
		if rec.Code != http.StatusOK {
			t.Errorf("GET %s = %d", path, rec.Code)
		}
		if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
			t.Errorf("GET %s content type %q", path, ct)
		}
	}

	var health struct {
		Status      string   `json:"status"`
		VoiceRanges []string `json:"voice_ranges"`
	}
	rec := serve(s, httptest.NewRequest(http.MethodGet, "/health", nil))
	if err := json.Unmarshal(rec.Body.Bytes(), &health); err != nil {
		t.Fatal(err)
	}
	if health.Status != "healthy" || len(health.VoiceRanges) != 2 {
		t.Errorf("health = %+v", health)
	}
}

func TestGradeSingingPerfectScale(t *testing.T) {
	store := &memoryStore{}
	s := newTestServer(t, nil, WithStore(store))
	user := uuid.New()

	req := uploadRequest(t, "take.wav", wavBytes(t, config.AltoProfile().Frequencies()...), map[string]string{
		"user_id":     user.String(),
		"voice_range": "alto",
	})
	rec := serve(s, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}

	var resp struct {
		Score           int     `json:"score"`
		Percentage      float64 `json:"overall_percentage"`
		UserID          string  `json:"user_id"`
		ResultID        string  `json:"result_id"`
		Method          string  `json:"method"`
		Timestamp       string  `json:"timestamp"`
		NoteResults     []any   `json:"note_by_note_results"`
		ReferenceMelody struct {
			VoiceRange string `json:"voice_range"`
		} `json:"reference_melody"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp.Score != 100 || resp.Percentage != 100 {
		t.Errorf("score = %d (%v%%), want 100", resp.Score, resp.Percentage)
	}
	if resp.UserID != user.String() || resp.ReferenceMelody.VoiceRange != "alto" {
		t.Errorf("response = %+v", resp)
	}
	if resp.Method == "" || resp.Timestamp == "" || len(resp.NoteResults) != 5 {
		t.Errorf("incomplete response: %+v", resp)
	}

	s.Wait()
	if len(store.records) != 1 {
		t.Fatalf("stored %d records, want 1", len(store.records))
	}
	if got := store.records[0]; got.ID.String() != resp.ResultID || got.UserID != user || got.Score != 100 {
		t.Errorf("stored record = %+v", got)
	}
}

func TestGradeSingingDefaultsToSoprano(t *testing.T) {
	s := newTestServer(t, nil)

	req := uploadRequest(t, "TAKE.WAV", wavBytes(t, config.SopranoProfile().Frequencies()...), map[string]string{
		"user_id": uuid.NewString(),
	})
	rec := serve(s, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	var resp assessment.AssessmentResult
	json.Unmarshal(rec.Body.Bytes(), &resp)
	if resp.ReferenceMelody.VoiceRange != config.VoiceSoprano || resp.Score != 100 {
		t.Errorf("got %q score %d", resp.ReferenceMelody.VoiceRange, resp.Score)
	}
}

func TestGradeSingingRejectsBadRequests(t *testing.T) {
	s := newTestServer(t, nil)
	clip := wavBytes(t, 300)
	valid := uuid.NewString()

	tests := []struct {
		name     string
		filename string
		fields   map[string]string
	}{
		{"missing file", "", map[string]string{"user_id": valid}},
		{"unsupported extension", "take.ogg", map[string]string{"user_id": valid}},
		{"missing user id", "take.wav", nil},
		{"malformed user id", "take.wav", map[string]string{"user_id": "user-42"}},
		{"unknown voice range", "take.wav", map[string]string{"user_id": valid, "voice_range": "baritone"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := serve(s, uploadRequest(t, tt.filename, clip, tt.fields))
			if rec.Code != http.StatusBadRequest {
				t.Errorf("status = %d, want 400 (body %s)", rec.Code, rec.Body.String())
			}
			var e errorResponse
			if err := json.Unmarshal(rec.Body.Bytes(), &e); err != nil || e.Detail == "" {
				t.Errorf("missing error detail: %s", rec.Body.String())
			}
		})
	}

	rec := serve(s, httptest.NewRequest(http.MethodPost, "/grade_singing", bytes.NewBufferString("plain")))
	if rec.Code != http.StatusBadRequest {
		t.Errorf("non-multipart body = %d, want 400", rec.Code)
	}
}

func TestGradeSingingSilenceIsUnprocessable(t *testing.T) {
	store := &memoryStore{}
	s := newTestServer(t, nil, WithStore(store))

	req := uploadRequest(t, "quiet.wav", wavBytes(t, 0, 0, 0), map[string]string{"user_id": uuid.NewString()})
	rec := serve(s, req)
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("status = %d, want 422", rec.Code)
	}
	s.Wait()
	if len(store.records) != 0 {
		t.Error("silent recording should not be stored")
	}
}

func TestGradeSingingUploadTooLarge(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxUploadMB = 1
	s := newTestServer(t, cfg)

	req := uploadRequest(t, "long.wav", make([]byte, 2<<20), map[string]string{"user_id": uuid.NewString()})
	rec := serve(s, req)
	if rec.Code != http.StatusRequestEntityTooLarge {
		t.Errorf("status = %d, want 413", rec.Code)
	}
}

func TestGradeSingingDecodeFailure(t *testing.T) {
	decCfg := transcode.DefaultDecoderConfig()
	decCfg.FFmpegPath = filepath.Join(t.TempDir(), "missing-ffmpeg")
	decCfg.FFprobePath = filepath.Join(t.TempDir(), "missing-ffprobe")
	decoder := transcode.NewDecoder(decCfg)
	decoder.SetLogger(nil)
	s := newTestServer(t, nil, WithDecoder(decoder))

	req := uploadRequest(t, "take.mp3", []byte("ID3 not really an mp3"), map[string]string{"user_id": uuid.NewString()})
	rec := serve(s, req)
	if rec.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", rec.Code)
	}
}

func TestGradeSingingAnalysisTimeout(t *testing.T) {
	cfg := DefaultConfig()
	cfg.AnalysisTimeout = time.Nanosecond
	s := newTestServer(t, cfg)

	req := uploadRequest(t, "take.wav", wavBytes(t, 300, 300, 300, 300), map[string]string{"user_id": uuid.NewString()})
	rec := serve(s, req)
	if rec.Code != http.StatusGatewayTimeout {
		t.Errorf("status = %d, want 504", rec.Code)
	}
}

func TestGradeSingingStoreFailureStillResponds(t *testing.T) {
	store := &memoryStore{failErr: errors.New("disk full")}
	s := newTestServer(t, nil, WithStore(store))

	req := uploadRequest(t, "take.wav", wavBytes(t, config.SopranoProfile().Frequencies()...), map[string]string{"user_id": uuid.NewString()})
	rec := serve(s, req)
	s.Wait()
	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want 200 despite store failure", rec.Code)
	}
}

func TestUserResults(t *testing.T) {
	db, err := storage.Open(":memory:")
	if err != nil {
		t.Fatalf("storage.Open: %v", err)
	}
	defer db.Close()

	s := newTestServer(t, nil, WithStore(db))
	user := uuid.New()

	for range 2 {
		req := uploadRequest(t, "take.wav", wavBytes(t, config.SopranoProfile().Frequencies()...), map[string]string{"user_id": user.String()})
		if rec := serve(s, req); rec.Code != http.StatusOK {
			t.Fatalf("grade status = %d", rec.Code)
		}
	}
	s.Wait()

	rec := serve(s, httptest.NewRequest(http.MethodGet, "/users/"+user.String()+"/results?limit=1", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	var resp struct {
		UserID  string           `json:"user_id"`
		Results []storage.Record `json:"results"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp.UserID != user.String() || len(resp.Results) != 1 || resp.Results[0].Score != 100 {
		t.Errorf("response = %+v", resp)
	}

	for path, want := range map[string]int{
		"/users/not-a-uuid/results":                    http.StatusBadRequest,
		"/users/" + user.String() + "/results?limit=0": http.StatusBadRequest,
		"/users/" + user.String() + "/results?limit=x": http.StatusBadRequest,
	} {
		if rec := serve(s, httptest.NewRequest(http.MethodGet, path, nil)); rec.Code != want {
			t.Errorf("GET %s = %d, want %d", path, rec.Code, want)
		}
	}
}

func TestUserResultsWithoutStore(t *testing.T) {
	s := newTestServer(t, nil)
	rec := serve(s, httptest.NewRequest(http.MethodGet, "/users/"+uuid.NewString()+"/results", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503", rec.Code)
	}
}

func TestCORSPreflight(t *testing.T) {
	s := newTestServer(t, nil)

	req := httptest.NewRequest(http.MethodOptions, "/grade_singing", nil)
	req.Header.Set("Origin", "https://app.example")
	req.Header.Set("Access-Control-Request-Method", "POST")
	rec := serve(s, req)

	if rec.Code != http.StatusNoContent {
		t.Errorf("status = %d, want 204", rec.Code)
	}
	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "*" {
		t.Errorf("allow origin = %q", got)
	}
}

func TestRequestIDHeaderPropagates(t *testing.T) {
	var out, errOut bytes.Buffer
	logger := logging.NewWriterLogger(&out, &errOut)
	s := newTestServer(t, nil, WithLogger(logger))

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("X-Request-Id", "req-123")
	serve(s, req)

	if !bytes.Contains(out.Bytes(), []byte("request_id=req-123")) {
		t.Errorf("request log missing request id: %q", out.String())
	}
}
