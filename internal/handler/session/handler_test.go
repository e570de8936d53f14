package session

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"

	"github.com/parlalabs/parla/backend/internal/analysis/reply"
	"github.com/parlalabs/parla/backend/internal/model/conversation"
	"github.com/parlalabs/parla/backend/internal/service/gemini"
	"github.com/parlalabs/parla/backend/internal/service/history"
	"github.com/parlalabs/parla/backend/internal/service/tutor"
)

type fakeTutorService struct {
	session    conversation.Session
	greeting   []conversation.Turn
	startErr   error
	turns      []conversation.Turn
	processErr error
	endErr     error

	processedWav []byte
	endedSession string
}

func (f *fakeTutorService) StartSession(_ context.Context) (conversation.Session, []conversation.Turn, error) {
	if f.startErr != nil {
		return conversation.Session{}, nil, f.startErr
	}
	return f.session, f.greeting, nil
}

func (f *fakeTutorService) ProcessTurn(_ context.Context, _ string, wav []byte) ([]conversation.Turn, error) {
	f.processedWav = wav
	if f.processErr != nil {
		return nil, f.processErr
	}
	return f.turns, nil
}

func (f *fakeTutorService) EndSession(_ context.Context, sessionID string) error {
	f.endedSession = sessionID
	return f.endErr
}

func newTestRouter(svc TutorService, store *history.Store) chi.Router {
	r := chi.NewRouter()
	New(svc, store, 32<<20).RegisterRoutes(r)
	return r
}

func audioForm(t *testing.T, data []byte) (*bytes.Buffer, string) {
	t.Helper()

	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	part, err := writer.CreateFormFile("audio", "recording.wav")
	if err != nil {
		t.Fatalf("CreateFormFile err: %v", err)
	}
	if _, err := part.Write(data); err != nil {
		t.Fatalf("write audio err: %v", err)
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("writer.Close err: %v", err)
	}
	return body, writer.FormDataContentType()
}

func TestHandleCreateSession(t *testing.T) {
	fake := &fakeTutorService{
		session: conversation.Session{ID: "sess-1"},
		greeting: []conversation.Turn{
			{ID: "turn-1", SessionID: "sess-1", Role: conversation.RoleAssistant, Text: "Ciao!"},
		},
	}
	router := newTestRouter(fake, history.NewStore())

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/sessions", nil))

	if rr.Code != http.StatusCreated {
		t.Fatalf("unexpected status: %d", rr.Code)
	}

	var resp struct {
		Session  conversation.Session `json:"session"`
		Greeting []conversation.Turn  `json:"greeting"`
	}
	if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response err: %v", err)
	}
	if resp.Session.ID != "sess-1" {
		t.Fatalf("unexpected session: %+v", resp.Session)
	}
	if len(resp.Greeting) != 1 || resp.Greeting[0].Text != "Ciao!" {
		t.Fatalf("unexpected greeting: %+v", resp.Greeting)
	}
}

func TestHandleCreateSessionQuotaExhausted(t *testing.T) {
	fake := &fakeTutorService{
		startErr: fmt.Errorf("failed to bootstrap session: %w", gemini.ErrQuotaExhausted),
	}
	router := newTestRouter(fake, history.NewStore())

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/sessions", nil))

	if rr.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", rr.Code)
	}
}

func TestHandleTurnAppendsExchange(t *testing.T) {
	fake := &fakeTutorService{
		turns: []conversation.Turn{
			{Role: conversation.RoleUser, Text: "**Transcription:** Ciao  \n**Analysis:** ok"},
			{Role: conversation.RoleAssistant, Text: "Come stai?", Audio: []byte("mp3")},
		},
	}
	router := newTestRouter(fake, history.NewStore())

	body, contentType := audioForm(t, []byte("RIFF-wav"))
	req := httptest.NewRequest(http.MethodPost, "/sessions/sess-1/turns", body)
	req.Header.Set("Content-Type", contentType)

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusCreated {
		t.Fatalf("unexpected status: %d, body %s", rr.Code, rr.Body.String())
	}
	if string(fake.processedWav) != "RIFF-wav" {
		t.Fatalf("audio not forwarded, got %q", fake.processedWav)
	}

	var resp struct {
		Turns []conversation.Turn `json:"turns"`
	}
	if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response err: %v", err)
	}
	if len(resp.Turns) != 2 {
		t.Fatalf("expected 2 turns, got %d", len(resp.Turns))
	}
}

func TestHandleTurnDuplicate(t *testing.T) {
	fake := &fakeTutorService{turns: nil}
	router := newTestRouter(fake, history.NewStore())

	body, contentType := audioForm(t, []byte("same-bytes"))
	req := httptest.NewRequest(http.MethodPost, "/sessions/sess-1/turns", body)
	req.Header.Set("Content-Type", contentType)

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("unexpected status: %d", rr.Code)
	}

	var resp map[string]string
	if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response err: %v", err)
	}
	if resp["status"] != "duplicate" {
		t.Fatalf("expected duplicate status, got %v", resp)
	}
}

func TestHandleTurnMissingAudioField(t *testing.T) {
	router := newTestRouter(&fakeTutorService{}, history.NewStore())

	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	if err := writer.WriteField("note", "no audio here"); err != nil {
		t.Fatalf("WriteField err: %v", err)
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("writer.Close err: %v", err)
	}

	req := httptest.NewRequest(http.MethodPost, "/sessions/sess-1/turns", body)
	req.Header.Set("Content-Type", writer.FormDataContentType())

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rr.Code)
	}
}

func TestHandleTurnOversizedRecording(t *testing.T) {
	fake := &fakeTutorService{}
	router := chi.NewRouter()
	New(fake, history.NewStore(), 64).RegisterRoutes(router)

	body, contentType := audioForm(t, bytes.Repeat([]byte("a"), multipartOverhead+1024))
	req := httptest.NewRequest(http.MethodPost, "/sessions/sess-1/turns", body)
	req.Header.Set("Content-Type", contentType)

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("expected 413, got %d", rr.Code)
	}
	if fake.processedWav != nil {
		t.Fatal("oversized recording must not reach the pipeline")
	}
}

func TestStatusForPipelineError(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want int
	}{
		{name: "unknown session", err: history.ErrSessionNotFound, want: http.StatusNotFound},
		{name: "empty audio", err: tutor.ErrEmptyAudio, want: http.StatusBadRequest},
		{name: "quota", err: fmt.Errorf("send failed: %w", gemini.ErrQuotaExhausted), want: http.StatusTooManyRequests},
		{name: "upload", err: gemini.ErrUploadFailed, want: http.StatusBadGateway},
		{name: "empty reply", err: reply.ErrEmptyReply, want: http.StatusBadGateway},
		{name: "malformed reply", err: fmt.Errorf("%w: bad json", reply.ErrMalformedReply), want: http.StatusBadGateway},
		{name: "other", err: errors.New("boom"), want: http.StatusInternalServerError},
	}

	for _, tc := range cases {
		if got := statusForPipelineError(tc.err); got != tc.want {
			t.Errorf("%s: statusForPipelineError = %d, want %d", tc.name, got, tc.want)
		}
	}
}

func TestHandleTranscriptConsumesAutoplay(t *testing.T) {
	store := history.NewStore()
	ctx := context.Background()
	sess := store.CreateSession(ctx)
	if _, err := store.AppendExchange(ctx, sess.ID,
		conversation.Turn{Role: conversation.RoleUser, Text: "ciao"},
		conversation.Turn{Role: conversation.RoleAssistant, Text: "Come stai?", Audio: []byte("mp3")},
	); err != nil {
		t.Fatalf("AppendExchange err: %v", err)
	}

	router := newTestRouter(&fakeTutorService{}, store)

	read := func() (int, []conversation.Turn) {
		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/sessions/"+sess.ID+"/transcript", nil))
		if rr.Code != http.StatusOK {
			t.Fatalf("unexpected status: %d", rr.Code)
		}
		var resp struct {
			Turns        []conversation.Turn `json:"turns"`
			AutoplayTurn int                 `json:"autoplayTurn"`
		}
		if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
			t.Fatalf("decode response err: %v", err)
		}
		return resp.AutoplayTurn, resp.Turns
	}

	autoplay, turns := read()
	if len(turns) != 2 {
		t.Fatalf("expected 2 turns, got %d", len(turns))
	}
	if autoplay != 1 {
		t.Fatalf("expected autoplay index 1, got %d", autoplay)
	}

	if autoplay, _ = read(); autoplay != -1 {
		t.Fatalf("expected consumed autoplay, got %d", autoplay)
	}
}

func TestHandleGetSessionNotFound(t *testing.T) {
	router := newTestRouter(&fakeTutorService{}, history.NewStore())

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/sessions/missing", nil))

	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rr.Code)
	}
}

func TestHandleDeleteSession(t *testing.T) {
	fake := &fakeTutorService{}
	router := newTestRouter(fake, history.NewStore())

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodDelete, "/sessions/sess-1", nil))

	if rr.Code != http.StatusOK {
		t.Fatalf("unexpected status: %d", rr.Code)
	}
	if fake.endedSession != "sess-1" {
		t.Fatalf("expected delete for sess-1, got %q", fake.endedSession)
	}

	fake.endErr = history.ErrSessionNotFound
	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodDelete, "/sessions/other", nil))
	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rr.Code)
	}
}
