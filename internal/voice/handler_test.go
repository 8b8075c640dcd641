package voice

import (
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"campaign-gateway/internal/campaign"
	"campaign-gateway/internal/models"
	"campaign-gateway/internal/store"

	"github.com/gin-gonic/gin"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

type fakeMessenger struct{}

func (fakeMessenger) SendText(to, body string) error { return nil }

type fakeDialer struct {
	mu    sync.Mutex
	calls int
}

func (f *fakeDialer) PlaceCall(to string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return fmt.Sprintf("CA%04d", f.calls), nil
}

func (f *fakeDialer) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type fakeResponder struct {
	mu       sync.Mutex
	contexts [][]models.Message
}

func (f *fakeResponder) Reply(history []models.Message, utterance string) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.contexts = append(f.contexts, history)
	return "claro, te cuento"
}

func (f *fakeResponder) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.contexts)
}

type fakeSynth struct {
	fail bool
}

func (f *fakeSynth) Synthesize(text string) (*models.AudioAsset, error) {
	if f.fail {
		return nil, errors.New("synthesis unavailable")
	}
	return &models.AudioAsset{Filename: "audio_test.mp3", Text: text}, nil
}

func (f *fakeSynth) FilePath(filename string) (string, bool) {
	return "", false
}

type voiceEnv struct {
	router    *gin.Engine
	manager   *campaign.Manager
	store     *store.ConversationStore
	dialer    *fakeDialer
	responder *fakeResponder
	synth     *fakeSynth
}

func newVoiceEnv(t *testing.T) *voiceEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("db handle: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	if err := db.AutoMigrate(&models.Contact{}, &models.Message{}); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	env := &voiceEnv{
		store:     store.New(db),
		dialer:    &fakeDialer{},
		responder: &fakeResponder{},
		synth:     &fakeSynth{fail: true},
	}
	env.manager = campaign.NewManager(db, env.store, fakeMessenger{}, env.dialer, env.responder, nil, campaign.DefaultConfig())

	handler := NewHandler(env.manager, env.store, env.responder, env.synth, "https://example.com")
	env.router = gin.New()
	env.router.POST("/voice/answer", handler.Answer)
	env.router.POST("/voice/gather", handler.GatherResult)
	env.router.GET("/audio/:filename", handler.ServeAudio)
	return env
}

func waitFor(t *testing.T, timeout time.Duration, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

// startCall walks a contact through consent so the manager has placed a
// call and registered its session, and returns the call SID.
func (env *voiceEnv) startCall(t *testing.T) string {
	t.Helper()
	if err := env.manager.Seed("Ana", "5550001"); err != nil {
		t.Fatalf("seed: %v", err)
	}
	env.manager.HandleInbound("5550001", "Ana", "sí")
	waitFor(t, 2*time.Second, "call placement", func() bool {
		return env.dialer.count() == 1
	})
	return "CA0001"
}

func (env *voiceEnv) post(path string, form url.Values) *httptest.ResponseRecorder {
	req := httptest.NewRequest("POST", path, strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	w := httptest.NewRecorder()
	env.router.ServeHTTP(w, req)
	return w
}

func TestAnswerUnknownCallHangsUp(t *testing.T) {
	env := newVoiceEnv(t)

	w := env.post("/voice/answer", url.Values{"CallSid": {"CA9999"}})
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	body := w.Body.String()
	if !strings.Contains(body, apologyText) || !strings.Contains(body, "<Hangup") {
		t.Errorf("unexpected document: %s", body)
	}
	if strings.Contains(body, "<Gather") {
		t.Error("unknown call opened a gather")
	}
}

func TestAnswerOpensGreetingGather(t *testing.T) {
	env := newVoiceEnv(t)
	sid := env.startCall(t)

	w := env.post("/voice/answer", url.Values{"CallSid": {sid}})
	body := w.Body.String()
	if !strings.Contains(body, "<Gather") || !strings.Contains(body, `action="https://example.com/voice/gather"`) {
		t.Fatalf("missing gather: %s", body)
	}
	// Synthesis is down, so the greeting is spoken directly.
	if !strings.Contains(body, greetingText) {
		t.Errorf("greeting not present: %s", body)
	}
	if ct := w.Header().Get("Content-Type"); ct != "application/xml" {
		t.Errorf("content type = %q", ct)
	}
}

func TestAnswerPlaysSynthesizedGreeting(t *testing.T) {
	env := newVoiceEnv(t)
	env.synth.fail = false
	sid := env.startCall(t)

	w := env.post("/voice/answer", url.Values{"CallSid": {sid}})
	body := w.Body.String()
	if !strings.Contains(body, "<Play>https://example.com/audio/audio_test.mp3</Play>") {
		t.Errorf("synthesized greeting not played: %s", body)
	}
	if strings.Contains(body, "<Say") {
		t.Errorf("fell back to spoken text with synthesis available: %s", body)
	}
}

func TestEmptyTurnRepromptsOnce(t *testing.T) {
	env := newVoiceEnv(t)
	sid := env.startCall(t)
	repliesBefore := env.responder.count()

	w := env.post("/voice/gather", url.Values{"CallSid": {sid}, "SpeechResult": {""}})
	body := w.Body.String()
	if !strings.Contains(body, repromptText) {
		t.Errorf("missing reprompt: %s", body)
	}
	if !strings.Contains(body, `<Redirect method="POST">https://example.com/voice/answer</Redirect>`) {
		t.Errorf("missing redirect back to answer: %s", body)
	}
	if strings.Contains(body, "<Hangup") {
		t.Errorf("first empty turn hung up: %s", body)
	}
	if env.responder.count() != repliesBefore {
		t.Error("empty turn reached the dialog engine")
	}
}

func TestSecondEmptyTurnEndsCall(t *testing.T) {
	env := newVoiceEnv(t)
	sid := env.startCall(t)

	env.post("/voice/gather", url.Values{"CallSid": {sid}, "SpeechResult": {""}})
	w := env.post("/voice/gather", url.Values{"CallSid": {sid}, "SpeechResult": {""}})

	body := w.Body.String()
	if !strings.Contains(body, goodbyeText) || !strings.Contains(body, "<Hangup") {
		t.Errorf("unexpected document: %s", body)
	}

	waitFor(t, 2*time.Second, "call completion", func() bool {
		c, ok := env.manager.Contact("5550001")
		return ok && c.State == models.StateCompleted
	})
	if _, ok := env.manager.Sessions().Get(sid); ok {
		t.Error("session still registered after hangup")
	}
}

func TestTranscriptRunsDialogTurn(t *testing.T) {
	env := newVoiceEnv(t)
	sid := env.startCall(t)

	w := env.post("/voice/gather", url.Values{"CallSid": {sid}, "SpeechResult": {"cuéntame más"}})
	body := w.Body.String()
	if !strings.Contains(body, "<Gather") || !strings.Contains(body, "claro, te cuento") {
		t.Fatalf("reply not offered in a new gather: %s", body)
	}

	if env.responder.count() != 1 {
		t.Fatalf("dialog engine called %d times, want 1", env.responder.count())
	}
	// The context handed to the engine is the history before this turn:
	// the consent message and the affirmative reply.
	context := env.responder.contexts[0]
	if len(context) != 2 {
		t.Fatalf("context has %d messages, want 2", len(context))
	}
	if context[1].Content != "sí" {
		t.Errorf("unexpected context: %+v", context)
	}

	history, err := env.store.History("5550001", 0)
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(history) != 4 {
		t.Fatalf("got %d messages, want 4", len(history))
	}
	utterance, reply := history[2], history[3]
	if utterance.Direction != models.DirectionInbound || utterance.Channel != models.ChannelVoice || utterance.Content != "cuéntame más" {
		t.Errorf("utterance not logged: %+v", utterance)
	}
	if reply.Direction != models.DirectionOutbound || reply.Channel != models.ChannelVoice || reply.Content != "claro, te cuento" {
		t.Errorf("reply not logged: %+v", reply)
	}
}

func TestTranscriptResetsEmptyTurnCount(t *testing.T) {
	env := newVoiceEnv(t)
	sid := env.startCall(t)

	env.post("/voice/gather", url.Values{"CallSid": {sid}, "SpeechResult": {""}})
	env.post("/voice/gather", url.Values{"CallSid": {sid}, "SpeechResult": {"hola"}})
	w := env.post("/voice/gather", url.Values{"CallSid": {sid}, "SpeechResult": {""}})

	body := w.Body.String()
	if strings.Contains(body, "<Hangup") {
		t.Errorf("single empty turn after speech hung up: %s", body)
	}
	if !strings.Contains(body, repromptText) {
		t.Errorf("missing reprompt: %s", body)
	}
}

func TestServeAudioRejectsUnknownFilename(t *testing.T) {
	env := newVoiceEnv(t)

	req := httptest.NewRequest("GET", "/audio/nope.mp3", nil)
	w := httptest.NewRecorder()
	env.router.ServeHTTP(w, req)
	if w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", w.Code)
	}
}
