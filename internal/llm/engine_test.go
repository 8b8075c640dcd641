package llm

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"campaign-gateway/internal/models"
)

func chatResponse(content string) map[string]interface{} {
	return map[string]interface{}{
		"id":      "chatcmpl-test",
		"object":  "chat.completion",
		"model":   "llama3",
		"choices": []map[string]interface{}{
			{
				"index":         0,
				"finish_reason": "stop",
				"message": map[string]interface{}{
					"role":    "assistant",
					"content": content,
				},
			},
		},
	}
}

func newTestEngine(t *testing.T, handler http.HandlerFunc) (*Engine, *httptest.Server) {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	engine := NewEngine(server.URL, "llama3")
	engine.retryDelay = time.Millisecond
	return engine, server
}

func TestReplyReturnsModelOutput(t *testing.T) {
	engine, _ := newTestEngine(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(chatResponse("hola Ana"))
	})

	got := engine.Reply(nil, "hola")
	if got != "hola Ana" {
		t.Errorf("got %q, want %q", got, "hola Ana")
	}
}

func TestReplyFallsBackAfterRepeatedFailures(t *testing.T) {
	var calls atomic.Int32
	engine, _ := newTestEngine(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	})

	got := engine.Reply(nil, "hola")
	if got != FallbackReply {
		t.Errorf("got %q, want fallback", got)
	}
	if calls.Load() != 3 {
		t.Errorf("made %d attempts, want 3", calls.Load())
	}
}

func TestReplyRecoversOnSecondAttempt(t *testing.T) {
	var calls atomic.Int32
	engine, _ := newTestEngine(t, func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		json.NewEncoder(w).Encode(chatResponse("todo bien"))
	})

	got := engine.Reply(nil, "hola")
	if got != "todo bien" {
		t.Errorf("got %q, want real reply, not fallback", got)
	}
	if calls.Load() != 2 {
		t.Errorf("made %d attempts, want 2", calls.Load())
	}
}

func TestReplySendsHistoryInOrder(t *testing.T) {
	var received []map[string]string
	engine, _ := newTestEngine(t, func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Messages []map[string]string `json:"messages"`
		}
		json.NewDecoder(r.Body).Decode(&req)
		received = req.Messages
		json.NewEncoder(w).Encode(chatResponse("ok"))
	})

	history := []models.Message{
		{Direction: models.DirectionOutbound, Content: "hola, ¿te llamamos?"},
		{Direction: models.DirectionInbound, Content: "sí"},
	}
	engine.Reply(history, "cuéntame más")

	// system + 2 history turns + new utterance
	if len(received) != 4 {
		t.Fatalf("sent %d messages, want 4", len(received))
	}
	if received[0]["role"] != "system" {
		t.Errorf("first message role = %s, want system", received[0]["role"])
	}
	if received[1]["role"] != "assistant" || received[1]["content"] != "hola, ¿te llamamos?" {
		t.Errorf("unexpected history turn: %+v", received[1])
	}
	if received[2]["role"] != "user" || received[2]["content"] != "sí" {
		t.Errorf("unexpected history turn: %+v", received[2])
	}
	if received[3]["role"] != "user" || received[3]["content"] != "cuéntame más" {
		t.Errorf("unexpected utterance turn: %+v", received[3])
	}
}

func TestSanitizeStripsReasoning(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"no reasoning", "hola", "hola"},
		{"leading block", "<think>debo saludar</think>hola", "hola"},
		{"surrounding text", "bueno <think>mmm</think> hola", "bueno  hola"},
		{"unterminated block", "hola <think>mmm", "hola"},
		{"multiple blocks", "<think>a</think>x<think>b</think>y", "xy"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := sanitize(tt.in); got != tt.want {
				t.Errorf("sanitize(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}
