// Package voice runs the in-call IVR loop: greeting, speech gather,
// dialog turn, synthesized reply, next gather.
package voice

import (
	"log"
	"net/http"
	"strings"

	"campaign-gateway/internal/campaign"
	"campaign-gateway/internal/models"
	"campaign-gateway/internal/store"

	"github.com/gin-gonic/gin"
)

const (
	gatherTimeoutSeconds = 5

	greetingText = "Hola, soy la asistente virtual. ¿Cómo puedo ayudarte?"
	repromptText = "No escuché nada, ¿podrías repetir?"
	goodbyeText  = "Gracias por tu tiempo. ¡Hasta luego!"
	apologyText  = "Lo sentimos, ha ocurrido un problema. Adiós."

	// A second consecutive silent gather ends the call instead of
	// looping on the greeting forever.
	maxEmptyTurns = 2
)

// SpeechSynthesizer is the audio side of the loop. Synthesize may fail;
// the handler then speaks the text directly instead of playing a file.
type SpeechSynthesizer interface {
	Synthesize(text string) (*models.AudioAsset, error)
	FilePath(filename string) (string, bool)
}

type Handler struct {
	Manager   *campaign.Manager
	Store     *store.ConversationStore
	Responder campaign.Responder
	Synth     SpeechSynthesizer
	BaseURL   string
}

func NewHandler(manager *campaign.Manager, convStore *store.ConversationStore, responder campaign.Responder, synth SpeechSynthesizer, baseURL string) *Handler {
	return &Handler{
		Manager:   manager,
		Store:     convStore,
		Responder: responder,
		Synth:     synth,
		BaseURL:   strings.TrimRight(baseURL, "/"),
	}
}

func (h *Handler) respond(c *gin.Context, verbs ...interface{}) {
	c.Data(http.StatusOK, "application/xml", []byte(render(verbs...)))
}

// Answer handles the provider's connect callback: speak the greeting and
// open the first speech gather.
func (h *Handler) Answer(c *gin.Context) {
	callSID := c.PostForm("CallSid")
	session, ok := h.Manager.Sessions().Get(callSID)
	if !ok {
		log.Printf("Answer callback for unknown call SID %q", callSID)
		h.respond(c, say(apologyText), Hangup{})
		return
	}

	prompt := h.promptVerb(session, greetingText)
	h.respond(c, speechGather(h.gatherAction(), prompt))
}

// GatherResult handles the transcript of one gather turn and decides
// whether the dialog continues or the call ends.
func (h *Handler) GatherResult(c *gin.Context) {
	callSID := c.PostForm("CallSid")
	transcript := strings.TrimSpace(c.PostForm("SpeechResult"))

	session, ok := h.Manager.Sessions().Get(callSID)
	if !ok {
		log.Printf("Gather callback for unknown call SID %q", callSID)
		h.respond(c, say(apologyText), Hangup{})
		return
	}

	if transcript == "" {
		if session.RecordEmptyTurn() >= maxEmptyTurns {
			h.Manager.CompleteCall(callSID)
			h.respond(c, say(goodbyeText), Hangup{})
			return
		}
		h.respond(c, say(repromptText), Redirect{Method: "POST", URL: h.answerAction()})
		return
	}

	session.RecordTurn()
	h.Manager.MarkResponded(session.Number)

	history, err := h.Store.History(session.Number, 0)
	if err != nil {
		log.Printf("Error reading history for %s: %v", session.Number, err)
	}
	if err := h.Store.Append(session.Number, models.DirectionInbound, models.ChannelVoice, transcript); err != nil {
		log.Printf("Error logging voice utterance for %s: %v", session.Number, err)
	}

	reply := h.Responder.Reply(history, transcript)
	if err := h.Store.Append(session.Number, models.DirectionOutbound, models.ChannelVoice, reply); err != nil {
		log.Printf("Error logging voice reply for %s: %v", session.Number, err)
	}

	prompt := h.promptVerb(session, reply)
	h.respond(c, speechGather(h.gatherAction(), prompt))
}

// ServeAudio streams a generated audio asset to the provider.
func (h *Handler) ServeAudio(c *gin.Context) {
	path, ok := h.Synth.FilePath(c.Param("filename"))
	if !ok {
		c.Status(http.StatusNotFound)
		return
	}
	c.File(path)
}

// promptVerb synthesizes the text to audio when possible, otherwise falls
// back to the provider's built-in voice.
func (h *Handler) promptVerb(session *campaign.CallSession, text string) interface{} {
	asset, err := h.Synth.Synthesize(text)
	if err != nil || asset == nil {
		if err != nil {
			log.Printf("Synthesis failed for call %s: %v", session.SID, err)
		}
		return say(text)
	}
	return Play{URL: h.BaseURL + "/audio/" + asset.Filename}
}

func (h *Handler) gatherAction() string {
	return h.BaseURL + "/voice/gather"
}

func (h *Handler) answerAction() string {
	return h.BaseURL + "/voice/answer"
}
