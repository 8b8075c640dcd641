// Package llm turns a user utterance plus prior conversation into a reply
// using an OpenAI-compatible chat endpoint (Ollama's /v1 API by default).
package llm

import (
	"context"
	"log"
	"strings"
	"time"

	"campaign-gateway/internal/models"

	openai "github.com/sashabaranov/go-openai"
)

const (
	// FallbackReply is returned when every attempt against the model fails.
	// The dialog must never go silent.
	FallbackReply = "Lo siento, en este momento no puedo responder. ¿Podrías repetirlo más tarde?"

	systemPrompt = "Eres una asistente virtual amable que habla por teléfono y por WhatsApp. Responde de forma breve y clara, en español."

	requestTimeout = 30 * time.Second
)

type Engine struct {
	client     *openai.Client
	model      string
	maxRetries int
	retryDelay time.Duration
}

// NewEngine builds an engine against an Ollama-compatible base URL
// (the /v1 suffix is appended). The API key may be empty for local Ollama.
func NewEngine(baseURL, model string) *Engine {
	cfg := openai.DefaultConfig("ollama")
	cfg.BaseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/") + "/v1"
	return &Engine{
		client:     openai.NewClientWithConfig(cfg),
		model:      model,
		maxRetries: 3,
		retryDelay: time.Second,
	}
}

// Reply generates an answer to the utterance given the contact's prior
// conversation, oldest first. It retries transient failures up to
// maxRetries with a fixed delay and falls back to FallbackReply instead of
// returning an error.
func (e *Engine) Reply(history []models.Message, utterance string) string {
	messages := make([]openai.ChatCompletionMessage, 0, len(history)+2)
	messages = append(messages, openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleSystem,
		Content: systemPrompt,
	})
	for _, msg := range history {
		role := openai.ChatMessageRoleAssistant
		if msg.Direction == models.DirectionInbound {
			role = openai.ChatMessageRoleUser
		}
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    role,
			Content: msg.Content,
		})
	}
	messages = append(messages, openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleUser,
		Content: utterance,
	})

	for attempt := 1; attempt <= e.maxRetries; attempt++ {
		reply, err := e.complete(messages)
		if err == nil && reply != "" {
			return reply
		}
		log.Printf("LLM attempt %d/%d failed: %v", attempt, e.maxRetries, err)
		if attempt < e.maxRetries {
			time.Sleep(e.retryDelay)
		}
	}

	return FallbackReply
}

func (e *Engine) complete(messages []openai.ChatCompletionMessage) (string, error) {
	ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
	defer cancel()

	resp, err := e.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:    e.model,
		Messages: messages,
	})
	if err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", nil
	}
	return sanitize(resp.Choices[0].Message.Content), nil
}

// sanitize strips the model's delimited reasoning segment so internal
// chain-of-thought is never spoken or sent to a contact.
func sanitize(raw string) string {
	out := raw
	for {
		start := strings.Index(out, "<think>")
		if start < 0 {
			break
		}
		end := strings.Index(out[start:], "</think>")
		if end < 0 {
			out = out[:start]
			break
		}
		out = out[:start] + out[start+end+len("</think>"):]
	}
	return strings.TrimSpace(out)
}
