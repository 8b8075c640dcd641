// Package tts synthesizes reply text into audio files via ElevenLabs.
package tts

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"campaign-gateway/internal/models"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

const defaultAPIBase = "https://api.elevenlabs.io"

type Synthesizer struct {
	db        *gorm.DB
	apiKey    string
	voiceID   string
	dir       string
	retention time.Duration
	BaseURL   string
	http      *http.Client
}

func New(db *gorm.DB, apiKey, voiceID, dir string, retentionHours int) *Synthesizer {
	return &Synthesizer{
		db:        db,
		apiKey:    apiKey,
		voiceID:   voiceID,
		dir:       dir,
		retention: time.Duration(retentionHours) * time.Hour,
		BaseURL:   defaultAPIBase,
		http:      &http.Client{Timeout: 30 * time.Second},
	}
}

type synthesisRequest struct {
	Text          string        `json:"text"`
	VoiceSettings voiceSettings `json:"voice_settings"`
}

type voiceSettings struct {
	Stability       float64 `json:"stability"`
	SimilarityBoost float64 `json:"similarity_boost"`
}

// Synthesize calls the speech service once and writes the returned audio to
// a uniquely named file. It performs no retries; on any failure the caller
// falls back to spoken text.
func (s *Synthesizer) Synthesize(text string) (*models.AudioAsset, error) {
	payload, err := json.Marshal(synthesisRequest{
		Text:          text,
		VoiceSettings: voiceSettings{Stability: 0.5, SimilarityBoost: 0.75},
	})
	if err != nil {
		return nil, err
	}

	url := fmt.Sprintf("%s/v1/text-to-speech/%s", s.BaseURL, s.voiceID)
	req, err := http.NewRequest("POST", url, bytes.NewBuffer(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("xi-api-key", s.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, fmt.Errorf("synthesis failed: %s - %s", resp.Status, string(body))
	}

	audio, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return nil, err
	}

	// uuid filenames cannot collide under concurrent synthesis.
	filename := "audio_" + uuid.NewString() + ".mp3"
	path := filepath.Join(s.dir, filename)
	if err := os.WriteFile(path, audio, 0o644); err != nil {
		return nil, err
	}

	asset := &models.AudioAsset{
		Filename: filename,
		Text:     text,
		Path:     path,
	}
	if err := s.db.Create(asset).Error; err != nil {
		log.Printf("Error recording audio asset %s: %v", filename, err)
	}

	return asset, nil
}

// FilePath resolves a served filename to its on-disk path, refusing
// anything that escapes the audio directory.
func (s *Synthesizer) FilePath(filename string) (string, bool) {
	base := filepath.Base(filename)
	if base != filename || strings.HasPrefix(base, ".") {
		return "", false
	}
	return filepath.Join(s.dir, base), true
}

// CleanupLoop deletes generated audio older than the retention window.
// Generated files otherwise grow without bound.
func (s *Synthesizer) CleanupLoop(stop <-chan struct{}) {
	ticker := time.NewTicker(time.Hour)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			s.sweep(time.Now())
		case <-stop:
			return
		}
	}
}

func (s *Synthesizer) sweep(now time.Time) {
	cutoff := now.Add(-s.retention)

	var assets []models.AudioAsset
	if err := s.db.Where("created_at < ?", cutoff).Find(&assets).Error; err != nil {
		log.Printf("Error listing expired audio assets: %v", err)
		return
	}

	for _, asset := range assets {
		if err := os.Remove(asset.Path); err != nil && !os.IsNotExist(err) {
			log.Printf("Error removing audio file %s: %v", asset.Path, err)
			continue
		}
		if err := s.db.Delete(&models.AudioAsset{}, asset.ID).Error; err != nil {
			log.Printf("Error deleting audio asset row %d: %v", asset.ID, err)
		}
	}

	if len(assets) > 0 {
		log.Printf("Audio cleanup removed %d expired assets", len(assets))
	}
}
