// Package store owns the per-contact conversation log. Messages are
// append-only; ordering within a contact is insertion order and is replayed
// as dialog context.
package store

import (
	"errors"

	"campaign-gateway/internal/models"

	"gorm.io/gorm"
)

type ConversationStore struct {
	db *gorm.DB
}

func New(db *gorm.DB) *ConversationStore {
	return &ConversationStore{db: db}
}

// Append adds one message to a contact's log. Appends for the same contact
// must be serialized by the caller (the per-contact worker does this);
// appends for different contacts may run concurrently.
func (s *ConversationStore) Append(number, direction, channel, text string) error {
	msg := models.Message{
		Number:    number,
		Direction: direction,
		Channel:   channel,
		Content:   text,
	}
	return s.db.Create(&msg).Error
}

// History returns the contact's messages oldest first. A positive limit caps
// the result to the most recent N messages, still in chronological order.
func (s *ConversationStore) History(number string, limit int) ([]models.Message, error) {
	var messages []models.Message
	if err := s.db.Where("number = ?", number).Order("id ASC").Find(&messages).Error; err != nil {
		return nil, err
	}
	if limit > 0 && len(messages) > limit {
		messages = messages[len(messages)-limit:]
	}
	return messages, nil
}

// LastOutbound returns the most recent outbound message text for the
// contact, or "" if none exists. Used to detect whether the contact is
// being asked for call consent.
func (s *ConversationStore) LastOutbound(number string) (string, error) {
	var msg models.Message
	err := s.db.Where("number = ? AND direction = ?", number, models.DirectionOutbound).
		Order("id DESC").First(&msg).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return msg.Content, nil
}
