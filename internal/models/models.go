package models

import (
	"time"
)

// ContactState is the lifecycle state of a campaign contact.
type ContactState string

const (
	StateNew       ContactState = "new"
	StateMessaged  ContactState = "messaged"
	StateConsented ContactState = "consented"
	StateCalling   ContactState = "calling"
	StateCompleted ContactState = "completed"
	StateAbandoned ContactState = "abandoned"
)

// Message direction and channel values.
const (
	DirectionInbound  = "inbound"
	DirectionOutbound = "outbound"

	ChannelText  = "text"
	ChannelVoice = "voice"
)

// Contact represents a campaign recipient keyed by phone number.
type Contact struct {
	Number         string       `gorm:"primaryKey;type:varchar(50)" json:"number"`
	Name           string       `gorm:"type:varchar(255)" json:"name"`
	State          ContactState `gorm:"type:varchar(20);default:'new'" json:"state"`
	Consented      bool         `gorm:"default:false" json:"consented"`
	HasResponded   bool         `gorm:"default:false" json:"has_responded"`
	MessagesSent   int          `gorm:"default:0" json:"messages_sent"`
	CallsPlaced    int          `gorm:"default:0" json:"calls_placed"`
	MessageRetries int          `gorm:"default:0" json:"message_retries"`
	CallRetries    int          `gorm:"default:0" json:"call_retries"`
	LastMessageAt  *time.Time   `json:"last_message_at"`
	LastCallAt     *time.Time   `json:"last_call_at"`
	CreatedAt      time.Time    `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt      time.Time    `gorm:"autoUpdateTime" json:"updated_at"`
}

func (Contact) TableName() string {
	return "contacts"
}

// Message is one entry in a contact's conversation log. Rows are append-only;
// ordering within a contact is insertion order.
type Message struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	Number    string    `gorm:"index;type:varchar(50);not null" json:"number"`
	Direction string    `gorm:"type:varchar(10);not null" json:"direction"`
	Channel   string    `gorm:"type:varchar(10);not null" json:"channel"`
	Content   string    `gorm:"type:text" json:"content"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
}

func (Message) TableName() string {
	return "messages"
}

// AudioAsset tracks a synthesized speech file on disk.
type AudioAsset struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	Filename  string    `gorm:"type:varchar(255);not null;uniqueIndex" json:"filename"`
	Text      string    `gorm:"type:text" json:"text"`
	Path      string    `gorm:"type:text" json:"path"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
}

func (AudioAsset) TableName() string {
	return "audio_assets"
}
