package models

import (
	"time"
)

// Message delivery statuses, in advancement order.
const (
	StatusSent      = "sent"
	StatusDelivered = "delivered"
	StatusRead      = "read"
)

// statusRank orders delivery statuses. Receipts may arrive out of order or
// duplicated; a stored status never moves backward through this ranking.
var statusRank = map[string]int{
	StatusSent:      1,
	StatusDelivered: 2,
	StatusRead:      3,
}

// StatusAdvances reports whether a receipt carrying next may replace current.
func StatusAdvances(current, next string) bool {
	return statusRank[next] > statusRank[current]
}

// Contact represents a WhatsApp contact
type Contact struct {
	WaID             string    `gorm:"primaryKey" json:"wa_id"` // WhatsApp ID (phone number)
	Name             string    `gorm:"type:varchar(255)" json:"name"`
	NameLower        string    `gorm:"type:varchar(255);index" json:"name_lower"`
	LastMessage      string    `gorm:"type:text" json:"last_message"`
	LastMessageAt    time.Time `json:"last_message_at"`
	UnreadCount      int       `gorm:"default:0" json:"unread_count"`
	BotEnabled       bool      `gorm:"default:true" json:"bot_enabled"`
	Welcomed         bool      `gorm:"default:false" json:"welcomed"`
	ReferralSourceID string    `gorm:"type:varchar(255)" json:"referral_source_id"`
	ReferralHeadline string    `gorm:"type:text" json:"referral_headline"`
	HasPurchased     bool      `gorm:"default:false" json:"has_purchased"`
	IsRegistered     bool      `gorm:"default:false" json:"is_registered"`
	CreatedAt        time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt        time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func (Contact) TableName() string {
	return "contacts"
}

// Message represents one message in a contact's history. ProviderID is the
// idempotency key for webhook deliveries: the provider may redeliver an
// event, storage keyed by message id absorbs the duplicate.
type Message struct {
	ID         uint      `gorm:"primaryKey" json:"id"`
	ProviderID string    `gorm:"type:varchar(255);not null;uniqueIndex" json:"provider_id"`
	ContactID  string    `gorm:"type:varchar(50);not null;index" json:"contact_id"`
	Sender     string    `gorm:"type:varchar(50);not null" json:"sender"` // contact wa_id for inbound, phone number id for outbound
	Type       string    `gorm:"type:varchar(50)" json:"type"`
	Body       string    `gorm:"type:text" json:"body"`
	MediaURL   string    `gorm:"type:text" json:"media_url"`
	MediaMime  string    `gorm:"type:varchar(100)" json:"media_mime"`
	ReplyToID  string    `gorm:"type:varchar(255)" json:"reply_to_id"` // provider id of the quoted message, lookup only
	Status     string    `gorm:"type:varchar(20)" json:"status"`
	Reaction   string    `gorm:"type:varchar(16)" json:"reaction"`
	CreatedAt  time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt  time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func (Message) TableName() string {
	return "messages"
}

// Template is a locally synced row of the provider's approved-template catalog
type Template struct {
	ID         string `gorm:"primaryKey" json:"id"`
	Name       string `gorm:"type:varchar(255);index" json:"name"`
	Language   string `gorm:"type:varchar(50)" json:"language"`
	Category   string `gorm:"type:varchar(100)" json:"category"`
	Status     string `gorm:"type:varchar(50)" json:"status"`
	Components string `gorm:"type:text" json:"components"` // JSON components
}

func (Template) TableName() string {
	return "templates"
}

// Contingent job statuses. Completed and failed are terminal; a job is
// consumed at most once and never retried automatically.
const (
	JobPending   = "pending"
	JobCompleted = "completed"
	JobFailed    = "failed"
)

// ContingentSendJob holds a deferred campaign send for a contact whose
// messaging session window had lapsed. It is replayed the next time the
// contact sends any inbound message.
type ContingentSendJob struct {
	ID          uint       `gorm:"primaryKey" json:"id"`
	ContactID   string     `gorm:"type:varchar(50);not null;index" json:"contact_id"`
	Status      string     `gorm:"type:varchar(20);default:'pending'" json:"status"`
	Messages    string     `gorm:"type:text" json:"messages"` // JSON array of text messages
	PhotoURL    string     `gorm:"type:text" json:"photo_url"`
	OrderRef    string     `gorm:"type:varchar(255)" json:"order_ref"`
	Error       string     `gorm:"type:text" json:"error"`
	CompletedAt *time.Time `json:"completed_at"`
	CreatedAt   time.Time  `gorm:"autoCreateTime" json:"created_at"`
}

func (ContingentSendJob) TableName() string {
	return "contingent_send_jobs"
}

// AutomationLog records the outcome of each automation trigger run
type AutomationLog struct {
	ID           uint      `gorm:"primaryKey" json:"id"`
	WaID         string    `gorm:"type:varchar(50);index" json:"wa_id"`
	TriggerType  string    `gorm:"type:varchar(50)" json:"trigger_type"`
	ActionTaken  string    `gorm:"type:text" json:"action_taken"`
	Success      bool      `json:"success"`
	ErrorMessage string    `gorm:"type:text" json:"error_message"`
	CreatedAt    time.Time `gorm:"autoCreateTime" json:"created_at"`
}

func (AutomationLog) TableName() string {
	return "automation_logs"
}
