package domain

import "time"

// Submission - запись о посте-запросе в локальном хранилище.
// CreatedAt выставляется один раз при обнаружении, UpdatedAt сдвигается на каждой перепроверке.
type Submission struct {
	ID        uint            `json:"-" gorm:"primaryKey;autoIncrement"`
	PostID    string          `json:"postId" gorm:"type:varchar(32);uniqueIndex;not null"`
	Community string          `json:"community" gorm:"type:varchar(255);not null"`
	CreatedAt time.Time       `json:"createdAt" gorm:"not null;index;autoCreateTime:false"`
	UpdatedAt time.Time       `json:"updatedAt" gorm:"not null;autoUpdateTime:false"`
	Status    SubmissionState `json:"status" gorm:"type:varchar(32);not null;index"`
}

func (Submission) TableName() string { return "posts" }

// Notification - сообщение в чате, выпущенное для поста. Один пост может иметь
// несколько уведомлений (по одному на канал назначения).
type Notification struct {
	ID        uint      `json:"-" gorm:"primaryKey;autoIncrement"`
	MessageID string    `json:"messageId" gorm:"type:varchar(255);not null;uniqueIndex:idx_channel_message"`
	ChannelID string    `json:"channelId" gorm:"type:varchar(255);not null;uniqueIndex:idx_channel_message"`
	PostID    string    `json:"postId" gorm:"type:varchar(32);not null;index"`
	CreatedAt time.Time `json:"createdAt" gorm:"not null;autoCreateTime:false"`
	UpdatedAt time.Time `json:"updatedAt" gorm:"not null;autoUpdateTime:false"`
}

func (Notification) TableName() string { return "notifications" }

// Requester - счётчик запросов от одного автора.
type Requester struct {
	ID           uint   `json:"-" gorm:"primaryKey;autoIncrement"`
	UserHandle   string `json:"userHandle" gorm:"type:varchar(255);uniqueIndex;not null"`
	RequestCount int    `json:"requestCount" gorm:"not null;default:1"`
}

func (Requester) TableName() string { return "users" }

// NotificationRef адресует отправленное сообщение.
type NotificationRef struct {
	ChannelID string `json:"channelId"`
	MessageID string `json:"messageId"`
}

// Candidate - пост, которому пора на перепроверку.
type Candidate struct {
	PostID    string
	Community string
}

// === Feed DTOs ===

// FeedPost - пост, как его отдаёт источник. AuthorName пуст для удалённого аккаунта.
type FeedPost struct {
	ID         string
	URL        string
	Title      string
	Permalink  string
	AuthorName string
	CreatedAt  time.Time
}

// Comment - комментарий верхнего уровня.
type Comment struct {
	AuthorName  string
	AuthorFlair string
	Body        string
}

// Community - метаданные сообщества, полученные при успешном чтении.
type Community struct {
	Handle      string
	Type        string
	Subscribers int64
	Adult       bool
	IconURL     string
	CreatedAt   time.Time
}

// CommunityDetail заполняется только для PUBLIC и RESTRICTED.
type CommunityDetail struct {
	Subscribers int64
	Adult       bool
	IconURL     string
	Moderators  []string
	CreatedAt   time.Time
}
