package models

import "time"

type User struct {
	ID           string `json:"id"`
	Username     string `json:"username"`
	PasswordHash string `json:"-"`
}

// Message is the persisted row. Content is ciphertext and never leaves the
// server in this form; API responses use MessageView.
type Message struct {
	ID         string    `json:"id"`
	SenderID   string    `json:"sender_id"`
	ReceiverID string    `json:"receiver_id"`
	Content    string    `json:"-"`
	Timestamp  time.Time `json:"timestamp"`
}

type MessageView struct {
	ID        string    `json:"id"`
	SenderID  string    `json:"sender_id"`
	IsSent    bool      `json:"is_sent"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// FileRecord is the metadata row for an uploaded file. StoredName is the
// generated on-disk key; DisplayName is the sanitized name the uploader
// declared and is never used to address the payload.
type FileRecord struct {
	ID          string    `json:"id"`
	SenderID    string    `json:"sender_id"`
	ReceiverID  string    `json:"receiver_id"`
	StoredName  string    `json:"-"`
	DisplayName string    `json:"filename"`
	ContentType string    `json:"mime_type"`
	SizeBytes   int64     `json:"file_size"`
	Timestamp   time.Time `json:"timestamp"`
}

type FileView struct {
	ID        string    `json:"id"`
	SenderID  string    `json:"sender_id"`
	IsSent    bool      `json:"is_sent"`
	Filename  string    `json:"filename"`
	MimeType  string    `json:"mime_type"`
	SizeBytes int64     `json:"file_size"`
	Timestamp time.Time `json:"timestamp"`
}
