package models

import (
	"fmt"
	"time"
)

// MessageType classifies a normalized message by payload kind.
type MessageType string

const (
	MessageTypeText     MessageType = "text"
	MessageTypeImage    MessageType = "image"
	MessageTypeAudio    MessageType = "audio"
	MessageTypeVideo    MessageType = "video"
	MessageTypeDocument MessageType = "document"
	// MessageTypeMedia is the generic fallback for media whose content
	// type does not map to a more specific kind.
	MessageTypeMedia MessageType = "media"
)

// IsMedia reports whether the type carries a media reference.
func (t MessageType) IsMedia() bool {
	return t != MessageTypeText && t != ""
}

// MediaRef points at a message's media payload. URL is a fetchable
// location; it is empty when resolution failed, in which case Filename
// still identifies the target the pipeline would have written.
type MediaRef struct {
	URL       string `json:"url,omitempty"`
	Filename  string `json:"filename"`
	SizeBytes int64  `json:"size_bytes,omitempty"`
}

// Message is the provider-agnostic message record. Instances are created
// per extraction call and owned by the caller once returned; the client
// keeps no message history.
type Message struct {
	ID          string      `json:"id"`
	Timestamp   time.Time   `json:"timestamp"`
	Sender      string      `json:"sender"`
	Content     string      `json:"content"`
	Type        MessageType `json:"type"`
	Media       *MediaRef   `json:"media,omitempty"`
	ExtractedAt time.Time   `json:"extracted_at"`
}

// DateRange filters pull-provider extraction by sent date.
type DateRange struct {
	Start time.Time
	End   time.Time
}

// recordTimeLayout is a timezone-naive ISO-8601 form; provider offsets
// are discarded during normalization, not converted.
const recordTimeLayout = "2006-01-02T15:04:05"

// MessageRecord is the flat serialized form consumed by downstream
// routing and the extracted-message store.
type MessageRecord struct {
	ID            string `json:"id"`
	Timestamp     string `json:"timestamp"`
	SenderPhone   string `json:"sender_phone"`
	Content       string `json:"message_content"`
	Type          string `json:"message_type"`
	MediaURL      string `json:"media_url,omitempty"`
	MediaFilename string `json:"media_filename,omitempty"`
	MediaSize     int64  `json:"media_size,omitempty"`
	ExtractedAt   string `json:"extracted_at"`
}

// ToRecord flattens the message with ISO-8601 timestamps.
func (m *Message) ToRecord() MessageRecord {
	rec := MessageRecord{
		ID:          m.ID,
		Timestamp:   m.Timestamp.Format(recordTimeLayout),
		SenderPhone: m.Sender,
		Content:     m.Content,
		Type:        string(m.Type),
		ExtractedAt: m.ExtractedAt.Format(recordTimeLayout),
	}
	if m.Media != nil {
		rec.MediaURL = m.Media.URL
		rec.MediaFilename = m.Media.Filename
		rec.MediaSize = m.Media.SizeBytes
	}
	return rec
}

// MessageFromRecord rebuilds a message from its flat form. Sender prefix
// stripping is one-directional and is not reapplied here.
func MessageFromRecord(rec MessageRecord) (*Message, error) {
	if rec.ID == "" {
		return nil, fmt.Errorf("record is missing a message id")
	}

	ts, err := time.Parse(recordTimeLayout, rec.Timestamp)
	if err != nil {
		return nil, fmt.Errorf("invalid record timestamp %q: %w", rec.Timestamp, err)
	}

	msg := &Message{
		ID:        rec.ID,
		Timestamp: ts,
		Sender:    rec.SenderPhone,
		Content:   rec.Content,
		Type:      MessageType(rec.Type),
	}

	if rec.ExtractedAt != "" {
		extractedAt, err := time.Parse(recordTimeLayout, rec.ExtractedAt)
		if err != nil {
			return nil, fmt.Errorf("invalid record extraction time %q: %w", rec.ExtractedAt, err)
		}
		msg.ExtractedAt = extractedAt
	}

	if msg.Type.IsMedia() {
		msg.Media = &MediaRef{
			URL:       rec.MediaURL,
			Filename:  rec.MediaFilename,
			SizeBytes: rec.MediaSize,
		}
	}

	return msg, nil
}

// MediaInfo describes a remote media object without downloading it.
type MediaInfo struct {
	ContentType   string `json:"content_type"`
	ContentLength int64  `json:"content_length"`
	LastModified  string `json:"last_modified,omitempty"`
	ETag          string `json:"etag,omitempty"`
}
