package domain

import "time"

// MediaKind is the kind of an attachment on a post
type MediaKind string

const (
	MediaPhoto    MediaKind = "photo"
	MediaVideo    MediaKind = "video"
	MediaAudio    MediaKind = "audio"
	MediaDocument MediaKind = "document"
)

// MediaRef references an attachment that still lives on the source platform
type MediaRef struct {
	Kind     MediaKind `json:"kind"`
	FileID   string    `json:"file_id"`
	FileName string    `json:"file_name,omitempty"`
	MimeType string    `json:"mime_type,omitempty"`
	Size     int64     `json:"size,omitempty"`
}

// MediaFile is an attachment downloaded to local disk
type MediaFile struct {
	Kind MediaKind
	Path string
	Name string
}

// MessageEvent represents a post received from a channel
type MessageEvent struct {
	Channel   string
	MessageID int64
	Timestamp time.Time
	Text      string
	Media     []MediaRef
	GroupID   string // Album id, empty for single posts
	Views     int
	Forwards  int
	Link      string // Public link to the original post

	// Decoration, set once by the pipeline
	DisplayText string
	Alert       *AlertMatch
	Urgency     *Urgency
	decorated   bool
}

// IsBefore checks if the post was published before the specified time
func (e *MessageEvent) IsBefore(t time.Time) bool {
	return e.Timestamp.Before(t)
}

// InGroup checks if the post belongs to an album
func (e *MessageEvent) InGroup() bool {
	return e.GroupID != ""
}

// HasMedia checks if the post carries attachments
func (e *MessageEvent) HasMedia() bool {
	return len(e.Media) > 0
}

// OnlyVideo reports whether every attachment is a video
func (e *MessageEvent) OnlyVideo() bool {
	if len(e.Media) == 0 {
		return false
	}
	for _, m := range e.Media {
		if m.Kind != MediaVideo {
			return false
		}
	}
	return true
}

// HasVideo reports whether any attachment is a video
func (e *MessageEvent) HasVideo() bool {
	for _, m := range e.Media {
		if m.Kind == MediaVideo {
			return true
		}
	}
	return false
}

// Decorate sets the display text together with the classification results.
// It can only be applied once per event.
func (e *MessageEvent) Decorate(display string, urgency Urgency, alert *AlertMatch) error {
	if e.decorated {
		return ErrAlreadyDecorated
	}
	e.DisplayText = display
	e.Urgency = &urgency
	e.Alert = alert
	e.decorated = true
	return nil
}

// Decorated reports whether Decorate has been applied
func (e *MessageEvent) Decorated() bool {
	return e.decorated
}

// Body returns the text to deliver: the decorated text when present
func (e *MessageEvent) Body() string {
	if e.decorated {
		return e.DisplayText
	}
	return e.Text
}

// AlertCategory returns the matched alert category or an empty string
func (e *MessageEvent) AlertCategory() string {
	if e.Alert == nil {
		return ""
	}
	return e.Alert.Category
}
