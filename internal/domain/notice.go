package domain

import "time"

// NoticeKind classifies user-visible notices.
type NoticeKind string

const (
	NoticeInfo    NoticeKind = "INFO"
	NoticeSuccess NoticeKind = "SUCCESS"
	NoticeWarning NoticeKind = "WARNING"
	NoticeError   NoticeKind = "ERROR"
)

// String returns the string representation of NoticeKind.
func (k NoticeKind) String() string {
	return string(k)
}

// Notice is a user-visible message.
// Persistent notices stay in the banner until the condition clears.
// OpID ties a notice to a mint operation so it is dropped with it.
type Notice struct {
	ID         string     `json:"id"`
	Kind       NoticeKind `json:"kind"`
	Message    string     `json:"message"`
	Link       string     `json:"link,omitempty"`
	Persistent bool       `json:"persistent"`
	OpID       string     `json:"-"`
	CreatedAt  time.Time  `json:"createdAt"`
}
