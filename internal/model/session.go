package model

import "time"

// ResumeWindow is how long a session may sit idle and still be resumed.
const ResumeWindow = 24 * time.Hour

// IsResumable reports whether a session last touched at lastActivity can
// still be resumed at now.
func IsResumable(lastActivity, now time.Time) bool {
	return now.Sub(lastActivity) < ResumeWindow
}

// Collection field names, used when a stored collection fails to decode.
const (
	FieldQuestionsOrder = "questions_order"
	FieldAnswers        = "answers"
	FieldBookmarks      = "bookmarks"
	FieldFlags          = "flags"
	FieldFlagged        = "flagged"
	FieldSettings       = "settings"
)
