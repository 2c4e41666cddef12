package model

import (
	"time"

	"github.com/google/uuid"
)

// Exam is the certification exam a question bank belongs to.
type Exam struct {
	ID        uuid.UUID `json:"id"`
	Code      string    `json:"code"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}
