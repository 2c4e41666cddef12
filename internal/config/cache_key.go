package config

import "fmt"

type CacheKeyStruct struct{}

func NewCacheKeyStruct() *CacheKeyStruct {
	return &CacheKeyStruct{}
}

// QuestionBankKey returns the hash holding serialized questions by id.
func (r *CacheKeyStruct) QuestionBankKey() string {
	return "questions:bank"
}

// ExamQuestionsKey returns the set of question ids cached for an exam.
func (r *CacheKeyStruct) ExamQuestionsKey(examID string) string {
	return fmt.Sprintf("exam:%s:questions", examID)
}

// TestSessionStreamChannel returns the Redis PubSub channel for a test session's live updates.
func (r *CacheKeyStruct) TestSessionStreamChannel(sessionID string) string {
	return fmt.Sprintf("test_session:%s:stream", sessionID)
}

var CacheKey = NewCacheKeyStruct()
