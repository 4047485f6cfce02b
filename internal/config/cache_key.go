package config

import (
	"fmt"
)

type CacheKeyStruct struct{}

func NewCacheKeyStruct() *CacheKeyStruct {
	return &CacheKeyStruct{}
}

// ParticipantSessionKey returns the cache key for a participant's login session
func (r *CacheKeyStruct) ParticipantSessionKey(participantID int) string {
	return fmt.Sprintf("login:%d", participantID)
}

// SessionAnswersKey returns the cache key for a session's answer mirror hash
func (r *CacheKeyStruct) SessionAnswersKey(sessionID string) string {
	return fmt.Sprintf("session:%s:answers", sessionID)
}

// SessionStateKey returns the cache key for a session's live state snapshot
func (r *CacheKeyStruct) SessionStateKey(sessionID string) string {
	return fmt.Sprintf("session:%s:state", sessionID)
}

// SessionOptionOrderKey returns the cache key for a session's option permutations
func (r *CacheKeyStruct) SessionOptionOrderKey(sessionID string) string {
	return fmt.Sprintf("session:%s:option_order", sessionID)
}

// TestPayloadKey returns the cache key for a test's question payload
func (r *CacheKeyStruct) TestPayloadKey(testID string) string {
	return fmt.Sprintf("test:%s:payload", testID)
}

// ParticipantActiveSessionKey returns the cache key for a participant's currently active session
func (r *CacheKeyStruct) ParticipantActiveSessionKey(participantID int) string {
	return fmt.Sprintf("participant:%d:active_session", participantID)
}

var CacheKey = NewCacheKeyStruct()
