package utils

import (
	"strconv"
	"strings"
)

// Actor ids key interest scores. Users and anonymous sessions live in
// separate namespaces so a session id can never collide with a user id.
const (
	userActorPrefix    = "user:"
	sessionActorPrefix = "session:"
)

func ActorForUser(userID int64) string {
	return userActorPrefix + strconv.FormatInt(userID, 10)
}

// ActorForSession returns "" for a blank session id.
func ActorForSession(sessionID string) string {
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		return ""
	}
	return sessionActorPrefix + sessionID
}
