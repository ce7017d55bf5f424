package auth

import (
	"strings"

	"github.com/charlesng35/multiguard/internal/session"
)

// IntendedKey is the session key holding the URL to return to after login or
// password confirmation.
const IntendedKey = "url.intended"

// SetIntended remembers target for a later Intended call. Only local paths are kept.
func SetIntended(sess *session.Session, target string) {
	if !isLocalPath(target) {
		return
	}
	sess.Put(IntendedKey, target)
}

// Intended pulls the remembered URL, or returns fallback when none is stored.
func Intended(sess *session.Session, fallback string) string {
	if target, ok := sess.Pull(IntendedKey); ok && isLocalPath(target) {
		return target
	}
	return fallback
}

func isLocalPath(target string) bool {
	return strings.HasPrefix(target, "/") && !strings.HasPrefix(target, "//") && !strings.Contains(target, "\\")
}
