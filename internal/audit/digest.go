// Package audit stamps, appends and verifies activity log entries.
//
// Two digest schemes exist:
//
//	action  sha256(action). Identical labels produce identical digests, so the
//	        digest proves nothing about who acted or when. Kept so that rows
//	        written under it still verify.
//	chain   sha256 over a length-prefixed encoding of the actor, role, action,
//	        timestamp and the previous entry's digest. An edited entry fails
//	        its own check; if its digest is recomputed to hide the edit, the
//	        next entry's link fails instead. Deletion and reordering break
//	        links the same way.
//
// Each entry records the scheme that produced it, so a log may mix both.
package audit

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"

	"github.com/sakif/student-data-vault/internal/model"
)

const (
	SchemeAction = "action"
	SchemeChain  = "chain"
)

// ValidScheme reports whether s names a known digest scheme.
func ValidScheme(s string) bool {
	return s == SchemeAction || s == SchemeChain
}

// Digest computes the hex digest of e under scheme.
func Digest(scheme string, e model.LogEntry) (string, error) {
	switch scheme {
	case SchemeAction:
		return actionDigest(e.Action), nil
	case SchemeChain:
		return chainDigest(e), nil
	default:
		return "", fmt.Errorf("audit: unknown digest scheme %q", scheme)
	}
}

func actionDigest(action string) string {
	sum := sha256.Sum256([]byte(action))
	return hex.EncodeToString(sum[:])
}

func chainDigest(e model.LogEntry) string {
	var b strings.Builder
	for _, field := range []string{
		e.UserID,
		e.Role,
		e.Action,
		strconv.FormatInt(e.Timestamp.UnixNano(), 10),
		e.PrevHash,
	} {
		// "<len>:<bytes>" keeps ("ab","c") and ("a","bc") apart.
		b.WriteString(strconv.Itoa(len(field)))
		b.WriteByte(':')
		b.WriteString(field)
	}
	sum := sha256.Sum256([]byte(b.String()))
	return hex.EncodeToString(sum[:])
}
