// Package vercode derives the comment verification code a user must
// publish on their Scratch profile to prove account control.
//
// The code is a pure function of (session secret, username, time
// bucket), so the server can recompute it at verification time instead
// of persisting a pending-verification record. A code stays valid for
// one whole bucket; a request straddling a bucket boundary simply fails
// verification and the user retries with a fresh code.
package vercode

import (
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"time"
)

// Derive computes the verification code for the given inputs. The
// username is hashed exactly as supplied; callers pass the canonical
// casing reported by the identity lookup. The result is a lowercase hex
// sha256 digest.
func Derive(secret, username string, bucket int64) string {
	return hashHex(
		hashHex(secret) +
			hashHex(username) +
			hashHex(strconv.FormatInt(bucket, 10)),
	)
}

// Bucket quantizes now into the coarse window the code is valid for.
func Bucket(now time.Time, window time.Duration) int64 {
	secs := int64(window / time.Second)
	if secs <= 0 {
		secs = 1
	}
	return now.Unix() / secs
}

func hashHex(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])
}
