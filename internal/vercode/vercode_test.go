package vercode

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestDeriveStableWithinBucket(t *testing.T) {
	window := 30 * time.Minute
	bucketStart := time.Unix(944444*1800, 0)
	t1 := bucketStart
	t2 := bucketStart.Add(window - time.Second)

	b1 := Bucket(t1, window)
	b2 := Bucket(t2, window)
	require.Equal(t, b1, b2)
	require.Equal(t,
		Derive("secret", "Kenny2scratch", b1),
		Derive("secret", "Kenny2scratch", b2),
	)
}

func TestDeriveDiffersAcrossBuckets(t *testing.T) {
	window := 30 * time.Minute
	now := time.Unix(1_700_000_000, 0)
	b1 := Bucket(now, window)
	b2 := Bucket(now.Add(window), window)
	require.NotEqual(t, b1, b2)
	require.NotEqual(t,
		Derive("secret", "Kenny2scratch", b1),
		Derive("secret", "Kenny2scratch", b2),
	)
}

func TestDeriveSensitivity(t *testing.T) {
	b := Bucket(time.Now(), 30*time.Minute)
	code := Derive("secret", "someuser", b)
	require.NotEqual(t, code, Derive("Secret", "someuser", b))
	// exact-case usernames: casing changes the code
	require.NotEqual(t, code, Derive("secret", "SomeUser", b))
}

func TestDeriveFormat(t *testing.T) {
	code := Derive("s", "u", 0)
	require.Len(t, code, 64)
	require.Regexp(t, "^[0-9a-f]{64}$", code)
}

func TestBucketWindowFloor(t *testing.T) {
	window := 30 * time.Minute
	require.Equal(t, int64(0), Bucket(time.Unix(1799, 0), window))
	require.Equal(t, int64(1), Bucket(time.Unix(1800, 0), window))
}
