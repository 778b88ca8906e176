package syncer

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestNextDelay(t *testing.T) {
	assert.Equal(t, 60*time.Second, NextDelay(1))
	assert.Equal(t, 300*time.Second, NextDelay(2))
	assert.Equal(t, 900*time.Second, NextDelay(3))
}

func TestNextDelayClampsOutOfRange(t *testing.T) {
	assert.Equal(t, 60*time.Second, NextDelay(0))
	assert.Equal(t, 60*time.Second, NextDelay(-5))
	assert.Equal(t, 900*time.Second, NextDelay(10))
}

func TestShouldRetry(t *testing.T) {
	assert.True(t, ShouldRetry(1, 3))
	assert.True(t, ShouldRetry(2, 3))
	assert.False(t, ShouldRetry(3, 3))
	assert.False(t, ShouldRetry(4, 3))
}

func TestDetectConflict(t *testing.T) {
	// older incoming edit is a conflict
	assert.True(t, detectConflict("2026-08-01T08:00:00Z", "2026-08-01T10:00:00Z"))
	// equal timestamps count as a conflict too
	assert.True(t, detectConflict("2026-08-01T10:00:00Z", "2026-08-01T10:00:00Z"))
	// newer incoming edit is the normal case
	assert.False(t, detectConflict("2026-08-01T12:00:00Z", "2026-08-01T10:00:00Z"))
}

func TestDetectConflictMixedFormats(t *testing.T) {
	// Jira millisecond-offset format against Redmine RFC 3339
	assert.False(t, detectConflict("2026-08-01T12:00:00.000+0000", "2026-08-01T10:00:00Z"))
	assert.True(t, detectConflict("2026-08-01T09:00:00.000+0000", "2026-08-01T10:00:00Z"))
}

func TestDetectConflictUnparseableDisablesCheck(t *testing.T) {
	assert.False(t, detectConflict("not-a-timestamp", "2026-08-01T10:00:00Z"))
	assert.False(t, detectConflict("2026-08-01T10:00:00Z", "garbage"))
	assert.False(t, detectConflict("", "2026-08-01T10:00:00Z"))
	assert.False(t, detectConflict("2026-08-01T10:00:00Z", ""))
}
