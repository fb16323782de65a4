package runtime

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestSecondsRoundTrip(t *testing.T) {
	for _, ts := range []time.Time{
		time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC),
		time.Date(2025, 3, 1, 10, 0, 0, 123456000, time.UTC),
		time.UnixMicro(1740823200999999),
	} {
		seconds := ToSeconds(ts)
		back := FromSeconds(seconds)
		assert.True(t, ts.Equal(back), "%s != %s", ts, back)
		assert.Equal(t, seconds, ToSeconds(back))
	}
}

func TestTaskPropertiesRepetition(t *testing.T) {
	assert.False(t, TaskProperties{}.IsRepetition())
	assert.True(t, TaskProperties{InternalData: map[string]any{InternalInstanceMarker: 1}}.IsRepetition())
	assert.True(t, TaskProperties{InternalData: map[string]any{InternalIterationMarker: 0}}.IsRepetition())
	assert.False(t, TaskProperties{InternalData: map[string]any{"other": true}}.IsRepetition())
}
