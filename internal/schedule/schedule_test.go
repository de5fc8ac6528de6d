package schedule

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestManualFiresInDeadlineOrder(t *testing.T) {
	m := NewManual(time.Unix(0, 0))
	var got []string

	m.AfterFunc(2*time.Second, func() { got = append(got, "b") })
	m.AfterFunc(time.Second, func() {
		got = append(got, "a")
		m.AfterFunc(500*time.Millisecond, func() { got = append(got, "a2") })
	})
	m.AfterFunc(time.Second, func() { got = append(got, "a-same") })

	m.Advance(1500 * time.Millisecond)
	assert.Equal(t, []string{"a", "a-same", "a2"}, got)
	assert.Equal(t, 1, m.Pending())

	m.Advance(time.Second)
	assert.Equal(t, []string{"a", "a-same", "a2", "b"}, got)
	assert.Equal(t, time.Unix(0, 0).Add(2500*time.Millisecond), m.Now())
}

func TestManualStop(t *testing.T) {
	m := NewManual(time.Unix(0, 0))
	fired := false
	timer := m.AfterFunc(time.Second, func() { fired = true })

	assert.True(t, timer.Stop())
	assert.False(t, timer.Stop())
	m.Advance(time.Minute)
	assert.False(t, fired)
	assert.Equal(t, 0, m.Pending())
}
