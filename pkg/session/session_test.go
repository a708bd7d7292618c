package session

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSession_New(t *testing.T) {
	sess := New(1, "be brief")

	assert.Equal(t, ID(1), sess.ID())
	assert.Equal(t, DefaultTitle, sess.Title())
	assert.Equal(t, StateIdle, sess.State())
	assert.Equal(t, []Message{SystemMessage("be brief")}, sess.Messages())
}

func TestSession_AppendOrder(t *testing.T) {
	sess := New(1, "sys")

	sess.AddUserMessage("u1")
	sess.AddAssistantMessage("a1")
	sess.AddUserMessage("u2")
	sess.AddUserMessage("u3")
	sess.AddAssistantMessage("a2")

	expected := []Message{
		SystemMessage("sys"),
		UserMessage("u1"),
		AssistantMessage("a1"),
		UserMessage("u2"),
		UserMessage("u3"),
		AssistantMessage("a2"),
	}
	assert.Equal(t, expected, sess.Messages())
}

func TestSession_MessagesIsCopy(t *testing.T) {
	sess := New(1, "sys")
	sess.AddUserMessage("hello")

	msgs := sess.Messages()
	msgs[1].Content = "mutated"

	assert.Equal(t, "hello", sess.Messages()[1].Content)
}

func TestSession_TruncateMessages(t *testing.T) {
	t.Run("removes oldest pair", func(t *testing.T) {
		sess := New(1, "sys")
		sess.AddUserMessage("u1")
		sess.AddAssistantMessage("a1")
		sess.AddUserMessage("u2")

		assert.True(t, sess.TruncateMessages())
		assert.Equal(t, []Message{SystemMessage("sys"), UserMessage("u2")}, sess.Messages())
	})

	t.Run("removes single remaining message", func(t *testing.T) {
		sess := New(1, "sys")
		sess.AddUserMessage("u1")

		assert.True(t, sess.TruncateMessages())
		assert.Equal(t, []Message{SystemMessage("sys")}, sess.Messages())
	})

	t.Run("never removes system message", func(t *testing.T) {
		sess := New(1, "sys")

		assert.False(t, sess.TruncateMessages())
		assert.False(t, sess.TruncateMessages())
		assert.Equal(t, []Message{SystemMessage("sys")}, sess.Messages())
	})
}

func TestSession_TruncateCallCount(t *testing.T) {
	for n := 0; n <= 9; n++ {
		t.Run(fmt.Sprintf("%d messages", n), func(t *testing.T) {
			sess := New(1, "sys")
			for i := 0; i < n; i++ {
				if i%2 == 0 {
					sess.AddUserMessage(fmt.Sprintf("u%d", i))
				} else {
					sess.AddAssistantMessage(fmt.Sprintf("a%d", i))
				}
			}

			calls := 0
			prev := sess.Len()
			for sess.TruncateMessages() {
				calls++
				require.Less(t, sess.Len(), prev, "truncation must make progress")
				prev = sess.Len()
				require.LessOrEqual(t, calls, n, "truncation did not terminate")
			}

			assert.Equal(t, (n+1)/2, calls)
			assert.Equal(t, []Message{SystemMessage("sys")}, sess.Messages())
		})
	}
}

func TestSession_TruncateKeepsRelativeOrder(t *testing.T) {
	sess := New(1, "sys")
	for i := 0; i < 6; i++ {
		sess.AddUserMessage(fmt.Sprintf("m%d", i))
	}

	require.True(t, sess.TruncateMessages())

	msgs := sess.Messages()
	require.Len(t, msgs, 5)
	for i, msg := range msgs[1:] {
		assert.Equal(t, fmt.Sprintf("m%d", i+2), msg.Content)
	}
}

func TestSession_SetTitleIfDefault(t *testing.T) {
	sess := New(1, "sys")

	title, changed := sess.SetTitleIfDefault("Weather chat")
	assert.True(t, changed)
	assert.Equal(t, "Weather chat", title)

	title, changed = sess.SetTitleIfDefault("Other")
	assert.False(t, changed)
	assert.Equal(t, "Weather chat", title)
	assert.False(t, sess.HasDefaultTitle())
}

func TestSession_SetTitleIfDefaultConcurrent(t *testing.T) {
	sess := New(1, "sys")

	var wg sync.WaitGroup
	var mu sync.Mutex
	winners := 0
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if _, changed := sess.SetTitleIfDefault(fmt.Sprintf("title-%d", i)); changed {
				mu.Lock()
				winners++
				mu.Unlock()
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 1, winners)
}

func TestSession_StreamState(t *testing.T) {
	sess := New(1, "sys")

	require.NoError(t, sess.BeginStream())
	assert.Equal(t, StateGenerating, sess.State())
	assert.ErrorIs(t, sess.BeginStream(), ErrBusy)

	sess.EndStream()
	assert.Equal(t, StateIdle, sess.State())
	assert.NoError(t, sess.BeginStream())
}

func TestSession_LastActive(t *testing.T) {
	clock := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	sess := newSession(1, "sys", func() time.Time { return clock })
	assert.Equal(t, clock, sess.LastActive())

	clock = clock.Add(time.Minute)
	sess.AddUserMessage("hi")
	assert.Equal(t, clock, sess.LastActive())
}

func TestSession_Snapshot(t *testing.T) {
	sess := New(4, "sys")
	sess.AddUserMessage("hi")
	sess.SetTitle("Greeting")

	snap := sess.Snapshot()
	assert.Equal(t, ID(4), snap.ID)
	assert.Equal(t, "Greeting", snap.Title)
	assert.Equal(t, []Message{SystemMessage("sys"), UserMessage("hi")}, snap.Messages)
	assert.Equal(t, Summary{ID: 4, Title: "Greeting"}, sess.Summary())
}

func TestParseID(t *testing.T) {
	tests := []struct {
		in      string
		want    ID
		wantErr bool
	}{
		{"1", 1, false},
		{"42", 42, false},
		{"0", 0, true},
		{"-3", 0, true},
		{"abc", 0, true},
		{"", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			id, err := ParseID(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, id)
			assert.Equal(t, tt.in, id.String())
		})
	}
}

func TestRole_Valid(t *testing.T) {
	assert.True(t, RoleSystem.Valid())
	assert.True(t, RoleUser.Valid())
	assert.True(t, RoleAssistant.Valid())
	assert.False(t, Role("tool").Valid())
}
