package title

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/harun/turbogenius/pkg/engine"
	"github.com/harun/turbogenius/pkg/session"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type MockSummarizer struct {
	mock.Mock
}

func (m *MockSummarizer) Summarize(ctx context.Context, excerpt string) (string, error) {
	args := m.Called(ctx, excerpt)
	return args.String(0), args.Error(1)
}

func newTestGenerator(t *testing.T, s engine.Summarizer) *Generator {
	t.Helper()
	g, err := NewGenerator(Config{Summarizer: s})
	require.NoError(t, err)
	return g
}

func TestExcerpt(t *testing.T) {
	messages := []session.Message{
		session.SystemMessage("sys"),
		session.UserMessage("Hello"),
		session.AssistantMessage("Hi there"),
		session.UserMessage("ignored"),
	}
	assert.Equal(t, "Hello\nHi there", Excerpt(messages))

	assert.Equal(t, "Hello", Excerpt(messages[:2]))
	assert.Equal(t, "", Excerpt(messages[:1]))
}

func TestClean(t *testing.T) {
	tests := []struct {
		name     string
		raw      string
		expected string
	}{
		{"plain", "Greeting Exchange", "Greeting Exchange"},
		{"quoted", "  \"Greeting Exchange\"\n", "Greeting Exchange"},
		{"multi line", "Greeting Exchange\nThis title summarizes...", "Greeting Exchange"},
		{"prefixed", "Title: Weekend Plans", "Weekend Plans"},
		{"blank", "  \n ", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, Clean(tt.raw, DefaultMaxLength))
		})
	}

	t.Run("bounded", func(t *testing.T) {
		long := "A remarkably long title that keeps going well past any sensible length"
		cleaned := Clean(long, 20)
		assert.Equal(t, 20, utf8.RuneCountInString(cleaned))
		assert.True(t, len(cleaned) > 0)
		assert.Equal(t, "…", string([]rune(cleaned)[19:]))
	})
}

func TestNewGenerator(t *testing.T) {
	_, err := NewGenerator(Config{})
	assert.Error(t, err)

	_, err = NewGenerator(Config{Summarizer: &MockSummarizer{}, MaxLength: -1})
	assert.Error(t, err)

	g, err := NewGenerator(Config{Summarizer: &MockSummarizer{}})
	require.NoError(t, err)
	assert.Equal(t, DefaultMaxLength, g.maxLength)
}

func TestGenerate(t *testing.T) {
	s := &MockSummarizer{}
	s.On("Summarize", mock.Anything, "Hello\nHi there").Return("\"Greeting Exchange\"", nil).Once()
	g := newTestGenerator(t, s)

	title, err := g.Generate(context.Background(), []session.Message{
		session.SystemMessage("sys"),
		session.UserMessage("Hello"),
		session.AssistantMessage("Hi there"),
	})

	require.NoError(t, err)
	assert.Equal(t, "Greeting Exchange", title)
	s.AssertExpectations(t)
}

func TestGenerate_EmptyTranscript(t *testing.T) {
	s := &MockSummarizer{}
	g := newTestGenerator(t, s)

	_, err := g.Generate(context.Background(), []session.Message{session.SystemMessage("sys")})
	assert.ErrorIs(t, err, ErrEmptyTranscript)
	s.AssertNotCalled(t, "Summarize", mock.Anything, mock.Anything)
}

func TestGenerate_SummarizerFailure(t *testing.T) {
	s := &MockSummarizer{}
	s.On("Summarize", mock.Anything, "Hello").Return("", errors.New("timeout")).Once()
	g := newTestGenerator(t, s)

	_, err := g.Generate(context.Background(), []session.Message{session.UserMessage("Hello")})
	assert.ErrorIs(t, err, engine.ErrEngine)
}

func TestGenerate_EmptyOutputIsEngineFailure(t *testing.T) {
	s := &MockSummarizer{}
	s.On("Summarize", mock.Anything, "Hello").Return(" \"\" ", nil).Once()
	g := newTestGenerator(t, s)

	_, err := g.Generate(context.Background(), []session.Message{session.UserMessage("Hello")})
	assert.ErrorIs(t, err, engine.ErrEngine)
}

func TestEnsure_StoresTitleOnce(t *testing.T) {
	s := &MockSummarizer{}
	s.On("Summarize", mock.Anything, "Hello\nHi there").Return("Greeting Exchange", nil).Once()
	g := newTestGenerator(t, s)

	sess := session.New(1, "sys")
	sess.AddUserMessage("Hello")
	sess.AddAssistantMessage("Hi there")

	title, err := g.Ensure(context.Background(), sess)
	require.NoError(t, err)
	assert.Equal(t, "Greeting Exchange", title)
	assert.Equal(t, "Greeting Exchange", sess.Title())

	// Second call returns the stored title without asking the summarizer.
	title, err = g.Ensure(context.Background(), sess)
	require.NoError(t, err)
	assert.Equal(t, "Greeting Exchange", title)
	s.AssertNumberOfCalls(t, "Summarize", 1)
}

func TestEnsure_ConcurrentCallsShareOneRun(t *testing.T) {
	release := make(chan time.Time)
	s := &MockSummarizer{}
	s.On("Summarize", mock.Anything, "Hello").
		WaitUntil(release).
		Return("Greeting", nil).
		Once()
	g := newTestGenerator(t, s)

	sess := session.New(7, "sys")
	sess.AddUserMessage("Hello")

	const callers = 5
	var wg sync.WaitGroup
	titles := make([]string, callers)
	errs := make([]error, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			titles[i], errs[i] = g.Ensure(context.Background(), sess)
		}(i)
	}

	require.Eventually(t, func() bool { return g.flight.Size() == 1 }, time.Second, 5*time.Millisecond)
	close(release)
	wg.Wait()

	for i := 0; i < callers; i++ {
		require.NoError(t, errs[i])
		assert.Equal(t, "Greeting", titles[i])
	}
	s.AssertNumberOfCalls(t, "Summarize", 1)
}

func TestEnsure_KeepsTitleSetMeanwhile(t *testing.T) {
	sess := session.New(3, "sys")
	sess.AddUserMessage("Hello")

	s := &MockSummarizer{}
	s.On("Summarize", mock.Anything, "Hello").
		Run(func(mock.Arguments) { sess.SetTitle("Chosen by user") }).
		Return("Generated", nil).
		Once()
	g := newTestGenerator(t, s)

	title, err := g.Ensure(context.Background(), sess)
	require.NoError(t, err)
	assert.Equal(t, "Chosen by user", title)
	assert.Equal(t, "Chosen by user", sess.Title())
}

func TestEnsure_FailureLeavesDefaultTitle(t *testing.T) {
	sess := session.New(4, "sys")
	sess.AddUserMessage("Hello")

	s := &MockSummarizer{}
	s.On("Summarize", mock.Anything, "Hello").Return("", errors.New("down")).Once()
	g := newTestGenerator(t, s)

	_, err := g.Ensure(context.Background(), sess)
	assert.ErrorIs(t, err, engine.ErrEngine)
	assert.True(t, sess.HasDefaultTitle())
	assert.Zero(t, g.flight.Size())
}
