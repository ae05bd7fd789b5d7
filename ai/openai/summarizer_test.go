package openai

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
)

func TestClampTranscript(t *testing.T) {
	t.Run("short text passes through", func(t *testing.T) {
		assert.Equal(t, "hello", clampTranscript("hello"))
	})

	t.Run("oversized text keeps the tail", func(t *testing.T) {
		text := strings.Repeat("a", maxSummaryInputChars) + "tail"
		got := clampTranscript(text)
		assert.Len(t, got, maxSummaryInputChars)
		assert.True(t, strings.HasSuffix(got, "tail"))
	})

	t.Run("cut never splits a rune", func(t *testing.T) {
		// Sized so the byte cut lands in the middle of the leading emoji.
		text := "\U0001F642" + strings.Repeat("a", maxSummaryInputChars-2)
		got := clampTranscript(text)
		assert.True(t, utf8.ValidString(got))
		assert.Equal(t, strings.Repeat("a", maxSummaryInputChars-2), got)
	})
}
