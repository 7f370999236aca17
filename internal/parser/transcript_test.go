package parser

import (
	"testing"
	"time"

	"github.com/raphaelgruber/kaiwa/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseTranscript(t *testing.T) {
	content := `---
id: c1
title: "Kyoto: day one"
messages: 2
created_at: 2025-03-01T09:00:00Z
updated_at: 2025-03-01T10:00:00Z
---

# Kyoto: day one

## You

- image: gate.jpg (image/jpeg)
- image: image/png

What is this?

## Assistant

A torii gate.

### Details

- vermilion
- wood
`

	tr, err := ParseTranscript(content)
	require.NoError(t, err)

	assert.Equal(t, "c1", tr.Frontmatter.ID)
	assert.Equal(t, "Kyoto: day one", tr.Title)
	assert.True(t, tr.Frontmatter.UpdatedAt.Equal(time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)))

	require.Len(t, tr.Turns, 2)
	assert.Equal(t, models.RoleUser, tr.Turns[0].Role)
	assert.Equal(t, []string{"gate.jpg (image/jpeg)", "image/png"}, tr.Turns[0].Images)
	assert.Equal(t, "What is this?", tr.Turns[0].Content)

	assert.Equal(t, models.RoleAssistant, tr.Turns[1].Role)
	assert.Equal(t, "A torii gate.\n\n### Details\n\n- vermilion\n- wood", tr.Turns[1].Content)
	assert.Empty(t, tr.Turns[1].Images)
}

func TestParseTranscriptWithoutFrontmatter(t *testing.T) {
	tr, err := ParseTranscript("# Notes\n\n## You\n\nhi\n\n## Assistant\n\nhello\n")
	require.NoError(t, err)
	assert.Equal(t, "Notes", tr.Title)
	assert.Empty(t, tr.Frontmatter.ID)
	require.Len(t, tr.Turns, 2)
}

func TestParseTranscriptBrokenFrontmatter(t *testing.T) {
	tr, err := ParseTranscript("---\ntitle: [unclosed\n---\n# Fallback\n\n## You\n\nhi\n")
	require.NoError(t, err)
	assert.Equal(t, "Fallback", tr.Title)
}

func TestParseTranscriptNoTurns(t *testing.T) {
	_, err := ParseTranscript("# Just a title\n\nSome text.\n")
	assert.ErrorIs(t, err, ErrNoMessages)
}

func TestTranscriptMessages(t *testing.T) {
	tr, err := ParseTranscript("## You\n\n- image: a.png (image/png)\n\n## Assistant\n\nok\n")
	require.NoError(t, err)
	require.Len(t, tr.Turns, 2)

	msgs := tr.Messages()
	require.Len(t, msgs, 1, "image-only turns have no text to import")
	assert.Equal(t, models.RoleAssistant, msgs[0].Role)
	assert.Equal(t, "ok", msgs[0].Content)
	assert.NotEmpty(t, msgs[0].ID)
	assert.NoError(t, msgs[0].Validate())
}
