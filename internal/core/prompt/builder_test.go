package prompt

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuild_UnknownTemplateFails(t *testing.T) {
	b := NewBuilder()

	_, err := b.Build("no_such_template", nil)
	require.ErrorIs(t, err, ErrUnknownTemplate)
}

func TestBuildRagQA_WithContextEmitsTwoTurnPrimer(t *testing.T) {
	b := NewBuilder()

	messages, err := b.Build(KeyRagQA, Vars{
		"context":  "Source: X\nContent: body",
		"question": "What is X?",
	})
	require.NoError(t, err)

	require.Len(t, messages, 4)
	assert.Equal(t, RoleSystem, messages[0].Role)
	assert.Contains(t, messages[0].Content, RefusalMessage)
	assert.Equal(t, RoleUser, messages[1].Role)
	assert.Contains(t, messages[1].Content, "Source: X")
	assert.Equal(t, RoleAssistant, messages[2].Role)
	assert.Equal(t, RoleUser, messages[3].Role)
	assert.Equal(t, "Question: What is X?", messages[3].Content)
}

func TestBuildRagQA_WithoutContextSkipsPrimer(t *testing.T) {
	b := NewBuilder()

	messages, err := b.Build(KeyRagQA, Vars{"question": "What is X?"})
	require.NoError(t, err)

	require.Len(t, messages, 2)
	assert.Equal(t, RoleSystem, messages[0].Role)
	assert.Equal(t, RoleUser, messages[1].Role)
}

func TestBuildRagQA_HistoryPlacedBetweenPrimerAndQuestion(t *testing.T) {
	b := NewBuilder()

	history := []Message{
		{Role: RoleUser, Content: "old q"},
		{Role: RoleAssistant, Content: "old a"},
	}
	messages, err := b.BuildWithHistory(KeyRagQA, Vars{
		"context":  "ctx",
		"question": "new q",
	}, history)
	require.NoError(t, err)

	require.Len(t, messages, 6)
	assert.Equal(t, "old q", messages[3].Content)
	assert.Equal(t, "old a", messages[4].Content)
	assert.Equal(t, "Question: new q", messages[5].Content)
}

func TestBuildChecklist_ConcatenatesProvidedSections(t *testing.T) {
	b := NewBuilder()

	messages, err := b.Build(KeyChecklist, Vars{
		"title":      "Fix auth bug",
		"note":       "check token expiry",
		"transcript": "I was looking at the refresh flow",
	})
	require.NoError(t, err)

	require.Len(t, messages, 2)
	assert.Contains(t, messages[0].Content, "JSON array")
	assert.Contains(t, messages[1].Content, "Task: Fix auth bug")
	assert.Contains(t, messages[1].Content, "User Note: check token expiry")
	assert.Contains(t, messages[1].Content, "Voice Transcript: I was looking at the refresh flow")
	assert.NotContains(t, messages[1].Content, "Code Changes:")
}

func TestBuildTitleGen_IncludesURLAndPreview(t *testing.T) {
	b := NewBuilder()

	messages, err := b.Build(KeyTitleGen, Vars{
		"url":     "https://example.com/post",
		"content": "first paragraph",
	})
	require.NoError(t, err)

	require.Len(t, messages, 2)
	assert.Contains(t, messages[1].Content, "https://example.com/post")
	assert.Contains(t, messages[1].Content, "first paragraph")
}

func TestBuildMetadataGen_MandatesRequiredKeys(t *testing.T) {
	b := NewBuilder()

	messages, err := b.Build(KeyMetadataGen, Vars{
		"type":    "article",
		"content": "body",
	})
	require.NoError(t, err)

	require.Len(t, messages, 2)
	for _, key := range []string{"title", "summary", "difficulty", "tags", "estimated_minutes"} {
		assert.Contains(t, messages[0].Content, key)
	}
}
