package llm

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCleanOutput(t *testing.T) {
	assert.Equal(t, `{"a":1}`, CleanOutput("```json\n{\"a\":1}\n```"))
	assert.Equal(t, `{"a":1}`, CleanOutput("```\n{\"a\":1}\n```"))
	assert.Equal(t, "# Title", CleanOutput("```markdown\n# Title\n```"))
	assert.Equal(t, `{"a":1}`, CleanOutput(`  {"a":1} `))
}

func TestNew_Providers(t *testing.T) {
	g, err := New(context.Background(), Options{Provider: "none"})
	require.NoError(t, err)
	assert.Nil(t, g)

	_, err = New(context.Background(), Options{Provider: "gemini"})
	require.Error(t, err)

	g, err = New(context.Background(), Options{Provider: "OpenAI", APIKey: "sk-test", BaseURL: "http://localhost:8080"})
	require.NoError(t, err)
	assert.Equal(t, "openai:gpt-4o-mini", g.Name())

	_, err = New(context.Background(), Options{Provider: "ollama", APIKey: "x"})
	require.Error(t, err)
}
