package catalog

import (
	"testing"

	"github.com/scriptkit/aichat/internal/credential"
	"github.com/stretchr/testify/assert"
)

func TestByID(t *testing.T) {
	m, ok := ByID("gpt-4o")
	assert.True(t, ok)
	assert.Equal(t, credential.SlugOpenAI, m.ProviderSlug)

	_, ok = ByID("does-not-exist")
	assert.False(t, ok)
}

func TestByProvider(t *testing.T) {
	models := ByProvider(credential.SlugAnthropic)
	assert.NotEmpty(t, models)
	for _, m := range models {
		assert.Equal(t, credential.SlugAnthropic, m.ProviderSlug)
	}
}
