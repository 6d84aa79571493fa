package manifest

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/goferpkg/gofer/internal/domain"
)

func TestConfig_Validate_NoResources(t *testing.T) {
	cfg := &Config{}

	err := cfg.Validate()
	assert.Error(t, err)
	assert.ErrorIs(t, err, ErrNoResources)
}

func TestConfig_Validate_EmptyURL(t *testing.T) {
	cfg := &Config{
		Resources: []Resource{
			{URL: "https://example.com/a"},
			{URL: ""},
		},
	}

	err := cfg.Validate()
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "resource 1")
	assert.ErrorIs(t, err, ErrEmptyURL)
}

func TestConfig_Validate_Valid(t *testing.T) {
	cfg := &Config{
		Resources: []Resource{
			{URL: "https://example.com/a"},
			{URL: "https://example.com/b", Strategy: "curl"},
		},
	}

	assert.NoError(t, cfg.Validate())
}

func TestResource_Descriptor(t *testing.T) {
	t.Run("carries every download option", func(t *testing.T) {
		r := Resource{
			URL:        "https://github.com/org/repo.git",
			Name:       "repo",
			Version:    "2.3.0",
			Mirrors:    []string{"https://mirror.example.org/repo.git"},
			Cookies:    map[string]string{"session": "x"},
			Referer:    "https://example.com",
			User:       "user:secret",
			Headers:    []string{"X-Token: abc"},
			Data:       map[string]string{"accept": "yes"},
			DataJSON:   true,
			Tag:        "v2.3.0",
			Branch:     "main",
			Revision:   "abc123",
			Revisions:  map[string]string{"trunk": "100"},
			Submodules: true,
			OnlyPaths:  []string{"docs"},
			TrustCert:  true,
			Module:     "proj",
		}

		desc := r.Descriptor()

		assert.Equal(t, r.URL, desc.URL)
		assert.Equal(t, r.Name, desc.Name)
		require.NotNil(t, desc.Version)
		assert.Equal(t, "2.3.0", desc.Version.String())
		assert.False(t, desc.Version.IsHead())

		meta := desc.Meta
		assert.Equal(t, r.Mirrors, meta.Mirrors)
		assert.Equal(t, r.Cookies, meta.Cookies)
		assert.Equal(t, r.Referer, meta.Referer)
		assert.Equal(t, r.User, meta.User)
		assert.Equal(t, r.Headers, meta.Headers)
		assert.Equal(t, r.Data, meta.Data)
		assert.True(t, meta.DataJSON)
		assert.Equal(t, r.Tag, meta.Tag)
		assert.Equal(t, r.Branch, meta.Branch)
		assert.Equal(t, r.Revision, meta.Revision)
		assert.Equal(t, r.Revisions, meta.Revisions)
		assert.True(t, meta.Submodules)
		assert.Equal(t, r.OnlyPaths, meta.OnlyPaths)
		assert.True(t, meta.TrustCert)
		assert.Equal(t, r.Module, meta.Module)
	})

	t.Run("head flag selects the repository tip", func(t *testing.T) {
		desc := Resource{URL: "https://github.com/org/repo.git", Head: true}.Descriptor()
		require.NotNil(t, desc.Version)
		assert.True(t, desc.Version.IsHead())
	})

	t.Run("HEAD version string selects the repository tip", func(t *testing.T) {
		desc := Resource{URL: "https://github.com/org/repo.git", Version: "head"}.Descriptor()
		require.NotNil(t, desc.Version)
		assert.True(t, desc.Version.IsHead())
	})

	t.Run("no version leaves the descriptor versionless", func(t *testing.T) {
		desc := Resource{URL: "https://example.com/pkg.tar.gz"}.Descriptor()
		assert.Nil(t, desc.Version)
	})

	t.Run("ref selectors resolve through the descriptor", func(t *testing.T) {
		desc := Resource{URL: "https://example.com/r.git", Tag: "v1.0"}.Descriptor()
		ref := desc.Meta.ExtractRef(domain.RefTag, domain.RefBranch, domain.RefRevision)
		assert.Equal(t, domain.RefTag, ref.Type)
		assert.Equal(t, "v1.0", ref.Value)
	})
}
