package vcs

import (
	"context"
	"os"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/goferpkg/gofer/internal/domain"
)

func newCvsUnderTest(t *testing.T, desc *domain.Descriptor,
	respond func(domain.Command) (*domain.RunResult, error)) (*CvsStrategy, *commandLog) {
	t.Helper()
	deps := testDeps(t, testConfig(t))
	runner, log := mockRunner(t, respond)
	deps.Runner = runner
	return NewCvsStrategy(desc, deps), log
}

func TestCvsModuleDerivation(t *testing.T) {
	tests := []struct {
		name       string
		url        string
		metaModule string
		wantRoot   string
		wantModule string
	}{
		{
			name:       "explicit module wins",
			url:        "cvs://:pserver:anonymous@cvs.example.com:/cvsroot/proj",
			metaModule: "htdocs",
			wantRoot:   ":pserver:anonymous@cvs.example.com:/cvsroot/proj",
			wantModule: "htdocs",
		},
		{
			name:       "module split off the root",
			url:        "cvs://:pserver:anonymous@cvs.example.com:/cvsroot/proj:mymodule",
			wantRoot:   ":pserver:anonymous@cvs.example.com:/cvsroot/proj",
			wantModule: "mymodule",
		},
		{
			name:       "resource name as the fallback",
			url:        "cvs://:pserver:anonymous@cvs.example.com:/cvsroot/proj",
			wantRoot:   ":pserver:anonymous@cvs.example.com:/cvsroot/proj",
			wantModule: "proj",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			desc := testDescriptor(tt.url, "proj", "1.0")
			desc.Meta.Module = tt.metaModule
			s, _ := newCvsUnderTest(t, desc, nil)

			assert.Equal(t, tt.wantRoot, s.root)
			assert.Equal(t, tt.wantModule, s.module)
		})
	}
}

func TestCvsFetch(t *testing.T) {
	ctx := context.Background()

	t.Run("logs in before checking out pserver roots", func(t *testing.T) {
		desc := testDescriptor("cvs://:pserver:anonymous@cvs.example.com:/cvsroot/proj:mymodule", "proj", "1.0")
		s, log := newCvsUnderTest(t, desc, nil)

		require.NoError(t, s.Fetch(ctx))

		location := s.CachedLocation()
		require.Len(t, log.calls, 2)
		assert.Equal(t, "cvs", log.calls[0].Name)
		assert.Equal(t, []string{"-d", s.root, "login"}, log.calls[0].Args)
		assert.Equal(t, []string{"-d", s.root, "checkout", "-d", filepath.Base(location), "mymodule"}, log.calls[1].Args)
		assert.Equal(t, filepath.Dir(location), log.calls[1].Dir)
	})

	t.Run("skips login elsewhere", func(t *testing.T) {
		desc := testDescriptor("cvs://:ext:dev@cvs.example.com:/home/cvs:proj", "proj", "1.0")
		s, log := newCvsUnderTest(t, desc, nil)

		require.NoError(t, s.Fetch(ctx))

		require.Len(t, log.calls, 1)
		assert.Equal(t, "checkout", log.calls[0].Args[2])
	})

	t.Run("updates an existing checkout", func(t *testing.T) {
		desc := testDescriptor("cvs://:pserver:anonymous@cvs.example.com:/cvsroot/proj", "proj", "1.0")
		s, log := newCvsUnderTest(t, desc, nil)
		require.NoError(t, os.MkdirAll(filepath.Join(s.CachedLocation(), "CVS"), 0o755))

		require.NoError(t, s.Fetch(ctx))

		require.Len(t, log.calls, 1)
		assert.Equal(t, []string{"update"}, log.calls[0].Args)
		assert.Equal(t, s.CachedLocation(), log.calls[0].Dir)
	})

	t.Run("quiet mode silences the tool", func(t *testing.T) {
		desc := testDescriptor("cvs://:pserver:anonymous@cvs.example.com:/cvsroot/proj", "proj", "1.0")
		s, log := newCvsUnderTest(t, desc, nil)
		s.SetQuiet(true)
		require.NoError(t, os.MkdirAll(filepath.Join(s.CachedLocation(), "CVS"), 0o755))

		require.NoError(t, s.Fetch(ctx))

		require.Len(t, log.calls, 1)
		assert.Equal(t, []string{"-Q", "update"}, log.calls[0].Args)
	})
}

func TestCvsTimestamps(t *testing.T) {
	ctx := context.Background()
	desc := testDescriptor("cvs://:pserver:anonymous@cvs.example.com:/cvsroot/proj", "proj", "1.0")
	s, _ := newCvsUnderTest(t, desc, nil)

	location := s.CachedLocation()
	require.NoError(t, os.MkdirAll(filepath.Join(location, "CVS"), 0o755))
	require.NoError(t, os.MkdirAll(filepath.Join(location, "src"), 0o755))

	source := filepath.Join(location, "src", "main.c")
	bookkeeping := filepath.Join(location, "CVS", "Entries")
	require.NoError(t, os.WriteFile(source, []byte("int main;"), 0o644))
	require.NoError(t, os.WriteFile(bookkeeping, []byte("/main.c/1.1//"), 0o644))

	// The bookkeeping file is newer, but only real sources count.
	sourceTime := time.Date(2022, 10, 11, 12, 13, 14, 0, time.UTC)
	require.NoError(t, os.Chtimes(source, sourceTime, sourceTime))
	require.NoError(t, os.Chtimes(bookkeeping, time.Now(), time.Now()))

	when, err := s.ModTime(ctx)
	require.NoError(t, err)
	assert.True(t, when.Equal(sourceTime))

	last, err := s.LastCommit(ctx)
	require.NoError(t, err)
	assert.Equal(t, strconv.FormatInt(sourceTime.Unix(), 10), last)

	rev, err := s.CurrentRevision(ctx)
	require.NoError(t, err)
	assert.Empty(t, rev, "cvs has no repository-wide revision")
}
