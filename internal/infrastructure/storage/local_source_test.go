package storage

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLocalSourcePutAndOpen(t *testing.T) {
	t.Parallel()

	source := NewLocalSource(t.TempDir())
	ctx := context.Background()

	require.NoError(t, source.Put(ctx, "imports/job-1/leads.csv", strings.NewReader("email\na@example.com\n"), -1))

	rc, err := source.Open(ctx, "imports/job-1/leads.csv")
	require.NoError(t, err)
	defer rc.Close()

	content, err := io.ReadAll(rc)
	require.NoError(t, err)
	require.Equal(t, "email\na@example.com\n", string(content))
}

func TestLocalSourceOpenMissing(t *testing.T) {
	t.Parallel()

	source := NewLocalSource(t.TempDir())
	_, err := source.Open(context.Background(), "nope.csv")
	require.True(t, errors.Is(err, ErrObjectNotFound), "got %v", err)
}

func TestLocalSourceRejectsEscapingPaths(t *testing.T) {
	t.Parallel()

	base := t.TempDir()
	outside := filepath.Join(t.TempDir(), "secret.csv")
	require.NoError(t, os.WriteFile(outside, []byte("email\nsecret@example.com\n"), 0o600))

	source := NewLocalSource(base)
	ctx := context.Background()

	err := source.Put(ctx, "../outside.csv", strings.NewReader("x"), 1)
	require.Error(t, err)
	require.Contains(t, err.Error(), "escapes")

	for _, path := range []string{outside, "/etc/hostname", "../" + filepath.Base(outside), "imports/../../secret.csv"} {
		rc, err := source.Open(ctx, path)
		if rc != nil {
			_ = rc.Close()
		}
		require.Error(t, err, path)
		require.Contains(t, err.Error(), "escapes", path)
	}

	err = source.Put(ctx, outside, strings.NewReader("x"), 1)
	require.Error(t, err)
	content, err := os.ReadFile(outside)
	require.NoError(t, err)
	require.Equal(t, "email\nsecret@example.com\n", string(content))
}
