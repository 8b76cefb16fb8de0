package utils

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolveUnder(t *testing.T) {
	root := t.TempDir()

	p, err := ResolveUnder(root, filepath.Join(root, "sub", "..", "out.jsonl"))
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(root, "out.jsonl"), p)

	_, err = ResolveUnder(root, root)
	assert.NoError(t, err)

	for _, bad := range []string{
		filepath.Join(root, "..", "evil.jsonl"),
		filepath.Join(root, "..", filepath.Base(root)+"x", "out.jsonl"),
		"/etc/passwd",
	} {
		_, err := ResolveUnder(root, bad)
		assert.ErrorIs(t, err, ErrPathOutsideRoot, bad)
	}
}
