package msgcat

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultsRender(t *testing.T) {
	c := MustDefault()
	assert.Equal(t, "It is not your turn.", c.Text("reject.not_your_turn", nil))
	assert.Equal(t, "Illegal move e2e5.", c.Text("reject.illegal_move", map[string]string{"From": "e2", "To": "e5"}))
	assert.Equal(t, "white wins on time.", c.Text("result.timeout", map[string]string{"Winner": "white"}))
}

func TestMissingKeyAndFieldFallBack(t *testing.T) {
	c := MustDefault()
	assert.Equal(t, "no.such.key", c.Text("no.such.key", nil))

	_, err := c.Render("route.match_not_found", map[string]string{})
	assert.Error(t, err)
	assert.Equal(t, "route.match_not_found", c.Text("route.match_not_found", map[string]string{}))
}

func TestOverrideDir(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "ko.yaml"), []byte("reject:\n  not_your_turn: \"상대 차례입니다.\"\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "ignored.txt"), []byte("junk"), 0o644))

	c, err := New(dir)
	require.NoError(t, err)
	assert.Equal(t, "상대 차례입니다.", c.Text("reject.not_your_turn", nil))
	assert.Equal(t, "This game is not in progress.", c.Text("reject.not_active", nil))
}

func TestOverrideRejectsNonStringLeaves(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "bad.yaml"), []byte("reject:\n  not_active: 3\n"), 0o644))
	_, err := New(dir)
	assert.Error(t, err)
}
