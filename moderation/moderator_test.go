package moderation

import (
	"chat-relay/errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func newTestModerator(t *testing.T, words ...string) *Moderator {
	t.Helper()
	moderator, err := NewModerator(words, '*')
	require.NoError(t, err)
	return moderator
}

func TestModerator_Censors_Exact_Word(t *testing.T) {
	req := require.New(t)
	moderator := newTestModerator(t, "darn")

	req.Equal("well **** it", moderator.Censor("well darn it"))
}

func TestModerator_Censors_Despite_Casing(t *testing.T) {
	req := require.New(t)
	moderator := newTestModerator(t, "darn")

	req.Equal("****!", moderator.Censor("DaRN!"))
}

func TestModerator_Censors_Leet_Speak(t *testing.T) {
	req := require.New(t)
	moderator := newTestModerator(t, "darn")

	req.Equal("****", moderator.Censor("d4rn"))
	req.Equal("****", moderator.Censor("D@RN"))
}

func TestModerator_Censors_Spaced_Out_Word(t *testing.T) {
	req := require.New(t)
	moderator := newTestModerator(t, "darn")

	// Spacing is part of the matched span and gets starred with it
	req.Equal("********", moderator.Censor("d a r  n"))
}

func TestModerator_Leaves_Clean_Content_Alone(t *testing.T) {
	req := require.New(t)
	moderator := newTestModerator(t, "darn")

	content := "perfectly fine message"
	req.Equal(content, moderator.Censor(content))
	req.Equal("", moderator.Censor(""))
	req.Equal("!?!", moderator.Censor("!?!"))
}

func TestModerator_Censors_Multiple_Words(t *testing.T) {
	req := require.New(t)
	moderator := newTestModerator(t, "darn", "heck")

	req.Equal("**** and ****", moderator.Censor("darn and heck"))
}

func TestLoadWordList_Skips_Comments_And_Duplicates(t *testing.T) {
	req := require.New(t)
	path := filepath.Join(t.TempDir(), "words.txt")
	req.NoError(os.WriteFile(path, []byte("# banned words\ndarn\n\nheck\ndarn\n"), 0o600))

	words, err := LoadWordList(path)
	req.NoError(err)
	req.Equal([]string{"darn", "heck"}, words)
}

func TestLoadWordList_Rejects_Empty_File(t *testing.T) {
	req := require.New(t)
	path := filepath.Join(t.TempDir(), "words.txt")
	req.NoError(os.WriteFile(path, []byte("# only comments\n\n"), 0o600))

	_, err := LoadWordList(path)
	req.ErrorIs(err, errors.ErrEmptyWords)
}

func TestRune_Validates_Replacement(t *testing.T) {
	req := require.New(t)

	r, err := Rune("*")
	req.NoError(err)
	req.Equal('*', r)

	_, err = Rune("")
	req.Error(err)
	_, err = Rune("**")
	req.Error(err)
}
