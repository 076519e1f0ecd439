package moderation

import (
	"chat-relay/errors"
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/require"
)

func TestCensoredLoader_LoadAll(t *testing.T) {
	req := require.New(t)
	files := fstest.MapFS{
		"censored/en.txt":        {Data: []byte("badger\r\nsnake\n\n")},
		"censored/fr.txt":        {Data: []byte("  blaireau \nbadger\n")},
		"censored/nested/de.txt": {Data: []byte("dachs\n")},
	}

	data, err := NewCensoredLoader(files).LoadAll("censored")

	req.NoError(err)
	req.Equal([]string{"badger", "blaireau", "snake"}, data.Words)
	req.Equal([]string{"en", "fr"}, data.Languages)
}

func TestCensoredLoader_Empty(t *testing.T) {
	req := require.New(t)
	files := fstest.MapFS{
		"censored/en.txt": {Data: []byte("\n   \n")},
	}

	_, err := NewCensoredLoader(files).LoadAll("censored")
	req.ErrorIs(err, errors.ErrEmptyWords)

	_, err = NewCensoredLoader(files).LoadAll("missing")
	req.Error(err)
}
