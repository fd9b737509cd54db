package runtime

import (
	"collab-lab/errors"
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/require"
)

func TestCensoredLoader_MergesLanguages(t *testing.T) {
	req := require.New(t)

	// Given two dictionaries sharing a word, with windows line endings
	fsys := fstest.MapFS{
		"censored/en.txt":    {Data: []byte("idiot\r\nmoron\r\n\r\n")},
		"censored/fr.txt":    {Data: []byte("idiot\ncrétin\n")},
		"censored/README.md": {Data: []byte("not a dictionary")},
	}

	// When loading
	data, err := NewCensoredLoader(fsys).LoadAll("censored")

	// Then words are unique and languages are derived from file names
	req.NoError(err)
	req.ElementsMatch([]string{"idiot", "moron", "crétin"}, data.Words)
	req.Equal([]string{"en", "fr"}, data.Languages)
}

func TestCensoredLoader_EmptyDictionary(t *testing.T) {
	req := require.New(t)
	fsys := fstest.MapFS{"censored/en.txt": {Data: []byte("\n  \n")}}

	_, err := NewCensoredLoader(fsys).LoadAll("censored")
	req.ErrorIs(err, errors.ErrEmptyWords)
}

func TestCensoredLoader_EmbeddedDictionaries(t *testing.T) {
	req := require.New(t)

	data, err := DefaultCensoredLoader().LoadAll("censored")
	req.NoError(err)
	req.Contains(data.Languages, "en")
	req.Contains(data.Languages, "fr")
	req.NotEmpty(data.Words)
}
