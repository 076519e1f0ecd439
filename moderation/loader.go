package moderation

import (
	"bufio"
	"bytes"
	"chat-relay/errors"
	"io/fs"
	"path"
	"slices"
	"strings"
)

// CensoredData is the merged dictionary and the languages it was built from.
type CensoredData struct {
	Words     []string
	Languages []string
}

// CensoredLoader reads one word list per language ("fr.txt", "en.txt"...) from a directory.
type CensoredLoader struct {
	fs fs.FS
}

func NewCensoredLoader(f fs.FS) *CensoredLoader {
	return &CensoredLoader{fs: f}
}

// LoadAll parses every file of dir, one word per line, and merges them without duplicates.
func (l *CensoredLoader) LoadAll(dir string) (*CensoredData, error) {
	entries, err := fs.ReadDir(l.fs, dir)
	if err != nil {
		return nil, err
	}

	var languages []string
	uniqueWords := make(map[string]struct{})
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		languages = append(languages, strings.TrimSuffix(entry.Name(), path.Ext(entry.Name())))

		data, err := fs.ReadFile(l.fs, path.Join(dir, entry.Name()))
		if err != nil {
			return nil, err
		}
		// The scanner handles both \n and \r\n.
		scanner := bufio.NewScanner(bytes.NewReader(data))
		for scanner.Scan() {
			if line := strings.TrimSpace(scanner.Text()); line != "" {
				uniqueWords[line] = struct{}{}
			}
		}
		if err := scanner.Err(); err != nil {
			return nil, err
		}
	}

	if len(uniqueWords) == 0 {
		return nil, errors.ErrEmptyWords
	}
	words := make([]string, 0, len(uniqueWords))
	for w := range uniqueWords {
		words = append(words, w)
	}
	slices.Sort(words)
	return &CensoredData{Words: words, Languages: languages}, nil
}
