package importer

import (
	"bufio"
	"io"
	"os"
	"slices"
	"strings"
)

const (
	textPrefix        = "Q:"
	translationPrefix = "A:"
	tagsPrefix        = "T:"
	separator         = "---"
)

// Entry is one card block of a deck file.
type Entry struct {
	TextToTranslate string
	Translation     string
	Tags            []string
	// Line is where the entry's Q: line starts, counting from 1.
	Line int
}

type state int

const (
	seeking state = iota
	readingText
	readingTranslation
	readingTags
)

// ParseFile reads a deck from the given path and extracts all entries.
func ParseFile(path string) ([]Entry, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	return Parse(file)
}

// Parse reads a deck and extracts all entries. Q: starts an entry, A: holds
// the translation and T: a comma-separated list of tag names. Q: and A:
// blocks continue on the following lines; "---" ends the current entry.
func Parse(r io.Reader) ([]Entry, error) {
	scanner := bufio.NewScanner(r)
	var (
		entries []Entry
		current Entry
		block   []string
		st      = seeking
		lineNo  int
	)

	flush := func() {
		if len(block) == 0 {
			return
		}
		content := strings.TrimSpace(strings.Join(block, "\n"))
		switch st {
		case readingText:
			current.TextToTranslate = content
		case readingTranslation:
			current.Translation = content
		case readingTags:
			current.Tags = appendTags(current.Tags, content)
		}
		block = nil
	}
	finish := func() {
		flush()
		if current.TextToTranslate != "" {
			entries = append(entries, current)
		}
		current = Entry{}
		st = seeking
	}

	for scanner.Scan() {
		lineNo++
		line := scanner.Text()

		if strings.TrimSpace(line) == separator {
			finish()
			continue
		}

		prefix, rest, ok := cutPrefix(line)
		if !ok {
			if st != seeking {
				block = append(block, line)
			}
			continue
		}

		flush()
		switch prefix {
		case textPrefix:
			if st != seeking {
				finish()
			}
			st = readingText
			current.Line = lineNo
		case translationPrefix:
			st = readingTranslation
		case tagsPrefix:
			st = readingTags
		}
		block = append(block, rest)
	}

	finish()

	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return entries, nil
}

func cutPrefix(line string) (prefix, rest string, ok bool) {
	for _, p := range []string{textPrefix, translationPrefix, tagsPrefix} {
		if after, found := strings.CutPrefix(line, p); found {
			return p, strings.TrimPrefix(after, " "), true
		}
	}
	return "", "", false
}

func appendTags(tags []string, list string) []string {
	for _, name := range strings.FieldsFunc(list, func(r rune) bool { return r == ',' || r == '\n' }) {
		name = strings.TrimSpace(name)
		if name != "" && !slices.Contains(tags, name) {
			tags = append(tags, name)
		}
	}
	return tags
}
