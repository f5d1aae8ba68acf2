package extractor

import (
	"bufio"
	"errors"
	"io"
	"os"
	"regexp"
	"strings"
	"unicode/utf8"
)

// sampleHead reads up to 2*length characters of the file, drops everything up
// to the end of the first skip pattern that matches, and returns at most
// length characters of what is left.
func sampleHead(p string, length int, skip []*regexp.Regexp) (string, error) {
	f, err := os.Open(p)
	if err != nil {
		return "", err
	}
	defer f.Close()

	prefix, err := readRunes(bufio.NewReader(f), 2*length)
	if err != nil {
		return "", err
	}

	for _, re := range skip {
		if loc := re.FindStringIndex(prefix); loc != nil {
			prefix = prefix[loc[1]:]
			break
		}
	}
	return truncateRunes(prefix, length), nil
}

// readRunes decodes up to n characters; invalid UTF-8 becomes U+FFFD
func readRunes(r *bufio.Reader, n int) (string, error) {
	var b strings.Builder
	for i := 0; i < n; i++ {
		ch, _, err := r.ReadRune()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return "", err
		}
		b.WriteRune(ch)
	}
	return b.String(), nil
}

func truncateRunes(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	i := 0
	for pos := range s {
		if i == n {
			return s[:pos]
		}
		i++
	}
	return s
}
