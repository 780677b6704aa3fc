package gateway

import (
	"strings"
	"unicode"

	"github.com/mattn/go-runewidth"
)

// chunker regroups provider text deltas into word-sized pieces. A chunk
// ends after whitespace, and every East Asian wide character is a chunk
// of its own since those scripts do not separate words with spaces.
type chunker struct {
	pending strings.Builder
}

func (c *chunker) Push(s string) []string {
	var out []string
	for _, r := range s {
		if runewidth.RuneWidth(r) == 2 {
			if c.pending.Len() > 0 {
				out = append(out, c.take())
			}
			out = append(out, string(r))
			continue
		}
		c.pending.WriteRune(r)
		if unicode.IsSpace(r) {
			out = append(out, c.take())
		}
	}
	return out
}

// Flush returns whatever is buffered. Called at the end of each step.
func (c *chunker) Flush() string {
	return c.take()
}

func (c *chunker) take() string {
	s := c.pending.String()
	c.pending.Reset()
	return s
}
