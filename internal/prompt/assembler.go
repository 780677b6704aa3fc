// Package prompt builds the system prompt for a chat request: a static
// block shared by every request and a dynamic block rendered from the
// desktop snapshot.
package prompt

import (
	"strings"
	"time"

	"github.com/af-corp/chat-gateway/internal/types"
)

// Input is everything the dynamic block may draw on.
type Input struct {
	State    *types.SystemState
	Geo      Geo
	Username string
	Now      time.Time
}

// Section renders one optional block. It returns "" when it has nothing
// to say, in which case the block is left out entirely.
type Section struct {
	Name   string
	Render func(in Input) string
}

// Bundle is the assembled system prompt.
type Bundle struct {
	Static  string
	Dynamic string
}

// Blocks returns the prompt as provider-agnostic system blocks with the
// static block marked cacheable.
func (b Bundle) Blocks() []types.SystemBlock {
	blocks := []types.SystemBlock{{Text: b.Static, Cacheable: true}}
	if b.Dynamic != "" {
		blocks = append(blocks, types.SystemBlock{Text: b.Dynamic})
	}
	return blocks
}

type Assembler struct {
	sections []Section
}

// NewAssembler uses DefaultSections when none are given.
func NewAssembler(sections ...Section) *Assembler {
	if len(sections) == 0 {
		sections = DefaultSections()
	}
	return &Assembler{sections: sections}
}

func Static() string { return staticPrompt }

func (a *Assembler) Build(in Input) Bundle {
	var parts []string
	for _, s := range a.sections {
		if out := strings.TrimSpace(s.Render(in)); out != "" {
			parts = append(parts, out)
		}
	}
	return Bundle{Static: staticPrompt, Dynamic: strings.Join(parts, "\n\n")}
}
