// Package svf parses Serial Vector Format files and plays them through a
// JTAG adapter.
package svf

import (
	"fmt"
	"io"

	"github.com/alecthomas/participle/v2"
	"github.com/alecthomas/participle/v2/lexer"
	"github.com/spf13/afero"
)

// SVFLexer tokenizes SVF. Hex operands keep their parentheses and may span
// lines.
var SVFLexer = lexer.MustSimple([]lexer.SimpleRule{
	{Name: "Comment", Pattern: `(?:!|//)[^\n]*`},
	{Name: "Whitespace", Pattern: `\s+`},
	{Name: "Hex", Pattern: `\([0-9A-Fa-f\s]*\)`},
	{Name: "Number", Pattern: `[0-9]+(?:\.[0-9]+)?(?:[eE][-+]?[0-9]+)?`},
	{Name: "Ident", Pattern: `[A-Za-z_][A-Za-z0-9_]*`},
	{Name: "Semicolon", Pattern: `;`},
})

// Parser reads SVF documents.
type Parser struct {
	parser *participle.Parser[File]
}

// NewParser builds the SVF grammar.
func NewParser() (*Parser, error) {
	parser, err := participle.Build[File](
		participle.Lexer(SVFLexer),
		participle.Elide("Comment", "Whitespace"),
		participle.CaseInsensitive("Ident"),
		participle.UseLookahead(2),
	)
	if err != nil {
		return nil, fmt.Errorf("svf: build parser: %w", err)
	}
	return &Parser{parser: parser}, nil
}

// Parse parses an SVF document from r. name is used in error positions.
func (p *Parser) Parse(name string, r io.Reader) (*File, error) {
	f, err := p.parser.Parse(name, r)
	if err != nil {
		return nil, fmt.Errorf("svf: %w", err)
	}
	return f, nil
}

// ParseString parses an SVF document held in memory.
func (p *Parser) ParseString(input string) (*File, error) {
	f, err := p.parser.ParseString("", input)
	if err != nil {
		return nil, fmt.Errorf("svf: %w", err)
	}
	return f, nil
}

// ParseFile parses the SVF document at path on fs.
func (p *Parser) ParseFile(fs afero.Fs, path string) (*File, error) {
	file, err := fs.Open(path)
	if err != nil {
		return nil, fmt.Errorf("svf: open: %w", err)
	}
	defer file.Close()

	return p.Parse(path, file)
}
