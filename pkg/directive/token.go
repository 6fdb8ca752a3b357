package directive

import "fmt"

// TokenType identifies a lexical token in an argument body.
type TokenType int

const (
	EOF TokenType = iota
	ILLEGAL

	IDENTIFIER // bare key
	STRING     // <escape>text<escape> or "text"
	NUMBER     // -12, 3.5, 1e3
	BOOLEAN    // true, false
	NULL       // null

	COLON    // :
	COMMA    // ,
	LBRACE   // {
	RBRACE   // }
	LBRACKET // [
	RBRACKET // ]
)

var tokenNames = [...]string{
	EOF:        "EOF",
	ILLEGAL:    "ILLEGAL",
	IDENTIFIER: "IDENTIFIER",
	STRING:     "STRING",
	NUMBER:     "NUMBER",
	BOOLEAN:    "BOOLEAN",
	NULL:       "NULL",
	COLON:      "COLON",
	COMMA:      "COMMA",
	LBRACE:     "LBRACE",
	RBRACE:     "RBRACE",
	LBRACKET:   "LBRACKET",
	RBRACKET:   "RBRACKET",
}

func (t TokenType) String() string {
	if int(t) < len(tokenNames) && int(t) >= 0 {
		return tokenNames[t]
	}
	return fmt.Sprintf("TokenType(%d)", int(t))
}

// Token is a lexeme with its decoded value and byte offset in the body.
type Token struct {
	Type   TokenType
	Value  string // decoded text: unquoted string content, identifier, number literal
	Raw    string // source text, including quotes or escape tokens
	Offset int
}

func (t Token) String() string {
	if t.Type == EOF {
		return "end of input"
	}
	return fmt.Sprintf("%s %q at offset %d", t.Type, t.Raw, t.Offset)
}
