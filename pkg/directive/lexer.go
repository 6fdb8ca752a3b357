package directive

import (
	"encoding/json"
	"regexp"
	"strconv"
	"strings"
	"unicode/utf16"
	"unicode/utf8"
)

var (
	isWhitespace     [128]bool
	isIdentStart     [128]bool
	isIdentPart      [128]bool
	isNumberPart     [128]bool
	singleCharTokens [128]TokenType
)

var numberLiteral = regexp.MustCompile(`^-?(0|[1-9][0-9]*)(\.[0-9]+)?([eE][+-]?[0-9]+)?$`)

func init() {
	for i := 0; i < 128; i++ {
		ch := byte(i)
		isWhitespace[i] = ch == ' ' || ch == '\t' || ch == '\r' || ch == '\n' || ch == '\f'
		letter := ('a' <= ch && ch <= 'z') || ('A' <= ch && ch <= 'Z') || ch == '_'
		digit := '0' <= ch && ch <= '9'
		isIdentStart[i] = letter
		isIdentPart[i] = letter || digit
		isNumberPart[i] = digit || ch == '-' || ch == '+' || ch == '.' || ch == 'e' || ch == 'E'
		singleCharTokens[i] = ILLEGAL
	}
	singleCharTokens[':'] = COLON
	singleCharTokens[','] = COMMA
	singleCharTokens['{'] = LBRACE
	singleCharTokens['}'] = RBRACE
	singleCharTokens['['] = LBRACKET
	singleCharTokens[']'] = RBRACKET
}

// Lexer splits an argument body into tokens. Text between two escape tokens is a string
// literal taken verbatim, so colons, commas and braces inside it never act as syntax.
type Lexer struct {
	input  string
	escape string
	pos    int
}

// NewLexer creates a Lexer over body using escape as the string quoting token.
func NewLexer(body, escape string) *Lexer {
	return &Lexer{input: body, escape: escape}
}

// Next returns the next token. Lexical errors are reported as ILLEGAL tokens whose Value holds the reason.
func (l *Lexer) Next() Token {
	l.skipWhitespace()
	if l.pos >= len(l.input) {
		return Token{Type: EOF, Offset: l.pos}
	}

	start := l.pos
	if l.escape != "" && strings.HasPrefix(l.input[l.pos:], l.escape) {
		return l.readEscapedString()
	}

	ch := l.input[l.pos]
	switch {
	case ch == '"':
		return l.readQuotedString()
	case ch < 128 && singleCharTokens[ch] != ILLEGAL:
		l.pos++
		return Token{Type: singleCharTokens[ch], Value: string(ch), Raw: string(ch), Offset: start}
	case ch == '-' || ('0' <= ch && ch <= '9'):
		return l.readNumber()
	case ch < 128 && isIdentStart[ch]:
		return l.readIdentifier()
	}

	_, size := utf8.DecodeRuneInString(l.input[l.pos:])
	l.pos += size
	raw := l.input[start:l.pos]
	return Token{Type: ILLEGAL, Value: "unexpected character", Raw: raw, Offset: start}
}

func (l *Lexer) skipWhitespace() {
	for l.pos < len(l.input) {
		ch := l.input[l.pos]
		if ch >= 128 || !isWhitespace[ch] {
			return
		}
		l.pos++
	}
}

func (l *Lexer) readEscapedString() Token {
	start := l.pos
	contentStart := l.pos + len(l.escape)
	end := strings.Index(l.input[contentStart:], l.escape)
	if end == -1 {
		l.pos = len(l.input)
		return Token{Type: ILLEGAL, Value: "unterminated string", Raw: l.input[start:], Offset: start}
	}
	l.pos = contentStart + end + len(l.escape)
	raw := l.input[start:l.pos]
	content, ok := unescape(l.input[contentStart : contentStart+end])
	if !ok {
		return Token{Type: ILLEGAL, Value: "invalid escape sequence", Raw: raw, Offset: start}
	}
	return Token{Type: STRING, Value: content, Raw: raw, Offset: start}
}

// unescape resolves JSON backslash escapes in s. Every other byte, including a bare
// double quote or a raw newline, is kept as written.
func unescape(s string) (string, bool) {
	if strings.IndexByte(s, '\\') < 0 {
		return s, true
	}
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); i++ {
		if s[i] != '\\' {
			b.WriteByte(s[i])
			continue
		}
		i++
		if i == len(s) {
			return "", false
		}
		switch s[i] {
		case '"', '\\', '/':
			b.WriteByte(s[i])
		case 'b':
			b.WriteByte('\b')
		case 'f':
			b.WriteByte('\f')
		case 'n':
			b.WriteByte('\n')
		case 'r':
			b.WriteByte('\r')
		case 't':
			b.WriteByte('\t')
		case 'u':
			r, ok := hexRune(s[i+1:])
			if !ok {
				return "", false
			}
			i += 4
			if utf16.IsSurrogate(r) {
				// a high surrogate pairs with an immediately following \uXXXX
				if i+2 < len(s) && s[i+1] == '\\' && s[i+2] == 'u' {
					if r2, ok := hexRune(s[i+3:]); ok {
						if dec := utf16.DecodeRune(r, r2); dec != utf8.RuneError {
							b.WriteRune(dec)
							i += 6
							continue
						}
					}
				}
				r = utf8.RuneError
			}
			b.WriteRune(r)
		default:
			return "", false
		}
	}
	return b.String(), true
}

func hexRune(s string) (rune, bool) {
	if len(s) < 4 {
		return 0, false
	}
	n, err := strconv.ParseUint(s[:4], 16, 32)
	if err != nil {
		return 0, false
	}
	return rune(n), true
}

func (l *Lexer) readQuotedString() Token {
	start := l.pos
	i := l.pos + 1
	for i < len(l.input) {
		switch l.input[i] {
		case '\\':
			i += 2
			continue
		case '"':
			raw := l.input[start : i+1]
			l.pos = i + 1
			var s string
			if err := json.Unmarshal([]byte(raw), &s); err != nil {
				return Token{Type: ILLEGAL, Value: "invalid string literal", Raw: raw, Offset: start}
			}
			return Token{Type: STRING, Value: s, Raw: raw, Offset: start}
		}
		i++
	}
	l.pos = len(l.input)
	return Token{Type: ILLEGAL, Value: "unterminated string", Raw: l.input[start:], Offset: start}
}

func (l *Lexer) readNumber() Token {
	start := l.pos
	for l.pos < len(l.input) {
		ch := l.input[l.pos]
		if ch >= 128 || !isNumberPart[ch] {
			break
		}
		l.pos++
	}
	raw := l.input[start:l.pos]
	if !numberLiteral.MatchString(raw) {
		return Token{Type: ILLEGAL, Value: "invalid number literal", Raw: raw, Offset: start}
	}
	return Token{Type: NUMBER, Value: raw, Raw: raw, Offset: start}
}

func (l *Lexer) readIdentifier() Token {
	start := l.pos
	for l.pos < len(l.input) {
		ch := l.input[l.pos]
		if ch >= 128 || !isIdentPart[ch] {
			break
		}
		l.pos++
	}
	word := l.input[start:l.pos]
	switch word {
	case "true", "false":
		return Token{Type: BOOLEAN, Value: word, Raw: word, Offset: start}
	case "null":
		return Token{Type: NULL, Value: word, Raw: word, Offset: start}
	}
	return Token{Type: IDENTIFIER, Value: word, Raw: word, Offset: start}
}
