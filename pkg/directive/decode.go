package directive

import (
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
)

const decodeLogPrefix = "directive:decode"

// maxExactInt bounds the integers a float64 holds without rounding.
const maxExactInt = 1 << 53

var errInexactInteger = errors.New("integer outside the exactly representable range")

// Decode parses an argument body using the default escape token.
func Decode(body string) (ArgumentMap, error) {
	return DefaultSyntax().Decode(body)
}

// Decode parses an argument body into an ArgumentMap.
//
// The body is a comma-separated list of key:value pairs. Keys are bare identifiers or quoted
// strings; values are strings (between escape tokens or in double quotes), numbers or booleans.
// An empty body yields an empty map and a repeated key keeps its last value.
func (s Syntax) Decode(body string) (ArgumentMap, error) {
	p := &parser{lex: NewLexer(body, s.EscapeToken)}
	p.advance()
	args, err := p.parseBody()
	if err != nil {
		slog.Debug(fmt.Sprintf("%s - decode failed: %v", decodeLogPrefix, err))
		return nil, ArgumentDecodeError(body, err)
	}
	return args, nil
}

// DecodeDirective extracts the first directive in text and decodes its arguments.
func (s Syntax) DecodeDirective(text string) (*Call, error) {
	d, err := s.Extract(text)
	if err != nil {
		return nil, err
	}
	args, err := s.Decode(d.RawArgumentBody)
	if err != nil {
		return nil, err
	}
	return &Call{Name: d.OperationName, Arguments: args}, nil
}

type parser struct {
	lex *Lexer
	tok Token
}

func (p *parser) advance() {
	p.tok = p.lex.Next()
}

func (p *parser) parseBody() (ArgumentMap, error) {
	args := ArgumentMap{}
	if p.tok.Type == EOF {
		return args, nil
	}
	for {
		key, err := p.parseKey()
		if err != nil {
			return nil, err
		}
		if p.tok.Type != COLON {
			return nil, p.unexpected("':' after key " + strconv.Quote(key))
		}
		p.advance()
		val, err := p.parseValue()
		if err != nil {
			return nil, err
		}
		args[key] = val

		switch p.tok.Type {
		case EOF:
			return args, nil
		case COMMA:
			p.advance()
		default:
			return nil, p.unexpected("',' or end of arguments")
		}
	}
}

func (p *parser) parseKey() (string, error) {
	switch p.tok.Type {
	case IDENTIFIER, STRING:
		key := p.tok.Value
		p.advance()
		return key, nil
	case BOOLEAN, NULL:
		// keywords are plain names in key position
		key := p.tok.Raw
		p.advance()
		return key, nil
	case ILLEGAL:
		return "", p.illegal()
	}
	return "", p.unexpected("parameter name")
}

func (p *parser) parseValue() (Value, error) {
	tok := p.tok
	switch tok.Type {
	case STRING:
		p.advance()
		return String(tok.Value), nil
	case NUMBER:
		n, err := parseNumber(tok.Value)
		if err != nil {
			return Value{}, fmt.Errorf("invalid number %q at offset %d: %w", tok.Raw, tok.Offset, err)
		}
		p.advance()
		return Number(n), nil
	case BOOLEAN:
		p.advance()
		return Bool(tok.Value == "true"), nil
	case NULL:
		return Value{}, fmt.Errorf("null value at offset %d is not supported", tok.Offset)
	case LBRACE, LBRACKET:
		return Value{}, fmt.Errorf("nested value at offset %d is not supported", tok.Offset)
	case IDENTIFIER:
		return Value{}, fmt.Errorf("bare word %q at offset %d is not a value", tok.Raw, tok.Offset)
	case ILLEGAL:
		return Value{}, p.illegal()
	}
	return Value{}, p.unexpected("value")
}

func (p *parser) unexpected(want string) error {
	return fmt.Errorf("expected %s, found %s", want, p.tok)
}

func (p *parser) illegal() error {
	return fmt.Errorf("%s: %s", p.tok.Value, p.tok)
}

// parseNumber converts a number literal. Integer literals beyond ±2^53 are rejected
// rather than rounded; literals with a fraction or exponent follow float64 rounding.
func parseNumber(lit string) (float64, error) {
	if strings.ContainsAny(lit, ".eE") {
		return strconv.ParseFloat(lit, 64)
	}
	i, err := strconv.ParseInt(lit, 10, 64)
	if err != nil || i > maxExactInt || i < -maxExactInt {
		return 0, errInexactInteger
	}
	return float64(i), nil
}
