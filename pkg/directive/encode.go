package directive

import (
	"encoding/json"
	"fmt"
	"math"
	"strings"
)

// Encode renders args in the generator's micro-syntax: bare keys and escape-token strings, keys sorted.
// Keys that are not identifiers, and strings that contain the escape token, fall back to double quotes.
func (s Syntax) Encode(args ArgumentMap) (string, error) {
	var b strings.Builder
	for i, key := range args.Keys() {
		if i > 0 {
			b.WriteByte(',')
		}
		if s.isBareKey(key) {
			b.WriteString(key)
		} else if err := s.writeString(&b, key); err != nil {
			return "", err
		}
		b.WriteByte(':')
		if err := s.writeValue(&b, args[key]); err != nil {
			return "", fmt.Errorf("argument %q: %w", key, err)
		}
	}
	return b.String(), nil
}

// Format renders a complete directive, markers included.
func (s Syntax) Format(name string, args ArgumentMap) (string, error) {
	if name == "" || name != strings.TrimSpace(name) || strings.Contains(name, "{") {
		return "", fmt.Errorf("invalid operation name %q", name)
	}
	body, err := s.Encode(args)
	if err != nil {
		return "", err
	}
	return s.StartMarker + callPrefix + name + "{" + body + "}" + s.EndMarker, nil
}

// Canonical renders args as the body of a standard JSON object (quoted keys and strings), keys sorted.
func Canonical(args ArgumentMap) (string, error) {
	var b strings.Builder
	for i, key := range args.Keys() {
		if i > 0 {
			b.WriteByte(',')
		}
		k, err := json.Marshal(key)
		if err != nil {
			return "", err
		}
		v, err := json.Marshal(args[key])
		if err != nil {
			return "", fmt.Errorf("argument %q: %w", key, err)
		}
		b.Write(k)
		b.WriteByte(':')
		b.Write(v)
	}
	return b.String(), nil
}

func (s Syntax) writeValue(b *strings.Builder, v Value) error {
	switch v.Kind() {
	case KindNumber:
		n, _ := v.Num()
		if math.IsNaN(n) || math.IsInf(n, 0) {
			return fmt.Errorf("number %v cannot be encoded", n)
		}
		b.WriteString(v.String())
		return nil
	case KindBool:
		b.WriteString(v.String())
		return nil
	}
	str, _ := v.Str()
	return s.writeString(b, str)
}

func (s Syntax) writeString(b *strings.Builder, str string) error {
	escaped := strings.ReplaceAll(str, `\`, `\\`)
	// the closing token must be the first occurrence after the opening one
	if s.EscapeToken != "" && strings.Index(escaped+s.EscapeToken, s.EscapeToken) == len(escaped) {
		b.WriteString(s.EscapeToken)
		b.WriteString(escaped)
		b.WriteString(s.EscapeToken)
		return nil
	}
	q, err := json.Marshal(str)
	if err != nil {
		return err
	}
	b.Write(q)
	return nil
}

func (s Syntax) isBareKey(key string) bool {
	if s.EscapeToken != "" && strings.HasPrefix(key, s.EscapeToken) {
		return false
	}
	return isIdentifier(key)
}

func isIdentifier(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		ch := s[i]
		if ch >= 128 {
			return false
		}
		if i == 0 && !isIdentStart[ch] {
			return false
		}
		if !isIdentPart[ch] {
			return false
		}
	}
	return true
}
