package render

import (
	"reflect"
	"strings"
	"text/template"
	"unicode"
	"unicode/utf8"
)

func funcMap() template.FuncMap {
	return template.FuncMap{
		// Text
		"capitalize": capitalize,
		"upper":      strings.ToUpper,
		"lower":      strings.ToLower,
		"join":       join,
		"truncate":   truncate,

		// Arithmetic
		"add": add,
		"sub": sub,
		"inc": inc,
		"dec": dec,
		"mod": mod,

		// Logic
		"repeat": repeat,
		"isSet":  isSet,
	}
}

// capitalize upper-cases the first rune of s.
func capitalize(s string) string {
	r, size := utf8.DecodeRuneInString(s)
	if r == utf8.RuneError {
		return s
	}
	return string(unicode.ToUpper(r)) + s[size:]
}

// join joins tokens with sep.
func join(sep string, tokens []string) string {
	return strings.Join(tokens, sep)
}

// truncate keeps the first n tokens.
func truncate(n int, tokens []string) []string {
	if n < 0 {
		return []string{}
	}
	if n >= len(tokens) {
		return tokens
	}
	return tokens[:n]
}

// add returns a + b.
func add(a, b int) int {
	return a + b
}

// sub returns a - b.
func sub(a, b int) int {
	return a - b
}

// inc returns i + 1.
func inc(i int) int {
	return i + 1
}

// dec returns i - 1.
func dec(i int) int {
	return i - 1
}

// mod returns a % b. Returns 0 if b is 0.
func mod(a, b int) int {
	if b == 0 {
		return 0
	}
	return a % b
}

// repeat returns a slice of integers from 0 to count-1.
func repeat(count int) []int {
	if count < 0 {
		return []int{}
	}
	s := make([]int, count)
	for i := 0; i < count; i++ {
		s[i] = i
	}
	return s
}

// isSet returns true if a value is not its zero value.
func isSet(val any) bool {
	v := reflect.ValueOf(val)
	if !v.IsValid() {
		return false
	}
	return !v.IsZero()
}
