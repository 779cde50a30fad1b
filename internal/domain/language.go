package domain

import "fmt"

// Language is a supported submission language.
type Language int

const (
	LangC Language = iota
	LangCpp
	LangRust
)

type languageInfo struct {
	name      string
	extension string
}

// languageTable is the single place a new language has to be registered.
var languageTable = map[Language]languageInfo{
	LangC:    {name: "C", extension: ".c"},
	LangCpp:  {name: "Cpp", extension: ".cpp"},
	LangRust: {name: "Rust", extension: ".rs"},
}

// Languages returns every supported language in declaration order.
func Languages() []Language {
	out := make([]Language, 0, len(languageTable))
	for l := LangC; int(l) < len(languageTable); l++ {
		out = append(out, l)
	}
	return out
}

// IsValid reports whether l is a member of the supported set.
func (l Language) IsValid() bool {
	_, ok := languageTable[l]
	return ok
}

// String returns the canonical name, e.g. "Rust".
func (l Language) String() string {
	if info, ok := languageTable[l]; ok {
		return info.name
	}
	return fmt.Sprintf("Language(%d)", int(l))
}

// Extension returns the source file extension including the dot.
func (l Language) Extension() string {
	return languageTable[l].extension
}

// ParseLanguage is the inverse of String.
func ParseLanguage(name string) (Language, error) {
	for l, info := range languageTable {
		if info.name == name {
			return l, nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownLanguage, name)
}

func (l Language) MarshalText() ([]byte, error) {
	if !l.IsValid() {
		return nil, fmt.Errorf("%w: %d", ErrUnknownLanguage, int(l))
	}
	return []byte(l.String()), nil
}

func (l *Language) UnmarshalText(text []byte) error {
	parsed, err := ParseLanguage(string(text))
	if err != nil {
		return err
	}
	*l = parsed
	return nil
}
