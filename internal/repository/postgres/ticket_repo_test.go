package postgres

import (
	"errors"
	"testing"

	"github.com/Harsh-BH/alsit/internal/domain"
)

func TestStoredLanguage(t *testing.T) {
	for _, lang := range domain.Languages() {
		got, err := storedLanguage(1, lang.String())
		if err != nil || got != lang {
			t.Errorf("%s: got %v, %v", lang, got, err)
		}
	}
}

func TestStoredLanguage_Corrupt(t *testing.T) {
	_, err := storedLanguage(42, "Fortran")
	if !errors.Is(err, domain.ErrInternal) {
		t.Errorf("expected ErrInternal, got %v", err)
	}
	if !errors.Is(err, domain.ErrUnknownLanguage) {
		t.Errorf("expected the parse error to be kept, got %v", err)
	}
	if errors.Is(err, domain.ErrDatabaseUnavailable) {
		t.Error("corrupt data must not look like a transient outage")
	}
}
