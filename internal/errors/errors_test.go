package errors

import (
	"bytes"
	stderrors "errors"
	"fmt"
	"io/fs"
	"strings"
	"testing"
)

func TestNew(t *testing.T) {
	tests := []struct {
		name    string
		code    string
		wantMsg string
		wantCat Category
	}{
		{"config error", "E100", "Invalid configuration file", CategoryConfig},
		{"storage error", "E120", "Storage unavailable", CategoryStorage},
		{"cache error", "E121", "Cache storage unavailable", CategoryCache},
		{"cli error", "E141", "Invalid state patch", CategoryCLI},
		{"unknown error code", "E999", "Unknown error", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := New(tt.code)
			if err.Message != tt.wantMsg {
				t.Errorf("Message = %q, want %q", err.Message, tt.wantMsg)
			}
			if err.Category != tt.wantCat {
				t.Errorf("Category = %q, want %q", err.Category, tt.wantCat)
			}
			if err.Code != tt.code {
				t.Errorf("Code = %q, want %q", err.Code, tt.code)
			}
		})
	}
}

func TestRegistryCodesAreUnique(t *testing.T) {
	seen := make(map[string]string)
	for code, tmpl := range registry {
		if tmpl.Message == "" || tmpl.Category == "" {
			t.Errorf("%s: incomplete template %+v", code, tmpl)
		}
		if other, ok := seen[tmpl.Message]; ok {
			t.Errorf("%s and %s share message %q", code, other, tmpl.Message)
		}
		seen[tmpl.Message] = code
	}
}

func TestErrorString(t *testing.T) {
	err := New("E120").Wrap(fs.ErrNotExist)
	if got := err.Error(); got != "E120: Storage unavailable: file does not exist" {
		t.Errorf("Error() = %q", got)
	}
	if got := Newf(CategoryCLI, "bad %s", "thing").Error(); got != "bad thing" {
		t.Errorf("Error() = %q", got)
	}
}

func TestWrapAndUnwrap(t *testing.T) {
	err := fmt.Errorf("loading: %w", New("E100").Wrap(fs.ErrPermission))

	if !HasCode(err, "E100") {
		t.Error("HasCode(E100) = false")
	}
	if HasCode(err, "E101") {
		t.Error("HasCode(E101) = true")
	}
	if HasCode(fs.ErrPermission, "E100") {
		t.Error("plain error has a code")
	}
	if !stderrors.Is(err, fs.ErrPermission) {
		t.Error("errors.Is does not reach the cause")
	}
}

func TestFromError(t *testing.T) {
	if FromError(nil, "E100") != nil {
		t.Error("FromError(nil) != nil")
	}

	coded := New("E103")
	if got := FromError(fmt.Errorf("ctx: %w", coded), "E100"); got != coded {
		t.Errorf("FromError kept wrapper %v, want the coded error", got)
	}

	got := FromError(fs.ErrClosed, "E120")
	if got.Code != "E120" || got.Wrapped != fs.ErrClosed {
		t.Errorf("FromError = %+v", got)
	}
}

func TestFormat(t *testing.T) {
	DisableColors()
	defer EnableColors()

	err := New("E103").
		WithDetail(`Unknown storage driver "etcd"`).
		WithSuggestion("Use one of memory, sqlite, postgres, redis, s3")

	out := err.Format()
	for _, want := range []string{
		"ERROR E103: Unknown storage driver",
		`  Unknown storage driver "etcd"`,
		"  Hint: Use one of memory, sqlite, postgres, redis, s3",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("Format() missing %q:\n%s", want, out)
		}
	}

	if got := err.FormatCompact(); got != `E103: Unknown storage driver (Unknown storage driver "etcd")` {
		t.Errorf("FormatCompact() = %q", got)
	}
}

func TestFprint(t *testing.T) {
	DisableColors()
	defer EnableColors()

	var buf bytes.Buffer
	Fprint(&buf, fmt.Errorf("wrapped: %w", New("E140")))
	if !strings.Contains(buf.String(), "ERROR E140: Configuration file not found") {
		t.Errorf("coded output = %q", buf.String())
	}

	buf.Reset()
	Fprint(&buf, fs.ErrNotExist)
	if got := buf.String(); got != "\nERROR: file does not exist\n\n" {
		t.Errorf("plain output = %q", got)
	}
}

func TestWrapText(t *testing.T) {
	lines := wrapText(strings.Repeat("word ", 30), 20)
	for _, l := range lines {
		if len(l) > 20 {
			t.Errorf("line %q longer than 20", l)
		}
	}
	if wrapText("", 10) != nil {
		t.Error("wrapText(\"\") != nil")
	}

	// Width counts runes, not bytes.
	got := wrapText("缓存 版本 已激活", 5)
	if len(got) != 2 || got[0] != "缓存 版本" || got[1] != "已激活" {
		t.Errorf("wrapText(chinese) = %q", got)
	}
	if got := wrapText("superlongword x", 4); len(got) != 2 || got[0] != "superlongword" {
		t.Errorf("wrapText(long word) = %q", got)
	}
}
