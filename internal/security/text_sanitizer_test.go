package security

import (
	"strings"
	"testing"
)

func TestPlainText(t *testing.T) {
	sanitizer := NewTextSanitizer()

	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"プレーンテキストはそのまま", "山田太郎", "山田太郎"},
		{"前後の空白を除去", "  Alice  ", "Alice"},
		{"太字タグを除去", "<b>Alice</b>", "Alice"},
		{"アンパサンドを保持", "Tom & Jerry", "Tom & Jerry"},
		{"空文字列", "", ""},
		{"タグのみは空になる", "<img src=x onerror=alert(1)>", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := sanitizer.PlainText(tt.input); got != tt.want {
				t.Errorf("PlainText(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestPlainText_RemovesScript(t *testing.T) {
	sanitizer := NewTextSanitizer()

	got := sanitizer.PlainText(`Bob<script>alert("xss")</script>`)
	if strings.Contains(got, "<script") {
		t.Errorf("script tag survived: %q", got)
	}
	if !strings.HasPrefix(got, "Bob") {
		t.Errorf("text content lost: %q", got)
	}
}

func TestPlainText_Idempotent(t *testing.T) {
	sanitizer := NewTextSanitizer()

	inputs := []string{"Alice", "<i>ja</i>", "a & b", `<a href="https://example.com">link</a>`}
	for _, in := range inputs {
		first := sanitizer.PlainText(in)
		if second := sanitizer.PlainText(first); second != first {
			t.Errorf("PlainText not idempotent for %q: %q then %q", in, first, second)
		}
	}
}

func TestTextSanitizerInterface(t *testing.T) {
	var _ TextSanitizerService = NewTextSanitizer()
}
