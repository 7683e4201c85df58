package text

import (
	"errors"
	"testing"
)

func TestClean(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    string
		wantErr error
	}{
		{name: "passthrough", input: "Hello world", want: "Hello world"},
		{name: "collapses whitespace", input: "  Hello\r\n\t world  ", want: "Hello world"},
		{name: "drops control characters", input: "Hel\x00lo\x07", want: "Hello"},
		{name: "drops zero-width and BOM", input: "\ufeff水\u200bを\u200cください", want: "水をください"},
		{name: "keeps punctuation", input: "Tom & Jerry?", want: "Tom & Jerry?"},
		{name: "empty", input: "", wantErr: ErrEmptyText},
		{name: "whitespace only", input: " \n\t ", wantErr: ErrEmptyText},
		{name: "only invisible", input: "\u200b\x01", wantErr: ErrEmptyText},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Clean(tt.input)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("Clean(%q) error = %v; want %v", tt.input, err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("Clean(%q) unexpected error: %v", tt.input, err)
			}
			if got != tt.want {
				t.Errorf("Clean(%q) = %q; want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestCollapseWhitespace(t *testing.T) {
	got := CollapseWhitespace("  hello\n\t world  again ")
	if got != "hello world again" {
		t.Errorf("CollapseWhitespace = %q", got)
	}
}
