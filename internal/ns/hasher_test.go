package ns_test

import (
	"fmt"
	"strings"
	"testing"

	"noteshare-go/internal/ns"
)

func TestDeriveName_Length(t *testing.T) {
	tests := []struct {
		category ns.Category
		want     int
	}{
		{ns.CategoryNote, 8},
		{ns.CategoryCSS, 20},
		{ns.CategoryFile, 20},
	}
	for _, tt := range tests {
		t.Run(string(tt.category), func(t *testing.T) {
			got := ns.DeriveName([]byte("<p>hello</p>"), tt.category)
			if len(got) != tt.want {
				t.Errorf("len(DeriveName()) = %d, want %d", len(got), tt.want)
			}
			if strings.Trim(got, "0123456789abcdefghijklmnopqrstuvwxyz") != "" {
				t.Errorf("DeriveName() = %q contains non base-36 characters", got)
			}
		})
	}
}

func TestDeriveName_Deterministic(t *testing.T) {
	content := []byte("same bytes every time")
	first := ns.DeriveName(content, ns.CategoryFile)
	for i := 0; i < 5; i++ {
		if got := ns.DeriveName(content, ns.CategoryFile); got != first {
			t.Fatalf("DeriveName() = %q on call %d, want %q", got, i, first)
		}
	}
	if ns.DeriveName([]byte("same bytes every time!"), ns.CategoryFile) == first {
		t.Error("DeriveName() returned the same name for different content")
	}
}

func TestDeriveName_EmptyContent(t *testing.T) {
	if got := ns.DeriveName(nil, ns.CategoryNote); len(got) != 8 {
		t.Errorf("DeriveName(nil) = %q, want 8 characters", got)
	}
}

func TestDeriveName_NoCollisions(t *testing.T) {
	for _, category := range []ns.Category{ns.CategoryNote, ns.CategoryFile} {
		t.Run(string(category), func(t *testing.T) {
			seen := make(map[string]int, 10000)
			for i := 0; i < 10000; i++ {
				name := ns.DeriveName([]byte(fmt.Sprintf("note body %d", i)), category)
				if j, ok := seen[name]; ok {
					t.Fatalf("inputs %d and %d both derive %q", j, i, name)
				}
				seen[name] = i
			}
		})
	}
}
