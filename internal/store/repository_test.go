package store

import (
	"strings"
	"testing"
)

func TestRandomPathShape(t *testing.T) {
	seen := map[string]bool{}
	for i := 0; i < 50; i++ {
		p, err := randomPath()
		if err != nil {
			t.Fatalf("randomPath: %v", err)
		}
		if len(p) != pathLength {
			t.Fatalf("path %q has length %d, want %d", p, len(p), pathLength)
		}
		if strings.ToLower(p) != p {
			t.Fatalf("path %q is not lowercase", p)
		}
		for _, r := range p {
			if !strings.ContainsRune(pathAlphabet, r) {
				t.Fatalf("path %q contains character %q outside alphabet", p, r)
			}
		}
		seen[p] = true
	}
	if len(seen) < 45 {
		t.Fatalf("expected mostly-unique paths across 50 draws, got %d distinct", len(seen))
	}
}

func TestIsUniqueViolation(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"sqlite", errFromString("UNIQUE constraint failed: cameras.path"), true},
		{"postgres", errFromString(`duplicate key value violates unique constraint "idx_cameras_path"`), true},
		{"unrelated", errFromString("connection refused"), false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := isUniqueViolation(tc.err); got != tc.want {
				t.Errorf("isUniqueViolation(%v) = %v, want %v", tc.err, got, tc.want)
			}
		})
	}
}

type stringError string

func (e stringError) Error() string { return string(e) }

func errFromString(s string) error {
	if s == "" {
		return nil
	}
	return stringError(s)
}
