package uploads

import (
	"errors"
	"strings"
	"testing"
)

func mustKey(t *testing.T) string {
	t.Helper()

	k, err := GenerateKey()
	if err != nil {
		t.Fatalf("GenerateKey: %v", err)
	}
	return k
}

func TestValidateKey(t *testing.T) {
	tests := []struct {
		name    string
		key     string
		wantErr bool
	}{
		{name: "missing prefix", key: "avatars/x.png", wantErr: true},
		{name: "traversal", key: "uploads/../secrets", wantErr: true},
		{name: "double slash", key: "uploads//x", wantErr: true},
		{name: "oversized", key: "uploads/" + strings.Repeat("a", 300), wantErr: true},
		{name: "plain key", key: "uploads/report.pdf", wantErr: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := validateKey(tt.key)
			if tt.wantErr && !errors.Is(err, ErrInvalidKey) {
				t.Fatalf("err = %v, want ErrInvalidKey", err)
			}
			if !tt.wantErr && err != nil {
				t.Fatalf("validateKey(%q): %v", tt.key, err)
			}
		})
	}
}

func TestGenerateKey(t *testing.T) {
	seen := make(map[string]bool)

	for range 100 {
		k := mustKey(t)
		if err := validateKey(k); err != nil {
			t.Fatalf("generated key %q failed validation: %v", k, err)
		}
		if seen[k] {
			t.Fatalf("duplicate key %q", k)
		}
		seen[k] = true
	}
}
