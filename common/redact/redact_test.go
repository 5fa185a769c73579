package redact

import "testing"

func TestString(t *testing.T) {
	tests := []struct {
		name   string
		in     string
		values []string
		want   string
	}{
		{
			name:   "single secret",
			in:     "auth failed for key sk-abc123",
			values: []string{"sk-abc123"},
			want:   "auth failed for key [REDACTED]",
		},
		{
			name:   "multiple occurrences",
			in:     "token tok999 retried with tok999",
			values: []string{"tok999"},
			want:   "token [REDACTED] retried with [REDACTED]",
		},
		{
			name:   "short values skipped",
			in:     "sent ok",
			values: []string{"ok"},
			want:   "sent ok",
		},
		{
			name: "no values",
			in:   "nothing to hide",
			want: "nothing to hide",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := String(tt.in, tt.values...); got != tt.want {
				t.Errorf("String() = %q, want %q", got, tt.want)
			}
		})
	}
}
