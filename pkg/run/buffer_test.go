package run

import "testing"

func TestLogBufferAppend(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		initial  string
		incoming []string
		want     string
	}{
		{
			name:     "first_content_is_taken_as_is",
			incoming: []string{"line 1"},
			want:     "line 1",
		},
		{
			name:     "snapshot_replaces_buffer",
			incoming: []string{"line 1", "line 1\nline 2"},
			want:     "line 1\nline 2",
		},
		{
			name:     "delta_is_appended_with_newline",
			incoming: []string{"line 1", "line 2"},
			want:     "line 1\nline 2",
		},
		{
			name:     "empty_content_is_ignored",
			incoming: []string{"line 1", ""},
			want:     "line 1",
		},
		{
			name:     "seeded_buffer_accepts_snapshot",
			initial:  "line 1",
			incoming: []string{"line 1\nline 2"},
			want:     "line 1\nline 2",
		},
		{
			name:     "identical_content_is_idempotent",
			incoming: []string{"line 1", "line 1"},
			want:     "line 1",
		},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			b := NewLogBuffer(tc.initial)
			for _, content := range tc.incoming {
				b.Append(content)
			}
			if got := b.String(); got != tc.want {
				t.Fatalf("got %q, want %q", got, tc.want)
			}
		})
	}
}
