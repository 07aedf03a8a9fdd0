package cmd

import "testing"

func TestLevenshtein(t *testing.T) {
	tests := []struct {
		a, b string
		want int
	}{
		{"", "", 0},
		{"abc", "", 3},
		{"", "abc", 3},
		{"jobs", "jobs", 0},
		{"jbos", "jobs", 2},
		{"workspace", "workspaces", 1},
		{"kitten", "sitting", 3},
		{"åäö", "aäö", 1},
	}
	for _, tt := range tests {
		if got := levenshtein(tt.a, tt.b); got != tt.want {
			t.Errorf("levenshtein(%q, %q) = %d, want %d", tt.a, tt.b, got, tt.want)
		}
	}
}

func TestSuggestCommand(t *testing.T) {
	commands := []string{"auth", "status", "repos", "workspaces", "ws", "jobs", "run", "upload"}
	tests := []struct {
		input string
		want  string
	}{
		{"workspace", "workspaces"},
		{"JOB", "jobs"},
		{"uplod", "upload"},
		{"rnu", "run"},
		{"completely-unrelated", ""},
		{"", ""},
	}
	for _, tt := range tests {
		if got := suggestCommand(tt.input, commands); got != tt.want {
			t.Errorf("suggestCommand(%q) = %q, want %q", tt.input, got, tt.want)
		}
	}
}

func TestSuggestFlag(t *testing.T) {
	flagNames := []string{"--repo", "--output", "--dry-run", "--params-file"}
	tests := []struct {
		input string
		want  string
	}{
		{"--ouptut", "--output"},
		{"-repo", "--repo"},
		{"--dryrun", "--dry-run"},
		{"--zzzzzzzzzz", ""},
	}
	for _, tt := range tests {
		if got := suggestFlag(tt.input, flagNames); got != tt.want {
			t.Errorf("suggestFlag(%q) = %q, want %q", tt.input, got, tt.want)
		}
	}
}
