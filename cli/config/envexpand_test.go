package config

import "testing"

func TestExpandEnv(t *testing.T) {
	t.Setenv("FEED_NAME", "products")
	t.Setenv("FEED_EMPTY", "")
	t.Setenv("PG_USER", "exporter")
	t.Setenv("PG_PASS", "secret")

	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"set", "name: ${FEED_NAME}", "name: products"},
		{"unset", "name: ${FEED_UNSET_12345}", "name: "},
		{"default when unset", "path: ${FEED_UNSET_12345:-out}", "path: out"},
		{"default when empty", "path: ${FEED_EMPTY:-out}", "path: out"},
		{"default ignored when set", "name: ${FEED_NAME:-other}", "name: products"},
		{"multiple", "postgres://${PG_USER}:${PG_PASS}@db/shop", "postgres://exporter:secret@db/shop"},
		{"no vars", "batch_size: 500", "batch_size: 500"},
		{"bare dollar untouched", "price: $5", "price: $5"},
		{
			"nested yaml",
			"catalog:\n  driver: postgres\n  dsn: ${PG_USER:-x}@db",
			"catalog:\n  driver: postgres\n  dsn: exporter@db",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ExpandEnv(tt.input); got != tt.want {
				t.Errorf("ExpandEnv(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}
