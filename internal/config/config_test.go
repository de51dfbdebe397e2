package config

import (
	"testing"
	"time"
)

func TestParseDefaults(t *testing.T) {
	c, err := Parse()
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if c.Port != "8080" {
		t.Fatalf("expected port 8080, got %s", c.Port)
	}
	if c.RoomIdleTTL != 2*time.Hour || c.JanitorInterval != 5*time.Minute {
		t.Fatalf("unexpected janitor settings %v %v", c.RoomIdleTTL, c.JanitorInterval)
	}
	if c.ArchiveDriver != ArchiveNone || c.DuelSameWord {
		t.Fatalf("unexpected defaults %+v", c)
	}
	if !c.AllowsOrigin("http://example.com") {
		t.Fatal("default origins should allow everything")
	}
}

func TestParseOverrides(t *testing.T) {
	t.Setenv("PORT", "3000")
	t.Setenv("DUEL_SAME_WORD", "true")
	t.Setenv("ROOM_IDLE_TTL", "30m")
	t.Setenv("ALLOWED_ORIGINS", "http://a.test,http://b.test")
	t.Setenv("ARCHIVE_DRIVER", "sqlite")
	t.Setenv("SEND_BUFFER", "8")
	t.Setenv("ALLOWED_WORDS_FILE", "/srv/guesses.txt")

	c, err := Parse()
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if c.Port != "3000" || !c.DuelSameWord || c.RoomIdleTTL != 30*time.Minute || c.SendBuffer != 8 {
		t.Fatalf("overrides not applied: %+v", c)
	}
	if c.ArchiveDriver != ArchiveSQLite || c.ArchivePath != "./data/results.db" {
		t.Fatalf("unexpected archive settings %s %s", c.ArchiveDriver, c.ArchivePath)
	}
	if c.AllowedWordsFile != "/srv/guesses.txt" {
		t.Fatalf("unexpected guess list %q", c.AllowedWordsFile)
	}
	if !c.AllowsOrigin("http://b.test") || c.AllowsOrigin("http://c.test") {
		t.Fatalf("origin list not honoured: %v", c.AllowedOrigins)
	}
}

func TestParseRejectsBadValues(t *testing.T) {
	cases := map[string]string{
		"LOG_FORMAT":     "xml",
		"ARCHIVE_DRIVER": "postgres",
		"ROOM_IDLE_TTL":  "0s",
		"SEND_BUFFER":    "0",
		"WRITE_TIMEOUT":  "soon",
	}
	for key, val := range cases {
		t.Run(key, func(t *testing.T) {
			t.Setenv(key, val)
			if _, err := Parse(); err == nil {
				t.Fatalf("expected an error for %s=%s", key, val)
			}
		})
	}
}
