package channel

import "testing"

func TestLookupKnownChannel(t *testing.T) {
	cfg, err := Lookup("tech")
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}
	if cfg.Name != "Tech & Automation" || cfg.VoiceID == "" {
		t.Fatalf("unexpected channel config: %+v", cfg)
	}
}

func TestLookupUnknownChannel(t *testing.T) {
	if _, err := Lookup("cooking"); err == nil {
		t.Fatalf("expected unknown channel to fail")
	}
	if _, err := Lookup(""); err == nil {
		t.Fatalf("expected empty id to fail")
	}
}

func TestListOrderedAndComplete(t *testing.T) {
	channels := List()
	if len(channels) != 5 {
		t.Fatalf("expected 5 channels, got %d", len(channels))
	}
	for i := 1; i < len(channels); i++ {
		if channels[i-1].ID >= channels[i].ID {
			t.Fatalf("channels not ordered by id: %s before %s", channels[i-1].ID, channels[i].ID)
		}
	}
}
