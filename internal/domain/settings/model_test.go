package settings

import (
	"errors"
	"testing"
	"time"
)

func TestBusinessHoursContainsInclusiveEdges(t *testing.T) {
	window := BusinessHours{Start: "09:00", End: "17:00"}
	cases := []struct {
		clock string
		hour  int
		min   int
		want  bool
	}{
		{"08:59", 8, 59, false},
		{"09:00", 9, 0, true},
		{"12:30", 12, 30, true},
		{"17:00", 17, 0, true},
		{"17:01", 17, 1, false},
	}
	for _, c := range cases {
		at := time.Date(2025, 3, 10, c.hour, c.min, 0, 0, time.UTC)
		if got := window.Contains(at); got != c.want {
			t.Fatalf("Contains(%s) = %v, want %v", c.clock, got, c.want)
		}
	}
}

func TestBusinessHoursUndefinedAcceptsEverything(t *testing.T) {
	var window BusinessHours
	if !window.Contains(time.Date(2025, 3, 10, 3, 0, 0, 0, time.UTC)) {
		t.Fatalf("undefined window should accept any time")
	}
}

func TestBusinessHoursBadClockFailsOpen(t *testing.T) {
	window := BusinessHours{Start: "gibberish", End: "17:00"}
	if !window.Contains(time.Date(2025, 3, 10, 3, 0, 0, 0, time.UTC)) {
		t.Fatalf("unparseable window should accept instead of silencing the responder")
	}
}

func TestValidateRejectsMidnightSpan(t *testing.T) {
	s := Defaults()
	s.BusinessHours = BusinessHours{Start: "22:00", End: "06:00"}
	if err := s.Validate(); !errors.Is(err, ErrInvalidWindow) {
		t.Fatalf("expected ErrInvalidWindow, got %v", err)
	}
}

func TestValidateAcceptsDegenerateWindow(t *testing.T) {
	s := Defaults()
	s.BusinessHours = BusinessHours{Start: "12:00", End: "12:00"}
	if err := s.Validate(); err != nil {
		t.Fatalf("start == end should be valid, got %v", err)
	}
}

func TestValidateProviderOnlyWhenEnabled(t *testing.T) {
	s := Defaults()
	s.LLM.Provider = "skynet"
	s.LLM.Enabled = false
	if err := s.Validate(); err != nil {
		t.Fatalf("disabled llm should skip provider check, got %v", err)
	}
	s.LLM.Enabled = true
	if err := s.Validate(); !errors.Is(err, ErrUnknownProvider) {
		t.Fatalf("expected ErrUnknownProvider, got %v", err)
	}
}

func TestValidateBounds(t *testing.T) {
	s := Defaults()
	s.LLM.RateLimitPerHour = -1
	if err := s.Validate(); !errors.Is(err, ErrInvalidRateLimit) {
		t.Fatalf("expected ErrInvalidRateLimit, got %v", err)
	}

	s = Defaults()
	s.LLM.Temperature = 2.5
	if err := s.Validate(); !errors.Is(err, ErrInvalidTemperature) {
		t.Fatalf("expected ErrInvalidTemperature, got %v", err)
	}
}

func TestMergeKeepsUnsetFields(t *testing.T) {
	current := Defaults()
	current.AllowList = []string{"5511999999999"}

	msg := "nova mensagem"
	next := current.Merge(UpdateInput{DefaultMessage: &msg})

	if next.DefaultMessage != msg {
		t.Fatalf("default message not applied")
	}
	if next.AfterHoursMessage != current.AfterHoursMessage {
		t.Fatalf("unset field changed")
	}
	if len(next.AllowList) != 1 || next.AllowList[0] != "5511999999999" {
		t.Fatalf("allow list should survive a patch that does not touch it")
	}
	if next.LLM.Provider != current.LLM.Provider {
		t.Fatalf("llm block changed without llm patch")
	}
}

func TestMergeReplacesListsWhole(t *testing.T) {
	current := Defaults()
	current.BlockList = []string{"111", "222"}

	empty := []string{}
	next := current.Merge(UpdateInput{BlockList: &empty})
	if len(next.BlockList) != 0 {
		t.Fatalf("expected block list cleared, got %v", next.BlockList)
	}
	if len(current.BlockList) != 2 {
		t.Fatalf("merge mutated the receiver")
	}
}

func TestMergeNormalizesProvider(t *testing.T) {
	provider := "  OpenAI "
	next := Defaults().Merge(UpdateInput{LLM: &LLMUpdate{Provider: &provider}})
	if next.LLM.Provider != ProviderOpenAI {
		t.Fatalf("expected normalized provider, got %q", next.LLM.Provider)
	}
}

func TestReinitRequired(t *testing.T) {
	base := Defaults().LLM

	changed := base
	changed.Model = "gpt-4o"
	if !base.ReinitRequired(changed) {
		t.Fatalf("model change must require reinit")
	}

	changed = base
	changed.APIKey = "sk-other"
	if !base.ReinitRequired(changed) {
		t.Fatalf("api key change must require reinit")
	}

	changed = base
	changed.Temperature = 1.5
	changed.SystemPrompt = "outro tom"
	changed.RateLimitPerHour = 3
	if base.ReinitRequired(changed) {
		t.Fatalf("prompt and tuning changes must not require reinit")
	}
}

func TestTimeoutDefault(t *testing.T) {
	l := LLMSettings{}
	if l.Timeout() != 10*time.Second {
		t.Fatalf("expected 10s default, got %s", l.Timeout())
	}
	l.RequestTimeoutMS = 2500
	if l.Timeout() != 2500*time.Millisecond {
		t.Fatalf("expected 2.5s, got %s", l.Timeout())
	}
}
