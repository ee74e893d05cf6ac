package logger

import "testing"

func TestRedactEmail(t *testing.T) {
	cases := []struct {
		in, want string
	}{
		{"john.doe@example.com", "jo***@example.com"},
		{"ab@example.com", "***@example.com"},
		{"a@example.com", "***@example.com"},
		{"not-an-address", "***@***"},
		{"dangling@", "***@***"},
	}
	for _, c := range cases {
		if got := RedactEmail(c.in); got != c.want {
			t.Errorf("RedactEmail(%q) = %q, want %q", c.in, got, c.want)
		}
	}
}

func TestRedactPIIValueEmailKey(t *testing.T) {
	if got := redactPIIValue("client_email", "alice@example.com"); got != "al***@example.com" {
		t.Errorf("email key = %q", got)
	}
}

func TestRedactPIIValuePhoneKey(t *testing.T) {
	got := redactPIIValue("contact_phone", "+33 6 12 34 56 78")
	if got != "***" {
		t.Errorf("phone key = %q", got)
	}
}

func TestRedactPIIValueFreeText(t *testing.T) {
	got := redactPIIValue("error", "duplicate client bob.smith@example.com in batch")
	want := "duplicate client bo***@example.com in batch"
	if got != want {
		t.Errorf("free text = %q, want %q", got, want)
	}
}

func TestParseLevel(t *testing.T) {
	cases := map[string]Level{
		"debug":   DEBUG,
		"WARN":    WARN,
		"warning": WARN,
		"error":   ERROR,
		"":        INFO,
		"bogus":   INFO,
	}
	for in, want := range cases {
		if got := ParseLevel(in); got != want {
			t.Errorf("ParseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}
