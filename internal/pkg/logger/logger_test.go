package logger

import "testing"

func TestRedactPhone(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"+15551234567", "+1***4567"},
		{"+447911123456", "+4***3456"},
		{"12345", "***"},
		{"not-a-number", "***"},
		{"", "***"},
	}
	for _, c := range cases {
		if got := RedactPhone(c.in); got != c.want {
			t.Errorf("RedactPhone(%q) = %q, want %q", c.in, got, c.want)
		}
	}
}

func TestRedactPIIValue_MasksEmbeddedE164(t *testing.T) {
	got := redactPIIValue("recipient_e164", "sent to +15551234567 ok")
	want := "sent to +1***4567 ok"
	if got != want {
		t.Errorf("redactPIIValue = %q, want %q", got, want)
	}
}

func TestRedactPIIValue_LeavesNonPhoneValuesAlone(t *testing.T) {
	got := redactPIIValue("status", "delivered")
	if got != "delivered" {
		t.Errorf("redactPIIValue = %q, want unchanged", got)
	}
}
