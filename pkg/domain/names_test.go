package domain

import "testing"

func TestValidName(t *testing.T) {
	valid := []string{"alice", "room-general", "user_42", "日本語"}
	for _, name := range valid {
		if !ValidName(name) {
			t.Errorf("ValidName(%q) = false, want true", name)
		}
	}

	invalid := []string{"", "a b", "a:b", "a;b", "a,b", "a\tb", "a\nb", "a\rb", "\x00a"}
	for _, name := range invalid {
		if ValidName(name) {
			t.Errorf("ValidName(%q) = true, want false", name)
		}
	}
}
