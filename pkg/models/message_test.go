package models

import "testing"

func TestMessageIsAdministrator(t *testing.T) {
	cases := []struct {
		name string
		msg  *Message
		want bool
	}{
		{"nil message", nil, false},
		{"administrator speaker", &Message{Speaker: AdministratorName}, true},
		{"agent speaker", &Message{Speaker: "Echo"}, false},
		{"no speaker", &Message{}, false},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			if got := c.msg.IsAdministrator(); got != c.want {
				t.Errorf("IsAdministrator() = %v, want %v", got, c.want)
			}
		})
	}
}
