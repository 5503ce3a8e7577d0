package main

import "testing"

func TestParseCommand(t *testing.T) {
	cases := []struct {
		line      string
		cmd, arg  string
		isCommand bool
	}{
		{"hello there", "", "", false},
		{"/new Trip planning", "new", "Trip planning", true},
		{"/Shared   on ", "shared", "on", true},
		{"/history", "history", "", true},
		{"/", "", "", false},
	}
	for _, c := range cases {
		cmd, arg, ok := parseCommand(c.line)
		if cmd != c.cmd || arg != c.arg || ok != c.isCommand {
			t.Fatalf("parseCommand(%q) = %q, %q, %v", c.line, cmd, arg, ok)
		}
	}
}

func TestParseOnOff(t *testing.T) {
	for in, want := range map[string]bool{"on": true, "OFF": false, "yes": true, "0": false} {
		got, err := parseOnOff(in)
		if err != nil || got != want {
			t.Fatalf("parseOnOff(%q) = %v, %v", in, got, err)
		}
	}
	if _, err := parseOnOff("maybe"); err == nil {
		t.Fatalf("expected error")
	}
}
