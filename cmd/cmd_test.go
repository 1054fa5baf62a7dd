package cmd

import (
	"strings"
	"testing"
)

func TestCommandsRegistered(t *testing.T) {
	want := map[string]bool{
		"ask": false, "chat": false, "collect": false,
		"threads": false, "version": false,
	}
	for _, c := range rootCmd.Commands() {
		if _, ok := want[c.Name()]; ok {
			want[c.Name()] = true
		}
	}
	for name, found := range want {
		if !found {
			t.Errorf("command %q not registered", name)
		}
	}
}

func TestAsk_RejectsBadThreadID(t *testing.T) {
	old := askThreadID
	defer func() { askThreadID = old }()
	askThreadID = "not-a-uuid"

	err := runAsk(askCmd, []string{"question"})
	if err == nil || !strings.Contains(err.Error(), "invalid thread ID") {
		t.Errorf("got %v, want invalid thread ID error", err)
	}
}

func TestCollect_RejectsUnknownAgent(t *testing.T) {
	old := collectAgent
	defer func() { collectAgent = old }()
	collectAgent = "labour"

	err := runCollect(collectCmd, nil)
	if err == nil || !strings.Contains(err.Error(), "unknown agent") {
		t.Errorf("got %v, want unknown agent error", err)
	}
}

func TestThreadsShow_RejectsBadID(t *testing.T) {
	err := threadsShowCmd.RunE(threadsShowCmd, []string{"xyz"})
	if err == nil || !strings.Contains(err.Error(), "invalid thread ID") {
		t.Errorf("got %v, want invalid thread ID error", err)
	}
}
