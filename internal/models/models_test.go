package models

import "testing"

func TestParseCommand(t *testing.T) {
	cmd := ParseCommand("rate:2:3")
	if cmd.Prefix != CmdRate {
		t.Errorf("expected prefix %q, got %q", CmdRate, cmd.Prefix)
	}
	if len(cmd.Args) != 2 {
		t.Fatalf("expected 2 args, got %d", len(cmd.Args))
	}
	idx, err := cmd.IntArg(0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if idx != 2 {
		t.Errorf("expected idx 2, got %d", idx)
	}
	val, err := cmd.IntArg(1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if val != 3 {
		t.Errorf("expected val 3, got %d", val)
	}
}

func TestParseCommandNoArgs(t *testing.T) {
	cmd := ParseCommand("ex_mark_complete")
	if cmd.Prefix != CmdExMarkComplete {
		t.Errorf("expected prefix %q, got %q", CmdExMarkComplete, cmd.Prefix)
	}
	if len(cmd.Args) != 0 {
		t.Errorf("expected no args, got %v", cmd.Args)
	}
	if _, err := cmd.IntArg(0); err == nil {
		t.Error("expected error for missing int argument")
	}
}

func TestCommandEncodeRoundTrip(t *testing.T) {
	raw := Cmd(CmdCheckinRate, "1", "2")
	if raw != "checkin_rate:1:2" {
		t.Errorf("expected %q, got %q", "checkin_rate:1:2", raw)
	}
	cmd := ParseCommand(raw)
	if cmd.Encode() != raw {
		t.Errorf("round trip mismatch: %q vs %q", cmd.Encode(), raw)
	}
}

func TestParseCommandBadIntArg(t *testing.T) {
	cmd := ParseCommand("rate:x:3")
	if _, err := cmd.IntArg(0); err == nil {
		t.Error("expected error for non-numeric argument")
	}
}

func TestProblemCatalogLookup(t *testing.T) {
	p, ok := ProblemByID("anxiety")
	if !ok {
		t.Fatal("expected anxiety in catalog")
	}
	if p.Display != "Тревога и беспокойство" {
		t.Errorf("unexpected display name %q", p.Display)
	}
	if _, ok := ProblemByID("nonexistent"); ok {
		t.Error("expected lookup miss for unknown id")
	}
	if IsCatalogProblem("other") {
		t.Error("the other placeholder must not count as a catalog problem")
	}
	if !IsCatalogProblem("sleep") {
		t.Error("sleep is a catalog problem")
	}
	if ProblemDisplay("Моя особая проблема") != "Моя особая проблема" {
		t.Error("custom problems display as their own name")
	}
}
