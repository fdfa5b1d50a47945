package models

import (
	"fmt"
	"strconv"
	"strings"
)

// Callback payload prefixes. Payloads are colon-separated: the first segment
// is the prefix, the rest are arguments. They are decoded exactly once, at
// the transport boundary; handlers switch on Command.Prefix and never split
// raw strings themselves.
const (
	CmdFormAddress       = "form_address" // form_address:<informal|formal>
	CmdReadyToStart      = "ready_to_start"
	CmdProtocol          = "ps"       // ps:<protocol_id>
	CmdExStart           = "ex_start" // ex_start:<protocol_id>:<idx>
	CmdExSkip            = "ex_skip"  // ex_skip:<protocol_id>:<idx>
	CmdGoalConfirm       = "goal_confirm"
	CmdGoalEdit          = "goal_edit"
	CmdGoalBack          = "goal_back"
	CmdProbSelect        = "prob_select" // prob_select:<problem_id>
	CmdProbDone          = "prob_done"
	CmdRate              = "rate"            // rate:<idx>:<val>
	CmdRateBack          = "rate_back"       // rate_back:<idx>
	CmdPreviewConfirm    = "preview_confirm" // preview_confirm:yes
	CmdPreviewEdit       = "preview_edit"    // preview_edit:choose
	CmdPreviewChange     = "preview_change"  // preview_change:<goal|problems>
	CmdExSelect          = "ex_select"       // ex_select:<idx>
	CmdExStartExec       = "ex_start_exec"
	CmdExChangeSelect    = "ex_change_select"
	CmdExTextConfirm     = "ex_text_confirm"   // ex_text_confirm:<yes|edit|back>
	CmdExStepConfirm     = "ex_step_confirm"   // ex_step_confirm:<yes|edit|back>
	CmdExAnswerConfirm   = "ex_answer_confirm" // ex_answer_confirm:<yes|edit>
	CmdExMarkComplete    = "ex_mark_complete"
	CmdOtherSuggest      = "other_suggest" // other_suggest:<problem_id>
	CmdOtherCustom       = "other_custom"
	CmdOtherAnother      = "other_another"
	CmdOtherDone         = "other_done"
	CmdOtherConfirmSel   = "other_confirm_selected"
	CmdDiary             = "diary"       // diary:<confirm|edit|back>
	CmdMenu              = "menu"        // menu:<action>
	CmdMvstSelect        = "mvst_select" // mvst_select:<practice_id>
	CmdMvstStart         = "mvst_start"
	CmdMvstInputConfirm  = "mvst_input_confirm"  // mvst_input_confirm:<yes|edit>
	CmdMvstAnswerConfirm = "mvst_answer_confirm" // mvst_answer_confirm:<yes|edit>
	CmdMvstMarkComplete  = "mvst_mark_complete"
	CmdCheckinStart      = "checkin_start"
	CmdCheckinRate       = "checkin_rate" // checkin_rate:<idx>:<val>
	CmdCheckinGoal       = "checkin_goal" // checkin_goal:<n>
	CmdSafety            = "safety"       // safety:<hotlines|continue_<context>>
)

// Command is a decoded callback payload.
type Command struct {
	Prefix string
	Args   []string
}

// ParseCommand decodes a raw callback payload into a Command. An empty
// payload yields an empty prefix, which no handler matches.
func ParseCommand(data string) Command {
	parts := strings.Split(data, ":")
	return Command{Prefix: parts[0], Args: parts[1:]}
}

// Encode rebuilds the wire payload for a command.
func (c Command) Encode() string {
	if len(c.Args) == 0 {
		return c.Prefix
	}
	return c.Prefix + ":" + strings.Join(c.Args, ":")
}

// Arg returns the i-th argument or the empty string.
func (c Command) Arg(i int) string {
	if i < 0 || i >= len(c.Args) {
		return ""
	}
	return c.Args[i]
}

// IntArg returns the i-th argument parsed as an int.
func (c Command) IntArg(i int) (int, error) {
	s := c.Arg(i)
	if s == "" {
		return 0, fmt.Errorf("callback %q: missing argument %d", c.Prefix, i)
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("callback %q: argument %d is not a number: %w", c.Prefix, i, err)
	}
	return n, nil
}

// Cmd builds a callback payload string from a prefix and arguments.
func Cmd(prefix string, args ...string) string {
	return Command{Prefix: prefix, Args: args}.Encode()
}
