// Package models defines the core domain types shared across Aide components.
package models

import "time"

// FormOfAddress selects the register used when talking to the user.
type FormOfAddress string

const (
	AddressInformal FormOfAddress = "informal"
	AddressFormal   FormOfAddress = "formal"
)

// Profile holds everything Aide knows about a user across flows.
type Profile struct {
	UserID             int64          `json:"user_id"`
	ChatID             int64          `json:"chat_id"`
	Username           string         `json:"username"`
	Name               string         `json:"name"`
	FormOfAddress      FormOfAddress  `json:"form_of_address"`
	Goal               string         `json:"goal,omitempty"`
	Problems           []string       `json:"problems,omitempty"`
	ProblemRatings     map[string]int `json:"problem_ratings,omitempty"`
	CompletedExercises []string       `json:"completed_exercises,omitempty"`
	CompletedPractices []string       `json:"completed_practices,omitempty"`
	CreatedAt          time.Time      `json:"created_at"`
}

// Sheet names for the record store. Every user submission lands in one of
// these append-only sheets.
const (
	SheetMessages  = "messages"
	SheetGoals     = "goals"
	SheetExercises = "exercises"
	SheetDiary     = "diary"
	SheetCheckins  = "checkins"
	SheetPractices = "practices"
	SheetCrisisLog = "crisis_log"
)

// Record is a single append-only row in a sheet. Fields carries the
// sheet-specific columns as strings so patches can merge selectively.
type Record struct {
	ID        string            `json:"id"`
	Sheet     string            `json:"sheet"`
	UserID    int64             `json:"user_id"`
	Username  string            `json:"username"`
	Fields    map[string]string `json:"fields"`
	CreatedAt time.Time         `json:"created_at"`
}

// Verdict is the result of a safety check over a piece of user text.
type Verdict struct {
	Crisis     bool    `json:"crisis_detected"`
	Type       string  `json:"crisis_type"`
	Confidence float64 `json:"confidence"`
	Reasoning  string  `json:"reasoning,omitempty"`
}

// Button is one inline keyboard button. Data is the raw callback payload;
// it is decoded back into a Command on the way in.
type Button struct {
	Label string
	Data  string
}

// Keyboard is rows of buttons.
type Keyboard [][]Button

// Row builds a single keyboard row.
func Row(buttons ...Button) []Button { return buttons }

// Update is an inbound event already normalized by the messaging layer.
// Exactly one of Text, Callback, or Voice is meaningful per update.
type Update struct {
	UserID    int64
	ChatID    int64
	Username  string
	MessageID int
	Text      string
	IsCommand bool // true for slash commands; Text holds the command name
	Callback  *Callback
	Voice     *Voice
}

// Callback is an inline button press with its payload already decoded.
type Callback struct {
	ID        string
	MessageID int
	Command   Command
}

// Voice is a voice note reference for download and transcription.
type Voice struct {
	FileID   string
	Duration int
}
