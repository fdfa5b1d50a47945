// Package flow implements Aide's conversational flows.
//
// Each user has one Session that owns their profile and the state of every
// flow. Exactly one flow is active at a time for routing purposes; a flow's
// state survives while another flow runs, which is how the other-problem
// detour returns into goal setting without losing progress.
package flow

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/aide-bot/aide/internal/models"
	"github.com/aide-bot/aide/internal/store"
)

// Kind identifies a flow.
type Kind string

const (
	KindNone         Kind = ""
	KindGreeting     Kind = "greeting"
	KindGoal         Kind = "goal"
	KindOtherProblem Kind = "other_problem"
	KindExercise     Kind = "exercise"
	KindDiary        Kind = "diary"
	KindCheckin      Kind = "checkin"
	KindMindfulness  Kind = "mindfulness"
	KindProtocol     Kind = "protocol"
)

// Greeting flow steps.
const (
	GreetingAwaitingForm  = "awaiting_form"
	GreetingAwaitingName  = "awaiting_name"
	GreetingAwaitingReady = "awaiting_ready"
)

// GreetingState tracks onboarding progress.
type GreetingState struct {
	Step string
}

// Goal flow steps.
const (
	GoalStep1 = "step1"
	GoalStep2 = "step2"
	GoalStep3 = "step3"
	GoalStep4 = "step4"
)

// GoalState tracks goal setting. ChangeType restricts what a re-entry
// edits: "goal", "problems", or empty for both.
type GoalState struct {
	Step       string
	Pending    string
	Goal       string
	Problems   []string
	Ratings    map[string]int
	RatingIdx  int
	IsChanging bool
	ChangeType string
}

// Other-problem flow steps.
const (
	OtherAwaitingText   = "awaiting_text"
	OtherChoosingOption = "choosing_option"
	OtherAwaitingCustom = "awaiting_custom_name"
)

// OtherProblemState tracks the free-text problem classifier detour.
type OtherProblemState struct {
	Step       string
	Pending    string
	Suggested  []string
	Selected   []string
	AddedCount int
	Added      []string
}

// Exercise flow steps.
const (
	ExSelecting         = "selecting"
	ExAwaitingText      = "awaiting_exercise_text"
	ExAwaitingStepInput = "awaiting_step_input"
	ExAwaitingFinal     = "awaiting_final_answer"
)

// ExerciseState tracks the exercise runner.
type ExerciseState struct {
	Step         string
	Problem      string
	Recommended  []string
	Selected     string
	Steps        []string
	StepIdx      int
	StepResults  []string
	Pending      string
	FinalIdx     int
	FinalAnswers []string
	ProtocolID   string // set when the run came from a protocol walk
	ProtocolIdx  int
}

// Diary flow steps.
const DiaryAwaitingText = "awaiting_text"

// DiaryState tracks a diary entry in progress.
type DiaryState struct {
	Step    string
	Pending string
}

// Check-in flow steps.
const (
	CheckinStep1       = "step1"
	CheckinStep2       = "step2"
	CheckinStepRatings = "ratings"
	CheckinStepGoal    = "goal"
)

// CheckinState tracks the periodic check-in.
type CheckinState struct {
	Step      string
	Answer1   string
	Answer2   string
	RatingIdx int
	Ratings   map[string]int
}

// Mindfulness flow steps.
const (
	MvstSelecting        = "selecting"
	MvstAwaitingPractice = "awaiting_practice_input"
	MvstAwaitingFinal    = "awaiting_final_answer"
)

// PracticeState tracks the mindfulness practice runner.
type PracticeState struct {
	Step         string
	Selected     string
	Pending      string
	FinalIdx     int
	FinalAnswers []string
}

// ProtocolState tracks the protocol exercise walk.
type ProtocolState struct {
	ProtocolID  string
	ExerciseIdx int
}

// Session is the per-user conversational state. The router locks it for
// the duration of one update, so handlers never see interleaved state.
type Session struct {
	mu sync.Mutex

	Profile models.Profile
	Active  Kind

	Greeting GreetingState
	Goal     GoalState
	Other    OtherProblemState
	Exercise ExerciseState
	Diary    DiaryState
	Checkin  CheckinState
	Practice PracticeState
	Protocol ProtocolState
}

// Lock acquires the session for exclusive handling.
func (s *Session) Lock() { s.mu.Lock() }

// Unlock releases the session.
func (s *Session) Unlock() { s.mu.Unlock() }

// Activate makes kind the single active flow.
func (s *Session) Activate(kind Kind) {
	if s.Active != kind {
		slog.Debug("Session flow switch", "userID", s.Profile.UserID, "from", s.Active, "to", kind)
	}
	s.Active = kind
}

// Deactivate returns the session to the idle state.
func (s *Session) Deactivate() { s.Active = KindNone }

// Sessions manages per-user sessions backed by the profile store.
type Sessions struct {
	mu    sync.Mutex
	store store.Store
	users map[int64]*Session
}

// NewSessions creates a session manager.
func NewSessions(st store.Store) *Sessions {
	return &Sessions{store: st, users: make(map[int64]*Session)}
}

// Get returns the session for a user, creating it on first contact and
// restoring the persisted profile when one exists.
func (m *Sessions) Get(ctx context.Context, userID, chatID int64, username string) *Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	if sess, ok := m.users[userID]; ok {
		return sess
	}
	sess := &Session{}
	profile, err := m.store.GetProfile(ctx, userID)
	switch {
	case err == nil:
		sess.Profile = profile
		slog.Debug("Session restored from persisted profile", "userID", userID)
	case errors.Is(err, store.ErrNoRows):
		sess.Profile = models.Profile{UserID: userID, FormOfAddress: models.AddressInformal}
	default:
		slog.Error("Session profile load failed, starting fresh", "error", err, "userID", userID)
		sess.Profile = models.Profile{UserID: userID, FormOfAddress: models.AddressInformal}
	}
	sess.Profile.ChatID = chatID
	if username != "" {
		sess.Profile.Username = username
	}
	m.users[userID] = sess
	return sess
}

// SaveProfile persists the session's profile.
func (m *Sessions) SaveProfile(ctx context.Context, sess *Session) {
	if err := m.store.SaveProfile(ctx, sess.Profile); err != nil {
		slog.Error("Session profile save failed", "error", err, "userID", sess.Profile.UserID)
	}
}
