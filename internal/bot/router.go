// Package bot wires the transports, flows and safety gate into the
// running Aide bot and routes every inbound update to a handler.
package bot

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/aide-bot/aide/internal/flow"
	"github.com/aide-bot/aide/internal/genai"
	"github.com/aide-bot/aide/internal/messaging"
	"github.com/aide-bot/aide/internal/models"
	"github.com/aide-bot/aide/internal/safety"
	"github.com/aide-bot/aide/internal/store"
)

// Router dispatches normalized updates. Handling is serialized per user by
// the session lock; different users are handled concurrently.
type Router struct {
	msg   messaging.Service
	flows *flow.Flows
	gate  *safety.Gate
	genai genai.ClientInterface
	store store.Store

	// now is replaceable in tests.
	now func() time.Time
}

// NewRouter creates a router over the shared dependencies.
func NewRouter(msg messaging.Service, flows *flow.Flows, gate *safety.Gate, client genai.ClientInterface, st store.Store) *Router {
	return &Router{msg: msg, flows: flows, gate: gate, genai: client, store: st, now: time.Now}
}

// Run consumes updates until the channel closes or ctx is canceled.
func (r *Router) Run(ctx context.Context) {
	slog.Info("Router started")
	var wg sync.WaitGroup
	for {
		select {
		case <-ctx.Done():
			wg.Wait()
			slog.Info("Router stopped", "reason", ctx.Err())
			return
		case upd, ok := <-r.msg.Updates():
			if !ok {
				wg.Wait()
				slog.Info("Router stopped: update channel closed")
				return
			}
			wg.Add(1)
			go func(u models.Update) {
				defer wg.Done()
				r.HandleUpdate(ctx, u)
			}(upd)
		}
	}
}

// HandleUpdate routes one update under the user's session lock.
func (r *Router) HandleUpdate(ctx context.Context, u models.Update) {
	sess := r.flows.Sessions().Get(ctx, u.UserID, u.ChatID, u.Username)
	sess.Lock()
	defer sess.Unlock()
	sess.Profile.ChatID = u.ChatID

	switch {
	case u.Callback != nil:
		r.handleCallback(ctx, sess, u.Callback)
	case u.Voice != nil:
		r.handleVoice(ctx, sess, u)
	case u.IsCommand:
		r.handleCommand(ctx, sess, u.Text)
	case u.Text != "":
		r.handleText(ctx, sess, u.Text)
	}
}

// handleCommand routes slash commands. The command name arrives without
// the leading slash.
func (r *Router) handleCommand(ctx context.Context, sess *flow.Session, command string) {
	slog.Debug("Router command", "command", command, "userID", sess.Profile.UserID)
	switch command {
	case "start":
		if sess.Profile.CreatedAt.IsZero() {
			sess.Profile.CreatedAt = r.now().UTC()
		}
		r.flows.Sessions().SaveProfile(ctx, sess)
		r.flows.StartGreeting(ctx, sess)
	case "menu":
		r.flows.ShowMenu(ctx, sess)
	case "help":
		r.send(ctx, sess, safety.HelpText)
	default:
		r.send(ctx, sess, "Я не знаю такой команды. Попробуй /menu.")
	}
}

// handleVoice downloads and transcribes a voice note, then re-enters the
// text path with the transcript.
func (r *Router) handleVoice(ctx context.Context, sess *flow.Session, u models.Update) {
	if r.genai == nil {
		r.send(ctx, sess, "Я пока не умею слушать голосовые. Напиши, пожалуйста, текстом.")
		return
	}
	audio, err := r.msg.DownloadVoice(ctx, u.Voice.FileID)
	if err != nil {
		slog.Error("Router voice download failed", "error", err, "userID", sess.Profile.UserID)
		r.send(ctx, sess, "Не получилось загрузить голосовое. Напиши, пожалуйста, текстом.")
		return
	}
	defer audio.Close()
	text, err := r.genai.TranscribeAudio(ctx, "voice.ogg", audio)
	if err != nil {
		slog.Error("Router voice transcription failed", "error", err, "userID", sess.Profile.UserID)
		r.send(ctx, sess, "Не получилось распознать голосовое. Напиши, пожалуйста, текстом.")
		return
	}
	text = strings.TrimSpace(text)
	if text == "" {
		r.send(ctx, sess, "В голосовом не нашлось слов. Напиши, пожалуйста, текстом.")
		return
	}
	slog.Debug("Router voice transcribed", "userID", sess.Profile.UserID, "chars", len(text))
	r.handleText(ctx, sess, text)
}

// handleText routes free text to the active flow. Text outside any flow is
// still safety-checked, persisted and acknowledged.
func (r *Router) handleText(ctx context.Context, sess *flow.Session, text string) {
	switch sess.Active {
	case flow.KindGreeting:
		r.flows.HandleGreetingText(ctx, sess, text)
	case flow.KindDiary:
		r.flows.HandleDiaryText(ctx, sess, text)
	case flow.KindOtherProblem:
		r.flows.HandleOtherText(ctx, sess, text)
	case flow.KindCheckin:
		r.flows.HandleCheckinText(ctx, sess, text)
	case flow.KindGoal:
		r.flows.HandleGoalText(ctx, sess, text)
	case flow.KindExercise:
		r.flows.HandleExerciseText(ctx, sess, text)
	case flow.KindMindfulness:
		r.flows.HandleMvstText(ctx, sess, text)
	default:
		r.handleIdleText(ctx, sess, text)
	}
}

// handleIdleText handles messages that no flow is waiting for.
func (r *Router) handleIdleText(ctx context.Context, sess *flow.Session, text string) {
	if verdict, err := r.gate.Check(ctx, text, "general"); err == nil && verdict.Crisis {
		r.gate.ShowSupport(ctx, r.msg, &sess.Profile, verdict, "general", text, false)
		return
	}
	rec := models.Record{
		Sheet:    models.SheetMessages,
		UserID:   sess.Profile.UserID,
		Username: sess.Profile.Username,
		Fields:   map[string]string{"type": "free", "text": text},
	}
	if err := r.store.AppendRow(ctx, rec); err != nil {
		slog.Error("Router free message append failed", "error", err, "userID", sess.Profile.UserID)
	}
	if _, err := r.msg.SendMessage(ctx, sess.Profile.ChatID,
		"Я записала это. Чтобы продолжить работу, открой меню.", menuKeyboard()); err != nil {
		slog.Error("Router idle reply failed", "error", err, "userID", sess.Profile.UserID)
	}
}

// handleCallback dispatches a decoded button press. Every callback is
// acknowledged; handler rejections surface as the toast text.
func (r *Router) handleCallback(ctx context.Context, sess *flow.Session, cb *models.Callback) {
	cmd := cb.Command
	slog.Debug("Router callback", "prefix", cmd.Prefix, "args", cmd.Args, "userID", sess.Profile.UserID)

	var rejection string
	switch cmd.Prefix {
	case models.CmdFormAddress:
		r.flows.HandleFormAddress(ctx, sess, cmd.Arg(0))
	case models.CmdReadyToStart:
		r.flows.HandleReadyToStart(ctx, sess)

	case models.CmdGoalConfirm:
		r.flows.HandleGoalConfirm(ctx, sess)
	case models.CmdGoalEdit:
		r.flows.HandleGoalEdit(ctx, sess)
	case models.CmdGoalBack:
		r.flows.HandleGoalBack(ctx, sess)
	case models.CmdProbSelect:
		r.flows.HandleProbSelect(ctx, sess, cmd.Arg(0), cb)
	case models.CmdProbDone:
		r.flows.HandleProbDone(ctx, sess)
	case models.CmdRate:
		idx, err1 := cmd.IntArg(0)
		val, err2 := cmd.IntArg(1)
		if err1 != nil || err2 != nil {
			rejection = "Не поняла оценку"
			break
		}
		if err := r.flows.HandleRate(ctx, sess, idx, val); err != nil {
			slog.Debug("Router rating rejected", "error", err, "userID", sess.Profile.UserID)
			rejection = "Эта оценка уже неактуальна"
		}
	case models.CmdRateBack:
		if idx, err := cmd.IntArg(0); err == nil {
			r.flows.HandleRateBack(ctx, sess, idx)
		}
	case models.CmdPreviewConfirm:
		r.flows.HandlePreviewConfirm(ctx, sess)
	case models.CmdPreviewEdit:
		r.flows.HandlePreviewEdit(ctx, sess)
	case models.CmdPreviewChange:
		r.flows.HandlePreviewChange(ctx, sess, cmd.Arg(0))

	case models.CmdOtherSuggest:
		r.flows.HandleOtherSuggest(ctx, sess, cmd.Arg(0), cb)
	case models.CmdOtherConfirmSel:
		r.flows.HandleOtherConfirmSelected(ctx, sess)
	case models.CmdOtherCustom:
		r.flows.HandleOtherCustom(ctx, sess)
	case models.CmdOtherAnother:
		r.flows.HandleOtherAnother(ctx, sess)
	case models.CmdOtherDone:
		r.flows.HandleOtherDone(ctx, sess)

	case models.CmdExSelect:
		if idx, err := cmd.IntArg(0); err == nil {
			r.flows.HandleExSelect(ctx, sess, idx)
		}
	case models.CmdExStartExec:
		r.flows.HandleExStartExec(ctx, sess)
	case models.CmdExChangeSelect:
		r.flows.HandleExChangeSelect(ctx, sess)
	case models.CmdExTextConfirm:
		r.flows.HandleExTextConfirm(ctx, sess, cmd.Arg(0))
	case models.CmdExStepConfirm:
		r.flows.HandleExStepConfirm(ctx, sess, cmd.Arg(0))
	case models.CmdExAnswerConfirm:
		r.flows.HandleExAnswerConfirm(ctx, sess, cmd.Arg(0))
	case models.CmdExMarkComplete:
		r.flows.HandleExMarkComplete(ctx, sess)

	case models.CmdProtocol:
		r.flows.HandleProtocolSelect(ctx, sess, cmd.Arg(0))
	case models.CmdExStart:
		if idx, err := cmd.IntArg(1); err == nil {
			r.flows.HandleProtocolExStart(ctx, sess, cmd.Arg(0), idx)
		}
	case models.CmdExSkip:
		if idx, err := cmd.IntArg(1); err == nil {
			r.flows.HandleProtocolExSkip(ctx, sess, cmd.Arg(0), idx)
		}

	case models.CmdDiary:
		r.flows.HandleDiaryAction(ctx, sess, cmd.Arg(0))

	case models.CmdCheckinStart:
		r.flows.StartCheckin(ctx, sess)
	case models.CmdCheckinRate:
		idx, err1 := cmd.IntArg(0)
		val, err2 := cmd.IntArg(1)
		if err1 != nil || err2 != nil {
			rejection = "Не поняла оценку"
			break
		}
		if err := r.flows.HandleCheckinRate(ctx, sess, idx, val); err != nil {
			slog.Debug("Router check-in rating rejected", "error", err, "userID", sess.Profile.UserID)
			rejection = "Эта оценка уже неактуальна"
		}
	case models.CmdCheckinGoal:
		if val, err := cmd.IntArg(0); err == nil {
			if err := r.flows.HandleCheckinGoal(ctx, sess, val); err != nil {
				slog.Debug("Router check-in goal rejected", "error", err, "userID", sess.Profile.UserID)
				rejection = "Эта оценка уже неактуальна"
			}
		}

	case models.CmdMvstSelect:
		r.flows.HandleMvstSelect(ctx, sess, cmd.Arg(0))
	case models.CmdMvstStart:
		r.flows.HandleMvstStart(ctx, sess)
	case models.CmdMvstInputConfirm:
		r.flows.HandleMvstInputConfirm(ctx, sess, cmd.Arg(0))
	case models.CmdMvstAnswerConfirm:
		r.flows.HandleMvstAnswerConfirm(ctx, sess, cmd.Arg(0))
	case models.CmdMvstMarkComplete:
		r.flows.HandleMvstMarkComplete(ctx, sess)

	case models.CmdMenu:
		r.flows.HandleMenuAction(ctx, sess, cmd.Arg(0))

	case models.CmdSafety:
		r.handleSafetyAction(ctx, sess, cmd.Arg(0))

	default:
		slog.Warn("Router: unknown callback prefix", "prefix", cmd.Prefix, "userID", sess.Profile.UserID)
	}

	if err := r.msg.AnswerCallback(ctx, cb.ID, rejection); err != nil {
		slog.Debug("Router callback ack failed", "error", err)
	}
}

// handleSafetyAction resolves the crisis support buttons: hotlines and the
// per-context resume.
func (r *Router) handleSafetyAction(ctx context.Context, sess *flow.Session, action string) {
	if action == "hotlines" {
		r.send(ctx, sess, safety.HelpText)
		return
	}
	checkContext, ok := strings.CutPrefix(action, "continue_")
	if !ok {
		return
	}
	switch checkContext {
	case "goal_setting":
		r.flows.StartGoal(ctx, sess, false, false, false)
	case "exercise":
		r.flows.ResumeExercise(ctx, sess)
	case "checkin":
		r.flows.StartCheckin(ctx, sess)
	default:
		r.flows.ShowMenu(ctx, sess)
	}
}

func (r *Router) send(ctx context.Context, sess *flow.Session, text string) {
	if _, err := r.msg.SendMessage(ctx, sess.Profile.ChatID, text, menuKeyboard()); err != nil {
		slog.Error("Router send failed", "error", err, "userID", sess.Profile.UserID)
	}
}

func menuKeyboard() models.Keyboard {
	return models.Keyboard{
		models.Row(models.Button{Label: "📱 Главное меню", Data: models.Cmd(models.CmdMenu, "show")}),
	}
}
