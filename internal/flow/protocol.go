package flow

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/aide-bot/aide/internal/models"
)

// ShowProtocolSelection lists the named protocols for users who already
// know which one they want.
func (f *Flows) ShowProtocolSelection(ctx context.Context, sess *Session) {
	protocols := f.catalog.Protocols()
	if len(protocols) == 0 {
		f.send(ctx, sess, "Каталог протоколов пока пуст.", models.Keyboard{menuButton()})
		return
	}
	sess.Protocol = ProtocolState{}
	sess.Activate(KindProtocol)
	var kb models.Keyboard
	for _, p := range protocols {
		kb = append(kb, models.Row(models.Button{Label: p.Title, Data: models.Cmd(models.CmdProtocol, p.ID)}))
	}
	kb = append(kb, menuButton())
	f.send(ctx, sess, "Выбери протокол, по которому хочешь работать:", kb)
}

// HandleProtocolSelect starts the sequential exercise walk of a protocol.
func (f *Flows) HandleProtocolSelect(ctx context.Context, sess *Session, id string) {
	p, ok := f.catalog.ProtocolByID(id)
	if !ok {
		slog.Warn("Protocol flow: unknown protocol id", "id", id)
		return
	}
	sess.Protocol = ProtocolState{ProtocolID: p.ID}
	f.offerProtocolExercise(ctx, sess, p.ID, 0)
}

// offerProtocolExercise offers one exercise of the walk with start and
// skip choices.
func (f *Flows) offerProtocolExercise(ctx context.Context, sess *Session, protocolID string, idx int) {
	p, ok := f.catalog.ProtocolByID(protocolID)
	if !ok {
		return
	}
	if idx >= len(p.Exercises) {
		sess.Protocol = ProtocolState{}
		sess.Deactivate()
		f.send(ctx, sess, fmt.Sprintf("Ты прошёл(ла) все упражнения протокола «%s». Отличная работа! 🎉", p.Title), models.Keyboard{menuButton()})
		return
	}
	sess.Protocol.ExerciseIdx = idx
	name := p.Exercises[idx]
	f.send(ctx, sess,
		fmt.Sprintf("Упражнение %d из %d:\n\n<b>%s</b>", idx+1, len(p.Exercises), name),
		models.Keyboard{
			models.Row(models.Button{Label: "▶️ Выполнить", Data: models.Cmd(models.CmdExStart, protocolID, strconv.Itoa(idx))}),
			models.Row(models.Button{Label: "⏭ Пропустить", Data: models.Cmd(models.CmdExSkip, protocolID, strconv.Itoa(idx))}),
			menuButton(),
		})
}

// HandleProtocolExStart delegates the walk's current exercise to the
// exercise runner; completion resumes the walk.
func (f *Flows) HandleProtocolExStart(ctx context.Context, sess *Session, protocolID string, idx int) {
	p, ok := f.catalog.ProtocolByID(protocolID)
	if !ok || idx < 0 || idx >= len(p.Exercises) {
		return
	}
	f.StartNamedExercise(ctx, sess, p.Exercises[idx], protocolID, idx)
}

// HandleProtocolExSkip moves the walk past the current exercise.
func (f *Flows) HandleProtocolExSkip(ctx context.Context, sess *Session, protocolID string, idx int) {
	f.advanceProtocol(ctx, sess, protocolID, idx+1)
}

// advanceProtocol continues the walk at the given position.
func (f *Flows) advanceProtocol(ctx context.Context, sess *Session, protocolID string, idx int) {
	sess.Protocol = ProtocolState{ProtocolID: protocolID, ExerciseIdx: idx}
	sess.Activate(KindProtocol)
	f.offerProtocolExercise(ctx, sess, protocolID, idx)
}
