package cli

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/GolferGeek/sync-focus/internal/model"
	"github.com/GolferGeek/sync-focus/internal/projector"
	"github.com/GolferGeek/sync-focus/internal/session"
	"github.com/GolferGeek/sync-focus/internal/timer"
)

const progressWidth = 20

func (a *App) timerCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "timer",
		Short: "Control the shared team timer",
	}

	start := &cobra.Command{
		Use:       "start [work|break]",
		Short:     "Start a focus or break interval for everyone",
		Args:      cobra.MaximumNArgs(1),
		ValidArgs: []string{"work", "break"},
		RunE: func(cmd *cobra.Command, args []string) error {
			phase := model.StatusWork
			if len(args) == 1 {
				switch strings.ToLower(args[0]) {
				case "work", "focus":
				case "break":
					phase = model.StatusBreak
				default:
					return fmt.Errorf("unknown phase %q, use work or break", args[0])
				}
			}
			duration := a.settings.WorkSeconds
			if phase == model.StatusBreak {
				duration = a.settings.BreakSeconds
			}

			return a.withTimer(cmd.Context(), func(ctx context.Context, c *timer.Controller) (model.TimerSnapshot, error) {
				return c.Start(ctx, duration, phase)
			})
		},
	}

	cmd.AddCommand(start)
	cmd.AddCommand(a.timerAction("pause", "Pause the running interval", (*timer.Controller).Pause))
	cmd.AddCommand(a.timerAction("resume", "Resume the paused interval", (*timer.Controller).Resume))
	cmd.AddCommand(a.timerAction("stop", "Reset the timer to idle", (*timer.Controller).Stop))
	cmd.AddCommand(a.timerAction("skip", "Jump from focus to break or from break to focus", (*timer.Controller).Skip))
	cmd.AddCommand(a.timerAction("status", "Show the shared timer", (*timer.Controller).Current))
	return cmd
}

func (a *App) timerAction(use, short string, fn func(*timer.Controller, context.Context) (model.TimerSnapshot, error)) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withTimer(cmd.Context(), func(ctx context.Context, c *timer.Controller) (model.TimerSnapshot, error) {
				return fn(c, ctx)
			})
		},
	}
}

func (a *App) withTimer(ctx context.Context, fn func(context.Context, *timer.Controller) (model.TimerSnapshot, error)) error {
	sess, _, err := a.connect(ctx)
	if err != nil {
		return err
	}
	defer sess.Close()

	snap, err := fn(ctx, sess.Timer())
	if err != nil {
		return err
	}
	d := projector.Project(snap.Timer, a.Clock.Now(), a.settings.WorkSeconds)
	a.printf("%s\n", a.renderWithTask(d, a.storedTask(ctx, sess)))
	return nil
}

// storedTask reads the signed-in user's active task title from the store.
func (a *App) storedTask(ctx context.Context, sess *session.Session) string {
	uid := sess.Data().AuthUserID
	doc, err := sess.Store().Get(ctx, model.UsersCollection, uid)
	if err != nil {
		a.logger.Debug().Err(err).Msg("active task unavailable")
		return ""
	}
	var user model.User
	if err := doc.Decode(&user); err != nil {
		return ""
	}
	return taskTitle(user)
}

// watchedTask reads the active task title from the session's live data.
func watchedTask(sess *session.Session) string {
	data := sess.Data()
	return taskTitle(data.Users[data.AuthUserID])
}

func taskTitle(user model.User) string {
	if user.CurrentTaskTitle == nil {
		return ""
	}
	return *user.CurrentTaskTitle
}

func (a *App) watchCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "watch",
		Short: "Follow the shared timer live and complete intervals when they run out",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			sess, identity, err := a.connect(ctx)
			if err != nil {
				return err
			}
			defer sess.Close()

			if err := sess.SignIn(ctx, *identity); err != nil {
				return err
			}
			return a.follow(ctx, sess)
		},
	}
}

// follow renders the projector until ctx ends.
func (a *App) follow(ctx context.Context, sess *session.Session) error {
	ctrl := sess.Timer()
	p := projector.New(a.settings.WorkSeconds,
		projector.WithClock(a.Clock),
		projector.WithLogger(a.logger),
		projector.WithDisplay(func(d projector.Display) {
			a.printf("\r%s", a.renderWithTask(d, watchedTask(sess)))
		}),
		projector.WithNotifier(projector.NotifierFunc(func(status model.TimerStatus) {
			msg := "Focus session complete, time for a break."
			if status == model.StatusBreak {
				msg = "Break is over."
			}
			a.printf("\a\n%s\n", msg)
		})),
		projector.WithCompletion(func(ctx context.Context, observed model.TimerSnapshot) {
			if _, _, err := ctrl.Complete(ctx, observed); err != nil {
				a.logger.Warn().Err(err).Msg("completion will be retried")
			}
		}),
	)

	err := p.Run(ctx, sess.TimerUpdates(ctx))
	a.printf("\n")
	if ctx.Err() != nil {
		return nil
	}
	return err
}

// renderWithTask appends the active task to focus lines.
func (a *App) renderWithTask(d projector.Display, task string) string {
	line := a.render(d)
	if d.Status == model.StatusWork && task != "" {
		line += "  Objective: " + task
	}
	return line
}

func (a *App) render(d projector.Display) string {
	filled := int(d.Progress*progressWidth + 0.5)
	if filled > progressWidth {
		filled = progressWidth
	}
	if filled < 0 {
		filled = 0
	}
	bar := strings.Repeat("#", filled) + strings.Repeat("-", progressWidth-filled)
	return fmt.Sprintf("%-11s %s [%s]", d.Label, d.Clock(), bar)
}
