// Package cli is the syncfocus command line client.
package cli

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/term"

	"github.com/GolferGeek/sync-focus/internal/assist"
	"github.com/GolferGeek/sync-focus/internal/auth"
	"github.com/GolferGeek/sync-focus/internal/docstore/remote"
	"github.com/GolferGeek/sync-focus/internal/logging"
	"github.com/GolferGeek/sync-focus/internal/model"
	"github.com/GolferGeek/sync-focus/internal/session"
)

// App carries what the commands share. The zero value of each field is
// replaced by the process default in NewRootCommand.
type App struct {
	In     io.Reader
	Out    io.Writer
	Err    io.Writer
	Clock  clockwork.Clock
	Prompt func(label string) (string, error)

	viper     *viper.Viper
	configDir string
	settings  Settings
	logger    zerolog.Logger
}

func NewRootCommand(app *App) *cobra.Command {
	if app.In == nil {
		app.In = os.Stdin
	}
	if app.Out == nil {
		app.Out = os.Stdout
	}
	if app.Err == nil {
		app.Err = os.Stderr
	}
	if app.Clock == nil {
		app.Clock = clockwork.NewRealClock()
	}
	if app.Prompt == nil {
		app.Prompt = app.readPassword
	}
	app.viper = newViper()

	root := &cobra.Command{
		Use:           "syncfocus",
		Short:         "SyncFocus - a shared pomodoro timer and task board for small teams",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			settings, err := loadSettings(app.viper, app.configDir)
			if err != nil {
				return err
			}
			app.settings = settings
			app.logger = logging.NewWithWriter(app.Err, settings.LogLevel, true)
			return nil
		},
	}

	root.PersistentFlags().StringVar(&app.configDir, "config-dir", defaultConfigDir(), "Directory holding config.yaml and credentials")
	root.PersistentFlags().String("server", "", "Document service URL")
	root.PersistentFlags().String("log-level", "", "Log level (debug, info, warn, error)")
	_ = app.viper.BindPFlag("server", root.PersistentFlags().Lookup("server"))
	_ = app.viper.BindPFlag("log_level", root.PersistentFlags().Lookup("log-level"))

	root.AddCommand(app.signupCmd())
	root.AddCommand(app.loginCmd())
	root.AddCommand(app.logoutCmd())
	root.AddCommand(app.whoamiCmd())
	root.AddCommand(app.timerCmd())
	root.AddCommand(app.watchCmd())
	root.AddCommand(app.taskCmd())
	root.AddCommand(app.projectCmd())
	root.AddCommand(app.teamCmd())

	return root
}

// Execute runs the CLI with process defaults.
func Execute(version string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	root := NewRootCommand(&App{})
	root.Version = version
	if err := root.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		return err
	}
	return nil
}

func (a *App) authClient() *auth.Client {
	return auth.NewClient(a.settings.Server, auth.WithLogger(a.logger))
}

func (a *App) assistant() assist.Assistant {
	return assist.New(a.settings.GeminiAPIKey,
		assist.WithModel(a.settings.GeminiModel),
		assist.WithLogger(a.logger),
	)
}

// connect restores the saved sign-in and opens a session against the
// server that issued it. The caller closes the session.
func (a *App) connect(ctx context.Context) (*session.Session, *model.Identity, error) {
	creds, err := loadCredentials(a.configDir)
	if err != nil {
		return nil, nil, err
	}
	server := creds.Server
	if server == "" {
		server = a.settings.Server
	}

	authClient := auth.NewClient(server, auth.WithLogger(a.logger))
	identity, err := authClient.Restore(ctx, creds.Token)
	if err != nil {
		return nil, nil, fmt.Errorf("session expired, log in again: %w", err)
	}

	store, err := remote.New(server, remote.WithToken(creds.Token), remote.WithLogger(a.logger))
	if err != nil {
		return nil, nil, err
	}
	sess := session.New(store, a.Clock, a.logger, session.WithMachine(a.settings.Machine()))
	if err := sess.Attach(ctx, *identity); err != nil {
		sess.Close()
		return nil, nil, err
	}
	return sess, identity, nil
}

func (a *App) readPassword(label string) (string, error) {
	fmt.Fprint(a.Err, label)
	if f, ok := a.In.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		b, err := term.ReadPassword(int(f.Fd()))
		fmt.Fprintln(a.Err)
		if err != nil {
			return "", fmt.Errorf("failed to read password: %w", err)
		}
		return string(b), nil
	}

	line, err := bufio.NewReader(a.In).ReadString('\n')
	if err != nil && line == "" {
		return "", fmt.Errorf("failed to read password: %w", err)
	}
	return strings.TrimRight(line, "\r\n"), nil
}

func (a *App) printf(format string, args ...any) {
	fmt.Fprintf(a.Out, format, args...)
}
