package cli

import (
	"errors"
	"net/url"

	"github.com/spf13/cobra"

	"github.com/GolferGeek/sync-focus/internal/auth"
	"github.com/GolferGeek/sync-focus/internal/model"
)

func (a *App) signupCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "signup [email]",
		Short: "Create an account and log in",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			name, _ := cmd.Flags().GetString("name")
			password, err := a.Prompt("Password: ")
			if err != nil {
				return err
			}

			client := a.authClient()
			identity, err := client.SignUp(cmd.Context(), args[0], password, name)
			if err != nil {
				return a.describe(err)
			}
			return a.remember(client, identity)
		},
	}
	cmd.Flags().String("name", "", "Display name shown to the team")
	return cmd
}

func (a *App) loginCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "login [email]",
		Short: "Log in with email and password",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			password, err := a.Prompt("Password: ")
			if err != nil {
				return err
			}

			client := a.authClient()
			identity, err := client.SignInWithPassword(cmd.Context(), args[0], password)
			if err != nil {
				return a.describe(err)
			}
			return a.remember(client, identity)
		},
	}
}

func (a *App) logoutCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Forget the saved login",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := removeCredentials(a.configDir); err != nil {
				return err
			}
			a.printf("Logged out.\n")
			return nil
		},
	}
}

func (a *App) whoamiCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Show the logged in user",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			sess, identity, err := a.connect(cmd.Context())
			if err != nil {
				return err
			}
			defer sess.Close()

			a.printf("%s <%s>\n", identity.DisplayName, identity.Email)
			a.printf("  id:     %s\n", identity.UserID)
			return nil
		},
	}
}

func (a *App) remember(client *auth.Client, identity *model.Identity) error {
	creds := Credentials{
		Server:      a.settings.Server,
		Token:       client.Token(),
		UserID:      identity.UserID,
		Email:       identity.Email,
		DisplayName: identity.DisplayName,
	}
	if err := saveCredentials(a.configDir, creds); err != nil {
		return err
	}
	name := identity.DisplayName
	if name == "" {
		name = identity.Email
	}
	a.printf("Logged in as %s.\n", name)
	return nil
}

func (a *App) describe(err error) error {
	host := ""
	if u, parseErr := url.Parse(a.settings.Server); parseErr == nil {
		host = u.Hostname()
	}
	msg := auth.Describe(err, host)
	if msg == "" {
		return nil
	}
	return errors.New(msg)
}
