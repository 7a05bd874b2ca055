package cli

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"mdpreview/internal/auth"
	"mdpreview/internal/format"
	"mdpreview/internal/model"
)

type userView struct {
	model.User
}

func (u userView) Text() string {
	verified := "unverified"
	if u.EmailVerified {
		verified = "verified"
	}
	return fmt.Sprintf("%s <%s> (%s, %s)\nid: %s", u.Name, u.Email, verified, u.Provider, u.ID)
}

// passwordInput reads the password from --password, then stdin when
// --password-stdin is set, then MDPREVIEW_PASSWORD.
func passwordInput(cmd *cobra.Command, flag string, fromStdin bool) (string, error) {
	if flag != "" {
		return flag, nil
	}
	if fromStdin {
		line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
		if err != nil && !errors.Is(err, io.EOF) {
			return "", err
		}
		return strings.TrimRight(line, "\r\n"), nil
	}
	if v := envOr("MDPREVIEW_PASSWORD", ""); v != "" {
		return v, nil
	}
	return "", errors.New("missing password (use --password, --password-stdin or MDPREVIEW_PASSWORD)")
}

func newRegisterCmd(app *App) *cobra.Command {
	var first, last, email, password string
	var passwordStdin bool

	cmd := &cobra.Command{
		Use:   "register",
		Short: "Create an account and sign in",
		Example: strings.TrimSpace(`
mdpreview register --first Ada --last Lovelace --email ada@example.com --password-stdin
`),
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			pw, err := passwordInput(cmd, password, passwordStdin)
			if err != nil {
				return writeErr(cmd, err)
			}
			svc, err := app.authService(ctx)
			if err != nil {
				return writeErr(cmd, err)
			}
			u, token, err := svc.Register(ctx, auth.RegisterInput{FirstName: first, LastName: last, Email: email, Password: pw})
			if err != nil {
				return writeErr(cmd, authError("register", err))
			}
			if err := app.writeToken(token); err != nil {
				return writeErr(cmd, err)
			}
			hints := []string{}
			verifyURL := strings.TrimRight(app.cfg.Server.BaseURL, "/") + "/verify"
			if err := svc.SendVerification(ctx, u.ID, verifyURL); err != nil {
				app.logger.Warn("verification email", "user_id", u.ID, "err", err)
			} else {
				hints = append(hints, "a verification link was written to "+app.cfg.OutboxDir())
			}
			return writeOut(cmd, app, format.Envelope{Data: userView{u}, Hints: hints})
		},
	}

	cmd.Flags().StringVar(&first, "first", "", "First name")
	cmd.Flags().StringVar(&last, "last", "", "Last name")
	cmd.Flags().StringVar(&email, "email", "", "Email address")
	cmd.Flags().StringVar(&password, "password", "", "Password (prefer --password-stdin)")
	cmd.Flags().BoolVar(&passwordStdin, "password-stdin", false, "Read the password from stdin")
	_ = cmd.MarkFlagRequired("first")
	_ = cmd.MarkFlagRequired("email")
	return cmd
}

func newLoginCmd(app *App) *cobra.Command {
	var email, password string
	var passwordStdin bool

	cmd := &cobra.Command{
		Use:   "login",
		Short: "Sign in; the session is stored in the data dir",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			pw, err := passwordInput(cmd, password, passwordStdin)
			if err != nil {
				return writeErr(cmd, err)
			}
			svc, err := app.authService(ctx)
			if err != nil {
				return writeErr(cmd, err)
			}
			u, token, err := svc.Login(ctx, email, pw)
			if err != nil {
				return writeErr(cmd, authError("login", err))
			}
			if err := app.writeToken(token); err != nil {
				return writeErr(cmd, err)
			}
			return writeOut(cmd, app, format.Envelope{Data: userView{u}})
		},
	}

	cmd.Flags().StringVar(&email, "email", "", "Email address")
	cmd.Flags().StringVar(&password, "password", "", "Password (prefer --password-stdin)")
	cmd.Flags().BoolVar(&passwordStdin, "password-stdin", false, "Read the password from stdin")
	_ = cmd.MarkFlagRequired("email")
	return cmd
}

func newLogoutCmd(app *App) *cobra.Command {
	var all bool

	cmd := &cobra.Command{
		Use:   "logout",
		Short: "Sign out (--all signs out every browser and terminal too)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			svc, err := app.authService(ctx)
			if err != nil {
				return writeErr(cmd, err)
			}
			token, err := app.readToken()
			if err != nil {
				return writeErr(cmd, err)
			}
			if all {
				u, err := app.currentUser(ctx, svc)
				if err != nil {
					return writeErr(cmd, err)
				}
				if u == nil {
					return writeErr(cmd, errNotSignedIn)
				}
				if err := svc.LogoutAll(ctx, u.ID); err != nil {
					return writeErr(cmd, err)
				}
			} else if token != "" {
				_ = svc.Logout(ctx, token)
			}
			if err := app.removeToken(); err != nil {
				return writeErr(cmd, err)
			}
			return writeOut(cmd, app, format.Envelope{Data: map[string]any{"signedOut": true, "everywhere": all}})
		},
	}
	cmd.Flags().BoolVar(&all, "all", false, "Invalidate every session of this account")
	return cmd
}

func newWhoamiCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Show the signed-in account",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			u, err := app.requireUser(cmd.Context())
			if err != nil {
				return writeErr(cmd, err)
			}
			return writeOut(cmd, app, format.Envelope{Data: userView{*u}})
		},
	}
}
