package main

import (
	"context"
	"fmt"
	"net/http"

	"github.com/spf13/cobra"
	"github.com/yanachan-dev/homepage/pkg/api"
	"github.com/yanachan-dev/homepage/pkg/i18n"
	"github.com/yanachan-dev/homepage/pkg/kv"
	"github.com/yanachan-dev/homepage/pkg/validate"
)

// site is what the account commands work with: the app, a client for the
// origin's API carrying the saved token, and a translator.
type site struct {
	*app
	client *api.Client
	tr     *i18n.Translator
}

// withSite opens the app and runs fn against the configured origin.
func withSite(cmd *cobra.Command, fn func(ctx context.Context, s *site) error) error {
	a, err := openCommandApp(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	ctx := cmd.Context()
	cookies, err := kv.NewCookies(a.cfg.Origin)
	if err != nil {
		return err
	}
	c := api.New(a.cfg.Origin,
		api.WithCookies(cookies),
		api.WithStorage(a.storage),
		api.WithBus(a.bus),
		api.WithLogger(a.logger),
	)
	c.SetAuthToken(c.AuthToken(ctx))

	return fn(ctx, &site{app: a, client: c, tr: newTranslator(ctx, a)})
}

func loginCmd() *cobra.Command {
	var cred api.Credentials

	cmd := &cobra.Command{
		Use:   "login",
		Short: "Sign in to the site",
		Long: `Sign in and keep the session token in the configured storage.

Examples:
  homepage login -u yana -p 'S3cret!pw'
  homepage login -u yana -p 'S3cret!pw' --remember`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSite(cmd, func(ctx context.Context, s *site) error {
				res, err := s.client.Login(ctx, cred)
				if err != nil {
					return fmt.Errorf("%s: %w", s.tr.T("error.loginFailed", nil), err)
				}
				if !res.Success {
					return fmt.Errorf("%s: %s", s.tr.T("error.loginFailed", nil), res.Message)
				}

				if res.User != nil {
					s.store.SetUser(*res.User)
				} else if p, err := s.client.UserInfo(ctx); err == nil {
					s.store.SetUser(p)
				} else {
					s.logger.Warn("fetching profile failed", "error", err)
				}
				fmt.Fprintln(cmd.OutOrStdout(), s.tr.T("message.loginSuccess", nil))
				return nil
			})
		},
	}

	cmd.Flags().StringVarP(&cred.Username, "username", "u", "", "Username")
	cmd.Flags().StringVarP(&cred.Password, "password", "p", "", "Password")
	cmd.Flags().BoolVar(&cred.Remember, "remember", false, "Ask the site for a long-lived session")
	cmd.MarkFlagRequired("username")
	cmd.MarkFlagRequired("password")

	return cmd
}

func registerCmd() *cobra.Command {
	var (
		reg      api.Registration
		sendCode bool
	)

	cmd := &cobra.Command{
		Use:   "register",
		Short: "Create an account",
		Long: `Create an account on the site.

Request an email code first with --send-code, then register with it.

Examples:
  homepage register --email yana@example.com --send-code
  homepage register -u yana --email yana@example.com -p 'S3cret!pw' --confirm 'S3cret!pw' --code 123456`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSite(cmd, func(ctx context.Context, s *site) error {
				out := cmd.OutOrStdout()
				if sendCode {
					if err := registrationForm(s.tr, reg, true).Err(); err != nil {
						return err
					}
					res, err := s.client.SendEmailCode(ctx, reg.Email)
					if err != nil {
						return err
					}
					if !res.Success {
						return fmt.Errorf("%s", res.Message)
					}
					fmt.Fprintln(out, s.tr.T("message.codeSent", nil))
					return nil
				}

				if err := registrationForm(s.tr, reg, false).Err(); err != nil {
					return err
				}
				if taken, err := s.client.CheckUsername(ctx, reg.Username); err != nil {
					return err
				} else if taken {
					return fmt.Errorf("%s", s.tr.T("error.usernameTaken", nil))
				}
				if taken, err := s.client.CheckEmail(ctx, reg.Email); err != nil {
					return err
				} else if taken {
					return fmt.Errorf("%s", s.tr.T("error.emailTaken", nil))
				}

				res, err := s.client.Register(ctx, reg)
				if err != nil {
					return fmt.Errorf("%s: %w", s.tr.T("error.registerFailed", nil), err)
				}
				if !res.Success {
					return fmt.Errorf("%s: %s", s.tr.T("error.registerFailed", nil), res.Message)
				}
				fmt.Fprintln(out, s.tr.T("message.registerSuccess", nil))
				return nil
			})
		},
	}

	cmd.Flags().StringVarP(&reg.Username, "username", "u", "", "Username (3-20 letters, digits or underscores)")
	cmd.Flags().StringVar(&reg.Email, "email", "", "Email address")
	cmd.Flags().StringVarP(&reg.Password, "password", "p", "", "Password")
	cmd.Flags().StringVar(&reg.ConfirmPassword, "confirm", "", "Password again")
	cmd.Flags().StringVar(&reg.EmailCode, "code", "", "Email verification code")
	cmd.Flags().BoolVar(&sendCode, "send-code", false, "Only mail a verification code to --email")

	return cmd
}

// registrationForm validates the sign-up form. With emailOnly only the
// email is checked, for requesting a code.
func registrationForm(tr *i18n.Translator, reg api.Registration, emailOnly bool) validate.FormResult {
	required := validate.Required(tr.T("error.required", nil))
	rules := map[string][]validate.Validator{
		"email": {required, validate.Email(tr.T("error.invalidEmail", nil))},
	}
	values := map[string]string{"email": reg.Email}
	if emailOnly {
		return validate.Form(values, rules)
	}

	rules["username"] = []validate.Validator{
		required,
		validate.Custom(validate.Username, tr.T("error.invalidUsername", nil)),
	}
	rules["password"] = []validate.Validator{
		required,
		validate.Custom(func(pw string) bool {
			return validate.PasswordStrength(pw).Valid
		}, tr.T("error.weakPassword", nil)),
	}
	rules["confirm_password"] = []validate.Validator{
		required,
		validate.SameAs("password", tr.T("error.passwordMismatch", nil)),
	}
	rules["email_code"] = []validate.Validator{required}

	values["username"] = reg.Username
	values["password"] = reg.Password
	values["confirm_password"] = reg.ConfirmPassword
	values["email_code"] = reg.EmailCode
	return validate.Form(values, rules)
}

func logoutCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Sign out and forget the saved session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSite(cmd, func(ctx context.Context, s *site) error {
				s.client.Logout(ctx)
				s.store.ClearUser()
				fmt.Fprintln(cmd.OutOrStdout(), s.tr.T("message.logoutSuccess", nil))
				return nil
			})
		},
	}
}

func whoamiCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Check the saved session and print the signed-in user",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSite(cmd, func(ctx context.Context, s *site) error {
				out := cmd.OutOrStdout()
				st, err := s.client.CheckLoginStatus(ctx)
				if api.IsStatus(err, http.StatusUnauthorized) {
					s.store.ClearUser()
					st, err = api.LoginStatus{}, nil
				}
				if err != nil {
					return err
				}
				if !st.LoggedIn {
					fmt.Fprintln(out, s.tr.T("message.notLoggedIn", nil))
					return nil
				}

				name := st.Username
				if p, err := s.client.UserInfo(ctx); err == nil {
					s.store.SetUser(p)
					name = p.Username
				} else {
					s.logger.Warn("fetching profile failed", "error", err)
				}
				fmt.Fprintln(out, s.tr.T("message.greeting", i18n.Params{"name": name}))
				return nil
			})
		},
	}
}
