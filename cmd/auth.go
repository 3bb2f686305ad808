package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/desertthunder/pricewatch/internal/auth"
	"github.com/desertthunder/pricewatch/internal/models"
	"github.com/desertthunder/pricewatch/internal/shared"
	"github.com/urfave/cli/v3"
)

// AuthLogin signs in with email and password, prompting for whatever was not passed as a flag.
func (r *Runner) AuthLogin(ctx context.Context, cmd *cli.Command) error {
	if err := r.start(ctx); err != nil {
		return err
	}

	prompter := auth.NewPrompter(r.input, r.output)
	email, err := flagOrPrompt(cmd.String("email"), func() (string, error) { return prompter.Line("Email") })
	if err != nil {
		return err
	}
	password, err := flagOrPrompt(cmd.String("password"), func() (string, error) { return prompter.Password("Password") })
	if err != nil {
		return err
	}

	user, err := r.auth.Login(ctx, email, password)
	if err != nil {
		return err
	}
	return r.writePlain("✓ Logged in as %s\n", user.DisplayName())
}

// AuthRegister creates an account. With --code the verified endpoint is used; with --login
// the new account is signed in afterwards.
func (r *Runner) AuthRegister(ctx context.Context, cmd *cli.Command) error {
	if err := r.start(ctx); err != nil {
		return err
	}

	prompter := auth.NewPrompter(r.input, r.output)
	req := models.RegisterRequest{VerificationCode: cmd.String("code")}
	var err error
	if req.Username, err = flagOrPrompt(cmd.String("username"), func() (string, error) { return prompter.Line("Username") }); err != nil {
		return err
	}
	if req.Email, err = flagOrPrompt(cmd.String("email"), func() (string, error) { return prompter.Line("Email") }); err != nil {
		return err
	}
	if req.Password, err = flagOrPrompt(cmd.String("password"), func() (string, error) { return prompter.Password("Password") }); err != nil {
		return err
	}

	var user *models.User
	if req.VerificationCode != "" {
		user, err = r.auth.RegisterWithVerification(ctx, req)
	} else {
		user, err = r.auth.Register(ctx, req)
	}
	if err != nil {
		return err
	}
	r.writePlain("✓ Account created for %s\n", user.DisplayName())

	if !cmd.Bool("login") {
		return r.writePlain("Run 'pwatch auth login' to sign in.\n")
	}
	if _, err := r.auth.Login(ctx, req.Email, req.Password); err != nil {
		return fmt.Errorf("account created but sign in failed: %w", err)
	}
	return r.writePlain("✓ Logged in as %s\n", user.DisplayName())
}

// AuthSendCode asks the service to email a verification code.
func (r *Runner) AuthSendCode(ctx context.Context, cmd *cli.Command) error {
	email := cmd.Args().First()
	if email == "" {
		return fmt.Errorf("%w: email", shared.ErrMissingArgument)
	}
	if err := r.start(ctx); err != nil {
		return err
	}

	msg, err := r.auth.SendVerificationCode(ctx, email)
	if err != nil {
		return err
	}
	if msg == "" {
		msg = "verification code sent"
	}
	return r.writePlain("✓ %s\n", msg)
}

// AuthOAuth runs the browser login flow.
func (r *Runner) AuthOAuth(ctx context.Context, cmd *cli.Command) error {
	if err := r.start(ctx); err != nil {
		return err
	}

	flow := r.oauthFlow(r.output, cmd.String("provider"))
	if cmd.Bool("no-browser") {
		flow.Open = nil
	}
	user, err := flow.Run(ctx)
	if err != nil {
		return err
	}
	return r.writePlain("✓ Logged in as %s\n", user.DisplayName())
}

// AuthTelegram signs in with a Telegram identity.
func (r *Runner) AuthTelegram(ctx context.Context, cmd *cli.Command) error {
	if err := r.start(ctx); err != nil {
		return err
	}

	user, err := r.auth.Telegram(ctx, models.TelegramIdentity{
		TelegramID:  cmd.Int64("telegram-id"),
		PhoneNumber: cmd.String("phone"),
		Username:    cmd.String("username"),
		FirstName:   cmd.String("first-name"),
		LastName:    cmd.String("last-name"),
	})
	if err != nil {
		return err
	}
	return r.writePlain("✓ Logged in as %s\n", user.DisplayName())
}

// AuthLogout ends the session.
func (r *Runner) AuthLogout(ctx context.Context, cmd *cli.Command) error {
	if err := r.start(ctx); err != nil {
		return err
	}
	wasSignedIn := r.session.IsAuthenticated()
	r.auth.Logout()
	if !wasSignedIn {
		return r.writePlain("Not signed in.\n")
	}
	return r.writePlain("✓ Logged out\n")
}

type authStatus struct {
	State     string       `json:"state"`
	User      *models.User `json:"user,omitempty"`
	Subject   string       `json:"token_subject,omitempty"`
	ExpiresAt *time.Time   `json:"token_expires_at,omitempty"`
	Expired   bool         `json:"token_expired"`
}

// AuthStatus reports the session after rehydration, plus what the stored token claims.
func (r *Runner) AuthStatus(ctx context.Context, cmd *cli.Command) error {
	if err := r.start(ctx); err != nil {
		return err
	}

	snap := r.session.Snapshot()
	status := authStatus{State: snap.State.String(), User: snap.User}
	if snap.Token != "" {
		if info, err := auth.InspectToken(snap.Token); err == nil {
			status.Subject = info.Subject
			if !info.ExpiresAt.IsZero() {
				exp := info.ExpiresAt
				status.ExpiresAt = &exp
			}
			status.Expired = info.Expired(time.Now())
		} else {
			r.logger.Debug("token is opaque", "error", err)
		}
	}

	if cmd.Bool("json") {
		return r.writeJSON(status, true)
	}
	return r.writeAuthStatus(status)
}

func (r *Runner) writeAuthStatus(s authStatus) error {
	r.writePlainHeader("Session")
	if s.User == nil {
		return r.writePlain("State: %s\nNot signed in. Run 'pwatch auth login'.\n", s.State)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "State: %s\n", s.State)
	fmt.Fprintf(&b, "User: %s", s.User.DisplayName())
	if s.User.Email != "" && s.User.Email != s.User.DisplayName() {
		fmt.Fprintf(&b, " <%s>", s.User.Email)
	}
	b.WriteString("\n")
	if s.User.SubscriptionTier != "" {
		fmt.Fprintf(&b, "Plan: %s\n", s.User.SubscriptionTier)
	}
	if s.User.TelegramChatID != nil {
		b.WriteString("Telegram: linked\n")
	}
	if s.ExpiresAt != nil {
		fmt.Fprintf(&b, "Token expires: %s", s.ExpiresAt.Local().Format(time.RFC1123))
		if s.Expired {
			b.WriteString(" (expired)")
		}
		b.WriteString("\n")
	}
	return r.writeBytes([]byte(b.String()))
}

func flagOrPrompt(value string, prompt func() (string, error)) (string, error) {
	if value != "" {
		return value, nil
	}
	v, err := prompt()
	if err != nil {
		return "", fmt.Errorf("failed to read input: %w", err)
	}
	return v, nil
}
