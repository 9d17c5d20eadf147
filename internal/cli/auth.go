package cli

import (
	"errors"
	"fmt"

	"github.com/julianstephens/habitpilot/internal/session"
)

type LoginCmd struct {
	Token string `arg:"" optional:"" help:"API token. Prompted for when omitted." env:"HABITPILOT_TOKEN"`
}

func (c *LoginCmd) Run(ctx *Context) error {
	token := c.Token
	if token == "" {
		var err error
		if token, err = promptToken(); err != nil {
			return err
		}
	}

	if err := ctx.Sessions.Login(ctx.Ctx, token); err != nil {
		if errors.Is(err, session.ErrKeyringUnavailable) {
			return fmt.Errorf("cannot store token: %w", err)
		}
		return err
	}
	ctx.println(okStyle.Render("✓ Logged in"))

	// The session change emptied the local collection; pull the new user's.
	ctx.Sessions.RequestRefresh(ctx.Ctx)
	ctx.printf("Loaded %d habits\n", ctx.Habits.Len())
	return nil
}

type LogoutCmd struct{}

func (c *LogoutCmd) Run(ctx *Context) error {
	if err := ctx.Sessions.Logout(ctx.Ctx); err != nil {
		return err
	}
	ctx.println(okStyle.Render("✓ Logged out, local habits cleared"))
	return nil
}

type RefreshCmd struct{}

func (c *RefreshCmd) Run(ctx *Context) error {
	if !ctx.Sessions.LoggedIn() {
		return fmt.Errorf("not logged in; run 'habitpilot login' first")
	}
	if err := ctx.Habits.Refresh(ctx.Ctx); err != nil {
		return err
	}
	ctx.printf("Refreshed %d habits\n", ctx.Habits.Len())
	return nil
}
