package cli

import (
	"context"
	"errors"

	"github.com/dmitrijs2005/gophchat/internal/api"
	"github.com/dmitrijs2005/gophchat/internal/client/client"
	"github.com/dmitrijs2005/gophchat/internal/common"
)

// prompt seams
var (
	getSimpleText  = GetSimpleText
	getPassword    = GetPassword
	getNewPassword = GetNewPassword
	wipe           = common.WipeByteArray
)

// Register prompts for a username, email and password, creates the account
// and signs in as it.
func (a *App) Register(ctx context.Context) error {
	username, err := getSimpleText(a.reader, "Enter username", a.out)
	if err != nil {
		return err
	}
	email, err := getSimpleText(a.reader, "Enter email", a.out)
	if err != nil {
		return err
	}
	password, err := getNewPassword(a.out)
	if err != nil {
		return err
	}
	defer wipe(password)

	user, err := a.auth.Register(ctx, username, email, password)
	if err != nil {
		return err
	}

	a.startSession(ctx, user)
	return nil
}

// Login prompts for credentials and signs in. The device key pair for the
// account is created on first login and its public half published.
func (a *App) Login(ctx context.Context) error {
	email, err := getSimpleText(a.reader, "Enter email", a.out)
	if err != nil {
		return err
	}
	password, err := getPassword("Password", a.out)
	if err != nil {
		return err
	}
	defer wipe(password)

	user, err := a.auth.Login(ctx, email, password)
	if err != nil {
		return err
	}

	a.startSession(ctx, user)
	return nil
}

// resume restores the saved session, falling back to the login prompt.
func (a *App) resume(ctx context.Context) {
	user, err := a.auth.Resume(ctx)
	if err == nil {
		a.startSession(ctx, user)
		return
	}

	switch {
	case errors.Is(err, client.ErrLocalDataNotAvailable), errors.Is(err, client.ErrUnauthorized):
		a.println("Please log in or register.")
	case errors.Is(err, client.ErrUnavailable):
		a.setMode(ModeOffline)
		a.println("Server unavailable, log in once it is back.")
	default:
		a.println("Could not restore session:", err)
	}
}

func (a *App) startSession(ctx context.Context, user *api.User) {
	a.chat.SetUser(user)
	a.setMode(ModeOnline)
	a.printf("Logged in as %s\n", user.Username)

	if _, err := a.chat.LoadUsers(ctx); err != nil {
		a.println("Could not load users:", err)
	}
	a.startListener(ctx)
}

// Logout stops the realtime stream and forgets the saved session. Device
// key pairs stay so earlier conversations remain readable.
func (a *App) Logout(ctx context.Context) error {
	a.stopListener()
	a.chat.SetUser(nil)
	if err := a.auth.Logout(ctx); err != nil {
		return err
	}
	a.println("Logged out")
	return nil
}
