package cli

import (
	"context"
	"fmt"
	"io"

	"github.com/dmitrijs2005/voicescreen/internal/client/models"
)

// getSimpleText, getPassword and getInt are indirections used to
// facilitate testing. They point to interactive input helpers and can be
// swapped in tests.
var (
	getSimpleText = GetSimpleText
	getPassword   = GetPassword
	getInt        = GetInt
)

// Register prompts for the account fields and creates the account. It
// does not log in.
func (a *App) Register(ctx context.Context) error {
	var req models.RegisterRequest
	var err error

	if req.FullName, err = getSimpleText(a.reader, "Enter full name", a.out); err != nil {
		return err
	}
	if req.Username, err = getSimpleText(a.reader, "Enter username", a.out); err != nil {
		return err
	}
	if req.Email, err = getSimpleText(a.reader, "Enter email", a.out); err != nil {
		return err
	}
	if req.Age, err = getInt(a.reader, "Enter age", a.out, 0); err != nil {
		return err
	}
	if req.Gender, err = getSimpleText(a.reader, "Enter gender", a.out); err != nil {
		return err
	}

	password, err := getPassword(a.out)
	if err != nil {
		return err
	}
	defer clear(password)
	req.Password = string(password)

	msg, err := a.auth.Register(ctx, req)
	if err != nil {
		return err
	}

	fmt.Fprintln(a.out, msg)
	return nil
}

// Login prompts for email and password and starts a session.
func (a *App) Login(ctx context.Context) error {
	email, err := getSimpleText(a.reader, "Enter email", a.out)
	if err != nil {
		return err
	}

	password, err := getPassword(a.out)
	if err != nil {
		return err
	}
	defer clear(password)

	resp, err := a.auth.Login(ctx, models.LoginRequest{Email: email, Password: string(password)})
	if err != nil {
		a.log.Warn(ctx, "login unsuccessful", "error", err)
		return err
	}

	a.setState(ctx, a.auth.State())
	fmt.Fprintf(a.out, "Logged in as %s\n", resp.User.Username)
	return nil
}

// Logout ends the session. The local session is cleared even when the
// server cannot be reached.
func (a *App) Logout(ctx context.Context) error {
	err := a.auth.Logout(ctx)
	a.setState(ctx, a.auth.State())
	if err != nil {
		return err
	}
	fmt.Fprintln(a.out, "Logged out")
	return nil
}

func (a *App) LogoutAll(ctx context.Context) error {
	err := a.auth.LogoutAll(ctx)
	a.setState(ctx, a.auth.State())
	if err != nil {
		return err
	}
	fmt.Fprintln(a.out, "Logged out of all sessions")
	return nil
}

// WhoAmI fetches the profile from the server, falling back to the cached
// one when the server cannot be asked.
func (a *App) WhoAmI(ctx context.Context) error {
	u, err := a.auth.UserInfo(ctx)
	if err != nil {
		cached := a.auth.CurrentUser(ctx)
		if cached == nil {
			return err
		}
		a.log.Warn(ctx, "showing cached profile", "error", err)
		u = cached
	}
	a.setState(ctx, a.auth.State())
	printUser(a.out, u)
	return nil
}

func (a *App) Validate(ctx context.Context) error {
	if a.auth.ValidateToken(ctx) {
		fmt.Fprintln(a.out, "Token is valid")
	} else {
		fmt.Fprintln(a.out, "Token is not valid")
	}
	a.setState(ctx, a.auth.State())
	return nil
}

func printUser(w io.Writer, u *models.User) {
	fmt.Fprintf(w, "id:       %d\n", u.ID)
	fmt.Fprintf(w, "username: %s\n", u.Username)
	fmt.Fprintf(w, "email:    %s\n", u.Email)
	fmt.Fprintf(w, "name:     %s\n", u.FullName)
}
