package cli

import (
	"bufio"
	"context"
	"fmt"
	"strings"
)

// printlnFn is a test seam for user-facing output. In tests, replace it with a stub.
var printlnFn = fmt.Println

// execIface defines the minimal command surface the REPL needs to operate.
// The real App type satisfies this interface; tests can provide a lightweight stub.
type execIface interface {
	isLoggedIn() bool
	Register(ctx context.Context) error
	Login(ctx context.Context) error
	Logout(ctx context.Context) error
	LogoutAll(ctx context.Context) error
	WhoAmI(ctx context.Context) error
	Validate(ctx context.Context) error
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
	Save(ctx context.Context, args []string) error
	History(ctx context.Context) error
	Pending(ctx context.Context, args []string) error
	Metrics(ctx context.Context) error
}

// runREPL reads one command per line and dispatches it to a. The loop
// exits on scanner EOF, when ctx is done, or on "exit"/"quit".
//
//	Not logged in: help, register, login, pending, metrics, exit
//	Logged in:     help, whoami, validate, start, stop, save, history,
//	               logout, logoutall, pending, metrics, exit
//
// Handlers report their own errors; a failing command never ends the loop.
func runREPL(ctx context.Context, a execIface, statusFn func() string, scanner *bufio.Scanner) {
	for {
		if ctx.Err() != nil {
			return
		}
		printlnFn(fmt.Sprintf("vs %s > ", statusFn()))
		if !scanner.Scan() {
			return
		}
		parts := strings.Fields(scanner.Text())
		if len(parts) == 0 {
			continue
		}
		cmd, args := parts[0], parts[1:]

		var err error
		switch cmd {
		case "help":
			if a.isLoggedIn() {
				printlnFn("Available commands: whoami, validate, start, stop, save <status> <percent> [duration], history, logout, logoutall, pending [clear], metrics, exit")
			} else {
				printlnFn("Available commands: register, login, pending [clear], metrics, exit")
			}

		case "register":
			err = a.Register(ctx)
		case "login":
			err = a.Login(ctx)
		case "logout":
			err = a.Logout(ctx)
		case "logoutall":
			err = a.LogoutAll(ctx)
		case "whoami":
			err = a.WhoAmI(ctx)
		case "validate":
			err = a.Validate(ctx)
		case "start":
			err = a.Start(ctx)
		case "stop":
			err = a.Stop(ctx)
		case "save":
			err = a.Save(ctx, args)
		case "h", "history":
			err = a.History(ctx)
		case "pending":
			err = a.Pending(ctx, args)
		case "metrics":
			err = a.Metrics(ctx)

		case "exit", "quit":
			printlnFn("Bye!")
			return

		default:
			printlnFn("Unknown command:", cmd)
		}

		if err != nil {
			printlnFn("Error:", err.Error())
		}
	}
}
