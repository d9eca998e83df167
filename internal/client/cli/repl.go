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
	Users(ctx context.Context) error
	Open(ctx context.Context, who string) error
	Send(ctx context.Context, text string) error
	Image(ctx context.Context, path, caption string) error
	SaveImage(ctx context.Context, key string) error
	Online(ctx context.Context) error
	WhoAmI(ctx context.Context) error
}

// runREPL starts a read–eval–print loop for the GophChat CLI.
//
// It reads a line from the scanner, parses the first token as the command
// and dispatches to methods on 'a'. The loop exits on scanner EOF, on
// "exit" or "quit", or when ctx is cancelled.
//
// Commands
//
//	Not logged in:
//	  - help              show available commands
//	  - register          create an account and sign in
//	  - login             authenticate
//	  - exit | quit       leave the program
//
//	Logged in:
//	  - users             list users, online state and unread counts
//	  - open <username>   open a conversation and print its history
//	  - send [text]       send text (prompts when text is omitted)
//	  - image <path> [caption]
//	  - save <key>        download an image
//	  - online            who is connected
//	  - whoami            your profile
//	  - logout
//
// A line that is not a command is sent to the open conversation. Command
// errors are printed and the loop continues.
func runREPL(ctx context.Context, a execIface, statusFn func() string, scanner *bufio.Scanner) {
	for {
		if ctx.Err() != nil {
			return
		}
		printlnFn(fmt.Sprintf("gophchat%s> ", statusFn()))
		if !scanner.Scan() {
			return
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		cmd, rest, _ := strings.Cut(line, " ")
		rest = strings.TrimSpace(rest)

		var err error

		switch cmd {
		case "help":
			if a.isLoggedIn() {
				printlnFn("Available commands: users, open <username>, send [text], image <path> [caption], save <key>, online, whoami, logout, exit")
			} else {
				printlnFn("Available commands: register, login, exit")
			}

		case "exit", "quit":
			printlnFn("Bye!")
			return

		case "register":
			err = a.Register(ctx)

		case "login":
			err = a.Login(ctx)

		default:
			if !a.isLoggedIn() {
				printlnFn("Unknown command:", cmd, "(log in first, or type 'help')")
				continue
			}
			err = dispatchLoggedIn(ctx, a, cmd, rest, line)
		}

		if err != nil {
			printlnFn("Error:", err)
		}
	}
}

func dispatchLoggedIn(ctx context.Context, a execIface, cmd, rest, line string) error {
	switch cmd {
	case "users", "u":
		return a.Users(ctx)
	case "open", "o":
		return a.Open(ctx, rest)
	case "send", "s":
		return a.Send(ctx, rest)
	case "image":
		path, caption, _ := strings.Cut(rest, " ")
		return a.Image(ctx, path, strings.TrimSpace(caption))
	case "save":
		return a.SaveImage(ctx, rest)
	case "online":
		return a.Online(ctx)
	case "whoami":
		return a.WhoAmI(ctx)
	case "logout":
		return a.Logout(ctx)
	default:
		return a.Send(ctx, line)
	}
}
