package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

type fakeExec struct {
	loggedIn bool
	calls    []string
	err      error
}

func (f *fakeExec) record(call string) error {
	f.calls = append(f.calls, call)
	return f.err
}

func (f *fakeExec) isLoggedIn() bool                   { return f.loggedIn }
func (f *fakeExec) Register(ctx context.Context) error { return f.record("register") }
func (f *fakeExec) Login(ctx context.Context) error    { return f.record("login") }
func (f *fakeExec) Logout(ctx context.Context) error   { return f.record("logout") }
func (f *fakeExec) Users(ctx context.Context) error    { return f.record("users") }
func (f *fakeExec) Online(ctx context.Context) error   { return f.record("online") }
func (f *fakeExec) WhoAmI(ctx context.Context) error   { return f.record("whoami") }
func (f *fakeExec) Open(ctx context.Context, who string) error {
	return f.record("open:" + who)
}
func (f *fakeExec) Send(ctx context.Context, text string) error {
	return f.record("send:" + text)
}
func (f *fakeExec) Image(ctx context.Context, path, caption string) error {
	return f.record("image:" + path + "|" + caption)
}
func (f *fakeExec) SaveImage(ctx context.Context, key string) error {
	return f.record("save:" + key)
}

func captureOutput(t *testing.T) *[]string {
	t.Helper()
	var lines []string
	old := printlnFn
	printlnFn = func(a ...any) (int, error) {
		lines = append(lines, strings.TrimSuffix(fmt.Sprintln(a...), "\n"))
		return 0, nil
	}
	t.Cleanup(func() { printlnFn = old })
	return &lines
}

func runScript(t *testing.T, f *fakeExec, script string) []string {
	t.Helper()
	out := captureOutput(t)
	runREPL(context.Background(), f, func() string { return "" }, bufio.NewScanner(strings.NewReader(script)))
	return *out
}

func TestREPL_LoggedOutCommands(t *testing.T) {
	f := &fakeExec{}
	out := runScript(t, f, "help\nregister\nlogin\nusers\nexit\nlogin\n")

	assert.Equal(t, []string{"register", "login"}, f.calls)
	joined := strings.Join(out, "\n")
	assert.Contains(t, joined, "Available commands: register, login, exit")
	assert.Contains(t, joined, "Unknown command: users")
	assert.Contains(t, joined, "Bye!")
}

func TestREPL_LoggedInDispatch(t *testing.T) {
	f := &fakeExec{loggedIn: true}
	script := strings.Join([]string{
		"users",
		"open bob",
		"send hello there",
		"image /tmp/cat.png a cute cat",
		"save images/k1",
		"online",
		"whoami",
		"just chatting",
		"",
		"logout",
		"quit",
	}, "\n")
	runScript(t, f, script)

	assert.Equal(t, []string{
		"users",
		"open:bob",
		"send:hello there",
		"image:/tmp/cat.png|a cute cat",
		"save:images/k1",
		"online",
		"whoami",
		"send:just chatting",
		"logout",
	}, f.calls)
}

func TestREPL_PrintsErrorsAndContinues(t *testing.T) {
	f := &fakeExec{loggedIn: true, err: errors.New("boom")}
	out := runScript(t, f, "users\nonline\n")

	assert.Equal(t, []string{"users", "online"}, f.calls)
	assert.Contains(t, strings.Join(out, "\n"), "Error: boom")
}

func TestREPL_StopsOnCancelledContext(t *testing.T) {
	f := &fakeExec{loggedIn: true}
	captureOutput(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	runREPL(ctx, f, func() string { return "" }, bufio.NewScanner(strings.NewReader("users\n")))
	assert.Empty(t, f.calls)
}

func TestREPL_PromptIncludesStatus(t *testing.T) {
	f := &fakeExec{}
	out := captureOutput(t)
	runREPL(context.Background(), f, func() string { return "(alice online)" }, bufio.NewScanner(strings.NewReader("exit\n")))

	assert.Equal(t, "gophchat(alice online)> ", (*out)[0])
}
