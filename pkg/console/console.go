// Package console runs a talebot conversation in the terminal.
//
// Plain lines are answers to the current question. Slash commands start
// flows (/profile, /story, /edit, /feedback), cancel one (/cancel), list data
// (/children, /history) or leave (/quit).
package console

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"github.com/aretw0/talebot/pkg/domain"
	"github.com/google/uuid"
	"golang.org/x/term"
)

// DefaultHistoryLimit is the number of stories /history shows.
const DefaultHistoryLimit = 5

const helpText = `Commands:
  /profile          add a child profile
  /story            request a bedtime story
  /edit             edit a child profile
  /feedback         rate a story
  /cancel           stop what you're doing
  /children         list your child profiles
  /history <child>  show a child's recent stories
  /help             show this help
  /quit             leave`

var flowCommands = map[string]domain.FlowKind{
	"/profile":  domain.FlowProfileCreation,
	"/story":    domain.FlowStoryRequest,
	"/edit":     domain.FlowProfileEdit,
	"/feedback": domain.FlowStoryFeedback,
}

// TurnHandler processes one inbound chat message.
type TurnHandler interface {
	HandleTurn(ctx context.Context, key string, flowIfNew domain.FlowKind, raw string) domain.Instruction
}

// ProfileLister lists a user's child profiles.
type ProfileLister interface {
	Children(ctx context.Context, externalKey string) ([]domain.ChildProfile, error)
}

// HistoryLister lists a child's recent stories.
type HistoryLister interface {
	History(ctx context.Context, externalKey string, childID int64, limit int) ([]domain.Story, error)
}

// Console is a line-oriented chat loop.
type Console struct {
	turns    TurnHandler
	profiles ProfileLister
	history  HistoryLister
	key      string
	in       io.Reader
	out      io.Writer
	render   func(string) (string, error)
	logger   *slog.Logger
}

// Option configures a Console.
type Option func(*Console)

// WithSessionKey fixes the session key, which is also the user key for
// profiles and stories. The default is a fresh "console:<uuid>".
func WithSessionKey(key string) Option {
	return func(c *Console) { c.key = key }
}

// WithIO sets the input and output streams.
func WithIO(in io.Reader, out io.Writer) Option {
	return func(c *Console) {
		c.in = in
		c.out = out
	}
}

// WithRenderer sets the markdown renderer used for bot replies.
func WithRenderer(render func(string) (string, error)) Option {
	return func(c *Console) { c.render = render }
}

// WithProfiles enables /children.
func WithProfiles(p ProfileLister) Option {
	return func(c *Console) { c.profiles = p }
}

// WithHistory enables /history.
func WithHistory(h HistoryLister) Option {
	return func(c *Console) { c.history = h }
}

// WithLogger sets the console logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Console) { c.logger = logger }
}

// New creates a console bound to turns.
func New(turns TurnHandler, opts ...Option) *Console {
	c := &Console{
		turns:  turns,
		key:    "console:" + uuid.NewString(),
		in:     os.Stdin,
		out:    os.Stdout,
		render: func(s string) (string, error) { return s, nil },
		logger: slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Interactive reports whether f is attached to a terminal.
func Interactive(f *os.File) bool {
	return term.IsTerminal(int(f.Fd()))
}

// SessionKey returns the key this console talks under.
func (c *Console) SessionKey() string {
	return c.key
}

// Run reads lines until /quit, end of input or ctx cancellation.
//
// Reads cannot be interrupted, so on return Run closes the input when it is
// an io.Closer to release the reading goroutine. Any other reader keeps that
// goroutine blocked until its next line or end of input.
func (c *Console) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	if closer, ok := c.in.(io.Closer); ok {
		defer closer.Close()
	}

	c.println("Hi! I write bedtime stories. Send /help to see what I can do.")

	lines := make(chan string)
	scanErr := make(chan error, 1)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(c.in)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
		scanErr <- scanner.Err()
	}()

	for {
		c.prompt()
		select {
		case <-ctx.Done():
			return nil
		case line, ok := <-lines:
			if !ok {
				select {
				case err := <-scanErr:
					if err != nil {
						return fmt.Errorf("read input: %w", err)
					}
				default:
				}
				return nil
			}
			if quit := c.Handle(ctx, line); quit {
				return nil
			}
		}
	}
}

// Handle processes one input line and reports whether the user asked to quit.
func (c *Console) Handle(ctx context.Context, line string) bool {
	trimmed := strings.TrimSpace(line)
	if trimmed == "" {
		return false
	}
	fields := strings.Fields(trimmed)
	cmd := strings.ToLower(fields[0])
	if !strings.HasPrefix(cmd, "/") {
		c.show(c.turns.HandleTurn(ctx, c.key, "", line))
		return false
	}

	if kind, ok := flowCommands[cmd]; ok {
		c.show(c.turns.HandleTurn(ctx, c.key, kind, ""))
		return false
	}

	switch cmd {
	case "/quit", "/exit":
		c.println("Good night!")
		return true
	case "/help", "/start":
		c.println(helpText)
	case "/cancel":
		c.show(c.turns.HandleTurn(ctx, c.key, "", "/cancel"))
	case "/children":
		c.listChildren(ctx)
	case "/history":
		c.listHistory(ctx, fields[1:])
	default:
		c.println(fmt.Sprintf("Unknown command %s. Send /help to see what I can do.", fields[0]))
	}
	return false
}

func (c *Console) show(inst domain.Instruction) {
	text := inst.Text
	if inst.Input == domain.InputChoice && len(inst.Choices) > 0 &&
		(inst.Kind == domain.InstructionPrompt || inst.Kind == domain.InstructionReprompt) {
		text += "\n\nOptions: " + strings.Join(inst.Choices, ", ")
	}

	rendered, err := c.render(text)
	if err != nil {
		c.logger.Warn("render reply failed", "err", err)
		rendered = text
	}
	c.println(strings.TrimRight(rendered, "\n"))
}

func (c *Console) listChildren(ctx context.Context) {
	if c.profiles == nil {
		c.println("Profiles are not available here.")
		return
	}
	children, err := c.profiles.Children(ctx, c.key)
	if err != nil {
		c.logger.Error("list children failed", "err", err)
		c.println("I couldn't load your profiles right now.")
		return
	}
	if len(children) == 0 {
		c.println("You have no child profiles yet. Send /profile to add one.")
		return
	}
	var sb strings.Builder
	sb.WriteString("Your children:")
	for _, child := range children {
		fmt.Fprintf(&sb, "\n  %d. %s, %d years old", child.ID, child.Name, child.Age)
	}
	c.println(sb.String())
}

func (c *Console) listHistory(ctx context.Context, args []string) {
	if c.history == nil {
		c.println("History is not available here.")
		return
	}
	if len(args) != 1 {
		c.println("Usage: /history <child number>. Send /children to see the numbers.")
		return
	}
	childID, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil || childID <= 0 {
		c.println("The child number should be a positive whole number.")
		return
	}

	stories, err := c.history.History(ctx, c.key, childID, DefaultHistoryLimit)
	if err != nil {
		c.println(domain.UserMessage(err, "I couldn't load the stories right now."))
		return
	}
	if len(stories) == 0 {
		c.println("No stories yet. Send /story to get one.")
		return
	}
	var sb strings.Builder
	sb.WriteString("Recent stories:")
	for _, s := range stories {
		fmt.Fprintf(&sb, "\n  %s  %s  %q", s.ID, s.CreatedAt.Format("2006-01-02"), s.Theme)
		if s.Feedback != "" {
			fmt.Fprintf(&sb, " (%s)", s.Feedback)
		}
	}
	c.println(sb.String())
}

func (c *Console) prompt() {
	fmt.Fprint(c.out, "> ")
}

func (c *Console) println(s string) {
	fmt.Fprintln(c.out, s)
}
