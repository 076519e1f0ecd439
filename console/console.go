// Package console is the operator's line interface to a running relay.
// It only reads registry state; nothing typed here reaches the protocol.
package console

import (
	"chat-relay/domain"
	"chat-relay/runtime/workers"
	"context"
	stderrors "errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/chzyer/readline"
	"github.com/dustin/go-humanize"
	"github.com/gookit/color"
	"github.com/olekukonko/tablewriter"
	"github.com/samber/lo"
)

const prompt = "relay> "

type UserSource interface {
	All() []domain.User
}

type ChatSource interface {
	All() []domain.Group
}

type StatsSource interface {
	Latest() workers.Stats
}

// Console dispatches operator commands. exit and quit call stop, which is
// expected to cancel the relay's root context.
type Console struct {
	log      *slog.Logger
	users    UserSource
	chats    ChatSource
	stats    StatsSource
	version  string
	stop     context.CancelFunc
	colours  bool
	commands map[string]command
	now      func() time.Time
}

type command struct {
	help string
	run  func(w io.Writer)
}

func NewConsole(log *slog.Logger, users UserSource, chats ChatSource, stats StatsSource,
	version string, stop context.CancelFunc, colours bool) *Console {
	c := &Console{
		log:     log,
		users:   users,
		chats:   chats,
		stats:   stats,
		version: version,
		stop:    stop,
		colours: colours,
		now:     time.Now,
	}
	c.commands = map[string]command{
		"users":   {help: "list connected users", run: c.printUsers},
		"chats":   {help: "list private and group chats", run: c.printChats},
		"stats":   {help: "show the last load sample", run: c.printStats},
		"version": {help: "print the relay version", run: c.printVersion},
		"help":    {help: "show this list", run: c.printHelp},
	}
	return c
}

// Run reads commands from the terminal until exit, EOF or ctx is done.
func (c *Console) Run(ctx context.Context) error {
	rl, err := readline.NewEx(&readline.Config{
		Prompt:          prompt,
		HistoryFile:     filepath.Join(os.TempDir(), ".chat_relay_history"),
		HistoryLimit:    100,
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
	})
	if err != nil {
		return fmt.Errorf("init readline: %w", err)
	}
	defer rl.Close()

	go func() {
		<-ctx.Done()
		_ = rl.Close()
	}()

	for {
		line, err := rl.Readline()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			if stderrors.Is(err, readline.ErrInterrupt) || stderrors.Is(err, io.EOF) {
				c.log.Info("Console closed, stopping relay")
				c.stop()
				return nil
			}
			c.log.Warn("Console read failed", "error", err)
			continue
		}
		if c.Execute(line, rl.Stdout()) {
			return nil
		}
	}
}

// Execute runs one command line and writes its output to w.
// It returns true when the line asked the relay to stop.
func (c *Console) Execute(line string, w io.Writer) bool {
	input := strings.ToLower(strings.TrimSpace(line))
	if input == "" {
		return false
	}
	if input == "exit" || input == "quit" {
		fmt.Fprintln(w, "Goodbye!")
		c.log.Info("Exit requested from console")
		c.stop()
		return true
	}
	cmd, ok := c.commands[input]
	if !ok {
		fmt.Fprintf(w, "Unknown command %q, type help for the list\n", input)
		return false
	}
	cmd.run(w)
	return false
}

func (c *Console) header(w io.Writer, title string) {
	header := fmt.Sprintf("  ====== %s ======", title)
	if c.colours {
		header = color.New(color.BgBlack, color.FgGreen).Render(header)
	}
	fmt.Fprintln(w, header)
}

func newTable(w io.Writer, header ...string) *tablewriter.Table {
	table := tablewriter.NewWriter(w)
	table.SetHeader(header)
	table.SetAutoWrapText(false)
	table.SetAutoFormatHeaders(true)
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetCenterSeparator("")
	table.SetColumnSeparator("")
	table.SetRowSeparator("")
	table.SetHeaderLine(false)
	table.SetBorder(false)
	table.SetTablePadding("\t")
	table.SetNoWhiteSpace(true)
	return table
}

func (c *Console) printUsers(w io.Writer) {
	users := c.users.All()
	c.header(w, fmt.Sprintf("%d connected", len(users)))
	table := newTable(w, "ID", "Name", "IP", "Connected")
	for _, user := range users {
		table.Append([]string{user.ID, user.Name, user.RemoteAddr, humanize.RelTime(user.ConnectedAt, c.now(), "ago", "from now")})
	}
	table.Render()
}

func (c *Console) printChats(w io.Writer) {
	chats := c.chats.All()
	c.header(w, fmt.Sprintf("%d chats", len(chats)))
	table := newTable(w, "ID", "Members", "Created")
	for _, group := range chats {
		table.Append([]string{group.ID, strings.Join(group.MemberIDs, ","), group.CreatedAt.Format(time.RFC3339)})
	}
	table.Render()
}

func (c *Console) printStats(w io.Writer) {
	stats := c.stats.Latest()
	c.header(w, "stats")
	if stats.SampledAt.IsZero() {
		fmt.Fprintln(w, "No sample yet")
		return
	}
	table := newTable(w, "Metric", "Value")
	table.AppendBulk([][]string{
		{"users", fmt.Sprint(stats.Users)},
		{"chats", fmt.Sprint(stats.Chats)},
		{"rss", humanize.Bytes(stats.RSS)},
		{"cpu", fmt.Sprintf("%.1f%%", stats.CPUPercent)},
		{"threads", fmt.Sprint(stats.Threads)},
		{"goroutines", fmt.Sprint(stats.Goroutines)},
		{"sampled", stats.SampledAt.Format(time.RFC3339)},
	})
	table.Render()
}

func (c *Console) printVersion(w io.Writer) {
	fmt.Fprintf(w, "chat-relay %s\n", c.version)
}

func (c *Console) printHelp(w io.Writer) {
	names := lo.Keys(c.commands)
	sort.Strings(names)
	table := newTable(w, "Command", "Description")
	for _, name := range names {
		table.Append([]string{name, c.commands[name].help})
	}
	table.Append([]string{"exit, quit", "stop the relay"})
	table.Render()
}
