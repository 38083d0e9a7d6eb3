package cmd

import (
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/urfave/cli/v2"

	"github.com/miosa/chatai/client"
	"github.com/miosa/chatai/conversation"
	"github.com/miosa/chatai/markdown"
	"github.com/miosa/chatai/style"
)

// ConversationsCommand lists the user's conversation numbers.
func ConversationsCommand() *cli.Command {
	return &cli.Command{
		Name:    "conversations",
		Aliases: []string{"ls"},
		Usage:   "List your conversations",
		Action:  runConversations,
	}
}

// HistoryCommand prints every message of one conversation.
func HistoryCommand() *cli.Command {
	return &cli.Command{
		Name:      "history",
		Usage:     "Print a conversation",
		ArgsUsage: "NUMBER",
		Flags: []cli.Flag{
			&cli.BoolFlag{Name: "raw", Usage: "Print responses without markdown rendering"},
			&cli.IntFlag{Name: "width", Usage: "Wrap rendered markdown at `COLUMNS`", Value: 100},
		},
		Action: runHistory,
	}
}

// SendCommand sends one prompt and prints the reply.
func SendCommand() *cli.Command {
	return &cli.Command{
		Name:      "send",
		Usage:     "Send a prompt and print the reply",
		ArgsUsage: "PROMPT...",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "model", Aliases: []string{"m"}, Usage: "Model: gpt, claude or gemini (default from config)"},
			&cli.Int64Flag{Name: "conversation", Aliases: []string{"n"}, Usage: "Continue conversation `NUMBER` instead of starting one"},
			&cli.BoolFlag{Name: "raw", Usage: "Print the reply without markdown rendering"},
			&cli.IntFlag{Name: "width", Usage: "Wrap rendered markdown at `COLUMNS`", Value: 100},
		},
		Action: runSend,
	}
}

func runConversations(c *cli.Context) error {
	e, err := loadEnv(c)
	if err != nil {
		return err
	}
	if err := e.requireSession(); err != nil {
		return err
	}
	ctx, cancel := signalContext(c)
	defer cancel()

	m := conversation.New(e.client, e.store, conversation.WithContext(ctx))
	if err := runConversation(m, m.ListConversations()); err != nil {
		return err
	}
	ids := m.State().KnownIDs
	if len(ids) == 0 {
		fmt.Fprintln(c.App.Writer, "No conversations yet.")
		return nil
	}
	for _, id := range ids {
		fmt.Fprintf(c.App.Writer, "Conversation %d\n", id)
	}
	return nil
}

func runHistory(c *cli.Context) error {
	id, err := strconv.ParseInt(c.Args().First(), 10, 64)
	if err != nil || id <= 0 {
		return errors.New("usage: chatai history NUMBER")
	}
	e, err := loadEnv(c)
	if err != nil {
		return err
	}
	if err := e.requireSession(); err != nil {
		return err
	}
	ctx, cancel := signalContext(c)
	defer cancel()

	m := conversation.New(e.client, e.store, conversation.WithContext(ctx))
	if err := runConversation(m, m.Select(id)); err != nil {
		return err
	}
	st := m.State()
	if len(st.Messages) == 0 {
		fmt.Fprintln(c.App.Writer, "Continue your conversation")
		return nil
	}
	for i, msg := range st.Messages {
		if i > 0 {
			fmt.Fprintln(c.App.Writer)
		}
		printMessage(c.App.Writer, msg, c.Bool("raw"), c.Int("width"))
	}
	return nil
}

func runSend(c *cli.Context) error {
	text := strings.TrimSpace(strings.Join(c.Args().Slice(), " "))
	if text == "" {
		return errors.New("usage: chatai send [--model M] PROMPT")
	}
	e, err := loadEnv(c)
	if err != nil {
		return err
	}
	if err := e.requireSession(); err != nil {
		return err
	}
	name := c.String("model")
	if name == "" {
		name = e.cfg.UI.DefaultModel
	}
	mdl, err := client.ParseModel(name)
	if err != nil {
		return err
	}
	ctx, cancel := signalContext(c)
	defer cancel()

	m := conversation.New(e.client, e.store, conversation.WithContext(ctx))
	if id := c.Int64("conversation"); id > 0 {
		m.SelectConversation(id)
	}
	cmd, err := m.Send(mdl, text)
	if err != nil {
		return errors.New(client.ErrorMessage(err))
	}
	if err := runConversation(m, cmd); err != nil {
		return err
	}
	st := m.State()
	if len(st.Messages) == 0 {
		return errors.New(client.OpSend.Fallback())
	}
	reply := st.Messages[len(st.Messages)-1]
	printResponse(c.App.Writer, reply, c.Bool("raw"), c.Int("width"))
	fmt.Fprintln(c.App.ErrWriter, style.Faint.Render(fmt.Sprintf("conversation %d", st.Active)))
	return nil
}

// runConversation drives cmd and returns the error the machine ended on.
func runConversation(m *conversation.Machine, cmd tea.Cmd) error {
	drive(cmd, m.Update)
	if e := m.State().Error; e != "" {
		return errors.New(e)
	}
	return nil
}

func printMessage(w io.Writer, msg client.Message, raw bool, width int) {
	fmt.Fprintln(w, style.UserLabel.Render("❯ You"))
	fmt.Fprintln(w, msg.Prompt)
	fmt.Fprintln(w, style.ModelLabel(string(msg.Model), "◈ "+msg.Model.DisplayName()))
	printResponse(w, msg, raw, width)
}

func printResponse(w io.Writer, msg client.Message, raw bool, width int) {
	if raw {
		fmt.Fprintln(w, msg.Response)
		return
	}
	fmt.Fprintln(w, markdown.Render(msg.Response, width))
}
