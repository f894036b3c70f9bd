package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"

	"github.com/spf13/cobra"

	"github.com/sweetpotato0/studybuddy/api"
	"github.com/sweetpotato0/studybuddy/study"
	"github.com/sweetpotato0/studybuddy/topic"
)

const (
	colorBlue   = "\033[94m"
	colorGreen  = "\033[92m"
	colorYellow = "\033[93m"
	colorCyan   = "\033[96m"
	colorReset  = "\033[0m"
	colorBold   = "\033[1m"
)

const defaultChatSession = "terminal_session"

func chatCmd(flags *globalFlags) *cobra.Command {
	var sessionID string

	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Chat with the study assistant in the terminal",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(flags)
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
			defer stop()

			a, err := newApp(ctx, cfg)
			if err != nil {
				return err
			}
			defer a.Close(context.Background())

			r := &repl{
				chat:    a.orch,
				store:   a.store,
				session: sessionID,
				in:      cmd.InOrStdin(),
				out:     cmd.OutOrStdout(),
			}
			return r.run(ctx)
		},
	}
	cmd.Flags().StringVar(&sessionID, "session", defaultChatSession, "Session id to continue")
	return cmd
}

// repl is the interactive terminal loop.
type repl struct {
	chat    api.ChatService
	store   study.Store
	session string
	in      io.Reader
	out     io.Writer
}

func (r *repl) run(ctx context.Context) error {
	r.welcome()
	scanner := bufio.NewScanner(r.in)
	for {
		fmt.Fprintf(r.out, "%sYou:%s ", colorBold, colorReset)
		if !scanner.Scan() {
			r.goodbye()
			return scanner.Err()
		}
		if ctx.Err() != nil {
			r.goodbye()
			return nil
		}

		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if strings.HasPrefix(line, "/") {
			if !r.command(ctx, line) {
				return nil
			}
			continue
		}

		res, err := r.chat.ProcessTurn(ctx, r.session, line)
		if err != nil {
			if ctx.Err() != nil {
				r.goodbye()
				return nil
			}
			fmt.Fprintf(r.out, "\n%sError: %v%s\n\n", colorYellow, err, colorReset)
			continue
		}
		subject := res.Topic
		if !subject.IsSpecific() {
			subject = topic.General
		}
		fmt.Fprintf(r.out, "\n%s[%s Assistant]%s\n%s\n\n",
			subjectColor(subject), strings.ToUpper(string(subject)), colorReset, res.Reply)
	}
}

// command handles a slash command and reports whether the loop continues.
func (r *repl) command(ctx context.Context, line string) bool {
	fields := strings.Fields(strings.ToLower(line))
	switch fields[0] {
	case "/quit", "/exit", "/q":
		r.goodbye()
		return false
	case "/subjects":
		fmt.Fprintf(r.out, "\n%sAvailable subjects:%s\n", colorGreen, colorReset)
		for _, t := range topic.Specific {
			fmt.Fprintf(r.out, "  - %s\n", t)
		}
		fmt.Fprintln(r.out)
	case "/notes":
		r.notes(ctx, fields[1:])
	case "/clear", "/cls":
		if err := r.chat.ClearSession(ctx, r.session); err != nil {
			fmt.Fprintf(r.out, "%sError: %v%s\n", colorYellow, err, colorReset)
		}
		fmt.Fprint(r.out, "\033[H\033[2J")
		r.welcome()
	case "/help":
		r.help()
	default:
		fmt.Fprintf(r.out, "\n%sUnknown command %s. Type /help for the list.%s\n\n", colorYellow, fields[0], colorReset)
	}
	return true
}

func (r *repl) notes(ctx context.Context, args []string) {
	if len(args) == 0 {
		fmt.Fprintf(r.out, "\n%sUsage: /notes <subject>, or ask: 'Show my notes for Python'%s\n\n", colorYellow, colorReset)
		return
	}
	t, ok := topic.ParseSubject(args[0])
	if !ok {
		fmt.Fprintf(r.out, "\n%sUnknown subject %q. Try /subjects.%s\n\n", colorYellow, args[0], colorReset)
		return
	}
	notes, err := r.store.ListNotes(ctx, t)
	if err != nil {
		fmt.Fprintf(r.out, "\n%sError: %v%s\n\n", colorYellow, err, colorReset)
		return
	}
	if len(notes) == 0 {
		fmt.Fprintf(r.out, "\nNo notes found for %s.\n\n", t)
		return
	}
	fmt.Fprintf(r.out, "\n%sNotes for %s (%d total):%s\n", colorGreen, t, len(notes), colorReset)
	for _, n := range notes {
		line := "  - " + n.Content
		if len(n.Tags) > 0 {
			line += " [" + strings.Join(n.Tags, ", ") + "]"
		}
		fmt.Fprintln(r.out, line)
	}
	fmt.Fprintln(r.out)
}

func (r *repl) welcome() {
	bar := strings.Repeat("=", 60)
	fmt.Fprintf(r.out, "\n%s%s\n   STUDY BUDDY - Your Personal Learning Assistant\n%s%s\n\n", colorCyan, bar, bar, colorReset)
	fmt.Fprintf(r.out, "Subjects: %s\n", strings.Join(topic.Names(topic.Specific), ", "))
	r.help()
}

func (r *repl) help() {
	fmt.Fprintf(r.out, `
%sCommands:%s
  /subjects          - List all subjects
  /notes <subject>   - Show notes for a subject
  /clear             - Forget this conversation and clear the screen
  /help              - Show this help
  /quit              - Exit

%sTips:%s
  - Just ask any question, I'll detect the subject
  - Say "save this as a note" to save information
  - Ask "how did I solve..." to search past solutions
  - Ask "search the web for..." for latest info

`, colorCyan, colorReset, colorCyan, colorReset)
}

func (r *repl) goodbye() {
	fmt.Fprintf(r.out, "\n%sGoodbye! Happy studying!%s\n\n", colorCyan, colorReset)
}

func subjectColor(t topic.Topic) string {
	switch t {
	case topic.Python:
		return colorBlue
	case topic.LangGraph, topic.LangChain:
		return colorGreen
	case topic.JavaScript, topic.Automation:
		return colorYellow
	case topic.LLM, topic.N8N, topic.GoHighLevel:
		return colorCyan
	}
	return colorReset
}
