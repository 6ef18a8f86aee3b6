package main

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/huh"
	"github.com/flemzord/cvchat/internal/chat"
	"github.com/flemzord/cvchat/internal/fallback"
	"github.com/flemzord/cvchat/internal/style"
	"github.com/spf13/cobra"
)

const chatHelp = `Commands: /style to switch style, /email to contact the owner, /stats, /reset, /quit`

func chatCmd(flags *globalFlags) *cobra.Command {
	var styleName string
	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Interactive conversation in the terminal",
		RunE: func(cmd *cobra.Command, _ []string) error {
			rt, err := loadRuntime(flags)
			if err != nil {
				return err
			}

			st := style.Style(styleName)
			if !st.Valid() {
				if st, err = pickStyle(rt.Style("")); err != nil {
					return ignoreAbort(err)
				}
			}
			sess, err := rt.Engine.NewSession("", st)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%s\n%s\n\n", sess.Greeting(), chatHelp)
			return ignoreAbort(chatLoop(cmd, sess, out))
		},
	}
	cmd.Flags().StringVarP(&styleName, "style", "s", "", "Answer style: hr, developer or friend")
	return cmd
}

func chatLoop(cmd *cobra.Command, sess *chat.Session, out io.Writer) error {
	for {
		var question string
		if err := huh.NewInput().Title("You").Value(&question).Run(); err != nil {
			return err
		}
		question = strings.TrimSpace(question)

		switch question {
		case "":
			continue
		case "/quit", "/exit":
			return nil
		case "/reset":
			if err := sess.Reset(); err != nil {
				return err
			}
			fmt.Fprintln(out, "Conversation cleared.")
			continue
		case "/stats":
			s := sess.Stats()
			fmt.Fprintf(out, "%d turns, average confidence %.2f, topics: %s\n",
				s.Turns, s.AverageConfidence, strings.Join(s.TopicsDiscussed, ", "))
			continue
		case "/style":
			current, _ := sess.Style()
			st, err := pickStyle(current)
			if err != nil {
				return err
			}
			sess.SetStyle(st)
			fmt.Fprintln(out, sess.Greeting())
			continue
		case "/email":
			if err := handoff(sess, out); err != nil {
				return err
			}
			continue
		}

		reply, err := sess.Ask(cmd.Context(), question)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "\n%s\n\n", reply.Text)
		if reply.Fallback != nil && reply.Fallback.ShowFallbackButton {
			fmt.Fprintln(out, "(type /email to reach the owner directly)")
		}
	}
}

func pickStyle(current style.Style) (style.Style, error) {
	choice := string(current)
	options := []huh.Option[string]{
		huh.NewOption("Recruiter (HR)", string(style.HR)),
		huh.NewOption("Developer", string(style.Developer)),
		huh.NewOption("Friend", string(style.Friend)),
	}
	err := huh.NewSelect[string]().
		Title("Who are you?").
		Options(options...).
		Value(&choice).
		Run()
	return style.Style(choice), err
}

func handoff(sess *chat.Session, out io.Writer) error {
	var name, email, query string
	form := huh.NewForm(huh.NewGroup(
		huh.NewInput().Title("Your name").Value(&name).Validate(func(s string) error {
			if !fallback.ValidateName(s) {
				return fallback.ErrInvalidName
			}
			return nil
		}),
		huh.NewInput().Title("Your email").Value(&email).Validate(func(s string) error {
			if !fallback.ValidateEmail(s) {
				return fallback.ErrInvalidEmail
			}
			return nil
		}),
		huh.NewInput().Title("Your question (empty for the last one)").Value(&query),
	))
	if err := form.Run(); err != nil {
		return err
	}

	link, err := sess.Handoff(name, email, query)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "Open this link to send the email:\n%s\n", link)
	return nil
}

func ignoreAbort(err error) error {
	if errors.Is(err, huh.ErrUserAborted) {
		return nil
	}
	return err
}
