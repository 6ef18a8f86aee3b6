package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/flemzord/cvchat/internal/chat"
	"github.com/spf13/cobra"
)

func askCmd(flags *globalFlags) *cobra.Command {
	var (
		styleName string
		asJSON    bool
	)
	cmd := &cobra.Command{
		Use:   "ask <question...>",
		Short: "Answer one question from the knowledge base",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := loadRuntime(flags)
			if err != nil {
				return err
			}
			reply, err := rt.Ask(cmd.Context(), rt.Style(styleName), strings.Join(args, " "))
			if err != nil {
				return err
			}
			return printReply(cmd.OutOrStdout(), reply, asJSON)
		},
	}
	cmd.Flags().StringVarP(&styleName, "style", "s", "", "Answer style: hr, developer or friend")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the full reply as JSON")
	return cmd
}

func printReply(w io.Writer, reply chat.Reply, asJSON bool) error {
	if asJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(reply)
	}
	if _, err := fmt.Fprintln(w, reply.Text); err != nil {
		return err
	}
	if reply.Fallback != nil && len(reply.Fallback.SuggestedTopics) > 0 {
		_, err := fmt.Fprintf(w, "\nTry asking about: %s\n", strings.Join(reply.Fallback.SuggestedTopics, ", "))
		return err
	}
	return nil
}
