package main

import (
	"errors"
	"fmt"
	"slices"

	"github.com/flemzord/cvchat/internal/knowledge"
	"github.com/spf13/cobra"
)

func kbCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "kb",
		Short: "Knowledge base tools",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "check <path>",
		Short: "Validate a knowledge base file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			idx, err := knowledge.LoadIndex(args[0])
			if err != nil {
				var verr *knowledge.ValidationError
				if errors.As(err, &verr) {
					fmt.Fprintf(out, "%s: %d problem(s)\n", args[0], len(verr.Violations))
					for _, v := range verr.Violations {
						fmt.Fprintf(out, "  %s\n", v)
					}
				}
				return err
			}

			base := idx.Base()
			categories := map[string]int{}
			for _, t := range base.Topics {
				categories[knowledge.Category(t.ID)]++
			}
			names := make([]string, 0, len(categories))
			for c := range categories {
				names = append(names, c)
			}
			slices.Sort(names)

			fmt.Fprintf(out, "Knowledge base OK: %s (%d topics)\n", base.Metadata.Name, idx.Len())
			for _, c := range names {
				fmt.Fprintf(out, "  %-12s %d\n", c, categories[c])
			}
			return nil
		},
	})
	return cmd
}
