package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

// NewQuestionsCommand creates the questions command.
func NewQuestionsCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "questions",
		Short:         "Print the quiz with question ids for an answers file",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			questions, err := opts.apiClient().GetQuestions(cmd.Context())
			if err != nil {
				return fmt.Errorf("load questions: %w", err)
			}

			out := cmd.OutOrStdout()
			if opts.Format == "json" {
				return writeJSON(out, questions)
			}
			for _, q := range questions {
				fmt.Fprintf(out, "[%s] %s (%s)\n", q.ID, q.Prompt, q.Type)
				fmt.Fprintf(out, "    %s\n", strings.Join(q.Options, " | "))
			}
			return nil
		},
	}
}
