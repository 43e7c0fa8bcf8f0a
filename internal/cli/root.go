// Package cli implements the quizflow command line: it drives a full
// discovery session against a running API server and a storefront.
package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"quizpicks/internal/client"
	"quizpicks/internal/config"
	"quizpicks/internal/logger"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	Verbose bool
	Format  string // "json" | "text"
	APIURL  string
	Token   string
	UserID  string
	Date    string

	flow config.FlowConfig
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// NewRootCommand creates the root command; flow supplies flag defaults
func NewRootCommand(flow config.FlowConfig) *cobra.Command {
	opts := &RootOptions{flow: flow}

	cmd := &cobra.Command{
		Use:   "quizflow",
		Short: "Run quiz-driven product discovery sessions",
		Long: `quizflow answers the daily quiz, searches the storefront with the
generated queries and prints the personalized ranking built by the API server.`,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !isValidFormat(opts.Format) {
				return fmt.Errorf("invalid format %q: must be one of %v", opts.Format, ValidFormats)
			}
			if _, err := time.Parse("2006-01-02", opts.Date); err != nil {
				return fmt.Errorf("invalid date %q: want YYYY-MM-DD", opts.Date)
			}
			return nil
		},
	}

	// Global flags
	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")
	cmd.PersistentFlags().StringVar(&opts.APIURL, "api", flow.APIBaseURL, "API base URL")
	cmd.PersistentFlags().StringVar(&opts.Token, "token", flow.APIToken, "API bearer token (requested when empty)")
	cmd.PersistentFlags().StringVar(&opts.UserID, "user", "", "shopper id (minted when empty)")
	cmd.PersistentFlags().StringVar(&opts.Date, "date", time.Now().Format("2006-01-02"), "session date")

	// Add subcommands
	cmd.AddCommand(NewQuestionsCommand(opts))
	cmd.AddCommand(NewRunCommand(opts))

	return cmd
}

func (o *RootOptions) apiClient() *client.Client {
	return client.New(o.APIURL, o.Token, logger.NewConsole(o.Verbose))
}

// isValidFormat checks if the format is one of the allowed values.
func isValidFormat(format string) bool {
	for _, f := range ValidFormats {
		if f == format {
			return true
		}
	}
	return false
}
