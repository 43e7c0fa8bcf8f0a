package cli

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"quizpicks/internal/commerce"
	"quizpicks/internal/logger"
	"quizpicks/internal/model"
	"quizpicks/internal/session"
)

// RunOptions holds flags for the run command.
type RunOptions struct {
	*RootOptions
	AnswersFile     string
	StorefrontURL   string
	StorefrontToken string
	More            int
	Freeze          []string
	Reshuffle       bool
	Vision          bool
}

// AnswersFile is the document read by --answers
type AnswersFile struct {
	Answers         map[string]model.AnswerValue `json:"answers"`
	BuyerAttributes map[string]any               `json:"buyer_attributes,omitempty"`
	GenderAffinity  string                       `json:"gender_affinity,omitempty"`
}

// NewRunCommand creates the run command.
func NewRunCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RunOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Answer the quiz and print the personalized ranking",
		Long: `Run a complete discovery session: submit quiz answers, search the
storefront with the generated queries, store every product on the API
server and print the ranking it builds.

Questions missing from --answers are answered with their first option.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSession(cmd, opts)
		},
	}

	cmd.Flags().StringVarP(&opts.AnswersFile, "answers", "a", "", "JSON file with answers keyed by question id")
	cmd.Flags().StringVar(&opts.StorefrontURL, "storefront", rootOpts.flow.StorefrontURL, "storefront GraphQL endpoint")
	cmd.Flags().StringVar(&opts.StorefrontToken, "storefront-token", rootOpts.flow.StorefrontToken, "storefront access token")
	cmd.Flags().IntVar(&opts.More, "more", 0, "load this many extra ranking pages")
	cmd.Flags().StringSliceVar(&opts.Freeze, "freeze", nil, "product ids to pin before reshuffling")
	cmd.Flags().BoolVar(&opts.Reshuffle, "reshuffle", false, "shuffle the unfrozen products")
	cmd.Flags().BoolVar(&opts.Vision, "vision", false, "caption product images before ranking")

	return cmd
}

func loadAnswers(path string) (AnswersFile, error) {
	var doc AnswersFile
	if path == "" {
		return doc, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return doc, fmt.Errorf("read answers: %w", err)
	}
	if err := json.Unmarshal(data, &doc); err != nil {
		return doc, fmt.Errorf("parse answers %s: %w", path, err)
	}
	return doc, nil
}

func runSession(cmd *cobra.Command, opts *RunOptions) error {
	ctx := cmd.Context()
	log := logger.NewConsole(opts.Verbose)
	defer log.Sync()

	doc, err := loadAnswers(opts.AnswersFile)
	if err != nil {
		return err
	}

	api := opts.apiClient()
	if opts.Token == "" {
		sess, err := api.Session(ctx, opts.UserID)
		if err != nil {
			return fmt.Errorf("open session: %w", err)
		}
		opts.UserID = sess.UserID
	}
	if opts.UserID == "" {
		return fmt.Errorf("--user is required when --token is set")
	}

	store := session.NewStore(opts.UserID, opts.Date)
	quiz := session.NewQuiz(store, api, log)
	if err := quiz.LoadQuestions(ctx); err != nil {
		return fmt.Errorf("load questions: %w", err)
	}
	for _, q := range store.State().Questions {
		value, ok := doc.Answers[q.ID]
		if !ok || value.IsZero() {
			if len(q.Options) == 0 {
				continue
			}
			value = model.TextAnswer(q.Options[0])
			if q.Type == model.QuestionTypeMultiChoice {
				value = model.ChoicesAnswer(q.Options[0])
			}
		}
		quiz.Answer(q.ID, value)
	}
	if err := quiz.Submit(ctx, doc.BuyerAttributes, doc.GenderAffinity); err != nil {
		return fmt.Errorf("submit answers: %w", err)
	}

	flow := opts.flow
	storefront := commerce.NewClient(commerce.Config{
		URL:      opts.StorefrontURL,
		Token:    opts.StorefrontToken,
		RPS:      flow.StorefrontRPS,
		PageSize: flow.SearchPageSize,
	}, log)

	orch := session.NewOrchestrator(store, storefront, api,
		session.RemoteRanker{Backend: api, PageSize: flow.RankingPageSize},
		session.OrchestratorOptions{
			Search:        session.Runner{PageCap: flow.SearchPageCap, StallTimeout: flow.StallTimeout},
			Recommended:   session.Runner{PageCap: 1, StallTimeout: flow.StallTimeout},
			ResultsScreen: session.Screen(flow.ResultsScreen),
			Vision:        opts.Vision,
			OnPhase: func(p session.Phase) {
				log.Info("phase", zap.String("phase", string(p)))
			},
			OnQuery: func(i int, q string, found int) {
				log.Info("query done", zap.Int("index", i), zap.String("query", q), zap.Int("found", found))
			},
		}, log)
	if err := orch.Run(ctx); err != nil {
		return fmt.Errorf("discovery: %w", err)
	}

	feed := session.NewFeed(store, api, flow.RankingPageSize, log)
	for i := 0; i < opts.More; i++ {
		before := len(store.State().Ranked)
		if err := feed.LoadMore(ctx); err != nil {
			log.Warn("load more", zap.Error(err))
			break
		}
		if len(store.State().Ranked) == before {
			break
		}
	}

	for _, id := range opts.Freeze {
		if !store.State().IsFrozen(id) {
			store.ToggleFreeze(id)
		}
	}
	if opts.Reshuffle {
		store.Reshuffle()
	}

	state := store.State()
	out := cmd.OutOrStdout()
	if opts.Format == "json" {
		return writeJSON(out, resultOf(state))
	}
	return writeTable(out, state)
}
