package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"

	"quizpicks/internal/model"
	"quizpicks/internal/session"
)

func writeJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// RunResult is the json form of a finished session
type RunResult struct {
	UserID   string                `json:"user_id"`
	Date     string                `json:"response_date"`
	Queries  []string              `json:"queries"`
	Products []model.RankedProduct `json:"products"`
	Frozen   []string              `json:"frozen,omitempty"`
	HasMore  bool                  `json:"has_more"`
	Error    string                `json:"error,omitempty"`
}

func resultOf(state session.State) RunResult {
	res := RunResult{
		UserID:   state.UserID,
		Date:     state.SessionDate,
		Queries:  state.GeneratedQueries,
		Products: state.Ranked,
		HasMore:  state.HasMore,
		Error:    state.Error,
	}
	for _, p := range state.Ranked {
		if state.IsFrozen(p.ProductID) {
			res.Frozen = append(res.Frozen, p.ProductID)
		}
	}
	return res
}

func writeTable(w io.Writer, state session.State) error {
	fmt.Fprintf(w, "user %s, %s\n", state.UserID, state.SessionDate)
	for i, q := range state.GeneratedQueries {
		fmt.Fprintf(w, "  query %d: %s\n", i+1, q)
	}
	if state.Error != "" {
		fmt.Fprintf(w, "warning: %s\n", state.Error)
	}

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "RANK\tPRODUCT\tSCORE\tPRICE\tTITLE\tREASON")
	for _, p := range state.Ranked {
		rank := fmt.Sprintf("%d", p.Rank)
		if state.IsFrozen(p.ProductID) {
			rank += "*"
		}
		fmt.Fprintf(tw, "%s\t%s\t%.2f\t%s %s\t%s\t%s\n", rank, p.ProductID, p.Score, p.Price, p.Currency, p.Title, p.Reason)
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	if state.HasMore {
		fmt.Fprintln(w, "more results available (--more)")
	}
	return nil
}
