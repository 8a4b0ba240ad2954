package main

import (
	"context"
	"fmt"
	"os"

	"github.com/alfredjeanlab/dealboard/internal/board"
	"github.com/alfredjeanlab/dealboard/internal/model"
	"github.com/alfredjeanlab/dealboard/internal/ui"
	"github.com/spf13/cobra"
)

// boardSource is what a board session reads from the server.
type boardSource interface {
	ListDeals(ctx context.Context, companyID int64) ([]*model.Deal, error)
	ListStages(ctx context.Context, companyID int64) ([]*model.Stage, error)
}

// loadBoard fetches a company's active stages and deals into a new board.
func loadBoard(ctx context.Context, src boardSource, companyID int64) (*board.Board, error) {
	stages, err := src.ListStages(ctx, companyID)
	if err != nil {
		return nil, fmt.Errorf("loading stages: %w", err)
	}
	deals, err := src.ListDeals(ctx, companyID)
	if err != nil {
		return nil, fmt.Errorf("loading deals: %w", err)
	}
	b := board.New()
	b.Load(deals, stages)
	return b, nil
}

var boardCmd = &cobra.Command{
	Use:     "board",
	Short:   "Show the pipeline as columns",
	GroupID: "board",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := requireCompany(); err != nil {
			return err
		}
		search, _ := cmd.Flags().GetString("search")

		b, err := loadBoard(cmd.Context(), dealsClient, cfg.CompanyID)
		if err != nil {
			return err
		}
		b.SetSearch(search)

		if jsonOutput {
			return printJSON(os.Stdout, b.Columns())
		}
		renderBoard(os.Stdout, b.Columns(), ui.TerminalWidth())
		return nil
	},
}

func init() {
	boardCmd.Flags().StringP("search", "s", "", "only show deals matching this text")
}
