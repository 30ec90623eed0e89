package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func reviewCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "review",
		Short: "Inspect and adjust staged candidates before commit",
	}

	cmd.AddCommand(reviewListCmd())
	cmd.AddCommand(reviewSelectCmd(true))
	cmd.AddCommand(reviewSelectCmd(false))
	cmd.AddCommand(reviewSetCategoryCmd())
	cmd.AddCommand(reviewSetMemoCmd())

	return cmd
}

func reviewListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List staged candidates awaiting review",
		RunE: func(cmd *cobra.Command, _ []string) error {
			tenantID, _ := cmd.Flags().GetString("tenant")
			ctx := cmd.Context()

			store, err := openStorage(ctx)
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			staged, err := store.GetUncommittedStaged(ctx, tenantID)
			if err != nil {
				return err
			}

			if len(staged) == 0 {
				fmt.Println("No staged candidates awaiting review.")
				return nil
			}

			for _, s := range staged {
				mark := " "
				if s.IsSelected {
					mark = "x"
				}
				fmt.Printf("[%s] %s  %s  %10s  %-30s  %s", mark, s.Key[:8],
					s.Date.Format("2006-01-02"), s.Amount.StringFixed(2), s.Payee,
					s.DuplicateStatus)
				if s.SuggestedCategory != "" {
					fmt.Printf("  -> %s", s.SuggestedCategory)
				}
				fmt.Println()
			}
			return nil
		},
	}

	cmd.Flags().StringP("tenant", "t", "", "workspace to list (required)")
	_ = cmd.MarkFlagRequired("tenant")
	return cmd
}

func reviewSelectCmd(selected bool) *cobra.Command {
	use, short := "select [key]", "Mark a staged candidate for commit"
	if !selected {
		use, short = "deselect [key]", "Exclude a staged candidate from commit"
	}

	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			store, err := openStorage(ctx)
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			return store.UpdateStagedSelection(ctx, args[0], selected)
		},
	}
}

func reviewSetCategoryCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "set-category [key] [category]",
		Short: "Override the suggested category on a staged candidate",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			store, err := openStorage(ctx)
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			return store.UpdateStagedCategory(ctx, args[0], args[1])
		},
	}
}

func reviewSetMemoCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "set-memo [key] [memo]",
		Short: "Edit the memo on a staged candidate",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			store, err := openStorage(ctx)
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			return store.UpdateStagedMemo(ctx, args[0], args[1])
		},
	}
}
