package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/restage-dev/restage/internal/model"
)

func rulesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "rules",
		Short: "Manage category match rules",
	}

	cmd.AddCommand(rulesListCmd())
	cmd.AddCommand(rulesAddCmd())

	return cmd
}

func rulesListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List match rules with usage counters",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			store, err := openStorage(ctx)
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			ruleSet, err := store.GetMatchRules(ctx)
			if err != nil {
				return err
			}

			if len(ruleSet) == 0 {
				fmt.Println("No match rules configured.")
				return nil
			}

			for _, r := range ruleSet {
				kind := "substring"
				if r.IsRegex {
					kind = "regex"
				}
				lastUsed := "never"
				if r.LastUsedAt != nil {
					lastUsed = r.LastUsedAt.Format("2006-01-02")
				}
				fmt.Printf("%4d  %-9s  %-40q -> %-20s  matches=%d last_used=%s\n",
					r.ID, kind, r.Pattern, r.Category, r.MatchCount, lastUsed)
			}
			return nil
		},
	}
}

func rulesAddCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "add [pattern] [category]",
		Short: "Add a match rule",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			isRegex, _ := cmd.Flags().GetBool("regex")
			ctx := cmd.Context()

			store, err := openStorage(ctx)
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			rule := &model.MatchRule{
				Pattern:  args[0],
				IsRegex:  isRegex,
				Category: args[1],
			}
			if err := store.CreateMatchRule(ctx, rule); err != nil {
				return err
			}

			fmt.Printf("Created rule %d.\n", rule.ID)
			return nil
		},
	}

	cmd.Flags().Bool("regex", false, "treat the pattern as a regular expression")
	return cmd
}
