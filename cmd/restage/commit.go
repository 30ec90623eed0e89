package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/restage-dev/restage/internal/engine"
)

func commitCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "commit [batch-id]",
		Short: "Commit the selected rows of a reviewed batch into the ledger",
		Long: `Convert the selected staged candidates of a batch into permanent ledger
entries. The commit is all-or-nothing: either every selected row is
written or none is.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			tenantID, _ := cmd.Flags().GetString("tenant")
			discard, _ := cmd.Flags().GetBool("discard-unselected")
			ctx := cmd.Context()

			store, err := openStorage(ctx)
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			result, err := engine.New(store).Commit(ctx, tenantID, args[0], discard)
			if err != nil {
				return err
			}

			fmt.Printf("Committed %d, discarded %d, retained %d.\n",
				result.Committed, result.Discarded, result.Retained)
			return nil
		},
	}

	cmd.Flags().StringP("tenant", "t", "", "workspace the batch belongs to (required)")
	cmd.Flags().Bool("discard-unselected", false, "delete unselected rows instead of retaining them for audit")
	_ = cmd.MarkFlagRequired("tenant")

	return cmd
}
