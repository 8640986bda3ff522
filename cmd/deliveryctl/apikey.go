package main

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/google/uuid"
	"github.com/socialhistoryservices/delivery/internal/auth"
	"github.com/socialhistoryservices/delivery/internal/db"
	"github.com/spf13/cobra"
)

func newAPIKeyCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "apikey",
		Short: "Manage scanner API keys",
	}
	cmd.AddCommand(newAPIKeyCreateCmd(a), newAPIKeyListCmd(a), newAPIKeyRevokeCmd(a))
	return cmd
}

func newAPIKeyCreateCmd(a *app) *cobra.Command {
	var (
		permissions []string
		expiresDays int
		createdBy   string
	)

	cmd := &cobra.Command{
		Use:   "create <name>",
		Short: "Issue a new API key and print it once",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var expiresAt *time.Time
			if expiresDays > 0 {
				t := time.Now().Add(time.Duration(expiresDays) * 24 * time.Hour)
				expiresAt = &t
			}
			key, record, err := auth.IssueAPIKey(args[0], permissions, createdBy, expiresAt)
			if err != nil {
				return err
			}
			return a.withDB(30*time.Second, func(ctx context.Context, database *db.DB) error {
				if err := database.CreateAPIKey(ctx, record); err != nil {
					return fmt.Errorf("store api key: %w", err)
				}
				fmt.Printf("Created API key %s (%s)\n", record.Name, record.ID)
				fmt.Printf("Key: %s\n", key)
				fmt.Println("Store the key now; it cannot be shown again.")
				return nil
			})
		},
	}

	cmd.Flags().StringSliceVarP(&permissions, "permission", "p",
		[]string{string(auth.PermReservationModify), string(auth.PermReproductionModify)},
		"Permission to grant (repeatable)")
	cmd.Flags().IntVar(&expiresDays, "expires-days", 0, "Days until the key expires (0 never expires)")
	cmd.Flags().StringVar(&createdBy, "created-by", "deliveryctl", "Recorded creator of the key")
	return cmd
}

func newAPIKeyListCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List API keys",
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withDB(30*time.Second, func(ctx context.Context, database *db.DB) error {
				keys, err := database.ListAPIKeys(ctx)
				if err != nil {
					return fmt.Errorf("list api keys: %w", err)
				}
				w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
				fmt.Fprintln(w, "ID\tNAME\tPREFIX\tPERMISSIONS\tSTATE")
				now := time.Now()
				for _, k := range keys {
					state := "active"
					if !k.IsUsable(now) {
						state = "inactive"
					}
					fmt.Fprintf(w, "%s\t%s\t%s\t%v\t%s\n", k.ID, k.Name, k.Prefix, k.Permissions, state)
				}
				return w.Flush()
			})
		},
	}
}

func newAPIKeyRevokeCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "revoke <id>",
		Short: "Revoke an API key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := uuid.Parse(args[0])
			if err != nil {
				return fmt.Errorf("invalid api key id: %w", err)
			}
			return a.withDB(30*time.Second, func(ctx context.Context, database *db.DB) error {
				if err := database.RevokeAPIKey(ctx, id, time.Now()); err != nil {
					return fmt.Errorf("revoke api key: %w", err)
				}
				fmt.Printf("Revoked API key %s\n", id)
				return nil
			})
		},
	}
}
