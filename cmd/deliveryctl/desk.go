package main

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/socialhistoryservices/delivery/internal/db"
	"github.com/socialhistoryservices/delivery/internal/models"
	"github.com/spf13/cobra"
)

func newScanCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "scan <identifier>",
		Short: "Scan a request slip or holding barcode",
		Long: `Scan resolves a line item or holding identifier to the request that
claims the holding and advances it, as the desk scanner does.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withDB(30*time.Second, func(ctx context.Context, database *db.DB) error {
				service, err := a.service(database)
				if err != nil {
					return err
				}
				result, err := service.Scan(ctx, args[0])
				if err != nil {
					return fmt.Errorf("scan: %w", err)
				}
				return printJSON(result)
			})
		},
	}
}

// newStatusCmd returns the "<kind> status <id> <status>" command for
// reservations or reproductions.
func newStatusCmd(a *app, kind string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   kind,
		Short: fmt.Sprintf("Operate on %ss", kind),
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "status <id> <status>",
		Short: fmt.Sprintf("Apply a status to a %s", kind),
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := uuid.Parse(args[0])
			if err != nil {
				return fmt.Errorf("invalid %s id: %w", kind, err)
			}
			return a.withDB(30*time.Second, func(ctx context.Context, database *db.DB) error {
				service, err := a.service(database)
				if err != nil {
					return err
				}
				switch kind {
				case "reservation":
					status := models.ReservationStatus(args[1])
					if !status.Valid() {
						return fmt.Errorf("unknown reservation status %q", args[1])
					}
					r, err := service.ApplyReservationStatus(ctx, id, status)
					if err != nil {
						return err
					}
					fmt.Printf("Reservation %s is %s\n", r.ID, r.Status)
				default:
					status := models.ReproductionStatus(args[1])
					if !status.Valid() {
						return fmt.Errorf("unknown reproduction status %q", args[1])
					}
					r, err := service.ApplyReproductionStatus(ctx, id, status)
					if err != nil {
						return err
					}
					fmt.Printf("Reproduction %s is %s\n", r.ID, r.Status)
				}
				return nil
			})
		},
	})
	return cmd
}
