package main

import (
	"context"
	"fmt"
	"time"

	"github.com/socialhistoryservices/delivery/internal/db"
	"github.com/socialhistoryservices/delivery/internal/maintenance"
	"github.com/spf13/cobra"
)

func newJobsCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "jobs",
		Short: "Run maintenance jobs",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "run",
		Short: "Cancel expired reproduction offers and send payment reminders now",
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withDB(10*time.Minute, func(ctx context.Context, database *db.DB) error {
				service, err := a.service(database)
				if err != nil {
					return err
				}
				scheduler := maintenance.NewPaymentScheduler(service, maintenance.PaymentConfig{
					Schedule:     a.cfg.MaintenanceSchedule,
					MaxDays:      a.cfg.ReproductionMaxDaysPayment,
					ReminderDays: a.cfg.ReproductionReminderDays,
				}, a.logger)
				report, err := scheduler.RunNow(ctx)
				if err != nil {
					return err
				}
				fmt.Printf("Cancelled %d unpaid reproductions, reminded %d customers\n", report.Cancelled, report.Reminded)
				return nil
			})
		},
	})
	return cmd
}
