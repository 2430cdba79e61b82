package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	grpcapi "vetclinic/backend/internal/transport/grpc"
)

// checkCmd asks a running server whether a slot is free.
func checkCmd() *cobra.Command {
	var addr, clinicID, date, tod string
	var timeout time.Duration
	cmd := &cobra.Command{
		Use:   "check",
		Short: "Check a slot against a running server over gRPC",
		RunE: func(cmd *cobra.Command, args []string) error {
			conn, err := grpc.NewClient(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
			if err != nil {
				return fmt.Errorf("connect %s: %w", addr, err)
			}
			defer conn.Close()

			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()
			out, err := grpcapi.NewClient(conn).CheckSlot(ctx, map[string]any{
				"clinicId": clinicID,
				"date":     date,
				"time":     tod,
			})
			if err != nil {
				return err
			}

			verdict := "unavailable"
			if out.GetFields()["available"].GetBoolValue() {
				verdict = "available"
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "%s %s %s\n", date, tod, verdict)
			return err
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "127.0.0.1:50051", "gRPC server address")
	cmd.Flags().StringVar(&clinicID, "clinic", "", "clinic id (empty for the default clinic)")
	cmd.Flags().StringVar(&date, "date", "", "slot date, YYYY-MM-DD")
	cmd.Flags().StringVar(&tod, "time", "", "slot time, HH:mm")
	cmd.Flags().DurationVar(&timeout, "timeout", 5*time.Second, "request timeout")
	_ = cmd.MarkFlagRequired("date")
	_ = cmd.MarkFlagRequired("time")
	return cmd
}
