package main

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"vetclinic/backend/internal/domain"
)

func gridCmd() *cobra.Command {
	var year, month int
	cmd := &cobra.Command{
		Use:   "grid",
		Short: "Print the slot grid of a month for the configured clinic hours",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, _, err := loadConfig()
			if err != nil {
				return err
			}
			hours, err := cfg.ClinicHours()
			if err != nil {
				return err
			}
			if month < 1 || month > 12 {
				return fmt.Errorf("month must be between 1 and 12")
			}
			return writeGrid(cmd.OutOrStdout(), year, time.Month(month), hours)
		},
	}

	now := time.Now()
	cmd.Flags().IntVar(&year, "year", now.Year(), "calendar year")
	cmd.Flags().IntVar(&month, "month", int(now.Month()), "calendar month (1-12)")
	return cmd
}

// writeGrid prints one line per working day: the date, its weekday and the
// slot start times.
func writeGrid(w io.Writer, year int, month time.Month, hours domain.ClinicHours) error {
	slots := domain.GenerateMonthGrid(year, month, hours)
	if _, err := fmt.Fprintf(w, "%d-%02d %s (%d slots)\n", year, int(month), hours.Fingerprint(), len(slots)); err != nil {
		return err
	}

	var (
		line    strings.Builder
		current domain.Date
	)
	flush := func() error {
		if line.Len() == 0 {
			return nil
		}
		_, err := fmt.Fprintln(w, line.String())
		line.Reset()
		return err
	}
	for _, s := range slots {
		if s.Date != current {
			if err := flush(); err != nil {
				return err
			}
			current = s.Date
			fmt.Fprintf(&line, "%s %s", s.Date, s.Date.Weekday().String()[:3])
		}
		line.WriteByte(' ')
		line.WriteString(s.Time.String())
	}
	return flush()
}
