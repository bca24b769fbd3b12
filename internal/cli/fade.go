package cli

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/tutu-network/breathe/internal/app/engagement"
	"github.com/tutu-network/breathe/internal/domain"
	"github.com/tutu-network/breathe/internal/infra/store"
)

func init() {
	fadeCmd.Flags().IntVar(&fadeDays, "days", -1, "Days since quitting")
	fadeCmd.Flags().StringVar(&fadeQuitDate, "quit-date", "", "Quit date (YYYY-MM-DD); days are counted to today")
	fadeCmd.Flags().StringVar(&fadeType, "type", "smoking", "Challenge type id")
	rootCmd.AddCommand(fadeCmd)
}

var (
	fadeDays     int
	fadeQuitDate string
	fadeType     string
)

var fadeCmd = &cobra.Command{
	Use:   "fade",
	Short: "Show health-risk reduction for a number of smoke-free days",
	Example: `  breathe fade --days 30
  breathe fade --quit-date 2026-01-15 --type smoking`,
	RunE: runFade,
}

func runFade(cmd *cobra.Command, args []string) error {
	loc, err := cfg.Location()
	if err != nil {
		return err
	}
	days, err := fadeDaysArg(time.Now().In(loc))
	if err != nil {
		return err
	}

	db, err := openStore()
	if err != nil {
		return err
	}
	defer db.Close()

	var risks []domain.HealthRisk
	err = db.View(cmd.Context(), func(tx *store.Tx) error {
		if _, err := tx.ChallengeType(cmd.Context(), fadeType); err != nil {
			return err
		}
		risks, err = tx.HealthRisks(cmd.Context(), fadeType)
		return err
	})
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if len(risks) == 0 {
		fmt.Fprintf(out, "No health risks configured for %q.\n", fadeType)
		return nil
	}

	fmt.Fprintf(out, "Day %d smoke-free (%s)\n\n", days, fadeType)
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "RISK\tWINDOW\tREDUCTION")
	for _, p := range engagement.RiskProgressFor(days, risks) {
		fmt.Fprintf(w, "%s\t%d-%d days\t%d%%\n", p.Name, p.FadeStartDays, p.FadeEndDays, p.FadePercent)
	}
	return w.Flush()
}

// fadeDaysArg resolves --days or --quit-date against now.
func fadeDaysArg(now time.Time) (int, error) {
	switch {
	case fadeQuitDate != "" && fadeDays >= 0:
		return 0, fmt.Errorf("use either --days or --quit-date, not both")
	case fadeQuitDate != "":
		quit, err := domain.ParseDate(fadeQuitDate)
		if err != nil {
			return 0, err
		}
		today := domain.DateOf(now)
		if quit.After(today) {
			return 0, fmt.Errorf("%w: quit date is in the future", domain.ErrInvalidDate)
		}
		// Same basis as the challenge view: the quit day is day 1.
		uc := domain.UserChallenge{Mode: domain.ModeQuitting, QuitDate: &quit}
		return engagement.DaysSinceQuit(uc, today), nil
	case fadeDays >= 0:
		return fadeDays, nil
	default:
		return 0, fmt.Errorf("--days or --quit-date is required")
	}
}
