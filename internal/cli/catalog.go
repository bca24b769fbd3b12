package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/tutu-network/breathe/internal/app/catalog"
)

func init() {
	catalogCmd.AddCommand(catalogImportCmd, catalogValidateCmd, catalogSeedCmd)
	rootCmd.AddCommand(catalogCmd)
}

var catalogCmd = &cobra.Command{
	Use:   "catalog",
	Short: "Manage reference data (categories, challenge types, rewards)",
}

var catalogImportCmd = &cobra.Command{
	Use:   "import FILE",
	Short: "Upsert a YAML catalog into the database",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openStore()
		if err != nil {
			return err
		}
		defer db.Close()

		s, err := catalog.Import(cmd.Context(), db, nil, args[0])
		if err != nil {
			return err
		}
		printSummary(cmd.OutOrStdout(), "Imported", s)
		return nil
	},
}

var catalogValidateCmd = &cobra.Command{
	Use:   "validate FILE",
	Short: "Check a YAML catalog without writing it",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		f, err := catalog.Load(args[0])
		if err != nil {
			return err
		}
		printSummary(cmd.OutOrStdout(), "Valid", f.Summary())
		return nil
	},
}

var catalogSeedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Install the built-in catalog into an empty database",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openStore()
		if err != nil {
			return err
		}
		defer db.Close()

		seeded, err := catalog.Seed(cmd.Context(), db)
		if err != nil {
			return err
		}
		if !seeded {
			fmt.Fprintln(cmd.OutOrStdout(), "Catalog already present; nothing to do.")
			return nil
		}
		printSummary(cmd.OutOrStdout(), "Seeded", catalog.Default().Summary())
		return nil
	},
}

func printSummary(w io.Writer, verb string, s catalog.Summary) {
	fmt.Fprintf(w, "%s: %d categories, %d challenge types, %d milestones, %d health risks, %d reward rules, %d achievements\n",
		verb, s.Categories, s.ChallengeTypes, s.Milestones, s.HealthRisks, s.RewardRules, s.Achievements)
}
