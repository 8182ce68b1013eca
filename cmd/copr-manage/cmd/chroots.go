package cmd

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/copr-farm/copr/pkg/logging"
	"github.com/copr-farm/copr/pkg/logic"
	"github.com/copr-farm/copr/pkg/models"
)

var (
	seedFile       string
	createInactive bool
	alterAction    string
	dryRun         bool
	outdatedBatch  int
)

var createDBCmd = &cobra.Command{
	Use:   "create-db",
	Short: "Create the database schema and optionally seed chroots",
	Args:  cobra.NoArgs,
	RunE:  runCreateDB,
}

var createChrootCmd = &cobra.Command{
	Use:   "create-chroot <name>...",
	Short: "Create mock chroots",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runCreateChroot,
}

var alterChrootCmd = &cobra.Command{
	Use:   "alter-chroot --action activate|deactivate <name>...",
	Short: "Activate or deactivate mock chroots",
	Long: `Deactivating a chroot starts the preservation period of its results in
every project; activating it again cancels the pending removal.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runAlterChroot,
}

var dropChrootCmd = &cobra.Command{
	Use:   "drop-chroot <name>...",
	Short: "Delete mock chroots",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runDropChroot,
}

var deleteOutdatedCmd = &cobra.Command{
	Use:   "delete-outdated-chroots",
	Short: "Queue removal of chroot results whose preservation period is over",
	Args:  cobra.NoArgs,
	RunE:  runDeleteOutdated,
}

func init() {
	rootCmd.AddCommand(createDBCmd, createChrootCmd, alterChrootCmd, dropChrootCmd, deleteOutdatedCmd)

	createDBCmd.Flags().StringVar(&seedFile, "chroots", "", "YAML file with the chroots to create")
	createChrootCmd.Flags().BoolVar(&createInactive, "deactivated", false, "create the chroots deactivated")
	alterChrootCmd.Flags().StringVar(&alterAction, "action", "", "activate or deactivate")
	alterChrootCmd.MarkFlagRequired("action")
	deleteOutdatedCmd.Flags().BoolVar(&dryRun, "dry-run", false, "only print what would be deleted")
	deleteOutdatedCmd.Flags().IntVar(&outdatedBatch, "batch", 1000, "chroots committed per transaction")
}

// ChrootSeed is the chroot list read by create-db
type ChrootSeed struct {
	Chroots []struct {
		Name   string `yaml:"name"`
		Active *bool  `yaml:"active"`
	} `yaml:"chroots"`
}

func loadSeed(path string) (*ChrootSeed, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	var seed ChrootSeed
	if err := yaml.Unmarshal(data, &seed); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	return &seed, nil
}

func runCreateDB(cmd *cobra.Command, args []string) error {
	if err := dataStore.HealthCheck(cmd.Context()); err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), "Database schema is up to date.")
	if seedFile == "" {
		return nil
	}

	seed, err := loadSeed(seedFile)
	if err != nil {
		return err
	}
	created := 0
	for _, ch := range seed.Chroots {
		mc, err := farm.MockChroots.Add(cmd.Context(), ch.Name)
		switch {
		case logic.IsCode(err, logic.CodeDuplicate):
			fmt.Fprintf(cmd.OutOrStdout(), "Chroot %s already exists.\n", ch.Name)
			continue
		case err != nil:
			return err
		}
		if ch.Active != nil && !*ch.Active {
			if _, err := farm.MockChroots.EditByName(cmd.Context(), mc.Name(), false); err != nil {
				return err
			}
		}
		created++
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Created %d chroots.\n", created)
	return nil
}

func runCreateChroot(cmd *cobra.Command, args []string) error {
	var errs []error
	for _, name := range args {
		mc, err := farm.MockChroots.Add(cmd.Context(), name)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if createInactive {
			if _, err := farm.MockChroots.EditByName(cmd.Context(), name, false); err != nil {
				errs = append(errs, err)
				continue
			}
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Created chroot %s.\n", mc.Name())
	}
	return errors.Join(errs...)
}

func runAlterChroot(cmd *cobra.Command, args []string) error {
	var active bool
	switch alterAction {
	case "activate":
		active = true
	case "deactivate":
		active = false
	default:
		return fmt.Errorf("action must be activate or deactivate, got %q", alterAction)
	}

	var errs []error
	for _, name := range args {
		if _, err := farm.MockChroots.EditByName(cmd.Context(), name, active); err != nil {
			errs = append(errs, err)
			continue
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Chroot %s %sd.\n", name, alterAction)
	}
	return errors.Join(errs...)
}

func runDropChroot(cmd *cobra.Command, args []string) error {
	var errs []error
	for _, name := range args {
		if err := farm.MockChroots.DeleteByName(cmd.Context(), name); err != nil {
			errs = append(errs, err)
			continue
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Dropped chroot %s.\n", name)
	}
	return errors.Join(errs...)
}

func runDeleteOutdated(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()
	n, err := farm.Chroots.DeleteOutdated(cmd.Context(), dryRun, outdatedBatch, func(cc *models.CoprChroot, copr *models.Copr) {
		if dryRun {
			fmt.Fprintf(out, "Add delete_chroot action for %s in %s\n", cc.Name(), copr.FullName())
		}
	})
	if err != nil {
		return err
	}
	if !dryRun {
		logger.Info("Outdated chroots queued for removal", logging.Fields{"count": n})
		fmt.Fprintf(out, "Queued removal of %d chroots.\n", n)
	}
	return nil
}
