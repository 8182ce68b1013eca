package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/copr-farm/copr/pkg/config"
	"github.com/copr-farm/copr/pkg/logging"
	"github.com/copr-farm/copr/pkg/logic"
	"github.com/copr-farm/copr/pkg/store"
)

var (
	cfgFile string

	cfg       *config.Config
	dataStore store.Store
	farm      *logic.Logic
	logger    *logging.Logger
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "copr-manage",
	Short: "Administer the Copr frontend database",
	Long: `copr-manage works directly on the frontend database. It reads the same
configuration file and COPR_* environment variables as copr-frontend.`,
	SilenceUsage:       true,
	PersistentPreRunE:  openStore,
	PersistentPostRunE: closeStore,
}

// Execute adds all child commands to the root command and sets flags appropriately
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "frontend configuration file")
}

func openStore(cmd *cobra.Command, args []string) error {
	if cmd.Annotations["store"] == "none" {
		return nil
	}
	if err := closeStore(cmd, args); err != nil {
		return err
	}
	var err error
	if cfg, err = config.Load(cfgFile); err != nil {
		return err
	}
	logger = logging.NewLogger(logging.ParseLevel(cfg.Logging.Level), cfg.Logging.JSON)
	logger.SetOutput(cmd.ErrOrStderr())

	if dataStore, err = store.NewStore(cfg.StoreConfig()); err != nil {
		return fmt.Errorf("failed to open %s store: %w", cfg.Database.Type, err)
	}
	farm = logic.New(dataStore, cfg.LogicConfig())
	return nil
}

func closeStore(cmd *cobra.Command, args []string) error {
	if dataStore == nil {
		return nil
	}
	err := dataStore.Close()
	dataStore = nil
	farm = nil
	return err
}
