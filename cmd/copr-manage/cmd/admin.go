package cmd

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/copr-farm/copr/pkg/logging"
	"github.com/copr-farm/copr/pkg/metrics"
)

var (
	userEmail     string
	userAdmin     bool
	tokenValidity time.Duration
	rotateFor     string
)

var addUserCmd = &cobra.Command{
	Use:   "add-user <username>",
	Short: "Create a user and print its API credentials",
	Args:  cobra.ExactArgs(1),
	RunE:  runAddUser,
}

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Print farm statistics in Prometheus text format",
	Args:  cobra.NoArgs,
	RunE:  runStats,
}

var logrotateCmd = &cobra.Command{
	Use:         "logrotate",
	Short:       "Print a logrotate configuration for a component",
	Args:        cobra.NoArgs,
	Annotations: map[string]string{"store": "none"},
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprint(cmd.OutOrStdout(), logging.LogrotateConfig(rotateFor))
	},
}

func init() {
	rootCmd.AddCommand(addUserCmd, statsCmd, logrotateCmd)

	addUserCmd.Flags().StringVar(&userEmail, "email", "", "e-mail address")
	addUserCmd.Flags().BoolVar(&userAdmin, "admin", false, "grant administrator rights")
	addUserCmd.Flags().DurationVar(&tokenValidity, "token-validity", 0, "API token validity (default 180 days)")
	logrotateCmd.Flags().StringVar(&rotateFor, "component", "frontend", "component name")
}

func runAddUser(cmd *cobra.Command, args []string) error {
	user, err := farm.Users.Add(cmd.Context(), args[0], userEmail, userAdmin)
	if err != nil {
		return err
	}
	token, err := farm.Users.GenerateToken(cmd.Context(), user, tokenValidity)
	if err != nil {
		return err
	}
	logger.Info("User created", logging.Fields{"username": user.Username, "admin": user.Admin})

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "login = %s\n", user.APILogin)
	fmt.Fprintf(out, "username = %s\n", user.Username)
	fmt.Fprintf(out, "token = %s\n", token)
	return nil
}

func runStats(cmd *cobra.Command, args []string) error {
	reg := prometheus.NewRegistry()
	if err := reg.Register(metrics.NewCollector(dataStore)); err != nil {
		return err
	}
	return metrics.WriteText(cmd.OutOrStdout(), reg)
}
