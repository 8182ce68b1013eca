package cmd

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/copr-farm/copr/pkg/api"
	"github.com/copr-farm/copr/pkg/client"
	"github.com/copr-farm/copr/pkg/models"
)

var (
	buildChroots    []string
	buildTimeout    int
	buildRepos      string
	buildEnableNet  bool
	buildSkipImport bool
	buildWait       bool

	buildsLimit int
)

var buildCmd = &cobra.Command{
	Use:   "build <owner/name> <src-rpm-url>",
	Short: "Submit a build",
	Args:  cobra.ExactArgs(2),
	RunE:  runBuild,
}

var buildsCmd = &cobra.Command{
	Use:   "builds <owner/name>",
	Short: "List builds of a project",
	Args:  cobra.ExactArgs(1),
	RunE:  runBuilds,
}

var statusCmd = &cobra.Command{
	Use:   "status <build-id>",
	Short: "Show the status of a build",
	Args:  cobra.ExactArgs(1),
	RunE:  runStatus,
}

var deleteBuildCmd = &cobra.Command{
	Use:   "delete-build <build-id>",
	Short: "Delete a finished build",
	Args:  cobra.ExactArgs(1),
	RunE:  runDeleteBuild,
}

var cancelCmd = &cobra.Command{
	Use:   "cancel <build-id>",
	Short: "Cancel an unfinished build",
	Args:  cobra.ExactArgs(1),
	RunE:  runCancel,
}

var actionsCmd = &cobra.Command{
	Use:   "actions",
	Short: "List backend actions",
	Args:  cobra.NoArgs,
	RunE:  runActions,
}

var (
	actionType   string
	actionResult string
)

func init() {
	rootCmd.AddCommand(buildCmd, buildsCmd, statusCmd, deleteBuildCmd, cancelCmd, actionsCmd)

	buildCmd.Flags().StringSliceVar(&buildChroots, "chroot", nil, "build only in these chroots (repeatable)")
	buildCmd.Flags().IntVar(&buildTimeout, "timeout", 0, "build timeout in seconds")
	buildCmd.Flags().StringVar(&buildRepos, "repo", "", "additional repositories for this build")
	buildCmd.Flags().BoolVar(&buildEnableNet, "enable-net", true, "allow network access during the build")
	buildCmd.Flags().BoolVar(&buildSkipImport, "skip-import", false, "skip the dist-git import")
	buildCmd.Flags().BoolVar(&buildWait, "wait", false, "poll the build every 5 seconds until it finishes")

	buildsCmd.Flags().IntVar(&buildsLimit, "limit", 20, "number of builds to show")

	actionsCmd.Flags().StringVar(&actionType, "type", "", "filter by action type, e.g. delete or createrepo")
	actionsCmd.Flags().StringVar(&actionResult, "result", "", "filter by result: waiting, success or failure")
}

func parseBuildID(arg string) (int64, error) {
	id, err := strconv.ParseInt(arg, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid build id %q", arg)
	}
	return id, nil
}

func formatTime(ts *int64) string {
	if ts == nil || *ts == 0 {
		return "-"
	}
	return time.Unix(*ts, 0).Format("2006-01-02 15:04:05")
}

func printBuild(b *api.BuildResponse) {
	table := tablewriter.NewWriter(os.Stdout)
	table.Header("Chroot", "Status", "Started", "Ended")
	for _, ch := range b.Chroots {
		table.Append([]string{ch.Name, ch.Status, formatTime(ch.StartedOn), formatTime(ch.EndedOn)})
	}
	fmt.Printf("Build %d (%s): %s\n", b.ID, b.PackageName, b.Status)
	table.Render()
}

func runBuild(cmd *cobra.Command, args []string) error {
	owner, name, err := splitProject(args[0])
	if err != nil {
		return err
	}
	c, err := newClient()
	if err != nil {
		return err
	}
	req := api.CreateBuildRequest{
		Pkgs:       args[1],
		Repos:      buildRepos,
		Timeout:    buildTimeout,
		Chroots:    buildChroots,
		EnableNet:  boolFlag(cmd, "enable-net", buildEnableNet),
		SkipImport: buildSkipImport,
	}
	build, err := c.CreateBuild(cmd.Context(), owner, name, req)
	if err != nil {
		return fmt.Errorf("failed to submit build: %w", err)
	}
	if !buildWait {
		if done, err := printStructured(os.Stdout, build); done {
			return err
		}
		fmt.Printf("Build was added to %s/%s: %d\n", owner, name, build.ID)
		return nil
	}
	fmt.Printf("Build was added to %s/%s: %d\n", owner, name, build.ID)
	return waitForBuild(cmd.Context(), c, build.ID)
}

func waitForBuild(ctx context.Context, c *client.Client, id int64) error {
	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()
	last := ""
	for {
		build, err := c.GetBuild(ctx, id)
		if err != nil {
			return err
		}
		if build.Status != last {
			fmt.Printf("  %s Build %d: %s\n", time.Now().Format("15:04:05"), id, build.Status)
			last = build.Status
		}
		status, err := models.ParseBuildStatus(build.Status)
		if err != nil {
			return err
		}
		if models.IsFinished(status) {
			printBuild(build)
			if status != models.StatusSucceeded && status != models.StatusSkipped {
				return fmt.Errorf("build %d %s", id, build.Status)
			}
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func runBuilds(cmd *cobra.Command, args []string) error {
	owner, name, err := splitProject(args[0])
	if err != nil {
		return err
	}
	c, err := newClient()
	if err != nil {
		return err
	}
	builds, err := c.ListBuilds(cmd.Context(), owner, name, buildsLimit, 0)
	if err != nil {
		return fmt.Errorf("failed to list builds: %w", err)
	}
	if done, err := printStructured(os.Stdout, builds); done {
		return err
	}
	table := tablewriter.NewWriter(os.Stdout)
	table.Header("ID", "Package", "Status", "Submitted")
	for _, b := range builds {
		submitted := b.SubmittedOn
		table.Append([]string{strconv.FormatInt(b.ID, 10), b.PackageName, b.Status, formatTime(&submitted)})
	}
	table.Render()
	return nil
}

func runStatus(cmd *cobra.Command, args []string) error {
	id, err := parseBuildID(args[0])
	if err != nil {
		return err
	}
	c, err := newClient()
	if err != nil {
		return err
	}
	build, err := c.GetBuild(cmd.Context(), id)
	if err != nil {
		return fmt.Errorf("failed to get build: %w", err)
	}
	if done, err := printStructured(os.Stdout, build); done {
		return err
	}
	printBuild(build)
	return nil
}

func runDeleteBuild(cmd *cobra.Command, args []string) error {
	id, err := parseBuildID(args[0])
	if err != nil {
		return err
	}
	c, err := newClient()
	if err != nil {
		return err
	}
	msg, err := c.DeleteBuild(cmd.Context(), id)
	if err != nil {
		return fmt.Errorf("failed to delete build: %w", err)
	}
	fmt.Println(msg)
	return nil
}

func runCancel(cmd *cobra.Command, args []string) error {
	id, err := parseBuildID(args[0])
	if err != nil {
		return err
	}
	c, err := newClient()
	if err != nil {
		return err
	}
	build, err := c.CancelBuild(cmd.Context(), id)
	if err != nil {
		return fmt.Errorf("failed to cancel build: %w", err)
	}
	if done, err := printStructured(os.Stdout, build); done {
		return err
	}
	fmt.Printf("Build %d: %s\n", id, build.Status)
	return nil
}

func runActions(cmd *cobra.Command, args []string) error {
	c, err := newClient()
	if err != nil {
		return err
	}
	actions, err := c.ListActions(cmd.Context(), actionType, actionResult)
	if err != nil {
		return fmt.Errorf("failed to list actions: %w", err)
	}
	if done, err := printStructured(os.Stdout, actions); done {
		return err
	}
	table := tablewriter.NewWriter(os.Stdout)
	table.Header("ID", "Type", "Object", "Old value", "Result", "Created")
	for _, a := range actions {
		created := a.CreatedOn
		table.Append([]string{
			strconv.FormatInt(a.ID, 10),
			a.ActionType.String(),
			fmt.Sprintf("%s %d", a.ObjectType, a.ObjectID),
			a.OldValue,
			a.Result.String(),
			formatTime(&created),
		})
	}
	table.Render()
	return nil
}
