package cmd

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/copr-farm/copr/pkg/api"
	"github.com/copr-farm/copr/pkg/models"
)

var (
	// create / modify flags
	projectChroots      []string
	projectGroup        string
	projectDescription  string
	projectInstructions string
	projectRepos        string
	projectPersistent   bool
	projectAutoPrune    bool
	projectCreaterepo   bool
	projectEnableNet    bool
	projectUnlisted     bool

	// list flags
	listPage int

	// permissions flags
	permissionBuilder string
	permissionAdmin   string
)

var listCmd = &cobra.Command{
	Use:   "list [owner]",
	Short: "List projects",
	Long:  `List all projects, or the projects of one user.`,
	Args:  cobra.MaximumNArgs(1),
	RunE:  runList,
}

var createCmd = &cobra.Command{
	Use:   "create <name>",
	Short: "Create a project",
	Args:  cobra.ExactArgs(1),
	RunE:  runCreate,
}

var modifyCmd = &cobra.Command{
	Use:   "modify <owner/name>",
	Short: "Change project settings",
	Long:  `Change project settings. Only the given flags are changed.`,
	Args:  cobra.ExactArgs(1),
	RunE:  runModify,
}

var deleteCmd = &cobra.Command{
	Use:   "delete <owner/name>",
	Short: "Delete a project",
	Args:  cobra.ExactArgs(1),
	RunE:  runDelete,
}

var forkCmd = &cobra.Command{
	Use:   "fork <owner/name> [new-name]",
	Short: "Fork a project with its successful builds",
	Args:  cobra.RangeArgs(1, 2),
	RunE:  runFork,
}

var chrootsCmd = &cobra.Command{
	Use:   "chroots [owner/name]",
	Short: "List chroots of a project, or all chroots of the farm",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runChroots,
}

var permissionsCmd = &cobra.Command{
	Use:   "permissions <owner/name> [user]",
	Short: "Show or edit project permissions",
	Long: `Without a user, list the permissions granted in the project.
With a user and --builder/--admin, set that user's permissions (project admins only).`,
	Args: cobra.RangeArgs(1, 2),
	RunE: runPermissions,
}

var requestPermissionsCmd = &cobra.Command{
	Use:   "request-permissions <owner/name>",
	Short: "Ask the project owner for permissions",
	Args:  cobra.ExactArgs(1),
	RunE:  runRequestPermissions,
}

func init() {
	rootCmd.AddCommand(listCmd, createCmd, modifyCmd, deleteCmd, forkCmd, chrootsCmd, permissionsCmd, requestPermissionsCmd)

	listCmd.Flags().IntVar(&listPage, "page", 1, "page number")

	createCmd.Flags().StringSliceVar(&projectChroots, "chroot", nil, "chroot to enable (repeatable, required)")
	createCmd.Flags().StringVar(&projectGroup, "group", "", "create the project in a group")
	createCmd.MarkFlagRequired("chroot")
	for _, c := range []*cobra.Command{createCmd, modifyCmd} {
		c.Flags().StringVar(&projectDescription, "description", "", "project description")
		c.Flags().StringVar(&projectInstructions, "instructions", "", "installation instructions")
		c.Flags().StringVar(&projectRepos, "repo", "", "space separated list of additional repositories")
		c.Flags().BoolVar(&projectPersistent, "persistent", false, "builds can't be deleted (admin only)")
		c.Flags().BoolVar(&projectAutoPrune, "auto-prune", true, "prune old builds automatically")
		c.Flags().BoolVar(&projectCreaterepo, "auto-createrepo", true, "regenerate the repository after each build")
		c.Flags().BoolVar(&projectEnableNet, "enable-net", true, "allow network access during builds")
		c.Flags().BoolVar(&projectUnlisted, "unlisted-on-hp", false, "hide the project from the home page")
	}
	modifyCmd.Flags().StringSliceVar(&projectChroots, "chroot", nil, "replace the enabled chroots")

	permissionsCmd.Flags().StringVar(&permissionBuilder, "builder", "", "builder permission: nothing, request or approved")
	permissionsCmd.Flags().StringVar(&permissionAdmin, "admin", "", "admin permission: nothing, request or approved")
	requestPermissionsCmd.Flags().StringVar(&permissionBuilder, "builder", "request", "builder permission to ask for")
	requestPermissionsCmd.Flags().StringVar(&permissionAdmin, "admin", "nothing", "admin permission to ask for")
}

func boolFlag(cmd *cobra.Command, name string, v bool) *bool {
	if !cmd.Flags().Changed(name) {
		return nil
	}
	return &v
}

func stringFlag(cmd *cobra.Command, name, v string) *string {
	if !cmd.Flags().Changed(name) {
		return nil
	}
	return &v
}

func printProjects(coprs []api.CoprResponse) {
	table := tablewriter.NewWriter(os.Stdout)
	table.Header("Project", "Chroots", "Auto createrepo", "Description")
	for _, c := range coprs {
		desc := c.Description
		if len(desc) > 50 {
			desc = desc[:47] + "..."
		}
		table.Append([]string{
			c.FullName,
			strings.Join(c.Chroots, " "),
			strconv.FormatBool(c.AutoCreaterepo),
			desc,
		})
	}
	table.Render()
}

func printProject(c *api.CoprResponse) {
	table := tablewriter.NewWriter(os.Stdout)
	table.Header("Property", "Value")
	table.Append([]string{"Project", c.FullName})
	table.Append([]string{"Chroots", strings.Join(c.Chroots, " ")})
	table.Append([]string{"Description", c.Description})
	table.Append([]string{"Repos", c.Repos})
	table.Append([]string{"Persistent", strconv.FormatBool(c.Persistent)})
	table.Append([]string{"Auto prune", strconv.FormatBool(c.AutoPrune)})
	table.Append([]string{"Auto createrepo", strconv.FormatBool(c.AutoCreaterepo)})
	table.Append([]string{"Network in builds", strconv.FormatBool(c.BuildEnableNet)})
	if c.Permissions != nil {
		table.Append([]string{"Can build", strconv.FormatBool(c.Permissions.Builder)})
		table.Append([]string{"Can admin", strconv.FormatBool(c.Permissions.Admin)})
	}
	table.Render()
}

func runList(cmd *cobra.Command, args []string) error {
	c, err := newClient()
	if err != nil {
		return err
	}
	owner := ""
	if len(args) == 1 {
		owner = args[0]
	}
	page, err := c.ListCoprs(cmd.Context(), owner, listPage)
	if err != nil {
		return fmt.Errorf("failed to list projects: %w", err)
	}
	if done, err := printStructured(os.Stdout, page); done {
		return err
	}
	printProjects(page.Coprs)
	fmt.Printf("Page %d, %d projects in total\n", page.Page, page.Total)
	return nil
}

func runCreate(cmd *cobra.Command, args []string) error {
	c, err := newClient()
	if err != nil {
		return err
	}
	req := api.CreateCoprRequest{
		Name:           args[0],
		Group:          projectGroup,
		Chroots:        projectChroots,
		Description:    projectDescription,
		Instructions:   projectInstructions,
		Repos:          projectRepos,
		Persistent:     projectPersistent,
		AutoPrune:      boolFlag(cmd, "auto-prune", projectAutoPrune),
		AutoCreaterepo: boolFlag(cmd, "auto-createrepo", projectCreaterepo),
		UnlistedOnHP:   projectUnlisted,
		BuildEnableNet: boolFlag(cmd, "enable-net", projectEnableNet),
	}
	copr, err := c.CreateCopr(cmd.Context(), req)
	if err != nil {
		return fmt.Errorf("failed to create project: %w", err)
	}
	if done, err := printStructured(os.Stdout, copr); done {
		return err
	}
	fmt.Printf("New project was successfully created: %s\n", copr.FullName)
	return nil
}

func runModify(cmd *cobra.Command, args []string) error {
	owner, name, err := splitProject(args[0])
	if err != nil {
		return err
	}
	c, err := newClient()
	if err != nil {
		return err
	}
	req := api.UpdateCoprRequest{
		Description:    stringFlag(cmd, "description", projectDescription),
		Instructions:   stringFlag(cmd, "instructions", projectInstructions),
		Repos:          stringFlag(cmd, "repo", projectRepos),
		Persistent:     boolFlag(cmd, "persistent", projectPersistent),
		AutoPrune:      boolFlag(cmd, "auto-prune", projectAutoPrune),
		AutoCreaterepo: boolFlag(cmd, "auto-createrepo", projectCreaterepo),
		UnlistedOnHP:   boolFlag(cmd, "unlisted-on-hp", projectUnlisted),
		BuildEnableNet: boolFlag(cmd, "enable-net", projectEnableNet),
	}
	if cmd.Flags().Changed("chroot") {
		req.Chroots = projectChroots
	}
	copr, err := c.UpdateCopr(cmd.Context(), owner, name, req)
	if err != nil {
		return fmt.Errorf("failed to modify project: %w", err)
	}
	if done, err := printStructured(os.Stdout, copr); done {
		return err
	}
	printProject(copr)
	return nil
}

func runDelete(cmd *cobra.Command, args []string) error {
	owner, name, err := splitProject(args[0])
	if err != nil {
		return err
	}
	c, err := newClient()
	if err != nil {
		return err
	}
	msg, err := c.DeleteCopr(cmd.Context(), owner, name)
	if err != nil {
		return fmt.Errorf("failed to delete project: %w", err)
	}
	fmt.Println(msg)
	return nil
}

func runFork(cmd *cobra.Command, args []string) error {
	owner, name, err := splitProject(args[0])
	if err != nil {
		return err
	}
	c, err := newClient()
	if err != nil {
		return err
	}
	req := api.ForkRequest{}
	if len(args) == 2 {
		req.Name = args[1]
	}
	fork, err := c.ForkCopr(cmd.Context(), owner, name, req)
	if err != nil {
		return fmt.Errorf("failed to fork project: %w", err)
	}
	if done, err := printStructured(os.Stdout, fork); done {
		return err
	}
	fmt.Printf("Forking project %s/%s into %s.\n", owner, name, fork.FullName)
	fmt.Println("Please be aware that it may take a few minutes to duplicate the backend data.")
	return nil
}

func runChroots(cmd *cobra.Command, args []string) error {
	c, err := newClient()
	if err != nil {
		return err
	}

	if len(args) == 0 {
		chroots, err := c.ListMockChroots(cmd.Context(), false)
		if err != nil {
			return fmt.Errorf("failed to list chroots: %w", err)
		}
		if done, err := printStructured(os.Stdout, chroots); done {
			return err
		}
		table := tablewriter.NewWriter(os.Stdout)
		table.Header("Chroot", "Active")
		for _, mc := range chroots {
			table.Append([]string{mc.Name, strconv.FormatBool(mc.IsActive)})
		}
		table.Render()
		return nil
	}

	owner, name, err := splitProject(args[0])
	if err != nil {
		return err
	}
	chroots, err := c.ListCoprChroots(cmd.Context(), owner, name)
	if err != nil {
		return fmt.Errorf("failed to list chroots: %w", err)
	}
	if done, err := printStructured(os.Stdout, chroots); done {
		return err
	}
	table := tablewriter.NewWriter(os.Stdout)
	table.Header("Chroot", "Active", "Buildroot packages", "Repos", "Comps", "Delete after")
	for _, cc := range chroots {
		deleteAfter := ""
		if cc.DeleteAfterDays != nil {
			deleteAfter = fmt.Sprintf("%d days", *cc.DeleteAfterDays)
		}
		table.Append([]string{cc.Name, strconv.FormatBool(cc.IsActive), cc.BuildrootPkgs, cc.Repos, cc.CompsName, deleteAfter})
	}
	table.Render()
	return nil
}

func runPermissions(cmd *cobra.Command, args []string) error {
	owner, name, err := splitProject(args[0])
	if err != nil {
		return err
	}
	c, err := newClient()
	if err != nil {
		return err
	}

	if len(args) == 2 {
		change := api.PermissionChange{Username: args[1]}
		if change.CoprBuilder, err = models.ParsePermissionState(orNothing(permissionBuilder)); err != nil {
			return err
		}
		if change.CoprAdmin, err = models.ParsePermissionState(orNothing(permissionAdmin)); err != nil {
			return err
		}
		if err := c.UpdatePermissions(cmd.Context(), owner, name, []api.PermissionChange{change}); err != nil {
			return fmt.Errorf("failed to update permissions: %w", err)
		}
		fmt.Printf("Permissions of %s in %s/%s updated.\n", args[1], owner, name)
		return nil
	}

	perms, err := c.GetPermissions(cmd.Context(), owner, name)
	if err != nil {
		return fmt.Errorf("failed to get permissions: %w", err)
	}
	if done, err := printStructured(os.Stdout, perms); done {
		return err
	}
	table := tablewriter.NewWriter(os.Stdout)
	table.Header("User", "Builder", "Admin")
	for _, p := range perms {
		user := p.Username
		if user == "" {
			user = "#" + strconv.FormatInt(p.UserID, 10)
		}
		table.Append([]string{user, p.CoprBuilder.String(), p.CoprAdmin.String()})
	}
	table.Render()
	return nil
}

func orNothing(s string) string {
	if s == "" {
		return "nothing"
	}
	return s
}

func runRequestPermissions(cmd *cobra.Command, args []string) error {
	owner, name, err := splitProject(args[0])
	if err != nil {
		return err
	}
	c, err := newClient()
	if err != nil {
		return err
	}
	req := api.RequestPermissionsRequest{}
	if req.CoprBuilder, err = models.ParsePermissionState(permissionBuilder); err != nil {
		return err
	}
	if req.CoprAdmin, err = models.ParsePermissionState(permissionAdmin); err != nil {
		return err
	}
	if err := c.RequestPermissions(cmd.Context(), owner, name, req); err != nil {
		return fmt.Errorf("failed to request permissions: %w", err)
	}
	fmt.Printf("Permissions requested in %s/%s.\n", owner, name)
	return nil
}
