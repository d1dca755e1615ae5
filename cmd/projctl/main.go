// Package main is projctl, the CLI for the projd control socket.
package main

import (
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"projd/internal/api"
	"projd/internal/client"
	"projd/internal/config"
)

var Version = "0.1.0"

var (
	socketPath string
	jsonOutput bool
)

// exitPartial signals a restore that skipped placements.
const exitPartial = 3

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:           "projctl",
	Short:         "Control client for projd",
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	defaults := config.DefaultConfig()
	rootCmd.PersistentFlags().StringVar(&socketPath, "socket", defaults.SocketPath, "projd control socket")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "machine-readable output")

	projectCmd.AddCommand(projectGetCmd, projectSwitchCmd, projectListCmd,
		projectCreateCmd, projectDeleteCmd)
	layoutCmd.AddCommand(layoutSaveCmd, layoutRestoreCmd)
	rootCmd.AddCommand(statusCmd, projectCmd, windowsCmd, eventsCmd, reloadCmd, layoutCmd)
}

func newClient() *client.Client {
	return client.New(socketPath)
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show daemon status and counters",
	RunE: func(cmd *cobra.Command, _ []string) error {
		resp, err := newClient().Status(cmd.Context())
		if err != nil {
			return err
		}
		if jsonOutput {
			return printJSON(resp)
		}
		active := resp.ActiveProject
		if active == "" {
			active = "(global mode)"
		}
		connected := "no"
		if resp.ManagerConnected {
			connected = "yes"
		}
		fmt.Printf("projd %s  up %s  manager connected: %s\n",
			resp.Version, (time.Duration(resp.UptimeSeconds) * time.Second).String(), connected)
		fmt.Printf("active project: %s\n", active)
		fmt.Printf("windows: %d (%d scoped, %d global, %d hidden)  workspaces: %d\n",
			resp.WindowCount, resp.ScopedWindows, resp.GlobalWindows, resp.HiddenWindows, resp.WorkspaceCount)
		fmt.Printf("events: %d seen, %d handled, %d errored  reconnects: %d  rebuilds: %d\n",
			resp.Counters.EventsSeen, resp.Counters.EventsHandled, resp.Counters.EventsErrored,
			resp.Counters.Reconnects, resp.Counters.Rebuilds)
		fmt.Printf("event ring: %d/%d (%d dropped)\n",
			resp.EventRing.Length, resp.EventRing.Capacity, resp.EventRing.Dropped)
		return nil
	},
}

var projectCmd = &cobra.Command{
	Use:   "project",
	Short: "Inspect and manage projects",
}

var projectGetCmd = &cobra.Command{
	Use:   "get",
	Short: "Show the active project",
	RunE: func(cmd *cobra.Command, _ []string) error {
		resp, err := newClient().ActiveProject(cmd.Context())
		if err != nil {
			return err
		}
		if jsonOutput {
			return printJSON(resp)
		}
		if resp.ProjectName == "" {
			fmt.Println("(global mode)")
			return nil
		}
		fmt.Printf("%s (since %s)\n", resp.ProjectName, resp.ActivatedAt.Format(time.RFC3339))
		return nil
	},
}

var projectSwitchCmd = &cobra.Command{
	Use:   "switch [name]",
	Short: "Switch the active project; omit the name for global mode",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		name := ""
		if len(args) == 1 {
			name = args[0]
		}
		resp, err := newClient().SwitchProject(cmd.Context(), name)
		if err != nil {
			return err
		}
		if jsonOutput {
			return printJSON(resp)
		}
		if resp.ProjectName == "" {
			fmt.Println("switched to global mode")
		} else {
			fmt.Printf("switched to %s\n", resp.ProjectName)
		}
		if !resp.Reconciled {
			fmt.Fprintln(os.Stderr, "warning: manager unreachable, window visibility not reconciled")
		}
		return nil
	},
}

var projectListCmd = &cobra.Command{
	Use:   "list",
	Short: "List defined projects",
	RunE: func(cmd *cobra.Command, _ []string) error {
		resp, err := newClient().ListProjects(cmd.Context())
		if err != nil {
			return err
		}
		if jsonOutput {
			return printJSON(resp)
		}
		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "NAME\tACTIVE\tWINDOWS\tDIRECTORY\tLAYOUT")
		for _, p := range resp.Projects {
			active := ""
			if p.Active {
				active = "*"
			}
			fmt.Fprintf(w, "%s\t%s\t%d\t%s\t%s\n", p.Name, active, p.WindowCount, p.Directory, p.SavedLayout)
		}
		return w.Flush()
	},
}

var (
	createDisplayName string
	createDirectory   string
	createIcon        string
)

var projectCreateCmd = &cobra.Command{
	Use:   "create <name>",
	Short: "Define a new project",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		resp, err := newClient().CreateProject(cmd.Context(), api.CreateProjectRequest{
			Name:        args[0],
			DisplayName: createDisplayName,
			Directory:   createDirectory,
			Icon:        createIcon,
		})
		if err != nil {
			return err
		}
		if jsonOutput {
			return printJSON(resp)
		}
		fmt.Printf("created project %s\n", resp.Name)
		return nil
	},
}

var projectDeleteCmd = &cobra.Command{
	Use:   "delete <name>",
	Short: "Delete a project and its saved layouts",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := newClient().DeleteProject(cmd.Context(), args[0]); err != nil {
			return err
		}
		if !jsonOutput {
			fmt.Printf("deleted project %s\n", args[0])
		}
		return nil
	},
}

var (
	windowsProject string
	windowsScope   string
)

var windowsCmd = &cobra.Command{
	Use:   "windows",
	Short: "List tracked windows",
	RunE: func(cmd *cobra.Command, _ []string) error {
		resp, err := newClient().ListWindows(cmd.Context(), client.WindowFilter{
			Project: windowsProject,
			Scope:   windowsScope,
		})
		if err != nil {
			return err
		}
		if jsonOutput {
			return printJSON(resp)
		}
		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tAPP\tPROJECT\tSCOPE\tWORKSPACE\tHIDDEN\tTITLE")
		for _, win := range resp.Windows {
			hidden := ""
			if win.Hidden {
				hidden = "yes"
			}
			app := win.AppName
			if app == "" {
				app = win.Class
			}
			fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\t%s\t%s\n",
				win.WindowID, app, win.ProjectName, win.Scope, win.Workspace, hidden, win.Title)
		}
		return w.Flush()
	},
}

var (
	eventsLimit int
	eventsType  string
)

var eventsCmd = &cobra.Command{
	Use:   "events",
	Short: "Show recent manager events",
	RunE: func(cmd *cobra.Command, _ []string) error {
		resp, err := newClient().RecentEvents(cmd.Context(), eventsLimit, eventsType)
		if err != nil {
			return err
		}
		if jsonOutput {
			return printJSON(resp)
		}
		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "TIME\tTYPE\tSUBTYPE\tSTATUS\tERROR")
		for _, ev := range resp.Events {
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
				ev.ReceivedAt.Format(time.RFC3339), ev.EventType, ev.Subtype, ev.Status, ev.ErrorMessage)
		}
		if err := w.Flush(); err != nil {
			return err
		}
		if resp.Dropped > 0 {
			fmt.Printf("(%d older entries dropped)\n", resp.Dropped)
		}
		return nil
	},
}

var reloadCmd = &cobra.Command{
	Use:   "reload",
	Short: "Re-read project definitions from disk",
	RunE: func(cmd *cobra.Command, _ []string) error {
		resp, err := newClient().ReloadConfig(cmd.Context())
		if err != nil {
			return err
		}
		if jsonOutput {
			return printJSON(resp)
		}
		fmt.Printf("loaded %d projects\n", resp.ProjectsLoaded)
		if resp.ActiveCleared {
			fmt.Println("active project was removed from disk; now in global mode")
		}
		return nil
	},
}

var layoutCmd = &cobra.Command{
	Use:   "layout",
	Short: "Save and restore project layouts",
}

var layoutSaveCmd = &cobra.Command{
	Use:   "save <project> [layout]",
	Short: "Capture the project's current window arrangement",
	Args:  cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		req := api.LayoutSaveRequest{ProjectName: args[0]}
		if len(args) == 2 {
			req.LayoutName = args[1]
		}
		resp, err := newClient().SaveLayout(cmd.Context(), req)
		if err != nil {
			return err
		}
		if jsonOutput {
			return printJSON(resp)
		}
		fmt.Printf("saved layout %s/%s (%d placements)\n",
			resp.ProjectName, resp.LayoutName, resp.Placements)
		return nil
	},
}

var layoutRestoreCmd = &cobra.Command{
	Use:   "restore <project> [layout]",
	Short: "Relaunch a saved layout; exits 3 on partial success",
	Args:  cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		req := api.LayoutRestoreRequest{ProjectName: args[0]}
		if len(args) == 2 {
			req.LayoutName = args[1]
		}
		resp, err := newClient().RestoreLayout(cmd.Context(), req)
		if err != nil {
			return err
		}
		if jsonOutput {
			if err := printJSON(resp); err != nil {
				return err
			}
		} else {
			fmt.Printf("restored layout %s/%s: %d applied, %d skipped\n",
				resp.ProjectName, resp.LayoutName, resp.Applied, resp.Skipped)
			for _, app := range resp.SkippedApps {
				fmt.Fprintf(os.Stderr, "warning: %s did not come up\n", app)
			}
		}
		if resp.Skipped > 0 {
			os.Exit(exitPartial)
		}
		return nil
	},
}

func init() {
	projectCreateCmd.Flags().StringVar(&createDisplayName, "display-name", "", "human-readable project name")
	projectCreateCmd.Flags().StringVar(&createDirectory, "directory", "", "absolute project directory (required)")
	projectCreateCmd.Flags().StringVar(&createIcon, "icon", "", "icon hint for bars and pickers")
	_ = projectCreateCmd.MarkFlagRequired("directory")
	windowsCmd.Flags().StringVar(&windowsProject, "project", "", "only windows of this project")
	windowsCmd.Flags().StringVar(&windowsScope, "scope", "", "only scoped or global windows")
	eventsCmd.Flags().IntVar(&eventsLimit, "limit", 50, "maximum entries")
	eventsCmd.Flags().StringVar(&eventsType, "type", "", "filter by event type (window, workspace, tick)")
}
