package cmd

import (
	"fmt"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/silbaram/artifact-driven-agent/internal/workspace"
)

// NewConfigCommand creates the config command group
func NewConfigCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Show and edit the role to tool assignment",
		Long: `Show and edit ada.config.json, which assigns a tool to every role.

Keys:
  defaults.tool    tool for roles without an entry
  roles.<role>     tool for one role

Examples:
  ada config show
  ada config get roles.manager
  ada config set roles.reviewer gemini`,
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Show role assignments and effective settings",
		Args:  cobra.NoArgs,
		RunE:  configShowCommand,
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "get <key>",
		Short: "Print one config value",
		Args:  cobra.ExactArgs(1),
		RunE:  configGetCommand,
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "set <key> <tool>",
		Short: "Assign a tool",
		Args:  cobra.ExactArgs(2),
		RunE:  configSetCommand,
	})

	return cmd
}

func configShowCommand(cmd *cobra.Command, args []string) error {
	a, err := loadApp(cmd)
	if err != nil {
		return err
	}
	roles, err := a.roleConfig(cmd.Context())
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintln(out, color.New(color.Bold).Sprintf("Roles (%s)", a.ws.ConfigFile()))
	fmt.Fprintf(out, "  %-12s %s\n", "defaults", roles.Defaults.Tool)
	for _, role := range roles.RoleNames() {
		line := fmt.Sprintf("  %-12s %s", role, roles.ToolForRole(role))
		if skills := roles.Roles[role].Skills; len(skills) > 0 {
			line += "  skills: " + strings.Join(skills, ", ")
		}
		fmt.Fprintln(out, line)
	}

	data, err := yaml.Marshal(a.settings)
	if err != nil {
		return fmt.Errorf("encode settings: %w", err)
	}
	fmt.Fprintln(out, color.New(color.Bold).Sprintf("\nSettings (%s)", a.ws.SettingsFile()))
	for _, line := range strings.Split(strings.TrimRight(string(data), "\n"), "\n") {
		fmt.Fprintf(out, "  %s\n", line)
	}
	return nil
}

func configGetCommand(cmd *cobra.Command, args []string) error {
	a, err := loadApp(cmd)
	if err != nil {
		return err
	}
	roles, err := a.roleConfig(cmd.Context())
	if err != nil {
		return err
	}
	value, err := roles.Get(args[0])
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), value)
	return nil
}

func configSetCommand(cmd *cobra.Command, args []string) error {
	a, err := loadApp(cmd)
	if err != nil {
		return err
	}
	key, tool := args[0], args[1]
	if !workspace.HasTool(tool) {
		return fmt.Errorf("unknown tool %q\nHint: use one of %v", tool, workspace.Tools)
	}

	roles, err := a.roleConfig(cmd.Context())
	if err != nil {
		return err
	}
	if err := roles.Set(key, tool); err != nil {
		return err
	}
	if err := roles.Save(cmd.Context(), a.ws.ConfigFile()); err != nil {
		return fmt.Errorf("save %s: %w", a.ws.ConfigFile(), err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s = %s\n", key, tool)
	return nil
}
