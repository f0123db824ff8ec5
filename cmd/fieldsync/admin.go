package main

import (
	"context"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/notecam/fieldsync/internal/model"
	"github.com/notecam/fieldsync/internal/ui"
)

var adminCmd = &cobra.Command{
	Use:   "admin",
	Short: "Manage users and zones",
}

var userCmd = &cobra.Command{
	Use:   "user",
	Short: "Manage user accounts",
}

var userAddCmd = &cobra.Command{
	Use:   "add [username]",
	Short: "Create a user account",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(false)
		if err != nil {
			return err
		}
		defer a.close()

		var u model.User
		if len(args) > 0 {
			u.Username = args[0]
		}

		if term.IsTerminal(int(os.Stdin.Fd())) {
			role := string(model.RoleEmployee)
			form := huh.NewForm(
				huh.NewGroup(
					huh.NewInput().
						Title("Username").
						Value(&u.Username).
						Validate(func(s string) error {
							if strings.TrimSpace(s) == "" {
								return fmt.Errorf("username is required")
							}
							return nil
						}),
					huh.NewInput().
						Title("Display name").
						Value(&u.Name),
					huh.NewInput().
						Title("Password").
						EchoMode(huh.EchoModePassword).
						Value(&u.Password),
					huh.NewSelect[string]().
						Title("Role").
						Options(
							huh.NewOption("Employee", string(model.RoleEmployee)),
							huh.NewOption("Supervisor", string(model.RoleSupervisor)),
							huh.NewOption("Admin", string(model.RoleAdmin)),
						).
						Value(&role),
				),
			)
			if err := form.Run(); err != nil {
				return err
			}
			u.Role = model.Role(role)
		} else {
			// Non-interactive fallback: username from args, password
			// from stdin without echo when possible.
			if u.Username == "" {
				return fmt.Errorf("username argument is required")
			}
			fmt.Fprint(os.Stderr, "Password: ")
			pw, err := term.ReadPassword(int(os.Stdin.Fd()))
			fmt.Fprintln(os.Stderr)
			if err != nil {
				return fmt.Errorf("failed to read password: %w", err)
			}
			u.Password = string(pw)
			u.Role = model.RoleEmployee
		}

		if err := a.engine.CreateUser(context.Background(), u); err != nil {
			return err
		}
		fmt.Printf("%s User %s created\n", ui.RenderPass("✓"), u.Username)
		return nil
	},
}

var userPasswordCmd = &cobra.Command{
	Use:   "set-password <username>",
	Short: "Reset a user's password",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(false)
		if err != nil {
			return err
		}
		defer a.close()

		var pw string
		if term.IsTerminal(int(os.Stdin.Fd())) {
			form := huh.NewForm(
				huh.NewGroup(
					huh.NewInput().
						Title("New password").
						EchoMode(huh.EchoModePassword).
						Value(&pw),
				),
			)
			if err := form.Run(); err != nil {
				return err
			}
		} else {
			fmt.Fprint(os.Stderr, "New password: ")
			b, err := term.ReadPassword(int(os.Stdin.Fd()))
			fmt.Fprintln(os.Stderr)
			if err != nil {
				return fmt.Errorf("failed to read password: %w", err)
			}
			pw = string(b)
		}
		if strings.TrimSpace(pw) == "" {
			return fmt.Errorf("password is required")
		}

		err = a.engine.UpdateUser(context.Background(), args[0], func(u *model.User) {
			u.Password = pw
		})
		if err != nil {
			return err
		}
		fmt.Printf("%s Password updated for %s\n", ui.RenderPass("✓"), args[0])
		return nil
	},
}

var userAssignCmd = &cobra.Command{
	Use:   "assign <username> <zone-code>",
	Short: "Assign a zone to a user",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(false)
		if err != nil {
			return err
		}
		defer a.close()

		username, code := args[0], args[1]
		if _, ok := a.store.Users()[username]; !ok {
			return fmt.Errorf("unknown user %q", username)
		}

		var zoneID int64
		for _, z := range a.store.Areas() {
			if strings.EqualFold(z.Code, code) {
				zoneID = z.ID
				code = z.Code
				break
			}
		}
		if zoneID == 0 {
			return fmt.Errorf("unknown zone code %q", code)
		}

		err = a.engine.UpdateZone(context.Background(), zoneID, func(z *model.Zone) {
			z.Employee = username
		})
		if err != nil {
			return err
		}
		fmt.Printf("%s Zone %s assigned to %s\n", ui.RenderPass("✓"), code, username)
		return nil
	},
}

var userListCmd = &cobra.Command{
	Use:   "list",
	Short: "List user accounts",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(false)
		if err != nil {
			return err
		}
		defer a.close()

		users := a.store.Users()
		if len(users) == 0 {
			fmt.Println("No users")
			return nil
		}

		names := make([]string, 0, len(users))
		for name := range users {
			names = append(names, name)
		}
		sort.Strings(names)

		fmt.Printf("\n%s\n", ui.RenderHeader("Users"))
		for _, name := range names {
			u := users[name]
			fmt.Printf("  %-16s %-10s %s", u.Username, u.Role, u.Name)
			if len(u.AssignedAreas) > 0 {
				fmt.Printf("  %s", ui.RenderFaint("zones: "+strings.Join(u.AssignedAreas, ", ")))
			}
			fmt.Println()
		}
		fmt.Println()
		return nil
	},
}

var userRemoveCmd = &cobra.Command{
	Use:   "rm <username>",
	Short: "Delete a user account (zones are unassigned, not deleted)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(false)
		if err != nil {
			return err
		}
		defer a.close()

		if err := a.engine.DeleteUser(context.Background(), args[0]); err != nil {
			return err
		}
		fmt.Printf("%s User %s deleted\n", ui.RenderPass("✓"), args[0])
		return nil
	},
}

var zoneCmd = &cobra.Command{
	Use:   "zone",
	Short: "Manage zones",
}

var zoneAddCmd = &cobra.Command{
	Use:   "add",
	Short: "Create a zone",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(false)
		if err != nil {
			return err
		}
		defer a.close()

		var z model.Zone
		z.Code, _ = cmd.Flags().GetString("code")
		z.Name, _ = cmd.Flags().GetString("name")
		z.Employee, _ = cmd.Flags().GetString("employee")

		if z.Code == "" && term.IsTerminal(int(os.Stdin.Fd())) {
			form := huh.NewForm(
				huh.NewGroup(
					huh.NewInput().Title("Zone code").Value(&z.Code),
					huh.NewInput().Title("Zone name").Value(&z.Name),
					huh.NewInput().Title("Assigned employee").Value(&z.Employee),
				),
			)
			if err := form.Run(); err != nil {
				return err
			}
		}

		created, err := a.engine.CreateZone(context.Background(), z)
		if err != nil {
			return err
		}
		fmt.Printf("%s Zone %s (%s) created, id %d\n",
			ui.RenderPass("✓"), created.Code, created.Name, created.ID)
		return nil
	},
}

var zoneListCmd = &cobra.Command{
	Use:   "list",
	Short: "List zones",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(false)
		if err != nil {
			return err
		}
		defer a.close()

		zones := a.store.Areas()
		if len(zones) == 0 {
			fmt.Println("No zones")
			return nil
		}

		fmt.Printf("\n%s\n", ui.RenderHeader("Zones"))
		for _, z := range zones {
			marker := " "
			if z.NeedsReview {
				marker = ui.RenderWarn("⚠")
			} else if !z.IsActive {
				marker = ui.RenderFaint("○")
			}
			fmt.Printf("  %s %-10s %-24s %s\n", marker, z.Code, z.Name, z.Employee)
		}
		fmt.Println()
		return nil
	},
}

var zoneRemoveCmd = &cobra.Command{
	Use:   "rm <id>",
	Short: "Delete a zone",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(false)
		if err != nil {
			return err
		}
		defer a.close()

		id, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil {
			return fmt.Errorf("invalid zone id %q", args[0])
		}
		if err := a.engine.DeleteZone(context.Background(), id); err != nil {
			return err
		}
		fmt.Printf("%s Zone %d deleted\n", ui.RenderPass("✓"), id)
		return nil
	},
}

var zoneResolveCmd = &cobra.Command{
	Use:   "resolve <id>",
	Short: "Clear the review flag and re-push a zone",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(true)
		if err != nil {
			return err
		}
		defer a.close()

		id, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil {
			return fmt.Errorf("invalid zone id %q", args[0])
		}
		if err := a.engine.ResolveZone(context.Background(), id); err != nil {
			return err
		}
		fmt.Printf("%s Zone %d resolved\n", ui.RenderPass("✓"), id)
		return nil
	},
}

func init() {
	zoneAddCmd.Flags().String("code", "", "zone code (unique)")
	zoneAddCmd.Flags().String("name", "", "zone display name")
	zoneAddCmd.Flags().String("employee", "", "assigned employee username")

	userCmd.AddCommand(userAddCmd, userListCmd, userPasswordCmd, userAssignCmd, userRemoveCmd)
	zoneCmd.AddCommand(zoneAddCmd, zoneListCmd, zoneRemoveCmd, zoneResolveCmd)
	adminCmd.AddCommand(userCmd, zoneCmd)
	rootCmd.AddCommand(adminCmd)
}
