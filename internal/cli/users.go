package cli

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"bandcal/internal/auth"
	"bandcal/internal/model"
)

var usersCmd = &cobra.Command{
	Use:   "users",
	Short: "Manage band members (admin only)",
	RunE: func(cmd *cobra.Command, _ []string) error {
		return cmd.Help()
	},
}

var usersListCmd = &cobra.Command{
	Use:   "list",
	Short: "List members, newest first",
	RunE: func(cmd *cobra.Command, _ []string) error {
		a, err := signedInApp(cmd.Context())
		if err != nil {
			return err
		}
		ps, err := a.users.List(cmd.Context())
		if err != nil {
			return err
		}
		tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "USERNAME\tFULL NAME\tROLE\tCREATED\tID")
		for _, p := range ps {
			full := ""
			if p.FullName != nil {
				full = *p.FullName
			}
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", p.Username, full, p.Role, p.CreatedAt.Format("2006-01-02"), p.ID)
		}
		return tw.Flush()
	},
}

var usersCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Create a member account",
	Example: `  bandcal users create --email vio@example.ro --password secret \
    --username vio --full-name "Vio Pop" --role member`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		f := cmd.Flags()
		email, _ := f.GetString("email")
		password, _ := f.GetString("password")
		username, _ := f.GetString("username")
		fullName, _ := f.GetString("full-name")
		roleFlag, _ := f.GetString("role")
		if password == "" {
			password = os.Getenv(envPassword)
		}
		role, err := model.ParseRole(roleFlag)
		if err != nil {
			return err
		}

		a, err := signedInApp(cmd.Context())
		if err != nil {
			return err
		}
		id, err := a.users.Create(cmd.Context(), auth.SignUpParams{
			Email: email, Password: password, Username: username, FullName: fullName, Role: role,
		})
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Created user %s (%s)\n", id.Email, id.ID)
		return nil
	},
}

var usersUpdateCmd = &cobra.Command{
	Use:   "update <id>",
	Short: "Change a member's username, full name or role",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseID(args[0])
		if err != nil {
			return err
		}
		var u model.ProfileUpdate
		f := cmd.Flags()
		if f.Changed("username") {
			v, _ := f.GetString("username")
			u.Username = &v
		}
		if f.Changed("full-name") {
			v, _ := f.GetString("full-name")
			u.FullName = &v
		}
		if f.Changed("role") {
			v, _ := f.GetString("role")
			role, err := model.ParseRole(v)
			if err != nil {
				return err
			}
			u.Role = &role
		}

		a, err := signedInApp(cmd.Context())
		if err != nil {
			return err
		}
		p, err := a.users.Update(cmd.Context(), id, u)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Updated %s: role %s\n", p.Username, p.Role)
		return nil
	},
}

var usersDeleteCmd = &cobra.Command{
	Use:   "delete <id>",
	Short: "Delete a member's profile",
	Long: `Delete a member's profile row. The login itself stays with the identity
provider and can only be removed from its dashboard.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseID(args[0])
		if err != nil {
			return err
		}
		a, err := signedInApp(cmd.Context())
		if err != nil {
			return err
		}
		if err := a.users.Delete(cmd.Context(), id); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Deleted profile %s\n", id)
		return nil
	},
}

func init() {
	usersCreateCmd.Flags().String("email", "", "account email")
	usersCreateCmd.Flags().String("password", "", "initial password (or "+envPassword+")")
	for _, c := range []*cobra.Command{usersCreateCmd, usersUpdateCmd} {
		c.Flags().String("username", "", "display username")
		c.Flags().String("full-name", "", "full name")
		c.Flags().String("role", string(model.RoleMember), "member or admin")
	}

	usersCmd.AddCommand(usersListCmd, usersCreateCmd, usersUpdateCmd, usersDeleteCmd)
	rootCmd.AddCommand(usersCmd)
}
