package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"bandcal/internal/auth"
	"bandcal/internal/model"
)

const envPassword = "BANDCAL_PASSWORD"

var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Sign in with email and password",
	Long: `Sign in and keep the session on disk.

The password can also be given in the BANDCAL_PASSWORD environment variable.

Examples:
  bandcal login --email ana@example.ro --password secret`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		email, _ := cmd.Flags().GetString("email")
		password, _ := cmd.Flags().GetString("password")
		if password == "" {
			password = os.Getenv(envPassword)
		}
		if email == "" || password == "" {
			return fmt.Errorf("--email and --password are required")
		}

		a, err := newApp()
		if err != nil {
			return err
		}
		if !a.ctrl.SignIn(cmd.Context(), email, password) {
			return a.lastError("sign in")
		}
		return printWhoami(cmd, a.store.Snapshot())
	},
}

var signupCmd = &cobra.Command{
	Use:   "signup",
	Short: "Create an account and sign in with it",
	RunE: func(cmd *cobra.Command, _ []string) error {
		email, _ := cmd.Flags().GetString("email")
		password, _ := cmd.Flags().GetString("password")
		username, _ := cmd.Flags().GetString("username")
		fullName, _ := cmd.Flags().GetString("full-name")
		if password == "" {
			password = os.Getenv(envPassword)
		}
		if email == "" || password == "" || username == "" {
			return fmt.Errorf("--email, --password and --username are required")
		}

		a, err := newApp()
		if err != nil {
			return err
		}
		ok := a.ctrl.SignUp(cmd.Context(), auth.SignUpParams{
			Email: email, Password: password, Username: username, FullName: fullName, Role: model.RoleMember,
		})
		if !ok {
			if a.store.LastError() == "" {
				fmt.Fprintln(cmd.OutOrStdout(), "Account created. Confirm the email address, then run bandcal login.")
				return nil
			}
			return a.lastError("sign up")
		}
		return printWhoami(cmd, a.store.Snapshot())
	},
}

var logoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Sign out and forget the stored session",
	RunE: func(cmd *cobra.Command, _ []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		a.ctrl.Initialize(cmd.Context())
		a.ctrl.SignOut(cmd.Context())
		fmt.Fprintln(cmd.OutOrStdout(), "Signed out.")
		return nil
	},
}

var whoamiCmd = &cobra.Command{
	Use:   "whoami",
	Short: "Show the signed-in user",
	RunE: func(cmd *cobra.Command, _ []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		a.ctrl.Initialize(cmd.Context())
		// Renew a session that is about to lapse while we are here.
		a.ctrl.CheckAndRefresh(cmd.Context())

		snap := a.store.Snapshot()
		if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(snap)
		}
		if !snap.IsAuthenticated() {
			return errNotSignedIn
		}
		return printWhoami(cmd, snap)
	},
}

func printWhoami(cmd *cobra.Command, snap auth.Snapshot) error {
	out := cmd.OutOrStdout()
	if snap.Identity == nil {
		return errNotSignedIn
	}
	fmt.Fprintf(out, "Signed in as %s (%s)\n", snap.Identity.Email, snap.Identity.ID)
	if snap.Profile != nil {
		fmt.Fprintf(out, "Username: %s\nRole:     %s\n", snap.Profile.Username, snap.Profile.Role)
	} else {
		fmt.Fprintln(out, "Profile:  not loaded")
	}
	if snap.ExpiresAt > 0 {
		fmt.Fprintf(out, "Session expires %s\n", time.Unix(snap.ExpiresAt, 0).Format(time.RFC1123))
	}
	return nil
}

func init() {
	for _, c := range []*cobra.Command{loginCmd, signupCmd} {
		c.Flags().String("email", "", "account email")
		c.Flags().String("password", "", "account password (or "+envPassword+")")
	}
	signupCmd.Flags().String("username", "", "display username")
	signupCmd.Flags().String("full-name", "", "full name")
	whoamiCmd.Flags().Bool("json", false, "print the session snapshot as JSON")

	rootCmd.AddCommand(loginCmd, signupCmd, logoutCmd, whoamiCmd)
}
