package cmd

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/pders01/searchable-files/internal/auth"
)

var (
	loginForce bool
	logoutYes  bool
)

var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Log in to searchable-files",
	Long: `Log in with Globus. This is needed before any command that talks to
the search service (create-index, submit, watch, query) will work.

A link is printed; open it, log in, and paste the authorization code
back. Tokens are stored locally and refreshed automatically.`,
	Args: cobra.NoArgs,
	RunE: runLogin,
}

var logoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Log out of searchable-files",
	Long: `Revoke your Globus tokens and remove them from local storage.
If the tokens cannot be revoked (for example because the network is
down) nothing is removed, so logout can be retried later.`,
	Args: cobra.NoArgs,
	RunE: runLogout,
}

func init() {
	rootCmd.AddCommand(loginCmd)
	rootCmd.AddCommand(logoutCmd)

	loginCmd.Flags().BoolVar(&loginForce, "force", false, "Do a fresh login, ignoring any existing credentials")
	logoutCmd.Flags().BoolVar(&logoutYes, "yes", false, "Do not ask for confirmation")
}

func runLogin(cmd *cobra.Command, args []string) error {
	ctx := commandContext(cmd)
	sess, err := openSession()
	if err != nil {
		return err
	}
	defer sess.Close()

	if !loginForce {
		loggedIn, err := sess.auth.LoggedIn(ctx)
		if err != nil {
			return fmt.Errorf("failed to check existing login: %w", err)
		}
		if loggedIn {
			fmt.Println("You are already logged in!")
			fmt.Println()
			fmt.Println("You may force a new login with")
			fmt.Println("  searchable-files login --force")
			return nil
		}
	}

	label, _ := os.Hostname()
	flow := sess.auth.StartLogin(label)

	prompt := "Please log into Globus here"
	rule := strings.Repeat("-", len(prompt))
	fmt.Println(prompt)
	fmt.Println(rule)
	fmt.Println(flow.URL)
	fmt.Println(rule)
	fmt.Print("Enter the resulting Authorization Code here: ")

	code, err := readLine()
	if err != nil {
		return fmt.Errorf("failed to read authorization code: %w", err)
	}
	if err := sess.auth.CompleteLogin(ctx, flow, code); err != nil {
		return err
	}

	fmt.Println()
	fmt.Println("✓ You have successfully logged in to searchable-files")
	return nil
}

func runLogout(cmd *cobra.Command, args []string) error {
	if !logoutYes {
		fmt.Print("Are you sure you want to logout? [y/N]: ")
		answer, err := readLine()
		if err != nil {
			return fmt.Errorf("failed to read confirmation: %w", err)
		}
		if a := strings.ToLower(strings.TrimSpace(answer)); a != "y" && a != "yes" {
			fmt.Println("Aborted!")
			return nil
		}
	}

	sess, err := openSession()
	if err != nil {
		return err
	}
	defer sess.Close()

	if err := sess.auth.Logout(commandContext(cmd)); err != nil {
		return err
	}

	fmt.Println("✓ You are now successfully logged out of searchable-files.")
	fmt.Println("You may also want to logout of any browser session you have with Globus:")
	fmt.Println()
	fmt.Println("  " + auth.LogoutURL)
	return nil
}

func readLine() (string, error) {
	line, err := bufio.NewReader(stdin).ReadString('\n')
	if err != nil && line == "" {
		return "", err
	}
	return strings.TrimSpace(line), nil
}
