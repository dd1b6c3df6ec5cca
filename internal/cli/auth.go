package cli

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/comparethewait/ctw/internal/auth"
	"github.com/comparethewait/ctw/internal/ui"
)

var (
	authValue string
	authYes   bool
)

// secretNames maps the names accepted on the command line to store names
var secretNames = map[string]string{
	"api-key":      auth.APIKey,
	"database-url": auth.DatabaseURL,
}

// authCmd represents the auth command
var authCmd = &cobra.Command{
	Use:   "auth",
	Short: "Manage stored secrets",
	Long: `Store, list and delete the secrets used by the pipeline.

Secrets are kept in your OS keyring, or in ~/.ctw/credentials with
0600 permissions when no keyring is available (CI, Codespaces). They
are only consulted when the environment and config file leave the
value empty.`,
	Example: `  # Store the extraction API key (prompted)
  $ ctw auth set api-key

  # Store the database URL non-interactively
  $ ctw auth set database-url --value="postgres://ctw@localhost/ctw"

  # Show stored secrets, masked
  $ ctw auth list

  # Remove a secret
  $ ctw auth delete api-key --yes`,
}

var authSetCmd = &cobra.Command{
	Use:       "set <api-key|database-url>",
	Short:     "Store a secret",
	Args:      cobra.ExactArgs(1),
	ValidArgs: []string{"api-key", "database-url"},
	RunE:      runAuthSet,
}

var authListCmd = &cobra.Command{
	Use:   "list",
	Short: "List stored secrets",
	Args:  cobra.NoArgs,
	RunE:  runAuthList,
}

var authDeleteCmd = &cobra.Command{
	Use:   "delete <api-key|database-url>",
	Short: "Delete a stored secret",
	Args:  cobra.ExactArgs(1),
	RunE:  runAuthDelete,
}

func init() {
	rootCmd.AddCommand(authCmd)
	authCmd.AddCommand(authSetCmd)
	authCmd.AddCommand(authListCmd)
	authCmd.AddCommand(authDeleteCmd)

	authSetCmd.Flags().StringVar(&authValue, "value", "", "Secret value (prompted when omitted)")
	authDeleteCmd.Flags().BoolVarP(&authYes, "yes", "y", false, "Do not ask for confirmation")
}

func secretName(arg string) (string, error) {
	name, ok := secretNames[strings.ToLower(arg)]
	if !ok {
		return "", fmt.Errorf("unknown secret %q (want api-key or database-url)", arg)
	}
	return name, nil
}

// readLine prompts on w and reads one trimmed line from r
func readLine(r io.Reader, w io.Writer, prompt string) (string, error) {
	fmt.Fprint(w, prompt)
	scanner := bufio.NewScanner(r)
	if !scanner.Scan() {
		if err := scanner.Err(); err != nil {
			return "", err
		}
		return "", io.EOF
	}
	return strings.TrimSpace(scanner.Text()), nil
}

func runAuthSet(cmd *cobra.Command, args []string) error {
	name, err := secretName(args[0])
	if err != nil {
		return err
	}

	secret := strings.TrimSpace(authValue)
	if secret == "" {
		secret, err = readLine(cmd.InOrStdin(), cmd.ErrOrStderr(), fmt.Sprintf("Enter %s: ", args[0]))
		if err != nil {
			return fmt.Errorf("failed to read %s: %w", args[0], err)
		}
	}
	if secret == "" {
		return fmt.Errorf("%s cannot be empty", args[0])
	}

	store, err := auth.NewStore()
	if err != nil {
		return fmt.Errorf("failed to open credential store: %w", err)
	}
	if err := store.Save(name, secret); err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "%s %s saved to %s (%s)\n",
		ui.Success("✓"), args[0], store.Backend(), auth.Mask(secret))
	return nil
}

func runAuthList(cmd *cobra.Command, args []string) error {
	store, err := auth.NewStore()
	if err != nil {
		return fmt.Errorf("failed to open credential store: %w", err)
	}
	names, err := store.List()
	if err != nil {
		return fmt.Errorf("failed to list secrets: %w", err)
	}

	out := cmd.OutOrStdout()
	if len(names) == 0 {
		fmt.Fprintf(out, "No secrets stored in %s.\n", store.Backend())
		fmt.Fprintln(out, "Store one with:")
		fmt.Fprintln(out, "  ctw auth set api-key")
		return nil
	}

	fmt.Fprintf(out, "%s\n", ui.Bold(fmt.Sprintf("Stored secrets (%s)", store.Backend())))
	for _, name := range names {
		c, err := store.Get(name)
		if err != nil {
			fmt.Fprintf(out, "  • %-20s %s\n", name, ui.Error(err.Error()))
			continue
		}
		fmt.Fprintf(out, "  • %-20s %-12s %s\n", name, auth.Mask(c.Secret),
			ui.Dim(c.CreatedAt.Format(time.RFC1123)))
	}
	return nil
}

func runAuthDelete(cmd *cobra.Command, args []string) error {
	name, err := secretName(args[0])
	if err != nil {
		return err
	}

	if !authYes {
		answer, err := readLine(cmd.InOrStdin(), cmd.ErrOrStderr(), fmt.Sprintf("Delete %s? [y/N]: ", args[0]))
		if err != nil && !errors.Is(err, io.EOF) {
			return err
		}
		if answer != "y" && answer != "Y" {
			fmt.Fprintln(cmd.OutOrStdout(), "Cancelled.")
			return nil
		}
	}

	store, err := auth.NewStore()
	if err != nil {
		return fmt.Errorf("failed to open credential store: %w", err)
	}
	if err := store.Delete(name); err != nil {
		return fmt.Errorf("failed to delete %s: %w", args[0], err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s %s deleted\n", ui.Success("✓"), args[0])
	return nil
}
