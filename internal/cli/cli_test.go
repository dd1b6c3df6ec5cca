package cli

import (
	"bytes"
	"io"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/comparethewait/ctw/internal/auth"
	"github.com/comparethewait/ctw/internal/catalog"
	"github.com/comparethewait/ctw/internal/ui"
	"github.com/comparethewait/ctw/pkg/models"
)

func TestBuildFilters(t *testing.T) {
	cat, err := catalog.Load(filepath.Join("..", "..", "configs", "catalog.json"))
	require.NoError(t, err)

	f, err := buildFilters(cat, []string{"hip"}, []string{"leeds", "london"}, []string{"private_costs"})
	require.NoError(t, err)
	assert.Equal(t, []string{"hip"}, f.Procedures)
	assert.Equal(t, []string{"leeds", "london"}, f.Cities)
	assert.Equal(t, []models.DataKind{models.KindPrivateCosts}, f.Kinds)

	_, err = buildFilters(cat, []string{"hernia"}, nil, nil)
	assert.ErrorContains(t, err, `unknown procedure "hernia"`)
	_, err = buildFilters(cat, nil, []string{"york"}, nil)
	assert.ErrorContains(t, err, `unknown city "york"`)
	_, err = buildFilters(cat, nil, nil, []string{"faq"})
	assert.ErrorContains(t, err, "unknown data kind")
}

func TestSecretName(t *testing.T) {
	name, err := secretName("API-KEY")
	require.NoError(t, err)
	assert.Equal(t, auth.APIKey, name)

	name, err = secretName("database-url")
	require.NoError(t, err)
	assert.Equal(t, auth.DatabaseURL, name)

	_, err = secretName("password")
	assert.Error(t, err)
}

func TestReadLine(t *testing.T) {
	var prompt bytes.Buffer
	got, err := readLine(strings.NewReader("  fc-123  \nignored\n"), &prompt, "Enter api-key: ")
	require.NoError(t, err)
	assert.Equal(t, "fc-123", got)
	assert.Equal(t, "Enter api-key: ", prompt.String())

	_, err = readLine(strings.NewReader(""), io.Discard, "")
	assert.ErrorIs(t, err, io.EOF)
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "short", truncate("short", 10))
	assert.Equal(t, "line one line two", truncate("line one\nline two", 40))
	assert.Equal(t, "abcdefg...", truncate("abcdefghijklmnop", 10))
}

func helpCommand() *cobra.Command {
	root := &cobra.Command{Use: "ctw", Short: "Compare The Wait data pipeline"}
	root.PersistentFlags().String("log-level", "info", "Log level")
	scrape := &cobra.Command{
		Use:     "scrape",
		Short:   "Scrape every target",
		Long:    "Runs the fallback chain for every selected target.",
		Example: "  # Private costs only\n  $ ctw scrape -k private_costs\n\n  $ ctw scrape --dry-run",
		Run:     func(*cobra.Command, []string) {},
	}
	scrape.Flags().StringSliceP("kind", "k", nil, "Data kinds to scrape")
	scrape.Flags().Bool("dry-run", false, "Do not write CSV files")
	scrape.Flags().String("legacy", "", "Old flag")
	_ = scrape.Flags().MarkHidden("legacy")
	root.AddCommand(scrape)
	return root
}

func TestWriteHelp(t *testing.T) {
	prev := ui.SetEnabled(false)
	t.Cleanup(func() { ui.SetEnabled(prev) })

	root := helpCommand()
	scrape, _, err := root.Find([]string{"scrape"})
	require.NoError(t, err)

	tests := []struct {
		name    string
		cmd     *cobra.Command
		full    bool
		want    []string
		notWant []string
	}{
		{
			name: "subcommand help",
			cmd:  scrape,
			full: true,
			want: []string{
				"ctw scrape  Scrape every target",
				"Runs the fallback chain for every selected target.",
				"  ctw scrape [flags]",
				"  # Private costs only\n  $ ctw scrape -k private_costs\n\n  $ ctw scrape --dry-run\n",
				"  -k, --kind strings        Data kinds to scrape\n",
				"      --dry-run             Do not write CSV files\n",
				"Global Flags",
				`Log level (default "info")`,
				`Run "ctw scrape --help" for more information.`,
			},
			notWant: []string{"legacy"},
		},
		{
			name:    "usage after bad invocation",
			cmd:     scrape,
			want:    []string{"Usage", "--kind", "--dry-run"},
			notWant: []string{"Examples", "Global Flags", "Runs the fallback chain"},
		},
		{
			name: "root lists commands",
			cmd:  root,
			full: true,
			want: []string{
				"  ctw <command> [flags]",
				"Commands\n  scrape  Scrape every target\n",
				`Run "ctw <command> --help" for more information.`,
			},
			notWant: []string{"  help "},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var out bytes.Buffer
			writeHelp(&out, tt.cmd, tt.full)
			for _, s := range tt.want {
				assert.Contains(t, out.String(), s)
			}
			for _, s := range tt.notWant {
				assert.NotContains(t, out.String(), s)
			}
		})
	}
}
