package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/kbukum/httpbridge/version"
)

// globalFlags are shared by every subcommand.
type globalFlags struct {
	configFile string
	envFile    string
	logLevel   string
	verbose    bool
}

// NewRootCommand builds the bridgefetch command tree.
func NewRootCommand() *cobra.Command {
	g := &globalFlags{}
	root := &cobra.Command{
		Use:   "bridgefetch",
		Short: "Send a single HTTP request through an httpbridge transport",
		Long: `bridgefetch dispatches one request through the httpbridge transport and
streams the response body to stdout. Redirects are never followed.

Examples:
  bridgefetch get https://example.com
  bridgefetch get -i -H 'Accept: application/json' https://api.example.com/items
  bridgefetch get -X POST -d @payload.json https://api.example.com/items
  bridgefetch get --http2 --proxy http://proxy:3128 https://example.com`,
		Version:       version.Get().String(),
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.CompletionOptions.DisableDefaultCmd = true

	pf := root.PersistentFlags()
	pf.StringVarP(&g.configFile, "config", "c", "", "YAML config file")
	pf.StringVar(&g.envFile, "env-file", "", ".env file to load")
	pf.StringVar(&g.logLevel, "log-level", "", "log level (debug, info, warn, error)")
	pf.BoolVarP(&g.verbose, "verbose", "v", false, "describe the transport on stderr")

	root.AddCommand(newGetCommand(g))
	return root
}

// Execute runs the root command and exits non-zero on failure.
func Execute() {
	if err := NewRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "bridgefetch:", err)
		os.Exit(1)
	}
}
