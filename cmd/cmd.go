// Package cmd implements the nncert command line interface.
package cmd

import (
	"fmt"
	"log"

	"github.com/spf13/cobra"

	"github.com/nncert/nncert/envconfig"
	"github.com/nncert/nncert/version"

	// registered drivers
	_ "github.com/nncert/nncert/softdriver"
)

func appendEnvDocs(cmd *cobra.Command, envs []envconfig.EnvVar) {
	if len(envs) == 0 {
		return
	}

	envUsage := `
Environment Variables:
`
	for _, e := range envs {
		envUsage += fmt.Sprintf("      %-24s   %s\n", e.Name, e.Description)
	}

	cmd.SetUsageTemplate(cmd.UsageTemplate() + envUsage)
}

func versionHandler(cmd *cobra.Command, _ []string) {
	fmt.Printf("nncert version %s\n", version.Version)
}

func NewCLI() *cobra.Command {
	log.SetFlags(log.LstdFlags | log.Lshortfile)
	cobra.EnableCommandSorting = false

	rootCmd := &cobra.Command{
		Use:           "nncert",
		Short:         "Neural network driver conformance suite",
		SilenceUsage:  true,
		SilenceErrors: true,
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd: true,
		},
		Run: func(cmd *cobra.Command, args []string) {
			if version, _ := cmd.Flags().GetBool("version"); version {
				versionHandler(cmd, args)
				return
			}

			cmd.Print(cmd.UsageString())
		},
	}

	rootCmd.Flags().BoolP("version", "v", false, "Show version information")

	runCmd := &cobra.Command{
		Use:   "run",
		Short: "Run the conformance suite against a driver",
		Args:  cobra.ExactArgs(0),
		RunE:  RunHandler,
	}
	runCmd.Flags().String("device", "", "Driver to test: a registered name or a server URL")
	runCmd.Flags().String("kind", "all", "Suite kinds to run, comma separated: general, dynamic_shape, quantization_coupling or all")
	runCmd.Flags().String("filter", "", "Only run corpus models whose name contains this substring")
	runCmd.Flags().String("db", "", "Path to the results database")

	devicesCmd := &cobra.Command{
		Use:   "devices",
		Short: "List registered drivers",
		Args:  cobra.ExactArgs(0),
		RunE:  DevicesHandler,
	}

	modelsCmd := &cobra.Command{
		Use:     "models",
		Aliases: []string{"ls"},
		Short:   "List corpus models",
		Args:    cobra.ExactArgs(0),
		RunE:    ModelsHandler,
	}
	modelsCmd.Flags().String("filter", "", "Only list corpus models whose name contains this substring")

	serveCmd := &cobra.Command{
		Use:     "serve",
		Aliases: []string{"start"},
		Short:   "Start the conformance server",
		Args:    cobra.ExactArgs(0),
		RunE:    ServeHandler,
	}
	serveCmd.Flags().String("device", "", "Driver the server exposes")
	serveCmd.Flags().String("host", "", "Address to bind, host:port")

	reportCmd := &cobra.Command{
		Use:   "report [RUN]",
		Short: "Show recorded runs, or one run's results",
		Args:  cobra.MaximumNArgs(1),
		RunE:  ReportHandler,
	}
	reportCmd.Flags().String("db", "", "Path to the results database")

	versionCmd := &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Args:  cobra.ExactArgs(0),
		Run:   versionHandler,
	}

	envVars := envconfig.AsMap()
	for _, cmd := range []*cobra.Command{runCmd, serveCmd, reportCmd} {
		switch cmd {
		case runCmd:
			appendEnvDocs(cmd, []envconfig.EnvVar{
				envVars["NNCERT_DEVICE"],
				envVars["NNCERT_DB"],
				envVars["NNCERT_EXEC_TIMEOUT"],
				envVars["NNCERT_SOFT_LATENCY"],
			})
		case serveCmd:
			appendEnvDocs(cmd, []envconfig.EnvVar{
				envVars["NNCERT_DEBUG"],
				envVars["NNCERT_HOST"],
				envVars["NNCERT_ORIGINS"],
				envVars["NNCERT_DEVICE"],
				envVars["NNCERT_SOFT_LATENCY"],
				envVars["NNCERT_SLOTS"],
			})
		case reportCmd:
			appendEnvDocs(cmd, []envconfig.EnvVar{envVars["NNCERT_DB"]})
		}
	}

	rootCmd.AddCommand(
		runCmd,
		devicesCmd,
		modelsCmd,
		serveCmd,
		reportCmd,
		versionCmd,
	)

	return rootCmd
}
