package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

func configureLogging(level, format string) error {
	parsed, err := log.ParseLevel(level)
	if err != nil {
		return err
	}
	log.SetLevel(parsed)

	switch format {
	case "json":
		log.SetFormatter(&log.JSONFormatter{})
	default:
		log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	}
	return nil
}

func newRootCommand() *cobra.Command {
	var (
		configFilePath string
		envFilePath    string
		dryRun         bool
		app            *App
		appConfig      AppConfig
	)

	rootCmd := &cobra.Command{
		Use:           "wssync",
		Short:         "Sync notebooks, users and clusters between workspaces",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if configFilePath == "" {
				return fmt.Errorf("Required flag --configfile not set but required")
			}

			var err error
			appConfig, err = LoadConfig(configFilePath, envFilePath)
			if err != nil {
				return err
			}
			if err := configureLogging(appConfig.LogLevel, appConfig.LogFormat); err != nil {
				return err
			}
			app, err = NewApp(appConfig)
			return err
		},
	}
	rootCmd.PersistentFlags().StringVarP(&configFilePath, "configfile", "c", "", "Configuration File Path")
	rootCmd.PersistentFlags().StringVar(&envFilePath, "envfile", ".env", "Environment file loaded before the configuration")

	syncCmd := &cobra.Command{
		Use:   "sync [job...]",
		Short: "Run sync jobs once (all jobs when none are named)",
		RunE: func(cmd *cobra.Command, args []string) error {
			return app.RunSync(cmd.Context(), args, dryRun)
		},
	}
	syncCmd.Flags().BoolVar(&dryRun, "dry-run", false, "Compare only, never write")

	deployCmd := &cobra.Command{
		Use:   "deploy [job...]",
		Short: "Provision users and deploy repository content into their workspace directories",
		RunE: func(cmd *cobra.Command, args []string) error {
			return app.RunDeploy(cmd.Context(), args)
		},
	}

	var clusterSource, clusterTarget string
	clustersCmd := &cobra.Command{
		Use:   "clusters",
		Short: "Export clusters from one workspace and recreate them in another",
		RunE: func(cmd *cobra.Command, args []string) error {
			return app.RunClusters(cmd.Context(), clusterSource, clusterTarget)
		},
	}
	clustersCmd.Flags().StringVar(&clusterSource, "from", "", "Source workspace")
	clustersCmd.Flags().StringVar(&clusterTarget, "to", "", "Target workspace (export only when empty)")
	cobra.CheckErr(clustersCmd.MarkFlagRequired("from"))

	backupCmd := &cobra.Command{
		Use:   "backup",
		Short: "Archive workspace trees into the configured bucket",
		RunE: func(cmd *cobra.Command, args []string) error {
			return app.RunBackups(cmd.Context())
		},
	}

	scheduleCmd := &cobra.Command{
		Use:   "schedule",
		Short: "Run sync jobs and backups on their configured schedule",
		RunE: func(cmd *cobra.Command, args []string) error {
			return app.Schedule(cmd.Context())
		},
	}

	configCmd := &cobra.Command{
		Use:   "config",
		Short: "Print the loaded configuration",
		Run: func(cmd *cobra.Command, args []string) {
			for _, line := range appConfig.ConfigStringArray() {
				fmt.Fprintln(cmd.OutOrStdout(), line)
			}
		},
	}

	rootCmd.AddCommand(syncCmd, deployCmd, clustersCmd, backupCmd, scheduleCmd, configCmd)
	return rootCmd
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := newRootCommand().ExecuteContext(ctx); err != nil {
		log.Error(err)
		os.Exit(1)
	}
}
