package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/banshee-data/branchpoints/internal/db"
	"github.com/banshee-data/branchpoints/internal/monitoring"
	"github.com/banshee-data/branchpoints/internal/version"
)

const defaultDBPath = "branchpoints.db"

func newRootCmd() *cobra.Command {
	v := viper.New()
	v.SetEnvPrefix("BRANCHPOINTS")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	root := &cobra.Command{
		Use:           "branchpoints",
		Short:         "Diffusion branch-point analysis",
		Long:          "branchpoints turns class similarity curves into the times at which classes split, and keeps the resulting branch trees.",
		SilenceUsage:  true,
		SilenceErrors: true,
		Version:       version.Version,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			monitoring.SetVerbose(v.GetBool("verbose"))
		},
	}
	root.SetVersionTemplate(version.String() + "\n")

	root.PersistentFlags().BoolP("verbose", "v", false, "log every crossover and merge")
	root.PersistentFlags().String("db", "", "run database path (default "+defaultDBPath+", or BRANCHPOINTS_DB)")
	_ = v.BindPFlag("verbose", root.PersistentFlags().Lookup("verbose"))
	_ = v.BindPFlag("db", root.PersistentFlags().Lookup("db"))

	root.AddCommand(
		newAnalyzeCmd(v),
		newRunsCmd(v),
		newServeCmd(v),
		newMigrateCmd(v),
		newVersionCmd(),
	)
	return root
}

// dbPath returns the resolved database path from flags, env, or default.
func dbPath(v *viper.Viper) string {
	if p := v.GetString("db"); p != "" {
		return p
	}
	return defaultDBPath
}

// openStore opens and migrates the run database.
func openStore(v *viper.Viper) (*db.DB, *db.RunStore, error) {
	dbInst, err := db.NewDB(dbPath(v))
	if err != nil {
		return nil, nil, err
	}
	return dbInst, db.NewRunStore(dbInst, nil), nil
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print build information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintln(cmd.OutOrStdout(), version.String())
		},
	}
}
