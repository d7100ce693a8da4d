package cmd

import (
	"github.com/spf13/cobra"

	"github.com/abhisek/deeplearn/internal/config"
)

var rootCmd = &cobra.Command{
	Use:   "deeplearn",
	Short: "Machine learning education backend",
	Long: "DeepLearn serves the learning catalog, grades project submissions with an LLM, " +
		"and keeps each learner's progress profile.",
	SilenceUsage: true,
}

func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().String("db", "", "Path to SQLite database file (overrides DEEPLEARN_STORE_PATH)")
	rootCmd.PersistentFlags().String("config", "", "Path to a YAML config file")
	rootCmd.PersistentFlags().Bool("memory", false, "Use an in-memory store (data is lost on exit)")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(catalogCmd)
	rootCmd.AddCommand(profileCmd)
	rootCmd.AddCommand(submitCmd)
	rootCmd.AddCommand(completeCourseCmd)
	rootCmd.AddCommand(quizCmd)
	rootCmd.AddCommand(askCmd)
	rootCmd.AddCommand(llmCmd)
	rootCmd.AddCommand(tokenCmd)
	rootCmd.AddCommand(versionCmd)
}

// loadConfig reads configuration and applies the persistent flag
// overrides: --db wins over config and env, --memory over both.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	file, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(file)
	if err != nil {
		return nil, err
	}
	if p, _ := cmd.Flags().GetString("db"); p != "" {
		cfg.Store.Driver = "sqlite"
		cfg.Store.Path = p
	}
	if mem, _ := cmd.Flags().GetBool("memory"); mem {
		cfg.Store.Driver = "memory"
	}
	return cfg, nil
}
