package main

import (
	"fmt"
	"os"

	"github.com/liliang-cn/roundtable/internal/config"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// v collects flag bindings before the config file and environment are read
var v = viper.New()

var rootCmd = &cobra.Command{
	Use:   "roundtable",
	Short: "Multi-expert roundtable discussions over load-balanced LLM sites",
	Long: `Roundtable runs a panel of AI experts that take turns discussing a
question, round after round, until they reach consensus. Requests are spread
across a pool of OpenAI-compatible sites with health tracking and failover.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringP("config", "c", "", "config file (default is ./config.yaml)")
	_ = v.BindPFlag("config", rootCmd.PersistentFlags().Lookup("config"))
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.LoadWith(v, v.GetString("config"))
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return cfg, nil
}

// newLogger builds a development logger for debug level and a production
// logger otherwise
func newLogger(level string) (*zap.Logger, error) {
	if level == "debug" {
		return zap.NewDevelopment()
	}
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", level, err)
	}
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(lvl)
	return cfg.Build()
}
