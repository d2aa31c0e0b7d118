package main

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"sensorcode-go/services/config"
)

// rootOptions holds the settings shared by every subcommand. Flags are bound
// through viper so SENSORD_* environment variables override defaults.
type rootOptions struct {
	v   *viper.Viper
	log *slog.Logger
}

func newRootCommand() *cobra.Command {
	opts := &rootOptions{v: viper.New()}

	cmd := &cobra.Command{
		Use:           "sensord",
		Short:         "Sensor manager daemon",
		Long:          "Polls configured sensors, evaluates thresholds and publishes readings and events.",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			var level slog.Level
			if err := level.UnmarshalText([]byte(opts.v.GetString("log-level"))); err != nil {
				return fmt.Errorf("invalid log level %q", opts.v.GetString("log-level"))
			}
			opts.log = slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: level}))
			return nil
		},
	}

	pf := cmd.PersistentFlags()
	pf.String("config", "", "path to a YAML config file (overrides --profile)")
	pf.String("profile", "sim", "embedded config profile")
	pf.String("log-level", "info", "log level (debug|info|warn|error)")

	opts.v.SetEnvPrefix("SENSORD")
	opts.v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	opts.v.AutomaticEnv()
	_ = opts.v.BindPFlags(pf)

	cmd.AddCommand(newRunCommand(opts))
	cmd.AddCommand(newListCommand(opts))
	return cmd
}

// loadConfig reads --config when set, else the named embedded profile.
func (o *rootOptions) loadConfig() (*config.Config, error) {
	if path := o.v.GetString("config"); path != "" {
		return config.Load(path)
	}
	return config.Embedded(o.v.GetString("profile"))
}
