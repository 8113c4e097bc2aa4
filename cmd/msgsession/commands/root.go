package commands

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/spachava753/msgsession/config"
	"github.com/spachava753/msgsession/runner"
)

// EnvAPIKey supplies --key when the flag is not given.
const EnvAPIKey = "MSGSESSION_API_KEY"

var (
	configPath string
	home       string
	logLevel   string
	apiKey     string
	sessionID  string
	timeoutMS  int
	appCtx     *app
)

func Execute() error {
	root := &cobra.Command{
		Use:          "msgsession",
		Short:        "Manage messaging sessions and send messages through them",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if home != "" {
				if err := os.Setenv(config.EnvHome, home); err != nil {
					return err
				}
			}
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			if logLevel != "" {
				cfg.Log.Level = logLevel
			}
			appCtx, err = newApp(cfg, cmd.OutOrStdout())
			return err
		},
	}

	root.PersistentFlags().StringVar(&configPath, "config", "", "TOML config file")
	root.PersistentFlags().StringVar(&home, "home", "", "state dir (default ~/.msgsession)")
	root.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level (trace, debug, info, warn, error, off)")
	root.PersistentFlags().StringVarP(&apiKey, "key", "k", "", "API key, must match the master key (default $"+EnvAPIKey+")")
	root.PersistentFlags().StringVarP(&sessionID, "session", "s", "", "session id (default from config)")
	root.PersistentFlags().IntVar(&timeoutMS, "timeout", 0, "connection wait timeout in milliseconds (default from config)")

	root.AddCommand(connectCmd(), sendCmd(), sendBulkCmd(), runCmd(), artifactCmd())
	err := root.Execute()
	if appCtx != nil {
		if cerr := appCtx.close(); cerr != nil {
			appCtx.logger.Warn().Err(cerr).Msg("shutdown failed")
		}
	}
	return err
}

// baseInput builds the fields every action shares from the persistent flags.
func baseInput(action runner.Action) runner.Input {
	key := apiKey
	if key == "" {
		key = os.Getenv(EnvAPIKey)
	}
	in := runner.Input{APIKey: key, SessionID: sessionID, Action: action}
	if timeoutMS > 0 {
		in.WaitForConnectionTimeout = &timeoutMS
	}
	return in
}
