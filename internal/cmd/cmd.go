// Package cmd implements the nest-collector command line interface.
package cmd

import (
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/clambin/go-common/charmer"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rahmanoff/Alfred-Nest-Data-Collector-Service/internal/app"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	configFilename string
	RootCmd        = cobra.Command{
		Use:   "nest-collector",
		Short: "Collects Nest thermostat data and drives the heating schedule",
		RunE:  run,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			charmer.SetJSONLogger(cmd, viper.GetBool("debug"))
		},
	}
)

func init() {
	cobra.OnInitialize(initConfig)
	RootCmd.PersistentFlags().StringVar(&configFilename, "config", "", "Configuration file")
	RootCmd.PersistentFlags().Bool("debug", false, "Log debug messages")
	_ = viper.BindPFlag("debug", RootCmd.PersistentFlags().Lookup("debug"))
}

var args = charmer.Arguments{
	"debug":                  charmer.Argument{Default: false, Help: "Log debug messages"},
	"poller.interval":        charmer.Argument{Default: 15 * time.Minute, Help: "Thermostat poll interval"},
	"exporter.addr":          charmer.Argument{Default: ":9090", Help: "Address of the Prometheus exporter"},
	"health.addr":            charmer.Argument{Default: ":8080", Help: "Address of the /health endpoint"},
	"server.addr":            charmer.Argument{Default: ":8081", Help: "Address of the REST API"},
	"database.uri":           charmer.Argument{Default: "mongodb://localhost:27017", Help: "MongoDB connection URI"},
	"database.database":      charmer.Argument{Default: "nest", Help: "MongoDB database name"},
	"database.seedFile":      charmer.Argument{Default: "", Help: "Schedule seed file (yaml)"},
	"nest.projectID":         charmer.Argument{Default: "", Help: "SDM project ID"},
	"nest.clientID":          charmer.Argument{Default: "", Help: "SDM OAuth2 client ID"},
	"nest.clientSecret":      charmer.Argument{Default: "", Help: "SDM OAuth2 client secret"},
	"nest.refreshToken":      charmer.Argument{Default: "", Help: "SDM OAuth2 refresh token"},
	"nest.timeout":           charmer.Argument{Default: 10 * time.Second, Help: "SDM API request timeout"},
	"oracle.weatherURL":      charmer.Argument{Default: "", Help: "URL of the weather service"},
	"oracle.presenceURL":     charmer.Argument{Default: "", Help: "URL of the presence service"},
	"oracle.calendarURL":     charmer.Argument{Default: "", Help: "URL of the calendar service"},
	"oracle.sensorsURL":      charmer.Argument{Default: "", Help: "URL of the house sensor service"},
	"oracle.timeout":         charmer.Argument{Default: 10 * time.Second, Help: "Companion service request timeout"},
	"notifier.slack.token":   charmer.Argument{Default: "", Help: "Slack token"},
	"notifier.slack.channel": charmer.Argument{Default: "", Help: "Slack channel for heating notifications"},
}

func initConfig() {
	if configFilename != "" {
		viper.SetConfigFile(configFilename)
	} else {
		viper.AddConfigPath("/etc/nest-collector/")
		viper.AddConfigPath("$HOME/.nest-collector")
		viper.AddConfigPath(".")
		viper.SetConfigName("config")
	}

	if err := charmer.SetDefaults(viper.GetViper(), args); err != nil {
		panic("failed to set viper defaults: " + err.Error())
	}

	viper.SetEnvPrefix("NEST_COLLECTOR")
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		slog.Error("failed to read config file", "err", err)
		os.Exit(1)
	}
}

func run(cmd *cobra.Command, _ []string) error {
	logger := slog.Default()
	logger.Info("starting", "version", cmd.Root().Version)

	ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	m, err := app.New(ctx, viper.GetViper(), prometheus.DefaultRegisterer, logger)
	if err != nil {
		return err
	}
	return m.Run(ctx)
}
