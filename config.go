/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package main

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

type Config struct {
	bind             string
	confettiDuration time.Duration
	metrics          bool
	port             int
	prefix           string
	profile          bool
	revealDelay      time.Duration
	sessionTimeout   time.Duration
	tlsCert          string
	tlsKey           string
	verbose          bool
	version          bool
}

func (c *Config) validate() error {
	if (c.tlsCert == "") != (c.tlsKey == "") {
		return errors.New("both --tls-cert and --tls-key must be provided together")
	}
	if c.port < 1 || c.port > 65535 {
		return fmt.Errorf("invalid port (must be between 1-65535 inclusive): %d", c.port)
	}
	if c.revealDelay < 0 {
		return fmt.Errorf("invalid reveal delay (must not be negative): %s", c.revealDelay)
	}
	if c.confettiDuration <= 0 {
		return fmt.Errorf("invalid confetti duration (must be positive): %s", c.confettiDuration)
	}
	return nil
}

func (c *Config) scheme() string {
	if c.tlsCert != "" && c.tlsKey != "" {
		return "https"
	}
	return "http"
}

// bindEnv lets every flag in fs fall back to its WHOPAYS_* environment variable.
func bindEnv(v *viper.Viper, fs *pflag.FlagSet) {
	fs.SetNormalizeFunc(func(_ *pflag.FlagSet, name string) pflag.NormalizedName {
		return pflag.NormalizedName(strings.ReplaceAll(name, "_", "-"))
	})

	fs.VisitAll(func(f *pflag.Flag) {
		_ = v.BindPFlag(f.Name, f)
		_ = v.BindEnv(f.Name)
		if !f.Changed && v.IsSet(f.Name) {
			_ = fs.Set(f.Name, fmt.Sprintf("%v", v.Get(f.Name)))
		}
	})
}

func newViper() *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix("WHOPAYS")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	return v
}

func newCmd(cfg *Config) *cobra.Command {
	cmd := &cobra.Command{
		Use:           "whopays",
		Short:         "Let fate decide who pays the bill, one party at a time.",
		Args:          cobra.ExactArgs(0),
		SilenceErrors: true,
		Version:       releaseVersion,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := cfg.validate(); err != nil {
				return err
			}
			return ServePage(cmd.Context(), cfg, args)
		},
	}

	fs := cmd.Flags()

	fs.StringVarP(&cfg.bind, "bind", "b", "0.0.0.0", "address to bind to (env: WHOPAYS_BIND)")
	fs.DurationVar(&cfg.confettiDuration, "confetti-duration", 3*time.Second, "how long the celebration lasts after a result (env: WHOPAYS_CONFETTI_DURATION)")
	fs.BoolVar(&cfg.metrics, "metrics", false, "serve prometheus metrics on /metrics (env: WHOPAYS_METRICS)")
	fs.IntVarP(&cfg.port, "port", "p", 8080, "port to listen on (env: WHOPAYS_PORT)")
	fs.StringVar(&cfg.prefix, "prefix", "", "path to prepend to all URLs, for use behind reverse proxy (env: WHOPAYS_PREFIX)")
	fs.BoolVar(&cfg.profile, "profile", false, "register net/http/pprof handlers (env: WHOPAYS_PROFILE)")
	fs.DurationVar(&cfg.revealDelay, "reveal-delay", 2*time.Second, "dramatic pause before a result is shown (env: WHOPAYS_REVEAL_DELAY)")
	fs.DurationVar(&cfg.sessionTimeout, "session-timeout", 60*time.Minute, "time before idle parties are ended (env: WHOPAYS_SESSION_TIMEOUT)")
	fs.StringVar(&cfg.tlsCert, "tls-cert", "", "path to tls certificate (env: WHOPAYS_TLS_CERT)")
	fs.StringVar(&cfg.tlsKey, "tls-key", "", "path to tls keyfile (env: WHOPAYS_TLS_KEY)")
	fs.BoolVarP(&cfg.verbose, "verbose", "v", false, "display additional output (env: WHOPAYS_VERBOSE)")
	fs.BoolVarP(&cfg.version, "version", "V", false, "display version and exit (env: WHOPAYS_VERSION)")

	bindEnv(newViper(), fs)

	cmd.AddCommand(newRollCmd())

	cmd.CompletionOptions.HiddenDefaultCmd = true
	cmd.SetHelpCommand(&cobra.Command{Hidden: true})
	cmd.SetVersionTemplate("whopays v{{.Version}}\n")

	cmd.SilenceErrors = true
	cmd.SilenceUsage = true

	return cmd
}
