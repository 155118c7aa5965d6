package main

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/liamcoop/hedgerules/automation"
)

const envPrefix = "HEDGEBOT"

// settings is the merged process configuration.
type settings struct {
	Automation  automation.Config
	Listen      string
	DatabaseURL string
	RefDataFile string
	RefDataTTL  time.Duration
	Paper       bool
	LogLevel    string
}

func addFlags(cmd *cobra.Command) {
	defaults := automation.DefaultConfig()

	f := cmd.Flags()
	f.String("config", "", "YAML config file")
	f.String("threshold", "", "order amount trigger as a fraction of 20-day average volume (required)")
	f.String("hedge", "", "hedge instrument ticker (required)")
	f.String("hedge-ratio", defaults.HedgeRatio.String(), "hedge quantity per filled share")
	f.Int("workers", defaults.Workers, "notification workers")
	f.Int("queue-size", defaults.QueueSize, "notifications buffered per worker")
	f.Bool("drop-when-full", false, "drop notifications for a full worker queue instead of waiting")
	f.Duration("action-timeout", defaults.ActionTimeout, "maximum wait for a gateway response")
	f.Duration("evict-after", 0, "evict datasets this long after a terminal status (0 keeps them)")
	f.String("order-guard", "", "CEL expression every order rule must also satisfy")
	f.String("route-guard", "", "CEL expression every route rule must also satisfy")
	f.String("listen", ":8080", "operator HTTP listen address")
	f.String("database-url", "", "Postgres URL for the execution journal (empty keeps it in memory)")
	f.String("refdata-file", "", "YAML reference data file (required)")
	f.Duration("refdata-ttl", 0, "re-read the reference data file, caching values for this long (0 loads it once)")
	f.Bool("paper", true, "trade against the in-process paper venue")
	f.String("log-level", "", "log level (DEBUG, INFO, WARN, ERROR); defaults to LOG_LEVEL")
}

// bindConfig layers flags over HEDGEBOT_* environment variables over the
// optional config file.
func bindConfig(cmd *cobra.Command) (*viper.Viper, error) {
	v := viper.New()
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	if err := v.BindPFlags(cmd.Flags()); err != nil {
		return nil, fmt.Errorf("bind flags: %w", err)
	}

	if path := v.GetString("config"); path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}
	return v, nil
}

func loadSettings(v *viper.Viper) (settings, error) {
	var s settings

	threshold := v.GetString("threshold")
	if threshold == "" {
		return s, errors.New("threshold is required")
	}
	t, err := decimal.NewFromString(threshold)
	if err != nil {
		return s, fmt.Errorf("invalid threshold %q: %w", threshold, err)
	}
	ratio, err := decimal.NewFromString(v.GetString("hedge-ratio"))
	if err != nil {
		return s, fmt.Errorf("invalid hedge-ratio %q: %w", v.GetString("hedge-ratio"), err)
	}

	s.Automation = automation.Config{
		Threshold:     t,
		HedgeTicker:   v.GetString("hedge"),
		HedgeRatio:    ratio,
		Workers:       v.GetInt("workers"),
		QueueSize:     v.GetInt("queue-size"),
		DropWhenFull:  v.GetBool("drop-when-full"),
		ActionTimeout: v.GetDuration("action-timeout"),
		EvictAfter:    v.GetDuration("evict-after"),
		OrderGuard:    v.GetString("order-guard"),
		RouteGuard:    v.GetString("route-guard"),
	}
	if err := s.Automation.Validate(); err != nil {
		return s, err
	}

	s.Listen = v.GetString("listen")
	s.DatabaseURL = v.GetString("database-url")
	s.RefDataFile = v.GetString("refdata-file")
	s.RefDataTTL = v.GetDuration("refdata-ttl")
	s.Paper = v.GetBool("paper")
	s.LogLevel = v.GetString("log-level")

	if s.RefDataFile == "" {
		return s, errors.New("refdata-file is required")
	}
	if s.RefDataTTL < 0 {
		return s, fmt.Errorf("refdata-ttl must not be negative, got %s", s.RefDataTTL)
	}
	if !s.Paper {
		return s, errors.New("no live venue is available in this build; run with --paper")
	}
	return s, nil
}
