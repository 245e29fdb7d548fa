package main

import (
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/faiface/nois"
	"github.com/faiface/nois/metrics"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// settings are the resolved flag, environment and config file values.
type settings struct {
	Volume      int           `mapstructure:"volume"`
	SampleRate  int           `mapstructure:"sample-rate"`
	Latency     time.Duration `mapstructure:"latency"`
	Seed        int64         `mapstructure:"seed"`
	MetricsAddr string        `mapstructure:"metrics-addr"`
	LogLevel    string        `mapstructure:"log-level"`
	LogFile     string        `mapstructure:"log-file"`
	Inhibit     bool          `mapstructure:"inhibit"`
	Output      string        `mapstructure:"output"`
	Duration    time.Duration `mapstructure:"duration"`
}

func setupFlags(flags *pflag.FlagSet) {
	flags.String("config", "", "config file (default is ./nois.yaml or ~/.config/nois/nois.yaml)")
	flags.Int("volume", 50, "initial volume in percent (0-100)")
	flags.Int("sample-rate", int(nois.DefaultFormat.SampleRate), "output sample rate in Hz")
	flags.Duration("latency", 20*time.Millisecond, "duration of one output buffer")
	flags.Int64("seed", 0, "noise seed, 0 seeds from the clock")
	flags.String("metrics-addr", "", "serve Prometheus metrics on this address")
	flags.String("log-level", "info", "log level (debug, info, warn, error)")
	flags.String("log-file", "", "write logs to this file")
	flags.Bool("inhibit", false, "keep the system awake through systemd-inhibit while playing")
}

func bindViper(v *viper.Viper, flags *pflag.FlagSet) error {
	if err := v.BindPFlags(flags); err != nil {
		return errors.Wrap(err, "bind flags")
	}
	v.SetEnvPrefix("NOIS")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
	return nil
}

func readConfig(v *viper.Viper) error {
	if path := v.GetString("config"); path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("nois")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(home + "/.config/nois")
		}
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) {
			return nil
		}
		return errors.Wrap(err, "read config")
	}
	return nil
}

func loadSettings(v *viper.Viper) (settings, error) {
	var s settings
	if err := v.Unmarshal(&s); err != nil {
		return s, errors.Wrap(err, "decode settings")
	}
	if s.Volume < 0 || s.Volume > 100 {
		return s, errors.Errorf("volume must be between 0 and 100, got %d", s.Volume)
	}
	return s, nil
}

func (s settings) format() nois.Format {
	f := nois.DefaultFormat
	f.SampleRate = nois.SampleRate(s.SampleRate)
	return f
}

// volume converts the percentage to the engine's [0, 1] range.
func volume(percent int) float64 {
	return float64(percent) / 100
}

// newLogger builds the logger. quiet discards output unless a log file is set, for commands
// that own the terminal.
func (s settings) newLogger(quiet bool) (*logrus.Logger, io.Closer, error) {
	log := logrus.New()
	level, err := logrus.ParseLevel(s.LogLevel)
	if err != nil {
		return nil, nil, errors.Wrap(err, "log level")
	}
	log.SetLevel(level)

	switch {
	case s.LogFile != "":
		f, err := os.OpenFile(s.LogFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, nil, errors.Wrap(err, "open log file")
		}
		log.SetOutput(f)
		return log, f, nil
	case quiet:
		log.SetOutput(io.Discard)
	default:
		log.SetOutput(os.Stderr)
	}
	return log, io.NopCloser(nil), nil
}

// serveMetrics registers the engine collectors and serves them when an address is set. The
// returned function stops the server.
func (s settings) serveMetrics(log logrus.FieldLogger) (*metrics.Metrics, func(), error) {
	if s.MetricsAddr == "" {
		m, err := metrics.New(nil)
		return m, func() {}, err
	}

	reg := prometheus.NewRegistry()
	m, err := metrics.New(reg)
	if err != nil {
		return nil, nil, err
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	srv := &http.Server{
		Addr:              s.MetricsAddr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.WithError(err).Error("metrics server failed")
		}
	}()
	log.WithField("addr", s.MetricsAddr).Info("serving metrics")
	return m, func() { _ = srv.Close() }, nil
}
