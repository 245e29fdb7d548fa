package main

import (
	"context"
	"time"

	"github.com/faiface/nois/engine"
	"github.com/faiface/nois/generators"
	"github.com/faiface/nois/wav"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

func renderCommand(v *viper.Viper) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "render",
		Short: "Render noise to a WAVE file",
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := loadSettings(v)
			if err != nil {
				return err
			}
			return runRender(cmd.Context(), s)
		},
	}
	cmd.Flags().StringP("output", "o", "noise.wav", "output file")
	cmd.Flags().Duration("duration", 10*time.Second, "length of the recording")
	return cmd
}

func runRender(ctx context.Context, s settings) error {
	log, logCloser, err := s.newLogger(false)
	if err != nil {
		return err
	}
	defer logCloser.Close()

	if s.Duration <= 0 {
		return errors.Errorf("duration must be positive, got %v", s.Duration)
	}

	m, stopMetrics, err := s.serveMetrics(log)
	if err != nil {
		return err
	}
	defer stopMetrics()

	driver := &wav.Driver{Path: s.Output, Duration: s.Duration}
	eng, err := engine.New(driver, engine.Config{
		Format:  s.format(),
		Source:  generators.NewSource(s.Seed),
		Logger:  log,
		Metrics: m,
	})
	if err != nil {
		return err
	}

	failed := make(chan error, 1)
	eng.Observe(func(st engine.Status) {
		if st.Err != nil {
			select {
			case failed <- st.Err:
			default:
			}
		}
	})

	if err := eng.Start(volume(s.Volume)); err != nil {
		_ = eng.Shutdown()
		return err
	}

	select {
	case <-driver.Sink().Done():
	case err = <-failed:
	case <-ctx.Done():
		err = ctx.Err()
	}

	if shutdownErr := eng.Shutdown(); err == nil {
		err = shutdownErr
	}
	if err != nil {
		return err
	}

	log.WithFields(logrus.Fields{
		"output":  s.Output,
		"samples": driver.Sink().Written(),
	}).Info("noise rendered")
	return nil
}
