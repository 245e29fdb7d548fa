package main

import (
	"context"
	"fmt"
	"unicode"

	"github.com/faiface/nois"
	"github.com/faiface/nois/engine"
	"github.com/faiface/nois/generators"
	"github.com/faiface/nois/service"
	"github.com/faiface/nois/sink"
	"github.com/gdamore/tcell"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

const volumeStep = 5

func playCommand(v *viper.Viper) *cobra.Command {
	return &cobra.Command{
		Use:   "play",
		Short: "Play noise with a terminal control surface",
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := loadSettings(v)
			if err != nil {
				return err
			}
			return runPlay(cmd.Context(), s)
		},
	}
}

func drawTextLine(screen tcell.Screen, x, y int, s string, style tcell.Style) {
	for _, r := range s {
		screen.SetContent(x, y, r, nil, style)
		x++
	}
}

// controlPanel is the control surface: a toggle, a volume slider and a stop action standing
// in for the notification's.
type controlPanel struct {
	ctx    context.Context
	svc    *service.Service // nil when noise generation is unavailable
	eng    *engine.Engine
	volume int // percent

	unavailable error
	lastErr     error
}

func (cp *controlPanel) playing() bool {
	return cp.eng != nil && cp.eng.Playing()
}

func (cp *controlPanel) draw(screen tcell.Screen) {
	mainStyle := tcell.StyleDefault.
		Background(tcell.NewHexColor(0x2B2D42)).
		Foreground(tcell.NewHexColor(0xEDF2F4))
	statusStyle := mainStyle.
		Foreground(tcell.NewHexColor(0xF4D35E)).
		Bold(true)
	errorStyle := mainStyle.
		Foreground(tcell.NewHexColor(0xEF233C))

	screen.Fill(' ', mainStyle)

	drawTextLine(screen, 0, 0, "Welcome to nois!", mainStyle)
	drawTextLine(screen, 0, 1, "Press [ESC] to quit.", mainStyle)
	drawTextLine(screen, 0, 2, "Press [SPACE] to toggle noise.", mainStyle)
	drawTextLine(screen, 0, 3, "Use [LEFT]/[RIGHT] or [-]/[+] to change the volume.", mainStyle)

	noiseStatus := "OFF"
	switch {
	case cp.unavailable != nil:
		noiseStatus = "unavailable"
	case cp.playing():
		noiseStatus = "ON"
	}
	drawTextLine(screen, 0, 5, "Noise:", mainStyle)
	drawTextLine(screen, 16, 5, noiseStatus, statusStyle)

	drawTextLine(screen, 0, 6, "Volume:", mainStyle)
	drawTextLine(screen, 16, 6, fmt.Sprintf("%d%%", cp.volume), statusStyle)

	if cp.playing() {
		ids := cp.svc.Identifiers()
		drawTextLine(screen, 0, 8, fmt.Sprintf("[%s] %s  (press [S] to stop)", ids.Title, ids.Text), statusStyle)
	}

	switch {
	case cp.unavailable != nil:
		drawTextLine(screen, 0, 10, cp.unavailable.Error(), errorStyle)
	case cp.lastErr != nil:
		drawTextLine(screen, 0, 10, cp.lastErr.Error(), errorStyle)
	}
}

func (cp *controlPanel) setVolume(percent int) {
	if percent < 0 {
		percent = 0
	}
	if percent > 100 {
		percent = 100
	}
	cp.volume = percent
	if cp.svc != nil {
		cp.report(cp.svc.SetVolume(volume(percent)))
	}
}

func (cp *controlPanel) report(err error) {
	if err != nil {
		cp.lastErr = err
	}
}

func (cp *controlPanel) handle(event tcell.Event) (quit bool) {
	switch event := event.(type) {
	case *tcell.EventInterrupt:
		if st, ok := event.Data().(engine.Status); ok && st.Err != nil {
			cp.lastErr = st.Err
		}
		return false

	case *tcell.EventKey:
		switch event.Key() {
		case tcell.KeyESC, tcell.KeyCtrlC:
			return true
		case tcell.KeyLeft:
			cp.setVolume(cp.volume - volumeStep)
			return false
		case tcell.KeyRight:
			cp.setVolume(cp.volume + volumeStep)
			return false
		case tcell.KeyRune:
		default:
			return false
		}

		// the toggle is disabled without a device
		if cp.svc == nil {
			return unicode.ToLower(event.Rune()) == 'q'
		}

		switch unicode.ToLower(event.Rune()) {
		case 'q':
			return true
		case ' ':
			cp.lastErr = nil
			if cp.playing() {
				cp.report(cp.svc.Stop())
			} else {
				cp.report(cp.svc.Start(volume(cp.volume)))
			}
		case '-':
			cp.setVolume(cp.volume - volumeStep)
		case '+', '=':
			cp.setVolume(cp.volume + volumeStep)
		case 's':
			select {
			case cp.svc.Requests() <- cp.svc.Identifiers().StopRequest():
			case <-cp.ctx.Done():
			}
		}
	}
	return false
}

func runPlay(ctx context.Context, s settings) error {
	log, logCloser, err := s.newLogger(true)
	if err != nil {
		return err
	}
	defer logCloser.Close()

	m, stopMetrics, err := s.serveMetrics(log)
	if err != nil {
		return err
	}
	defer stopMetrics()

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	panel := &controlPanel{ctx: runCtx, volume: s.Volume}

	eng, err := engine.New(sink.NewDriver(s.Latency, log), engine.Config{
		Format:  s.format(),
		Source:  generators.NewSource(s.Seed),
		Logger:  log,
		Metrics: m,
	})
	switch {
	case errors.Is(err, nois.ErrDeviceUnavailable):
		log.WithError(err).Error("noise generation unavailable")
		panel.unavailable = err
	case err != nil:
		return err
	default:
		panel.eng = eng
		panel.svc = service.New(eng, wakeLock(s), &service.LogIndicator{Log: log}, service.DefaultIdentifiers(), log)
		defer func() {
			if err := panel.svc.Close(); err != nil {
				log.WithError(err).Error("shutdown failed")
			}
		}()
	}

	screen, err := tcell.NewScreen()
	if err != nil {
		return errors.Wrap(err, "terminal")
	}
	if err := screen.Init(); err != nil {
		return errors.Wrap(err, "terminal")
	}
	defer screen.Fini()

	if panel.svc != nil {
		cancelObserve := eng.Observe(func(st engine.Status) {
			_ = screen.PostEvent(tcell.NewEventInterrupt(st))
		})
		defer cancelObserve()

		done := make(chan struct{})
		go func() {
			defer close(done)
			_ = panel.svc.Run(runCtx)
		}()
		defer func() { <-done }()
		defer cancel()
	}

	go func() {
		<-runCtx.Done()
		_ = screen.PostEvent(tcell.NewEventKey(tcell.KeyESC, 0, tcell.ModNone))
	}()

	for {
		panel.draw(screen)
		screen.Show()

		event := screen.PollEvent()
		if _, ok := event.(*tcell.EventResize); ok {
			screen.Sync()
		}
		if panel.handle(event) {
			return nil
		}
	}
}

func wakeLock(s settings) service.WakeLock {
	if s.Inhibit {
		return service.NewInhibitor("nois", "background noise is playing")
	}
	return &service.NopWakeLock{}
}
