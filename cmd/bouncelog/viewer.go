package main

import (
	"context"
	"fmt"
	"io"

	"github.com/OCAP2/bouncelog/internal/api"
	"github.com/OCAP2/bouncelog/internal/config"
	"github.com/OCAP2/bouncelog/internal/sim"
	"github.com/OCAP2/bouncelog/internal/viewer"
	"github.com/go-gl/mathgl/mgl64"
	"github.com/rs/zerolog"
)

// runViewer runs one interactive client session: the simulation ticks in the
// background while commands are read from in.
func runViewer(ctx context.Context, in io.Reader, out, errOut io.Writer) error {
	logger := zerolog.New(zerolog.ConsoleWriter{Out: errOut}).With().Timestamp().Logger().
		Level(zerologLevel(config.GetString("logLevel")))

	simCfg, err := config.GetSimConfig()
	if err != nil {
		return err
	}
	room := sim.Room{HalfSize: simCfg.RoomSize / 2, BallRadius: simCfg.BallRadius}
	state := sim.NewState(mgl64.Vec3(simCfg.Velocity))

	viewerCfg := config.GetViewerConfig()
	client := api.New(viewerCfg.ServerURL)
	if err := client.Healthcheck(ctx); err != nil {
		logger.Warn().Err(err).Str("server", viewerCfg.ServerURL).Msg("Server healthcheck failed")
	}

	p, err := viewer.NewProjector(viewer.Dependencies{
		Client:  client,
		Room:    &room,
		Initial: &state,
		Logger:  logger,
	})
	if err != nil {
		return err
	}

	wsURL, err := viewer.WebSocketURL(viewerCfg.ServerURL)
	if err != nil {
		return err
	}
	// The first fetch is synchronous so the initial view is complete; after
	// that every (re)connect and notification refreshes in the background.
	if err := p.Refresh(ctx); err != nil {
		logger.Warn().Err(err).Msg("Initial fetch failed")
	}
	followCtx, stopFollow := context.WithCancel(ctx)
	followDone := make(chan struct{})
	go func() {
		defer close(followDone)
		p.Follow(followCtx, wsURL)
	}()
	defer func() {
		stopFollow()
		<-followDone
	}()

	clock := sim.NewClock(p.Machine(), simCfg.FrameRate)
	clockCtx, stopClock := context.WithCancel(ctx)
	defer stopClock()
	go clock.Run(clockCtx)

	fmt.Fprintf(out, "connected to %s, type help for commands\n", viewerCfg.ServerURL)
	if err := p.Render(out); err != nil {
		return err
	}
	if err := p.RunConsole(ctx, in, out); err != nil && ctx.Err() == nil {
		return err
	}
	return nil
}
