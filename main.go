package main

import (
	"context"

	"github.com/AlexxIT/go2cam/internal/api"
	"github.com/AlexxIT/go2cam/internal/api/ws"
	"github.com/AlexxIT/go2cam/internal/app"
	"github.com/AlexxIT/go2cam/internal/camera"
	"github.com/AlexxIT/go2cam/internal/debug"
	"github.com/AlexxIT/go2cam/pkg/shell"
	"github.com/coreos/go-systemd/v22/daemon"
)

func main() {
	app.Init() // init config and logs

	api.Init() // init HTTP API server
	ws.Init()  // init WS API endpoint

	camera.Init() // open capture device from config
	debug.Init()

	log := app.GetLogger("app")

	if ok, err := daemon.SdNotify(false, daemon.SdNotifyReady); err != nil {
		log.Warn().Err(err).Msg("[app] sd_notify")
	} else if ok {
		log.Debug().Msg("[app] notified systemd")
	}

	sig := shell.WaitSignal(context.Background())
	log.Info().Msgf("[app] exit with signal: %s", sig)

	_, _ = daemon.SdNotify(false, daemon.SdNotifyStopping)

	camera.Close()
}
