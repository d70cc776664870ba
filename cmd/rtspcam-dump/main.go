// Command rtspcam-dump connects to the camera named in a YAML config
// file, plays its tracks and logs one structured line per lifecycle
// event, and at debug level one per frame, until interrupted.
package main

import (
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/RekadzeAV/rtspcam/client"
	"github.com/RekadzeAV/rtspcam/config"
	"github.com/RekadzeAV/rtspcam/logging"
	"github.com/RekadzeAV/rtspcam/rtpdec"
	"github.com/RekadzeAV/rtspcam/track"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to the YAML config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("loading config", "err", err)
		os.Exit(1)
	}

	logger := logging.Init(cfg, os.Stdout)

	s := client.New()
	sessionLog := logging.WithSession(logger, s.ID.String())

	s.SetReconnectParams(cfg.Reconnect.ToPolicy())

	s.SetStatusSink(func(ev client.StatusEvent) {
		if ev.Err != nil {
			sessionLog.Error(ev.Message, "kind", ev.Kind, "state", ev.State, "err", ev.Err)
			return
		}
		sessionLog.Info(ev.Message, "kind", ev.Kind, "state", ev.State)
	})

	s.SetFrameSink(track.KindVideo, func(f rtpdec.Frame) {
		sessionLog.Debug("video frame", "seq", f.Sequence, "ts", f.Timestamp, "bytes", len(f.Payload))
	})
	s.SetFrameSink(track.KindAudio, func(f rtpdec.Frame) {
		sessionLog.Debug("audio frame", "seq", f.Sequence, "ts", f.Timestamp, "bytes", len(f.Payload))
	})

	ok, err := s.Connect(cfg.Camera.URL, cfg.Camera.User, cfg.Camera.Pass, cfg.Camera.Timeout)
	if ok {
		if ok, err := s.Play(); !ok {
			sessionLog.Error("play failed", "err", err)
		}
	} else {
		sessionLog.Error("initial connect failed", "err", err)
		if !cfg.Reconnect.Enabled {
			os.Exit(1)
		}
	}

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig

	sessionLog.Info("shutting down")
	s.Disconnect()
}
