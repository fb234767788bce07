package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/voxmesh/roomclient/internal/adapters/httpapi"
	"github.com/voxmesh/roomclient/internal/adapters/rtc"
	"github.com/voxmesh/roomclient/internal/adapters/ws"
	"github.com/voxmesh/roomclient/internal/config"
	"github.com/voxmesh/roomclient/internal/domain"
	"github.com/voxmesh/roomclient/internal/session"
	"github.com/voxmesh/roomclient/internal/signaling"
	"github.com/voxmesh/roomclient/internal/store"
)

var version = "dev"

func main() {
	var opts config.Options

	root := &cobra.Command{
		Use:           "roomclient",
		Short:         "Join a conference room and drive it from a local HTTP API",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(opts)
		},
	}
	root.Flags().StringVar(&opts.ServerURL, "server", "", "signaling server URL (wss://...)")
	root.Flags().StringVar(&opts.RoomID, "room", "", "room id to join")
	root.Flags().StringVar(&opts.DisplayName, "name", "", "display name")
	root.Flags().StringVar(&opts.Mode, "mode", "", "debug or release")

	if err := root.Execute(); err != nil {
		log.Error().Err(err).Msg("fatal")
		os.Exit(1)
	}
}

func run(opts config.Options) error {
	// Initialize zerolog global logger early so config.Load can use it.
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	cfg, err := config.Load(opts)
	if err != nil {
		return err
	}
	if cfg.Mode == "debug" {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	}
	if cfg.RoomID == "" {
		return errors.New("room id is required (--room)")
	}

	peerID := domain.PeerID(cfg.PeerID)
	if peerID == "" {
		peerID = domain.NewPeerID()
	}

	wsURL, err := signalingURL(cfg.ServerURL, cfg.RoomID, string(peerID))
	if err != nil {
		return err
	}

	engine, err := rtc.NewEngine()
	if err != nil {
		return fmt.Errorf("media engine: %w", err)
	}

	st := store.New()
	transport := ws.NewTransport(wsURL)
	peer := signaling.NewPeer(transport, cfg.RPCTimeout)

	iceServers := make([]webrtc.ICEServer, 0, len(cfg.STUNServers))
	for _, u := range cfg.STUNServers {
		iceServers = append(iceServers, webrtc.ICEServer{URLs: []string{u}})
	}

	sess := session.New(peer, engine, st, session.Options{
		RoomID:      domain.RoomID(cfg.RoomID),
		PeerID:      peerID,
		DisplayName: cfg.DisplayName,
		Device:      domain.DeviceInfo{Flag: "cli", Name: "roomclient", Version: version},
		Produce:     cfg.Produce,
		Consume:     cfg.Consume,
		ForceTCP:    cfg.ForceTCP,
		ICEServers:  iceServers,

		SaveDisplayName: config.SaveDisplayNamePref,
	})
	sess.Join()

	router := httpapi.SetupRouter(cfg.Mode, &httpapi.Controller{Session: sess, Store: st})
	srv := &http.Server{Addr: cfg.APIAddr, Handler: router}

	go func() {
		log.Info().Str("addr", cfg.APIAddr).Str("room", cfg.RoomID).Msg("roomclient started")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("api server error")
		}
	}()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	select {
	case <-ctx.Done():
		log.Info().Msg("shutting down")
		sess.Close()
		<-sess.Done()
	case <-sess.Done():
		log.Info().Msg("session ended")
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("api server forced to shutdown")
	}
	log.Info().Msg("exited gracefully")
	return nil
}

// signalingURL appends the room and peer identity the way the session server
// expects them, preserving anything already present in the base URL.
func signalingURL(base, roomID, peerID string) (string, error) {
	u, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("invalid server URL: %w", err)
	}
	q := u.Query()
	q.Set("roomId", roomID)
	q.Set("peerId", peerID)
	u.RawQuery = q.Encode()
	return u.String(), nil
}
