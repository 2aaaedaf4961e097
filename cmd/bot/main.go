package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"math/rand"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/acVeli/phaserGame/internal/client"
	"github.com/acVeli/phaserGame/internal/protocol"
)

// A headless wanderer: joins the server, mirrors the remote roster through
// the interpolator and issues a random walk. Useful for soak-testing a
// server without a browser client.

const (
	worldW    = 1280
	worldH    = 720
	moveSpeed = 160
	tickRate  = 50 * time.Millisecond
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "fatal:", err)
		os.Exit(1)
	}
}

func run() error {
	url := flag.String("url", "ws://127.0.0.1:3000/ws", "server websocket url")
	name := flag.String("name", "", "bot display name (default random)")
	flag.Parse()

	log, err := zap.NewDevelopment()
	if err != nil {
		return err
	}
	defer log.Sync()

	botID := "bot-" + uuid.NewString()[:8]
	botName := *name
	if botName == "" {
		botName = botID
	}

	proxy, err := client.Dial(*url, log)
	if err != nil {
		return err
	}
	defer proxy.Close()

	interp := client.NewInterpolator(moveSpeed)
	mover := client.NewMovementController(proxy, moveSpeed, 688, 231)

	proxy.On(protocol.EvPlayerJoined, func(raw json.RawMessage) {
		var st protocol.PlayerState
		if err := json.Unmarshal(raw, &st); err != nil {
			log.Warn("bad playerJoined", zap.Error(err))
			return
		}
		interp.Upsert(st)
		log.Info("peer joined", zap.String("id", st.ID), zap.String("name", st.Name))
	})
	proxy.On(protocol.EvPositionUpdate, func(raw json.RawMessage) {
		var upd protocol.PositionUpdate
		if err := json.Unmarshal(raw, &upd); err != nil {
			log.Warn("bad positionUpdate", zap.Error(err))
			return
		}
		interp.Apply(upd)
	})
	proxy.On(protocol.EvPlayerLeft, func(raw json.RawMessage) {
		var left protocol.PlayerLeft
		if err := json.Unmarshal(raw, &left); err != nil {
			return
		}
		interp.Remove(left.ID)
		log.Info("peer left", zap.String("id", left.ID))
	})
	proxy.On(protocol.EvAllPlayers, func(raw json.RawMessage) {
		var roster protocol.Roster
		if err := json.Unmarshal(raw, &roster); err != nil {
			return
		}
		for _, st := range roster.Players {
			interp.Upsert(st)
		}
		log.Info("roster synced", zap.Int("peers", len(roster.Players)))
	})
	proxy.On(protocol.EvError, func(raw json.RawMessage) {
		var msg protocol.ErrorMessage
		_ = json.Unmarshal(raw, &msg)
		log.Warn("server error", zap.String("message", msg.Message))
	})

	if err := proxy.Send(protocol.EvLoggedIn, protocol.Join{
		PlayerID: botID, Name: botName, Level: 1,
	}); err != nil {
		return err
	}
	if err := proxy.Send(protocol.EvRequestRoster, protocol.PlayerIDRequest{PlayerID: botID}); err != nil {
		return err
	}

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)

	tick := time.NewTicker(tickRate)
	defer tick.Stop()
	wander := time.NewTicker(3 * time.Second)
	defer wander.Stop()

	log.Info("wandering", zap.String("id", botID), zap.String("url", *url))
	for {
		select {
		case <-tick.C:
			proxy.Drain()
			interp.Advance()
			if proxy.Closed() {
				return fmt.Errorf("connection lost")
			}
		case <-wander.C:
			if mover.Moving() {
				continue
			}
			mover.Command(rand.Float64()*worldW, rand.Float64()*worldH)
		case s := <-sig:
			log.Info("stopping", zap.String("signal", s.String()))
			return nil
		}
	}
}
