package cmd

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/router-for-me/MixPlay/internal/config"
	"github.com/router-for-me/MixPlay/sdk/mixerr"
	"github.com/router-for-me/MixPlay/sdk/mixplay"
	log "github.com/sirupsen/logrus"
)

const closeTimeout = 5 * time.Second

// DoPlay restores the saved token, joins the configured experience and logs protocol
// events until ctx is cancelled or the run-loop gives up.
func DoPlay(ctx context.Context, cfg *config.Config, tokens TokenTarget) {
	if err := runPlay(ctx, cfg, tokens); err != nil {
		log.Errorf("play failed: %v", err)
	}
}

func runPlay(ctx context.Context, cfg *config.Config, tokens TokenTarget) error {
	if cfg.ExperienceID == "" {
		return fmt.Errorf("experience-id is required (or set %s)", config.EnvExperienceID)
	}

	dead := make(chan error, 1)
	var deadOnce sync.Once
	onPumpError := func(_ mixplay.Session, err error) {
		if mixerr.CodeOf(err) != mixerr.TransportClosed {
			return
		}
		deadOnce.Do(func() { dead <- err })
	}

	client, err := newClient(cfg, playHandlers(cfg.ExperienceID), mixplay.WithOnPumpError(onPumpError))
	if err != nil {
		return err
	}
	if _, err = restoreToken(ctx, client, tokens); err != nil {
		return err
	}

	id, err := client.Open(ctx)
	if err != nil {
		return fmt.Errorf("open session: %w", err)
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), closeTimeout)
		defer cancel()
		if errClose := client.Close(closeCtx); errClose != nil {
			log.Warnf("close session %d: %v", id, errClose)
		}
	}()

	if err = client.Connect(ctx, cfg.ExperienceID, cfg.ShareCode, cfg.SetReady); err != nil {
		return fmt.Errorf("connect: %w", err)
	}
	log.WithField("experience", cfg.ExperienceID).Info("connected, press Ctrl+C to quit")

	select {
	case <-ctx.Done():
		log.Info("shutting down")
		return nil
	case err = <-dead:
		return err
	}
}

// playHandlers logs every protocol event with the experience it belongs to.
func playHandlers(experienceID string) mixplay.Handlers {
	logger := log.WithField("experience", experienceID)
	return mixplay.Handlers{
		OnStateChanged: func(previous, current mixplay.ProtocolState) {
			logger.WithField("state", current.String()).Infof("interactive state %s -> %s", previous, current)
		},
		OnInput: func(in mixplay.Input) {
			logger.WithFields(log.Fields{
				"participant": in.ParticipantID,
				"control":     in.ControlID,
			}).Infof("%s %s", in.Kind, in.Event)
		},
		OnParticipantsChanged: func(action mixplay.ParticipantAction, p mixplay.Participant) {
			logger.WithField("participant", p.SessionID).Infof("participant %s: %s", action, p.Username)
		},
		OnError: func(code int, message string) {
			logger.WithField("error", code).Warnf("interactive error: %s", message)
		},
		OnUnhandledMethod: func(method string, _ []byte) {
			logger.WithField("method", method).Debug("unhandled method")
		},
	}
}
