package api

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"ctf-tracker/internal/config"
	"ctf-tracker/internal/constants"
	"ctf-tracker/internal/domain"

	"github.com/rs/zerolog"
	"github.com/sethvargo/go-retry"
	"github.com/valyala/fasthttp"
)

// Notifier delivers capture and match-end notifications to an external
// webhook. Delivery is best effort: failures are logged, retried with
// backoff and then dropped. A Notifier with no URL is a no-op.
type Notifier struct {
	url    string
	client *fasthttp.Client
	logger zerolog.Logger
}

func NewNotifier(cfg *config.Config, logger zerolog.Logger) *Notifier {
	return &Notifier{
		url: cfg.WebhookURL,
		client: &fasthttp.Client{
			MaxConnsPerHost:     10,
			ReadTimeout:         constants.WebhookTimeout,
			WriteTimeout:        constants.WebhookTimeout,
			MaxIdleConnDuration: 1 * time.Minute,
		},
		logger: logger,
	}
}

type capturePayload struct {
	Event    string    `json:"event"`
	Arena    string    `json:"arena"`
	Team     string    `json:"team"`
	PlayerID string    `json:"player_id"`
	Score    int       `json:"score"`
	At       time.Time `json:"at"`
}

type matchEndPayload struct {
	Event     string    `json:"event"`
	Arena     string    `json:"arena"`
	Winner    string    `json:"winner"`
	RedScore  int       `json:"red_score"`
	BlueScore int       `json:"blue_score"`
	At        time.Time `json:"at"`
}

func (n *Notifier) CaptureScored(arena string, team domain.TeamColor, playerID string, score int) {
	n.deliver(capturePayload{
		Event:    "capture",
		Arena:    arena,
		Team:     team.String(),
		PlayerID: playerID,
		Score:    score,
		At:       time.Now(),
	})
}

func (n *Notifier) MatchEnded(arena string, winner string, score [domain.NumTeams]int) {
	n.deliver(matchEndPayload{
		Event:     "match_end",
		Arena:     arena,
		Winner:    winner,
		RedScore:  score[domain.TeamRed],
		BlueScore: score[domain.TeamBlue],
		At:        time.Now(),
	})
}

func (n *Notifier) deliver(payload any) {
	if n.url == "" {
		return
	}

	body, err := json.Marshal(payload)
	if err != nil {
		n.logger.Error().Err(err).Msg("failed to marshal webhook payload")
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), constants.RequestTimeout)
	defer cancel()

	backoff := retry.WithMaxRetries(3, retry.NewFibonacci(250*time.Millisecond))
	err = retry.Do(ctx, backoff, func(ctx context.Context) error {
		return retry.RetryableError(n.post(ctx, body))
	})
	if err != nil {
		n.logger.Warn().Err(err).Str("url", n.url).Msg("webhook delivery failed, dropping notification")
	}
}

func (n *Notifier) post(ctx context.Context, body []byte) error {
	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseRequest(req)
	defer fasthttp.ReleaseResponse(resp)

	req.SetRequestURI(n.url)
	req.Header.SetMethod(fasthttp.MethodPost)
	req.Header.SetContentType("application/json")
	req.SetBody(body)

	if deadline, ok := ctx.Deadline(); ok {
		if err := n.client.DoDeadline(req, resp, deadline); err != nil {
			return err
		}
	} else {
		if err := n.client.Do(req, resp); err != nil {
			return err
		}
	}

	if resp.StatusCode() >= 300 {
		return fmt.Errorf("webhook error: %d", resp.StatusCode())
	}

	return nil
}
