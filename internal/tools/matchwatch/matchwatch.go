package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/pitchside/livematch/internal/live/client"
	"github.com/pitchside/livematch/internal/live/notify"
	"github.com/pitchside/livematch/internal/live/session"
)

// matchwatch joins a match room as a read-mostly reporter and prints
// every notification and a periodic state line. Useful for watching a
// live room from a terminal and for smoke-testing a gateway.
func main() {
	var (
		gatewayURL = flag.String("url", "ws://localhost:8081/ws/live", "gateway WebSocket URL")
		matchID    = flag.String("match", "", "match ID to watch (required)")
		teamID     = flag.String("team", "", "team ID to join as (required)")
		teamName   = flag.String("team-name", "", "team display name")
		userID     = flag.String("user", "", "reporter user ID (default random)")
		username   = flag.String("name", "matchwatch", "reporter display name")
		interval   = flag.Duration("interval", 5*time.Second, "state line interval")
		verbose    = flag.Bool("verbose", false, "debug logging")
	)
	flag.Parse()

	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	zerolog.SetGlobalLevel(zerolog.InfoLevel)
	if *verbose {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	}

	if *matchID == "" || *teamID == "" {
		fmt.Fprintln(os.Stderr, "both -match and -team are required")
		flag.Usage()
		os.Exit(1)
	}
	if *userID == "" {
		*userID = "matchwatch-" + uuid.New().String()[:8]
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	conn := client.New(client.Config{
		URL:      *gatewayURL,
		UserID:   *userID,
		Username: *username,
	})

	sess, err := session.New(conn, session.Config{
		MatchID:  *matchID,
		TeamID:   *teamID,
		TeamName: *teamName,
		UserID:   *userID,
		Notifier: notify.NewLogNotifier(log.Logger),
		OnTyping: func(userID, username string, isTyping bool) {
			if isTyping {
				log.Info().Str("user_id", userID).Str("username", username).Msg("reporter is typing")
			}
		},
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create session: %v\n", err)
		os.Exit(1)
	}

	if err := conn.Connect(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "failed to connect: %v\n", err)
		os.Exit(1)
	}
	if err := sess.Join(); err != nil {
		fmt.Fprintf(os.Stderr, "failed to join match: %v\n", err)
		os.Exit(1)
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	ticker := time.NewTicker(*interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			printStateLine(sess)
		case sig := <-sigChan:
			log.Info().Str("signal", sig.String()).Msg("shutting down")
			if err := sess.Leave(); err != nil {
				log.Warn().Err(err).Msg("leave failed")
			}
			if err := conn.Close(); err != nil {
				log.Warn().Err(err).Msg("close failed")
			}
			return
		}
	}
}

func printStateLine(sess *session.Session) {
	st := sess.State()
	clock := fmt.Sprintf("%d:%02d", st.ElapsedSeconds/60, st.ElapsedSeconds%60)
	running := "stopped"
	if st.TimerRunning {
		running = "running"
	}
	status := ""
	if st.ReportSubmitted {
		status = " FINAL"
	}

	fmt.Printf("%s  %d-%d  %s (%s)%s  period=%s reporters=%d events=%d\n",
		st.MatchID,
		st.HomeScore, st.AwayScore,
		clock, running, status,
		st.Period,
		len(sess.Reporters()),
		len(sess.Events()),
	)
}
