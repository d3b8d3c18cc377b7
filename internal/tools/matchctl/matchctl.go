package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/pitchside/livematch/clients"
	"github.com/pitchside/livematch/clients/gateway_api_client"
	"github.com/pitchside/livematch/internal/live/gateway"
)

// matchctl is the ops companion to the live gateway: list rooms, dump
// a room's snapshot, seed scheduled matches before kickoff, and
// retract mis-entered events.
func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}

	var err error
	switch os.Args[1] {
	case "active":
		err = runActive(os.Args[2:])
	case "state":
		err = runState(os.Args[2:])
	case "seed":
		err = runSeed(os.Args[2:])
	case "retract":
		err = runRetract(os.Args[2:])
	case "-h", "-help", "--help", "help":
		usage()
		return
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n\n", os.Args[1])
		usage()
		os.Exit(2)
	}

	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprint(os.Stderr, `usage: matchctl <command> [flags]

commands:
  active    list active match rooms
  state     print one room's snapshot
  seed      seed rooms from a fixtures file
  retract   remove a mis-entered event

run "matchctl <command> -h" for command flags
`)
}

func runActive(args []string) error {
	fs := flag.NewFlagSet("active", flag.ExitOnError)
	gatewayURL := fs.String("gateway", gateway_api_client.DefaultBaseURL, "gateway base URL")
	if err := fs.Parse(args); err != nil {
		return err
	}

	api := gateway_api_client.NewGatewayApiClient(*gatewayURL)
	matches, err := api.ActiveMatches(context.Background())
	if err != nil {
		return err
	}

	if len(matches) == 0 {
		fmt.Println("no active matches")
		return nil
	}
	for _, m := range matches {
		status := "stopped"
		if m.TimerRunning {
			status = "running"
		}
		if m.ReportSubmitted {
			status = "FINAL"
		}
		fmt.Printf("%s  %d-%d  %s  period=%s reporters=%d\n",
			m.MatchID, m.HomeScore, m.AwayScore, status, m.Period, m.Reporters)
	}
	return nil
}

func runState(args []string) error {
	fs := flag.NewFlagSet("state", flag.ExitOnError)
	gatewayURL := fs.String("gateway", gateway_api_client.DefaultBaseURL, "gateway base URL")
	matchID := fs.String("match", "", "match ID (required)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *matchID == "" {
		fs.Usage()
		return errors.New("-match is required")
	}

	api := gateway_api_client.NewGatewayApiClient(*gatewayURL)
	resp, err := api.MatchState(context.Background(), *matchID)
	if err != nil {
		return err
	}

	st := resp.Match
	clock := fmt.Sprintf("%d:%02d", st.ElapsedSeconds/60, st.ElapsedSeconds%60)
	running := "stopped"
	if st.TimerRunning {
		running = "running"
	}
	fmt.Printf("%s  %d-%d  %s (%s)  period=%s\n", st.MatchID, st.HomeScore, st.AwayScore, clock, running, st.Period)
	if st.ReportSubmitted {
		fmt.Printf("report submitted by %s\n", st.ReportSubmittedBy)
	}

	fmt.Printf("reporters (%d):\n", len(resp.Reporters))
	for _, rep := range resp.Reporters {
		fmt.Printf("  %s (%s) team=%s\n", rep.Username, rep.UserID, rep.TeamID)
	}

	fmt.Printf("events (%d):\n", len(st.Events))
	for _, ev := range st.Events {
		fmt.Printf("  [%s] %s %s team=%s player=%s minute=%d\n",
			ev.ID, ev.EventType, ev.Period, ev.TeamID, ev.PlayerName, ev.Minute)
	}

	if len(resp.Shifts) > 0 {
		fmt.Printf("shifts (%d):\n", len(resp.Shifts))
		for _, sh := range resp.Shifts {
			onOff := "off"
			if sh.IsActive {
				onOff = "on"
			}
			fmt.Printf("  %s team=%s %s\n", sh.PlayerName, sh.TeamID, onOff)
		}
	}
	return nil
}

// fixtureFile is the YAML schema for batch seeding: one entry per
// scheduled match, team IDs included so goal events auto-score.
type fixtureFile struct {
	Matches []fixture `yaml:"matches"`
}

type fixture struct {
	MatchID    string `yaml:"match_id"`
	HomeTeamID string `yaml:"home_team_id"`
	AwayTeamID string `yaml:"away_team_id"`
	Period     string `yaml:"period"`
	HomeScore  *int   `yaml:"home_score"`
	AwayScore  *int   `yaml:"away_score"`
}

func runSeed(args []string) error {
	fs := flag.NewFlagSet("seed", flag.ExitOnError)
	gatewayURL := fs.String("gateway", gateway_api_client.DefaultBaseURL, "gateway base URL")
	file := fs.String("file", "", "fixtures YAML file (required)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *file == "" {
		fs.Usage()
		return errors.New("-file is required")
	}

	data, err := os.ReadFile(*file)
	if err != nil {
		return fmt.Errorf("read fixtures: %w", err)
	}
	var ff fixtureFile
	if err := yaml.Unmarshal(data, &ff); err != nil {
		return fmt.Errorf("unmarshal fixtures: %w", err)
	}

	api := gateway_api_client.NewGatewayApiClient(*gatewayURL)

	var (
		total  = len(ff.Matches)
		seeded int
		locked int
		errs   int
	)

	for _, fx := range ff.Matches {
		if fx.MatchID == "" {
			fmt.Fprintln(os.Stderr, "skipping fixture with no match_id")
			errs++
			continue
		}

		_, err := api.SeedMatch(context.Background(), fx.MatchID, gateway.MatchSeed{
			HomeTeamID: fx.HomeTeamID,
			AwayTeamID: fx.AwayTeamID,
			Period:     fx.Period,
			HomeScore:  fx.HomeScore,
			AwayScore:  fx.AwayScore,
		})
		if err != nil {
			var apiErr *clients.APIError
			if errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusConflict {
				// Report already submitted; the room is closed to edits.
				locked++
				continue
			}
			fmt.Fprintf(os.Stderr, "error seeding match %s: %v\n", fx.MatchID, err)
			errs++
			continue
		}
		seeded++
	}

	fmt.Printf(
		"Fixture seed complete: %d total, %d seeded, %d locked, %d errors\n",
		total, seeded, locked, errs,
	)
	if errs > 0 {
		return fmt.Errorf("%d fixture(s) failed", errs)
	}
	return nil
}

func runRetract(args []string) error {
	fs := flag.NewFlagSet("retract", flag.ExitOnError)
	gatewayURL := fs.String("gateway", gateway_api_client.DefaultBaseURL, "gateway base URL")
	matchID := fs.String("match", "", "match ID (required)")
	eventID := fs.String("event", "", "event ID (required)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *matchID == "" || *eventID == "" {
		fs.Usage()
		return errors.New("both -match and -event are required")
	}

	api := gateway_api_client.NewGatewayApiClient(*gatewayURL)
	ev, err := api.RetractEvent(context.Background(), *matchID, *eventID)
	if err != nil {
		return err
	}

	fmt.Printf("retracted %s (%s) from match %s\n", ev.EventType, ev.ID, *matchID)
	return nil
}
