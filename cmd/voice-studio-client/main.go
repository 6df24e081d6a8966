// main package for the voice-studio command-line client.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/book-expert/voice-studio/internal/bridge"
)

// Flag names.
const (
	flagText     = "text"
	flagSpeaker  = "speaker"
	flagMode     = "mode"
	flagSpeed    = "speed"
	flagOutput   = "output"
	flagSpeakers = "speakers"
	flagHealth   = "health"
	flagURL      = "url"
)

// Flag descriptions.
const (
	flagTextDesc     = "Text to synthesize"
	flagSpeakerDesc  = "Voice profile name"
	flagModeDesc     = "Synthesis mode override (zero_shot, cross_lingual, instruct, repair)"
	flagSpeedDesc    = "Playback speed ratio in [0.5, 2.0]"
	flagOutputDesc   = "Output file path (.wav)"
	flagSpeakersDesc = "List available speakers and exit"
	flagHealthDesc   = "Check bridge health and exit"
	flagURLDesc      = "Bridge base URL"
)

const (
	defaultBridgeURL  = "http://127.0.0.1:5010"
	defaultOutputFile = "output.wav"
	defaultSpeed      = 1.0
	requestTimeout    = 5 * time.Minute
	outputPermissions = 0o600
)

var errTextAndSpeakerRequired = errors.New("both -text and -speaker must be provided")

// appFlags holds the parsed command-line flag values.
type appFlags struct {
	text     string
	speaker  string
	mode     string
	speed    float64
	output   string
	speakers bool
	health   bool
	url      string
}

func main() {
	err := run()
	if err != nil {
		log.Fatalf("Error: %v", err)
	}
}

func run() error {
	flags := parseFlags()

	client := bridge.NewClient(flags.url, requestTimeout)

	ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
	defer cancel()

	switch {
	case flags.health:
		return handleHealth(ctx, client)
	case flags.speakers:
		return handleSpeakers(ctx, client)
	default:
		return handleSynthesis(ctx, client, flags)
	}
}

func parseFlags() appFlags {
	var flags appFlags

	flag.StringVar(&flags.text, flagText, "", flagTextDesc)
	flag.StringVar(&flags.speaker, flagSpeaker, "", flagSpeakerDesc)
	flag.StringVar(&flags.mode, flagMode, "", flagModeDesc)
	flag.Float64Var(&flags.speed, flagSpeed, defaultSpeed, flagSpeedDesc)
	flag.StringVar(&flags.output, flagOutput, defaultOutputFile, flagOutputDesc)
	flag.BoolVar(&flags.speakers, flagSpeakers, false, flagSpeakersDesc)
	flag.BoolVar(&flags.health, flagHealth, false, flagHealthDesc)
	flag.StringVar(&flags.url, flagURL, defaultBridgeURL, flagURLDesc)
	flag.Parse()

	return flags
}

func handleHealth(ctx context.Context, client *bridge.Client) error {
	health, err := client.Health(ctx)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}

	fmt.Printf("status: %s\nmodel: %s\nspeakers: %d\n",
		health.Status, health.Model, len(health.Characters))

	return nil
}

func handleSpeakers(ctx context.Context, client *bridge.Client) error {
	speakers, err := client.Speakers(ctx)
	if err != nil {
		return fmt.Errorf("failed to list speakers: %w", err)
	}

	for _, speaker := range speakers {
		fmt.Println(speaker.Name)
	}

	return nil
}

func handleSynthesis(ctx context.Context, client *bridge.Client, flags appFlags) error {
	if flags.text == "" || flags.speaker == "" {
		return errTextAndSpeakerRequired
	}

	audioData, err := client.Synthesize(ctx, bridge.SynthesisRequest{
		Text:          flags.text,
		CharacterName: flags.speaker,
		Mode:          flags.mode,
		Speed:         flags.speed,
	})
	if err != nil {
		return fmt.Errorf("synthesis failed: %w", err)
	}

	err = os.WriteFile(flags.output, audioData, outputPermissions)
	if err != nil {
		return fmt.Errorf("failed to write %s: %w", flags.output, err)
	}

	fmt.Printf("Generated: %s (%d bytes)\n", flags.output, len(audioData))

	return nil
}
