package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"github.com/putto11262002/compartment/client"
	"github.com/putto11262002/compartment/core"
)

const usage = `commands:
  /decode on|off    toggle the decoding effect
  /distort on|off   toggle distortion
  /slow on|off      toggle slow typing
  /volume 0..1      set the room volume
  /font family|color|size <value>
  /reset            restore the default font style
  /draft <text>     share a draft with the counterpart
  /quit             leave the room
anything else is sent as a message`

func main() {
	url := flag.String("url", "ws://localhost:8080/ws", "relay websocket endpoint")
	room := flag.String("room", "", "room identifier")
	role := flag.String("role", "participant", "participant or counterpart")
	reconnect := flag.Int("reconnect", 3, "reconnect attempts after a dropped connection")
	verbose := flag.Bool("v", false, "log debug output to stderr")
	flag.Parse()

	if *room == "" {
		log.Fatal("room is required. Use -room flag")
	}

	level := slog.LevelWarn
	if *verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	view := newTerminalView(os.Stdout)
	session := client.NewSession(*url,
		client.WithLogger(logger),
		client.WithReconnect(*reconnect))
	r := client.NewRoom(session, view, client.WithRoomLogger(logger))
	defer r.Close()

	if err := r.Connect(ctx, *room, core.ParseRole(*role)); err != nil {
		log.Fatalf("connect to %s: %v", *url, err)
	}
	fmt.Println(usage)

	intents := make(chan client.Intent)
	go func() {
		defer close(intents)
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			line := strings.TrimSpace(scanner.Text())
			if line == "" {
				continue
			}
			if line == "/quit" {
				return
			}
			intent, err := parseIntent(line, r.Controller().State())
			if err != nil {
				fmt.Fprintln(os.Stderr, err)
				continue
			}
			select {
			case intents <- intent:
			case <-ctx.Done():
				return
			}
		}
	}()

	if err := r.Run(ctx, intents); err != nil && !errors.Is(err, context.Canceled) {
		log.Printf("room: %v", err)
	}
}

var errUsage = errors.New("unknown command, see the list above")

// parseIntent turns an input line into an intent. Font commands change one
// field of the current style.
func parseIntent(line string, state core.ControlState) (client.Intent, error) {
	if !strings.HasPrefix(line, "/") {
		return client.Intent{Kind: client.IntentSend, Text: line}, nil
	}
	cmd, arg, _ := strings.Cut(line[1:], " ")
	arg = strings.TrimSpace(arg)

	switch cmd {
	case "decode", "distort", "slow":
		enabled, err := parseSwitch(arg)
		if err != nil {
			return client.Intent{}, err
		}
		toggle := map[string]client.Toggle{
			"decode":  client.ToggleDecoding,
			"distort": client.ToggleDistortion,
			"slow":    client.ToggleSlowTyping,
		}[cmd]
		return client.Intent{Kind: client.IntentToggle, Toggle: toggle, Enabled: enabled}, nil
	case "volume":
		v, err := strconv.ParseFloat(arg, 64)
		if err != nil {
			return client.Intent{}, fmt.Errorf("volume %q: %w", arg, err)
		}
		return client.Intent{Kind: client.IntentVolume, Volume: v}, nil
	case "font":
		field, value, _ := strings.Cut(arg, " ")
		value = strings.TrimSpace(value)
		if value == "" {
			return client.Intent{}, errors.New("font needs a field and a value")
		}
		style := state.FontStyle
		switch field {
		case "family":
			style.FontFamily = value
		case "color":
			style.Color = value
		case "size":
			px, err := strconv.Atoi(strings.TrimSuffix(value, "px"))
			if err != nil || px <= 0 {
				return client.Intent{}, fmt.Errorf("font size %q is not a positive pixel count", value)
			}
			style = style.WithPixels(px)
		default:
			return client.Intent{}, fmt.Errorf("unknown font field %q", field)
		}
		return client.Intent{Kind: client.IntentStyle, Style: style}, nil
	case "reset":
		return client.Intent{Kind: client.IntentResetStyle}, nil
	case "draft":
		return client.Intent{Kind: client.IntentDraft, Text: arg}, nil
	default:
		return client.Intent{}, errUsage
	}
}

func parseSwitch(s string) (bool, error) {
	switch strings.ToLower(s) {
	case "on", "true", "1":
		return true, nil
	case "off", "false", "0":
		return false, nil
	}
	return false, fmt.Errorf("expected on or off, got %q", s)
}
