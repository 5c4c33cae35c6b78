package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"os"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/nbd-wtf/go-nostr"
	"github.com/pkg/browser"
)

func main() {
	configFlag := flag.String("config", "", "path to config file")
	debugFlag := flag.Bool("debug", false, "enable debug logging to debug.log")
	flag.Parse()

	if *debugFlag {
		f, err := tea.LogToFile("debug.log", "rivulet")
		if err != nil {
			fmt.Fprintf(os.Stderr, "could not open debug log: %v\n", err)
			os.Exit(1)
		}
		defer f.Close()
		log.Println("debug logging enabled")
	} else {
		log.SetOutput(io.Discard)
	}

	cfg, err := LoadConfig(*configFlag)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config error: %v\n", err)
		os.Exit(1)
	}
	log.Printf("config loaded: %d relays, %d channels, cache=%d", len(cfg.Relays), len(cfg.Channels), cfg.CacheEntries())

	// Detect the glamour style before the TUI starts so the terminal
	// background-color query (OSC 11) completes while stdio is still normal.
	mdStyle := cfg.GlamourStyle
	if mdStyle == "" {
		mdStyle = detectGlamourStyle()
	}
	initAuthorColors(mdStyle)

	pool := nostr.NewSimplePool(context.Background())

	var history historyChain
	if dir := cfg.logDir(); dir != "" {
		history = append(history, logHistory{dir: dir})
	}
	history = append(history, relayHistory{pool: pool, relays: cfg.Relays})

	// The opener's own output would land on top of the TUI.
	browser.Stdout, browser.Stderr = io.Discard, io.Discard
	m := newModel(cfg, *configFlag, pool, history, termPresenter{open: browser.OpenURL}, mdStyle)

	log.Println("starting TUI")
	p := tea.NewProgram(&m, tea.WithAltScreen(), tea.WithMouseCellMotion())
	if _, err := p.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	pool.Close("shutdown")
}
