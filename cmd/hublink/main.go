package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	osignal "os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/chaz8081/hublink/internal/actions"
	"github.com/chaz8081/hublink/internal/config"
	"github.com/chaz8081/hublink/internal/hub"
	"github.com/chaz8081/hublink/internal/signal"
)

func main() {
	// CLI flags
	configPath := flag.String("config", "", "path to config file (default: ~/.config/hublink/config.yaml)")
	hubName := flag.String("hub", "", "hub to connect to (default: first hub in config)")
	action := flag.String("action", "", "preloaded action to run")
	ack := flag.Bool("ack", false, "wait for the hub's acknowledgment when running an action")
	sequence := flag.String("sequence", "", "comma-separated commands to batch into one program, e.g. 'beep 440 200,display happy,delay 250'")
	signals := flag.Bool("signals", false, "have batched sequences print a completion signal after each step")
	listen := flag.Bool("listen", false, "stay connected and print hub console output")
	flag.Parse()

	cfg, err := loadConfig(*configPath)
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("config validation: %v", err)
	}
	setLogLevel(cfg.LogLevel)

	target, err := pickHub(cfg, *hubName)
	if err != nil {
		log.Fatalf("%v", err)
	}

	printBanner(cfg, target)

	// Connect and handshake
	session := hub.NewSession(hub.NewBluetoothAdapter(), target.Address, hub.SessionOptions{
		HandshakeTimeout:  cfg.Timeouts.Handshake(),
		FlowTimeout:       cfg.Timeouts.Flow(),
		ChunkTimeout:      cfg.Timeouts.Chunk(),
		ClearBeforeUpload: true,
	})

	queue := signal.NewQueue(target.Name)
	session.SetConsoleHandler(func(text string) {
		queue.OnNotification(text)
		log.Printf("[%s] %s", target.Name, text)
	})

	log.Printf("Connecting to %s (%s)...", target.Name, target.Address)
	connectStart := time.Now()
	if err := session.Connect(context.Background()); err != nil {
		log.Fatalf("connect: %v", err)
	}
	defer session.Disconnect()
	log.Printf("Connected in %s", time.Since(connectStart).Round(time.Millisecond))

	// Preload the action catalog into slots
	compiler := actions.SequenceCompiler{Signals: *signals}
	registry := hub.NewRegistry(session, compiler, hub.RegistryOptions{
		BaseSlot:    cfg.Slots.Base,
		ScratchSlot: cfg.Slots.Scratch,
		MaxSlots:    cfg.Slots.Max,
	})
	if err := registry.Preload(context.Background(), actions.DefaultCatalog()); err != nil {
		log.Fatalf("preload: %v", err)
	}

	translator, err := loadTranslator(cfg.CatalogPath)
	if err != nil {
		log.Fatalf("catalog: %v", err)
	}

	switch {
	case *action != "":
		runAction(registry, translator, *action, *ack)
	case *sequence != "":
		runSequence(registry, *sequence)
	}

	if *listen {
		log.Println("Listening for hub output. Ctrl+C to quit.")
		sigCh := make(chan os.Signal, 1)
		osignal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh
		log.Println("Goodbye!")
		return
	}

	if *action == "" && *sequence == "" {
		log.Printf("Nothing to do. Preloaded actions: %s", strings.Join(registry.Actions(), ", "))
	}
}

// runAction starts a preloaded slot, or translates a YAML-defined action
// into a batched sequence when the registry doesn't know the name.
func runAction(registry *hub.Registry, translator actions.Translator, name string, ack bool) {
	res, err := registry.Run(context.Background(), name, ack)
	if err == nil {
		log.Printf("Ran %q in %s (acknowledged: %v)", name, res.Latency.Round(time.Millisecond), res.Acknowledged)
		return
	}

	if translator != nil {
		steps, terr := translator.Translate(name)
		if terr == nil {
			if err := registry.RunSequence(context.Background(), steps); err != nil {
				log.Fatalf("run %q: %v", name, err)
			}
			log.Printf("Ran %q as a %d-step sequence", name, len(steps))
			return
		}
	}
	log.Fatalf("run %q: %v", name, err)
}

// runSequence batches ad-hoc commands into one program start.
func runSequence(registry *hub.Registry, spec string) {
	var steps []hub.Step
	for _, command := range strings.Split(spec, ",") {
		command = strings.TrimSpace(command)
		if command == "" {
			continue
		}
		steps = append(steps, hub.Step{Command: command})
	}

	start := time.Now()
	if err := registry.RunSequence(context.Background(), steps); err != nil {
		log.Fatalf("sequence: %v", err)
	}
	log.Printf("Started %d-step sequence in %s", len(steps), time.Since(start).Round(time.Millisecond))
}

// loadConfig loads the config from the specified path, or falls back to
// the default config path, or uses built-in defaults.
func loadConfig(path string) (*config.Config, error) {
	if path != "" {
		return config.Load(path)
	}

	defaultPath := config.DefaultConfigPath()
	if _, err := os.Stat(defaultPath); err == nil {
		cfg, err := config.Load(defaultPath)
		if err != nil {
			return nil, fmt.Errorf("loading %s: %w", defaultPath, err)
		}
		log.Printf("Config loaded from %s", defaultPath)
		return cfg, nil
	}

	log.Println("No config file found, using defaults")
	return config.Default(), nil
}

// loadTranslator loads the optional YAML action catalog.
func loadTranslator(path string) (actions.Translator, error) {
	if path == "" {
		return nil, nil
	}
	return actions.LoadTranslator(path)
}

// pickHub resolves the target hub from the config.
func pickHub(cfg *config.Config, name string) (config.HubConfig, error) {
	if name != "" {
		return cfg.Hub(name)
	}
	if len(cfg.Hubs) == 0 {
		return config.HubConfig{}, fmt.Errorf("no hubs in config; add one or pass -hub")
	}
	return cfg.Hubs[0], nil
}

func setLogLevel(level string) {
	var l slog.Level
	switch level {
	case "debug":
		l = slog.LevelDebug
	case "warn":
		l = slog.LevelWarn
	case "error":
		l = slog.LevelError
	default:
		l = slog.LevelInfo
	}
	slog.SetLogLoggerLevel(l)
}

// printBanner displays the startup configuration summary.
func printBanner(cfg *config.Config, target config.HubConfig) {
	fmt.Println("=== hublink ===")
	fmt.Printf("  Hub:     %s (%s)\n", target.Name, target.Address)
	fmt.Printf("  Slots:   base %d, scratch %d, max %d\n", cfg.Slots.Base, cfg.Slots.Scratch, cfg.Slots.Max)
	fmt.Printf("  Catalog: %s\n", orDefault(cfg.CatalogPath, "(built-in)"))
	fmt.Printf("  Log:     %s\n", cfg.LogLevel)
	fmt.Println("===============")
}

func orDefault(s, fallback string) string {
	if s == "" {
		return fallback
	}
	return s
}
