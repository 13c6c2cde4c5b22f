package main

import (
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/hapcore/hap/internal/config"
	"github.com/hapcore/hap/internal/platform"
	"github.com/hapcore/hap/internal/platform/bletinygo"
	"github.com/hapcore/hap/internal/platform/boltkv"
	"github.com/hapcore/hap/internal/platform/systimer"
	"github.com/hapcore/hap/internal/server"
	"github.com/hapcore/hap/internal/setupinfo"
)

// version is set at build time via -ldflags.
var version = "dev"

func main() {
	configPath := flag.String("config", "", "path to config file (default: ~/.config/hapd/config.yaml)")
	showVersion := flag.Bool("version", false, "print version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Printf("hapd %s\n", version)
		return
	}

	cfg, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "config validation: %v\n", err)
		os.Exit(1)
	}

	logLevel := config.ParseLogLevel(cfg.LogLevel)
	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel})
	logger := slog.New(handler)
	slog.SetDefault(logger)

	if cfg.Transport.IP.Enabled {
		slog.Error("transport.ip.enabled is set, but this binary has no IP server engine wired in")
		os.Exit(1)
	}

	if err := os.MkdirAll(filepath.Dir(cfg.Storage.Path), 0755); err != nil {
		slog.Error("creating storage directory failed", "error", err)
		os.Exit(1)
	}
	kv, err := boltkv.Open(cfg.Storage.Path)
	if err != nil {
		slog.Error("opening persistent store failed", "error", err, "path", cfg.Storage.Path)
		os.Exit(1)
	}
	defer func() {
		if err := kv.Close(); err != nil {
			slog.Error("closing persistent store failed", "error", err)
		}
	}()

	setupCode, setupID, err := loadOrCreateSetupInfo(cfg, kv)
	if err != nil {
		slog.Error("loading setup code/ID failed", "error", err)
		os.Exit(1)
	}

	acc := buildPrimaryAccessory("hapcore", "hapd", cfg.Accessory.Name, "0", cfg.Accessory.FirmwareVersion)

	// IIDs below follow buildPrimaryAccessory's fixed assignment order:
	// Accessory Information (1: Identify, Manufacturer..FirmwareRevision
	// 2-7), Pairing (8-12, served by the Pairing procedure engine
	// directly, never through this ValueDelegate), Lightbulb (13: On 14).
	values := newMemoryValues(map[uint64][]byte{
		2:  {0},
		3:  []byte("hapcore"),
		4:  []byte("hapd"),
		5:  []byte(cfg.Accessory.Name),
		6:  []byte("0"),
		7:  []byte(cfg.Accessory.FirmwareVersion),
		14: {0},
	})

	peripheral := bletinygo.New(cfg.Accessory.Name)
	timer := systimer.New()

	srv, err := server.New(server.Config{
		KV:              kv,
		Timer:           timer,
		Delegate:        loggingDelegate{logger: slog.Default()},
		Logger:          slog.Default(),
		FirmwareVersion: cfg.Accessory.FirmwareVersion,
		MaxPairings:     cfg.Accessory.MaxPairings,
		AccessoryName:   cfg.Accessory.Name,
		SetupCodes:      fixedSetupCode{code: setupCode},
		BLE: server.BLEConfig{
			Peripheral:             peripheral,
			PairingCharacteristics: pairingCharacteristicsByIID(acc),
			Values:                 values,
		},
	})
	if err != nil {
		slog.Error("constructing server failed", "error", err)
		os.Exit(1)
	}

	printBanner(cfg, setupCode, setupID)

	if err := srv.Start(acc); err != nil {
		slog.Error("starting server failed", "error", err)
		os.Exit(1)
	}
	slog.Info("server running", "state", srv.GetState())

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	slog.Info("shutting down", "signal", sig)

	if err := srv.Stop(); err != nil {
		slog.Error("stopping server failed", "error", err)
		os.Exit(1)
	}
	slog.Info("goodbye")
}

// loggingDelegate is the demo binary's server.Delegate: it logs every
// lifecycle callback rather than driving real hardware.
type loggingDelegate struct {
	logger *slog.Logger
}

func (d loggingDelegate) HandleFirmwareUpdate(oldVersion, newVersion server.FirmwareVersion) error {
	d.logger.Info("firmware update applied", "old", oldVersion.String(), "new", newVersion.String())
	return nil
}

func (d loggingDelegate) HandleUpdatedState(state server.State) {
	d.logger.Info("server state changed", "state", state)
}

// loadConfig loads the config from the specified path, or falls back
// to the default config path, or uses built-in defaults. On first run
// it writes a default config file for next time.
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
		return cfg, nil
	}

	if created, err := config.WriteDefault(); err != nil {
		slog.Warn("could not write default config", "error", err)
	} else if created != "" {
		slog.Info("created default config", "path", created)
	}

	return config.Default(), nil
}

// loadOrCreateSetupInfo returns the accessory's setup code and setup
// ID, generating and persisting both on first run if the config left
// them blank.
func loadOrCreateSetupInfo(cfg *config.Config, kv *boltkv.Store) (string, string, error) {
	setupCode := cfg.Accessory.SetupCode
	if setupCode == "" {
		if raw, found, err := kv.Get(platform.DomainConfiguration, "SetupCode"); err != nil {
			return "", "", err
		} else if found {
			setupCode = string(raw)
		} else {
			setupCode, err = setupinfo.GenerateRandomSetupCode()
			if err != nil {
				return "", "", err
			}
			if err := kv.Set(platform.DomainConfiguration, "SetupCode", []byte(setupCode)); err != nil {
				return "", "", err
			}
		}
	}

	setupID := cfg.Accessory.SetupID
	if setupID == "" {
		if raw, found, err := kv.Get(platform.DomainConfiguration, "SetupID"); err != nil {
			return "", "", err
		} else if found {
			setupID = string(raw)
		} else {
			setupID, err = setupinfo.GenerateRandomSetupID()
			if err != nil {
				return "", "", err
			}
			if err := kv.Set(platform.DomainConfiguration, "SetupID", []byte(setupID)); err != nil {
				return "", "", err
			}
		}
	}

	return setupCode, setupID, nil
}

// printBanner displays the startup configuration summary, including
// the QR-code setup payload a controller would scan to pair.
func printBanner(cfg *config.Config, setupCode, setupID string) {
	payload, err := setupinfo.EncodePayload(setupCode, setupID, setupinfo.Flags{BLESupported: true}, cfg.Accessory.Category)
	if err != nil {
		slog.Warn("encoding setup payload failed", "error", err)
	}

	fmt.Println("=== hapd ===")
	fmt.Printf("  Version:    %s\n", version)
	fmt.Printf("  Accessory:  %s\n", cfg.Accessory.Name)
	fmt.Printf("  Setup code: %s\n", setupCode)
	fmt.Printf("  Setup ID:   %s\n", setupID)
	if payload != "" {
		fmt.Printf("  Payload:    %s\n", payload)
	}
	fmt.Printf("  Transports: ble=%v ip=%v\n", cfg.Transport.BLE.Enabled, cfg.Transport.IP.Enabled)
	fmt.Printf("  Log:        %s\n", cfg.LogLevel)
	fmt.Println("============")
}
