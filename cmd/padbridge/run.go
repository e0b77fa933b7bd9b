package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/opencontroller/padbridge/pkg/app"
	"github.com/opencontroller/padbridge/pkg/input"
	"github.com/opencontroller/padbridge/pkg/log"
	"github.com/opencontroller/padbridge/pkg/mapping"
	"github.com/opencontroller/padbridge/pkg/metrics"
	"github.com/opencontroller/padbridge/pkg/session"
	"github.com/opencontroller/padbridge/pkg/types"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the bridge",
	Long: `Run the bridge against an attached gamepad.

The session to use is resolved in order: the --session flag, the last
used session, or a fresh one seeded from the --config bootstrap file.

Examples:
  # Run with the last used session
  padbridge run

  # Run a named session on the second gamepad
  padbridge run --session flight-day --device 1

  # First run, seeded from a bootstrap file
  padbridge run --config bootstrap.yaml`,
	RunE: runBridge,
}

func init() {
	runCmd.Flags().StringP("config", "c", "", "Bootstrap YAML for a fresh session")
	runCmd.Flags().String("session", "", "Session to load (default: last used)")
	runCmd.Flags().Int("device", 0, "Gamepad index (see 'padbridge devices')")
	runCmd.Flags().String("log-level", "info", "Log level (debug|info|warn|error)")
	runCmd.Flags().Bool("log-json", false, "Log JSON instead of console output")
	runCmd.Flags().String("metrics-addr", "127.0.0.1:9321", "Metrics/health listen address (empty to disable)")
	runCmd.Flags().Duration("autosave", session.DefaultAutosaveInterval, "Autosave interval")

	rootCmd.AddCommand(runCmd)
}

func runBridge(cmd *cobra.Command, args []string) error {
	dataDir, _ := cmd.Flags().GetString("data-dir")
	configPath, _ := cmd.Flags().GetString("config")
	sessionName, _ := cmd.Flags().GetString("session")
	deviceIdx, _ := cmd.Flags().GetInt("device")
	logLevel, _ := cmd.Flags().GetString("log-level")
	logJSON, _ := cmd.Flags().GetBool("log-json")
	metricsAddr, _ := cmd.Flags().GetString("metrics-addr")
	autosave, _ := cmd.Flags().GetDuration("autosave")

	log.Init(log.Config{Level: log.Level(logLevel), JSONOutput: logJSON})
	metrics.SetVersion(Version)

	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return fmt.Errorf("failed to create data directory: %w", err)
	}
	store, err := session.NewStore(filepath.Join(dataDir, "sessions.db"))
	if err != nil {
		return err
	}
	defer store.Close()

	cfg, err := resolveSession(store, sessionName, configPath)
	if err != nil {
		return err
	}
	log.Logger.Info().Str("session", cfg.Name).Msg("session resolved")

	if err := input.Init(); err != nil {
		return err
	}
	defer input.Quit()

	devices := input.ListDevices()
	if len(devices) == 0 {
		return fmt.Errorf("no gamepad attached")
	}
	dev, err := input.OpenDevice(deviceIdx)
	if err != nil {
		return err
	}

	a, err := app.New(app.Config{Autosave: autosave}, app.Deps{
		Device: dev,
		Store:  store,
		Live:   session.NewLive(cfg),
	})
	if err != nil {
		return err
	}
	a.Start()

	var srv *http.Server
	if metricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", metrics.Handler())
		mux.HandleFunc("/health", metrics.HealthHandler())
		mux.HandleFunc("/ready", metrics.ReadyHandler())
		mux.HandleFunc("/live", metrics.LivenessHandler())
		srv = &http.Server{Addr: metricsAddr, Handler: mux}
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Errorf("metrics server failed", err)
			}
		}()
		log.Logger.Info().Str("addr", metricsAddr).Msg("metrics server listening")
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	var runErr error
	select {
	case sig := <-sigCh:
		log.Logger.Info().Str("signal", sig.String()).Msg("signal received")
	case <-a.InputDone():
		runErr = a.InputErr()
		log.Errorf("input device lost", runErr)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	a.Shutdown(ctx)
	if srv != nil {
		_ = srv.Shutdown(ctx)
	}

	return runErr
}

// resolveSession picks the session to run: an explicitly named one, the
// last used one, or a fresh session seeded from the bootstrap file.
func resolveSession(store *session.Store, name, configPath string) (*types.SessionConfig, error) {
	if name != "" {
		return store.LoadSession(name)
	}

	last, err := store.LastSession()
	if err != nil {
		return nil, err
	}
	if last != "" {
		cfg, err := store.LoadSession(last)
		if err == nil {
			return cfg, nil
		}
		if !errors.Is(err, types.ErrSessionNotFound) {
			return nil, err
		}
	}

	cfg := types.NewSessionConfig("default")
	if configPath != "" {
		if err := applyBootstrap(cfg, configPath); err != nil {
			return nil, err
		}
	}
	return cfg, nil
}

// bootstrapFile seeds a fresh session. Broker passwords are never stored;
// passwordEnv names the environment variable that holds one.
type bootstrapFile struct {
	Session string `yaml:"session"`
	Broker  struct {
		Name        string   `yaml:"name"`
		URL         string   `yaml:"url"`
		ClientID    string   `yaml:"clientId"`
		Username    string   `yaml:"username"`
		PasswordEnv string   `yaml:"passwordEnv"`
		Topics      []string `yaml:"topics"`
		AutoConnect bool     `yaml:"autoConnect"`
	} `yaml:"broker"`
	Radio struct {
		Port string `yaml:"port"`
		Baud int    `yaml:"baud"`
	} `yaml:"radio"`
	Engines []string `yaml:"engines"`
}

func applyBootstrap(cfg *types.SessionConfig, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read bootstrap file: %w", err)
	}
	var b bootstrapFile
	if err := yaml.Unmarshal(data, &b); err != nil {
		return fmt.Errorf("failed to parse bootstrap file: %w", err)
	}

	if b.Session != "" {
		cfg.Name = b.Session
	}
	if b.Broker.URL != "" {
		server := types.BrokerServer{
			Name:        b.Broker.Name,
			URL:         b.Broker.URL,
			ClientID:    b.Broker.ClientID,
			Username:    b.Broker.Username,
			PasswordEnv: b.Broker.PasswordEnv,
		}
		cfg.Broker.Server = server
		cfg.Broker.Servers = []types.BrokerServer{server}
		cfg.Broker.AvailableTopics = b.Broker.Topics
		cfg.Broker.SubscribedTopics = b.Broker.Topics
		cfg.Broker.AutoConnect = b.Broker.AutoConnect
	}
	if b.Radio.Port != "" {
		cfg.Radio = types.RadioConfig{Port: b.Radio.Port, Baud: b.Radio.Baud}
	}

	for _, kind := range b.Engines {
		switch types.ProtocolKind(kind) {
		case types.ProtocolKeyboard:
			cfg.Engines = append(cfg.Engines, types.EngineConfig{
				ID:    uuid.New().String(),
				Kind:  types.ProtocolKeyboard,
				Table: mapping.DefaultKeyboardTable(),
			})
		case types.ProtocolRadio:
			cfg.Engines = append(cfg.Engines, types.EngineConfig{
				ID:    uuid.New().String(),
				Kind:  types.ProtocolRadio,
				Table: mapping.DefaultRadioTable(),
			})
		default:
			return fmt.Errorf("unknown engine kind %q in %s", kind, path)
		}
	}
	return nil
}
