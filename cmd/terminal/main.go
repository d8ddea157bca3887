package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"gapper-terminal/src/logger"

	tea "github.com/charmbracelet/bubbletea"
	flag "github.com/spf13/pflag"
)

func main() {
	// 1. Parse command line flags
	configPath := flag.StringP("config", "c", "config/default.yaml", "path to config file")
	baseURL := flag.String("base-url", "", "backend base URL (overrides config)")
	logFile := flag.String("log-file", "", "write logs here instead of the config value")
	headless := flag.Bool("headless", false, "run without the chat UI (bridge and control service only)")
	withBridge := flag.Bool("bridge", false, "start the websocket render bridge")
	withControl := flag.Bool("control", false, "start the gRPC control service")
	flag.Parse()

	// 2. Load config
	conf, err := loadConfig(*configPath, flag.CommandLine.Changed("config"))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}
	if *baseURL != "" {
		conf.Backend.BaseURL = *baseURL
	}
	if *logFile != "" {
		conf.LogFile = *logFile
	}
	conf.Server.Enabled = conf.Server.Enabled || *withBridge
	conf.Grpc.Enabled = conf.Grpc.Enabled || *withControl
	if err := conf.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Invalid config: %v\n", err)
		os.Exit(1)
	}

	// 3. Setup Logger; the UI owns stdout
	closeLog, err := setupLogging(conf.MConfig, !*headless)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error opening log file: %v\n", err)
		os.Exit(1)
	}
	defer closeLog()
	appLogger := logger.NewLogger(conf, conf.Name)

	// 4. Session
	sess, err := setupSession(conf.MConfig, appLogger)
	if err != nil {
		appLogger.Error("Session setup failed: %v", err)
		os.Exit(1)
	}
	defer sess.Close()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := sess.Start(ctx); err != nil {
		appLogger.Error("Session start failed: %v", err)
		os.Exit(1)
	}

	// 5. Optional outer surfaces
	stopServers := startServers(sess, conf.MConfig, appLogger)
	defer stopServers()

	// 6. UI or wait for a signal
	if *headless {
		appLogger.Info("Running headless; Ctrl+C to stop")
		<-ctx.Done()
		appLogger.Info("Shutting down...")
		return
	}

	p := tea.NewProgram(newChatModel(ctx, sess, conf.MConfig), tea.WithAltScreen(), tea.WithContext(ctx))
	bridge := newProgramBridge(p)
	bridge.Start()
	defer bridge.Stop()
	sess.AddExchanger(bridge)
	if _, err := p.Run(); err != nil && ctx.Err() == nil {
		appLogger.Error("UI exited with error: %v", err)
	}
}
