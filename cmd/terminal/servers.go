package main

import (
	"gapper-terminal/src/grpc_control"
	"gapper-terminal/src/logger"
	"gapper-terminal/src/models"
	"gapper-terminal/src/server"
	"gapper-terminal/src/session"
)

// -----------------------------------------------------------------------------

// startServers launches the enabled outer surfaces and returns their shutdown.
func startServers(sess *session.Session, cfg *models.MConfig, appLogger *logger.Logger) func() {
	var stops []func() error

	// 1. Render bridge
	if cfg.Server.Enabled {
		bridge := server.NewRenderServer(cfg, sess, appLogger.Named("RenderServer"))
		sess.AddExchanger(bridge)
		go func() {
			if err := bridge.Start(); err != nil {
				appLogger.Error("Render bridge failed: %v", err)
			}
		}()
		stops = append(stops, bridge.Stop)
	}

	// 2. gRPC control service
	if cfg.Grpc.Enabled {
		control := grpc_control.NewControlServer(cfg, grpc_control.NewControlService(sess, appLogger.Named("Control")), appLogger.Named("Control"))
		go func() {
			if err := control.Start(); err != nil {
				appLogger.Error("Control service failed: %v", err)
			}
		}()
		stops = append(stops, control.Stop)
	}

	return func() {
		for _, stop := range stops {
			if err := stop(); err != nil {
				appLogger.Warning("Shutdown: %v", err)
			}
		}
	}
}
