package main

import (
	"context"
	"fmt"
	"time"

	"github.com/kardianos/service"
	"go.uber.org/fx"
)

// RelayService implements service.Interface for the relay server.
type RelayService struct {
	app    *fx.App
	logger service.Logger
}

// NewRelayService creates a new relay service.
func NewRelayService() *RelayService {
	return &RelayService{}
}

// Start implements service.Interface.Start
func (s *RelayService) Start(svc service.Service) error {
	if s.logger != nil {
		s.logger.Info("Starting chatrelay service")
	}

	// Start in a goroutine to not block the service manager.
	go s.run()

	return nil
}

// Stop implements service.Interface.Stop
func (s *RelayService) Stop(svc service.Service) error {
	if s.logger != nil {
		s.logger.Info("Stopping chatrelay service")
	}

	if s.app != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := s.app.Stop(ctx); err != nil {
			if s.logger != nil {
				s.logger.Errorf("Error stopping service: %v", err)
			}
			return err
		}
	}

	return nil
}

func (s *RelayService) run() {
	s.app = fx.New(
		appModules(),
		fx.NopLogger, // Suppress fx logs when running as service
	)
	s.app.Run()
}

// ServiceConfig returns the service configuration.
func ServiceConfig() *service.Config {
	return &service.Config{
		Name:        "chatrelay",
		DisplayName: "Chatrelay",
		Description: "Relays forum post notifications to chat platforms",
		Arguments:   []string{"serve", "run"},
	}
}

// InstallService installs the relay server as a system service.
func InstallService() error {
	svcConfig := ServiceConfig()
	prg := NewRelayService()

	s, err := service.New(prg, svcConfig)
	if err != nil {
		return fmt.Errorf("creating service: %w", err)
	}

	logger, err := s.Logger(nil)
	if err != nil {
		return fmt.Errorf("creating service logger: %w", err)
	}
	prg.logger = logger

	if err := s.Install(); err != nil {
		return fmt.Errorf("installing service: %w", err)
	}

	fmt.Println("Service installed successfully!")
	fmt.Println("Use 'chatrelay serve start' to start the service")
	return nil
}

// UninstallService uninstalls the relay service.
func UninstallService() error {
	s, err := service.New(NewRelayService(), ServiceConfig())
	if err != nil {
		return fmt.Errorf("creating service: %w", err)
	}

	if err := s.Uninstall(); err != nil {
		return fmt.Errorf("uninstalling service: %w", err)
	}

	fmt.Println("Service uninstalled successfully!")
	return nil
}

// StartService starts the relay service.
func StartService() error {
	s, err := service.New(NewRelayService(), ServiceConfig())
	if err != nil {
		return fmt.Errorf("creating service: %w", err)
	}

	if err := s.Start(); err != nil {
		return fmt.Errorf("starting service: %w", err)
	}

	fmt.Println("Service started successfully!")
	return nil
}

// StopService stops the relay service.
func StopService() error {
	s, err := service.New(NewRelayService(), ServiceConfig())
	if err != nil {
		return fmt.Errorf("creating service: %w", err)
	}

	if err := s.Stop(); err != nil {
		return fmt.Errorf("stopping service: %w", err)
	}

	fmt.Println("Service stopped successfully!")
	return nil
}

// RestartService restarts the relay service.
func RestartService() error {
	s, err := service.New(NewRelayService(), ServiceConfig())
	if err != nil {
		return fmt.Errorf("creating service: %w", err)
	}

	if err := s.Restart(); err != nil {
		return fmt.Errorf("restarting service: %w", err)
	}

	fmt.Println("Service restarted successfully!")
	return nil
}

// StatusService checks the status of the relay service.
func StatusService() error {
	s, err := service.New(NewRelayService(), ServiceConfig())
	if err != nil {
		return fmt.Errorf("creating service: %w", err)
	}

	status, err := s.Status()
	if err != nil {
		return fmt.Errorf("getting service status: %w", err)
	}

	statusStr := "Unknown"
	switch status {
	case service.StatusRunning:
		statusStr = "Running"
	case service.StatusStopped:
		statusStr = "Stopped"
	case service.StatusUnknown:
		statusStr = "Unknown"
	}

	fmt.Printf("Service Status: %s\n", statusStr)
	return nil
}

// RunService runs the relay service under the service manager.
func RunService() error {
	svcConfig := ServiceConfig()
	prg := NewRelayService()

	s, err := service.New(prg, svcConfig)
	if err != nil {
		return fmt.Errorf("creating service: %w", err)
	}

	logger, err := s.Logger(nil)
	if err != nil {
		return fmt.Errorf("creating service logger: %w", err)
	}
	prg.logger = logger

	if err := s.Run(); err != nil {
		logger.Error(err)
		return err
	}

	return nil
}
