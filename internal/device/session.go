package device

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"apimonitor/internal/auth"
	"apimonitor/internal/config"
	"apimonitor/internal/discovery"
	"apimonitor/internal/tokenstore"
)

// Result is what one session hands to configuration generators
type Result struct {
	Device     string               `json:"device"`
	Structure  *discovery.Structure `json:"structure"`
	AuthFailed bool                 `json:"auth_failed,omitempty"`
	AuthError  string               `json:"auth_error,omitempty"`
}

// Session ties one device configuration to one credential manager and one
// discovery invocation. It is the unit of work per device per cycle.
type Session struct {
	device  *config.Device
	store   *tokenstore.Store
	timeout time.Duration
	log     zerolog.Logger
}

// NewSession creates a discovery session for one device
func NewSession(device *config.Device, store *tokenstore.Store, timeout time.Duration, log zerolog.Logger) *Session {
	return &Session{
		device:  device,
		store:   store,
		timeout: timeout,
		log:     log.With().Str("device", device.Name).Logger(),
	}
}

// Run establishes authentication, then discovers the device's API structure.
// Authentication always completes (with success or a recorded failure) before
// any discovery traffic is sent.
func (s *Session) Run(ctx context.Context) Result {
	s.log.Info().Msg("processing device")

	mgr := auth.NewManager(s.device, s.store, s.timeout, s.log)
	structure := discovery.Discover(ctx, s.device, mgr, s.log)

	failed, detail := mgr.Failed()
	return Result{
		Device:     s.device.Name,
		Structure:  structure,
		AuthFailed: failed,
		AuthError:  detail,
	}
}
