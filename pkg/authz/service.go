package authz

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/casbin/casbin/v2"
	"github.com/casbin/casbin/v2/model"
	fileadapter "github.com/casbin/casbin/v2/persist/file-adapter"
	"github.com/sirupsen/logrus"
)

// Service provides helpers for enforcing authorization decisions.
type Service struct {
	cfg      Config
	enforcer *casbin.Enforcer
	logger   *logrus.Entry
	mu       sync.RWMutex
}

// NewService constructs a Service with the provided config.
func NewService(cfg Config) (*Service, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	cfg = cfg.normalized()

	var logger *logrus.Entry
	if cfg.Logger != nil {
		logger = cfg.Logger.WithField("component", "authz")
	} else {
		logger = logrus.WithField("component", "authz")
	}

	m, err := model.NewModelFromString(cfg.ModelText)
	if err != nil {
		return nil, fmt.Errorf("authz: invalid model: %w", err)
	}
	enf, err := casbin.NewEnforcer(m, fileadapter.NewAdapter(cfg.PolicyPath))
	if err != nil {
		return nil, fmt.Errorf("authz: failed to initialize enforcer: %w", err)
	}
	if err := enf.LoadPolicy(); err != nil {
		return nil, fmt.Errorf("authz: failed to load policies: %w", err)
	}

	return &Service{
		cfg:      cfg,
		enforcer: enf,
		logger:   logger,
	}, nil
}

func (s *Service) Mode() Mode {
	return s.cfg.Mode
}

// Authorize returns an error if the request is denied.
func (s *Service) Authorize(ctx context.Context, req Request) error {
	switch s.cfg.Mode {
	case ModeDisabled:
		return nil
	case ModeShadow:
		allowed, err := s.Check(ctx, req)
		if err != nil {
			return err
		}
		if !allowed {
			s.logger.WithContext(ctx).WithFields(logrus.Fields{
				"subject": req.Subject,
				"domain":  req.Domain,
				"object":  req.Object,
				"action":  req.Action,
				"mode":    ModeShadow,
			}).Warn("authz shadow deny")
		}
		return nil
	default:
		allowed, err := s.Check(ctx, req)
		if err != nil {
			return err
		}
		if !allowed {
			return &ForbiddenError{Request: req}
		}
		return nil
	}
}

// Check evaluates the request without applying the mode.
func (s *Service) Check(_ context.Context, req Request) (bool, error) {
	start := time.Now()
	s.mu.RLock()
	allowed, err := s.enforcer.Enforce(req.Subject, req.Domain, req.Object, req.Action)
	s.mu.RUnlock()
	if err != nil {
		return false, fmt.Errorf("authz: enforce failed: %w", err)
	}
	recordDecision(s.cfg.Mode, allowed, time.Since(start))
	return allowed, nil
}

// ReloadPolicy re-reads the policy file.
func (s *Service) ReloadPolicy() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enforcer.LoadPolicy(); err != nil {
		return fmt.Errorf("authz: reload failed: %w", err)
	}
	return nil
}
