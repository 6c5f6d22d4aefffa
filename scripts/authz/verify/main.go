// Command verify replays a YAML fixture of expected decisions against the
// legal-entity scope policy and exits non-zero on any mismatch.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/iota-uz/payroll-ledger/pkg/authz"
)

type fixtureCase struct {
	Subject string `yaml:"subject"`
	Domain  string `yaml:"domain"`
	Object  string `yaml:"object"`
	Action  string `yaml:"action"`
	Allowed bool   `yaml:"allowed"`
	Note    string `yaml:"note,omitempty"`
}

type mismatch struct {
	Subject  string `json:"subject"`
	Domain   string `json:"domain"`
	Object   string `json:"object"`
	Action   string `json:"action"`
	Expected bool   `json:"expected"`
	Casbin   bool   `json:"casbin"`
	Reason   string `json:"reason"`
}

type checker interface {
	Check(ctx context.Context, req authz.Request) (bool, error)
}

func main() {
	var (
		policyPath   = flag.String("policy", "", "policy CSV (defaults to AUTHZ_POLICY_PATH)")
		fixturesPath = flag.String("fixtures", "config/access/payroll_scope_fixtures.yaml", "YAML fixture file")
		emitMetrics  = flag.Bool("emit-metrics", false, "print totals as JSON")
	)
	flag.Parse()

	cfg := authz.DefaultConfig()
	if *policyPath != "" {
		cfg.PolicyPath = *policyPath
	}
	svc, err := authz.NewService(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load policy: %v\n", err)
		os.Exit(1)
	}
	fixtures, err := loadFixtures(*fixturesPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load fixtures: %v\n", err)
		os.Exit(1)
	}

	mismatches := verify(context.Background(), svc, fixtures)
	if *emitMetrics {
		payload, err := json.Marshal(map[string]any{
			"total_checked": len(fixtures),
			"mismatches":    len(mismatches),
		})
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to marshal metrics: %v\n", err)
			os.Exit(1)
		}
		fmt.Fprintf(os.Stdout, "%s\n", payload)
	}
	if len(mismatches) > 0 {
		for _, diff := range mismatches {
			fmt.Fprintf(os.Stderr, "mismatch: %+v\n", diff)
		}
		os.Exit(1)
	}
	fmt.Fprintf(os.Stdout, "policy ok: checked %d decisions\n", len(fixtures))
}

func loadFixtures(path string) ([]fixtureCase, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var fixtures []fixtureCase
	if err := yaml.Unmarshal(data, &fixtures); err != nil {
		return nil, fmt.Errorf("parse fixtures: %w", err)
	}
	return fixtures, nil
}

func verify(ctx context.Context, svc checker, fixtures []fixtureCase) []mismatch {
	var out []mismatch
	for _, fx := range fixtures {
		req := authz.NewRequest(fx.Subject, fx.Domain, fx.Object, fx.Action)
		allowed, err := svc.Check(ctx, req)
		m := mismatch{
			Subject:  req.Subject,
			Domain:   req.Domain,
			Object:   req.Object,
			Action:   req.Action,
			Expected: fx.Allowed,
			Casbin:   allowed,
		}
		switch {
		case err != nil:
			m.Reason = err.Error()
		case allowed != fx.Allowed:
			m.Reason = "decision mismatch"
			if fx.Note != "" {
				m.Reason += ": " + fx.Note
			}
		default:
			continue
		}
		out = append(out, m)
	}
	return out
}
