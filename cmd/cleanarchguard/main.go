// Command cleanarchguard checks that module packages only import inward:
// presentation and infrastructure may depend on services and domain, services
// only on domain, and domain on nothing inside the module.
package main

import (
	"errors"
	"flag"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/roblaszczak/go-cleanarch/cleanarch"
	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
)

type config struct {
	Version           int      `yaml:"version"`
	Root              string   `yaml:"root"`
	IgnoreTests       bool     `yaml:"ignore_tests"`
	IgnorePackages    []string `yaml:"ignore_packages"`
	SharedModules     []string `yaml:"shared_modules"`
	AllowedViolations []string `yaml:"allow_violations"`
	Aliases           struct {
		Domain         []string `yaml:"domain"`
		Application    []string `yaml:"application"`
		Interfaces     []string `yaml:"interfaces"`
		Infrastructure []string `yaml:"infrastructure"`
	} `yaml:"aliases"`
}

func main() {
	var (
		configPath = flag.String("config", ".gocleanarch.yml", "path to the layer configuration")
		debug      = flag.Bool("debug", false, "enable go-cleanarch debug output")
	)
	flag.Parse()

	log := logrus.New()
	log.SetFormatter(&logrus.TextFormatter{DisableTimestamp: true})

	cfg, err := loadConfig(*configPath)
	if err != nil {
		log.WithError(err).Fatal("load config")
	}
	root, err := resolveRoot(cfg.Root)
	if err != nil {
		log.WithError(err).Fatal("resolve root")
	}

	if *debug {
		cleanarch.Log.SetOutput(os.Stderr)
	}
	validator := cleanarch.NewValidator(layerAliases(cfg))
	ok, errs, err := validator.Validate(root, cfg.IgnoreTests, cfg.IgnorePackages)
	if err != nil {
		log.WithError(err).Fatal("go-cleanarch failed")
	}

	filtered := filterValidationErrors(errs, cfg)
	if !ok && len(filtered) > 0 {
		for _, validationErr := range filtered {
			log.Error(validationErr.Error())
		}
		log.WithField("violations", len(filtered)).Error("layer check failed")
		os.Exit(1)
	}
	log.Info("layer check passed")
}

func loadConfig(path string) (*config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return parseConfig(data)
}

func parseConfig(data []byte) (*config, error) {
	cfg := &config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}
	if cfg.Root == "" {
		cfg.Root = "."
	}
	return cfg, nil
}

func resolveRoot(root string) (string, error) {
	if root == "" {
		return "", errors.New("root must not be empty")
	}
	return filepath.Abs(root)
}

var (
	defaultDomainAliases         = []string{"domain"}
	defaultApplicationAliases    = []string{"services"}
	defaultInterfacesAliases     = []string{"presentation"}
	defaultInfrastructureAliases = []string{"infrastructure"}
)

func layerAliases(cfg *config) map[string]cleanarch.Layer {
	aliases := map[string]cleanarch.Layer{}
	applyAliases(aliases, cfg.Aliases.Domain, defaultDomainAliases, cleanarch.LayerDomain)
	applyAliases(aliases, cfg.Aliases.Application, defaultApplicationAliases, cleanarch.LayerApplication)
	applyAliases(aliases, cfg.Aliases.Interfaces, defaultInterfacesAliases, cleanarch.LayerInterfaces)
	applyAliases(aliases, cfg.Aliases.Infrastructure, defaultInfrastructureAliases, cleanarch.LayerInfrastructure)
	return aliases
}

func applyAliases(dst map[string]cleanarch.Layer, custom []string, defaults []string, layer cleanarch.Layer) {
	candidates := defaults
	if len(custom) > 0 {
		candidates = custom
	}
	for _, alias := range candidates {
		if alias == "" {
			continue
		}
		dst[alias] = layer
	}
}

var crossModulePattern = regexp.MustCompile(`between ([\w-]+) and ([\w-]+) modules`)

func filterValidationErrors(errs []cleanarch.ValidationError, cfg *config) []cleanarch.ValidationError {
	if len(errs) == 0 {
		return nil
	}

	shared := make(map[string]struct{}, len(cfg.SharedModules))
	for _, module := range cfg.SharedModules {
		if module = strings.TrimSpace(module); module != "" {
			shared[module] = struct{}{}
		}
	}

	filtered := make([]cleanarch.ValidationError, 0, len(errs))
	for _, validationErr := range errs {
		msg := validationErr.Error()
		if skipCrossModule(msg, shared) || containsAllowedPattern(msg, cfg.AllowedViolations) {
			continue
		}
		filtered = append(filtered, validationErr)
	}
	return filtered
}

func skipCrossModule(msg string, shared map[string]struct{}) bool {
	if len(shared) == 0 {
		return false
	}
	matches := crossModulePattern.FindStringSubmatch(msg)
	if len(matches) != 3 {
		return false
	}
	_, first := shared[matches[1]]
	_, second := shared[matches[2]]
	return first || second
}

func containsAllowedPattern(msg string, patterns []string) bool {
	for _, pattern := range patterns {
		if pattern != "" && strings.Contains(msg, pattern) {
			return true
		}
	}
	return false
}
