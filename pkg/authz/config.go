package authz

import (
	"path/filepath"

	"github.com/sirupsen/logrus"

	"github.com/iota-uz/payroll-ledger/pkg/configuration"
)

// Config captures all inputs necessary to initialize the Casbin enforcer.
type Config struct {
	// ModelText overrides the built-in scope model when non-empty.
	ModelText  string
	PolicyPath string
	Mode       Mode
	Logger     *logrus.Logger
}

func (c Config) validate() error {
	if c.PolicyPath == "" {
		return configError("missing policy path")
	}
	return nil
}

func (c Config) normalized() Config {
	c.PolicyPath = filepath.Clean(c.PolicyPath)
	c.Mode = sanitizeMode(c.Mode)
	if c.ModelText == "" {
		c.ModelText = scopeModel
	}
	return c
}

// DefaultConfig builds a Config using the global configuration singleton.
func DefaultConfig() Config {
	cfg := configuration.Use()
	return Config{
		PolicyPath: cfg.Authz.PolicyPath,
		Mode:       Mode(cfg.Authz.Mode),
		Logger:     cfg.Logger(),
	}
}

// scopeModel grants subjects actions on scoped objects within a tenant
// domain; "*" domain and keyMatch objects allow wildcard grants.
const scopeModel = `
[request_definition]
r = sub, dom, obj, act

[policy_definition]
p = sub, dom, obj, act

[role_definition]
g = _, _, _

[policy_effect]
e = some(where (p.eft == allow))

[matchers]
m = g(r.sub, p.sub, r.dom) && (p.dom == "*" || r.dom == p.dom) && keyMatch(r.obj, p.obj) && (p.act == "*" || r.act == p.act)
`
