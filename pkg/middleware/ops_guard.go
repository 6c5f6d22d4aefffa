package middleware

import (
	"crypto/subtle"
	"net"
	"net/http"
	"net/netip"
	"strings"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/sirupsen/logrus"

	"github.com/iota-uz/payroll-ledger/pkg/composables"
	"github.com/iota-uz/payroll-ledger/pkg/configuration"
	"github.com/iota-uz/payroll-ledger/pkg/routing"
)

var opsGuardDecisions = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "payroll",
	Subsystem: "ops_guard",
	Name:      "decisions_total",
	Help:      "Ops route requests seen by the guard, by credential kind (denied when none matched).",
}, []string{"credential"})

const (
	credentialNetwork = "network"
	credentialToken   = "token"
	credentialBasic   = "basic"
	credentialDenied  = "denied"
)

// opsGuard hides the ledger's ops routes (health, metrics) in production.
// Callers pass when they come from an allowed network, present the ops token,
// or present the ops basic auth pair. Everyone else gets a plain 404.
type opsGuard struct {
	conf       *configuration.Configuration
	classifier *routing.Classifier
	networks   []netip.Prefix
	log        *logrus.Logger
}

func OpsGuard(conf *configuration.Configuration, entrypoint string) mux.MiddlewareFunc {
	if conf == nil {
		conf = configuration.Use()
	}
	log := conf.Logger()
	if log == nil {
		log = logrus.StandardLogger()
	}
	rules, err := routing.LoadAllowlist(conf.RoutingAllowlistPath, entrypoint)
	if err != nil {
		log.WithError(err).WithField("entrypoint", entrypoint).Warn("ops guard: allowlist unavailable, no route is treated as ops")
		rules = nil
	}
	networks, rejected := parseNetworks(conf.OpsGuard.CIDRs)
	if len(rejected) > 0 {
		log.WithField("rejected", rejected).Warn("ops guard: ignoring malformed OPS_GUARD_CIDRS entries")
	}
	g := &opsGuard{
		conf:       conf,
		classifier: routing.NewClassifier(rules),
		networks:   networks,
		log:        log,
	}
	return g.middleware
}

func (g *opsGuard) active() bool {
	return g.conf.GoAppEnvironment == configuration.Production && g.conf.OpsGuard.Enabled
}

func (g *opsGuard) middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !g.active() || g.classifier.ClassifyPath(r.URL.Path) != routing.RouteClassOps {
			next.ServeHTTP(w, r)
			return
		}

		credential := g.credential(r)
		opsGuardDecisions.WithLabelValues(credential).Inc()
		if credential != credentialDenied {
			next.ServeHTTP(w, r)
			return
		}

		g.logger(r).WithFields(logrus.Fields{
			"path":      r.URL.Path,
			"remote_ip": clientAddr(r, g.conf.RealIPHeader).String(),
		}).Warn("ops guard: request denied")
		http.NotFound(w, r)
	})
}

func (g *opsGuard) logger(r *http.Request) *logrus.Entry {
	if entry := composables.UseLogger(r.Context()); entry != nil {
		return entry
	}
	return logrus.NewEntry(g.log)
}

// credential reports which configured credential the request satisfies.
func (g *opsGuard) credential(r *http.Request) string {
	if addr := clientAddr(r, g.conf.RealIPHeader); addr.IsValid() {
		for _, p := range g.networks {
			if p.Contains(addr) {
				return credentialNetwork
			}
		}
	}

	opts := g.conf.OpsGuard
	if token := strings.TrimSpace(opts.Token); token != "" && secretEqual(opsToken(r), token) {
		return credentialToken
	}

	if strings.TrimSpace(opts.BasicAuthUser) != "" || strings.TrimSpace(opts.BasicAuthPass) != "" {
		if u, p, ok := r.BasicAuth(); ok && secretEqual(u, opts.BasicAuthUser) && secretEqual(p, opts.BasicAuthPass) {
			return credentialBasic
		}
	}
	return credentialDenied
}

func secretEqual(got, want string) bool {
	return subtle.ConstantTimeCompare([]byte(got), []byte(want)) == 1
}

// parseNetworks accepts CIDRs separated by commas, semicolons or whitespace.
// A bare address is treated as a single-host prefix.
func parseNetworks(raw string) (networks []netip.Prefix, rejected []string) {
	fields := strings.FieldsFunc(raw, func(r rune) bool {
		return r == ',' || r == ';' || r == ' ' || r == '\n' || r == '\t'
	})
	for _, field := range fields {
		if p, err := netip.ParsePrefix(field); err == nil {
			networks = append(networks, p.Masked())
			continue
		}
		if addr, err := netip.ParseAddr(field); err == nil {
			networks = append(networks, netip.PrefixFrom(addr, addr.BitLen()))
			continue
		}
		rejected = append(rejected, field)
	}
	return networks, rejected
}

// opsToken reads the token from X-Ops-Token or a bearer Authorization header.
func opsToken(r *http.Request) string {
	if t := strings.TrimSpace(r.Header.Get("X-Ops-Token")); t != "" {
		return t
	}
	scheme, token, ok := strings.Cut(strings.TrimSpace(r.Header.Get("Authorization")), " ")
	if !ok || !strings.EqualFold(scheme, "bearer") {
		return ""
	}
	return strings.TrimSpace(token)
}

// clientAddr resolves the caller, preferring the first hop of the configured
// proxy header over the socket peer.
func clientAddr(r *http.Request, header string) netip.Addr {
	raw := r.RemoteAddr
	if header != "" {
		if v := strings.TrimSpace(r.Header.Get(header)); v != "" {
			raw, _, _ = strings.Cut(v, ",")
		}
	}
	raw = strings.TrimSpace(raw)
	if host, _, err := net.SplitHostPort(raw); err == nil {
		raw = host
	}
	addr, err := netip.ParseAddr(raw)
	if err != nil {
		return netip.Addr{}
	}
	return addr.Unmap()
}
