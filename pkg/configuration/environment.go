package configuration

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
)

const Production = "production"

var singleton = sync.OnceValue(func() *Configuration {
	c := &Configuration{}
	if err := c.load([]string{".env", ".env.local"}); err != nil {
		panic(err)
	}
	return c
})

// LoadEnv loads the env files that exist, searching the working directory and
// then the nearest directory containing go.mod.
func LoadEnv(envFiles []string) (int, error) {
	existing := make([]string, 0, len(envFiles))
	for _, file := range envFiles {
		if fileExists(file) {
			existing = append(existing, file)
		}
	}
	if len(existing) == 0 {
		if root, ok := findModuleRoot(); ok {
			for _, file := range envFiles {
				candidate := filepath.Join(root, file)
				if fileExists(candidate) {
					existing = append(existing, candidate)
				}
			}
		}
	}
	if len(existing) == 0 {
		return 0, nil
	}
	return len(existing), godotenv.Load(existing...)
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

func findModuleRoot() (string, bool) {
	dir, err := os.Getwd()
	if err != nil {
		return "", false
	}
	for {
		if fileExists(filepath.Join(dir, "go.mod")) {
			return dir, true
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return "", false
		}
		dir = parent
	}
}

type DatabaseOptions struct {
	Opts     string `env:"-"`
	Name     string `env:"DB_NAME" envDefault:"payroll"`
	Host     string `env:"DB_HOST" envDefault:"localhost"`
	Port     string `env:"DB_PORT" envDefault:"5432"`
	User     string `env:"DB_USER" envDefault:"postgres"`
	Password string `env:"DB_PASSWORD" envDefault:"postgres"`
	// Statement timeout set on every payroll transaction; the only
	// cancellation contract payroll operations have.
	StatementTimeout time.Duration `env:"DB_STATEMENT_TIMEOUT" envDefault:"30s"`
	// Bounds waits on run and liability row locks.
	LockTimeout time.Duration `env:"DB_LOCK_TIMEOUT" envDefault:"5s"`
	MaxConns    int32         `env:"DB_MAX_CONNS" envDefault:"10"`
}

func (d *DatabaseOptions) ConnectionString() string {
	return fmt.Sprintf(
		"host=%s port=%s user=%s dbname=%s password=%s sslmode=disable",
		d.Host, d.Port, d.User, d.Name, d.Password,
	)
}

type PrometheusOptions struct {
	Enabled bool   `env:"PROMETHEUS_METRICS_ENABLED" envDefault:"false"`
	Path    string `env:"PROMETHEUS_METRICS_PATH" envDefault:"/debug/prometheus"`
}

type AuthzOptions struct {
	PolicyPath string `env:"AUTHZ_POLICY_PATH" envDefault:"config/access/payroll_scope_policy.csv"`
	Mode       string `env:"AUTHZ_MODE" envDefault:"enforce"`
}

type OutboxOptions struct {
	RelayEnabled      bool          `env:"OUTBOX_RELAY_ENABLED" envDefault:"true"`
	RelayPollInterval time.Duration `env:"OUTBOX_RELAY_POLL_INTERVAL" envDefault:"1s"`
	RelayBatchSize    int           `env:"OUTBOX_RELAY_BATCH_SIZE" envDefault:"100"`
	RelayLockTTL      time.Duration `env:"OUTBOX_RELAY_LOCK_TTL" envDefault:"60s"`
	RelayMaxAttempts  int           `env:"OUTBOX_RELAY_MAX_ATTEMPTS" envDefault:"25"`

	LastErrorMaxBytes int `env:"OUTBOX_LAST_ERROR_MAX_BYTES" envDefault:"2048"`
}

type OpsGuardOptions struct {
	Enabled       bool   `env:"OPS_GUARD_ENABLED" envDefault:"true"`
	CIDRs         string `env:"OPS_GUARD_CIDRS"`
	Token         string `env:"OPS_GUARD_TOKEN"`
	BasicAuthUser string `env:"OPS_GUARD_BASIC_AUTH_USER"`
	BasicAuthPass string `env:"OPS_GUARD_BASIC_AUTH_PASS"`
}

type OpenTelemetryOptions struct {
	Enabled     bool   `env:"OTEL_ENABLED" envDefault:"false"`
	ServiceName string `env:"OTEL_SERVICE_NAME" envDefault:"payroll-ledger"`
	// OTLP/HTTP collector, host:port.
	CollectorEndpoint string `env:"OTEL_EXPORTER_OTLP_ENDPOINT" envDefault:"localhost:4318"`
}

type PayrollOptions struct {
	// Lets a PAID batch line settle a liability without bank evidence.
	AllowEvidenceFreeSettlement bool `env:"PAYROLL_ALLOW_EVIDENCE_FREE_SETTLEMENT" envDefault:"false"`
	SettlementSyncLimit         int  `env:"PAYROLL_SETTLEMENT_SYNC_LIMIT" envDefault:"500"`
	// Journal book code used for accrual postings when a legal entity has several books.
	DefaultBookType string `env:"PAYROLL_BOOK_TYPE" envDefault:"LOCAL"`
	// Reviewer must differ from the importing user.
	MakerChecker bool `env:"PAYROLL_MAKER_CHECKER" envDefault:"false"`
}

type Configuration struct {
	Database   DatabaseOptions
	Prometheus PrometheusOptions
	Authz      AuthzOptions
	Outbox     OutboxOptions
	Payroll    PayrollOptions

	OpsGuard      OpsGuardOptions
	OpenTelemetry OpenTelemetryOptions

	MigrationsDir    string `env:"MIGRATIONS_DIR" envDefault:"migrations"`
	ServerPort       int    `env:"PORT" envDefault:"3200"`
	GoAppEnvironment string `env:"GO_APP_ENV" envDefault:"development"`
	SocketAddress    string `env:"-"`
	LogLevel         string `env:"LOG_LEVEL" envDefault:"error"`
	// SDK will look for this header in the request, if it's not present, it will generate a random uuidv4
	RequestIDHeader string `env:"REQUEST_ID_HEADER" envDefault:"X-Request-ID"`
	RealIPHeader    string `env:"REAL_IP_HEADER" envDefault:"X-Real-IP"`
	// Identity headers set by the authenticating gateway in front of the API.
	TenantIDHeader string `env:"TENANT_ID_HEADER" envDefault:"X-Tenant-ID"`
	UserIDHeader   string `env:"USER_ID_HEADER" envDefault:"X-User-ID"`
	// Route classes per entrypoint; see config/routing/allowlist.yaml.
	RoutingAllowlistPath string `env:"ROUTING_ALLOWLIST_PATH" envDefault:"config/routing/allowlist.yaml"`

	// RLS enforcement mode (disabled/enforce).
	RLSEnforce string `env:"RLS_ENFORCE" envDefault:"disabled"`

	logger *logrus.Logger
}

func (c *Configuration) Logger() *logrus.Logger {
	return c.logger
}

func (c *Configuration) LogrusLogLevel() logrus.Level {
	switch c.LogLevel {
	case "silent":
		return logrus.PanicLevel
	case "error":
		return logrus.ErrorLevel
	case "warn":
		return logrus.WarnLevel
	case "info":
		return logrus.InfoLevel
	case "debug":
		return logrus.DebugLevel
	default:
		return logrus.ErrorLevel
	}
}

func Use() *Configuration {
	return singleton()
}

func (c *Configuration) load(envFiles []string) error {
	n, err := LoadEnv(envFiles)
	if err != nil {
		return err
	}
	if n == 0 {
		wd, _ := os.Getwd()
		log.Println("No .env files found. Tried:")
		for _, file := range envFiles {
			log.Println(filepath.Join(wd, file))
		}
	}
	return c.parse()
}

func (c *Configuration) parse() error {
	if err := env.Parse(c); err != nil {
		return err
	}
	if err := c.validateRLS(); err != nil {
		return err
	}
	if err := c.validateAuthz(); err != nil {
		return err
	}
	if c.Payroll.SettlementSyncLimit <= 0 {
		return fmt.Errorf("invalid PAYROLL_SETTLEMENT_SYNC_LIMIT=%d (expected > 0)", c.Payroll.SettlementSyncLimit)
	}

	c.logger = newLogger(c.LogrusLogLevel(), c.GoAppEnvironment == Production)

	c.Database.Opts = c.Database.ConnectionString()
	if c.GoAppEnvironment == Production {
		c.SocketAddress = fmt.Sprintf(":%d", c.ServerPort)
	} else {
		c.SocketAddress = fmt.Sprintf("localhost:%d", c.ServerPort)
	}
	return nil
}

func newLogger(level logrus.Level, jsonFormat bool) *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(level)
	logger.SetOutput(os.Stdout)
	if jsonFormat {
		logger.SetFormatter(&logrus.JSONFormatter{})
	} else {
		logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}
	return logger
}

func (c *Configuration) validateRLS() error {
	mode := strings.ToLower(strings.TrimSpace(c.RLSEnforce))
	if mode == "" {
		mode = "disabled"
	}
	switch mode {
	case "disabled", "enforce":
	default:
		return fmt.Errorf("invalid RLS_ENFORCE=%q (expected disabled|enforce)", c.RLSEnforce)
	}

	if mode == "enforce" && strings.EqualFold(strings.TrimSpace(c.Database.User), "postgres") {
		return fmt.Errorf("RLS_ENFORCE=enforce requires a non-superuser DB_USER (postgres will bypass RLS)")
	}

	c.RLSEnforce = mode
	return nil
}

func (c *Configuration) validateAuthz() error {
	mode := strings.ToLower(strings.TrimSpace(c.Authz.Mode))
	switch mode {
	case "disabled", "shadow", "enforce":
	default:
		return fmt.Errorf("invalid AUTHZ_MODE=%q (expected disabled|shadow|enforce)", c.Authz.Mode)
	}
	c.Authz.Mode = mode
	return nil
}
