package config

import (
	"context"
	"database/sql"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/viper"
	"github.com/urfave/cli/v2"

	"github.com/rl1809/kitties/internal/adapter/auth"
	"github.com/rl1809/kitties/internal/adapter/clock"
	"github.com/rl1809/kitties/internal/adapter/notifier"
	"github.com/rl1809/kitties/internal/adapter/storage"
	"github.com/rl1809/kitties/internal/core/ledger"
	"github.com/rl1809/kitties/internal/core/service"
	"github.com/rl1809/kitties/internal/port"
)

const (
	envPrefix = "KITTIES"

	defaultDatadir             = "./data"
	defaultLogLevel            = 4
	DefaultHTTPPort            = 8080
	DefaultGRPCPort            = 50051
	defaultStoreType           = "badger"
	defaultRedisTxNumOfRetries = 10
	defaultMySQLDSN            = "root:root@tcp(localhost:3306)/kitties"
	rootKeyFile                = "macaroon.key"
)

var (
	supportedStores = supportedType{
		"memory":   {},
		"badger":   {},
		"sqlite":   {},
		"mysql":    {},
		"postgres": {},
		"redis":    {},
	}

	// envReplacer maps a flag like `--my-param` to the variable `KITTIES_MY_PARAM`.
	envReplacer = strings.NewReplacer("-", "_")
)

var (
	ConfigFile = &cli.StringFlag{
		Usage: "Optional config file (yaml, toml or json); flags and env vars take precedence",
		Name:  "config", EnvVars: env("CONFIG"),
	}
	Datadir = &cli.StringFlag{
		Usage: "Directory to store data",
		Name:  "datadir", EnvVars: env("DATADIR"),
		Value: defaultDatadir,
	}
	LogLevel = &cli.IntFlag{
		Usage: "Logging level (0-6, where 6 is trace)",
		Name:  "log-level", EnvVars: env("LOG_LEVEL"),
		Value: defaultLogLevel,
	}
	HTTPPort = &cli.UintFlag{
		Usage: "Port of the HTTP API",
		Name:  "http-port", EnvVars: env("HTTP_PORT"),
		Value: DefaultHTTPPort,
	}
	GRPCPort = &cli.UintFlag{
		Usage: "Port of the gRPC API",
		Name:  "grpc-port", EnvVars: env("GRPC_PORT"),
		Value: DefaultGRPCPort,
	}
	StoreType = &cli.StringFlag{
		Usage: "Ledger store type (memory, badger, sqlite, mysql, postgres, redis)",
		Name:  "store-type", EnvVars: env("STORE_TYPE"),
		Value: defaultStoreType,
	}
	RedisURL = &cli.StringFlag{
		Usage: "Redis url, used by the redis store and the event publisher",
		Name:  "redis-url", EnvVars: env("REDIS_URL"),
	}
	RedisTxNumOfRetries = &cli.IntFlag{
		Usage: "Max attempts of a conflicting redis transaction",
		Name:  "redis-tx-num-of-retries", EnvVars: env("REDIS_TX_NUM_OF_RETRIES"),
		Value: defaultRedisTxNumOfRetries,
	}
	MySQLDSN = &cli.StringFlag{
		Usage: "MySQL dsn if the store type is mysql",
		Name:  "mysql-dsn", EnvVars: env("MYSQL_DSN"),
		Value: defaultMySQLDSN,
	}
	PostgresURL = &cli.StringFlag{
		Usage: "Postgres connection url if the store type is postgres",
		Name:  "postgres-url", EnvVars: env("POSTGRES_URL"),
	}
	SQLitePath = &cli.StringFlag{
		Usage: "SQLite database file, defaults to <datadir>/kitties.db",
		Name:  "sqlite-path", EnvVars: env("SQLITE_PATH"),
	}
	EventsChannel = &cli.StringFlag{
		Usage: "Redis pub/sub channel to publish ledger events on",
		Name:  "events-channel", EnvVars: env("EVENTS_CHANNEL"),
	}
	NoAuth = &cli.BoolFlag{
		Usage: "Trust the declared account instead of requiring a macaroon (development only)",
		Name:  "no-auth", EnvVars: env("NO_AUTH"),
	}
	MacaroonRootKey = &cli.StringFlag{
		Usage: "Hex encoded macaroon root key, defaults to a key generated in the datadir",
		Name:  "macaroon-root-key", EnvVars: env("MACAROON_ROOT_KEY"),
	}
	MaxKittiesPerOwner = &cli.IntFlag{
		Usage: "Max number of kitties a single account can hold",
		Name:  "max-kitties-per-owner", EnvVars: env("MAX_KITTIES_PER_OWNER"),
		Value: ledger.DefaultCapacity,
	}
	CORSAllowedOrigins = &cli.StringSliceFlag{
		Usage: "Origins allowed to call the HTTP API",
		Name:  "cors-allowed-origins", EnvVars: env("CORS_ALLOWED_ORIGINS"),
	}

	Flags = []cli.Flag{
		ConfigFile, Datadir, LogLevel, HTTPPort, GRPCPort, StoreType, RedisURL,
		RedisTxNumOfRetries, MySQLDSN, PostgresURL, SQLitePath, EventsChannel, NoAuth,
		MacaroonRootKey, MaxKittiesPerOwner, CORSAllowedOrigins,
	}
)

type Config struct {
	Datadir             string
	LogLevel            int
	HTTPPort            uint32
	GRPCPort            uint32
	StoreType           string
	RedisURL            string
	RedisTxNumOfRetries int
	MySQLDSN            string
	PostgresURL         string
	SQLitePath          string
	EventsChannel       string
	NoAuth              bool
	MacaroonRootKey     string
	MaxKittiesPerOwner  int
	CORSAllowedOrigins  []string

	rdb      *redis.Client
	store    port.KVStore
	auth     port.Authenticator
	macaroon *auth.MacaroonAuthenticator
	broker   *notifier.Broker
	svc      *service.RegistryService
}

// LoadConfig resolves every setting with precedence flag > env > config file > default.
func LoadConfig(c *cli.Context) (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix(envPrefix)
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(envReplacer)

	for _, flag := range Flags {
		name := flag.Names()[0]
		if name == CORSAllowedOrigins.Name {
			continue
		}
		if c.IsSet(name) {
			v.Set(name, c.Value(name))
		} else {
			v.SetDefault(name, c.Value(name))
		}
	}

	if path := v.GetString(ConfigFile.Name); path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
	}

	datadir := v.GetString(Datadir.Name)
	if err := makeDirectoryIfNotExists(datadir); err != nil {
		return nil, fmt.Errorf("failed to create datadir: %w", err)
	}

	corsOrigins := c.StringSlice(CORSAllowedOrigins.Name)
	if len(corsOrigins) == 0 {
		corsOrigins = v.GetStringSlice(CORSAllowedOrigins.Name)
	}

	sqlitePath := v.GetString(SQLitePath.Name)
	if sqlitePath == "" {
		sqlitePath = filepath.Join(datadir, "kitties.db")
	}

	return &Config{
		Datadir:             datadir,
		LogLevel:            v.GetInt(LogLevel.Name),
		HTTPPort:            v.GetUint32(HTTPPort.Name),
		GRPCPort:            v.GetUint32(GRPCPort.Name),
		StoreType:           v.GetString(StoreType.Name),
		RedisURL:            v.GetString(RedisURL.Name),
		RedisTxNumOfRetries: v.GetInt(RedisTxNumOfRetries.Name),
		MySQLDSN:            v.GetString(MySQLDSN.Name),
		PostgresURL:         v.GetString(PostgresURL.Name),
		SQLitePath:          sqlitePath,
		EventsChannel:       v.GetString(EventsChannel.Name),
		NoAuth:              v.GetBool(NoAuth.Name),
		MacaroonRootKey:     v.GetString(MacaroonRootKey.Name),
		MaxKittiesPerOwner:  v.GetInt(MaxKittiesPerOwner.Name),
		CORSAllowedOrigins:  corsOrigins,
	}, nil
}

func (c *Config) Validate() error {
	if !supportedStores.supports(c.StoreType) {
		return fmt.Errorf("store type not supported, please select one of: %s", supportedStores)
	}
	if c.StoreType == "redis" && c.RedisURL == "" {
		return fmt.Errorf("store type set to 'redis' but redis url is missing")
	}
	if c.StoreType == "postgres" && c.PostgresURL == "" {
		return fmt.Errorf("store type set to 'postgres' but postgres url is missing")
	}
	if c.StoreType == "mysql" && c.MySQLDSN == "" {
		return fmt.Errorf("store type set to 'mysql' but mysql dsn is missing")
	}
	if c.EventsChannel != "" && c.RedisURL == "" {
		return fmt.Errorf("events channel set but redis url is missing")
	}
	if c.MaxKittiesPerOwner <= 0 {
		return fmt.Errorf("max kitties per owner must be positive")
	}
	if c.HTTPPort == c.GRPCPort {
		return fmt.Errorf("http and grpc ports must differ")
	}
	if c.MacaroonRootKey != "" {
		if _, err := hex.DecodeString(c.MacaroonRootKey); err != nil {
			return fmt.Errorf("invalid macaroon root key: %w", err)
		}
	}
	return nil
}

func (c *Config) RegistryService(ctx context.Context) (*service.RegistryService, error) {
	if c.svc != nil {
		return c.svc, nil
	}

	store, err := c.Store(ctx)
	if err != nil {
		return nil, err
	}
	authenticator, err := c.Authenticator()
	if err != nil {
		return nil, err
	}
	notifiers, err := c.notifier()
	if err != nil {
		return nil, err
	}

	c.svc = service.NewRegistryService(
		store, authenticator, clock.SystemClock{}, notifiers, c.MaxKittiesPerOwner,
	)
	return c.svc, nil
}

func (c *Config) Store(ctx context.Context) (port.KVStore, error) {
	if c.store != nil {
		return c.store, nil
	}

	var store port.KVStore
	var err error
	switch c.StoreType {
	case "memory":
		store = storage.NewMemoryStore()
	case "badger":
		store, err = storage.NewBadgerStore(filepath.Join(c.Datadir, "db"), log.New())
	case "sqlite":
		store, err = storage.NewSQLiteStore(ctx, c.SQLitePath)
	case "mysql":
		var db *sql.DB
		if db, err = openMySQL(c.MySQLDSN); err == nil {
			store, err = newMySQLStore(ctx, db)
		}
	case "postgres":
		store, err = storage.NewPostgresStore(ctx, c.PostgresURL)
	case "redis":
		var rdb *redis.Client
		if rdb, err = c.redisClient(ctx); err == nil {
			store = storage.NewRedisStore(rdb, storage.DefaultRedisKeyPrefix, c.RedisTxNumOfRetries)
		}
	default:
		return nil, fmt.Errorf("unknown store type")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open %s store: %w", c.StoreType, err)
	}

	c.store = store
	return c.store, nil
}

func (c *Config) Authenticator() (port.Authenticator, error) {
	if c.auth != nil {
		return c.auth, nil
	}
	if c.NoAuth {
		log.Warn("authentication disabled, declared accounts are trusted")
		c.auth = auth.NewTrustedAuthenticator()
		return c.auth, nil
	}

	authenticator, err := c.MacaroonAuthenticator()
	if err != nil {
		return nil, err
	}
	c.auth = authenticator
	return c.auth, nil
}

func (c *Config) MacaroonAuthenticator() (*auth.MacaroonAuthenticator, error) {
	if c.macaroon != nil {
		return c.macaroon, nil
	}

	var rootKey []byte
	var err error
	if c.MacaroonRootKey != "" {
		rootKey, err = hex.DecodeString(c.MacaroonRootKey)
	} else {
		rootKey, err = auth.LoadOrCreateRootKey(RootKeyPath(c.Datadir))
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load macaroon root key: %w", err)
	}

	c.macaroon, err = auth.NewMacaroonAuthenticator(rootKey)
	if err != nil {
		return nil, err
	}
	return c.macaroon, nil
}

// Broker is the in-process event feed consumed by websocket subscribers.
func (c *Config) Broker() *notifier.Broker {
	if c.broker == nil {
		c.broker = notifier.NewBroker()
	}
	return c.broker
}

func (c *Config) notifier() (port.Notifier, error) {
	notifiers := notifier.MultiNotifier{notifier.LogNotifier{}, c.Broker()}
	if c.EventsChannel != "" {
		rdb, err := c.redisClient(context.Background())
		if err != nil {
			return nil, err
		}
		notifiers = append(notifiers, notifier.NewRedisNotifier(rdb, c.EventsChannel))
	}
	return notifiers, nil
}

func (c *Config) redisClient(ctx context.Context) (*redis.Client, error) {
	if c.rdb != nil {
		return c.rdb, nil
	}

	opts, err := redis.ParseURL(c.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}
	opts.PoolSize = 100
	rdb := redis.NewClient(opts)
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("failed to connect redis: %w", err)
	}
	c.rdb = rdb
	return c.rdb, nil
}

// Close releases the store and the connections opened by the config.
func (c *Config) Close() {
	if c.broker != nil {
		c.broker.Close()
	}
	if c.store != nil {
		if err := c.store.Close(); err != nil {
			log.WithError(err).Warn("failed to close store")
		}
	}
	// the redis store closes the shared client itself
	if c.rdb != nil && c.StoreType != "redis" {
		c.rdb.Close()
	}
}

// RootKeyPath is where the daemon keeps its generated macaroon root key.
func RootKeyPath(datadir string) string {
	return filepath.Join(datadir, rootKeyFile)
}

func openMySQL(dsn string) (*sql.DB, error) {
	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(50)
	db.SetMaxIdleConns(25)
	db.SetConnMaxLifetime(5 * time.Minute)
	return db, nil
}

// newMySQLStore takes ownership of db and closes it when the store cannot be
// set up.
func newMySQLStore(ctx context.Context, db *sql.DB) (port.KVStore, error) {
	store, err := storage.NewMySQLStore(ctx, db)
	if err != nil {
		db.Close()
		return nil, err
	}
	return store, nil
}

func env(name string) []string {
	return []string{envPrefix + "_" + name}
}

func makeDirectoryIfNotExists(path string) error {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return os.MkdirAll(path, os.ModeDir|0o755)
	}
	return nil
}

type supportedType map[string]struct{}

func (t supportedType) String() string {
	types := make([]string, 0, len(t))
	for tt := range t {
		types = append(types, tt)
	}
	return strings.Join(types, " | ")
}

func (t supportedType) supports(typeStr string) bool {
	_, ok := t[typeStr]
	return ok
}
