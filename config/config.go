package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const defaultMinConfidence = 0.50

// Config es la configuración completa del sniper.
type Config struct {
	Sniper   SniperConfig   `yaml:"sniper"`
	Resolver ResolverConfig `yaml:"resolver"`
	API      APIConfig      `yaml:"api"`
	Stream   StreamConfig   `yaml:"stream"`
	Wallet   WalletConfig   `yaml:"-"` // solo desde env
	Lock     LockConfig     `yaml:"lock"`
	Journal  JournalConfig  `yaml:"journal"`
	Notify   NotifyConfig   `yaml:"notify"`
	Log      LogConfig      `yaml:"log"`
}

// SniperConfig controla la estrategia y el loop principal.
type SniperConfig struct {
	DryRun                 *bool    `yaml:"dry_run"` // nil = true
	BuyPriceCeiling        float64  `yaml:"buy_price_ceiling"`
	NotionalUSDC           float64  `yaml:"notional_usdc"`
	TriggerSeconds         float64  `yaml:"trigger_seconds"`
	MinConfidence          *float64 `yaml:"min_confidence"` // nil = 0.50; 0 es válido
	IlliquidThreshold      float64  `yaml:"illiquid_threshold"`
	TieBreak               string   `yaml:"tie_break"` // highest_price | prefer_side_a
	RunOnce                bool     `yaml:"run_once"`
	NoTargetBackoffSeconds int      `yaml:"no_target_backoff_seconds"`
	PostFirePauseSeconds   int      `yaml:"post_fire_pause_seconds"`
	ErrorPauseSeconds      int      `yaml:"error_pause_seconds"`
	LiveGraceSeconds       int      `yaml:"live_grace_seconds"`
	StatusIntervalSeconds  int      `yaml:"status_interval_seconds"`
}

// ResolverConfig controla la búsqueda de mercados.
type ResolverConfig struct {
	Queries                  []string `yaml:"queries"`
	IncludeDaily             *bool    `yaml:"include_daily"` // nil = true
	AssetKeywords            []string `yaml:"asset_keywords"`
	ResolutionKeywords       []string `yaml:"resolution_keywords"`
	FifteenMinHorizonHours   float64  `yaml:"fifteen_min_horizon_hours"`
	DailyHorizonHours        float64  `yaml:"daily_horizon_hours"`
	FifteenMinMonitorMinutes float64  `yaml:"fifteen_min_monitor_minutes"`
	DailyMonitorMinutes      float64  `yaml:"daily_monitor_minutes"`
	Workers                  int      `yaml:"workers"`
}

// APIConfig contiene los base URLs de las APIs.
type APIConfig struct {
	CLOBBase  string `yaml:"clob_base"`
	GammaBase string `yaml:"gamma_base"`
	WSURL     string `yaml:"ws_url"`
	RPCURL    string `yaml:"rpc_url"`
}

// StreamConfig controla la reconexión del websocket.
type StreamConfig struct {
	MaxReconnects   int `yaml:"max_reconnects"`
	ReconnectBaseMS int `yaml:"reconnect_base_ms"`
}

// WalletConfig contiene la clave privada. Nunca se lee del YAML.
type WalletConfig struct {
	PrivateKey string
}

// LockConfig controla el lock distribuido de disparo. Addr vacío = sin lock.
type LockConfig struct {
	RedisAddr     string `yaml:"redis_addr"`
	RedisPassword string `yaml:"redis_password"`
	RedisDB       int    `yaml:"redis_db"`
	TTLSeconds    int    `yaml:"ttl_seconds"`
}

// JournalConfig controla dónde se registran las sesiones.
type JournalConfig struct {
	DSN string `yaml:"dsn"` // ruta al archivo SQLite, ":memory:", o vacío para desactivar
}

// NotifyConfig controla los avisos externos.
type NotifyConfig struct {
	DiscordWebhook string `yaml:"discord_webhook"`
}

// LogConfig controla el formato, nivel y destino del logging.
type LogConfig struct {
	Level      string `yaml:"level"`  // debug | info | warn | error
	Format     string `yaml:"format"` // text | json
	File       string `yaml:"file"`   // vacío = solo stdout
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days"`
}

// Load carga la configuración desde el archivo YAML y el archivo .env si existe.
// El YAML es opcional: sin archivo se usan env y defaults.
func Load(path string) (*Config, error) {
	// Cargar .env si existe (silencia error si no hay archivo)
	_ = godotenv.Load()

	var cfg Config
	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		// sin archivo: solo env + defaults
	case err != nil:
		return nil, fmt.Errorf("config.Load: read %q: %w", path, err)
	default:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("config.Load: parse YAML: %w", err)
		}
	}

	applyEnvOverrides(&cfg)
	setDefaults(&cfg)

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}
	return &cfg, nil
}

// IsDryRun devuelve true salvo que dry_run esté explícitamente a false.
func (c *Config) IsDryRun() bool {
	return c.Sniper.DryRun == nil || *c.Sniper.DryRun
}

// SetDryRun fija el modo (el flag -live lo desactiva).
func (c *Config) SetDryRun(v bool) {
	c.Sniper.DryRun = &v
}

// IncludeDaily devuelve si el shape diario está habilitado (default true).
func (c *Config) IncludeDaily() bool {
	return c.Resolver.IncludeDaily == nil || *c.Resolver.IncludeDaily
}

// MinConfidence devuelve el ask mínimo (exclusivo) para considerar un lado ganador.
func (c *Config) MinConfidence() float64 {
	if c.Sniper.MinConfidence == nil {
		return defaultMinConfidence
	}
	return *c.Sniper.MinConfidence
}

// TriggerWindow devuelve trigger_seconds como time.Duration.
func (c *Config) TriggerWindow() time.Duration {
	return time.Duration(c.Sniper.TriggerSeconds * float64(time.Second))
}

// LockTTL devuelve el TTL del lock de disparo.
func (c *Config) LockTTL() time.Duration {
	return time.Duration(c.Lock.TTLSeconds) * time.Second
}

func (c *Config) validate() error {
	s := c.Sniper
	if s.BuyPriceCeiling <= 0 || s.BuyPriceCeiling > 1 {
		return fmt.Errorf("sniper.buy_price_ceiling must be in (0, 1], got %v", s.BuyPriceCeiling)
	}
	if mc := c.MinConfidence(); mc < 0 || mc >= s.BuyPriceCeiling {
		return fmt.Errorf("sniper.min_confidence must be in [0, buy_price_ceiling), got %v", mc)
	}
	switch s.TieBreak {
	case "highest_price", "prefer_side_a":
	default:
		return fmt.Errorf("sniper.tie_break must be highest_price or prefer_side_a, got %q", s.TieBreak)
	}
	return nil
}

// applyEnvOverrides sobreescribe valores con variables de entorno si están presentes.
func applyEnvOverrides(cfg *Config) {
	setStr(&cfg.Log.Level, "LOG_LEVEL")
	setStr(&cfg.Log.Format, "LOG_FORMAT")
	setStr(&cfg.Log.File, "LOG_FILE")

	if v, ok := lookupBool("DRY_RUN"); ok {
		cfg.SetDryRun(v)
	}
	setFloat(&cfg.Sniper.BuyPriceCeiling, "BUY_PRICE")
	setFloat(&cfg.Sniper.NotionalUSDC, "BUY_AMOUNT")
	setFloat(&cfg.Sniper.TriggerSeconds, "TRIGGER_SECONDS")
	if v, ok := lookupFloat("MIN_WIN_PROBABILITY"); ok {
		cfg.Sniper.MinConfidence = &v
	}

	var monitor float64
	setFloat(&monitor, "MONITOR_WINDOW_MINUTES")
	if monitor > 0 {
		cfg.Resolver.FifteenMinMonitorMinutes = monitor
		cfg.Resolver.DailyMonitorMinutes = monitor
	}

	setStr(&cfg.Wallet.PrivateKey, "POLY_PRIVATE_KEY")
	setStr(&cfg.API.RPCURL, "POLYGON_RPC_URL")
	setStr(&cfg.Lock.RedisAddr, "REDIS_ADDR")
	setStr(&cfg.Lock.RedisPassword, "REDIS_PASSWORD")
	setInt(&cfg.Lock.RedisDB, "REDIS_DB")
	setStr(&cfg.Notify.DiscordWebhook, "DISCORD_WEBHOOK_URL")
	setStr(&cfg.Journal.DSN, "JOURNAL_DSN")
}

func setStr(dst *string, key string) {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		*dst = v
	}
}

func setFloat(dst *float64, key string) {
	if f, ok := lookupFloat(key); ok {
		*dst = f
	}
}

func lookupFloat(key string) (float64, bool) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return 0, false
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, false
	}
	return f, true
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
			*dst = n
		}
	}
}

func lookupBool(key string) (bool, bool) {
	v := os.Getenv(key)
	if v == "" {
		return false, false
	}
	b, err := strconv.ParseBool(strings.TrimSpace(v))
	if err != nil {
		return false, false
	}
	return b, true
}

// setDefaults asegura que los valores requeridos tengan valores sensatos.
func setDefaults(cfg *Config) {
	s := &cfg.Sniper
	if s.BuyPriceCeiling == 0 {
		s.BuyPriceCeiling = 0.99
	}
	if s.NotionalUSDC <= 0 {
		s.NotionalUSDC = 10
	}
	if s.TriggerSeconds <= 0 {
		s.TriggerSeconds = 1
	}
	if s.MinConfidence == nil {
		v := defaultMinConfidence
		s.MinConfidence = &v
	}
	if s.IlliquidThreshold <= 0 {
		s.IlliquidThreshold = 0.10
	}
	if s.TieBreak == "" {
		s.TieBreak = "highest_price"
	}
	if s.NoTargetBackoffSeconds <= 0 {
		s.NoTargetBackoffSeconds = 60
	}
	if s.PostFirePauseSeconds <= 0 {
		s.PostFirePauseSeconds = 5
	}
	if s.ErrorPauseSeconds <= 0 {
		s.ErrorPauseSeconds = 10
	}
	if s.LiveGraceSeconds <= 0 {
		s.LiveGraceSeconds = 5
	}
	if s.StatusIntervalSeconds <= 0 {
		s.StatusIntervalSeconds = 30
	}

	r := &cfg.Resolver
	if len(r.Queries) == 0 {
		r.Queries = []string{"Bitcoin up or down", "Ethereum up or down", "Solana up or down"}
	}
	if len(r.AssetKeywords) == 0 {
		r.AssetKeywords = []string{"bitcoin", "ethereum", "solana", "btc", "eth", "sol"}
	}
	if len(r.ResolutionKeywords) == 0 {
		r.ResolutionKeywords = []string{"above", "below", "reach"}
	}
	if r.FifteenMinHorizonHours <= 0 {
		r.FifteenMinHorizonHours = 5
	}
	if r.DailyHorizonHours <= 0 {
		r.DailyHorizonHours = 24
	}
	if r.FifteenMinMonitorMinutes <= 0 {
		r.FifteenMinMonitorMinutes = 5
	}
	if r.DailyMonitorMinutes <= 0 {
		r.DailyMonitorMinutes = 5
	}
	if r.Workers <= 0 {
		r.Workers = 4
	}

	if cfg.API.CLOBBase == "" {
		cfg.API.CLOBBase = "https://clob.polymarket.com"
	}
	if cfg.API.GammaBase == "" {
		cfg.API.GammaBase = "https://gamma-api.polymarket.com"
	}
	if cfg.API.WSURL == "" {
		cfg.API.WSURL = "wss://ws-subscriptions-clob.polymarket.com/ws/market"
	}
	if cfg.API.RPCURL == "" {
		cfg.API.RPCURL = "https://polygon-rpc.com"
	}

	if cfg.Stream.MaxReconnects <= 0 {
		cfg.Stream.MaxReconnects = 5
	}
	if cfg.Stream.ReconnectBaseMS <= 0 {
		cfg.Stream.ReconnectBaseMS = 500
	}

	if cfg.Lock.TTLSeconds <= 0 {
		cfg.Lock.TTLSeconds = 600
	}

	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "text"
	}
	if cfg.Log.MaxSizeMB <= 0 {
		cfg.Log.MaxSizeMB = 50
	}
	if cfg.Log.MaxBackups <= 0 {
		cfg.Log.MaxBackups = 5
	}
	if cfg.Log.MaxAgeDays <= 0 {
		cfg.Log.MaxAgeDays = 14
	}
}
