package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/alejandrodnm/polybet/internal/adapters/feed"
	"github.com/alejandrodnm/polybet/internal/application/engine"
	"github.com/alejandrodnm/polybet/internal/application/scanner"
	"github.com/alejandrodnm/polybet/internal/cache"
	"github.com/alejandrodnm/polybet/internal/domain"
	"github.com/alejandrodnm/polybet/internal/lifecycle"
	"github.com/alejandrodnm/polybet/internal/registry"
	"github.com/alejandrodnm/polybet/internal/sizing"
)

// Config es la configuración completa del engine.
type Config struct {
	Engine      EngineConfig      `yaml:"engine"`
	Sizing      SizingConfig      `yaml:"sizing"`
	Lifecycle   LifecycleConfig   `yaml:"lifecycle"`
	Elimination EliminationConfig `yaml:"elimination"`
	Strategies  []StrategyConfig  `yaml:"strategies"`
	Feed        FeedConfig        `yaml:"feed"`
	Storage     StorageConfig     `yaml:"storage"`
	Server      ServerConfig      `yaml:"server"`
	Log         LogConfig         `yaml:"log"`
}

// EngineConfig controla los ciclos del engine y el scanner.
type EngineConfig struct {
	IntervalSeconds         int     `yaml:"interval_seconds"`
	Workers                 int     `yaml:"workers"` // 0 = NumCPU
	FetchTimeoutSeconds     int     `yaml:"fetch_timeout_seconds"`
	SignalTimeoutSeconds    int     `yaml:"signal_timeout_seconds"`
	GraceHours              float64 `yaml:"grace_hours"` // ventana antes de anular un commitment sin resultado
	EliminationEveryMinutes int     `yaml:"elimination_every_minutes"`
	SnapshotEveryMinutes    int     `yaml:"snapshot_every_minutes"`
	StopFile                string  `yaml:"stop_file"`
	MinSources              int     `yaml:"min_sources"` // fuentes mínimas para estimar un edge
	AlertEV                 float64 `yaml:"alert_ev"`
	WindowSize              int     `yaml:"window_size"` // precios por símbolo para la volatilidad
}

// SizingConfig son los defaults de sizing; cero = default del paquete sizing.
type SizingConfig struct {
	FlatStake            float64            `yaml:"flat_stake"`
	BasePct              float64            `yaml:"base_pct"`
	FloorPct             float64            `yaml:"floor_pct"`
	CeilingPct           float64            `yaml:"ceiling_pct"`
	KellyFraction        float64            `yaml:"kelly_fraction"`
	KellyCap             float64            `yaml:"kelly_cap"` // único cap de Kelly
	MinKellySamples      int                `yaml:"min_kelly_samples"`
	FullConfidenceAt     int                `yaml:"full_confidence_at"`
	MinStake             float64            `yaml:"min_stake"`
	MaxFraction          float64            `yaml:"max_fraction"`
	VolBands             map[string]VolBand `yaml:"vol_bands"` // por asset class
	OverrideFreshnessHrs float64            `yaml:"override_freshness_hours"`
	MinOverridePct       float64            `yaml:"min_override_pct"`
	MaxOverridePct       float64            `yaml:"max_override_pct"`
}

// VolBand son los umbrales de volatilidad (en %) de una asset class.
type VolBand struct {
	Low  float64 `yaml:"low"`
	High float64 `yaml:"high"`
}

// LifecycleConfig agrupa las reglas por asset class.
// Una clase presente en el YAML reemplaza entera a su default.
type LifecycleConfig struct {
	CorrelationCap *int                   `yaml:"correlation_cap"`
	CooldownHours  *float64               `yaml:"cooldown_hours"`
	Classes        map[string]ClassConfig `yaml:"classes"`
}

// ClassConfig son las reglas de salida y guards de una asset class.
type ClassConfig struct {
	TargetPct          float64   `yaml:"target_pct"`
	StopPct            float64   `yaml:"stop_pct"`
	ActivationFraction float64   `yaml:"activation_fraction"`
	TrailFraction      float64   `yaml:"trail_fraction"`
	MaxHoldHours       float64   `yaml:"max_hold_hours"`
	MaxConcurrent      int       `yaml:"max_concurrent"`
	MinRewardRisk      float64   `yaml:"min_reward_risk"`
	Fees               FeeConfig `yaml:"fees"`
}

// FeeConfig describe un modelo de comisiones.
type FeeConfig struct {
	Kind       string  `yaml:"kind"` // none | flat | proportional | floor
	PerSide    float64 `yaml:"per_side"`
	Rate       float64 `yaml:"rate"`
	MinPerSide float64 `yaml:"min_per_side"`
}

// EliminationConfig son los umbrales de eliminación.
// ROI floor -100 y drawdown 0 desactivan sus reglas, por eso son punteros.
type EliminationConfig struct {
	MinSample      int      `yaml:"min_sample"`
	ZThreshold     float64  `yaml:"z_threshold"`
	ROIFloorPct    *float64 `yaml:"roi_floor_pct"`
	MaxDrawdownPct *float64 `yaml:"max_drawdown_pct"`
}

// StrategyConfig es una estrategia a sembrar en el registry.
type StrategyConfig struct {
	ID              string         `yaml:"id"`
	Name            string         `yaml:"name"`
	InitialBankroll float64        `yaml:"initial_bankroll"`
	Filter          FilterConfig   `yaml:"filter"`
	Sizing          StrategySizing `yaml:"sizing"`
}

// FilterConfig es el filtro declarativo de una estrategia.
type FilterConfig struct {
	MinEV        float64  `yaml:"min_ev"`
	MaxEV        float64  `yaml:"max_ev"`
	MinFairProb  float64  `yaml:"min_fair_prob"`
	MaxFairProb  float64  `yaml:"max_fair_prob"`
	MinPrice     float64  `yaml:"min_price"`
	MaxPrice     float64  `yaml:"max_price"`
	MinSources   int      `yaml:"min_sources"`
	MarketTypes  []string `yaml:"market_types"`
	AssetClasses []string `yaml:"asset_classes"`
}

// StrategySizing es la configuración de sizing propia de una estrategia.
type StrategySizing struct {
	Kind          string  `yaml:"kind"` // flat | kelly | adaptive
	FlatStake     float64 `yaml:"flat_stake"`
	BasePct       float64 `yaml:"base_pct"`
	KellyFraction float64 `yaml:"kelly_fraction"`
	UseVolatility bool    `yaml:"use_volatility"`
	UseKellyBlend bool    `yaml:"use_kelly_blend"`
	UseOverride   bool    `yaml:"use_override"`
	UseDrawdown   bool    `yaml:"use_drawdown"`
	MinStake      float64 `yaml:"min_stake"`
	MaxFraction   float64 `yaml:"max_fraction"`
}

// FeedConfig apunta al colaborador HTTP que entrega oportunidades, precios y resultados.
type FeedConfig struct {
	BaseURL         string  `yaml:"base_url"`
	APIKey          string  `yaml:"api_key"`
	RatePerSec      float64 `yaml:"rate_per_sec"`
	Burst           int     `yaml:"burst"`
	TimeoutSeconds  int     `yaml:"timeout_seconds"`
	CacheTTLSeconds int     `yaml:"cache_ttl_seconds"`
	FixturesDir     string  `yaml:"fixtures_dir"` // feed de JSON local para dry-run
}

// StorageConfig controla dónde se persisten los datos.
type StorageConfig struct {
	DSN string `yaml:"dsn"` // ruta al archivo SQLite, o ":memory:"
}

// ServerConfig controla la API HTTP de reportes y administración.
type ServerConfig struct {
	Addr       string `yaml:"addr"`        // vacío = sin servidor
	AdminToken string `yaml:"admin_token"` // vacío = rutas admin deshabilitadas
}

// LogConfig controla el formato y nivel de logging.
type LogConfig struct {
	Level  string `yaml:"level"`  // debug | info | warn | error
	Format string `yaml:"format"` // text | json
}

// Load carga la configuración desde el archivo YAML y el archivo .env si existe.
// Los valores del .env sobreescriben los del YAML para las keys que correspondan.
func Load(path string) (*Config, error) {
	// Cargar .env si existe (silencia error si no hay archivo)
	_ = godotenv.Load()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config.Load: read %q: %w", path, err)
	}

	cfg, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}
	return cfg, nil
}

// Parse interpreta un YAML ya leído y aplica overrides de entorno y defaults.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse YAML: %w", err)
	}

	applyEnvOverrides(&cfg)
	setDefaults(&cfg)

	if _, err := cfg.StrategyList(); err != nil {
		return nil, err
	}
	if _, err := cfg.LifecycleRules(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// applyEnvOverrides sobreescribe valores con variables de entorno si están presentes.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
	if v := os.Getenv("LOG_FORMAT"); v != "" {
		cfg.Log.Format = v
	}
	if v := os.Getenv("POLYBET_DSN"); v != "" {
		cfg.Storage.DSN = v
	}
	if v := os.Getenv("POLYBET_ADMIN_TOKEN"); v != "" {
		cfg.Server.AdminToken = v
	}
	if v := os.Getenv("POLYBET_FEED_BASE"); v != "" {
		cfg.Feed.BaseURL = v
	}
	if v := os.Getenv("POLYBET_FEED_KEY"); v != "" {
		cfg.Feed.APIKey = v
	}
}

// setDefaults asegura que los valores requeridos tengan valores sensatos.
func setDefaults(cfg *Config) {
	if cfg.Engine.IntervalSeconds <= 0 {
		cfg.Engine.IntervalSeconds = 60
	}
	if cfg.Engine.FetchTimeoutSeconds <= 0 {
		cfg.Engine.FetchTimeoutSeconds = 15
	}
	if cfg.Engine.SignalTimeoutSeconds <= 0 {
		cfg.Engine.SignalTimeoutSeconds = 2
	}
	if cfg.Engine.GraceHours <= 0 {
		cfg.Engine.GraceHours = 48
	}
	if cfg.Engine.EliminationEveryMinutes <= 0 {
		cfg.Engine.EliminationEveryMinutes = 60
	}
	if cfg.Engine.SnapshotEveryMinutes <= 0 {
		cfg.Engine.SnapshotEveryMinutes = 60
	}
	if cfg.Engine.StopFile == "" {
		cfg.Engine.StopFile = "STOP"
	}
	if cfg.Engine.MinSources <= 0 {
		cfg.Engine.MinSources = domain.DefaultMinSources
	}
	if cfg.Feed.CacheTTLSeconds <= 0 {
		cfg.Feed.CacheTTLSeconds = 30
	}
	if cfg.Feed.FixturesDir == "" {
		cfg.Feed.FixturesDir = "testdata/fixtures"
	}
	if cfg.Storage.DSN == "" {
		cfg.Storage.DSN = "polybet.db"
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "text"
	}
	if len(cfg.Strategies) == 0 {
		cfg.Strategies = DefaultStrategies()
	}
}

// DefaultStrategies es el set sembrado cuando el YAML no declara ninguno.
func DefaultStrategies() []StrategyConfig {
	return []StrategyConfig{
		{
			ID: "value_flat", Name: "Value flat $25", InitialBankroll: 1000,
			Filter: FilterConfig{MinEV: 0.02, MinSources: 3},
			Sizing: StrategySizing{Kind: "flat", FlatStake: 25},
		},
		{
			ID: "kelly_quarter", Name: "Quarter Kelly", InitialBankroll: 1000,
			Filter: FilterConfig{MinEV: 0.03, MinFairProb: 0.25},
			Sizing: StrategySizing{Kind: "kelly", KellyFraction: 0.25},
		},
		{
			ID: "favorites", Name: "Short-priced favorites", InitialBankroll: 1000,
			Filter: FilterConfig{MinEV: 0.01, MaxPrice: 2.0, MarketTypes: []string{"moneyline"}},
			Sizing: StrategySizing{Kind: "flat", FlatStake: 25},
		},
		{
			ID: "adaptive_markets", Name: "Adaptive markets", InitialBankroll: 1000,
			Filter: FilterConfig{MinEV: 0.02, AssetClasses: []string{"prediction", "crypto", "equity"}},
			Sizing: StrategySizing{Kind: "adaptive", UseVolatility: true, UseKellyBlend: true, UseOverride: true, UseDrawdown: true},
		},
	}
}

// --- conversores a las configs de cada paquete ---

// EngineSettings devuelve la config de ciclos del engine.
func (c *Config) EngineSettings() engine.Config {
	out := engine.DefaultConfig()
	out.Workers = c.Engine.Workers
	out.Interval = seconds(c.Engine.IntervalSeconds)
	out.FetchTimeout = seconds(c.Engine.FetchTimeoutSeconds)
	out.SignalTimeout = seconds(c.Engine.SignalTimeoutSeconds)
	out.Grace = hours(c.Engine.GraceHours)
	out.EliminationEvery = time.Duration(c.Engine.EliminationEveryMinutes) * time.Minute
	out.SnapshotEvery = time.Duration(c.Engine.SnapshotEveryMinutes) * time.Minute
	out.StopFile = c.Engine.StopFile
	return out
}

// ScannerSettings devuelve la config del scanner de edges.
func (c *Config) ScannerSettings() scanner.Config {
	out := scanner.DefaultConfig()
	out.MinSources = c.Engine.MinSources
	out.Workers = c.Engine.Workers
	out.FetchTimeout = seconds(c.Engine.FetchTimeoutSeconds)
	if c.Engine.AlertEV > 0 {
		out.AlertEV = c.Engine.AlertEV
	}
	return out
}

// FeedSettings devuelve la config del cliente HTTP del feed.
func (c *Config) FeedSettings() feed.Config {
	return feed.Config{
		BaseURL:    c.Feed.BaseURL,
		APIKey:     c.Feed.APIKey,
		RatePerSec: c.Feed.RatePerSec,
		Burst:      c.Feed.Burst,
		Timeout:    seconds(c.Feed.TimeoutSeconds),
	}
}

// WindowSize es la cantidad de precios por símbolo usada para la volatilidad.
func (c *Config) WindowSize() int {
	if c.Engine.WindowSize < 3 {
		return cache.DefaultWindowSize
	}
	return c.Engine.WindowSize
}

// CacheTTL es la vida de las respuestas del feed cacheadas por ejecución.
func (c *Config) CacheTTL() time.Duration {
	return seconds(c.Feed.CacheTTLSeconds)
}

// SizingDefaults devuelve los parámetros de sizing, con cero = default.
func (c *Config) SizingDefaults() sizing.Defaults {
	s := c.Sizing
	out := sizing.DefaultDefaults()
	setF(&out.FlatStake, s.FlatStake)
	setF(&out.BasePct, s.BasePct)
	setF(&out.FloorPct, s.FloorPct)
	setF(&out.CeilingPct, s.CeilingPct)
	setF(&out.KellyFraction, s.KellyFraction)
	setF(&out.KellyCap, s.KellyCap)
	setI(&out.MinKellySamples, s.MinKellySamples)
	setI(&out.FullConfidenceAt, s.FullConfidenceAt)
	setF(&out.MinStake, s.MinStake)
	setF(&out.MaxFraction, s.MaxFraction)
	setF(&out.MinOverridePct, s.MinOverridePct)
	setF(&out.MaxOverridePct, s.MaxOverridePct)
	if s.OverrideFreshnessHrs > 0 {
		out.OverrideFreshness = hours(s.OverrideFreshnessHrs)
	}
	for name, band := range s.VolBands {
		ac, err := domain.ParseAssetClass(name)
		if err != nil || band.Low <= 0 || band.High <= band.Low {
			continue
		}
		out.VolBands[ac] = sizing.VolBand{Low: band.Low, High: band.High}
	}
	return out
}

// LifecycleRules devuelve las reglas del lifecycle manager.
func (c *Config) LifecycleRules() (lifecycle.Config, error) {
	out := lifecycle.DefaultConfig()
	if c.Lifecycle.CorrelationCap != nil {
		out.CorrelationCap = *c.Lifecycle.CorrelationCap
	}
	if c.Lifecycle.CooldownHours != nil {
		out.Cooldown = hours(*c.Lifecycle.CooldownHours)
	}
	for name, cc := range c.Lifecycle.Classes {
		ac, err := domain.ParseAssetClass(name)
		if err != nil {
			return lifecycle.Config{}, fmt.Errorf("lifecycle.classes: %w", err)
		}
		kind, err := lifecycle.ParseFeeKind(cc.Fees.Kind)
		if err != nil {
			return lifecycle.Config{}, fmt.Errorf("lifecycle.classes.%s: %w", name, err)
		}
		out.Classes[ac] = lifecycle.ClassConfig{
			TargetPct:          cc.TargetPct,
			StopPct:            cc.StopPct,
			ActivationFraction: cc.ActivationFraction,
			TrailFraction:      cc.TrailFraction,
			MaxHold:            hours(cc.MaxHoldHours),
			MaxConcurrent:      cc.MaxConcurrent,
			MinRewardRisk:      cc.MinRewardRisk,
			Fees: lifecycle.FeeModel{
				Kind:       kind,
				PerSide:    cc.Fees.PerSide,
				Rate:       cc.Fees.Rate,
				MinPerSide: cc.Fees.MinPerSide,
			},
		}
	}
	return out, nil
}

// EliminationRules devuelve los umbrales del registry.
func (c *Config) EliminationRules() registry.Rules {
	e := c.Elimination
	out := registry.DefaultRules()
	setI(&out.MinSample, e.MinSample)
	setF(&out.ZThreshold, e.ZThreshold)
	if e.ROIFloorPct != nil {
		out.ROIFloorPct = *e.ROIFloorPct
	}
	if e.MaxDrawdownPct != nil {
		out.MaxDrawdownPct = *e.MaxDrawdownPct
	}
	return out
}

// StrategyList convierte las estrategias del YAML al dominio.
func (c *Config) StrategyList() ([]domain.Strategy, error) {
	out := make([]domain.Strategy, 0, len(c.Strategies))
	seen := make(map[string]bool, len(c.Strategies))
	for i, sc := range c.Strategies {
		if sc.ID == "" {
			return nil, fmt.Errorf("strategies[%d]: missing id", i)
		}
		if seen[sc.ID] {
			return nil, fmt.Errorf("strategies[%d]: duplicate id %q", i, sc.ID)
		}
		seen[sc.ID] = true

		s, err := sc.toDomain()
		if err != nil {
			return nil, fmt.Errorf("strategies[%s]: %w", sc.ID, err)
		}
		out = append(out, s)
	}
	return out, nil
}

func (sc StrategyConfig) toDomain() (domain.Strategy, error) {
	name := sc.Name
	if name == "" {
		name = sc.ID
	}
	bankroll := sc.InitialBankroll
	if bankroll <= 0 {
		bankroll = 1000
	}

	filter := domain.FilterSpec{
		MinEV:       sc.Filter.MinEV,
		MaxEV:       sc.Filter.MaxEV,
		MinFairProb: sc.Filter.MinFairProb,
		MaxFairProb: sc.Filter.MaxFairProb,
		MinPrice:    sc.Filter.MinPrice,
		MaxPrice:    sc.Filter.MaxPrice,
		MinSources:  sc.Filter.MinSources,
	}
	for _, m := range sc.Filter.MarketTypes {
		mt, err := domain.ParseMarketType(m)
		if err != nil {
			return domain.Strategy{}, err
		}
		filter.MarketTypes = append(filter.MarketTypes, mt)
	}
	for _, a := range sc.Filter.AssetClasses {
		ac, err := domain.ParseAssetClass(a)
		if err != nil {
			return domain.Strategy{}, err
		}
		filter.AssetClasses = append(filter.AssetClasses, ac)
	}

	kind := domain.SizingKind(strings.ToLower(sc.Sizing.Kind))
	switch kind {
	case "":
		kind = domain.SizingFlat
	case domain.SizingFlat, domain.SizingKelly, domain.SizingAdaptive:
	default:
		return domain.Strategy{}, fmt.Errorf("unknown sizing kind %q", sc.Sizing.Kind)
	}

	return domain.Strategy{
		ID:     sc.ID,
		Name:   name,
		Filter: filter,
		Sizing: domain.SizingSpec{
			Kind:          kind,
			FlatStake:     sc.Sizing.FlatStake,
			BasePct:       sc.Sizing.BasePct,
			KellyFraction: sc.Sizing.KellyFraction,
			UseVolatility: sc.Sizing.UseVolatility,
			UseKellyBlend: sc.Sizing.UseKellyBlend,
			UseOverride:   sc.Sizing.UseOverride,
			UseDrawdown:   sc.Sizing.UseDrawdown,
			MinStake:      sc.Sizing.MinStake,
			MaxFraction:   sc.Sizing.MaxFraction,
		},
		InitialBankroll: bankroll,
		Status:          domain.StrategyActive,
	}, nil
}

// --- helpers ---

func seconds(n int) time.Duration { return time.Duration(n) * time.Second }

func hours(h float64) time.Duration { return time.Duration(h * float64(time.Hour)) }

func setF(dst *float64, v float64) {
	if v > 0 {
		*dst = v
	}
}

func setI(dst *int, v int) {
	if v > 0 {
		*dst = v
	}
}
