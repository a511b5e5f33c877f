package types

import (
	"time"

	"github.com/shopspring/decimal"
)

// TradingConfig holds every tunable for the trading agent, loaded once
// at startup (see internal/config).
type TradingConfig struct {
	Assets []AssetConfig `json:"assets" yaml:"assets"`
	Tiers  []Tier        `json:"tiers" yaml:"tiers"`

	CandleInterval      string        `json:"candleInterval" yaml:"candleInterval"`
	LookbackCandles      int           `json:"lookbackCandles" yaml:"lookbackCandles"`
	CheckInterval        time.Duration `json:"checkInterval" yaml:"checkInterval"`
	SentimentCheckPeriod time.Duration `json:"sentimentCheckPeriod" yaml:"sentimentCheckPeriod"`

	RSIPeriod int `json:"rsiPeriod" yaml:"rsiPeriod"`
	BBPeriod  int `json:"bbPeriod" yaml:"bbPeriod"`
	ADXPeriod int `json:"adxPeriod" yaml:"adxPeriod"`

	ExtremeRSIThreshold decimal.Decimal `json:"extremeRsiThreshold" yaml:"extremeRsiThreshold"`
	RSIOversold         decimal.Decimal `json:"rsiOversold" yaml:"rsiOversold"`
	RSIOverbought       decimal.Decimal `json:"rsiOverbought" yaml:"rsiOverbought"`
	ADXTrendingMin      decimal.Decimal `json:"adxTrendingMin" yaml:"adxTrendingMin"`
	VolumeRatioMin      decimal.Decimal `json:"volumeRatioMin" yaml:"volumeRatioMin"`

	MaxDrawdownPct         decimal.Decimal `json:"maxDrawdownPct" yaml:"maxDrawdownPct"`
	MaxOpenPositions       int             `json:"maxOpenPositions" yaml:"maxOpenPositions"`
	TrailingStopActivation decimal.Decimal `json:"trailingStopActivation" yaml:"trailingStopActivation"`
	TrailingStopDistance   decimal.Decimal `json:"trailingStopDistance" yaml:"trailingStopDistance"`
	PartialTPThreshold     decimal.Decimal `json:"partialTpThreshold" yaml:"partialTpThreshold"`
	PartialTPFraction      decimal.Decimal `json:"partialTpFraction" yaml:"partialTpFraction"`
	MaxNotionalFraction    decimal.Decimal `json:"maxNotionalFraction" yaml:"maxNotionalFraction"`

	OptimizeInterval time.Duration `json:"optimizeInterval" yaml:"optimizeInterval"`

	AdaptMinTrades      int             `json:"adaptMinTrades" yaml:"adaptMinTrades"`
	AdaptInterval       time.Duration   `json:"adaptInterval" yaml:"adaptInterval"`
	AdaptMinWeight      decimal.Decimal `json:"adaptMinWeight" yaml:"adaptMinWeight"`
	AdaptMaxWeight      decimal.Decimal `json:"adaptMaxWeight" yaml:"adaptMaxWeight"`
	BlockMinTrades      int             `json:"blockMinTrades" yaml:"blockMinTrades"`
	BlockWinRateThreshold decimal.Decimal `json:"blockWinRateThreshold" yaml:"blockWinRateThreshold"`
	BlockCooldown       time.Duration   `json:"blockCooldown" yaml:"blockCooldown"`
}

// DefaultTradingConfig returns the canonical v7 configuration carried
// over from the original implementation (see SPEC_FULL.md "Concrete
// tier table" / "Concrete constants").
func DefaultTradingConfig() TradingConfig {
	return TradingConfig{
		Assets: []AssetConfig{
			{Symbol: "BTC", SizeDecimals: 5, MaxLeverage: 20, MinNotionalUsd: decimal.NewFromInt(10)},
			{Symbol: "ETH", SizeDecimals: 4, MaxLeverage: 20, MinNotionalUsd: decimal.NewFromInt(10)},
			{Symbol: "SOL", SizeDecimals: 2, MaxLeverage: 15, MinNotionalUsd: decimal.NewFromInt(10)},
			{Symbol: "XYZ:GOLD", Namespace: "xyz", SizeDecimals: 2, MaxLeverage: 10, MinNotionalUsd: decimal.NewFromInt(10)},
		},
		Tiers: []Tier{
			{MinEquity: decimal.Zero, MaxEquity: decimal.NewFromInt(500), Leverage: 1,
				RiskPct: decimal.NewFromFloat(0.01), TPPct: decimal.NewFromFloat(0.03), SLPct: decimal.NewFromFloat(0.015)},
			{MinEquity: decimal.NewFromInt(500), MaxEquity: decimal.NewFromInt(5000), Leverage: 3,
				RiskPct: decimal.NewFromFloat(0.02), TPPct: decimal.NewFromFloat(0.04), SLPct: decimal.NewFromFloat(0.02)},
			{MinEquity: decimal.NewFromInt(5000), MaxEquity: decimal.NewFromInt(1 << 40), Leverage: 5,
				RiskPct: decimal.NewFromFloat(0.03), TPPct: decimal.NewFromFloat(0.05), SLPct: decimal.NewFromFloat(0.025)},
		},
		CandleInterval:       "15m",
		LookbackCandles:      100,
		CheckInterval:        45 * time.Second,
		SentimentCheckPeriod: 60 * time.Minute,
		RSIPeriod:            14,
		BBPeriod:             14,
		ADXPeriod:            14,
		ExtremeRSIThreshold:  decimal.NewFromInt(25),
		RSIOversold:          decimal.NewFromInt(35),
		RSIOverbought:        decimal.NewFromInt(65),
		ADXTrendingMin:       decimal.NewFromInt(20),
		VolumeRatioMin:       decimal.NewFromFloat(1.0),

		MaxDrawdownPct:         decimal.NewFromFloat(0.25),
		MaxOpenPositions:       3,
		TrailingStopActivation: decimal.NewFromFloat(0.02),
		TrailingStopDistance:   decimal.NewFromFloat(0.01),
		PartialTPThreshold:     decimal.NewFromFloat(0.025),
		PartialTPFraction:      decimal.NewFromFloat(0.5),
		MaxNotionalFraction:    decimal.NewFromFloat(0.6),

		OptimizeInterval: 5 * time.Hour,

		AdaptMinTrades:        20,
		AdaptInterval:         6 * time.Hour,
		AdaptMinWeight:        decimal.NewFromFloat(0.5),
		AdaptMaxWeight:        decimal.NewFromFloat(2.0),
		BlockMinTrades:        5,
		BlockWinRateThreshold: decimal.NewFromInt(30),
		BlockCooldown:         24 * time.Hour,
	}
}

// FarmingConfig holds every tunable for the airdrop-farming agent.
type FarmingConfig struct {
	Chains []ChainConfig `json:"chains" yaml:"chains"`

	DailyMaxActions   int             `json:"dailyMaxActions" yaml:"dailyMaxActions"`
	FarmingDurationDays int           `json:"farmingDurationDays" yaml:"farmingDurationDays"`
	CampaignStart     time.Time       `json:"campaignStart" yaml:"campaignStart"`
	DayStartHour      int             `json:"dayStartHour" yaml:"dayStartHour"`
	DayEndHour        int             `json:"dayEndHour" yaml:"dayEndHour"`
	MinActionUsd      decimal.Decimal `json:"minActionUsd" yaml:"minActionUsd"`
	MaxActionUsd      decimal.Decimal `json:"maxActionUsd" yaml:"maxActionUsd"`
	EthPriceUsd       decimal.Decimal `json:"ethPriceUsd" yaml:"ethPriceUsd"`

	BudgetUsd  decimal.Decimal `json:"budgetUsd" yaml:"budgetUsd"`
	ReservePct decimal.Decimal `json:"reservePct" yaml:"reservePct"`

	TestnetCycleMin time.Duration `json:"testnetCycleMin" yaml:"testnetCycleMin"`
	TestnetCycleMax time.Duration `json:"testnetCycleMax" yaml:"testnetCycleMax"`
	ScanInterval    time.Duration `json:"scanInterval" yaml:"scanInterval"`
	ReportInterval  time.Duration `json:"reportInterval" yaml:"reportInterval"`
	TickMaxInterval time.Duration `json:"tickMaxInterval" yaml:"tickMaxInterval"`
}

// DefaultFarmingConfig returns the canonical configuration (see
// SPEC_FULL.md "Activity planner's hardcoded campaign start").
func DefaultFarmingConfig() FarmingConfig {
	return FarmingConfig{
		Chains: []ChainConfig{
			{
				Name:    "base",
				RPCs:    []string{"https://mainnet.base.org", "https://base.publicnode.com"},
				ChainID: 8453, AvgGasCostUsd: decimal.NewFromFloat(0.05), EIP1559: true, Type: ChainTypeMainnet,
				WrappedNative: "0x4200000000000000000000000000000000000006",
				SwapRouter:    "0x2626664c2603336E57B271c5C0b26F421741e481",
				LPRouter:      "0x827922686190790b37229fd06084350E74485b72",
				Tokens:        []string{"0x4ed4E862860beD51a9570b96d89aF5E1B0Efefed"},
			},
			{
				Name:    "arbitrum",
				RPCs:    []string{"https://arb1.arbitrum.io/rpc", "https://arbitrum.publicnode.com"},
				ChainID: 42161, AvgGasCostUsd: decimal.NewFromFloat(0.10), EIP1559: true, Type: ChainTypeMainnet,
				WrappedNative: "0x82aF49447D8a07e3bd95BD0d56f35241523fBab1",
				SwapRouter:    "0xE592427A0AEce92De3Edee1F18E0157C05861564",
				LPRouter:      "0xE592427A0AEce92De3Edee1F18E0157C05861564",
				Tokens:        []string{"0xaf88d065e77c8cC2239327C5EDb3A432268e5831"},
			},
			{
				Name:    "monad_testnet",
				RPCs:    []string{"https://testnet-rpc.monad.xyz", "https://rpc.ankr.com/monad_testnet"},
				ChainID: 10143, AvgGasCostUsd: decimal.Zero, EIP1559: false, Type: ChainTypeTestnet,
			},
			{
				Name:    "berachain_bartio",
				RPCs:    []string{"https://bartio.rpc.berachain.com"},
				ChainID: 80084, AvgGasCostUsd: decimal.Zero, EIP1559: false, Type: ChainTypeTestnet,
			},
			{
				Name:    "sepolia",
				RPCs:    []string{"https://rpc.sepolia.org", "https://rpc2.sepolia.org"},
				ChainID: 11155111, AvgGasCostUsd: decimal.Zero, EIP1559: true, Type: ChainTypeTestnet,
			},
		},
		DailyMaxActions:     5,
		FarmingDurationDays: 90,
		CampaignStart:       time.Date(2026, 2, 15, 0, 0, 0, 0, time.UTC),
		DayStartHour:        8,
		DayEndHour:          23,
		MinActionUsd:        decimal.NewFromFloat(0.5),
		MaxActionUsd:        decimal.NewFromFloat(3.0),
		EthPriceUsd:         decimal.NewFromFloat(2700.0),
		BudgetUsd:           decimal.NewFromInt(50),
		ReservePct:          decimal.NewFromFloat(0.1),
		TestnetCycleMin:     2 * time.Hour,
		TestnetCycleMax:     8 * time.Hour,
		ScanInterval:        12 * time.Hour,
		ReportInterval:      24 * time.Hour,
		TickMaxInterval:     30 * time.Minute,
	}
}

// ServerConfig is the HTTP/WS health+status surface configuration.
type ServerConfig struct {
	Host          string `json:"host" yaml:"host"`
	Port          int    `json:"port" yaml:"port"`
	EnableMetrics bool   `json:"enableMetrics" yaml:"enableMetrics"`
}

// DefaultServerConfig returns sane defaults for local operation.
func DefaultServerConfig() ServerConfig {
	return ServerConfig{Host: "0.0.0.0", Port: 8080, EnableMetrics: true}
}
