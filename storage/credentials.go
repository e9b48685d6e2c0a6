package storage

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type credentialsLogger interface {
	Panicf(format string, args ...interface{})
}

// EngineParams are the numeric knobs of the quoting engine, loaded once at
// startup and immutable afterwards.
type EngineParams struct {
	Spread      float64
	SkewFactor  float64
	ClipSize    float64
	TickSize    float64
	QtyStep     float64
	MinNotional float64
	StaleAfter  time.Duration
	VolFactor   float64
	VolWindow   int

	MaxPosition          float64
	MaxOrderSize         float64
	MaxOpenOrdersPerSide int
	MinSpread            float64

	ReconcileInterval time.Duration
	DriftTolerance    float64
	GapWait           time.Duration
	ShutdownTimeout   time.Duration

	RateLimitCapacity     int
	RateLimitRefillPerSec float64

	HTTPMaxAttempts    int
	HTTPBaseBackoff    time.Duration
	HTTPRequestTimeout time.Duration
	HTTPCoolDown       time.Duration
}

type Credentials struct {
	apiKey              string
	apiSecret           string
	symbol              string
	httpURL             string
	websocketURL        string
	telegramBotAPIToken string
	databaseDSN         string
	opsAddr             string
	engine              EngineParams
	logger              credentialsLogger
}

func NewCredentialsStorage(credentialsLogger credentialsLogger) *Credentials {
	// optional .env for local runs
	_ = godotenv.Load()

	credentials := Credentials{logger: credentialsLogger}

	credentials.apiKey = credentials.require("API_KEY")
	credentials.apiSecret = credentials.require("API_SECRET")
	credentials.symbol = getStr("SYMBOL", "GHDUSDT")
	credentials.httpURL = getStr("API_BASE", "http://localhost:9000")
	credentials.websocketURL = getStr("WS_URL", "ws://localhost:9000/ws")
	credentials.telegramBotAPIToken = os.Getenv("TELEGRAM_BOT_API_TOKEN")
	credentials.databaseDSN = os.Getenv("DATABASE_DSN")
	credentials.opsAddr = getStr("OPS_ADDR", ":8090")

	credentials.engine = EngineParams{
		Spread:      credentials.getFloat("SPREAD_PCT", 0.002),
		SkewFactor:  credentials.getFloat("SKEW_FACTOR", 0.05),
		ClipSize:    credentials.getFloat("CLIP_SIZE", 1),
		TickSize:    credentials.getFloat("TICK_SIZE", 0.0001),
		QtyStep:     credentials.getFloat("QTY_STEP", 0.001),
		MinNotional: credentials.getFloat("MIN_ORDER_NOTIONAL", 5),
		StaleAfter:  credentials.getDuration("STALE_AFTER", 5*time.Second),
		VolFactor:   credentials.getFloat("VOL_FACTOR", 0),
		VolWindow:   credentials.getInt("VOL_WINDOW", 300),

		MaxPosition:          credentials.getFloat("MAX_POSITION", 1000),
		MaxOrderSize:         credentials.getFloat("MAX_ORDER_SIZE", 100),
		MaxOpenOrdersPerSide: credentials.getInt("MAX_OPEN_ORDERS_PER_SIDE", 1),
		MinSpread:            credentials.getFloat("MIN_SPREAD", 0.0005),

		ReconcileInterval: credentials.getDuration("RECONCILE_INTERVAL", time.Second),
		DriftTolerance:    credentials.getFloat("DRIFT_TOLERANCE", 0.0005),
		GapWait:           credentials.getDuration("GAP_WAIT", 2*time.Second),
		ShutdownTimeout:   credentials.getDuration("SHUTDOWN_TIMEOUT", 5*time.Second),

		RateLimitCapacity:     credentials.getInt("RATE_LIMIT_CAPACITY", 10),
		RateLimitRefillPerSec: credentials.getFloat("RATE_LIMIT_REFILL", 5),

		HTTPMaxAttempts:    credentials.getInt("HTTP_MAX_ATTEMPTS", 3),
		HTTPBaseBackoff:    credentials.getDuration("HTTP_BASE_BACKOFF", 200*time.Millisecond),
		HTTPRequestTimeout: credentials.getDuration("HTTP_REQUEST_TIMEOUT", 2*time.Second),
		HTTPCoolDown:       credentials.getDuration("HTTP_COOLDOWN", time.Second),
	}

	return &credentials
}

func (credentials *Credentials) GetAPIKey() string {
	return credentials.apiKey
}

func (credentials *Credentials) GetAPISecret() string {
	return credentials.apiSecret
}

func (credentials *Credentials) GetSymbol() string {
	return credentials.symbol
}

func (credentials *Credentials) GetHTTPURL() string {
	return credentials.httpURL
}

func (credentials *Credentials) GetWebsocketURL() string {
	return credentials.websocketURL
}

func (credentials *Credentials) GetTelegramBotAPIToken() string {
	return credentials.telegramBotAPIToken
}

func (credentials *Credentials) GetDatabaseDSN() string {
	return credentials.databaseDSN
}

func (credentials *Credentials) GetOpsAddr() string {
	return credentials.opsAddr
}

func (credentials *Credentials) GetEngineParams() EngineParams {
	return credentials.engine
}

func (credentials *Credentials) require(keyName string) string {
	key := os.Getenv(keyName)
	if key == "" {
		credentials.logger.Panicf("Please set %s in system environment variables", keyName)
	}
	return key
}

func getStr(keyName string, fallback string) string {
	if value := os.Getenv(keyName); value != "" {
		return value
	}
	return fallback
}

func (credentials *Credentials) getFloat(keyName string, fallback float64) float64 {
	raw := os.Getenv(keyName)
	if raw == "" {
		return fallback
	}
	value, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		credentials.logger.Panicf("%s: %v", keyName, err)
	}
	return value
}

func (credentials *Credentials) getInt(keyName string, fallback int) int {
	raw := os.Getenv(keyName)
	if raw == "" {
		return fallback
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		credentials.logger.Panicf("%s: %v", keyName, err)
	}
	return value
}

func (credentials *Credentials) getDuration(keyName string, fallback time.Duration) time.Duration {
	raw := os.Getenv(keyName)
	if raw == "" {
		return fallback
	}
	value, err := time.ParseDuration(raw)
	if err != nil {
		credentials.logger.Panicf("%s: %v", keyName, err)
	}
	return value
}
