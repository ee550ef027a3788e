package config

import (
	"errors"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// EnvPrefix es el prefijo de todas las variables de entorno (GRADER_PORT, GRADER_DATA_DIR, ...)
const EnvPrefix = "GRADER"

// Claves de configuración. Coinciden con los nombres de los flags de la CLI.
const (
	KeyHost                   = "host"
	KeyPort                   = "port"
	KeyEnvironment            = "environment"
	KeyCompetitionID          = "competition-id"
	KeyDataDir                = "data-dir"
	KeyUploadDir              = "upload-dir"
	KeyMaxUploadSize          = "max-upload-size"
	KeyValidatorTimeout       = "validator-timeout"
	KeyValidatorMaxConcurrent = "validator-max-concurrent"
	KeyRedisEnabled           = "redis-enabled"
	KeyRedisHost              = "redis-host"
	KeyRedisPort              = "redis-port"
	KeyRedisPassword          = "redis-password"
	KeyRedisDB                = "redis-db"
	KeyDBEnabled              = "db-enabled"
	KeyDBHost                 = "db-host"
	KeyDBPort                 = "db-port"
	KeyDBUser                 = "db-user"
	KeyDBPassword             = "db-password"
	KeyDBName                 = "db-name"
	KeyDBSSLMode              = "db-sslmode"
	KeyWebhookURL             = "webhook-url"
	KeyWebhookTimeout         = "webhook-timeout"
	KeyWebhookRetries         = "webhook-retries"
	KeyWebhookSecret          = "webhook-secret"
)

var (
	ErrMissingCompetitionID = errors.New("competition id is required (--competition-id)")
	ErrMissingDataDir       = errors.New("data directory is required (--data-dir)")
)

// Config contiene toda la configuración del servidor de validación
type Config struct {
	// Server configuration
	ServerHost  string
	ServerPort  string
	Environment string

	// Competition configuration
	CompetitionID string
	DataDir       string

	// Upload configuration
	UploadDir     string
	MaxUploadSize int64 // bytes, 0 = sin límite propio

	// Validator configuration
	ValidatorTimeout       time.Duration // 0 = sin timeout
	ValidatorMaxConcurrent int

	// Redis configuration (estadísticas)
	RedisEnabled  bool
	RedisHost     string
	RedisPort     string
	RedisPassword string
	RedisDB       int

	// Database configuration (historial)
	DBEnabled  bool
	DBHost     string
	DBPort     string
	DBUser     string
	DBPassword string
	DBName     string
	DBSSLMode  string

	// Webhook configuration
	WebhookURL     string
	WebhookTimeout time.Duration
	WebhookRetries int
	WebhookSecret  string
}

// SetDefaults registra los valores por defecto en la instancia de viper
func SetDefaults(v *viper.Viper) {
	// Server
	v.SetDefault(KeyHost, "127.0.0.1")
	v.SetDefault(KeyPort, "5000")
	v.SetDefault(KeyEnvironment, "development")

	// Uploads
	v.SetDefault(KeyUploadDir, os.TempDir())
	v.SetDefault(KeyMaxUploadSize, int64(0))

	// Validator
	v.SetDefault(KeyValidatorTimeout, time.Duration(0))
	v.SetDefault(KeyValidatorMaxConcurrent, 4)

	// Redis
	v.SetDefault(KeyRedisEnabled, false)
	v.SetDefault(KeyRedisHost, "localhost")
	v.SetDefault(KeyRedisPort, "6379")
	v.SetDefault(KeyRedisPassword, "")
	v.SetDefault(KeyRedisDB, 0)

	// Database
	v.SetDefault(KeyDBEnabled, false)
	v.SetDefault(KeyDBHost, "localhost")
	v.SetDefault(KeyDBPort, "5432")
	v.SetDefault(KeyDBUser, "grader")
	v.SetDefault(KeyDBPassword, "grader")
	v.SetDefault(KeyDBName, "grader")
	v.SetDefault(KeyDBSSLMode, "disable")

	// Webhook
	v.SetDefault(KeyWebhookURL, "")
	v.SetDefault(KeyWebhookTimeout, 10*time.Second)
	v.SetDefault(KeyWebhookRetries, 2)
	v.SetDefault(KeyWebhookSecret, "")
}

// RegisterFlags declara los flags de arranque del servidor
func RegisterFlags(flags *pflag.FlagSet) {
	flags.String(KeyCompetitionID, "", "Competition ID to validate submissions for")
	flags.String(KeyDataDir, "", "Path to the data directory containing prepared competitions")
	flags.String(KeyHost, "127.0.0.1", "Host to bind to")
	flags.Int(KeyPort, 5000, "Port to listen on")
}

// New crea una instancia de viper con defaults, variables de entorno y flags enlazados
func New(flags *pflag.FlagSet) (*viper.Viper, error) {
	// Cargar .env si existe (útil para desarrollo)
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Printf("Warning: failed to load .env file: %v", err)
	}

	v := viper.New()
	SetDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	if flags != nil {
		if err := v.BindPFlags(flags); err != nil {
			return nil, fmt.Errorf("failed to bind flags: %w", err)
		}
	}

	return v, nil
}

// Load construye la configuración a partir de viper y la valida
func Load(v *viper.Viper) (*Config, error) {
	config := &Config{
		// Server
		ServerHost:  v.GetString(KeyHost),
		ServerPort:  v.GetString(KeyPort),
		Environment: v.GetString(KeyEnvironment),

		// Competition
		CompetitionID: strings.TrimSpace(v.GetString(KeyCompetitionID)),
		DataDir:       strings.TrimSpace(v.GetString(KeyDataDir)),

		// Uploads
		UploadDir:     v.GetString(KeyUploadDir),
		MaxUploadSize: v.GetInt64(KeyMaxUploadSize),

		// Validator
		ValidatorTimeout:       v.GetDuration(KeyValidatorTimeout),
		ValidatorMaxConcurrent: v.GetInt(KeyValidatorMaxConcurrent),

		// Redis
		RedisEnabled:  v.GetBool(KeyRedisEnabled),
		RedisHost:     v.GetString(KeyRedisHost),
		RedisPort:     v.GetString(KeyRedisPort),
		RedisPassword: v.GetString(KeyRedisPassword),
		RedisDB:       v.GetInt(KeyRedisDB),

		// Database
		DBEnabled:  v.GetBool(KeyDBEnabled),
		DBHost:     v.GetString(KeyDBHost),
		DBPort:     v.GetString(KeyDBPort),
		DBUser:     v.GetString(KeyDBUser),
		DBPassword: v.GetString(KeyDBPassword),
		DBName:     v.GetString(KeyDBName),
		DBSSLMode:  v.GetString(KeyDBSSLMode),

		// Webhook
		WebhookURL:     v.GetString(KeyWebhookURL),
		WebhookTimeout: v.GetDuration(KeyWebhookTimeout),
		WebhookRetries: v.GetInt(KeyWebhookRetries),
		WebhookSecret:  v.GetString(KeyWebhookSecret),
	}

	if config.ValidatorMaxConcurrent <= 0 {
		log.Printf("Warning: invalid validator concurrency %d, using default: 4", config.ValidatorMaxConcurrent)
		config.ValidatorMaxConcurrent = 4
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

// Validate verifica los campos obligatorios
func (c *Config) Validate() error {
	if c.CompetitionID == "" {
		return ErrMissingCompetitionID
	}
	if c.DataDir == "" {
		return ErrMissingDataDir
	}
	port, err := strconv.Atoi(c.ServerPort)
	if err != nil || port < 1 || port > 65535 {
		return fmt.Errorf("invalid port %q", c.ServerPort)
	}
	if c.MaxUploadSize < 0 {
		return fmt.Errorf("invalid max upload size %d", c.MaxUploadSize)
	}
	return nil
}

// Addr retorna la dirección host:port en la que escucha el servidor
func (c *Config) Addr() string {
	return c.ServerHost + ":" + c.ServerPort
}

// BaseURL retorna la URL base del servidor
func (c *Config) BaseURL() string {
	return "http://" + c.Addr()
}

// GetDatabaseDSN retorna el connection string para PostgreSQL
func (c *Config) GetDatabaseDSN() string {
	return "host=" + c.DBHost +
		" port=" + c.DBPort +
		" user=" + c.DBUser +
		" password=" + c.DBPassword +
		" dbname=" + c.DBName +
		" sslmode=" + c.DBSSLMode
}

// GetRedisAddr retorna la dirección de Redis
func (c *Config) GetRedisAddr() string {
	return c.RedisHost + ":" + c.RedisPort
}

// IsDevelopment verifica si estamos en modo desarrollo
func (c *Config) IsDevelopment() bool {
	return c.Environment == "development"
}

// IsProduction verifica si estamos en modo producción
func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}
