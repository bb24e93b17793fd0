package config

import (
	"log"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/cast"
)

type Config struct {
	Port        string
	GinMode     string
	JWTSecret   string
	FrontendURL string
	CORSOrigins []string

	Scylla  ScyllaConfig
	Redis   RedisConfig
	Elastic ElasticConfig
	MinIO   MinIOConfig
	Stripe  StripeConfig
	SMTP    SMTPConfig
	Shop    ShopConfig
	Log     LogConfig

	NotifyWorkers int
	LowStockCron  string
}

type ScyllaConfig struct {
	Hosts            []string
	ProductsKeyspace string
	ProductsRole     string
	ProductsPassword string
	OrdersKeyspace   string
	OrdersRole       string
	OrdersPassword   string
	SSLEnabled       bool
	CACertPath       string
}

type RedisConfig struct {
	Host     string
	Password string
}

type ElasticConfig struct {
	URL      string
	User     string
	Password string
}

type MinIOConfig struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
}

type StripeConfig struct {
	SecretKey     string
	WebhookSecret string
	Currency      string
}

type SMTPConfig struct {
	Host       string
	Port       int
	Username   string
	Password   string
	From       string
	AdminEmail string
}

// ShopConfig regroupe la politique commerciale (livraison, taxe)
type ShopConfig struct {
	DiscountCities []string
	DiscountRate   float64
	StandardRate   float64
	TaxRate        float64
}

type LogConfig struct {
	Mode string
	File string
}

func Load() *Config {
	err := godotenv.Load(".env")
	if err != nil {
		log.Println("⚠️  Aucun fichier .env trouvé, on continue avec les variables d'environnement du système")
	} else {
		log.Println("✅ Fichier .env chargé avec succès")
	}
	return FromEnv()
}

// FromEnv lit la configuration sans toucher au fichier .env
func FromEnv() *Config {
	return &Config{
		Port:        getEnv("PORT", "8080"),
		GinMode:     getEnv("GIN_MODE", "debug"),
		JWTSecret:   getEnv("JWT_SECRET", "super_secret"),
		FrontendURL: getEnv("FRONTEND_URL", "http://localhost:3000"),
		CORSOrigins: splitList(getEnv("CORS_ORIGINS", "http://localhost:3000")),
		Scylla: ScyllaConfig{
			Hosts:            splitList(os.Getenv("SCYLLA_HOSTS")),
			ProductsKeyspace: os.Getenv("SCYLLA_KS_PRODUCTS_KEYSPACE"),
			ProductsRole:     os.Getenv("SCYLLA_KS_PRODUCTS_ROLE"),
			ProductsPassword: os.Getenv("SCYLLA_KS_PRODUCTS_PASSWORD"),
			OrdersKeyspace:   os.Getenv("SCYLLA_KS_ORDERS_KEYSPACE"),
			OrdersRole:       os.Getenv("SCYLLA_KS_ORDERS_ROLE"),
			OrdersPassword:   os.Getenv("SCYLLA_KS_ORDERS_PASSWORD"),
			SSLEnabled:       cast.ToBool(os.Getenv("SCYLLA_SSL_ENABLED")),
			CACertPath:       os.Getenv("SCYLLA_SSL_CA_PATH"),
		},
		Redis: RedisConfig{
			Host:     os.Getenv("REDIS_HOST"),
			Password: os.Getenv("REDIS_PASSWORD"),
		},
		Elastic: ElasticConfig{
			URL:      os.Getenv("ELASTIC_URL"),
			User:     os.Getenv("ELASTIC_USER"),
			Password: os.Getenv("ELASTIC_PASSWORD"),
		},
		MinIO: MinIOConfig{
			Endpoint:  os.Getenv("MINIO_ENDPOINT"),
			AccessKey: os.Getenv("MINIO_ACCESS_KEY"),
			SecretKey: os.Getenv("MINIO_SECRET_KEY"),
			Bucket:    getEnv("MINIO_BUCKET", "mekassarat-images"),
			UseSSL:    cast.ToBool(os.Getenv("MINIO_USE_SSL")),
		},
		Stripe: StripeConfig{
			SecretKey:     os.Getenv("STRIPE_SECRET_KEY"),
			WebhookSecret: os.Getenv("STRIPE_WEBHOOK_SECRET"),
			Currency:      strings.ToLower(getEnv("STRIPE_CURRENCY", "egp")),
		},
		SMTP: SMTPConfig{
			Host:       os.Getenv("SMTP_HOST"),
			Port:       cast.ToInt(getEnv("SMTP_PORT", "587")),
			Username:   os.Getenv("SMTP_USERNAME"),
			Password:   os.Getenv("SMTP_PASSWORD"),
			From:       getEnv("MAIL_FROM", "noreply@mekassarat.com"),
			AdminEmail: os.Getenv("ADMIN_EMAIL"),
		},
		Shop: ShopConfig{
			DiscountCities: splitList(getEnv("SHIPPING_DISCOUNT_CITIES", "Cairo,Giza")),
			DiscountRate:   cast.ToFloat64(getEnv("SHIPPING_DISCOUNT_RATE", "70")),
			StandardRate:   cast.ToFloat64(getEnv("SHIPPING_STANDARD_RATE", "100")),
			TaxRate:        cast.ToFloat64(getEnv("TAX_RATE", "0")),
		},
		Log: LogConfig{
			Mode: getEnv("LOG_MODE", "development"),
			File: os.Getenv("LOG_FILE"),
		},
		NotifyWorkers: cast.ToInt(getEnv("NOTIFY_WORKERS", "8")),
		LowStockCron:  getEnv("LOW_STOCK_CRON", "0 0 8 * * *"),
	}
}

// InMemory indique que le serveur tourne sans ScyllaDB (mode développement)
func (c *Config) InMemory() bool {
	return len(c.Scylla.Hosts) == 0
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
