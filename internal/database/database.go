package database

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"os"
	"sync"
	"time"

	"mekassarat_back_end/internal/config"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/gocql/gocql"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// --- Configuration ScyllaDB ---
type ScyllaKeyspaceConfig struct {
	Hosts       []string
	Keyspace    string
	Username    string
	Password    string
	SSLEnabled  bool
	CACertPath  string
	Timeout     time.Duration
	NumConns    int
	Consistency gocql.Consistency
}

type ScyllaManager struct {
	sessions map[string]*gocql.Session // keyspace → session
	configs  map[string]ScyllaKeyspaceConfig
	mu       sync.Mutex
}

// Connections regroupe les clients ouverts au démarrage
type Connections struct {
	Scylla   *ScyllaManager
	Products *gocql.Session
	Orders   *gocql.Session
	Redis    *redis.Client
	Elastic  *elasticsearch.Client
	MinIO    *minio.Client
}

// --- Initialisation ---
func Connect(cfg *config.Config) (*Connections, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	conns := &Connections{}

	// 1. ScyllaDB (keyspaces produits + commandes)
	manager := NewScyllaManager(cfg.Scylla)
	products, err := manager.GetSession(cfg.Scylla.ProductsKeyspace)
	if err != nil {
		return nil, fmt.Errorf("keyspace produits: %w", err)
	}
	orders, err := manager.GetSession(cfg.Scylla.OrdersKeyspace)
	if err != nil {
		manager.Close()
		return nil, fmt.Errorf("keyspace commandes: %w", err)
	}
	conns.Scylla, conns.Products, conns.Orders = manager, products, orders

	// 2. Redis
	if conns.Redis, err = connectRedis(ctx, cfg.Redis); err != nil {
		conns.Close()
		return nil, err
	}

	// 3. Elasticsearch (optionnel: recherche locale sinon)
	if cfg.Elastic.URL != "" {
		if conns.Elastic, err = connectElastic(cfg.Elastic); err != nil {
			zap.S().Warnf("⚠️ Elasticsearch indisponible, recherche locale: %v", err)
		}
	}

	// 4. MinIO (optionnel: pas d'upload d'images sinon)
	if cfg.MinIO.Endpoint != "" {
		if conns.MinIO, err = connectMinIO(ctx, cfg.MinIO); err != nil {
			conns.Close()
			return nil, err
		}
	}

	zap.S().Info("✅ Toutes les bases de données sont connectées")
	return conns, nil
}

func (c *Connections) Close() {
	if c.Scylla != nil {
		c.Scylla.Close()
	}
	if c.Redis != nil {
		_ = c.Redis.Close()
	}
}

// =============================================
// SCYLLA DB (Multi-Keyspaces avec SSL & Rôles)
// =============================================

func NewScyllaManager(cfg config.ScyllaConfig) *ScyllaManager {
	return &ScyllaManager{
		sessions: make(map[string]*gocql.Session),
		configs:  keyspaceConfigs(cfg),
	}
}

// keyspaceConfigs décline la configuration commune par keyspace
func keyspaceConfigs(cfg config.ScyllaConfig) map[string]ScyllaKeyspaceConfig {
	configs := make(map[string]ScyllaKeyspaceConfig)

	base := ScyllaKeyspaceConfig{
		Hosts:       cfg.Hosts,
		SSLEnabled:  cfg.SSLEnabled,
		CACertPath:  cfg.CACertPath,
		Timeout:     5 * time.Second,
		NumConns:    20,
		Consistency: gocql.Quorum,
	}

	if cfg.ProductsKeyspace != "" {
		ks := base
		ks.Keyspace, ks.Username, ks.Password = cfg.ProductsKeyspace, cfg.ProductsRole, cfg.ProductsPassword
		configs[ks.Keyspace] = ks
	}
	if cfg.OrdersKeyspace != "" {
		ks := base
		ks.Keyspace, ks.Username, ks.Password = cfg.OrdersKeyspace, cfg.OrdersRole, cfg.OrdersPassword
		configs[ks.Keyspace] = ks
	}
	return configs
}

// createScyllaCluster crée une configuration de cluster pour un keyspace
func createScyllaCluster(config ScyllaKeyspaceConfig) (*gocql.ClusterConfig, error) {
	cluster := gocql.NewCluster(config.Hosts...)
	cluster.Keyspace = config.Keyspace
	cluster.Consistency = config.Consistency
	// les LWT du stock passent en SERIAL
	cluster.SerialConsistency = gocql.Serial
	cluster.Timeout = config.Timeout
	cluster.NumConns = config.NumConns

	cluster.MaxWaitSchemaAgreement = 30 * time.Second
	cluster.ReconnectInterval = 1 * time.Second
	if config.Username != "" {
		cluster.Authenticator = gocql.PasswordAuthenticator{
			Username: config.Username,
			Password: config.Password,
		}
	}

	if config.SSLEnabled {
		tlsConfig := &tls.Config{MinVersion: tls.VersionTLS12}
		if config.CACertPath != "" {
			caCert, err := os.ReadFile(config.CACertPath)
			if err != nil {
				return nil, fmt.Errorf("impossible de lire le certificat CA: %v", err)
			}
			caCertPool := x509.NewCertPool()
			if !caCertPool.AppendCertsFromPEM(caCert) {
				return nil, fmt.Errorf("impossible de parser le certificat CA")
			}
			tlsConfig.RootCAs = caCertPool
		}
		cluster.SslOpts = &gocql.SslOptions{Config: tlsConfig, EnableHostVerification: true}
	}

	cluster.PoolConfig.HostSelectionPolicy = gocql.TokenAwareHostPolicy(gocql.RoundRobinHostPolicy())

	return cluster, nil
}

// GetSession retourne une session pour un keyspace donné
func (sm *ScyllaManager) GetSession(keyspace string) (*gocql.Session, error) {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	config, exists := sm.configs[keyspace]
	if !exists {
		return nil, fmt.Errorf("keyspace '%s' non configuré", keyspace)
	}

	if session, exists := sm.sessions[keyspace]; exists && !session.Closed() {
		return session, nil
	}

	cluster, err := createScyllaCluster(config)
	if err != nil {
		return nil, fmt.Errorf("erreur configuration cluster pour %s: %v", keyspace, err)
	}

	session, err := cluster.CreateSession()
	if err != nil {
		return nil, fmt.Errorf("erreur création session pour %s: %v", keyspace, err)
	}

	sm.sessions[keyspace] = session
	zap.S().Infof("✅ Nouvelle session ScyllaDB pour keyspace '%s' (utilisateur: %s)", keyspace, config.Username)

	return session, nil
}

// Close ferme toutes les sessions ScyllaDB
func (sm *ScyllaManager) Close() {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	for keyspace, session := range sm.sessions {
		session.Close()
		zap.S().Infof("🔌 Session ScyllaDB fermée pour keyspace '%s'", keyspace)
	}
	sm.sessions = make(map[string]*gocql.Session)
}

// =============================================
// REDIS
// =============================================
func connectRedis(ctx context.Context, cfg config.RedisConfig) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Host,
		Password: cfg.Password,
		DB:       0,
	})

	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("connexion Redis: %w", err)
	}
	zap.S().Info("✅ Connecté à Redis")
	return rdb, nil
}

// =============================================
// ELASTICSEARCH
// =============================================
func connectElastic(cfg config.ElasticConfig) (*elasticsearch.Client, error) {
	client, err := elasticsearch.NewClient(elasticsearch.Config{
		Addresses: []string{cfg.URL},
		Username:  cfg.User,
		Password:  cfg.Password,
	})
	if err != nil {
		return nil, fmt.Errorf("création client Elasticsearch: %w", err)
	}

	res, err := client.Info()
	if err != nil {
		return nil, fmt.Errorf("connexion Elasticsearch: %w", err)
	}
	defer res.Body.Close()
	if res.IsError() {
		return nil, fmt.Errorf("elasticsearch: %s", res.Status())
	}

	zap.S().Info("✅ Connecté à Elasticsearch")
	return client, nil
}

// =============================================
// MINIO
// =============================================
func connectMinIO(ctx context.Context, cfg config.MinIOConfig) (*minio.Client, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("connexion MinIO: %w", err)
	}

	exists, err := client.BucketExists(ctx, cfg.Bucket)
	if err != nil {
		return nil, fmt.Errorf("vérification bucket MinIO: %w", err)
	}
	if !exists {
		if err := client.MakeBucket(ctx, cfg.Bucket, minio.MakeBucketOptions{}); err != nil {
			return nil, fmt.Errorf("création bucket MinIO: %w", err)
		}
		zap.S().Infof("🪣 Bucket créé : %s", cfg.Bucket)
	} else {
		zap.S().Infof("🪣 Bucket MinIO déjà présent : %s", cfg.Bucket)
	}

	zap.S().Infof("✅ Connecté à MinIO : %s", cfg.Endpoint)
	return client, nil
}
