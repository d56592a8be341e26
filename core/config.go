package core

import (
	"fmt"
	"log"
	"net"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Store engines
const (
	EngineMemory   = "memory"
	EngineMongo    = "mongo"
	EnginePostgres = "postgres"
)

type (
	Config struct {
		Env          string
		Build        string
		Debug        bool
		TestMode     bool
		AppName      string
		SecretKey    string
		RollbarToken string

		Server     ServerConfig
		Store      StoreConfig
		Mongo      MongoConfig
		Database   DatabaseConfig
		Attendance AttendanceConfig
	}

	ServerConfig struct {
		Host               string
		Address            string
		DebugHost          string
		DisableReqLogs     bool
		ShutdownTimeout    time.Duration
		JWTExpirationDelta time.Duration
	}

	StoreConfig struct {
		Engine       string // memory | mongo | postgres
		MaxBatchSize int
	}

	MongoConfig struct {
		URI         string
		Database    string
		Timeout     time.Duration
		Transaction bool // multi-document transactions for batches and multi-stage updates; needs a replica set
	}

	// DatabaseConfig is used by the postgres document store.
	DatabaseConfig struct {
		Engine        string
		Host          string
		Port          string
		Name          string
		User          string
		Password      string
		AdminUser     string
		AdminPassword string
		DisableTLS    bool
	}

	AttendanceConfig struct {
		// Semester forces the semester ID used when a request does not name one.
		// Empty means it is derived from the date (see attendance.SemesterFor).
		Semester string
	}
)

func (dbConf DatabaseConfig) Address() string {
	return net.JoinHostPort(dbConf.Host, dbConf.Port)
}

func newViper() *viper.Viper {
	v := viper.New()

	// defaults
	v.SetTypeByDefaultValue(true)
	v.SetDefault("build", "dev")
	v.SetDefault("debug", true)
	v.SetDefault("testMode", false)
	v.SetDefault("appName", "Presensi")
	v.SetDefault("secretKey", "k2n!7x-presensi$q@v0c9+wr1ba8=z6d(lh#3f^u)e5gmyjt")
	v.SetDefault("rollbarToken", "")

	v.SetDefault("server.host", "localhost")
	v.SetDefault("server.address", ":8000")
	v.SetDefault("server.debugHost", ":4000")
	v.SetDefault("server.disableReqLogs", false)
	v.SetDefault("server.shutdownTimeout", 5*time.Second)
	v.SetDefault("server.jwtExpirationDelta", 7*24*time.Hour)

	v.SetDefault("store.engine", EngineMemory)
	v.SetDefault("store.maxBatchSize", 500)

	v.SetDefault("mongo.uri", "mongodb://localhost:27017")
	v.SetDefault("mongo.database", "presensi")
	v.SetDefault("mongo.timeout", 10*time.Second)
	v.SetDefault("mongo.transaction", true)

	v.SetDefault("database.engine", "postgres")
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", "5432")
	v.SetDefault("database.name", "presensi")
	v.SetDefault("database.user", "presensi")
	v.SetDefault("database.password", "")
	v.SetDefault("database.adminUser", "")
	v.SetDefault("database.adminPassword", "")
	v.SetDefault("database.disableTLS", true)

	v.SetDefault("attendance.semester", "")

	env := strings.ToUpper(os.Getenv("ENV")) // DEV (local; default), TEST, QA, PROD
	switch env {
	case "":
		env = "DEV"
	case "TEST":
		v.SetDefault("testMode", true)
	}
	v.SetDefault("env", env)
	v.SetEnvPrefix(env)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// load .env if it exists (ignore if it does not)
	dotEnvPath := filepath.Join(ProjectRoot(), "config", ".env."+strings.ToLower(env))
	if _, err := os.Stat(dotEnvPath); err == nil {
		if err := godotenv.Load(dotEnvPath); err != nil {
			log.Fatalf("config.godotenv(%s): %v", dotEnvPath, err)
		}
	} else if !os.IsNotExist(err) {
		log.Fatalf("config.os.Stat(%s): %v", dotEnvPath, err)
	}
	v.AutomaticEnv()
	return v
}

// NewConfig loads the application Config from defaults, the env's .env file and the environment.
func NewConfig() *Config {
	v := newViper()

	conf := &Config{
		Env:          v.GetString("env"),
		Build:        v.GetString("build"),
		Debug:        v.GetBool("debug"),
		TestMode:     v.GetBool("testMode"),
		AppName:      v.GetString("appName"),
		SecretKey:    v.GetString("secretKey"),
		RollbarToken: v.GetString("rollbarToken"),
		Server: ServerConfig{
			Host:               v.GetString("server.host"),
			Address:            v.GetString("server.address"),
			DebugHost:          v.GetString("server.debugHost"),
			DisableReqLogs:     v.GetBool("server.disableReqLogs"),
			ShutdownTimeout:    v.GetDuration("server.shutdownTimeout"),
			JWTExpirationDelta: v.GetDuration("server.jwtExpirationDelta"),
		},
		Store: StoreConfig{
			Engine:       strings.ToLower(v.GetString("store.engine")),
			MaxBatchSize: v.GetInt("store.maxBatchSize"),
		},
		Mongo: MongoConfig{
			URI:         v.GetString("mongo.uri"),
			Database:    v.GetString("mongo.database"),
			Timeout:     v.GetDuration("mongo.timeout"),
			Transaction: v.GetBool("mongo.transaction"),
		},
		Database: DatabaseConfig{
			Engine:        v.GetString("database.engine"),
			Host:          v.GetString("database.host"),
			Port:          v.GetString("database.port"),
			Name:          v.GetString("database.name"),
			User:          v.GetString("database.user"),
			Password:      v.GetString("database.password"),
			AdminUser:     v.GetString("database.adminUser"),
			AdminPassword: v.GetString("database.adminPassword"),
			DisableTLS:    v.GetBool("database.disableTLS"),
		},
		Attendance: AttendanceConfig{
			Semester: v.GetString("attendance.semester"),
		},
	}
	if conf.Store.MaxBatchSize <= 0 {
		log.Fatal(fmt.Sprintf("config: store.maxBatchSize must be positive (got %d)", conf.Store.MaxBatchSize))
	}
	return conf
}
