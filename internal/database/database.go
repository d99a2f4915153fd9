package database

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/chandanyadavsde/vms-v2/internal/config"
	embeddedpostgres "github.com/fergusstrange/embedded-postgres"
	"github.com/sirupsen/logrus"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

const (
	embeddedDataPath = "./db_data"
	embeddedPort     = 5433
)

// DB wraps gorm.DB and includes a reference to an embedded process if active
type DB struct {
	*gorm.DB
	embedded *embeddedpostgres.EmbeddedPostgres
	// pgLog feeds embedded process output into the logger.
	pgLog io.Closer
	log   *logrus.Entry
}

// cleanupStaleEmbeddedPostgres cleans up leftover processes from a previous crash
func cleanupStaleEmbeddedPostgres(log *logrus.Entry) {
	pidFile := filepath.Join(embeddedDataPath, "postmaster.pid")

	data, err := os.ReadFile(pidFile)
	if err != nil {
		// No pid file = clean state
		return
	}

	// Parse PID from first line of postmaster.pid
	scanner := bufio.NewScanner(strings.NewReader(string(data)))
	if !scanner.Scan() {
		return
	}
	pid, err := strconv.Atoi(strings.TrimSpace(scanner.Text()))
	if err != nil {
		log.WithError(err).Warn("could not parse PID from postmaster.pid")
		return
	}

	process, err := os.FindProcess(pid)
	if err != nil {
		log.WithField("pid", pid).Info("removing stale postmaster.pid")
		os.Remove(pidFile)
		return
	}

	// On Unix, FindProcess always succeeds, so we need to send signal 0 to check
	if err := process.Signal(syscall.Signal(0)); err != nil {
		log.WithField("pid", pid).Info("removing stale postmaster.pid")
		os.Remove(pidFile)
		return
	}

	log.WithField("pid", pid).Warn("found orphaned PostgreSQL process, stopping it")
	if err := process.Signal(syscall.SIGTERM); err != nil {
		log.WithError(err).WithField("pid", pid).Warn("could not send SIGTERM")
	}

	// Wait up to 5 seconds for process to stop
	for i := 0; i < 10; i++ {
		time.Sleep(500 * time.Millisecond)
		if err := process.Signal(syscall.Signal(0)); err != nil {
			log.Info("orphaned PostgreSQL process stopped")
			os.Remove(pidFile)
			return
		}
	}

	log.WithField("pid", pid).Warn("process did not stop gracefully, sending SIGKILL")
	process.Kill()
	time.Sleep(500 * time.Millisecond)
	os.Remove(pidFile)
}

// isPortInUse checks if a port is already in use
func isPortInUse(port int) bool {
	conn, err := net.DialTimeout("tcp", fmt.Sprintf("127.0.0.1:%d", port), time.Second)
	if err != nil {
		return false
	}
	conn.Close()
	return true
}

// Connect establishes a connection to a PostgreSQL database (external or embedded)
func Connect(cfg config.DatabaseConfig, log *logrus.Entry) (*DB, error) {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	log = log.WithField("component", "database")
	var (
		embedded *embeddedpostgres.EmbeddedPostgres
		pgLog    *io.PipeWriter
	)

	// Embedded mode: localhost and no password
	isEmbedded := cfg.Host == "localhost" && cfg.Password == ""

	password := cfg.Password
	if isEmbedded {
		log.Info("mode: embedded PostgreSQL, initializing internal database")

		cleanupStaleEmbeddedPostgres(log)

		if isPortInUse(embeddedPort) {
			log.WithField("port", embeddedPort).Warn("port still in use, waiting for release")
			for i := 0; i < 6; i++ {
				time.Sleep(500 * time.Millisecond)
				if !isPortInUse(embeddedPort) {
					break
				}
			}
			if isPortInUse(embeddedPort) {
				return nil, fmt.Errorf("port %d is still in use by another process", embeddedPort)
			}
		}

		pgLog = log.WriterLevel(logrus.DebugLevel)
		embeddedCfg := embeddedpostgres.DefaultConfig().
			DataPath(embeddedDataPath).
			Port(uint32(embeddedPort)).
			Database(cfg.Database).
			Username(cfg.Username).
			Password("postgres").
			Logger(pgLog)

		embedded = embeddedpostgres.NewDatabase(embeddedCfg)

		if err := embedded.Start(); err != nil {
			_ = pgLog.Close()
			return nil, fmt.Errorf("failed to start embedded database: %w", err)
		}

		// Point the connection at the embedded instance
		cfg.Port = strconv.Itoa(embeddedPort)
		password = "postgres"
		log.WithField("port", embeddedPort).Info("embedded PostgreSQL process started")
	} else {
		log.WithFields(logrus.Fields{"host": cfg.Host, "port": cfg.Port}).Info("mode: external PostgreSQL")
	}

	dsn := fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=disable",
		cfg.Host,
		cfg.Port,
		cfg.Username,
		password,
		cfg.Database,
	)

	db, err := Open(dsn, cfg.LogSQL, log)
	if err != nil {
		// Clean up embedded process if GORM connection fails
		if embedded != nil {
			_ = embedded.Stop()
			_ = pgLog.Close()
		}
		return nil, err
	}
	db.embedded = embedded
	if pgLog != nil {
		db.pgLog = pgLog
	}

	log.Info("database connection established")
	return db, nil
}

// Open connects to dsn without any embedded-mode handling.
func Open(dsn string, logSQL bool, log *logrus.Entry) (*DB, error) {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}

	logLevel := logger.Warn
	if logSQL {
		logLevel = logger.Info
	}
	gormLogger := logger.New(log, logger.Config{
		SlowThreshold:             500 * time.Millisecond,
		LogLevel:                  logLevel,
		IgnoreRecordNotFoundError: true,
	})

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: gormLogger,
		NowFunc: func() time.Time {
			return time.Now().UTC()
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := db.DB()
	if err == nil {
		sqlDB.SetMaxIdleConns(10)
		sqlDB.SetMaxOpenConns(100)
		sqlDB.SetConnMaxLifetime(time.Hour)
	}

	return &DB{DB: db, log: log}, nil
}

// Ping checks that the database answers.
func (db *DB) Ping(ctx context.Context) error {
	sqlDB, err := db.DB.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

// Close ensures the database connection and embedded process are shut down
func (db *DB) Close() error {
	sqlDB, err := db.DB.DB()
	if err == nil {
		err = sqlDB.Close()
	}
	if db.embedded != nil {
		db.log.Info("stopping embedded PostgreSQL process")
		if stopErr := db.embedded.Stop(); stopErr != nil && err == nil {
			err = stopErr
		}
	}
	if db.pgLog != nil {
		_ = db.pgLog.Close()
		db.pgLog = nil
	}
	return err
}
