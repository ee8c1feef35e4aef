package config

import (
	"fmt"
	"time"

	"checkin.engine/internal/core"
	"checkin.engine/internal/core/face"
	"checkin.engine/internal/core/model"
	"checkin.engine/internal/core/shift"
	"github.com/spf13/viper"
)

// Services run in EKS with connection settings injected as pod environment
// variables; local runs read the same keys from the shell or a .env file.
type Config struct {
	DBHost         string `mapstructure:"DB_HOST"`
	DBPort         string `mapstructure:"DB_PORT"`
	DBUser         string `mapstructure:"DB_USER"`
	DBPassword     string `mapstructure:"DB_PASSWORD"`
	DBName         string `mapstructure:"DB_NAME"`
	DBSSLMode      string `mapstructure:"DB_SSLMODE"`
	DBMaxOpenConns int    `mapstructure:"DB_MAX_OPEN_CONNS"`
	DBMaxIdleConns int    `mapstructure:"DB_MAX_IDLE_CONNS"`
	DBMigrate      bool   `mapstructure:"DB_MIGRATE"`

	ServerPort            string `mapstructure:"SERVER_PORT"`
	AWSRegion             string `mapstructure:"AWS_REGION"`
	AWSEndpoint           string `mapstructure:"AWS_ENDPOINT"`
	AttendanceSQSQueueURL string `mapstructure:"ATTENDANCE_SQS_QUEUE_URL"`
	WorkerConcurrency     int    `mapstructure:"WORKER_CONCURRENCY"`
	LegacyAPIURL          string `mapstructure:"LEGACY_API_URL"`
	IsLocalDev            bool   `mapstructure:"IS_LOCAL_DEV"`
	OTLPEndpoint          string `mapstructure:"OTLP_ENDPOINT"`

	FaceModelURL     string        `mapstructure:"FACE_MODEL_URL"`
	FaceModelVersion string        `mapstructure:"FACE_MODEL_VERSION"`
	FaceModelTimeout time.Duration `mapstructure:"FACE_MODEL_TIMEOUT"`

	MatchThreshold          float64       `mapstructure:"MATCH_THRESHOLD"`
	LiveReadyThreshold      float64       `mapstructure:"LIVE_READY_THRESHOLD"`
	LiveRescoreEvery        int           `mapstructure:"LIVE_RESCORE_EVERY"`
	DefaultZoneRadiusMeters float64       `mapstructure:"DEFAULT_ZONE_RADIUS_METERS"`
	DefaultShiftStart       string        `mapstructure:"DEFAULT_SHIFT_START"`
	DefaultShiftEnd         string        `mapstructure:"DEFAULT_SHIFT_END"`
	DefaultToleranceMinutes int           `mapstructure:"DEFAULT_TOLERANCE_MINUTES"`
	DefaultAdvanceMinutes   int           `mapstructure:"DEFAULT_ADVANCE_MINUTES"`
	EarlyCheckOutWindowMins int           `mapstructure:"EARLY_CHECKOUT_WINDOW_MINUTES"`
	LocationMode            string        `mapstructure:"LOCATION_MODE"`
	AcquireTimeout          time.Duration `mapstructure:"ACQUIRE_TIMEOUT"`
	Timezone                string        `mapstructure:"TIMEZONE"`
}

// LoadConfig reads configuration from environment variables over defaults.
func LoadConfig() (config Config, err error) {
	v := viper.New()

	v.SetDefault("DB_HOST", "db")
	v.SetDefault("DB_PORT", "5432")
	v.SetDefault("DB_USER", "user")
	v.SetDefault("DB_PASSWORD", "password")
	v.SetDefault("DB_NAME", "attendance_db")
	v.SetDefault("DB_SSLMODE", "disable")
	v.SetDefault("DB_MAX_OPEN_CONNS", 10)
	v.SetDefault("DB_MAX_IDLE_CONNS", 5)
	v.SetDefault("DB_MIGRATE", true)

	v.SetDefault("SERVER_PORT", "8080")
	v.SetDefault("AWS_REGION", "us-east-1")
	v.SetDefault("AWS_ENDPOINT", "http://localstack:4566")
	v.SetDefault("ATTENDANCE_SQS_QUEUE_URL", "http://localstack:4566/000000000000/attendance-queue")
	v.SetDefault("WORKER_CONCURRENCY", 5)
	v.SetDefault("LEGACY_API_URL", "http://localhost:8081/")
	v.SetDefault("IS_LOCAL_DEV", false)
	v.SetDefault("OTLP_ENDPOINT", "")

	v.SetDefault("FACE_MODEL_URL", "http://localhost:8000")
	v.SetDefault("FACE_MODEL_VERSION", "")
	v.SetDefault("FACE_MODEL_TIMEOUT", "5s")

	v.SetDefault("MATCH_THRESHOLD", face.DefaultMatchThreshold)
	v.SetDefault("LIVE_READY_THRESHOLD", face.DefaultReadyThreshold)
	v.SetDefault("LIVE_RESCORE_EVERY", face.DefaultRescoreEvery)
	v.SetDefault("DEFAULT_ZONE_RADIUS_METERS", model.DefaultZoneRadiusMeters)
	v.SetDefault("DEFAULT_SHIFT_START", "08:00")
	v.SetDefault("DEFAULT_SHIFT_END", "17:00")
	v.SetDefault("DEFAULT_TOLERANCE_MINUTES", shift.DefaultToleranceMinutes)
	v.SetDefault("DEFAULT_ADVANCE_MINUTES", shift.DefaultAdvanceMinutes)
	v.SetDefault("EARLY_CHECKOUT_WINDOW_MINUTES", int(shift.DefaultEarlyClockOutWindow/time.Minute))
	v.SetDefault("LOCATION_MODE", string(model.ModeOnSite))
	v.SetDefault("ACQUIRE_TIMEOUT", "10s")
	v.SetDefault("TIMEZONE", "UTC")

	// Read in environment variables that match the keys.
	v.AutomaticEnv()

	err = v.Unmarshal(&config)
	return
}

// EngineSettings projects the engine configuration, validating the values
// that must parse.
func (c Config) EngineSettings() (core.Settings, error) {
	start, err := model.ParseTimeOfDay(c.DefaultShiftStart)
	if err != nil {
		return core.Settings{}, fmt.Errorf("DEFAULT_SHIFT_START: %w", err)
	}
	end, err := model.ParseTimeOfDay(c.DefaultShiftEnd)
	if err != nil {
		return core.Settings{}, fmt.Errorf("DEFAULT_SHIFT_END: %w", err)
	}
	mode, err := model.ParseLocationMode(c.LocationMode, model.ModeOnSite)
	if err != nil {
		return core.Settings{}, fmt.Errorf("LOCATION_MODE: %w", err)
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return core.Settings{}, fmt.Errorf("TIMEZONE: %w", err)
	}
	if c.MatchThreshold < 0 || c.MatchThreshold > 1 {
		return core.Settings{}, fmt.Errorf("MATCH_THRESHOLD must be within [0,1], got %v", c.MatchThreshold)
	}

	return core.Settings{
		Face: face.Settings{
			MatchThreshold: c.MatchThreshold,
			ModelVersion:   c.FaceModelVersion,
		},
		Live: face.LiveSettings{
			ReadyThreshold: c.LiveReadyThreshold,
			RescoreEvery:   c.LiveRescoreEvery,
		},
		DefaultSchedule: model.ShiftSchedule{
			StartTime:             start,
			EndTime:               end,
			ToleranceMinutes:      c.DefaultToleranceMinutes,
			ClockInAdvanceMinutes: c.DefaultAdvanceMinutes,
		},
		Policy: shift.Policy{
			EarlyClockOutWindow: time.Duration(c.EarlyCheckOutWindowMins) * time.Minute,
		},
		Mode:              mode,
		DefaultZoneRadius: c.DefaultZoneRadiusMeters,
		Location:          loc,
		AcquireTimeout:    c.AcquireTimeout,
	}, nil
}

// DSN builds the PostgreSQL connection URL.
func (c Config) DSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s",
		c.DBUser, c.DBPassword, c.DBHost, c.DBPort, c.DBName, c.DBSSLMode)
}
