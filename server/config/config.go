package config

import (
	"errors"
	"fmt"
	"io/fs"
	"math"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"go.uber.org/zap"
)

type Config struct {
	Link       LinkConfig       `json:"link"`
	Preprocess PreprocessConfig `json:"preprocess"`
	Hough      HoughConfig      `json:"hough"`
	Control    ControlConfig    `json:"control"`
	Camera     CameraConfig     `json:"camera"`
	Network    NetworkConfig    `json:"network"`
	Server     ServerConfig     `json:"server"`
	Logging    LoggingConfig    `json:"logging"`
}

// LinkConfig addresses the actuator board and the local telemetry socket.
type LinkConfig struct {
	PeerAddr       string        `json:"peer_addr" validate:"required,ip"`
	PeerPort       int           `json:"peer_port" validate:"min=1,max=65535"`
	LocalAddr      string        `json:"local_addr" validate:"required,ip"`
	LocalPort      int           `json:"local_port" validate:"min=1,max=65535"`
	SendPeriod     time.Duration `json:"send_period" validate:"min=1ms"`
	ReceiveTimeout time.Duration `json:"receive_timeout" validate:"min=1ms"`
	ReadBufferSize int           `json:"read_buffer_size" validate:"min=64"`
	// StaleAfter is how old the latest control message may get before the
	// sender falls back to a safe stop; zero disables the check.
	StaleAfter time.Duration `json:"stale_after" validate:"min=0"`
}

type PreprocessConfig struct {
	// WhitePct is the gray level, as a percentage of 255, above which a pixel counts as track marking.
	WhitePct float64 `json:"white_pct" validate:"min=0,max=100"`
	// CutoffRow blanks every mask row above it.
	CutoffRow int `json:"cutoff_row" validate:"min=0"`
	// VegetationLower/Upper bound the HLS range treated as grass, inclusive.
	VegetationLower [3]float64 `json:"vegetation_lower"`
	VegetationUpper [3]float64 `json:"vegetation_upper"`
	KernelSize      int        `json:"kernel_size" validate:"min=1,max=31"`
}

type HoughConfig struct {
	CannyLow      float32 `json:"canny_low" validate:"min=0"`
	CannyHigh     float32 `json:"canny_high" validate:"gtfield=CannyLow"`
	Rho           float32 `json:"rho" validate:"gt=0"`
	ThetaStep     float32 `json:"theta_step" validate:"gt=0,lte=3.1416"`
	VoteThreshold int     `json:"vote_threshold" validate:"min=1"`
	MinLength     float32 `json:"min_length" validate:"gt=0"`
	MaxGap        float32 `json:"max_gap" validate:"min=0"`
	// MinAbsSlope/MaxAbsSlope filter segments by |dy/dx|; zero disables a bound.
	MinAbsSlope float64 `json:"min_abs_slope" validate:"min=0"`
	MaxAbsSlope float64 `json:"max_abs_slope" validate:"min=0"`
}

type ControlConfig struct {
	// SmoothingAlpha weights the newest centerline estimate in the EMA.
	SmoothingAlpha   float64 `json:"smoothing_alpha" validate:"gt=0,lte=1"`
	ThrottleSafeLow  float64 `json:"throttle_safe_low" validate:"min=0,max=100"`
	ThrottleSafeHigh float64 `json:"throttle_safe_high" validate:"min=0,max=100,gtefield=ThrottleSafeLow"`
	CruiseThrottle   float64 `json:"cruise_throttle" validate:"min=0,max=100"`
	// SteeringGain scales the normalised horizontal offset of the centerline.
	SteeringGain    float64 `json:"steering_gain" validate:"gt=0"`
	SteeringLimit   float64 `json:"steering_limit" validate:"gt=0"`
	MaxMissedFrames int     `json:"max_missed_frames" validate:"min=1"`
}

type CameraConfig struct {
	Source      string `json:"source" validate:"required"`
	Width       int    `json:"width" validate:"min=16"`
	Height      int    `json:"height" validate:"min=16"`
	QueueDepth  int    `json:"queue_depth" validate:"min=1"`
	MaxFailures int    `json:"max_failures" validate:"min=1"`
}

type NetworkConfig struct {
	Interface   string `json:"interface"`
	AddressCIDR string `json:"address_cidr" validate:"omitempty,cidr"`
}

type ServerConfig struct {
	HTTPAddr       string        `json:"http_addr"`
	Environment    string        `json:"environment"`
	AllowedOrigins []string      `json:"allowed_origins"`
	AllowedIPs     []string      `json:"allowed_ips"`
	RateLimitRPS   int           `json:"rate_limit_rps" validate:"min=1"`
	RateLimitBurst int           `json:"rate_limit_burst" validate:"min=1"`
	ReadTimeout    time.Duration `json:"read_timeout"`
	WriteTimeout   time.Duration `json:"write_timeout"`
	PeerCacheSize  int           `json:"peer_cache_size" validate:"min=1"`
	PeerTTL        time.Duration `json:"peer_ttl" validate:"min=1s"`
}

type LoggingConfig struct {
	Level      string `json:"level" validate:"oneof=debug info warn error"`
	Format     string `json:"format" validate:"oneof=json console"`
	Output     string `json:"output"`
	MaxSize    int    `json:"max_size"`
	MaxBackups int    `json:"max_backups"`
	MaxAge     int    `json:"max_age"`
}

// LoadConfig reads an optional .env file (ENV_FILE overrides the path) and then
// the environment. Only a missing file is tolerated; a malformed one is an error.
func LoadConfig() (*Config, error) {
	envFile := getEnv("ENV_FILE", ".env")
	// A missing .env is normal on the vehicle; variables come from the unit file there.
	if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load %s: %w", envFile, err)
	}

	config := &Config{
		Link: LinkConfig{
			PeerAddr:       getEnv("PEER_ADDR", "192.168.0.177"),
			PeerPort:       getEnvAsInt("PEER_PORT", 8888),
			LocalAddr:      getEnv("LOCAL_ADDR", "0.0.0.0"),
			LocalPort:      getEnvAsInt("LOCAL_PORT", 8888),
			SendPeriod:     getEnvAsDuration("SEND_PERIOD", 250*time.Millisecond),
			ReceiveTimeout: getEnvAsDuration("RECEIVE_TIMEOUT", 100*time.Millisecond),
			ReadBufferSize: getEnvAsInt("READ_BUFFER_SIZE", 4096),
			StaleAfter:     getEnvAsDuration("STALE_AFTER", 500*time.Millisecond),
		},
		Preprocess: PreprocessConfig{
			WhitePct:        getEnvAsFloat("WHITE_PCT", 30),
			CutoffRow:       getEnvAsInt("CUTOFF_ROW", 176),
			VegetationLower: getEnvAsTriple("VEG_LOWER", [3]float64{35, 100, 50}),
			VegetationUpper: getEnvAsTriple("VEG_UPPER", [3]float64{85, 255, 255}),
			KernelSize:      getEnvAsInt("MORPH_KERNEL", 5),
		},
		Hough: HoughConfig{
			CannyLow:      float32(getEnvAsFloat("CANNY_LOW", 50)),
			CannyHigh:     float32(getEnvAsFloat("CANNY_HIGH", 150)),
			Rho:           float32(getEnvAsFloat("HOUGH_RHO", 1)),
			ThetaStep:     float32(getEnvAsFloat("HOUGH_THETA_DEG", 1) * math.Pi / 180),
			VoteThreshold: getEnvAsInt("HOUGH_VOTES", 20),
			MinLength:     float32(getEnvAsFloat("HOUGH_MIN_LENGTH", 20)),
			MaxGap:        float32(getEnvAsFloat("HOUGH_MAX_GAP", 5)),
			MinAbsSlope:   getEnvAsFloat("SLOPE_MIN", 0),
			MaxAbsSlope:   getEnvAsFloat("SLOPE_MAX", 0),
		},
		Control: ControlConfig{
			SmoothingAlpha:   getEnvAsFloat("SMOOTHING_ALPHA", 0.2),
			ThrottleSafeLow:  getEnvAsFloat("THROTTLE_SAFE_LOW", 10),
			ThrottleSafeHigh: getEnvAsFloat("THROTTLE_SAFE_HIGH", 90),
			CruiseThrottle:   getEnvAsFloat("CRUISE_THROTTLE", 30),
			SteeringGain:     getEnvAsFloat("STEERING_GAIN", 50),
			SteeringLimit:    getEnvAsFloat("STEERING_LIMIT", 50),
			MaxMissedFrames:  getEnvAsInt("MAX_MISSED_FRAMES", 15),
		},
		Camera: CameraConfig{
			Source:      getEnv("CAMERA_SOURCE", "0"),
			Width:       getEnvAsInt("CAMERA_WIDTH", 640),
			Height:      getEnvAsInt("CAMERA_HEIGHT", 352),
			QueueDepth:  getEnvAsInt("CAMERA_QUEUE_DEPTH", 4),
			MaxFailures: getEnvAsInt("CAMERA_MAX_FAILURES", 30),
		},
		Network: NetworkConfig{
			Interface:   getEnv("NET_INTERFACE", ""),
			AddressCIDR: getEnv("NET_ADDRESS_CIDR", "192.168.0.132/24"),
		},
		Server: ServerConfig{
			HTTPAddr:       getEnv("HTTP_ADDR", ":8080"),
			Environment:    getEnv("ENVIRONMENT", "development"),
			AllowedOrigins: getEnvAsStringSlice("ALLOWED_ORIGINS", []string{"*"}),
			AllowedIPs:     getEnvAsStringSlice("ALLOWED_IPS", []string{"*"}),
			RateLimitRPS:   getEnvAsInt("RATE_LIMIT_RPS", 20),
			RateLimitBurst: getEnvAsInt("RATE_LIMIT_BURST", 40),
			ReadTimeout:    getEnvAsDuration("SERVER_READ_TIMEOUT", 15*time.Second),
			WriteTimeout:   getEnvAsDuration("SERVER_WRITE_TIMEOUT", 15*time.Second),
			PeerCacheSize:  getEnvAsInt("PEER_CACHE_SIZE", 16),
			PeerTTL:        getEnvAsDuration("PEER_TTL", 30*time.Second),
		},
		Logging: LoggingConfig{
			Level:      getEnv("LOG_LEVEL", "info"),
			Format:     getEnv("LOG_FORMAT", "json"),
			Output:     getEnv("LOG_OUTPUT", "stdout"),
			MaxSize:    getEnvAsInt("LOG_MAX_SIZE", 100),
			MaxBackups: getEnvAsInt("LOG_MAX_BACKUPS", 3),
			MaxAge:     getEnvAsInt("LOG_MAX_AGE", 28),
		},
	}

	return config, nil
}

var validate = validator.New()

// ValidateConfig checks every tunable against its documented range and the
// cross-field rules the tags cannot express. All problems are reported at once.
func (c *Config) ValidateConfig(logger *zap.Logger) error {
	var problems []string

	if err := validate.Struct(c); err != nil {
		if verrs, ok := err.(validator.ValidationErrors); ok {
			for _, fe := range verrs {
				problems = append(problems, fmt.Sprintf("%s failed %q (value %v)", fe.Namespace(), fe.Tag(), fe.Value()))
			}
		} else {
			problems = append(problems, err.Error())
		}
	}

	if c.Link.StaleAfter > 0 && c.Link.StaleAfter < c.Link.SendPeriod {
		problems = append(problems, "stale timeout must not be shorter than the send period")
	}

	if c.Preprocess.CutoffRow > c.Camera.Height {
		problems = append(problems, "cutoff row must not exceed camera height")
	}

	for i, limit := range [3]float64{180, 255, 255} {
		lo, hi := c.Preprocess.VegetationLower[i], c.Preprocess.VegetationUpper[i]
		if lo < 0 || hi > limit || lo > hi {
			problems = append(problems, fmt.Sprintf("vegetation bound %d must satisfy 0 <= lower <= upper <= %.0f", i, limit))
		}
	}

	if c.Hough.MaxAbsSlope > 0 && c.Hough.MinAbsSlope > c.Hough.MaxAbsSlope {
		problems = append(problems, "slope band minimum exceeds maximum")
	}

	if c.Network.Interface != "" && c.Network.AddressCIDR == "" {
		problems = append(problems, "network address is required when an interface is set")
	}

	if c.Server.HTTPAddr == "" && logger != nil {
		logger.Warn("HTTP status server disabled")
	}

	if len(problems) > 0 {
		return fmt.Errorf("configuration validation failed: %s", strings.Join(problems, ", "))
	}

	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
		}
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

func getEnvAsStringSlice(key string, defaultValue []string) []string {
	if value := os.Getenv(key); value != "" {
		return strings.Split(value, ",")
	}
	return defaultValue
}

// getEnvAsTriple parses "h,l,s". Anything else falls back to the default.
func getEnvAsTriple(key string, defaultValue [3]float64) [3]float64 {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	parts := strings.Split(value, ",")
	if len(parts) != 3 {
		return defaultValue
	}

	var out [3]float64
	for i, part := range parts {
		f, err := strconv.ParseFloat(strings.TrimSpace(part), 64)
		if err != nil {
			return defaultValue
		}
		out[i] = f
	}
	return out
}
