// Package config loads gateway configuration from the environment. No
// third-party config library appears anywhere in the retrieval pack, so
// this follows the corpus's plain os.Getenv idiom.
package config

import (
	"fmt"
	"os"
	"regexp"
	"strconv"
)

var e164Pattern = regexp.MustCompile(`^\+[1-9]\d{7,14}$`)

// Config is the fully-resolved, validated startup configuration.
type Config struct {
	Port     string
	LogLevel string
	LogFormat string

	OutboundTargetE164 string
	PublicBaseURL      string

	AsteriskSharedSecret string
	ControlAPISecret     string
	TwilioAuthToken      string

	PipelineMinFrameIntervalMs int
	EgressMaxQueuePerSession   int

	StubSTTText string

	OpenclawBridgeURL       string
	OpenclawBridgeAPIKey    string
	OpenclawBridgeTimeoutMs int

	ShutdownTimeoutMs int
}

// Load reads and validates configuration from the environment. A non-nil
// error here is the only condition that should abort process startup
// (spec: "Fatal — only misconfiguration at startup aborts the process").
func Load() (*Config, error) {
	cfg := &Config{
		Port:      getenv("PORT", "8080"),
		LogLevel:  getenv("LOG_LEVEL", "info"),
		LogFormat: getenv("LOG_FORMAT", "console"),

		PublicBaseURL: os.Getenv("PUBLIC_BASE_URL"),

		AsteriskSharedSecret: os.Getenv("ASTERISK_SHARED_SECRET"),
		ControlAPISecret:     os.Getenv("CONTROL_API_SECRET"),
		TwilioAuthToken:      os.Getenv("TWILIO_AUTH_TOKEN"),

		StubSTTText: getenv("STUB_STT_TEXT", "hello world"),

		OpenclawBridgeURL:    os.Getenv("OPENCLAW_BRIDGE_URL"),
		OpenclawBridgeAPIKey: os.Getenv("OPENCLAW_BRIDGE_API_KEY"),
	}

	// OUTBOUND_TARGET_E164 is the current name; DESTINATION_PHONE_E164 is
	// an out-of-spec legacy name, honored only as a fallback (spec §9 open
	// question: "only the newer name is part of this specification").
	cfg.OutboundTargetE164 = os.Getenv("OUTBOUND_TARGET_E164")
	if cfg.OutboundTargetE164 == "" {
		cfg.OutboundTargetE164 = os.Getenv("DESTINATION_PHONE_E164")
	}
	if cfg.OutboundTargetE164 == "" {
		return nil, fmt.Errorf("config: OUTBOUND_TARGET_E164 is required")
	}
	if !e164Pattern.MatchString(cfg.OutboundTargetE164) {
		return nil, fmt.Errorf("config: OUTBOUND_TARGET_E164 must match %s", e164Pattern.String())
	}

	minFrameIntervalMs, err := getenvInt("PIPELINE_MIN_FRAME_INTERVAL_MS", 400)
	if err != nil {
		return nil, err
	}
	cfg.PipelineMinFrameIntervalMs = minFrameIntervalMs

	egressMax, err := getenvInt("EGRESS_MAX_QUEUE_PER_SESSION", 64)
	if err != nil {
		return nil, err
	}
	if egressMax < 1 {
		egressMax = 1
	}
	cfg.EgressMaxQueuePerSession = egressMax

	bridgeTimeout, err := getenvInt("OPENCLAW_BRIDGE_TIMEOUT_MS", 1200)
	if err != nil {
		return nil, err
	}
	if bridgeTimeout < 100 {
		bridgeTimeout = 100
	}
	cfg.OpenclawBridgeTimeoutMs = bridgeTimeout

	shutdownTimeout, err := getenvInt("SHUTDOWN_TIMEOUT_MS", 5000)
	if err != nil {
		return nil, err
	}
	cfg.ShutdownTimeoutMs = shutdownTimeout

	return cfg, nil
}

// IsE164 reports whether phone is in E.164 format, per spec §6.
func IsE164(phone string) bool {
	return e164Pattern.MatchString(phone)
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getenvInt(key string, fallback int) (int, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("config: %s must be an integer: %w", key, err)
	}
	return v, nil
}
