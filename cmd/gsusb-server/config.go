package main

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/kstaniek/go-gsusb-server/internal/gsusb"
)

type appConfig struct {
	backend         string
	bitrate         uint32
	listenOnly      bool
	loopback        bool
	oneShot         bool
	noEchoBack      bool
	usbPath         string
	usbReadTO       time.Duration
	slcanDev        string
	slcanBaud       int
	slcanReadTO     time.Duration
	canIf           string
	listenAddr      string
	logFormat       string
	logLevel        string
	metricsAddr     string
	hubBuffer       int
	hubPolicy       string
	logMetricsEvery time.Duration
	maxClients      int
	clientReadTO    time.Duration
	mdnsEnable      bool
	mdnsName        string
}

// mode assembles the device mode word from the individual flag bits.
func (c *appConfig) mode() gsusb.Mode {
	m := gsusb.ModeNormal
	if c.listenOnly {
		m |= gsusb.ModeListenOnly
	}
	if c.loopback {
		m |= gsusb.ModeLoopBack
	}
	if c.oneShot {
		m |= gsusb.ModeOneShot
	}
	if c.noEchoBack {
		m |= gsusb.ModeNoEchoBack
	}
	return m
}

func parseFlags() (*appConfig, bool) {
	cfg := &appConfig{}
	backend := flag.String("backend", "gsusb", "CAN backend: gsusb|slcan|socketcan")
	bitrate := flag.Uint("bitrate", 500000, "CAN bus bitrate in bit/s (from the supported table)")
	listenOnly := flag.Bool("listen-only", false, "Open the bus in listen-only (monitor) mode")
	loopback := flag.Bool("loopback", false, "Loop transmitted frames back internally")
	oneShot := flag.Bool("one-shot", false, "Disable automatic retransmission")
	noEchoBack := flag.Bool("no-echo-back", false, "Suppress TX echo frames from the adapter")
	usbPath := flag.String("usb-path", "", "USB device path of a specific adapter (empty = first found)")
	usbReadTO := flag.Duration("usb-read-timeout", 50*time.Millisecond, "Bulk IN poll timeout")
	slcanDev := flag.String("slcan-dev", "/dev/ttyACM0", "Serial device path (when --backend=slcan)")
	slcanBaud := flag.Int("slcan-baud", 115200, "Serial baud rate (when --backend=slcan)")
	slcanReadTO := flag.Duration("slcan-read-timeout", 50*time.Millisecond, "Serial read timeout")
	canIf := flag.String("can-if", "can0", "SocketCAN interface (when --backend=socketcan)")
	listen := flag.String("listen", ":20100", "TCP listen address")
	logFormat := flag.String("log-format", "text", "Log format: text|json")
	logLevel := flag.String("log-level", "info", "Log level: debug|info|warn|error")
	metricsAddr := flag.String("metrics-addr", "", "Metrics HTTP listen address (e.g., :9100); empty disables")
	hubBuf := flag.Int("hub-buffer", 512, "Per-client hub buffer (frames)")
	hubPolicy := flag.String("hub-policy", "drop", "Backpressure policy: drop|kick")
	logMetricsEvery := flag.Duration("log-metrics-interval", 0, "If >0, periodically log metrics counters (for non-Prometheus setups)")
	maxClients := flag.Int("max-clients", 0, "Maximum simultaneous TCP clients (0 = unlimited)")
	clientReadTO := flag.Duration("client-read-timeout", 60*time.Second, "Per-connection read deadline")
	mdnsEnable := flag.Bool("mdns-enable", false, "Enable mDNS/Avahi advertisement")
	mdnsName := flag.String("mdns-name", "", "mDNS instance name (default gsusb-server-<hostname>)")
	showVersion := flag.Bool("version", false, "Print version and exit")
	flag.Parse()

	// Track which flags were explicitly set to give them precedence over env.
	setFlags := map[string]struct{}{}
	flag.Visit(func(f *flag.Flag) { setFlags[f.Name] = struct{}{} })
	cfg.backend = *backend
	cfg.bitrate = uint32(*bitrate)
	cfg.listenOnly = *listenOnly
	cfg.loopback = *loopback
	cfg.oneShot = *oneShot
	cfg.noEchoBack = *noEchoBack
	cfg.usbPath = *usbPath
	cfg.usbReadTO = *usbReadTO
	cfg.slcanDev = *slcanDev
	cfg.slcanBaud = *slcanBaud
	cfg.slcanReadTO = *slcanReadTO
	cfg.canIf = *canIf
	cfg.listenAddr = *listen
	cfg.logFormat = *logFormat
	cfg.logLevel = *logLevel
	cfg.metricsAddr = *metricsAddr
	cfg.hubBuffer = *hubBuf
	cfg.hubPolicy = *hubPolicy
	cfg.logMetricsEvery = *logMetricsEvery
	cfg.maxClients = *maxClients
	cfg.clientReadTO = *clientReadTO
	cfg.mdnsEnable = *mdnsEnable
	cfg.mdnsName = *mdnsName

	if err := applyEnvOverrides(cfg, setFlags); err != nil {
		fmt.Printf("environment override error: %v\n", err)
		return nil, *showVersion
	}
	if err := cfg.validate(); err != nil {
		fmt.Printf("configuration error: %v\n", err)
		return nil, *showVersion
	}
	return cfg, *showVersion
}

// validate performs basic semantic validation of the parsed configuration.
// It does not attempt to open devices or listeners, only checks values/ranges.
func (c *appConfig) validate() error {
	if c == nil {
		return errors.New("nil config")
	}
	switch c.logFormat {
	case "text", "json":
	default:
		return fmt.Errorf("invalid log-format: %s", c.logFormat)
	}
	switch c.logLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid log-level: %s", c.logLevel)
	}
	switch c.backend {
	case "gsusb", "slcan", "socketcan":
	default:
		return fmt.Errorf("invalid backend: %s", c.backend)
	}
	switch c.hubPolicy {
	case "drop", "kick":
	default:
		return fmt.Errorf("invalid hub-policy: %s", c.hubPolicy)
	}
	if c.backend != "socketcan" {
		if _, err := gsusb.TimingForBitrate(c.bitrate); err != nil {
			return fmt.Errorf("invalid bitrate %d (supported: %v)", c.bitrate, gsusb.SupportedBitrates())
		}
	}
	if c.listenOnly && c.loopback {
		return errors.New("listen-only and loopback are mutually exclusive")
	}
	if c.hubBuffer <= 0 {
		return fmt.Errorf("hub-buffer must be > 0 (got %d)", c.hubBuffer)
	}
	if c.usbReadTO <= 0 {
		return fmt.Errorf("usb-read-timeout must be > 0")
	}
	if c.slcanBaud <= 0 {
		return fmt.Errorf("slcan-baud must be > 0 (got %d)", c.slcanBaud)
	}
	if c.slcanReadTO <= 0 {
		return fmt.Errorf("slcan-read-timeout must be > 0")
	}
	if c.clientReadTO <= 0 {
		return fmt.Errorf("client-read-timeout must be > 0")
	}
	if c.maxClients < 0 {
		return fmt.Errorf("max-clients must be >= 0")
	}
	return nil
}

// applyEnvOverrides maps GSUSB_SERVER_* environment variables to config fields
// unless a corresponding flag was explicitly set. Empty values are ignored.
// Duration accepts Go time.ParseDuration format.
func applyEnvOverrides(c *appConfig, set map[string]struct{}) error {
	var firstErr error
	get := func(k string) (string, bool) { v, ok := os.LookupEnv(k); return strings.TrimSpace(v), ok }
	parseBool := func(v string) (bool, bool) {
		switch strings.ToLower(v) {
		case "1", "true", "yes", "on":
			return true, true
		case "0", "false", "no", "off":
			return false, true
		}
		return false, false
	}
	if _, ok := set["backend"]; !ok {
		if v, ok := get("GSUSB_SERVER_BACKEND"); ok && v != "" {
			c.backend = v
		}
	}
	if _, ok := set["bitrate"]; !ok {
		if v, ok := get("GSUSB_SERVER_BITRATE"); ok && v != "" {
			if n, err := strconv.ParseUint(v, 10, 32); err == nil && n > 0 {
				c.bitrate = uint32(n)
			} else if err != nil && firstErr == nil {
				firstErr = fmt.Errorf("invalid GSUSB_SERVER_BITRATE: %w", err)
			}
		}
	}
	if _, ok := set["listen-only"]; !ok {
		if v, ok := get("GSUSB_SERVER_LISTEN_ONLY"); ok && v != "" {
			if b, valid := parseBool(v); valid {
				c.listenOnly = b
			}
		}
	}
	if _, ok := set["loopback"]; !ok {
		if v, ok := get("GSUSB_SERVER_LOOPBACK"); ok && v != "" {
			if b, valid := parseBool(v); valid {
				c.loopback = b
			}
		}
	}
	if _, ok := set["one-shot"]; !ok {
		if v, ok := get("GSUSB_SERVER_ONE_SHOT"); ok && v != "" {
			if b, valid := parseBool(v); valid {
				c.oneShot = b
			}
		}
	}
	if _, ok := set["no-echo-back"]; !ok {
		if v, ok := get("GSUSB_SERVER_NO_ECHO_BACK"); ok && v != "" {
			if b, valid := parseBool(v); valid {
				c.noEchoBack = b
			}
		}
	}
	if _, ok := set["usb-path"]; !ok {
		if v, ok := get("GSUSB_SERVER_USB_PATH"); ok && v != "" {
			c.usbPath = v
		}
	}
	if _, ok := set["usb-read-timeout"]; !ok {
		if v, ok := get("GSUSB_SERVER_USB_READ_TIMEOUT"); ok && v != "" {
			if d, err := time.ParseDuration(v); err == nil && d > 0 {
				c.usbReadTO = d
			} else if err != nil && firstErr == nil {
				firstErr = fmt.Errorf("invalid GSUSB_SERVER_USB_READ_TIMEOUT: %w", err)
			}
		}
	}
	if _, ok := set["slcan-dev"]; !ok {
		if v, ok := get("GSUSB_SERVER_SLCAN_DEV"); ok && v != "" {
			c.slcanDev = v
		}
	}
	if _, ok := set["slcan-baud"]; !ok {
		if v, ok := get("GSUSB_SERVER_SLCAN_BAUD"); ok && v != "" {
			if n, err := strconv.Atoi(v); err == nil && n > 0 {
				c.slcanBaud = n
			} else if err != nil && firstErr == nil {
				firstErr = fmt.Errorf("invalid GSUSB_SERVER_SLCAN_BAUD: %w", err)
			}
		}
	}
	if _, ok := set["slcan-read-timeout"]; !ok {
		if v, ok := get("GSUSB_SERVER_SLCAN_READ_TIMEOUT"); ok && v != "" {
			if d, err := time.ParseDuration(v); err == nil && d > 0 {
				c.slcanReadTO = d
			} else if err != nil && firstErr == nil {
				firstErr = fmt.Errorf("invalid GSUSB_SERVER_SLCAN_READ_TIMEOUT: %w", err)
			}
		}
	}
	if _, ok := set["can-if"]; !ok {
		if v, ok := get("GSUSB_SERVER_IF"); ok && v != "" {
			c.canIf = v
		}
	}
	if _, ok := set["listen"]; !ok {
		if v, ok := get("GSUSB_SERVER_LISTEN"); ok && v != "" {
			c.listenAddr = v
		}
	}
	if _, ok := set["log-format"]; !ok {
		if v, ok := get("GSUSB_SERVER_LOG_FORMAT"); ok && v != "" {
			c.logFormat = v
		}
	}
	if _, ok := set["log-level"]; !ok {
		if v, ok := get("GSUSB_SERVER_LOG_LEVEL"); ok && v != "" {
			c.logLevel = v
		}
	}
	if _, ok := set["metrics-addr"]; !ok {
		if v, ok := get("GSUSB_SERVER_METRICS"); ok {
			c.metricsAddr = v
		}
	}
	if _, ok := set["hub-buffer"]; !ok {
		if v, ok := get("GSUSB_SERVER_HUB_BUFFER"); ok && v != "" {
			if n, err := strconv.Atoi(v); err == nil && n > 0 {
				c.hubBuffer = n
			} else if err != nil && firstErr == nil {
				firstErr = fmt.Errorf("invalid GSUSB_SERVER_HUB_BUFFER: %w", err)
			}
		}
	}
	if _, ok := set["hub-policy"]; !ok {
		if v, ok := get("GSUSB_SERVER_HUB_POLICY"); ok && v != "" {
			c.hubPolicy = v
		}
	}
	if _, ok := set["max-clients"]; !ok {
		if v, ok := get("GSUSB_SERVER_MAX_CLIENTS"); ok && v != "" {
			if n, err := strconv.Atoi(v); err == nil && n >= 0 {
				c.maxClients = n
			} else if err != nil && firstErr == nil {
				firstErr = fmt.Errorf("invalid GSUSB_SERVER_MAX_CLIENTS: %w", err)
			}
		}
	}
	if _, ok := set["client-read-timeout"]; !ok {
		if v, ok := get("GSUSB_SERVER_CLIENT_READ_TIMEOUT"); ok && v != "" {
			if d, err := time.ParseDuration(v); err == nil && d > 0 {
				c.clientReadTO = d
			} else if err != nil && firstErr == nil {
				firstErr = fmt.Errorf("invalid GSUSB_SERVER_CLIENT_READ_TIMEOUT: %w", err)
			}
		}
	}
	if _, ok := set["mdns-enable"]; !ok {
		if v, ok := get("GSUSB_SERVER_MDNS_ENABLE"); ok && v != "" {
			if b, valid := parseBool(v); valid {
				c.mdnsEnable = b
			}
		}
	}
	if _, ok := set["mdns-name"]; !ok {
		if v, ok := get("GSUSB_SERVER_MDNS_NAME"); ok && v != "" {
			c.mdnsName = v
		}
	}
	if _, ok := set["log-metrics-interval"]; !ok {
		if v, ok := get("GSUSB_SERVER_LOG_METRICS_INTERVAL"); ok && v != "" {
			if d, err := time.ParseDuration(v); err == nil && d >= 0 {
				c.logMetricsEvery = d
			} else if err != nil && firstErr == nil {
				firstErr = fmt.Errorf("invalid GSUSB_SERVER_LOG_METRICS_INTERVAL: %w", err)
			}
		}
	}
	return firstErr
}
