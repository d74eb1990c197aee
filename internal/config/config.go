// Package config provides functionality for managing configuration options
// for the application using command-line flags, environment variables, and
// a JSON config file.
package config

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"strconv"

	"github.com/kdbex/kdbexd/internal/models"
)

// RemoteConfig configures the optional S3-compatible remote vault copy.
// A nil RemoteConfig disables remote reconciliation entirely.
type RemoteConfig struct {
	Bucket          string `json:"bucket"`
	Key             string `json:"key"`
	Region          string `json:"region"`
	Endpoint        string `json:"endpoint,omitempty"`
	AccessKeyID     string `json:"accessKeyId"`
	SecretAccessKey string `json:"secretAccessKey"`
}

// Options holds the configuration values for the application.
type Options struct {
	// Addr defines the server's listening address (ip:port).
	Addr string `json:"addr"`

	// VaultPath is the kdbx container file the server operates on.
	VaultPath string `json:"vaultPath"`

	// StatePath is the sync-metadata database; defaults to VaultPath + ".state".
	StatePath string `json:"statePath"`

	// TransitKey is the shared secret behind the transit cipher.
	TransitKey string `json:"transitKey"`

	// MasterOverride, when set, replaces any client-supplied master secret
	// at login. Local/dev convenience only.
	MasterOverride string `json:"masterOverride,omitempty"`

	// SyncIntervalSeconds is the period of the reconciliation loop;
	// 0 reconciles at startup only.
	SyncIntervalSeconds int `json:"syncIntervalSeconds"`

	// LogLevel is the zap logging level.
	LogLevel string `json:"logLevel"`

	// Remote enables reconciliation against a remote vault copy.
	Remote *RemoteConfig `json:"remote,omitempty"`

	// Config is the path to the Config file.
	Config string `json:"-"`
}

// options holds the current configuration values.
var options = &Options{}

// init initializes command-line flags and sets default values.
func init() {
	flag.StringVar(&options.Addr, "a", "localhost:3000", "run on ip:port server")
	flag.StringVar(&options.VaultPath, "f", "", "path to the kdbx vault file")
	flag.StringVar(&options.TransitKey, "k", "", "transit cipher key")
	flag.StringVar(&options.LogLevel, "l", "info", "log level")
	flag.StringVar(&options.Config, "config", "config.json", "path to config file")
	flag.StringVar(&options.Config, "c", "config.json", "path to config file (shorthand)")
}

// Parse parses the command-line flags, the JSON config file, and environment
// variables to set configuration values. A missing config file is created
// with defaults so a first run leaves something to edit. It returns a
// pointer to the Options struct containing the parsed configuration values.
func Parse() *Options {
	flag.Parse()
	setFlags := map[string]bool{}
	flag.Visit(func(f *flag.Flag) { setFlags[f.Name] = true })

	// Override flags with environment variables if set
	if configPath := os.Getenv("CONFIG"); configPath != "" {
		options.Config = configPath
	}

	if options.Config != "" {
		if _, err := os.Stat(options.Config); os.IsNotExist(err) {
			writeDefault(options.Config)
		}
		data, err := os.ReadFile(options.Config)
		if err != nil {
			log.Fatalf("error while reading config file: %v", err)
		}
		if err := applyFile(options, data, setFlags); err != nil {
			log.Fatalf("error while parsing config file: %v", err)
		}
	}

	if serverAddress := os.Getenv("SERVER_ADDRESS"); serverAddress != "" {
		options.Addr = serverAddress
	}
	if vaultPath := os.Getenv("VAULT_PATH"); vaultPath != "" {
		options.VaultPath = vaultPath
	}
	if transitKey := os.Getenv("TRANSIT_KEY"); transitKey != "" {
		options.TransitKey = transitKey
	}
	if override := os.Getenv("MASTER_OVERRIDE"); override != "" {
		options.MasterOverride = override
	}
	if interval := os.Getenv("SYNC_INTERVAL"); interval != "" {
		if n, err := strconv.Atoi(interval); err == nil {
			options.SyncIntervalSeconds = n
		}
	}

	if options.StatePath == "" && options.VaultPath != "" {
		options.StatePath = options.VaultPath + ".state"
	}

	return options
}

// applyFile fills opts from the JSON config file. A value given explicitly
// on the command line wins over the file; everything else the file provides
// is taken as-is.
func applyFile(opts *Options, data []byte, setFlags map[string]bool) error {
	var file Options
	if err := json.Unmarshal(data, &file); err != nil {
		return err
	}
	if !setFlags["a"] && file.Addr != "" {
		opts.Addr = file.Addr
	}
	if !setFlags["f"] && file.VaultPath != "" {
		opts.VaultPath = file.VaultPath
	}
	if !setFlags["k"] && file.TransitKey != "" {
		opts.TransitKey = file.TransitKey
	}
	if !setFlags["l"] && file.LogLevel != "" {
		opts.LogLevel = file.LogLevel
	}
	if file.StatePath != "" {
		opts.StatePath = file.StatePath
	}
	if file.MasterOverride != "" {
		opts.MasterOverride = file.MasterOverride
	}
	if file.SyncIntervalSeconds != 0 {
		opts.SyncIntervalSeconds = file.SyncIntervalSeconds
	}
	if file.Remote != nil {
		opts.Remote = file.Remote
	}
	return nil
}

// writeDefault creates a config file with default values at path.
func writeDefault(path string) {
	defaults := Options{
		Addr:     "localhost:3000",
		LogLevel: "info",
	}
	data, err := json.MarshalIndent(defaults, "", "  ")
	if err != nil {
		log.Fatalf("error while building default config: %v", err)
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		log.Fatalf("error while writing default config: %v", err)
	}
}

// Validate reports missing required options as models.ErrConfig.
func (o *Options) Validate() error {
	if o.VaultPath == "" {
		return fmt.Errorf("%w: vault path is required", models.ErrConfig)
	}
	if o.TransitKey == "" {
		return fmt.Errorf("%w: transit key is required", models.ErrConfig)
	}
	if o.Remote != nil && (o.Remote.Bucket == "" || o.Remote.Key == "") {
		return fmt.Errorf("%w: remote sync needs bucket and key", models.ErrConfig)
	}
	return nil
}
