package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
	"github.com/go-viper/mapstructure/v2"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// ErrConfiguration is returned for any configuration that cannot be used.
// Nothing is produced or rotated when it happens.
var ErrConfiguration = errors.New("invalid configuration")

func defaultConfig() *Config {
	return &Config{
		Remote: Remote{
			Rsync: Rsync{Binary: "rsync"},
			S3:    S3{Region: "us-east-1", ForcePathStyle: true},
		},
	}
}

// envMappings binds environment variables to configuration keys. Variables
// not listed here are ignored.
var envMappings = map[string]string{
	"DRB_DESTINATION_FOLDER":        "destination",
	"DRB_BACKUP_HOURS_TO_KEEP":      "retention.hours",
	"DRB_BACKUP_DAYS_TO_KEEP":       "retention.days",
	"DRB_BACKUP_WEEKS_TO_KEEP":      "retention.weeks",
	"DRB_BACKUP_MONTHS_TO_KEEP":     "retention.months",
	"DRB_ENABLE_SQLITE_BACKUP_COPY": "producers.sqlite_copy",
	"DRB_ENABLE_DATABASE_DUMPS":     "producers.dumps",
	"DRB_ENABLE_MEDIA_BACKUPS":      "producers.media",
	"DRB_MEDIA_ROOT":                "media.root",
	"DRB_MEDIA_MAX_FILE_SIZE":       "media.max_file_size",
	"DRB_ENABLE_REMOTE_SYNC":        "remote.rsync.enabled",
	"DRB_RSYNC_HOST":                "remote.rsync.host",
	"DRB_RSYNC_REMOTE_PATH":         "remote.rsync.remote_path",
	"DRB_RSYNC_USER":                "remote.rsync.user",
	"DRB_RSYNC_PUB_KEY":             "remote.rsync.ssh_key",
	"DRB_ENABLE_S3_SYNC":            "remote.s3.enabled",
	"DRB_S3_BUCKET":                 "remote.s3.bucket",
	"DRB_S3_PREFIX":                 "remote.s3.prefix",
	"DRB_S3_REGION":                 "remote.s3.region",
	"DRB_S3_ENDPOINT":               "remote.s3.endpoint",
	"DRB_S3_ACCESS_KEY":             "remote.s3.access_key",
	"DRB_S3_SECRET_KEY":             "remote.s3.secret_key",
	"DRB_SCHEDULE":                  "schedule",
	"DRB_CATALOG":                   "catalog",
	"DRB_METRICS_TEXTFILE":          "metrics.textfile",
	"DRB_METRICS_LISTEN":            "metrics.listen",
	"DRB_VERIFY_COPIES":             "verify_copies",
}

func envKey(name string) string {
	return envMappings[strings.ToUpper(name)]
}

// LoadFromFile reads the configuration file at path. Environment variables
// override the values of the file.
func LoadFromFile(path string) (*Config, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrConfiguration, err)
	}
	if info.IsDir() {
		return nil, fmt.Errorf("%w: %s is a directory", ErrConfiguration, path)
	}
	return Load(path)
}

// Load builds the configuration from defaults, the optional file at path
// and the environment, in that order of precedence.
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(defaultConfig(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("could not load defaults: %w", err)
	}

	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("%w: could not load %s: %w", ErrConfiguration, path, err)
		}
	}

	if err := k.Load(env.Provider("", ".", envKey), nil); err != nil {
		return nil, fmt.Errorf("%w: could not load environment: %w", ErrConfiguration, err)
	}

	cfg := &Config{}
	err := k.UnmarshalWithConf("", cfg, koanf.UnmarshalConf{
		Tag: "koanf",
		DecoderConfig: &mapstructure.DecoderConfig{
			DecodeHook: mapstructure.ComposeDecodeHookFunc(
				sizeHook,
				mapstructure.TextUnmarshallerHookFunc(),
			),
			WeaklyTypedInput: true,
			TagName:          "koanf",
			Result:           cfg,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrConfiguration, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

var (
	validate     *validator.Validate
	validateOnce sync.Once
)

func getValidator() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
	})
	return validate
}

// Validate checks the whole configuration eagerly and reports every
// offending field at once.
func (c *Config) Validate() error {
	c.Media.Enabled = c.Producers.Media

	err := getValidator().Struct(c)
	if err == nil {
		return nil
	}

	var validationErrs validator.ValidationErrors
	if !errors.As(err, &validationErrs) {
		return fmt.Errorf("%w: %w", ErrConfiguration, err)
	}

	msgs := make([]string, 0, len(validationErrs))
	for _, fe := range validationErrs {
		msgs = append(msgs, describe(fe))
	}
	return fmt.Errorf("%w: %s", ErrConfiguration, strings.Join(msgs, "; "))
}

func describe(fe validator.FieldError) string {
	field := strings.TrimPrefix(fe.Namespace(), "Config.")
	switch fe.Tag() {
	case "required", "required_if":
		return field + " is required"
	case "gte":
		return fmt.Sprintf("%s must be at least %s", field, fe.Param())
	case "unique":
		return fmt.Sprintf("%s must have a unique %s", field, fe.Param())
	default:
		return fmt.Sprintf("%s failed %s validation", field, fe.Tag())
	}
}
