package config

import (
	"github.com/rs/zerolog"

	"github.com/stupid-simple/rotate/tier"
)

type Config struct {
	Destination  string     `koanf:"destination" validate:"required"`
	Retention    Retention  `koanf:"retention"`
	Databases    []Database `koanf:"databases,omitempty" validate:"unique=Alias,dive"`
	Producers    Producers  `koanf:"producers"`
	Media        Media      `koanf:"media"`
	Remote       Remote     `koanf:"remote"`
	Schedule     string     `koanf:"schedule"`
	Catalog      string     `koanf:"catalog"`
	Metrics      Metrics    `koanf:"metrics"`
	VerifyCopies bool       `koanf:"verify_copies"`
}

// Retention values are pointers so a missing setting is told apart from
// an explicit zero.
type Retention struct {
	// hours: 0 leaves staging empty after each run, so another run in the
	// same hour produces the backup again before every tier skips it.
	Hours  *int `koanf:"hours,omitempty" validate:"required,gte=0"`
	Days   *int `koanf:"days,omitempty" validate:"required,gte=0"`
	Weeks  *int `koanf:"weeks,omitempty" validate:"required,gte=0"`
	Months *int `koanf:"months,omitempty" validate:"required,gte=0"`
}

// Resolve returns the validated retention values.
func (r Retention) Resolve() tier.Retention {
	deref := func(p *int) int {
		if p == nil {
			return 0
		}
		return *p
	}
	return tier.Retention{
		Hours:  deref(r.Hours),
		Days:   deref(r.Days),
		Weeks:  deref(r.Weeks),
		Months: deref(r.Months),
	}
}

type Database struct {
	Alias  string `koanf:"alias" validate:"required"`
	Engine string `koanf:"engine" validate:"required"`
	Path   string `koanf:"path"`
	DSN    string `koanf:"dsn"`
}

func (d Database) MarshalZerologObject(e *zerolog.Event) {
	e.Str("alias", d.Alias)
	e.Str("engine", d.Engine)
	if d.Path != "" {
		e.Str("path", d.Path)
	}
}

type Producers struct {
	SQLiteCopy bool `koanf:"sqlite_copy"`
	Dumps      bool `koanf:"dumps"`
	Media      bool `koanf:"media"`
}

type Media struct {
	Root        string       `koanf:"root" validate:"required_if=Enabled true"`
	MaxFileSize SizeArgument `koanf:"max_file_size,omitempty"`

	// Copied from Producers.Media before validation.
	Enabled bool `koanf:"-"`
}

type Remote struct {
	Rsync Rsync `koanf:"rsync"`
	S3    S3    `koanf:"s3"`
}

type Rsync struct {
	Enabled    bool   `koanf:"enabled"`
	Host       string `koanf:"host" validate:"required_if=Enabled true"`
	User       string `koanf:"user" validate:"required_if=Enabled true"`
	RemotePath string `koanf:"remote_path" validate:"required_if=Enabled true"`
	SSHKey     string `koanf:"ssh_key" validate:"required_if=Enabled true"`
	Binary     string `koanf:"binary"`
}

type S3 struct {
	Enabled        bool   `koanf:"enabled"`
	Bucket         string `koanf:"bucket" validate:"required_if=Enabled true"`
	Prefix         string `koanf:"prefix"`
	Region         string `koanf:"region"`
	Endpoint       string `koanf:"endpoint" validate:"omitempty,url"`
	AccessKey      string `koanf:"access_key"`
	SecretKey      string `koanf:"secret_key"`
	ForcePathStyle bool   `koanf:"force_path_style"`
}

type Metrics struct {
	Textfile string `koanf:"textfile"`
	Listen   string `koanf:"listen" validate:"omitempty,hostname_port"`
}

func (c *Config) MarshalZerologObject(e *zerolog.Event) {
	r := c.Retention.Resolve()
	e.Str("destination", c.Destination)
	e.Dict("retention", zerolog.Dict().
		Int("hours", r.Hours).
		Int("days", r.Days).
		Int("weeks", r.Weeks).
		Int("months", r.Months))
	e.Int("databases", len(c.Databases))
	e.Bool("sqlite_copy", c.Producers.SQLiteCopy)
	e.Bool("dumps", c.Producers.Dumps)
	e.Bool("media", c.Producers.Media)
	e.Bool("rsync", c.Remote.Rsync.Enabled)
	e.Bool("s3", c.Remote.S3.Enabled)

	if c.Schedule != "" {
		e.Str("schedule", c.Schedule)
	}
	if c.Catalog != "" {
		e.Str("catalog", c.Catalog)
	}
	if c.Media.MaxFileSize.Size > 0 {
		e.Int64("media_max_file_size", c.Media.MaxFileSize.Size)
	}
}
