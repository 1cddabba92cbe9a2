package config

import (
	"time"

	"github.com/zeromv/zeromv/pkg/errors"
)

// Duration decodes "90s" style strings from YAML and TOML.
type Duration time.Duration

func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return errors.Wrap(errors.ErrCodeConfig, err, "invalid duration %q", text)
	}
	*d = Duration(v)
	return nil
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(time.Duration(d).String()), nil
}

// Layer is one partial configuration source. Nil pointers and empty strings
// are "not set".
type Layer struct {
	Image     *string `yaml:"image" toml:"image"`
	Out       *string `yaml:"out" toml:"out"`
	ModelID   *string `yaml:"model_id" toml:"model_id"`
	Steps     *int    `yaml:"steps" toml:"steps"`
	Grid      *bool   `yaml:"grid" toml:"grid"`
	GridCols  *int    `yaml:"grid_cols" toml:"grid_cols"`
	Strict    *bool   `yaml:"strict" toml:"strict"`
	Manifest  *bool   `yaml:"manifest" toml:"manifest"`
	Device    *string `yaml:"device" toml:"device"`
	DType     *string `yaml:"dtype" toml:"dtype"`
	Scheduler *string `yaml:"scheduler" toml:"scheduler"`
	LowMemory *bool   `yaml:"low_memory" toml:"low_memory"`
	MinSide   *int    `yaml:"min_side" toml:"min_side"`

	Backend BackendLayer `yaml:"backend" toml:"backend"`
	Cache   CacheLayer   `yaml:"cache" toml:"cache"`
	History HistoryLayer `yaml:"history" toml:"history"`
	Upload  UploadLayer  `yaml:"upload" toml:"upload"`
}

// BackendLayer is the partial form of [BackendConfig].
type BackendLayer struct {
	Kind    *string   `yaml:"kind" toml:"kind"`
	Command *string   `yaml:"command" toml:"command"`
	Args    []string  `yaml:"args" toml:"args"`
	URL     *string   `yaml:"url" toml:"url"`
	Timeout *Duration `yaml:"timeout" toml:"timeout"`
}

// CacheLayer is the partial form of [CacheConfig].
type CacheLayer struct {
	Backend       *string   `yaml:"backend" toml:"backend"`
	Dir           *string   `yaml:"dir" toml:"dir"`
	RedisAddr     *string   `yaml:"redis_addr" toml:"redis_addr"`
	RedisPassword *string   `yaml:"redis_password" toml:"redis_password"`
	RedisDB       *int      `yaml:"redis_db" toml:"redis_db"`
	TTL           *Duration `yaml:"ttl" toml:"ttl"`
}

// HistoryLayer is the partial form of [HistoryConfig].
type HistoryLayer struct {
	Backend    *string `yaml:"backend" toml:"backend"`
	Dir        *string `yaml:"dir" toml:"dir"`
	MongoURI   *string `yaml:"mongo_uri" toml:"mongo_uri"`
	Database   *string `yaml:"database" toml:"database"`
	Collection *string `yaml:"collection" toml:"collection"`
}

// UploadLayer is the partial form of [UploadConfig].
type UploadLayer struct {
	Enabled   *bool   `yaml:"enabled" toml:"enabled"`
	Endpoint  *string `yaml:"endpoint" toml:"endpoint"`
	Region    *string `yaml:"region" toml:"region"`
	Bucket    *string `yaml:"bucket" toml:"bucket"`
	Prefix    *string `yaml:"prefix" toml:"prefix"`
	AccessKey *string `yaml:"access_key" toml:"access_key"`
	SecretKey *string `yaml:"secret_key" toml:"secret_key"`
	PathStyle *bool   `yaml:"path_style" toml:"path_style"`
}

// Merge returns base with every set field of over applied.
func Merge(base Config, over Layer) Config {
	out := base

	setString(&out.Image, over.Image)
	setString(&out.Out, over.Out)
	setString(&out.ModelID, over.ModelID)
	setInt(&out.Steps, over.Steps)
	setBool(&out.Grid, over.Grid)
	setInt(&out.GridCols, over.GridCols)
	setBool(&out.Strict, over.Strict)
	setBool(&out.Manifest, over.Manifest)
	setString(&out.Device, over.Device)
	setString(&out.DType, over.DType)
	setString(&out.Scheduler, over.Scheduler)
	setBool(&out.LowMemory, over.LowMemory)
	setInt(&out.MinSide, over.MinSide)

	setString(&out.Backend.Kind, over.Backend.Kind)
	setString(&out.Backend.Command, over.Backend.Command)
	if len(over.Backend.Args) > 0 {
		out.Backend.Args = append([]string(nil), over.Backend.Args...)
	}
	setString(&out.Backend.URL, over.Backend.URL)
	setDuration(&out.Backend.Timeout, over.Backend.Timeout)

	setString(&out.Cache.Backend, over.Cache.Backend)
	setString(&out.Cache.Dir, over.Cache.Dir)
	setString(&out.Cache.RedisAddr, over.Cache.RedisAddr)
	setString(&out.Cache.RedisPassword, over.Cache.RedisPassword)
	setInt(&out.Cache.RedisDB, over.Cache.RedisDB)
	setDuration(&out.Cache.TTL, over.Cache.TTL)

	setString(&out.History.Backend, over.History.Backend)
	setString(&out.History.Dir, over.History.Dir)
	setString(&out.History.MongoURI, over.History.MongoURI)
	setString(&out.History.Database, over.History.Database)
	setString(&out.History.Collection, over.History.Collection)

	setBool(&out.Upload.Enabled, over.Upload.Enabled)
	setString(&out.Upload.Endpoint, over.Upload.Endpoint)
	setString(&out.Upload.Region, over.Upload.Region)
	setString(&out.Upload.Bucket, over.Upload.Bucket)
	setString(&out.Upload.Prefix, over.Upload.Prefix)
	setString(&out.Upload.AccessKey, over.Upload.AccessKey)
	setString(&out.Upload.SecretKey, over.Upload.SecretKey)
	setBool(&out.Upload.PathStyle, over.Upload.PathStyle)

	return out
}

// Empty strings never override.
func setString(dst *string, v *string) {
	if v != nil && *v != "" {
		*dst = *v
	}
}

func setInt(dst *int, v *int) {
	if v != nil {
		*dst = *v
	}
}

func setBool(dst *bool, v *bool) {
	if v != nil {
		*dst = *v
	}
}

func setDuration(dst *time.Duration, v *Duration) {
	if v != nil {
		*dst = time.Duration(*v)
	}
}

// String, Int and Bool return pointers for building layers in code.
func String(v string) *string { return &v }
func Int(v int) *int          { return &v }
func Bool(v bool) *bool       { return &v }
