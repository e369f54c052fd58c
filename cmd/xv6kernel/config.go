package main

// Config is the boot-time configuration, populated by cobra flags and
// (optionally) a viper-loaded config file, mirroring the flags-then-
// config-file-override shape gcsfuse's cmd/root.go uses for its own
// cfg.Config. Each field's mapstructure tag is its flag name, so
// viper.Unmarshal fills the field from the flag or config key of that name.
type Config struct {
	DiskImage   string `mapstructure:"disk-image"`
	DiskBlocks  uint32 `mapstructure:"disk-blocks"`
	Format      bool   `mapstructure:"format"`
	Inodes      uint32 `mapstructure:"inodes"`
	LogBlocks   uint32 `mapstructure:"log-blocks"`
	MountPoint  string `mapstructure:"mount-point"`
	PasswdFile  string `mapstructure:"passwd-file"`
	AllowOther  bool   `mapstructure:"allow-other"`
	MetricsAddr string `mapstructure:"metrics-addr"`
}
