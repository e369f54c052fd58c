// Command xv6kernel boots the filesystem packages (kernel/blockdev,
// kernel/bcache, kernel/journal, kernel/fsinode, kernel/mount) against a
// disk image and serves the result at a mount point through xv6fs, the
// spec's FUSE stand-in for the syscall/trap boundary. It does not start
// kernel/trap, the process table or the network stack.
// The CLI shape — persistent flags bound into viper, an optional
// --config-file override unmarshaled over them — follows gcsfuse's
// cmd/root.go.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	cfgFile       string
	bindErr       error
	configFileErr error
	unmarshalErr  error
	conf          Config
)

var rootCmd = &cobra.Command{
	Use:   "xv6kernel --mount-point=<dir> --disk-image=<file>",
	Short: "Mount an xv6go disk image as a local filesystem via FUSE",
	Long: `xv6kernel boots the journaled xv6go filesystem against a disk image
and exposes it at a mount point, standing in for the kernel's own
syscall/trap surface. The process table and network stack are not started.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if bindErr != nil {
			return bindErr
		}
		if configFileErr != nil {
			return configFileErr
		}
		if unmarshalErr != nil {
			return unmarshalErr
		}
		if err := validateConfig(&conf); err != nil {
			return err
		}
		return boot(cmd.Context(), &conf)
	},
}

func validateConfig(c *Config) error {
	if c.MountPoint == "" {
		return fmt.Errorf("--mount-point is required")
	}
	if c.DiskImage == "" {
		return fmt.Errorf("--disk-image is required")
	}
	if c.DiskBlocks == 0 {
		return fmt.Errorf("--disk-blocks must be > 0")
	}
	return nil
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&conf.DiskImage, "disk-image", "", "path to the backing disk image (created if --format is set)")
	flags.Uint32Var(&conf.DiskBlocks, "disk-blocks", 65536, "total 512-byte blocks in the disk image")
	flags.BoolVar(&conf.Format, "format", false, "format the disk image before mounting (destroys existing contents)")
	flags.Uint32Var(&conf.Inodes, "inodes", 200, "inode count to format with (only with --format)")
	flags.Uint32Var(&conf.LogBlocks, "log-blocks", 64, "journal size in blocks (only with --format)")
	flags.StringVar(&conf.MountPoint, "mount-point", "", "directory to mount the filesystem at")
	flags.StringVar(&conf.PasswdFile, "passwd-file", "", "path to a colon-separated passwd database")
	flags.BoolVar(&conf.AllowOther, "allow-other", false, "allow other users to access the mount")
	flags.StringVar(&conf.MetricsAddr, "metrics-addr", "", "address to serve Prometheus metrics on (empty disables)")

	bindErr = viper.BindPFlags(flags)
	flags.StringVar(&cfgFile, "config-file", "", "path to a YAML config file overriding the flags above")
}

func initConfig() {
	if cfgFile == "" {
		unmarshalErr = viper.Unmarshal(&conf)
		return
	}
	viper.SetConfigFile(cfgFile)
	viper.SetConfigType("yaml")
	if err := viper.ReadInConfig(); err != nil {
		configFileErr = fmt.Errorf("reading config file: %w", err)
		return
	}
	unmarshalErr = viper.Unmarshal(&conf)
}

func main() {
	Execute()
}
