package main

import (
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/quillcache/quill/pkg/cache/manager"
	"github.com/quillcache/quill/pkg/config"
	"github.com/quillcache/quill/pkg/logging"
)

func newCacheCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Manage the response cache",
	}

	statsCmd := &cobra.Command{
		Use:   "stats",
		Short: "Show cache statistics",
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := openManager(configPath)
			if err != nil {
				return err
			}
			defer func() { _ = m.Close() }()

			stats := m.Stats()
			fmt.Printf("Status:    %s\n", stats.Status)
			fmt.Printf("Backend:   %s\n", stats.Backend)
			fmt.Printf("Entries:   %s / %s\n",
				humanize.Comma(stats.Cache.CurrentSize), humanize.Comma(stats.Cache.MaxSize))
			fmt.Printf("Hits:      %s\n", humanize.Comma(stats.Cache.Hits))
			fmt.Printf("Misses:    %s\n", humanize.Comma(stats.Cache.Misses))
			fmt.Printf("Hit rate:  %.1f%%\n", stats.Cache.HitRate*100)
			fmt.Printf("Evictions: %s\n", humanize.Comma(stats.Cache.Evictions))
			fmt.Printf("Expired:   %s\n", humanize.Comma(stats.Cache.Expired))
			if !stats.Cache.Oldest.IsZero() {
				fmt.Printf("Oldest:    %s\n", humanize.Time(stats.Cache.Oldest))
				fmt.Printf("Newest:    %s\n", humanize.Time(stats.Cache.Newest))
			}
			if stats.Cache.TTL > 0 {
				fmt.Printf("TTL:       %s\n", stats.Cache.TTL)
			}
			fmt.Printf("Attempts:  %d\n", stats.InitAttempts)
			if stats.LastError != "" {
				fmt.Printf("Last err:  %s\n", stats.LastError)
			}
			return nil
		},
	}

	clearCmd := &cobra.Command{
		Use:   "clear",
		Short: "Clear all cache entries",
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := openManager(configPath)
			if err != nil {
				return err
			}
			defer func() { _ = m.Close() }()

			res := m.ClearCache()
			if !res.Success {
				return fmt.Errorf("clear %s cache: %s", res.Backend, res.Message)
			}
			fmt.Println(res.Message)
			return nil
		},
	}

	healthCmd := &cobra.Command{
		Use:   "health",
		Short: "Probe cache health",
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := openManager(configPath)
			if err != nil {
				return err
			}
			defer func() { _ = m.Close() }()

			report := m.HealthCheck()
			if !report.Healthy {
				return fmt.Errorf("unhealthy (%s): %s", report.Backend, report.Message)
			}
			fmt.Printf("healthy (%s): %s\n", report.Backend, report.Message)
			return nil
		},
	}

	cmd.PersistentFlags().StringVarP(&configPath, "config", "c", "quill.yaml", "path to config file")
	cmd.AddCommand(statsCmd, clearCmd, healthCmd)
	return cmd
}

// openManager loads configuration and builds an initialized manager. An
// invalid cache configuration is not fatal here: Init records the
// diagnostic and the admin commands report the failed state themselves.
func openManager(configPath string) (*manager.Manager, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}

	log := logging.Default(cfg.Logging.Level)
	m := manager.New(cfg.Cache, log)
	_ = m.Init()
	return m, nil
}
