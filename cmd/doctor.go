package cmd

import (
	"context"
	"fmt"
	"os"
	"runtime"
	"time"

	"github.com/spf13/cobra"

	"github.com/nextlevelbuilder/pairlink/internal/config"
	"github.com/nextlevelbuilder/pairlink/pkg/protocol"
)

func doctorCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Check configuration, storage and gateway health",
		Run: func(cmd *cobra.Command, args []string) {
			runDoctor()
		},
	}
}

func runDoctor() {
	fmt.Println("pairlink doctor")
	fmt.Printf("  Version:  %s (protocol %d)\n", Version, protocol.ProtocolVersion)
	fmt.Printf("  OS:       %s/%s\n", runtime.GOOS, runtime.GOARCH)
	fmt.Printf("  Go:       %s\n", runtime.Version())
	fmt.Println()

	// Config
	cfgPath := resolveConfigPath()
	fmt.Printf("  Config:   %s", cfgPath)
	if _, err := os.Stat(cfgPath); err != nil {
		fmt.Println(" (NOT FOUND, using defaults)")
	} else {
		fmt.Println(" (OK)")
	}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		fmt.Printf("  Config load error: %s\n", err)
		return
	}

	// Storage
	fmt.Println()
	fmt.Println("  Storage:")
	fmt.Printf("    %-12s %s\n", "Mode:", cfg.Database.Mode)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	stores, err := openStores(ctx, cfg)
	if err != nil {
		fmt.Printf("    %-12s ERROR %s\n", "Open:", err)
	} else {
		libs, err := stores.Libraries.ListLibraries(ctx)
		if err != nil {
			fmt.Printf("    %-12s ERROR %s\n", "Libraries:", err)
		} else {
			fmt.Printf("    %-12s %d\n", "Libraries:", len(libs))
		}
		stores.Close()
	}

	// Optional services
	fmt.Println()
	fmt.Println("  Services:")
	checkService("Redis", cfg.Redis.Addr)
	if cfg.Telemetry.Enabled {
		checkService("OTLP", cfg.Telemetry.Endpoint)
	} else {
		checkService("OTLP", "")
	}

	// Gateway
	fmt.Println()
	fmt.Printf("  Gateway:  %s", cfg.Gateway.Addr())
	if isGatewayReachable() {
		fmt.Println(" (running)")
	} else {
		fmt.Println(" (NOT RUNNING)")
	}

	fmt.Println()
	fmt.Println("Doctor check complete.")
}

func checkService(name, addr string) {
	if addr == "" {
		fmt.Printf("    %-12s (not configured)\n", name+":")
		return
	}
	fmt.Printf("    %-12s %s\n", name+":", addr)
}
