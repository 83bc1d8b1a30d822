// Command vendorjobs runs one reconciliation job for one vendor and exits.
//
//	vendorjobs sync-catalog -vendor net_32
//	vendorjobs refresh-prices -vendor benco -office <office-id>
//	vendorjobs sync-orders -vendor darby
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/johnrirwin/ordo/internal/app"
	"github.com/johnrirwin/ordo/internal/config"
	"github.com/johnrirwin/ordo/internal/jobs"
	"github.com/johnrirwin/ordo/internal/logging"
)

const usage = "usage: vendorjobs sync-catalog|refresh-prices|sync-orders -vendor <slug> [-office <id>] [flags]"

func main() {
	if len(os.Args) < 2 {
		fmt.Fprintln(os.Stderr, usage)
		os.Exit(2)
	}
	job := os.Args[1]

	// The job flags share the command line with config.Load's flags
	vendorName := flag.String("vendor", "", "Vendor slug")
	office := flag.String("office", "", "Office whose login the job uses (sync-orders: only this office)")
	os.Args = append(os.Args[:1], os.Args[2:]...)
	cfg := config.Load()

	if *vendorName == "" {
		fmt.Fprintln(os.Stderr, usage)
		os.Exit(2)
	}
	vendor, err := app.ParseVendor(*vendorName)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	if *office != "" {
		cfg.Jobs.OfficeID = *office
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	application, err := app.New(ctx, cfg)
	if err != nil {
		logging.New(logging.LevelError).Error("Failed to start", logging.WithField("error", err.Error()))
		os.Exit(1)
	}
	defer application.Close()

	deps, jobCfg := application.JobDeps(), application.JobConfig()

	var result interface{}
	switch job {
	case "sync-catalog":
		result, err = jobs.NewCatalogSync(deps, jobCfg).Run(ctx, vendor)
	case "refresh-prices":
		result, err = jobs.NewPriceRefresh(deps, jobCfg).Run(ctx, vendor)
	case "sync-orders":
		result, err = jobs.NewOrderSync(deps, jobCfg).Run(ctx, vendor)
	default:
		fmt.Fprintln(os.Stderr, usage)
		os.Exit(2)
	}

	if result != nil {
		_ = json.NewEncoder(os.Stdout).Encode(result)
	}
	if err != nil {
		application.Close()
		os.Exit(1)
	}
}
