// Command lifeline is the device side of Lifeline: it triages, locates and
// sends emergency alerts, queueing them while the server is unreachable.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/mr1hm/go-lifeline/internal/classifier"
	"github.com/mr1hm/go-lifeline/internal/config"
	"github.com/mr1hm/go-lifeline/internal/connectivity"
	"github.com/mr1hm/go-lifeline/internal/kvstore"
	"github.com/mr1hm/go-lifeline/internal/location"
	"github.com/mr1hm/go-lifeline/internal/logging"
	"github.com/mr1hm/go-lifeline/internal/models"
	"github.com/mr1hm/go-lifeline/internal/remote"
	"github.com/mr1hm/go-lifeline/internal/submission"
	"github.com/mr1hm/go-lifeline/internal/triage"
)

func main() {
	_ = godotenv.Load()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

// device holds everything a command may need. It is built once per run.
type device struct {
	cfg      *config.Config
	store    *kvstore.SQLite
	client   *remote.Client
	registry *classifier.Registry
	combiner *triage.Combiner
	identity submission.StaticIdentity
	monitor  *connectivity.Monitor
	pipeline *submission.Pipeline
}

func newDevice(ctx context.Context, cfg *config.Config) (*device, error) {
	if dir := filepath.Dir(cfg.Device.StatePath); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("error creating state directory: %w", err)
		}
	}
	store, err := kvstore.NewSQLite(cfg.Device.StatePath)
	if err != nil {
		return nil, err
	}

	identity, err := submission.DeviceIdentity(ctx, store, cfg.Device.UserID, cfg.Device.TemporaryUser)
	if err != nil {
		store.Close()
		return nil, err
	}

	client := remote.NewClient(cfg.Device.ServerURL, cfg.Device.RequestTimeout)
	registry := classifier.NewRegistry(
		classifier.NewLoader(&http.Client{Timeout: cfg.Models.LoadTimeout}),
		classifier.Artifacts{
			UrgencyVocabulary:  cfg.Models.UrgencyVocabulary,
			UrgencyModel:       cfg.Models.UrgencyModel,
			CategoryVocabulary: cfg.Models.CategoryVocabulary,
			CategoryModel:      cfg.Models.CategoryModel,
		},
		cfg.Models.LoadTimeout,
	)
	combiner := triage.NewFromRegistry(registry, triage.Hooks{})
	monitor := connectivity.NewMonitor(client, cfg.Device.ProbeInterval, cfg.Device.RequestTimeout)

	policy := submission.Policy{
		MaxPerWindow: cfg.Submission.MaxPerWindow,
		Window:       cfg.Submission.Window,
		Cooldown:     cfg.Submission.Cooldown,
	}
	pipeline := submission.NewPipeline(submission.Deps{
		Identity:     identity,
		Triager:      combiner,
		Location:     location.NewResolver(newLocator(cfg.Device), store, cfg.Submission.LocationTimeout, time.Now),
		Remote:       client,
		Connectivity: monitor,
		Limiter:      submission.NewSendLimiter(policy, store),
		Pending:      submission.NewPendingQueue(store, cfg.Submission.PendingCapacity),
	}, submission.Options{
		SendTimeout: cfg.Device.RequestTimeout,
	})

	return &device{
		cfg:      cfg,
		store:    store,
		client:   client,
		registry: registry,
		combiner: combiner,
		identity: identity,
		monitor:  monitor,
		pipeline: pipeline,
	}, nil
}

func (d *device) Close() error {
	return d.store.Close()
}

// newLocator prefers fixed coordinates, then a location helper command.
func newLocator(cfg config.DeviceConfig) location.Locator {
	switch {
	case cfg.Latitude != nil && cfg.Longitude != nil:
		return location.Static{Coords: models.Coordinates{Latitude: *cfg.Latitude, Longitude: *cfg.Longitude}}
	case cfg.LocationCommand != "":
		return location.ParseCommand(cfg.LocationCommand)
	default:
		return location.Unavailable{}
	}
}

func newRootCmd() *cobra.Command {
	var dev *device

	root := &cobra.Command{
		Use:           "lifeline",
		Short:         "Send emergency alerts with on-device triage",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			logging.SetupWriter(cfg.Logging.Level, cmd.ErrOrStderr())

			dev, err = newDevice(cmd.Context(), cfg)
			return err
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			if dev == nil {
				return nil
			}
			return dev.Close()
		},
	}

	current := func() *device { return dev }
	root.AddCommand(
		newSendCmd(current),
		newRetryCmd(current),
		newPendingCmd(current),
		newWatchCmd(current),
		newTriageCmd(current),
		newCompleteCmd(current),
	)
	return root
}
