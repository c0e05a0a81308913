// Command chrysalis-cli is an operator tool for inspecting and repairing
// the ingest pipeline's schema registry and dead-letter sink out of band
// from the worker process.
package main

import (
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/platinummonkey/chrysalis/pkg/config"
	dlqredis "github.com/platinummonkey/chrysalis/pkg/ingest/dlq/redis"
	"github.com/platinummonkey/chrysalis/pkg/ingest/model"
	"github.com/platinummonkey/chrysalis/pkg/ingest/queue"
	"github.com/platinummonkey/chrysalis/pkg/ingest/registry"
	regpg "github.com/platinummonkey/chrysalis/pkg/ingest/registry/postgres"
	"github.com/platinummonkey/chrysalis/pkg/observability"
)

var log = logrus.New()

func main() {
	root := &cobra.Command{
		Use:   "chrysalis-cli",
		Short: "Operator CLI for the chrysalis ingest pipeline",
	}

	root.AddCommand(newDLQCommand())
	root.AddCommand(newSchemaCommand())

	if err := root.Execute(); err != nil {
		log.WithError(err).Error("command failed")
		os.Exit(1)
	}
}

func loadDLQSink() (*dlqredis.Sink, func(), error) {
	cfg, err := config.LoadConfig()
	if err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}
	if cfg.Ingest.DLQBackend != "redis" {
		return nil, nil, fmt.Errorf("dlq subcommands require CHRYSALIS_INGEST_DLQ_BACKEND=redis, got %q", cfg.Ingest.DLQBackend)
	}
	sink, err := dlqredis.New(dlqredis.Config{
		URL:      cfg.Ingest.DLQRedisURL,
		DLQName:  cfg.Ingest.DLQName,
		Password: cfg.Ingest.DLQPassword,
		DB:       cfg.Ingest.DLQDB,
	}, observability.NewLogger(observability.InfoLevel, os.Stdout))
	if err != nil {
		return nil, nil, fmt.Errorf("connect to dlq: %w", err)
	}
	return sink, func() { sink.Close() }, nil
}

func loadQueue() (*queue.Queue, func(), error) {
	cfg, err := config.LoadConfig()
	if err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}
	q, err := queue.New(queue.Config{
		URL:       cfg.Ingest.QueueURL,
		QueueName: cfg.Ingest.QueueName,
		Password:  cfg.Ingest.QueuePassword,
		DB:        cfg.Ingest.QueueDB,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("connect to queue: %w", err)
	}
	return q, func() { q.Close() }, nil
}

func loadRegistry() (registry.Registry, func(), error) {
	cfg, err := config.LoadConfig()
	if err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}
	if cfg.Ingest.RegistryBackend != "postgres" {
		return nil, nil, fmt.Errorf("schema subcommands require CHRYSALIS_INGEST_REGISTRY_BACKEND=postgres, got %q", cfg.Ingest.RegistryBackend)
	}
	reg, err := regpg.New(regpg.Config{
		URL:               cfg.Ingest.RegistryPostgresURL,
		MaxConns:          cfg.Ingest.RegistryMaxConns,
		MinConns:          cfg.Ingest.RegistryMinConns,
		Timeout:           cfg.Ingest.RegistryTimeout,
		EqualityCacheSize: cfg.Ingest.RegistryEqualityCacheSize,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("connect to registry: %w", err)
	}
	return reg, func() { reg.Close() }, nil
}

func newDLQCommand() *cobra.Command {
	var limit int

	dlqCmd := &cobra.Command{
		Use:   "dlq",
		Short: "Inspect and repair the dead-letter sink",
	}

	dumpCmd := &cobra.Command{
		Use:   "dump",
		Short: "Print dead-lettered documents without removing them",
		RunE: func(cmd *cobra.Command, args []string) error {
			sink, closeFn, err := loadDLQSink()
			if err != nil {
				return err
			}
			defer closeFn()

			envelopes, err := sink.Peek(cmd.Context(), limit)
			if err != nil {
				return fmt.Errorf("peek: %w", err)
			}
			for i, e := range envelopes {
				fmt.Printf("[%d] reason=%s timestamp=%s payload=%v\n", i, e.Reason, e.Timestamp.Format(time.RFC3339), e.Payload)
			}
			log.WithField("count", len(envelopes)).Info("dlq dump complete")
			return nil
		},
	}
	dumpCmd.Flags().IntVar(&limit, "limit", 50, "maximum number of entries to print")

	requeueCmd := &cobra.Command{
		Use:   "requeue",
		Short: "Drain dead-lettered documents and re-push them onto the ingest queue",
		RunE: func(cmd *cobra.Command, args []string) error {
			sink, closeSink, err := loadDLQSink()
			if err != nil {
				return err
			}
			defer closeSink()

			q, closeQueue, err := loadQueue()
			if err != nil {
				return err
			}
			defer closeQueue()

			envelopes, err := sink.Drain(cmd.Context(), limit)
			if err != nil {
				return fmt.Errorf("drain: %w", err)
			}

			requeued := 0
			for _, e := range envelopes {
				job := model.Job{
					JobID:      uuid.NewString(),
					Source:     "cli-requeue",
					ReceivedAt: time.Now(),
					Documents:  []model.Document{e.Payload},
				}
				if err := q.Push(cmd.Context(), job); err != nil {
					log.WithError(err).Error("failed to requeue entry")
					continue
				}
				requeued++
			}
			log.WithField("requeued", requeued).WithField("drained", len(envelopes)).Info("dlq requeue complete")
			return nil
		},
	}
	requeueCmd.Flags().IntVar(&limit, "limit", 50, "maximum number of entries to requeue")

	dlqCmd.AddCommand(dumpCmd, requeueCmd)
	return dlqCmd
}

func newSchemaCommand() *cobra.Command {
	schemaCmd := &cobra.Command{
		Use:   "schema",
		Short: "Inspect and promote schema registry versions",
	}

	showCmd := &cobra.Command{
		Use:   "show [version]",
		Short: "Print a schema version's record, or the latest if no version is given",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			reg, closeFn, err := loadRegistry()
			if err != nil {
				return err
			}
			defer closeFn()

			var rec *model.SchemaRecord
			if len(args) == 1 {
				version, convErr := parseVersion(args[0])
				if convErr != nil {
					return convErr
				}
				rec, err = reg.GetByVersion(cmd.Context(), version)
			} else {
				rec, err = reg.GetLatest(cmd.Context())
			}
			if err != nil {
				return fmt.Errorf("lookup schema: %w", err)
			}
			if rec == nil {
				fmt.Println("no matching schema version found")
				return nil
			}
			printSchemaRecord(rec)
			return nil
		},
	}

	promoteCmd := &cobra.Command{
		Use:   "promote <version>",
		Short: "Mark a pending candidate schema version as promoted",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			version, err := parseVersion(args[0])
			if err != nil {
				return err
			}

			reg, closeFn, err := loadRegistry()
			if err != nil {
				return err
			}
			defer closeFn()

			if err := reg.MarkPromoted(cmd.Context(), version); err != nil {
				return fmt.Errorf("mark promoted: %w", err)
			}
			log.WithField("version", version).Info("schema version promoted")
			return nil
		},
	}

	schemaCmd.AddCommand(showCmd, promoteCmd)
	return schemaCmd
}

func parseVersion(arg string) (int, error) {
	var version int
	if _, err := fmt.Sscanf(arg, "%d", &version); err != nil {
		return 0, fmt.Errorf("invalid version %q: %w", arg, err)
	}
	return version, nil
}

func printSchemaRecord(rec *model.SchemaRecord) {
	fmt.Printf("version:           %d\n", rec.Version)
	fmt.Printf("created_at:        %s\n", rec.CreatedAt.Format(time.RFC3339))
	fmt.Printf("source_job_id:     %s\n", rec.SourceJobID)
	fmt.Printf("pending_promotion: %v\n", rec.PendingPromotion)
	if rec.PromotedAt != nil {
		fmt.Printf("promoted_at:       %s\n", rec.PromotedAt.Format(time.RFC3339))
	}
	fmt.Printf("fields:            %d\n", len(rec.Schema.Properties))
}
