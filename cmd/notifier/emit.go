package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"notifier/internal/ingest"
)

type emitOptions struct {
	event   ingest.Event
	payload string
}

func newEmitCommand(c *cli) *cobra.Command {
	opts := &emitOptions{}
	cmd := &cobra.Command{
		Use:   "emit",
		Short: "Publish a domain event to the ingest topic",
		Long: `Publish a domain event to kafka.topic, as the school backend would.
A running 'notifier serve' with the same brokers turns it into broadcasts.

Examples:
  notifier emit --type student.registered --action created --entity student --entity-id 42 \
    --payload '{"name":"Amani Kabila"}'
  notifier emit --type assembly --group assembly --payload '{"message":"Assembly at 10"}'`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if opts.payload != "" {
				if err := json.Unmarshal([]byte(opts.payload), &opts.event.Payload); err != nil {
					return fmt.Errorf("invalid --payload: %w", err)
				}
			}

			producer, err := ingest.NewProducer(*c.cfg.Kafka)
			if err != nil {
				return err
			}
			defer producer.Close()

			if err := producer.Emit(cmd.Context(), opts.event); err != nil {
				return err
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "emitted %s to %s\n", opts.event.Key(), c.cfg.Kafka.Topic)
			return err
		},
	}

	cmd.Flags().StringVar(&opts.event.Type, "type", "", "Event type, e.g. student.registered")
	cmd.Flags().StringVar(&opts.event.Action, "action", ingest.ActionNotice, "created, updated, deleted or notice")
	cmd.Flags().StringVar(&opts.event.Entity, "entity", "", "Entity kind, e.g. student")
	cmd.Flags().Int64Var(&opts.event.EntityID, "entity-id", 0, "Entity id")
	cmd.Flags().StringSliceVar(&opts.event.Groups, "group", nil, "Target groups (defaults to admins plus the entity group)")
	cmd.Flags().StringVar(&opts.payload, "payload", "", "JSON object payload")
	_ = cmd.MarkFlagRequired("type")
	return cmd
}
