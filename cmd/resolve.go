package main

import (
	"encoding/json"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	resolveReq    leadRequest
	resolveSentAt string
	resolveDryRun bool
)

var resolveCmd = &cobra.Command{
	Use:   "resolve",
	Short: "Resolve one lead and print the merged record",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		req := resolveReq
		if resolveSentAt != "" {
			t, err := time.Parse(time.RFC3339, resolveSentAt)
			if err != nil {
				return eris.Wrap(err, "parse --sent-at")
			}
			req.MessageSentAt = &t
		}
		id, meta, err := req.normalize(defaultsFromConfig())
		if err != nil {
			return err
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")

		if resolveDryRun {
			if err := cfg.Validate("resolve"); err != nil {
				return err
			}
			resolver, err := initResolver()
			if err != nil {
				return err
			}
			return enc.Encode(resolver.Resolve(ctx, id, meta))
		}

		env, err := initPipeline(ctx, "resolve")
		if err != nil {
			return err
		}
		defer env.Close()

		result, err := env.Pipeline.Run(ctx, id, meta)
		if err != nil {
			return err
		}
		zap.L().Info("lead resolved",
			zap.String("source_id", meta.SourceID),
			zap.Bool("phone", result.Lead.Notifiable()),
			zap.Bool("alerted", result.Alerted),
		)
		return enc.Encode(result)
	},
}

func init() {
	f := resolveCmd.Flags()
	f.StringVar(&resolveReq.SourceID, "source-id", "", "lead source id (default: random uuid)")
	f.StringVar(&resolveReq.Name, "name", "", "display name, first token is the first name")
	f.StringVar(&resolveReq.City, "city", "", "city")
	f.StringVar(&resolveReq.State, "state", "", "two-letter state (default from config)")
	f.StringVar(&resolveReq.Zip, "zip", "", "postal code")
	f.StringVar(&resolveReq.LeadType, "lead-type", "", "lead category (default from config)")
	f.StringVar(&resolveReq.Location, "location", "", "free-form location from the source")
	f.StringVar(&resolveReq.Description, "description", "", "source description")
	f.StringVar(&resolveSentAt, "sent-at", "", "RFC3339 time the source message was sent")
	f.BoolVar(&resolveDryRun, "dry-run", false, "resolve only, do not store or alert")
	_ = resolveCmd.MarkFlagRequired("name")
	_ = resolveCmd.MarkFlagRequired("city")
	rootCmd.AddCommand(resolveCmd)
}
