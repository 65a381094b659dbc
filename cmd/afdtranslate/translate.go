package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/ferro-labs/afd-translator/internal/requestlog"
	"github.com/ferro-labs/afd-translator/internal/translate"
)

func newTranslateCmd(opts *rootOptions) *cobra.Command {
	var (
		section string
		office  string
		file    string
		asJSON  bool
	)
	cmd := &cobra.Command{
		Use:   "translate",
		Short: "Translate discussion text from stdin or --file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := opts.load(cmd, true)
			if err != nil {
				return err
			}

			var in io.Reader = cmd.InOrStdin()
			if file != "" {
				f, err := os.Open(file) //nolint:gosec
				if err != nil {
					return err
				}
				defer func() { _ = f.Close() }()
				in = f
			}
			text, err := io.ReadAll(in)
			if err != nil {
				return fmt.Errorf("reading input: %w", err)
			}

			a, err := buildApp(commandContext(cmd), cfg)
			if err != nil {
				return err
			}
			defer func() { _ = a.Close() }()

			res, err := a.svc.Translate(commandContext(cmd), translate.Request{
				Text:    strings.TrimSpace(string(text)),
				Section: section,
				Office:  office,
			})
			if err != nil {
				te := translate.AsError(err)
				if te.UpstreamStatus != 0 {
					return fmt.Errorf("%s (upstream status %d): %s", te.Message, te.UpstreamStatus, te.Detail)
				}
				return errors.New(te.Message)
			}

			out := cmd.OutOrStdout()
			if asJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(map[string]any{"translation": res.Translation, "cached": res.Cached})
			}
			_, err = fmt.Fprintln(out, res.Translation)
			return err
		},
	}
	cmd.Flags().StringVar(&section, "section", "", "AFD section label, e.g. \"SHORT TERM\"")
	cmd.Flags().StringVar(&office, "office", "", "NWS office id, e.g. \"SEW\"")
	cmd.Flags().StringVarP(&file, "file", "f", "", "read text from file instead of stdin")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the HTTP-style JSON body")
	return cmd
}

func newHistoryCmd(opts *rootOptions) *cobra.Command {
	var q requestlog.Query
	cmd := &cobra.Command{
		Use:   "history",
		Short: "List recent translate requests from the request log",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := opts.load(cmd, true)
			if err != nil {
				return err
			}
			if cfg.RequestLog.Driver == "" {
				return errors.New("request_log.driver is not configured")
			}
			w, closeLog, err := requestlog.Open(cfg.RequestLog.Driver, cfg.RequestLog.DSN)
			if err != nil {
				return err
			}
			defer func() { _ = closeLog() }()

			store, ok := w.(*requestlog.SQLWriter)
			if !ok {
				return fmt.Errorf("request log driver %q cannot be queried", cfg.RequestLog.Driver)
			}
			page, err := store.List(commandContext(cmd), q)
			if err != nil {
				return err
			}

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(tw, "TIME\tSTATUS\tCACHED\tKEY\tOFFICE\tSECTION\tLATENCY\tERROR")
			for _, e := range page.Data {
				fmt.Fprintf(tw, "%s\t%d\t%t\t%s\t%s\t%s\t%dms\t%s\n",
					e.CreatedAt.Format(time.RFC3339), e.Status, e.Cached, e.CacheKey,
					e.Office, e.Section, e.LatencyMS, e.ErrorMessage)
			}
			fmt.Fprintf(tw, "\n%d of %d entries\n", len(page.Data), page.Total)
			return tw.Flush()
		},
	}
	cmd.Flags().IntVar(&q.Limit, "limit", 20, "maximum entries to show")
	cmd.Flags().IntVar(&q.Offset, "offset", 0, "entries to skip")
	cmd.Flags().IntVar(&q.Status, "status", 0, "only show this HTTP status")
	return cmd
}
