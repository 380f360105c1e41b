package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"uninotifier/internal/app"
	"uninotifier/internal/config"
	"uninotifier/internal/dispatch"
	"uninotifier/internal/channel"
	"uninotifier/internal/invoke"
	"uninotifier/internal/sanitize"
	logx "uninotifier/pkg/logx"
)

type sendOptions struct {
	file     string
	message  string
	title    string
	targets  []string
	priority bool
	dryRun   bool
	preview  bool
}

func newSendCmd(root *rootOptions) *cobra.Command {
	o := &sendOptions{}
	cmd := &cobra.Command{
		Use:   "send",
		Short: "Send one notification and print the report",
		Long: `Send reads a request document (the same JSON accepted by POST /api/send)
from --file, or from stdin with --file -, or builds one from --message and
--target. With --dry-run the planned calls are printed and nothing is sent.
--preview implies --dry-run and prints each call's text as a reader would see
it, with markup escapes removed.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			req, err := o.request(cmd.InOrStdin())
			if err != nil {
				return err
			}
			cfgm := config.NewConfigManager(root.cfgPath)
			cfg, err := cfgm.Load(cmd.Context())
			if err != nil {
				return err
			}
			level := cfg.Logging.Level
			if level == "" {
				level = "warn"
			}
			log := logx.NewWriter(cmd.ErrOrStderr(), level)

			if o.preview {
				o.dryRun = true
			}
			var inv invoke.Invoker = &invoke.Recorder{}
			if !o.dryRun {
				if inv, err = app.NewInvoker(cfg, log); err != nil {
					return err
				}
			}
			d, err := app.NewDispatcher(cfg, inv, log)
			if err != nil {
				return err
			}

			if o.preview {
				return writePreview(cmd.OutOrStdout(), d.Plan(req))
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			if o.dryRun {
				return enc.Encode(d.Plan(req))
			}
			rep := d.Send(cmd.Context(), req)
			if err := enc.Encode(rep); err != nil {
				return err
			}
			if rep.Failed > 0 {
				return fmt.Errorf("%d of %d calls failed", rep.Failed, rep.Planned)
			}
			return nil
		},
	}
	f := cmd.Flags()
	f.StringVarP(&o.file, "file", "f", "", "request JSON file, - for stdin")
	f.StringVarP(&o.message, "message", "m", "", "message text")
	f.StringVar(&o.title, "title", "", "message title")
	f.StringSliceVarP(&o.targets, "target", "t", nil, "destination alias (repeatable)")
	f.BoolVar(&o.priority, "priority", false, "bypass quiet hours")
	f.BoolVar(&o.dryRun, "dry-run", false, "print planned calls without sending")
	f.BoolVar(&o.preview, "preview", false, "print the text of each planned call without sending")
	cmd.MarkFlagsMutuallyExclusive("file", "message")
	return cmd
}

func (o *sendOptions) request(stdin io.Reader) (dispatch.Request, error) {
	var req dispatch.Request
	switch {
	case o.file != "":
		var (
			b   []byte
			err error
		)
		if o.file == "-" {
			b, err = io.ReadAll(stdin)
		} else {
			b, err = os.ReadFile(o.file)
		}
		if err != nil {
			return req, err
		}
		if req, err = dispatch.DecodeRequest(b); err != nil {
			return req, err
		}
	default:
		req = dispatch.Request{Message: o.message, Title: o.title}
	}
	for _, t := range o.targets {
		if t = strings.TrimSpace(t); t != "" {
			req.Targets = append(req.Targets, t)
		}
	}
	if o.priority {
		req.Priority = true
	}
	return req, req.Validate()
}

// writePreview prints one line per delivery call and per skip.
func writePreview(w io.Writer, p dispatch.Plan) error {
	for _, c := range p.Calls {
		if c.Kind != invoke.KindDelivery {
			continue
		}
		text, _ := c.Payload[channel.FieldMessage].(string)
		if caption, ok := c.Payload[channel.FieldCaption].(string); ok {
			text = caption
		}
		if mode, _ := c.Payload[channel.FieldParseMode].(string); strings.Contains(strings.ToLower(mode), "markdown") {
			text = sanitize.UnescapeMarkdown(text)
		}
		dest := c.Alias
		if c.Recipient != "" {
			dest += "/" + c.Recipient
		}
		if _, err := fmt.Fprintf(w, "%s (%s): %s\n", dest, c.Mechanism, text); err != nil {
			return err
		}
	}
	for _, s := range p.Skipped {
		if _, err := fmt.Fprintf(w, "%s skipped: %s\n", s.Alias, s.Reason); err != nil {
			return err
		}
	}
	return nil
}
