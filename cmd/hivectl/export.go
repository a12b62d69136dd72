package main

import (
	"errors"
	"fmt"

	"hive/internal/client"
	"hive/internal/domain"

	"github.com/atotto/clipboard"
	"github.com/pkg/browser"
	"github.com/spf13/cobra"
)

func NewExportCommand(g *globalFlags) *cobra.Command {
	var (
		qf     queryFlags
		typ    string
		outDir string
	)
	cmd := &cobra.Command{
		Use:   "export users|roles|permissions",
		Short: "Export the filtered result, or the given ids, as csv, excel, pdf, copy or print",
		Long: `Export runs over the whole filtered result, not just one page.
With --ids only those records are exported. The copy type puts tab
separated rows on the clipboard; print opens an HTML view in the browser.`,
		Args:      cobra.ExactArgs(1),
		ValidArgs: []string{domain.ResourceUsers, domain.ResourceRoles, domain.ResourcePermissions},
		RunE: func(cmd *cobra.Command, args []string) error {
			kind, err := domain.ParseExportType(typ)
			if err != nil {
				return err
			}
			q, ids, err := qf.query()
			if err != nil {
				return err
			}
			c, err := g.client()
			if err != nil {
				return err
			}

			tc := client.NewTableController(cmd.Context(), c, args[0], client.WithInitialQuery(q))
			defer tc.Close()
			scope := client.ScopeFiltered
			if len(ids) > 0 {
				tc.Selection().Select(ids...)
				scope = client.ScopeSelected
			}

			stderr := cmd.ErrOrStderr()
			trig := &client.ExportTrigger{
				API:        c,
				Table:      tc,
				Resource:   args[0],
				Downloader: client.DirDownloader{Dir: outDir},
				Clipboard:  client.ClipboardFunc(writeClipboard),
				Fallback:   &client.FallbackClipboard{Dir: outDir},
				Opener:     client.OpenerFunc(browser.OpenFile),
				Notifier: client.NotifierFunc(func(n client.Notice) {
					if n.Level == client.NoticeLoading {
						fmt.Fprintln(stderr, n.Message)
						return
					}
					fmt.Fprintf(stderr, "%s: %s\n", n.Level, n.Message)
				}),
			}
			return trig.Trigger(cmd.Context(), kind, scope)
		},
	}
	qf.register(cmd)
	cmd.Flags().StringVar(&typ, "type", "csv", "Export type: csv, excel, xlsx, pdf, copy or print.")
	cmd.Flags().StringVar(&outDir, "out", ".", "Directory for downloaded files.")
	return cmd
}

func writeClipboard(text string) error {
	if clipboard.Unsupported {
		return errors.New("no clipboard utility available")
	}
	return clipboard.WriteAll(text)
}
