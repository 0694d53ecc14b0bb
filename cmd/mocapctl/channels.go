package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/danmuck/mocapctl/internal/protocol/channel"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

type channelRow struct {
	Name      string `json:"name" yaml:"name"`
	Bit       int    `json:"bit" yaml:"bit"`
	Dimension int    `json:"dimension" yaml:"dimension"`
	Columns   string `json:"columns" yaml:"columns"`
}

func newChannelsCmd() *cobra.Command {
	var format string
	cmd := &cobra.Command{
		Use:   "channels",
		Short: "List the channels a data service can stream",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return writeChannels(cmd.OutOrStdout(), format)
		},
	}
	cmd.Flags().StringVarP(&format, "output", "o", "table", "output format: table, json, yaml")
	return cmd
}

func channelRows() []channelRow {
	all := channel.All()
	rows := make([]channelRow, 0, len(all))
	for bit, c := range all {
		rows = append(rows, channelRow{
			Name:      channel.Name(c),
			Bit:       bit,
			Dimension: channel.Dimension(c),
			Columns:   strings.Join(channel.ColumnNames(channel.MaskOf(c)), ","),
		})
	}
	return rows
}

func writeChannels(out io.Writer, format string) error {
	rows := channelRows()
	switch strings.ToLower(strings.TrimSpace(format)) {
	case "json":
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(rows)
	case "yaml":
		enc := yaml.NewEncoder(out)
		enc.SetIndent(2)
		if err := enc.Encode(rows); err != nil {
			return err
		}
		return enc.Close()
	case "table", "":
		w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "NAME\tBIT\tDIM\tCOLUMNS")
		for _, r := range rows {
			fmt.Fprintf(w, "%s\t%d\t%d\t%s\n", r.Name, r.Bit, r.Dimension, r.Columns)
		}
		fmt.Fprintf(w, "all\t-\t%d\t\n", channel.MaskDimension(channel.AllMask))
		return w.Flush()
	default:
		return fmt.Errorf("unknown output format %q", format)
	}
}
