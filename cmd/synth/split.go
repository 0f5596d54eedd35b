package main

import (
	"fmt"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/MarsPain/chunk-wise-data-synthesis/synthesis"
	"github.com/MarsPain/chunk-wise-data-synthesis/synthesis/fileutils"
)

func newSplitCmd(a *app) *cobra.Command {
	var (
		inPath    string
		chunkSize int
		preview   int
	)
	cmd := &cobra.Command{
		Use:   "split",
		Short: "Show the chunk boundaries a rephrase run would use",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if inPath == "" {
				return fmt.Errorf("missing --in")
			}
			raw, err := os.ReadFile(inPath)
			if err != nil {
				return err
			}
			cfg := a.settings.Rephrase
			if chunkSize > 0 {
				cfg.ChunkSize = chunkSize
			}
			if err := cfg.Validate(); err != nil {
				return err
			}
			tok := synthesis.WhitespaceTokenizer{}
			chunks, err := synthesis.Split(string(raw), tok, cfg.SplitOptions())
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "script=%s chunks=%d\n", synthesis.DetectDominantScript(string(raw)), len(chunks))
			for _, c := range chunks {
				fmt.Fprintf(out, "#%d [%d:%d] length=%d sep=%s %s\n",
					c.Index+1, c.Start, c.End,
					synthesis.AdaptiveLength(c.Text, tok, cfg.LengthMode),
					strconv.Quote(c.Separator),
					strconv.Quote(fileutils.Truncate(c.Text, preview)))
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&inPath, "in", "", "input file")
	cmd.Flags().IntVar(&chunkSize, "chunk-size", 0, "override chunk size")
	cmd.Flags().IntVar(&preview, "preview", 60, "bytes of each chunk to show")
	return cmd
}
