package cmd

import (
	"errors"
	"io"
	"os"

	jsoniter "github.com/json-iterator/go"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/rivermux/tsparse/internal/errs"
	"github.com/rivermux/tsparse/internal/parseio"
	"github.com/rivermux/tsparse/media/codec/h264"
	"github.com/rivermux/tsparse/media/container/mts"
)

// parseJSON is the marshaler used to print decoded records, following
// the teacher's preference for json-iterator over encoding/json.
var parseJSON = jsoniter.ConfigCompatibleWithStandardLibrary

var parseMode string

// parseCmd is the single core-facing entrypoint: open the named file,
// drive the iterator selected by --mode over it, and print one decoded
// record per line. Everything here is thin CLI plumbing explicitly out
// of scope for the parse pipeline itself (spec §1/§6).
var parseCmd = &cobra.Command{
	Use:   "parse <input>",
	Short: "Parse an MTS or H.264 Annex-B file into its records",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		f, err := os.Open(args[0])
		if err != nil {
			return err
		}
		defer func() {
			if cerr := f.Close(); cerr != nil {
				log.Warn().Err(cerr).Msg("tsparse: error closing input file")
			}
		}()

		switch parseMode {
		case "mts":
			return runMTS(f)
		case "h264":
			return runH264(f)
		default:
			return errors.New("tsparse: --mode must be \"mts\" or \"h264\"")
		}
	},
}

func runMTS(r io.Reader) error {
	reassembler := mts.NewReassembler(r)
	for {
		el, ok, err := reassembler.Next()
		if err != nil {
			if errs.IsMalformed(err) {
				log.Error().Err(err).Msg("tsparse: malformed MTS stream")
			}
			return err
		}
		if !ok {
			return nil
		}
		b, err := parseJSON.Marshal(el)
		if err != nil {
			return err
		}
		os.Stdout.Write(b)
		os.Stdout.Write([]byte("\n"))
	}
}

func runH264(r io.Reader) error {
	stream := parseio.NewStream[h264.NALUnit](r, h264.Decode)
	for {
		unit, ok, err := stream.Next()
		if err != nil {
			if errs.IsMalformed(err) {
				log.Error().Err(err).Msg("tsparse: malformed H.264 bytestream")
			}
			return err
		}
		if !ok {
			return nil
		}
		b, err := parseJSON.Marshal(unit)
		if err != nil {
			return err
		}
		os.Stdout.Write(b)
		os.Stdout.Write([]byte("\n"))
	}
}

func init() {
	rootCmd.AddCommand(parseCmd)
	parseCmd.Flags().StringVarP(&parseMode, "mode", "m", "mts", "input format: \"mts\" or \"h264\"")
}
