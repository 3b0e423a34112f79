package cli

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"xdao.co/origin/codec"
	"xdao.co/origin/model"
)

type watermarkFlags struct {
	media      string
	in         string
	key        string
	strength   string
	every      string
	maxSamples string
}

func (f *watermarkFlags) bind(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.media, "media", string(codec.MediaImage), "image or video")
	cmd.Flags().StringVar(&f.in, "in", "", "input file")
	cmd.Flags().StringVar(&f.key, "key", "", "watermark key")
	cmd.Flags().StringVar(&f.strength, "strength", "", "embedding strength (default 12)")
	cmd.Flags().StringVar(&f.every, "every", "", "video frame stride (default 5)")
	_ = cmd.MarkFlagRequired("in")
	_ = cmd.MarkFlagRequired("key")
}

func watermarkCmd(g *globals) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "watermark",
		Short: "Embed or extract invisible watermarks with the external engine",
	}
	cmd.AddCommand(watermarkEmbedCmd(g), watermarkExtractCmd(g))
	return cmd
}

func watermarkEmbedCmd(g *globals) *cobra.Command {
	var (
		f       watermarkFlags
		text    string
		outPath string
	)
	cmd := &cobra.Command{
		Use:   "embed",
		Short: "Embed text into an image or video",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := g.loadConfig()
			if err != nil {
				return err
			}
			media := codec.Media(f.media)
			in, err := os.Open(f.in)
			if err != nil {
				return model.WrapError(model.KindValidation, "cannot read "+f.in, err)
			}
			defer in.Close()

			res, err := cfg.NewCodec(g.logger()).Embed(cmd.Context(), codec.EmbedRequest{
				Media:       media,
				Input:       in,
				Filename:    filepath.Base(f.in),
				Text:        text,
				Key:         f.key,
				Strength:    codec.NormalizeStrength(media, f.strength),
				FrameStride: codec.NormalizeFrameStride(f.every),
			})
			if err != nil {
				return err
			}
			defer res.Close()

			if outPath == "" {
				outPath = "watermarked" + filepath.Ext(res.Path)
			}
			src, err := res.Open()
			if err != nil {
				return err
			}
			defer src.Close()
			dst, err := os.Create(outPath)
			if err != nil {
				return err
			}
			if _, err := io.Copy(dst, src); err != nil {
				_ = dst.Close()
				return err
			}
			if err := dst.Close(); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s (%s, %d bytes)\n", outPath, res.ContentType, res.Size)
			return nil
		},
	}
	f.bind(cmd)
	cmd.Flags().StringVar(&text, "text", "", "text to embed")
	cmd.Flags().StringVarP(&outPath, "out", "o", "", "output file (default watermarked.<ext>)")
	return cmd
}

func watermarkExtractCmd(g *globals) *cobra.Command {
	var f watermarkFlags
	cmd := &cobra.Command{
		Use:   "extract",
		Short: "Recover embedded text from an image or video",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := g.loadConfig()
			if err != nil {
				return err
			}
			media := codec.Media(f.media)
			in, err := os.Open(f.in)
			if err != nil {
				return model.WrapError(model.KindValidation, "cannot read "+f.in, err)
			}
			defer in.Close()

			text, err := cfg.NewCodec(g.logger()).Extract(cmd.Context(), codec.ExtractRequest{
				Media:       media,
				Input:       in,
				Filename:    filepath.Base(f.in),
				Key:         f.key,
				Strength:    codec.NormalizeStrength(media, f.strength),
				FrameStride: codec.NormalizeFrameStride(f.every),
				MaxSamples:  codec.NormalizeMaxSamples(f.maxSamples),
			})
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), text)
			return nil
		},
	}
	f.bind(cmd)
	cmd.Flags().StringVar(&f.maxSamples, "max-samples", "", "video frames to sample (default 60)")
	return cmd
}
