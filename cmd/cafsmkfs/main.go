// Command cafsmkfs formats a new CAFS image file, seeding it with the
// same two files the original implementation's main.rs baked into every
// generated image, plus optional extra seed files and compression of the
// image written to disk.
package main

import (
	"compress/gzip"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/kestrelfs/cafs/blockdev"
	"github.com/kestrelfs/cafs/fs"
	"github.com/klauspost/compress/zstd"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/ulikunitz/xz"
)

var (
	sizeKiB     int
	outputPath  string
	seedFiles   []string
	compression string
	verbose     bool
)

// errArgCount marks an argument-count validation failure, mirroring the
// original's `args.len() > 2 -> process::exit(64)`: at most one positional
// size argument is accepted, distinct from any other runtime error.
var errArgCount = errors.New("cafsmkfs: at most one size argument allowed")

func main() {
	root := &cobra.Command{
		Use:   "cafsmkfs [size]",
		Short: "Format a new CAFS filesystem image",
		Args: func(cmd *cobra.Command, args []string) error {
			if len(args) > 1 {
				return errArgCount
			}
			return nil
		},
		RunE: runMkfs,
	}
	root.Flags().IntVar(&sizeKiB, "size", 50, "image size unit (total blocks = 2*size<<10)")
	root.Flags().StringVarP(&outputPath, "output", "o", "cafs.bin", "path to write the image to")
	root.Flags().StringArrayVar(&seedFiles, "seed", nil, "host:image path pair to seed into the root directory, may be repeated")
	root.Flags().StringVar(&compression, "compress", "", "compress the written image: one of none, gzip, xz, zstd")
	root.Flags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "cafsmkfs:", err)
		if errors.Is(err, errArgCount) {
			os.Exit(64)
		}
		os.Exit(1)
	}
}

func runMkfs(cmd *cobra.Command, args []string) error {
	cmd.SilenceUsage = true

	log := logrus.New()
	if verbose {
		log.SetLevel(logrus.DebugLevel)
	}

	if len(args) == 1 {
		n, err := strconv.Atoi(args[0])
		if err != nil {
			return fmt.Errorf("invalid size argument %q: %w", args[0], err)
		}
		sizeKiB = n
	}

	totalBlocks := uint64(2*sizeKiB) << 10
	const inodeBitmapBlocks = 10

	dev := blockdev.NewMemDevice(totalBlocks)
	fsys, err := fs.Format(dev, totalBlocks, inodeBitmapBlocks, log)
	if err != nil {
		return fmt.Errorf("formatting image: %w", err)
	}

	if err := seed(fsys, "test.txt", []byte("Test File")); err != nil {
		return err
	}
	if data, err := os.ReadFile("rootfs/hello"); err == nil {
		if err := seed(fsys, "hello", data); err != nil {
			return err
		}
	} else {
		log.WithError(err).Debug("cafsmkfs: rootfs/hello not found, skipping default seed")
	}

	for _, pair := range seedFiles {
		host, imagePath, ok := splitSeedPair(pair)
		if !ok {
			return fmt.Errorf("invalid --seed value %q, want host:imagepath", pair)
		}
		data, err := os.ReadFile(host)
		if err != nil {
			return fmt.Errorf("reading seed file %s: %w", host, err)
		}
		if err := seed(fsys, imagePath, data); err != nil {
			return err
		}
	}

	if err := fsys.Flush(); err != nil {
		return fmt.Errorf("flushing image: %w", err)
	}

	return writeImage(dev, totalBlocks)
}

func seed(fsys *fs.FS, name string, contents []byte) error {
	ino, err := fsys.Create(fs.RootInodeNumber, name)
	if err != nil {
		return fmt.Errorf("creating %s: %w", name, err)
	}
	number := ino.Number()
	ino.Release()
	if err := fsys.Write(number, contents); err != nil {
		return fmt.Errorf("writing %s: %w", name, err)
	}
	return nil
}

func splitSeedPair(pair string) (host, imagePath string, ok bool) {
	for i := 0; i < len(pair); i++ {
		if pair[i] == ':' {
			return pair[:i], pair[i+1:], true
		}
	}
	return "", "", false
}

func writeImage(dev *blockdev.MemDevice, totalBlocks uint64) error {
	raw := dev.Bytes()

	out, err := os.Create(outputPath)
	if err != nil {
		return err
	}
	defer out.Close()

	var w io.Writer = out
	var closer io.Closer
	switch compression {
	case "", "none":
	case "gzip":
		gz := gzip.NewWriter(out)
		w, closer = gz, gz
	case "xz":
		xw, err := xz.NewWriter(out)
		if err != nil {
			return fmt.Errorf("creating xz writer: %w", err)
		}
		w, closer = xw, xw
	case "zstd":
		zw, err := zstd.NewWriter(out)
		if err != nil {
			return fmt.Errorf("creating zstd writer: %w", err)
		}
		w, closer = zw, zw
	default:
		return fmt.Errorf("unknown --compress value %q", compression)
	}

	if _, err := w.Write(raw); err != nil {
		return fmt.Errorf("writing image: %w", err)
	}
	if closer != nil {
		if err := closer.Close(); err != nil {
			return fmt.Errorf("closing compressor: %w", err)
		}
	}
	fmt.Printf("cafsmkfs: wrote %d blocks (%d bytes) to %s\n", totalBlocks, len(raw), outputPath)
	return nil
}
