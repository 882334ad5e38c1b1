package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"sort"

	"github.com/urfave/cli/v2"

	"github.com/marmos91/dittovault/pkg/content"
	"github.com/marmos91/dittovault/pkg/vault"
)

// objectStat is the stat output for one content object.
type objectStat struct {
	ID     content.ContentID `yaml:"id"`
	Exists bool              `yaml:"exists"`
	Size   uint64            `yaml:"size,omitempty"`
}

func cmdStat() *cli.Command {
	return &cli.Command{
		Name:      "stat",
		Usage:     "show storage and vault statistics, or the size of objects",
		ArgsUsage: "[id...]",
		Action: func(c *cli.Context) error {
			return withRuntime(c, func(rt *runtime) error {
				if c.Args().Len() == 0 {
					storage, err := rt.store.GetStorageStats(c.Context)
					if err != nil {
						return err
					}
					return writeYAML(c, struct {
						Storage *content.StorageStats `yaml:"storage"`
						Vault   vault.Stats           `yaml:"vault"`
					}{storage, rt.vault.Stats()})
				}

				stats := make([]objectStat, 0, c.Args().Len())
				for _, arg := range c.Args().Slice() {
					id := content.ContentID(arg)
					size, err := rt.store.GetContentSize(c.Context, id)
					switch {
					case errors.Is(err, content.ErrContentNotFound):
						stats = append(stats, objectStat{ID: id})
					case err != nil:
						return err
					default:
						stats = append(stats, objectStat{ID: id, Exists: true, Size: size})
					}
				}
				return writeYAML(c, stats)
			})
		},
	}
}

func cmdList() *cli.Command {
	return &cli.Command{
		Name:    "ls",
		Aliases: []string{"list"},
		Usage:   "list stored content ids",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:    "long",
				Aliases: []string{"l"},
				Usage:   "include object sizes",
			},
		},
		Action: func(c *cli.Context) error {
			return withRuntime(c, func(rt *runtime) error {
				ids, err := rt.store.ListAllContent(c.Context)
				if err != nil {
					return err
				}
				sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

				for _, id := range ids {
					if !c.Bool("long") {
						_, _ = fmt.Fprintln(c.App.Writer, id)
						continue
					}
					size, err := rt.store.GetContentSize(c.Context, id)
					if err != nil {
						return err
					}
					_, _ = fmt.Fprintf(c.App.Writer, "%12d %s\n", size, id)
				}
				return nil
			})
		},
	}
}

func cmdCat() *cli.Command {
	return &cli.Command{
		Name:      "cat",
		Usage:     "write an object to stdout",
		ArgsUsage: "<id>",
		Flags: []cli.Flag{
			&cli.Int64Flag{
				Name:  "offset",
				Usage: "start reading at this byte offset",
			},
			&cli.Int64Flag{
				Name:  "length",
				Usage: "read at most this many bytes (0 = to the end)",
			},
		},
		Action: func(c *cli.Context) error {
			id, err := contentIDArg(c)
			if err != nil {
				return err
			}
			offset, length := c.Int64("offset"), c.Int64("length")
			if offset < 0 || length < 0 {
				return fmt.Errorf("cat: negative offset or length")
			}

			return withRuntime(c, func(rt *runtime) error {
				r, err := openObject(c, rt, id, offset)
				if err != nil {
					return err
				}
				defer r.Close()

				var src io.Reader = r
				if length > 0 {
					src = io.LimitReader(r, length)
				}
				_, err = io.Copy(c.App.Writer, src)
				return err
			})
		},
	}
}

// openObject returns a reader over id positioned at offset.
func openObject(c *cli.Context, rt *runtime, id content.ContentID, offset int64) (io.ReadCloser, error) {
	if offset == 0 {
		return rt.store.ReadContent(c.Context, id)
	}

	seekable, ok := rt.store.(content.SeekableContentStore)
	if !ok {
		return nil, fmt.Errorf("cat: %s store does not support offsets", rt.cfg.Content.Type)
	}
	r, err := seekable.ReadContentSeekable(c.Context, id)
	if err != nil {
		return nil, err
	}
	if _, err := r.Seek(offset, io.SeekStart); err != nil {
		_ = r.Close()
		return nil, err
	}
	return r, nil
}

func cmdWrite() *cli.Command {
	return &cli.Command{
		Name:      "write",
		Usage:     "store data from a file or stdin",
		ArgsUsage: "<id> [file]",
		Flags: []cli.Flag{
			&cli.Int64Flag{
				Name:  "offset",
				Usage: "write at this offset instead of replacing the object",
				Value: -1,
			},
			&cli.BoolFlag{
				Name:  "sync",
				Usage: "flush the object to stable storage",
			},
		},
		Action: func(c *cli.Context) error {
			id, err := contentIDArg(c)
			if err != nil {
				return err
			}

			data, err := readInput(c)
			if err != nil {
				return err
			}

			return withRuntime(c, func(rt *runtime) error {
				var err error
				if offset := c.Int64("offset"); offset >= 0 {
					err = rt.store.WriteAt(c.Context, id, data, offset)
				} else {
					err = rt.store.WriteContent(c.Context, id, data)
				}
				if err != nil {
					return err
				}

				if c.Bool("sync") {
					if err := rt.store.Sync(c.Context, id); err != nil {
						return err
					}
				}

				_, _ = fmt.Fprintf(c.App.ErrWriter, "wrote %d bytes to %s\n", len(data), id)
				return nil
			})
		},
	}
}

// readInput reads the file named by the second argument, or stdin.
func readInput(c *cli.Context) ([]byte, error) {
	if c.Args().Len() < 2 || c.Args().Get(1) == "-" {
		return io.ReadAll(c.App.Reader)
	}
	return os.ReadFile(c.Args().Get(1))
}

func cmdRemove() *cli.Command {
	return &cli.Command{
		Name:      "rm",
		Usage:     "delete objects",
		ArgsUsage: "<id>...",
		Action: func(c *cli.Context) error {
			if c.Args().Len() == 0 {
				return fmt.Errorf("rm: missing content id")
			}

			ids := make([]content.ContentID, 0, c.Args().Len())
			for _, arg := range c.Args().Slice() {
				ids = append(ids, content.ContentID(arg))
			}

			return withRuntime(c, func(rt *runtime) error {
				failures, err := rt.store.DeleteBatch(c.Context, ids)
				if err != nil {
					return err
				}
				for id, ferr := range failures {
					_, _ = fmt.Fprintf(c.App.ErrWriter, "rm %s: %v\n", id, ferr)
				}
				if len(failures) > 0 {
					return fmt.Errorf("rm: %d of %d deletions failed", len(failures), len(ids))
				}
				return nil
			})
		},
	}
}
