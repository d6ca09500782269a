package cli

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
	"github.com/zeebo/xxh3"

	"github.com/jtang613/pdbtpi/pkg/pdb"
	"github.com/jtang613/pdbtpi/pkg/pdb/codeview"
	"github.com/jtang613/pdbtpi/pkg/pdb/streams"
)

func newInfoCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "info <pdb-file>",
		Short: "Show container, info stream and catalog summaries",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := a.open(args[0])
			if err != nil {
				return err
			}
			defer f.Close()

			s, err := f.Summary()
			if err != nil {
				return err
			}
			return a.write(cmd, s)
		},
	}
}

// typeFailure reports a record that could not be described.
type typeFailure struct {
	Index uint32 `json:"index" yaml:"index" cbor:"index"`
	Kind  string `json:"kind" yaml:"kind" cbor:"kind"`
	Error string `json:"error" yaml:"error" cbor:"error"`
}

type typesResult struct {
	Types  []*pdb.TypeInfo `json:"types" yaml:"types" cbor:"types"`
	Errors []typeFailure   `json:"errors,omitempty" yaml:"errors,omitempty" cbor:"errors,omitempty"`
}

func newTypesCmd(a *app) *cobra.Command {
	var (
		kind string
		ipi  bool
	)

	cmd := &cobra.Command{
		Use:   "types <pdb-file>",
		Short: "List decoded type records",
		Long: `List decoded type records in type index order.

With --kind only records of that leaf kind are listed, e.g. --kind LF_STRUCTURE.
Records whose kind has no decoder are reported under "errors".`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var filter codeview.LeafKind
			if kind != "" {
				k, ok := codeview.ParseLeafKind(kind)
				if !ok {
					return fmt.Errorf("unknown leaf kind %q", kind)
				}
				filter = k
			}

			f, err := a.open(args[0])
			if err != nil {
				return err
			}
			defer f.Close()

			tpi, err := a.catalog(cmd.Context(), f, ipi)
			if err != nil {
				return err
			}

			res := typesResult{Types: []*pdb.TypeInfo{}}
			for i := 0; i < tpi.Count(); i++ {
				ti := tpi.IndexAt(i)
				k, err := tpi.Kind(ti)
				if err != nil {
					return err
				}
				if filter != 0 && k != filter {
					continue
				}
				info, err := pdb.Describe(tpi, ti)
				if err != nil {
					res.Errors = append(res.Errors, typeFailure{Index: uint32(ti), Kind: k.String(), Error: err.Error()})
					continue
				}
				res.Types = append(res.Types, info)
			}
			if len(res.Errors) > 0 {
				a.log.Warn().Int("count", len(res.Errors)).Msg("some records could not be decoded")
			}
			return a.write(cmd, res)
		},
	}

	cmd.Flags().StringVarP(&kind, "kind", "k", "", "only list records of this leaf kind")
	catalogFlag(cmd, &ipi)
	return cmd
}

func parseTypeIndex(s string) (codeview.TypeIndex, error) {
	v, err := strconv.ParseUint(s, 0, 32)
	if err != nil {
		return 0, fmt.Errorf("invalid type index %q: %w", s, err)
	}
	return codeview.TypeIndex(v), nil
}

func newTypeCmd(a *app) *cobra.Command {
	var ipi bool

	cmd := &cobra.Command{
		Use:   "type <pdb-file> <index>",
		Short: "Describe one type index",
		Long: `Describe one type index. The index may be decimal or 0x-prefixed hex.
Built-in (simple) indexes below 0x1000 are named without reading the catalog.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ti, err := parseTypeIndex(args[1])
			if err != nil {
				return err
			}

			f, err := a.open(args[0])
			if err != nil {
				return err
			}
			defer f.Close()

			tpi, err := a.catalog(cmd.Context(), f, ipi)
			if err != nil {
				return err
			}
			info, err := pdb.Describe(tpi, ti)
			if err != nil {
				return err
			}
			return a.write(cmd, info)
		},
	}

	catalogFlag(cmd, &ipi)
	return cmd
}

type hashesResult struct {
	HashStream     bool                     `json:"hash_stream" yaml:"hash_stream" cbor:"hash_stream"`
	TypeIndexBegin uint32                   `json:"type_index_begin" yaml:"type_index_begin" cbor:"type_index_begin"`
	Values         []uint32                 `json:"values" yaml:"values" cbor:"values"`
	Adjusters      map[uint32][]uint32      `json:"adjusters,omitempty" yaml:"adjusters,omitempty" cbor:"adjusters,omitempty"`
	Header         *streams.TPIStreamHeader `json:"header" yaml:"header" cbor:"header"`
}

func newHashesCmd(a *app) *cobra.Command {
	var ipi bool

	cmd := &cobra.Command{
		Use:   "hashes <pdb-file>",
		Short: "Show the per-record hash values and hash adjusters",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := a.open(args[0])
			if err != nil {
				return err
			}
			defer f.Close()

			tpi, err := a.catalog(cmd.Context(), f, ipi)
			if err != nil {
				return err
			}

			res := hashesResult{
				HashStream:     tpi.Header().HasHashStream(),
				TypeIndexBegin: uint32(tpi.TypeIndexBegin()),
				Header:         tpi.Header(),
			}
			if res.Values, err = tpi.HashValues(); err != nil {
				return err
			}
			adj, err := tpi.HashAdjusters()
			if err != nil {
				return err
			}
			if adj != nil {
				res.Adjusters = make(map[uint32][]uint32, adj.Len())
				for _, h := range adj.Hashes() {
					for _, ti := range adj.Lookup(h) {
						res.Adjusters[h] = append(res.Adjusters[h], uint32(ti))
					}
				}
			}
			return a.write(cmd, res)
		},
	}

	catalogFlag(cmd, &ipi)
	return cmd
}

type offsetsResult struct {
	Offsets streams.TypeIndexOffsets `json:"offsets" yaml:"offsets" cbor:"offsets"`
	Nearest *streams.TypeIndexOffset `json:"nearest,omitempty" yaml:"nearest,omitempty" cbor:"nearest,omitempty"`
}

func newOffsetsCmd(a *app) *cobra.Command {
	var (
		ipi   bool
		index string
	)

	cmd := &cobra.Command{
		Use:   "offsets <pdb-file>",
		Short: "Show the sampled type index offsets",
		Long: `Show the (type index, record offset) samples stored in the hash stream.
With --nearest the sample to start scanning from for that index is reported.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := a.open(args[0])
			if err != nil {
				return err
			}
			defer f.Close()

			tpi, err := a.catalog(cmd.Context(), f, ipi)
			if err != nil {
				return err
			}
			offsets, err := tpi.TypeIndexOffsets()
			if err != nil {
				return err
			}

			res := offsetsResult{Offsets: offsets}
			if res.Offsets == nil {
				res.Offsets = streams.TypeIndexOffsets{}
			}
			if index != "" {
				ti, err := parseTypeIndex(index)
				if err != nil {
					return err
				}
				if near, ok := offsets.Nearest(ti); ok {
					res.Nearest = &near
				}
			}
			return a.write(cmd, res)
		},
	}

	cmd.Flags().StringVar(&index, "nearest", "", "report the sample at or before this type index")
	catalogFlag(cmd, &ipi)
	return cmd
}

// dedupGroup is a set of byte-identical records.
type dedupGroup struct {
	Kind        string   `json:"kind" yaml:"kind" cbor:"kind"`
	Indexes     []uint32 `json:"indexes" yaml:"indexes" cbor:"indexes"`
	Fingerprint string   `json:"fingerprint" yaml:"fingerprint" cbor:"fingerprint"`
	// Hash and Canonical come from the producer's hash stream, if present.
	Hash      *uint32  `json:"hash,omitempty" yaml:"hash,omitempty" cbor:"hash,omitempty"`
	Canonical []uint32 `json:"canonical,omitempty" yaml:"canonical,omitempty" cbor:"canonical,omitempty"`
}

func newDedupCmd(a *app) *cobra.Command {
	var ipi bool

	cmd := &cobra.Command{
		Use:   "dedup <pdb-file>",
		Short: "Find byte-identical type records",
		Long: `Group records whose kind and data bytes are identical. Records are bucketed
by 64-bit xxh3 fingerprints and confirmed byte for byte. When the file has a
hash stream, each group also lists the producer's hash and the type indexes
its hash adjusters chose.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := a.open(args[0])
			if err != nil {
				return err
			}
			defer f.Close()

			tpi, err := a.catalog(cmd.Context(), f, ipi)
			if err != nil {
				return err
			}
			groups, err := pdb.Duplicates(tpi, xxh3.Hash)
			if err != nil {
				return err
			}
			hashes, err := tpi.HashValues()
			if err != nil {
				return err
			}
			adj, err := tpi.HashAdjusters()
			if err != nil {
				return err
			}

			out := make([]dedupGroup, 0, len(groups))
			for _, g := range groups {
				first := g[0]
				kind, err := tpi.Kind(first)
				if err != nil {
					return err
				}
				data, err := tpi.RawRecord(first)
				if err != nil {
					return err
				}
				dg := dedupGroup{
					Kind:        kind.String(),
					Fingerprint: fmt.Sprintf("%016x", xxh3.Hash(data)),
				}
				for _, ti := range g {
					dg.Indexes = append(dg.Indexes, uint32(ti))
				}
				if i := int(first - tpi.TypeIndexBegin()); i < len(hashes) {
					h := hashes[i]
					dg.Hash = &h
					if adj != nil {
						for _, ti := range adj.Lookup(h) {
							dg.Canonical = append(dg.Canonical, uint32(ti))
						}
					}
				}
				out = append(out, dg)
			}
			a.log.Debug().Int("groups", len(out)).Msg("deduplicated records")
			return a.write(cmd, out)
		},
	}

	catalogFlag(cmd, &ipi)
	return cmd
}
