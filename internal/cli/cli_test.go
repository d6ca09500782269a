package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/fxamacker/cbor/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zeebo/xxh3"
	"gopkg.in/yaml.v3"

	"github.com/jtang613/pdbtpi/internal/pdbtest"
	"github.com/jtang613/pdbtpi/pkg/pdb"
	"github.com/jtang613/pdbtpi/pkg/pdb/codeview"
)

const hashStreamIndex = 5

func argList(tis ...uint32) []byte {
	w := pdbtest.NewW().U32(uint32(len(tis)))
	for _, ti := range tis {
		w.U32(ti)
	}
	return w.Bytes()
}

// writeSample writes a PDB whose TPI holds two identical arglists (0x1000,
// 0x1001) and a const int modifier (0x1002), with a hash stream.
func writeSample(t *testing.T) string {
	t.Helper()

	tpi := pdbtest.NewTPI().
		Add(uint16(codeview.LF_ARGLIST), argList(0x74)).
		Add(uint16(codeview.LF_ARGLIST), argList(0x74)).
		Add(uint16(codeview.LF_MODIFIER), pdbtest.NewW().U32(0x74).U16(uint16(codeview.ModifierConst)).Pad().Bytes())

	hs := pdbtest.NewW().U32(0xabc).U32(0xabc).U32(0x17)
	tpi.HashValues = pdbtest.Buffer{Offset: 0, Length: 12}
	hs.U32(0x1000).U32(0).U32(0x1002).U32(24)
	tpi.IndexOffsets = pdbtest.Buffer{Offset: 12, Length: 16}
	adj := pdbtest.HashTable(4, [][2]uint32{{0xabc, 0x1000}, {0x17, 0x1002}})
	hs.Raw(adj)
	tpi.HashAdjusters = pdbtest.Buffer{Offset: 28, Length: uint32(len(adj))}
	tpi.HashStreamIndex = hashStreamIndex

	ipi := pdbtest.NewTPI().
		Add(uint16(codeview.LF_STRING_ID), pdbtest.NewW().U32(0).CString("x").Pad().Bytes()).
		Add(uint16(codeview.LF_ARGLIST), argList())

	info := pdbtest.NewW().U32(20000404).U32(1).U32(1).Raw(make([]byte, 16)).Bytes()

	image := pdbtest.MSF{
		BlockSize: 512,
		Streams:   [][]byte{{}, info, tpi.Bytes(), nil, ipi.Bytes(), hs.Bytes()},
	}.Build()

	path := filepath.Join(t.TempDir(), "sample.pdb")
	require.NoError(t, os.WriteFile(path, image, 0o600))
	return path
}

// run executes pdbdump with an isolated home directory.
func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	t.Setenv("HOME", t.TempDir())

	var out, errOut bytes.Buffer
	root := NewRootCmd()
	root.SetOut(&out)
	root.SetErr(&errOut)
	root.SetArgs(args)
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func TestInfo(t *testing.T) {
	out, err := run(t, "info", writeSample(t))
	require.NoError(t, err)

	var s pdb.Summary
	require.NoError(t, json.Unmarshal([]byte(out), &s))
	assert.Equal(t, 6, s.Streams)
	assert.Empty(t, s.Machine)
	require.NotNil(t, s.TPI)
	assert.Equal(t, 3, s.TPI.Records)
	assert.True(t, s.TPI.HashStream)
	assert.Equal(t, map[string]int{"LF_ARGLIST": 2, "LF_MODIFIER": 1}, s.TPI.Kinds)
	require.NotNil(t, s.IPI)
	assert.Equal(t, 2, s.IPI.Records)
}

type typesOutput struct {
	Types []struct {
		Index     uint32 `json:"index"`
		Kind      string `json:"kind"`
		Signature string `json:"signature"`
	} `json:"types"`
	Errors []typeFailure `json:"errors"`
}

func TestTypes(t *testing.T) {
	path := writeSample(t)

	for _, workers := range []string{"0", "4"} {
		out, err := run(t, "types", path, "--kind", "LF_ARGLIST", "--workers", workers)
		require.NoError(t, err)

		var res typesOutput
		require.NoError(t, json.Unmarshal([]byte(out), &res))
		require.Len(t, res.Types, 2, "workers %s", workers)
		assert.Equal(t, uint32(0x1001), res.Types[1].Index)
		assert.Equal(t, "int", res.Types[1].Signature)
		assert.Empty(t, res.Errors)
	}

	out, err := run(t, "types", path, "--ipi")
	require.NoError(t, err)
	var res typesOutput
	require.NoError(t, json.Unmarshal([]byte(out), &res))
	require.Len(t, res.Types, 1)
	assert.Equal(t, "void", res.Types[0].Signature)
	require.Len(t, res.Errors, 1)
	assert.Equal(t, "LF_STRING_ID", res.Errors[0].Kind)
	assert.Contains(t, res.Errors[0].Error, "unknown record kind")

	_, err = run(t, "types", path, "--kind", "LF_BOGUS")
	assert.ErrorContains(t, err, "unknown leaf kind")
}

func TestTypeYAML(t *testing.T) {
	path := writeSample(t)

	out, err := run(t, "type", path, "0x1002", "--format", "yaml")
	require.NoError(t, err)

	var doc map[string]any
	require.NoError(t, yaml.Unmarshal([]byte(out), &doc))
	assert.Equal(t, "LF_MODIFIER", doc["kind"])
	assert.Equal(t, "const int", doc["signature"])
	record := doc["record"].(map[string]any)
	assert.Equal(t, "LF_MODIFIER", record["kind"])

	out, err = run(t, "type", path, "116")
	require.NoError(t, err)
	var builtin struct{ Kind, Name string }
	require.NoError(t, json.Unmarshal([]byte(out), &builtin))
	assert.Equal(t, "builtin", builtin.Kind)
	assert.Equal(t, "int", builtin.Name)

	_, err = run(t, "type", path, "zz")
	assert.ErrorContains(t, err, "invalid type index")

	_, err = run(t, "type", path, "0x2000")
	assert.Error(t, err)
}

func TestHashes(t *testing.T) {
	out, err := run(t, "hashes", writeSample(t))
	require.NoError(t, err)

	var res struct {
		HashStream bool                `json:"hash_stream"`
		Values     []uint32            `json:"values"`
		Adjusters  map[string][]uint32 `json:"adjusters"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &res))
	assert.True(t, res.HashStream)
	assert.Equal(t, []uint32{0xabc, 0xabc, 0x17}, res.Values)
	assert.Equal(t, map[string][]uint32{"2748": {0x1000}, "23": {0x1002}}, res.Adjusters)
}

func TestOffsets(t *testing.T) {
	out, err := run(t, "offsets", writeSample(t), "--nearest", "0x1001")
	require.NoError(t, err)

	var res struct {
		Offsets []struct{ Type, Offset uint32 } `json:"offsets"`
		Nearest *struct{ Type, Offset uint32 }  `json:"nearest"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &res))
	require.Len(t, res.Offsets, 2)
	assert.Equal(t, uint32(24), res.Offsets[1].Offset)
	require.NotNil(t, res.Nearest)
	assert.Equal(t, uint32(0x1000), res.Nearest.Type)
}

func TestDedupCBOR(t *testing.T) {
	out, err := run(t, "dedup", writeSample(t), "--format", "cbor")
	require.NoError(t, err)

	var groups []dedupGroup
	require.NoError(t, cbor.Unmarshal([]byte(out), &groups))
	require.Len(t, groups, 1)

	g := groups[0]
	assert.Equal(t, "LF_ARGLIST", g.Kind)
	assert.Equal(t, []uint32{0x1000, 0x1001}, g.Indexes)
	assert.Equal(t, fmt.Sprintf("%016x", xxh3.Hash(argList(0x74))), g.Fingerprint)
	require.NotNil(t, g.Hash)
	assert.Equal(t, uint32(0xabc), *g.Hash)
	assert.Equal(t, []uint32{0x1000}, g.Canonical)

	again, err := run(t, "dedup", writeSample(t), "--format", "cbor")
	require.NoError(t, err)
	assert.Equal(t, out, again, "deterministic encoding")
}

func TestConfigPrecedence(t *testing.T) {
	path := writeSample(t)
	cfgPath := filepath.Join(t.TempDir(), "pdbdump.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte("output:\n  format: yaml\n"), 0o600))

	out, err := run(t, "version", "--config", cfgPath)
	require.NoError(t, err)
	assert.Equal(t, "pdbdump version dev\n", out)

	out, err = run(t, "info", path, "--config", cfgPath)
	require.NoError(t, err)
	assert.Contains(t, out, "streams: 6")

	t.Setenv("PDBDUMP_FORMAT", "json")
	out, err = run(t, "info", path, "--config", cfgPath)
	require.NoError(t, err)
	assert.True(t, json.Valid([]byte(out)))

	out, err = run(t, "info", path, "--config", cfgPath, "--format", "yaml")
	require.NoError(t, err)
	assert.False(t, strings.HasPrefix(out, "{"))

	_, err = run(t, "info", path, "--format", "xml")
	assert.ErrorContains(t, err, "unsupported output format")

	_, err = run(t, "info", path, "--config", filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err, "an explicit config file must exist")
}

func TestMissingFile(t *testing.T) {
	_, err := run(t, "info", filepath.Join(t.TempDir(), "missing.pdb"))
	assert.Error(t, err)
}
