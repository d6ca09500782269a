package cli

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/fxamacker/cbor/v2"
	"gopkg.in/yaml.v3"

	"github.com/jtang613/pdbtpi/internal/config"
)

// cborMode encodes with Core Deterministic Encoding so identical results
// produce identical bytes. Text marshalers (leaf kinds) become strings.
var cborMode = func() cbor.EncMode {
	opts := cbor.CoreDetEncOptions()
	opts.TextMarshaler = cbor.TextMarshalerTextString
	mode, err := opts.EncMode()
	if err != nil {
		panic("cli: CBOR encoder initialization failed: " + err.Error())
	}
	return mode
}()

func writeOutput(w io.Writer, format string, pretty bool, v any) error {
	switch format {
	case config.FormatJSON:
		enc := json.NewEncoder(w)
		enc.SetEscapeHTML(false)
		if pretty {
			enc.SetIndent("", "  ")
		}
		return enc.Encode(v)
	case config.FormatYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(v); err != nil {
			return err
		}
		return enc.Close()
	case config.FormatCBOR:
		return cborMode.NewEncoder(w).Encode(v)
	default:
		return fmt.Errorf("unsupported output format %q", format)
	}
}
