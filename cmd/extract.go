package main

import (
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/doc-extract/internal/model"
	"github.com/sells-group/doc-extract/internal/pipeline"
)

var (
	extractLabel   string
	extractSchema  string
	extractPDF     string
	extractNoCache bool
)

var extractCmd = &cobra.Command{
	Use:   "extract",
	Short: "Extract schema fields from a single PDF",
	Example: `  doc-extract extract --label carteira_oab --pdf oab_1.pdf \
    --schema '{"nome":"Nome do profissional","inscricao":"Numero de inscricao"}'`,
	RunE: func(cmd *cobra.Command, args []string) error {
		schema, err := loadSchema(extractSchema)
		if err != nil {
			return err
		}

		env, err := initExtractEnv("extract")
		if err != nil {
			return err
		}
		defer env.Close()

		req := model.ExtractionRequest{
			Label:   extractLabel,
			Schema:  schema,
			PDFPath: extractPDF,
		}
		result, err := env.Pipeline.Run(cmd.Context(), req, pipeline.RunOptions{UseCache: !extractNoCache})
		if err != nil {
			return eris.Wrap(err, "extract")
		}
		return writeResult(os.Stdout, result)
	},
}

// loadSchema reads an extraction schema given inline as a JSON object or as
// the path of a JSON or YAML file. Field order is preserved.
func loadSchema(arg string) (model.ExtractionSchema, error) {
	var schema model.ExtractionSchema

	arg = strings.TrimSpace(arg)
	if strings.HasPrefix(arg, "{") {
		if err := json.Unmarshal([]byte(arg), &schema); err != nil {
			return schema, eris.Wrap(err, "parse inline schema")
		}
		return schema, nil
	}

	data, err := os.ReadFile(arg)
	if err != nil {
		return schema, eris.Wrap(err, "read schema file")
	}
	switch strings.ToLower(filepath.Ext(arg)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, &schema)
	default:
		err = json.Unmarshal(data, &schema)
	}
	if err != nil {
		return schema, eris.Wrapf(err, "parse schema file %s", arg)
	}
	return schema, nil
}

func writeResult(w io.Writer, result *model.ExtractionResult) error {
	return newIndentEncoder(w).Encode(result)
}

func newIndentEncoder(w io.Writer) *json.Encoder {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc
}

func init() {
	extractCmd.Flags().StringVar(&extractLabel, "label", "", "document type label")
	extractCmd.Flags().StringVar(&extractSchema, "schema", "", "extraction schema: inline JSON object or path to a JSON/YAML file")
	extractCmd.Flags().StringVar(&extractPDF, "pdf", "", "PDF path, absolute or relative to pdf.base_path")
	extractCmd.Flags().BoolVar(&extractNoCache, "no-cache", false, "bypass the result cache")
	_ = extractCmd.MarkFlagRequired("label")
	_ = extractCmd.MarkFlagRequired("schema")
	_ = extractCmd.MarkFlagRequired("pdf")
	rootCmd.AddCommand(extractCmd)
}
