package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"ingest/internal/logger"
	"ingest/internal/ocr"
)

var extractCmd = &cobra.Command{
	Use:   "extract [text]",
	Short: "Extract an address from text",
	Long: `Run the address extractor on text given as an argument, read from a file
with --file, or read from stdin. The text is normalised the same way as
detected OCR text. Prints the address, or "null" when no rule matches.`,
	Example: `  # Labeled layout
  ingest extract "Address 123 Main St, Springfield, IL 62704 Coordinates 39.8"

  # Custom rules and JSON output
  ingest extract --rules rules.yaml --json < ocr.txt`,
	Args: cobra.MaximumNArgs(1),
	RunE: runExtract,
}

// ExtractOutput is the JSON output of the extract command.
type ExtractOutput struct {
	Address string `json:"address"`
	Found   bool   `json:"found"`
	Rule    string `json:"rule,omitempty"`
}

func init() {
	rootCmd.AddCommand(extractCmd)

	extractCmd.Flags().StringP("file", "f", "", "Read text from file")
	extractCmd.Flags().String("rules", os.Getenv("ADDRESS_RULES_FILE"), "YAML address rules file")
	extractCmd.Flags().Bool("json", false, "Output as JSON")
}

func runExtract(cmd *cobra.Command, args []string) error {
	log := logger.WithComponent("extract")

	filePath, _ := cmd.Flags().GetString("file")
	rulesPath, _ := cmd.Flags().GetString("rules")
	jsonOutput, _ := cmd.Flags().GetBool("json")

	extractor, err := createExtractor(rulesPath)
	if err != nil {
		return fmt.Errorf("failed to load address rules: %w", err)
	}

	var text string
	switch {
	case len(args) == 1:
		text = args[0]
	case filePath != "":
		data, err := os.ReadFile(filePath)
		if err != nil {
			return fmt.Errorf("failed to read input file: %w", err)
		}
		text = string(data)
	default:
		data, err := io.ReadAll(cmd.InOrStdin())
		if err != nil {
			return fmt.Errorf("failed to read stdin: %w", err)
		}
		text = string(data)
	}

	addr, rule := extractor.ExtractWithRule(ocr.Normalize(strings.TrimSpace(text)))
	log.Debug().
		Strs("rules", extractor.Matchers()).
		Str("matched", rule).
		Int("text_length", len(text)).
		Msg("Extraction finished")

	out := cmd.OutOrStdout()
	if jsonOutput {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(ExtractOutput{Address: addr.String(), Found: addr.IsFound(), Rule: rule})
	}
	_, err = fmt.Fprintln(out, addr.String())
	return err
}
