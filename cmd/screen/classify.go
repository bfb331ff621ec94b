package main

import (
	"encoding/json"
	"fmt"
	"mime"
	"net/http"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/JaimeStill/tayyib/internal/classifier"
	"github.com/JaimeStill/tayyib/internal/normalize"
	"github.com/JaimeStill/tayyib/internal/rollup"
	"github.com/JaimeStill/tayyib/internal/screening"
)

func newClassifyCommand(opts *options) *cobra.Command {
	var (
		product     string
		ingredients string
		file        string
		compact     bool
	)

	cmd := &cobra.Command{
		Use:   "classify",
		Short: "Classify a product's ingredients and print the assessment",
		Long: `Classify sends the ingredient list (or a label image) to the configured
classifier, normalizes the result, and prints the product assessment.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			req := classifier.Request{
				ProductName:     product,
				IngredientsText: ingredients,
			}
			if file != "" {
				f, err := readFile(file)
				if err != nil {
					return err
				}
				req.IngredientsFile = f
			}
			if err := req.Validate(); err != nil {
				return err
			}

			cfg, err := opts.classifierConfig()
			if err != nil {
				return fmt.Errorf("classifier config: %w", err)
			}

			cls, err := classifier.New(cfg, opts.logger(cmd), nil)
			if err != nil {
				return err
			}

			records, err := cls.Classify(cmd.Context(), req)
			if err != nil {
				return err
			}

			ings, warnings := normalize.Batch(records)
			if len(ings) == 0 {
				return screening.ErrNoIngredients
			}
			if warnings == nil {
				warnings = []normalize.Warning{}
			}

			result := screening.Result{
				Product:  rollup.Default.Assemble(product, ings),
				Warnings: warnings,
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			if !compact {
				enc.SetIndent("", "  ")
			}
			return enc.Encode(result)
		},
	}

	cmd.Flags().StringVarP(&product, "product", "p", "", "product name")
	cmd.Flags().StringVarP(&ingredients, "ingredients", "i", "", "ingredient list text")
	cmd.Flags().StringVarP(&file, "file", "f", "", "path to an ingredient label image or text file")
	cmd.Flags().BoolVar(&compact, "compact", false, "print single-line JSON")
	cmd.MarkFlagRequired("product")
	cmd.MarkFlagsMutuallyExclusive("ingredients", "file")
	cmd.MarkFlagsOneRequired("ingredients", "file")

	return cmd
}

func readFile(path string) (*classifier.File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}

	mimeType := mime.TypeByExtension(filepath.Ext(path))
	if mimeType == "" {
		mimeType = http.DetectContentType(data)
	}

	return &classifier.File{
		Filename: filepath.Base(path),
		MimeType: mimeType,
		Data:     data,
	}, nil
}
