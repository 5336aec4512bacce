package main

import (
	"bytes"
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/jamesainslie/comicarc/pkg/comic/output"
)

// formatter resolves --format and --template.
func formatter() (output.Formatter, error) {
	name := viper.GetString("format")
	if name == "" {
		name = "pretty"
	}

	if name == "template" {
		tmpl := viper.GetString("template")
		if tmpl == "" {
			return nil, fmt.Errorf("--template is required when using --format template")
		}
		return output.NewTemplateFormatter(tmpl), nil
	}

	f, err := output.Get(name)
	if err != nil {
		return nil, fmt.Errorf("unknown output format %q: available formats are %v", name, output.Available())
	}
	return f, nil
}

// render formats r to the command's output.
func render(cmd *cobra.Command, r *output.Result) error {
	f, err := formatter()
	if err != nil {
		return err
	}

	var buf bytes.Buffer
	if err := f.Format(&buf, r); err != nil {
		return fmt.Errorf("failed to format output: %w", err)
	}
	_, err = cmd.OutOrStdout().Write(buf.Bytes())
	return err
}
